package mirror

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"hexmirror/internal/models"
)

func tarball(name, version string) models.ArtifactDescriptor {
	path := fmt.Sprintf("tarballs/%s-%s.tar", name, version)
	return models.ArtifactDescriptor{Name: name, Version: version, Kind: models.KindTarball, RemotePath: path, RemoteURL: "http://repo/" + path}
}

func packageIndex(name string) models.ArtifactDescriptor {
	return models.ArtifactDescriptor{Name: name, Kind: models.KindPackage, RemotePath: "packages/" + name, RemoteURL: "http://repo/packages/" + name}
}

func presence(paths ...string) *LocalIndex {
	m := make(map[string]int64, len(paths))
	for _, p := range paths {
		m[p] = 1
	}
	return NewPresenceSet(m)
}

func paths(items []WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.RemotePath)
	}
	return out
}

func TestPlanKeepsManifestOrder(t *testing.T) {
	m := models.NewManifest([]models.ArtifactDescriptor{
		tarball("b", "1.0"), tarball("a", "1.0"), packageIndex("a"), packageIndex("b"),
	})

	got := Plan(m, presence("tarballs/a-1.0.tar"))

	assert.Equal(t, []string{"tarballs/b-1.0.tar", "packages/a", "packages/b"}, paths(got))
}

func TestPlanNilPresenceMeansEverything(t *testing.T) {
	m := models.NewManifest([]models.ArtifactDescriptor{tarball("a", "1.0")})
	assert.Len(t, Plan(m, nil), 1)
}

func TestPlannerRefreshIndexes(t *testing.T) {
	m := models.NewManifest([]models.ArtifactDescriptor{
		tarball("a", "1.0"), tarball("a", "1.1"), packageIndex("a"),
		tarball("b", "1.0"), packageIndex("b"),
	})
	local := presence("tarballs/a-1.0.tar", "packages/a", "tarballs/b-1.0.tar", "packages/b")

	plain := Plan(m, local)
	assert.Equal(t, []string{"tarballs/a-1.1.tar"}, paths(plain))

	refreshed := Planner{RefreshIndexes: true}.Plan(m, local)
	assert.Equal(t, []string{"tarballs/a-1.1.tar", "packages/a"}, paths(refreshed))

	all := presence("tarballs/a-1.0.tar", "tarballs/a-1.1.tar", "packages/a", "tarballs/b-1.0.tar", "packages/b")
	assert.Empty(t, Planner{RefreshIndexes: true}.Plan(m, all), "an up-to-date mirror plans nothing")
}

func genManifest(t *rapid.T) *models.Manifest {
	names := rapid.SliceOfN(rapid.StringMatching(`[a-e]`), 0, 8).Draw(t, "names")
	var ds []models.ArtifactDescriptor
	for i, n := range names {
		ds = append(ds, tarball(n, fmt.Sprint(i%3)))
		ds = append(ds, packageIndex(n))
	}
	return models.NewManifest(ds)
}

func TestProperty_PlanIsSetDifference(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := genManifest(t)
		all := m.Descriptors()

		var present []string
		for _, d := range all {
			if rapid.Bool().Draw(t, "present-"+d.RemotePath) {
				present = append(present, d.RemotePath)
			}
		}
		local := presence(present...)

		got := Plan(m, local)

		var want []string
		for _, d := range all {
			if !local.Has(d.RemotePath) {
				want = append(want, d.RemotePath)
			}
		}
		if fmt.Sprint(paths(got)) != fmt.Sprint(want) {
			t.Fatalf("Plan = %v, want %v", paths(got), want)
		}
		if fmt.Sprint(paths(Plan(m, local))) != fmt.Sprint(paths(got)) {
			t.Fatalf("Plan is not deterministic")
		}
	})
}

func TestProperty_PlanBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := genManifest(t)

		if got := Plan(m, presence()); len(got) != m.Len() {
			t.Fatalf("Plan(M, empty) has %d items, want %d", len(got), m.Len())
		}

		var all []string
		for _, d := range m.Descriptors() {
			all = append(all, d.RemotePath)
		}
		if got := Plan(m, presence(all...)); len(got) != 0 {
			t.Fatalf("Plan(M, paths(M)) = %v, want empty", paths(got))
		}
		if got := (Planner{RefreshIndexes: true}).Plan(m, presence(all...)); len(got) != 0 {
			t.Fatalf("refreshing Plan(M, paths(M)) = %v, want empty", paths(got))
		}
	})
}
