package mirror

import "hexmirror/internal/models"

// WorkItem is an artifact selected for download.
type WorkItem = models.ArtifactDescriptor

// Plan returns the manifest descriptors whose path is not present, in
// manifest order. It is a pure function of its inputs.
func Plan(manifest *models.Manifest, local Presence) []WorkItem {
	return Planner{}.Plan(manifest, local)
}

// Planner carries planning options.
type Planner struct {
	// RefreshIndexes re-fetches a package index file whenever one of the
	// package's tarballs is planned, since the index lists the new release.
	RefreshIndexes bool
}

func (p Planner) Plan(manifest *models.Manifest, local Presence) []WorkItem {
	descriptors := manifest.Descriptors()

	var stale map[string]bool
	if p.RefreshIndexes {
		stale = make(map[string]bool)
		for _, d := range descriptors {
			if d.Kind == models.KindTarball && !has(local, d.RemotePath) {
				stale[d.Name] = true
			}
		}
	}

	items := make([]WorkItem, 0)
	for _, d := range descriptors {
		switch {
		case !has(local, d.RemotePath):
			items = append(items, d)
		case d.Kind == models.KindPackage && stale[d.Name]:
			items = append(items, d)
		}
	}
	return items
}

func has(local Presence, relPath string) bool {
	return local != nil && local.Has(relPath)
}
