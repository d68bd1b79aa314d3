package hexapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"hexmirror/internal/models"
)

// Package is the subset of a listing entry the mirror needs.
type Package struct {
	Name     string
	Releases []Release
}

type Release struct {
	Version string
}

type rawPackage struct {
	Name     *string       `json:"name"`
	Releases *[]rawRelease `json:"releases"`
}

type rawRelease struct {
	Version *string `json:"version"`
}

// DecodePackage validates one listing entry. Name and version become path
// segments, so they must be non-empty and free of separators.
func DecodePackage(entry json.RawMessage) (Package, error) {
	var raw rawPackage
	if err := json.Unmarshal(entry, &raw); err != nil {
		return Package{}, fmt.Errorf("malformed entry: %w", err)
	}
	if raw.Name == nil {
		return Package{}, fmt.Errorf("missing name")
	}
	if err := checkSegment("name", *raw.Name); err != nil {
		return Package{}, err
	}
	if raw.Releases == nil {
		return Package{}, fmt.Errorf("package %s: missing releases", *raw.Name)
	}

	pkg := Package{Name: *raw.Name, Releases: make([]Release, 0, len(*raw.Releases))}
	for i, r := range *raw.Releases {
		if r.Version == nil {
			return Package{}, fmt.Errorf("package %s: release %d: missing version", pkg.Name, i)
		}
		if err := checkSegment("version", *r.Version); err != nil {
			return Package{}, fmt.Errorf("package %s: release %d: %w", pkg.Name, i, err)
		}
		pkg.Releases = append(pkg.Releases, Release{Version: *r.Version})
	}
	return pkg, nil
}

func checkSegment(field, v string) error {
	if v == "" {
		return fmt.Errorf("empty %s", field)
	}
	if v == "." || v == ".." || strings.ContainsAny(v, `/\`) || strings.ContainsRune(v, 0) {
		return fmt.Errorf("invalid %s %q", field, v)
	}
	return nil
}

// Descriptors expands a package into its release tarballs followed by its
// package index file.
func (p Package) Descriptors(repoURL string) []models.ArtifactDescriptor {
	out := make([]models.ArtifactDescriptor, 0, len(p.Releases)+1)
	for _, r := range p.Releases {
		file := p.Name + "-" + r.Version + ".tar"
		out = append(out, models.ArtifactDescriptor{
			Name:       p.Name,
			Version:    r.Version,
			Kind:       models.KindTarball,
			RemotePath: "tarballs/" + file,
			RemoteURL:  repoURL + "/tarballs/" + url.PathEscape(file),
		})
	}
	out = append(out, models.ArtifactDescriptor{
		Name:       p.Name,
		Kind:       models.KindPackage,
		RemotePath: "packages/" + p.Name,
		RemoteURL:  repoURL + "/packages/" + url.PathEscape(p.Name),
	})
	return out
}

// BuildManifest decodes every entry. One bad entry fails the whole build.
func BuildManifest(repoURL string, entries []json.RawMessage) (*models.Manifest, error) {
	repoURL = strings.TrimRight(repoURL, "/")
	var descriptors []models.ArtifactDescriptor
	for i, entry := range entries {
		pkg, err := DecodePackage(entry)
		if err != nil {
			return nil, &models.ManifestDecodeError{Index: i, Reason: err.Error()}
		}
		descriptors = append(descriptors, pkg.Descriptors(repoURL)...)
	}
	return models.NewManifest(descriptors), nil
}

// MarshalListing renders raw listing entries as the snapshot file body.
func MarshalListing(entries []json.RawMessage) ([]byte, error) {
	if entries == nil {
		entries = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal listing: %w", err)
	}
	return append(data, '\n'), nil
}

// LoadListing reads a snapshot written by MarshalListing.
func LoadListing(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing snapshot: %w", err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &models.ManifestDecodeError{Index: -1, Reason: "snapshot " + path + " is not a JSON array", Err: err}
	}
	return entries, nil
}
