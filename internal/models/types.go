package models

// ArtifactKind distinguishes immutable release files from per-package index files.
type ArtifactKind string

const (
	KindTarball ArtifactKind = "tarball"
	KindPackage ArtifactKind = "package"
)

// ArtifactDescriptor identifies one remote file. RemotePath is relative to the
// repository root and doubles as the path under the local mirror.
type ArtifactDescriptor struct {
	Name       string       `json:"name"`
	Version    string       `json:"version,omitempty"`
	Kind       ArtifactKind `json:"kind"`
	RemotePath string       `json:"remote_path"`
	RemoteURL  string       `json:"remote_url"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}

type MirrorStatus struct {
	Destination     string `json:"destination"`
	ManifestSource  string `json:"manifest_source"`
	ManifestEntries int    `json:"manifest_entries"`
	LocalFiles      int    `json:"local_files"`
	LocalSizeBytes  int64  `json:"local_size_bytes"`
	LocalSizeHuman  string `json:"local_size_human"`
	Missing         int    `json:"missing"`
	OperationTime   string `json:"operation_time"`
}
