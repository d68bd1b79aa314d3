package models

// Manifest is the deduplicated, ordered set of artifacts discovered for one run.
// It is immutable after NewManifest returns.
type Manifest struct {
	descriptors []ArtifactDescriptor
	index       map[string]int
}

// NewManifest collapses duplicate RemotePaths. A later occurrence replaces the
// earlier descriptor but keeps the earlier position.
func NewManifest(descriptors []ArtifactDescriptor) *Manifest {
	m := &Manifest{
		descriptors: make([]ArtifactDescriptor, 0, len(descriptors)),
		index:       make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if i, ok := m.index[d.RemotePath]; ok {
			m.descriptors[i] = d
			continue
		}
		m.index[d.RemotePath] = len(m.descriptors)
		m.descriptors = append(m.descriptors, d)
	}
	return m
}

func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.descriptors)
}

// Descriptors returns a copy in manifest order.
func (m *Manifest) Descriptors() []ArtifactDescriptor {
	if m == nil {
		return nil
	}
	out := make([]ArtifactDescriptor, len(m.descriptors))
	copy(out, m.descriptors)
	return out
}

func (m *Manifest) Lookup(remotePath string) (ArtifactDescriptor, bool) {
	if m == nil {
		return ArtifactDescriptor{}, false
	}
	i, ok := m.index[remotePath]
	if !ok {
		return ArtifactDescriptor{}, false
	}
	return m.descriptors[i], true
}
