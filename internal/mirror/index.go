package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Presence answers whether a relative path is already mirrored.
type Presence interface {
	Has(relPath string) bool
}

// LocalIndex is a snapshot of the regular files under a mirror root, keyed by
// slash-separated relative path.
type LocalIndex struct {
	sizes map[string]int64
	total int64
}

// Scan walks root recursively. A missing root yields an empty index.
// Directories, symlinks and stray temp files are not artifacts.
func Scan(root string) (*LocalIndex, error) {
	idx := &LocalIndex{sizes: make(map[string]int64)}

	// A symlinked root is followed; links below it are not artifacts.
	resolved, err := filepath.EvalSymlinks(root)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	root = resolved

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		idx.sizes[filepath.ToSlash(rel)] = info.Size()
		idx.total += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return idx, nil
}

// NewPresenceSet builds an index from known paths, e.g. a remote listing.
func NewPresenceSet(sizes map[string]int64) *LocalIndex {
	idx := &LocalIndex{sizes: make(map[string]int64, len(sizes))}
	for p, n := range sizes {
		idx.sizes[p] = n
		idx.total += n
	}
	return idx
}

func (l *LocalIndex) Has(relPath string) bool {
	if l == nil {
		return false
	}
	_, ok := l.sizes[relPath]
	return ok
}

func (l *LocalIndex) Size(relPath string) (int64, bool) {
	if l == nil {
		return 0, false
	}
	n, ok := l.sizes[relPath]
	return n, ok
}

func (l *LocalIndex) Len() int {
	if l == nil {
		return 0
	}
	return len(l.sizes)
}

func (l *LocalIndex) TotalBytes() int64 {
	if l == nil {
		return 0
	}
	return l.total
}

// Paths returns every indexed path in sorted order.
func (l *LocalIndex) Paths() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.sizes))
	for p := range l.sizes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}
