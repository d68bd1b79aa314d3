package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hexmirror/internal/models"
)

const tempPrefix = ".hexmirror-tmp-"

// Writer persists artifacts under Root. Every write lands in a temp file in
// the target directory and is renamed into place only after it is synced, so
// the final path is either absent or complete.
type Writer struct {
	Root string
	Perm os.FileMode

	dirSync func(dir string) error
}

func NewWriter(root string) *Writer {
	return &Writer{Root: root, Perm: 0o644}
}

// WriteAtomic writes data to root/relPath atomically.
func WriteAtomic(root, relPath string, data []byte) error {
	_, err := NewWriter(root).Write(relPath, data)
	return err
}

// Write returns the number of bytes committed. Failures are
// *models.ArtifactWriteError. Overwriting an existing file is allowed.
func (w *Writer) Write(relPath string, data []byte) (int64, error) {
	final, err := w.resolve(relPath)
	if err != nil {
		return 0, err
	}
	tmp, err := w.stage(final, data)
	if err != nil {
		return 0, &models.ArtifactWriteError{Path: relPath, Err: err}
	}
	if err := w.commit(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return 0, &models.ArtifactWriteError{Path: relPath, Err: err}
	}
	return int64(len(data)), nil
}

// WriteFunc adapts a Writer to the pool's WriteFunc.
func (w *Writer) WriteFunc() WriteFunc {
	return func(_ context.Context, relPath string, data []byte) (int64, error) {
		return w.Write(relPath, data)
	}
}

func (w *Writer) resolve(relPath string) (string, error) {
	rel := filepath.FromSlash(relPath)
	if !filepath.IsLocal(rel) {
		return "", &models.ArtifactWriteError{Path: relPath, Err: fmt.Errorf("path escapes mirror root")}
	}
	return filepath.Join(w.Root, rel), nil
}

// stage writes and syncs a temp file next to final and returns its name. On
// error no temp file is left behind.
func (w *Writer) stage(final string, data []byte) (string, error) {
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(name)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", err
	}
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := tmp.Chmod(perm); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	ok = true
	return name, nil
}

// commit renames tmp over final. Once the rename succeeds the artifact is
// complete at its final path and a later run treats it as present, so a
// failed directory sync is logged rather than reported as a failed write.
func (w *Writer) commit(tmp, final string) error {
	if err := os.Rename(tmp, final); err != nil {
		return err
	}
	sync := w.dirSync
	if sync == nil {
		sync = syncDir
	}
	if err := sync(filepath.Dir(final)); err != nil {
		slog.Warn("directory sync failed after rename", "path", final, "error", err)
	}
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
