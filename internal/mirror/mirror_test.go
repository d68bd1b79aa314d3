package mirror

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexmirror/internal/models"
)

// repoServer serves "content of <path>" for every path and counts requests.
func repoServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("content of " + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func newTestMirror(root, repoURL string) *Mirror {
	source := func(context.Context) (*models.Manifest, error) {
		return models.NewManifest([]models.ArtifactDescriptor{
			{Name: "pkgA", Version: "1.0", Kind: models.KindTarball, RemotePath: "pkgA-1.0.tar", RemoteURL: repoURL + "/pkgA-1.0.tar"},
			{Name: "pkgB", Version: "1.0", Kind: models.KindTarball, RemotePath: "pkgB-1.0.tar", RemoteURL: repoURL + "/pkgB-1.0.tar"},
		}), nil
	}
	return &Mirror{
		Root:   root,
		Source: source,
		Pool: &Pool{
			Concurrency: 100,
			Retry:       fastRetry,
			Fetch:       fetchHTTP,
			Write:       NewWriter(root).WriteFunc(),
		},
	}
}

func TestMirrorRunIsIdempotent(t *testing.T) {
	srv, hits := repoServer(t)
	root := filepath.Join(t.TempDir(), "repo.hex.pm")
	m := newTestMirror(root, srv.URL)

	first, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2 succeeded, 0 failed", first.Summary.String())
	assert.True(t, first.Summary.OK())

	for _, name := range []string{"pkgA-1.0.tar", "pkgB-1.0.tar"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		require.NoError(t, err)
		assert.Equal(t, "content of "+name, string(data))
	}

	second, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Planned)
	assert.Equal(t, "0 succeeded, 0 failed, 2 already present", second.Summary.String())
	assert.EqualValues(t, 2, atomic.LoadInt32(hits), "second run makes no requests")
}

func TestMirrorRetryFetchesOnlyMissing(t *testing.T) {
	srv, hits := repoServer(t)
	root := t.TempDir()
	require.NoError(t, WriteAtomic(root, "pkgA-1.0.tar", []byte("already here")))

	res, err := newTestMirror(root, srv.URL).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"pkgB-1.0.tar"}, paths(res.Planned))
	assert.Equal(t, 1, res.Summary.AlreadyPresent)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	data, err := os.ReadFile(filepath.Join(root, "pkgA-1.0.tar"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
}

func TestMirrorManifestFailureStartsNoWork(t *testing.T) {
	var fetches int32
	root := t.TempDir()
	m := &Mirror{
		Root: root,
		Source: func(context.Context) (*models.Manifest, error) {
			return nil, &models.ManifestTransportError{Page: 3, StatusCode: 502, URL: "http://api/packages?page=3"}
		},
		Pool: &Pool{
			Fetch: func(ctx context.Context, url string) ([]byte, error) {
				atomic.AddInt32(&fetches, 1)
				return nil, nil
			},
			Write: NewWriter(root).WriteFunc(),
		},
	}

	res, err := m.Run(context.Background())
	assert.Nil(t, res)
	var te *models.ManifestTransportError
	assert.True(t, errors.As(err, &te))
	assert.Zero(t, atomic.LoadInt32(&fetches))
}

func TestMirrorDryRunWritesNothing(t *testing.T) {
	srv, hits := repoServer(t)
	root := filepath.Join(t.TempDir(), "mirror")
	m := newTestMirror(root, srv.URL)
	m.DryRun = true

	res, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Planned, 2)
	assert.Zero(t, atomic.LoadInt32(hits))
	_, err = os.Stat(root)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
