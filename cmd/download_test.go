package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexmirror/config"
)

// fakeHex serves a one-page listing at /api and repository files at /repo.
func fakeHex(t *testing.T, missing string) (*httptest.Server, *int32) {
	t.Helper()
	var fileHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/packages":
			if r.URL.Query().Get("page") == "1" {
				fmt.Fprint(w, `[{"name":"pkgA","releases":[{"version":"1.0"}]},{"name":"pkgB","releases":[{"version":"1.0"}]}]`)
				return
			}
			fmt.Fprint(w, `[]`)
		case strings.HasPrefix(r.URL.Path, "/repo/"):
			atomic.AddInt32(&fileHits, 1)
			rel := strings.TrimPrefix(r.URL.Path, "/repo/")
			if rel == missing {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, "body:"+rel)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &fileHits
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg = &config.Config{
		APIURL:         config.DefaultAPIURL,
		RepoURL:        config.DefaultRepoURL,
		DestDir:        config.DefaultDestDir,
		ManifestFile:   config.DefaultManifestFile,
		Concurrency:    config.DefaultConcurrency,
		MaxAttempts:    config.DefaultMaxAttempts,
		RequestTimeout: config.DefaultRequestTimeout,
		GracePeriod:    config.DefaultGracePeriod,
	}
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags undoes flag values left behind by a previous Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestDownloadCommandMirrorsAndIsIdempotent(t *testing.T) {
	srv, hits := fakeHex(t, "")
	dest := filepath.Join(t.TempDir(), "repo.hex.pm")
	args := []string{"download", "--dest", dest, "--api-url", srv.URL + "/api", "--repo-url", srv.URL + "/repo"}

	out, err := runRoot(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "4 succeeded, 0 failed")

	for _, rel := range []string{"tarballs/pkgA-1.0.tar", "tarballs/pkgB-1.0.tar", "packages/pkgA", "packages/pkgB"} {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, "body:"+rel, string(data))
	}

	out, err = runRoot(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "0 succeeded, 0 failed, 4 already present")
	assert.EqualValues(t, 4, atomic.LoadInt32(hits))
}

func TestDownloadCommandReportsFailures(t *testing.T) {
	srv, _ := fakeHex(t, "tarballs/pkgB-1.0.tar")
	dest := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "hexmirror.prom")

	out, err := runRoot(t, "download", "--dest", dest, "--api-url", srv.URL+"/api", "--repo-url", srv.URL+"/repo",
		"--metrics-file", metricsFile)
	require.Error(t, err)
	assert.ErrorIs(t, err, errIncomplete)
	assert.Contains(t, out, "FAILED tarballs/pkgB-1.0.tar")
	assert.Contains(t, out, "3 succeeded, 1 failed")

	_, statErr := os.Stat(filepath.Join(dest, "tarballs", "pkgB-1.0.tar"))
	assert.True(t, os.IsNotExist(statErr))

	metrics, readErr := os.ReadFile(metricsFile)
	require.NoError(t, readErr)
	assert.Contains(t, string(metrics), `hexmirror_artifacts_total{outcome="failed"} 1`)
}

func TestDownloadCommandRejectsBadConfig(t *testing.T) {
	_, err := runRoot(t, "download", "--dest", t.TempDir(), "--concurrency", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
}

func TestListThenDownloadFromSnapshot(t *testing.T) {
	srv, _ := fakeHex(t, "")
	snapshot := filepath.Join(t.TempDir(), "hexpm.json")

	out, err := runRoot(t, "list", "--api-url", srv.URL+"/api", "--repo-url", srv.URL+"/repo", "--output", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 2 packages (4 files)")

	dest := t.TempDir()
	out, err = runRoot(t, "download", "--dest", dest, "--repo-url", srv.URL+"/repo",
		"--manifest-file", snapshot, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "tarballs/pkgA-1.0.tar")
	assert.Contains(t, out, "4 to download, 0 already present")
}

func TestDownloadPicksUpSavedSnapshot(t *testing.T) {
	srv, _ := fakeHex(t, "")
	t.Chdir(t.TempDir())

	out, err := runRoot(t, "list", "--api-url", srv.URL+"/api", "--repo-url", srv.URL+"/repo")
	require.NoError(t, err)
	assert.Contains(t, out, "as "+config.DefaultManifestFile)

	// The API URL is unreachable, so only the snapshot can supply the manifest.
	dest := filepath.Join(t.TempDir(), "mirror")
	args := []string{"download", "--dest", dest, "--api-url", "http://127.0.0.1:1/api", "--repo-url", srv.URL + "/repo", "--dry-run"}
	out, err = runRoot(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "4 to download, 0 already present")

	_, err = runRoot(t, append(args, "--live")...)
	require.Error(t, err)
}

func TestNewHexClientAppliesRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newHexClient(&config.Config{
		APIURL:         srv.URL,
		RepoURL:        srv.URL,
		RequestTimeout: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	_, err := client.FetchListing(ctx)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
