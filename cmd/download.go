package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hexmirror/config"
	"hexmirror/internal/hexapi"
	"hexmirror/internal/metrics"
	"hexmirror/internal/mirror"
	"hexmirror/internal/models"
	"hexmirror/pkg/utils"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every artifact missing from the local mirror",
	Long: `Download every tarball and package index file that is listed by hex.pm but
missing from the mirror directory.

The full package listing is fetched first; if any listing page fails the run
stops before downloading anything. Artifacts are then fetched in parallel.
Transient failures (network errors, 5xx) are retried; 4xx responses are not.
A failed artifact never stops the others, and running the command again
fetches exactly the artifacts that are still missing.

When the snapshot file written by "hexmirror list" (MIRROR_MANIFEST_FILE,
hexpm.json by default) exists, it is used instead of the API unless --live
is given.

Exit status is non-zero if the listing fails or any artifact could not be
mirrored.`,
	Example: `  # Mirror into ./repo.hex.pm
  hexmirror download

  # Mirror into a specific directory with 32 parallel downloads
  hexmirror download --dest /srv/hexpm --concurrency 32

  # Use a listing snapshot saved by "hexmirror list"
  hexmirror download --manifest-file hexpm.json

  # Ignore a saved hexpm.json and query the API
  hexmirror download --live

  # Show what would be downloaded
  hexmirror download --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd)
	},
}

func runDownload(cmd *cobra.Command) error {
	c, err := resolveConfig(cmd)
	if err != nil {
		utils.PrintError(err, "download")
		return err
	}
	manifestFile := snapshotFile(cmd, c)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	refresh, _ := cmd.Flags().GetBool("refresh-indexes")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newHexClient(c)
	m := &mirror.Mirror{
		Root:    c.DestDir,
		Source:  manifestSource(client, manifestFile),
		Planner: mirror.Planner{RefreshIndexes: refresh},
		Pool: &mirror.Pool{
			Concurrency:    c.Concurrency,
			Retry:          retryPolicy(c),
			RequestTimeout: c.RequestTimeout,
			GracePeriod:    c.GracePeriod,
			Fetch:          client.Fetch,
			Write:          mirror.NewWriter(c.DestDir).WriteFunc(),
		},
		DryRun: dryRun,
	}

	if isVerbose(cmd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Starting download operation...\n")
		fmt.Fprintf(cmd.ErrOrStderr(), "  Destination: %s\n", c.DestDir)
		fmt.Fprintf(cmd.ErrOrStderr(), "  Concurrency: %d\n", c.Concurrency)
	}

	start := time.Now()
	res, err := m.Run(ctx)
	if err != nil {
		utils.PrintError(err, "download")
		return err
	}
	res.Summary.TotalSizeHuman = utils.FormatBytes(res.Summary.TotalBytes)

	out := cmd.OutOrStdout()
	if dryRun {
		for _, item := range res.Planned {
			fmt.Fprintln(out, item.RemotePath)
		}
		fmt.Fprintf(out, "%d to download, %d already present\n", len(res.Planned), res.Summary.AlreadyPresent)
		return nil
	}

	if metricsFile != "" {
		rec := metrics.NewRecorder("hexmirror")
		rec.Observe(res.ManifestEntries, len(res.Planned), res.Summary, time.Since(start))
		if err := rec.WriteTextfile(metricsFile); err != nil {
			utils.PrintError(err, "download")
		}
	}

	if isJSON(cmd) {
		if err := utils.WriteJSON(out, res.Summary); err != nil {
			utils.PrintError(err, "download")
			return err
		}
	} else {
		for _, f := range res.Summary.Failures {
			fmt.Fprintf(out, "FAILED %s: %s\n", f.RemotePath, f.Reason)
		}
		fmt.Fprintln(out, res.Summary.String())
	}

	if !res.Summary.OK() {
		return fmt.Errorf("%w: %d failed, %d cancelled", errIncomplete, res.Summary.Failed, res.Summary.Cancelled)
	}
	return nil
}

func newHexClient(c *config.Config) *hexapi.Client {
	return hexapi.New(c.APIURL, c.RepoURL,
		hexapi.WithPageSize(c.PageSize),
		hexapi.WithRequestTimeout(c.RequestTimeout),
	)
}

// snapshotFile picks the listing snapshot to build the manifest from: the
// --manifest-file flag, else the saved MIRROR_MANIFEST_FILE when it exists.
// An empty result means the live API.
func snapshotFile(cmd *cobra.Command, c *config.Config) string {
	if name, _ := cmd.Flags().GetString("manifest-file"); name != "" {
		return name
	}
	if live, _ := cmd.Flags().GetBool("live"); live || c.ManifestFile == "" {
		return ""
	}
	info, err := os.Stat(c.ManifestFile)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	slog.Info("using saved listing snapshot", "file", c.ManifestFile)
	return c.ManifestFile
}

// manifestSource reads the listing snapshot when one is given and the live
// API otherwise.
func manifestSource(client *hexapi.Client, snapshot string) mirror.ManifestSource {
	if snapshot == "" {
		return client.FetchManifest
	}
	return func(context.Context) (*models.Manifest, error) {
		entries, err := hexapi.LoadListing(snapshot)
		if err != nil {
			return nil, err
		}
		return hexapi.BuildManifest(client.RepoURL(), entries)
	}
}

func retryPolicy(c *config.Config) mirror.RetryPolicy {
	p := mirror.DefaultRetryPolicy()
	p.MaxAttempts = c.MaxAttempts
	return p
}

func init() {
	addEngineFlags(downloadCmd)
	downloadCmd.Flags().String("manifest-file", "", "Build the manifest from a listing snapshot instead of the API")
	downloadCmd.Flags().Bool("live", false, "Query the API even when a saved listing snapshot exists")
	downloadCmd.Flags().Bool("dry-run", false, "Print the artifacts that would be downloaded and exit")
	downloadCmd.Flags().Bool("refresh-indexes", true, "Re-download a package index file when any of its tarballs is new")
	downloadCmd.Flags().String("metrics-file", "", "Write Prometheus metrics for this run to a file")
}
