package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"hexmirror/internal/hexapi"
	"hexmirror/internal/mirror"
	"hexmirror/pkg/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Save the full hex.pm package listing to a file",
	Long: `Fetch every page of the hex.pm package listing and save it as a JSON array.

The snapshot can be passed to "download --manifest-file" to mirror against a
fixed listing without hitting the API again. When saved to the default
location (MIRROR_MANIFEST_FILE, hexpm.json) "download" and "status" pick it up
automatically; pass --live to them to ignore it. The file is only written once
every page has been fetched and decoded.`,
	Example: `  # Save to hexpm.json
  hexmirror list

  # Save somewhere else
  hexmirror list --output /tmp/listing.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd)
	},
}

func runList(cmd *cobra.Command) error {
	c, err := resolveConfig(cmd)
	if err != nil {
		utils.PrintError(err, "list")
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = c.ManifestFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := newHexClient(c)
	entries, err := client.FetchListing(ctx)
	if err != nil {
		utils.PrintError(err, "list")
		return err
	}
	// Validate before saving so a snapshot is always usable.
	manifest, err := hexapi.BuildManifest(client.RepoURL(), entries)
	if err != nil {
		utils.PrintError(err, "list")
		return err
	}

	data, err := hexapi.MarshalListing(entries)
	if err != nil {
		utils.PrintError(err, "list")
		return err
	}
	if err := mirror.WriteAtomic(filepath.Dir(output), filepath.Base(output), data); err != nil {
		utils.PrintError(err, "list")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d packages (%d files) as %s\n", len(entries), manifest.Len(), output)
	return nil
}

func init() {
	listCmd.Flags().StringP("output", "o", "", "Snapshot file (default from MIRROR_MANIFEST_FILE or hexpm.json)")
}
