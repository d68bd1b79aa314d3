package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"hexmirror/internal/mirror"
	"hexmirror/internal/models"
	"hexmirror/pkg/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the local mirror with the remote listing",
	Long: `Report how many artifacts the listing has, how many files the local mirror
holds and how many artifacts are still missing. Nothing is downloaded.`,
	Example: `  # Status against the live listing
  hexmirror status

  # Status against a saved snapshot
  hexmirror status --manifest-file hexpm.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd)
	},
}

func runStatus(cmd *cobra.Command) error {
	c, err := resolveConfig(cmd)
	if err != nil {
		utils.PrintError(err, "status")
		return err
	}
	manifestFile := snapshotFile(cmd, c)

	deadline, _ := cmd.Flags().GetDuration("deadline")
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	manifest, err := manifestSource(newHexClient(c), manifestFile)(ctx)
	if err != nil {
		utils.PrintError(err, "status")
		return err
	}
	local, err := mirror.Scan(c.DestDir)
	if err != nil {
		utils.PrintError(err, "status")
		return err
	}

	source := c.APIURL
	if manifestFile != "" {
		source = manifestFile
	}
	status := models.MirrorStatus{
		Destination:     c.DestDir,
		ManifestSource:  source,
		ManifestEntries: manifest.Len(),
		LocalFiles:      local.Len(),
		LocalSizeBytes:  local.TotalBytes(),
		LocalSizeHuman:  utils.FormatBytes(local.TotalBytes()),
		Missing:         len(mirror.Plan(manifest, local)),
		OperationTime:   utils.FormatTime(time.Now()),
	}

	if err := utils.WriteJSON(cmd.OutOrStdout(), status); err != nil {
		utils.PrintError(err, "status")
		return err
	}
	return nil
}

func init() {
	statusCmd.Flags().String("manifest-file", "", "Use a listing snapshot instead of the API")
	statusCmd.Flags().Bool("live", false, "Query the API even when a saved listing snapshot exists")
	statusCmd.Flags().Duration("deadline", 5*time.Minute, "Deadline for the whole operation")
}
