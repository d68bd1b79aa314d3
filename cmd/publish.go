package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"hexmirror/internal/s3client"
	"hexmirror/pkg/utils"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the local mirror to an S3 bucket",
	Long: `Upload the local mirror to an S3 bucket so it can be served by a static host.

Only files that are missing from the bucket, or whose size differs, are
uploaded. Bucket credentials are taken from API_URL, ACCESS_KEY, SECRET_KEY,
BUCKET_NAME and REGION.`,
	Example: `  # Publish ./repo.hex.pm to the configured bucket
  hexmirror publish

  # Publish under a prefix in another bucket
  hexmirror publish --bucket hex-mirror --prefix repo

  # Show what would be uploaded
  hexmirror publish --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd)
	},
}

func runPublish(cmd *cobra.Command) error {
	c, err := resolveConfig(cmd)
	if err != nil {
		utils.PrintError(err, "publish")
		return err
	}
	if bucket, _ := cmd.Flags().GetString("bucket"); bucket != "" {
		c.BucketName = bucket
	}
	prefix, _ := cmd.Flags().GetString("prefix")
	confirm, _ := cmd.Flags().GetBool("confirm")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if !confirm && !dryRun {
		fmt.Printf("Publish operation summary:\n")
		fmt.Printf("  Bucket: %s\n", c.BucketName)
		fmt.Printf("  Prefix: %s\n", prefix)
		fmt.Printf("  Source: %s\n", c.DestDir)

		fmt.Print("Continue with publish? (y/N): ")
		var response string
		_, err := fmt.Scanln(&response)
		if err != nil {
			utils.PrintError(err, "publish")
			return err
		}
		if !slices.Contains([]string{"y", "yes"}, strings.ToLower(response)) {
			fmt.Println("Publish cancelled.")
			return nil
		}
	}

	client, err := s3client.New(c)
	if err != nil {
		utils.PrintError(err, "publish")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := client.PublishMirror(ctx, c.DestDir, s3client.PublishOptions{
		Prefix:      prefix,
		Concurrency: c.Concurrency,
		Retry:       retryPolicy(c),
		DryRun:      dryRun,
	})
	if err != nil {
		utils.PrintError(err, "publish")
		return err
	}

	if err := utils.WriteJSON(cmd.OutOrStdout(), result); err != nil {
		utils.PrintError(err, "publish")
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d uploads failed", errIncomplete, result.Failed)
	}
	return nil
}

func init() {
	addEngineFlags(publishCmd)
	publishCmd.Flags().StringP("bucket", "b", "", "Override bucket name from config")
	publishCmd.Flags().String("prefix", "", "Key prefix inside the bucket")
	publishCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	publishCmd.Flags().Bool("dry-run", false, "Count what would be uploaded without uploading")
}
