package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hexmirror/config"
)

var (
	cfg *config.Config
)

// errIncomplete is returned after the summary has already been printed.
var errIncomplete = errors.New("mirror run incomplete")

var rootCmd = &cobra.Command{
	Use:   "hexmirror",
	Short: "Incremental mirror of repo.hex.pm",
	Long: `hexmirror keeps a local copy of the hex.pm package repository.

It pages through the hex.pm package listing, works out which tarballs and
package index files are missing from the local mirror directory and
downloads only those, in parallel. Every file is written atomically, so the
mirror directory can be served as a drop-in replacement for repo.hex.pm at
any time.
Configuration is loaded from .env file or environment variables`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if isVerbose(cmd) {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(publishCmd)

	rootCmd.PersistentFlags().StringP("dest", "d", "", "Mirror directory (default from MIRROR_DIR or repo.hex.pm)")
	rootCmd.PersistentFlags().String("api-url", "", "Override hex.pm API base URL")
	rootCmd.PersistentFlags().String("repo-url", "", "Override repository file base URL")
	rootCmd.PersistentFlags().Int("page-size", 0, "Treat a listing page shorter than this as the last one (0 = only an empty page ends the listing)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().Bool("json", false, "Print the result as JSON")
}

// resolveConfig overlays command-line flags on the loaded configuration and
// validates the result before anything touches the network.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	c := *cfg

	if v, _ := cmd.Flags().GetString("dest"); v != "" {
		c.DestDir = v
	}
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		c.APIURL = v
	}
	if v, _ := cmd.Flags().GetString("repo-url"); v != "" {
		c.RepoURL = v
	}
	if f := cmd.Flags().Lookup("page-size"); f != nil && f.Changed {
		c.PageSize, _ = cmd.Flags().GetInt("page-size")
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		c.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if f := cmd.Flags().Lookup("max-attempts"); f != nil && f.Changed {
		c.MaxAttempts, _ = cmd.Flags().GetInt("max-attempts")
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		c.RequestTimeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if f := cmd.Flags().Lookup("grace-period"); f != nil && f.Changed {
		c.GracePeriod, _ = cmd.Flags().GetDuration("grace-period")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

func isJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("concurrency", "c", config.DefaultConcurrency, "Maximum number of parallel transfers")
	cmd.Flags().Int("max-attempts", config.DefaultMaxAttempts, "Attempts per artifact for transient failures")
	cmd.Flags().Duration("timeout", config.DefaultRequestTimeout, "Timeout for a single request")
	cmd.Flags().Duration("grace-period", config.DefaultGracePeriod, "Time in-flight transfers may finish after an interrupt")
}
