// Package cli provides the command-line interface for holmes-report.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/umccr/holmes-report/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose       bool
	flagChannel   string
	flagBucket    string
	flagSitesHash string

	// Global config and logger
	cfg         config.Config
	logger      = slog.Default()
	closeLogger = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "holmes-report",
	Short: "Fingerprint grouping reports for Holmes",
	Long: `holmes-report finds the fingerprints produced by the latest sequencing
batch, checks each of them against every fingerprint Holmes has seen, and
reports which samples group together to Slack.

Samples that only relate to fingerprints of their own subject are expected.
Groups spanning more than one subject usually mean a sample swap or a
labelling error and are listed individually.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyGlobalFlags(cmd)
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		setLogger(config.SetupLogger(cfg.LogFile, cfg.LogLevel, "command", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// applyGlobalFlags lets explicitly set persistent flags override config.
func applyGlobalFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("channel") {
		cfg.SlackChannel = flagChannel
	}
	if flags.Changed("bucket") {
		cfg.Bucket = flagBucket
	}
	if flags.Changed("sc") {
		cfg.SitesChecksum = flagSitesHash
	}
}

func setLogger(l *slog.Logger, closeFn func() error) {
	_ = closeLogger()
	logger, closeLogger = l, closeFn
	slog.SetDefault(logger)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&flagChannel, "channel", "", "Slack channel to report to")
	rootCmd.PersistentFlags().StringVar(&flagBucket, "bucket", "", "bucket holding the fingerprints")
	rootCmd.PersistentFlags().StringVar(&flagSitesHash, "sc", "", "sites checksum the fingerprints were computed against")

	rootCmd.AddCommand(groupingCmd)
	rootCmd.AddCommand(listFingerprintsCmd)
	rootCmd.AddCommand(historyCmd)
}
