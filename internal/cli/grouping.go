package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/umccr/holmes-report/internal/cloud"
	"github.com/umccr/holmes-report/internal/config"
	"github.com/umccr/holmes-report/internal/db"
	"github.com/umccr/holmes-report/internal/dispatch"
	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/report"
	"github.com/umccr/holmes-report/internal/service"
)

var (
	groupingDays        int
	groupingConcurrency int
	groupingRelatedness float64
	groupingExclude     string
	groupingDryRun      bool
	groupingNoProgress  bool
)

var groupingCmd = &cobra.Command{
	Use:   "grouping",
	Short: "Check the latest batch of fingerprints and report groupings",
	Long: `Check every fingerprint of one sequencing batch against all known
fingerprints and post the resulting groups to Slack.

The batch is the day of the most recent fingerprint, or the day --days ago.
If any check fails the whole batch is abandoned and the error is posted
instead; retrying with a lower --concurrency often helps.

Examples:
  holmes-report grouping --channel C0123456
  holmes-report grouping --days 3 --concurrency 2
  holmes-report grouping --dry-run`,
	RunE: runGrouping,
}

func init() {
	groupingCmd.Flags().IntVar(&groupingDays, "days", 0, "process the batch from this many days ago instead of the latest")
	groupingCmd.Flags().IntVar(&groupingConcurrency, "concurrency", 0, "maximum checks in flight (default from config)")
	groupingCmd.Flags().Float64Var(&groupingRelatedness, "relatedness", 0, "relatedness threshold (default from config)")
	groupingCmd.Flags().StringVar(&groupingExclude, "exclude", "", "regex of fingerprints to leave out of comparisons (default from config)")
	groupingCmd.Flags().BoolVar(&groupingDryRun, "dry-run", false, "print the report to stdout instead of posting to Slack")
	groupingCmd.Flags().BoolVar(&groupingNoProgress, "no-progress", false, "never draw the interactive progress display")
}

func runGrouping(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency = groupingConcurrency
	}
	if flags.Changed("relatedness") {
		cfg.Relatedness = groupingRelatedness
	}
	if flags.Changed("exclude") {
		cfg.ExcludeRegex = groupingExclude
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another grouping run holds %s", cfg.LockFile)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", "lock", cfg.LockFile, "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := cloud.LoadClients(ctx, cfg.AWSRegion)
	if err != nil {
		return err
	}

	// Fetch the Slack token first so nothing runs when reporting is broken.
	sink, err := buildSink(ctx, clients)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	enumerator, err := buildEnumerator(clients, collector)
	if err != nil {
		return err
	}

	interactive := !groupingNoProgress && !verbose && term.IsTerminal(int(os.Stdout.Fd())) && !groupingDryRun
	if interactive {
		// The progress display owns the terminal; records still reach the log file.
		setLogger(config.SetupLoggerTo(io.Discard, cfg.LogFile, cfg.LogLevel, "command", cmd.Name()))
	}

	deps := service.ReportDeps{
		Locator:    cloud.NewCloudMapLocator(clients.Discovery, cfg.Namespace, cfg.ServiceName, cfg.CheckAttribute),
		Enumerator: enumerator,
		NewComparison: func(machineARN string) dispatch.ComparisonService {
			return cloud.NewStepsService(clients.SFN, machineARN)
		},
		Sink:    sink,
		Metrics: collector,
		Logger:  logger,
	}

	history, closeHistory := openHistory(ctx)
	defer closeHistory()
	if history != nil {
		deps.History = history
	}

	tracker := dispatch.NewProgress()
	deps.DispatchOptions = []dispatch.Option{
		dispatch.WithPollInterval(cfg.PollInterval),
		dispatch.WithBatchTimeout(cfg.BatchTimeout),
		dispatch.WithPollRateLimit(cfg.PollRateLimit),
		dispatch.WithProgress(tracker),
	}

	svc := service.NewReportService(deps)
	opts := service.ReportOptions{
		Bucket:   cfg.Bucket,
		Days:     groupingDays,
		Location: cfg.Location(),
		Params: dispatch.Params{
			Concurrency:  cfg.Concurrency,
			Relatedness:  cfg.Relatedness,
			ExcludeRegex: cfg.ExcludeRegex,
		},
	}

	work := func(ctx context.Context) error {
		_, err := svc.Run(ctx, opts)
		return err
	}
	if interactive {
		return runWithProgress(ctx, tracker, work)
	}
	return work(ctx)
}

func buildSink(ctx context.Context, clients *cloud.Clients) (report.Sink, error) {
	if groupingDryRun {
		return report.NewConsoleSink(os.Stdout), nil
	}
	if cfg.SlackChannel == "" {
		return nil, fmt.Errorf("no Slack channel configured: pass --channel or set HOLMES_SLACK_CHANNEL")
	}
	token, err := cloud.NewSecretsProvider(clients.Secrets, cfg.SlackSecretID, cfg.SlackSecretField).Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get slack token: %w", err)
	}
	return report.NewSlackSink(token, cfg.SlackChannel), nil
}

func buildEnumerator(clients *cloud.Clients, collector *metrics.Collector) (service.Enumerator, error) {
	if cfg.Store == config.StoreMinio {
		mc, err := cloud.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioSecure)
		if err != nil {
			return nil, err
		}
		return cloud.NewMinioEnumerator(mc, cfg.Bucket, cfg.SitesChecksum, collector, logger), nil
	}
	return cloud.NewS3Enumerator(clients.S3, cfg.Bucket, cfg.SitesChecksum, collector, logger), nil
}

// openHistory connects to the run-history store when one is configured. A
// store that cannot be reached is logged and skipped.
func openHistory(ctx context.Context) (*db.Client, func()) {
	noop := func() {}
	if cfg.HistoryURL == "" {
		return nil, noop
	}

	client, err := db.NewClient(ctx, historyConfig(), logger)
	if err != nil {
		logger.Warn("run history unavailable", "url", cfg.HistoryURL, "error", err)
		return nil, noop
	}
	if err := client.InitSchema(ctx); err != nil {
		logger.Warn("run history schema failed", "error", err)
		_ = client.Close(ctx)
		return nil, noop
	}
	return client, func() { _ = client.Close(context.WithoutCancel(ctx)) }
}

func historyConfig() db.Config {
	return db.Config{
		URL:       cfg.HistoryURL,
		Namespace: cfg.HistoryNamespace,
		Database:  cfg.HistoryDatabase,
		Username:  cfg.HistoryUser,
		Password:  cfg.HistoryPass,
		AuthLevel: "root",
	}
}
