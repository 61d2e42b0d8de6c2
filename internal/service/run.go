package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/umccr/holmes-report/internal/dispatch"
	"github.com/umccr/holmes-report/internal/grouping"
	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
	"github.com/umccr/holmes-report/internal/report"
)

// Locator resolves the check state machine.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// Enumerator lists every fingerprint in the store.
type Enumerator interface {
	All(ctx context.Context) iter.Seq2[models.Fingerprint, error]
}

// HistoryStore records finished runs.
type HistoryStore interface {
	RecordRun(ctx context.Context, run models.Run) error
}

// ComparisonFactory builds the comparison service for a located state machine.
type ComparisonFactory func(machineARN string) dispatch.ComparisonService

// ReportDeps are the collaborators of a ReportService. History and Metrics
// are optional.
type ReportDeps struct {
	Locator         Locator
	Enumerator      Enumerator
	NewComparison   ComparisonFactory
	Sink            report.Sink
	History         HistoryStore
	Metrics         *metrics.Collector
	DispatchOptions []dispatch.Option
	Logger          *slog.Logger
}

// ReportOptions configure one run.
type ReportOptions struct {
	Bucket   string
	Days     int
	Location *time.Location
	Params   dispatch.Params
}

// ReportService runs a grouping analysis for one batch and reports it.
type ReportService struct {
	deps ReportDeps
	now  func() time.Time
}

// NewReportService creates a report service.
func NewReportService(deps ReportDeps) *ReportService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ReportService{deps: deps, now: time.Now}
}

// Run finds the batch, checks it, and posts the outcome to the sink. Any
// fatal error is posted to the sink as well before being returned. The run is
// recorded in the history store when one is configured.
func (s *ReportService) Run(ctx context.Context, opts ReportOptions) (*models.Run, error) {
	run := &models.Run{
		RunID:       uuid.NewString(),
		Bucket:      opts.Bucket,
		Concurrency: opts.Params.Concurrency,
		Relatedness: opts.Params.Relatedness,
		StartedAt:   s.now(),
	}
	logger := s.deps.Logger.With("run_id", run.RunID)

	err := s.run(ctx, logger, opts, run)
	run.FinishedAt = s.now()
	if err != nil {
		run.Status = models.RunFailed
		run.Error = err.Error()
		logger.Error("grouping run failed", "error", err)
		s.post(context.WithoutCancel(ctx), logger, err.Error())
	}

	if s.deps.Metrics != nil {
		logger.Info("grouping run metrics", "metrics", s.deps.Metrics.Snapshot())
	}
	s.record(ctx, logger, *run)
	return run, err
}

func (s *ReportService) run(ctx context.Context, logger *slog.Logger, opts ReportOptions, run *models.Run) error {
	machineARN, err := s.deps.Locator.Locate(ctx)
	if err != nil {
		return fmt.Errorf("locate check service: %w", err)
	}
	logger.Debug("located check service", "arn", machineARN)

	var fps []models.Fingerprint
	for fp, err := range s.deps.Enumerator.All(ctx) {
		if err != nil {
			return fmt.Errorf("list fingerprints: %w", err)
		}
		fps = append(fps, fp)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	batch := SelectBatch(fps, opts.Days, s.now(), loc, logger)
	run.BatchDay = batch.Day.In(loc).Format(time.DateOnly)
	run.Fingerprints = len(batch.URLs)
	run.Controls = len(batch.Skipped)

	header := report.Header(opts.Bucket, batch.Day.In(loc))
	if len(batch.URLs) == 0 {
		run.Status = models.RunNoFingerprints
		s.post(ctx, logger, report.NoFingerprints(header))
		return nil
	}

	d := dispatch.New(s.deps.NewComparison(machineARN), s.dispatchOptions(logger)...)
	out, err := NewGroupingService(d, logger).ResolveGroups(ctx, batch.URLs, opts.Params)
	if err != nil {
		return err
	}

	run.Status = models.RunSucceeded
	run.Unmatched = len(out.UnmatchedSubjectIDs)
	run.Expected = len(out.ExpectedMatches)
	run.Reportable = len(out.ReportableGroups)
	s.postOutcome(ctx, logger, header, len(batch.URLs), opts.Params.Relatedness, out)
	return nil
}

func (s *ReportService) dispatchOptions(logger *slog.Logger) []dispatch.Option {
	opts := []dispatch.Option{dispatch.WithLogger(logger), dispatch.WithMetrics(s.deps.Metrics)}
	return append(opts, s.deps.DispatchOptions...)
}

func (s *ReportService) postOutcome(ctx context.Context, logger *slog.Logger, header string, checked int, relatedness float64, out grouping.Outcome) {
	for _, msg := range report.Messages(header, checked, relatedness, out) {
		s.post(ctx, logger, msg)
	}
}

// post delivers one message. Delivery failures are logged only.
func (s *ReportService) post(ctx context.Context, logger *slog.Logger, text string) {
	if err := s.deps.Sink.Post(ctx, text); err != nil {
		logger.Warn("failed to post report message", "error", err)
	}
}

func (s *ReportService) record(ctx context.Context, logger *slog.Logger, run models.Run) {
	if s.deps.History == nil {
		return
	}
	// The run context may already be cancelled by a batch timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.deps.History.RecordRun(ctx, run); err != nil {
		logger.Warn("failed to record grouping run", "error", err)
	}
}
