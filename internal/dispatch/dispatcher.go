// Package dispatch runs one remote fingerprint check per key under a
// concurrency cap and collects the result sets in input order.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
)

// Default timings, matching the production deployment.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultBatchTimeout = 14 * time.Minute
)

// Params are the per-batch check parameters.
type Params struct {
	// Concurrency is the maximum number of checks in flight (submit + polls).
	Concurrency int
	// Relatedness is the threshold above which a peer counts as a match.
	Relatedness float64
	// ExcludeRegex filters peers out of the comparison on the service side.
	ExcludeRegex string
}

// Dispatcher fans checks out to a ComparisonService.
type Dispatcher struct {
	svc          ComparisonService
	pollInterval time.Duration
	batchTimeout time.Duration
	limiter      *rate.Limiter
	metrics      *metrics.Collector
	logger       *slog.Logger
	progress     *Progress
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval sets the delay between polls of one execution.
func WithPollInterval(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.pollInterval = d
		}
	}
}

// WithBatchTimeout sets the deadline for a whole batch. Zero disables it.
func WithBatchTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.batchTimeout = d }
}

// WithPollRateLimit caps DescribeExecution-style calls across all jobs to
// perSecond. Zero or less leaves polls unthrottled.
func WithPollRateLimit(perSecond float64) Option {
	return func(disp *Dispatcher) {
		if perSecond > 0 {
			disp.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			disp.limiter = nil
		}
	}
}

// WithMetrics records submit, poll and job timings.
func WithMetrics(c *metrics.Collector) Option {
	return func(disp *Dispatcher) { disp.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithProgress publishes job counts to p while a batch runs.
func WithProgress(p *Progress) Option {
	return func(disp *Dispatcher) { disp.progress = p }
}

// New creates a Dispatcher for svc.
func New(svc ComparisonService, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		svc:          svc,
		pollInterval: DefaultPollInterval,
		batchTimeout: DefaultBatchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run checks every key and returns the result sets indexed like keys.
// The first failing check cancels the others and Run returns a *BatchError
// with no results.
func (d *Dispatcher) Run(ctx context.Context, keys []string, p Params) ([]models.ResultSet, error) {
	if p.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", p.Concurrency)
	}

	d.progress.begin(len(keys))
	defer d.progress.end()

	if d.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, d.batchTimeout, ErrBatchTimeout)
		defer cancel()
	}

	results := make([]models.ResultSet, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)

	for i, key := range keys {
		// No new executions once any check has failed.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rs, err := d.runOne(gctx, key, p)
			if err != nil {
				return &BatchError{Key: key, Err: err}
			}
			results[i] = rs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, d.batchFailure(ctx, err)
	}
	return results, nil
}

// batchFailure prefers the batch deadline over the job error it caused.
func (d *Dispatcher) batchFailure(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrBatchTimeout) {
		d.logger.Error("fingerprint batch timed out", "timeout", d.batchTimeout)
		return &BatchError{Err: ErrBatchTimeout}
	}
	if ctx.Err() != nil {
		d.logger.Warn("fingerprint batch cancelled", "cause", context.Cause(ctx))
		return &BatchError{Err: context.Cause(ctx)}
	}
	var be *BatchError
	if errors.As(err, &be) {
		d.logger.Error("fingerprint check failed", "url", be.Key, "error", be.Err)
		return be
	}
	return &BatchError{Err: err}
}

// runOne submits a single check and polls it until it leaves the in-progress
// states. A cancelled batch submits nothing.
func (d *Dispatcher) runOne(ctx context.Context, key string, p Params) (rs models.ResultSet, err error) {
	if ctx.Err() != nil {
		return models.ResultSet{}, context.Cause(ctx)
	}

	d.progress.jobStarted()
	start := time.Now()
	defer func() {
		d.metrics.Since(metrics.OpJob, start, err)
		d.progress.jobDone(err)
	}()

	handle, err := d.submit(ctx, Request{
		Index:                key,
		RelatednessThreshold: p.Relatedness,
		ExcludeRegex:         p.ExcludeRegex,
	})
	if err != nil {
		return models.ResultSet{}, err
	}
	d.logger.Debug("check submitted", "url", key, "execution", handle)

	exec, polls, err := d.pollUntilDone(ctx, handle)
	if err != nil {
		return models.ResultSet{}, err
	}

	switch exec.State {
	case StateSucceeded:
	case StateFailed, StateAborted:
		d.logger.Warn("check did not succeed", "url", key, "execution", handle, "state", exec.State, "polls", polls)
		return models.ResultSet{}, fmt.Errorf("%w: execution %s ended %s", ErrExecutionFailed, handle, exec.State)
	default:
		return models.ResultSet{}, fmt.Errorf("%w: execution %s reported unknown state %q", ErrExecutionFailed, handle, exec.State)
	}

	rs, err = models.ParseResultSet(key, exec.Output)
	if err != nil {
		return models.ResultSet{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	d.logger.Debug("check finished", "url", key, "execution", handle, "polls", polls, "kind", rs.Kind(), "matches", rs.Len())
	return rs, nil
}

func (d *Dispatcher) submit(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	handle, err := d.svc.Submit(ctx, req)
	d.metrics.Since(metrics.OpSubmit, start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if handle == "" {
		return "", fmt.Errorf("%w: no execution handle returned for %s", ErrSubmission, req.Index)
	}
	return handle, nil
}

// pollUntilDone polls handle until it is no longer pending or running.
// The first poll happens immediately; later polls wait for the interval.
func (d *Dispatcher) pollUntilDone(ctx context.Context, handle string) (Execution, int, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return Execution{}, polls, context.Cause(ctx)
		case <-timer.C:
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return Execution{}, polls, fmt.Errorf("wait for poll slot: %w", err)
			}
		}

		start := time.Now()
		exec, err := d.svc.Poll(ctx, handle)
		d.metrics.Since(metrics.OpPoll, start, err)
		polls++
		if err != nil {
			return Execution{}, polls, fmt.Errorf("poll execution %s: %w", handle, err)
		}
		if !exec.State.InProgress() {
			return exec, polls, nil
		}
		timer.Reset(d.pollInterval)
	}
}
