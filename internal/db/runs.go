package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/umccr/holmes-report/internal/models"
)

const runFields = `run_id, batch_day, bucket, fingerprints, controls, unmatched, expected, reportable,
	concurrency, relatedness, status, failure, started_at, finished_at`

// RecordRun stores a run, replacing any earlier record with the same run id.
func (c *Client) RecordRun(ctx context.Context, run models.Run) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("grouping_run", $run_id) SET
			run_id = $run_id,
			batch_day = $batch_day,
			bucket = $bucket,
			fingerprints = $fingerprints,
			controls = $controls,
			unmatched = $unmatched,
			expected = $expected,
			reportable = $reportable,
			concurrency = $concurrency,
			relatedness = $relatedness,
			status = $status,
			failure = $failure,
			started_at = type::datetime($started_at),
			finished_at = type::datetime($finished_at)
	`, map[string]any{
		"run_id":       run.RunID,
		"batch_day":    run.BatchDay,
		"bucket":       run.Bucket,
		"fingerprints": run.Fingerprints,
		"controls":     run.Controls,
		"unmatched":    run.Unmatched,
		"expected":     run.Expected,
		"reportable":   run.Reportable,
		"concurrency":  run.Concurrency,
		"relatedness":  run.Relatedness,
		"status":       string(run.Status),
		"failure":      run.Error,
		"started_at":   run.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at":  run.FinishedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("record run: %w", wrapQueryError(err))
	}
	return nil
}

// GetRun returns one run by id, or ErrNotFound.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	results, err := surrealdb.Query[[]models.Run](ctx, c.db,
		"SELECT "+runFields+` FROM type::record("grouping_run", $run_id)`,
		map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return &(*results)[0].Result[0], nil
}

// ListRuns returns the most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]models.Run](ctx, c.db,
		"SELECT "+runFields+" FROM grouping_run ORDER BY started_at DESC LIMIT $limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.Run{}, nil
	}
	return (*results)[0].Result, nil
}
