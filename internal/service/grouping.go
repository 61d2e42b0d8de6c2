// Package service wires fingerprint checks, grouping and reporting into the
// operations the CLI exposes.
package service

import (
	"context"
	"log/slog"

	"github.com/umccr/holmes-report/internal/dispatch"
	"github.com/umccr/holmes-report/internal/grouping"
)

// GroupingService checks a list of fingerprints and groups the results.
type GroupingService struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewGroupingService creates a grouping service over a dispatcher.
func NewGroupingService(d *dispatch.Dispatcher, logger *slog.Logger) *GroupingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupingService{dispatcher: d, logger: logger}
}

// ResolveGroups runs one check per item and partitions the results. Any failed
// check fails the whole call with a *dispatch.BatchError and no outcome.
func (s *GroupingService) ResolveGroups(ctx context.Context, items []string, p dispatch.Params) (grouping.Outcome, error) {
	s.logger.Info("checking fingerprints", "count", len(items), "concurrency", p.Concurrency, "relatedness", p.Relatedness)

	results, err := s.dispatcher.Run(ctx, items, p)
	if err != nil {
		return grouping.Outcome{}, err
	}

	out := grouping.Resolve(results, s.logger)
	s.logger.Info("fingerprints grouped",
		"unmatched", len(out.UnmatchedSubjectIDs),
		"expected", len(out.ExpectedMatches),
		"reportable", len(out.ReportableGroups))
	return out, nil
}
