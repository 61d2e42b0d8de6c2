// Package grouping reduces the symmetric, redundant per-file check results of a
// batch into unmatched subjects, expected same-subject groups and the
// cross-subject groups that need a human to look at them.
package grouping

import (
	"log/slog"
	"slices"

	"github.com/umccr/holmes-report/internal/models"
)

// Outcome is the canonical partition of one batch.
type Outcome struct {
	UnmatchedSubjectIDs []string
	ExpectedMatches     []models.ExpectedMatch
	ReportableGroups    []models.MatchGroup
}

// Class is the bucket a single result set is routed to.
type Class int

const (
	ClassUnmatched Class = iota
	ClassExpected
	ClassReportable
)

// Classify routes one result set. Unmatched results without a derivable
// subject, and groups spanning more than one identity, are reportable.
func Classify(rs models.ResultSet) Class {
	switch rs.Kind() {
	case models.ResultEmpty, models.ResultSelfOnly:
		if _, ok := models.SubjectID(rs.Query); ok {
			return ClassUnmatched
		}
		return ClassReportable
	default:
		if len(rs.Subjects()) == 1 && !rs.HasAnonymous() {
			return ClassExpected
		}
		return ClassReportable
	}
}

// Resolve classifies each result set and deduplicates the reportable ones.
// results are processed in order so output is deterministic for a given
// input order regardless of the order in which checks completed. Identity
// anomalies are logged to logger, or the default logger when nil.
func Resolve(results []models.ResultSet, logger *slog.Logger) Outcome {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		out        Outcome
		expected   = make(map[string]struct{})
		reportable []models.ResultSet
	)

	for _, rs := range results {
		switch Classify(rs) {
		case ClassUnmatched:
			if rs.Kind() == models.ResultEmpty {
				logger.Warn("fingerprint check returned no matches, not even itself", "url", rs.Query)
			}
			subject, _ := models.SubjectID(rs.Query)
			out.UnmatchedSubjectIDs = append(out.UnmatchedSubjectIDs, subject)

		case ClassExpected:
			subject := rs.Subjects()[0]
			if _, seen := expected[subject]; seen {
				continue
			}
			expected[subject] = struct{}{}
			out.ExpectedMatches = append(out.ExpectedMatches, models.ExpectedMatch{
				SubjectID: subject,
				Count:     rs.Len(),
			})

		case ClassReportable:
			if rs.Kind() != models.ResultGroup {
				logger.Warn("unmatched fingerprint has no subject id", "url", rs.Query, "kind", rs.Kind())
			}
			reportable = append(reportable, withSelf(rs))
		}
	}

	for _, rs := range EliminateSubsets(reportable) {
		out.ReportableGroups = append(out.ReportableGroups, models.NewMatchGroup(rs.Records))
	}
	return out
}

// withSelf gives an empty result set a placeholder record for the queried
// file so it can be shown as a group.
func withSelf(rs models.ResultSet) models.ResultSet {
	if rs.Kind() != models.ResultEmpty {
		return rs
	}
	return models.NewResultSet(rs.Query, []models.MatchRecord{{File: rs.Query}})
}

// EliminateSubsets repeatedly takes the largest remaining result set (ties
// broken by input order) as canonical and discards every other remaining set
// whose files are a subset of it, including exact duplicates. The returned
// sets are largest first and none is a subset of another. Sets that overlap
// without nesting are all kept.
func EliminateSubsets(sets []models.ResultSet) []models.ResultSet {
	pool := slices.Clone(sets)
	slices.SortStableFunc(pool, func(a, b models.ResultSet) int {
		return b.Len() - a.Len()
	})

	var canonical []models.ResultSet
	for len(pool) > 0 {
		head := pool[0]
		files := head.Files()

		rest := pool[:0:0]
		for _, candidate := range pool[1:] {
			if !isSubset(candidate, files) {
				rest = append(rest, candidate)
			}
		}

		canonical = append(canonical, head)
		pool = rest
	}
	return canonical
}

func isSubset(rs models.ResultSet, of map[string]struct{}) bool {
	for _, rec := range rs.Records {
		if _, ok := of[rec.File]; !ok {
			return false
		}
	}
	return true
}
