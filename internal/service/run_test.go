package service

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umccr/holmes-report/internal/dispatch"
	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
)

type fakeLocator struct {
	arn string
	err error
}

func (f fakeLocator) Locate(context.Context) (string, error) { return f.arn, f.err }

type fakeEnumerator struct {
	fps []models.Fingerprint
	err error
}

func (f fakeEnumerator) All(context.Context) iter.Seq2[models.Fingerprint, error] {
	return func(yield func(models.Fingerprint, error) bool) {
		for _, fp := range f.fps {
			if !yield(fp, nil) {
				return
			}
		}
		if f.err != nil {
			yield(models.Fingerprint{}, f.err)
		}
	}
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingSink) Post(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	return s.err
}

type fakeHistory struct {
	runs []models.Run
	err  error
}

func (h *fakeHistory) RecordRun(_ context.Context, run models.Run) error {
	h.runs = append(h.runs, run)
	return h.err
}

// cannedComparison answers every check immediately with a fixed result set.
type cannedComparison struct {
	results map[string][]string
	failKey string
}

func (c *cannedComparison) Submit(_ context.Context, req dispatch.Request) (string, error) {
	return req.Index, nil
}

func (c *cannedComparison) Poll(_ context.Context, handle string) (dispatch.Execution, error) {
	if handle == c.failKey {
		return dispatch.Execution{State: dispatch.StateFailed}, nil
	}
	records := []models.MatchRecord{}
	for _, f := range c.results[handle] {
		records = append(records, models.MatchRecord{File: f, N: 1500, Relatedness: 0.95})
	}
	out, _ := json.Marshal(records)
	return dispatch.Execution{State: dispatch.StateSucceeded, Output: out}, nil
}

var (
	batchDay = time.Date(2024, 3, 5, 4, 0, 0, 0, time.UTC)
	olderDay = time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)

	a1 = "s3://b/SBJ00001/L2100001.bam"
	a2 = "s3://b/SBJ00001/L2100002.bam"
	b1 = "s3://b/SBJ00002/L2100003.bam"
	c1 = "s3://b/SBJ00003/L2100004.bam"
	c2 = "s3://b/SBJ00004/L2100005.bam"
)

func testFingerprints() []models.Fingerprint {
	return []models.Fingerprint{
		{URL: "s3://b/SBJ00009/L2000001.bam", LastModified: olderDay},
		{URL: a1, LastModified: batchDay},
		{URL: a2, LastModified: batchDay},
		{URL: b1, LastModified: batchDay},
		{URL: c1, LastModified: batchDay},
		{URL: c2, LastModified: batchDay},
		{URL: "s3://b/SBJ00005/PTC_L2100006.bam", LastModified: batchDay},
	}
}

func testComparison() *cannedComparison {
	return &cannedComparison{results: map[string][]string{
		a1: {a1, a2},
		a2: {a2, a1},
		b1: {b1},
		c1: {c1, c2},
		c2: {c2, c1},
	}}
}

func newTestReportService(sink *recordingSink, history HistoryStore, cmp dispatch.ComparisonService, loc Locator, enum Enumerator) *ReportService {
	s := NewReportService(ReportDeps{
		Locator:       loc,
		Enumerator:    enum,
		NewComparison: func(string) dispatch.ComparisonService { return cmp },
		Sink:          sink,
		History:       history,
		Metrics:       metrics.NewCollector(),
		DispatchOptions: []dispatch.Option{
			dispatch.WithPollInterval(time.Millisecond),
		},
	})
	s.now = func() time.Time { return time.Date(2024, 3, 6, 1, 0, 0, 0, time.UTC) }
	return s
}

func testReportOptions() ReportOptions {
	return ReportOptions{
		Bucket: "umccr-fingerprint-prod",
		Params: dispatch.Params{Concurrency: 2, Relatedness: 0.75, ExcludeRegex: ".*(NTC_|PTC_).*"},
	}
}

func TestReportRun(t *testing.T) {
	sink := &recordingSink{}
	history := &fakeHistory{}
	s := newTestReportService(sink, history, testComparison(), fakeLocator{arn: "arn:sm"}, fakeEnumerator{fps: testFingerprints()})

	run, err := s.Run(context.Background(), testReportOptions())
	require.NoError(t, err)

	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, "2024-03-05", run.BatchDay)
	assert.Equal(t, 5, run.Fingerprints)
	assert.Equal(t, 1, run.Controls)
	assert.Equal(t, 1, run.Unmatched)
	assert.Equal(t, 1, run.Expected)
	assert.Equal(t, 1, run.Reportable)

	require.Len(t, sink.msgs, 4)
	assert.Contains(t, sink.msgs[0], "on Tuesday, March 5th, 2024 we found 5 new fingerprints")
	assert.Contains(t, sink.msgs[1], "`SBJ00002`")
	assert.Contains(t, sink.msgs[2], "`SBJ00001` x2")
	assert.Contains(t, sink.msgs[3], "*Match Group 1*")
	assert.Contains(t, sink.msgs[3], "subj=SBJ00003")
	assert.Contains(t, sink.msgs[3], "subj=SBJ00004")

	require.Len(t, history.runs, 1)
	assert.Equal(t, run.RunID, history.runs[0].RunID)
	assert.Equal(t, 1, history.runs[0].Controls)
}

func TestReportRunNoFingerprints(t *testing.T) {
	sink := &recordingSink{}
	s := newTestReportService(sink, nil, testComparison(), fakeLocator{arn: "arn:sm"}, fakeEnumerator{})

	opts := testReportOptions()
	opts.Days = 3
	run, err := s.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, models.RunNoFingerprints, run.Status)
	require.Len(t, sink.msgs, 1)
	assert.Equal(t, "For sequencing runs that finished fingerprinting in `umccr-fingerprint-prod` on Sunday, March 3rd, 2024\n"+
		"We found no new fingerprints and so no checks were run", sink.msgs[0])
}

func TestReportRunPostsFatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmp     *cannedComparison
		loc     fakeLocator
		enum    fakeEnumerator
		wantErr string
	}{
		{
			name:    "locator",
			cmp:     testComparison(),
			loc:     fakeLocator{err: errors.New("no fingerprint service")},
			enum:    fakeEnumerator{fps: testFingerprints()},
			wantErr: "no fingerprint service",
		},
		{
			name:    "enumerator",
			cmp:     testComparison(),
			loc:     fakeLocator{arn: "arn:sm"},
			enum:    fakeEnumerator{err: errors.New("AccessDenied")},
			wantErr: "AccessDenied",
		},
		{
			name:    "failed check",
			cmp:     &cannedComparison{results: testComparison().results, failKey: b1},
			loc:     fakeLocator{arn: "arn:sm"},
			enum:    fakeEnumerator{fps: testFingerprints()},
			wantErr: "lower concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			history := &fakeHistory{}
			s := newTestReportService(sink, history, tt.cmp, tt.loc, tt.enum)

			run, err := s.Run(context.Background(), testReportOptions())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)

			require.NotEmpty(t, sink.msgs)
			assert.Contains(t, sink.msgs[len(sink.msgs)-1], tt.wantErr)
			for _, msg := range sink.msgs {
				assert.NotContains(t, msg, "*Match Group")
			}

			assert.Equal(t, models.RunFailed, run.Status)
			require.Len(t, history.runs, 1)
			assert.Equal(t, models.RunFailed, history.runs[0].Status)
		})
	}
}

func TestReportRunIgnoresSinkAndHistoryErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("rate_limited")}
	history := &fakeHistory{err: errors.New("connection refused")}
	s := newTestReportService(sink, history, testComparison(), fakeLocator{arn: "arn:sm"}, fakeEnumerator{fps: testFingerprints()})

	run, err := s.Run(context.Background(), testReportOptions())
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Len(t, sink.msgs, 4)
}

func TestResolveGroups(t *testing.T) {
	d := dispatch.New(testComparison(), dispatch.WithPollInterval(time.Millisecond))
	out, err := NewGroupingService(d, nil).ResolveGroups(context.Background(),
		[]string{a1, a2, b1, c1, c2},
		dispatch.Params{Concurrency: 3, Relatedness: 0.75})
	require.NoError(t, err)

	assert.Equal(t, []string{"SBJ00002"}, out.UnmatchedSubjectIDs)
	assert.Equal(t, []models.ExpectedMatch{{SubjectID: "SBJ00001", Count: 2}}, out.ExpectedMatches)
	require.Len(t, out.ReportableGroups, 1)
	assert.ElementsMatch(t, []string{c1, c2}, out.ReportableGroups[0].Keys())
}

func TestResolveGroupsFailure(t *testing.T) {
	cmp := testComparison()
	cmp.failKey = c2
	d := dispatch.New(cmp, dispatch.WithPollInterval(time.Millisecond))

	out, err := NewGroupingService(d, nil).ResolveGroups(context.Background(),
		[]string{a1, a2, b1, c1, c2},
		dispatch.Params{Concurrency: 1, Relatedness: 0.75})

	var be *dispatch.BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, c2, be.Key)
	assert.Empty(t, out.ReportableGroups)
	assert.Empty(t, out.ExpectedMatches)
}
