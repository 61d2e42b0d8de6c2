package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umccr/holmes-report/internal/metrics"
	"github.com/umccr/holmes-report/internal/models"
)

// script describes how the fake service answers for one key.
type script struct {
	submitErr   error
	emptyHandle bool
	runningFor  int // polls answered with StateRunning before the final state
	final       State
	output      []byte
	pollErr     error
}

// fakeService is an in-memory ComparisonService that tracks how many checks
// are in flight at once.
type fakeService struct {
	mu       sync.Mutex
	scripts  map[string]script
	polls    map[string]int
	requests []Request

	inFlight  atomic.Int64
	highWater atomic.Int64
}

func newFakeService(scripts map[string]script) *fakeService {
	return &fakeService{scripts: scripts, polls: make(map[string]int)}
}

func (f *fakeService) Submit(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	s := f.scripts[req.Index]
	f.mu.Unlock()

	if s.submitErr != nil {
		return "", s.submitErr
	}
	if s.emptyHandle {
		return "", nil
	}
	n := f.inFlight.Add(1)
	for {
		hw := f.highWater.Load()
		if n <= hw || f.highWater.CompareAndSwap(hw, n) {
			break
		}
	}
	return "exec-" + req.Index, nil
}

func (f *fakeService) Poll(_ context.Context, handle string) (Execution, error) {
	key := handle[len("exec-"):]

	f.mu.Lock()
	s := f.scripts[key]
	f.polls[key]++
	n := f.polls[key]
	f.mu.Unlock()

	if s.pollErr != nil {
		f.inFlight.Add(-1)
		return Execution{}, s.pollErr
	}
	if n <= s.runningFor {
		return Execution{State: StateRunning}, nil
	}
	f.inFlight.Add(-1)
	final := s.final
	if final == "" {
		final = StateSucceeded
	}
	return Execution{State: final, Output: s.output}, nil
}

func selfOutput(t *testing.T, files ...string) []byte {
	t.Helper()
	records := make([]models.MatchRecord, len(files))
	for i, f := range files {
		records[i] = models.MatchRecord{File: f, N: 1000, Relatedness: 0.9}
	}
	b, err := json.Marshal(records)
	require.NoError(t, err)
	return b
}

func testParams(c int) Params {
	return Params{Concurrency: c, Relatedness: 0.75, ExcludeRegex: ".*(NTC_|PTC_).*"}
}

func newTestDispatcher(svc ComparisonService, opts ...Option) *Dispatcher {
	base := []Option{WithPollInterval(time.Millisecond), WithBatchTimeout(5 * time.Second)}
	return New(svc, append(base, opts...)...)
}

func TestRunReturnsResultsInInputOrder(t *testing.T) {
	keys := []string{"s3://b/SBJ00001_L2000001.bam", "s3://b/SBJ00002_L2000002.bam", "s3://b/SBJ00003_L2000003.bam"}
	svc := newFakeService(map[string]script{
		// the first key finishes last
		keys[0]: {runningFor: 8, output: selfOutput(t, keys[0])},
		keys[1]: {runningFor: 0, output: selfOutput(t, keys[1])},
		keys[2]: {runningFor: 3, output: selfOutput(t, keys[2], keys[1])},
	})

	results, err := newTestDispatcher(svc).Run(context.Background(), keys, testParams(3))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, rs := range results {
		assert.Equal(t, keys[i], rs.Query)
	}
	assert.Equal(t, models.ResultSelfOnly, results[0].Kind())
	assert.Equal(t, models.ResultGroup, results[2].Kind())
	assert.Equal(t, 9, svc.polls[keys[0]])
}

func TestRunSendsCheckParameters(t *testing.T) {
	key := "s3://b/SBJ00001.bam"
	svc := newFakeService(map[string]script{key: {output: selfOutput(t, key)}})

	_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
	require.NoError(t, err)

	require.Len(t, svc.requests, 1)
	assert.Equal(t, Request{Index: key, RelatednessThreshold: 0.75, ExcludeRegex: ".*(NTC_|PTC_).*"}, svc.requests[0])
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	scripts := make(map[string]script)
	var keys []string
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("s3://b/SBJ%05d.bam", i)
		keys = append(keys, key)
		scripts[key] = script{runningFor: 3, output: selfOutput(t, key)}
	}
	svc := newFakeService(scripts)
	progress := NewProgress()

	results, err := newTestDispatcher(svc, WithProgress(progress)).Run(context.Background(), keys, testParams(4))
	require.NoError(t, err)
	assert.Len(t, results, 20)

	assert.LessOrEqual(t, svc.highWater.Load(), int64(4))
	assert.Positive(t, svc.highWater.Load())
	assert.Equal(t, ProgressSnapshot{Total: 20, Completed: 20, Finished: true}, progress.Snapshot())
}

func TestRunFailsWholeBatchOnFailedExecution(t *testing.T) {
	keys := []string{"s3://b/ok1.bam", "s3://b/bad.bam", "s3://b/ok2.bam"}
	svc := newFakeService(map[string]script{
		keys[0]: {runningFor: 50, output: selfOutput(t, keys[0])},
		keys[1]: {runningFor: 1, final: StateFailed},
		keys[2]: {runningFor: 50, output: selfOutput(t, keys[2])},
	})

	results, err := newTestDispatcher(svc).Run(context.Background(), keys, testParams(3))
	require.Error(t, err)
	assert.Nil(t, results)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, keys[1], be.Key)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "lower concurrency")
}

func TestRunStopsSubmittingAfterFailure(t *testing.T) {
	bad := "s3://b/bad.bam"
	keys := []string{bad}
	scripts := map[string]script{bad: {runningFor: 2, final: StateFailed}}
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("s3://b/SBJ%05d.bam", i)
		keys = append(keys, key)
		scripts[key] = script{output: selfOutput(t, key)}
	}
	svc := newFakeService(scripts)
	progress := NewProgress()

	_, err := newTestDispatcher(svc, WithProgress(progress)).Run(context.Background(), keys, testParams(1))

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, bad, be.Key)
	require.Len(t, svc.requests, 1, "no check may start after the batch failed")
	assert.Equal(t, bad, svc.requests[0].Index)
	assert.Equal(t, ProgressSnapshot{Total: 11, Failed: 1, Finished: true}, progress.Snapshot())
}

func TestRunAbortedExecution(t *testing.T) {
	key := "s3://b/aborted.bam"
	svc := newFakeService(map[string]script{key: {final: StateAborted}})

	_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestRunSubmissionFailures(t *testing.T) {
	tests := []struct {
		name string
		s    script
	}{
		{"service error", script{submitErr: errors.New("throttled")}},
		{"no handle", script{emptyHandle: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "s3://b/x.bam"
			svc := newFakeService(map[string]script{key: tt.s})

			_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
			assert.ErrorIs(t, err, ErrSubmission)
		})
	}
}

func TestRunMalformedOutput(t *testing.T) {
	tests := []struct {
		name   string
		output []byte
	}{
		{"not json", []byte("not json")},
		{"empty payload", nil},
		{"object instead of array", []byte(`{"file":"x"}`)},
		{"record without file", []byte(`[{"n":10}]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "s3://b/x.bam"
			svc := newFakeService(map[string]script{key: {output: tt.output}})

			_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
			assert.ErrorIs(t, err, ErrMalformedOutput)
		})
	}
}

func TestRunEmptyResultIsNotAnError(t *testing.T) {
	key := "s3://b/x.bam"
	svc := newFakeService(map[string]script{key: {output: []byte("[]")}})

	results, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
	require.NoError(t, err)
	assert.Equal(t, models.ResultEmpty, results[0].Kind())
}

func TestRunPollErrorIsFatal(t *testing.T) {
	key := "s3://b/x.bam"
	svc := newFakeService(map[string]script{key: {pollErr: errors.New("access denied")}})

	_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestRunUnknownStateIsFatal(t *testing.T) {
	key := "s3://b/x.bam"
	svc := newFakeService(map[string]script{key: {final: State("paused")}})

	_, err := newTestDispatcher(svc).Run(context.Background(), []string{key}, testParams(1))
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestRunBatchTimeout(t *testing.T) {
	key := "s3://b/slow.bam"
	svc := newFakeService(map[string]script{key: {runningFor: 1 << 30}})

	d := newTestDispatcher(svc, WithBatchTimeout(30*time.Millisecond))
	_, err := d.Run(context.Background(), []string{key}, testParams(1))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchTimeout)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Empty(t, be.Key)
}

func TestRunRejectsZeroConcurrency(t *testing.T) {
	_, err := newTestDispatcher(newFakeService(nil)).Run(context.Background(), []string{"a"}, testParams(0))
	assert.Error(t, err)
}

func TestRunNoKeys(t *testing.T) {
	results, err := newTestDispatcher(newFakeService(nil)).Run(context.Background(), nil, testParams(2))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunRecordsMetrics(t *testing.T) {
	key := "s3://b/x.bam"
	svc := newFakeService(map[string]script{key: {runningFor: 2, output: selfOutput(t, key)}})
	collector := metrics.NewCollector()

	_, err := newTestDispatcher(svc, WithMetrics(collector), WithPollRateLimit(1000)).
		Run(context.Background(), []string{key}, testParams(1))
	require.NoError(t, err)

	snap := collector.Snapshot()
	require.NotNil(t, snap.Submit)
	require.NotNil(t, snap.Poll)
	require.NotNil(t, snap.Job)
	assert.EqualValues(t, 1, snap.Submit.Count)
	assert.EqualValues(t, 3, snap.Poll.Count)
	assert.EqualValues(t, 1, snap.Job.Count)
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{Err: ErrBatchTimeout}
	assert.Equal(t, "fingerprint batch failed: fingerprint batch timed out", err.Error())

	err = &BatchError{Key: "s3://b/x.bam", Err: ErrExecutionFailed}
	assert.Contains(t, err.Error(), "s3://b/x.bam")
	assert.ErrorIs(t, err, ErrExecutionFailed)
}
