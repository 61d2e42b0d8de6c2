// Package metrics provides in-memory runtime statistics for a grouping run.
package metrics

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the run statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Submit        *OperationSnapshot
	Poll          *OperationSnapshot
	Job           *OperationSnapshot
	List          *OperationSnapshot
}

// Operation names for the collector.
const (
	OpSubmit = "sfn_submit"
	OpPoll   = "sfn_poll"
	OpJob    = "fingerprint_job"
	OpList   = "fingerprint_list"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and a nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.record(op, duration, false)
}

// RecordFailure records timing for an operation that returned an error.
func (c *Collector) RecordFailure(op string, duration time.Duration) {
	c.record(op, duration, true)
}

// Since records the time elapsed since start, as a failure when err is non-nil.
func (c *Collector) Since(op string, start time.Time, err error) {
	c.record(op, time.Since(start), err != nil)
}

func (c *Collector) record(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	if failed {
		m.Failures++
	}
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Submit:        snapshotOp(c.ops[OpSubmit]),
		Poll:          snapshotOp(c.ops[OpPoll]),
		Job:           snapshotOp(c.ops[OpJob]),
		List:          snapshotOp(c.ops[OpList]),
	}
}

// LogValue renders the snapshot as a slog group.
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Float64("uptime_s", s.UptimeSeconds)}
	for _, op := range []struct {
		name string
		snap *OperationSnapshot
	}{
		{OpSubmit, s.Submit},
		{OpPoll, s.Poll},
		{OpJob, s.Job},
		{OpList, s.List},
	} {
		if op.snap == nil {
			continue
		}
		attrs = append(attrs, slog.Group(op.name,
			slog.Int64("count", op.snap.Count),
			slog.Int64("failures", op.snap.Failures),
			slog.Float64("avg_ms", op.snap.AvgTimeMs),
			slog.Int64("max_ms", op.snap.MaxTimeMs),
		))
	}
	return slog.GroupValue(attrs...)
}
