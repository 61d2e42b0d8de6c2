package dispatch

import "sync/atomic"

// Progress tracks a batch while it runs. It is safe for concurrent use and a
// nil *Progress ignores updates.
type Progress struct {
	total     atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	finished  atomic.Bool
}

// ProgressSnapshot is a point-in-time copy of a Progress.
type ProgressSnapshot struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	Finished  bool
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{}
}

// Snapshot returns the current counts.
func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{}
	}
	return ProgressSnapshot{
		Total:     int(p.total.Load()),
		Active:    int(p.active.Load()),
		Completed: int(p.completed.Load()),
		Failed:    int(p.failed.Load()),
		Finished:  p.finished.Load(),
	}
}

func (p *Progress) begin(total int) {
	if p == nil {
		return
	}
	p.total.Store(int64(total))
	p.active.Store(0)
	p.completed.Store(0)
	p.failed.Store(0)
	p.finished.Store(false)
}

func (p *Progress) jobStarted() {
	if p != nil {
		p.active.Add(1)
	}
}

func (p *Progress) jobDone(err error) {
	if p == nil {
		return
	}
	p.active.Add(-1)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
}

func (p *Progress) end() {
	if p != nil {
		p.finished.Store(true)
	}
}
