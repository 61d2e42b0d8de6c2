package models

import "time"

// RunStatus is the outcome of one grouping run.
type RunStatus string

const (
	RunSucceeded      RunStatus = "succeeded"
	RunFailed         RunStatus = "failed"
	RunNoFingerprints RunStatus = "empty"
)

// Run is the history record of one grouping run.
type Run struct {
	RunID        string    `json:"run_id"`
	BatchDay     string    `json:"batch_day"` // YYYY-MM-DD in the batch timezone
	Bucket       string    `json:"bucket"`
	Fingerprints int       `json:"fingerprints"`
	Controls     int       `json:"controls"` // control samples left out of the checks
	Unmatched    int       `json:"unmatched"`
	Expected     int       `json:"expected"`
	Reportable   int       `json:"reportable"`
	Concurrency  int       `json:"concurrency"`
	Relatedness  float64   `json:"relatedness"`
	Status       RunStatus `json:"status"`
	Error        string    `json:"failure"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
