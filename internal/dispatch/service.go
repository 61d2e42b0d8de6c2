package dispatch

import "context"

// State is the lifecycle state of a remote check execution.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateAborted   State = "aborted"
)

// InProgress reports whether the execution still needs polling.
func (s State) InProgress() bool {
	return s == StatePending || s == StateRunning
}

// Request is the input of one check execution.
type Request struct {
	Index                string  `json:"index"`
	RelatednessThreshold float64 `json:"relatednessThreshold"`
	ExcludeRegex         string  `json:"excludeRegex"`
}

// Execution is one observation of a running check. Output is only meaningful
// once the state is StateSucceeded.
type Execution struct {
	State  State
	Output []byte
}

// ComparisonService starts fingerprint checks and reports on their progress.
type ComparisonService interface {
	// Submit starts a check and returns its execution handle.
	Submit(ctx context.Context, req Request) (string, error)
	// Poll describes the execution identified by handle.
	Poll(ctx context.Context, handle string) (Execution, error)
}
