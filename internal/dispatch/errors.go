package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for check executions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSubmission indicates the comparison service did not return an
	// execution handle for a start request.
	ErrSubmission = errors.New("check submission failed")

	// ErrExecutionFailed indicates an execution reached the failed or aborted state.
	ErrExecutionFailed = errors.New("check execution failed")

	// ErrMalformedOutput indicates an execution succeeded but its output is
	// not a result set.
	ErrMalformedOutput = errors.New("check output malformed")

	// ErrBatchTimeout indicates the batch did not finish before its deadline.
	ErrBatchTimeout = errors.New("fingerprint batch timed out")
)

// BatchError is returned when any check in a batch fails. The whole batch is
// abandoned: a single failure usually means the service is overloaded or the
// parameters are wrong, and the remaining checks would fail the same way.
type BatchError struct {
	Key string // failing fingerprint, empty when the batch itself timed out
	Err error
}

func (e *BatchError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("fingerprint batch failed: %v", e.Err)
	}
	return fmt.Sprintf("one of the fingerprint check executions failed so the whole check is failing (%s: %v); "+
		"this is sometimes caused by too many concurrent executions, try a lower concurrency", e.Key, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
