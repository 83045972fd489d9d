package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/elixir-editor/assist/pkg/types"
)

var (
	// ErrInvocationFailure wraps any failure of the create call
	ErrInvocationFailure = errors.New("failed to create prediction")
	// ErrNoIDReturned means the create call succeeded without a job identifier
	ErrNoIDReturned = errors.New("failed to create prediction: no ID returned")
	// ErrTimedOut means the attempt budget ran out before a terminal status
	ErrTimedOut = errors.New("timed out waiting for prediction results")
	// ErrCancelled means a newer invocation superseded this one, or the caller gave up
	ErrCancelled = errors.New("prediction cancelled")
)

// PollTransportError is a failed status query. Polling never retries after one.
type PollTransportError struct {
	Attempt int
	Err     error
}

func (e *PollTransportError) Error() string {
	return fmt.Sprintf("streaming error: %v", e.Err)
}

func (e *PollTransportError) Unwrap() error {
	return e.Err
}

// JobFailedError carries the failure message reported by the service
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	return e.Message
}

// StateOf maps a Run error to the terminal state it represents
func StateOf(err error) types.JobState {
	var pollErr *PollTransportError

	switch {
	case err == nil:
		return types.JobSucceeded
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return types.JobCancelled
	case errors.Is(err, ErrTimedOut):
		return types.JobTimedOut
	case errors.As(err, &pollErr):
		return types.JobTransportError
	default:
		// create failures, missing ids and reported failures
		return types.JobFailed
	}
}
