package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationTransient wraps a generator error that may succeed on retry.
	ErrGenerationTransient = errors.New("generation failed")
	// ErrValidationFailed means the generated text was empty or too short.
	ErrValidationFailed = errors.New("output validation failed")
	// ErrAttemptTimeout means one attempt exceeded the per-attempt timeout.
	ErrAttemptTimeout = errors.New("generation attempt timed out")
	// ErrPermanentFailure means the generator reported a non-retryable error.
	ErrPermanentFailure = errors.New("generation failed permanently")
	// ErrGenerationExhausted means a step used its whole retry budget.
	ErrGenerationExhausted = errors.New("generation retries exhausted")
	// ErrCancelled means the caller cancelled the run.
	ErrCancelled = errors.New("run cancelled")

	// ErrRunNotPending is returned when Execute is handed a run twice.
	ErrRunNotPending = errors.New("run is not pending")
)

// RunError is returned when a run halts on a failed step.
type RunError struct {
	RunID    string
	Position int
	RoleID   string
	Attempts int
	Kind     ErrorKind
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: step %d (%s) failed after %d attempt(s) [%s]: %v",
		e.RunID, e.Position+1, e.RoleID, e.Attempts, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// kindOf maps an attempt error to its kind.
func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrAttemptTimeout):
		return KindTimeout
	case errors.Is(err, ErrPermanentFailure):
		return KindPermanent
	case errors.Is(err, ErrValidationFailed):
		return KindValidation
	default:
		return KindTransient
	}
}

// retryable reports whether another attempt may fix an error of kind k.
func (k ErrorKind) retryable() bool {
	switch k {
	case KindTransient, KindValidation, KindTimeout:
		return true
	}
	return false
}
