package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned for a step status change the state
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid step transition")

// Step lifecycle: pending -> running -> completed | failed.
// Terminal states never change again.

func (s *PipelineStep) begin(now time.Time) error {
	if s.Status != StepPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StepRunning)
	}
	s.Status = StepRunning
	s.StartedAt = now
	return nil
}

// startAttempt counts a new attempt and returns its number.
func (s *PipelineStep) startAttempt() (int, error) {
	if s.Status != StepRunning {
		return 0, fmt.Errorf("%w: attempt on %s step", ErrInvalidTransition, s.Status)
	}
	if s.Attempts >= MaxRetries {
		return 0, fmt.Errorf("%w: attempt budget of %d spent", ErrInvalidTransition, MaxRetries)
	}
	s.Attempts++
	return s.Attempts, nil
}

// recordAttempt appends to the history and, for failures, keeps the error
// as the step's last error.
func (s *PipelineStep) recordAttempt(a Attempt) {
	s.History = append(s.History, a)
	if a.Error != "" {
		s.Error = a.Error
		s.ErrorKind = a.Kind
	}
}

func (s *PipelineStep) canRetry() bool {
	return s.Status == StepRunning && s.Attempts < MaxRetries
}

func (s *PipelineStep) complete(output string, now time.Time) error {
	if s.Status != StepRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StepCompleted)
	}
	s.Status = StepCompleted
	s.Output = output
	s.Error = ""
	s.ErrorKind = ""
	s.CompletedAt = now
	return nil
}

func (s *PipelineStep) fail(kind ErrorKind, msg string, now time.Time) error {
	if s.Status != StepRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StepFailed)
	}
	s.Status = StepFailed
	s.Error = msg
	s.ErrorKind = kind
	s.CompletedAt = now
	return nil
}
