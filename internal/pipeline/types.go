// Package pipeline runs an ordered list of agent roles as a strictly
// sequential pipeline. Each step composes its prompt from the run's
// configuration and the previous step's output, calls the generator with a
// bounded retry budget, and threads its output into the next step.
package pipeline

import (
	"fmt"
	"time"

	"missionflow/internal/prompt"
	"missionflow/internal/roles"
)

// MaxRetries is the number of generation attempts a step may make.
const MaxRetries = 3

// StepStatus represents the status of a pipeline step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending" // prepared, not yet executed
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrorKind classifies the error of a failed attempt.
type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindValidation ErrorKind = "validation"
	KindTimeout    ErrorKind = "timeout"
	KindPermanent  ErrorKind = "permanent"
	KindCancelled  ErrorKind = "cancelled"
)

// Attempt records one generation attempt of a step.
type Attempt struct {
	Number    int           `json:"number"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Kind      ErrorKind     `json:"kind,omitempty"` // empty on success
	Error     string        `json:"error,omitempty"`
}

// PipelineStep is one role's turn in a run.
type PipelineStep struct {
	Position    int             `json:"position"`
	Role        roles.AgentRole `json:"role"`
	Status      StepStatus      `json:"status"`
	Attempts    int             `json:"attempts"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   ErrorKind       `json:"error_kind,omitempty"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	History     []Attempt       `json:"history,omitempty"`
}

// Duration returns how long the step ran, or 0 if it has not finished.
func (s *PipelineStep) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Failure describes why a run halted.
type Failure struct {
	Position int       `json:"position"`
	RoleID   string    `json:"role_id"`
	Attempts int       `json:"attempts"`
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
}

// PipelineRun is the execution record of one pipeline.
type PipelineRun struct {
	ID          string                 `json:"id"`
	Mission     string                 `json:"mission"`
	Config      prompt.ExecutionConfig `json:"config"`
	Steps       []*PipelineStep        `json:"steps"`
	Status      RunStatus              `json:"status"`
	StartedAt   time.Time              `json:"started_at,omitempty"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
	Failure     *Failure               `json:"failure,omitempty"`
}

// Step returns the step at position i, or nil.
func (r *PipelineRun) Step(i int) *PipelineStep {
	if i < 0 || i >= len(r.Steps) {
		return nil
	}
	return r.Steps[i]
}

// FinalOutput returns the last step's output of a completed run.
func (r *PipelineRun) FinalOutput() string {
	if r.Status != RunCompleted || len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1].Output
}

// RoleIDs returns the role ids in step order.
func (r *PipelineRun) RoleIDs() []string {
	ids := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		ids[i] = s.Role.ID
	}
	return ids
}

// CompletedSteps counts the steps that finished successfully.
func (r *PipelineRun) CompletedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// Duration returns the wall time of a finished run.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Summary returns a one-line status description.
func (r *PipelineRun) Summary() string {
	switch r.Status {
	case RunCompleted:
		return fmt.Sprintf("run %s completed: %d/%d steps in %v", r.ID, r.CompletedSteps(), len(r.Steps), r.Duration().Round(time.Millisecond))
	case RunFailed:
		if f := r.Failure; f != nil {
			return fmt.Sprintf("run %s failed at step %d (%s) after %d attempt(s) [%s]: %s",
				r.ID, f.Position+1, f.RoleID, f.Attempts, f.Kind, f.Message)
		}
		return fmt.Sprintf("run %s failed", r.ID)
	default:
		return fmt.Sprintf("run %s %s: %d/%d steps", r.ID, r.Status, r.CompletedSteps(), len(r.Steps))
	}
}
