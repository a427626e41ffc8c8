package pipeline

import "time"

// Event types sent on Config.Events.
const (
	EventRunStarted    = "run_started"
	EventStepStarted   = "step_started"
	EventAttemptFailed = "attempt_failed"
	EventStepBackoff   = "step_backoff"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
)

// Event is a progress notification. Run-level events carry Position -1.
type Event struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Position  int           `json:"position"`
	RoleID    string        `json:"role_id,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Wait      time.Duration `json:"wait,omitempty"`
	Message   string        `json:"message,omitempty"`
}

func (e *Executor) emit(ev Event) {
	if e.events == nil {
		return
	}
	ev.Timestamp = e.now()
	select {
	case e.events <- ev:
	default:
		// Channel full, skip
	}
}

func (e *Executor) emitRun(run *PipelineRun, typ, msg string) {
	e.emit(Event{Type: typ, RunID: run.ID, Position: -1, Message: msg})
}

func (e *Executor) emitStep(run *PipelineRun, step *PipelineStep, typ, msg string) {
	e.emit(Event{Type: typ, RunID: run.ID, Position: step.Position, RoleID: step.Role.ID, Attempt: step.Attempts, Message: msg})
}
