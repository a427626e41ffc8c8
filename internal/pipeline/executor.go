package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"missionflow/internal/llm"
	"missionflow/internal/logging"
	"missionflow/internal/prompt"
	"missionflow/internal/roles"
)

// Defaults applied by NewExecutor.
const (
	DefaultBackoffBase     = time.Second
	DefaultMinOutputLength = 10
	DefaultKickoffMessage  = "Begin your work."
)

// Config holds the executor's collaborators and tuning.
type Config struct {
	Generator llm.Generator
	Catalog   roles.Catalog

	// BackoffBase scales the linear wait between attempts: base x attempts.
	BackoffBase time.Duration
	// AttemptTimeout bounds a single generation attempt. Zero means none.
	AttemptTimeout time.Duration
	// MinOutputLength is the minimum rune count of trimmed output.
	MinOutputLength int
	// KickoffMessage is the user content of the first step.
	KickoffMessage string

	// Events receives progress notifications. Sends never block.
	Events chan<- Event
	Now    func() time.Time
}

// Executor runs pipelines. It keeps no per-run state, so one Executor can
// serve concurrent runs.
type Executor struct {
	generator      llm.Generator
	catalog        roles.Catalog
	backoffBase    time.Duration
	attemptTimeout time.Duration
	minOutput      int
	kickoff        string
	events         chan<- Event
	now            func() time.Time
}

// NewExecutor validates cfg and applies defaults.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("pipeline: role catalog is required")
	}
	if cfg.AttemptTimeout < 0 {
		return nil, fmt.Errorf("pipeline: negative attempt timeout %v", cfg.AttemptTimeout)
	}

	e := &Executor{
		generator:      cfg.Generator,
		catalog:        cfg.Catalog,
		backoffBase:    cfg.BackoffBase,
		attemptTimeout: cfg.AttemptTimeout,
		minOutput:      cfg.MinOutputLength,
		kickoff:        strings.TrimSpace(cfg.KickoffMessage),
		events:         cfg.Events,
		now:            cfg.Now,
	}
	if e.backoffBase <= 0 {
		e.backoffBase = DefaultBackoffBase
	}
	if e.minOutput <= 0 {
		e.minOutput = DefaultMinOutputLength
	}
	if e.kickoff == "" {
		e.kickoff = DefaultKickoffMessage
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Run prepares and executes a pipeline. A role lookup failure returns a nil
// run; any other failure returns the halted run together with a *RunError.
func (e *Executor) Run(ctx context.Context, mission string, roleIDs []string, cfg prompt.ExecutionConfig) (*PipelineRun, error) {
	run, err := e.Prepare(mission, roleIDs, cfg)
	if err != nil {
		return nil, err
	}
	return run, e.Execute(ctx, run)
}

// Prepare resolves every role and builds a pending run. No generation
// happens here.
func (e *Executor) Prepare(mission string, roleIDs []string, cfg prompt.ExecutionConfig) (*PipelineRun, error) {
	resolved, err := roles.Resolve(e.catalog, roleIDs)
	if err != nil {
		logging.PipelineWarn("Pipeline rejected: %v", err)
		return nil, err
	}

	mission = strings.TrimSpace(mission)
	if mission == "" {
		mission = cfg.MissionSummary()
	}

	run := &PipelineRun{
		ID:      uuid.NewString(),
		Mission: mission,
		Config:  cfg,
		Status:  RunPending,
		Steps:   make([]*PipelineStep, len(resolved)),
	}
	for i, role := range resolved {
		run.Steps[i] = &PipelineStep{Position: i, Role: role, Status: StepPending}
	}
	logging.PipelineDebug("Prepared run %s with %d steps: %s", run.ID, len(run.Steps), strings.Join(run.RoleIDs(), " -> "))
	return run, nil
}

// Execute runs the steps of a prepared run in order. It returns nil when
// every step completed, or a *RunError naming the step that halted the run.
func (e *Executor) Execute(ctx context.Context, run *PipelineRun) error {
	if run == nil || run.Status != RunPending {
		return ErrRunNotPending
	}

	run.Status = RunRunning
	run.StartedAt = e.now()
	timer := logging.StartTimer(logging.CategoryPipeline, "run "+run.ID)
	defer timer.Stop()

	logging.Pipeline("Run %s started: mission=%q steps=%d", run.ID, run.Mission, len(run.Steps))
	e.emitRun(run, EventRunStarted, run.Mission)

	prior := ""
	for _, step := range run.Steps {
		if err := e.executeStep(ctx, run, step, prior); err != nil {
			e.halt(run, step, err)
			return &RunError{
				RunID:    run.ID,
				Position: step.Position,
				RoleID:   step.Role.ID,
				Attempts: step.Attempts,
				Kind:     step.ErrorKind,
				Err:      err,
			}
		}
		prior = step.Output
	}

	run.Status = RunCompleted
	run.CompletedAt = e.now()
	logging.Pipeline("Run %s completed in %v", run.ID, run.Duration())
	e.emitRun(run, EventRunCompleted, "")
	return nil
}

func (e *Executor) halt(run *PipelineRun, step *PipelineStep, err error) {
	run.Status = RunFailed
	run.CompletedAt = e.now()
	run.Failure = &Failure{
		Position: step.Position,
		RoleID:   step.Role.ID,
		Attempts: step.Attempts,
		Kind:     step.ErrorKind,
		Message:  step.Error,
	}
	logging.PipelineError("Run %s halted at step %d (%s) after %d attempt(s): %v",
		run.ID, step.Position+1, step.Role.ID, step.Attempts, err)
	e.emitRun(run, EventRunFailed, err.Error())
}

// executeStep drives one step to a terminal state. The returned error is
// the step's final error.
func (e *Executor) executeStep(ctx context.Context, run *PipelineRun, step *PipelineStep, prior string) error {
	if err := step.begin(e.now()); err != nil {
		return err
	}

	step.Prompt = prompt.Compose(step.Role, run.Config, prior)
	user := prior
	if strings.TrimSpace(user) == "" {
		user = e.kickoff
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: step.Prompt},
		{Role: llm.RoleUser, Content: user},
	}

	logging.Pipeline("Step %d/%d started: role=%s", step.Position+1, len(run.Steps), step.Role.ID)
	logging.PromptDebug("Step %d prompt composed: %d bytes", step.Position+1, len(step.Prompt))
	e.emitStep(run, step, EventStepStarted, step.Role.DisplayName)

	log := logging.Get(logging.CategoryPipeline).With("run_id", run.ID, "role", step.Role.ID)
	for {
		if err := ctx.Err(); err != nil {
			return e.stop(run, step, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		number, err := step.startAttempt()
		if err != nil {
			return err
		}

		started := e.now()
		output, err := e.attempt(ctx, run, step, messages, number)
		a := Attempt{Number: number, StartedAt: started, Duration: e.now().Sub(started)}

		if err == nil {
			step.recordAttempt(a)
			if err := step.complete(output, e.now()); err != nil {
				return err
			}
			logging.Pipeline("Step %d/%d completed: role=%s attempts=%d output_len=%d",
				step.Position+1, len(run.Steps), step.Role.ID, step.Attempts, len(output))
			e.emitStep(run, step, EventStepCompleted, "")
			return nil
		}

		kind := kindOf(err)
		a.Kind = kind
		a.Error = err.Error()
		step.recordAttempt(a)
		log.Warn("Step %d attempt %d/%d failed [%s]: %v", step.Position+1, number, MaxRetries, kind, err)
		e.emitStep(run, step, EventAttemptFailed, err.Error())

		if !kind.retryable() {
			return e.stop(run, step, err)
		}
		if !step.canRetry() {
			return e.stop(run, step, fmt.Errorf("%w after %d attempts: %w", ErrGenerationExhausted, step.Attempts, err))
		}

		wait := e.backoffBase * time.Duration(step.Attempts)
		e.emit(Event{Type: EventStepBackoff, RunID: run.ID, Position: step.Position, RoleID: step.Role.ID, Attempt: step.Attempts, Wait: wait})
		log.Debug("Step %d backing off %v before attempt %d", step.Position+1, wait, step.Attempts+1)
		if err := sleep(ctx, wait); err != nil {
			return e.stop(run, step, fmt.Errorf("%w during backoff: %w", ErrCancelled, err))
		}
	}
}

// stop marks the step failed with err's kind and returns err.
func (e *Executor) stop(run *PipelineRun, step *PipelineStep, err error) error {
	if ferr := step.fail(kindOf(err), err.Error(), e.now()); ferr != nil {
		return errors.Join(err, ferr)
	}
	e.emitStep(run, step, EventStepFailed, err.Error())
	return err
}

// attempt makes one generation call and validates its output.
func (e *Executor) attempt(ctx context.Context, run *PipelineRun, step *PipelineStep, messages []llm.Message, number int) (string, error) {
	actx := llm.WithTraceContext(ctx, llm.TraceContext{
		RunID:        run.ID,
		StepPosition: step.Position,
		RoleID:       step.Role.ID,
		Attempt:      number,
	})
	if e.attemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, e.attemptTimeout)
		defer cancel()
	}

	completion, err := e.generator.Generate(actx, messages)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case errors.Is(actx.Err(), context.DeadlineExceeded):
			return "", fmt.Errorf("%w after %v: %w", ErrAttemptTimeout, e.attemptTimeout, err)
		case llm.IsPermanent(err):
			return "", fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		default:
			return "", fmt.Errorf("%w: %w", ErrGenerationTransient, err)
		}
	}

	var text string
	if completion != nil {
		text = completion.Text
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(text)); n < e.minOutput {
		if n == 0 {
			return "", fmt.Errorf("%w: empty output", ErrValidationFailed)
		}
		return "", fmt.Errorf("%w: output has %d characters, need at least %d", ErrValidationFailed, n, e.minOutput)
	}
	return text, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
