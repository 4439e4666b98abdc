// Package executor runs an ordered step queue against a scene.
//
// # Execution Model
//
// The executor processes one step per quantum (Next). Run loops over Next
// until the queue is exhausted or the job aborts. Cancellation is observed at
// the top of each quantum. The step in flight runs on a context detached from
// cancellation, so it finishes (render, commit and release) before the job
// stops.
//
// For every step the executor records STARTED in the journal, acquires the
// guarded scene mutations the step needs, records IN_PROGRESS, renders or
// converts, commits to the image store and records COMMITTED. A failure at
// any point records FAILED and moves on to the next step. Guarded resources
// are released when the step returns, whatever the outcome.
//
// Only an environment-fatal failure (an unwritable output root, a full disk)
// aborts the job. Steps never reached are reported as skipped.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/bakegridgo/internal/bakestore"
	"github.com/specialistvlad/bakegridgo/internal/ctxlog"
	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/imagestore"
	"github.com/specialistvlad/bakegridgo/internal/inmemorystore"
	"github.com/specialistvlad/bakegridgo/internal/journal"
	"github.com/specialistvlad/bakegridgo/internal/renderer"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/shading"
	"github.com/specialistvlad/bakegridgo/internal/task"
)

// State is the job state.
type State string

const (
	StateInit      State = "INIT"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateAborted   State = "ABORTED"
)

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// StepState is the sub-state of the step being executed.
type StepState string

const (
	StepPreparing  StepState = "PREPARING"
	StepExecuting  StepState = "EXECUTING"
	StepCommitting StepState = "COMMITTING"
	StepCleaned    StepState = "CLEANED"
)

// Outcome is how a step ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// StepResult is the per-step entry of a Report.
type StepResult struct {
	Index    int
	Object   string
	Material string
	Channel  string
	Tile     int
	Outcome  Outcome
	Message  string
	// Path is the committed image file.
	Path string
}

func newResult(st task.Step) StepResult {
	return StepResult{
		Index:    st.Index,
		Object:   st.Object,
		Material: st.Material,
		Channel:  st.ChannelID(),
		Tile:     st.Tile,
	}
}

// Report is the outcome of a job run.
type Report struct {
	JobID   string
	State   State
	Results []StepResult
}

// Count returns how many steps ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// EnvironmentFatalError aborts a job: the failure is not specific to one
// step and every later step would hit it too.
type EnvironmentFatalError struct {
	Err error
}

func (e *EnvironmentFatalError) Error() string {
	return fmt.Sprintf("environment failure, job aborted: %v", e.Err)
}

func (e *EnvironmentFatalError) Unwrap() error {
	return e.Err
}

// writableChecker is implemented by stores that can verify their output
// location before the first step.
type writableChecker interface {
	CheckWritable(ctx context.Context) error
}

// Config carries the collaborators of an Executor.
type Config struct {
	Job      string
	Scene    *scene.Scene
	Steps    []task.Step
	Journal  journal.Journal
	Renderer renderer.Renderer
	Images   imagestore.Store

	// Optional collaborators. Defaults are created from Scene.
	Results bakestore.Store
	Graph   shading.Graph
	Guard   *guard.Guard

	// RenderTimeout bounds one renderer call. Zero disables the bound.
	RenderTimeout time.Duration
	// Samples is passed to the renderer when a channel sets none.
	Samples int
}

// Executor drives one job.
type Executor struct {
	cfg     Config
	jobID   string
	results bakestore.Store
	graph   shading.Graph
	guard   *guard.Guard

	mu        sync.Mutex
	state     State
	stepState StepState
	pos       int
	report    []StepResult
	abortErr  error

	cancelled atomic.Bool
	session   journal.Session
	sessScope *guard.Scope
}

// New creates an executor in state INIT.
func New(cfg Config) (*Executor, error) {
	var missing []error
	if cfg.Scene == nil {
		missing = append(missing, errors.New("scene is required"))
	}
	if cfg.Journal == nil {
		missing = append(missing, errors.New("journal is required"))
	}
	if cfg.Renderer == nil {
		missing = append(missing, errors.New("renderer is required"))
	}
	if cfg.Images == nil {
		missing = append(missing, errors.New("image store is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	e := &Executor{
		cfg:     cfg,
		jobID:   uuid.NewString(),
		results: cfg.Results,
		graph:   cfg.Graph,
		guard:   cfg.Guard,
		state:   StateInit,
	}
	if e.results == nil {
		e.results = inmemorystore.New()
	}
	if e.graph == nil {
		e.graph = shading.NewSceneGraph(cfg.Scene)
	}
	if e.guard == nil {
		e.guard = guard.New(cfg.Scene.Checkpoint)
	}
	return e, nil
}

// JobID returns the identifier recorded in the journal header.
func (e *Executor) JobID() string {
	return e.jobID
}

// State returns the job state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StepState returns the sub-state of the current or last step.
func (e *Executor) StepState() StepState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepState
}

// Outstanding returns the number of guarded resources not yet released.
func (e *Executor) Outstanding() int {
	return e.guard.Outstanding()
}

// Cancel requests the job to stop at the next step boundary. It is safe to
// call from any goroutine.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
}

// Report returns a snapshot of the results so far.
func (e *Executor) Report() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	results := make([]StepResult, len(e.report))
	copy(results, e.report)
	return &Report{JobID: e.jobID, State: e.state, Results: results}
}

// Run processes every step and returns the final report. The error is nil
// when the job completed; otherwise it is the cancellation cause or an
// *EnvironmentFatalError.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	for {
		more, err := e.Next(ctx)
		if err != nil {
			return e.Report(), err
		}
		if !more {
			e.mu.Lock()
			err := e.abortErr
			e.mu.Unlock()
			return e.Report(), err
		}
	}
}

// Next processes exactly one step. It reports whether more steps remain.
func (e *Executor) Next(ctx context.Context) (bool, error) {
	switch e.State() {
	case StateCompleted, StateAborted:
		return false, nil
	case StateInit:
		if err := e.start(ctx); err != nil {
			e.abort(ctx, err)
			return false, err
		}
	}

	if err := e.interrupted(ctx); err != nil {
		e.abort(ctx, err)
		return false, err
	}

	if e.pos >= len(e.cfg.Steps) {
		e.finish(ctx, StateCompleted)
		return false, nil
	}

	// A step is never preempted: cancellation waits for the next quantum and
	// only the render timeout bounds the step.
	st := e.cfg.Steps[e.pos]
	res, fatal := e.runStep(context.WithoutCancel(ctx), st)
	e.mu.Lock()
	e.report = append(e.report, res)
	e.pos++
	e.mu.Unlock()

	if fatal != nil {
		e.abort(ctx, fatal)
		return false, fatal
	}
	if e.pos >= len(e.cfg.Steps) {
		e.finish(ctx, StateCompleted)
		return false, nil
	}
	return true, nil
}

func (e *Executor) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.cancelled.Load() {
		return context.Canceled
	}
	return nil
}

// start moves the job from INIT to RUNNING: it checks the output location,
// opens the journal session and acquires session-scoped resources.
func (e *Executor) start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("🚀 Starting bake job.", "job", e.cfg.Job, "job_id", e.jobID, "steps", len(e.cfg.Steps))

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()

	if wc, ok := e.cfg.Images.(writableChecker); ok {
		if err := wc.CheckWritable(ctx); err != nil {
			return &EnvironmentFatalError{Err: err}
		}
	}

	session, err := e.cfg.Journal.Open(ctx, journal.Header{JobID: e.jobID, Job: e.cfg.Job, Steps: len(e.cfg.Steps)})
	if err != nil {
		return &EnvironmentFatalError{Err: fmt.Errorf("open journal session: %w", err)}
	}
	e.session = session

	e.sessScope = e.guard.Open(guard.ScopeSession, e.cfg.Job)
	if e.needsProtection() {
		if _, err := e.sessScope.Acquire(ctx, guard.ProtectionImage, e.protectionImage()); err != nil {
			return &EnvironmentFatalError{Err: err}
		}
	}
	return nil
}

// abort ends the job as ABORTED and marks the remaining steps skipped.
func (e *Executor) abort(ctx context.Context, cause error) {
	e.mu.Lock()
	e.abortErr = cause
	for i := e.pos; i < len(e.cfg.Steps); i++ {
		res := newResult(e.cfg.Steps[i])
		res.Outcome = OutcomeSkipped
		res.Message = "not reached"
		e.report = append(e.report, res)
	}
	e.pos = len(e.cfg.Steps)
	e.mu.Unlock()

	ctxlog.FromContext(ctx).Error("🔥 Job aborted.", "job", e.cfg.Job, "error", cause)
	e.finish(ctx, StateAborted)
}

// finish releases the session scope, drops the scene recovery file once
// nothing is outstanding and closes the journal session. It runs
// on a context detached from cancellation so cleanup always completes.
func (e *Executor) finish(ctx context.Context, state State) {
	ctx = context.WithoutCancel(ctx)
	logger := ctxlog.FromContext(ctx)

	if e.sessScope != nil {
		if err := e.sessScope.ReleaseAll(ctx); err != nil {
			logger.Error("Failed to release session resources.", "error", err)
		}
	}
	if e.guard.Outstanding() == 0 {
		if err := scene.DiscardRecovery(e.cfg.Scene.Path()); err != nil {
			logger.Warn("Failed to remove scene recovery file.", "error", err)
		}
	}
	if e.session != nil {
		if err := e.session.Close(ctx, string(state)); err != nil {
			logger.Error("Failed to close journal session.", "error", err)
		}
	}

	e.mu.Lock()
	e.state = state
	report := &Report{State: state, Results: e.report}
	e.mu.Unlock()

	logger.Info("🏁 Bake job finished.",
		"job", e.cfg.Job,
		"state", state,
		"succeeded", report.Count(OutcomeSucceeded),
		"failed", report.Count(OutcomeFailed),
		"skipped", report.Count(OutcomeSkipped),
	)
}

func (e *Executor) setStepState(s StepState) {
	e.mu.Lock()
	e.stepState = s
	e.mu.Unlock()
}
