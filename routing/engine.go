package routing

import (
	"context"
	"sync"
	"time"

	"github.com/nuxeo/docroute/internal/metrics"
	"github.com/nuxeo/docroute/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// tracerName identifies engine spans; a no-op tracer provider applies
// when the embedding application installs none.
const tracerName = "github.com/nuxeo/docroute/routing"

// maxChainedSteps bounds a synchronous automatic run. A definition whose
// automatic steps loop without ever reaching a task, join or terminal
// step would otherwise never return to the caller.
const maxChainedSteps = 1024

// ChainFunc is an engine-registered hook run after a transition carrying
// its name is taken. A failing chain suspends the instance like a
// definition error.
type ChainFunc func(ctx context.Context, inst *Instance, transitionID string) error

// Engine drives workflow instances across their definitions: it
// advances automatic steps synchronously, opens tasks at human steps,
// spawns branches at forks, arbitrates joins, and finishes or cancels
// instances. Every state transition runs on the caller's goroutine; the
// engine owns no background workers.
type Engine struct {
	definitions Registry
	tasks       *TaskRegistry
	archiver    Archiver
	notifier    Notifier
	collector   *metrics.Collector
	logger      *zap.Logger
	tracer      trace.Tracer

	chainsMu sync.RWMutex
	chains   map[string]ChainFunc

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewEngine creates an engine over the given definition registry and
// principal resolver. Notifier, archiver and metrics are optional and
// installed through setters before first use.
func NewEngine(definitions Registry, resolver PrincipalResolver, logger *zap.Logger) *Engine {
	e := &Engine{
		definitions: definitions,
		notifier:    NopNotifier{},
		logger:      logger.With(zap.String("component", "engine")),
		tracer:      otel.Tracer(tracerName),
		chains:      make(map[string]ChainFunc),
		instances:   make(map[string]*Instance),
	}
	e.tasks = NewTaskRegistry(resolver, e.notifier, logger)
	return e
}

// SetNotifier installs the audit/notification collaborator.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
	e.tasks.notifier = n
}

// SetArchiver installs the archive store for ended instances and tasks.
func (e *Engine) SetArchiver(a Archiver) {
	e.archiver = a
}

// SetCollector installs the metrics collector.
func (e *Engine) SetCollector(c *metrics.Collector) {
	e.collector = c
}

// RegisterChain registers a named hook runnable after transitions.
func (e *Engine) RegisterChain(name string, fn ChainFunc) {
	e.chainsMu.Lock()
	defer e.chainsMu.Unlock()
	e.chains[name] = fn
}

// Tasks exposes the task registry for read-side callers.
func (e *Engine) Tasks() *TaskRegistry {
	return e.tasks
}

// Instance returns a live instance by id.
func (e *Engine) Instance(instanceID string) (*Instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.instances[instanceID]
	if !ok {
		return nil, types.NewErrorf(types.ErrInstanceNotFound, "instance %q not found", instanceID)
	}
	return inst, nil
}

// Launch instantiates the definition against a document and drives the
// instance until every branch reaches a task, a waiting join, or a
// terminal step. The instance is returned even when a definition error
// suspended it, so the caller can inspect the suspension.
func (e *Engine) Launch(ctx context.Context, definitionID, documentID string, vars map[string]string) (*Instance, error) {
	ctx, span := e.tracer.Start(ctx, "routing.Launch",
		trace.WithAttributes(
			attribute.String("definition_id", definitionID),
			attribute.String("document_id", documentID),
		))
	defer span.End()

	def, err := e.definition(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	inst := NewInstance(def, documentID, vars)
	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()

	e.logger.Info("instance launched",
		zap.String("instance", inst.ID),
		zap.String("definition", definitionID),
		zap.String("document", documentID),
	)
	e.collector.RecordInstanceLaunched(definitionID)

	seed := inst.ActivePositions()[0]
	if err := e.process(ctx, inst, def, seed, 0); err != nil {
		span.RecordError(err)
		return inst, err
	}
	return inst, nil
}

// ResumeStep advances the instance past the given position. It is the
// external entry point invoked after a task ended, and the repair path
// for suspended instances: an administrator fixes the definition or
// context and calls ResumeStep on the stuck position again.
func (e *Engine) ResumeStep(ctx context.Context, instanceID, positionID string) error {
	ctx, span := e.tracer.Start(ctx, "routing.ResumeStep",
		trace.WithAttributes(
			attribute.String("instance_id", instanceID),
			attribute.String("position_id", positionID),
		))
	defer span.End()

	inst, err := e.Instance(instanceID)
	if err != nil {
		return err
	}
	switch inst.Status() {
	case StatusRunning:
	case StatusSuspended:
		inst.markRunning()
	default:
		return types.NewErrorf(types.ErrInstanceNotLive,
			"instance %q is %s", instanceID, inst.Status()).WithInstance(instanceID)
	}

	def, err := e.definition(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}
	pos, ok := inst.Position(positionID)
	if !ok {
		return types.NewErrorf(types.ErrPositionNotFound,
			"position %q is not active", positionID).WithInstance(instanceID)
	}
	step, ok := def.Step(pos.StepID)
	if !ok {
		return e.fail(inst, types.NewErrorf(types.ErrInvalidDefinition,
			"position %q sits on unknown step %q", positionID, pos.StepID).WithInstance(instanceID))
	}

	if step.Kind != StepKindTask {
		// Suspended automatic/fork/join step after administrative
		// repair: re-process it.
		err := e.process(ctx, inst, def, pos, 0)
		if err != nil {
			span.RecordError(err)
		}
		return err
	}

	if pos.TaskID == "" {
		// A transient resolver failure left the position without a
		// task; re-entering the step retries the exact same open.
		return e.process(ctx, inst, def, pos, 0)
	}
	task, err := e.tasks.Get(pos.TaskID)
	if err != nil {
		return err
	}
	if task.Status != TaskEnded {
		return types.NewErrorf(types.ErrInvalidTaskState,
			"task %q is %s, not ended", task.ID, task.Status).WithInstance(instanceID)
	}

	tr, err := def.ResolveOutcome(step.ID, task.Outcome)
	if err != nil {
		if te, ok := err.(*types.Error); ok {
			err = te.WithInstance(inst.ID)
		}
		return e.fail(inst, err)
	}
	inst.SetLastActor(task.CompletedBy)
	e.collector.RecordStepDuration(def.ID(), string(step.Kind), time.Since(pos.EnteredAt))
	if err := e.take(ctx, inst, def, pos, tr, 0); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// CompleteTask records the outcome on the task and resumes the owning
// step. Authorization and stale-state errors reject the request without
// touching instance state.
func (e *Engine) CompleteTask(ctx context.Context, taskID, outcome string, data map[string]string, principal string) (*Task, error) {
	ctx, span := e.tracer.Start(ctx, "routing.CompleteTask",
		trace.WithAttributes(
			attribute.String("task_id", taskID),
			attribute.String("outcome", outcome),
		))
	defer span.End()

	task, err := e.tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	inst, err := e.Instance(task.InstanceID)
	if err != nil {
		return nil, err
	}
	if s := inst.Status(); s != StatusRunning && s != StatusSuspended {
		return nil, types.NewErrorf(types.ErrInstanceNotLive,
			"instance %q is %s", inst.ID, s).WithInstance(inst.ID)
	}

	ended, err := e.tasks.Complete(taskID, outcome, data, principal)
	if err != nil {
		return nil, err
	}
	e.collector.RecordTaskEnded(inst.DefinitionID, ended.StepID, string(TaskEnded))

	if pos, ok := inst.PositionForTask(taskID); ok {
		if err := e.ResumeStep(ctx, inst.ID, pos.ID); err != nil {
			span.RecordError(err)
			return ended, err
		}
	}
	return ended, nil
}

// ReassignTask replaces the actors of a live task.
func (e *Engine) ReassignTask(taskID string, actors []string, comment, author string) error {
	return e.tasks.Reassign(taskID, actors, comment, author)
}

// DelegateTask grants a secondary actor set without ownership transfer.
func (e *Engine) DelegateTask(taskID string, actors []string, comment, author string) error {
	return e.tasks.Delegate(taskID, actors, comment, author)
}

// ListTasks returns the tasks offerable to actor.
func (e *Engine) ListTasks(actor string, filter TaskFilter) []*Task {
	return e.tasks.ListTasks(actor, filter)
}

// GetGraph returns the serialized definition graph for visualization.
func (e *Engine) GetGraph(ctx context.Context, definitionID string) (*DefinitionSpec, error) {
	def, err := e.definition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	return def.Spec(), nil
}

// CancelInstance cancels a live instance: every open task is cancelled,
// the active set is cleared, and the instance is archived. Irreversible.
// An in-flight advance that started before cancellation finishes its
// current step, then observes the cancelled status and stops.
func (e *Engine) CancelInstance(ctx context.Context, instanceID string) error {
	ctx, span := e.tracer.Start(ctx, "routing.CancelInstance",
		trace.WithAttributes(attribute.String("instance_id", instanceID)))
	defer span.End()

	inst, err := e.Instance(instanceID)
	if err != nil {
		return err
	}
	if !inst.markCancelled() {
		return types.NewErrorf(types.ErrInstanceNotLive,
			"instance %q is already %s", instanceID, inst.Status()).WithInstance(instanceID)
	}

	cancelled := e.tasks.CancelForInstance(instanceID)
	for _, t := range cancelled {
		e.collector.RecordTaskEnded(inst.DefinitionID, t.StepID, string(TaskCancelled))
	}
	e.logger.Info("instance cancelled",
		zap.String("instance", instanceID),
		zap.Int("cancelled_tasks", len(cancelled)),
	)
	return e.finalize(ctx, inst, StatusCancelled)
}

// =============================================================================
// Step processing
// =============================================================================

// process handles the step a freshly entered position sits on. Automatic
// chains recurse synchronously until a task, a waiting join, or a
// terminal step; depth bounds runaway automatic loops.
func (e *Engine) process(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, depth int) error {
	if inst.Status() != StatusRunning {
		// Cooperative stop: cancellation or suspension happened after
		// this position was created.
		return nil
	}
	if depth > maxChainedSteps {
		return e.fail(inst, types.NewErrorf(types.ErrNoApplicableTransition,
			"automatic chain exceeded %d steps, definition likely loops without progress", maxChainedSteps).
			WithInstance(inst.ID).WithStep(pos.StepID))
	}

	step, ok := def.Step(pos.StepID)
	if !ok {
		return e.fail(inst, types.NewErrorf(types.ErrInvalidDefinition,
			"position references unknown step %q", pos.StepID).WithInstance(inst.ID))
	}

	e.logger.Debug("processing step",
		zap.String("instance", inst.ID),
		zap.String("step", step.ID),
		zap.String("kind", string(step.Kind)),
		zap.String("branch", pos.BranchID),
	)

	switch step.Kind {
	case StepKindAutomatic:
		return e.enterAutomatic(ctx, inst, def, pos, step, depth)
	case StepKindTask:
		return e.enterTask(ctx, inst, def, pos, step, depth)
	case StepKindFork:
		return e.enterFork(ctx, inst, def, pos, step)
	case StepKindJoin:
		return e.enterJoin(ctx, inst, def, pos, step, depth)
	case StepKindTerminal:
		return e.enterTerminal(ctx, inst, def, pos, step)
	default:
		return e.fail(inst, types.NewErrorf(types.ErrInvalidDefinition,
			"unknown step kind %q", string(step.Kind)).WithInstance(inst.ID).WithStep(step.ID))
	}
}

// enterAutomatic resolves the outgoing transition against the instance
// context and advances.
func (e *Engine) enterAutomatic(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, step *Step, depth int) error {
	tr, err := def.ResolveOutgoing(step.ID, inst.Vars)
	if err != nil {
		if te, ok := err.(*types.Error); ok {
			err = te.WithInstance(inst.ID)
		}
		return e.fail(inst, err)
	}
	e.collector.RecordStepDuration(def.ID(), string(step.Kind), time.Since(pos.EnteredAt))
	return e.take(ctx, inst, def, pos, tr, depth)
}

// enterTask opens a human task and leaves the position suspended until
// ResumeStep. An availability filter evaluating false skips the step
// through its default transition instead of offering it.
func (e *Engine) enterTask(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, step *Step, depth int) error {
	if step.Availability != nil {
		offerable, err := step.Availability.Eval(inst.Vars)
		if err != nil {
			return e.fail(inst, types.NewError(types.ErrRepositoryFailure,
				"availability filter evaluation failed").WithCause(err).WithInstance(inst.ID).WithStep(step.ID))
		}
		if !offerable {
			tr, ok := def.DefaultTransition(step.ID)
			if !ok {
				return e.fail(inst, types.NewErrorf(types.ErrNoApplicableTransition,
					"task step %q is not offerable and has no default transition", step.ID).
					WithInstance(inst.ID).WithStep(step.ID))
			}
			e.logger.Debug("task step not offerable, skipping",
				zap.String("instance", inst.ID),
				zap.String("step", step.ID),
			)
			return e.take(ctx, inst, def, pos, tr, depth)
		}
	}

	task, err := e.tasks.Open(ctx, inst, pos, step)
	if err != nil {
		return e.fail(inst, err)
	}
	e.collector.RecordTaskOpened(def.ID(), step.ID)
	if !inst.BindTask(pos.ID, task.ID) {
		// The instance was cancelled between entering the step and
		// opening the task; withdraw it.
		_ = e.tasks.Cancel(task.ID)
	}
	return nil
}

// enterFork spawns one branch per outgoing transition; branches advance
// concurrently and independently.
func (e *Engine) enterFork(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, step *Step) error {
	targets := def.ForkTargets(step.ID)
	if join, ok := def.JoinFor(step.ID); ok {
		inst.RegisterFork(step.ID, join.ID, pos.BranchID, len(targets))
	}

	toSteps := make([]string, len(targets))
	for i, t := range targets {
		toSteps[i] = t.To
	}
	positions, err := inst.Advance(pos.ID, toSteps)
	if err != nil {
		return err
	}
	e.collector.RecordStepDuration(def.ID(), string(step.Kind), time.Since(pos.EnteredAt))

	g, gctx := errgroup.WithContext(ctx)
	for i, branchPos := range positions {
		tr := targets[i]
		branchPos := branchPos
		inst.RecordTransition(tr, branchPos.BranchID)
		g.Go(func() error {
			if err := e.runChain(gctx, inst, tr); err != nil {
				return e.fail(inst, err)
			}
			return e.process(gctx, inst, def, branchPos, 0)
		})
	}
	return g.Wait()
}

// enterJoin arbitrates branch arrival. Exactly one arriving branch per
// fork generation observes Ready and continues past the join; the others
// are absorbed.
func (e *Engine) enterJoin(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, step *Step, depth int) error {
	decision, branch := inst.TryJoin(step.ID, step.ForkID)
	if decision == JoinWaiting {
		e.collector.RecordJoinArrival(def.ID(), "waiting")
		inst.RemovePosition(pos.ID)
		return nil
	}
	e.collector.RecordJoinArrival(def.ID(), "ready")

	tr, err := def.ResolveOutgoing(step.ID, inst.Vars)
	if err != nil {
		if te, ok := err.(*types.Error); ok {
			err = te.WithInstance(inst.ID)
		}
		return e.fail(inst, err)
	}
	if err := e.runChain(ctx, inst, tr); err != nil {
		return e.fail(inst, err)
	}
	next, err := inst.ReplacePosition(pos.ID, tr.To, branch)
	if err != nil {
		return err
	}
	inst.RecordTransition(tr, branch)
	e.collector.RecordStepDuration(def.ID(), string(step.Kind), time.Since(pos.EnteredAt))
	return e.process(ctx, inst, def, next, depth+1)
}

// enterTerminal removes the position; when the last branch ends the
// instance is Done and archived.
func (e *Engine) enterTerminal(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, step *Step) error {
	e.collector.RecordStepDuration(def.ID(), string(step.Kind), time.Since(pos.EnteredAt))
	if inst.CompleteTerminal(pos.ID) {
		e.logger.Info("instance done", zap.String("instance", inst.ID))
		if err := e.finalize(ctx, inst, StatusDone); err != nil {
			// Archiving is retryable by the operator; the instance
			// already reached Done.
			e.logger.Error("archiving done instance failed",
				zap.String("instance", inst.ID), zap.Error(err))
		}
	}
	return nil
}

// take runs the transition's chain, advances the position along it, and
// processes the entered step.
func (e *Engine) take(ctx context.Context, inst *Instance, def *Definition, pos *StepPosition, tr *Transition, depth int) error {
	if err := e.runChain(ctx, inst, tr); err != nil {
		return e.fail(inst, err)
	}
	positions, err := inst.Advance(pos.ID, []string{tr.To})
	if err != nil {
		return err
	}
	inst.RecordTransition(tr, positions[0].BranchID)
	return e.process(ctx, inst, def, positions[0], depth+1)
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) definition(ctx context.Context, definitionID string) (*Definition, error) {
	def, err := e.definitions.GetDefinition(ctx, definitionID)
	if err != nil {
		if types.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewErrorf(types.ErrDefinitionNotFound,
			"definition %q not available", definitionID).WithCause(err)
	}
	return def, nil
}

// runChain executes the hook named on the transition, if any.
func (e *Engine) runChain(ctx context.Context, inst *Instance, tr *Transition) error {
	if tr.Chain == "" {
		return nil
	}
	e.chainsMu.RLock()
	fn, ok := e.chains[tr.Chain]
	e.chainsMu.RUnlock()
	if !ok {
		return types.NewErrorf(types.ErrChainFailure,
			"chain %q is not registered", tr.Chain).WithInstance(inst.ID)
	}
	if err := fn(ctx, inst, tr.ID); err != nil {
		return types.NewErrorf(types.ErrChainFailure,
			"chain %q failed on transition %q", tr.Chain, tr.ID).WithCause(err).WithInstance(inst.ID)
	}
	return nil
}

// fail routes an engine error: definition and resolution errors suspend
// the instance and notify the audit collaborator; everything else is
// returned to the caller with instance state untouched. Suspensions are
// never retried automatically, since re-evaluating a deterministic guard
// cannot change the outcome.
func (e *Engine) fail(inst *Instance, err error) error {
	if !types.IsSuspending(err) {
		return err
	}
	if inst.markSuspended(err.Error()) {
		e.logger.Warn("instance suspended",
			zap.String("instance", inst.ID),
			zap.Error(err),
		)
		e.collector.RecordInstanceEnded(inst.DefinitionID, string(StatusSuspended))
		e.notify(func() { e.notifier.OnInstanceSuspended(inst.ID, err.Error()) })
	}
	return err
}

// finalize archives an instance that reached Done or Cancelled together
// with its tasks, then drops it from the live map. On archive failure
// the instance stays in the live map so the operator can retry.
func (e *Engine) finalize(ctx context.Context, inst *Instance, status InstanceStatus) error {
	e.collector.RecordInstanceEnded(inst.DefinitionID, string(status))

	if e.archiver != nil {
		if err := e.archiver.ArchiveInstance(ctx, inst); err != nil {
			return types.NewError(types.ErrArchiveFailure, "instance archive failed").
				WithCause(err).WithInstance(inst.ID).WithRetryable(true)
		}
		for _, t := range e.tasks.ListTasks("", TaskFilter{InstanceID: inst.ID}) {
			if err := e.archiver.ArchiveTask(ctx, t); err != nil {
				return types.NewError(types.ErrArchiveFailure, "task archive failed").
					WithCause(err).WithInstance(inst.ID).WithRetryable(true)
			}
		}
	}

	e.tasks.Forget(inst.ID)
	e.mu.Lock()
	delete(e.instances, inst.ID)
	e.mu.Unlock()
	return nil
}

// notify invokes a fire-and-forget notifier callback; panics must never
// roll back engine state.
func (e *Engine) notify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("notifier panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}
