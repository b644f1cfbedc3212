package routing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nuxeo/docroute/types"
	"go.uber.org/zap"
)

// TaskStatus defines the lifecycle state of a human task.
type TaskStatus string

const (
	// TaskOpened means the task awaits completion by one of its actors
	TaskOpened TaskStatus = "opened"
	// TaskDelegated means a secondary actor set may also complete it
	TaskDelegated TaskStatus = "delegated"
	// TaskEnded means the task was completed with an outcome
	TaskEnded TaskStatus = "ended"
	// TaskCancelled means the task was administratively cancelled
	TaskCancelled TaskStatus = "cancelled"
)

// live reports whether the task can still be acted upon.
func (s TaskStatus) live() bool {
	return s == TaskOpened || s == TaskDelegated
}

// Comment is one remark attached to a task.
type Comment struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Task is the runtime record of a human step awaiting completion.
type Task struct {
	// ID is the task id
	ID string
	// InstanceID is the owning workflow instance
	InstanceID string
	// PositionID is the step position that opened the task
	PositionID string
	// StepID is the definition step of the position
	StepID string
	// Label is the human-readable task name
	Label string
	// Actors owns the task
	Actors []string
	// DelegatedActors may act without ownership transfer
	DelegatedActors []string
	// Status is the task lifecycle state
	Status TaskStatus
	// Outcome is the symbolic decision recorded at completion
	Outcome string
	// Data holds completion form values
	Data map[string]string
	// Comments accumulate across reassign, delegate and complete
	Comments []Comment
	// CompletedBy is the acting principal recorded at completion
	CompletedBy string
	// DueDate is derived from the step's due-in offset
	DueDate   time.Time
	CreatedAt time.Time
	EndedAt   time.Time
}

// clone returns a defensive copy.
func (t *Task) clone() *Task {
	cp := *t
	cp.Actors = append([]string(nil), t.Actors...)
	cp.DelegatedActors = append([]string(nil), t.DelegatedActors...)
	cp.Comments = append([]Comment(nil), t.Comments...)
	if t.Data != nil {
		cp.Data = make(map[string]string, len(t.Data))
		for k, v := range t.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}

// authorized reports whether principal may complete the task.
func (t *Task) authorized(principal string) bool {
	for _, a := range t.Actors {
		if a == principal {
			return true
		}
	}
	for _, a := range t.DelegatedActors {
		if a == principal {
			return true
		}
	}
	return false
}

// TaskFilter narrows ListTasks results; zero values match everything.
type TaskFilter struct {
	InstanceID   string
	DefinitionID string
	// Live restricts to opened/delegated tasks
	Live bool
}

// TaskRegistry manages the lifecycle of human tasks. It is safe for
// concurrent use; per-task mutation is serialized by the registry lock.
type TaskRegistry struct {
	resolver PrincipalResolver
	notifier Notifier
	logger   *zap.Logger

	mu    sync.RWMutex
	tasks map[string]*Task
	// definition id per instance, for ListTasks filtering
	definitions map[string]string
}

// NewTaskRegistry creates a task registry. The resolver is the external
// principal-resolution collaborator; notifier may be nil.
func NewTaskRegistry(resolver PrincipalResolver, notifier Notifier, logger *zap.Logger) *TaskRegistry {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TaskRegistry{
		resolver:    resolver,
		notifier:    notifier,
		logger:      logger.With(zap.String("component", "task_registry")),
		tasks:       make(map[string]*Task),
		definitions: make(map[string]string),
	}
}

// Open resolves the step's actors expression and creates a task in
// Opened status. Returns NO_ACTORS_RESOLVED when the expression yields
// no principals: the step cannot be offered to anyone, which is fatal to
// the instance rather than silently dropped.
func (r *TaskRegistry) Open(ctx context.Context, inst *Instance, pos *StepPosition, step *Step) (*Task, error) {
	actors, err := r.resolver.ResolveActors(ctx, step.Actors, inst.Vars)
	if err != nil {
		if types.GetErrorCode(err) != "" {
			return nil, err
		}
		return nil, types.NewError(types.ErrResolverFailure, "principal resolution failed").
			WithCause(err).WithInstance(inst.ID).WithStep(step.ID)
	}
	if len(actors) == 0 {
		return nil, types.NewErrorf(types.ErrNoActorsResolved,
			"actors expression of step %q resolved to no principals", step.ID).
			WithInstance(inst.ID).WithStep(step.ID)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		PositionID: pos.ID,
		StepID:     step.ID,
		Label:      step.Label,
		Actors:     actors,
		Status:     TaskOpened,
		CreatedAt:  now,
	}
	if step.DueIn > 0 {
		task.DueDate = now.Add(step.DueIn)
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.definitions[inst.ID] = inst.DefinitionID
	r.mu.Unlock()

	r.logger.Info("task opened",
		zap.String("task", task.ID),
		zap.String("instance", inst.ID),
		zap.String("step", step.ID),
		zap.Strings("actors", actors),
	)
	r.notify(func() { r.notifier.OnTaskOpened(task.clone()) })
	return task.clone(), nil
}

// Get returns a copy of the task with the given id.
func (r *TaskRegistry) Get(taskID string) (*Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, types.NewErrorf(types.ErrTaskNotFound, "task %q not found", taskID)
	}
	return t.clone(), nil
}

// Reassign replaces the task's actors. Requires a live task.
func (r *TaskRegistry) Reassign(taskID string, newActors []string, comment, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return types.NewErrorf(types.ErrTaskNotFound, "task %q not found", taskID)
	}
	if !t.Status.live() {
		return types.NewErrorf(types.ErrInvalidTaskState,
			"task %q is %s and cannot be reassigned", taskID, t.Status)
	}
	t.Actors = append([]string(nil), newActors...)
	appendComment(t, author, comment)
	r.logger.Info("task reassigned",
		zap.String("task", taskID),
		zap.Strings("actors", newActors),
	)
	return nil
}

// Delegate grants delegatedActors the ability to complete the task
// without removing the original actors. Idempotent when called again
// with an already-granted set.
func (r *TaskRegistry) Delegate(taskID string, delegatedActors []string, comment, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return types.NewErrorf(types.ErrTaskNotFound, "task %q not found", taskID)
	}
	if !t.Status.live() {
		return types.NewErrorf(types.ErrInvalidTaskState,
			"task %q is %s and cannot be delegated", taskID, t.Status)
	}
	changed := false
	for _, a := range delegatedActors {
		if !contains(t.DelegatedActors, a) {
			t.DelegatedActors = append(t.DelegatedActors, a)
			changed = true
		}
	}
	t.Status = TaskDelegated
	if changed {
		appendComment(t, author, comment)
		r.logger.Info("task delegated",
			zap.String("task", taskID),
			zap.Strings("delegated_actors", delegatedActors),
		)
	}
	return nil
}

// Complete records the outcome and ends the task. The acting principal
// must belong to the actors or delegated-actors set; a live status is
// required, so a concurrent completion by someone else surfaces as
// INVALID_TASK_STATE to the stale caller.
func (r *TaskRegistry) Complete(taskID, outcome string, data map[string]string, principal string) (*Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return nil, types.NewErrorf(types.ErrTaskNotFound, "task %q not found", taskID)
	}
	if !t.Status.live() {
		r.mu.Unlock()
		return nil, types.NewErrorf(types.ErrInvalidTaskState,
			"task %q is already %s", taskID, t.Status)
	}
	if !t.authorized(principal) {
		r.mu.Unlock()
		return nil, types.NewErrorf(types.ErrForbidden,
			"principal %q may not complete task %q", principal, taskID)
	}
	t.Status = TaskEnded
	t.Outcome = outcome
	t.CompletedBy = principal
	t.EndedAt = time.Now()
	if len(data) > 0 {
		if t.Data == nil {
			t.Data = make(map[string]string, len(data))
		}
		for k, v := range data {
			t.Data[k] = v
		}
	}
	if c, ok := data["comment"]; ok && c != "" {
		appendComment(t, principal, c)
	}
	ended := t.clone()
	r.mu.Unlock()

	r.logger.Info("task completed",
		zap.String("task", taskID),
		zap.String("outcome", outcome),
		zap.String("principal", principal),
	)
	r.notify(func() { r.notifier.OnTaskEnded(ended.clone()) })
	return ended, nil
}

// Cancel administratively cancels a task: used when the owning instance
// is cancelled or a branch is pruned by a join race. Cancelling an
// already-ended task is a no-op.
func (r *TaskRegistry) Cancel(taskID string) error {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return types.NewErrorf(types.ErrTaskNotFound, "task %q not found", taskID)
	}
	if !t.Status.live() {
		r.mu.Unlock()
		return nil
	}
	t.Status = TaskCancelled
	t.EndedAt = time.Now()
	cancelled := t.clone()
	r.mu.Unlock()

	r.logger.Info("task cancelled", zap.String("task", taskID))
	r.notify(func() { r.notifier.OnTaskEnded(cancelled.clone()) })
	return nil
}

// CancelForInstance cancels every live task of an instance and returns
// the cancelled tasks.
func (r *TaskRegistry) CancelForInstance(instanceID string) []*Task {
	r.mu.Lock()
	var ids []string
	for id, t := range r.tasks {
		if t.InstanceID == instanceID && t.Status.live() {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(ids)
	out := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if err := r.Cancel(id); err == nil {
			if t, err := r.Get(id); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// ListTasks returns the tasks offerable to actor, newest first. The
// empty actor matches every task. Filters narrow by instance, by
// definition, and to live tasks only.
func (r *TaskRegistry) ListTasks(actor string, filter TaskFilter) []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Task
	for _, t := range r.tasks {
		if actor != "" && !t.authorized(actor) {
			continue
		}
		if filter.InstanceID != "" && t.InstanceID != filter.InstanceID {
			continue
		}
		if filter.DefinitionID != "" && r.definitions[t.InstanceID] != filter.DefinitionID {
			continue
		}
		if filter.Live && !t.Status.live() {
			continue
		}
		out = append(out, t.clone())
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Forget drops ended tasks of an instance from the live map once they
// are archived.
func (r *TaskRegistry) Forget(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		if t.InstanceID == instanceID && !t.Status.live() {
			delete(r.tasks, id)
		}
	}
	delete(r.definitions, instanceID)
}

// notify invokes a fire-and-forget notifier callback; panics must never
// roll back engine state.
func (r *TaskRegistry) notify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("notifier panicked", zap.Any("panic", rec))
		}
	}()
	fn()
}

func appendComment(t *Task, author, text string) {
	if text == "" {
		return
	}
	t.Comments = append(t.Comments, Comment{Author: author, Text: text, At: time.Now()})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
