package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nuxeo/docroute/types"
)

// InstanceStatus defines the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	// StatusRunning means the instance has live branches
	StatusRunning InstanceStatus = "running"
	// StatusSuspended means a definition or resolution error requires
	// administrative repair before the instance can continue
	StatusSuspended InstanceStatus = "suspended"
	// StatusDone means every branch reached a terminal step
	StatusDone InstanceStatus = "done"
	// StatusCancelled means the instance was administratively cancelled
	StatusCancelled InstanceStatus = "cancelled"
)

// StepPosition is one currently active position inside an instance.
type StepPosition struct {
	// ID is the position id
	ID string
	// StepID is the definition step the position sits on
	StepID string
	// BranchID distinguishes concurrent branches created by forks
	BranchID string
	// EnteredAt is when the transition into the step was taken
	EnteredAt time.Time
	// TaskID is the live task owned by a task-step position
	TaskID string
}

// TakenTransition records one traversed edge, for visualization and the
// archive.
type TakenTransition struct {
	TransitionID string    `json:"transition_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	BranchID     string    `json:"branch_id"`
	At           time.Time `json:"at"`
}

// JoinDecision is the outcome of a TryJoin call.
type JoinDecision int

const (
	// JoinWaiting means sibling branches are still running; the calling
	// branch is absorbed without a successor
	JoinWaiting JoinDecision = iota
	// JoinReady means every sibling arrived; exactly one caller per fork
	// generation observes Ready
	JoinReady
)

// joinState tracks arrivals for one (fork, join) pair. A loop passing
// through the fork again re-arms the counter, so state is reset when the
// join fires.
type joinState struct {
	expected     int
	arrived      int
	parentBranch string
}

// Instance is one running execution of a workflow definition against a
// document. All mutation goes through methods holding the instance
// mutex; instances are fully independent and carry no cross-instance
// locking.
type Instance struct {
	// ID is the instance id
	ID string
	// DefinitionID references the definition being executed
	DefinitionID string
	// DocumentID is the target document being routed
	DocumentID string
	// Vars is the evaluation context for guards and actor expressions
	Vars MapContext
	// CreatedAt is when the instance was launched
	CreatedAt time.Time

	mu            sync.Mutex
	status        InstanceStatus
	suspendReason string
	lastActor     string
	active        map[string]*StepPosition
	joins         map[string]*joinState
	trail         []TakenTransition
}

// rootBranch is the branch id of the seed position.
const rootBranch = "root"

// NewInstance creates a Running instance seeded at the definition's
// start step.
func NewInstance(def *Definition, documentID string, vars map[string]string) *Instance {
	inst := &Instance{
		ID:           uuid.NewString(),
		DefinitionID: def.ID(),
		DocumentID:   documentID,
		Vars:         MapContext{},
		CreatedAt:    time.Now(),
		status:       StatusRunning,
		active:       make(map[string]*StepPosition),
		joins:        make(map[string]*joinState),
	}
	for k, v := range vars {
		inst.Vars[k] = v
	}
	seed := &StepPosition{
		ID:        uuid.NewString(),
		StepID:    def.Start(),
		BranchID:  rootBranch,
		EnteredAt: inst.CreatedAt,
	}
	inst.active[seed.ID] = seed
	return inst
}

// Status returns the instance status.
func (i *Instance) Status() InstanceStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// SuspendReason returns the reason recorded at suspension.
func (i *Instance) SuspendReason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.suspendReason
}

// LastActor returns the principal who completed the most recent task.
func (i *Instance) LastActor() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastActor
}

// ActivePositions returns a snapshot of the currently active positions.
func (i *Instance) ActivePositions() []*StepPosition {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*StepPosition, 0, len(i.active))
	for _, p := range i.active {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Position returns the active position with the given id.
func (i *Instance) Position(posID string) (*StepPosition, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.active[posID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// PositionForTask returns the active position owning the given task.
func (i *Instance) PositionForTask(taskID string) (*StepPosition, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range i.active {
		if p.TaskID == taskID {
			cp := *p
			return &cp, true
		}
	}
	return nil, false
}

// Trail returns the transitions taken so far, in order.
func (i *Instance) Trail() []TakenTransition {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]TakenTransition, len(i.trail))
	copy(out, i.trail)
	return out
}

// IsTerminal reports whether no position remains active.
func (i *Instance) IsTerminal() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.active) == 0
}

// Advance atomically removes fromPos from the active set and inserts one
// new position per target step: one for a normal transition, many for a
// fork. Fork targets each receive a fresh branch id derived from the
// parent branch; a single target inherits the parent branch.
func (i *Instance) Advance(fromPosID string, toStepIDs []string) ([]*StepPosition, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	from, ok := i.active[fromPosID]
	if !ok {
		return nil, types.NewErrorf(types.ErrPositionNotFound,
			"position %q is not active", fromPosID).WithInstance(i.ID)
	}
	delete(i.active, fromPosID)

	now := time.Now()
	out := make([]*StepPosition, 0, len(toStepIDs))
	for n, stepID := range toStepIDs {
		pos := &StepPosition{
			ID:        uuid.NewString(),
			StepID:    stepID,
			BranchID:  from.BranchID,
			EnteredAt: now,
		}
		if len(toStepIDs) > 1 {
			pos.BranchID = forkBranch(from.BranchID, n)
		}
		i.active[pos.ID] = pos
		out = append(out, pos)
	}
	return out, nil
}

func forkBranch(parent string, n int) string {
	return fmt.Sprintf("%s.%d-%s", parent, n, uuid.NewString()[:8])
}

// RemovePosition drops a position without creating a successor: used for
// branches absorbed at a join and for terminal steps.
func (i *Instance) RemovePosition(posID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.active, posID)
}

// BindTask records the live task owned by a task-step position.
func (i *Instance) BindTask(posID, taskID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.active[posID]
	if !ok {
		return false
	}
	p.TaskID = taskID
	return true
}

// RegisterFork arms the arrival counter for a fork about to spawn
// branches. Re-registering (a loop passing through the fork again)
// resets the counter.
func (i *Instance) RegisterFork(forkID, joinID, parentBranch string, branches int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.joins[forkID+"/"+joinID] = &joinState{
		expected:     branches,
		parentBranch: parentBranch,
	}
}

// TryJoin increments the arrival counter for (forkID, joinID) and
// decides whether the join fires. The increment and the comparison are a
// single atomic step under the instance lock, so two branches racing to
// exit at the same join can never both observe Waiting or both observe
// Ready. Exactly one caller per fork generation gets JoinReady; the
// counter is reset so a loop through the fork re-arms it. The returned
// branch id is the branch the continuing position resumes on.
func (i *Instance) TryJoin(joinID, forkID string) (JoinDecision, string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := forkID + "/" + joinID
	js, ok := i.joins[key]
	if !ok {
		// Join reached without a registered fork: degenerate single
		// branch, fire immediately.
		return JoinReady, rootBranch
	}
	js.arrived++
	if js.arrived < js.expected {
		return JoinWaiting, js.parentBranch
	}
	delete(i.joins, key)
	return JoinReady, js.parentBranch
}

// InsertPosition adds a position directly; used by the engine when a
// join fires and the continuing branch needs a position at the join's
// successor.
func (i *Instance) InsertPosition(stepID, branchID string) *StepPosition {
	i.mu.Lock()
	defer i.mu.Unlock()
	pos := &StepPosition{
		ID:        uuid.NewString(),
		StepID:    stepID,
		BranchID:  branchID,
		EnteredAt: time.Now(),
	}
	i.active[pos.ID] = pos
	return pos
}

// ReplacePosition atomically removes fromPos and inserts a position at
// toStep on the given branch: used when a join fires and the continuing
// branch resumes past it. Atomicity preserves the invariant that the
// active set is never observably empty while the instance is Running.
func (i *Instance) ReplacePosition(fromPosID, toStepID, branchID string) (*StepPosition, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.active[fromPosID]; !ok {
		return nil, types.NewErrorf(types.ErrPositionNotFound,
			"position %q is not active", fromPosID).WithInstance(i.ID)
	}
	delete(i.active, fromPosID)
	pos := &StepPosition{
		ID:        uuid.NewString(),
		StepID:    toStepID,
		BranchID:  branchID,
		EnteredAt: time.Now(),
	}
	i.active[pos.ID] = pos
	return pos, nil
}

// CompleteTerminal removes a position that reached a terminal step and,
// when it was the last live branch, transitions the instance to Done in
// the same critical section. Exactly one caller observes true even when
// several branches finish concurrently.
func (i *Instance) CompleteTerminal(posID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.active, posID)
	if i.status == StatusRunning && len(i.active) == 0 {
		i.status = StatusDone
		return true
	}
	return false
}

// RecordTransition appends a traversed edge to the trail.
func (i *Instance) RecordTransition(t *Transition, branchID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.trail = append(i.trail, TakenTransition{
		TransitionID: t.ID,
		From:         t.From,
		To:           t.To,
		BranchID:     branchID,
		At:           time.Now(),
	})
}

// SetLastActor records the principal who completed the most recent task.
func (i *Instance) SetLastActor(actor string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastActor = actor
}

// markSuspended transitions the instance to Suspended with a reason.
// Already-ended instances are left untouched.
func (i *Instance) markSuspended(reason string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusRunning && i.status != StatusSuspended {
		return false
	}
	i.status = StatusSuspended
	i.suspendReason = reason
	return true
}

// markRunning transitions a suspended instance back to Running after
// administrative repair.
func (i *Instance) markRunning() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == StatusSuspended {
		i.status = StatusRunning
		i.suspendReason = ""
	}
}

// markDone transitions the instance to Done when the last branch ends.
// The invariant that activeSteps is non-empty while Running holds
// because Done is set in the same critical section that observes the
// empty active set.
func (i *Instance) markDone() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status != StatusRunning || len(i.active) != 0 {
		return false
	}
	i.status = StatusDone
	return true
}

// markCancelled transitions the instance to Cancelled and clears every
// active position. Irreversible.
func (i *Instance) markCancelled() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == StatusDone || i.status == StatusCancelled {
		return false
	}
	i.status = StatusCancelled
	i.active = make(map[string]*StepPosition)
	i.joins = make(map[string]*joinState)
	return true
}
