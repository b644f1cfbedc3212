package routing

import (
	"time"

	"github.com/nuxeo/docroute/types"
)

// StepKind defines the kind of a workflow step.
type StepKind string

const (
	// StepKindAutomatic advances immediately via guarded transitions
	StepKindAutomatic StepKind = "automatic"
	// StepKindTask suspends execution until a human completes a task
	StepKindTask StepKind = "task"
	// StepKindFork splits execution into one branch per outgoing transition
	StepKindFork StepKind = "fork"
	// StepKindJoin absorbs fork branches until all siblings arrive
	StepKindJoin StepKind = "join"
	// StepKindTerminal ends the branch reaching it
	StepKindTerminal StepKind = "terminal"
)

// Guard is a boolean condition gating a transition or a task step's
// availability: subject expression, operator, comparison value.
type Guard struct {
	Subject Expression
	Op      Operator
	Value   string
}

// Eval evaluates the guard against ctx.
func (g *Guard) Eval(ctx Context) (bool, error) {
	subject, err := g.Subject.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	return EvaluateCondition(subject, g.Op, g.Value)
}

// Transition is a directed, optionally guarded edge between two steps.
type Transition struct {
	// ID is unique within the definition
	ID string
	// From and To are step ids
	From string
	To   string
	// Guard gates the transition; nil marks the default edge, which is
	// evaluated last regardless of declared order
	Guard *Guard
	// Outcome tags the transition for task-step resolution
	Outcome string
	// Chain names an engine-registered hook run after the transition is
	// taken
	Chain string
}

// Step is a node in a workflow definition.
type Step struct {
	// ID is unique within the definition
	ID string
	// Kind determines how the engine processes the step
	Kind StepKind
	// Label is the human-readable name shown on tasks
	Label string
	// Actors resolves to the principals a task step is assigned to
	Actors Expression
	// Availability gates whether a task step is currently offerable;
	// when false the step is skipped through its default transition
	Availability *Guard
	// DueIn is the task due-date offset from task creation
	DueIn time.Duration
	// ForkID references the matching fork for join steps
	ForkID string
}

// Definition is an immutable workflow definition: steps plus guarded
// transitions addressed by stable string ids. Cycles are permitted;
// workflows routinely loop back to earlier steps, so the structure is an
// adjacency list, never native object references.
type Definition struct {
	id      string
	version int

	steps map[string]*Step
	order []string

	// outgoing transitions per step, in declaration order
	outgoing map[string][]*Transition

	start string
}

// newDefinition creates an empty definition; the builder populates it.
func newDefinition(id string) *Definition {
	return &Definition{
		id:       id,
		version:  1,
		steps:    make(map[string]*Step),
		outgoing: make(map[string][]*Transition),
	}
}

// ID returns the definition id.
func (d *Definition) ID() string { return d.id }

// Version returns the definition version.
func (d *Definition) Version() int { return d.version }

// Start returns the id of the start step.
func (d *Definition) Start() string { return d.start }

// Step retrieves a step by id.
func (d *Definition) Step(id string) (*Step, bool) {
	s, ok := d.steps[id]
	return s, ok
}

// StepIDs returns all step ids in declaration order.
func (d *Definition) StepIDs() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Outgoing returns the outgoing transitions of a step in declaration
// order.
func (d *Definition) Outgoing(stepID string) []*Transition {
	return d.outgoing[stepID]
}

// ResolveOutgoing picks the outgoing transition of an automatic step:
// guarded transitions are evaluated in declaration order and the first
// one whose guard holds wins; if none match, the unguarded default edge
// is taken. Returns NO_APPLICABLE_TRANSITION when neither exists — this
// is fatal to the instance and escalated to an operator, never retried.
func (d *Definition) ResolveOutgoing(stepID string, ctx Context) (*Transition, error) {
	var def *Transition
	for _, t := range d.outgoing[stepID] {
		if t.Guard == nil {
			def = t
			continue
		}
		ok, err := t.Guard.Eval(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	if def != nil {
		return def, nil
	}
	return nil, types.NewErrorf(types.ErrNoApplicableTransition,
		"no transition applicable leaving step %q", stepID).WithStep(stepID)
}

// ResolveOutcome picks the outgoing transition of a task step by the
// symbolic outcome recorded at task completion.
func (d *Definition) ResolveOutcome(stepID, outcome string) (*Transition, error) {
	for _, t := range d.outgoing[stepID] {
		if t.Outcome == outcome {
			return t, nil
		}
	}
	return nil, types.NewErrorf(types.ErrUnknownOutcome,
		"no transition tagged %q leaving step %q", outcome, stepID).WithStep(stepID)
}

// DefaultTransition returns the unguarded default edge of a step, if
// any.
func (d *Definition) DefaultTransition(stepID string) (*Transition, bool) {
	for _, t := range d.outgoing[stepID] {
		if t.Guard == nil && t.Outcome == "" {
			return t, true
		}
	}
	return nil, false
}

// ForkTargets returns all outgoing transitions of a fork step; the
// engine spawns one branch per edge.
func (d *Definition) ForkTargets(stepID string) []*Transition {
	return d.outgoing[stepID]
}

// JoinFor returns the join step rejoining the given fork, if declared.
func (d *Definition) JoinFor(forkID string) (*Step, bool) {
	for _, id := range d.order {
		s := d.steps[id]
		if s.Kind == StepKindJoin && s.ForkID == forkID {
			return s, true
		}
	}
	return nil, false
}

// Validate checks the structural invariants of the definition. It is
// invoked by the builder and by deserialization; a definition that
// passed validation is never mutated afterwards.
func (d *Definition) Validate() error {
	if len(d.steps) == 0 {
		return types.NewError(types.ErrInvalidDefinition, "definition has no steps")
	}
	if d.start == "" {
		return types.NewError(types.ErrInvalidDefinition, "start step not set")
	}
	if _, ok := d.steps[d.start]; !ok {
		return types.NewErrorf(types.ErrInvalidDefinition, "start step %q does not exist", d.start)
	}

	for from, trans := range d.outgoing {
		if _, ok := d.steps[from]; !ok {
			return types.NewErrorf(types.ErrInvalidDefinition,
				"transition references non-existent source step %q", from)
		}
		defaults := 0
		outcomes := make(map[string]bool)
		for _, t := range trans {
			if _, ok := d.steps[t.To]; !ok {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"transition %q references non-existent target step %q", t.ID, t.To)
			}
			if t.Guard == nil && t.Outcome == "" {
				defaults++
			}
			if t.Guard != nil && !t.Guard.Op.Valid() {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"transition %q guard uses unknown operator %q", t.ID, string(t.Guard.Op))
			}
			if t.Outcome != "" {
				if outcomes[t.Outcome] {
					return types.NewErrorf(types.ErrInvalidDefinition,
						"step %q declares outcome %q twice", from, t.Outcome)
				}
				outcomes[t.Outcome] = true
			}
		}
		// A fork takes every edge, so multiple unguarded transitions are
		// its normal shape; everywhere else at most one default is legal.
		if defaults > 1 && d.steps[from].Kind != StepKindFork {
			return types.NewErrorf(types.ErrInvalidDefinition,
				"step %q declares more than one default transition", from)
		}
	}

	for _, id := range d.order {
		s := d.steps[id]
		out := d.outgoing[id]
		switch s.Kind {
		case StepKindTerminal:
			if len(out) > 0 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"terminal step %q must not have outgoing transitions", id)
			}
		case StepKindFork:
			if len(out) < 2 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"fork step %q needs at least two outgoing transitions", id)
			}
		case StepKindJoin:
			if s.ForkID == "" {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"join step %q does not reference its fork", id)
			}
			fork, ok := d.steps[s.ForkID]
			if !ok || fork.Kind != StepKindFork {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"join step %q references %q which is not a fork step", id, s.ForkID)
			}
			if len(out) != 1 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"join step %q needs exactly one outgoing transition", id)
			}
		case StepKindTask:
			if len(out) == 0 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"task step %q has no outgoing transitions", id)
			}
			if s.Actors == nil {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"task step %q has no actors expression", id)
			}
			tagged := 0
			for _, t := range d.outgoing[id] {
				if t.Outcome != "" {
					tagged++
				}
			}
			if tagged == 0 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"task step %q has no outcome-tagged transitions", id)
			}
		case StepKindAutomatic:
			if len(out) == 0 {
				return types.NewErrorf(types.ErrInvalidDefinition,
					"automatic step %q has no outgoing transitions", id)
			}
		default:
			return types.NewErrorf(types.ErrInvalidDefinition, "unknown step kind %q", string(s.Kind))
		}
	}
	return nil
}
