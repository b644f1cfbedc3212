package routing

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefinitionBuilder provides a fluent API for constructing workflow
// definitions.
type DefinitionBuilder struct {
	def    *Definition
	logger *zap.Logger
	seq    int
}

// NewDefinitionBuilder creates a builder for a definition with the given
// id.
func NewDefinitionBuilder(id string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def:    newDefinition(id),
		logger: zap.NewNop(),
	}
}

// WithVersion sets the definition version.
func (b *DefinitionBuilder) WithVersion(v int) *DefinitionBuilder {
	b.def.version = v
	return b
}

// WithLogger sets a custom logger.
func (b *DefinitionBuilder) WithLogger(logger *zap.Logger) *DefinitionBuilder {
	b.logger = logger.With(zap.String("component", "definition_builder"))
	return b
}

// AddStep adds a step and returns a StepBuilder for configuration.
func (b *DefinitionBuilder) AddStep(id string, kind StepKind) *StepBuilder {
	step := &Step{ID: id, Kind: kind}
	if _, exists := b.def.steps[id]; !exists {
		b.def.order = append(b.def.order, id)
	}
	b.def.steps[id] = step
	return &StepBuilder{step: step, parent: b}
}

// AddTransition adds a directed edge between two steps and returns a
// TransitionBuilder for configuration. Declaration order is significant:
// guarded transitions are evaluated in the order they were added.
func (b *DefinitionBuilder) AddTransition(from, to string) *TransitionBuilder {
	b.seq++
	t := &Transition{
		ID:   fmt.Sprintf("%s-%s-%d", from, to, b.seq),
		From: from,
		To:   to,
	}
	b.def.outgoing[from] = append(b.def.outgoing[from], t)
	return &TransitionBuilder{transition: t, parent: b}
}

// SetStart sets the start step of the definition.
func (b *DefinitionBuilder) SetStart(stepID string) *DefinitionBuilder {
	b.def.start = stepID
	return b
}

// Build validates the definition and returns it. The returned definition
// must not be mutated.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	b.logger.Info("workflow definition built",
		zap.String("definition", b.def.id),
		zap.Int("steps", len(b.def.steps)),
		zap.String("start", b.def.start),
	)
	return b.def, nil
}

// StepBuilder provides a fluent API for configuring individual steps.
type StepBuilder struct {
	step   *Step
	parent *DefinitionBuilder
}

// WithLabel sets the human-readable step label.
func (sb *StepBuilder) WithLabel(label string) *StepBuilder {
	sb.step.Label = label
	return sb
}

// WithActors sets the actors expression for a task step.
func (sb *StepBuilder) WithActors(expr Expression) *StepBuilder {
	sb.step.Actors = expr
	return sb
}

// WithAvailability gates whether a task step is currently offerable.
func (sb *StepBuilder) WithAvailability(subject Expression, op Operator, value string) *StepBuilder {
	sb.step.Availability = &Guard{Subject: subject, Op: op, Value: value}
	return sb
}

// WithDueIn sets the task due-date offset from task creation.
func (sb *StepBuilder) WithDueIn(d time.Duration) *StepBuilder {
	sb.step.DueIn = d
	return sb
}

// WithFork references the matching fork step of a join step.
func (sb *StepBuilder) WithFork(forkID string) *StepBuilder {
	sb.step.ForkID = forkID
	return sb
}

// Done completes step configuration and returns to the
// DefinitionBuilder.
func (sb *StepBuilder) Done() *DefinitionBuilder {
	return sb.parent
}

// TransitionBuilder provides a fluent API for configuring individual
// transitions.
type TransitionBuilder struct {
	transition *Transition
	parent     *DefinitionBuilder
}

// WithGuard gates the transition with a condition.
func (tb *TransitionBuilder) WithGuard(subject Expression, op Operator, value string) *TransitionBuilder {
	tb.transition.Guard = &Guard{Subject: subject, Op: op, Value: value}
	return tb
}

// WithOutcome tags the transition for task-step outcome resolution.
func (tb *TransitionBuilder) WithOutcome(outcome string) *TransitionBuilder {
	tb.transition.Outcome = outcome
	return tb
}

// WithChain names an engine-registered hook run after the transition is
// taken.
func (tb *TransitionBuilder) WithChain(chain string) *TransitionBuilder {
	tb.transition.Chain = chain
	return tb
}

// Done completes transition configuration and returns to the
// DefinitionBuilder.
func (tb *TransitionBuilder) Done() *DefinitionBuilder {
	return tb.parent
}
