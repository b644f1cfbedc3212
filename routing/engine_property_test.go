package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

func propertyEngine(defs ...*Definition) *Engine {
	reg := mapRegistry{}
	for _, d := range defs {
		reg[d.ID()] = d
	}
	return NewEngine(reg, LiteralResolver{}, zap.NewNop())
}

// A linear chain of automatic steps always runs to completion in a
// single Launch call, with exactly one trail entry per hop.
func TestProperty_LinearChainCompletes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("linear automatic chain of any length completes", prop.ForAll(
		func(hops int) bool {
			b := NewDefinitionBuilder("chain")
			for i := 0; i < hops; i++ {
				b.AddStep(fmt.Sprintf("s%d", i), StepKindAutomatic).Done()
			}
			b.AddStep("end", StepKindTerminal).Done()
			for i := 0; i < hops-1; i++ {
				b.AddTransition(fmt.Sprintf("s%d", i), fmt.Sprintf("s%d", i+1)).Done()
			}
			b.AddTransition(fmt.Sprintf("s%d", hops-1), "end").Done()
			def, err := b.SetStart("s0").Build()
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			e := propertyEngine(def)
			inst, err := e.Launch(context.Background(), "chain", "doc", nil)
			if err != nil {
				t.Logf("launch failed: %v", err)
				return false
			}
			if inst.Status() != StatusDone {
				t.Logf("status %s, want done", inst.Status())
				return false
			}
			if len(inst.Trail()) != hops {
				t.Logf("trail length %d, want %d", len(inst.Trail()), hops)
				return false
			}
			return inst.IsTerminal()
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}

// Guard routing is exhaustive and deterministic: whichever lane value
// the instance carries, the engine lands on exactly that lane's task;
// unmatched values fall through to the default lane.
func TestProperty_GuardRoutingSelectsMatchingLane(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	lanes := []string{"red", "green", "blue"}

	properties.Property("instance lands on the lane matching its variable", prop.ForAll(
		func(value string) bool {
			b := NewDefinitionBuilder("lanes").
				AddStep("route", StepKindAutomatic).Done().
				AddStep("fallback", StepKindTerminal).Done()
			for _, lane := range lanes {
				b.AddStep("lane-"+lane, StepKindTerminal).Done()
			}
			for _, lane := range lanes {
				b.AddTransition("route", "lane-"+lane).
					WithGuard(Lookup("color"), OperatorEqual, lane).
					Done()
			}
			b.AddTransition("route", "fallback").Done()
			def, err := b.SetStart("route").Build()
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			e := propertyEngine(def)
			inst, err := e.Launch(context.Background(), "lanes", "doc", map[string]string{"color": value})
			if err != nil {
				t.Logf("launch failed: %v", err)
				return false
			}

			trail := inst.Trail()
			if len(trail) != 1 {
				t.Logf("trail length %d, want 1", len(trail))
				return false
			}
			want := "fallback"
			for _, lane := range lanes {
				if value == lane {
					want = "lane-" + lane
				}
			}
			return trail[0].To == want && inst.Status() == StatusDone
		},
		gen.OneConstOf("red", "green", "blue", "magenta", ""),
	))

	properties.TestingRun(t)
}

// Fork/join arbitration: whatever the branch count, every branch is
// spawned, the join fires exactly once, and the instance finishes.
func TestProperty_ForkJoinAlwaysConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("all branches converge through the join", prop.ForAll(
		func(branches int) bool {
			b := NewDefinitionBuilder("fan").
				AddStep("split", StepKindFork).Done().
				AddStep("merge", StepKindJoin).WithFork("split").Done().
				AddStep("end", StepKindTerminal).Done()
			for i := 0; i < branches; i++ {
				id := fmt.Sprintf("branch%d", i)
				b.AddStep(id, StepKindAutomatic).Done()
				b.AddTransition("split", id).Done()
				b.AddTransition(id, "merge").Done()
			}
			b.AddTransition("merge", "end").Done()
			def, err := b.SetStart("split").Build()
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			e := propertyEngine(def)
			inst, err := e.Launch(context.Background(), "fan", "doc", nil)
			if err != nil {
				t.Logf("launch failed: %v", err)
				return false
			}
			if inst.Status() != StatusDone {
				t.Logf("status %s, want done", inst.Status())
				return false
			}

			// split->branch and branch->merge per branch, plus merge->end.
			if got, want := len(inst.Trail()), 2*branches+1; got != want {
				t.Logf("trail length %d, want %d", got, want)
				return false
			}
			return inst.IsTerminal()
		},
		gen.IntRange(2, 16),
	))

	properties.TestingRun(t)
}

// The active set of a launched instance is never empty before the
// instance reaches a final state: every observation made while tasks are
// pending sees at least one position.
func TestProperty_ActiveSetNonEmptyWhileRunning(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("running instances always hold an active position", prop.ForAll(
		func(taskCount int) bool {
			b := NewDefinitionBuilder("pipeline")
			for i := 0; i < taskCount; i++ {
				b.AddStep(fmt.Sprintf("t%d", i), StepKindTask).
					WithActors(Literal("worker")).
					Done()
			}
			b.AddStep("end", StepKindTerminal).Done()
			for i := 0; i < taskCount-1; i++ {
				b.AddTransition(fmt.Sprintf("t%d", i), fmt.Sprintf("t%d", i+1)).
					WithOutcome("next").Done()
			}
			b.AddTransition(fmt.Sprintf("t%d", taskCount-1), "end").
				WithOutcome("next").Done()
			def, err := b.SetStart("t0").Build()
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			e := propertyEngine(def)
			inst, err := e.Launch(context.Background(), "pipeline", "doc", nil)
			if err != nil {
				t.Logf("launch failed: %v", err)
				return false
			}

			for inst.Status() == StatusRunning {
				if len(inst.ActivePositions()) == 0 {
					t.Log("running instance with empty active set")
					return false
				}
				tasks := e.ListTasks("worker", TaskFilter{InstanceID: inst.ID, Live: true})
				if len(tasks) != 1 {
					t.Logf("live task count %d, want 1", len(tasks))
					return false
				}
				if _, err := e.CompleteTask(context.Background(), tasks[0].ID, "next", nil, "worker"); err != nil {
					t.Logf("complete failed: %v", err)
					return false
				}
			}
			return inst.Status() == StatusDone
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
