package routing

import (
	"sync"
	"testing"

	"github.com/nuxeo/docroute/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstance(t *testing.T) *Instance {
	t.Helper()
	def := reviewDefinition(t)
	return NewInstance(def, "doc-1", map[string]string{"priority": "urgent"})
}

func TestNewInstance_SeededAtStart(t *testing.T) {
	inst := newTestInstance(t)

	assert.Equal(t, StatusRunning, inst.Status())
	assert.Equal(t, "review", inst.DefinitionID)
	assert.Equal(t, "doc-1", inst.DocumentID)

	active := inst.ActivePositions()
	require.Len(t, active, 1)
	assert.Equal(t, "dispatch", active[0].StepID)
	assert.Equal(t, "root", active[0].BranchID)
	assert.False(t, inst.IsTerminal())
}

func TestInstance_Advance(t *testing.T) {
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	next, err := inst.Advance(seed.ID, []string{"fast-track"})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "fast-track", next[0].StepID)
	assert.Equal(t, seed.BranchID, next[0].BranchID, "single target inherits the branch")

	// The source position is gone; advancing it again fails.
	_, err = inst.Advance(seed.ID, []string{"end"})
	require.Error(t, err)
	assert.Equal(t, types.ErrPositionNotFound, types.GetErrorCode(err))
}

func TestInstance_AdvanceFork_FreshBranches(t *testing.T) {
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	next, err := inst.Advance(seed.ID, []string{"fast-track", "full-review"})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.NotEqual(t, next[0].BranchID, next[1].BranchID)
	for _, p := range next {
		assert.NotEqual(t, seed.BranchID, p.BranchID)
	}
	assert.Len(t, inst.ActivePositions(), 2)
}

func TestInstance_BindTaskAndLookup(t *testing.T) {
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	require.True(t, inst.BindTask(seed.ID, "task-9"))

	pos, ok := inst.PositionForTask("task-9")
	require.True(t, ok)
	assert.Equal(t, seed.ID, pos.ID)

	_, ok = inst.PositionForTask("task-ghost")
	assert.False(t, ok)

	assert.False(t, inst.BindTask("ghost-pos", "task-9"))
}

func TestTryJoin_CountsArrivals(t *testing.T) {
	inst := newTestInstance(t)
	inst.RegisterFork("split", "merge", "root", 3)

	d, _ := inst.TryJoin("merge", "split")
	assert.Equal(t, JoinWaiting, d)
	d, _ = inst.TryJoin("merge", "split")
	assert.Equal(t, JoinWaiting, d)
	d, branch := inst.TryJoin("merge", "split")
	assert.Equal(t, JoinReady, d)
	assert.Equal(t, "root", branch)
}

func TestTryJoin_UnregisteredForkFiresImmediately(t *testing.T) {
	inst := newTestInstance(t)
	d, branch := inst.TryJoin("merge", "split")
	assert.Equal(t, JoinReady, d)
	assert.Equal(t, "root", branch)
}

// A loop through the fork re-arms the counter for the next generation.
func TestTryJoin_ReArmedAfterFiring(t *testing.T) {
	inst := newTestInstance(t)

	inst.RegisterFork("split", "merge", "root", 2)
	d, _ := inst.TryJoin("merge", "split")
	assert.Equal(t, JoinWaiting, d)
	d, _ = inst.TryJoin("merge", "split")
	assert.Equal(t, JoinReady, d)

	inst.RegisterFork("split", "merge", "root", 2)
	d, _ = inst.TryJoin("merge", "split")
	assert.Equal(t, JoinWaiting, d)
	d, _ = inst.TryJoin("merge", "split")
	assert.Equal(t, JoinReady, d)
}

// Concurrent arrivals must produce exactly one Ready per generation.
func TestTryJoin_ConcurrentArrivals(t *testing.T) {
	const branches = 64
	inst := newTestInstance(t)
	inst.RegisterFork("split", "merge", "root", branches)

	var wg sync.WaitGroup
	results := make(chan JoinDecision, branches)
	for i := 0; i < branches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := inst.TryJoin("merge", "split")
			results <- d
		}()
	}
	wg.Wait()
	close(results)

	ready := 0
	for d := range results {
		if d == JoinReady {
			ready++
		}
	}
	assert.Equal(t, 1, ready, "exactly one branch observes Ready")
}

func TestReplacePosition(t *testing.T) {
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	next, err := inst.ReplacePosition(seed.ID, "full-review", "root")
	require.NoError(t, err)
	assert.Equal(t, "full-review", next.StepID)
	assert.Equal(t, "root", next.BranchID)
	require.Len(t, inst.ActivePositions(), 1)

	_, err = inst.ReplacePosition(seed.ID, "end", "root")
	require.Error(t, err)
	assert.Equal(t, types.ErrPositionNotFound, types.GetErrorCode(err))
}

func TestCompleteTerminal_LastBranchEndsInstance(t *testing.T) {
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	positions, err := inst.Advance(seed.ID, []string{"fast-track", "full-review"})
	require.NoError(t, err)

	assert.False(t, inst.CompleteTerminal(positions[0].ID))
	assert.Equal(t, StatusRunning, inst.Status())

	assert.True(t, inst.CompleteTerminal(positions[1].ID))
	assert.Equal(t, StatusDone, inst.Status())
	assert.True(t, inst.IsTerminal())
}

// Concurrent terminal completions: only the closer of the last branch
// observes true, however the finishes interleave.
func TestCompleteTerminal_ConcurrentBranches(t *testing.T) {
	const branches = 32
	inst := newTestInstance(t)
	seed := inst.ActivePositions()[0]

	targets := make([]string, branches)
	for i := range targets {
		targets[i] = "end"
	}
	positions, err := inst.Advance(seed.ID, targets)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, branches)
	for _, p := range positions {
		wg.Add(1)
		go func(posID string) {
			defer wg.Done()
			results <- inst.CompleteTerminal(posID)
		}(p.ID)
	}
	wg.Wait()
	close(results)

	done := 0
	for r := range results {
		if r {
			done++
		}
	}
	assert.Equal(t, 1, done)
	assert.Equal(t, StatusDone, inst.Status())
}

func TestInstance_SuspendAndResume(t *testing.T) {
	inst := newTestInstance(t)

	require.True(t, inst.markSuspended("no transition applicable"))
	assert.Equal(t, StatusSuspended, inst.Status())
	assert.Equal(t, "no transition applicable", inst.SuspendReason())

	inst.markRunning()
	assert.Equal(t, StatusRunning, inst.Status())
	assert.Empty(t, inst.SuspendReason())
}

func TestInstance_CancelIrreversible(t *testing.T) {
	inst := newTestInstance(t)

	require.True(t, inst.markCancelled())
	assert.Equal(t, StatusCancelled, inst.Status())
	assert.Empty(t, inst.ActivePositions())

	assert.False(t, inst.markCancelled())
	assert.False(t, inst.markSuspended("late error"))
	inst.markRunning()
	assert.Equal(t, StatusCancelled, inst.Status())
}

func TestInstance_TrailAndLastActor(t *testing.T) {
	inst := newTestInstance(t)

	inst.RecordTransition(&Transition{ID: "t1", From: "dispatch", To: "fast-track"}, "root")
	inst.RecordTransition(&Transition{ID: "t2", From: "fast-track", To: "end"}, "root")
	inst.SetLastActor("alice")

	trail := inst.Trail()
	require.Len(t, trail, 2)
	assert.Equal(t, "t1", trail[0].TransitionID)
	assert.Equal(t, "t2", trail[1].TransitionID)
	assert.Equal(t, "alice", inst.LastActor())
}
