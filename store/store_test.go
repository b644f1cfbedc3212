package store

import (
	"context"
	"testing"
	"time"

	"github.com/nuxeo/docroute/routing"
	"github.com/nuxeo/docroute/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Driver: DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDefinition(t *testing.T) *routing.Definition {
	t.Helper()
	def, err := routing.NewDefinitionBuilder("review").
		AddStep("validate", routing.StepKindTask).
		WithActors(routing.Literal("alice")).
		Done().
		AddStep("end", routing.StepKindTerminal).Done().
		AddTransition("validate", "end").WithOutcome("approve").Done().
		SetStart("validate").
		Build()
	require.NoError(t, err)
	return def
}

func sampleInstance(t *testing.T) *routing.Instance {
	t.Helper()
	inst := routing.NewInstance(sampleDefinition(t), "doc-42", map[string]string{"priority": "urgent"})
	inst.RecordTransition(&routing.Transition{
		ID: "validate-end-1", From: "validate", To: "end",
	}, "root")
	inst.SetLastActor("alice")
	return inst
}

func TestStore_ArchiveAndGetInstance(t *testing.T) {
	s := openTestStore(t)
	inst := sampleInstance(t)

	require.NoError(t, s.ArchiveInstance(context.Background(), inst))

	rec, err := s.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "review", rec.DefinitionID)
	assert.Equal(t, "doc-42", rec.DocumentID)
	assert.Equal(t, "running", rec.Status)
	assert.Equal(t, "alice", rec.LastActor)

	vars, err := rec.Variables()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"priority": "urgent"}, vars)

	trail, err := rec.TakenTransitions()
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "validate-end-1", trail[0].TransitionID)
}

func TestStore_ArchiveInstance_Idempotent(t *testing.T) {
	s := openTestStore(t)
	inst := sampleInstance(t)

	require.NoError(t, s.ArchiveInstance(context.Background(), inst))

	// A retry after a partial failure upserts the same row.
	inst.SetLastActor("bob")
	require.NoError(t, s.ArchiveInstance(context.Background(), inst))

	all, err := s.ListInstances(context.Background(), InstanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "bob", all[0].LastActor)
}

func TestStore_GetInstance_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetInstance(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, types.ErrInstanceNotFound, types.GetErrorCode(err))
}

func TestStore_ListInstances_Filters(t *testing.T) {
	s := openTestStore(t)

	first := sampleInstance(t)
	require.NoError(t, s.ArchiveInstance(context.Background(), first))
	second := routing.NewInstance(sampleDefinition(t), "doc-43", nil)
	require.NoError(t, s.ArchiveInstance(context.Background(), second))

	byDoc, err := s.ListInstances(context.Background(), InstanceFilter{DocumentID: "doc-42"})
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, first.ID, byDoc[0].ID)

	byDef, err := s.ListInstances(context.Background(), InstanceFilter{DefinitionID: "review"})
	require.NoError(t, err)
	assert.Len(t, byDef, 2)

	limited, err := s.ListInstances(context.Background(), InstanceFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListInstances(context.Background(), InstanceFilter{Status: "cancelled"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ArchiveAndListTasks(t *testing.T) {
	s := openTestStore(t)
	inst := sampleInstance(t)
	now := time.Now()

	first := &routing.Task{
		ID:          "task-1",
		InstanceID:  inst.ID,
		StepID:      "validate",
		Label:       "Validate document",
		Actors:      []string{"alice"},
		Status:      routing.TaskEnded,
		Outcome:     "approve",
		CompletedBy: "alice",
		Data:        map[string]string{"score": "9"},
		Comments: []routing.Comment{
			{Author: "alice", Text: "looks fine", At: now},
		},
		CreatedAt: now.Add(-time.Hour),
		EndedAt:   now,
	}
	second := &routing.Task{
		ID:         "task-2",
		InstanceID: inst.ID,
		StepID:     "validate",
		Actors:     []string{"bob"},
		Status:     routing.TaskCancelled,
		CreatedAt:  now,
	}
	require.NoError(t, s.ArchiveTask(context.Background(), first))
	require.NoError(t, s.ArchiveTask(context.Background(), second))

	tasks, err := s.TasksForInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-1", tasks[0].ID, "creation order")
	assert.Equal(t, "approve", tasks[0].Outcome)
	assert.Equal(t, "cancelled", tasks[1].Status)

	actors, err := tasks[0].ActorList()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, actors)

	// Re-archiving a task upserts as well.
	require.NoError(t, s.ArchiveTask(context.Background(), first))
	tasks, err = s.TasksForInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown archive store driver")
}

func TestNewWithDB_NilDB(t *testing.T) {
	_, err := NewWithDB(nil, zap.NewNop())
	require.Error(t, err)
}
