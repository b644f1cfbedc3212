package store

import (
	"encoding/json"
	"time"

	"github.com/nuxeo/docroute/routing"
	"github.com/nuxeo/docroute/types"
)

// ArchivedInstance is the archive record of an ended workflow instance.
// Structured fields (variables, trail) are stored as JSON text so the
// schema works unchanged across sqlite, postgres and mysql.
type ArchivedInstance struct {
	ID            string `gorm:"primaryKey;size:64"`
	DefinitionID  string `gorm:"size:128;index"`
	DocumentID    string `gorm:"size:128;index"`
	Status        string `gorm:"size:16;index"`
	SuspendReason string
	LastActor     string `gorm:"size:128"`
	Vars          string `gorm:"type:text"`
	Trail         string `gorm:"type:text"`
	LaunchedAt    time.Time
	ArchivedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName implements the gorm table naming convention.
func (ArchivedInstance) TableName() string { return "archived_instances" }

// ArchivedTask is the archive record of an ended or cancelled task.
type ArchivedTask struct {
	ID              string `gorm:"primaryKey;size:64"`
	InstanceID      string `gorm:"size:64;index"`
	StepID          string `gorm:"size:128"`
	Label           string
	Actors          string `gorm:"type:text"`
	DelegatedActors string `gorm:"type:text"`
	Status          string `gorm:"size:16"`
	Outcome         string `gorm:"size:128"`
	CompletedBy     string `gorm:"size:128"`
	Data            string `gorm:"type:text"`
	Comments        string `gorm:"type:text"`
	DueDate         time.Time
	CreatedAt       time.Time
	EndedAt         time.Time
	ArchivedAt      time.Time `gorm:"autoCreateTime"`
}

// TableName implements the gorm table naming convention.
func (ArchivedTask) TableName() string { return "archived_tasks" }

func instanceRecord(inst *routing.Instance) (*ArchivedInstance, error) {
	vars, err := json.Marshal(inst.Vars)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "instance variables not serializable").WithCause(err)
	}
	trail, err := json.Marshal(inst.Trail())
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "instance trail not serializable").WithCause(err)
	}
	return &ArchivedInstance{
		ID:            inst.ID,
		DefinitionID:  inst.DefinitionID,
		DocumentID:    inst.DocumentID,
		Status:        string(inst.Status()),
		SuspendReason: inst.SuspendReason(),
		LastActor:     inst.LastActor(),
		Vars:          string(vars),
		Trail:         string(trail),
		LaunchedAt:    inst.CreatedAt,
	}, nil
}

func taskRecord(task *routing.Task) (*ArchivedTask, error) {
	actors, err := json.Marshal(task.Actors)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "task actors not serializable").WithCause(err)
	}
	delegated, err := json.Marshal(task.DelegatedActors)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "task delegated actors not serializable").WithCause(err)
	}
	data, err := json.Marshal(task.Data)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "task data not serializable").WithCause(err)
	}
	comments, err := json.Marshal(task.Comments)
	if err != nil {
		return nil, types.NewError(types.ErrArchiveFailure, "task comments not serializable").WithCause(err)
	}
	return &ArchivedTask{
		ID:              task.ID,
		InstanceID:      task.InstanceID,
		StepID:          task.StepID,
		Label:           task.Label,
		Actors:          string(actors),
		DelegatedActors: string(delegated),
		Status:          string(task.Status),
		Outcome:         task.Outcome,
		CompletedBy:     task.CompletedBy,
		Data:            string(data),
		Comments:        string(comments),
		DueDate:         task.DueDate,
		CreatedAt:       task.CreatedAt,
		EndedAt:         task.EndedAt,
	}, nil
}

// Variables decodes the archived variable map.
func (a *ArchivedInstance) Variables() (map[string]string, error) {
	var out map[string]string
	if a.Vars == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(a.Vars), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TakenTransitions decodes the archived trail.
func (a *ArchivedInstance) TakenTransitions() ([]routing.TakenTransition, error) {
	var out []routing.TakenTransition
	if a.Trail == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(a.Trail), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActorList decodes the archived actors set.
func (a *ArchivedTask) ActorList() ([]string, error) {
	var out []string
	if a.Actors == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(a.Actors), &out); err != nil {
		return nil, err
	}
	return out, nil
}
