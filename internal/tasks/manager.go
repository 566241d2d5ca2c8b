// Package tasks owns the human task inventory: creation, completion,
// cancellation and overdue escalation. Cycle coordination reacts to task
// state but never mutates tasks directly.
package tasks

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"regline/internal/audit"
	"regline/internal/domain"
	"regline/internal/repo"
)

type Manager struct {
	DB    *sql.DB
	Repo  repo.Repo
	Audit audit.Writer
	Now   func() time.Time
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

type CreateInput struct {
	CycleID      string
	StepID       *string
	Type         string
	Title        string
	Description  string
	AssignedTo   *string
	AssignedRole string
	DueDate      string
	Actor        string
	ActorType    domain.ActorType
}

// Create registers a new pending task. AssignedRole and DueDate are
// mandatory; a task without them cannot be routed or escalated.
func (m Manager) Create(ctx context.Context, in CreateInput) (domain.HumanTask, error) {
	if in.CycleID == "" {
		return domain.HumanTask{}, &domain.ValidationError{Field: "cycle_id"}
	}
	if in.AssignedRole == "" {
		return domain.HumanTask{}, &domain.ValidationError{Field: "assigned_role"}
	}
	if in.DueDate == "" {
		return domain.HumanTask{}, &domain.ValidationError{Field: "due_date"}
	}
	if in.Type == "" {
		return domain.HumanTask{}, &domain.ValidationError{Field: "type"}
	}
	ts := m.now().UTC().Format(time.RFC3339)
	task := domain.HumanTask{
		ID:           uuid.NewString(),
		CycleID:      in.CycleID,
		StepID:       in.StepID,
		Type:         in.Type,
		Title:        in.Title,
		Description:  in.Description,
		AssignedTo:   in.AssignedTo,
		AssignedRole: in.AssignedRole,
		DueDate:      in.DueDate,
		Status:       domain.TaskPending,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if task.Title == "" {
		task.Title = task.Type
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HumanTask{}, err
	}
	defer tx.Rollback()

	if _, err := m.Repo.GetCycleTx(ctx, tx, in.CycleID); err != nil {
		return domain.HumanTask{}, err
	}
	if err := m.Repo.InsertTask(ctx, tx, task); err != nil {
		return domain.HumanTask{}, err
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType: "human_task",
		EntityID:   task.ID,
		Action:     "task.created",
		Actor:      in.Actor,
		ActorType:  in.ActorType,
		NewState:   audit.Snapshot(task),
	}); err != nil {
		return domain.HumanTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HumanTask{}, err
	}
	return task, nil
}

// Complete records a decision and closes the task. Completing an already
// completed task is a no-op returning the stored task, so retried decision
// submissions stay safe.
func (m Manager) Complete(ctx context.Context, taskID, actor string, decision domain.Decision) (domain.HumanTask, error) {
	if decision.Outcome == "" {
		return domain.HumanTask{}, &domain.ValidationError{Field: "outcome"}
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HumanTask{}, err
	}
	defer tx.Rollback()

	task, err := m.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.HumanTask{}, err
	}
	if task.Status == domain.TaskCompleted {
		return task, nil
	}
	if task.Status == domain.TaskCancelled {
		return domain.HumanTask{}, &domain.InvalidTransitionError{
			Entity: "human_task",
			From:   string(task.Status),
			To:     string(domain.TaskCompleted),
		}
	}

	prev := task
	ts := m.now().UTC().Format(time.RFC3339)
	task.Status = domain.TaskCompleted
	task.Decision = &domain.Decision{Outcome: decision.Outcome, Rationale: decision.Rationale}
	task.UpdatedAt = ts
	task.CompletedAt = &ts
	if task.AssignedTo == nil {
		task.AssignedTo = &actor
	}

	if err := m.Repo.UpdateTask(ctx, tx, task); err != nil {
		return domain.HumanTask{}, err
	}
	var ratPtr *string
	if decision.Rationale != "" {
		r := decision.Rationale
		ratPtr = &r
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "human_task",
		EntityID:      task.ID,
		Action:        "task.completed",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(task),
		Rationale:     ratPtr,
	}); err != nil {
		return domain.HumanTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HumanTask{}, err
	}
	return task, nil
}

// Cancel withdraws a task that no longer requires a decision.
func (m Manager) Cancel(ctx context.Context, taskID, actor, reason string) (domain.HumanTask, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.HumanTask{}, err
	}
	defer tx.Rollback()

	task, err := m.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.HumanTask{}, err
	}
	if task.Status == domain.TaskCancelled {
		return task, nil
	}
	if task.Status == domain.TaskCompleted {
		return domain.HumanTask{}, &domain.InvalidTransitionError{
			Entity: "human_task",
			From:   string(task.Status),
			To:     string(domain.TaskCancelled),
		}
	}

	prev := task
	ts := m.now().UTC().Format(time.RFC3339)
	task.Status = domain.TaskCancelled
	task.UpdatedAt = ts

	if err := m.Repo.UpdateTask(ctx, tx, task); err != nil {
		return domain.HumanTask{}, err
	}
	var ratPtr *string
	if reason != "" {
		ratPtr = &reason
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "human_task",
		EntityID:      task.ID,
		Action:        "task.cancelled",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(task),
		Rationale:     ratPtr,
	}); err != nil {
		return domain.HumanTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.HumanTask{}, err
	}
	return task, nil
}

// EscalateOverdue bumps every open task whose due date has passed. Each hit
// raises the escalation level by one and, when a fallback role is configured
// for the current assigned role, reroutes the task to that role.
func (m Manager) EscalateOverdue(ctx context.Context, fallbacks map[string]string) ([]domain.HumanTask, error) {
	cutoff := m.now().UTC().Format(time.RFC3339)
	open, err := m.Repo.ListTasks(ctx, repo.TaskFilters{DueBefore: cutoff})
	if err != nil {
		return nil, err
	}

	var escalated []domain.HumanTask
	for _, task := range open {
		if domain.IsTaskTerminal(task.Status) {
			continue
		}
		tx, err := m.DB.BeginTx(ctx, nil)
		if err != nil {
			return escalated, err
		}
		prev := task
		task.Status = domain.TaskEscalated
		task.EscalationLevel++
		if next, ok := fallbacks[task.AssignedRole]; ok && next != "" {
			task.AssignedRole = next
		}
		task.UpdatedAt = m.now().UTC().Format(time.RFC3339)

		if err := m.Repo.UpdateTask(ctx, tx, task); err != nil {
			tx.Rollback()
			return escalated, err
		}
		if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
			EntityType:    "human_task",
			EntityID:      task.ID,
			Action:        "task.escalated",
			Actor:         "scheduler",
			ActorType:     domain.ActorSystem,
			PreviousState: audit.Snapshot(prev),
			NewState:      audit.Snapshot(task),
		}); err != nil {
			tx.Rollback()
			return escalated, err
		}
		if err := tx.Commit(); err != nil {
			return escalated, err
		}
		escalated = append(escalated, task)
	}
	return escalated, nil
}

// PendingForCycle lists the open tasks of a cycle, oldest first.
func (m Manager) PendingForCycle(ctx context.Context, cycleID string) ([]domain.HumanTask, error) {
	all, err := m.Repo.ListTasks(ctx, repo.TaskFilters{CycleID: cycleID})
	if err != nil {
		return nil, err
	}
	var open []domain.HumanTask
	for _, t := range all {
		if domain.BlocksResume(t.Status) {
			open = append(open, t)
		}
	}
	return open, nil
}
