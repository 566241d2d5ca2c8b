package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"regline/internal/domain"
)

const taskColumns = `id,cycle_id,step_id,type,title,description,assigned_to,assigned_role,due_date,status,decision_outcome,decision_rationale,escalation_level,created_at,updated_at,completed_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.HumanTask) error {
	var outcome, rationale *string
	if t.Decision != nil {
		outcome = &t.Decision.Outcome
		rationale = &t.Decision.Rationale
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO human_tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CycleID, nullableStringPtr(t.StepID), t.Type, t.Title, nullable(t.Description),
		nullableStringPtr(t.AssignedTo), t.AssignedRole, t.DueDate, string(t.Status),
		nullableStringPtr(outcome), nullableStringPtr(rationale), t.EscalationLevel,
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.HumanTask) error {
	var outcome, rationale *string
	if t.Decision != nil {
		outcome = &t.Decision.Outcome
		rationale = &t.Decision.Rationale
	}
	_, err := tx.ExecContext(ctx, `UPDATE human_tasks SET assigned_to=?, assigned_role=?, due_date=?, status=?, decision_outcome=?, decision_rationale=?, escalation_level=?, updated_at=?, completed_at=? WHERE id=?`,
		nullableStringPtr(t.AssignedTo), t.AssignedRole, t.DueDate, string(t.Status),
		nullableStringPtr(outcome), nullableStringPtr(rationale), t.EscalationLevel,
		t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	return err
}

func scanTask(scan func(...any) error, id string) (domain.HumanTask, error) {
	var t domain.HumanTask
	var status string
	var stepID, description, assignedTo, outcome, rationale, completedAt sql.NullString
	err := scan(&t.ID, &t.CycleID, &stepID, &t.Type, &t.Title, &description, &assignedTo, &t.AssignedRole,
		&t.DueDate, &status, &outcome, &rationale, &t.EscalationLevel, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.TaskStatus(status)
	if stepID.Valid {
		t.StepID = &stepID.String
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if outcome.Valid {
		t.Decision = &domain.Decision{Outcome: outcome.String, Rationale: rationale.String}
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.HumanTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM human_tasks WHERE id=?`, id)
	return scanTask(row.Scan, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.HumanTask, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM human_tasks WHERE id=?`, id)
	return scanTask(row.Scan, id)
}

type TaskFilters struct {
	CycleID      string
	Status       string
	AssignedRole string
	DueBefore    string
	Limit        int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.HumanTask, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CycleID != "" {
		clauses = append(clauses, "cycle_id=?")
		args = append(args, f.CycleID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedRole != "" {
		clauses = append(clauses, "assigned_role=?")
		args = append(args, f.AssignedRole)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "due_date<?")
		args = append(args, f.DueBefore)
	}
	query := `SELECT ` + taskColumns + ` FROM human_tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HumanTask
	for rows.Next() {
		t, err := scanTask(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

// BlockingTasksForCycle returns tasks whose status keeps the cycle paused.
func (r Repo) BlockingTasksForCycle(ctx context.Context, tx *sql.Tx, cycleID string) ([]domain.HumanTask, error) {
	query := `SELECT ` + taskColumns + ` FROM human_tasks WHERE cycle_id=? AND status IN ('pending','in_progress','escalated') ORDER BY created_at ASC, id ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, cycleID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, cycleID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HumanTask
	for rows.Next() {
		t, err := scanTask(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}
