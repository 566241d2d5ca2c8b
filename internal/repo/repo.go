package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"regline/internal/config"
	"regline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- reports ---

func (r Repo) InsertReport(ctx context.Context, rep domain.ReportDefinition) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reports(id,name,regulator,frequency,created_at) VALUES (?,?,?,?,?)`,
		rep.ID, rep.Name, nullable(rep.Regulator), nullable(rep.Frequency), rep.CreatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.ReportDefinition, error) {
	var rep domain.ReportDefinition
	var regulator, frequency sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,regulator,frequency,created_at FROM reports WHERE id=?`, id).
		Scan(&rep.ID, &rep.Name, &regulator, &frequency, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return rep, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if regulator.Valid {
		rep.Regulator = regulator.String
	}
	if frequency.Valid {
		rep.Frequency = frequency.String
	}
	return rep, err
}

func (r Repo) ListReports(ctx context.Context) ([]domain.ReportDefinition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(regulator,''),COALESCE(frequency,''),created_at FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReportDefinition
	for rows.Next() {
		var rep domain.ReportDefinition
		if err := rows.Scan(&rep.ID, &rep.Name, &rep.Regulator, &rep.Frequency, &rep.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, nil
}

// --- governance config ---

func (r Repo) UpsertGovernanceConfig(ctx context.Context, cfg *config.Config) error {
	return upsertGovernanceConfig(ctx, r.DB, nil, cfg)
}

func (r Repo) UpsertGovernanceConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	return upsertGovernanceConfig(ctx, nil, tx, cfg)
}

func upsertGovernanceConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	id := cfg.Governance.ID
	if id == "" {
		id = "default"
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO governance_configs(id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, id, string(payload), now, now)
	return err
}

func (r Repo) GetGovernanceConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM governance_configs WHERE id='default'`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// --- cycles ---

func (r Repo) InsertCycle(ctx context.Context, tx *sql.Tx, c domain.CycleInstance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cycles(id,report_id,period_end,status,current_phase,pause_reason,submission_id,started_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ReportID, c.PeriodEnd, string(c.Status), string(c.CurrentPhase),
		nullableStringPtr(c.PauseReason), nullableStringPtr(c.SubmissionID), c.StartedAt, nullableStringPtr(c.CompletedAt))
	return err
}

func (r Repo) UpdateCycle(ctx context.Context, tx *sql.Tx, c domain.CycleInstance) error {
	_, err := tx.ExecContext(ctx, `UPDATE cycles SET status=?, current_phase=?, pause_reason=?, submission_id=?, completed_at=? WHERE id=?`,
		string(c.Status), string(c.CurrentPhase), nullableStringPtr(c.PauseReason),
		nullableStringPtr(c.SubmissionID), nullableStringPtr(c.CompletedAt), c.ID)
	return err
}

func scanCycle(scan func(...any) error, id string) (domain.CycleInstance, error) {
	var c domain.CycleInstance
	var status, phase string
	var pauseReason, submissionID, completedAt sql.NullString
	err := scan(&c.ID, &c.ReportID, &c.PeriodEnd, &status, &phase, &pauseReason, &submissionID, &c.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return c, err
	}
	c.Status = domain.CycleStatus(status)
	c.CurrentPhase = domain.Phase(phase)
	if pauseReason.Valid {
		c.PauseReason = &pauseReason.String
	}
	if submissionID.Valid {
		c.SubmissionID = &submissionID.String
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.String
	}
	return c, nil
}

const cycleColumns = `id,report_id,period_end,status,current_phase,pause_reason,submission_id,started_at,completed_at`

func (r Repo) GetCycle(ctx context.Context, id string) (domain.CycleInstance, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id=?`, id)
	return scanCycle(row.Scan, id)
}

func (r Repo) GetCycleTx(ctx context.Context, tx *sql.Tx, id string) (domain.CycleInstance, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id=?`, id)
	return scanCycle(row.Scan, id)
}

func (r Repo) ListCycles(ctx context.Context, reportID string) ([]domain.CycleInstance, error) {
	clauses := []string{"1=1"}
	var args []any
	if reportID != "" {
		clauses = append(clauses, "report_id=?")
		args = append(args, reportID)
	}
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY started_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CycleInstance
	for rows.Next() {
		c, err := scanCycle(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// --- workflow steps ---

func (r Repo) InsertStep(ctx context.Context, tx *sql.Tx, s domain.WorkflowStep) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO steps(id,cycle_id,phase,name,agent_type,is_human_checkpoint,required_role,status,position,started_at,completed_at,failure_reason)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.CycleID, string(s.Phase), s.Name, nullableStringPtr(s.AgentType), boolToInt(s.IsHumanCheckpoint),
		nullableStringPtr(s.RequiredRole), string(s.Status), s.Position,
		nullableStringPtr(s.StartedAt), nullableStringPtr(s.CompletedAt), nullableStringPtr(s.FailureReason))
	if err != nil {
		return err
	}
	for _, dep := range s.DependsOn {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO step_deps(step_id, depends_on_step_id) VALUES (?,?)`, s.ID, dep); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) UpdateStep(ctx context.Context, tx *sql.Tx, s domain.WorkflowStep) error {
	_, err := tx.ExecContext(ctx, `UPDATE steps SET status=?, started_at=?, completed_at=?, failure_reason=? WHERE id=?`,
		string(s.Status), nullableStringPtr(s.StartedAt), nullableStringPtr(s.CompletedAt), nullableStringPtr(s.FailureReason), s.ID)
	return err
}

const stepColumns = `id,cycle_id,phase,name,agent_type,is_human_checkpoint,required_role,status,position,started_at,completed_at,failure_reason`

func scanStep(scan func(...any) error, id string) (domain.WorkflowStep, error) {
	var s domain.WorkflowStep
	var phase, status string
	var agentType, requiredRole, startedAt, completedAt, failureReason sql.NullString
	var checkpoint int
	err := scan(&s.ID, &s.CycleID, &phase, &s.Name, &agentType, &checkpoint, &requiredRole, &status, &s.Position, &startedAt, &completedAt, &failureReason)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("step %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return s, err
	}
	s.Phase = domain.Phase(phase)
	s.Status = domain.StepStatus(status)
	s.IsHumanCheckpoint = checkpoint != 0
	if agentType.Valid {
		s.AgentType = &agentType.String
	}
	if requiredRole.Valid {
		s.RequiredRole = &requiredRole.String
	}
	if startedAt.Valid {
		s.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		s.CompletedAt = &completedAt.String
	}
	if failureReason.Valid {
		s.FailureReason = &failureReason.String
	}
	return s, nil
}

func (r Repo) GetStep(ctx context.Context, id string) (domain.WorkflowStep, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE id=?`, id)
	s, err := scanStep(row.Scan, id)
	if err != nil {
		return s, err
	}
	s.DependsOn, err = r.listStepDeps(ctx, nil, s.ID)
	return s, err
}

func (r Repo) GetStepTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkflowStep, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM steps WHERE id=?`, id)
	s, err := scanStep(row.Scan, id)
	if err != nil {
		return s, err
	}
	s.DependsOn, err = r.listStepDeps(ctx, tx, s.ID)
	return s, err
}

func (r Repo) listStepDeps(ctx context.Context, tx *sql.Tx, stepID string) ([]string, error) {
	query := `SELECT depends_on_step_id FROM step_deps WHERE step_id=?`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, stepID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, stepID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// ListSteps returns a cycle's steps in declared order with dependencies
// populated.
func (r Repo) ListSteps(ctx context.Context, cycleID string) ([]domain.WorkflowStep, error) {
	return r.listSteps(ctx, nil, cycleID)
}

func (r Repo) ListStepsTx(ctx context.Context, tx *sql.Tx, cycleID string) ([]domain.WorkflowStep, error) {
	return r.listSteps(ctx, tx, cycleID)
}

func (r Repo) listSteps(ctx context.Context, tx *sql.Tx, cycleID string) ([]domain.WorkflowStep, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE cycle_id=? ORDER BY position ASC`
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
	var res []domain.WorkflowStep
	for rows.Next() {
		s, err := scanStep(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].DependsOn, err = r.listStepDeps(ctx, tx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// --- audit queries (append path lives in internal/audit) ---

type AuditFilters struct {
	EntityType string
	EntityID   string
	Action     string
	Limit      int
	Cursor     int64
}

func (r Repo) ListAuditEntries(ctx context.Context, f AuditFilters) ([]domain.AuditEntry, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.EntityType != "" {
		clauses = append(clauses, "entity_type=?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,entity_type,entity_id,action,actor,actor_type,previous_state,new_state,rationale FROM audit_entries WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var actorType string
		var entityID, prev, next, rationale sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.EntityType, &entityID, &e.Action, &e.Actor, &actorType, &prev, &next, &rationale); err != nil {
			return nil, err
		}
		e.ActorType = domain.ActorType(actorType)
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if prev.Valid {
			e.PreviousState = &prev.String
		}
		if next.Valid {
			e.NewState = &next.String
		}
		if rationale.Valid {
			e.Rationale = &rationale.String
		}
		res = append(res, e)
	}
	return res, nil
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
