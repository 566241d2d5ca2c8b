package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"regline/internal/domain"
)

const issueColumns = `id,cycle_id,title,description,source,impacted_reports,impacted_cdes,severity,status,assignee,escalation_level,root_cause,resolution,created_at,updated_at`

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO issues(`+issueColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		i.ID, nullableStringPtr(i.CycleID), i.Title, nullable(i.Description), nullable(i.Source),
		marshalList(i.ImpactedReports), marshalList(i.ImpactedCDEs), string(i.Severity), string(i.Status),
		i.Assignee, i.EscalationLevel, nullableStringPtr(i.RootCause), nullableStringPtr(i.Resolution),
		i.CreatedAt, i.UpdatedAt)
	return err
}

func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) error {
	_, err := tx.ExecContext(ctx, `UPDATE issues SET status=?, assignee=?, escalation_level=?, root_cause=?, resolution=?, updated_at=? WHERE id=?`,
		string(i.Status), i.Assignee, i.EscalationLevel, nullableStringPtr(i.RootCause), nullableStringPtr(i.Resolution), i.UpdatedAt, i.ID)
	return err
}

func scanIssue(scan func(...any) error, id string) (domain.Issue, error) {
	var i domain.Issue
	var severity, status string
	var cycleID, description, source, reports, cdes, rootCause, resolution sql.NullString
	err := scan(&i.ID, &cycleID, &i.Title, &description, &source, &reports, &cdes, &severity, &status,
		&i.Assignee, &i.EscalationLevel, &rootCause, &resolution, &i.CreatedAt, &i.UpdatedAt)
	if err == sql.ErrNoRows {
		return i, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return i, err
	}
	i.Severity = domain.Severity(severity)
	i.Status = domain.IssueStatus(status)
	if cycleID.Valid {
		i.CycleID = &cycleID.String
	}
	if description.Valid {
		i.Description = description.String
	}
	if source.Valid {
		i.Source = source.String
	}
	if reports.Valid {
		_ = json.Unmarshal([]byte(reports.String), &i.ImpactedReports)
	}
	if cdes.Valid {
		_ = json.Unmarshal([]byte(cdes.String), &i.ImpactedCDEs)
	}
	if rootCause.Valid {
		i.RootCause = &rootCause.String
	}
	if resolution.Valid {
		i.Resolution = &resolution.String
	}
	return i, nil
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=?`, id)
	return scanIssue(row.Scan, id)
}

type IssueFilters struct {
	CycleID  string
	Status   string
	Severity string
	Assignee string
	Limit    int
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.Issue, error) {
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
	if f.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, f.Severity)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignee=?")
		args = append(args, f.Assignee)
	}
	query := `SELECT ` + issueColumns + ` FROM issues WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, nil
}

func marshalList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	b, _ := json.Marshal(items)
	return string(b)
}
