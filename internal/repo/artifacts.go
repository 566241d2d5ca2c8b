package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"regline/internal/domain"
)

const artifactColumns = `id,cycle_id,report_id,kind,name,version,status,content_json,created_at,updated_at,last_modified_by`

func (r Repo) InsertArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO artifacts(`+artifactColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, nullable(a.CycleID), a.ReportID, string(a.Kind), a.Name, a.Version, string(a.Status),
		a.ContentJSON, a.CreatedAt, a.UpdatedAt, nullable(a.LastModifiedBy))
	return err
}

func (r Repo) UpdateArtifact(ctx context.Context, tx *sql.Tx, a domain.Artifact) error {
	_, err := tx.ExecContext(ctx, `UPDATE artifacts SET version=?, status=?, content_json=?, updated_at=?, last_modified_by=? WHERE id=?`,
		a.Version, string(a.Status), a.ContentJSON, a.UpdatedAt, nullable(a.LastModifiedBy), a.ID)
	return err
}

func scanArtifact(scan func(...any) error, id string) (domain.Artifact, error) {
	var a domain.Artifact
	var kind, status string
	var cycleID, lastModifiedBy sql.NullString
	err := scan(&a.ID, &cycleID, &a.ReportID, &kind, &a.Name, &a.Version, &status, &a.ContentJSON, &a.CreatedAt, &a.UpdatedAt, &lastModifiedBy)
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("artifact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return a, err
	}
	a.Kind = domain.ArtifactKind(kind)
	a.Status = domain.ArtifactStatus(status)
	if cycleID.Valid {
		a.CycleID = cycleID.String
	}
	if lastModifiedBy.Valid {
		a.LastModifiedBy = lastModifiedBy.String
	}
	return a, nil
}

func (r Repo) GetArtifact(ctx context.Context, id string) (domain.Artifact, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id=?`, id)
	return scanArtifact(row.Scan, id)
}

func (r Repo) GetArtifactTx(ctx context.Context, tx *sql.Tx, id string) (domain.Artifact, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id=?`, id)
	return scanArtifact(row.Scan, id)
}

type ArtifactFilters struct {
	CycleID  string
	ReportID string
	Kind     string
	Status   string
}

func (r Repo) ListArtifacts(ctx context.Context, f ArtifactFilters) ([]domain.Artifact, error) {
	return r.listArtifacts(ctx, nil, f)
}

func (r Repo) ListArtifactsTx(ctx context.Context, tx *sql.Tx, f ArtifactFilters) ([]domain.Artifact, error) {
	return r.listArtifacts(ctx, tx, f)
}

func (r Repo) listArtifacts(ctx context.Context, tx *sql.Tx, f ArtifactFilters) ([]domain.Artifact, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CycleID != "" {
		clauses = append(clauses, "cycle_id=?")
		args = append(args, f.CycleID)
	}
	if f.ReportID != "" {
		clauses = append(clauses, "report_id=?")
		args = append(args, f.ReportID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

// CDEOwnerEmail resolves the owner of a CDE from the latest cde_inventory
// artifact of a report. Empty result means no owner is recorded.
func (r Repo) CDEOwnerEmail(ctx context.Context, reportID, cdeID string) (string, error) {
	items, err := r.ListArtifacts(ctx, ArtifactFilters{ReportID: reportID, Kind: string(domain.KindCDEInventory)})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	// latest version wins
	latest := items[0]
	for _, a := range items[1:] {
		if a.Version > latest.Version {
			latest = a
		}
	}
	var content domain.CDEInventoryContent
	if err := json.Unmarshal([]byte(latest.ContentJSON), &content); err != nil {
		return "", fmt.Errorf("cde inventory %s: %w", latest.ID, err)
	}
	for _, cde := range content.CDEs {
		if cde.ID == cdeID {
			return cde.DataOwnerEmail, nil
		}
	}
	return "", nil
}
