package repo

import (
	"context"
	"database/sql"
	"fmt"

	"regline/internal/domain"
)

func (r Repo) InsertLock(ctx context.Context, tx *sql.Tx, l domain.ArtifactLock) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO artifact_locks(artifact_id,artifact_name,locked_at,locked_by,submission_id,content_hash) VALUES (?,?,?,?,?,?)`,
		l.ArtifactID, l.ArtifactName, l.LockedAt, l.LockedBy, l.SubmissionID, l.ContentHash)
	return err
}

func scanLock(scan func(...any) error, artifactID string) (domain.ArtifactLock, error) {
	var l domain.ArtifactLock
	err := scan(&l.ArtifactID, &l.ArtifactName, &l.LockedAt, &l.LockedBy, &l.SubmissionID, &l.ContentHash)
	if err == sql.ErrNoRows {
		return l, fmt.Errorf("lock for artifact %s: %w", artifactID, ErrNotFound)
	}
	return l, err
}

// GetLock returns the lock for an artifact, if any. Callers distinguish a
// missing lock via errors.Is(err, ErrNotFound).
func (r Repo) GetLock(ctx context.Context, artifactID string) (domain.ArtifactLock, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT artifact_id,artifact_name,locked_at,locked_by,submission_id,content_hash FROM artifact_locks WHERE artifact_id=?`, artifactID)
	return scanLock(row.Scan, artifactID)
}

func (r Repo) GetLockTx(ctx context.Context, tx *sql.Tx, artifactID string) (domain.ArtifactLock, error) {
	row := tx.QueryRowContext(ctx, `SELECT artifact_id,artifact_name,locked_at,locked_by,submission_id,content_hash FROM artifact_locks WHERE artifact_id=?`, artifactID)
	return scanLock(row.Scan, artifactID)
}

func (r Repo) ListLocksBySubmission(ctx context.Context, submissionID string) ([]domain.ArtifactLock, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT artifact_id,artifact_name,locked_at,locked_by,submission_id,content_hash FROM artifact_locks WHERE submission_id=? ORDER BY artifact_name`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ArtifactLock
	for rows.Next() {
		l, err := scanLock(rows.Scan, "")
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, nil
}

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.SubmissionReceipt) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(id,cycle_id,submitted_at,submitted_by,artifact_count) VALUES (?,?,?,?,?)`,
		s.ID, s.CycleID, s.SubmittedAt, s.SubmittedBy, s.ArtifactCount)
	return err
}

func scanSubmission(scan func(...any) error, key string) (domain.SubmissionReceipt, error) {
	var s domain.SubmissionReceipt
	err := scan(&s.ID, &s.CycleID, &s.SubmittedAt, &s.SubmittedBy, &s.ArtifactCount)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("submission %s: %w", key, ErrNotFound)
	}
	return s, err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.SubmissionReceipt, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,cycle_id,submitted_at,submitted_by,artifact_count FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan, id)
}

// GetSubmissionByCycle returns the receipt for a cycle. A cycle has at most
// one submission; re-submitting an already submitted cycle returns this
// receipt unchanged.
func (r Repo) GetSubmissionByCycle(ctx context.Context, cycleID string) (domain.SubmissionReceipt, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,cycle_id,submitted_at,submitted_by,artifact_count FROM submissions WHERE cycle_id=?`, cycleID)
	return scanSubmission(row.Scan, cycleID)
}

func (r Repo) GetSubmissionByCycleTx(ctx context.Context, tx *sql.Tx, cycleID string) (domain.SubmissionReceipt, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,cycle_id,submitted_at,submitted_by,artifact_count FROM submissions WHERE cycle_id=?`, cycleID)
	return scanSubmission(row.Scan, cycleID)
}
