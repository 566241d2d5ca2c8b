// Package submission freezes a cycle's artifacts behind content-hash locks
// and issues the submission receipt.
package submission

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
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

// ContentHash fingerprints an artifact at lock time. Kind and name are part
// of the hash so a renamed payload does not pass verification.
func ContentHash(a domain.Artifact) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s", a.Kind, a.Name, a.ContentJSON)
	return hex.EncodeToString(h.Sum(nil))
}

// Submit freezes the cycle's artifacts and issues the receipt. Every
// artifact gets exactly one lock regardless of its review status, so nothing
// belonging to a submitted cycle stays mutable; at least one artifact must
// have cleared review for the submission to go out. Re-submitting an already
// submitted or confirmed cycle returns the original receipt unchanged.
func (m Manager) Submit(ctx context.Context, cycleID, actor string) (domain.SubmissionReceipt, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubmissionReceipt{}, err
	}
	defer tx.Rollback()

	cycle, err := m.Repo.GetCycleTx(ctx, tx, cycleID)
	if err != nil {
		return domain.SubmissionReceipt{}, err
	}
	if cycle.Status == domain.CycleSubmitted || cycle.Status == domain.CycleConfirmed || cycle.Status == domain.CycleCompleted {
		return m.Repo.GetSubmissionByCycleTx(ctx, tx, cycleID)
	}
	if err := domain.EnsureCycleTransition(cycle.Status, domain.CycleSubmitted); err != nil {
		return domain.SubmissionReceipt{}, err
	}

	artifacts, err := m.Repo.ListArtifactsTx(ctx, tx, repo.ArtifactFilters{CycleID: cycleID})
	if err != nil {
		return domain.SubmissionReceipt{}, err
	}
	anyApproved := false
	for _, a := range artifacts {
		if a.Status == domain.ArtifactApproved {
			anyApproved = true
			break
		}
	}
	if !anyApproved {
		return domain.SubmissionReceipt{}, &domain.ValidationError{Field: "artifacts", Message: "cycle has no approved artifacts to submit"}
	}

	ts := m.now().UTC().Format(time.RFC3339)
	receipt := domain.SubmissionReceipt{
		ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte("submission:"+cycleID)).String(),
		CycleID:       cycleID,
		SubmittedAt:   ts,
		SubmittedBy:   actor,
		ArtifactCount: len(artifacts),
	}
	for _, a := range artifacts {
		lock := domain.ArtifactLock{
			ArtifactID:   a.ID,
			ArtifactName: a.Name,
			LockedAt:     ts,
			LockedBy:     actor,
			SubmissionID: receipt.ID,
			ContentHash:  ContentHash(a),
		}
		if err := m.Repo.InsertLock(ctx, tx, lock); err != nil {
			return domain.SubmissionReceipt{}, err
		}
	}
	if err := m.Repo.InsertSubmission(ctx, tx, receipt); err != nil {
		return domain.SubmissionReceipt{}, err
	}

	prev := cycle
	cycle.Status = domain.CycleSubmitted
	cycle.SubmissionID = &receipt.ID
	if err := m.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return domain.SubmissionReceipt{}, err
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycleID,
		Action:        "cycle.submitted",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
	}); err != nil {
		return domain.SubmissionReceipt{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubmissionReceipt{}, err
	}
	return receipt, nil
}

// Confirm records regulator acknowledgement of a submitted cycle.
func (m Manager) Confirm(ctx context.Context, cycleID, actor string) (domain.CycleInstance, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	defer tx.Rollback()

	cycle, err := m.Repo.GetCycleTx(ctx, tx, cycleID)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	if cycle.Status == domain.CycleConfirmed {
		return cycle, nil
	}
	if err := domain.EnsureCycleTransition(cycle.Status, domain.CycleConfirmed); err != nil {
		return domain.CycleInstance{}, err
	}
	prev := cycle
	cycle.Status = domain.CycleConfirmed
	if err := m.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycleID,
		Action:        "cycle.confirmed",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
	}); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CycleInstance{}, err
	}
	return cycle, nil
}

// Modify applies new content to an unlocked artifact, bumping its version.
// Locked artifacts are rejected untouched.
func (m Manager) Modify(ctx context.Context, artifactID, actor, contentJSON string) (domain.Artifact, error) {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	if _, err := m.Repo.GetLockTx(ctx, tx, artifactID); err == nil {
		return domain.Artifact{}, &domain.LockedArtifactError{ArtifactID: artifactID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Artifact{}, err
	}

	a, err := m.Repo.GetArtifactTx(ctx, tx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	prev := a
	a.Version++
	a.ContentJSON = contentJSON
	a.UpdatedAt = m.now().UTC().Format(time.RFC3339)
	a.LastModifiedBy = actor

	if err := m.Repo.UpdateArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	if err := m.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "artifact",
		EntityID:      a.ID,
		Action:        "artifact.modified",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(a),
	}); err != nil {
		return domain.Artifact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// IntegrityResult is the verification verdict for one locked artifact.
type IntegrityResult struct {
	ArtifactID   string `json:"artifact_id"`
	ArtifactName string `json:"artifact_name"`
	Intact       bool   `json:"intact"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
}

// VerifyIntegrity recomputes the hash of a live artifact against its lock.
func VerifyIntegrity(lock domain.ArtifactLock, a domain.Artifact) IntegrityResult {
	actual := ContentHash(a)
	return IntegrityResult{
		ArtifactID:   lock.ArtifactID,
		ArtifactName: lock.ArtifactName,
		Intact:       actual == lock.ContentHash,
		ExpectedHash: lock.ContentHash,
		ActualHash:   actual,
	}
}

// VerifySubmission checks every artifact locked under a submission.
func (m Manager) VerifySubmission(ctx context.Context, submissionID string) ([]IntegrityResult, error) {
	if _, err := m.Repo.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	locks, err := m.Repo.ListLocksBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	results := make([]IntegrityResult, 0, len(locks))
	for _, lock := range locks {
		a, err := m.Repo.GetArtifact(ctx, lock.ArtifactID)
		if err != nil {
			return nil, err
		}
		results = append(results, VerifyIntegrity(lock, a))
	}
	return results, nil
}
