// Package lifecycle implements the shared review lifecycle every governed
// artifact goes through: draft, pending_review, then approved or rejected.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regline/internal/audit"
	"regline/internal/domain"
	"regline/internal/repo"
)

type Service struct {
	DB    *sql.DB
	Repo  repo.Repo
	Audit audit.Writer
	Now   func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type CreateArtifactInput struct {
	CycleID     string
	ReportID    string
	Kind        domain.ArtifactKind
	Name        string
	ContentJSON string
	Actor       string
	ActorType   domain.ActorType
}

// CreateArtifact registers a new artifact at version 1 in draft status.
func (s Service) CreateArtifact(ctx context.Context, in CreateArtifactInput) (domain.Artifact, error) {
	if in.ReportID == "" {
		return domain.Artifact{}, &domain.ValidationError{Field: "report_id"}
	}
	if in.Name == "" {
		return domain.Artifact{}, &domain.ValidationError{Field: "name"}
	}
	if !domain.ValidArtifactKind(in.Kind) {
		return domain.Artifact{}, &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown artifact kind %q", in.Kind)}
	}
	content := in.ContentJSON
	if content == "" {
		content = "{}"
	}
	ts := s.now().UTC().Format(time.RFC3339)
	a := domain.Artifact{
		ID:             uuid.NewString(),
		CycleID:        in.CycleID,
		ReportID:       in.ReportID,
		Kind:           in.Kind,
		Name:           in.Name,
		Version:        1,
		Status:         domain.ArtifactDraft,
		ContentJSON:    content,
		CreatedAt:      ts,
		UpdatedAt:      ts,
		LastModifiedBy: in.Actor,
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	if err := s.Repo.InsertArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	if err := s.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType: "artifact",
		EntityID:   a.ID,
		Action:     "artifact.created",
		Actor:      in.Actor,
		ActorType:  in.ActorType,
		NewState:   audit.Snapshot(a),
	}); err != nil {
		return domain.Artifact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}

// SubmitForReview moves a draft artifact to pending_review.
func (s Service) SubmitForReview(ctx context.Context, artifactID, actor string) (domain.Artifact, error) {
	return s.transition(ctx, artifactID, actor, "artifact.submitted_for_review", "", func(a domain.Artifact) error {
		if a.Status != domain.ArtifactDraft {
			return &domain.InvalidTransitionError{
				Entity: "artifact",
				From:   string(a.Status),
				To:     string(domain.ArtifactPendingReview),
			}
		}
		return nil
	}, domain.ArtifactPendingReview)
}

// Approve moves a pending_review artifact to approved. Approval from any
// other status is rejected without touching the artifact.
func (s Service) Approve(ctx context.Context, artifactID, actor string) (domain.Artifact, error) {
	return s.transition(ctx, artifactID, actor, "artifact.approved", "", func(a domain.Artifact) error {
		if a.Status != domain.ArtifactPendingReview {
			return &domain.InvalidTransitionError{
				Entity:  "artifact",
				From:    string(a.Status),
				To:      string(domain.ArtifactApproved),
				Message: fmt.Sprintf("Cannot approve artifact with status '%s'", a.Status),
			}
		}
		return nil
	}, domain.ArtifactApproved)
}

// Reject moves a pending_review artifact to rejected. The reason is
// mandatory and is stored verbatim in the audit trail.
func (s Service) Reject(ctx context.Context, artifactID, actor, reason string) (domain.Artifact, error) {
	if reason == "" {
		return domain.Artifact{}, &domain.ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}
	return s.transition(ctx, artifactID, actor, "artifact.rejected", reason, func(a domain.Artifact) error {
		if a.Status != domain.ArtifactPendingReview {
			return &domain.InvalidTransitionError{
				Entity: "artifact",
				From:   string(a.Status),
				To:     string(domain.ArtifactRejected),
			}
		}
		return nil
	}, domain.ArtifactRejected)
}

func (s Service) transition(ctx context.Context, artifactID, actor, action, rationale string, check func(domain.Artifact) error, to domain.ArtifactStatus) (domain.Artifact, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer tx.Rollback()

	a, err := s.Repo.GetArtifactTx(ctx, tx, artifactID)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := check(a); err != nil {
		return domain.Artifact{}, err
	}
	prev := a
	a.Status = to
	a.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	a.LastModifiedBy = actor

	if err := s.Repo.UpdateArtifact(ctx, tx, a); err != nil {
		return domain.Artifact{}, err
	}
	var ratPtr *string
	if rationale != "" {
		ratPtr = &rationale
	}
	if err := s.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "artifact",
		EntityID:      a.ID,
		Action:        action,
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(a),
		Rationale:     ratPtr,
	}); err != nil {
		return domain.Artifact{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Artifact{}, err
	}
	return a, nil
}
