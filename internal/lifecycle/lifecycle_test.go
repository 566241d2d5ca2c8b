package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"regline/internal/audit"
	"regline/internal/db"
	"regline/internal/domain"
	"regline/internal/migrate"
	"regline/internal/repo"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return Service{
		DB:    conn,
		Repo:  repo.Repo{DB: conn},
		Audit: audit.Writer{Now: clock},
		Now:   clock,
	}
}

func mustCreate(t *testing.T, s Service) domain.Artifact {
	t.Helper()
	a, err := s.CreateArtifact(context.Background(), CreateArtifactInput{
		ReportID:    "FR2052a",
		Kind:        domain.KindDQRuleSet,
		Name:        "liquidity dq rules",
		ContentJSON: `{"rules":[]}`,
		Actor:       "maria@company.com",
		ActorType:   domain.ActorHuman,
	})
	if err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	return a
}

func TestCreateArtifactStartsAsDraft(t *testing.T) {
	s := newTestService(t)
	a := mustCreate(t, s)
	if a.Status != domain.ArtifactDraft {
		t.Fatalf("status = %s, want draft", a.Status)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
}

func TestHappyPathApproval(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s)

	a, err := s.SubmitForReview(ctx, a.ID, "maria@company.com")
	if err != nil {
		t.Fatalf("submit for review: %v", err)
	}
	if a.Status != domain.ArtifactPendingReview {
		t.Fatalf("status = %s, want pending_review", a.Status)
	}

	a, err = s.Approve(ctx, a.ID, "lead@company.com")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if a.Status != domain.ArtifactApproved {
		t.Fatalf("status = %s, want approved", a.Status)
	}
}

func TestApproveRequiresPendingReview(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s)

	_, err := s.Approve(ctx, a.ID, "lead@company.com")
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	want := fmt.Sprintf("Cannot approve artifact with status '%s'", domain.ArtifactDraft)
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err.Error(), want)
	}

	// No partial change: the artifact is still a draft.
	got, gerr := s.Repo.GetArtifact(ctx, a.ID)
	if gerr != nil {
		t.Fatalf("get artifact: %v", gerr)
	}
	if got.Status != domain.ArtifactDraft {
		t.Fatalf("status = %s, want draft", got.Status)
	}
}

func TestApproveTwiceFails(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s)
	if _, err := s.SubmitForReview(ctx, a.ID, "maria@company.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Approve(ctx, a.ID, "lead@company.com"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Approve(ctx, a.ID, "lead@company.com")
	if err == nil || !strings.Contains(err.Error(), "Cannot approve artifact with status 'approved'") {
		t.Fatalf("err = %v, want approved-status approval failure", err)
	}
}

func TestRejectRequiresReason(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	a := mustCreate(t, s)
	if _, err := s.SubmitForReview(ctx, a.ID, "maria@company.com"); err != nil {
		t.Fatal(err)
	}

	_, err := s.Reject(ctx, a.ID, "lead@company.com", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	a, err = s.Reject(ctx, a.ID, "lead@company.com", "threshold coverage is incomplete")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if a.Status != domain.ArtifactRejected {
		t.Fatalf("status = %s, want rejected", a.Status)
	}

	entries, err := s.Repo.ListAuditEntries(ctx, repo.AuditFilters{EntityType: "artifact", EntityID: a.ID})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Action == "artifact.rejected" && e.Rationale != nil && *e.Rationale == "threshold coverage is incomplete" {
			found = true
		}
	}
	if !found {
		t.Fatal("rejection rationale not recorded in audit trail")
	}
}

func TestUnknownArtifactNotFound(t *testing.T) {
	s := newTestService(t)
	_, err := s.Approve(context.Background(), "missing", "lead@company.com")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
