package submission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"regline/internal/audit"
	"regline/internal/db"
	"regline/internal/domain"
	"regline/internal/migrate"
	"regline/internal/repo"
)

type testEnv struct {
	Manager Manager
	CycleID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC) }
	r := repo.Repo{DB: conn}
	env := &testEnv{
		Manager: Manager{DB: conn, Repo: r, Audit: audit.Writer{Now: clock}, Now: clock},
		CycleID: "cycle-1",
	}

	ctx := context.Background()
	ts := clock().Format(time.RFC3339)
	if err := r.InsertReport(ctx, domain.ReportDefinition{ID: "FR2052a", Name: "Liquidity Monitoring", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = r.InsertCycle(ctx, tx, domain.CycleInstance{
		ID:           env.CycleID,
		ReportID:     "FR2052a",
		PeriodEnd:    "2026-03-31",
		Status:       domain.CycleActive,
		CurrentPhase: domain.PhaseAttestation,
		StartedAt:    ts,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) addArtifact(t *testing.T, id string, status domain.ArtifactStatus) domain.Artifact {
	t.Helper()
	ctx := context.Background()
	ts := e.Manager.now().UTC().Format(time.RFC3339)
	a := domain.Artifact{
		ID:          id,
		CycleID:     e.CycleID,
		ReportID:    "FR2052a",
		Kind:        domain.KindCompliancePackage,
		Name:        "package " + id,
		Version:     1,
		Status:      status,
		ContentJSON: `{"sections":["controls","lineage"]}`,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	tx, err := e.Manager.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Manager.Repo.InsertArtifact(ctx, tx, a); err != nil {
		t.Fatalf("insert artifact: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSubmitLocksEveryArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approved := env.addArtifact(t, "a1", domain.ArtifactApproved)
	env.addArtifact(t, "a2", domain.ArtifactApproved)
	draft := env.addArtifact(t, "a3", domain.ArtifactDraft)

	receipt, err := env.Manager.Submit(ctx, env.CycleID, "cdo@company.com")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.ArtifactCount != 3 {
		t.Fatalf("artifact_count = %d, want 3", receipt.ArtifactCount)
	}

	// One lock per artifact, review status notwithstanding.
	for _, a := range []domain.Artifact{approved, draft} {
		lock, err := env.Manager.Repo.GetLock(ctx, a.ID)
		if err != nil {
			t.Fatalf("get lock for %s: %v", a.ID, err)
		}
		if lock.ContentHash != ContentHash(a) {
			t.Fatalf("lock hash for %s does not match artifact content", a.ID)
		}
	}
	locks, err := env.Manager.Repo.ListLocksBySubmission(ctx, receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 3 {
		t.Fatalf("locks = %d, want 3", len(locks))
	}

	cycle, err := env.Manager.Repo.GetCycle(ctx, env.CycleID)
	if err != nil {
		t.Fatal(err)
	}
	if cycle.Status != domain.CycleSubmitted {
		t.Fatalf("cycle status = %s, want submitted", cycle.Status)
	}
	if cycle.SubmissionID == nil || *cycle.SubmissionID != receipt.ID {
		t.Fatalf("cycle submission_id = %v, want %s", cycle.SubmissionID, receipt.ID)
	}
}

func TestDraftArtifactImmutableAfterSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addArtifact(t, "a1", domain.ArtifactApproved)
	draft := env.addArtifact(t, "a2", domain.ArtifactDraft)

	if _, err := env.Manager.Submit(ctx, env.CycleID, "cdo@company.com"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Manager.Modify(ctx, draft.ID, "maria@company.com", `{"changed":"after submission"}`)
	var le *domain.LockedArtifactError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LockedArtifactError", err)
	}
	got, gerr := env.Manager.Repo.GetArtifact(ctx, draft.ID)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if got.Version != 1 || got.ContentJSON != draft.ContentJSON {
		t.Fatalf("draft artifact of a submitted cycle changed: %+v", got)
	}
}

func TestResubmitReturnsOriginalReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addArtifact(t, "a1", domain.ArtifactApproved)

	first, err := env.Manager.Submit(ctx, env.CycleID, "cdo@company.com")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Manager.Submit(ctx, env.CycleID, "someone-else@company.com")
	if err != nil {
		t.Fatalf("re-submit: %v", err)
	}
	if second != first {
		t.Fatalf("re-submission receipt = %+v, want original %+v", second, first)
	}

	locks, err := env.Manager.Repo.ListLocksBySubmission(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 1 {
		t.Fatalf("locks = %d, want 1", len(locks))
	}
}

func TestSubmitRequiresApprovedArtifacts(t *testing.T) {
	env := newTestEnv(t)
	env.addArtifact(t, "a1", domain.ArtifactDraft)
	_, err := env.Manager.Submit(context.Background(), env.CycleID, "cdo@company.com")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestModifyLockedArtifactFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addArtifact(t, "a1", domain.ArtifactApproved)
	if _, err := env.Manager.Submit(ctx, env.CycleID, "cdo@company.com"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Manager.Modify(ctx, a.ID, "maria@company.com", `{"tampered":true}`)
	var le *domain.LockedArtifactError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LockedArtifactError", err)
	}
	if !strings.Contains(err.Error(), "locked") {
		t.Fatalf("err = %q, want it to mention the lock", err.Error())
	}

	got, gerr := env.Manager.Repo.GetArtifact(ctx, a.ID)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if got.Version != 1 || got.ContentJSON != a.ContentJSON {
		t.Fatalf("locked artifact changed: %+v", got)
	}
}

func TestModifyMissingArtifactNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Manager.Modify(context.Background(), "missing", "maria@company.com", "{}")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %q, want it to mention not found", err.Error())
	}
}

func TestModifyUnlockedBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	a := env.addArtifact(t, "a1", domain.ArtifactDraft)
	got, err := env.Manager.Modify(context.Background(), a.ID, "maria@company.com", `{"sections":["controls"]}`)
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("version = %d, want 2", got.Version)
	}
	if got.LastModifiedBy != "maria@company.com" {
		t.Fatalf("last_modified_by = %q", got.LastModifiedBy)
	}
}

func TestVerifySubmissionDetectsTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addArtifact(t, "a1", domain.ArtifactApproved)
	receipt, err := env.Manager.Submit(ctx, env.CycleID, "cdo@company.com")
	if err != nil {
		t.Fatal(err)
	}

	results, err := env.Manager.VerifySubmission(ctx, receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || !results[0].Intact {
		t.Fatalf("results = %+v, want one intact artifact", results)
	}

	// Corrupt the stored content behind the lock's back.
	tx, err := env.Manager.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.ContentJSON = `{"tampered":true}`
	if err := env.Manager.Repo.UpdateArtifact(ctx, tx, a); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	results, err = env.Manager.VerifySubmission(ctx, receipt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Intact {
		t.Fatal("verification passed on tampered content")
	}
}
