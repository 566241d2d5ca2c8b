package orchestrator

import (
	"context"
	"errors"
	"testing"

	"regline/internal/domain"
	"regline/internal/repo"
)

func (e *testEnv) raiseIssue(t *testing.T, title string) domain.Issue {
	t.Helper()
	issue, err := e.Orch.RaiseIssue(context.Background(), RaiseIssueInput{
		ReportID:   "FR2052a",
		Title:      title,
		DataDomain: "liquidity",
		Severity:   domain.SeverityMedium,
		Actor:      "dq-monitor",
		ActorType:  domain.ActorAgent,
	})
	if err != nil {
		t.Fatalf("raise issue: %v", err)
	}
	return issue
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issue := env.raiseIssue(t, "Null balances in source extract")

	started, err := env.Orch.StartIssueWork(ctx, issue.ID, "steward@company.com")
	if err != nil {
		t.Fatalf("start work: %v", err)
	}
	if started.Status != domain.IssueInProgress {
		t.Fatalf("status = %s, want in_progress", started.Status)
	}
	if started.Assignee != issue.Assignee {
		t.Fatalf("assignee changed on transition: %s", started.Assignee)
	}

	resolved, err := env.Orch.ResolveIssue(ctx, issue.ID, "steward@company.com", "upstream feed gap", "backfilled from ledger")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.IssueResolved {
		t.Fatalf("status = %s, want resolved", resolved.Status)
	}
	if resolved.Resolution == nil || *resolved.Resolution != "backfilled from ledger" {
		t.Fatalf("resolution = %v", resolved.Resolution)
	}
	if resolved.RootCause == nil || *resolved.RootCause != "upstream feed gap" {
		t.Fatalf("root_cause = %v", resolved.RootCause)
	}

	closed, err := env.Orch.CloseIssue(ctx, issue.ID, "steward@company.com")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.IssueClosed {
		t.Fatalf("status = %s, want closed", closed.Status)
	}

	entries, err := env.Repo.ListAuditEntries(ctx, repo.AuditFilters{EntityType: "issue", EntityID: issue.ID})
	if err != nil {
		t.Fatal(err)
	}
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	for _, want := range []string{"issue.raised", "issue.started", "issue.resolved", "issue.closed"} {
		found := false
		for _, a := range actions {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("audit trail missing %s (got %v)", want, actions)
		}
	}
}

func TestResolveIssueRequiresResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issue := env.raiseIssue(t, "Duplicate trades reported")
	if _, err := env.Orch.StartIssueWork(ctx, issue.ID, "steward@company.com"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Orch.ResolveIssue(ctx, issue.ID, "steward@company.com", "", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != "resolution" {
		t.Fatalf("field = %s, want resolution", ve.Field)
	}
}

func TestResolveOpenIssueRejected(t *testing.T) {
	env := newTestEnv(t)
	issue := env.raiseIssue(t, "Stale reference data")

	_, err := env.Orch.ResolveIssue(context.Background(), issue.ID, "steward@company.com", "", "fixed")
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}

	got, gerr := env.Repo.GetIssue(context.Background(), issue.ID)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if got.Status != domain.IssueOpen || got.Resolution != nil {
		t.Fatalf("issue mutated by rejected transition: %+v", got)
	}
}

func TestReassignIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issue := env.raiseIssue(t, "Lineage break on HQLA feed")

	got, err := env.Orch.ReassignIssue(ctx, issue.ID, "cdo@company.com", "erik@company.com")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.Assignee != "erik@company.com" {
		t.Fatalf("assignee = %s, want erik@company.com", got.Assignee)
	}
	if last := env.Notifier.recipients[len(env.Notifier.recipients)-1]; last != "erik@company.com" {
		t.Fatalf("last notification went to %s", last)
	}

	// Reassigning to the current assignee writes nothing.
	if _, err := env.Orch.ReassignIssue(ctx, issue.ID, "cdo@company.com", "erik@company.com"); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Repo.ListAuditEntries(ctx, repo.AuditFilters{EntityType: "issue", EntityID: issue.ID, Action: "issue.reassigned"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("issue.reassigned entries = %d, want 1", len(entries))
	}

	if _, err := env.Orch.CloseIssue(ctx, issue.ID, "cdo@company.com"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Orch.ReassignIssue(ctx, issue.ID, "cdo@company.com", "other@company.com")
	var ite *domain.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTransitionError for closed issue", err)
	}
}

func TestUnknownIssueNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.CloseIssue(context.Background(), "missing", "cdo@company.com")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
