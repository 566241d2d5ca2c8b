package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"regline/internal/assign"
	"regline/internal/audit"
	"regline/internal/config"
	"regline/internal/db"
	"regline/internal/domain"
	"regline/internal/migrate"
	"regline/internal/repo"
	"regline/internal/tasks"
)

type recordingNotifier struct {
	recipients []string
}

func (n *recordingNotifier) Notify(_ context.Context, recipient, _, _ string) error {
	n.recipients = append(n.recipients, recipient)
	return nil
}

type testEnv struct {
	Orch     *Orchestrator
	Repo     repo.Repo
	Notifier *recordingNotifier
	invoked  []string
	failing  map[string]bool
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

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	env := &testEnv{Repo: repo.Repo{DB: conn}, Notifier: &recordingNotifier{}, failing: map[string]bool{}}
	clock := func() time.Time { return time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC) }
	aw := audit.Writer{Now: clock}

	agents := NewRegistry()
	for _, name := range []string{"regulatory_intelligence", "data_requirements", "cde_identification", "data_quality", "lineage", "issue_management", "controls", "documentation"} {
		agent := name
		agents.Register(agent, AgentFunc(func(_ context.Context, ac AgentContext) (AgentResult, error) {
			env.invoked = append(env.invoked, ac.StepName)
			if env.failing[ac.StepName] {
				return AgentResult{Success: false, Errors: []string{"upstream source unavailable"}}, nil
			}
			return AgentResult{Success: true, Output: `{"ok":true}`}, nil
		}))
	}

	env.Orch = &Orchestrator{
		DB:       conn,
		Repo:     env.Repo,
		Audit:    aw,
		Config:   cfg,
		Tasks:    tasks.Manager{DB: conn, Repo: env.Repo, Audit: aw, Now: clock},
		Agents:   agents,
		Router:   assign.Router{Inventory: env.Repo},
		Notifier: env.Notifier,
		Now:      clock,
	}

	ts := clock().Format(time.RFC3339)
	if err := env.Repo.InsertReport(context.Background(), domain.ReportDefinition{ID: "FR2052a", Name: "Liquidity Monitoring", Regulator: "FED", CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e *testEnv) stepByName(t *testing.T, cycleID, name string) domain.WorkflowStep {
	t.Helper()
	steps, err := e.Repo.ListSteps(context.Background(), cycleID)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("step %q not found", name)
	return domain.WorkflowStep{}
}

func (e *testEnv) openTask(t *testing.T, cycleID string) domain.HumanTask {
	t.Helper()
	open, err := e.Orch.Tasks.PendingForCycle(context.Background(), cycleID)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Fatalf("open tasks = %d, want 1", len(open))
	}
	return open[0]
}

func TestStartCyclePausesAtFirstCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatalf("start cycle: %v", err)
	}
	if cycle.Status != domain.CyclePaused {
		t.Fatalf("status = %s, want paused", cycle.Status)
	}
	if cycle.PauseReason == nil || *cycle.PauseReason != "Waiting for human task: review_regulatory_changes" {
		t.Fatalf("pause_reason = %v", cycle.PauseReason)
	}
	if cycle.CurrentPhase != domain.PhaseRegulatoryIntelligence {
		t.Fatalf("current_phase = %s", cycle.CurrentPhase)
	}

	if s := env.stepByName(t, cycle.ID, "scan_regulatory_updates"); s.Status != domain.StepCompleted {
		t.Fatalf("scan step = %s, want completed", s.Status)
	}
	if s := env.stepByName(t, cycle.ID, "assess_report_impact"); s.Status != domain.StepCompleted {
		t.Fatalf("assess step = %s, want completed", s.Status)
	}
	if s := env.stepByName(t, cycle.ID, "review_regulatory_changes"); s.Status != domain.StepWaitingForHuman {
		t.Fatalf("checkpoint step = %s, want waiting_for_human", s.Status)
	}

	task := env.openTask(t, cycle.ID)
	if task.AssignedRole != "compliance_officer" {
		t.Fatalf("assigned_role = %s, want compliance_officer", task.AssignedRole)
	}
	if len(env.Notifier.recipients) == 0 || env.Notifier.recipients[0] != "compliance_officer" {
		t.Fatalf("notifications = %v", env.Notifier.recipients)
	}
}

func TestStartCycleTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if !errors.Is(err, ErrCycleExists) {
		t.Fatalf("err = %v, want ErrCycleExists", err)
	}
}

func TestStartCycleUnknownReport(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.StartReportCycle(context.Background(), "nope", "2026-03-31", "maria@company.com")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApprovedCheckpointResumesIntoNextPhase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}

	task := env.openTask(t, cycle.ID)
	if _, err := env.Orch.CompleteHumanTask(ctx, task.ID, "compliance@company.com", domain.Decision{Outcome: "approved", Rationale: "no material changes"}); err != nil {
		t.Fatalf("complete checkpoint: %v", err)
	}

	got, err := env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The cycle resumed, ran the next automated step and paused at the
	// next checkpoint.
	if got.Status != domain.CyclePaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}
	if got.CurrentPhase != domain.PhaseDataRequirements {
		t.Fatalf("current_phase = %s, want data_requirements", got.CurrentPhase)
	}
	if s := env.stepByName(t, cycle.ID, "extract_data_requirements"); s.Status != domain.StepCompleted {
		t.Fatalf("extract step = %s, want completed", s.Status)
	}
	next := env.openTask(t, cycle.ID)
	if next.AssignedRole != "report_owner" {
		t.Fatalf("assigned_role = %s, want report_owner", next.AssignedRole)
	}
}

func TestRejectedCheckpointFailsStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}

	task := env.openTask(t, cycle.ID)
	if _, err := env.Orch.CompleteHumanTask(ctx, task.ID, "compliance@company.com", domain.Decision{Outcome: "rejected", Rationale: "impact assessment incomplete"}); err != nil {
		t.Fatal(err)
	}

	step := env.stepByName(t, cycle.ID, "review_regulatory_changes")
	if step.Status != domain.StepFailed {
		t.Fatalf("step = %s, want failed", step.Status)
	}
	if step.FailureReason == nil || *step.FailureReason != "impact assessment incomplete" {
		t.Fatalf("failure_reason = %v", step.FailureReason)
	}

	got, err := env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	// No blocking task remains so the cycle resumes, but the failed step
	// blocks everything downstream.
	if got.Status != domain.CycleActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if s := env.stepByName(t, cycle.ID, "extract_data_requirements"); s.Status != domain.StepPending {
		t.Fatalf("downstream step = %s, want pending", s.Status)
	}
}

func TestResumeWaitsForEveryBlockingTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}
	checkpoint := env.openTask(t, cycle.ID)

	extra, err := env.Orch.CreateHumanTask(ctx, tasks.CreateInput{
		CycleID:      cycle.ID,
		Type:         "evidence_request",
		Title:        "Provide source extracts",
		AssignedRole: "data_steward",
		DueDate:      "2026-02-10T00:00:00Z",
		Actor:        "maria@company.com",
		ActorType:    domain.ActorHuman,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := env.Orch.CompleteHumanTask(ctx, checkpoint.ID, "compliance@company.com", domain.Decision{Outcome: "approved"}); err != nil {
		t.Fatal(err)
	}
	got, err := env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.CyclePaused {
		t.Fatalf("status = %s, want still paused while a task remains open", got.Status)
	}

	if _, err := env.Orch.CompleteHumanTask(ctx, extra.ID, "steward@company.com", domain.Decision{Outcome: "approved"}); err != nil {
		t.Fatal(err)
	}
	got, err = env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.CyclePaused {
		t.Fatalf("status = %s, want paused at the next checkpoint", got.Status)
	}
	if got.PauseReason == nil || *got.PauseReason != "Waiting for human task: approve_requirements_document" {
		t.Fatalf("pause_reason = %v", got.PauseReason)
	}
}

func TestAdHocTaskFlagsMatchingRoleStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}

	// The requirements checkpoint further down needs report_owner and has
	// not run yet.
	if s := env.stepByName(t, cycle.ID, "approve_requirements_document"); s.Status != domain.StepPending {
		t.Fatalf("requirements checkpoint = %s, want pending", s.Status)
	}

	task, err := env.Orch.CreateHumanTask(ctx, tasks.CreateInput{
		CycleID:      cycle.ID,
		Type:         "requirements_signoff",
		Title:        "Sign off requirements early",
		AssignedRole: "report_owner",
		DueDate:      "2026-02-10T00:00:00Z",
		Actor:        "maria@company.com",
		ActorType:    domain.ActorHuman,
	})
	if err != nil {
		t.Fatal(err)
	}

	step := env.stepByName(t, cycle.ID, "approve_requirements_document")
	if step.Status != domain.StepWaitingForHuman {
		t.Fatalf("step = %s, want waiting_for_human", step.Status)
	}
	if task.StepID == nil || *task.StepID != step.ID {
		t.Fatalf("task step_id = %v, want %s", task.StepID, step.ID)
	}

	// Deciding the task settles the checkpoint it was linked to, while the
	// first checkpoint keeps the cycle paused.
	if _, err := env.Orch.CompleteHumanTask(ctx, task.ID, "owner@company.com", domain.Decision{Outcome: "approved"}); err != nil {
		t.Fatal(err)
	}
	if s := env.stepByName(t, cycle.ID, "approve_requirements_document"); s.Status != domain.StepCompleted {
		t.Fatalf("step = %s, want completed", s.Status)
	}
	got, err := env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.CyclePaused {
		t.Fatalf("status = %s, want still paused on the first checkpoint", got.Status)
	}
}

func TestAgentFailureDoesNotPauseCycle(t *testing.T) {
	env := newTestEnv(t)
	env.failing["scan_regulatory_updates"] = true
	ctx := context.Background()

	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}
	if cycle.Status != domain.CycleActive {
		t.Fatalf("status = %s, want active", cycle.Status)
	}

	step := env.stepByName(t, cycle.ID, "scan_regulatory_updates")
	if step.Status != domain.StepFailed {
		t.Fatalf("step = %s, want failed", step.Status)
	}
	if step.FailureReason == nil || *step.FailureReason != "upstream source unavailable" {
		t.Fatalf("failure_reason = %v", step.FailureReason)
	}
	if s := env.stepByName(t, cycle.ID, "assess_report_impact"); s.Status != domain.StepPending {
		t.Fatalf("dependent step = %s, want pending", s.Status)
	}
}

func TestCompleteHumanTaskIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}
	task := env.openTask(t, cycle.ID)

	if _, err := env.Orch.CompleteHumanTask(ctx, task.ID, "compliance@company.com", domain.Decision{Outcome: "approved"}); err != nil {
		t.Fatal(err)
	}
	repeat, err := env.Orch.CompleteHumanTask(ctx, task.ID, "compliance@company.com", domain.Decision{Outcome: "rejected"})
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if repeat.Decision.Outcome != "approved" {
		t.Fatalf("decision = %+v, want original preserved", repeat.Decision)
	}

	// The repeated call must not have disturbed the checkpoint step.
	if s := env.stepByName(t, cycle.ID, "review_regulatory_changes"); s.Status != domain.StepCompleted {
		t.Fatalf("step = %s, want completed", s.Status)
	}
}

func TestCancelCycleWithdrawsOpenTasks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}
	task := env.openTask(t, cycle.ID)

	cancelled, err := env.Orch.CancelCycle(ctx, cycle.ID, "maria@company.com", "report retired")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.CycleCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	got, err := env.Repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskCancelled {
		t.Fatalf("task status = %s, want cancelled", got.Status)
	}

	// Cancelling again is a no-op.
	if _, err := env.Orch.CancelCycle(ctx, cycle.ID, "maria@company.com", ""); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestRaiseIssueRoutesToCDEOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	content := `{"report_id":"FR2052a","cdes":[{"id":"cde-hqla","name":"HQLA balance","data_domain":"liquidity","data_owner_email":"owner@company.com"}]}`
	tx, err := env.Orch.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	err = env.Repo.InsertArtifact(ctx, tx, domain.Artifact{
		ID: "inv-1", ReportID: "FR2052a", Kind: domain.KindCDEInventory, Name: "cde inventory",
		Version: 1, Status: domain.ArtifactApproved, ContentJSON: content,
		CreatedAt: "2026-02-02T08:00:00Z", UpdatedAt: "2026-02-02T08:00:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	issue, err := env.Orch.RaiseIssue(ctx, RaiseIssueInput{
		ReportID:        "FR2052a",
		Title:           "HQLA balance fails completeness check",
		ImpactedReports: []string{"FR2052a"},
		ImpactedCDEs:    []string{"cde-hqla"},
		DataDomain:      "liquidity",
		Severity:        domain.SeverityHigh,
		Actor:           "dq-monitor",
		ActorType:       domain.ActorAgent,
	})
	if err != nil {
		t.Fatalf("raise issue: %v", err)
	}
	if issue.Assignee != "owner@company.com" {
		t.Fatalf("assignee = %s, want owner@company.com", issue.Assignee)
	}

	noOwner, err := env.Orch.RaiseIssue(ctx, RaiseIssueInput{
		ReportID:     "FR2052a",
		Title:        "Unknown CDE flagged",
		ImpactedCDEs: []string{"cde-missing"},
		DataDomain:   "liquidity",
		Severity:     domain.SeverityLow,
		Actor:        "dq-monitor",
		ActorType:    domain.ActorAgent,
	})
	if err != nil {
		t.Fatal(err)
	}
	if noOwner.Assignee != "liquidity-steward@company.com" {
		t.Fatalf("assignee = %s, want liquidity-steward@company.com", noOwner.Assignee)
	}

	unrouted, err := env.Orch.RaiseIssue(ctx, RaiseIssueInput{
		Title:    "Orphan finding",
		Severity: domain.SeverityMedium,
		Actor:    "dq-monitor",
	})
	if err != nil {
		t.Fatal(err)
	}
	if unrouted.Assignee != assign.UnassignedEmail {
		t.Fatalf("assignee = %s, want %s", unrouted.Assignee, assign.UnassignedEmail)
	}
}

func TestRaiseIssueRejectsUnknownSeverity(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Orch.RaiseIssue(context.Background(), RaiseIssueInput{Title: "x", Severity: "urgent", Actor: "a"})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestFullCycleReachesAttestation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cycle, err := env.Orch.StartReportCycle(ctx, "FR2052a", "2026-03-31", "maria@company.com")
	if err != nil {
		t.Fatal(err)
	}

	// Approve every checkpoint in order. Nine phases, one checkpoint each.
	for i := 0; i < len(domain.PhaseOrder); i++ {
		task := env.openTask(t, cycle.ID)
		if _, err := env.Orch.CompleteHumanTask(ctx, task.ID, "approver@company.com", domain.Decision{Outcome: "approved"}); err != nil {
			t.Fatalf("checkpoint %d: %v", i, err)
		}
	}

	got, err := env.Repo.GetCycle(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.CycleActive {
		t.Fatalf("status = %s, want active and ready for submission", got.Status)
	}
	if got.CurrentPhase != domain.PhaseAttestation {
		t.Fatalf("current_phase = %s, want attestation", got.CurrentPhase)
	}
	steps, err := env.Repo.ListSteps(ctx, cycle.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range steps {
		if s.Status != domain.StepCompleted {
			t.Fatalf("step %s = %s, want completed", s.Name, s.Status)
		}
	}

	entries, err := env.Repo.ListAuditEntries(ctx, repo.AuditFilters{EntityType: "cycle", EntityID: cycle.ID})
	if err != nil {
		t.Fatal(err)
	}
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	for _, want := range []string{"cycle.started", "cycle.paused", "cycle.resumed", "cycle.phase_advanced"} {
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
