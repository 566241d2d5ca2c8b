// Package orchestrator coordinates governance cycles: it builds the step
// graph from the phase templates, runs automated steps through agents,
// pauses cycles on human checkpoints and resumes them once every blocking
// task is decided.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"regline/internal/assign"
	"regline/internal/audit"
	"regline/internal/config"
	"regline/internal/domain"
	"regline/internal/repo"
	"regline/internal/tasks"
)

// Notifier delivers fire-and-forget notifications. Delivery failures are
// logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

var cycleNamespace = uuid.MustParse("7f1c2a4e-9a3b-5c6d-8e0f-1a2b3c4d5e6f")

// ErrCycleExists is returned when a cycle for the same report and period has
// already been started.
var ErrCycleExists = errors.New("cycle already exists")

type Orchestrator struct {
	DB       *sql.DB
	Repo     repo.Repo
	Audit    audit.Writer
	Config   *config.Config
	Tasks    tasks.Manager
	Agents   *Registry
	Router   assign.Router
	Notifier Notifier
	Logger   *log.Logger
	Now      func() time.Time

	mu      sync.Mutex
	cycleMu map[string]*sync.Mutex
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}

// lockCycle serializes all mutating work for one cycle. Different cycles
// proceed concurrently.
func (o *Orchestrator) lockCycle(cycleID string) func() {
	o.mu.Lock()
	if o.cycleMu == nil {
		o.cycleMu = make(map[string]*sync.Mutex)
	}
	mu, ok := o.cycleMu[cycleID]
	if !ok {
		mu = &sync.Mutex{}
		o.cycleMu[cycleID] = mu
	}
	o.mu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// CycleID derives the deterministic id for a report and period. Starting the
// same cycle twice collides on it instead of creating a duplicate.
func CycleID(reportID, periodEnd string) string {
	return uuid.NewSHA1(cycleNamespace, []byte(reportID+"|"+periodEnd)).String()
}

// StartReportCycle creates a cycle with its full step graph and runs the
// first eligible automated steps.
func (o *Orchestrator) StartReportCycle(ctx context.Context, reportID, periodEnd, actor string) (domain.CycleInstance, error) {
	if periodEnd == "" {
		return domain.CycleInstance{}, &domain.ValidationError{Field: "period_end"}
	}
	report, err := o.Repo.GetReport(ctx, reportID)
	if err != nil {
		return domain.CycleInstance{}, err
	}

	cycleID := CycleID(report.ID, periodEnd)
	unlock := o.lockCycle(cycleID)
	defer unlock()

	if _, err := o.Repo.GetCycle(ctx, cycleID); err == nil {
		return domain.CycleInstance{}, fmt.Errorf("cycle for report %s period %s: %w", report.ID, periodEnd, ErrCycleExists)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.CycleInstance{}, err
	}

	ts := o.now().UTC().Format(time.RFC3339)
	cycle := domain.CycleInstance{
		ID:           cycleID,
		ReportID:     report.ID,
		PeriodEnd:    periodEnd,
		Status:       domain.CycleActive,
		CurrentPhase: domain.PhaseOrder[0],
		StartedAt:    ts,
	}

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	defer tx.Rollback()

	if err := o.Repo.InsertCycle(ctx, tx, cycle); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := o.insertStepGraph(ctx, tx, cycle); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType: "cycle",
		EntityID:   cycle.ID,
		Action:     "cycle.started",
		Actor:      actor,
		ActorType:  domain.ActorHuman,
		NewState:   audit.Snapshot(cycle),
	}); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CycleInstance{}, err
	}

	if err := o.advance(ctx, cycle.ID, actor); err != nil {
		return domain.CycleInstance{}, err
	}
	return o.Repo.GetCycle(ctx, cycle.ID)
}

// insertStepGraph instantiates the configured phase templates. Steps with no
// declared dependency chain onto the last step of the previous phase, so
// phases execute strictly in order.
func (o *Orchestrator) insertStepGraph(ctx context.Context, tx *sql.Tx, cycle domain.CycleInstance) error {
	position := 0
	var prevPhaseTail string
	for _, phase := range o.Config.Phases {
		idsByName := make(map[string]string, len(phase.Steps))
		for _, tmpl := range phase.Steps {
			idsByName[tmpl.Name] = uuid.NewSHA1(cycleNamespace, []byte(cycle.ID+"|"+tmpl.Name)).String()
		}
		var tail string
		for _, tmpl := range phase.Steps {
			step := domain.WorkflowStep{
				ID:                idsByName[tmpl.Name],
				CycleID:           cycle.ID,
				Phase:             phase.Name,
				Name:              tmpl.Name,
				IsHumanCheckpoint: tmpl.Checkpoint,
				Status:            domain.StepPending,
				Position:          position,
			}
			if tmpl.Agent != "" {
				agent := tmpl.Agent
				step.AgentType = &agent
			}
			if tmpl.Role != "" {
				role := tmpl.Role
				step.RequiredRole = &role
			}
			for _, dep := range tmpl.DependsOn {
				step.DependsOn = append(step.DependsOn, idsByName[dep])
			}
			if len(step.DependsOn) == 0 && prevPhaseTail != "" {
				step.DependsOn = append(step.DependsOn, prevPhaseTail)
			}
			if err := o.Repo.InsertStep(ctx, tx, step); err != nil {
				return err
			}
			tail = step.ID
			position++
		}
		if tail != "" {
			prevPhaseTail = tail
		}
	}
	return nil
}

// GetCycle returns one cycle.
func (o *Orchestrator) GetCycle(ctx context.Context, cycleID string) (domain.CycleInstance, error) {
	return o.Repo.GetCycle(ctx, cycleID)
}

// GetWorkflowSteps lists the steps of a cycle in execution order.
func (o *Orchestrator) GetWorkflowSteps(ctx context.Context, cycleID string) ([]domain.WorkflowStep, error) {
	if _, err := o.Repo.GetCycle(ctx, cycleID); err != nil {
		return nil, err
	}
	return o.Repo.ListSteps(ctx, cycleID)
}

// Advance runs every currently eligible automated step and opens checkpoint
// tasks for eligible human steps. Safe to call at any time; it does nothing
// when the cycle is paused or closed.
func (o *Orchestrator) Advance(ctx context.Context, cycleID, actor string) error {
	unlock := o.lockCycle(cycleID)
	defer unlock()
	return o.advance(ctx, cycleID, actor)
}

// advance assumes the cycle lock is held.
func (o *Orchestrator) advance(ctx context.Context, cycleID, actor string) error {
	for {
		cycle, err := o.Repo.GetCycle(ctx, cycleID)
		if err != nil {
			return err
		}
		if cycle.Status != domain.CycleActive {
			return nil
		}
		steps, err := o.Repo.ListSteps(ctx, cycleID)
		if err != nil {
			return err
		}
		if err := o.syncCurrentPhase(ctx, cycle, steps); err != nil {
			return err
		}

		progressed := false
		for _, step := range steps {
			if step.Status != domain.StepPending || !depsCompleted(step, steps) {
				continue
			}
			if step.IsHumanCheckpoint {
				if err := o.openCheckpoint(ctx, cycle, step); err != nil {
					return err
				}
				// Opening a checkpoint pauses the cycle, nothing else
				// can run until it is decided.
				return nil
			}
			if err := o.runStep(ctx, cycle, step); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

func depsCompleted(step domain.WorkflowStep, all []domain.WorkflowStep) bool {
	byID := make(map[string]domain.WorkflowStep, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	for _, dep := range step.DependsOn {
		if byID[dep].Status != domain.StepCompleted {
			return false
		}
	}
	return true
}

// syncCurrentPhase moves CurrentPhase to the phase of the earliest unfinished
// step.
func (o *Orchestrator) syncCurrentPhase(ctx context.Context, cycle domain.CycleInstance, steps []domain.WorkflowStep) error {
	phase := domain.PhaseOrder[len(domain.PhaseOrder)-1]
	for _, s := range steps {
		if s.Status != domain.StepCompleted {
			phase = s.Phase
			break
		}
	}
	if phase == cycle.CurrentPhase {
		return nil
	}
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	prev := cycle
	cycle.CurrentPhase = phase
	if err := o.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		Action:        "cycle.phase_advanced",
		Actor:         "orchestrator",
		ActorType:     domain.ActorSystem,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// runStep executes one automated step. The agent runs outside any
// transaction; its verdict is recorded afterwards. A failed step does not
// pause the cycle, it only blocks its dependants.
func (o *Orchestrator) runStep(ctx context.Context, cycle domain.CycleInstance, step domain.WorkflowStep) error {
	started := o.now().UTC().Format(time.RFC3339)
	step.Status = domain.StepInProgress
	step.StartedAt = &started
	if err := o.updateStep(ctx, step, "step.started", nil); err != nil {
		return err
	}

	result, invokeErr := o.invokeAgent(ctx, cycle, step)

	finished := o.now().UTC().Format(time.RFC3339)
	step.CompletedAt = &finished
	if invokeErr != nil || !result.Success {
		reason := "agent reported failure"
		if invokeErr != nil {
			reason = invokeErr.Error()
		} else if len(result.Errors) > 0 {
			reason = result.Errors[0]
		}
		step.Status = domain.StepFailed
		step.FailureReason = &reason
		o.logf("cycle %s: step %q failed: %s", cycle.ID, step.Name, reason)
		return o.updateStep(ctx, step, "step.failed", &reason)
	}
	step.Status = domain.StepCompleted
	return o.updateStep(ctx, step, "step.completed", nil)
}

func (o *Orchestrator) invokeAgent(ctx context.Context, cycle domain.CycleInstance, step domain.WorkflowStep) (AgentResult, error) {
	if step.AgentType == nil {
		return AgentResult{}, fmt.Errorf("step %q has no agent type", step.Name)
	}
	if o.Agents == nil {
		return AgentResult{}, fmt.Errorf("no agent registered for %q", *step.AgentType)
	}
	agent, ok := o.Agents.Lookup(*step.AgentType)
	if !ok {
		return AgentResult{}, fmt.Errorf("no agent registered for %q", *step.AgentType)
	}
	return agent.Invoke(ctx, AgentContext{
		CycleID:  cycle.ID,
		ReportID: cycle.ReportID,
		Phase:    string(step.Phase),
		StepName: step.Name,
	})
}

func (o *Orchestrator) updateStep(ctx context.Context, step domain.WorkflowStep, action string, rationale *string) error {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := o.Repo.UpdateStep(ctx, tx, step); err != nil {
		return err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType: "step",
		EntityID:   step.ID,
		Action:     action,
		Actor:      "orchestrator",
		ActorType:  domain.ActorSystem,
		NewState:   audit.Snapshot(step),
		Rationale:  rationale,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// openCheckpoint creates the human task for a checkpoint step and pauses the
// cycle until it is decided.
func (o *Orchestrator) openCheckpoint(ctx context.Context, cycle domain.CycleInstance, step domain.WorkflowStep) error {
	role := ""
	if step.RequiredRole != nil {
		role = *step.RequiredRole
	}
	dueHours := o.Config.Escalation.DefaultDueHours
	if dueHours <= 0 {
		dueHours = 72
	}
	due := o.now().UTC().Add(time.Duration(dueHours) * time.Hour).Format(time.RFC3339)

	stepID := step.ID
	task, err := o.Tasks.Create(ctx, tasks.CreateInput{
		CycleID:      cycle.ID,
		StepID:       &stepID,
		Type:         step.Name,
		Title:        fmt.Sprintf("Checkpoint: %s", step.Name),
		AssignedRole: role,
		DueDate:      due,
		Actor:        "orchestrator",
		ActorType:    domain.ActorSystem,
	})
	if err != nil {
		return err
	}

	step.Status = domain.StepWaitingForHuman
	if err := o.updateStep(ctx, step, "step.waiting_for_human", nil); err != nil {
		return err
	}
	if err := o.pauseForTask(ctx, cycle.ID, task); err != nil {
		return err
	}
	o.notify(ctx, role, fmt.Sprintf("Action required: %s", task.Title),
		fmt.Sprintf("Cycle %s for report %s is waiting on task %s.", cycle.ID, cycle.ReportID, task.ID))
	return nil
}

// CreateHumanTask opens an ad hoc human task against a cycle and pauses it.
// When an unfinished checkpoint step requires the same role, the task is
// linked to that step and the step is flagged waiting_for_human, so deciding
// the task also settles the checkpoint.
func (o *Orchestrator) CreateHumanTask(ctx context.Context, in tasks.CreateInput) (domain.HumanTask, error) {
	unlock := o.lockCycle(in.CycleID)
	defer unlock()

	var roleStep *domain.WorkflowStep
	if in.StepID == nil && in.CycleID != "" && in.AssignedRole != "" {
		step, found, err := o.pendingStepForRole(ctx, in.CycleID, in.AssignedRole)
		if err != nil {
			return domain.HumanTask{}, err
		}
		if found {
			roleStep = &step
			in.StepID = &step.ID
		}
	}

	task, err := o.Tasks.Create(ctx, in)
	if err != nil {
		return domain.HumanTask{}, err
	}
	if roleStep != nil {
		roleStep.Status = domain.StepWaitingForHuman
		if err := o.updateStep(ctx, *roleStep, "step.waiting_for_human", nil); err != nil {
			return domain.HumanTask{}, err
		}
	}
	if err := o.pauseForTask(ctx, in.CycleID, task); err != nil {
		return domain.HumanTask{}, err
	}
	o.notify(ctx, task.AssignedRole, fmt.Sprintf("Action required: %s", task.Title),
		fmt.Sprintf("Cycle %s is waiting on task %s.", in.CycleID, task.ID))
	return task, nil
}

// pendingStepForRole finds the earliest pending step whose required role
// matches. Steps already waiting on their own checkpoint task are skipped.
func (o *Orchestrator) pendingStepForRole(ctx context.Context, cycleID, role string) (domain.WorkflowStep, bool, error) {
	steps, err := o.Repo.ListSteps(ctx, cycleID)
	if err != nil {
		return domain.WorkflowStep{}, false, err
	}
	for _, step := range steps {
		if step.Status != domain.StepPending || step.RequiredRole == nil || *step.RequiredRole != role {
			continue
		}
		return step, true, nil
	}
	return domain.WorkflowStep{}, false, nil
}

func (o *Orchestrator) pauseForTask(ctx context.Context, cycleID string, task domain.HumanTask) error {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cycle, err := o.Repo.GetCycleTx(ctx, tx, cycleID)
	if err != nil {
		return err
	}
	if cycle.Status == domain.CyclePaused {
		return nil
	}
	if err := domain.EnsureCycleTransition(cycle.Status, domain.CyclePaused); err != nil {
		return err
	}
	prev := cycle
	reason := fmt.Sprintf("Waiting for human task: %s", task.Type)
	cycle.Status = domain.CyclePaused
	cycle.PauseReason = &reason
	if err := o.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		Action:        "cycle.paused",
		Actor:         "orchestrator",
		ActorType:     domain.ActorSystem,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
		Rationale:     &reason,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CompleteHumanTask records the decision, settles the linked step and
// resumes the cycle once no blocking task remains.
func (o *Orchestrator) CompleteHumanTask(ctx context.Context, taskID, actor string, decision domain.Decision) (domain.HumanTask, error) {
	existing, err := o.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.HumanTask{}, err
	}
	unlock := o.lockCycle(existing.CycleID)
	defer unlock()

	wasCompleted := existing.Status == domain.TaskCompleted
	task, err := o.Tasks.Complete(ctx, taskID, actor, decision)
	if err != nil {
		return domain.HumanTask{}, err
	}
	if wasCompleted {
		return task, nil
	}

	if task.StepID != nil {
		if err := o.settleCheckpointStep(ctx, task); err != nil {
			return domain.HumanTask{}, err
		}
	}
	if err := o.maybeResume(ctx, task.CycleID, actor); err != nil {
		return domain.HumanTask{}, err
	}
	return task, nil
}

func (o *Orchestrator) settleCheckpointStep(ctx context.Context, task domain.HumanTask) error {
	step, err := o.Repo.GetStep(ctx, *task.StepID)
	if err != nil {
		return err
	}
	if step.Status == domain.StepCompleted || step.Status == domain.StepFailed {
		return nil
	}
	finished := o.now().UTC().Format(time.RFC3339)
	step.CompletedAt = &finished
	if task.Decision != nil && task.Decision.Outcome == "rejected" {
		reason := "checkpoint rejected"
		if task.Decision.Rationale != "" {
			reason = task.Decision.Rationale
		}
		step.Status = domain.StepFailed
		step.FailureReason = &reason
		return o.updateStep(ctx, step, "step.failed", &reason)
	}
	step.Status = domain.StepCompleted
	return o.updateStep(ctx, step, "step.completed", nil)
}

// maybeResume reactivates a paused cycle once no open task blocks it, then
// keeps advancing.
func (o *Orchestrator) maybeResume(ctx context.Context, cycleID, actor string) error {
	blocking, err := o.Repo.BlockingTasksForCycle(ctx, nil, cycleID)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return nil
	}

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	cycle, err := o.Repo.GetCycleTx(ctx, tx, cycleID)
	if err != nil {
		return err
	}
	if cycle.Status != domain.CyclePaused {
		return nil
	}
	prev := cycle
	cycle.Status = domain.CycleActive
	cycle.PauseReason = nil
	if err := o.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		Action:        "cycle.resumed",
		Actor:         "orchestrator",
		ActorType:     domain.ActorSystem,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return o.advance(ctx, cycleID, actor)
}

// CancelCycle terminally cancels a cycle and withdraws its open tasks.
// Cancelling an already cancelled cycle is a no-op.
func (o *Orchestrator) CancelCycle(ctx context.Context, cycleID, actor, reason string) (domain.CycleInstance, error) {
	unlock := o.lockCycle(cycleID)
	defer unlock()

	cycle, err := o.Repo.GetCycle(ctx, cycleID)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	if cycle.Status == domain.CycleCancelled {
		return cycle, nil
	}
	if err := domain.EnsureCycleTransition(cycle.Status, domain.CycleCancelled); err != nil {
		return domain.CycleInstance{}, err
	}

	open, err := o.Repo.BlockingTasksForCycle(ctx, nil, cycleID)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	for _, task := range open {
		if _, err := o.Tasks.Cancel(ctx, task.ID, actor, "cycle cancelled"); err != nil {
			return domain.CycleInstance{}, err
		}
	}

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	defer tx.Rollback()
	prev := cycle
	ts := o.now().UTC().Format(time.RFC3339)
	cycle.Status = domain.CycleCancelled
	cycle.CompletedAt = &ts
	if err := o.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return domain.CycleInstance{}, err
	}
	var ratPtr *string
	if reason != "" {
		ratPtr = &reason
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		Action:        "cycle.cancelled",
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(cycle),
		Rationale:     ratPtr,
	}); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CycleInstance{}, err
	}
	return cycle, nil
}

// CloseCycle finishes a confirmed cycle.
func (o *Orchestrator) CloseCycle(ctx context.Context, cycleID, actor string) (domain.CycleInstance, error) {
	unlock := o.lockCycle(cycleID)
	defer unlock()

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	defer tx.Rollback()

	cycle, err := o.Repo.GetCycleTx(ctx, tx, cycleID)
	if err != nil {
		return domain.CycleInstance{}, err
	}
	if cycle.Status == domain.CycleCompleted {
		return cycle, nil
	}
	if err := domain.EnsureCycleTransition(cycle.Status, domain.CycleCompleted); err != nil {
		return domain.CycleInstance{}, err
	}
	prev := cycle
	ts := o.now().UTC().Format(time.RFC3339)
	cycle.Status = domain.CycleCompleted
	cycle.CompletedAt = &ts
	if err := o.Repo.UpdateCycle(ctx, tx, cycle); err != nil {
		return domain.CycleInstance{}, err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		Action:        "cycle.completed",
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

type RaiseIssueInput struct {
	CycleID         string
	ReportID        string
	Title           string
	Description     string
	Source          string
	ImpactedReports []string
	ImpactedCDEs    []string
	DataDomain      string
	Severity        domain.Severity
	Actor           string
	ActorType       domain.ActorType
}

// RaiseIssue registers a data quality issue and routes it to its initial
// assignee.
func (o *Orchestrator) RaiseIssue(ctx context.Context, in RaiseIssueInput) (domain.Issue, error) {
	if in.Title == "" {
		return domain.Issue{}, &domain.ValidationError{Field: "title"}
	}
	if !domain.ValidSeverity(in.Severity) {
		return domain.Issue{}, &domain.ValidationError{Field: "severity", Message: fmt.Sprintf("unknown severity %q", in.Severity)}
	}

	reportID := in.ReportID
	var cycleID *string
	if in.CycleID != "" {
		cycle, err := o.Repo.GetCycle(ctx, in.CycleID)
		if err != nil {
			return domain.Issue{}, err
		}
		id := cycle.ID
		cycleID = &id
		if reportID == "" {
			reportID = cycle.ReportID
		}
	}
	if reportID == "" && len(in.ImpactedReports) > 0 {
		reportID = in.ImpactedReports[0]
	}

	assignee, err := o.Router.Resolve(ctx, reportID, in.ImpactedCDEs, in.DataDomain)
	if err != nil {
		return domain.Issue{}, err
	}

	ts := o.now().UTC().Format(time.RFC3339)
	issue := domain.Issue{
		ID:              uuid.NewString(),
		CycleID:         cycleID,
		Title:           in.Title,
		Description:     in.Description,
		Source:          in.Source,
		ImpactedReports: in.ImpactedReports,
		ImpactedCDEs:    in.ImpactedCDEs,
		Severity:        in.Severity,
		Status:          domain.IssueOpen,
		Assignee:        assignee,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	if err := o.Repo.InsertIssue(ctx, tx, issue); err != nil {
		return domain.Issue{}, err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType: "issue",
		EntityID:   issue.ID,
		Action:     "issue.raised",
		Actor:      in.Actor,
		ActorType:  in.ActorType,
		NewState:   audit.Snapshot(issue),
	}); err != nil {
		return domain.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, err
	}

	o.notify(ctx, assignee, fmt.Sprintf("Issue assigned: %s", issue.Title),
		fmt.Sprintf("Severity %s issue %s has been assigned to you.", issue.Severity, issue.ID))
	return issue, nil
}

func (o *Orchestrator) notify(ctx context.Context, recipient, subject, body string) {
	if o.Notifier == nil || recipient == "" {
		return
	}
	if err := o.Notifier.Notify(ctx, recipient, subject, body); err != nil {
		o.logf("notify %s: %v", recipient, err)
	}
}
