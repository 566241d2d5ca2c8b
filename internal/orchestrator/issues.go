package orchestrator

import (
	"context"
	"fmt"
	"time"

	"regline/internal/audit"
	"regline/internal/domain"
)

// StartIssueWork moves an open issue to in_progress.
func (o *Orchestrator) StartIssueWork(ctx context.Context, issueID, actor string) (domain.Issue, error) {
	return o.mutateIssue(ctx, issueID, actor, "issue.started", nil, func(i *domain.Issue) (bool, error) {
		if i.Status == domain.IssueInProgress {
			return false, nil
		}
		if err := domain.EnsureIssueTransition(i.Status, domain.IssueInProgress); err != nil {
			return false, err
		}
		i.Status = domain.IssueInProgress
		return true, nil
	})
}

// ResolveIssue records the outcome of issue work. Resolution text is
// mandatory and stored on the issue as well as in the audit rationale; root
// cause is kept when provided.
func (o *Orchestrator) ResolveIssue(ctx context.Context, issueID, actor, rootCause, resolution string) (domain.Issue, error) {
	if resolution == "" {
		return domain.Issue{}, &domain.ValidationError{Field: "resolution"}
	}
	return o.mutateIssue(ctx, issueID, actor, "issue.resolved", &resolution, func(i *domain.Issue) (bool, error) {
		if i.Status == domain.IssueResolved {
			return false, nil
		}
		if err := domain.EnsureIssueTransition(i.Status, domain.IssueResolved); err != nil {
			return false, err
		}
		i.Status = domain.IssueResolved
		i.Resolution = &resolution
		if rootCause != "" {
			i.RootCause = &rootCause
		}
		return true, nil
	})
}

// CloseIssue terminally closes an issue. Closing an already closed issue is
// a no-op.
func (o *Orchestrator) CloseIssue(ctx context.Context, issueID, actor string) (domain.Issue, error) {
	return o.mutateIssue(ctx, issueID, actor, "issue.closed", nil, func(i *domain.Issue) (bool, error) {
		if i.Status == domain.IssueClosed {
			return false, nil
		}
		if err := domain.EnsureIssueTransition(i.Status, domain.IssueClosed); err != nil {
			return false, err
		}
		i.Status = domain.IssueClosed
		return true, nil
	})
}

// ReassignIssue hands an issue to a new assignee. The router picks the
// initial assignee at creation; this is the only path that changes it
// afterwards.
func (o *Orchestrator) ReassignIssue(ctx context.Context, issueID, actor, assignee string) (domain.Issue, error) {
	if assignee == "" {
		return domain.Issue{}, &domain.ValidationError{Field: "assignee"}
	}
	issue, err := o.mutateIssue(ctx, issueID, actor, "issue.reassigned", nil, func(i *domain.Issue) (bool, error) {
		if domain.IsIssueTerminal(i.Status) {
			return false, &domain.InvalidTransitionError{
				Entity:  "issue",
				From:    string(i.Status),
				To:      string(i.Status),
				Message: fmt.Sprintf("issue %s is closed and cannot be reassigned", i.ID),
			}
		}
		if i.Assignee == assignee {
			return false, nil
		}
		i.Assignee = assignee
		return true, nil
	})
	if err != nil {
		return domain.Issue{}, err
	}
	o.notify(ctx, assignee, fmt.Sprintf("Issue assigned: %s", issue.Title),
		fmt.Sprintf("Severity %s issue %s has been assigned to you.", issue.Severity, issue.ID))
	return issue, nil
}

// mutateIssue loads, applies fn and persists with an audit entry. If fn
// reports no change the issue is returned untouched and nothing is written.
func (o *Orchestrator) mutateIssue(ctx context.Context, issueID, actor, action string, rationale *string, fn func(*domain.Issue) (bool, error)) (domain.Issue, error) {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()

	issue, err := o.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	prev := issue
	changed, err := fn(&issue)
	if err != nil {
		return domain.Issue{}, err
	}
	if !changed {
		return issue, nil
	}
	issue.UpdatedAt = o.now().UTC().Format(time.RFC3339)
	if err := o.Repo.UpdateIssue(ctx, tx, issue); err != nil {
		return domain.Issue{}, err
	}
	if err := o.Audit.Append(ctx, tx, domain.AuditEntry{
		EntityType:    "issue",
		EntityID:      issue.ID,
		Action:        action,
		Actor:         actor,
		ActorType:     domain.ActorHuman,
		PreviousState: audit.Snapshot(prev),
		NewState:      audit.Snapshot(issue),
		Rationale:     rationale,
	}); err != nil {
		return domain.Issue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Issue{}, err
	}
	return issue, nil
}
