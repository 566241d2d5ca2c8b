// Package agents provides the built-in automated step implementations. Each
// phase agent drafts the artifact its phase is responsible for, leaving
// review and approval to the human checkpoints.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"regline/internal/domain"
	"regline/internal/lifecycle"
	"regline/internal/orchestrator"
	"regline/internal/repo"
)

// phaseKinds maps agent type to the artifact kind its phase produces.
var phaseKinds = map[string]domain.ArtifactKind{
	"regulatory_intelligence": domain.KindReportCatalog,
	"data_requirements":       domain.KindRequirementsDocument,
	"cde_identification":      domain.KindCDEInventory,
	"data_quality":            domain.KindDQRuleSet,
	"lineage":                 domain.KindLineageGraph,
	"controls":                domain.KindControlMatrix,
	"documentation":           domain.KindCompliancePackage,
}

// RegisterBuiltins wires every built-in agent into the registry.
func RegisterBuiltins(r *orchestrator.Registry, svc lifecycle.Service, rp repo.Repo) {
	for name, kind := range phaseKinds {
		r.Register(name, drafter{agent: name, kind: kind, svc: svc, repo: rp})
	}
	r.Register("issue_management", orchestrator.AgentFunc(triageIssues(rp)))
}

// drafter creates the phase artifact for a cycle when none exists yet.
// Re-running the step is safe: an existing artifact is left untouched.
type drafter struct {
	agent string
	kind  domain.ArtifactKind
	svc   lifecycle.Service
	repo  repo.Repo
}

func (d drafter) Invoke(ctx context.Context, ac orchestrator.AgentContext) (orchestrator.AgentResult, error) {
	start := time.Now()
	existing, err := d.repo.ListArtifacts(ctx, repo.ArtifactFilters{CycleID: ac.CycleID, Kind: string(d.kind)})
	if err != nil {
		return orchestrator.AgentResult{}, err
	}
	if len(existing) > 0 {
		out, _ := json.Marshal(map[string]string{"artifact_id": existing[0].ID, "note": "artifact already present"})
		return orchestrator.AgentResult{Success: true, Output: string(out), DurationMs: time.Since(start).Milliseconds()}, nil
	}

	content, _ := json.Marshal(map[string]any{
		"report_id":    ac.ReportID,
		"generated_by": d.agent,
		"step":         ac.StepName,
	})
	a, err := d.svc.CreateArtifact(ctx, lifecycle.CreateArtifactInput{
		CycleID:     ac.CycleID,
		ReportID:    ac.ReportID,
		Kind:        d.kind,
		Name:        fmt.Sprintf("%s %s", ac.ReportID, d.kind),
		ContentJSON: string(content),
		Actor:       "agent:" + d.agent,
		ActorType:   domain.ActorAgent,
	})
	if err != nil {
		return orchestrator.AgentResult{}, err
	}
	out, _ := json.Marshal(map[string]string{"artifact_id": a.ID})
	return orchestrator.AgentResult{Success: true, Output: string(out), DurationMs: time.Since(start).Milliseconds()}, nil
}

// triageIssues summarizes the open issues of the cycle. It never mutates
// them; disposition is the checkpoint reviewer's call.
func triageIssues(rp repo.Repo) func(ctx context.Context, ac orchestrator.AgentContext) (orchestrator.AgentResult, error) {
	return func(ctx context.Context, ac orchestrator.AgentContext) (orchestrator.AgentResult, error) {
		start := time.Now()
		open, err := rp.ListIssues(ctx, repo.IssueFilters{CycleID: ac.CycleID, Status: string(domain.IssueOpen)})
		if err != nil {
			return orchestrator.AgentResult{}, err
		}
		counts := map[domain.Severity]int{}
		for _, i := range open {
			counts[i.Severity]++
		}
		out, _ := json.Marshal(map[string]any{"open_issues": len(open), "by_severity": counts})
		return orchestrator.AgentResult{Success: true, Output: string(out), DurationMs: time.Since(start).Milliseconds()}, nil
	}
}
