package config

import (
	"strings"
	"testing"

	"regline/internal/domain"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Phases) != 9 {
		t.Fatalf("expected 9 phases, got %d", len(cfg.Phases))
	}
	for i, tmpl := range cfg.Phases {
		if tmpl.Name != domain.PhaseOrder[i] {
			t.Errorf("phase %d = %s, want %s", i, tmpl.Name, domain.PhaseOrder[i])
		}
	}
}

func TestDefaultCheckpointsCarryRoles(t *testing.T) {
	cfg := Default()
	checkpoints := 0
	for _, tmpl := range cfg.Phases {
		for _, st := range tmpl.Steps {
			if st.Checkpoint {
				checkpoints++
				if st.Role == "" {
					t.Errorf("checkpoint %s/%s missing role", tmpl.Name, st.Name)
				}
			}
		}
	}
	if checkpoints == 0 {
		t.Fatal("default template declares no checkpoints")
	}
}

func TestValidateRejectsMissingRole(t *testing.T) {
	raw := strings.Replace(GenerateDefault(), "        role: chief_data_officer\n", "", 1)
	_, err := FromYAML([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "requires a role") {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	raw := strings.Replace(GenerateDefault(), "depends_on: [prepare_attestation]", "depends_on: [nonexistent_step]", 1)
	_, err := FromYAML([]byte(raw))
	if err == nil || !strings.Contains(err.Error(), "unknown step") {
		t.Fatalf("expected dependency validation error, got %v", err)
	}
}

func TestEscalationFallbacks(t *testing.T) {
	cfg := Default()
	if cfg.Escalation.DefaultDueHours != 72 {
		t.Errorf("default_due_hours = %d", cfg.Escalation.DefaultDueHours)
	}
	if cfg.Escalation.Fallbacks["data_steward"] != "data_governance_lead" {
		t.Errorf("unexpected fallback map: %v", cfg.Escalation.Fallbacks)
	}
}
