package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"regline/internal/domain"
)

// Config models regline.yml: the phase/step templates driving cycle
// construction plus escalation policy.
type Config struct {
	Governance struct {
		ID string `yaml:"id"`
	} `yaml:"governance"`
	Phases     []PhaseTemplate `yaml:"phases"`
	Escalation struct {
		// Fallbacks maps a role to the role tasks escalate to when overdue.
		Fallbacks       map[string]string `yaml:"fallbacks"`
		DefaultDueHours int               `yaml:"default_due_hours"`
	} `yaml:"escalation"`
}

// PhaseTemplate declares the ordered steps of one phase.
type PhaseTemplate struct {
	Name  domain.Phase   `yaml:"name"`
	Steps []StepTemplate `yaml:"steps"`
}

// StepTemplate declares one step: either automated (agent set) or a human
// checkpoint (checkpoint true, role set).
type StepTemplate struct {
	Name       string   `yaml:"name"`
	Agent      string   `yaml:"agent,omitempty"`
	Checkpoint bool     `yaml:"checkpoint,omitempty"`
	Role       string   `yaml:"role,omitempty"`
	DependsOn  []string `yaml:"depends_on,omitempty"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with rl config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets the required structure.
func (c *Config) Validate() error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("config.phases is required")
	}
	if len(c.Phases) != len(domain.PhaseOrder) {
		return fmt.Errorf("config.phases must declare all %d phases, got %d", len(domain.PhaseOrder), len(c.Phases))
	}
	for i, tmpl := range c.Phases {
		if tmpl.Name != domain.PhaseOrder[i] {
			return fmt.Errorf("config.phases[%d] is %s, expected %s", i, tmpl.Name, domain.PhaseOrder[i])
		}
		if len(tmpl.Steps) == 0 {
			return fmt.Errorf("phase %s has no steps", tmpl.Name)
		}
		names := map[string]bool{}
		for _, st := range tmpl.Steps {
			if st.Name == "" {
				return fmt.Errorf("phase %s has a step without a name", tmpl.Name)
			}
			if names[st.Name] {
				return fmt.Errorf("phase %s declares step %s twice", tmpl.Name, st.Name)
			}
			names[st.Name] = true
			if st.Checkpoint {
				if st.Role == "" {
					return fmt.Errorf("checkpoint step %s/%s requires a role", tmpl.Name, st.Name)
				}
				if st.Agent != "" {
					return fmt.Errorf("step %s/%s cannot be both checkpoint and automated", tmpl.Name, st.Name)
				}
			} else if st.Agent == "" {
				return fmt.Errorf("automated step %s/%s requires an agent type", tmpl.Name, st.Name)
			}
		}
		for _, st := range tmpl.Steps {
			for _, dep := range st.DependsOn {
				if !names[dep] {
					return fmt.Errorf("step %s/%s depends on unknown step %s", tmpl.Name, st.Name, dep)
				}
				if dep == st.Name {
					return fmt.Errorf("step %s/%s depends on itself", tmpl.Name, st.Name)
				}
			}
		}
	}
	for role, fallback := range c.Escalation.Fallbacks {
		if role == "" || fallback == "" {
			return fmt.Errorf("config.escalation.fallbacks contains an empty role")
		}
	}
	if c.Escalation.DefaultDueHours < 0 {
		return fmt.Errorf("config.escalation.default_due_hours must be >= 0")
	}
	return nil
}

// Phase returns the template for a phase, or nil.
func (c *Config) Phase(name domain.Phase) *PhaseTemplate {
	for i := range c.Phases {
		if c.Phases[i].Name == name {
			return &c.Phases[i]
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "regline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `governance:
  id: default

phases:
  - name: regulatory_intelligence
    steps:
      - name: scan_regulatory_updates
        agent: regulatory_intelligence
      - name: assess_report_impact
        agent: regulatory_intelligence
        depends_on: [scan_regulatory_updates]
      - name: review_regulatory_changes
        checkpoint: true
        role: compliance_officer
        depends_on: [assess_report_impact]

  - name: data_requirements
    steps:
      - name: extract_data_requirements
        agent: data_requirements
      - name: approve_requirements_document
        checkpoint: true
        role: report_owner
        depends_on: [extract_data_requirements]

  - name: cde_identification
    steps:
      - name: score_candidate_cdes
        agent: cde_identification
      - name: confirm_cde_inventory
        checkpoint: true
        role: data_steward
        depends_on: [score_candidate_cdes]

  - name: data_quality_rules
    steps:
      - name: draft_quality_rules
        agent: data_quality
      - name: execute_quality_rules
        agent: data_quality
        depends_on: [draft_quality_rules]
      - name: approve_quality_rules
        checkpoint: true
        role: data_steward
        depends_on: [execute_quality_rules]

  - name: lineage_mapping
    steps:
      - name: map_source_lineage
        agent: lineage
      - name: validate_lineage_graph
        checkpoint: true
        role: data_architect
        depends_on: [map_source_lineage]

  - name: issue_management
    steps:
      - name: triage_open_issues
        agent: issue_management
      - name: confirm_issue_disposition
        checkpoint: true
        role: data_steward
        depends_on: [triage_open_issues]

  - name: controls_management
    steps:
      - name: assess_control_effectiveness
        agent: controls
      - name: approve_control_matrix
        checkpoint: true
        role: control_owner
        depends_on: [assess_control_effectiveness]

  - name: documentation
    steps:
      - name: compile_compliance_package
        agent: documentation
      - name: review_compliance_package
        checkpoint: true
        role: compliance_officer
        depends_on: [compile_compliance_package]

  - name: attestation
    steps:
      - name: prepare_attestation
        agent: documentation
      - name: sign_attestation
        checkpoint: true
        role: chief_data_officer
        depends_on: [prepare_attestation]

escalation:
  default_due_hours: 72
  fallbacks:
    data_steward: data_governance_lead
    compliance_officer: chief_compliance_officer
    report_owner: chief_data_officer
    control_owner: chief_compliance_officer
    data_architect: data_governance_lead
    chief_data_officer: chief_data_officer
`
