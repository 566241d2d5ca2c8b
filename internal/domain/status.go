package domain

type CycleStatus string

const (
	CycleActive    CycleStatus = "active"
	CyclePaused    CycleStatus = "paused"
	CycleSubmitted CycleStatus = "submitted"
	CycleConfirmed CycleStatus = "confirmed"
	CycleCompleted CycleStatus = "completed"
	CycleCancelled CycleStatus = "cancelled"
)

type StepStatus string

const (
	StepPending         StepStatus = "pending"
	StepInProgress      StepStatus = "in_progress"
	StepCompleted       StepStatus = "completed"
	StepFailed          StepStatus = "failed"
	StepWaitingForHuman StepStatus = "waiting_for_human"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskEscalated  TaskStatus = "escalated"
)

type ArtifactStatus string

const (
	ArtifactDraft         ArtifactStatus = "draft"
	ArtifactPendingReview ArtifactStatus = "pending_review"
	ArtifactApproved      ArtifactStatus = "approved"
	ArtifactRejected      ArtifactStatus = "rejected"
)

type ArtifactKind string

const (
	KindReportCatalog        ArtifactKind = "report_catalog"
	KindCDEInventory         ArtifactKind = "cde_inventory"
	KindRequirementsDocument ArtifactKind = "requirements_document"
	KindDQRuleSet            ArtifactKind = "dq_rule_set"
	KindLineageGraph         ArtifactKind = "lineage_graph"
	KindControlMatrix        ArtifactKind = "control_matrix"
	KindCompliancePackage    ArtifactKind = "compliance_package"
)

type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueClosed     IssueStatus = "closed"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type ActorType string

const (
	ActorHuman  ActorType = "human"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

// Phase names the nine fixed phases of a reporting cycle, in order.
type Phase string

const (
	PhaseRegulatoryIntelligence Phase = "regulatory_intelligence"
	PhaseDataRequirements       Phase = "data_requirements"
	PhaseCDEIdentification      Phase = "cde_identification"
	PhaseDataQualityRules       Phase = "data_quality_rules"
	PhaseLineageMapping         Phase = "lineage_mapping"
	PhaseIssueManagement        Phase = "issue_management"
	PhaseControlsManagement     Phase = "controls_management"
	PhaseDocumentation          Phase = "documentation"
	PhaseAttestation            Phase = "attestation"
)

// PhaseOrder lists all phases in cycle order.
var PhaseOrder = []Phase{
	PhaseRegulatoryIntelligence,
	PhaseDataRequirements,
	PhaseCDEIdentification,
	PhaseDataQualityRules,
	PhaseLineageMapping,
	PhaseIssueManagement,
	PhaseControlsManagement,
	PhaseDocumentation,
	PhaseAttestation,
}

var terminalCycleStatuses = map[CycleStatus]bool{
	CycleCompleted: true,
	CycleCancelled: true,
}

var validCycleTransitions = map[CycleStatus]map[CycleStatus]bool{
	CycleActive: {
		CyclePaused:    true,
		CycleSubmitted: true,
		CycleCompleted: true,
		CycleCancelled: true,
	},
	CyclePaused: {
		CycleActive:    true,
		CycleCancelled: true,
	},
	CycleSubmitted: {
		CycleConfirmed: true,
		CycleCancelled: true,
	},
	CycleConfirmed: {
		CycleCompleted: true,
	},
}

// IsCycleTerminal reports whether no further transitions are allowed.
func IsCycleTerminal(s CycleStatus) bool { return terminalCycleStatuses[s] }

// EnsureCycleTransition validates a cycle status change.
func EnsureCycleTransition(from, to CycleStatus) error {
	if from == to {
		return nil
	}
	if validCycleTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{Entity: "cycle", From: string(from), To: string(to)}
}

var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {
		StepInProgress:      true,
		StepWaitingForHuman: true,
	},
	StepInProgress: {
		StepCompleted: true,
		StepFailed:    true,
	},
	StepWaitingForHuman: {
		StepCompleted: true,
		StepFailed:    true,
	},
	StepFailed: {
		StepPending: true,
	},
}

// EnsureStepTransition validates a workflow step status change.
func EnsureStepTransition(from, to StepStatus) error {
	if from == to {
		return nil
	}
	if validStepTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{Entity: "step", From: string(from), To: string(to)}
}

// BlocksResume reports whether a task in this status keeps its cycle paused.
func BlocksResume(s TaskStatus) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskEscalated:
		return true
	}
	return false
}

// IsTaskTerminal reports whether the human task can no longer change.
func IsTaskTerminal(s TaskStatus) bool {
	return s == TaskCompleted || s == TaskCancelled
}

var validIssueTransitions = map[IssueStatus]map[IssueStatus]bool{
	IssueOpen: {
		IssueInProgress: true,
		IssueClosed:     true,
	},
	IssueInProgress: {
		IssueResolved: true,
		IssueClosed:   true,
	},
	IssueResolved: {
		IssueClosed: true,
	},
}

// EnsureIssueTransition validates an issue status change.
func EnsureIssueTransition(from, to IssueStatus) error {
	if from == to {
		return nil
	}
	if validIssueTransitions[from][to] {
		return nil
	}
	return &InvalidTransitionError{Entity: "issue", From: string(from), To: string(to)}
}

// IsIssueTerminal reports whether the issue can no longer change.
func IsIssueTerminal(s IssueStatus) bool { return s == IssueClosed }

// ArtifactKinds lists every governed artifact kind.
var ArtifactKinds = []ArtifactKind{
	KindReportCatalog,
	KindCDEInventory,
	KindRequirementsDocument,
	KindDQRuleSet,
	KindLineageGraph,
	KindControlMatrix,
	KindCompliancePackage,
}

// ValidArtifactKind reports whether k is a known kind.
func ValidArtifactKind(k ArtifactKind) bool {
	for _, known := range ArtifactKinds {
		if known == k {
			return true
		}
	}
	return false
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// NextPhase returns the phase following p, or "" when p is the last phase.
func NextPhase(p Phase) Phase {
	for i, ph := range PhaseOrder {
		if ph == p && i+1 < len(PhaseOrder) {
			return PhaseOrder[i+1]
		}
	}
	return ""
}

// ValidPhase reports whether p is one of the nine phases.
func ValidPhase(p Phase) bool {
	for _, ph := range PhaseOrder {
		if ph == p {
			return true
		}
	}
	return false
}

func (p Phase) String() string { return string(p) }

// PhaseIndex returns the position of p in the cycle, or -1.
func PhaseIndex(p Phase) int {
	for i, ph := range PhaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}
