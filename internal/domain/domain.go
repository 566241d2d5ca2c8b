package domain

// ReportDefinition is a catalog entry for a regulatory report.
type ReportDefinition struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Regulator string `json:"regulator,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CycleInstance is one run of the governance workflow for a report over a
// reporting period. Mutated only by the orchestrator.
type CycleInstance struct {
	ID           string      `json:"id"`
	ReportID     string      `json:"report_id"`
	PeriodEnd    string      `json:"period_end"`
	Status       CycleStatus `json:"status" enum:"active,paused,submitted,confirmed,completed,cancelled"`
	CurrentPhase Phase       `json:"current_phase"`
	PauseReason  *string     `json:"pause_reason,omitempty"`
	SubmissionID *string     `json:"submission_id,omitempty"`
	StartedAt    string      `json:"started_at" format:"date-time"`
	CompletedAt  *string     `json:"completed_at,omitempty" format:"date-time"`
}

// WorkflowStep belongs to exactly one cycle. A step may move to in_progress
// only once every dependency is completed.
type WorkflowStep struct {
	ID                string     `json:"id"`
	CycleID           string     `json:"cycle_id"`
	Phase             Phase      `json:"phase"`
	Name              string     `json:"name"`
	AgentType         *string    `json:"agent_type,omitempty"`
	IsHumanCheckpoint bool       `json:"is_human_checkpoint"`
	RequiredRole      *string    `json:"required_role,omitempty"`
	DependsOn         []string   `json:"depends_on,omitempty"`
	Status            StepStatus `json:"status" enum:"pending,in_progress,completed,failed,waiting_for_human"`
	Position          int        `json:"position"`
	StartedAt         *string    `json:"started_at,omitempty" format:"date-time"`
	CompletedAt       *string    `json:"completed_at,omitempty" format:"date-time"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
}

// Decision is the recorded outcome of a human task.
type Decision struct {
	Outcome   string `json:"outcome"`
	Rationale string `json:"rationale,omitempty"`
}

// HumanTask is a request for an explicit human decision. Owned by the task
// manager; cycles and steps hold references only.
type HumanTask struct {
	ID              string     `json:"id"`
	CycleID         string     `json:"cycle_id"`
	StepID          *string    `json:"step_id,omitempty"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	AssignedRole    string     `json:"assigned_role"`
	DueDate         string     `json:"due_date" format:"date-time"`
	Status          TaskStatus `json:"status" enum:"pending,in_progress,completed,cancelled,escalated"`
	Decision        *Decision  `json:"decision,omitempty"`
	EscalationLevel int        `json:"escalation_level"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
	UpdatedAt       string     `json:"updated_at" format:"date-time"`
	CompletedAt     *string    `json:"completed_at,omitempty" format:"date-time"`
}

// Artifact is any governed work-product subject to the shared review
// lifecycle. Content is an opaque JSON payload per kind.
type Artifact struct {
	ID             string         `json:"id"`
	CycleID        string         `json:"cycle_id,omitempty"`
	ReportID       string         `json:"report_id"`
	Kind           ArtifactKind   `json:"kind"`
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	Status         ArtifactStatus `json:"status" enum:"draft,pending_review,approved,rejected"`
	ContentJSON    string         `json:"content_json"`
	CreatedAt      string         `json:"created_at" format:"date-time"`
	UpdatedAt      string         `json:"updated_at" format:"date-time"`
	LastModifiedBy string         `json:"last_modified_by,omitempty"`
}

// CDERecord is one critical data element inside a cde_inventory artifact
// payload.
type CDERecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DataDomain     string `json:"data_domain,omitempty"`
	DataOwnerEmail string `json:"data_owner_email,omitempty"`
	Criticality    string `json:"criticality,omitempty"`
}

// CDEInventoryContent is the payload shape of cde_inventory artifacts.
type CDEInventoryContent struct {
	ReportID string      `json:"report_id"`
	CDEs     []CDERecord `json:"cdes"`
}

// Issue is a data-quality or process finding raised during a cycle.
type Issue struct {
	ID              string      `json:"id"`
	CycleID         *string     `json:"cycle_id,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Source          string      `json:"source,omitempty"`
	ImpactedReports []string    `json:"impacted_reports,omitempty"`
	ImpactedCDEs    []string    `json:"impacted_cdes,omitempty"`
	Severity        Severity    `json:"severity" enum:"low,medium,high,critical"`
	Status          IssueStatus `json:"status" enum:"open,in_progress,resolved,closed"`
	Assignee        string      `json:"assignee"`
	EscalationLevel int         `json:"escalation_level"`
	RootCause       *string     `json:"root_cause,omitempty"`
	Resolution      *string     `json:"resolution,omitempty"`
	CreatedAt       string      `json:"created_at" format:"date-time"`
	UpdatedAt       string      `json:"updated_at" format:"date-time"`
}

// ArtifactLock freezes an artifact at submission time. Once a lock exists the
// artifact is read-only forever.
type ArtifactLock struct {
	ArtifactID   string `json:"artifact_id"`
	ArtifactName string `json:"artifact_name"`
	LockedAt     string `json:"locked_at" format:"date-time"`
	LockedBy     string `json:"locked_by"`
	SubmissionID string `json:"submission_id"`
	ContentHash  string `json:"content_hash"`
}

// SubmissionReceipt is produced exactly once per cycle submission.
type SubmissionReceipt struct {
	ID            string `json:"id"`
	CycleID       string `json:"cycle_id"`
	SubmittedAt   string `json:"submitted_at" format:"date-time"`
	SubmittedBy   string `json:"submitted_by"`
	ArtifactCount int    `json:"artifact_count"`
}

// AuditEntry is an immutable record of a state-changing action.
type AuditEntry struct {
	ID            int64     `json:"id"`
	TS            string    `json:"ts" format:"date-time"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id,omitempty"`
	Action        string    `json:"action"`
	Actor         string    `json:"actor"`
	ActorType     ActorType `json:"actor_type" enum:"human,agent,system"`
	PreviousState *string   `json:"previous_state,omitempty"`
	NewState      *string   `json:"new_state,omitempty"`
	Rationale     *string   `json:"rationale,omitempty"`
}
