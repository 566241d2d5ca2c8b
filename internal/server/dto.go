package server

// Request bodies. Responses reuse the domain structs, which carry the JSON
// schema tags.

type CreateReportRequest struct {
	ID        string `json:"id" example:"FR2052a"`
	Name      string `json:"name" example:"Complex Institution Liquidity Monitoring Report"`
	Regulator string `json:"regulator,omitempty" example:"FED"`
	Frequency string `json:"frequency,omitempty" example:"daily"`
}

type StartCycleRequest struct {
	ReportID  string `json:"report_id" example:"FR2052a"`
	PeriodEnd string `json:"period_end" example:"2026-03-31"`
}

type CancelCycleRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateTaskRequest struct {
	CycleID      string  `json:"cycle_id"`
	StepID       *string `json:"step_id,omitempty"`
	Type         string  `json:"type" example:"evidence_request"`
	Title        string  `json:"title,omitempty"`
	Description  string  `json:"description,omitempty"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
	AssignedRole string  `json:"assigned_role" example:"data_steward"`
	DueDate      string  `json:"due_date" format:"date-time"`
}

type CompleteTaskRequest struct {
	Outcome   string `json:"outcome" example:"approved"`
	Rationale string `json:"rationale,omitempty"`
}

type CreateArtifactRequest struct {
	CycleID     string `json:"cycle_id,omitempty"`
	ReportID    string `json:"report_id"`
	Kind        string `json:"kind" example:"cde_inventory"`
	Name        string `json:"name"`
	ContentJSON string `json:"content_json,omitempty"`
}

type RejectArtifactRequest struct {
	Reason string `json:"reason"`
}

type ModifyArtifactRequest struct {
	ContentJSON string `json:"content_json"`
}

type RaiseIssueRequest struct {
	CycleID         string   `json:"cycle_id,omitempty"`
	ReportID        string   `json:"report_id,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Source          string   `json:"source,omitempty"`
	ImpactedReports []string `json:"impacted_reports,omitempty"`
	ImpactedCDEs    []string `json:"impacted_cdes,omitempty"`
	DataDomain      string   `json:"data_domain,omitempty"`
	Severity        string   `json:"severity" example:"high"`
}

type ResolveIssueRequest struct {
	RootCause  string `json:"root_cause,omitempty"`
	Resolution string `json:"resolution"`
}

type ReassignIssueRequest struct {
	Assignee string `json:"assignee" example:"erik@company.com"`
}

type SubmitCycleRequest struct {
	CycleID string `json:"cycle_id"`
}
