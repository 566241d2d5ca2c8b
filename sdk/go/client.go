package reglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Regline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Cycle represents one governance run for a report (partial).
type Cycle struct {
	ID           string  `json:"id"`
	ReportID     string  `json:"report_id"`
	PeriodEnd    string  `json:"period_end"`
	Status       string  `json:"status"`
	CurrentPhase string  `json:"current_phase"`
	PauseReason  *string `json:"pause_reason,omitempty"`
	SubmissionID *string `json:"submission_id,omitempty"`
}

// Step represents one workflow step within a cycle.
type Step struct {
	ID                string  `json:"id"`
	CycleID           string  `json:"cycle_id"`
	Phase             string  `json:"phase"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	IsHumanCheckpoint bool    `json:"is_human_checkpoint"`
	RequiredRole      *string `json:"required_role,omitempty"`
	Position          int     `json:"position"`
	FailureReason     *string `json:"failure_reason,omitempty"`
}

// Task represents a human decision request.
type Task struct {
	ID              string    `json:"id"`
	CycleID         string    `json:"cycle_id"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	AssignedRole    string    `json:"assigned_role"`
	Status          string    `json:"status"`
	DueDate         string    `json:"due_date"`
	EscalationLevel int       `json:"escalation_level"`
	Decision        *Decision `json:"decision,omitempty"`
}

// Decision is a recorded task outcome.
type Decision struct {
	Outcome   string `json:"outcome"`
	Rationale string `json:"rationale,omitempty"`
}

// Artifact represents a governed work-product.
type Artifact struct {
	ID          string `json:"id"`
	CycleID     string `json:"cycle_id"`
	ReportID    string `json:"report_id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Status      string `json:"status"`
	ContentJSON string `json:"content_json,omitempty"`
}

// Issue represents a routed data quality issue.
type Issue struct {
	ID       string `json:"id"`
	CycleID  string `json:"cycle_id,omitempty"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Assignee string `json:"assignee"`
}

// SubmissionReceipt is the result of locking a cycle's approved artifacts.
type SubmissionReceipt struct {
	ID            string `json:"id"`
	CycleID       string `json:"cycle_id"`
	SubmittedAt   string `json:"submitted_at"`
	SubmittedBy   string `json:"submitted_by"`
	ArtifactCount int    `json:"artifact_count"`
}

// IntegrityResult reports whether one locked artifact still matches its hash.
type IntegrityResult struct {
	ArtifactID   string `json:"artifact_id"`
	ArtifactName string `json:"artifact_name"`
	Intact       bool   `json:"intact"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StartCycle starts a governance cycle for a report and reporting period.
func (c *Client) StartCycle(ctx context.Context, reportID, periodEnd string) (Cycle, error) {
	body := map[string]any{
		"report_id":  reportID,
		"period_end": periodEnd,
	}
	var resp Cycle
	err := c.do(ctx, http.MethodPost, "v0/cycles", body, &resp)
	return resp, err
}

// GetCycle fetches a cycle by id.
func (c *Client) GetCycle(ctx context.Context, id string) (Cycle, error) {
	var resp Cycle
	err := c.do(ctx, http.MethodGet, "v0/cycles/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Steps returns the workflow steps of a cycle in position order.
func (c *Client) Steps(ctx context.Context, cycleID string) ([]Step, error) {
	var resp []Step
	endpoint := fmt.Sprintf("v0/cycles/%s/steps", url.PathEscape(cycleID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Tasks returns human tasks, optionally filtered by cycle and status.
func (c *Client) Tasks(ctx context.Context, cycleID, status string) ([]Task, error) {
	q := url.Values{}
	if cycleID != "" {
		q.Set("cycle_id", cycleID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "v0/tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CompleteTask records a decision on a task. Completing the last blocking
// task of a paused cycle resumes it.
func (c *Client) CompleteTask(ctx context.Context, taskID, outcome, rationale string) (Task, error) {
	body := map[string]any{
		"outcome":   outcome,
		"rationale": rationale,
	}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateArtifact creates a draft artifact in a cycle.
func (c *Client) CreateArtifact(ctx context.Context, cycleID, reportID, kind, name, contentJSON string) (Artifact, error) {
	body := map[string]any{
		"cycle_id":     cycleID,
		"report_id":    reportID,
		"kind":         kind,
		"name":         name,
		"content_json": contentJSON,
	}
	var resp Artifact
	err := c.do(ctx, http.MethodPost, "v0/artifacts", body, &resp)
	return resp, err
}

// SubmitForReview moves a draft artifact into review.
func (c *Client) SubmitForReview(ctx context.Context, artifactID string) (Artifact, error) {
	var resp Artifact
	endpoint := fmt.Sprintf("v0/artifacts/%s/submit-review", url.PathEscape(artifactID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ApproveArtifact approves a pending artifact.
func (c *Client) ApproveArtifact(ctx context.Context, artifactID string) (Artifact, error) {
	var resp Artifact
	endpoint := fmt.Sprintf("v0/artifacts/%s/approve", url.PathEscape(artifactID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RejectArtifact rejects a pending artifact with a mandatory reason.
func (c *Client) RejectArtifact(ctx context.Context, artifactID, reason string) (Artifact, error) {
	body := map[string]any{"reason": reason}
	var resp Artifact
	endpoint := fmt.Sprintf("v0/artifacts/%s/reject", url.PathEscape(artifactID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RaiseIssue raises an issue and returns it with its routed assignee.
func (c *Client) RaiseIssue(ctx context.Context, cycleID, title, severity, dataDomain string, impactedCDEs []string) (Issue, error) {
	body := map[string]any{
		"cycle_id":      cycleID,
		"title":         title,
		"severity":      severity,
		"data_domain":   dataDomain,
		"impacted_cdes": impactedCDEs,
	}
	var resp Issue
	err := c.do(ctx, http.MethodPost, "v0/issues", body, &resp)
	return resp, err
}

// Submit locks the approved artifacts of a cycle and returns the receipt.
// Submitting an already submitted cycle returns the existing receipt.
func (c *Client) Submit(ctx context.Context, cycleID string) (SubmissionReceipt, error) {
	body := map[string]any{"cycle_id": cycleID}
	var resp SubmissionReceipt
	err := c.do(ctx, http.MethodPost, "v0/submissions", body, &resp)
	return resp, err
}

// Verify checks every locked artifact of a submission against its stored hash.
func (c *Client) Verify(ctx context.Context, submissionID string) ([]IntegrityResult, error) {
	var resp []IntegrityResult
	endpoint := fmt.Sprintf("v0/submissions/%s/verify", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Audit returns recent audit entries, optionally scoped to one entity.
func (c *Client) Audit(ctx context.Context, entityType, entityID string, limit int) ([]AuditEntry, error) {
	q := url.Values{}
	if entityType != "" {
		q.Set("entity_type", entityType)
	}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "v0/audit"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []AuditEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
