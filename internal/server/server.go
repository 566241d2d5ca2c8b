// Package server exposes the governance API over HTTP with an OpenAPI
// description and Swagger UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"regline/internal/app"
	"regline/internal/domain"
	"regline/internal/lifecycle"
	"regline/internal/orchestrator"
	"regline/internal/repo"
	"regline/internal/submission"
	"regline/internal/tasks"
)

// Config for the HTTP API handler.
type Config struct {
	App      *app.Context
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"Cannot approve artifact with status 'draft'"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Regline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Regline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerReports(group, cfg.App)
	registerCycles(group, cfg.App)
	registerTasks(group, cfg.App)
	registerArtifacts(group, cfg.App)
	registerIssues(group, cfg.App)
	registerSubmission(group, cfg.App)
	registerAudit(group, cfg.App)
	registerConfig(group, cfg.App)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var le *domain.LockedArtifactError
	if errors.As(err, &le) {
		return newAPIError(http.StatusConflict, "artifact_locked", err.Error(), map[string]any{"artifact_id": le.ArtifactID})
	}
	var ite *domain.InvalidTransitionError
	if errors.As(err, &ite) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, orchestrator.ErrCycleExists) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Regline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerReports(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Register report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateReportRequest `json:"body"`
	}) (*struct {
		Body domain.ReportDefinition `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		rep := domain.ReportDefinition{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			Regulator: input.Body.Regulator,
			Frequency: input.Body.Frequency,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := a.Repo.InsertReport(ctx, rep); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReportDefinition `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ReportDefinition `json:"body"`
	}, error) {
		items, err := a.Repo.ListReports(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ReportDefinition `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body domain.ReportDefinition `json:"body"`
	}, error) {
		rep, err := a.Repo.GetReport(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReportDefinition `json:"body"`
		}{Body: rep}, nil
	})
}

func registerCycles(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-cycle",
		Method:        http.MethodPost,
		Path:          "/cycles",
		Summary:       "Start report cycle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body StartCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cycle, err := a.Orchestrator.StartReportCycle(ctx, input.Body.ReportID, input.Body.PeriodEnd, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-cycle",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}",
		Summary:     "Get cycle",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		cycle, err := a.Orchestrator.GetCycle(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cycles",
		Method:      http.MethodGet,
		Path:        "/cycles",
		Summary:     "List cycles",
	}, func(ctx context.Context, input *struct {
		ReportID string `query:"report_id"`
	}) (*struct {
		Body []domain.CycleInstance `json:"body"`
	}, error) {
		items, err := a.Repo.ListCycles(ctx, input.ReportID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CycleInstance `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-cycle-steps",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}/steps",
		Summary:     "List workflow steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body []domain.WorkflowStep `json:"body"`
	}, error) {
		steps, err := a.Orchestrator.GetWorkflowSteps(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkflowStep `json:"body"`
		}{Body: steps}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/advance",
		Summary:     "Run eligible automated steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.Orchestrator.Advance(ctx, input.CycleID, actor); err != nil {
			return nil, handleError(err)
		}
		cycle, err := a.Orchestrator.GetCycle(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/cancel",
		Summary:     "Cancel cycle",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CycleID string             `path:"cycle_id"`
		Body    CancelCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cycle, err := a.Orchestrator.CancelCycle(ctx, input.CycleID, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/close",
		Summary:     "Complete confirmed cycle",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cycle, err := a.Orchestrator.CloseCycle(ctx, input.CycleID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})
}

func registerTasks(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create human task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.HumanTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := a.Orchestrator.CreateHumanTask(ctx, tasks.CreateInput{
			CycleID:      input.Body.CycleID,
			StepID:       input.Body.StepID,
			Type:         input.Body.Type,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			AssignedTo:   input.Body.AssignedTo,
			AssignedRole: input.Body.AssignedRole,
			DueDate:      input.Body.DueDate,
			Actor:        actor,
			ActorType:    actorTypeFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HumanTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List human tasks",
	}, func(ctx context.Context, input *struct {
		CycleID string `query:"cycle_id"`
		Status  string `query:"status"`
		Role    string `query:"role"`
	}) (*struct {
		Body []domain.HumanTask `json:"body"`
	}, error) {
		items, err := a.Repo.ListTasks(ctx, repo.TaskFilters{
			CycleID:      input.CycleID,
			Status:       input.Status,
			AssignedRole: input.Role,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HumanTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get human task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.HumanTask `json:"body"`
	}, error) {
		task, err := a.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HumanTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/complete",
		Summary:     "Record task decision",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		TaskID string              `path:"task_id"`
		Body   CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body domain.HumanTask `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := a.Orchestrator.CompleteHumanTask(ctx, input.TaskID, actor, domain.Decision{
			Outcome:   input.Body.Outcome,
			Rationale: input.Body.Rationale,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.HumanTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "escalate-overdue-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/escalate-overdue",
		Summary:     "Escalate overdue tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.HumanTask `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		escalated, err := a.Tasks.EscalateOverdue(ctx, a.Config.Escalation.Fallbacks)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HumanTask `json:"body"`
		}{Body: escalated}, nil
	})
}

func registerArtifacts(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-artifact",
		Method:        http.MethodPost,
		Path:          "/artifacts",
		Summary:       "Create artifact",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		artifact, err := a.Lifecycle.CreateArtifact(ctx, lifecycle.CreateArtifactInput{
			CycleID:     input.Body.CycleID,
			ReportID:    input.Body.ReportID,
			Kind:        domain.ArtifactKind(input.Body.Kind),
			Name:        input.Body.Name,
			ContentJSON: input.Body.ContentJSON,
			Actor:       actor,
			ActorType:   actorTypeFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-artifacts",
		Method:      http.MethodGet,
		Path:        "/artifacts",
		Summary:     "List artifacts",
	}, func(ctx context.Context, input *struct {
		CycleID  string `query:"cycle_id"`
		ReportID string `query:"report_id"`
		Kind     string `query:"kind"`
		Status   string `query:"status"`
	}) (*struct {
		Body []domain.Artifact `json:"body"`
	}, error) {
		items, err := a.Repo.ListArtifacts(ctx, repo.ArtifactFilters{
			CycleID:  input.CycleID,
			ReportID: input.ReportID,
			Kind:     input.Kind,
			Status:   input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Artifact `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-artifact",
		Method:      http.MethodGet,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Get artifact",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ArtifactID string `path:"artifact_id"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		artifact, err := a.Repo.GetArtifact(ctx, input.ArtifactID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})

	type artifactPath struct {
		ArtifactID string `path:"artifact_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "submit-artifact-for-review",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/submit-review",
		Summary:     "Submit artifact for review",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *artifactPath) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		artifact, err := a.Lifecycle.SubmitForReview(ctx, input.ArtifactID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-artifact",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/approve",
		Summary:     "Approve artifact",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *artifactPath) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		artifact, err := a.Lifecycle.Approve(ctx, input.ArtifactID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-artifact",
		Method:      http.MethodPost,
		Path:        "/artifacts/{artifact_id}/reject",
		Summary:     "Reject artifact",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       RejectArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		artifact, err := a.Lifecycle.Reject(ctx, input.ArtifactID, actor, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "modify-artifact",
		Method:      http.MethodPatch,
		Path:        "/artifacts/{artifact_id}",
		Summary:     "Modify artifact content",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ArtifactID string                `path:"artifact_id"`
		Body       ModifyArtifactRequest `json:"body"`
	}) (*struct {
		Body domain.Artifact `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		artifact, err := a.Submission.Modify(ctx, input.ArtifactID, actor, input.Body.ContentJSON)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Artifact `json:"body"`
		}{Body: artifact}, nil
	})
}

func registerIssues(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "raise-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Raise issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RaiseIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := a.Orchestrator.RaiseIssue(ctx, orchestrator.RaiseIssueInput{
			CycleID:         input.Body.CycleID,
			ReportID:        input.Body.ReportID,
			Title:           input.Body.Title,
			Description:     input.Body.Description,
			Source:          input.Body.Source,
			ImpactedReports: input.Body.ImpactedReports,
			ImpactedCDEs:    input.Body.ImpactedCDEs,
			DataDomain:      input.Body.DataDomain,
			Severity:        domain.Severity(input.Body.Severity),
			Actor:           actor,
			ActorType:       actorTypeFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
	}, func(ctx context.Context, input *struct {
		CycleID  string `query:"cycle_id"`
		Status   string `query:"status"`
		Severity string `query:"severity"`
		Assignee string `query:"assignee"`
	}) (*struct {
		Body []domain.Issue `json:"body"`
	}, error) {
		items, err := a.Repo.ListIssues(ctx, repo.IssueFilters{
			CycleID:  input.CycleID,
			Status:   input.Status,
			Severity: input.Severity,
			Assignee: input.Assignee,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Issue `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{issue_id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		issue, err := a.Repo.GetIssue(ctx, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/start",
		Summary:     "Start issue work",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := a.Orchestrator.StartIssueWork(ctx, input.IssueID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/resolve",
		Summary:     "Resolve issue",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IssueID string              `path:"issue_id"`
		Body    ResolveIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := a.Orchestrator.ResolveIssue(ctx, input.IssueID, actor, input.Body.RootCause, input.Body.Resolution)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/close",
		Summary:     "Close issue",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IssueID string `path:"issue_id"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := a.Orchestrator.CloseIssue(ctx, input.IssueID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/reassign",
		Summary:     "Reassign issue",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		IssueID string               `path:"issue_id"`
		Body    ReassignIssueRequest `json:"body"`
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		issue, err := a.Orchestrator.ReassignIssue(ctx, input.IssueID, actor, input.Body.Assignee)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})
}

func registerSubmission(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-cycle",
		Method:        http.MethodPost,
		Path:          "/submissions",
		Summary:       "Submit cycle",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SubmitCycleRequest `json:"body"`
	}) (*struct {
		Body domain.SubmissionReceipt `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		receipt, err := a.Submission.Submit(ctx, input.Body.CycleID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubmissionReceipt `json:"body"`
		}{Body: receipt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}",
		Summary:     "Get submission receipt",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubmissionID string `path:"submission_id"`
	}) (*struct {
		Body domain.SubmissionReceipt `json:"body"`
	}, error) {
		receipt, err := a.Repo.GetSubmission(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SubmissionReceipt `json:"body"`
		}{Body: receipt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-submission",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/confirm",
		Summary:     "Confirm regulator acknowledgement",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		CycleID string `path:"cycle_id"`
	}) (*struct {
		Body domain.CycleInstance `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cycle, err := a.Submission.Confirm(ctx, input.CycleID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CycleInstance `json:"body"`
		}{Body: cycle}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/verify",
		Summary:     "Verify locked artifact integrity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubmissionID string `path:"submission_id"`
	}) (*struct {
		Body []submission.IntegrityResult `json:"body"`
	}, error) {
		results, err := a.Submission.VerifySubmission(ctx, input.SubmissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []submission.IntegrityResult `json:"body"`
		}{Body: results}, nil
	})
}

func registerAudit(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-entries",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
	}, func(ctx context.Context, input *struct {
		EntityType string `query:"entity_type"`
		EntityID   string `query:"entity_id"`
		Action     string `query:"action"`
		Limit      int    `query:"limit"`
		Cursor     int64  `query:"cursor"`
	}) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		items, err := a.Repo.ListAuditEntries(ctx, repo.AuditFilters{
			EntityType: input.EntityType,
			EntityID:   input.EntityID,
			Action:     input.Action,
			Limit:      input.Limit,
			Cursor:     input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: items}, nil
	})
}

func registerConfig(api huma.API, a *app.Context) {
	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Get governance config",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		phases := make([]map[string]any, 0, len(a.Config.Phases))
		for _, p := range a.Config.Phases {
			steps := make([]map[string]any, 0, len(p.Steps))
			for _, s := range p.Steps {
				steps = append(steps, map[string]any{
					"name":       s.Name,
					"agent":      s.Agent,
					"checkpoint": s.Checkpoint,
					"role":       s.Role,
					"depends_on": s.DependsOn,
				})
			}
			phases = append(phases, map[string]any{"name": p.Name, "steps": steps})
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"governance_id": a.Config.Governance.ID,
			"phases":        phases,
			"escalation": map[string]any{
				"fallbacks":         a.Config.Escalation.Fallbacks,
				"default_due_hours": a.Config.Escalation.DefaultDueHours,
			},
		}}, nil
	})
}
