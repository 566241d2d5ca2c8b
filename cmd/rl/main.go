package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"regline/internal/app"
	"regline/internal/config"
	"regline/internal/db"
	"regline/internal/domain"
	"regline/internal/lifecycle"
	"regline/internal/orchestrator"
	"regline/internal/repo"
	"regline/internal/server"
	"regline/internal/tasks"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Regline CLI",
	Long: `Regline runs governed regulatory reporting cycles.
A cycle walks a report through nine fixed phases, pausing whenever a human
checkpoint needs a decision. Artifacts (CDE inventories, DQ rule sets,
lineage graphs, compliance packages) go through a shared draft -> review ->
approved lifecycle, and a submission freezes the approved set behind
content-hash locks. Every state change lands in the audit log ('rl audit tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(artifactCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Manage report definitions"}
	cmd.AddCommand(reportCreateCmd())
	cmd.AddCommand(reportListCmd())
	return cmd
}

func reportCreateCmd() *cobra.Command {
	var id, name, regulator, frequency string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || name == "" {
				return fmt.Errorf("--id and --name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				rep := domain.ReportDefinition{
					ID:        id,
					Name:      name,
					Regulator: regulator,
					Frequency: frequency,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertReport(ctx, rep); err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "report id")
	cmd.Flags().StringVar(&name, "name", "", "report name")
	cmd.Flags().StringVar(&regulator, "regulator", "", "regulator")
	cmd.Flags().StringVar(&frequency, "frequency", "", "reporting frequency")
	return cmd
}

func reportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListReports(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Regulator", "Frequency"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Name, r.Regulator, r.Frequency})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func cycleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cycle", Short: "Manage governance cycles"}
	cmd.AddCommand(cycleStartCmd())
	cmd.AddCommand(cycleListCmd())
	cmd.AddCommand(cycleShowCmd())
	cmd.AddCommand(cycleStepsCmd())
	cmd.AddCommand(cycleAdvanceCmd())
	cmd.AddCommand(cycleCancelCmd())
	cmd.AddCommand(cycleCloseCmd())
	return cmd
}

func cycleStartCmd() *cobra.Command {
	var reportID, periodEnd string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a report cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reportID == "" || periodEnd == "" {
				return fmt.Errorf("--report and --period-end required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cycle, err := a.Orchestrator.StartReportCycle(ctx, reportID, periodEnd, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	cmd.Flags().StringVar(&reportID, "report", "", "report id")
	cmd.Flags().StringVar(&periodEnd, "period-end", "", "reporting period end (YYYY-MM-DD)")
	return cmd
}

func cycleListCmd() *cobra.Command {
	var reportID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListCycles(ctx, reportID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Report", "Period", "Status", "Phase", "Pause Reason"})
				for _, c := range items {
					reason := ""
					if c.PauseReason != nil {
						reason = *c.PauseReason
					}
					tw.AppendRow(table.Row{c.ID, c.ReportID, c.PeriodEnd, c.Status, c.CurrentPhase, reason})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reportID, "report", "", "filter by report id")
	return cmd
}

func cycleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <cycle-id>",
		Short: "Show a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cycle, err := a.Orchestrator.GetCycle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	return cmd
}

func cycleStepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps <cycle-id>",
		Short: "List workflow steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				steps, err := a.Orchestrator.GetWorkflowSteps(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(steps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Phase", "Step", "Status", "Kind", "Role"})
				for _, s := range steps {
					kind := "automated"
					role := ""
					if s.IsHumanCheckpoint {
						kind = "checkpoint"
					}
					if s.RequiredRole != nil {
						role = *s.RequiredRole
					}
					tw.AppendRow(table.Row{s.Position, s.Phase, s.Name, s.Status, kind, role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func cycleAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <cycle-id>",
		Short: "Run eligible automated steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Orchestrator.Advance(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				cycle, err := a.Orchestrator.GetCycle(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	return cmd
}

func cycleCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <cycle-id>",
		Short: "Cancel a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cycle, err := a.Orchestrator.CancelCycle(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func cycleCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <cycle-id>",
		Short: "Complete a confirmed cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cycle, err := a.Orchestrator.CloseCycle(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage human tasks"}
	cmd.AddCommand(taskCreateCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskCompleteCmd())
	cmd.AddCommand(taskCancelCmd())
	cmd.AddCommand(taskEscalateCmd())
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var cycleID, taskType, title, desc, role, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a human task (pauses the cycle)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				task, err := a.Orchestrator.CreateHumanTask(ctx, tasks.CreateInput{
					CycleID:      cycleID,
					Type:         taskType,
					Title:        title,
					Description:  desc,
					AssignedRole: role,
					DueDate:      due,
					Actor:        viper.GetString("actor-id"),
					ActorType:    domain.ActorHuman,
				})
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "cycle id")
	cmd.Flags().StringVar(&taskType, "type", "", "task type")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	cmd.Flags().StringVar(&role, "role", "", "assigned role")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var cycleID, status, role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List human tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListTasks(ctx, repo.TaskFilters{CycleID: cycleID, Status: status, AssignedRole: role})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Role", "Status", "Due", "Esc"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Type, t.AssignedRole, t.Status, t.DueDate, t.EscalationLevel})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "filter by cycle id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&role, "role", "", "filter by assigned role")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var outcome, rationale string
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Record a task decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				task, err := a.Orchestrator.CompleteHumanTask(ctx, args[0], viper.GetString("actor-id"), domain.Decision{
					Outcome:   outcome,
					Rationale: rationale,
				})
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "decision outcome (approved/rejected)")
	cmd.Flags().StringVar(&rationale, "rationale", "", "decision rationale")
	return cmd
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				task, err := a.Tasks.Cancel(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSON(task)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func taskEscalateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalate-overdue",
		Short: "Escalate every overdue task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				escalated, err := a.Tasks.EscalateOverdue(ctx, a.Config.Escalation.Fallbacks)
				if err != nil {
					return err
				}
				return printJSON(escalated)
			})
		},
	}
	return cmd
}

func artifactCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "artifact", Short: "Manage governed artifacts"}
	cmd.AddCommand(artifactCreateCmd())
	cmd.AddCommand(artifactListCmd())
	cmd.AddCommand(artifactShowCmd())
	cmd.AddCommand(artifactReviewCmd())
	cmd.AddCommand(artifactApproveCmd())
	cmd.AddCommand(artifactRejectCmd())
	cmd.AddCommand(artifactModifyCmd())
	return cmd
}

func artifactCreateCmd() *cobra.Command {
	var cycleID, reportID, kind, name, content string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Lifecycle.CreateArtifact(ctx, lifecycle.CreateArtifactInput{
					CycleID:     cycleID,
					ReportID:    reportID,
					Kind:        domain.ArtifactKind(kind),
					Name:        name,
					ContentJSON: content,
					Actor:       viper.GetString("actor-id"),
					ActorType:   domain.ActorHuman,
				})
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "cycle id")
	cmd.Flags().StringVar(&reportID, "report", "", "report id")
	cmd.Flags().StringVar(&kind, "kind", "", "artifact kind")
	cmd.Flags().StringVar(&name, "name", "", "artifact name")
	cmd.Flags().StringVar(&content, "content", "", "content JSON")
	return cmd
}

func artifactListCmd() *cobra.Command {
	var cycleID, reportID, kind, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListArtifacts(ctx, repo.ArtifactFilters{CycleID: cycleID, ReportID: reportID, Kind: kind, Status: status})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Version", "Status"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Kind, it.Name, it.Version, it.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "filter by cycle")
	cmd.Flags().StringVar(&reportID, "report", "", "filter by report")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func artifactShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <artifact-id>",
		Short: "Show an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Repo.GetArtifact(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
}

func artifactReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit-review <artifact-id>",
		Short: "Submit a draft for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Lifecycle.SubmitForReview(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
}

func artifactApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <artifact-id>",
		Short: "Approve a pending artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Lifecycle.Approve(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
}

func artifactRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <artifact-id>",
		Short: "Reject a pending artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Lifecycle.Reject(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason (required)")
	return cmd
}

func artifactModifyCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "modify <artifact-id>",
		Short: "Replace artifact content (bumps version)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				artifact, err := a.Submission.Modify(ctx, args[0], viper.GetString("actor-id"), content)
				if err != nil {
					return err
				}
				return printJSON(artifact)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new content JSON")
	return cmd
}

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue", Short: "Manage data quality issues"}
	cmd.AddCommand(issueRaiseCmd())
	cmd.AddCommand(issueListCmd())
	cmd.AddCommand(issueShowCmd())
	cmd.AddCommand(issueStartCmd())
	cmd.AddCommand(issueResolveCmd())
	cmd.AddCommand(issueCloseCmd())
	cmd.AddCommand(issueReassignCmd())
	return cmd
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <issue-id>",
		Short: "Show an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Repo.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
}

func issueStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <issue-id>",
		Short: "Start work on an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Orchestrator.StartIssueWork(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
}

func issueResolveCmd() *cobra.Command {
	var rootCause, resolution string
	cmd := &cobra.Command{
		Use:   "resolve <issue-id>",
		Short: "Resolve an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Orchestrator.ResolveIssue(ctx, args[0], viper.GetString("actor-id"), rootCause, resolution)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().StringVar(&rootCause, "root-cause", "", "identified root cause")
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution description (required)")
	return cmd
}

func issueCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <issue-id>",
		Short: "Close an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Orchestrator.CloseIssue(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
}

func issueReassignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "reassign <issue-id>",
		Short: "Reassign an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Orchestrator.ReassignIssue(ctx, args[0], viper.GetString("actor-id"), assignee)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee email")
	return cmd
}

func issueRaiseCmd() *cobra.Command {
	var cycleID, reportID, title, desc, source, dataDomain, severity string
	var cdes, reports []string
	cmd := &cobra.Command{
		Use:   "raise",
		Short: "Raise an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				issue, err := a.Orchestrator.RaiseIssue(ctx, orchestrator.RaiseIssueInput{
					CycleID:         cycleID,
					ReportID:        reportID,
					Title:           title,
					Description:     desc,
					Source:          source,
					ImpactedReports: reports,
					ImpactedCDEs:    cdes,
					DataDomain:      dataDomain,
					Severity:        domain.Severity(severity),
					Actor:           viper.GetString("actor-id"),
					ActorType:       domain.ActorHuman,
				})
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "cycle id")
	cmd.Flags().StringVar(&reportID, "report", "", "report id")
	cmd.Flags().StringVar(&title, "title", "", "issue title")
	cmd.Flags().StringVar(&desc, "description", "", "issue description")
	cmd.Flags().StringVar(&source, "source", "", "detection source")
	cmd.Flags().StringVar(&dataDomain, "data-domain", "", "data domain for steward routing")
	cmd.Flags().StringVar(&severity, "severity", "medium", "severity (low/medium/high/critical)")
	cmd.Flags().StringSliceVar(&cdes, "cde", nil, "impacted CDE id (repeatable)")
	cmd.Flags().StringSliceVar(&reports, "impacted-report", nil, "impacted report id (repeatable)")
	return cmd
}

func issueListCmd() *cobra.Command {
	var cycleID, status, severity, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListIssues(ctx, repo.IssueFilters{CycleID: cycleID, Status: status, Severity: severity, Assignee: assignee})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Severity", "Status", "Assignee"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Title, it.Severity, it.Status, it.Assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "filter by cycle")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	return cmd
}

func submissionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "submission", Short: "Submit cycles and verify locks"}
	cmd.AddCommand(submissionSubmitCmd())
	cmd.AddCommand(submissionConfirmCmd())
	cmd.AddCommand(submissionVerifyCmd())
	return cmd
}

func submissionSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <cycle-id>",
		Short: "Lock approved artifacts and issue the receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				receipt, err := a.Submission.Submit(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(receipt)
			})
		},
	}
	return cmd
}

func submissionConfirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <cycle-id>",
		Short: "Record regulator acknowledgement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cycle, err := a.Submission.Confirm(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(cycle)
			})
		},
	}
	return cmd
}

func submissionVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <submission-id>",
		Short: "Verify locked artifact integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				results, err := a.Submission.VerifySubmission(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Artifact", "Name", "Intact"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.ArtifactID, r.ArtifactName, r.Intact})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	cmd.AddCommand(auditTailCmd())
	return cmd
}

func auditTailCmd() *cobra.Command {
	var n int
	var entityType, entityID, action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				entries, err := a.Repo.ListAuditEntries(ctx, repo.AuditFilters{
					EntityType: entityType,
					EntityID:   entityID,
					Action:     action,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Entity", "Action", "Actor"})
				for _, e := range entries {
					tw.AppendRow(table.Row{e.ID, e.TS, e.EntityType + "/" + e.EntityID, e.Action, e.Actor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of entries")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "filter by entity type")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity id")
	cmd.Flags().StringVar(&action, "action", "", "filter by action")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage governance config"}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configImportCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return printJSON(a.Config)
			})
		},
	}
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default regline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a config file into the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				if err := a.Repo.UpsertGovernanceConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Println("imported", file)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file path")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.New(workspace)
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("REGLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("REGLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Regline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-actor-header", false, "accept X-Actor-Id without auth (dev only)")
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.New(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
