// Package app wires the shared services and resolves workspace config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"regline/internal/agents"
	"regline/internal/assign"
	"regline/internal/audit"
	"regline/internal/config"
	"regline/internal/db"
	"regline/internal/lifecycle"
	"regline/internal/migrate"
	"regline/internal/orchestrator"
	"regline/internal/repo"
	"regline/internal/submission"
	"regline/internal/tasks"
)

// Context bundles the wired services for the CLI and the server.
type Context struct {
	DB           *sql.DB
	Repo         repo.Repo
	Config       *config.Config
	Lifecycle    lifecycle.Service
	Tasks        tasks.Manager
	Submission   submission.Manager
	Orchestrator *orchestrator.Orchestrator
}

// New opens the workspace database, migrates it, resolves config and wires
// every service around one audit writer.
func New(workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	r := repo.Repo{DB: conn}
	cfg, err := ResolveConfig(context.Background(), workspace, r)
	if err != nil {
		conn.Close()
		return nil, err
	}

	aw := audit.Writer{Now: time.Now}
	lc := lifecycle.Service{DB: conn, Repo: r, Audit: aw, Now: time.Now}
	tm := tasks.Manager{DB: conn, Repo: r, Audit: aw, Now: time.Now}
	sm := submission.Manager{DB: conn, Repo: r, Audit: aw, Now: time.Now}

	registry := orchestrator.NewRegistry()
	agents.RegisterBuiltins(registry, lc, r)

	orch := &orchestrator.Orchestrator{
		DB:       conn,
		Repo:     r,
		Audit:    aw,
		Config:   cfg,
		Tasks:    tm,
		Agents:   registry,
		Router:   assign.Router{Inventory: r},
		Notifier: logNotifier{},
		Logger:   log.New(os.Stderr, "regline ", log.LstdFlags),
		Now:      time.Now,
	}

	return &Context{
		DB:           conn,
		Repo:         r,
		Config:       cfg,
		Lifecycle:    lc,
		Tasks:        tm,
		Submission:   sm,
		Orchestrator: orch,
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// ResolveConfig loads config in order of preference: the workspace
// regline.yml, the copy stored in the database, then the built-in default
// (which is seeded into the database on first use). A workspace file always
// refreshes the stored copy so both stay in sync.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	if _, err := os.Stat(config.Path(workspace)); err == nil {
		cfg, err := config.Load(workspace)
		if err != nil {
			return nil, err
		}
		if err := r.UpsertGovernanceConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("store config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := r.GetGovernanceConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := r.UpsertGovernanceConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return cfg, nil
}

// logNotifier is the default notification sink: deliveries are logged, not
// sent anywhere.
type logNotifier struct{}

func (logNotifier) Notify(_ context.Context, recipient, subject, _ string) error {
	log.Printf("notify %s: %s", recipient, subject)
	return nil
}
