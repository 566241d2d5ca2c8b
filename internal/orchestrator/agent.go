package orchestrator

import (
	"context"
	"sync"
)

// AgentContext is the input handed to an automated step.
type AgentContext struct {
	CycleID    string         `json:"cycle_id"`
	ReportID   string         `json:"report_id"`
	Phase      string         `json:"phase"`
	StepName   string         `json:"step_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// AgentResult is what an automated step produced.
type AgentResult struct {
	Success    bool     `json:"success"`
	Output     string   `json:"output,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Agent executes one automated step kind.
type Agent interface {
	Invoke(ctx context.Context, ac AgentContext) (AgentResult, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, ac AgentContext) (AgentResult, error)

func (f AgentFunc) Invoke(ctx context.Context, ac AgentContext) (AgentResult, error) {
	return f(ctx, ac)
}

// Registry maps agent type names to implementations.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(name string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = a
}

func (r *Registry) Lookup(name string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}
