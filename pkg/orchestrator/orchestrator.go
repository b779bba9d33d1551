// Package orchestrator drives the planning -> modeling -> writing workflow.
// It coordinates agents and clones per phase, persists phase artifacts, and
// reports progress through the notification stream. Retries belong to the
// wrapping service facade, not here: a failed phase call is logged and
// returned to the caller.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"papermill/pkg/agent"
	"papermill/pkg/artifact"
	"papermill/pkg/clone"
	"papermill/pkg/config"
	"papermill/pkg/events"
	"papermill/pkg/knowledge"
	"papermill/pkg/logx"
	"papermill/pkg/persistence"
	"papermill/pkg/sandbox"
	"papermill/pkg/workspace"
)

// Phase is the workflow state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePlanning Phase = "planning"
	PhaseModeling Phase = "modeling"
	PhaseWriting  Phase = "writing"
)

// AgentFactory creates role-scoped agents. Satisfied by agent.ClientFactory;
// tests substitute stub-backed factories.
type AgentFactory interface {
	CreateAgent(role, systemPrompt string) (*agent.Agent, error)
}

// Options carries the orchestrator's collaborators. Factory and Notifier are
// required; nil external collaborators disable the corresponding best-effort
// steps.
type Options struct {
	Factory   AgentFactory
	Profiles  map[string]config.RoleProfile
	Knowledge *knowledge.Base
	Notifier  events.Notifier
	Sandbox   sandbox.Sandbox
	Compiler  sandbox.DocCompiler
	Ledger    *persistence.Ledger
	SessionID string

	// SandboxDir is where the sandbox writes files it produces (figures,
	// intermediate data). Defaults to the artifact directory.
	SandboxDir string
}

// Orchestrator owns one workspace's workflow. At most one orchestrator may
// target a workspace path at a time; the artifact index is not locked.
type Orchestrator struct {
	opts   Options
	logger *logx.Logger

	phase     Phase
	workspace *workspace.Workspace
	artifacts *artifact.Store
	clones    *clone.Registry
}

// New creates an orchestrator. The workspace is not touched until
// InitializeWorkspace.
func New(opts Options) (*Orchestrator, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("agent factory is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Discard
	}
	if opts.Profiles == nil {
		opts.Profiles = map[string]config.RoleProfile{}
	}

	return &Orchestrator{
		opts:   opts,
		logger: logx.NewLogger("orchestrator"),
		phase:  PhaseIdle,
		clones: clone.NewRegistry(),
	}, nil
}

// Phase returns the current workflow phase.
func (o *Orchestrator) Phase() Phase {
	return o.phase
}

// Artifacts returns the workspace's artifact store, nil before
// InitializeWorkspace.
func (o *Orchestrator) Artifacts() *artifact.Store {
	return o.artifacts
}

// Workspace returns the active workspace, nil before InitializeWorkspace.
func (o *Orchestrator) Workspace() *workspace.Workspace {
	return o.workspace
}

// InitializeWorkspace scaffolds the workspace and opens its artifact store.
func (o *Orchestrator) InitializeWorkspace(path string, meta workspace.ProblemMeta) error {
	ws, err := workspace.Init(path, meta)
	if err != nil {
		return o.fail("workspace initialization failed: %v", err)
	}

	store, err := artifact.NewStore(path, o.opts.Notifier)
	if err != nil {
		return o.fail("artifact store initialization failed: %v", err)
	}

	o.workspace = ws
	o.artifacts = store

	o.notifyLog(events.SeverityInfo, fmt.Sprintf("workspace initialized at %s", path))
	return nil
}

// RunCompleteWorkflow executes all three phases in sequence.
func (o *Orchestrator) RunCompleteWorkflow(ctx context.Context, path string, meta workspace.ProblemMeta, problemText string) error {
	if err := o.InitializeWorkspace(path, meta); err != nil {
		return err
	}

	planning, err := o.ExecutePlanningPhase(ctx, problemText)
	if err != nil {
		return err
	}

	if _, err := o.ExecuteModelingPhase(ctx, planning.Plan); err != nil {
		return err
	}

	if _, err := o.ExecuteWritingPhase(ctx); err != nil {
		return err
	}

	o.phase = PhaseIdle
	o.opts.Notifier.Notify(events.NewEvent(events.KindWorkflowComplete, map[string]any{
		"workspace": path,
		"artifacts": len(o.artifacts.List()),
	}))
	return nil
}

// transition moves to a new phase and notifies observers.
func (o *Orchestrator) transition(phase Phase) {
	o.phase = phase
	o.opts.Notifier.Notify(events.NewPhaseChange(string(phase)))
	o.logger.Info("entering phase %s", phase)
}

// fail logs a fatal phase error with context and returns it. Error
// notifications are the wrapping facade's job: it owns the retry policy, so
// only it knows when an error is final rather than one failed attempt.
func (o *Orchestrator) fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	o.logger.Error("%s", err.Error())
	return err
}

func (o *Orchestrator) notifyLog(severity events.Severity, message string) {
	o.opts.Notifier.Notify(events.NewLog(severity, message))
}

// spawnAgent creates an agent for a role using its configured profile.
func (o *Orchestrator) spawnAgent(role string) (*agent.Agent, error) {
	profile := o.opts.Profiles[role]
	a, err := o.opts.Factory.CreateAgent(role, profile.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s agent: %w", role, err)
	}
	return a, nil
}

// recordUsage appends a reply's token usage to the run ledger when one is
// attached.
func (o *Orchestrator) recordUsage(phase, role, model string, reply agent.Reply) {
	if o.opts.Ledger == nil {
		return
	}
	err := o.opts.Ledger.RecordUsage(o.opts.SessionID, phase, role, model,
		reply.Usage.InputTokens, reply.Usage.OutputTokens)
	if err != nil {
		o.logger.Warn("failed to record token usage: %v", err)
	}
}

// agentWorker adapts an agent to the clone worker contract and records its
// usage.
func (o *Orchestrator) agentWorker(phase string, a *agent.Agent) clone.Worker {
	return clone.WorkerFunc(func(ctx context.Context, task string) (string, error) {
		reply, err := a.SendMessage(ctx, task)
		if err != nil {
			return "", err
		}
		o.recordUsage(phase, a.Role(), a.ModelName(), reply)
		return reply.Content, nil
	})
}

// readSandboxFile reads a file the sandbox produced in its work directory.
func (o *Orchestrator) readSandboxFile(name string) ([]byte, error) {
	dir := o.opts.SandboxDir
	if dir == "" {
		dir = o.artifacts.Dir()
	}
	return os.ReadFile(filepath.Join(dir, name))
}

// requireWorkspace guards phase entry points.
func (o *Orchestrator) requireWorkspace() error {
	if o.workspace == nil || o.artifacts == nil {
		return fmt.Errorf("workspace is not initialized")
	}
	return nil
}
