package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"papermill/pkg/agent"
	"papermill/pkg/artifact"
	"papermill/pkg/config"
	"papermill/pkg/events"
)

// ModelingResult carries the modeling phase outputs.
type ModelingResult struct {
	Model          string   `json:"model"`
	Experiments    []string `json:"experiments,omitempty"`
	Visualizations int      `json:"visualizations"`
	Sensitivity    string   `json:"sensitivity,omitempty"`
}

// ModelArtifactName is the persisted model implementation.
const ModelArtifactName = "model.py"

// experimentKinds are the best-effort experiment templates run against the
// generated model.
var experimentKinds = []string{"baseline", "parameter sweep", "scenario comparison", "edge case"} //nolint:gochecknoglobals

// ExecuteModelingPhase turns an approved plan into model code plus
// best-effort experiment, visualization, and sensitivity artifacts. The
// phase fails hard only on a missing/empty plan or a failed initial code
// generation; every later sub-step failure is logged and skipped.
func (o *Orchestrator) ExecuteModelingPhase(ctx context.Context, planText string) (ModelingResult, error) {
	if err := o.requireWorkspace(); err != nil {
		return ModelingResult{}, o.fail("modeling phase: %v", err)
	}

	// Plan validation happens before any clone is spawned.
	trimmed := strings.TrimSpace(planText)
	if trimmed == "" || strings.EqualFold(trimmed, "null") {
		return ModelingResult{}, o.fail("modeling phase: plan is missing or empty")
	}

	o.transition(PhaseModeling)

	modeler, err := o.spawnAgent(config.RoleModeler)
	if err != nil {
		return ModelingResult{}, o.fail("modeling phase: %v", err)
	}

	codeClone := o.clones.Spawn(config.RoleModeler, fmt.Sprintf(
		"Implement the following modeling plan as complete, runnable Python code. Include "+
			"parameter definitions, the solution procedure, and printed results.\n\nPlan:\n%s", planText),
		o.agentWorker(string(PhaseModeling), modeler))

	codeResult := o.clones.Run(ctx, codeClone)
	if codeResult.Err != nil {
		return ModelingResult{}, o.fail("modeling phase: code generation failed: %v", codeResult.Err)
	}

	model := extractCode(codeResult.Output)
	if strings.TrimSpace(model) == "" {
		return ModelingResult{}, o.fail("modeling phase: code generation returned no code")
	}

	if _, err := o.artifacts.Save(ModelArtifactName, artifact.KindCode, []byte(model),
		"model implementation", config.RoleModeler, map[string]any{"phase": "modeling"}); err != nil {
		return ModelingResult{}, o.fail("modeling phase: failed to persist model: %v", err)
	}

	result := ModelingResult{Model: model}

	// Everything past this point is best-effort: failures degrade the
	// output, they never abort the phase.
	result.Experiments = o.runExperiments(ctx, modeler, model)
	result.Visualizations = o.generateVisualizations(ctx, modeler, model)
	result.Sensitivity = o.runSensitivityAnalysis(ctx, modeler, model)

	if err := o.workspace.MarkPhaseComplete("modeling"); err != nil {
		return ModelingResult{}, o.fail("modeling phase: failed to checkpoint: %v", err)
	}

	o.opts.Notifier.Notify(events.NewEvent(events.KindModelingComplete, map[string]any{
		"artifact":    ModelArtifactName,
		"experiments": len(result.Experiments),
	}))
	o.notifyLog(events.SeveritySuccess, "modeling phase complete")

	return result, nil
}

// runExperiments executes each experiment kind in the sandbox and persists
// successful outputs.
func (o *Orchestrator) runExperiments(ctx context.Context, modeler *agent.Agent, model string) []string {
	if o.opts.Sandbox == nil {
		o.notifyLog(events.SeverityWarning, "no sandbox attached; skipping experiments")
		return nil
	}

	var saved []string
	for _, kind := range experimentKinds {
		reply, err := modeler.SendMessage(ctx, fmt.Sprintf(
			"Write a standalone Python script that runs a %s experiment against the model "+
				"below and prints its results.\n\nModel:\n%s", kind, model))
		if err != nil {
			o.warnStep("experiment %q generation failed: %v", kind, err)
			continue
		}
		o.recordUsage(string(PhaseModeling), config.RoleModeler, modeler.ModelName(), reply)

		run, err := o.opts.Sandbox.Run(ctx, extractCode(reply.Content))
		if err != nil || !run.Success {
			o.warnStep("experiment %q execution failed: %v (stderr: %s)", kind, err, shorten(run.Stderr))
			continue
		}

		name := fmt.Sprintf("results_%s.txt", strings.ReplaceAll(kind, " ", "_"))
		if _, err := o.artifacts.Save(name, artifact.KindData, []byte(run.Stdout),
			kind+" experiment output", config.RoleModeler, map[string]any{"phase": "modeling"}); err != nil {
			o.warnStep("experiment %q persistence failed: %v", kind, err)
			continue
		}
		saved = append(saved, name)
	}
	return saved
}

// generateVisualizations asks for plotting code, runs it, and registers the
// figure files it produced under the artifact directory.
func (o *Orchestrator) generateVisualizations(ctx context.Context, modeler *agent.Agent, model string) int {
	if o.opts.Sandbox == nil {
		return 0
	}

	reply, err := modeler.SendMessage(ctx, fmt.Sprintf(
		"Write a standalone Python script that generates matplotlib figures for the model below "+
			"and saves them as PNG files named figure_1.png, figure_2.png, ... in the current "+
			"directory.\n\nModel:\n%s", model))
	if err != nil {
		o.warnStep("visualization generation failed: %v", err)
		return 0
	}
	o.recordUsage(string(PhaseModeling), config.RoleModeler, modeler.ModelName(), reply)

	run, err := o.opts.Sandbox.Run(ctx, extractCode(reply.Content))
	if err != nil || !run.Success {
		o.warnStep("visualization execution failed: %v (stderr: %s)", err, shorten(run.Stderr))
		return 0
	}

	count := 0
	for i := 1; ; i++ {
		if _, err := o.registerFigure(fmt.Sprintf("figure_%d.png", i)); err != nil {
			break
		}
		count++
	}
	if count == 0 {
		o.warnStep("visualization script produced no figure files")
	}
	return count
}

// runSensitivityAnalysis produces the automated parameter-sensitivity
// report.
func (o *Orchestrator) runSensitivityAnalysis(ctx context.Context, modeler *agent.Agent, model string) string {
	if o.opts.Sandbox == nil {
		return ""
	}

	reply, err := modeler.SendMessage(ctx, fmt.Sprintf(
		"Write a standalone Python script that perturbs each key parameter of the model below "+
			"by +/-10%% and prints a sensitivity table of output changes.\n\nModel:\n%s", model))
	if err != nil {
		o.warnStep("sensitivity analysis generation failed: %v", err)
		return ""
	}
	o.recordUsage(string(PhaseModeling), config.RoleModeler, modeler.ModelName(), reply)

	run, err := o.opts.Sandbox.Run(ctx, extractCode(reply.Content))
	if err != nil || !run.Success {
		o.warnStep("sensitivity analysis execution failed: %v (stderr: %s)", err, shorten(run.Stderr))
		return ""
	}

	if _, err := o.artifacts.Save("sensitivity_report.txt", artifact.KindAnalysis, []byte(run.Stdout),
		"parameter sensitivity report", config.RoleModeler, map[string]any{"phase": "modeling"}); err != nil {
		o.warnStep("sensitivity report persistence failed: %v", err)
		return ""
	}
	return run.Stdout
}

// registerFigure indexes a figure file the sandbox wrote into the artifact
// directory; a missing file ends the scan.
func (o *Orchestrator) registerFigure(name string) (artifact.Record, error) {
	data, err := o.readSandboxFile(name)
	if err != nil {
		return artifact.Record{}, err
	}
	return o.artifacts.Save(name, artifact.KindFigure, data,
		"model visualization", config.RoleModeler, map[string]any{"phase": "modeling"})
}

// warnStep logs a degraded best-effort sub-step.
func (o *Orchestrator) warnStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Warn("%s", msg)
	o.notifyLog(events.SeverityWarning, msg)
}

// extractCode strips markdown code fences from an LLM reply, returning the
// fenced content when present and the raw reply otherwise.
func extractCode(reply string) string {
	start := strings.Index(reply, "```")
	if start == -1 {
		return reply
	}

	rest := reply[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		// Drop the language tag line.
		firstLine := rest[:nl]
		if len(strings.Fields(firstLine)) <= 1 {
			rest = rest[nl+1:]
		}
	}

	if end := strings.Index(rest, "```"); end != -1 {
		return rest[:end]
	}
	return rest
}

func shorten(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
