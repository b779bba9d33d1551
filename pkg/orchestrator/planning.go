package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"papermill/pkg/artifact"
	"papermill/pkg/config"
	"papermill/pkg/events"
)

// PlanningResult carries the four planning sub-step outputs.
type PlanningResult struct {
	RAGAnalysis string `json:"rag_analysis"`
	Parse       string `json:"parse"`
	Research    string `json:"research"`
	Plan        string `json:"plan"`
}

// PlanningArtifactName is the persisted planning document.
const PlanningArtifactName = "modeling_plan.md"

// ExecutePlanningPhase runs the four sequential planning sub-steps and
// persists their concatenated output as a single planning artifact. The
// modeling phase is reachable only once that artifact is saved.
func (o *Orchestrator) ExecutePlanningPhase(ctx context.Context, problemText string) (PlanningResult, error) {
	if err := o.requireWorkspace(); err != nil {
		return PlanningResult{}, o.fail("planning phase: %v", err)
	}
	if strings.TrimSpace(problemText) == "" {
		return PlanningResult{}, o.fail("planning phase: problem text cannot be empty")
	}

	o.transition(PhasePlanning)
	var result PlanningResult

	// Sub-step (a): local heuristic analysis plus historical retrieval. No
	// LLM call.
	if o.opts.Knowledge != nil {
		analysis, err := o.opts.Knowledge.Analyze(problemText)
		if err != nil {
			return PlanningResult{}, o.fail("planning phase: knowledge analysis failed: %v", err)
		}
		result.RAGAnalysis = analysis.Report()
	} else {
		result.RAGAnalysis = "## Heuristic Problem Analysis\n\nNo knowledge base attached.\n"
	}
	o.notifyLog(events.SeverityInfo, "heuristic analysis complete")

	// Sub-step (b): parse and restate the problem.
	master, err := o.spawnAgent(config.RoleMaster)
	if err != nil {
		return PlanningResult{}, o.fail("planning phase: %v", err)
	}

	parseReply, err := master.SendMessage(ctx, fmt.Sprintf(
		"Restate the following problem precisely. Identify the objective, the key variables, "+
			"the constraints, and the assumptions required.\n\nProblem:\n%s", problemText))
	if err != nil {
		return PlanningResult{}, o.fail("planning phase: problem parsing failed: %v", err)
	}
	result.Parse = parseReply.Content
	o.recordUsage(string(PhasePlanning), master.Role(), master.ModelName(), parseReply)
	o.notifyLog(events.SeverityInfo, "problem restatement complete")

	// Sub-step (c): researcher clone gathers techniques and references.
	researcher, err := o.spawnAgent(config.RoleResearcher)
	if err != nil {
		return PlanningResult{}, o.fail("planning phase: %v", err)
	}
	researchClone := o.clones.Spawn(config.RoleResearcher, fmt.Sprintf(
		"Suggest applicable modeling techniques, canonical models, and relevant references for "+
			"this problem.\n\nProblem restatement:\n%s", result.Parse),
		o.agentWorker(string(PhasePlanning), researcher))

	researchResult := o.clones.Run(ctx, researchClone)
	if researchResult.Err != nil {
		return PlanningResult{}, o.fail("planning phase: research clone failed: %v", researchResult.Err)
	}
	result.Research = researchResult.Output
	o.notifyLog(events.SeverityInfo, "research complete")

	// Sub-step (d): structured plan from the master, grounded on all prior
	// outputs.
	planReply, err := master.SendMessage(ctx, fmt.Sprintf(
		"Produce a structured modeling plan with numbered steps. Ground it on the heuristic "+
			"analysis and research below.\n\nHeuristic analysis:\n%s\n\nResearch:\n%s",
		result.RAGAnalysis, result.Research))
	if err != nil {
		return PlanningResult{}, o.fail("planning phase: plan generation failed: %v", err)
	}
	result.Plan = planReply.Content
	o.recordUsage(string(PhasePlanning), master.Role(), master.ModelName(), planReply)

	// All four outputs concatenate into the single planning artifact.
	content := strings.Join([]string{
		"# Modeling Plan",
		"",
		result.RAGAnalysis,
		"## Problem Restatement",
		"",
		result.Parse,
		"",
		"## Research",
		"",
		result.Research,
		"",
		"## Plan",
		"",
		result.Plan,
	}, "\n")

	if _, err := o.artifacts.Save(PlanningArtifactName, artifact.KindPlan, []byte(content),
		"planning phase output", config.RoleMaster, map[string]any{"phase": "planning"}); err != nil {
		return PlanningResult{}, o.fail("planning phase: failed to persist plan: %v", err)
	}

	if err := o.workspace.MarkPhaseComplete("planning"); err != nil {
		return PlanningResult{}, o.fail("planning phase: failed to checkpoint: %v", err)
	}
	if err := o.workspace.RecordAnalysis("rag", result.RAGAnalysis); err != nil {
		o.logger.Warn("failed to record analysis snapshot: %v", err)
	}

	o.opts.Notifier.Notify(events.NewEvent(events.KindPlanningComplete, map[string]any{
		"artifact": PlanningArtifactName,
	}))
	o.notifyLog(events.SeveritySuccess, "planning phase complete")

	return result, nil
}
