package orchestrator

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"papermill/pkg/agent"
	"papermill/pkg/artifact"
	"papermill/pkg/config"
	"papermill/pkg/events"
)

// WritingResult carries the writing phase outputs.
type WritingResult struct {
	Paper    string `json:"paper"`
	Pages    int    `json:"pages"`
	Figures  int    `json:"figures"`
	Expanded bool   `json:"expanded"`
	Compiled bool   `json:"compiled"`
}

// PaperArtifactName is the persisted paper source.
const PaperArtifactName = "paper.tex"

// minPaperPages and minPaperFigures are the completeness thresholds for a
// submission-ready paper.
const (
	minPaperPages   = 12
	minPaperFigures = 4
)

// ExecuteWritingPhase drafts the paper from whatever planning and modeling
// artifacts exist. Missing upstream artifacts degrade the draft's grounding
// but never block the phase. An incomplete draft gets exactly one expansion
// pass; the expanded text replaces the draft whether or not it crosses the
// thresholds.
func (o *Orchestrator) ExecuteWritingPhase(ctx context.Context) (WritingResult, error) {
	if err := o.requireWorkspace(); err != nil {
		return WritingResult{}, o.fail("writing phase: %v", err)
	}

	o.transition(PhaseWriting)

	background := o.gatherBackground()
	if background == "" {
		o.warnStep("no planning or modeling artifacts found; drafting from problem statement only")
		background = o.problemBackground()
	}

	writer, err := o.spawnAgent(config.RoleWriter)
	if err != nil {
		return WritingResult{}, o.fail("writing phase: %v", err)
	}

	draftClone := o.clones.Spawn(config.RoleWriter, fmt.Sprintf(
		"Write a complete LaTeX research paper: abstract, introduction, assumptions, model "+
			"formulation, a results section with figures, sensitivity analysis, and conclusion. "+
			"Target at least %d pages with at least %d figures.\n\nSource material:\n%s",
		minPaperPages, minPaperFigures, background),
		o.agentWorker(string(PhaseWriting), writer))

	draftResult := o.clones.Run(ctx, draftClone)
	if draftResult.Err != nil {
		return WritingResult{}, o.fail("writing phase: draft generation failed: %v", draftResult.Err)
	}

	paper := draftResult.Output
	if strings.TrimSpace(paper) == "" {
		return WritingResult{}, o.fail("writing phase: draft generation returned no content")
	}

	result := WritingResult{Paper: paper}
	result.Pages, result.Figures = paperStats(paper)

	// One expansion pass at most. The expanded document replaces the draft
	// unconditionally; a second round would double token cost for
	// diminishing returns.
	if !isComplete(paper) {
		o.notifyLog(events.SeverityWarning, fmt.Sprintf(
			"draft incomplete (%d pages, %d figures); requesting expansion", result.Pages, result.Figures))

		expanded, err := o.expandPaper(ctx, writer, paper)
		if err != nil {
			o.warnStep("paper expansion failed, keeping original draft: %v", err)
		} else {
			paper = expanded
			result.Paper = paper
			result.Expanded = true
			result.Pages, result.Figures = paperStats(paper)
		}
	}

	rec, err := o.artifacts.Save(PaperArtifactName, artifact.KindDocument, []byte(paper),
		"final paper source", config.RoleWriter, map[string]any{"phase": "writing", "pages": result.Pages})
	if err != nil {
		return WritingResult{}, o.fail("writing phase: failed to persist paper: %v", err)
	}

	result.Compiled = o.compilePaper(ctx, rec.Path)

	if err := o.workspace.MarkPhaseComplete("writing"); err != nil {
		return WritingResult{}, o.fail("writing phase: failed to checkpoint: %v", err)
	}

	o.opts.Notifier.Notify(events.NewEvent(events.KindWritingComplete, map[string]any{
		"artifact": PaperArtifactName,
		"pages":    result.Pages,
		"figures":  result.Figures,
		"compiled": result.Compiled,
	}))
	o.notifyLog(events.SeveritySuccess, "writing phase complete")

	return result, nil
}

// gatherBackground concatenates all plan, data, and analysis artifacts into
// the writer's source material. Unreadable entries are skipped with a
// warning.
func (o *Orchestrator) gatherBackground() string {
	var sections []string
	for _, rec := range o.artifacts.List() {
		switch rec.Kind {
		case artifact.KindPlan, artifact.KindCode, artifact.KindData, artifact.KindAnalysis:
		default:
			continue
		}
		data, err := o.artifacts.Read(rec.Name)
		if err != nil {
			o.warnStep("could not read artifact %s: %v", rec.Name, err)
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s (%s)\n\n%s", rec.Name, rec.Kind, data))
	}
	return strings.Join(sections, "\n\n")
}

// problemBackground falls back to the problem statement recorded in the
// workspace checkpoint.
func (o *Orchestrator) problemBackground() string {
	state := o.workspace.State()
	return fmt.Sprintf("### Problem\n\nTitle: %s (source: %s)", state.Problem.Title, state.Problem.SourcePath)
}

// expandPaper runs the single expansion pass on an incomplete draft.
func (o *Orchestrator) expandPaper(ctx context.Context, writer *agent.Agent, paper string) (string, error) {
	reply, err := writer.SendMessage(ctx, fmt.Sprintf(
		"The paper below is too short. Expand it to at least %d pages with at least %d figures "+
			"and a dedicated results section. Return the full revised LaTeX document.\n\n%s",
		minPaperPages, minPaperFigures, paper))
	if err != nil {
		return "", err
	}
	o.recordUsage(string(PhaseWriting), config.RoleWriter, writer.ModelName(), reply)
	if strings.TrimSpace(reply.Content) == "" {
		return "", fmt.Errorf("expansion returned no content")
	}
	return reply.Content, nil
}

// compilePaper best-effort compiles the paper into the workspace output
// directory.
func (o *Orchestrator) compilePaper(ctx context.Context, sourcePath string) bool {
	if o.opts.Compiler == nil {
		return false
	}
	res, err := o.opts.Compiler.Compile(ctx, sourcePath, o.workspace.OutputDir())
	if err != nil {
		o.warnStep("paper compilation failed: %v", err)
		return false
	}
	if !res.Success {
		o.warnStep("paper compilation reported errors: %s", strings.Join(res.Errors, "; "))
		return false
	}
	o.notifyLog(events.SeverityInfo, fmt.Sprintf("paper compiled to %s", filepath.Join(o.workspace.OutputDir(), "paper.pdf")))
	return true
}

// isComplete reports whether a paper meets the length, figure, and
// structure thresholds.
func isComplete(paper string) bool {
	pages, figures := paperStats(paper)
	return pages >= minPaperPages && figures >= minPaperFigures && hasResultsSection(paper)
}

// paperStats estimates page count (450 words per page, rounded up) and
// counts figure environments plus markdown images.
func paperStats(paper string) (pages, figures int) {
	words := len(strings.Fields(paper))
	pages = int(math.Ceil(float64(words) / 450))
	figures = strings.Count(paper, `\begin{figure}`) + strings.Count(paper, "![")
	return pages, figures
}

// hasResultsSection looks for a results-style heading in either LaTeX or
// markdown form.
func hasResultsSection(paper string) bool {
	lower := strings.ToLower(paper)
	for _, heading := range []string{"results", "experimental validation", "experiments", "validation"} {
		if strings.Contains(lower, `\section{`+heading) ||
			strings.Contains(lower, "# "+heading) ||
			strings.Contains(lower, "## "+heading) {
			return true
		}
	}
	return false
}
