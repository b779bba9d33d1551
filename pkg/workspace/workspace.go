// Package workspace manages a workflow workspace: the on-disk directory
// scaffolding and the persisted checkpoint recording which phases have
// completed. The checkpoint lets a reopened workspace restore its state
// without re-running finished phases.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Standard subdirectories created on initialization.
var subdirectories = []string{ //nolint:gochecknoglobals
	"artifacts",
	"logs",
	"output",
}

// ProblemMeta describes the problem a workspace was initialized with.
type ProblemMeta struct {
	Title      string    `json:"title"`
	SourcePath string    `json:"source_path,omitempty"`
	PageCount  int       `json:"page_count,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// State is the persisted workflow checkpoint.
type State struct {
	Problem          ProblemMeta       `json:"problem"`
	PlanningComplete bool              `json:"planning_complete"`
	ModelingComplete bool              `json:"modeling_complete"`
	WritingComplete  bool              `json:"writing_complete"`
	Analyses         map[string]string `json:"analyses,omitempty"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

const stateFileName = "workflow_state.json"

// Workspace is one initialized workflow directory.
type Workspace struct {
	dir   string
	state State
}

// Init creates the workspace scaffolding at dir and persists an initial
// checkpoint. An existing checkpoint is preserved.
func Init(dir string, meta ProblemMeta) (*Workspace, error) {
	if dir == "" {
		return nil, fmt.Errorf("workspace path cannot be empty")
	}

	for _, sub := range subdirectories {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace directory %s: %w", sub, err)
		}
	}

	ws := &Workspace{dir: dir}

	existing, err := loadState(dir)
	switch {
	case err == nil:
		ws.state = existing
	case os.IsNotExist(err):
		ws.state = State{Problem: meta, Analyses: make(map[string]string)}
		if err := ws.saveState(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return ws, nil
}

// Open loads an already initialized workspace.
func Open(dir string) (*Workspace, error) {
	state, err := loadState(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("workspace %s is not initialized", dir)
	}
	if err != nil {
		return nil, err
	}
	return &Workspace{dir: dir, state: state}, nil
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// LogDir returns the workspace log directory.
func (w *Workspace) LogDir() string {
	return filepath.Join(w.dir, "logs")
}

// OutputDir returns the compiled-output directory.
func (w *Workspace) OutputDir() string {
	return filepath.Join(w.dir, "output")
}

// State returns the current checkpoint.
func (w *Workspace) State() State {
	return w.state
}

// MarkPhaseComplete records a finished phase and persists the checkpoint.
func (w *Workspace) MarkPhaseComplete(phase string) error {
	switch phase {
	case "planning":
		w.state.PlanningComplete = true
	case "modeling":
		w.state.ModelingComplete = true
	case "writing":
		w.state.WritingComplete = true
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	return w.saveState()
}

// RecordAnalysis stores a named analysis snapshot in the checkpoint.
func (w *Workspace) RecordAnalysis(name, summary string) error {
	if w.state.Analyses == nil {
		w.state.Analyses = make(map[string]string)
	}
	w.state.Analyses[name] = summary
	return w.saveState()
}

func (w *Workspace) saveState() error {
	w.state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(w.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, stateFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow state: %w", err)
	}
	return nil
}

func loadState(dir string) (State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("failed to parse workflow state in %s: %w", dir, err)
	}
	return state, nil
}
