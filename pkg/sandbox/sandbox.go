// Package sandbox provides the external collaborator contracts the workflow
// consumes (problem extraction, code execution, document compilation) plus
// subprocess-backed default implementations.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"papermill/pkg/logx"
)

// Extraction is the result of reading a problem source file.
type Extraction struct {
	Text        string
	PageCount   int
	ExtractedAt time.Time
}

// ProblemExtractor reads a problem statement out of a source file.
type ProblemExtractor interface {
	Extract(ctx context.Context, path string) (Extraction, error)
}

// ExecResult is the outcome of running generated code.
type ExecResult struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox runs generated source text within a bounded wall-clock timeout.
type Sandbox interface {
	Run(ctx context.Context, source string) (ExecResult, error)
}

// CompileResult is the outcome of compiling a document.
type CompileResult struct {
	Success bool
	Errors  []string
}

// DocCompiler turns a document source file into compiled output.
type DocCompiler interface {
	Compile(ctx context.Context, sourcePath, outputDir string) (CompileResult, error)
}

// TextExtractor reads plain-text problem files. PDF sources are expected to
// be converted to text upstream.
type TextExtractor struct{}

// Extract implements ProblemExtractor.
func (TextExtractor) Extract(_ context.Context, path string) (Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("failed to read problem source %s: %w", path, err)
	}

	text := string(data)
	// Rough page estimate for plain text.
	pages := len(strings.Fields(text))/450 + 1

	return Extraction{
		Text:        text,
		PageCount:   pages,
		ExtractedAt: time.Now(),
	}, nil
}

// PythonSandbox executes generated Python source through a local
// interpreter.
type PythonSandbox struct {
	Interpreter string
	WorkDir     string
	Timeout     time.Duration
	logger      *logx.Logger
}

// NewPythonSandbox creates a sandbox writing scripts under workDir.
func NewPythonSandbox(workDir string, timeout time.Duration) *PythonSandbox {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &PythonSandbox{
		Interpreter: "python3",
		WorkDir:     workDir,
		Timeout:     timeout,
		logger:      logx.NewLogger("sandbox"),
	}
}

// Run implements Sandbox. A non-zero exit or timeout comes back as an
// unsuccessful result, not an error; errors are reserved for setup failures.
func (s *PythonSandbox) Run(ctx context.Context, source string) (ExecResult, error) {
	if strings.TrimSpace(source) == "" {
		return ExecResult{}, errors.New("source cannot be empty")
	}

	if err := os.MkdirAll(s.WorkDir, 0755); err != nil {
		return ExecResult{}, fmt.Errorf("failed to create sandbox directory: %w", err)
	}
	scriptPath := filepath.Join(s.WorkDir, fmt.Sprintf("run_%d.py", time.Now().UnixNano()))
	if err := os.WriteFile(scriptPath, []byte(source), 0644); err != nil {
		return ExecResult{}, fmt.Errorf("failed to write sandbox script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.Interpreter, scriptPath)
	cmd.Dir = s.WorkDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		result.Success = true
	case runCtx.Err() != nil:
		result.ExitCode = -1
		result.Stderr = "execution timed out"
		s.logger.Warn("sandbox run timed out after %s", s.Timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("failed to start sandbox process: %w", err)
		}
	}

	return result, nil
}

// LatexCompiler compiles LaTeX sources with a local pdflatex.
type LatexCompiler struct {
	Binary  string
	Timeout time.Duration
}

// NewLatexCompiler creates a compiler with sensible defaults.
func NewLatexCompiler() *LatexCompiler {
	return &LatexCompiler{Binary: "pdflatex", Timeout: 120 * time.Second}
}

// Compile implements DocCompiler. Compilation failure is reported in the
// result; the source document remains usable either way.
func (c *LatexCompiler) Compile(ctx context.Context, sourcePath, outputDir string) (CompileResult, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return CompileResult{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Binary,
		"-interaction=nonstopmode",
		"-output-directory", outputDir,
		sourcePath,
	)

	var combined strings.Builder
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		return CompileResult{
			Success: false,
			Errors:  extractLatexErrors(combined.String()),
		}, nil
	}
	return CompileResult{Success: true}, nil
}

// extractLatexErrors pulls the "! ..." error lines out of a LaTeX log.
func extractLatexErrors(log string) []string {
	var errs []string
	for _, line := range strings.Split(log, "\n") {
		if strings.HasPrefix(line, "! ") {
			errs = append(errs, strings.TrimPrefix(line, "! "))
		}
	}
	if len(errs) == 0 {
		errs = []string{"compilation failed"}
	}
	return errs
}
