package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problem.txt")
	require.NoError(t, os.WriteFile(path, []byte("Optimize vehicle routing to minimize response time."), 0644))

	ext, err := TextExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, ext.Text, "vehicle routing")
	assert.Equal(t, 1, ext.PageCount)
	assert.WithinDuration(t, time.Now(), ext.ExtractedAt, time.Minute)
}

func TestTextExtractorMissingFile(t *testing.T) {
	_, err := TextExtractor{}.Extract(context.Background(), "/no/such/file.txt")
	require.Error(t, err)
}

func TestPythonSandboxRejectsEmptySource(t *testing.T) {
	s := NewPythonSandbox(t.TempDir(), time.Second)
	_, err := s.Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestPythonSandboxRunsScript(t *testing.T) {
	s := NewPythonSandbox(t.TempDir(), 30*time.Second)
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}

	res, err := s.Run(context.Background(), "print('hello from sandbox')")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Stdout, "hello from sandbox")
}

func TestPythonSandboxReportsFailure(t *testing.T) {
	s := NewPythonSandbox(t.TempDir(), 30*time.Second)
	if _, err := os.Stat("/usr/bin/python3"); err != nil {
		t.Skip("python3 not available")
	}

	res, err := s.Run(context.Background(), "import sys\nsys.exit(3)")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExtractLatexErrors(t *testing.T) {
	log := "some output\n! Undefined control sequence.\nl.10 \\badmacro\n! Missing $ inserted.\n"
	errs := extractLatexErrors(log)
	require.Len(t, errs, 2)
	assert.Equal(t, "Undefined control sequence.", errs[0])

	assert.Equal(t, []string{"compilation failed"}, extractLatexErrors("no error lines"))
}
