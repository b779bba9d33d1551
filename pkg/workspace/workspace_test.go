package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesScaffolding(t *testing.T) {
	dir := t.TempDir()

	ws, err := Init(dir, ProblemMeta{Title: "vehicle routing", LoadedAt: time.Now()})
	require.NoError(t, err)

	for _, sub := range []string{"artifacts", "logs", "output"} {
		info, statErr := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}

	state := ws.State()
	assert.Equal(t, "vehicle routing", state.Problem.Title)
	assert.False(t, state.PlanningComplete)
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	ws, err := Init(dir, ProblemMeta{Title: "p1"})
	require.NoError(t, err)

	require.NoError(t, ws.MarkPhaseComplete("planning"))
	require.NoError(t, ws.MarkPhaseComplete("modeling"))
	require.NoError(t, ws.RecordAnalysis("rag", "matched archetype: network optimization"))

	reopened, err := Open(dir)
	require.NoError(t, err)

	state := reopened.State()
	assert.True(t, state.PlanningComplete)
	assert.True(t, state.ModelingComplete)
	assert.False(t, state.WritingComplete)
	assert.Equal(t, "matched archetype: network optimization", state.Analyses["rag"])
}

func TestReinitPreservesCheckpoint(t *testing.T) {
	dir := t.TempDir()

	ws, err := Init(dir, ProblemMeta{Title: "original"})
	require.NoError(t, err)
	require.NoError(t, ws.MarkPhaseComplete("planning"))

	again, err := Init(dir, ProblemMeta{Title: "different"})
	require.NoError(t, err)
	assert.True(t, again.State().PlanningComplete)
	assert.Equal(t, "original", again.State().Problem.Title)
}

func TestOpenUninitialized(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestMarkUnknownPhase(t *testing.T) {
	ws, err := Init(t.TempDir(), ProblemMeta{})
	require.NoError(t, err)
	require.Error(t, ws.MarkPhaseComplete("shipping"))
}
