package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSessionLifecycle(t *testing.T) {
	l := openTestLedger(t)

	s, err := l.BeginSession("/tmp/ws1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusActive, s.Status)

	loaded, err := l.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ws1", loaded.WorkspaceDir)
	assert.Nil(t, loaded.EndedAt)

	require.NoError(t, l.EndSession(s.ID, SessionStatusCompleted))

	ended, err := l.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCompleted, ended.Status)
	assert.NotNil(t, ended.EndedAt)
}

func TestEndUnknownSession(t *testing.T) {
	l := openTestLedger(t)

	err := l.EndSession("no-such-id", SessionStatusFailed)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = l.GetSession("no-such-id")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPhaseRuns(t *testing.T) {
	l := openTestLedger(t)

	s, err := l.BeginSession("/tmp/ws2")
	require.NoError(t, err)

	planning, err := l.BeginPhase(s.ID, "planning")
	require.NoError(t, err)
	require.NoError(t, l.EndPhase(planning, RunStatusSucceeded, "", 1))

	modeling, err := l.BeginPhase(s.ID, "modeling")
	require.NoError(t, err)
	require.NoError(t, l.EndPhase(modeling, RunStatusFailed, "plan was empty", 3))

	runs, err := l.PhaseRuns(s.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "planning", runs[0].Phase)
	assert.Equal(t, RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, "modeling", runs[1].Phase)
	assert.Equal(t, RunStatusFailed, runs[1].Status)
	assert.Equal(t, "plan was empty", runs[1].Error)
	assert.Equal(t, 3, runs[1].Attempts)
}

func TestUsageTotals(t *testing.T) {
	l := openTestLedger(t)

	s, err := l.BeginSession("/tmp/ws3")
	require.NoError(t, err)

	require.NoError(t, l.RecordUsage(s.ID, "planning", "master", "claude-sonnet-4", 100, 40))
	require.NoError(t, l.RecordUsage(s.ID, "planning", "researcher", "claude-sonnet-4", 50, 25))
	require.NoError(t, l.RecordUsage(s.ID, "writing", "writer", "gpt-4o", 10, 200))

	totals, err := l.UsageTotals(s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(160), totals.PromptTokens)
	assert.Equal(t, int64(265), totals.CompletionTokens)
}

func TestUsageTotalsEmptySession(t *testing.T) {
	l := openTestLedger(t)

	s, err := l.BeginSession("/tmp/ws4")
	require.NoError(t, err)

	totals, err := l.UsageTotals(s.ID)
	require.NoError(t, err)
	assert.Zero(t, totals.PromptTokens)
	assert.Zero(t, totals.CompletionTokens)
}
