package logx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger("test-component")

	before := time.Now().UTC().Add(-time.Second)
	logger.Info("hello %s", "world")
	logger.Warn("watch out")
	logger.Error("boom")

	entries := RecentEntries(before)
	require.GreaterOrEqual(t, len(entries), 3)

	last := entries[len(entries)-1]
	assert.Equal(t, "test-component", last.Component)
	assert.Equal(t, string(LevelError), last.Level)
	assert.Equal(t, "boom", last.Message)
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger("a")
	other := logger.WithComponent("b")

	assert.Equal(t, "a", logger.Component())
	assert.Equal(t, "b", other.Component())
}

func TestWrapNilError(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestWrapError(t *testing.T) {
	err := Errorf("base failure")
	wrapped := Wrap(err, "while doing work")
	require.Error(t, wrapped)
	assert.Contains(t, wrapped.Error(), "while doing work: base failure")
}
