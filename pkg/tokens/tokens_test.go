package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterBasic(t *testing.T) {
	counter, err := NewCounter("gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, 0, counter.Count(""))
	assert.Greater(t, counter.Count("hello world"), 0)

	long := strings.Repeat("the quick brown fox ", 100)
	short := "the quick brown fox"
	assert.Greater(t, counter.Count(long), counter.Count(short))
}

func TestEstimate(t *testing.T) {
	assert.Greater(t, Estimate("a reasonably sized sentence for counting"), 0)
}

func TestWithinLimit(t *testing.T) {
	counter, err := NewCounter("gpt-4")
	require.NoError(t, err)

	assert.True(t, counter.WithinLimit("short", 100))
	assert.False(t, counter.WithinLimit(strings.Repeat("word ", 500), 10))
}
