package knowledge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBase(t *testing.T) *Base {
	t.Helper()
	b, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestOpenSeedsDefaults(t *testing.T) {
	b := openTestBase(t)

	archetypes, err := b.Archetypes()
	require.NoError(t, err)
	assert.NotEmpty(t, archetypes)

	problems, err := b.Problems()
	require.NoError(t, err)
	assert.NotEmpty(t, problems)
}

func TestSeedIsIdempotentOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.db")

	b, err := Open(path)
	require.NoError(t, err)
	first, err := b.Archetypes()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b2, err := Open(path)
	require.NoError(t, err)
	defer b2.Close()
	second, err := b2.Archetypes()
	require.NoError(t, err)

	assert.Equal(t, len(first), len(second))
}

func TestAnalyzeMatchesRoutingProblem(t *testing.T) {
	b := openTestBase(t)

	analysis, err := b.Analyze("Optimize vehicle routing to minimize response time across the city road network")
	require.NoError(t, err)

	require.NotEmpty(t, analysis.Archetypes)
	names := make([]string, 0, len(analysis.Archetypes))
	for _, m := range analysis.Archetypes {
		names = append(names, m.Archetype.ID)
	}
	assert.Contains(t, names, "optimization")
	assert.Contains(t, names, "network")

	// Highest score first.
	for i := 1; i < len(analysis.Archetypes); i++ {
		assert.GreaterOrEqual(t, analysis.Archetypes[i-1].Score, analysis.Archetypes[i].Score)
	}

	require.NotEmpty(t, analysis.Similar)
	assert.LessOrEqual(t, len(analysis.Similar), maxSimilarProblems)

	report := analysis.Report()
	assert.Contains(t, report, "Heuristic Problem Analysis")
	assert.Contains(t, report, "Optimization")
}

func TestAnalyzeNoMatch(t *testing.T) {
	b := openTestBase(t)

	analysis, err := b.Analyze("zzz qqq xxx")
	require.NoError(t, err)
	assert.Empty(t, analysis.Archetypes)
	assert.Contains(t, analysis.Report(), "No modeling archetype matched")
}

func TestAddCustomArchetype(t *testing.T) {
	b := openTestBase(t)

	require.NoError(t, b.AddArchetype(Archetype{
		ID:          "custom",
		Name:        "Custom Family",
		Keywords:    []string{"frobnicate"},
		Techniques:  []string{"frobnication"},
		Description: "test entry",
	}))

	analysis, err := b.Analyze("we must frobnicate the widgets")
	require.NoError(t, err)
	require.Len(t, analysis.Archetypes, 1)
	assert.Equal(t, "custom", analysis.Archetypes[0].Archetype.ID)
}

func TestExtractKeyTerms(t *testing.T) {
	terms := ExtractKeyTerms("The epidemic spread through the population; the epidemic accelerated.")
	require.NotEmpty(t, terms)
	// Most frequent term first.
	assert.Equal(t, "epidemic", terms[0])
	assert.NotContains(t, terms, "the")
}
