package artifact

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/events"
)

func newTestStore(t *testing.T) (*Store, *events.Collector) {
	t.Helper()
	collector := events.NewCollector()
	store, err := NewStore(t.TempDir(), collector)
	require.NoError(t, err)
	return store, collector
}

func TestSaveAssignsVersionOne(t *testing.T) {
	store, collector := newTestStore(t)

	rec, err := store.Save("model.py", KindCode, []byte("print(1)"), "baseline model", "modeler", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Version)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "model.py", rec.Name)

	created := collector.OfKind(events.KindArtifactCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "model.py", created[0].Payload["name"])
	assert.Equal(t, "code", created[0].Payload["artifact_kind"])
}

func TestResaveBumpsVersionKeepsID(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.Save("model.py", KindCode, []byte("v1 content"), "", "modeler", nil)
	require.NoError(t, err)

	second, err := store.Save("model.py", KindCode, []byte("v2 content"), "", "modeler", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)

	// The index holds a single entry for the name.
	records := store.List()
	require.Len(t, records, 1)
	assert.Equal(t, "model.py", records[0].Name)
	assert.Equal(t, 2, records[0].Version)

	content, err := store.Read("model.py")
	require.NoError(t, err)
	assert.Equal(t, "v2 content", string(content))
}

func TestVersionsStrictlyIncrease(t *testing.T) {
	store, _ := newTestStore(t)

	for want := 1; want <= 5; want++ {
		rec, err := store.Save("plan.md", KindPlan, []byte{byte('0' + want)}, "", "master", nil)
		require.NoError(t, err)
		assert.Equal(t, want, rec.Version)
	}
}

func TestVersioningSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir, nil)
	require.NoError(t, err)
	first, err := store.Save("paper.tex", KindDocument, []byte("draft"), "", "writer", nil)
	require.NoError(t, err)

	reopened, err := NewStore(dir, nil)
	require.NoError(t, err)
	second, err := reopened.Save("paper.tex", KindDocument, []byte("final"), "", "writer", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Version)
}

func TestReadIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Save("figure1.png", KindFigure, []byte{0x89, 0x50, 0x4e, 0x47}, "", "modeler", nil)
	require.NoError(t, err)

	first, err := store.Read("figure1.png")
	require.NoError(t, err)
	second, err := store.Read("figure1.png")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadMissingArtifact(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Read("nope.txt")
	require.Error(t, err)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "nope.txt", notFound.Name)
}

func TestSearchAndListByKind(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Save("model.py", KindCode, []byte("x"), "traffic flow model", "modeler", nil)
	require.NoError(t, err)
	_, err = store.Save("sensitivity.py", KindCode, []byte("y"), "parameter sweep", "modeler", nil)
	require.NoError(t, err)
	_, err = store.Save("paper.tex", KindDocument, []byte("z"), "final paper", "writer", nil)
	require.NoError(t, err)

	assert.Len(t, store.ListByKind(KindCode), 2)
	assert.Len(t, store.ListByKind(KindDocument), 1)

	hits := store.Search("TRAFFIC")
	require.Len(t, hits, 1)
	assert.Equal(t, "model.py", hits[0].Name)
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Save("scratch.txt", KindData, []byte("tmp"), "", "", nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete("scratch.txt"))
	assert.Empty(t, store.List())

	_, err = store.Read("scratch.txt")
	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))

	err = store.Delete("scratch.txt")
	require.True(t, errors.As(err, &notFound))
}

func TestRegisterExternalPath(t *testing.T) {
	store, _ := newTestStore(t)

	rec, err := store.Register("results.csv", KindData, "/tmp/run-42/results.csv", "sweep output", "sandbox", map[string]any{"rows": 120})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)

	again, err := store.Register("results.csv", KindData, "/tmp/run-42/results.csv", "sweep output", "sandbox", nil)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, 2, again.Version)
}
