package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/events"
)

func currentLogPath(dir string) string {
	return filepath.Join(dir, "events-"+time.Now().Format("2006-01-02")+".jsonl")
}

func TestNewWriterCreatesLogFile(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewWriter(filepath.Join(tmpDir, "logs"))
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(currentLogPath(filepath.Join(tmpDir, "logs")))
	require.NoError(t, err)
}

func TestWriteAppendsJSONLines(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewWriter(tmpDir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(events.NewLog(events.SeverityInfo, "starting run")))
	require.NoError(t, w.Write(events.NewPhaseChange("planning")))
	w.Notify(events.NewArtifactCreated("plan", "modeling_plan", map[string]any{"version": 1}))

	file, err := os.Open(currentLogPath(tmpDir))
	require.NoError(t, err)
	defer file.Close()

	var lines []events.Notification
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var n events.Notification
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &n))
		lines = append(lines, n)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 3)
	assert.Equal(t, events.KindLog, lines[0].Kind)
	assert.Equal(t, "starting run", lines[0].Message)
	assert.Equal(t, events.KindPhaseChange, lines[1].Kind)
	assert.Equal(t, "planning", lines[1].Phase)
	assert.Equal(t, events.KindArtifactCreated, lines[2].Kind)
	assert.Equal(t, "modeling_plan", lines[2].Payload["name"])
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
