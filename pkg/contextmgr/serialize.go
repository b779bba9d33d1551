package contextmgr

import (
	"encoding/json"
	"fmt"
	"time"

	"papermill/pkg/agent/llm"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible format.
const snapshotVersion = 1

type serializedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type snapshot struct {
	Version  int                 `json:"version"`
	SavedAt  time.Time           `json:"saved_at"`
	Messages []serializedMessage `json:"messages"`
}

// Snapshot serializes the history for persistence.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshot{
		Version:  snapshotVersion,
		SavedAt:  time.Now().UTC(),
		Messages: make([]serializedMessage, len(m.messages)),
	}
	for i, msg := range m.messages {
		snap.Messages[i] = serializedMessage{Role: string(msg.Role), Content: msg.Content}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize conversation: %w", err)
	}
	return data, nil
}

// Restore replaces the history with a previously serialized snapshot.
func (m *Manager) Restore(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse conversation snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported conversation snapshot version %d", snap.Version)
	}

	messages := make([]llm.Message, len(snap.Messages))
	for i, sm := range snap.Messages {
		messages[i] = llm.Message{Role: llm.Role(sm.Role), Content: sm.Content}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
	return nil
}
