// Package contextmgr tracks an agent's conversation context: the ordered
// message history, its token footprint, and snapshot/restore for session
// resume. History is unbounded; the manager reports budget pressure but
// never drops turns on its own.
package contextmgr

import (
	"sync"

	"papermill/pkg/agent/llm"
	"papermill/pkg/tokens"
)

// Manager owns one conversation's context. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	messages []llm.Message
	counter  *tokens.Counter
}

// New creates an empty manager. The counter may be nil, in which case token
// counts fall back to the length heuristic in pkg/tokens.
func New(counter *tokens.Counter) *Manager {
	return &Manager{counter: counter}
}

// Append adds a message to the history.
func (m *Manager) Append(msg llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Messages returns a copy of the history.
func (m *Manager) Messages() []llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Len returns the number of turns.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Clear drops the history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// TokenCount returns the token footprint of the whole history, roles
// included.
func (m *Manager) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, msg := range m.messages {
		total += m.countText(string(msg.Role)) + m.countText(msg.Content)
	}
	return total
}

// WithinBudget reports whether the history plus a reply of maxReply tokens
// fits a context window of maxContext tokens with the given safety buffer.
func (m *Manager) WithinBudget(maxContext, maxReply, buffer int) bool {
	return m.TokenCount()+maxReply+buffer <= maxContext
}

func (m *Manager) countText(text string) int {
	if m.counter != nil {
		return m.counter.Count(text)
	}
	return tokens.Estimate(text)
}
