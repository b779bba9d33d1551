package agent

import (
	"context"
	"fmt"
	"sync"

	"papermill/pkg/agent/llm"
	"papermill/pkg/config"
	"papermill/pkg/contextmgr"
	"papermill/pkg/logx"
)

// Reply is the result of one conversational turn.
type Reply struct {
	Content    string
	Usage      llm.Usage
	StopReason string
}

// Agent is a role-scoped conversational wrapper around an LLM client. It
// owns an append-only conversation context; every SendMessage call carries
// the full history so far.
type Agent struct {
	role         string
	systemPrompt string
	client       llm.Client
	provider     config.ProviderConfig
	logger       *logx.Logger

	mu      sync.Mutex
	history *contextmgr.Manager
}

// NewAgent creates an agent for a role. The provider config supplies the
// per-request token and temperature settings.
func NewAgent(role, systemPrompt string, client llm.Client, provider config.ProviderConfig) *Agent {
	return &Agent{
		role:         role,
		systemPrompt: systemPrompt,
		client:       client,
		provider:     provider,
		logger:       logx.NewLogger("agent-" + role),
		history:      contextmgr.New(nil),
	}
}

// Role returns the agent's workflow role.
func (a *Agent) Role() string {
	return a.role
}

// ModelName returns the underlying model identifier.
func (a *Agent) ModelName() string {
	return a.client.ModelName()
}

// SystemPrompt returns the agent's system prompt.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt
}

// SendMessage appends a user turn, sends the full conversation, and appends
// the assistant reply on success. A failed call leaves the history without
// the assistant turn but keeps the user turn, matching what was actually
// sent.
func (a *Agent) SendMessage(ctx context.Context, text string) (Reply, error) {
	if text == "" {
		return Reply{}, fmt.Errorf("message text cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.history.Append(llm.NewUserMessage(text))

	turns := a.history.Messages()
	messages := make([]llm.Message, 0, len(turns)+1)
	if a.systemPrompt != "" {
		messages = append(messages, llm.NewSystemMessage(a.systemPrompt))
	}
	messages = append(messages, turns...)

	a.logger.Debug("sending message (%d turns, ~%d tokens, model %s)",
		len(turns), a.history.TokenCount(), a.client.ModelName())

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages:    messages,
		MaxTokens:   a.provider.MaxTokens,
		Temperature: a.provider.Temperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("completion failed for role %s: %w", a.role, err)
	}

	a.history.Append(llm.NewAssistantMessage(resp.Content))

	return Reply{
		Content:    resp.Content,
		Usage:      resp.Usage,
		StopReason: resp.StopReason,
	}, nil
}

// History returns a copy of the conversation so far, excluding the system
// prompt.
func (a *Agent) History() []llm.Message {
	return a.history.Messages()
}

// ClearHistory drops the conversation, keeping role and system prompt.
func (a *Agent) ClearHistory() {
	a.history.Clear()
}
