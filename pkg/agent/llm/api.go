// Package llm defines the provider-agnostic client contract for large
// language model completions.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem is an instruction message. Providers that have no
	// dedicated system field receive it merged into the first user turn.
	RoleSystem Role = "system"
	// RoleUser is a message from the workflow toward the model.
	RoleUser Role = "user"
	// RoleAssistant is a model reply.
	RoleAssistant Role = "assistant"
)

// Message is one entry in a completion conversation.
type Message struct {
	Role    Role
	Content string
}

// Usage reports the token accounting a provider returned for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionRequest is the uniform request shape handed to every provider.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is the uniform, normalized provider reply.
type CompletionResponse struct {
	Content    string
	Usage      Usage
	StopReason string // "end_turn", "max_tokens", "stop", provider-normalized
}

// Client is the uniform interface to a text-generation provider. Each
// implementation translates the conversation + system prompt into the
// provider's wire shape and normalizes the response back.
type Client interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// ModelName returns the configured model identifier, used for logging
	// and metrics labels.
	ModelName() string
}

// NewSystemMessage builds a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage builds a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage builds an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
