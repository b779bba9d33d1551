// Package anthropic implements the llm.Client contract against the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

// Client wraps the Anthropic SDK client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a raw Anthropic client; middleware is applied at a higher level.
func New(cfg config.ProviderConfig) llm.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(cfg.Model),
	}
}

// prepareMessages adapts a conversation to Anthropic API requirements:
// system messages move to the dedicated system parameter, consecutive
// non-assistant messages merge into single user turns, and the result must
// alternate strictly and end on a user message.
func prepareMessages(messages []llm.Message) (systemPrompt string, alternating []llm.Message, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []llm.Message
	for i := range messages {
		if messages[i].Role == llm.RoleSystem {
			systemParts = append(systemParts, messages[i].Content)
		} else {
			rest = append(rest, messages[i])
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.Message
	var userParts []string
	for i := range rest {
		if rest[i].Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
				userParts = nil
			}
			merged = append(merged, rest[i])
		} else {
			userParts = append(userParts, rest[i].Content)
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
	}

	for i := range merged {
		if i > 0 && merged[i].Role == merged[i-1].Role {
			return "", nil, fmt.Errorf("alternation violation at index %d: consecutive %s messages", i, merged[i].Role)
		}
	}
	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}

	return systemPrompt, merged, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := prepareMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(alternating[i].Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(alternating[i].Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "received empty response from Anthropic API")
	}

	var text string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text += resp.Content[i].AsText().Text
		}
	}
	if text == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "no text content in Anthropic response")
	}

	return llm.CompletionResponse{
		Content: text,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		StopReason: string(resp.StopReason),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors onto the llmerrors taxonomy.
func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request canceled")
	}

	// The SDK embeds HTTP status codes in error strings; typed error
	// structs are not stable across versions.
	if status := extractStatusCode(err.Error()); status != 0 {
		return &llmerrors.Error{
			Type:       llmerrors.ClassifyStatus(status),
			StatusCode: status,
			Err:        err,
			Message:    fmt.Sprintf("Anthropic API error (status %d)", status),
		}
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "eof"),
		strings.Contains(errStr, "reset"):
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "network error")
	case strings.Contains(errStr, "rate"), strings.Contains(errStr, "quota"):
		return llmerrors.Wrap(llmerrors.TypeRateLimit, err, "rate limiting detected")
	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "api key"):
		return llmerrors.Wrap(llmerrors.TypeAuth, err, "authentication error")
	default:
		return llmerrors.Wrap(llmerrors.TypeUnknown, err, "unclassified error")
	}
}

// extractStatusCode pulls an HTTP status code out of an SDK error string.
func extractStatusCode(errStr string) int {
	lower := strings.ToLower(errStr)
	for _, pattern := range []string{"status code: ", "status: ", "http "} {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start+3 > len(errStr) {
			continue
		}
		for _, code := range []struct {
			prefix string
			status int
		}{
			{"400", 400}, {"401", 401}, {"403", 403}, {"429", 429},
			{"500", 500}, {"502", 502}, {"503", 503}, {"504", 504}, {"529", 529},
		} {
			if strings.HasPrefix(errStr[start:], code.prefix) {
				return code.status
			}
		}
	}
	return 0
}
