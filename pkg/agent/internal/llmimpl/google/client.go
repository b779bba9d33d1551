// Package google implements the llm.Client contract against the Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

// Client wraps the Google GenAI client. SDK client creation needs a context,
// so it is deferred to the first Complete call.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a raw Gemini client; middleware is applied at a higher level.
func New(cfg config.ProviderConfig) llm.Client {
	return &Client{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeAuth, err, "failed to create Gemini client")
		}
		c.client = client
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at config load
	cfg := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || result.Text() == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "received empty response from Gemini API")
	}

	resp := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stopReason(result),
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	return resp, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

// convertMessages maps the uniform conversation onto Gemini contents. System
// messages become the system instruction; Gemini names the assistant role
// "model".
func convertMessages(messages []llm.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}

	return contents, strings.Join(systemParts, "\n\n"), nil
}

func stopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 {
		return "end_turn"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return "end_turn"
	default:
		return strings.ToLower(string(result.Candidates[0].FinishReason))
	}
}

// classifyError maps GenAI SDK errors onto the llmerrors taxonomy.
func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request canceled")
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "resource_exhausted"):
		return &llmerrors.Error{Type: llmerrors.TypeRateLimit, StatusCode: 429, Err: err, Message: "rate limit exceeded"}
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "403"), strings.Contains(errStr, "api key"):
		return llmerrors.Wrap(llmerrors.TypeAuth, err, "authentication error")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "invalid_argument"):
		return &llmerrors.Error{Type: llmerrors.TypeBadPrompt, StatusCode: 400, Err: err, Message: "bad request"}
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "503"),
		strings.Contains(errStr, "unavailable"), strings.Contains(errStr, "connection"):
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "server or network error")
	default:
		return llmerrors.Wrap(llmerrors.TypeUnknown, err, fmt.Sprintf("Gemini API call failed: %v", err))
	}
}
