// Package openai implements the llm.Client contract against the OpenAI
// Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

// Client wraps the official OpenAI SDK client.
type Client struct {
	client openai.Client
	model  string
}

// New creates a raw OpenAI client; middleware is applied at a higher level.
func New(cfg config.ProviderConfig) llm.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeBadPrompt, "message list cannot be empty")
	}

	input := make(responses.ResponseInputParam, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleSystem))
		case llm.RoleAssistant:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleAssistant))
		default:
			input = append(input, responses.ResponseInputItemParamOfMessage(msg.Content, responses.EasyInputMessageRoleUser))
		}
	}

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(c.model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
	}

	result, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if result == nil || result.OutputText() == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "received empty response from OpenAI API")
	}

	return llm.CompletionResponse{
		Content: result.OutputText(),
		Usage: llm.Usage{
			InputTokens:  int(result.Usage.InputTokens),
			OutputTokens: int(result.Usage.OutputTokens),
		},
		StopReason: stopReason(result),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

func stopReason(result *responses.Response) string {
	switch result.IncompleteDetails.Reason {
	case "max_output_tokens":
		return "max_tokens"
	case "":
		return "end_turn"
	default:
		return result.IncompleteDetails.Reason
	}
}

// classifyError maps SDK errors onto the llmerrors taxonomy.
func classifyError(err error) *llmerrors.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "request canceled")
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate limit"):
		return &llmerrors.Error{Type: llmerrors.TypeRateLimit, StatusCode: 429, Err: err, Message: "rate limit exceeded"}
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "invalid api key"), strings.Contains(errStr, "unauthorized"):
		return &llmerrors.Error{Type: llmerrors.TypeAuth, StatusCode: 401, Err: err, Message: "authentication failed"}
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "invalid request"):
		return &llmerrors.Error{Type: llmerrors.TypeBadPrompt, StatusCode: 400, Err: err, Message: "bad request"}
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"):
		return llmerrors.Wrap(llmerrors.TypeTransient, err, "server or network error")
	default:
		return llmerrors.Wrap(llmerrors.TypeUnknown, err, fmt.Sprintf("OpenAI API call failed: %v", err))
	}
}
