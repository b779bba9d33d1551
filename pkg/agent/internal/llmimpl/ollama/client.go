// Package ollama implements the llm.Client contract against a local Ollama
// daemon's REST API. The daemon speaks plain JSON over HTTP, so this client
// also carries the raw HTTP error contract: non-2xx statuses and 2xx
// responses with a non-JSON content type both become classified errors.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

// Client talks to an Ollama daemon over HTTP.
type Client struct {
	httpClient *http.Client
	hostURL    string
	model      string
}

// New creates a raw Ollama client; middleware is applied at a higher level.
// The provider config's APIKey field carries the daemon host URL.
func New(cfg config.ProviderConfig) llm.Client {
	host := cfg.BaseURL
	if host == "" {
		host = cfg.APIKey // GetAPIKey returns the host URL for Ollama
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		hostURL:    strings.TrimRight(host, "/"),
		model:      cfg.Model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeBadPrompt, "message list cannot be empty")
	}

	messages := make([]chatMessage, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, chatMessage{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	})
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeBadPrompt, err, "failed to encode chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hostURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeBadPrompt, err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeTransient, err, "request timeout or canceled")
		}
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeTransient, err, "ollama request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeTransient, err, "failed to read ollama response")
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.CompletionResponse{}, llmerrors.NewRequestError(resp.StatusCode, contentType, respBody)
	}
	// A proxy or error page can return 2xx with HTML; refuse to parse it as
	// a completion.
	if !strings.Contains(contentType, "application/json") {
		return llm.CompletionResponse{}, llmerrors.NewContentTypeError(contentType, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.TypeTransient, err, "malformed ollama response")
	}

	if parsed.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeEmptyResponse, "received empty response from ollama")
	}

	return llm.CompletionResponse{
		Content: parsed.Message.Content,
		Usage: llm.Usage{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
		},
		StopReason: stopReason(&parsed),
	}, nil
}

// ModelName implements llm.Client.
func (c *Client) ModelName() string {
	return c.model
}

func stopReason(resp *chatResponse) string {
	switch resp.DoneReason {
	case "length":
		return "max_tokens"
	case "", "stop":
		return "end_turn"
	default:
		return resp.DoneReason
	}
}
