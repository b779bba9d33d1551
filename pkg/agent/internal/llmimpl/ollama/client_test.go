package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

func newTestClient(serverURL string) llm.Client {
	return New(config.ProviderConfig{
		Kind:    config.ProviderOllama,
		BaseURL: serverURL,
		Model:   "llama3.1",
	})
}

func request() llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.Message{
			llm.NewSystemMessage("You are helpful."),
			llm.NewUserMessage("hello"),
		},
		MaxTokens:   128,
		Temperature: 0.2,
	}
}

func TestCompleteHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"message": {"role": "assistant", "content": "hi there"},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 12,
			"eval_count": 3
		}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Complete(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestCompleteLengthStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "truncat"}, "done": true, "done_reason": "length"}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL).Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "max_tokens", resp.StopReason)
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "model busy"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), request())
	require.Error(t, err)

	assert.True(t, llmerrors.Is(err, llmerrors.TypeRateLimit))
	var llmErr *llmerrors.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, http.StatusTooManyRequests, llmErr.StatusCode)
	assert.Contains(t, llmErr.BodyStub, "model busy")
}

func TestCompleteHTMLOnSuccessStatus(t *testing.T) {
	// A proxy error page returning 200 must not be treated as a completion.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), request())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeTransient))
	assert.Contains(t, err.Error(), "unexpected response content type")
}

func TestCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": ""}, "done": true}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), request())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeEmptyResponse))
}

func TestCompleteEmptyConversation(t *testing.T) {
	_, err := newTestClient("http://localhost:0").Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeBadPrompt))
}
