package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

func textResponse(content string) llm.CompletionResponse {
	return llm.CompletionResponse{
		Content:    content,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
		StopReason: "end_turn",
	}
}

func testProvider() config.ProviderConfig {
	return config.ProviderConfig{
		Kind:        config.ProviderAnthropic,
		Model:       "mock-model",
		MaxTokens:   1024,
		Temperature: 0.3,
	}
}

func TestSendMessageAccumulatesHistory(t *testing.T) {
	mock := NewMockClient([]llm.CompletionResponse{
		textResponse("first reply"),
		textResponse("second reply"),
	}, nil)
	a := NewAgent(config.RoleMaster, "be helpful", mock, testProvider())

	reply, err := a.SendMessage(context.Background(), "first question")
	require.NoError(t, err)
	assert.Equal(t, "first reply", reply.Content)
	assert.Equal(t, 10, reply.Usage.InputTokens)

	_, err = a.SendMessage(context.Background(), "second question")
	require.NoError(t, err)

	history := a.History()
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "first question", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
	assert.Equal(t, "second question", history[2].Content)
	assert.Equal(t, "second reply", history[3].Content)
}

func TestSecondTurnCarriesFullConversation(t *testing.T) {
	mock := NewMockClient([]llm.CompletionResponse{
		textResponse("a"),
		textResponse("b"),
	}, nil)
	a := NewAgent(config.RoleResearcher, "research things", mock, testProvider())

	_, err := a.SendMessage(context.Background(), "q1")
	require.NoError(t, err)
	_, err = a.SendMessage(context.Background(), "q2")
	require.NoError(t, err)

	requests := mock.Requests()
	require.Len(t, requests, 2)
	// System prompt plus one user turn.
	assert.Len(t, requests[0].Messages, 2)
	assert.Equal(t, llm.RoleSystem, requests[0].Messages[0].Role)
	// System, user, assistant, user.
	assert.Len(t, requests[1].Messages, 4)
	assert.Equal(t, 1024, requests[1].MaxTokens)
	assert.InDelta(t, 0.3, requests[1].Temperature, 0.001)
}

func TestSendMessageFailureKeepsUserTurn(t *testing.T) {
	mock := NewMockClient(
		[]llm.CompletionResponse{textResponse("recovered")},
		[]error{llmerrors.New(llmerrors.TypeTransient, "blip")},
	)
	a := NewAgent(config.RoleModeler, "", mock, testProvider())

	_, err := a.SendMessage(context.Background(), "build the model")
	require.Error(t, err)

	history := a.History()
	require.Len(t, history, 1)
	assert.Equal(t, llm.RoleUser, history[0].Role)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	a := NewAgent(config.RoleWriter, "", NewMockClient(nil, nil), testProvider())
	_, err := a.SendMessage(context.Background(), "")
	require.Error(t, err)
}

func TestClearHistory(t *testing.T) {
	mock := NewMockClient([]llm.CompletionResponse{textResponse("x")}, nil)
	a := NewAgent(config.RoleMaster, "prompt", mock, testProvider())

	_, err := a.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.NotEmpty(t, a.History())

	a.ClearHistory()
	assert.Empty(t, a.History())
	assert.Equal(t, "prompt", a.SystemPrompt())
}

func TestHistoryReturnsCopy(t *testing.T) {
	mock := NewMockClient([]llm.CompletionResponse{textResponse("x")}, nil)
	a := NewAgent(config.RoleMaster, "", mock, testProvider())

	_, err := a.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	history := a.History()
	history[0].Content = "mutated"
	assert.Equal(t, "hello", a.History()[0].Content)
}
