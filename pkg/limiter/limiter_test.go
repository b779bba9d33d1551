package limiter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
)

func TestReserveDrainsBucket(t *testing.T) {
	ml := New("test-model", Limits{TokensPerMinute: 100})

	require.NoError(t, ml.Reserve(60))
	require.NoError(t, ml.Reserve(40))

	err := ml.Reserve(1)
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeRateLimit))
	assert.True(t, llmerrors.Retryable(err))
}

func TestReserveUnlimitedWhenZero(t *testing.T) {
	ml := New("test-model", Limits{})
	require.NoError(t, ml.Reserve(1_000_000))
}

func TestAcquireRelease(t *testing.T) {
	ml := New("test-model", Limits{MaxConcurrent: 2})

	require.NoError(t, ml.Acquire())
	require.NoError(t, ml.Acquire())
	require.Error(t, ml.Acquire())

	ml.Release()
	require.NoError(t, ml.Acquire())

	_, inFlight := ml.Status()
	assert.Equal(t, 2, inFlight)
}

func TestMiddlewareThrottles(t *testing.T) {
	req := llm.CompletionRequest{
		Messages:  []llm.Message{llm.NewUserMessage(strings.Repeat("token counting ", 20))},
		MaxTokens: 10,
	}

	// Size the bucket for exactly two requests.
	ml := New("test-model", Limits{TokensPerMinute: 2 * estimateRequest(req)})

	calls := 0
	next := llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func() string { return "test-model" },
	)
	client := Middleware(ml)(next)

	_, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), req)
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), req)
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeRateLimit))
	assert.Equal(t, 2, calls)
}

func TestMiddlewareReleasesSlotAfterCall(t *testing.T) {
	ml := New("test-model", Limits{MaxConcurrent: 1})

	next := llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func() string { return "test-model" },
	)
	client := Middleware(ml)(next)

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), llm.CompletionRequest{
			Messages: []llm.Message{llm.NewUserMessage("hi")},
		})
		require.NoError(t, err)
	}
	_, inFlight := ml.Status()
	assert.Zero(t, inFlight)
}
