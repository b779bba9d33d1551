package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

func fastConfig(maxAttempts int) config.ResilienceConfig {
	return config.ResilienceConfig{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// flakyClient fails with failErr for the first failures calls, then
// succeeds.
type flakyClient struct {
	calls    int
	failures int
	failErr  error
}

func (c *flakyClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return llm.CompletionResponse{}, c.failErr
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *flakyClient) ModelName() string { return "test-model" }

func TestRetriesTransientErrors(t *testing.T) {
	base := &flakyClient{failures: 2, failErr: llmerrors.New(llmerrors.TypeTransient, "blip")}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, base.calls)
}

func TestDoesNotRetryAuthErrors(t *testing.T) {
	base := &flakyClient{failures: 5, failErr: llmerrors.New(llmerrors.TypeAuth, "bad key")}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeAuth))
}

func TestExhaustsAttempts(t *testing.T) {
	base := &flakyClient{failures: 10, failErr: llmerrors.New(llmerrors.TypeRateLimit, "slow down")}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, base.calls)
	assert.True(t, llmerrors.Is(err, llmerrors.TypeRateLimit))
}

func TestDoesNotRetryContextCancellation(t *testing.T) {
	base := &flakyClient{failures: 10, failErr: context.Canceled}
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), nil)))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestCalculateDelay(t *testing.T) {
	policy := NewPolicy(config.ResilienceConfig{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), policy.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, policy.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, policy.CalculateDelay(3))
	assert.Equal(t, 400*time.Millisecond, policy.CalculateDelay(4))
	// Capped at MaxDelay.
	assert.Equal(t, time.Second, policy.CalculateDelay(10))
}

func TestCustomClassifier(t *testing.T) {
	base := &flakyClient{failures: 1, failErr: llmerrors.New(llmerrors.TypeTransient, "blip")}
	never := func(error) bool { return false }
	client := llm.Chain(base, Middleware(NewPolicy(fastConfig(3), never)))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}
