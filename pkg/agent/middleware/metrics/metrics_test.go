package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
)

type capturedObservation struct {
	model            string
	role             string
	promptTokens     int
	completionTokens int
	success          bool
	errorType        string
}

type captureRecorder struct {
	observations []capturedObservation
}

func (r *captureRecorder) ObserveRequest(model, role string, promptTokens, completionTokens int, success bool, errorType string, _ time.Duration) {
	r.observations = append(r.observations, capturedObservation{
		model:            model,
		role:             role,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		success:          success,
		errorType:        errorType,
	})
}

func stubClient(resp llm.CompletionResponse, err error) llm.Client {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return resp, err
		},
		func() string { return "stub-model" },
	)
}

func TestRecordsProviderUsage(t *testing.T) {
	recorder := &captureRecorder{}
	client := llm.Chain(
		stubClient(llm.CompletionResponse{
			Content: "answer",
			Usage:   llm.Usage{InputTokens: 40, OutputTokens: 7},
		}, nil),
		Middleware(recorder, "writer", nil),
	)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)

	require.Len(t, recorder.observations, 1)
	obs := recorder.observations[0]
	assert.Equal(t, "stub-model", obs.model)
	assert.Equal(t, "writer", obs.role)
	assert.Equal(t, 40, obs.promptTokens)
	assert.Equal(t, 7, obs.completionTokens)
	assert.True(t, obs.success)
	assert.Empty(t, obs.errorType)
}

func TestEstimatesUsageWhenMissing(t *testing.T) {
	recorder := &captureRecorder{}
	client := llm.Chain(
		stubClient(llm.CompletionResponse{Content: "a short answer"}, nil),
		Middleware(recorder, "researcher", nil),
	)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.NewUserMessage("what is the answer")},
	})
	require.NoError(t, err)

	require.Len(t, recorder.observations, 1)
	assert.Greater(t, recorder.observations[0].promptTokens, 0)
	assert.Greater(t, recorder.observations[0].completionTokens, 0)
}

func TestRecordsErrorType(t *testing.T) {
	recorder := &captureRecorder{}
	client := llm.Chain(
		stubClient(llm.CompletionResponse{}, llmerrors.New(llmerrors.TypeRateLimit, "slow down")),
		Middleware(recorder, "modeler", nil),
	)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)

	require.Len(t, recorder.observations, 1)
	obs := recorder.observations[0]
	assert.False(t, obs.success)
	assert.Equal(t, "rate_limit", obs.errorType)
}

func TestUnclassifiedErrorType(t *testing.T) {
	recorder := &captureRecorder{}
	client := llm.Chain(
		stubClient(llm.CompletionResponse{}, errors.New("boom")),
		Middleware(recorder, "master", nil),
	)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	require.Len(t, recorder.observations, 1)
	assert.Equal(t, "unknown", recorder.observations[0].errorType)
}

func TestPrometheusRecorderRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(reg)

	recorder.ObserveRequest("m", "writer", 10, 5, true, "", 50*time.Millisecond)
	recorder.ObserveRequest("m", "writer", 0, 0, false, "transient", 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["llm_requests_total"])
	assert.True(t, names["llm_tokens_total"])
	assert.True(t, names["llm_request_duration_seconds"])
}
