// Package metrics provides Prometheus-based metrics middleware for LLM
// clients. It tracks request counts, token usage, and latency per model and
// role.
package metrics

import (
	"context"
	"time"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/tokens"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Recorder receives observations for completed LLM requests.
type Recorder interface {
	ObserveRequest(model, role string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)
}

// UsageExtractor pulls token usage from a request/response pair. Used when
// the provider response does not carry usage numbers.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor estimates usage with the tiktoken codec.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return tokens.Estimate(promptText), tokens.Estimate(resp.Content)
}

// Middleware records metrics for every completion. The role label tells
// apart master, researcher, modeler, and writer traffic on a shared
// provider.
func Middleware(recorder Recorder, role string, usageExtractor UsageExtractor) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.ModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				if err != nil {
					recorder.ObserveRequest(model, role, 0, 0, false, llmerrors.TypeOf(err).String(), duration)
					return resp, err
				}

				promptTokens := resp.Usage.InputTokens
				completionTokens := resp.Usage.OutputTokens
				if promptTokens == 0 && completionTokens == 0 {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				recorder.ObserveRequest(model, role, promptTokens, completionTokens, true, "", duration)
				return resp, nil
			},
			func() string {
				return next.ModelName()
			},
		)
	}
}
