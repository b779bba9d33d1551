// Package timeout provides per-request timeout middleware for LLM clients.
package timeout

import (
	"context"
	"time"

	"papermill/pkg/agent/llm"
)

// Middleware wraps each request in a timeout context so a stuck provider
// call cannot hang the workflow.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			func() string {
				return next.ModelName()
			},
		)
	}
}
