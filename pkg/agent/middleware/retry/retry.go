// Package retry provides retry middleware with exponential backoff for LLM
// clients. Only errors classified as retryable by the llmerrors taxonomy are
// retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/config"
)

// Classifier determines whether an error should be retried.
type Classifier func(error) bool

// Policy bundles retry configuration with an error classifier.
type Policy struct {
	Config     config.ResilienceConfig
	Classifier Classifier
}

// NewPolicy creates a retry policy. A nil classifier falls back to the
// llmerrors blocklist.
func NewPolicy(cfg config.ResilienceConfig, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Policy{Config: cfg, Classifier: classifier}
}

func defaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	return llmerrors.Retryable(err)
}

// CalculateDelay computes the backoff delay before the given attempt.
// Attempt 1 is the initial request and never waits.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	return delay
}

// ShouldRetry reports whether err warrants another attempt.
func (p *Policy) ShouldRetry(err error) bool {
	// Never retry context cancellation; the caller gave up.
	if err == nil || ctxDone(err) {
		return false
	}
	return p.Classifier(err)
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Middleware wraps an LLM client with retry logic according to the policy.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						if delay := policy.CalculateDelay(attempt); delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						break
					}
				}

				return llm.CompletionResponse{}, lastErr
			},
			func() string {
				return next.ModelName()
			},
		)
	}
}
