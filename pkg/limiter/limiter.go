// Package limiter enforces per-model token throughput and concurrency
// limits on LLM calls. Limits are local to the process: they throttle what
// this workflow sends, they do not observe what the provider has already
// accepted from elsewhere.
package limiter

import (
	"context"
	"sync"
	"time"

	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/llmerrors"
	"papermill/pkg/tokens"
)

// Limits configures one model's throttle. Zero values disable the
// corresponding limit.
type Limits struct {
	TokensPerMinute int
	MaxConcurrent   int
}

// ModelLimiter is a token bucket plus a concurrency gate for one model.
type ModelLimiter struct {
	mu            sync.Mutex
	name          string
	limits        Limits
	currentTokens int
	lastRefill    time.Time
	inFlight      int
}

// New creates a limiter with a full token bucket.
func New(name string, limits Limits) *ModelLimiter {
	return &ModelLimiter{
		name:          name,
		limits:        limits,
		currentTokens: limits.TokensPerMinute,
		lastRefill:    time.Now(),
	}
}

// Reserve takes tokens from the bucket, refilling for elapsed whole
// minutes first.
func (ml *ModelLimiter) Reserve(count int) error {
	if ml.limits.TokensPerMinute <= 0 {
		return nil
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refill()
	if ml.currentTokens < count {
		return llmerrors.New(llmerrors.TypeRateLimit, "local token rate limit exceeded for "+ml.name)
	}
	ml.currentTokens -= count
	return nil
}

// Acquire claims a concurrency slot.
func (ml *ModelLimiter) Acquire() error {
	if ml.limits.MaxConcurrent <= 0 {
		return nil
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.inFlight >= ml.limits.MaxConcurrent {
		return llmerrors.New(llmerrors.TypeRateLimit, "concurrency limit reached for "+ml.name)
	}
	ml.inFlight++
	return nil
}

// Release returns a concurrency slot.
func (ml *ModelLimiter) Release() {
	if ml.limits.MaxConcurrent <= 0 {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.inFlight > 0 {
		ml.inFlight--
	}
}

// Status reports the current bucket level and in-flight count.
func (ml *ModelLimiter) Status() (remainingTokens, inFlight int) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refill()
	return ml.currentTokens, ml.inFlight
}

// refill credits whole elapsed minutes, capped at the bucket size. Caller
// holds ml.mu.
func (ml *ModelLimiter) refill() {
	elapsed := time.Since(ml.lastRefill)
	if elapsed < time.Minute {
		return
	}

	minutes := int(elapsed / time.Minute)
	ml.currentTokens += minutes * ml.limits.TokensPerMinute
	if ml.currentTokens > ml.limits.TokensPerMinute {
		ml.currentTokens = ml.limits.TokensPerMinute
	}
	ml.lastRefill = ml.lastRefill.Add(time.Duration(minutes) * time.Minute)
}

// Middleware throttles completions through the limiter. Rejections carry
// the rate-limit error type, so an enclosing retry middleware backs off and
// tries again instead of failing the call.
func Middleware(ml *ModelLimiter) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := ml.Reserve(estimateRequest(in)); err != nil {
					return llm.CompletionResponse{}, err
				}
				if err := ml.Acquire(); err != nil {
					return llm.CompletionResponse{}, err
				}
				defer ml.Release()

				return next.Complete(ctx, in)
			},
			next.ModelName,
		)
	}
}

// estimateRequest sizes a request as prompt estimate plus the reply budget.
func estimateRequest(in llm.CompletionRequest) int {
	total := in.MaxTokens
	for _, msg := range in.Messages {
		total += tokens.Estimate(msg.Content)
	}
	return total
}
