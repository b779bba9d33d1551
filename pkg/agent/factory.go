// Package agent provides role-scoped LLM agents and the client factory that
// assembles the per-request middleware chain.
package agent

import (
	"fmt"
	"sync"

	"papermill/pkg/agent/internal/llmimpl/anthropic"
	"papermill/pkg/agent/internal/llmimpl/google"
	"papermill/pkg/agent/internal/llmimpl/ollama"
	"papermill/pkg/agent/internal/llmimpl/openai"
	"papermill/pkg/agent/llm"
	"papermill/pkg/agent/middleware/metrics"
	"papermill/pkg/agent/middleware/retry"
	"papermill/pkg/agent/middleware/timeout"
	"papermill/pkg/config"
	"papermill/pkg/limiter"
)

// constructors is the closed registry of provider client constructors.
// Adding a provider means adding a config.ProviderKind and an entry here.
var constructors = map[config.ProviderKind]func(config.ProviderConfig) llm.Client{ //nolint:gochecknoglobals
	config.ProviderAnthropic: anthropic.New,
	config.ProviderOpenAI:    openai.New,
	config.ProviderGoogle:    google.New,
	config.ProviderOllama:    ollama.New,
}

// ClientFactory creates LLM clients with the configured middleware chain.
// Limiters are shared per model, so roles targeting the same model draw
// from one bucket.
type ClientFactory struct {
	cfg      config.Config
	recorder metrics.Recorder

	mu       sync.Mutex
	limiters map[string]*limiter.ModelLimiter
}

// NewClientFactory creates a factory using the process-wide Prometheus
// recorder.
func NewClientFactory(cfg config.Config) *ClientFactory {
	return &ClientFactory{cfg: cfg, recorder: metrics.Default()}
}

// NewClientFactoryWithRecorder creates a factory with a custom metrics
// recorder, used by tests.
func NewClientFactoryWithRecorder(cfg config.Config, recorder metrics.Recorder) *ClientFactory {
	return &ClientFactory{cfg: cfg, recorder: recorder}
}

// CreateClient builds the fully wrapped LLM client for a role. The chain is
// metrics -> retry -> limiter -> timeout -> raw client, so every attempt
// the retry layer makes gets its own throttle check and timeout, and
// metrics observe the request once.
func (f *ClientFactory) CreateClient(role string) (llm.Client, error) {
	provider, err := f.cfg.EffectiveProvider(role)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve provider for role %s: %w", role, err)
	}

	construct, ok := constructors[provider.Kind]
	if !ok {
		return nil, &config.ErrUnsupportedProvider{Identifier: string(provider.Kind)}
	}
	raw := construct(provider)

	policy := retry.NewPolicy(f.cfg.Resilience, nil)
	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, role, nil),
		retry.Middleware(policy),
	}
	if f.cfg.Resilience.TokensPerMinute > 0 || f.cfg.Resilience.MaxConcurrent > 0 {
		// Inside retry: a rate-limited attempt backs off and retries.
		middlewares = append(middlewares, limiter.Middleware(f.limiterFor(provider.Model)))
	}
	middlewares = append(middlewares, timeout.Middleware(f.cfg.Resilience.RequestTimeout))

	return llm.Chain(raw, middlewares...), nil
}

// limiterFor returns the shared limiter for a model, creating it on first
// use.
func (f *ClientFactory) limiterFor(model string) *limiter.ModelLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limiters == nil {
		f.limiters = map[string]*limiter.ModelLimiter{}
	}
	ml, ok := f.limiters[model]
	if !ok {
		ml = limiter.New(model, limiter.Limits{
			TokensPerMinute: f.cfg.Resilience.TokensPerMinute,
			MaxConcurrent:   f.cfg.Resilience.MaxConcurrent,
		})
		f.limiters[model] = ml
	}
	return ml
}

// CreateAgent builds an agent for a role with the given system prompt and a
// fully wrapped client.
func (f *ClientFactory) CreateAgent(role, systemPrompt string) (*Agent, error) {
	client, err := f.CreateClient(role)
	if err != nil {
		return nil, err
	}
	provider, err := f.cfg.EffectiveProvider(role)
	if err != nil {
		return nil, err
	}
	return NewAgent(role, systemPrompt, client, provider), nil
}
