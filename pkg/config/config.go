// Package config provides configuration loading, validation, and provider
// selection for the workflow orchestrator.
//
// Provider kinds form a closed enumerated set validated at config-load time.
// Role-specific overrides are merged field by field onto the primary provider
// configuration, so a role can switch model or provider without touching
// agent logic.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProviderKind identifies an LLM provider family.
type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderGoogle    ProviderKind = "google"
	ProviderOllama    ProviderKind = "ollama"
)

// providerAliases maps accepted spellings to canonical provider kinds.
// Lookup is case-insensitive.
//
//nolint:gochecknoglobals // fixed alias table
var providerAliases = map[string]ProviderKind{
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"openai":    ProviderOpenAI,
	"gpt":       ProviderOpenAI,
	"google":    ProviderGoogle,
	"gemini":    ProviderGoogle,
	"ollama":    ProviderOllama,
	"local":     ProviderOllama,
}

// ErrUnsupportedProvider is returned when a provider identifier does not
// resolve to a known kind.
type ErrUnsupportedProvider struct {
	Identifier string
}

func (e *ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported provider: %q", e.Identifier)
}

// ParseProviderKind resolves a case-insensitive provider identifier
// (including documented aliases) to a canonical kind.
func ParseProviderKind(identifier string) (ProviderKind, error) {
	kind, ok := providerAliases[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return "", &ErrUnsupportedProvider{Identifier: identifier}
	}
	return kind, nil
}

// Environment variable names for provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Default models per provider, used when a config omits the model field.
const (
	DefaultModelAnthropic = "claude-sonnet-4-20250514"
	DefaultModelOpenAI    = "gpt-4o"
	DefaultModelGoogle    = "gemini-2.0-flash"
	DefaultModelOllama    = "llama3.1"
)

// ProviderConfig describes one provider endpoint. Immutable once constructed;
// always pass and return by value.
type ProviderConfig struct {
	Kind        ProviderKind `json:"kind"`
	APIKey      string       `json:"api_key,omitempty"`
	BaseURL     string       `json:"base_url,omitempty"`
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float32      `json:"temperature"`
}

// ProviderOverride is a partial ProviderConfig attached to a role. Unset
// fields fall back to the primary configuration. Temperature is a pointer
// because zero is a meaningful value.
type ProviderOverride struct {
	Kind        string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	APIKey      string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// IsZero reports whether the override sets no fields at all.
func (o ProviderOverride) IsZero() bool {
	return o.Kind == "" && o.APIKey == "" && o.BaseURL == "" &&
		o.Model == "" && o.MaxTokens == 0 && o.Temperature == nil
}

// Merge applies the override on top of the primary config, field by field.
// The kind field is re-validated because overrides may carry alias spellings.
func Merge(primary ProviderConfig, override ProviderOverride) (ProviderConfig, error) {
	effective := primary

	if override.Kind != "" {
		kind, err := ParseProviderKind(override.Kind)
		if err != nil {
			return ProviderConfig{}, err
		}
		effective.Kind = kind
	}
	if override.APIKey != "" {
		effective.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		effective.BaseURL = override.BaseURL
	}
	if override.Model != "" {
		effective.Model = override.Model
	}
	if override.MaxTokens != 0 {
		effective.MaxTokens = override.MaxTokens
	}
	if override.Temperature != nil {
		effective.Temperature = *override.Temperature
	}

	return effective, nil
}

// PlanningConfig controls the retrying facade around the planning phase.
type PlanningConfig struct {
	Retries      int           `json:"retries"`       // additional attempts after the first failure
	RetryDelay   time.Duration `json:"retry_delay"`   // fixed delay between attempts
	AttemptLimit time.Duration `json:"attempt_limit"` // per-attempt time box
}

// ResilienceConfig controls the per-request middleware chain on LLM clients.
// TokensPerMinute and MaxConcurrent throttle outgoing calls per model; zero
// disables the corresponding limit.
type ResilienceConfig struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialDelay    time.Duration `json:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay"`
	BackoffFactor   float64       `json:"backoff_factor"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	TokensPerMinute int           `json:"tokens_per_minute"`
	MaxConcurrent   int           `json:"max_concurrent"`
}

// Config is the full workspace configuration, loaded from
// <workspace>/.papermill/config.json. Returned by value to prevent mutation.
type Config struct {
	Provider       ProviderConfig              `json:"provider"`
	Roles          map[string]ProviderOverride `json:"roles,omitempty"`
	Planning       PlanningConfig              `json:"planning"`
	Resilience     ResilienceConfig            `json:"resilience"`
	SandboxTimeout time.Duration               `json:"sandbox_timeout"`
}

// configFileWire mirrors Config with durations expressed in seconds, which is
// what the on-disk JSON uses.
type configFileWire struct {
	Provider struct {
		Kind        string  `json:"kind"`
		APIKey      string  `json:"api_key,omitempty"`
		BaseURL     string  `json:"base_url,omitempty"`
		Model       string  `json:"model,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
		Temperature float32 `json:"temperature,omitempty"`
	} `json:"provider"`
	Roles    map[string]ProviderOverride `json:"roles,omitempty"`
	Planning struct {
		Retries             int `json:"retries"`
		RetryDelaySeconds   int `json:"retry_delay_seconds"`
		AttemptLimitSeconds int `json:"attempt_limit_seconds"`
	} `json:"planning"`
	Resilience struct {
		MaxAttempts           int     `json:"max_attempts"`
		InitialDelayMillis    int     `json:"initial_delay_ms"`
		MaxDelaySeconds       int     `json:"max_delay_seconds"`
		BackoffFactor         float64 `json:"backoff_factor"`
		RequestTimeoutSeconds int     `json:"request_timeout_seconds"`
		TokensPerMinute       int     `json:"tokens_per_minute"`
		MaxConcurrent         int     `json:"max_concurrent"`
	} `json:"resilience"`
	SandboxTimeoutSeconds int `json:"sandbox_timeout_seconds"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Kind:        ProviderAnthropic,
			Model:       DefaultModelAnthropic,
			MaxTokens:   8192,
			Temperature: 0.3,
		},
		Planning: PlanningConfig{
			Retries:      2,
			RetryDelay:   10 * time.Second,
			AttemptLimit: 5 * time.Minute,
		},
		Resilience: ResilienceConfig{
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			BackoffFactor:  2.0,
			RequestTimeout: 2 * time.Minute,
		},
		SandboxTimeout: 120 * time.Second,
	}
}

// ConfigDirName is the per-workspace directory holding config and state.
const ConfigDirName = ".papermill"

const configFileName = "config.json"

// Load reads and validates the workspace configuration. A missing file
// yields the defaults; a malformed or invalid file is an error.
func Load(workspaceDir string) (Config, error) {
	path := filepath.Join(workspaceDir, ConfigDirName, configFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var wire configFileWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg := Default()

	if wire.Provider.Kind != "" {
		kind, err := ParseProviderKind(wire.Provider.Kind)
		if err != nil {
			return Config{}, err
		}
		cfg.Provider.Kind = kind
		cfg.Provider.Model = defaultModelFor(kind)
	}
	if wire.Provider.APIKey != "" {
		cfg.Provider.APIKey = wire.Provider.APIKey
	}
	if wire.Provider.BaseURL != "" {
		cfg.Provider.BaseURL = wire.Provider.BaseURL
	}
	if wire.Provider.Model != "" {
		cfg.Provider.Model = wire.Provider.Model
	}
	if wire.Provider.MaxTokens != 0 {
		cfg.Provider.MaxTokens = wire.Provider.MaxTokens
	}
	if wire.Provider.Temperature != 0 {
		cfg.Provider.Temperature = wire.Provider.Temperature
	}

	// Role override kinds are validated now, not at agent construction.
	for role, override := range wire.Roles {
		if override.Kind != "" {
			if _, err := ParseProviderKind(override.Kind); err != nil {
				return Config{}, fmt.Errorf("role %q: %w", role, err)
			}
		}
	}
	cfg.Roles = wire.Roles

	if wire.Planning.Retries > 0 {
		cfg.Planning.Retries = wire.Planning.Retries
	}
	if wire.Planning.RetryDelaySeconds > 0 {
		cfg.Planning.RetryDelay = time.Duration(wire.Planning.RetryDelaySeconds) * time.Second
	}
	if wire.Planning.AttemptLimitSeconds > 0 {
		cfg.Planning.AttemptLimit = time.Duration(wire.Planning.AttemptLimitSeconds) * time.Second
	}

	if wire.Resilience.MaxAttempts > 0 {
		cfg.Resilience.MaxAttempts = wire.Resilience.MaxAttempts
	}
	if wire.Resilience.InitialDelayMillis > 0 {
		cfg.Resilience.InitialDelay = time.Duration(wire.Resilience.InitialDelayMillis) * time.Millisecond
	}
	if wire.Resilience.MaxDelaySeconds > 0 {
		cfg.Resilience.MaxDelay = time.Duration(wire.Resilience.MaxDelaySeconds) * time.Second
	}
	if wire.Resilience.BackoffFactor > 0 {
		cfg.Resilience.BackoffFactor = wire.Resilience.BackoffFactor
	}
	if wire.Resilience.RequestTimeoutSeconds > 0 {
		cfg.Resilience.RequestTimeout = time.Duration(wire.Resilience.RequestTimeoutSeconds) * time.Second
	}
	if wire.Resilience.TokensPerMinute > 0 {
		cfg.Resilience.TokensPerMinute = wire.Resilience.TokensPerMinute
	}
	if wire.Resilience.MaxConcurrent > 0 {
		cfg.Resilience.MaxConcurrent = wire.Resilience.MaxConcurrent
	}
	if wire.SandboxTimeoutSeconds > 0 {
		cfg.SandboxTimeout = time.Duration(wire.SandboxTimeoutSeconds) * time.Second
	}

	return cfg, nil
}

func defaultModelFor(kind ProviderKind) string {
	switch kind {
	case ProviderAnthropic:
		return DefaultModelAnthropic
	case ProviderOpenAI:
		return DefaultModelOpenAI
	case ProviderGoogle:
		return DefaultModelGoogle
	case ProviderOllama:
		return DefaultModelOllama
	default:
		return ""
	}
}

// EffectiveProvider resolves the provider configuration for a role: the
// role override where present, primary fields elsewhere. The resolved config
// is guaranteed to carry an API key (or host, for Ollama).
func (c Config) EffectiveProvider(role string) (ProviderConfig, error) {
	effective := c.Provider

	if override, ok := c.Roles[role]; ok && !override.IsZero() {
		merged, err := Merge(c.Provider, override)
		if err != nil {
			return ProviderConfig{}, fmt.Errorf("role %q: %w", role, err)
		}
		effective = merged
		// A provider switch without an explicit model gets that
		// provider's default, not the primary provider's model.
		if override.Kind != "" && override.Model == "" && effective.Kind != c.Provider.Kind {
			effective.Model = defaultModelFor(effective.Kind)
		}
	}

	if effective.APIKey == "" {
		key, err := GetAPIKey(effective.Kind)
		if err != nil {
			return ProviderConfig{}, err
		}
		effective.APIKey = key
	}

	return effective, nil
}

// GetAPIKey returns the credential for a provider, checking the decrypted
// secrets file first and environment variables second. For Ollama it returns
// the daemon host URL instead of a key.
func GetAPIKey(kind ProviderKind) (string, error) {
	var envVar string
	switch kind {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", &ErrUnsupportedProvider{Identifier: string(kind)}
	}

	if key, err := GetSecret(envVar); err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("missing credentials for provider %s: set %s", kind, envVar)
}
