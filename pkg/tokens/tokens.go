// Package tokens provides tiktoken-based token counting for prompt budgeting
// and usage metrics.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for a model family.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter for the given model name. All supported
// providers are approximated with the GPT-4 encoding; the counts feed budget
// estimates, not billing.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a 4-chars-per-
// token estimate if the codec is unavailable.
func (c *Counter) Count(text string) int {
	if c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Estimate counts tokens without a Counter instance.
func Estimate(text string) int {
	counter, err := NewCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.Count(text)
}

// WithinLimit reports whether text fits within limit tokens.
func (c *Counter) WithinLimit(text string, limit int) bool {
	return c.Count(text) <= limit
}
