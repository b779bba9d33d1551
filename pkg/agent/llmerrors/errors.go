// Package llmerrors provides the structured error taxonomy for LLM provider
// interactions. Every provider client converts raw SDK and HTTP failures
// into these types before they cross back into workflow logic.
package llmerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type classifies an LLM error for retry decisions.
type Type int8

const (
	// Retryable types.

	// TypeRateLimit covers 429s and quota exhaustion.
	TypeRateLimit Type = iota
	// TypeTransient covers 5xx, timeouts, and connection resets.
	TypeTransient
	// TypeEmptyResponse covers 2xx responses with no usable content.
	TypeEmptyResponse

	// Non-retryable types.

	// TypeAuth covers 401/403 and bad credentials.
	TypeAuth
	// TypeBadPrompt covers malformed or rejected requests (400).
	TypeBadPrompt
	// TypeUnknown is the default for unclassified failures.
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeRateLimit:
		return "rate_limit"
	case TypeTransient:
		return "transient"
	case TypeEmptyResponse:
		return "empty_response"
	case TypeAuth:
		return "auth"
	case TypeBadPrompt:
		return "bad_prompt"
	case TypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified provider error with retry metadata.
type Error struct {
	Err        error  // wrapped underlying error
	Message    string // human-readable description
	BodyStub   string // best-effort parsed response body, truncated
	Type       Type
	StatusCode int // HTTP status if applicable
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable uses a blocklist: everything retries unless explicitly
// non-retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case TypeAuth, TypeBadPrompt:
		return false
	default:
		return true
	}
}

// New creates a classified error.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(t Type, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// bodyStubLimit caps how much raw response body is kept on an error.
const bodyStubLimit = 512

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(status int) Type {
	switch {
	case status == 401 || status == 403:
		return TypeAuth
	case status == 429:
		return TypeRateLimit
	case status == 400:
		return TypeBadPrompt
	case status >= 500:
		return TypeTransient
	default:
		return TypeUnknown
	}
}

// NewRequestError builds the error for a non-success HTTP response. The body
// is parsed as JSON when the content type says so; otherwise a truncated raw
// stub is kept.
func NewRequestError(status int, contentType string, body []byte) *Error {
	stub := parseBodyStub(contentType, body)
	return &Error{
		Type:       ClassifyStatus(status),
		StatusCode: status,
		Message:    fmt.Sprintf("provider request failed with status %d", status),
		BodyStub:   stub,
	}
}

// NewContentTypeError builds the error for a 2xx response whose content type
// is not the expected structured format, typically an HTML error page
// masquerading as success.
func NewContentTypeError(contentType string, body []byte) *Error {
	return &Error{
		Type:     TypeTransient,
		Message:  fmt.Sprintf("unexpected response content type %q", contentType),
		BodyStub: parseBodyStub(contentType, body),
	}
}

func parseBodyStub(contentType string, body []byte) string {
	if strings.Contains(contentType, "application/json") {
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err == nil {
			if compact, err := json.Marshal(parsed); err == nil {
				return truncate(string(compact), bodyStubLimit)
			}
		}
	}
	return truncate(string(body), bodyStubLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

// Is reports whether err carries the given classified type.
func Is(err error, t Type) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// TypeOf returns the classified type of err, or TypeUnknown.
func TypeOf(err error) Type {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return TypeUnknown
}

// Retryable reports whether err should be retried; unclassified errors are
// not retried.
func Retryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return false
}
