package agent

import (
	"context"
	"fmt"
	"sync"

	"papermill/pkg/agent/llm"
)

// MockClient is a controllable llm.Client for testing. Each Complete call
// consumes the next queued error if one exists, otherwise the next queued
// response.
type MockClient struct {
	mu            sync.Mutex
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	requests      []llm.CompletionRequest
}

// NewMockClient creates a mock with predefined responses and errors.
func NewMockClient(responses []llm.CompletionResponse, errors []error) *MockClient {
	return &MockClient{responses: responses, errors: errors}
}

// Complete implements llm.Client.
func (m *MockClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.errorIndex < len(m.errors) && m.errors[m.errorIndex] != nil {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return llm.CompletionResponse{}, err
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// ModelName implements llm.Client.
func (m *MockClient) ModelName() string {
	return "mock-model"
}

// Requests returns every request the mock has seen.
func (m *MockClient) Requests() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]llm.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
