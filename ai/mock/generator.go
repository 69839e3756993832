package mock

import (
	"context"
	"fmt"
	"sync"
)

// GenerateCall records the arguments of one Generate invocation.
type GenerateCall struct {
	System string
	Prompt string
}

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns a fixed answer that echoes the prompt length.
	GenerateFunc func(ctx context.Context, system, prompt string) (string, error)

	mu    sync.Mutex
	calls []GenerateCall
}

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// WithGenerateFunc injects custom generation behavior.
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, system, prompt string) (string, error)) *MockGenerator {
	m.GenerateFunc = fn
	return m
}

// Generate records the call and returns the injected or default answer.
func (m *MockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{System: system, Prompt: prompt})
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, system, prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("mock answer (%d prompt bytes)", len(prompt)), nil
}

// Calls returns the recorded invocations.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// CallCount returns the number of Generate invocations.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.GenerateFunc = nil
}
