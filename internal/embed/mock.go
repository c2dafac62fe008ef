package embed

import (
	"context"
	"sync"
)

// Mock is a test double for the Provider interface.
type Mock struct {
	Vector []float32
	Tokens int
	Err    error
	// Block makes Embed wait for ctx cancellation, for timeout tests.
	Block bool

	mu    sync.Mutex
	Calls []string
}

func (m *Mock) Name() string { return "mock" }

// Embed records the call and returns the configured vector or error.
func (m *Mock) Embed(ctx context.Context, text string) (Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, text)
	m.mu.Unlock()

	if m.Block {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	vec := m.Vector
	if vec == nil {
		vec = make([]float32, Dimensions)
		vec[0] = 1
	}
	return Result{Vector: vec, Tokens: m.Tokens}, nil
}

// CallCount returns how many times Embed was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
