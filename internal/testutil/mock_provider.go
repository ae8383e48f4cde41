// Package testutil provides testing utilities for the propcache engine.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockProvider simulates a costly, rate-limited upstream property-data
// provider for tests. It counts invocations, can fail selected requests,
// and can delay responses to exercise timeout paths.
type MockProvider struct {
	mu sync.Mutex

	// FetchCount is the total number of Fetch invocations.
	FetchCount int

	// Delay is applied before every response when set.
	Delay time.Duration

	// payloads maps a params field ("id") to a canned payload.
	payloads map[string]any

	// failKeys marks params ids whose fetch should fail.
	failKeys map[string]bool
}

// NewMockProvider creates an empty mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		payloads: make(map[string]any),
		failKeys: make(map[string]bool),
	}
}

// SetPayload registers a canned payload for the params id.
func (p *MockProvider) SetPayload(id string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[id] = payload
}

// FailOn makes Fetch return an error for the params id.
func (p *MockProvider) FailOn(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failKeys[id] = true
}

// Fetch implements the upstream fetch collaborator contract. Params are
// identified by their "id" field; unknown ids get a generated payload.
func (p *MockProvider) Fetch(ctx context.Context, params map[string]any) (any, error) {
	p.mu.Lock()
	p.FetchCount++
	delay := p.Delay
	id, _ := params["id"].(string)
	fail := p.failKeys[id]
	payload, ok := p.payloads[id]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if fail {
		return nil, fmt.Errorf("upstream provider error for %q", id)
	}
	if !ok {
		payload = map[string]any{"id": id, "result": "generated"}
	}
	return payload, nil
}

// Count returns the current invocation count.
func (p *MockProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.FetchCount
}

// Reset clears counters and canned behavior.
func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FetchCount = 0
	p.payloads = make(map[string]any)
	p.failKeys = make(map[string]bool)
}
