package answer

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockGenerator is a deterministic generator for tests and local development.
// It echoes the question and reports how much context it was given.
type MockGenerator struct {
	mu       sync.Mutex
	requests []*Request
}

// NewMockGenerator returns a generator producing deterministic answers.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate records the request and returns a canned answer derived from it.
func (g *MockGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	passages := 0
	if strings.TrimSpace(req.Context) != "" {
		passages = strings.Count(req.Context, "\n\n") + 1
	}
	return &Response{
		Text: fmt.Sprintf("Answer to %q based on %d passage(s).", req.Query, passages),
	}, nil
}

// Requests returns the requests seen so far.
func (g *MockGenerator) Requests() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// Close is a no-op for MockGenerator.
func (g *MockGenerator) Close() error {
	return nil
}
