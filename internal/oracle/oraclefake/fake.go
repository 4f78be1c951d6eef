// Package oraclefake provides test doubles for the oracle.Client interface,
// mirroring the teacher's NoopValidator pattern for conflict validation.
package oraclefake

import (
	"context"
	"fmt"
	"sync"

	"github.com/io-m1/ceti/internal/oracle"
)

// Noop always returns a fixed ACCEPT-style response. Useful for tests that
// don't care about Oracle content, only about control flow.
type Noop struct {
	Response string
}

func (n Noop) Complete(_ context.Context, _ string, _ []oracle.Message, _ int) (string, error) {
	if n.Response == "" {
		return "VERDICT: ACCEPT", nil
	}
	return n.Response, nil
}

// Scripted replays a queue of canned responses or errors in order, one per
// call, cycling back to the last entry once exhausted. It is safe for
// concurrent use so it can stand in for the judge quorum's parallel fan-out.
type Scripted struct {
	mu        sync.Mutex
	responses []Response
	calls     int
}

// Response is one scripted Oracle outcome.
type Response struct {
	Content string
	Err     error
}

// NewScripted builds a Scripted client from a sequence of responses.
func NewScripted(responses ...Response) *Scripted {
	return &Scripted{responses: responses}
}

func (s *Scripted) Complete(_ context.Context, _ string, _ []oracle.Message, _ int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return "", fmt.Errorf("oraclefake: no responses scripted")
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return r.Content, r.Err
}

// Calls returns the number of times Complete has been invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PerModel dispatches to a different Scripted client keyed by model name,
// for scenarios where each judge model must answer independently (spec §8
// Scenario 5: judges ACCEPT, REJECT, REJECT).
type PerModel struct {
	mu      sync.Mutex
	clients map[string]*Scripted
}

// NewPerModel builds a PerModel router from a model -> responses map.
func NewPerModel(byModel map[string][]Response) *PerModel {
	clients := make(map[string]*Scripted, len(byModel))
	for model, resp := range byModel {
		clients[model] = NewScripted(resp...)
	}
	return &PerModel{clients: clients}
}

func (p *PerModel) Complete(ctx context.Context, model string, messages []oracle.Message, maxTokens int) (string, error) {
	p.mu.Lock()
	c, ok := p.clients[model]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("oraclefake: no script registered for model %q", model)
	}
	return c.Complete(ctx, model, messages, maxTokens)
}
