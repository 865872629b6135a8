package agent

import (
	"context"
	"sync"

	"arbadvisor/internal/llm"
)

// stubText is a scripted TextGenerator for tests. Each field, when set,
// overrides the default canned reply; setting fail makes every call return a
// collaborator outage.
type stubText struct {
	schemaJSON string
	schemaErr  error
	fail       bool

	mu    sync.Mutex
	calls []string
}

func (s *stubText) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *stubText) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *stubText) GenerateSchema(ctx context.Context, userInput string) (string, error) {
	s.record("GenerateSchema")
	if s.fail {
		return "", &llm.ServiceError{Status: 503, Body: "unavailable"}
	}
	if s.schemaErr != nil {
		return "", s.schemaErr
	}
	return s.schemaJSON, nil
}

func (s *stubText) AnalyzeMarket(ctx context.Context, marketDataJSON string) (string, error) {
	s.record("AnalyzeMarket")
	if s.fail {
		return "", &llm.ServiceError{Status: 503, Body: "unavailable"}
	}
	return "markets look dislocated", nil
}

func (s *stubText) MatchOpportunities(ctx context.Context, preferencesJSON, opportunitiesJSON string) (string, error) {
	s.record("MatchOpportunities")
	if s.fail {
		return "", &llm.ServiceError{Status: 503, Body: "unavailable"}
	}
	return "top picks identified", nil
}

func (s *stubText) ComposeMessage(ctx context.Context, agentType, context_, messageType string) (string, error) {
	s.record("ComposeMessage")
	if s.fail {
		return "", &llm.ServiceError{Status: 503, Body: "unavailable"}
	}
	return "", nil // empty reply falls back to deterministic content
}

// captureEmitter records every emitted event for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureEmitter) Emit(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *captureEmitter) byKind(kind EventKind) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
