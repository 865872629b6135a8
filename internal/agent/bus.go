package agent

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind names match the contract consumed by the UI layer.
type EventKind string

const (
	EventSystemStarted   EventKind = "systemStarted"
	EventSystemStopped   EventKind = "systemStopped"
	EventAgentMessage    EventKind = "agentMessage"
	EventOpportunity     EventKind = "opportunityDiscovered"
	EventOppExpired      EventKind = "opportunityExpired"
	EventRecommendation  EventKind = "recommendationGenerated"
	EventPreferences     EventKind = "preferencesProcessed"
	EventPreferencesUpd  EventKind = "preferencesUpdated"
	EventSchemaGenerated EventKind = "schemaGenerated"
	EventSystemLog       EventKind = "systemLog"
)

// Event is the tagged union carried on the bus. Exactly one payload pointer is
// set for payload-bearing kinds.
type Event struct {
	Kind           EventKind                 `json:"kind"`
	Timestamp      time.Time                 `json:"timestamp"`
	Message        *AgentMessage             `json:"message,omitempty"`
	Opportunity    *ArbitrageOpportunity     `json:"opportunity,omitempty"`
	Schema         *PreferenceSchema         `json:"schema,omitempty"`
	Recommendation *AllocationRecommendation `json:"recommendation,omitempty"`
	Log            *SystemLog                `json:"log,omitempty"`
}

// Emitter is how agents hand events to whoever owns the wiring. The
// orchestrator implements it; tests substitute a recorder.
type Emitter interface {
	Emit(ev Event)
}

// Bus fans events out to subscribers by kind. Publish never blocks: slow
// subscribers lose events and the drop is counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventKind][]chan Event
	all     []chan Event
	dropped uint64
}

func NewBus() *Bus {
	return &Bus{subs: map[EventKind][]chan Event{}}
}

// Subscribe returns a channel receiving events of one kind.
func (b *Bus) Subscribe(kind EventKind, buf int) <-chan Event {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], ch)
	b.mu.Unlock()
	return ch
}

// SubscribeAll returns a channel receiving every published event.
func (b *Bus) SubscribeAll(buf int) <-chan Event {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan Event, buf)
	b.mu.Lock()
	b.all = append(b.all, ch)
	b.mu.Unlock()
	return ch
}

// UnsubscribeAll removes a channel obtained from SubscribeAll. The channel is
// not closed; the caller stops reading it.
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.all {
		if sub == ch {
			b.all = append(b.all[:i], b.all[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.Kind] {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- ev:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// Dropped returns how many deliveries were skipped due to full subscriber
// buffers.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}
