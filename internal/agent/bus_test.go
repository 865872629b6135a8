package agent

import (
	"testing"
	"time"
)

func TestBusDeliversByKind(t *testing.T) {
	bus := NewBus()
	opps := bus.Subscribe(EventOpportunity, 4)
	all := bus.SubscribeAll(4)

	bus.Publish(Event{Kind: EventOpportunity, Opportunity: &ArbitrageOpportunity{ID: "arb-1"}})
	bus.Publish(Event{Kind: EventSystemStarted})

	select {
	case ev := <-opps:
		if ev.Opportunity.ID != "arb-1" {
			t.Fatalf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event on kind subscription")
	}
	select {
	case <-opps:
		t.Fatalf("kind subscription received foreign event")
	default:
	}

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatalf("catch-all subscription missed event %d", i)
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	slow := bus.Subscribe(EventSystemLog, 1)

	bus.Publish(Event{Kind: EventSystemLog, Log: &SystemLog{Message: "one"}})
	bus.Publish(Event{Kind: EventSystemLog, Log: &SystemLog{Message: "two"}})

	if bus.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", bus.Dropped())
	}
	ev := <-slow
	if ev.Log.Message != "one" {
		t.Fatalf("kept event = %q, want the first", ev.Log.Message)
	}
}
