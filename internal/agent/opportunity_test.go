package agent

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestScanMintsBoundedBatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := &captureEmitter{}
	a := NewOpportunityAgent(nil, events, nil).
		WithClock(fixedClock(now)).
		WithRand(rand.New(rand.NewSource(7)))

	minted := a.Scan(context.Background())
	if len(minted) < 1 || len(minted) > 3 {
		t.Fatalf("minted %d opportunities, want 1..3", len(minted))
	}

	protocolSet := map[string]struct{}{}
	for _, p := range opportunityProtocols {
		protocolSet[p] = struct{}{}
	}
	for _, opp := range minted {
		if !strings.HasPrefix(opp.ID, "arb-") {
			t.Fatalf("id = %s, want arb- prefix", opp.ID)
		}
		if opp.Status != OppActive {
			t.Fatalf("status = %s, want active", opp.Status)
		}
		if opp.ProtocolA == opp.ProtocolB {
			t.Fatalf("protocol A and B both %s", opp.ProtocolA)
		}
		if _, ok := protocolSet[opp.ProtocolA]; !ok {
			t.Fatalf("unknown protocol %s", opp.ProtocolA)
		}
		if opp.ExpectedReturn < 0.5 || opp.ExpectedReturn > 3.5 {
			t.Fatalf("expected return %.4f%% outside 0.5..3.5", opp.ExpectedReturn)
		}
		if !opp.PriceB.GreaterThan(opp.PriceA) {
			t.Fatalf("priceB %s not above priceA %s", opp.PriceB, opp.PriceA)
		}
		ttl := opp.ExpiresAt.Sub(now)
		if ttl < 5*time.Minute || ttl > 25*time.Minute {
			t.Fatalf("expiry window %s outside 5m..25m", ttl)
		}
		if opp.TimeDecay < 5*time.Minute || opp.TimeDecay > 20*time.Minute {
			t.Fatalf("time decay %s outside 5m..20m", opp.TimeDecay)
		}
		if opp.RequiredCapital.IsNegative() || opp.Liquidity.IsNegative() {
			t.Fatalf("negative money fields: %+v", opp)
		}
	}

	if got := events.byKind(EventOpportunity); len(got) != len(minted) {
		t.Fatalf("opportunity events = %d, want %d", len(got), len(minted))
	}
	if got := events.byKind(EventAgentMessage); len(got) != len(minted) {
		t.Fatalf("announcement messages = %d, want %d", len(got), len(minted))
	}
	if a.Status() != StatusActive {
		t.Fatalf("status after scan = %s, want active", a.Status())
	}
}

func TestRiskTiersFollowSpread(t *testing.T) {
	if got := riskForSpread(0.006); got != RiskLow {
		t.Fatalf("0.6%% spread = %s, want low", got)
	}
	if got := riskForSpread(0.015); got != RiskMedium {
		t.Fatalf("1.5%% spread = %s, want medium", got)
	}
	if got := riskForSpread(0.03); got != RiskHigh {
		t.Fatalf("3%% spread = %s, want high", got)
	}
}

func TestSweepRemovesExpiredOpportunities(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := start
	events := &captureEmitter{}
	a := NewOpportunityAgent(nil, events, nil).
		WithClock(func() time.Time { return current }).
		WithRand(rand.New(rand.NewSource(3)))

	minted := a.Scan(context.Background())
	if len(a.ActiveOpportunities()) != len(minted) {
		t.Fatalf("active = %d right after scan, want %d", len(a.ActiveOpportunities()), len(minted))
	}

	// Jump past every possible expiry.
	current = start.Add(30 * time.Minute)
	if got := a.ActiveOpportunities(); len(got) != 0 {
		t.Fatalf("active after expiry = %d, want 0", len(got))
	}

	a.sweepExpired()
	expired := events.byKind(EventOppExpired)
	if len(expired) != len(minted) {
		t.Fatalf("expired events = %d, want %d", len(expired), len(minted))
	}
	for _, ev := range expired {
		if ev.Opportunity.Status != OppExpired {
			t.Fatalf("swept status = %s, want expired", ev.Opportunity.Status)
		}
	}
}

func TestStartScanningIsSingleFlight(t *testing.T) {
	events := &captureEmitter{}
	a := NewOpportunityAgent(nil, events, nil).
		WithRand(rand.New(rand.NewSource(11)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.StartScanning(ctx, time.Hour)
	a.StartScanning(ctx, time.Hour) // second call must be a no-op
	if a.Status() == StatusIdle {
		t.Fatalf("status = idle while scanning")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(events.byKind(EventOpportunity)) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no opportunities emitted by initial scan")
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.StopScanning()
	if a.Status() != StatusIdle {
		t.Fatalf("status after stop = %s, want idle", a.Status())
	}
	a.StopScanning() // idempotent
}

func TestOpportunityHandleMessageRepliesWithActiveSet(t *testing.T) {
	events := &captureEmitter{}
	a := NewOpportunityAgent(nil, events, nil).
		WithRand(rand.New(rand.NewSource(5)))
	a.Scan(context.Background())
	before := len(events.byKind(EventAgentMessage))

	a.HandleMessage(context.Background(), AgentMessage{
		AgentID:     "matching-agent-001",
		AgentType:   AgentMatching,
		MessageType: MessageRequest,
	})
	msgs := events.byKind(EventAgentMessage)
	if len(msgs) != before+1 {
		t.Fatalf("messages = %d, want %d", len(msgs), before+1)
	}
	reply := msgs[len(msgs)-1].Message
	if reply.RecipientID != "matching-agent-001" || reply.MessageType != MessageResponse {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if _, ok := reply.Data.([]ArbitrageOpportunity); !ok {
		t.Fatalf("reply data type %T, want []ArbitrageOpportunity", reply.Data)
	}
}
