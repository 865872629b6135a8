package agent

import (
	"context"
	"testing"
	"time"
)

func newTestSystem(t *testing.T) *Orchestrator {
	t.Helper()
	o := NewSystem(&stubText{fail: true}, NewBus(), nil, OrchestratorConfig{
		ScanInterval:      time.Hour,
		ConversationDelay: time.Millisecond,
	})
	return o
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	o := newTestSystem(t)
	started := o.Bus().Subscribe(EventSystemStarted, 4)
	stopped := o.Bus().Subscribe(EventSystemStopped, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o.Start(ctx)
	o.Start(ctx) // second call logs and returns
	if !o.Running() {
		t.Fatalf("system not running after Start")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("no systemStarted event")
	}
	select {
	case <-started:
		t.Fatalf("systemStarted emitted twice")
	default:
	}

	o.Stop()
	o.Stop()
	if o.Running() {
		t.Fatalf("system still running after Stop")
	}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("no systemStopped event")
	}
	select {
	case <-stopped:
		t.Fatalf("systemStopped emitted twice")
	default:
	}
}

func TestProcessUserInputFeedsMatchingEngine(t *testing.T) {
	o := newTestSystem(t)
	processed := o.Bus().Subscribe(EventPreferences, 4)

	schema, err := o.ProcessUserInput(context.Background(), "conservative, $5,000 in eth", "user-1")
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if schema.UserID != "user-1" {
		t.Fatalf("schema user = %s", schema.UserID)
	}

	users := o.MatchingAgent().KnownUsers()
	if len(users) != 1 || users[0] != "user-1" {
		t.Fatalf("known users = %v, want [user-1]", users)
	}

	select {
	case ev := <-processed:
		if ev.Schema.UserID != "user-1" {
			t.Fatalf("processed event schema user = %s", ev.Schema.UserID)
		}
	case <-time.After(time.Second):
		t.Fatalf("no preferencesProcessed event")
	}

	status := o.SystemStatus()
	if status.Metrics.MessagesExchanged == 0 {
		t.Fatalf("schema announcement not recorded in history")
	}
}

func TestScanTriggersMatchingAgainstFullActiveSet(t *testing.T) {
	o := newTestSystem(t)
	if _, err := o.ProcessUserInput(context.Background(), "aggressive, $100,000, ETH WBTC ARB OP, at least 0.1% return", "user-1"); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}

	arb := o.OpportunityAgent()
	arb.Scan(context.Background())
	arb.Scan(context.Background())

	active := o.ActiveOpportunities()
	if len(active) < 2 {
		t.Fatalf("active = %d after two scans, want at least 2", len(active))
	}

	recs := o.UserRecommendations("user-1")
	if len(recs) == 0 {
		t.Fatalf("no recommendations after scans")
	}
	if len(recs) > 3 {
		t.Fatalf("recommendations = %d, want at most 3", len(recs))
	}
}

func TestRoutingDeliversRequestsAndFlagsUnknownRecipients(t *testing.T) {
	o := newTestSystem(t)

	o.Emit(Event{Kind: EventAgentMessage, Message: &AgentMessage{
		ID:          "msg-req",
		AgentID:     "matching-agent-001",
		AgentType:   AgentMatching,
		RecipientID: "preference-agent-001",
		Content:     "clarify constraints",
		MessageType: MessageRequest,
		Timestamp:   time.Now().UTC(),
	}})

	// The request triggers the preference agent's reply, which the matching
	// agent acknowledges. The acknowledgment is a response, so the preference
	// agent ignores it and the exchange terminates at three messages.
	msgs := o.Messages()
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want request, reply and acknowledgment", len(msgs))
	}
	// Newest first: acknowledgment, then the preference agent's reply.
	if msgs[0].AgentID != "matching-agent-001" || msgs[0].MessageType != MessageResponse {
		t.Fatalf("newest message = %+v, want matching acknowledgment", msgs[0])
	}
	if msgs[1].AgentID != "preference-agent-001" || msgs[1].MessageType != MessageResponse {
		t.Fatalf("second message = %+v, want preference reply", msgs[1])
	}

	o.Emit(Event{Kind: EventAgentMessage, Message: &AgentMessage{
		ID:          "msg-lost",
		AgentID:     "matching-agent-001",
		AgentType:   AgentMatching,
		RecipientID: "nobody-agent-999",
		MessageType: MessageRequest,
		Timestamp:   time.Now().UTC(),
	}})

	var warned bool
	for _, entry := range o.SystemLogs() {
		if entry.Level == LogWarn {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("unknown recipient produced no warning")
	}
	if len(o.Messages()) != 4 {
		t.Fatalf("undeliverable message not recorded")
	}
}

func TestRoutingWhileStarting(t *testing.T) {
	o := newTestSystem(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Message delivery can arrive over HTTP before or during the first
	// Start; both must route with a usable context.
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Emit(Event{Kind: EventAgentMessage, Message: &AgentMessage{
			ID:          "msg-early",
			AgentID:     "matching-agent-001",
			AgentType:   AgentMatching,
			RecipientID: "preference-agent-001",
			Content:     "clarify constraints",
			MessageType: MessageRequest,
			Timestamp:   time.Now().UTC(),
		}})
	}()
	o.Start(ctx)
	<-done
	o.Stop()

	if len(o.Messages()) < 3 {
		t.Fatalf("messages = %d, want the request and its replies", len(o.Messages()))
	}
}

func TestBroadcastMessagesAreRecordedNotRouted(t *testing.T) {
	o := newTestSystem(t)
	o.Emit(Event{Kind: EventAgentMessage, Message: &AgentMessage{
		ID:          "msg-bcast",
		AgentID:     "arb-agent-001",
		AgentType:   AgentArbitrage,
		Content:     "heads up",
		MessageType: MessageAlert,
		Timestamp:   time.Now().UTC(),
	}})
	if got := len(o.Messages()); got != 1 {
		t.Fatalf("messages = %d, want broadcast only", got)
	}
}

func TestSimulateConversationRunsScriptThroughRouting(t *testing.T) {
	o := newTestSystem(t)
	o.SimulateConversation(context.Background(), "stablecoin arbitrage")

	msgs := o.Messages()
	// Three scripted messages plus the matching agent's reply to the one
	// addressed to it.
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	seen := map[AgentType]bool{}
	for _, m := range msgs {
		seen[m.AgentType] = true
	}
	for _, typ := range []AgentType{AgentPreference, AgentArbitrage, AgentMatching} {
		if !seen[typ] {
			t.Fatalf("agent %s never spoke", typ)
		}
	}
}

func TestClearLogsLeavesOnlyConfirmation(t *testing.T) {
	o := newTestSystem(t)
	o.SimulateConversation(context.Background(), "gas prices")
	if len(o.SystemLogs()) < 2 {
		t.Fatalf("expected accumulated logs before clear")
	}

	o.ClearLogs()
	logs := o.SystemLogs()
	if len(logs) != 1 {
		t.Fatalf("logs after clear = %d, want 1", len(logs))
	}
	if len(o.Messages()) != 0 {
		t.Fatalf("messages not cleared")
	}
	if got := o.SystemStatus().Metrics.SystemLogs; got < 1 {
		t.Fatalf("metrics lost the confirmation entry: %d", got)
	}
}

func TestSystemStatusCountsRecommendationAnnouncements(t *testing.T) {
	o := newTestSystem(t)
	if _, err := o.ProcessUserInput(context.Background(), "aggressive, $100,000, ETH ARB OP, at least 0.1% return", "user-1"); err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	o.OpportunityAgent().Scan(context.Background())

	status := o.SystemStatus()
	if !statusHasAllAgents(status) {
		t.Fatalf("agent snapshot incomplete: %+v", status.Agents)
	}
	recs := o.UserRecommendations("user-1")
	if len(recs) == 0 {
		t.Fatalf("no recommendations stored after scan")
	}
	// Matching re-runs on every discovery event, so the announcement count
	// is at least the stored set.
	if status.Metrics.TotalRecommendations < len(recs) {
		t.Fatalf("totalRecommendations = %d, want at least %d", status.Metrics.TotalRecommendations, len(recs))
	}
	if status.Metrics.ActiveOpportunities == 0 {
		t.Fatalf("activeOpportunities = 0 after a scan")
	}
}

func statusHasAllAgents(s SystemStatus) bool {
	for _, key := range []string{"preference", "arbitrage", "matching"} {
		info, ok := s.Agents[key]
		if !ok || info.ID == "" || info.Name == "" {
			return false
		}
	}
	return true
}
