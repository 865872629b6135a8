package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const orchestratorSource = "orchestrator"

// DefaultConversationDelay paces the scripted demo conversation.
const DefaultConversationDelay = time.Second

type preferenceProcessor interface {
	Agent
	ProcessPreferences(ctx context.Context, userInput, userID string) (*PreferenceSchema, error)
}

type opportunityScanner interface {
	Agent
	StartScanning(ctx context.Context, interval time.Duration)
	StopScanning()
	ActiveOpportunities() []ArbitrageOpportunity
}

type opportunityMatcher interface {
	Agent
	AddPreferences(schema PreferenceSchema)
	AnalyzeOpportunities(ctx context.Context, opportunities []ArbitrageOpportunity) []AllocationRecommendation
	UserRecommendations(userID string) []AllocationRecommendation
}

// OrchestratorConfig carries the tunables; zero values fall back to the
// defaults used by the demo deployment.
type OrchestratorConfig struct {
	ScanInterval      time.Duration
	ConversationDelay time.Duration
	Debug             bool
}

// Orchestrator owns the three agents, routes their messages, and is the
// single source of truth for message history and the system log.
type Orchestrator struct {
	preference preferenceProcessor
	arbitrage  opportunityScanner
	matching   opportunityMatcher
	byID       map[string]Agent

	bus    *Bus
	logger *zap.Logger

	scanInterval      time.Duration
	conversationDelay time.Duration
	debugMode         atomic.Bool

	runMu   sync.Mutex
	running bool
	baseCtx context.Context

	histMu   sync.Mutex
	messages []AgentMessage
	logs     []SystemLog
}

// NewSystem builds the three agents wired to a fresh orchestrator. The
// orchestrator itself is each agent's Emitter, so construction happens in two
// steps: empty orchestrator first, then agents pointed at it.
func NewSystem(text TextGenerator, bus *Bus, logger *zap.Logger, cfg OrchestratorConfig) *Orchestrator {
	if bus == nil {
		bus = NewBus()
	}
	o := &Orchestrator{
		bus:               bus,
		logger:            logger,
		scanInterval:      cfg.ScanInterval,
		conversationDelay: cfg.ConversationDelay,
		baseCtx:           context.Background(),
	}
	if o.scanInterval <= 0 {
		o.scanInterval = 15 * time.Second
	}
	if o.conversationDelay <= 0 {
		o.conversationDelay = DefaultConversationDelay
	}
	o.debugMode.Store(cfg.Debug)

	pref := NewPreferenceAgent(text, o, logger)
	arb := NewOpportunityAgent(text, o, logger)
	match := NewMatchingAgent(text, o, logger)
	o.attach(pref, arb, match)
	o.log(LogInfo, orchestratorSource, "orchestrator initialized", nil)
	return o
}

func (o *Orchestrator) attach(pref preferenceProcessor, arb opportunityScanner, match opportunityMatcher) {
	o.preference = pref
	o.arbitrage = arb
	o.matching = match
	o.byID = map[string]Agent{
		pref.ID():  pref,
		arb.ID():   arb,
		match.ID(): match,
	}
}

// OpportunityAgent exposes the concrete scanner for clock and randomness
// injection; nil if the agent was substituted.
func (o *Orchestrator) OpportunityAgent() *OpportunityAgent {
	a, _ := o.arbitrage.(*OpportunityAgent)
	return a
}

// MatchingAgent exposes the concrete matcher; nil if substituted.
func (o *Orchestrator) MatchingAgent() *MatchingAgent {
	a, _ := o.matching.(*MatchingAgent)
	return a
}

// Bus exposes the outward event stream for UI subscribers.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Emit receives every event produced by the agents. Recording happens before
// outward re-emission and routing, so history reflects send order.
func (o *Orchestrator) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = nowUTC()
	}
	switch ev.Kind {
	case EventAgentMessage:
		if ev.Message == nil {
			return
		}
		o.handleAgentMessage(*ev.Message)
	case EventSchemaGenerated:
		if ev.Schema == nil {
			return
		}
		o.log(LogInfo, orchestratorSource, "user preference schema generated", map[string]any{
			"user_id":        ev.Schema.UserID,
			"risk_tolerance": ev.Schema.Preferences.RiskTolerance,
			"max_investment": ev.Schema.Preferences.MaxInvestment.String(),
		})
		o.matching.AddPreferences(*ev.Schema)
		o.bus.Publish(Event{Kind: EventPreferences, Schema: ev.Schema, Timestamp: ev.Timestamp})
	case EventOpportunity:
		if ev.Opportunity == nil {
			return
		}
		o.log(LogInfo, orchestratorSource, "new arbitrage opportunity discovered", map[string]any{
			"opportunity_id":  ev.Opportunity.ID,
			"asset_pair":      ev.Opportunity.AssetPair,
			"expected_return": ev.Opportunity.ExpectedReturn,
			"risk":            ev.Opportunity.Risk,
		})
		o.bus.Publish(ev)
		o.triggerMatching()
	case EventOppExpired:
		if ev.Opportunity == nil {
			return
		}
		o.log(LogDebug, orchestratorSource, "arbitrage opportunity expired", map[string]any{
			"opportunity_id": ev.Opportunity.ID,
			"asset_pair":     ev.Opportunity.AssetPair,
		})
		o.bus.Publish(ev)
	case EventRecommendation:
		if ev.Recommendation == nil {
			return
		}
		o.log(LogInfo, orchestratorSource, "new allocation recommendation generated", map[string]any{
			"opportunity_id": ev.Recommendation.OpportunityID,
			"user_id":        ev.Recommendation.UserID,
			"amount":         ev.Recommendation.AllocatedAmount.String(),
			"confidence":     ev.Recommendation.Confidence,
		})
		o.bus.Publish(ev)
	case EventPreferencesUpd:
		if ev.Schema == nil {
			return
		}
		o.log(LogDebug, orchestratorSource, "user preferences updated in matching engine", map[string]any{
			"user_id": ev.Schema.UserID,
		})
		o.bus.Publish(ev)
	default:
		o.bus.Publish(ev)
	}
}

func (o *Orchestrator) handleAgentMessage(msg AgentMessage) {
	o.histMu.Lock()
	o.messages = append(o.messages, msg)
	o.histMu.Unlock()

	o.log(LogDebug, orchestratorSource, "agent message recorded", map[string]any{
		"message_id": msg.ID,
		"from":       msg.AgentType,
		"to":         msg.RecipientID,
		"type":       msg.MessageType,
	})
	o.bus.Publish(Event{Kind: EventAgentMessage, Message: &msg, Timestamp: msg.Timestamp})
	o.routeMessage(msg)
}

// routeMessage delivers a message to its addressee after it has been
// recorded. Absent recipient means broadcast: log-only.
func (o *Orchestrator) routeMessage(msg AgentMessage) {
	if msg.RecipientID == "" {
		o.log(LogDebug, orchestratorSource, "message has no recipient, broadcasting", nil)
		return
	}
	target, ok := o.byID[msg.RecipientID]
	if !ok {
		o.log(LogWarn, orchestratorSource, "unknown recipient: "+msg.RecipientID, nil)
		return
	}
	target.HandleMessage(o.runCtx(), msg)
}

// runCtx reads the lifecycle context under the same lock Start writes it
// with; routing can race the first Start when driven over HTTP.
func (o *Orchestrator) runCtx() context.Context {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.baseCtx
}

// triggerMatching recomputes recommendations against the complete live
// opportunity set, never just the newest entry.
func (o *Orchestrator) triggerMatching() {
	active := o.arbitrage.ActiveOpportunities()
	if len(active) == 0 {
		o.log(LogDebug, orchestratorSource, "no active opportunities for matching analysis", nil)
		return
	}
	o.log(LogInfo, orchestratorSource, fmt.Sprintf("starting matching analysis with %d opportunities", len(active)), nil)
	o.matching.AnalyzeOpportunities(o.runCtx(), active)
}

// Start is idempotent: a second call while running logs a warning and
// returns.
func (o *Orchestrator) Start(ctx context.Context) {
	o.runMu.Lock()
	if o.running {
		o.runMu.Unlock()
		o.log(LogWarn, orchestratorSource, "system already running", nil)
		return
	}
	o.running = true
	if ctx == nil {
		ctx = context.Background()
	}
	o.baseCtx = ctx
	o.runMu.Unlock()

	o.log(LogInfo, orchestratorSource, "starting multi-agent system", nil)
	o.arbitrage.StartScanning(ctx, o.scanInterval)
	o.bus.Publish(Event{Kind: EventSystemStarted})
	o.log(LogInfo, orchestratorSource, "multi-agent system started", nil)
}

// Stop is idempotent; a second call logs a warning without emitting another
// systemStopped event.
func (o *Orchestrator) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		o.log(LogWarn, orchestratorSource, "system already stopped", nil)
		return
	}
	o.running = false
	o.runMu.Unlock()

	o.log(LogInfo, orchestratorSource, "stopping multi-agent system", nil)
	o.arbitrage.StopScanning()
	o.bus.Publish(Event{Kind: EventSystemStopped})
	o.log(LogInfo, orchestratorSource, "multi-agent system stopped", nil)
}

func (o *Orchestrator) Running() bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	return o.running
}

// ProcessUserInput is the one call site where a failure surfaces to the
// caller; the preference agent already absorbs collaborator outages.
func (o *Orchestrator) ProcessUserInput(ctx context.Context, userInput, userID string) (*PreferenceSchema, error) {
	o.log(LogInfo, orchestratorSource, "processing user input for "+userID, map[string]any{
		"input_length": len(userInput),
	})
	schema, err := o.preference.ProcessPreferences(ctx, userInput, userID)
	if err != nil {
		o.log(LogError, orchestratorSource, "error processing user input for "+userID, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}
	o.log(LogInfo, orchestratorSource, "user preferences processed for "+userID, nil)
	return schema, nil
}

type AgentInfo struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Status       AgentStatus `json:"status"`
	LastActivity time.Time   `json:"last_activity"`
}

type SystemMetrics struct {
	MessagesExchanged    int `json:"messages_exchanged"`
	ActiveOpportunities  int `json:"active_opportunities"`
	TotalRecommendations int `json:"total_recommendations"`
	SystemLogs           int `json:"system_logs"`
}

type SystemStatus struct {
	IsRunning bool                 `json:"is_running"`
	Agents    map[string]AgentInfo `json:"agents"`
	Metrics   SystemMetrics        `json:"metrics"`
}

func (o *Orchestrator) SystemStatus() SystemStatus {
	o.histMu.Lock()
	messageCount := len(o.messages)
	logCount := len(o.logs)
	recommendationMsgs := 0
	for _, m := range o.messages {
		if m.MessageType == MessageInfo && m.AgentType == AgentMatching {
			recommendationMsgs++
		}
	}
	o.histMu.Unlock()

	status := SystemStatus{
		IsRunning: o.Running(),
		Agents: map[string]AgentInfo{
			"preference": agentInfo(o.preference),
			"arbitrage":  agentInfo(o.arbitrage),
			"matching":   agentInfo(o.matching),
		},
		Metrics: SystemMetrics{
			MessagesExchanged:    messageCount,
			ActiveOpportunities:  len(o.arbitrage.ActiveOpportunities()),
			TotalRecommendations: recommendationMsgs,
			SystemLogs:           logCount,
		},
	}
	o.log(LogDebug, orchestratorSource, "system status requested", map[string]any{
		"messages": messageCount,
		"logs":     logCount,
	})
	return status
}

func agentInfo(a Agent) AgentInfo {
	return AgentInfo{
		ID:           a.ID(),
		Name:         a.Name(),
		Status:       a.Status(),
		LastActivity: a.LastActivity(),
	}
}

// Messages returns the history newest-first. Storage is append-only in send
// order, so newest-first is a reversal.
func (o *Orchestrator) Messages() []AgentMessage {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	out := make([]AgentMessage, len(o.messages))
	for i, m := range o.messages {
		out[len(out)-1-i] = m
	}
	return out
}

// SystemLogs returns the log newest-first.
func (o *Orchestrator) SystemLogs() []SystemLog {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	out := make([]SystemLog, len(o.logs))
	for i, l := range o.logs {
		out[len(out)-1-i] = l
	}
	return out
}

func (o *Orchestrator) ActiveOpportunities() []ArbitrageOpportunity {
	return o.arbitrage.ActiveOpportunities()
}

// AllOpportunitiesWithDetails mirrors ActiveOpportunities; the store evicts
// expired entries on sweep, so active is all there is.
func (o *Orchestrator) AllOpportunitiesWithDetails() []ArbitrageOpportunity {
	return o.arbitrage.ActiveOpportunities()
}

func (o *Orchestrator) UserRecommendations(userID string) []AllocationRecommendation {
	return o.matching.UserRecommendations(userID)
}

// SimulateConversation plays a scripted three-message exchange between the
// agents about a topic. Every message goes through the normal routing path.
func (o *Orchestrator) SimulateConversation(ctx context.Context, topic string) {
	o.log(LogInfo, orchestratorSource, "simulating agent conversation about: "+topic, nil)

	steps := []struct {
		from    Agent
		fromTyp AgentType
		to      Agent
		content string
	}{
		{o.preference, AgentPreference, o.arbitrage,
			fmt.Sprintf("Hey Arbitrage Agent, I just processed a user who's interested in %s. What opportunities do you see in this space?", topic)},
		{o.arbitrage, AgentArbitrage, o.matching,
			fmt.Sprintf("Matching Agent, I've found some %s opportunities. The market is showing some interesting price discrepancies.", topic)},
		{o.matching, AgentMatching, o.preference,
			fmt.Sprintf("Preference Agent, can you clarify the risk tolerance for users interested in %s? I want to make sure my allocations are appropriate.", topic)},
	}

	for i, step := range steps {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.conversationDelay):
			}
		}
		msg := AgentMessage{
			ID:          newMessageID(),
			AgentID:     step.from.ID(),
			AgentType:   step.fromTyp,
			RecipientID: step.to.ID(),
			Content:     step.content,
			MessageType: MessageInfo,
			Timestamp:   nowUTC(),
		}
		o.handleAgentMessage(msg)
	}

	o.log(LogInfo, orchestratorSource, "agent conversation simulation completed for topic: "+topic, nil)
}

// SetDebugMode toggles console mirroring only; stored logs are unaffected.
func (o *Orchestrator) SetDebugMode(enabled bool) {
	o.debugMode.Store(enabled)
	mode := "disabled"
	if enabled {
		mode = "enabled"
	}
	o.log(LogInfo, orchestratorSource, "debug mode "+mode, nil)
}

// ClearLogs empties message history and system log atomically from the
// caller's perspective. The confirmation entry is the only survivor.
func (o *Orchestrator) ClearLogs() {
	o.histMu.Lock()
	o.messages = nil
	o.logs = nil
	o.histMu.Unlock()
	o.log(LogInfo, orchestratorSource, "system logs and message history cleared", nil)
}

func (o *Orchestrator) log(level LogLevel, source, message string, data map[string]any) {
	entry := SystemLog{
		Timestamp: nowUTC(),
		Level:     level,
		Source:    source,
		Message:   message,
		Data:      data,
	}
	o.histMu.Lock()
	o.logs = append(o.logs, entry)
	o.histMu.Unlock()

	if o.logger != nil && o.debugMode.Load() {
		fields := make([]zap.Field, 0, len(data)+1)
		fields = append(fields, zap.String("source", source))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}
		switch level {
		case LogDebug:
			o.logger.Debug(message, fields...)
		case LogWarn:
			o.logger.Warn(message, fields...)
		case LogError:
			o.logger.Error(message, fields...)
		default:
			o.logger.Info(message, fields...)
		}
	}
	o.bus.Publish(Event{Kind: EventSystemLog, Log: &entry, Timestamp: entry.Timestamp})
}
