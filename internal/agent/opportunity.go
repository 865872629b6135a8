package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	opportunityAgentID   = "arb-agent-001"
	opportunityAgentName = "Arbitrage Detection Agent"

	// DefaultScanInterval applies when StartScanning gets a non-positive
	// interval. The orchestrator normally passes its configured 15s.
	DefaultScanInterval = 30 * time.Second
)

var (
	marketAssets    = []string{"ETH", "USDC", "USDT", "DAI", "WBTC", "ARB", "OP"}
	marketProtocols = []string{"Uniswap V3", "SushiSwap", "Curve", "Balancer", "PancakeSwap", "QuickSwap"}

	opportunityPairs     = []string{"ETH/USDC", "WBTC/ETH", "ARB/USDC", "OP/ETH"}
	opportunityProtocols = []string{"Uniswap V3", "SushiSwap", "Curve", "Balancer"}

	basePrices = map[string]float64{
		"ETH":  3000,
		"USDC": 1.0,
		"USDT": 1.0,
		"DAI":  1.0,
		"WBTC": 65000,
		"ARB":  2.5,
		"OP":   3.2,
	}
)

// MarketSnapshot is the synthetic market data handed to the collaborator for
// prose analysis. Opportunity synthesis does not depend on the response.
type MarketSnapshot struct {
	Timestamp    time.Time     `json:"timestamp"`
	Assets       []AssetMarket `json:"assets"`
	GasPriceGwei float64       `json:"gas_price_gwei"`
	NetworkLoad  float64       `json:"network_load"`
}

type AssetMarket struct {
	Asset  string        `json:"asset"`
	Quotes []MarketQuote `json:"quotes"`
}

type MarketQuote struct {
	Protocol  string          `json:"protocol"`
	Price     decimal.Decimal `json:"price"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Volume24h decimal.Decimal `json:"volume_24h"`
}

// OpportunityAgent periodically synthesizes time-bounded arbitrage
// opportunities and owns their in-memory store. Clock and randomness are
// injectable so tests can pin exact outputs.
type OpportunityAgent struct {
	text   TextGenerator
	events Emitter
	logger *zap.Logger

	clock func() time.Time
	rng   *rand.Rand

	mu            sync.Mutex
	status        AgentStatus
	lastActivity  time.Time
	opportunities map[string]ArbitrageOpportunity
	cancel        context.CancelFunc
}

func NewOpportunityAgent(text TextGenerator, events Emitter, logger *zap.Logger) *OpportunityAgent {
	return &OpportunityAgent{
		text:          text,
		events:        events,
		logger:        logger,
		clock:         nowUTC,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		status:        StatusIdle,
		lastActivity:  nowUTC(),
		opportunities: map[string]ArbitrageOpportunity{},
	}
}

// WithClock replaces the time source. Test hook.
func (a *OpportunityAgent) WithClock(clock func() time.Time) *OpportunityAgent {
	a.clock = clock
	return a
}

// WithRand replaces the randomness source. Test hook.
func (a *OpportunityAgent) WithRand(rng *rand.Rand) *OpportunityAgent {
	a.rng = rng
	return a
}

func (a *OpportunityAgent) ID() string   { return opportunityAgentID }
func (a *OpportunityAgent) Name() string { return opportunityAgentName }

func (a *OpportunityAgent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *OpportunityAgent) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

func (a *OpportunityAgent) setStatus(s AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.lastActivity = a.clock()
	a.mu.Unlock()
}

// StartScanning moves the agent to active, performs one immediate scan, and
// repeats every interval until StopScanning or context cancellation.
func (a *OpportunityAgent) StartScanning(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.status = StatusActive
	a.lastActivity = a.clock()
	a.mu.Unlock()

	go a.scanLoop(ctx, interval)
}

func (a *OpportunityAgent) scanLoop(ctx context.Context, interval time.Duration) {
	a.Scan(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Scan(ctx)
		}
	}
}

// StopScanning cancels the repeating timer. An in-flight scan completes but
// is not rescheduled.
func (a *OpportunityAgent) StopScanning() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.status = StatusIdle
	a.lastActivity = a.clock()
	a.mu.Unlock()
}

// Scan performs one tick: synthesize market data, consult the collaborator
// best-effort, mint 1-3 opportunities, then sweep expired entries. Failures
// are logged and absorbed; scanning continues on schedule.
func (a *OpportunityAgent) Scan(ctx context.Context) []ArbitrageOpportunity {
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusActive)

	snapshot := a.snapshotMarket()
	if a.text != nil {
		raw, err := json.Marshal(snapshot)
		if err == nil {
			if _, aerr := a.text.AnalyzeMarket(ctx, string(raw)); aerr != nil && a.logger != nil {
				a.logger.Warn("market analysis unavailable, continuing with local synthesis", zap.Error(aerr))
			}
		}
	}

	minted := a.synthesizeOpportunities()

	// Store the whole batch before announcing so the matching trigger always
	// observes a consistent snapshot of this tick.
	a.mu.Lock()
	for _, opp := range minted {
		a.opportunities[opp.ID] = opp
	}
	a.mu.Unlock()

	for i := range minted {
		a.events.Emit(Event{Kind: EventOpportunity, Opportunity: &minted[i]})
		a.announceOpportunity(ctx, minted[i])
	}

	a.sweepExpired()
	return minted
}

func (a *OpportunityAgent) snapshotMarket() MarketSnapshot {
	snap := MarketSnapshot{
		Timestamp:    a.clock(),
		GasPriceGwei: 10 + a.rng.Float64()*50,
		NetworkLoad:  a.rng.Float64() * 100,
	}
	for _, asset := range marketAssets {
		am := AssetMarket{Asset: asset}
		for _, protocol := range marketProtocols {
			am.Quotes = append(am.Quotes, MarketQuote{
				Protocol:  protocol,
				Price:     a.jitteredPrice(asset),
				Liquidity: decimal.NewFromFloat(100000 + a.rng.Float64()*10000000).Round(2),
				Volume24h: decimal.NewFromFloat(50000 + a.rng.Float64()*1000000).Round(2),
			})
		}
		snap.Assets = append(snap.Assets, am)
	}
	return snap
}

func (a *OpportunityAgent) jitteredPrice(asset string) decimal.Decimal {
	base, ok := basePrices[asset]
	if !ok {
		base = 1.0
	}
	variance := (a.rng.Float64() - 0.5) * 0.05
	return decimal.NewFromFloat(base * (1 + variance)).Round(8)
}

func (a *OpportunityAgent) synthesizeOpportunities() []ArbitrageOpportunity {
	now := a.clock()
	count := a.rng.Intn(3) + 1
	out := make([]ArbitrageOpportunity, 0, count)
	for i := 0; i < count; i++ {
		pair := opportunityPairs[a.rng.Intn(len(opportunityPairs))]
		protocolA := opportunityProtocols[a.rng.Intn(len(opportunityProtocols))]
		var others []string
		for _, p := range opportunityProtocols {
			if p != protocolA {
				others = append(others, p)
			}
		}
		protocolB := others[a.rng.Intn(len(others))]

		baseAsset, _, _ := splitPair(pair)
		priceA := a.jitteredPrice(baseAsset)
		spread := 0.005 + a.rng.Float64()*0.03
		priceB := priceA.Mul(decimal.NewFromFloat(1 + spread)).Round(8)

		oppType := OppDexArbitrage
		if a.rng.Float64() > 0.5 {
			oppType = OppCrossChain
		}

		out = append(out, ArbitrageOpportunity{
			ID:              "arb-" + uuid.NewString(),
			Type:            oppType,
			AssetPair:       pair,
			ProtocolA:       protocolA,
			ProtocolB:       protocolB,
			PriceA:          priceA,
			PriceB:          priceB,
			ExpectedReturn:  spread * 100,
			RequiredCapital: decimal.NewFromFloat(1000 + a.rng.Float64()*50000).Round(2),
			GasEstimate:     int64(50000 + a.rng.Intn(200000)),
			Risk:            riskForSpread(spread),
			Liquidity:       decimal.NewFromFloat(100000 + a.rng.Float64()*5000000).Round(2),
			TimeDecay:       time.Duration(float64(time.Minute) * (5 + a.rng.Float64()*15)),
			DetectedAt:      now,
			ExpiresAt:       now.Add(time.Duration(float64(time.Minute) * (5 + a.rng.Float64()*20))),
			Status:          OppActive,
		})
	}
	return out
}

// riskForSpread derives the risk tier from the spread magnitude.
func riskForSpread(spread float64) RiskLevel {
	switch {
	case spread < 0.01:
		return RiskLow
	case spread < 0.025:
		return RiskMedium
	default:
		return RiskHigh
	}
}

func splitPair(pair string) (base, quote string, ok bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:], true
		}
	}
	return pair, "", false
}

func (a *OpportunityAgent) announceOpportunity(ctx context.Context, opp ArbitrageOpportunity) {
	summary := fmt.Sprintf("New arbitrage opportunity found: %s between %s and %s, expected return: %.2f%%, risk: %s",
		opp.AssetPair, opp.ProtocolA, opp.ProtocolB, opp.ExpectedReturn, opp.Risk)
	content := composeOrFallback(ctx, a.text, string(AgentArbitrage), summary, string(MessageAlert), summary)

	msg := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentArbitrage,
		Content:     content,
		MessageType: MessageAlert,
		Timestamp:   a.clock(),
		Data:        opp,
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &msg})
}

// Sweep evicts expired opportunities and emits an expiry event for each.
// Scan does this on its own cadence; Sweep exists for external schedulers.
func (a *OpportunityAgent) Sweep() {
	a.sweepExpired()
}

func (a *OpportunityAgent) sweepExpired() {
	now := a.clock()
	var expired []ArbitrageOpportunity
	a.mu.Lock()
	for id, opp := range a.opportunities {
		if opp.Expired(now) {
			opp.Status = OppExpired
			expired = append(expired, opp)
			delete(a.opportunities, id)
		}
	}
	a.mu.Unlock()
	for i := range expired {
		a.events.Emit(Event{Kind: EventOppExpired, Opportunity: &expired[i]})
	}
}

// ActiveOpportunities returns a snapshot of stored opportunities that are
// still active and unexpired. Callers never see the internal store.
func (a *OpportunityAgent) ActiveOpportunities() []ArbitrageOpportunity {
	now := a.clock()
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ArbitrageOpportunity, 0, len(a.opportunities))
	for _, opp := range a.opportunities {
		if opp.Status == OppActive && !opp.Expired(now) {
			out = append(out, opp)
		}
	}
	return out
}

// HandleMessage answers opportunity-detail requests from the matching agent.
func (a *OpportunityAgent) HandleMessage(ctx context.Context, msg AgentMessage) {
	if msg.AgentType != AgentMatching || msg.MessageType != MessageRequest {
		return
	}
	active := a.ActiveOpportunities()
	fallback := fmt.Sprintf("Providing opportunity details: %d active opportunities available", len(active))
	content := composeOrFallback(ctx, a.text, string(AgentArbitrage), fallback, string(MessageResponse), fallback)

	reply := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentArbitrage,
		RecipientID: msg.AgentID,
		Content:     content,
		MessageType: MessageResponse,
		Timestamp:   a.clock(),
		Data:        active,
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &reply})
}
