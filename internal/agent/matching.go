package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	matchingAgentID   = "matching-agent-001"
	matchingAgentName = "Preference Matching Agent"

	maxRecommendations = 3
)

// minAllocation is the floor below which an allocation is skipped without
// consuming capital.
var minAllocation = decimal.NewFromInt(100)

var allocationMultipliers = map[RiskLevel]float64{
	RiskLow:    0.2,
	RiskMedium: 0.4,
	RiskHigh:   0.6,
}

// MatchingAgent maps preference schemas against live opportunities and owns
// the per-user recommendation store. Each analysis pass replaces a user's
// previous recommendation set; history survives only in the message stream.
type MatchingAgent struct {
	text   TextGenerator
	events Emitter
	logger *zap.Logger

	clock func() time.Time

	mu              sync.Mutex
	status          AgentStatus
	lastActivity    time.Time
	preferences     map[string]PreferenceSchema
	recommendations map[string][]AllocationRecommendation
}

func NewMatchingAgent(text TextGenerator, events Emitter, logger *zap.Logger) *MatchingAgent {
	return &MatchingAgent{
		text:            text,
		events:          events,
		logger:          logger,
		clock:           nowUTC,
		status:          StatusIdle,
		lastActivity:    nowUTC(),
		preferences:     map[string]PreferenceSchema{},
		recommendations: map[string][]AllocationRecommendation{},
	}
}

// WithClock replaces the time source. Test hook.
func (a *MatchingAgent) WithClock(clock func() time.Time) *MatchingAgent {
	a.clock = clock
	return a
}

func (a *MatchingAgent) ID() string   { return matchingAgentID }
func (a *MatchingAgent) Name() string { return matchingAgentName }

func (a *MatchingAgent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *MatchingAgent) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

func (a *MatchingAgent) setStatus(s AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.lastActivity = a.clock()
	a.mu.Unlock()
}

// AddPreferences upserts a schema by user id. A later schema replaces the
// previous one outright; nothing is merged.
func (a *MatchingAgent) AddPreferences(schema PreferenceSchema) {
	a.mu.Lock()
	a.preferences[schema.UserID] = schema
	a.mu.Unlock()
	a.events.Emit(Event{Kind: EventPreferencesUpd, Schema: &schema})
}

// AnalyzeOpportunities recomputes recommendations for every known user
// against the given opportunity set. Failure is absorbed: on error the
// previous state is kept and an empty list returned.
func (a *MatchingAgent) AnalyzeOpportunities(ctx context.Context, opportunities []ArbitrageOpportunity) []AllocationRecommendation {
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	a.mu.Lock()
	schemas := make([]PreferenceSchema, 0, len(a.preferences))
	for _, s := range a.preferences {
		schemas = append(schemas, s)
	}
	a.mu.Unlock()
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].UserID < schemas[j].UserID })

	var all []AllocationRecommendation
	for _, schema := range schemas {
		recs := a.matchUser(ctx, schema, opportunities)

		a.mu.Lock()
		a.recommendations[schema.UserID] = recs
		a.mu.Unlock()

		for i := range recs {
			a.announceRecommendation(ctx, recs[i], schema)
			a.events.Emit(Event{Kind: EventRecommendation, Recommendation: &recs[i]})
		}
		all = append(all, recs...)
	}
	return all
}

func (a *MatchingAgent) matchUser(ctx context.Context, schema PreferenceSchema, opportunities []ArbitrageOpportunity) []AllocationRecommendation {
	candidates := FilterOpportunities(opportunities, schema.Preferences)
	if len(candidates) == 0 {
		return nil
	}

	// Advisory only; allocations below are computed deterministically.
	if a.text != nil {
		prefsJSON, perr := json.Marshal(schema.Preferences)
		oppsJSON, oerr := json.Marshal(candidates)
		if perr == nil && oerr == nil {
			if _, err := a.text.MatchOpportunities(ctx, string(prefsJSON), string(oppsJSON)); err != nil && a.logger != nil {
				a.logger.Warn("matching analysis prose unavailable", zap.Error(err))
			}
		}
	}

	now := a.clock()
	sort.SliceStable(candidates, func(i, j int) bool {
		return scoreOpportunity(candidates[i], schema.Preferences, now) > scoreOpportunity(candidates[j], schema.Preferences, now)
	})
	if len(candidates) > maxRecommendations {
		candidates = candidates[:maxRecommendations]
	}

	remaining := schema.Preferences.MaxInvestment
	var recs []AllocationRecommendation
	for _, opp := range candidates {
		if remaining.Sign() <= 0 {
			break
		}
		pct := allocationPercentage(opp, schema.Preferences)
		amount := remaining.Mul(decimal.NewFromFloat(pct))
		if amount.GreaterThan(opp.RequiredCapital) {
			amount = opp.RequiredCapital
		}
		if amount.LessThan(minAllocation) {
			continue
		}
		recs = append(recs, AllocationRecommendation{
			OpportunityID:   opp.ID,
			UserID:          schema.UserID,
			AllocatedAmount: amount.Round(2),
			Confidence:      confidence(opp, schema.Preferences),
			Reasoning:       reasoning(opp, schema.Preferences, amount),
			CreatedAt:       now,
		})
		remaining = remaining.Sub(amount)
	}
	return recs
}

// FilterOpportunities keeps only opportunities compatible with the user's
// stated preferences. All conditions must hold.
func FilterOpportunities(opportunities []ArbitrageOpportunity, prefs UserPreferences) []ArbitrageOpportunity {
	var out []ArbitrageOpportunity
	for _, opp := range opportunities {
		if !hasPreferredAsset(opp.AssetPair, prefs.PreferredAssets) {
			continue
		}
		if !opp.Risk.Compatible(prefs.RiskTolerance) {
			continue
		}
		if opp.RequiredCapital.GreaterThan(prefs.MaxInvestment) {
			continue
		}
		if opp.ExpectedReturn < prefs.MinReturnRate {
			continue
		}
		if involvesExcludedProtocol(opp, prefs.ExcludedProtocols) {
			continue
		}
		out = append(out, opp)
	}
	return out
}

func hasPreferredAsset(assetPair string, assets []string) bool {
	pair := strings.ToLower(assetPair)
	for _, asset := range assets {
		if asset != "" && strings.Contains(pair, strings.ToLower(asset)) {
			return true
		}
	}
	return false
}

func involvesExcludedProtocol(opp ArbitrageOpportunity, excluded []string) bool {
	pa := strings.ToLower(opp.ProtocolA)
	pb := strings.ToLower(opp.ProtocolB)
	for _, name := range excluded {
		needle := strings.ToLower(name)
		if needle == "" {
			continue
		}
		if strings.Contains(pa, needle) || strings.Contains(pb, needle) {
			return true
		}
	}
	return false
}

// scoreOpportunity weighs return (40%), risk alignment (30%), liquidity (20%)
// and remaining validity window (10%).
func scoreOpportunity(opp ArbitrageOpportunity, prefs UserPreferences, now time.Time) float64 {
	score := (opp.ExpectedReturn / 10) * 40

	if opp.Risk.Compatible(prefs.RiskTolerance) {
		score += 30
	}

	liquidity, _ := opp.Liquidity.Float64()
	liquidityFactor := liquidity / 1000000
	if liquidityFactor > 1 {
		liquidityFactor = 1
	}
	score += liquidityFactor * 20

	minutesLeft := opp.ExpiresAt.Sub(now).Minutes()
	timeFactor := minutesLeft / 30
	if timeFactor > 1 {
		timeFactor = 1
	}
	score += timeFactor * 10

	return score
}

func allocationPercentage(opp ArbitrageOpportunity, prefs UserPreferences) float64 {
	userMult := allocationMultipliers[prefs.RiskTolerance]
	oppMult := allocationMultipliers[opp.Risk]
	base := userMult
	if oppMult < base {
		base = oppMult
	}
	bonus := opp.ExpectedReturn / 20
	if bonus > 0.3 {
		bonus = 0.3
	}
	pct := base + bonus
	if pct > 0.8 {
		pct = 0.8
	}
	return pct
}

func confidence(opp ArbitrageOpportunity, prefs UserPreferences) float64 {
	c := 0.5
	if opp.Risk.Compatible(prefs.RiskTolerance) {
		c += 0.2
	}
	if opp.Liquidity.GreaterThan(decimal.NewFromInt(1000000)) {
		c += 0.15
	}
	if opp.ExpectedReturn >= 2 && opp.ExpectedReturn <= 15 {
		c += 0.15
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

func reasoning(opp ArbitrageOpportunity, prefs UserPreferences, amount decimal.Decimal) string {
	pct := amount.Div(prefs.MaxInvestment).Mul(decimal.NewFromInt(100))
	return fmt.Sprintf("Allocating %s%% ($%s) to %s arbitrage between %s and %s. Expected return: %.2f%%, risk level: %s, aligns with user's %s risk tolerance.",
		pct.StringFixed(1),
		amount.StringFixed(0),
		opp.AssetPair,
		opp.ProtocolA,
		opp.ProtocolB,
		opp.ExpectedReturn,
		opp.Risk,
		prefs.RiskTolerance,
	)
}

func (a *MatchingAgent) announceRecommendation(ctx context.Context, rec AllocationRecommendation, schema PreferenceSchema) {
	summary := fmt.Sprintf("New allocation recommendation for user %s: %s", schema.UserID, rec.Reasoning)
	content := composeOrFallback(ctx, a.text, string(AgentMatching), summary, string(MessageInfo), summary)

	msg := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentMatching,
		Content:     content,
		MessageType: MessageInfo,
		Timestamp:   a.clock(),
		Data:        rec,
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &msg})
}

// UserRecommendations returns the stored list for a user, empty if none.
func (a *MatchingAgent) UserRecommendations(userID string) []AllocationRecommendation {
	a.mu.Lock()
	defer a.mu.Unlock()
	recs := a.recommendations[userID]
	out := make([]AllocationRecommendation, len(recs))
	copy(out, recs)
	return out
}

// KnownUsers returns the user ids with a stored preference schema.
func (a *MatchingAgent) KnownUsers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.preferences))
	for id := range a.preferences {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HandleMessage replies to any inbound message with a generic response.
func (a *MatchingAgent) HandleMessage(ctx context.Context, msg AgentMessage) {
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	fallback := "Request received. Allocation models will be re-run against the next opportunity set."
	content := composeOrFallback(ctx, a.text, string(AgentMatching),
		"Processing request: "+msg.Content, string(MessageResponse), fallback)

	reply := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentMatching,
		RecipientID: msg.AgentID,
		Content:     content,
		MessageType: MessageResponse,
		Timestamp:   a.clock(),
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &reply})
}
