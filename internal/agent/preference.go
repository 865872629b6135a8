package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	preferenceAgentID   = "preference-agent-001"
	preferenceAgentName = "Preference Schema Agent"
)

// assetVocabulary is the fixed set of token symbols the heuristic extractor
// recognizes. Matching is whole-word on purpose: "arbitrage" must not match
// "arb".
var assetVocabulary = []string{"eth", "btc", "usdc", "usdt", "dai", "matic", "arb", "op"}

var defaultAssets = []string{"eth", "usdc"}

var (
	amountPattern = regexp.MustCompile(`\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`)
	// A range like "3-7%" is one token; its first number is the stated minimum.
	returnPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)(?:\s*-\s*\d+(?:\.\d+)?)?%`)
)

// PreferenceAgent turns free-text user input into a structured preference
// schema. The collaborator is tried first; any collaborator failure degrades
// to the deterministic heuristic extractor so the pipeline never blocks.
type PreferenceAgent struct {
	text   TextGenerator
	events Emitter
	logger *zap.Logger

	mu           sync.Mutex
	status       AgentStatus
	lastActivity time.Time
}

func NewPreferenceAgent(text TextGenerator, events Emitter, logger *zap.Logger) *PreferenceAgent {
	return &PreferenceAgent{
		text:         text,
		events:       events,
		logger:       logger,
		status:       StatusIdle,
		lastActivity: nowUTC(),
	}
}

func (a *PreferenceAgent) ID() string   { return preferenceAgentID }
func (a *PreferenceAgent) Name() string { return preferenceAgentName }

func (a *PreferenceAgent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *PreferenceAgent) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

func (a *PreferenceAgent) setStatus(s AgentStatus) {
	a.mu.Lock()
	a.status = s
	a.lastActivity = nowUTC()
	a.mu.Unlock()
}

// ProcessPreferences converts user text into a schema. Collaborator outages
// and malformed AI responses are absorbed by the heuristic path; only a
// structural error propagates.
func (a *PreferenceAgent) ProcessPreferences(ctx context.Context, userInput, userID string) (*PreferenceSchema, error) {
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	prefs, err := a.extractPreferences(ctx, userInput)
	if err != nil {
		return nil, err
	}

	schema := &PreferenceSchema{
		ID:          fmt.Sprintf("pref-%s-%s", uuid.NewString(), userID),
		UserID:      userID,
		Preferences: prefs,
		Constraints: DeriveConstraints(prefs),
		GeneratedAt: nowUTC(),
	}

	a.announceSchema(ctx, schema)
	a.events.Emit(Event{Kind: EventSchemaGenerated, Schema: schema})
	return schema, nil
}

func (a *PreferenceAgent) extractPreferences(ctx context.Context, userInput string) (UserPreferences, error) {
	if a.text == nil {
		return ExtractPreferencesFromText(userInput), nil
	}
	raw, err := a.text.GenerateSchema(ctx, userInput)
	if err != nil {
		if !isServiceFailure(err) {
			return UserPreferences{}, err
		}
		if a.logger != nil {
			a.logger.Warn("schema generation degraded to heuristics", zap.Error(err))
		}
		return ExtractPreferencesFromText(userInput), nil
	}

	var prefs UserPreferences
	if uerr := json.Unmarshal([]byte(raw), &prefs); uerr != nil || !validPreferences(prefs) {
		// Malformed AI JSON is downgraded silently to the heuristic path.
		return ExtractPreferencesFromText(userInput), nil
	}
	return normalizePreferences(prefs), nil
}

func validPreferences(p UserPreferences) bool {
	switch p.RiskTolerance {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return false
	}
	return p.MaxInvestment.IsPositive()
}

func normalizePreferences(p UserPreferences) UserPreferences {
	if len(p.PreferredAssets) == 0 {
		p.PreferredAssets = append([]string{}, defaultAssets...)
	}
	for i, asset := range p.PreferredAssets {
		p.PreferredAssets[i] = strings.ToLower(strings.TrimSpace(asset))
	}
	switch p.TimeHorizon {
	case HorizonShort, HorizonMedium, HorizonLong:
	default:
		p.TimeHorizon = HorizonMedium
	}
	if p.MinReturnRate <= 0 {
		p.MinReturnRate = 5.0
	}
	return p
}

// ExtractPreferencesFromText is the deterministic heuristic extractor used
// whenever the collaborator's response is absent or malformed.
func ExtractPreferencesFromText(text string) UserPreferences {
	lower := strings.ToLower(text)

	risk := RiskMedium
	switch {
	case containsAny(lower, "conservative", "low risk", "safe"):
		risk = RiskLow
	case containsAny(lower, "aggressive", "high risk", "risky"):
		risk = RiskHigh
	}

	maxInvestment := decimal.NewFromInt(1000)
	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "")); err == nil {
			maxInvestment = v
		}
	}

	words := wordSet(lower)
	var assets []string
	for _, asset := range assetVocabulary {
		if _, ok := words[asset]; ok {
			assets = append(assets, asset)
		}
	}
	if len(assets) == 0 {
		assets = append([]string{}, defaultAssets...)
	}

	horizon := HorizonMedium
	switch {
	case containsAny(lower, "short", "quick", "fast"):
		horizon = HorizonShort
	case containsAny(lower, "long", "hold"):
		horizon = HorizonLong
	}

	minReturn := 5.0
	if m := returnPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			minReturn = v
		}
	}

	return UserPreferences{
		RiskTolerance:   risk,
		MaxInvestment:   maxInvestment,
		PreferredAssets: assets,
		TimeHorizon:     horizon,
		MinReturnRate:   minReturn,
	}
}

// DeriveConstraints is a pure function of the preferences.
func DeriveConstraints(p UserPreferences) Constraints {
	multiplier := map[RiskLevel]float64{RiskLow: 0.5, RiskMedium: 1.0, RiskHigh: 2.0}[p.RiskTolerance]
	slippage := 5.0 * multiplier
	if slippage > 10.0 {
		slippage = 10.0
	}
	gasLimit := int64(200000)
	if p.RiskTolerance == RiskHigh {
		gasLimit = 500000
	}
	return Constraints{
		MaxSlippagePct: slippage,
		MinLiquidity:   p.MaxInvestment.Mul(decimal.NewFromInt(2)),
		GasLimit:       gasLimit,
	}
}

func (a *PreferenceAgent) announceSchema(ctx context.Context, schema *PreferenceSchema) {
	summary := fmt.Sprintf("New user preference schema generated: %s risk, %s max investment, preferred assets: %s",
		schema.Preferences.RiskTolerance,
		schema.Preferences.MaxInvestment.StringFixed(0),
		strings.Join(schema.Preferences.PreferredAssets, ", "))
	content := composeOrFallback(ctx, a.text, string(AgentPreference), summary, string(MessageInfo), summary)

	msg := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentPreference,
		Content:     content,
		MessageType: MessageInfo,
		Timestamp:   nowUTC(),
		Data:        schema,
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &msg})
}

// HandleMessage answers preference-clarification requests from the matching
// agent; everything else is ignored.
func (a *PreferenceAgent) HandleMessage(ctx context.Context, msg AgentMessage) {
	if msg.AgentType != AgentMatching || msg.MessageType != MessageRequest {
		return
	}
	a.setStatus(StatusProcessing)
	defer a.setStatus(StatusIdle)

	fallback := "Acknowledged. Current preference schemas remain in effect; no constraint changes to report."
	content := composeOrFallback(ctx, a.text, string(AgentPreference),
		"Responding to matching agent request: "+msg.Content, string(MessageResponse), fallback)

	reply := AgentMessage{
		ID:          newMessageID(),
		AgentID:     a.ID(),
		AgentType:   AgentPreference,
		RecipientID: msg.AgentID,
		Content:     content,
		MessageType: MessageResponse,
		Timestamp:   nowUTC(),
	}
	a.events.Emit(Event{Kind: EventAgentMessage, Message: &reply})
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func wordSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = struct{}{}
	}
	return out
}
