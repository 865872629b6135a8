package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testOpportunity(id string, risk RiskLevel, ret float64, capital int64) ArbitrageOpportunity {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return ArbitrageOpportunity{
		ID:              id,
		Type:            OppDexArbitrage,
		AssetPair:       "ETH/USDC",
		ProtocolA:       "Uniswap V3",
		ProtocolB:       "SushiSwap",
		PriceA:          decimal.NewFromInt(3000),
		PriceB:          decimal.NewFromFloat(3000 * (1 + ret/100)),
		ExpectedReturn:  ret,
		RequiredCapital: decimal.NewFromInt(capital),
		GasEstimate:     120000,
		Risk:            risk,
		Liquidity:       decimal.NewFromInt(2000000),
		TimeDecay:       10 * time.Minute,
		DetectedAt:      now,
		ExpiresAt:       now.Add(20 * time.Minute),
		Status:          OppActive,
	}
}

func testSchema(userID string, risk RiskLevel, budget int64) PreferenceSchema {
	prefs := UserPreferences{
		RiskTolerance:   risk,
		MaxInvestment:   decimal.NewFromInt(budget),
		PreferredAssets: []string{"eth", "usdc"},
		TimeHorizon:     HorizonMedium,
		MinReturnRate:   1.0,
	}
	return PreferenceSchema{
		ID:          "pref-" + userID,
		UserID:      userID,
		Preferences: prefs,
		Constraints: DeriveConstraints(prefs),
		GeneratedAt: time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
	}
}

func TestFilterOpportunities(t *testing.T) {
	prefs := UserPreferences{
		RiskTolerance:     RiskMedium,
		MaxInvestment:     decimal.NewFromInt(10000),
		PreferredAssets:   []string{"eth"},
		MinReturnRate:     1.0,
		ExcludedProtocols: []string{"Curve"},
	}

	keep := testOpportunity("keep", RiskLow, 2.0, 5000)
	tooRisky := testOpportunity("risky", RiskHigh, 2.0, 5000)
	tooExpensive := testOpportunity("expensive", RiskLow, 2.0, 50000)
	tooSmallReturn := testOpportunity("small", RiskLow, 0.5, 5000)
	wrongAsset := testOpportunity("asset", RiskLow, 2.0, 5000)
	wrongAsset.AssetPair = "ARB/USDT"
	excluded := testOpportunity("excluded", RiskLow, 2.0, 5000)
	excluded.ProtocolB = "Curve"

	got := FilterOpportunities([]ArbitrageOpportunity{
		keep, tooRisky, tooExpensive, tooSmallReturn, wrongAsset, excluded,
	}, prefs)
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("filtered = %v, want only keep", got)
	}

	// Raising tolerance admits the riskier opportunity and nothing else.
	prefs.RiskTolerance = RiskHigh
	got = FilterOpportunities([]ArbitrageOpportunity{keep, tooRisky, excluded}, prefs)
	if len(got) != 2 {
		t.Fatalf("filtered with high tolerance = %d, want 2", len(got))
	}
}

func TestScoreOpportunityWeights(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	prefs := UserPreferences{RiskTolerance: RiskHigh}

	opp := testOpportunity("score", RiskLow, 10, 5000)
	opp.Liquidity = decimal.NewFromInt(1000000)
	opp.ExpiresAt = now.Add(30 * time.Minute)

	// 40 (return) + 30 (risk fit) + 20 (liquidity) + 10 (time) = 100
	if got := scoreOpportunity(opp, prefs, now); got != 100 {
		t.Fatalf("score = %v, want 100", got)
	}

	opp.Liquidity = decimal.NewFromInt(500000)
	opp.ExpiresAt = now.Add(15 * time.Minute)
	if got := scoreOpportunity(opp, prefs, now); got != 85 {
		t.Fatalf("score = %v, want 85", got)
	}
}

func TestConfidenceIsCapped(t *testing.T) {
	prefs := UserPreferences{RiskTolerance: RiskHigh}
	opp := testOpportunity("conf", RiskLow, 3.0, 5000)
	opp.Liquidity = decimal.NewFromInt(2000000)

	if got := confidence(opp, prefs); got != 1.0 {
		t.Fatalf("confidence = %v, want capped 1.0", got)
	}

	opp.Risk = RiskHigh
	prefs.RiskTolerance = RiskLow
	opp.Liquidity = decimal.NewFromInt(100)
	opp.ExpectedReturn = 0.5
	if got := confidence(opp, prefs); got != 0.5 {
		t.Fatalf("confidence = %v, want baseline 0.5", got)
	}
}

func TestAnalyzeOpportunitiesAllocationBounds(t *testing.T) {
	events := &captureEmitter{}
	a := NewMatchingAgent(nil, events, nil).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	budget := int64(10000)
	a.AddPreferences(testSchema("user-1", RiskMedium, budget))

	opps := []ArbitrageOpportunity{
		testOpportunity("a", RiskLow, 2.0, 4000),
		testOpportunity("b", RiskMedium, 1.8, 6000),
		testOpportunity("c", RiskLow, 1.2, 3000),
		testOpportunity("d", RiskMedium, 2.5, 8000),
	}
	recs := a.AnalyzeOpportunities(context.Background(), opps)
	if len(recs) == 0 {
		t.Fatalf("no recommendations produced")
	}
	if len(recs) > 3 {
		t.Fatalf("recommendations = %d, want at most 3", len(recs))
	}

	byID := map[string]ArbitrageOpportunity{}
	for _, o := range opps {
		byID[o.ID] = o
	}
	total := decimal.Zero
	for _, rec := range recs {
		if rec.UserID != "user-1" {
			t.Fatalf("user id = %s", rec.UserID)
		}
		if rec.AllocatedAmount.LessThan(decimal.NewFromInt(100)) {
			t.Fatalf("allocation %s below $100 floor", rec.AllocatedAmount)
		}
		if rec.AllocatedAmount.GreaterThan(byID[rec.OpportunityID].RequiredCapital) {
			t.Fatalf("allocation %s above required capital %s",
				rec.AllocatedAmount, byID[rec.OpportunityID].RequiredCapital)
		}
		if rec.Confidence < 0.5 || rec.Confidence > 1.0 {
			t.Fatalf("confidence %v outside 0.5..1.0", rec.Confidence)
		}
		if !strings.Contains(rec.Reasoning, "ETH/USDC") ||
			!strings.Contains(rec.Reasoning, "risk tolerance") {
			t.Fatalf("reasoning missing detail: %q", rec.Reasoning)
		}
		total = total.Add(rec.AllocatedAmount)
	}
	if total.GreaterThan(decimal.NewFromInt(budget)) {
		t.Fatalf("total allocation %s exceeds budget %d", total, budget)
	}

	if got := events.byKind(EventRecommendation); len(got) != len(recs) {
		t.Fatalf("recommendation events = %d, want %d", len(got), len(recs))
	}
	if a.Status() != StatusIdle {
		t.Fatalf("status = %s, want idle", a.Status())
	}
}

func TestAnalyzeOpportunitiesReplacesPreviousRecommendations(t *testing.T) {
	a := NewMatchingAgent(nil, &captureEmitter{}, nil).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	a.AddPreferences(testSchema("user-1", RiskHigh, 20000))

	first := a.AnalyzeOpportunities(context.Background(), []ArbitrageOpportunity{
		testOpportunity("first", RiskLow, 2.0, 5000),
	})
	if len(first) != 1 || first[0].OpportunityID != "first" {
		t.Fatalf("first pass = %v", first)
	}

	second := a.AnalyzeOpportunities(context.Background(), []ArbitrageOpportunity{
		testOpportunity("second", RiskLow, 2.0, 5000),
	})
	if len(second) != 1 || second[0].OpportunityID != "second" {
		t.Fatalf("second pass = %v", second)
	}

	stored := a.UserRecommendations("user-1")
	if len(stored) != 1 || stored[0].OpportunityID != "second" {
		t.Fatalf("stored = %v, want replaced by second", stored)
	}
}

func TestAnalyzeOpportunitiesSkipsSubFloorWithoutConsumingBudget(t *testing.T) {
	a := NewMatchingAgent(nil, &captureEmitter{}, nil).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	// Budget small enough that the cheap opportunity's slice lands under
	// $100; the later candidate must still get its full share.
	a.AddPreferences(testSchema("user-1", RiskLow, 400))

	tiny := testOpportunity("tiny", RiskLow, 12.0, 50)
	tiny.Liquidity = decimal.NewFromInt(5000000) // scores first
	solid := testOpportunity("solid", RiskLow, 2.0, 300)

	recs := a.AnalyzeOpportunities(context.Background(), []ArbitrageOpportunity{tiny, solid})
	if len(recs) != 1 {
		t.Fatalf("recommendations = %d, want 1", len(recs))
	}
	for _, rec := range recs {
		if rec.OpportunityID == "tiny" {
			t.Fatalf("sub-floor opportunity allocated: %+v", rec)
		}
		if rec.OpportunityID == "solid" && rec.AllocatedAmount.LessThan(decimal.NewFromInt(100)) {
			t.Fatalf("skipped candidate consumed budget: %+v", rec)
		}
	}
}

func TestAnalyzeOpportunitiesDeterministicUserOrder(t *testing.T) {
	events := &captureEmitter{}
	a := NewMatchingAgent(nil, events, nil).
		WithClock(fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	for i := 3; i >= 1; i-- {
		a.AddPreferences(testSchema(fmt.Sprintf("user-%d", i), RiskMedium, 10000))
	}
	recs := a.AnalyzeOpportunities(context.Background(), []ArbitrageOpportunity{
		testOpportunity("only", RiskLow, 2.0, 5000),
	})
	if len(recs) != 3 {
		t.Fatalf("recommendations = %d, want one per user", len(recs))
	}
	for i, rec := range recs {
		want := fmt.Sprintf("user-%d", i+1)
		if rec.UserID != want {
			t.Fatalf("rec %d user = %s, want %s", i, rec.UserID, want)
		}
	}
}

func TestMatchingHandleMessageAcknowledges(t *testing.T) {
	events := &captureEmitter{}
	a := NewMatchingAgent(nil, events, nil)

	a.HandleMessage(context.Background(), AgentMessage{
		AgentID:     "arb-agent-001",
		AgentType:   AgentArbitrage,
		MessageType: MessageInfo,
		Content:     "found opportunities",
	})
	replies := events.byKind(EventAgentMessage)
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if replies[0].Message.RecipientID != "arb-agent-001" {
		t.Fatalf("reply recipient = %s", replies[0].Message.RecipientID)
	}
}
