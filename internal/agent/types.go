package agent

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the ordinal risk classification shared by user tolerance and
// opportunity risk tiers. Comparison uses Rank: low < medium < high.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// Compatible reports whether an opportunity of this risk tier may be shown to
// a user with the given tolerance. A user never receives an opportunity
// riskier than their stated tolerance.
func (r RiskLevel) Compatible(tolerance RiskLevel) bool {
	return r.Rank() <= tolerance.Rank()
}

type TimeHorizon string

const (
	HorizonShort  TimeHorizon = "short"
	HorizonMedium TimeHorizon = "medium"
	HorizonLong   TimeHorizon = "long"
)

type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusActive     AgentStatus = "active"
	StatusProcessing AgentStatus = "processing"
)

type OpportunityType string

const (
	OppDexArbitrage     OpportunityType = "dex-arbitrage"
	OppCrossChain       OpportunityType = "cross-chain"
	OppLendingBorrowing OpportunityType = "lending-borrowing"
	OppStakingRewards   OpportunityType = "staking-rewards"
)

type OpportunityStatus string

const (
	OppActive    OpportunityStatus = "active"
	OppExecuting OpportunityStatus = "executing"
	OppCompleted OpportunityStatus = "completed"
	OppExpired   OpportunityStatus = "expired"
)

// UserPreferences is the structured form of a user's stated intent. Immutable
// once embedded in a PreferenceSchema.
type UserPreferences struct {
	RiskTolerance     RiskLevel       `json:"risk_tolerance"`
	MaxInvestment     decimal.Decimal `json:"max_investment"`
	PreferredAssets   []string        `json:"preferred_assets"`
	TimeHorizon       TimeHorizon     `json:"time_horizon"`
	MinReturnRate     float64         `json:"min_return_rate"`
	ExcludedProtocols []string        `json:"excluded_protocols,omitempty"`
}

// Constraints are derived from preferences, never stated by the user directly.
type Constraints struct {
	MaxSlippagePct float64         `json:"max_slippage_pct"`
	MinLiquidity   decimal.Decimal `json:"min_liquidity"`
	GasLimit       int64           `json:"gas_limit"`
}

type PreferenceSchema struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Preferences UserPreferences `json:"preferences"`
	Constraints Constraints     `json:"constraints"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type ArbitrageOpportunity struct {
	ID              string            `json:"id"`
	Type            OpportunityType   `json:"type"`
	AssetPair       string            `json:"asset_pair"`
	ProtocolA       string            `json:"protocol_a"`
	ProtocolB       string            `json:"protocol_b"`
	PriceA          decimal.Decimal   `json:"price_a"`
	PriceB          decimal.Decimal   `json:"price_b"`
	ExpectedReturn  float64           `json:"expected_return_pct"`
	RequiredCapital decimal.Decimal   `json:"required_capital"`
	GasEstimate     int64             `json:"gas_estimate"`
	Risk            RiskLevel         `json:"risk"`
	Liquidity       decimal.Decimal   `json:"liquidity"`
	TimeDecay       time.Duration     `json:"time_decay"`
	DetectedAt      time.Time         `json:"detected_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	Status          OpportunityStatus `json:"status"`
}

// Expired reports whether the validity window has passed at the given instant.
func (o ArbitrageOpportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

type AllocationRecommendation struct {
	OpportunityID   string          `json:"opportunity_id"`
	UserID          string          `json:"user_id"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	Confidence      float64         `json:"confidence"`
	Reasoning       string          `json:"reasoning"`
	CreatedAt       time.Time       `json:"created_at"`
}

type AgentType string

const (
	AgentPreference AgentType = "preference"
	AgentArbitrage  AgentType = "arbitrage"
	AgentMatching   AgentType = "matching"
)

type MessageType string

const (
	MessageInfo     MessageType = "info"
	MessageRequest  MessageType = "request"
	MessageResponse MessageType = "response"
	MessageAlert    MessageType = "alert"
)

// AgentMessage is an append-only log entry; never mutated after creation.
// An empty RecipientID means broadcast: the message is recorded but not routed.
type AgentMessage struct {
	ID          string      `json:"id"`
	AgentID     string      `json:"agent_id"`
	AgentType   AgentType   `json:"agent_type"`
	RecipientID string      `json:"recipient_id,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	Timestamp   time.Time   `json:"timestamp"`
	Data        any         `json:"data,omitempty"`
}

type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

type SystemLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Agent is the capability surface the orchestrator depends on. Concrete agent
// types stay substitutable behind it.
type Agent interface {
	ID() string
	Name() string
	Status() AgentStatus
	LastActivity() time.Time
	HandleMessage(ctx context.Context, msg AgentMessage)
}
