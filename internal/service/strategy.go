package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"arbadvisor/internal/agent"
	"arbadvisor/internal/llm"
	"arbadvisor/internal/models"
	"arbadvisor/internal/repository"
)

var ErrStrategyNotFound = errors.New("strategy not found")

// StrategyNarrator is the optional text collaborator for execution logs and
// natural-language strategy editing. Satisfied by llm.Client.
type StrategyNarrator interface {
	ExecutionLogs(ctx context.Context, opportunityJSON, strategyName string) (string, error)
	GenerateStrategy(ctx context.Context, currentStrategyJSON, prompt string) (string, error)
}

type StrategyService struct {
	Repo     repository.Repository
	Narrator StrategyNarrator
	Logger   *zap.Logger

	rng *rand.Rand
}

func NewStrategyService(repo repository.Repository, narrator StrategyNarrator, logger *zap.Logger) *StrategyService {
	return &StrategyService{
		Repo:     repo,
		Narrator: narrator,
		Logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the randomness source. Test hook.
func (s *StrategyService) WithRand(rng *rand.Rand) *StrategyService {
	s.rng = rng
	return s
}

type StrategyInput struct {
	ExternalID      string          `json:"strategy_id"`
	Name            string          `json:"strategy_name"`
	Description     string          `json:"description"`
	RiskProfile     json.RawMessage `json:"risk_profile"`
	ArbitrageTypes  json.RawMessage `json:"arbitrage_types"`
	ChainPrefs      json.RawMessage `json:"chain_preferences"`
	TokenFilters    json.RawMessage `json:"token_filters"`
	ExecutionParams json.RawMessage `json:"execution_parameters"`
}

func (s *StrategyService) List(ctx context.Context, userExternalID string) ([]models.Strategy, error) {
	user, err := s.Repo.GetUserByExternalID(ctx, userExternalID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListStrategies(ctx, repository.ListStrategiesParams{UserID: user.ID})
}

func (s *StrategyService) Save(ctx context.Context, userExternalID string, input StrategyInput) (*models.Strategy, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("strategy name is required")
	}
	user, err := s.Repo.GetUserByExternalID(ctx, userExternalID)
	if err != nil {
		return nil, err
	}
	externalID := strings.TrimSpace(input.ExternalID)
	if externalID == "" {
		externalID = "strat-" + uuid.NewString()
	}
	item := &models.Strategy{
		ExternalID:      externalID,
		UserID:          user.ID,
		Name:            input.Name,
		Description:     input.Description,
		Enabled:         true,
		RiskProfile:     jsonOrEmpty(input.RiskProfile),
		ArbitrageTypes:  jsonOrEmpty(input.ArbitrageTypes),
		ChainPrefs:      jsonOrEmpty(input.ChainPrefs),
		TokenFilters:    jsonOrEmpty(input.TokenFilters),
		ExecutionParams: jsonOrEmpty(input.ExecutionParams),
	}
	if err := s.Repo.UpsertStrategy(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func jsonOrEmpty(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

// Fund moves USDC from the user's wallet into a strategy. Balance check,
// deduction, strategy credit and the ledger entry commit atomically.
func (s *StrategyService) Fund(ctx context.Context, userExternalID, strategyExternalID string, amount decimal.Decimal) (*models.Strategy, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	// Reads, the balance check and both writes share one transaction with
	// row-locked reads, so racing fund calls serialize on the user row.
	var strategy *models.Strategy
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		user, err := s.Repo.GetUserByExternalIDTx(ctx, tx, userExternalID)
		if err != nil {
			return err
		}
		strategy, err = s.Repo.GetStrategyByExternalIDTx(ctx, tx, strategyExternalID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrStrategyNotFound
			}
			return err
		}
		if user.USDCBalance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		user.USDCBalance = user.USDCBalance.Sub(amount)
		strategy.FundedAmount = strategy.FundedAmount.Add(amount)
		if err := s.Repo.SaveUserTx(ctx, tx, user); err != nil {
			return err
		}
		if err := s.Repo.SaveStrategyTx(ctx, tx, strategy); err != nil {
			return err
		}
		return s.Repo.InsertTransactionTx(ctx, tx, &models.WalletTransaction{
			UserID:       user.ID,
			Type:         models.TxStrategyFund,
			Amount:       amount,
			BalanceAfter: user.USDCBalance,
			StrategyID:   &strategy.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("strategy funded",
			zap.String("strategy", strategyExternalID),
			zap.String("amount", amount.String()))
	}
	return strategy, nil
}

func (s *StrategyService) SetEnabled(ctx context.Context, strategyExternalID string, enabled bool) error {
	return s.Repo.SetStrategyEnabled(ctx, strategyExternalID, enabled)
}

// Generate rewrites a strategy document per a natural-language request. The
// collaborator's answer must parse as a JSON object or the call fails; there
// is no heuristic fallback for strategy editing.
func (s *StrategyService) Generate(ctx context.Context, currentStrategyJSON json.RawMessage, prompt string) (json.RawMessage, error) {
	if s.Narrator == nil {
		return nil, errors.New("strategy generation requires the text service")
	}
	raw, err := s.Narrator.GenerateStrategy(ctx, string(currentStrategyJSON), prompt)
	if err != nil {
		return nil, err
	}
	cleaned := stripCodeFence(raw)
	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("strategy generation returned invalid JSON: %w", err)
	}
	return json.RawMessage(cleaned), nil
}

type ExecutionResult struct {
	Logs                string          `json:"logs"`
	SelectedStrategy    string          `json:"selected_strategy,omitempty"`
	SelectedOpportunity string          `json:"selected_opportunity,omitempty"`
	ExecutionTime       int64           `json:"execution_time_ms"`
	ProfitPercent       float64         `json:"profit_percent"`
	AllocatedAmount     decimal.Decimal `json:"allocated_amount"`
}

// ExecuteDemo simulates running one funded strategy against one live
// opportunity. Everything is advisory output; no balances change.
func (s *StrategyService) ExecuteDemo(ctx context.Context, userExternalID string, opportunities []agent.ArbitrageOpportunity) (*ExecutionResult, error) {
	strategies, err := s.List(ctx, userExternalID)
	if err != nil {
		return nil, err
	}

	var funded []models.Strategy
	for _, st := range strategies {
		if st.Enabled && st.FundedAmount.IsPositive() {
			funded = append(funded, st)
		}
	}
	if len(funded) == 0 || len(opportunities) == 0 {
		return &ExecutionResult{Logs: "No funded strategies or live opportunities available"}, nil
	}

	strategy := funded[s.rng.Intn(len(funded))]
	opp := opportunities[s.rng.Intn(len(opportunities))]

	// 10% of strategy funds per run, never above the opportunity's capacity.
	allocated := strategy.FundedAmount.Mul(decimal.NewFromFloat(0.1))
	if allocated.GreaterThan(opp.RequiredCapital) {
		allocated = opp.RequiredCapital
	}

	logs := s.executionLogs(ctx, opp, strategy)
	return &ExecutionResult{
		Logs:                logs,
		SelectedStrategy:    strategy.ExternalID,
		SelectedOpportunity: opp.ID,
		ExecutionTime:       int64(opp.TimeDecay / time.Millisecond),
		ProfitPercent:       opp.ExpectedReturn,
		AllocatedAmount:     allocated.Round(2),
	}, nil
}

func (s *StrategyService) executionLogs(ctx context.Context, opp agent.ArbitrageOpportunity, strategy models.Strategy) string {
	fallback := fmt.Sprintf(
		"[exec] validating opportunity %s (%s via %s -> %s)\n[exec] expected return %.2f%%, risk %s\n[exec] executing with strategy %q\n[exec] simulation complete",
		opp.ID, opp.AssetPair, opp.ProtocolA, opp.ProtocolB, opp.ExpectedReturn, opp.Risk, strategy.Name)
	if s.Narrator == nil {
		return fallback
	}
	oppJSON, err := json.Marshal(opp)
	if err != nil {
		return fallback
	}
	logs, err := s.Narrator.ExecutionLogs(ctx, string(oppJSON), strategy.Name)
	if err != nil || strings.TrimSpace(logs) == "" {
		var se *llm.ServiceError
		if err != nil && !errors.As(err, &se) && s.Logger != nil {
			s.Logger.Warn("execution log generation failed", zap.Error(err))
		}
		return fallback
	}
	return stripCodeFence(logs)
}

func stripCodeFence(raw string) string {
	out := strings.TrimSpace(raw)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}
