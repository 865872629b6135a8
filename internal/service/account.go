package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbadvisor/internal/agent"
	"arbadvisor/internal/models"
	"arbadvisor/internal/repository"
)

// AccountService owns user records. New users get the configured starting
// balance so the demo wallet is usable immediately.
type AccountService struct {
	Repo           repository.Repository
	Logger         *zap.Logger
	InitialBalance decimal.Decimal
}

func NewAccountService(repo repository.Repository, logger *zap.Logger, initialBalance decimal.Decimal) *AccountService {
	return &AccountService{Repo: repo, Logger: logger, InitialBalance: initialBalance}
}

func (s *AccountService) Get(ctx context.Context, externalID string) (*models.User, error) {
	return s.Repo.GetUserByExternalID(ctx, externalID)
}

// Ensure returns the user, creating the record on first sight.
func (s *AccountService) Ensure(ctx context.Context, externalID, displayName string) (*models.User, error) {
	user, err := s.Repo.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user = &models.User{
		ExternalID:  externalID,
		DisplayName: displayName,
		USDCBalance: s.InitialBalance,
	}
	if err := s.Repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("user created",
			zap.String("user", externalID),
			zap.String("initial_balance", s.InitialBalance.String()))
	}
	return user, nil
}

// SavePreferences persists the latest preference schema alongside the user.
func (s *AccountService) SavePreferences(ctx context.Context, externalID string, schema *agent.PreferenceSchema) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return s.Repo.SaveUserPreferences(ctx, externalID, raw)
}
