package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"arbadvisor/internal/models"
)

var ErrNotFound = errors.New("not found")

type ListTransactionsParams struct {
	UserID uint64
	Type   string
	Limit  int
	Offset int
}

type ListStrategiesParams struct {
	UserID      uint64
	EnabledOnly bool
	Limit       int
	Offset      int
}

// Repository is the persistence surface behind the account, wallet and
// strategy services. The live agent pipeline is entirely in-memory and does
// not touch it.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Users
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	// GetUserByExternalIDTx reads the row inside tx with a row lock, for
	// balance check-then-write sequences.
	GetUserByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.User, error)
	UpsertUser(ctx context.Context, item *models.User) error
	SaveUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error
	SaveUserPreferences(ctx context.Context, externalID string, preferences []byte) error

	// Wallet ledger
	InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.WalletTransaction) error
	ListTransactions(ctx context.Context, params ListTransactionsParams) ([]models.WalletTransaction, error)

	// Strategies
	GetStrategyByExternalID(ctx context.Context, externalID string) (*models.Strategy, error)
	GetStrategyByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Strategy, error)
	UpsertStrategy(ctx context.Context, item *models.Strategy) error
	SaveStrategyTx(ctx context.Context, tx *gorm.DB, item *models.Strategy) error
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	SetStrategyEnabled(ctx context.Context, externalID string, enabled bool) error
}
