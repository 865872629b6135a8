package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"arbadvisor/internal/models"
	"arbadvisor/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Users ------------------------------------------------------------------

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.User
	err := s.db.WithContext(ctx).Where("external_id = ?", strings.TrimSpace(externalID)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetUserByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.User, error) {
	if tx == nil {
		return nil, repository.ErrNotFound
	}
	var item models.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertUser(ctx context.Context, item *models.User) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "wallet_address", "usdc_balance", "preferences", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) SaveUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) SaveUserPreferences(ctx context.Context, externalID string, preferences []byte) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		Update("preferences", preferences).Error
}

// --- Wallet ledger ----------------------------------------------------------

func (s *Store) InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.WalletTransaction) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.WalletTransaction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.WalletTransaction{})
	if params.UserID != 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if strings.TrimSpace(params.Type) != "" {
		query = query.Where("type = ?", strings.TrimSpace(params.Type))
	}
	limit := normalizeLimit(params.Limit, 100)
	var items []models.WalletTransaction
	if err := query.Order("created_at DESC").Limit(limit).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Strategies -------------------------------------------------------------

func (s *Store) GetStrategyByExternalID(ctx context.Context, externalID string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Where("external_id = ?", strings.TrimSpace(externalID)).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStrategyByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Strategy, error) {
	if tx == nil {
		return nil, repository.ErrNotFound
	}
	var item models.Strategy
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "enabled", "risk_profile", "arbitrage_types",
			"chain_prefs", "token_filters", "execution_params", "updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) SaveStrategyTx(ctx context.Context, tx *gorm.DB, item *models.Strategy) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Save(item).Error
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.UserID != 0 {
		query = query.Where("user_id = ?", params.UserID)
	}
	if params.EnabledOnly {
		query = query.Where("enabled = ?", true)
	}
	limit := normalizeLimit(params.Limit, 100)
	var items []models.Strategy
	if err := query.Order("created_at ASC").Limit(limit).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetStrategyEnabled(ctx context.Context, externalID string, enabled bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("external_id = ?", strings.TrimSpace(externalID)).
		Update("enabled", enabled).Error
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
