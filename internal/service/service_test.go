package service

import (
	"context"
	"strings"
	"sync"

	"gorm.io/gorm"

	"arbadvisor/internal/models"
	"arbadvisor/internal/repository"
)

// stubRepo is an in-memory repository. Transactions are flat: fn runs against
// the same maps, serialized by txMu the way row locks serialize the real
// store.
type stubRepo struct {
	mu           sync.Mutex
	txMu         sync.Mutex
	users        map[string]*models.User
	strategies   map[string]*models.Strategy
	transactions []models.WalletTransaction
	nextID       uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:      map[string]*models.User{},
		strategies: map[string]*models.Strategy{},
		nextID:     1,
	}
}

func (r *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(nil)
}

func (r *stubRepo) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[strings.TrimSpace(externalID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *stubRepo) GetUserByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.User, error) {
	return r.GetUserByExternalID(ctx, externalID)
}

func (r *stubRepo) UpsertUser(ctx context.Context, item *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[item.ExternalID]; ok {
		item.ID = existing.ID
	} else {
		item.ID = r.nextID
		r.nextID++
	}
	cp := *item
	r.users[item.ExternalID] = &cp
	return nil
}

func (r *stubRepo) SaveUserTx(ctx context.Context, tx *gorm.DB, item *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.users[item.ExternalID] = &cp
	return nil
}

func (r *stubRepo) SaveUserPreferences(ctx context.Context, externalID string, preferences []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[strings.TrimSpace(externalID)]; ok {
		u.Preferences = preferences
	}
	return nil
}

func (r *stubRepo) InsertTransactionTx(ctx context.Context, tx *gorm.DB, item *models.WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.ID = r.nextID
	r.nextID++
	r.transactions = append(r.transactions, *item)
	return nil
}

func (r *stubRepo) ListTransactions(ctx context.Context, params repository.ListTransactionsParams) ([]models.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WalletTransaction
	for _, tx := range r.transactions {
		if params.UserID != 0 && tx.UserID != params.UserID {
			continue
		}
		if params.Type != "" && tx.Type != params.Type {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r *stubRepo) GetStrategyByExternalID(ctx context.Context, externalID string) (*models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.strategies[strings.TrimSpace(externalID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *stubRepo) GetStrategyByExternalIDTx(ctx context.Context, tx *gorm.DB, externalID string) (*models.Strategy, error) {
	return r.GetStrategyByExternalID(ctx, externalID)
}

func (r *stubRepo) UpsertStrategy(ctx context.Context, item *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.strategies[item.ExternalID]; ok {
		item.ID = existing.ID
		item.FundedAmount = existing.FundedAmount
	} else {
		item.ID = r.nextID
		r.nextID++
	}
	cp := *item
	r.strategies[item.ExternalID] = &cp
	return nil
}

func (r *stubRepo) SaveStrategyTx(ctx context.Context, tx *gorm.DB, item *models.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.strategies[item.ExternalID] = &cp
	return nil
}

func (r *stubRepo) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Strategy
	for _, st := range r.strategies {
		if params.UserID != 0 && st.UserID != params.UserID {
			continue
		}
		if params.EnabledOnly && !st.Enabled {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

func (r *stubRepo) SetStrategyEnabled(ctx context.Context, externalID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.strategies[strings.TrimSpace(externalID)]; ok {
		st.Enabled = enabled
	}
	return nil
}
