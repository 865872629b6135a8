package service

import (
	"context"
	"errors"
	"regexp"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"arbadvisor/internal/models"
	"arbadvisor/internal/repository"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidAddress    = errors.New("invalid ethereum address format")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

var ethAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// WalletService manages the demo USDC wallet. Every balance change goes
// through a transaction that also appends a ledger entry.
type WalletService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func NewWalletService(repo repository.Repository, logger *zap.Logger) *WalletService {
	return &WalletService{Repo: repo, Logger: logger}
}

type WalletResult struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	Amount     decimal.Decimal `json:"amount"`
	ToAddress  string          `json:"to_address,omitempty"`
}

func (s *WalletService) Deposit(ctx context.Context, externalID string, amount decimal.Decimal) (*WalletResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	// Read and write under the same transaction so BalanceAfter is exact
	// even with concurrent wallet calls.
	var user *models.User
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = s.Repo.GetUserByExternalIDTx(ctx, tx, externalID)
		if err != nil {
			return err
		}
		user.USDCBalance = user.USDCBalance.Add(amount)
		if err := s.Repo.SaveUserTx(ctx, tx, user); err != nil {
			return err
		}
		return s.Repo.InsertTransactionTx(ctx, tx, &models.WalletTransaction{
			UserID:       user.ID,
			Type:         models.TxDeposit,
			Amount:       amount,
			BalanceAfter: user.USDCBalance,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("wallet deposit",
			zap.String("user", externalID),
			zap.String("amount", amount.String()),
			zap.String("balance", user.USDCBalance.String()))
	}
	return &WalletResult{NewBalance: user.USDCBalance, Amount: amount}, nil
}

func (s *WalletService) Withdraw(ctx context.Context, externalID, address string, amount decimal.Decimal) (*WalletResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !ethAddressPattern.MatchString(address) {
		return nil, ErrInvalidAddress
	}
	// The balance check runs on the row-locked read; two racing withdrawals
	// cannot both pass it.
	var user *models.User
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = s.Repo.GetUserByExternalIDTx(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if user.USDCBalance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		user.USDCBalance = user.USDCBalance.Sub(amount)
		if err := s.Repo.SaveUserTx(ctx, tx, user); err != nil {
			return err
		}
		return s.Repo.InsertTransactionTx(ctx, tx, &models.WalletTransaction{
			UserID:       user.ID,
			Type:         models.TxWithdraw,
			Amount:       amount,
			BalanceAfter: user.USDCBalance,
			ToAddress:    address,
		})
	})
	if err != nil {
		return nil, err
	}

	// A real deployment would submit an on-chain transfer here.
	if s.Logger != nil {
		s.Logger.Info("wallet withdrawal",
			zap.String("user", externalID),
			zap.String("amount", amount.String()),
			zap.String("to", address))
	}
	return &WalletResult{NewBalance: user.USDCBalance, Amount: amount, ToAddress: address}, nil
}

func (s *WalletService) Balance(ctx context.Context, externalID string) (decimal.Decimal, error) {
	user, err := s.Repo.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.USDCBalance, nil
}

func (s *WalletService) Transactions(ctx context.Context, externalID string, limit int) ([]models.WalletTransaction, error) {
	user, err := s.Repo.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return s.Repo.ListTransactions(ctx, repository.ListTransactionsParams{UserID: user.ID, Limit: limit})
}
