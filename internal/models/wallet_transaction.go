package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxDeposit      = "deposit"
	TxWithdraw     = "withdraw"
	TxStrategyFund = "strategy_fund"
)

// WalletTransaction is the append-only ledger behind the demo wallet. The
// balance on User is derived state; this table is the record.
type WalletTransaction struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID uint64 `gorm:"not null;index"`
	User   User

	Type         string          `gorm:"type:varchar(20);not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	// ToAddress is set for withdrawals only.
	ToAddress  string  `gorm:"type:varchar(42)"`
	StrategyID *uint64 `gorm:"index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
