package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Strategy is a user-authored arbitrage strategy: risk profile, enabled
// arbitrage types, chain and token filters, all kept as documents.
type Strategy struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ExternalID string `gorm:"type:varchar(100);uniqueIndex;not null"`
	UserID     uint64 `gorm:"not null;index"`
	User       User

	Name        string `gorm:"type:varchar(100);not null"`
	Description string `gorm:"type:text"`

	Enabled      bool            `gorm:"default:true;index"`
	FundedAmount decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	RiskProfile     datatypes.JSON `gorm:"type:jsonb;not null"`
	ArbitrageTypes  datatypes.JSON `gorm:"type:jsonb"`
	ChainPrefs      datatypes.JSON `gorm:"type:jsonb"`
	TokenFilters    datatypes.JSON `gorm:"type:jsonb"`
	ExecutionParams datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
