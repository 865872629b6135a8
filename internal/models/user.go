package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User holds demo account state: wallet balance and the latest structured
// preference schema produced by the preference agent.
type User struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ExternalID  string `gorm:"type:varchar(100);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(100)"`

	WalletAddress string          `gorm:"type:varchar(42)"`
	USDCBalance   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	Preferences datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
