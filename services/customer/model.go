package customer

import (
	"time"
)

// Customer belongs to one program and is identified by its wallet/holder id.
// Tier is a cache of TierOf(TotalEarned).
type Customer struct {
	ID               string    `gorm:"column:customer_id;primaryKey"`
	WalletID         string    `gorm:"column:wallet_id;index:idx_customer_wallet_program,unique;not null"`
	ProgramID        string    `gorm:"column:program_id;index:idx_customer_wallet_program,unique;not null"`
	TotalEarned      uint64    `gorm:"column:total_earned;not null;default:0"`
	TotalRedeemed    uint64    `gorm:"column:total_redeemed;not null;default:0"`
	Tier             Tier      `gorm:"column:tier;not null;default:'bronze'"`
	TransactionCount uint64    `gorm:"column:transaction_count;not null;default:0"`
	StreakDays       uint16    `gorm:"column:streak_days;not null;default:0"`
	LastActivity     time.Time `gorm:"column:last_activity"`
	JoinedAt         time.Time `gorm:"column:joined_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Customer) TableName() string { return "customers" }
