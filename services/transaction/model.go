package transaction

import (
	"time"
)

type Type string

const (
	TypeEarn   Type = "earn"
	TypeRedeem Type = "redeem"
)

// Record is one earn or redeem event on a customer's history. Index is the
// customer's transaction ordinal at the time of the event, so the history
// can be replayed in exact order even when timestamps collide.
type Record struct {
	ID         string    `gorm:"column:transaction_id;primaryKey"`
	CustomerID string    `gorm:"column:customer_id;index;not null"`
	MerchantID string    `gorm:"column:merchant_id;index;not null"`
	Type       Type      `gorm:"column:type;not null"`
	Amount     uint64    `gorm:"column:amount;not null"`
	Fee        uint64    `gorm:"column:fee;not null;default:0"`
	Tier       string    `gorm:"column:tier_at_time"`
	Index      uint64    `gorm:"column:seq_index;not null"`
	Reference  string    `gorm:"column:reference"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Record) TableName() string { return "transaction_records" }

// PairRecord aggregates one customer's lifetime relationship with one
// merchant. Created lazily on the first interaction.
type PairRecord struct {
	ID            string    `gorm:"column:pair_id;primaryKey"`
	MerchantID    string    `gorm:"column:merchant_id;index:idx_pair_merchant_customer,unique;not null"`
	CustomerID    string    `gorm:"column:customer_id;index:idx_pair_merchant_customer,unique;not null"`
	TotalEarned   uint64    `gorm:"column:total_earned;not null;default:0"`
	TotalRedeemed uint64    `gorm:"column:total_redeemed;not null;default:0"`
	VisitCount    uint64    `gorm:"column:visit_count;not null;default:0"`
	FirstVisit    time.Time `gorm:"column:first_visit"`
	LastVisit     time.Time `gorm:"column:last_visit"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PairRecord) TableName() string { return "merchant_customer_records" }
