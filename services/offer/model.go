package offer

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MaxNameLen        = 64
	MaxDescriptionLen = 256
	MaxIconLen        = 32
)

type Kind string

const (
	KindDiscount        Kind = "discount"
	KindFreeProduct     Kind = "free_product"
	KindCashback        Kind = "cashback"
	KindExclusiveAccess Kind = "exclusive_access"
	KindCustom          Kind = "custom"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDiscount, KindFreeProduct, KindCashback, KindExclusiveAccess, KindCustom:
		return true
	}
	return false
}

// RedemptionOffer is something a customer can spend points on. A nil
// QuantityLimit means unlimited supply; a nil Expiration means the offer
// never expires.
type RedemptionOffer struct {
	ID              string         `gorm:"column:offer_id;primaryKey"`
	MerchantID      string         `gorm:"column:merchant_id;index;not null"`
	Name            string         `gorm:"column:name;not null"`
	Description     string         `gorm:"column:description"`
	Icon            string         `gorm:"column:icon"`
	Cost            uint64         `gorm:"column:cost;not null"`
	Kind            Kind           `gorm:"column:kind;not null"`
	Payload         datatypes.JSON `gorm:"column:payload"`
	QuantityLimit   *uint64        `gorm:"column:quantity_limit"`
	QuantityClaimed uint64         `gorm:"column:quantity_claimed;not null;default:0"`
	Expiration      *time.Time     `gorm:"column:expiration"`
	IsActive        bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (RedemptionOffer) TableName() string { return "redemption_offers" }

// IsAvailable reports whether the offer can be redeemed at now: it must be
// active, unexpired and have remaining supply.
func (o *RedemptionOffer) IsAvailable(now time.Time) bool {
	if !o.IsActive {
		return false
	}
	if o.Expiration != nil && !now.Before(*o.Expiration) {
		return false
	}
	if o.QuantityLimit != nil && o.QuantityClaimed >= *o.QuantityLimit {
		return false
	}
	return true
}
