package redemption

import (
	"time"

	"gorm.io/datatypes"

	"solcity-loyalty/services/offer"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusRevoked Status = "revoked"
)

// Voucher is the customer's proof of a redemption. Merchant and offer fields
// are snapshotted at redemption time so later edits or renames cannot change
// what was bought. IsUsed and UsedAt mirror Status for consumers that only
// care about the binary question.
type Voucher struct {
	ID               string         `gorm:"column:voucher_id;primaryKey"`
	Code             string         `gorm:"column:code;index;not null"`
	OfferID          string         `gorm:"column:offer_id;index;not null"`
	CustomerID       string         `gorm:"column:customer_id;index;not null"`
	MerchantID       string         `gorm:"column:merchant_id;index;not null"`
	MerchantName     string         `gorm:"column:merchant_name;not null"`
	OfferName        string         `gorm:"column:offer_name;not null"`
	OfferDescription string         `gorm:"column:offer_description"`
	OfferKind        offer.Kind     `gorm:"column:offer_kind;not null"`
	Payload          datatypes.JSON `gorm:"column:payload"`
	Cost             uint64         `gorm:"column:cost;not null"`
	Status           Status         `gorm:"column:status;not null;default:'active'"`
	IsUsed           bool           `gorm:"column:is_used;not null;default:false"`
	UsedAt           *time.Time     `gorm:"column:used_at"`
	RedeemedAt       time.Time      `gorm:"column:redeemed_at;not null"`
	ExpiresAt        time.Time      `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Voucher) TableName() string { return "redemption_vouchers" }

// IsExpired reports whether the voucher's validity window has passed.
func (v *Voucher) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// OfferRedemption is the offer-side mirror of a voucher, carrying enough of
// the redemption (merchant, customer, amount) to be audited without joining
// back to the voucher.
type OfferRedemption struct {
	ID         string     `gorm:"column:redemption_id;primaryKey"`
	OfferID    string     `gorm:"column:offer_id;index;not null"`
	MerchantID string     `gorm:"column:merchant_id;index;not null"`
	VoucherID  string     `gorm:"column:voucher_id;uniqueIndex;not null"`
	CustomerID string     `gorm:"column:customer_id;index;not null"`
	Amount     uint64     `gorm:"column:amount;not null"`
	RedeemedAt time.Time  `gorm:"column:redeemed_at;not null"`
	Used       bool       `gorm:"column:used;not null;default:false"`
	UsedAt     *time.Time `gorm:"column:used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (OfferRedemption) TableName() string { return "offer_redemption_records" }
