package program

import (
	"time"
)

const (
	MaxNameLen = 32

	// DefaultInterestRate is expressed in basis points (500 = 5% APY).
	// The accrual job itself is out of scope; the rate is stored and
	// validated only.
	DefaultInterestRate int16 = 500
)

// Program is the tenant root. Running totals are mutated by every issuance
// and redemption under the same transaction as the records that feed them.
type Program struct {
	ID                  string    `gorm:"column:program_id;primaryKey"`
	AuthorityID         string    `gorm:"column:authority_id;uniqueIndex;not null"`
	MintID              string    `gorm:"column:mint_id;not null"`
	TreasuryID          string    `gorm:"column:treasury_id;not null"`
	Name                string    `gorm:"column:name;not null"`
	InterestRate        int16     `gorm:"column:interest_rate;not null"`
	TotalMerchants      uint64    `gorm:"column:total_merchants;not null;default:0"`
	TotalCustomers      uint64    `gorm:"column:total_customers;not null;default:0"`
	TotalTokensIssued   uint64    `gorm:"column:total_tokens_issued;not null;default:0"`
	TotalTokensRedeemed uint64    `gorm:"column:total_tokens_redeemed;not null;default:0"`
	TotalFeesCollected  uint64    `gorm:"column:total_fees_collected;not null;default:0"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Program) TableName() string { return "programs" }
