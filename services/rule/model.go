package rule

import (
	"time"
)

const (
	MaxNameLen = 32

	// NeutralMultiplier leaves the tier-adjusted amount unchanged.
	NeutralMultiplier uint64 = 100
)

type Kind string

const (
	KindBase            Kind = "base"
	KindBonusMultiplier Kind = "bonus_multiplier"
	KindFirstPurchase   Kind = "first_purchase"
	KindReferral        Kind = "referral"
	KindTierBonus       Kind = "tier_bonus"
	KindStreak          Kind = "streak"
)

func (k Kind) Valid() bool {
	switch k {
	case KindBase, KindBonusMultiplier, KindFirstPurchase, KindReferral, KindTierBonus, KindStreak:
		return true
	}
	return false
}

// RewardRule is a merchant-scoped bonus policy. StartTime and EndTime are
// unix seconds; zero means unbounded on that side. Expression, when set,
// is a CEL predicate that must also hold for the rule to apply.
type RewardRule struct {
	ID          string    `gorm:"column:rule_id;primaryKey"`
	MerchantID  string    `gorm:"column:merchant_id;index;not null"`
	Name        string    `gorm:"column:name;not null"`
	Kind        Kind      `gorm:"column:kind;not null"`
	Multiplier  uint64    `gorm:"column:multiplier;not null"`
	MinPurchase uint64    `gorm:"column:min_purchase;not null;default:0"`
	StartTime   int64     `gorm:"column:start_time;not null;default:0"`
	EndTime     int64     `gorm:"column:end_time;not null;default:0"`
	Expression  string    `gorm:"column:expression"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardRule) TableName() string { return "reward_rules" }

// InWindow reports whether the rule's time window covers now.
func (r *RewardRule) InWindow(now time.Time) bool {
	ts := now.Unix()
	if r.StartTime != 0 && ts < r.StartTime {
		return false
	}
	if r.EndTime != 0 && ts >= r.EndTime {
		return false
	}
	return true
}
