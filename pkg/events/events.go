// Package events publishes the structured records the engine emits for
// off-system consumption (analytics, notifications). Emission is an output
// contract of an already-committed operation, never a side effect that needs
// rollback on failure.
package events

import (
	"encoding/json"
	"time"
)

const (
	TaskRewardsIssued   = "loyalty:rewards_issued"
	TaskRewardsRedeemed = "loyalty:rewards_redeemed"
	TaskTierUpgraded    = "loyalty:tier_upgraded"
	TaskVoucherUsed     = "loyalty:voucher_used"
	TaskReconcileSweep  = "loyalty:reconcile_issuances"
	QueueLoyalty        = "loyalty"
)

// RewardsIssued is the full computation breakdown of one issuance.
type RewardsIssued struct {
	MerchantID     string    `json:"merchant_id"`
	CustomerID     string    `json:"customer_id"`
	PurchaseAmount uint64    `json:"purchase_amount"`
	BaseReward     uint64    `json:"base_reward"`
	TierMultiplier uint64    `json:"tier_multiplier"`
	RuleMultiplier uint64    `json:"rule_multiplier"`
	RuleApplied    bool      `json:"rule_applied"`
	RuleName       string    `json:"rule_name,omitempty"`
	FinalReward    uint64    `json:"final_reward"`
	PlatformFee    uint64    `json:"platform_fee"`
	CustomerTier   string    `json:"customer_tier"`
	Timestamp      time.Time `json:"timestamp"`
}

type RewardsRedeemed struct {
	CustomerID     string    `json:"customer_id"`
	MerchantID     string    `json:"merchant_id"`
	OfferID        string    `json:"offer_id"`
	OfferName      string    `json:"offer_name"`
	Amount         uint64    `json:"amount"`
	VoucherID      string    `json:"voucher_id"`
	RedemptionCode string    `json:"redemption_code"`
	Timestamp      time.Time `json:"timestamp"`
}

type TierUpgraded struct {
	CustomerID  string    `json:"customer_id"`
	OldTier     string    `json:"old_tier"`
	NewTier     string    `json:"new_tier"`
	TotalEarned uint64    `json:"total_earned"`
	Timestamp   time.Time `json:"timestamp"`
}

type VoucherUsed struct {
	VoucherID      string    `json:"voucher_id"`
	CustomerID     string    `json:"customer_id"`
	MerchantID     string    `json:"merchant_id"`
	OfferName      string    `json:"offer_name"`
	RedemptionCode string    `json:"redemption_code"`
	Timestamp      time.Time `json:"timestamp"`
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
