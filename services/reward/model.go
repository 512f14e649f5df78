package reward

import (
	"time"
)

type IssuanceStage string

const (
	// StageFeePending: journal row created, fee transfer not yet confirmed.
	StageFeePending IssuanceStage = "fee_pending"
	// StageMintPending: fee collected, points not yet minted. Rows stuck
	// here are the residue the reconciliation sweep resolves.
	StageMintPending IssuanceStage = "mint_pending"
	// StageRecording: points minted, aggregate records not yet committed.
	StageRecording IssuanceStage = "recording"
)

// PendingIssuance journals an in-flight issuance across its capability
// calls. A completed issuance deletes its row; anything left behind marks
// exactly how far the operation got before it died.
type PendingIssuance struct {
	ID             string        `gorm:"column:issuance_id;primaryKey"`
	MerchantID     string        `gorm:"column:merchant_id;index;not null"`
	CustomerID     string        `gorm:"column:customer_id;not null"`
	PurchaseAmount uint64        `gorm:"column:purchase_amount;not null"`
	FinalReward    uint64        `gorm:"column:final_reward;not null"`
	PlatformFee    uint64        `gorm:"column:platform_fee;not null"`
	Stage          IssuanceStage `gorm:"column:stage;not null"`
	Attempts       uint32        `gorm:"column:attempts;not null;default:0"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

func (PendingIssuance) TableName() string { return "pending_issuances" }
