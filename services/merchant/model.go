package merchant

import (
	"time"
)

const (
	MaxNameLen        = 32
	MaxDescriptionLen = 256
	MaxAvatarURLLen   = 128
)

// Merchant belongs to exactly one program and is owned by an authority
// identity. It is soft-deactivated via IsActive, never hard-deleted while
// active rules exist.
type Merchant struct {
	ID            string    `gorm:"column:merchant_id;primaryKey"`
	AuthorityID   string    `gorm:"column:authority_id;index:idx_merchant_authority_program,unique;not null"`
	ProgramID     string    `gorm:"column:program_id;index:idx_merchant_authority_program,unique;not null"`
	Name          string    `gorm:"column:name;not null"`
	Description   string    `gorm:"column:description"`
	AvatarURL     string    `gorm:"column:avatar_url"`
	RewardRate    uint64    `gorm:"column:reward_rate;not null"`
	TotalIssued   uint64    `gorm:"column:total_issued;not null;default:0"`
	TotalRedeemed uint64    `gorm:"column:total_redeemed;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Merchant) TableName() string { return "merchants" }
