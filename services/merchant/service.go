package merchant

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/config"
	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/program"
)

// FeeTransfer is the payment capability consumed for the one-time
// registration fee.
type FeeTransfer interface {
	Transfer(ctx context.Context, payerID, payeeID string, amount uint64) error
}

// ActiveRuleCounter reports how many active reward rules a merchant owns.
// A merchant with active rules cannot be closed.
type ActiveRuleCounter interface {
	CountActive(ctx context.Context, merchantID string) (int64, error)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	cfg   config.LoyaltyConfig
	fees  FeeTransfer
	rules ActiveRuleCounter
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Cfg   *config.Config
	Fees  FeeTransfer
	Rules ActiveRuleCounter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		cfg:   p.Cfg.Loyalty,
		fees:  p.Fees,
		rules: p.Rules,
	}
}

type RegisterRequest struct {
	AuthorityID string `json:"authority_id"`
	ProgramID   string `json:"program_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
	RewardRate  uint64 `json:"reward_rate"`
}

// Register enrolls a merchant, collects the one-time platform fee and bumps
// the program merchant count.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Merchant, error) {
	if req.AuthorityID == "" || req.ProgramID == "" {
		return nil, errutil.InvalidInput("authority_id and program_id are required")
	}
	if err := validateProfile(req.Name, req.Description, req.AvatarURL); err != nil {
		return nil, err
	}
	if req.RewardRate == 0 {
		return nil, errutil.InvalidInput("reward rate must be greater than zero")
	}

	var p program.Program
	if err := s.db.WithContext(ctx).Where("program_id = ?", req.ProgramID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("program not found")
		}
		return nil, errutil.Internal("failed to query program", errutil.WithErr(err))
	}

	// Registration fee is a precondition; the merchant record is only
	// created once it has been paid.
	if s.cfg.RegistrationFee > 0 {
		if err := s.fees.Transfer(ctx, req.AuthorityID, p.TreasuryID, s.cfg.RegistrationFee); err != nil {
			return nil, err
		}
	}

	m := &Merchant{
		ID:          s.node.Generate().String(),
		AuthorityID: req.AuthorityID,
		ProgramID:   req.ProgramID,
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		RewardRate:  req.RewardRate,
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&program.Program{}).
			Where("program_id = ?", req.ProgramID).
			Updates(map[string]any{
				"total_merchants":      gorm.Expr("total_merchants + 1"),
				"total_fees_collected": gorm.Expr("total_fees_collected + ?", s.cfg.RegistrationFee),
			}).Error
	})
	if err != nil {
		return nil, errutil.Internal("failed to register merchant", errutil.WithErr(err))
	}

	zap.L().Info("merchant registered",
		zap.String("merchant_id", m.ID),
		zap.String("name", m.Name),
		zap.Uint64("reward_rate", m.RewardRate),
	)

	return m, nil
}

type UpdateRequest struct {
	AuthorityID string  `json:"authority_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	RewardRate  *uint64 `json:"reward_rate,omitempty"`
}

// Update edits the merchant profile. Only the owning authority may update.
func (s *Service) Update(ctx context.Context, merchantID string, req UpdateRequest) (*Merchant, error) {
	m, err := s.Get(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if m.AuthorityID != req.AuthorityID {
		return nil, errutil.Unauthorized("caller does not own this merchant")
	}

	updates := map[string]any{}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, errutil.InvalidInput("merchant name cannot be empty")
		}
		if len(*req.Name) > MaxNameLen {
			return nil, errutil.InvalidInput("merchant name exceeds maximum length")
		}
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		if len(*req.Description) > MaxDescriptionLen {
			return nil, errutil.InvalidInput("merchant description exceeds maximum length")
		}
		updates["description"] = *req.Description
	}
	if req.AvatarURL != nil {
		if len(*req.AvatarURL) > MaxAvatarURLLen {
			return nil, errutil.InvalidInput("avatar url exceeds maximum length")
		}
		updates["avatar_url"] = *req.AvatarURL
	}
	if req.RewardRate != nil {
		if *req.RewardRate == 0 {
			return nil, errutil.InvalidInput("reward rate must be greater than zero")
		}
		updates["reward_rate"] = *req.RewardRate
	}

	if len(updates) == 0 {
		return m, nil
	}

	if err := s.db.WithContext(ctx).Model(&Merchant{}).
		Where("merchant_id = ?", merchantID).
		Updates(updates).Error; err != nil {
		return nil, errutil.Internal("failed to update merchant", errutil.WithErr(err))
	}

	return s.Get(ctx, merchantID)
}

// Toggle flips the merchant active flag.
func (s *Service) Toggle(ctx context.Context, merchantID, authorityID string) (*Merchant, error) {
	m, err := s.Get(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if m.AuthorityID != authorityID {
		return nil, errutil.Unauthorized("caller does not own this merchant")
	}

	if err := s.db.WithContext(ctx).Model(&Merchant{}).
		Where("merchant_id = ?", merchantID).
		Update("is_active", !m.IsActive).Error; err != nil {
		return nil, errutil.Internal("failed to toggle merchant", errutil.WithErr(err))
	}

	m.IsActive = !m.IsActive
	return m, nil
}

// Close deactivates the merchant and decrements the program merchant count.
// Forbidden while the merchant still owns active reward rules.
func (s *Service) Close(ctx context.Context, merchantID, authorityID string) error {
	m, err := s.Get(ctx, merchantID)
	if err != nil {
		return err
	}
	if m.AuthorityID != authorityID {
		return errutil.Unauthorized("caller does not own this merchant")
	}

	active, err := s.rules.CountActive(ctx, merchantID)
	if err != nil {
		return err
	}
	if active > 0 {
		return errutil.Conflict("merchant has active reward rules; delete all rules before closing")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Merchant{}).
			Where("merchant_id = ?", merchantID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		// Admin-authorized decrement, the one legal way a program total
		// goes down.
		return tx.Model(&program.Program{}).
			Where("program_id = ? AND total_merchants > 0", m.ProgramID).
			Update("total_merchants", gorm.Expr("total_merchants - 1")).Error
	})
	if err != nil {
		return errutil.Internal("failed to close merchant", errutil.WithErr(err))
	}

	zap.L().Info("merchant closed", zap.String("merchant_id", merchantID))

	return nil
}

// Get returns a merchant by id.
func (s *Service) Get(ctx context.Context, merchantID string) (*Merchant, error) {
	var m Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("merchant not found")
		}
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	return &m, nil
}

func validateProfile(name, description, avatarURL string) error {
	if name == "" {
		return errutil.InvalidInput("merchant name cannot be empty")
	}
	if len(name) > MaxNameLen {
		return errutil.InvalidInput("merchant name exceeds maximum length")
	}
	if len(description) > MaxDescriptionLen {
		return errutil.InvalidInput("merchant description exceeds maximum length")
	}
	if len(avatarURL) > MaxAvatarURLLen {
		return errutil.InvalidInput("avatar url exceeds maximum length")
	}
	return nil
}
