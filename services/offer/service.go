package offer

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/merchant"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, node: p.Node}
}

type CreateRequest struct {
	AuthorityID   string         `json:"authority_id"`
	MerchantID    string         `json:"merchant_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Icon          string         `json:"icon"`
	Cost          uint64         `json:"cost"`
	Kind          Kind           `json:"kind"`
	Payload       datatypes.JSON `json:"payload,omitempty"`
	QuantityLimit *uint64        `json:"quantity_limit,omitempty"`
	Expiration    *time.Time     `json:"expiration,omitempty"`
}

func (r CreateRequest) validate(now time.Time) error {
	if r.Name == "" {
		return errutil.InvalidInput("offer name cannot be empty")
	}
	if len(r.Name) > MaxNameLen {
		return errutil.InvalidInput("offer name exceeds maximum length")
	}
	if len(r.Description) > MaxDescriptionLen {
		return errutil.InvalidInput("offer description exceeds maximum length")
	}
	if len(r.Icon) > MaxIconLen {
		return errutil.InvalidInput("offer icon exceeds maximum length")
	}
	if r.Cost == 0 {
		return errutil.InvalidInput("offer cost must be greater than zero")
	}
	if !r.Kind.Valid() {
		return errutil.InvalidInput("unknown offer kind")
	}
	if r.QuantityLimit != nil && *r.QuantityLimit == 0 {
		return errutil.InvalidInput("quantity limit must be greater than zero when set")
	}
	if r.Expiration != nil && !r.Expiration.After(now) {
		return errutil.InvalidTimeRange("offer expiration must be in the future")
	}
	return nil
}

// Create publishes a redemption offer under the merchant.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*RedemptionOffer, error) {
	if err := req.validate(time.Now()); err != nil {
		return nil, err
	}

	m, err := s.ownedMerchant(ctx, req.MerchantID, req.AuthorityID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, errutil.Inactive("merchant is not active")
	}

	o := &RedemptionOffer{
		ID:            s.node.Generate().String(),
		MerchantID:    req.MerchantID,
		Name:          req.Name,
		Description:   req.Description,
		Icon:          req.Icon,
		Cost:          req.Cost,
		Kind:          req.Kind,
		Payload:       req.Payload,
		QuantityLimit: req.QuantityLimit,
		Expiration:    req.Expiration,
		IsActive:      true,
	}

	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return nil, errutil.Internal("failed to create offer", errutil.WithErr(err))
	}

	zap.L().Info("redemption offer created",
		zap.String("offer_id", o.ID),
		zap.String("merchant_id", o.MerchantID),
		zap.Uint64("cost", o.Cost),
	)

	return o, nil
}

type UpdateRequest struct {
	AuthorityID   string          `json:"authority_id"`
	Name          *string         `json:"name,omitempty"`
	Description   *string         `json:"description,omitempty"`
	Icon          *string         `json:"icon,omitempty"`
	Cost          *uint64         `json:"cost,omitempty"`
	Payload       *datatypes.JSON `json:"payload,omitempty"`
	QuantityLimit *uint64         `json:"quantity_limit,omitempty"`
	Expiration    *time.Time      `json:"expiration,omitempty"`
}

// Update edits the offer. The claimed counter is never writable here.
func (s *Service) Update(ctx context.Context, offerID string, req UpdateRequest) (*RedemptionOffer, error) {
	o, err := s.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMerchant(ctx, o.MerchantID, req.AuthorityID); err != nil {
		return nil, err
	}

	if req.Name != nil {
		o.Name = *req.Name
	}
	if req.Description != nil {
		o.Description = *req.Description
	}
	if req.Icon != nil {
		o.Icon = *req.Icon
	}
	if req.Cost != nil {
		o.Cost = *req.Cost
	}
	if req.Payload != nil {
		o.Payload = *req.Payload
	}
	if req.QuantityLimit != nil {
		o.QuantityLimit = req.QuantityLimit
	}
	if req.Expiration != nil {
		o.Expiration = req.Expiration
	}

	check := CreateRequest{
		Name:          o.Name,
		Description:   o.Description,
		Icon:          o.Icon,
		Cost:          o.Cost,
		Kind:          o.Kind,
		QuantityLimit: o.QuantityLimit,
		Expiration:    o.Expiration,
	}
	if err := check.validate(time.Now()); err != nil {
		return nil, err
	}
	if o.QuantityLimit != nil && *o.QuantityLimit < o.QuantityClaimed {
		return nil, errutil.InvalidInput("quantity limit cannot fall below claimed count")
	}

	if err := s.db.WithContext(ctx).Save(o).Error; err != nil {
		return nil, errutil.Internal("failed to update offer", errutil.WithErr(err))
	}

	return o, nil
}

// Toggle flips the offer active flag.
func (s *Service) Toggle(ctx context.Context, offerID, authorityID string) (*RedemptionOffer, error) {
	o, err := s.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedMerchant(ctx, o.MerchantID, authorityID); err != nil {
		return nil, err
	}

	o.IsActive = !o.IsActive
	if err := s.db.WithContext(ctx).Model(&RedemptionOffer{}).
		Where("offer_id = ?", offerID).
		Update("is_active", o.IsActive).Error; err != nil {
		return nil, errutil.Internal("failed to toggle offer", errutil.WithErr(err))
	}

	return o, nil
}

// Delete removes the offer. Vouchers already issued keep their snapshots, so
// the audit trail survives the delete.
func (s *Service) Delete(ctx context.Context, offerID, authorityID string) error {
	o, err := s.Get(ctx, offerID)
	if err != nil {
		return err
	}
	if _, err := s.ownedMerchant(ctx, o.MerchantID, authorityID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Delete(&RedemptionOffer{}).Error; err != nil {
		return errutil.Internal("failed to delete offer", errutil.WithErr(err))
	}

	zap.L().Info("redemption offer deleted", zap.String("offer_id", offerID))

	return nil
}

// Get returns an offer by id.
func (s *Service) Get(ctx context.Context, offerID string) (*RedemptionOffer, error) {
	var o RedemptionOffer
	if err := s.db.WithContext(ctx).Where("offer_id = ?", offerID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("offer not found")
		}
		return nil, errutil.Internal("failed to query offer", errutil.WithErr(err))
	}
	return &o, nil
}

// ListForMerchant returns every offer published by the merchant.
func (s *Service) ListForMerchant(ctx context.Context, merchantID string) ([]RedemptionOffer, error) {
	var offers []RedemptionOffer
	if err := s.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at").
		Find(&offers).Error; err != nil {
		return nil, errutil.Internal("failed to list offers", errutil.WithErr(err))
	}
	return offers, nil
}

func (s *Service) ownedMerchant(ctx context.Context, merchantID, authorityID string) (*merchant.Merchant, error) {
	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("merchant not found")
		}
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	if m.AuthorityID != authorityID {
		return nil, errutil.Unauthorized("caller does not own this merchant")
	}
	return &m, nil
}
