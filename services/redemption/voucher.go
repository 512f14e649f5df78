package redemption

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/pkg/events"
	"solcity-loyalty/services/merchant"
)

// MarkUsed consumes a voucher at the merchant's counter. Only the merchant
// that issued the voucher may consume it, exactly once, inside its validity
// window. The offer-side mirror row is updated under the same transaction.
func (s *Service) MarkUsed(ctx context.Context, voucherID, authorityID string) (*Voucher, error) {
	var out Voucher

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := lockVoucher(tx, voucherID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, v.MerchantID, authorityID); err != nil {
			return err
		}

		switch v.Status {
		case StatusUsed:
			return errutil.AlreadyUsed("voucher has already been used")
		case StatusRevoked:
			return errutil.Inactive("voucher has been revoked")
		}

		now := time.Now()
		if v.IsExpired(now) {
			return errutil.Expired("voucher has expired")
		}

		if err := tx.Model(&Voucher{}).
			Where("voucher_id = ?", v.ID).
			Updates(map[string]any{
				"status":  StatusUsed,
				"is_used": true,
				"used_at": now,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&OfferRedemption{}).
			Where("voucher_id = ?", v.ID).
			Updates(map[string]any{
				"used":    true,
				"used_at": now,
			}).Error; err != nil {
			return err
		}

		out = *v
		out.Status = StatusUsed
		out.IsUsed = true
		out.UsedAt = &now
		return nil
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Internal("failed to mark voucher used", errutil.WithErr(err))
	}

	if err := s.emitter.Emit(ctx, events.TaskVoucherUsed, events.VoucherUsed{
		VoucherID:      out.ID,
		CustomerID:     out.CustomerID,
		MerchantID:     out.MerchantID,
		OfferName:      out.OfferName,
		RedemptionCode: out.Code,
		Timestamp:      *out.UsedAt,
	}); err != nil {
		zap.L().Warn("failed to emit voucher_used", zap.Error(err))
	}

	zap.L().Info("voucher used",
		zap.String("voucher_id", out.ID),
		zap.String("merchant_id", out.MerchantID),
	)

	return &out, nil
}

// Revoke withdraws an active voucher. Used vouchers are history and cannot
// be revoked.
func (s *Service) Revoke(ctx context.Context, voucherID, authorityID string) (*Voucher, error) {
	return s.transition(ctx, voucherID, authorityID, StatusActive, StatusRevoked, "only an active voucher can be revoked")
}

// Reactivate restores a revoked voucher. The only legal source state is
// revoked; a used voucher stays used.
func (s *Service) Reactivate(ctx context.Context, voucherID, authorityID string) (*Voucher, error) {
	return s.transition(ctx, voucherID, authorityID, StatusRevoked, StatusActive, "only a revoked voucher can be reactivated")
}

func (s *Service) transition(ctx context.Context, voucherID, authorityID string, from, to Status, guard string) (*Voucher, error) {
	var out Voucher

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := lockVoucher(tx, voucherID)
		if err != nil {
			return err
		}
		if err := s.authorize(tx, v.MerchantID, authorityID); err != nil {
			return err
		}

		if v.Status != from {
			if v.Status == StatusUsed {
				return errutil.AlreadyUsed("voucher has already been used")
			}
			return errutil.Conflict(guard)
		}

		var usedAt *time.Time
		if to == StatusRevoked {
			now := time.Now()
			usedAt = &now
		}

		if err := tx.Model(&Voucher{}).
			Where("voucher_id = ?", v.ID).
			Updates(map[string]any{
				"status":  to,
				"is_used": usedAt != nil,
				"used_at": usedAt,
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&OfferRedemption{}).
			Where("voucher_id = ?", v.ID).
			Updates(map[string]any{
				"used":    usedAt != nil,
				"used_at": usedAt,
			}).Error; err != nil {
			return err
		}

		out = *v
		out.Status = to
		out.IsUsed = usedAt != nil
		out.UsedAt = usedAt
		return nil
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Internal("failed to update voucher", errutil.WithErr(err))
	}

	zap.L().Info("voucher state changed",
		zap.String("voucher_id", out.ID),
		zap.String("status", string(out.Status)),
	)

	return &out, nil
}

// Get returns a voucher by id.
func (s *Service) Get(ctx context.Context, voucherID string) (*Voucher, error) {
	var v Voucher
	if err := s.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("voucher not found")
		}
		return nil, errutil.Internal("failed to query voucher", errutil.WithErr(err))
	}
	return &v, nil
}

// ListForCustomer returns a customer's vouchers, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]Voucher, error) {
	var vouchers []Voucher
	if err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("redeemed_at DESC").
		Find(&vouchers).Error; err != nil {
		return nil, errutil.Internal("failed to list vouchers", errutil.WithErr(err))
	}
	return vouchers, nil
}

func (s *Service) authorize(tx *gorm.DB, merchantID, authorityID string) error {
	var m merchant.Merchant
	if err := tx.Where("merchant_id = ?", merchantID).First(&m).Error; err != nil {
		return err
	}
	if m.AuthorityID != authorityID {
		return errutil.Unauthorized("caller does not own the issuing merchant")
	}
	return nil
}

func lockVoucher(tx *gorm.DB, voucherID string) (*Voucher, error) {
	var v Voucher
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("voucher_id = ?", voucherID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("voucher not found")
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
