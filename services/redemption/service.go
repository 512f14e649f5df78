package redemption

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solcity-loyalty/pkg/config"
	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/pkg/events"
	"solcity-loyalty/pkg/metrics"
	"solcity-loyalty/services/customer"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/offer"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/transaction"
)

// Burner is the point-burning capability. The burn joins the redemption
// transaction so points, voucher and aggregates commit or roll back as one
// unit.
type Burner interface {
	BurnTx(tx *gorm.DB, holderID string, amount uint64) error
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	cfg     config.LoyaltyConfig
	burner  Burner
	records *transaction.Service
	emitter events.Emitter
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Cfg     *config.Config
	Burner  Burner
	Records *transaction.Service
	Emitter events.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		cfg:     p.Cfg.Loyalty,
		burner:  p.Burner,
		records: p.Records,
		emitter: p.Emitter,
	}
}

type RedeemRequest struct {
	CustomerID string `json:"customer_id"`
	OfferID    string `json:"offer_id"`
}

// Redeem spends a customer's points on an offer and hands back a voucher.
// The burn, the voucher and every aggregate commit in one transaction with
// the offer row locked, so an offer with a quantity limit never issues more
// vouchers than the limit regardless of concurrency, and a failed burn
// leaves nothing behind.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*Voucher, error) {
	if req.CustomerID == "" || req.OfferID == "" {
		return nil, errutil.InvalidInput("customer_id and offer_id are required")
	}

	var c customer.Customer
	if err := s.db.WithContext(ctx).Where("customer_id = ?", req.CustomerID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("customer not found")
		}
		return nil, errutil.Internal("failed to query customer", errutil.WithErr(err))
	}

	var o offer.RedemptionOffer
	if err := s.db.WithContext(ctx).Where("offer_id = ?", req.OfferID).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("offer not found")
		}
		return nil, errutil.Internal("failed to query offer", errutil.WithErr(err))
	}

	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", o.MerchantID).First(&m).Error; err != nil {
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	if !m.IsActive {
		s.fail(errutil.StatusInactive)
		return nil, errutil.Inactive("merchant is not active")
	}
	if c.ProgramID != m.ProgramID {
		return nil, errutil.InvalidInput("customer and offer belong to different programs")
	}

	now := time.Now()

	seed := s.node.Generate()
	v := &Voucher{
		ID:               seed.String(),
		Code:             redemptionCode(seed.Int64()),
		OfferID:          o.ID,
		CustomerID:       c.ID,
		MerchantID:       m.ID,
		MerchantName:     m.Name,
		OfferName:        o.Name,
		OfferDescription: o.Description,
		OfferKind:        o.Kind,
		Payload:          o.Payload,
		Cost:             o.Cost,
		Status:           StatusActive,
		RedeemedAt:       now,
		ExpiresAt:        now.AddDate(0, 0, s.cfg.VoucherValidityDays),
	}

	if err := s.commit(ctx, v, &m, &c, now); err != nil {
		s.fail(errutil.StatusOf(err))
		return nil, err
	}

	if err := s.emitter.Emit(ctx, events.TaskRewardsRedeemed, events.RewardsRedeemed{
		CustomerID:     c.ID,
		MerchantID:     m.ID,
		OfferID:        o.ID,
		OfferName:      o.Name,
		Amount:         o.Cost,
		VoucherID:      v.ID,
		RedemptionCode: v.Code,
		Timestamp:      now,
	}); err != nil {
		zap.L().Warn("failed to emit rewards_redeemed", zap.Error(err))
	}

	metrics.PointsRedeemed.Add(float64(o.Cost))

	zap.L().Info("offer redeemed",
		zap.String("customer_id", c.ID),
		zap.String("offer_id", o.ID),
		zap.String("voucher_id", v.ID),
		zap.Uint64("cost", o.Cost),
	)

	return v, nil
}

// commit burns the points and writes the voucher and every aggregate the
// redemption touches as one transaction. Locks follow the shared order:
// program, merchant, customer, then the offer row; the in-transaction
// availability recheck holds a limited offer at its quantity limit under
// concurrency.
func (s *Service) commit(ctx context.Context, v *Voucher, m *merchant.Merchant, c *customer.Customer, now time.Time) error {
	var err error
	for attempt := 0; attempt <= s.cfg.TxMaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.cfg.RetryBackoff)
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var p program.Program
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("program_id = ?", m.ProgramID).First(&p).Error; err != nil {
				return err
			}
			var lm merchant.Merchant
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("merchant_id = ?", m.ID).First(&lm).Error; err != nil {
				return err
			}
			var lc customer.Customer
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer_id = ?", c.ID).First(&lc).Error; err != nil {
				return err
			}

			var lo offer.RedemptionOffer
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("offer_id = ?", v.OfferID).First(&lo).Error; err != nil {
				return err
			}
			if !lo.IsAvailable(now) {
				return errutil.Unavailable("offer is not available")
			}
			if err := tx.Model(&offer.RedemptionOffer{}).
				Where("offer_id = ?", lo.ID).
				Update("quantity_claimed", gorm.Expr("quantity_claimed + 1")).Error; err != nil {
				return err
			}

			if err := s.burner.BurnTx(tx, lc.ID, v.Cost); err != nil {
				return err
			}

			if err := tx.Create(v).Error; err != nil {
				return err
			}
			if err := tx.Create(&OfferRedemption{
				ID:         s.node.Generate().String(),
				OfferID:    v.OfferID,
				MerchantID: v.MerchantID,
				VoucherID:  v.ID,
				CustomerID: v.CustomerID,
				Amount:     v.Cost,
				RedeemedAt: now,
			}).Error; err != nil {
				return err
			}

			if err := tx.Model(&program.Program{}).
				Where("program_id = ?", p.ID).
				Update("total_tokens_redeemed", gorm.Expr("total_tokens_redeemed + ?", v.Cost)).Error; err != nil {
				return err
			}
			if err := tx.Model(&merchant.Merchant{}).
				Where("merchant_id = ?", lm.ID).
				Update("total_redeemed", gorm.Expr("total_redeemed + ?", v.Cost)).Error; err != nil {
				return err
			}
			if err := tx.Model(&customer.Customer{}).
				Where("customer_id = ?", lc.ID).
				Updates(map[string]any{
					"total_redeemed":    gorm.Expr("total_redeemed + ?", v.Cost),
					"transaction_count": gorm.Expr("transaction_count + 1"),
					"last_activity":     now,
				}).Error; err != nil {
				return err
			}

			if err := s.records.Append(tx, &transaction.Record{
				CustomerID: lc.ID,
				MerchantID: lm.ID,
				Type:       transaction.TypeRedeem,
				Amount:     v.Cost,
				Tier:       string(lc.Tier),
				Index:      lc.TransactionCount + 1,
				Reference:  v.OfferID,
			}); err != nil {
				return err
			}

			return s.records.TouchPair(tx, lm.ID, lc.ID, 0, v.Cost, now)
		})
		if err == nil {
			return nil
		}
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return err
		}
	}
	return errutil.Internal("failed to record redemption", errutil.WithErr(err))
}

func (s *Service) fail(status errutil.CoreStatus) {
	metrics.OperationFailures.WithLabelValues("redeem", string(status)).Inc()
}
