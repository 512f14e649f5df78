package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"solcity-loyalty/pkg/errutil"
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

// Append writes one history record inside the caller's transaction.
func (s *Service) Append(tx *gorm.DB, rec *Record) error {
	if rec.ID == "" {
		rec.ID = s.node.Generate().String()
	}
	return tx.Create(rec).Error
}

// TouchPair upserts the merchant/customer relationship row inside the
// caller's transaction, adding earned/redeemed deltas and bumping the visit
// count. The row is locked so concurrent touches serialize.
func (s *Service) TouchPair(tx *gorm.DB, merchantID, customerID string, earned, redeemed uint64, now time.Time) error {
	var pair PairRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_id = ? AND customer_id = ?", merchantID, customerID).
		First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pair = PairRecord{
			ID:            s.node.Generate().String(),
			MerchantID:    merchantID,
			CustomerID:    customerID,
			TotalEarned:   earned,
			TotalRedeemed: redeemed,
			VisitCount:    1,
			FirstVisit:    now,
			LastVisit:     now,
		}
		return tx.Create(&pair).Error
	}
	if err != nil {
		return err
	}

	return tx.Model(&PairRecord{}).
		Where("pair_id = ?", pair.ID).
		Updates(map[string]any{
			"total_earned":   gorm.Expr("total_earned + ?", earned),
			"total_redeemed": gorm.Expr("total_redeemed + ?", redeemed),
			"visit_count":    gorm.Expr("visit_count + 1"),
			"last_visit":     now,
		}).Error
}

// History returns a customer's records in replay order, newest last.
func (s *Service) History(ctx context.Context, customerID string, limit int) ([]Record, error) {
	q := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("seq_index")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []Record
	if err := q.Find(&recs).Error; err != nil {
		return nil, errutil.Internal("failed to load transaction history", errutil.WithErr(err))
	}
	return recs, nil
}

// Pair returns the relationship row for a merchant/customer pair.
func (s *Service) Pair(ctx context.Context, merchantID, customerID string) (*PairRecord, error) {
	var pair PairRecord
	err := s.db.WithContext(ctx).
		Where("merchant_id = ? AND customer_id = ?", merchantID, customerID).
		First(&pair).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("no relationship between merchant and customer")
	}
	if err != nil {
		return nil, errutil.Internal("failed to load pair record", errutil.WithErr(err))
	}
	return &pair, nil
}
