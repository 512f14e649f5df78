package reward

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/pkg/metrics"
	"solcity-loyalty/services/customer"
	"solcity-loyalty/services/merchant"
)

const (
	// reconcileMinAge keeps the sweep away from rows an in-flight issuance
	// is still working on.
	reconcileMinAge = 5 * time.Minute

	reconcileWorkers = 4
)

// HandleReconcileSweep is the asynq handler that drains the issuance
// journal. Wire it to events.TaskReconcileSweep on the worker mux.
func (s *Service) HandleReconcileSweep(ctx context.Context, _ *asynq.Task) error {
	return s.Reconcile(ctx)
}

// Reconcile finishes or discards journal rows left behind by crashed
// issuances. A row still waiting on its fee never charged anyone and is
// dropped; a row past the fee gets its mint retried and its records
// committed, so a paid fee always ends in issued points.
func (s *Service) Reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-reconcileMinAge)

	var rows []PendingIssuance
	if err := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Order("created_at").
		Find(&rows).Error; err != nil {
		return errutil.Internal("failed to load issuance journal", errutil.WithErr(err))
	}

	metrics.PendingIssuances.Set(float64(len(rows)))
	if len(rows) == 0 {
		return nil
	}

	zap.L().Info("reconciling stalled issuances", zap.Int("count", len(rows)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileWorkers)
	for i := range rows {
		row := rows[i]
		g.Go(func() error {
			if err := s.resolve(gctx, &row); err != nil {
				zap.L().Error("failed to reconcile issuance",
					zap.String("issuance_id", row.ID),
					zap.String("stage", string(row.Stage)),
					zap.Error(err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) resolve(ctx context.Context, row *PendingIssuance) error {
	switch row.Stage {
	case StageFeePending:
		// The fee transfer was never confirmed, so no money moved and no
		// points are owed.
		return s.db.WithContext(ctx).Delete(row).Error

	case StageMintPending:
		if err := s.bumpAttempts(ctx, row); err != nil {
			return err
		}
		// Mint and stage stamp in one transaction, exactly like the live
		// path: a row can only reach recording once the points exist, and
		// a crashed sweep retry never mints twice.
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.minter.MintTx(tx, row.CustomerID, row.FinalReward); err != nil {
				return err
			}
			return stampStage(tx, row, StageRecording)
		}); err != nil {
			return err
		}
		fallthrough

	case StageRecording:
		return s.replay(ctx, row)
	}

	return nil
}

// replay commits the aggregate records for a journaled issuance whose fee
// and mint already happened.
func (s *Service) replay(ctx context.Context, row *PendingIssuance) error {
	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", row.MerchantID).First(&m).Error; err != nil {
		return err
	}
	var c customer.Customer
	if err := s.db.WithContext(ctx).Where("customer_id = ?", row.CustomerID).First(&c).Error; err != nil {
		return err
	}

	bd := &Breakdown{
		PurchaseAmount: row.PurchaseAmount,
		FinalReward:    row.FinalReward,
		PlatformFee:    row.PlatformFee,
	}

	if _, err := s.finalize(ctx, row, &m, &c, bd, time.Now()); err != nil {
		return err
	}

	metrics.PointsIssued.Add(float64(row.FinalReward))
	metrics.FeesCollected.Add(float64(row.PlatformFee))

	zap.L().Info("stalled issuance reconciled",
		zap.String("issuance_id", row.ID),
		zap.Uint64("final_reward", row.FinalReward),
	)

	return nil
}

func (s *Service) bumpAttempts(ctx context.Context, row *PendingIssuance) error {
	return s.db.WithContext(ctx).Model(&PendingIssuance{}).
		Where("issuance_id = ?", row.ID).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}
