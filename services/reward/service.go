package reward

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
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/rule"
	"solcity-loyalty/services/transaction"
)

// Minter is the point-minting capability. It joins the transaction that
// stamps the issuance journal, so a minted reward and its journal stage
// commit together.
type Minter interface {
	MintTx(tx *gorm.DB, holderID string, amount uint64) error
}

// FeePayer moves the platform fee from the merchant authority to the
// program treasury inside the caller's transaction.
type FeePayer interface {
	TransferTx(tx *gorm.DB, payerID, payeeID string, amount uint64) error
}

// RuleSelector resolves the bonus rule for a purchase: the caller's named
// rule, or the best applying one when no rule is named.
type RuleSelector interface {
	BestFor(ctx context.Context, merchantID string, p rule.PurchaseContext, now time.Time) (rule.Outcome, error)
	EvaluateByID(ctx context.Context, merchantID, ruleID string, p rule.PurchaseContext, now time.Time) rule.Outcome
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	cfg     config.LoyaltyConfig
	minter  Minter
	fees    FeePayer
	rules   RuleSelector
	records *transaction.Service
	emitter events.Emitter
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Cfg     *config.Config
	Minter  Minter
	Fees    FeePayer
	Rules   RuleSelector
	Records *transaction.Service
	Emitter events.Emitter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		cfg:     p.Cfg.Loyalty,
		minter:  p.Minter,
		fees:    p.Fees,
		rules:   p.Rules,
		records: p.Records,
		emitter: p.Emitter,
	}
}

type IssueRequest struct {
	MerchantID     string `json:"merchant_id"`
	CustomerID     string `json:"customer_id"`
	PurchaseAmount uint64 `json:"purchase_amount"`
	RuleID         string `json:"rule_id,omitempty"`
}

type IssueResult struct {
	Breakdown    Breakdown     `json:"breakdown"`
	RuleApplied  bool          `json:"rule_applied"`
	RuleID       string        `json:"rule_id,omitempty"`
	Tier         customer.Tier `json:"tier"`
	NewTier      customer.Tier `json:"new_tier"`
	TierUpgraded bool          `json:"tier_upgraded"`
}

// Issue runs one purchase through the full pipeline: rule selection, reward
// computation, fee collection, mint and record keeping. The fee is a strict
// precondition of the mint; a purchase that cannot pay its fee issues
// nothing. Progress across the capability calls is journaled so a crash
// between fee and mint leaves an auditable row for the reconciliation sweep.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.MerchantID == "" || req.CustomerID == "" {
		return nil, errutil.InvalidInput("merchant_id and customer_id are required")
	}

	var m merchant.Merchant
	if err := s.db.WithContext(ctx).Where("merchant_id = ?", req.MerchantID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("merchant not found")
		}
		return nil, errutil.Internal("failed to query merchant", errutil.WithErr(err))
	}
	if !m.IsActive {
		s.fail("issue", errutil.StatusInactive)
		return nil, errutil.Inactive("merchant is not active")
	}

	var p program.Program
	if err := s.db.WithContext(ctx).Where("program_id = ?", m.ProgramID).First(&p).Error; err != nil {
		return nil, errutil.Internal("failed to query program", errutil.WithErr(err))
	}

	var c customer.Customer
	if err := s.db.WithContext(ctx).Where("customer_id = ?", req.CustomerID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("customer not found")
		}
		return nil, errutil.Internal("failed to query customer", errutil.WithErr(err))
	}
	if c.ProgramID != m.ProgramID {
		return nil, errutil.InvalidInput("customer and merchant belong to different programs")
	}

	now := time.Now()
	tier := customer.TierOf(c.TotalEarned)

	pctx := rule.PurchaseContext{
		Amount:           req.PurchaseAmount,
		CustomerTier:     string(tier),
		TransactionCount: c.TransactionCount,
		StreakDays:       uint64(c.StreakDays),
	}

	var outcome rule.Outcome
	if req.RuleID != "" {
		outcome = s.rules.EvaluateByID(ctx, m.ID, req.RuleID, pctx, now)
	} else {
		var err error
		outcome, err = s.rules.BestFor(ctx, m.ID, pctx, now)
		if err != nil {
			return nil, err
		}
	}

	bd, err := Compute(req.PurchaseAmount, m.RewardRate, tier.Multiplier(), outcome.Multiplier, s.cfg.FeePerPoint)
	if err != nil {
		s.fail("issue", errutil.StatusOf(err))
		return nil, err
	}

	journal := &PendingIssuance{
		ID:             s.node.Generate().String(),
		MerchantID:     m.ID,
		CustomerID:     c.ID,
		PurchaseAmount: req.PurchaseAmount,
		FinalReward:    bd.FinalReward,
		PlatformFee:    bd.PlatformFee,
		Stage:          StageFeePending,
	}
	if err := s.db.WithContext(ctx).Create(journal).Error; err != nil {
		return nil, errutil.Internal("failed to journal issuance", errutil.WithErr(err))
	}

	// Fee first, stamped on the journal in the same transaction: if the
	// transfer rolls back so does the stage, and a row still at fee_pending
	// provably never charged anyone.
	feeErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.fees.TransferTx(tx, m.AuthorityID, p.TreasuryID, bd.PlatformFee); err != nil {
			return err
		}
		return stampStage(tx, journal, StageMintPending)
	})
	if feeErr != nil {
		s.db.WithContext(ctx).Delete(journal)
		s.fail("issue", errutil.StatusOf(feeErr))
		if errutil.StatusOf(feeErr) != errutil.StatusUnknown {
			return nil, feeErr
		}
		return nil, errutil.Internal("fee transfer failed", errutil.WithErr(feeErr))
	}

	// Mint with the same discipline: the minted points and the recording
	// stage commit together, so the sweep can never mint twice.
	mintErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.minter.MintTx(tx, c.ID, bd.FinalReward); err != nil {
			return err
		}
		return stampStage(tx, journal, StageRecording)
	})
	if mintErr != nil {
		// Fee collected, points not minted. The row stays at mint_pending
		// for the sweep to finish the mint.
		s.fail("issue", errutil.StatusInternal)
		return nil, errutil.Internal("points mint failed, issuance journaled for reconciliation", errutil.WithErr(mintErr))
	}

	newTier, err := s.finalize(ctx, journal, &m, &c, bd, now)
	if err != nil {
		return nil, err
	}

	res := &IssueResult{
		Breakdown:    *bd,
		RuleApplied:  outcome.Applied,
		RuleID:       outcome.RuleID,
		Tier:         tier,
		NewTier:      newTier,
		TierUpgraded: newTier != tier,
	}

	s.emit(ctx, &m, &c, bd, outcome, tier, newTier, now)

	metrics.PointsIssued.Add(float64(bd.FinalReward))
	metrics.FeesCollected.Add(float64(bd.PlatformFee))

	zap.L().Info("rewards issued",
		zap.String("merchant_id", m.ID),
		zap.String("customer_id", c.ID),
		zap.Uint64("purchase_amount", req.PurchaseAmount),
		zap.Uint64("final_reward", bd.FinalReward),
		zap.Uint64("platform_fee", bd.PlatformFee),
		zap.Bool("rule_applied", outcome.Applied),
	)

	return res, nil
}

// finalize commits the aggregate updates and history records, retrying on
// serialization contention. Rows are locked program first, then merchant,
// then customer, the one order every writer uses.
func (s *Service) finalize(ctx context.Context, journal *PendingIssuance, m *merchant.Merchant, c *customer.Customer, bd *Breakdown, now time.Time) (customer.Tier, error) {
	var newTier customer.Tier

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

			if err := tx.Model(&program.Program{}).
				Where("program_id = ?", p.ID).
				Updates(map[string]any{
					"total_tokens_issued":  gorm.Expr("total_tokens_issued + ?", bd.FinalReward),
					"total_fees_collected": gorm.Expr("total_fees_collected + ?", bd.PlatformFee),
				}).Error; err != nil {
				return err
			}

			if err := tx.Model(&merchant.Merchant{}).
				Where("merchant_id = ?", lm.ID).
				Update("total_issued", gorm.Expr("total_issued + ?", bd.FinalReward)).Error; err != nil {
				return err
			}

			newTier = customer.TierOf(lc.TotalEarned + bd.FinalReward)
			if err := tx.Model(&customer.Customer{}).
				Where("customer_id = ?", lc.ID).
				Updates(map[string]any{
					"total_earned":      gorm.Expr("total_earned + ?", bd.FinalReward),
					"transaction_count": gorm.Expr("transaction_count + 1"),
					"streak_days":       nextStreak(lc.StreakDays, lc.LastActivity, now),
					"last_activity":     now,
					"tier":              newTier,
				}).Error; err != nil {
				return err
			}

			if err := s.records.Append(tx, &transaction.Record{
				CustomerID: lc.ID,
				MerchantID: lm.ID,
				Type:       transaction.TypeEarn,
				Amount:     bd.FinalReward,
				Fee:        bd.PlatformFee,
				Tier:       string(lc.Tier),
				Index:      lc.TransactionCount + 1,
			}); err != nil {
				return err
			}

			if err := s.records.TouchPair(tx, lm.ID, lc.ID, bd.FinalReward, 0, now); err != nil {
				return err
			}

			return tx.Delete(journal).Error
		})
		if err == nil {
			return newTier, nil
		}
	}

	return newTier, errutil.Internal("failed to record issuance", errutil.WithErr(err))
}

func (s *Service) emit(ctx context.Context, m *merchant.Merchant, c *customer.Customer, bd *Breakdown, outcome rule.Outcome, oldTier, newTier customer.Tier, now time.Time) {
	if err := s.emitter.Emit(ctx, events.TaskRewardsIssued, events.RewardsIssued{
		MerchantID:     m.ID,
		CustomerID:     c.ID,
		PurchaseAmount: bd.PurchaseAmount,
		BaseReward:     bd.BaseReward,
		TierMultiplier: bd.TierMultiplier,
		RuleMultiplier: bd.RuleMultiplier,
		RuleApplied:    outcome.Applied,
		FinalReward:    bd.FinalReward,
		PlatformFee:    bd.PlatformFee,
		CustomerTier:   string(oldTier),
		Timestamp:      now,
	}); err != nil {
		zap.L().Warn("failed to emit rewards_issued", zap.Error(err))
	}

	if newTier != oldTier {
		if err := s.emitter.Emit(ctx, events.TaskTierUpgraded, events.TierUpgraded{
			CustomerID:  c.ID,
			OldTier:     string(oldTier),
			NewTier:     string(newTier),
			TotalEarned: c.TotalEarned + bd.FinalReward,
			Timestamp:   now,
		}); err != nil {
			zap.L().Warn("failed to emit tier_upgraded", zap.Error(err))
		}
	}
}

// stampStage records journal progress inside the same transaction as the
// capability call it follows, so the stage never disagrees with what
// actually committed.
func stampStage(tx *gorm.DB, journal *PendingIssuance, stage IssuanceStage) error {
	if err := tx.Model(&PendingIssuance{}).
		Where("issuance_id = ?", journal.ID).
		Update("stage", stage).Error; err != nil {
		return err
	}
	journal.Stage = stage
	return nil
}

func (s *Service) fail(operation string, status errutil.CoreStatus) {
	metrics.OperationFailures.WithLabelValues(operation, string(status)).Inc()
}

// nextStreak extends the daily streak on a next-calendar-day visit, keeps
// it on a same-day visit and resets it after a gap.
func nextStreak(current uint16, lastActivity, now time.Time) uint16 {
	if lastActivity.IsZero() {
		return 1
	}
	last := lastActivity.Truncate(24 * time.Hour)
	today := now.Truncate(24 * time.Hour)
	switch today.Sub(last) {
	case 0:
		if current == 0 {
			return 1
		}
		return current
	case 24 * time.Hour:
		return current + 1
	default:
		return 1
	}
}
