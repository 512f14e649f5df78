package reward

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/config"
	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/pkg/events"
	"solcity-loyalty/services/customer"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/rule"
	"solcity-loyalty/services/testutil"
	"solcity-loyalty/services/token"
	"solcity-loyalty/services/transaction"
	"solcity-loyalty/services/treasury"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type captureEmitter struct {
	tasks []string
}

func (c *captureEmitter) Emit(_ context.Context, taskType string, _ any) error {
	c.tasks = append(c.tasks, taskType)
	return nil
}

type failingMinter struct{}

func (failingMinter) MintTx(*gorm.DB, string, uint64) error {
	return errors.New("mint backend unavailable")
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	tokens   *token.Service
	treasury *treasury.Service
	rules    *rule.Service
	emitter  *captureEmitter
	cfg      *config.Config
	node     *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&program.Program{}, &merchant.Merchant{}, &customer.Customer{},
		&rule.RewardRule{}, &token.Balance{}, &token.LedgerEntry{},
		&treasury.Account{}, &treasury.Transfer{},
		&transaction.Record{}, &transaction.PairRecord{},
		&PendingIssuance{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&program.Program{
		ID:          "prog_1",
		AuthorityID: "auth_program",
		MintID:      "mint_1",
		TreasuryID:  "treasury_1",
		Name:        "SolCity Rewards",
	}).Error)
	require.NoError(t, db.Create(&merchant.Merchant{
		ID:          "merchant_1",
		AuthorityID: "auth_m",
		ProgramID:   "prog_1",
		Name:        "Coffee Corner",
		RewardRate:  10,
		IsActive:    true,
	}).Error)
	require.NoError(t, db.Create(&customer.Customer{
		ID:        "customer_1",
		WalletID:  "wallet_1",
		ProgramID: "prog_1",
		Tier:      customer.TierBronze,
	}).Error)

	cfg := &config.Config{}
	cfg.Loyalty = config.LoyaltyConfig{
		FeePerPoint:         5,
		RegistrationFee:     10_000,
		VoucherValidityDays: 30,
		TxMaxRetries:        2,
	}

	tokens := token.NewService(token.ServiceParams{DB: db, Node: node})
	fees := treasury.NewService(treasury.ServiceParams{DB: db, Node: node})
	rules := rule.NewService(rule.ServiceParams{DB: db, Node: node})
	records := transaction.NewService(transaction.ServiceParams{DB: db, Node: node})
	emitter := &captureEmitter{}

	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Cfg:     cfg,
		Minter:  tokens,
		Fees:    fees,
		Rules:   rules,
		Records: records,
		Emitter: emitter,
	})

	return &testEnv{
		svc: svc, db: db, tokens: tokens, treasury: fees,
		rules: rules, emitter: emitter, cfg: cfg, node: node,
	}
}

func (e *testEnv) fund(t *testing.T, amount uint64) {
	t.Helper()
	require.NoError(t, e.treasury.Deposit(context.Background(), "auth_m", amount))
}

func TestIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10), res.Breakdown.FinalReward)
	require.Equal(t, uint64(50), res.Breakdown.PlatformFee)
	require.False(t, res.RuleApplied)
	require.Equal(t, customer.TierBronze, res.Tier)
	require.False(t, res.TierUpgraded)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)

	payer, err := env.treasury.BalanceOf(ctx, "auth_m")
	require.NoError(t, err)
	require.Equal(t, uint64(99_950), payer)

	treasuryBal, err := env.treasury.BalanceOf(ctx, "treasury_1")
	require.NoError(t, err)
	require.Equal(t, uint64(50), treasuryBal)

	var p program.Program
	require.NoError(t, env.db.Where("program_id = ?", "prog_1").First(&p).Error)
	require.Equal(t, uint64(10), p.TotalTokensIssued)
	require.Equal(t, uint64(50), p.TotalFeesCollected)

	var m merchant.Merchant
	require.NoError(t, env.db.Where("merchant_id = ?", "merchant_1").First(&m).Error)
	require.Equal(t, uint64(10), m.TotalIssued)

	var c customer.Customer
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&c).Error)
	require.Equal(t, uint64(10), c.TotalEarned)
	require.Equal(t, uint64(1), c.TransactionCount)

	var rec transaction.Record
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&rec).Error)
	require.Equal(t, transaction.TypeEarn, rec.Type)
	require.Equal(t, uint64(10), rec.Amount)
	require.Equal(t, uint64(1), rec.Index)

	var pair transaction.PairRecord
	require.NoError(t, env.db.
		Where("merchant_id = ? AND customer_id = ?", "merchant_1", "customer_1").
		First(&pair).Error)
	require.Equal(t, uint64(10), pair.TotalEarned)
	require.Equal(t, uint64(1), pair.VisitCount)

	var journal int64
	require.NoError(t, env.db.Model(&PendingIssuance{}).Count(&journal).Error)
	require.Equal(t, int64(0), journal)

	require.Contains(t, env.emitter.tasks, events.TaskRewardsIssued)
}

func TestIssueAppliesBestRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	_, err := env.rules.Set(ctx, rule.SetRequest{
		AuthorityID: "auth_m",
		MerchantID:  "merchant_1",
		Name:        "happy hour",
		Kind:        rule.KindBonusMultiplier,
		Multiplier:  150,
	})
	require.NoError(t, err)

	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.NoError(t, err)
	require.True(t, res.RuleApplied)
	require.Equal(t, uint64(15), res.Breakdown.FinalReward)
}

func TestIssueExplicitRuleOverridesBest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	_, err := env.rules.Set(ctx, rule.SetRequest{
		AuthorityID: "auth_m",
		MerchantID:  "merchant_1",
		Name:        "double points",
		Kind:        rule.KindBonusMultiplier,
		Multiplier:  200,
	})
	require.NoError(t, err)

	modest, err := env.rules.Set(ctx, rule.SetRequest{
		AuthorityID: "auth_m",
		MerchantID:  "merchant_1",
		Name:        "modest bonus",
		Kind:        rule.KindBonusMultiplier,
		Multiplier:  150,
	})
	require.NoError(t, err)

	// Naming a rule pins it even when a better one would apply.
	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
		RuleID:         modest.ID,
	})
	require.NoError(t, err)
	require.True(t, res.RuleApplied)
	require.Equal(t, modest.ID, res.RuleID)
	require.Equal(t, uint64(15), res.Breakdown.FinalReward)
}

func TestIssueUnknownRuleFallsBackToNeutral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
		RuleID:         "rule_missing",
	})
	require.NoError(t, err)
	require.False(t, res.RuleApplied)
	require.Equal(t, uint64(10), res.Breakdown.FinalReward)
}

func TestIssueForeignRuleFallsBackToNeutral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	require.NoError(t, env.db.Create(&merchant.Merchant{
		ID:          "merchant_2",
		AuthorityID: "auth_m2",
		ProgramID:   "prog_1",
		Name:        "Bakery",
		RewardRate:  10,
		IsActive:    true,
	}).Error)
	foreign, err := env.rules.Set(ctx, rule.SetRequest{
		AuthorityID: "auth_m2",
		MerchantID:  "merchant_2",
		Name:        "bakery bonus",
		Kind:        rule.KindBonusMultiplier,
		Multiplier:  300,
	})
	require.NoError(t, err)

	// Another merchant's rule never leaks into this merchant's issuance.
	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
		RuleID:         foreign.ID,
	})
	require.NoError(t, err)
	require.False(t, res.RuleApplied)
	require.Equal(t, uint64(10), res.Breakdown.FinalReward)
}

func TestIssueTierUpgrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	require.NoError(t, env.db.Model(&customer.Customer{}).
		Where("customer_id = ?", "customer_1").
		Update("total_earned", 995).Error)

	res, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.NoError(t, err)
	require.True(t, res.TierUpgraded)
	require.Equal(t, customer.TierBronze, res.Tier)
	require.Equal(t, customer.TierSilver, res.NewTier)

	var c customer.Customer
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&c).Error)
	require.Equal(t, customer.TierSilver, c.Tier)

	require.Contains(t, env.emitter.tasks, events.TaskTierUpgraded)
}

func TestIssueFeeUnpayable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))

	// Fee is a precondition: nothing minted, nothing journaled.
	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)

	var journal int64
	require.NoError(t, env.db.Model(&PendingIssuance{}).Count(&journal).Error)
	require.Equal(t, int64(0), journal)
}

func TestIssueInactiveMerchant(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, 100_000)

	require.NoError(t, env.db.Model(&merchant.Merchant{}).
		Where("merchant_id = ?", "merchant_1").
		Update("is_active", false).Error)

	_, err := env.svc.Issue(context.Background(), IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.True(t, errutil.Is(err, errutil.StatusInactive))
}

func TestIssueZeroRewardRejected(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, 100_000)

	_, err := env.svc.Issue(context.Background(), IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 50,
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))
}

func TestIssueMintFailureJournalsResidue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	broken := *env.svc
	broken.minter = failingMinter{}

	_, err := broken.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.True(t, errutil.Is(err, errutil.StatusInternal))

	// Fee moved, mint did not: the journal row marks the residue.
	treasuryBal, err := env.treasury.BalanceOf(ctx, "treasury_1")
	require.NoError(t, err)
	require.Equal(t, uint64(50), treasuryBal)

	var row PendingIssuance
	require.NoError(t, env.db.First(&row).Error)
	require.Equal(t, StageMintPending, row.Stage)
	require.Equal(t, uint64(10), row.FinalReward)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)
}

func TestReconcileFinishesStalledIssuance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	broken := *env.svc
	broken.minter = failingMinter{}
	_, err := broken.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.Error(t, err)

	// Age the row past the sweep threshold.
	require.NoError(t, env.db.Model(&PendingIssuance{}).
		Where("1 = 1").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	require.NoError(t, env.svc.Reconcile(ctx))

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)

	var c customer.Customer
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&c).Error)
	require.Equal(t, uint64(10), c.TotalEarned)

	var journal int64
	require.NoError(t, env.db.Model(&PendingIssuance{}).Count(&journal).Error)
	require.Equal(t, int64(0), journal)
}

func TestReconcileMintRetryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, 100_000)

	broken := *env.svc
	broken.minter = failingMinter{}
	_, err := broken.Issue(ctx, IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
	})
	require.Error(t, err)

	require.NoError(t, env.db.Model(&PendingIssuance{}).
		Where("1 = 1").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	// A sweep whose mint fails rolls the stage stamp back with it, so the
	// row stays claimable and nothing was minted.
	require.Error(t, broken.Reconcile(ctx))

	var row PendingIssuance
	require.NoError(t, env.db.First(&row).Error)
	require.Equal(t, StageMintPending, row.Stage)
	require.Equal(t, uint32(1), row.Attempts)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)

	// The next sweep with a working mint finishes the row exactly once.
	require.NoError(t, env.svc.Reconcile(ctx))

	balance, err = env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), balance)

	var journal int64
	require.NoError(t, env.db.Model(&PendingIssuance{}).Count(&journal).Error)
	require.Equal(t, int64(0), journal)
}

func TestReconcileDropsFeePendingRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.Create(&PendingIssuance{
		ID:             "stale_1",
		MerchantID:     "merchant_1",
		CustomerID:     "customer_1",
		PurchaseAmount: 10_000,
		FinalReward:    10,
		PlatformFee:    50,
		Stage:          StageFeePending,
	}).Error)
	require.NoError(t, env.db.Model(&PendingIssuance{}).
		Where("issuance_id = ?", "stale_1").
		Update("created_at", time.Now().Add(-time.Hour)).Error)

	require.NoError(t, env.svc.Reconcile(ctx))

	var journal int64
	require.NoError(t, env.db.Model(&PendingIssuance{}).Count(&journal).Error)
	require.Equal(t, int64(0), journal)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)
}

func TestIssueCrossProgramCustomerRejected(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, 100_000)

	require.NoError(t, env.db.Create(&customer.Customer{
		ID:        "customer_other",
		WalletID:  "wallet_2",
		ProgramID: "prog_other",
		Tier:      customer.TierBronze,
	}).Error)

	_, err := env.svc.Issue(context.Background(), IssueRequest{
		MerchantID:     "merchant_1",
		CustomerID:     "customer_other",
		PurchaseAmount: 10_000,
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))
}
