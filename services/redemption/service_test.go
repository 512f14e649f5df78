package redemption

import (
	"context"
	"strings"
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
	"solcity-loyalty/services/offer"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/testutil"
	"solcity-loyalty/services/token"
	"solcity-loyalty/services/transaction"
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

type testEnv struct {
	svc     *Service
	db      *gorm.DB
	tokens  *token.Service
	emitter *captureEmitter
	node    *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&program.Program{}, &merchant.Merchant{}, &customer.Customer{},
		&offer.RedemptionOffer{}, &Voucher{}, &OfferRedemption{},
		&token.Balance{}, &token.LedgerEntry{},
		&transaction.Record{}, &transaction.PairRecord{},
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
		VoucherValidityDays: 30,
		TxMaxRetries:        2,
	}

	tokens := token.NewService(token.ServiceParams{DB: db, Node: node})
	records := transaction.NewService(transaction.ServiceParams{DB: db, Node: node})
	emitter := &captureEmitter{}

	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Cfg:     cfg,
		Burner:  tokens,
		Records: records,
		Emitter: emitter,
	})

	return &testEnv{svc: svc, db: db, tokens: tokens, emitter: emitter, node: node}
}

func (e *testEnv) createOffer(t *testing.T, cost uint64, limit *uint64) *offer.RedemptionOffer {
	t.Helper()
	o := &offer.RedemptionOffer{
		ID:            e.node.Generate().String(),
		MerchantID:    "merchant_1",
		Name:          "Free espresso",
		Description:   "One free double espresso",
		Cost:          cost,
		Kind:          offer.KindFreeProduct,
		QuantityLimit: limit,
		IsActive:      true,
	}
	require.NoError(t, e.db.Create(o).Error)
	return o
}

func (e *testEnv) mint(t *testing.T, amount uint64) {
	t.Helper()
	require.NoError(t, e.tokens.Mint(context.Background(), "customer_1", amount))
}

func TestRedeem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mint(t, 500)
	o := env.createOffer(t, 100, nil)

	v, err := env.svc.Redeem(ctx, RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.NoError(t, err)
	require.Equal(t, StatusActive, v.Status)
	require.False(t, v.IsUsed)
	require.True(t, strings.HasPrefix(v.Code, "SLCY-"))
	require.Equal(t, "Free espresso", v.OfferName)
	require.Equal(t, "One free double espresso", v.OfferDescription)
	require.Equal(t, "Coffee Corner", v.MerchantName)
	require.Equal(t, uint64(100), v.Cost)
	require.WithinDuration(t, time.Now().AddDate(0, 0, 30), v.ExpiresAt, time.Minute)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(400), balance)

	var stored offer.RedemptionOffer
	require.NoError(t, env.db.Where("offer_id = ?", o.ID).First(&stored).Error)
	require.Equal(t, uint64(1), stored.QuantityClaimed)

	var mirror OfferRedemption
	require.NoError(t, env.db.Where("voucher_id = ?", v.ID).First(&mirror).Error)
	require.False(t, mirror.Used)
	require.Equal(t, "merchant_1", mirror.MerchantID)
	require.Equal(t, uint64(100), mirror.Amount)

	var rec transaction.Record
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&rec).Error)
	require.Equal(t, transaction.TypeRedeem, rec.Type)
	require.Equal(t, uint64(100), rec.Amount)

	var c customer.Customer
	require.NoError(t, env.db.Where("customer_id = ?", "customer_1").First(&c).Error)
	require.Equal(t, uint64(100), c.TotalRedeemed)

	var p program.Program
	require.NoError(t, env.db.Where("program_id = ?", "prog_1").First(&p).Error)
	require.Equal(t, uint64(100), p.TotalTokensRedeemed)

	require.Contains(t, env.emitter.tasks, events.TaskRewardsRedeemed)
}

func TestRedeemQuantityLimitExhausted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mint(t, 500)
	one := uint64(1)
	o := env.createOffer(t, 100, &one)

	_, err := env.svc.Redeem(ctx, RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.NoError(t, err)

	_, err = env.svc.Redeem(ctx, RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.True(t, errutil.Is(err, errutil.StatusUnavailable))

	var stored offer.RedemptionOffer
	require.NoError(t, env.db.Where("offer_id = ?", o.ID).First(&stored).Error)
	require.Equal(t, uint64(1), stored.QuantityClaimed)
}

func TestRedeemConcurrentQuantityLimit(t *testing.T) {
	env := newTestEnv(t)
	env.mint(t, 500)
	one := uint64(1)
	o := env.createOffer(t, 100, &one)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := env.svc.Redeem(context.Background(), RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
			errs <- err
		}()
	}

	var won, lost int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			won++
		case errutil.Is(err, errutil.StatusUnavailable):
			lost++
		default:
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)

	var stored offer.RedemptionOffer
	require.NoError(t, env.db.Where("offer_id = ?", o.ID).First(&stored).Error)
	require.Equal(t, uint64(1), stored.QuantityClaimed)

	var vouchers int64
	require.NoError(t, env.db.Model(&Voucher{}).Where("offer_id = ?", o.ID).Count(&vouchers).Error)
	require.Equal(t, int64(1), vouchers)
}

func TestRedeemInsufficientBalanceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mint(t, 50)
	five := uint64(5)
	o := env.createOffer(t, 100, &five)

	_, err := env.svc.Redeem(ctx, RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.True(t, errutil.Is(err, errutil.StatusInsufficientBalance))

	var stored offer.RedemptionOffer
	require.NoError(t, env.db.Where("offer_id = ?", o.ID).First(&stored).Error)
	require.Equal(t, uint64(0), stored.QuantityClaimed)

	balance, err := env.tokens.BalanceOf(ctx, "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(50), balance)

	var vouchers int64
	require.NoError(t, env.db.Model(&Voucher{}).Where("offer_id = ?", o.ID).Count(&vouchers).Error)
	require.Equal(t, int64(0), vouchers)
}

func TestRedeemInactiveOffer(t *testing.T) {
	env := newTestEnv(t)
	env.mint(t, 500)
	o := env.createOffer(t, 100, nil)
	require.NoError(t, env.db.Model(&offer.RedemptionOffer{}).
		Where("offer_id = ?", o.ID).
		Update("is_active", false).Error)

	_, err := env.svc.Redeem(context.Background(), RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.True(t, errutil.Is(err, errutil.StatusUnavailable))
}

func TestRedeemInactiveMerchant(t *testing.T) {
	env := newTestEnv(t)
	env.mint(t, 500)
	o := env.createOffer(t, 100, nil)
	require.NoError(t, env.db.Model(&merchant.Merchant{}).
		Where("merchant_id = ?", "merchant_1").
		Update("is_active", false).Error)

	_, err := env.svc.Redeem(context.Background(), RedeemRequest{CustomerID: "customer_1", OfferID: o.ID})
	require.True(t, errutil.Is(err, errutil.StatusInactive))
}

func TestRedeemUnknownOffer(t *testing.T) {
	env := newTestEnv(t)
	env.mint(t, 500)

	_, err := env.svc.Redeem(context.Background(), RedeemRequest{CustomerID: "customer_1", OfferID: "missing"})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}
