package rule

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/testutil"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	zap.ReplaceGlobals(zap.NewNop())

	db := testutil.NewTestDB(t, &RewardRule{}, &merchant.Merchant{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&merchant.Merchant{
		ID:          "merchant_1",
		AuthorityID: "auth_1",
		ProgramID:   "prog_1",
		Name:        "Coffee Corner",
		RewardRate:  10,
		IsActive:    true,
	}).Error)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestSetRule(t *testing.T) {
	svc, _ := newTestService(t)

	r, err := svc.Set(context.Background(), SetRequest{
		AuthorityID: "auth_1",
		MerchantID:  "merchant_1",
		Name:        "weekend double",
		Kind:        KindBonusMultiplier,
		Multiplier:  200,
		MinPurchase: 1000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.True(t, r.IsActive)
}

func TestSetRuleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "", Kind: KindBase, Multiplier: 100,
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))

	_, err = svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "sub-neutral", Kind: KindBase, Multiplier: 99,
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))

	_, err = svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "bad window", Kind: KindBase, Multiplier: 100,
		StartTime: 2000, EndTime: 1000,
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidTimeRange))

	_, err = svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "bad expr", Kind: KindBase, Multiplier: 100,
		Expression: "amount >=> 10",
	})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))
}

func TestSetRuleWrongAuthority(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Set(context.Background(), SetRequest{
		AuthorityID: "auth_other",
		MerchantID:  "merchant_1",
		Name:        "hostile rule",
		Kind:        KindBase,
		Multiplier:  100,
	})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestToggleAndCountActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "happy hour", Kind: KindBonusMultiplier, Multiplier: 150,
	})
	require.NoError(t, err)

	n, err := svc.CountActive(ctx, "merchant_1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	toggled, err := svc.Toggle(ctx, r.ID, "auth_1")
	require.NoError(t, err)
	require.False(t, toggled.IsActive)

	n, err = svc.CountActive(ctx, "merchant_1")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestDeleteRule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "short lived", Kind: KindBase, Multiplier: 100,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, r.ID, "auth_1"))

	_, err = svc.Get(ctx, r.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestBestForPicksHighestMultiplier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "modest", Kind: KindBonusMultiplier, Multiplier: 150,
	})
	require.NoError(t, err)
	_, err = svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "generous", Kind: KindBonusMultiplier, Multiplier: 300,
	})
	require.NoError(t, err)
	_, err = svc.Set(ctx, SetRequest{
		AuthorityID: "auth_1", MerchantID: "merchant_1",
		Name: "big spender only", Kind: KindBonusMultiplier, Multiplier: 500,
		MinPurchase: 100_000,
	})
	require.NoError(t, err)

	out, err := svc.BestFor(ctx, "merchant_1", PurchaseContext{Amount: 5000}, time.Now())
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, uint64(300), out.Multiplier)
}

func TestBestForNoRulesIsNeutral(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.BestFor(context.Background(), "merchant_1", PurchaseContext{Amount: 5000}, time.Now())
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Equal(t, NeutralMultiplier, out.Multiplier)
}
