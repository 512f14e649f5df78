package offer

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &RedemptionOffer{}, &merchant.Merchant{})
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

	return NewService(ServiceParams{DB: db, Node: node})
}

func validRequest() CreateRequest {
	return CreateRequest{
		AuthorityID: "auth_1",
		MerchantID:  "merchant_1",
		Name:        "Free espresso",
		Cost:        100,
		Kind:        KindFreeProduct,
	}
}

func TestCreateOffer(t *testing.T) {
	svc := newTestService(t)

	o, err := svc.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	require.True(t, o.IsActive)
	require.Equal(t, uint64(0), o.QuantityClaimed)
}

func TestCreateOfferValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	req := validRequest()
	req.Cost = 0
	_, err := svc.Create(ctx, req)
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))

	req = validRequest()
	req.Kind = "mystery"
	_, err = svc.Create(ctx, req)
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))

	past := time.Now().Add(-time.Hour)
	req = validRequest()
	req.Expiration = &past
	_, err = svc.Create(ctx, req)
	require.True(t, errutil.Is(err, errutil.StatusInvalidTimeRange))

	zero := uint64(0)
	req = validRequest()
	req.QuantityLimit = &zero
	_, err = svc.Create(ctx, req)
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))
}

func TestCreateOfferWrongAuthority(t *testing.T) {
	svc := newTestService(t)

	req := validRequest()
	req.AuthorityID = "auth_other"
	_, err := svc.Create(context.Background(), req)
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestUpdateLimitBelowClaimedRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, svc.db.Model(&RedemptionOffer{}).
		Where("offer_id = ?", o.ID).
		Update("quantity_claimed", 5).Error)

	three := uint64(3)
	_, err = svc.Update(ctx, o.ID, UpdateRequest{AuthorityID: "auth_1", QuantityLimit: &three})
	require.True(t, errutil.Is(err, errutil.StatusInvalidInput))
}

func TestDeleteOffer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	o, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	err = svc.Delete(ctx, o.ID, "auth_other")
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))

	require.NoError(t, svc.Delete(ctx, o.ID, "auth_1"))

	_, err = svc.Get(ctx, o.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestIsAvailable(t *testing.T) {
	now := time.Now()
	limit := uint64(2)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	o := &RedemptionOffer{IsActive: true}
	require.True(t, o.IsAvailable(now))

	o = &RedemptionOffer{IsActive: false}
	require.False(t, o.IsAvailable(now))

	o = &RedemptionOffer{IsActive: true, Expiration: &future}
	require.True(t, o.IsAvailable(now))

	o = &RedemptionOffer{IsActive: true, Expiration: &past}
	require.False(t, o.IsAvailable(now))

	o = &RedemptionOffer{IsActive: true, QuantityLimit: &limit, QuantityClaimed: 1}
	require.True(t, o.IsAvailable(now))

	o = &RedemptionOffer{IsActive: true, QuantityLimit: &limit, QuantityClaimed: 2}
	require.False(t, o.IsAvailable(now))
}
