package redemption

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/pkg/events"
)

func redeemVoucher(t *testing.T, env *testEnv) *Voucher {
	t.Helper()
	env.mint(t, 500)
	o := env.createOffer(t, 100, nil)
	v, err := env.svc.Redeem(context.Background(), RedeemRequest{
		CustomerID: "customer_1",
		OfferID:    o.ID,
	})
	require.NoError(t, err)
	return v
}

func TestMarkUsed(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)
	ctx := context.Background()

	used, err := env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
	require.True(t, used.IsUsed)
	require.NotNil(t, used.UsedAt)

	var mirror OfferRedemption
	require.NoError(t, env.db.Where("voucher_id = ?", v.ID).First(&mirror).Error)
	require.True(t, mirror.Used)
	require.NotNil(t, mirror.UsedAt)

	require.Contains(t, env.emitter.tasks, events.TaskVoucherUsed)
}

func TestMarkUsedTwice(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)
	ctx := context.Background()

	_, err := env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.NoError(t, err)

	_, err = env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.True(t, errutil.Is(err, errutil.StatusAlreadyUsed))
}

func TestMarkUsedWrongAuthority(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)

	_, err := env.svc.MarkUsed(context.Background(), v.ID, "auth_other")
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestMarkUsedExpired(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)

	require.NoError(t, env.db.Model(&Voucher{}).
		Where("voucher_id = ?", v.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err := env.svc.MarkUsed(context.Background(), v.ID, "auth_m")
	require.True(t, errutil.Is(err, errutil.StatusExpired))
}

func TestRevokeAndReactivate(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)
	ctx := context.Background()

	revoked, err := env.svc.Revoke(ctx, v.ID, "auth_m")
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, revoked.Status)
	require.True(t, revoked.IsUsed)
	require.NotNil(t, revoked.UsedAt)

	// A revoked voucher cannot be consumed.
	_, err = env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.True(t, errutil.Is(err, errutil.StatusInactive))

	restored, err := env.svc.Reactivate(ctx, v.ID, "auth_m")
	require.NoError(t, err)
	require.Equal(t, StatusActive, restored.Status)
	require.False(t, restored.IsUsed)
	require.Nil(t, restored.UsedAt)

	var mirror OfferRedemption
	require.NoError(t, env.db.Where("voucher_id = ?", v.ID).First(&mirror).Error)
	require.False(t, mirror.Used)
	require.Nil(t, mirror.UsedAt)

	used, err := env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.NoError(t, err)
	require.Equal(t, StatusUsed, used.Status)
}

func TestRevokeUsedVoucher(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)
	ctx := context.Background()

	_, err := env.svc.MarkUsed(ctx, v.ID, "auth_m")
	require.NoError(t, err)

	_, err = env.svc.Revoke(ctx, v.ID, "auth_m")
	require.True(t, errutil.Is(err, errutil.StatusAlreadyUsed))
}

func TestReactivateActiveVoucher(t *testing.T) {
	env := newTestEnv(t)
	v := redeemVoucher(t, env)

	_, err := env.svc.Reactivate(context.Background(), v.ID, "auth_m")
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestListForCustomer(t *testing.T) {
	env := newTestEnv(t)
	redeemVoucher(t, env)

	vouchers, err := env.svc.ListForCustomer(context.Background(), "customer_1")
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
}

func TestRedemptionCodeShape(t *testing.T) {
	require.Equal(t, "SLCY-0000-0000", redemptionCode(0))
	require.Equal(t, "SLCY-1A85-0929", redemptionCode(12_345_6789))
	require.Regexp(t, `^SLCY-[0-9A-F]{4}-[0-9A-F]{4}$`, redemptionCode(time.Now().UnixNano()))
}
