package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Record{}, &PairRecord{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestHistoryReplayOrder(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Insert out of order; history must come back by index.
	for _, idx := range []uint64{3, 1, 2} {
		require.NoError(t, svc.Append(db, &Record{
			CustomerID: "customer_1",
			MerchantID: "merchant_1",
			Type:       TypeEarn,
			Amount:     idx * 10,
			Index:      idx,
		}))
	}

	recs, err := svc.History(ctx, "customer_1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		require.Equal(t, uint64(i+1), rec.Index)
	}

	limited, err := svc.History(ctx, "customer_1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestTouchPair(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, svc.TouchPair(db, "merchant_1", "customer_1", 10, 0, now))

	pair, err := svc.Pair(ctx, "merchant_1", "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), pair.TotalEarned)
	require.Equal(t, uint64(1), pair.VisitCount)
	require.WithinDuration(t, now, pair.FirstVisit, time.Second)

	require.NoError(t, svc.TouchPair(db, "merchant_1", "customer_1", 5, 3, now.Add(time.Hour)))

	pair, err = svc.Pair(ctx, "merchant_1", "customer_1")
	require.NoError(t, err)
	require.Equal(t, uint64(15), pair.TotalEarned)
	require.Equal(t, uint64(3), pair.TotalRedeemed)
	require.Equal(t, uint64(2), pair.VisitCount)
}

func TestPairNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Pair(context.Background(), "merchant_1", "stranger")
	require.Error(t, err)
}
