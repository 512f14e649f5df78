package customer

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Customer{}, &program.Program{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&program.Program{
		ID:          "prog_1",
		AuthorityID: "auth_program",
		MintID:      "mint_1",
		TreasuryID:  "treasury_1",
		Name:        "SolCity Rewards",
	}).Error)

	return NewService(ServiceParams{DB: db, Node: node}), db
}

func TestRegister(t *testing.T) {
	svc, db := newTestService(t)

	c, err := svc.Register(context.Background(), RegisterRequest{
		WalletID:  "wallet_1",
		ProgramID: "prog_1",
	})
	require.NoError(t, err)
	require.Equal(t, TierBronze, c.Tier)
	require.Equal(t, uint64(0), c.TotalEarned)

	var p program.Program
	require.NoError(t, db.Where("program_id = ?", "prog_1").First(&p).Error)
	require.Equal(t, uint64(1), p.TotalCustomers)
}

func TestRegisterDuplicateWallet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{WalletID: "wallet_1", ProgramID: "prog_1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{WalletID: "wallet_1", ProgramID: "prog_1"})
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestRegisterUnknownProgram(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterRequest{
		WalletID:  "wallet_1",
		ProgramID: "prog_missing",
	})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}
