package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	core "github.com/DomeLiquid/liquidator"
	"github.com/DomeLiquid/liquidator/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLoan = "0x00000000000000000000000000000000000000BB"

func setupTestStore(t *testing.T) *AttemptStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.Must(uuid.NewV4()).String())
	db, err := Open(DriverSqlite, dsn)
	require.NoError(t, err)
	return NewAttemptStore(db)
}

func newAttempt(clk clock.Clock, readAt int64) *core.Attempt {
	plan := &core.LiquidationPlan{
		Action:        core.ActionLiquidate,
		Mode:          core.PlanModeTargetLTV,
		TotalRepayUsd: decimal.RequireFromString("956.54"),
		RepayAmounts:  core.AssetAmounts{{Symbol: "USDC", Amount: decimal.RequireFromString("956.54")}},
		Bonus:         decimal.RequireFromString("0.05"),
		MaxBonus:      decimal.RequireFromString("0.05"),
	}
	id := utils.AttemptId(testLoan, core.ActionLiquidate.String(), readAt)
	return core.NewAttempt(clk, id, testLoan, core.ActionLiquidate, core.AttemptExtra{Plan: plan, BonusPerMille: 50, HealthRatio: "0.9163"})
}

func TestAttemptStore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	clk := clock.NewMock()
	clk.Add(1700000000 * time.Second)

	a := newAttempt(clk, 100)
	a.TxHash = "0xabc"
	require.NoError(t, s.CreateAttempt(ctx, a))

	got, err := s.GetAttempt(ctx, a.Id)
	require.NoError(t, err)
	assert.Equal(t, core.AttemptStatusPending, got.Status)
	assert.Equal(t, "0xabc", got.TxHash)
	assert.Equal(t, int64(1700000000), got.CreatedAt)
	require.NotNil(t, got.Extra.Plan)
	assert.Equal(t, "956.54", got.Extra.Plan.TotalRepayUsd.String())
	assert.Equal(t, int64(50), got.Extra.BonusPerMille)

	require.NoError(t, s.UpdateAttemptStatus(ctx, a.Id, core.AttemptStatusReverted, "insufficient repayment", 1700000060))
	got, err = s.GetAttempt(ctx, a.Id)
	require.NoError(t, err)
	assert.Equal(t, core.AttemptStatusReverted, got.Status)
	assert.Equal(t, "insufficient repayment", got.Message)
	assert.Equal(t, int64(1700000060), got.UpdatedAt)

	_, err = s.GetAttempt(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.UpdateAttemptStatus(ctx, "missing", core.AttemptStatusFailed, "", 0), core.ErrNotFound)
}

func TestListUnresolvedAttempts(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	clk := clock.NewMock()

	statuses := []core.AttemptStatus{
		core.AttemptStatusUnknown,
		core.AttemptStatusLiquidated,
		core.AttemptStatusPending,
		core.AttemptStatusNotLiquidatable,
	}
	var ids []string
	for i, status := range statuses {
		clk.Add(time.Minute)
		a := newAttempt(clk, int64(100+i))
		a.Status = status
		require.NoError(t, s.CreateAttempt(ctx, a))
		ids = append(ids, a.Id)
	}

	other := newAttempt(clk, 999)
	other.Loan = "0x00000000000000000000000000000000000000cc"
	require.NoError(t, s.CreateAttempt(ctx, other))

	// loan addresses match case-insensitively
	attempts, err := s.ListUnresolvedAttempts(ctx, "0x00000000000000000000000000000000000000bb")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, ids[0], attempts[0].Id)
	assert.Equal(t, ids[2], attempts[1].Id)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
}
