package core

import (
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptExtra(t *testing.T) {
	extra := AttemptExtra{BonusPerMille: 50, HealthRatio: "0.91"}

	value, err := extra.Value()
	require.NoError(t, err)

	for _, raw := range []any{value, []byte(value.(string))} {
		var scanned AttemptExtra
		require.NoError(t, scanned.Scan(raw))
		assert.Equal(t, extra, scanned)
	}

	var scanned AttemptExtra
	assert.Error(t, scanned.Scan(42))
}

func TestAttemptUpdateStatus(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(time.Hour)

	attempt := NewAttempt(clk, "id", "0xloan", ActionLiquidate, AttemptExtra{})
	assert.Equal(t, AttemptStatusPending, attempt.Status)
	assert.True(t, attempt.Status.Unresolved())

	clk.Add(time.Minute)
	attempt.UpdateStatus(clk, AttemptStatusReverted, "execution reverted")

	assert.Equal(t, AttemptStatusReverted, attempt.Status)
	assert.False(t, attempt.Status.Unresolved())
	assert.Equal(t, attempt.CreatedAt+60, attempt.UpdatedAt)
	assert.True(t, AttemptStatusUnknown.Unresolved())
}
