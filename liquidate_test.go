package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiquidationPlanValidate(t *testing.T) {
	debts := NewAssetAmounts(AssetAmount{"A", d("100")}, AssetAmount{"B", d("50")})
	prices := Prices{"A": d("1"), "B": d("2")}

	valid := func() *LiquidationPlan {
		return &LiquidationPlan{
			Action:        ActionLiquidate,
			TotalRepayUsd: d("120"),
			RepayAmounts:  NewAssetAmounts(AssetAmount{"A", d("100")}, AssetAmount{"B", d("10")}),
			Bonus:         d("0.05"),
			MaxBonus:      d("0.05"),
		}
	}

	tests := []struct {
		name   string
		modify func(p *LiquidationPlan)
		ok     bool
	}{
		{"valid", func(p *LiquidationPlan) {}, true},
		{"bonus above max", func(p *LiquidationPlan) { p.Bonus = d("0.06") }, false},
		{"negative bonus", func(p *LiquidationPlan) { p.Bonus = d("-0.01") }, false},
		{"heal with bonus", func(p *LiquidationPlan) { p.Action = ActionHeal }, false},
		{"repay above debt", func(p *LiquidationPlan) { p.RepayAmounts[1].Amount = d("51"); p.TotalRepayUsd = d("1000") }, false},
		{"repaid above target", func(p *LiquidationPlan) { p.TotalRepayUsd = d("119") }, false},
		{"unknown debt", func(p *LiquidationPlan) { p.RepayAmounts = append(p.RepayAmounts, AssetAmount{"C", d("1")}) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := valid()
			tt.modify(plan)
			err := plan.Validate(debts, prices)
			if tt.ok {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPlanInvariant)
			}
		})
	}
}

func TestActions(t *testing.T) {
	assert.Equal(t, ActionClose, SelectAction(true, true))
	assert.Equal(t, ActionHeal, SelectAction(false, true))
	assert.Equal(t, ActionLiquidate, SelectAction(false, false))

	for _, a := range []Action{ActionLiquidate, ActionHeal, ActionClose} {
		parsed, err := ParseAction(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}
	_, err := ParseAction("seize")
	assert.Error(t, err)

	assert.Equal(t, "UNKNOWN", ActionUnknown.String())
	assert.False(t, ActionUnknown.HasBonus())
}
