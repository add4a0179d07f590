package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestHealthRatio(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(s *LoanSnapshot)
		expected decimal.Decimal
	}{
		{
			name:     "weighted by debt coverage",
			modify:   func(s *LoanSnapshot) {},
			expected: d("0.9163"),
		},
		{
			name:     "no debt",
			modify:   func(s *LoanSnapshot) { s.Debts = nil },
			expected: MAX_HEALTH_RATIO,
		},
		{
			name:     "asset without metadata carries no weight",
			modify:   func(s *LoanSnapshot) { delete(s.Assets, "ETH") },
			expected: decimal.Zero,
		},
		{
			name: "reward token",
			modify: func(s *LoanSnapshot) {
				s.Balances = append(s.Balances, AssetAmount{"RWD", d("100")})
				s.Prices["RWD"] = d("10")
				s.Assets["RWD"] = &Asset{Symbol: "RWD", DebtCoverage: decimal.Zero}
			},
			expected: d("0.9163"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := testSnapshot()
			tt.modify(snapshot)
			result := snapshot.HealthRatio()
			assert.True(t, result.Equal(tt.expected), "expected %s, got %s", tt.expected, result)
		})
	}
}

func TestHealthComponents(t *testing.T) {
	snapshot := testSnapshot()

	collateral, debt := snapshot.GetHealthComponents(Equity)
	assert.True(t, collateral.Equal(d("1100")))
	assert.True(t, debt.Equal(d("1000")))
	assert.True(t, GetHealthRatio(collateral, debt).Equal(d("1.1")))

	assert.True(t, GetHealthRatio(d("-5"), debt).IsZero())
	assert.False(t, snapshot.IsSolvent())
}

func TestIsBankrupt(t *testing.T) {
	snapshot := testSnapshot()
	assert.False(t, snapshot.IsBankrupt())
	assert.True(t, snapshot.TotalValue().Equal(d("1100")))

	// collateral without metadata still counts at face value
	delete(snapshot.Assets, "ETH")
	assert.False(t, snapshot.IsBankrupt())
	assert.True(t, snapshot.HealthRatio().IsZero())

	snapshot.Prices["ETH"] = d("1800")
	assert.True(t, snapshot.IsBankrupt())
}

func TestSnapshotSymbols(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.PoolAssets = []string{"USDC", "DAI"}
	assert.Equal(t, []string{"USDC", "DAI", "ETH"}, snapshot.Symbols())
}
