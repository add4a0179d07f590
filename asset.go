package core

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type (
	TokenManager interface {
		PoolAssets(ctx context.Context) ([]string, error)
		GetAsset(ctx context.Context, symbol string) (*Asset, error)
	}

	Asset struct {
		Symbol       string          `json:"symbol"`
		Address      common.Address  `json:"address"`
		Decimals     int32           `json:"decimals"`
		DebtCoverage decimal.Decimal `json:"debtCoverage"`
	}

	AssetAmount struct {
		Symbol string          `json:"symbol"`
		Amount decimal.Decimal `json:"amount"`
	}

	// AssetAmounts keeps insertion order. Order is part of the contract wherever
	// amounts are allocated across assets.
	AssetAmounts []AssetAmount

	Prices map[string]decimal.Decimal
)

func NewAssetAmounts(pairs ...AssetAmount) AssetAmounts {
	out := make(AssetAmounts, 0, len(pairs))
	return append(out, pairs...)
}

func (a AssetAmounts) Get(symbol string) (decimal.Decimal, bool) {
	for _, it := range a {
		if it.Symbol == symbol {
			return it.Amount, true
		}
	}
	return decimal.Zero, false
}

func (a AssetAmounts) Amount(symbol string) decimal.Decimal {
	amount, _ := a.Get(symbol)
	return amount
}

func (a AssetAmounts) Symbols() []string {
	symbols := make([]string, 0, len(a))
	for _, it := range a {
		symbols = append(symbols, it.Symbol)
	}
	return symbols
}

// NonZero drops entries whose amount is not positive.
func (a AssetAmounts) NonZero() AssetAmounts {
	out := make(AssetAmounts, 0, len(a))
	for _, it := range a {
		if it.Amount.GreaterThan(ZERO_AMOUNT_THRESHOLD) {
			out = append(out, it)
		}
	}
	return out
}

func (a AssetAmounts) UsdValue(prices Prices) decimal.Decimal {
	total := decimal.Zero
	for _, it := range a {
		value, _ := CalcValue(it.Amount, prices[it.Symbol], nil)
		total = total.Add(value)
	}
	return total
}

func (a AssetAmounts) Clone() AssetAmounts {
	out := make(AssetAmounts, len(a))
	copy(out, a)
	return out
}

func (p Prices) Price(symbol string) (decimal.Decimal, error) {
	price, ok := p[symbol]
	if !ok {
		return decimal.Zero, ErrMissingPrice
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return price, nil
}

func (p Prices) Symbols() []string {
	symbols := make([]string, 0, len(p))
	for s := range p {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func (a *Asset) GetWeight(requirementType RequirementType) decimal.Decimal {
	switch requirementType {
	case Maintenance:
		return a.DebtCoverage
	case Equity:
		return ONE
	default:
		return decimal.Zero
	}
}
