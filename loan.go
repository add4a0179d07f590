package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	LoanReader interface {
		Debts(ctx context.Context, loan common.Address) (AssetAmounts, error)
		Balances(ctx context.Context, loan common.Address) (AssetAmounts, error)
		OwnedAssets(ctx context.Context, loan common.Address) ([]string, error)
		StakedPositions(ctx context.Context, loan common.Address) ([]StakedPosition, error)
		// HealthRatio is evaluated on-chain and needs a fresh oracle payload.
		HealthRatio(ctx context.Context, loan common.Address, oraclePayload []byte) (decimal.Decimal, error)
		MaxLiquidationBonus(ctx context.Context, loan common.Address) (decimal.Decimal, error)
	}

	LoanRegistry interface {
		AllLoans(ctx context.Context) ([]common.Address, error)
	}

	StakedPosition struct {
		Asset           common.Address `json:"asset"`
		Symbol          string         `json:"symbol"`
		Identifier      string         `json:"identifier"`
		BalanceSelector [4]byte        `json:"balanceSelector"`
		UnstakeSelector [4]byte        `json:"unstakeSelector"`
	}

	// LoanSnapshot is the state of one loan read at ReadAt. It is only valid for
	// the attempt that read it.
	LoanSnapshot struct {
		Address    common.Address    `json:"address"`
		Debts      AssetAmounts      `json:"debts"`
		Balances   AssetAmounts      `json:"balances"`
		Prices     Prices            `json:"prices"`
		Assets     map[string]*Asset `json:"assets"`
		PoolAssets []string          `json:"poolAssets"`
		ReadAt     int64             `json:"readAt"`
	}
)

func (l *LoanSnapshot) TotalValue() decimal.Decimal {
	return l.Balances.UsdValue(l.Prices)
}

func (l *LoanSnapshot) Debt() decimal.Decimal {
	return l.Debts.UsdValue(l.Prices)
}

// IsBankrupt compares collateral at face value with the debt.
func (l *LoanSnapshot) IsBankrupt() bool {
	collateral, debt := l.GetHealthComponents(Equity)
	return collateral.LessThan(debt)
}

// Validate makes sure every non-empty position is priced.
func (l *LoanSnapshot) Validate() error {
	for _, set := range []AssetAmounts{l.Debts, l.Balances} {
		for _, it := range set.NonZero() {
			if _, err := l.Prices.Price(it.Symbol); err != nil {
				return errors.Wrapf(err, "%s", it.Symbol)
			}
		}
	}
	return nil
}

// Symbols returns every symbol the on-chain logic of the loan may price.
func (l *LoanSnapshot) Symbols() []string {
	seen := map[string]bool{}
	var out []string
	add := func(symbols []string) {
		for _, s := range symbols {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(l.PoolAssets)
	add(l.Debts.Symbols())
	add(l.Balances.Symbols())
	return out
}
