package core

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func CalcValue(amount decimal.Decimal, price decimal.Decimal, weight *decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	var weightedAmount decimal.Decimal
	if weight != nil {
		weightedAmount = amount.Mul(*weight)
	} else {
		weightedAmount = amount
	}

	value := weightedAmount.Mul(price)
	return value, nil
}

// LTV is debt over equity. A loan without equity has no finite LTV.
func LTV(debt, totalValue decimal.Decimal) (decimal.Decimal, error) {
	equity := totalValue.Sub(debt)
	if !equity.IsPositive() {
		return decimal.Zero, errors.Errorf("no equity: total value %s, debt %s", totalValue, debt)
	}
	return debt.Div(equity), nil
}

// BonusToPerMille converts a bonus fraction to the integer the loan contract expects.
func BonusToPerMille(bonus decimal.Decimal) int64 {
	return bonus.Mul(decimal.NewFromInt(PER_MILLE)).Round(0).IntPart()
}

func BonusFromPerMille(perMille int64) decimal.Decimal {
	return decimal.NewFromInt(perMille).Div(decimal.NewFromInt(PER_MILLE))
}
