package core

import (
	"github.com/shopspring/decimal"
)

// GetHealthComponents returns the weighted collateral and the debt value of the
// loan. Assets without metadata carry no weight under Maintenance.
func (l *LoanSnapshot) GetHealthComponents(requirementType RequirementType) (decimal.Decimal, decimal.Decimal) {
	collateral := decimal.Zero
	for _, b := range l.Balances {
		weight := decimal.Zero
		if asset, ok := l.Assets[b.Symbol]; ok {
			weight = asset.GetWeight(requirementType)
		} else if requirementType == Equity {
			weight = ONE
		}
		value, _ := CalcValue(b.Amount, l.Prices[b.Symbol], &weight)
		collateral = collateral.Add(value)
	}
	if collateral.IsNegative() {
		collateral = decimal.Zero
	}
	return collateral, l.Debt()
}

func (l *LoanSnapshot) HealthRatio() decimal.Decimal {
	return GetHealthRatio(l.GetHealthComponents(Maintenance))
}

func GetHealthRatio(weightedCollateral, debt decimal.Decimal) decimal.Decimal {
	if !debt.IsPositive() {
		return MAX_HEALTH_RATIO
	}
	if !weightedCollateral.IsPositive() {
		return decimal.Zero
	}
	return weightedCollateral.Div(debt)
}

func (l *LoanSnapshot) IsSolvent() bool {
	return l.HealthRatio().GreaterThanOrEqual(ONE)
}
