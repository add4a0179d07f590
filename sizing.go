package core

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ToRepay returns the USD value of debt to repay. For LIQUIDATE this is the
// amount that brings the loan back to targetLTV once repay of debt and
// repay·(1+bonus) of collateral have left the loan.
func ToRepay(action Action, debt, initialTotalValue, targetLTV, bonus decimal.Decimal) decimal.Decimal {
	switch action {
	case ActionClose:
		return debt
	case ActionHeal:
		// (debt - L·(TV - debt)) / (1 + L)
		return debt.Sub(targetLTV.Mul(initialTotalValue.Sub(debt))).Div(ONE.Add(targetLTV))
	default:
		// ((1 + L)·debt - L·TV) / (1 - L·bonus)
		return ONE.Add(targetLTV).Mul(debt).Sub(targetLTV.Mul(initialTotalValue)).
			Div(ONE.Sub(targetLTV.Mul(bonus)))
	}
}

// CalculateBonus returns the liquidator bonus, capped by maxBonus and rounded to
// 0.1% so that it survives the per-mille conversion unchanged.
func CalculateBonus(action Action, debt, initialTotalValue, targetLTV, maxBonus decimal.Decimal) decimal.Decimal {
	if !action.HasBonus() || !debt.IsPositive() || !targetLTV.IsPositive() {
		return decimal.Zero
	}
	repayRatio := ONE.Add(targetLTV).Mul(debt).Sub(targetLTV.Mul(initialTotalValue)).Div(debt)
	possible := ONE.Sub(repayRatio).Div(targetLTV)

	bonus := decimal.Min(possible, maxBonus)
	if bonus.IsNegative() {
		return decimal.Zero
	}
	bonus = bonus.Round(BONUS_PRECISION)
	if bonus.GreaterThan(maxBonus) {
		bonus = maxBonus.Truncate(BONUS_PRECISION)
	}
	return bonus
}

// GetSelloutRepayAmount is the closed form used by the sellout mode. The result
// carries SELLOUT_SAFETY_MARGIN to absorb price drift before execution.
func GetSelloutRepayAmount(totalValue, debt, bonus, targetLTV decimal.Decimal) decimal.Decimal {
	numerator := targetLTV.Mul(totalValue.Sub(debt)).Sub(debt)
	denominator := targetLTV.Mul(bonus).Sub(ONE)
	return numerator.Div(denominator).Mul(SELLOUT_SAFETY_MARGIN)
}

// GetRepayAmounts allocates toRepayUsd over debts in the given order. Every
// asset absorbs as much as its own debt allows before the next one is touched.
func GetRepayAmounts(debts AssetAmounts, toRepayUsd decimal.Decimal, prices Prices) AssetAmounts {
	leftToRepayUsd := decimal.Max(toRepayUsd, decimal.Zero)
	out := make(AssetAmounts, 0, len(debts))
	for _, d := range debts {
		price := prices[d.Symbol]
		availableUsd := decimal.Max(d.Amount.Mul(price), decimal.Zero)
		repaidUsd := decimal.Min(availableUsd, leftToRepayUsd)
		leftToRepayUsd = leftToRepayUsd.Sub(repaidUsd)

		amount := decimal.Zero
		switch {
		case !repaidUsd.IsPositive() || !price.IsPositive():
		case repaidUsd.Equal(availableUsd):
			amount = d.Amount
		default:
			amount, _ = repaidUsd.QuoRem(price, REPAY_AMOUNT_PRECISION)
			amount = decimal.Min(amount, d.Amount)
		}
		out = append(out, AssetAmount{Symbol: d.Symbol, Amount: amount})
	}
	return out
}

// ToSupply returns what the liquidator has to deliver on top of the loan's own
// balances, scaled by margin.
func ToSupply(balances, repayAmounts AssetAmounts, margin decimal.Decimal) AssetAmounts {
	out := make(AssetAmounts, 0, len(repayAmounts))
	for _, r := range repayAmounts {
		missing := r.Amount.Sub(balances.Amount(r.Symbol))
		amount := decimal.Zero
		if missing.IsPositive() {
			amount = missing.Mul(margin)
		}
		out = append(out, AssetAmount{Symbol: r.Symbol, Amount: amount})
	}
	return out
}

// OrderByUsdExposure sorts debts by descending USD value, ties broken by symbol.
func OrderByUsdExposure(debts AssetAmounts, prices Prices) AssetAmounts {
	out := debts.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		vi := out[i].Amount.Mul(prices[out[i].Symbol])
		vj := out[j].Amount.Mul(prices[out[j].Symbol])
		if !vi.Equal(vj) {
			return vi.GreaterThan(vj)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// OrderByPriority puts the listed symbols first, in list order. Debts not in
// the list follow by USD exposure.
func OrderByPriority(debts AssetAmounts, priority []string, prices Prices) AssetAmounts {
	out := make(AssetAmounts, 0, len(debts))
	listed := make(map[string]bool, len(priority))
	for _, symbol := range priority {
		if listed[symbol] {
			continue
		}
		listed[symbol] = true
		if amount, ok := debts.Get(symbol); ok {
			out = append(out, AssetAmount{Symbol: symbol, Amount: amount})
		}
	}
	rest := make(AssetAmounts, 0, len(debts))
	for _, d := range debts {
		if !listed[d.Symbol] {
			rest = append(rest, d)
		}
	}
	return append(out, OrderByUsdExposure(rest, prices)...)
}

type SizingParams struct {
	TargetLTV    decimal.Decimal
	MaxBonus     decimal.Decimal
	SupplyMargin decimal.Decimal
	Mode         PlanMode
	// Debt assets repaid first. Empty means descending USD exposure.
	Priority []string
}

func DefaultSizingParams() SizingParams {
	return SizingParams{
		TargetLTV:    DEFAULT_TARGET_LTV,
		MaxBonus:     DEFAULT_MAX_BONUS,
		SupplyMargin: SUPPLY_SAFETY_MARGIN,
		Mode:         PlanModeTargetLTV,
	}
}

func (p SizingParams) Validate() error {
	if !p.TargetLTV.IsPositive() {
		return errors.Wrapf(ErrInvalidTargetLTV, "target ltv %s", p.TargetLTV)
	}
	if p.MaxBonus.IsNegative() || p.MaxBonus.GreaterThanOrEqual(ONE) {
		return errors.Wrapf(ErrInvalidBonus, "max bonus %s", p.MaxBonus)
	}
	if p.TargetLTV.Mul(p.MaxBonus).GreaterThanOrEqual(ONE) {
		return errors.Wrapf(ErrInvalidBonus, "target ltv %s × max bonus %s", p.TargetLTV, p.MaxBonus)
	}
	if p.SupplyMargin.LessThan(ONE) {
		return errors.Wrapf(ErrInvalidSupplyMargin, "supply margin %s", p.SupplyMargin)
	}
	if !p.Mode.Valid() {
		return errors.Wrapf(ErrUnknownPlanMode, "%q", p.Mode)
	}
	return nil
}

func (p SizingParams) Order(debts AssetAmounts, prices Prices) AssetAmounts {
	if len(p.Priority) == 0 {
		return OrderByUsdExposure(debts, prices)
	}
	return OrderByPriority(debts, p.Priority, prices)
}

// ComputePlan sizes one attempt from a fresh snapshot. It has no side effects;
// identical inputs give identical plans.
func ComputePlan(action Action, snapshot *LoanSnapshot, params SizingParams) (*LiquidationPlan, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	debt := snapshot.Debt()
	if !debt.IsPositive() {
		return nil, ErrNoDebt
	}
	totalValue := snapshot.TotalValue()

	var bonus, totalRepayUsd decimal.Decimal
	if params.Mode == PlanModeSellout && action == ActionLiquidate {
		bonus = params.MaxBonus
		totalRepayUsd = GetSelloutRepayAmount(totalValue, debt, bonus, params.TargetLTV)
	} else {
		bonus = CalculateBonus(action, debt, totalValue, params.TargetLTV, params.MaxBonus)
		totalRepayUsd = ToRepay(action, debt, totalValue, params.TargetLTV, bonus)
	}
	if !totalRepayUsd.IsPositive() {
		return nil, errors.Wrapf(ErrNothingToRepay, "%s repay %s", action, totalRepayUsd)
	}

	order := params.Order(snapshot.Debts.NonZero(), snapshot.Prices)
	repayAmounts := GetRepayAmounts(order, totalRepayUsd, snapshot.Prices)

	plan := &LiquidationPlan{
		Action:           action,
		Mode:             params.Mode,
		TotalRepayUsd:    totalRepayUsd,
		RepayAmounts:     repayAmounts,
		DeliveredAmounts: ToSupply(snapshot.Balances, repayAmounts, params.SupplyMargin),
		Bonus:            bonus,
		MaxBonus:         params.MaxBonus,
		TargetLTV:        params.TargetLTV,
		Debt:             debt,
		TotalValue:       totalValue,
	}
	if err := plan.Validate(snapshot.Debts, snapshot.Prices); err != nil {
		return nil, err
	}
	return plan, nil
}
