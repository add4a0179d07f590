package core

import (
	"github.com/shopspring/decimal"
)

const (
	// on-chain bonus is expressed in per-mille
	PER_MILLE = 1000

	HEALTH_RATIO_DECIMALS = 18
	ORACLE_VALUE_DECIMALS = 8

	BONUS_PRECISION int32 = 3
)

var (
	ONE = decimal.NewFromInt(1)

	ZERO_AMOUNT_THRESHOLD = decimal.Zero

	// Returned by HealthRatio for a loan without debt.
	MAX_HEALTH_RATIO = decimal.New(1, 18)

	// Top-up multiplier on what the liquidator delivers beyond the loan's own balance.
	// Sizing runs on a price snapshot that may be stale by execution time.
	SUPPLY_SAFETY_MARGIN = decimal.NewFromFloat(1.1)

	// Applied on top of SUPPLY_SAFETY_MARGIN when granting allowances. Allowance and
	// balance checks happen at different points of the liquidation call.
	ALLOWANCE_SAFETY_MARGIN = decimal.NewFromFloat(1.001)

	// Drift compensation for the sellout closed form.
	SELLOUT_SAFETY_MARGIN = decimal.NewFromFloat(1.04)

	// A loan at or above this health ratio right before submission is left alone.
	PREFLIGHT_HEALTH_THRESHOLD = decimal.NewFromFloat(0.98)

	// Off-chain and on-chain health ratios further apart than this are logged.
	HEALTH_DRIFT_WARNING = decimal.NewFromFloat(0.05)

	DEFAULT_TARGET_LTV = decimal.NewFromFloat(0.833)
	DEFAULT_MAX_BONUS  = decimal.NewFromFloat(0.05)
)

// Fractional digits kept when converting a repaid USD value back to asset units.
// The quotient is truncated so that repay × price never exceeds the allocated USD.
const REPAY_AMOUNT_PRECISION int32 = 18
