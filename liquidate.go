package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type (
	LiquidationPlan struct {
		Action        Action          `json:"action"`
		Mode          PlanMode        `json:"mode"`
		TotalRepayUsd decimal.Decimal `json:"totalRepayUsd"`
		// In repay order.
		RepayAmounts     AssetAmounts    `json:"repayAmounts"`
		DeliveredAmounts AssetAmounts    `json:"deliveredAmounts"`
		Bonus            decimal.Decimal `json:"bonus"`
		MaxBonus         decimal.Decimal `json:"maxBonus"`
		TargetLTV        decimal.Decimal `json:"targetLtv"`
		Debt             decimal.Decimal `json:"debt"`
		TotalValue       decimal.Decimal `json:"totalValue"`
	}

	// LiquidationCall is the fixed-point form of a plan, ready to be sent.
	LiquidationCall struct {
		Loan          common.Address
		Assets        []common.Address
		Amounts       []*big.Int
		BonusPerMille int64
		Liquidator    common.Address
		TokenManager  common.Address
		OraclePayload []byte
	}

	TxReceipt struct {
		TxHash      common.Hash
		BlockNumber uint64
		GasUsed     uint64
		Success     bool
	}

	FlashLiquidator interface {
		// Liquidate submits the flash-loan liquidation and returns without waiting.
		Liquidate(ctx context.Context, call *LiquidationCall) (common.Hash, error)
	}

	Approver interface {
		// Approve blocks until the approval is mined.
		Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error
	}

	TxWatcher interface {
		// Receipt returns ErrNotFound while the transaction is pending.
		Receipt(ctx context.Context, hash common.Hash) (*TxReceipt, error)
		RevertReason(ctx context.Context, hash common.Hash) (string, error)
		// Dropped reports whether a transaction without receipt can no longer be mined.
		Dropped(ctx context.Context, hash common.Hash) (bool, error)
	}
)

func (p *LiquidationPlan) BonusPerMille() int64 {
	return BonusToPerMille(p.Bonus)
}

// RepaidUsd is the USD value the repay amounts actually cover.
func (p *LiquidationPlan) RepaidUsd(prices Prices) decimal.Decimal {
	return p.RepayAmounts.UsdValue(prices)
}

func (p *LiquidationPlan) Validate(debts AssetAmounts, prices Prices) error {
	if p.Bonus.IsNegative() || p.Bonus.GreaterThan(p.MaxBonus) {
		return errors.Wrapf(ErrPlanInvariant, "bonus %s outside [0, %s]", p.Bonus, p.MaxBonus)
	}
	if !p.Action.HasBonus() && !p.Bonus.IsZero() {
		return errors.Wrapf(ErrPlanInvariant, "%s with bonus %s", p.Action, p.Bonus)
	}
	for _, r := range p.RepayAmounts {
		if r.Amount.IsNegative() {
			return errors.Wrapf(ErrPlanInvariant, "negative repay %s %s", r.Amount, r.Symbol)
		}
		if owed := debts.Amount(r.Symbol); r.Amount.GreaterThan(owed) {
			return errors.Wrapf(ErrPlanInvariant, "repay %s %s exceeds debt %s", r.Amount, r.Symbol, owed)
		}
	}
	if repaid := p.RepaidUsd(prices); repaid.GreaterThan(p.TotalRepayUsd) {
		return errors.Wrapf(ErrPlanInvariant, "repaid %s exceeds target %s", repaid, p.TotalRepayUsd)
	}
	return nil
}
