package chain

import (
	"context"
	"math/big"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// FlashLiquidator submits flash-loan liquidations to the liquidation contract.
// The oracle payload is appended after the ABI arguments.
type FlashLiquidator struct {
	sender   *Sender
	contract common.Address
}

var (
	_ core.FlashLiquidator = (*FlashLiquidator)(nil)
	_ core.TxWatcher       = (*Sender)(nil)
)

func NewFlashLiquidator(sender *Sender, contract common.Address) *FlashLiquidator {
	return &FlashLiquidator{sender: sender, contract: contract}
}

func (f *FlashLiquidator) Liquidate(ctx context.Context, call *core.LiquidationCall) (common.Hash, error) {
	data, err := PackLiquidation(call)
	if err != nil {
		return common.Hash{}, err
	}
	return f.sender.Send(ctx, f.contract, data)
}

func PackLiquidation(call *core.LiquidationCall) ([]byte, error) {
	if len(call.Assets) != len(call.Amounts) {
		return nil, errors.Errorf("chain/liquidator: %d assets and %d amounts", len(call.Assets), len(call.Amounts))
	}
	if len(call.Assets) == 0 {
		return nil, errors.New("chain/liquidator: nothing to repay")
	}

	// interest rate modes are unused by the protocol
	modes := make([]*big.Int, len(call.Assets))
	for i := range modes {
		modes[i] = big.NewInt(0)
	}
	data, err := flashLoanABI.Pack("executeFlashloan",
		call.Assets,
		call.Amounts,
		modes,
		[]byte{},
		big.NewInt(call.BonusPerMille),
		call.Liquidator,
		call.Loan,
		call.TokenManager,
	)
	if err != nil {
		return nil, errors.Wrap(err, "chain/liquidator: pack executeFlashloan")
	}
	return append(data, call.OraclePayload...), nil
}
