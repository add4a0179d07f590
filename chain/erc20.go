package chain

import (
	"context"
	"math/big"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Approver grants ERC-20 allowances and waits for them to be mined.
type Approver struct {
	sender *Sender
}

var _ core.Approver = (*Approver)(nil)

func NewApprover(sender *Sender) *Approver {
	return &Approver{sender: sender}
}

func (a *Approver) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return errors.Wrap(err, "chain/erc20: pack approve")
	}
	if err := a.sender.sendAndWait(ctx, token, data); err != nil {
		return errors.Wrapf(err, "chain/erc20: approve %s", token.Hex())
	}
	return nil
}
