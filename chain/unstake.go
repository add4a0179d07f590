package chain

import (
	"context"
	"math/big"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var amountMinOutArgs = abi.Arguments{
	{Type: mustType("uint256")},
	{Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// StakedPositionsUnstaker unwinds every staked position the loan reports, using
// the balance and unstake selectors stored with the position.
type StakedPositionsUnstaker struct {
	loans  core.LoanReader
	sender *Sender
}

var _ core.Unstaker = (*StakedPositionsUnstaker)(nil)

func NewStakedPositionsUnstaker(loans core.LoanReader, sender *Sender) *StakedPositionsUnstaker {
	return &StakedPositionsUnstaker{loans: loans, sender: sender}
}

func (u *StakedPositionsUnstaker) Name() string {
	return "staked-positions"
}

func (u *StakedPositionsUnstaker) Unstake(ctx context.Context, loan common.Address) error {
	positions, err := u.loans.StakedPositions(ctx, loan)
	if err != nil {
		return err
	}

	var (
		unwound int
		failed  []string
	)
	for _, p := range positions {
		balance, err := u.balance(ctx, loan, p.BalanceSelector)
		if err != nil {
			failed = append(failed, p.Identifier+": "+err.Error())
			continue
		}
		if balance.Sign() == 0 {
			continue
		}

		args, err := amountMinOutArgs.Pack(balance, big.NewInt(0))
		if err != nil {
			return errors.Wrap(err, "chain/unstake: pack")
		}
		data := append(p.UnstakeSelector[:], args...)
		if err := u.sender.sendAndWait(ctx, loan, data); err != nil {
			failed = append(failed, p.Identifier+": "+err.Error())
			continue
		}
		unwound++
	}

	if len(failed) > 0 {
		return errors.Errorf("chain/unstake: %d of %d positions failed: %v", len(failed), len(positions), failed)
	}
	if unwound == 0 {
		return core.ErrNothingToUnstake
	}
	return nil
}

func (u *StakedPositionsUnstaker) balance(ctx context.Context, loan common.Address, selector [4]byte) (*big.Int, error) {
	res, err := u.sender.backend.CallContract(ctx, ethereum.CallMsg{From: u.sender.from, To: &loan, Data: selector[:]}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "chain/unstake: balance")
	}
	if len(res) < 32 {
		return nil, errors.Errorf("chain/unstake: balance returned %d bytes", len(res))
	}
	return new(big.Int).SetBytes(res[:32]), nil
}

// MethodUnstaker calls one argument-less unwind method on the loan, such as a
// yield aggregator exit or an LP removal. The call is simulated first and a
// reverting simulation means there is nothing to unwind.
type MethodUnstaker struct {
	name      string
	signature string
	sender    *Sender
}

var _ core.Unstaker = (*MethodUnstaker)(nil)

func NewMethodUnstaker(name, signature string, sender *Sender) *MethodUnstaker {
	return &MethodUnstaker{name: name, signature: signature, sender: sender}
}

func (u *MethodUnstaker) Name() string {
	return u.name
}

func (u *MethodUnstaker) Unstake(ctx context.Context, loan common.Address) error {
	data := ethcrypto.Keccak256([]byte(u.signature))[:4]

	msg := ethereum.CallMsg{From: u.sender.from, To: &loan, Data: data}
	if _, err := u.sender.backend.CallContract(ctx, msg, nil); err != nil {
		return errors.Wrapf(core.ErrNothingToUnstake, "%s: %s", u.signature, revertReason(err))
	}
	return u.sender.sendAndWait(ctx, loan, data)
}

func (s *Sender) sendAndWait(ctx context.Context, to common.Address, data []byte) error {
	hash, err := s.Send(ctx, to, data)
	if err != nil {
		return err
	}
	receipt, err := s.WaitMined(ctx, hash)
	if err != nil {
		return err
	}
	if !receipt.Success {
		reason, _ := s.RevertReason(ctx, hash)
		return errors.Errorf("tx %s reverted: %s", hash.Hex(), reason)
	}
	return nil
}
