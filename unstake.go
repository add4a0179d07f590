package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Unstaker frees illiquid collateral of a loan. Return ErrNothingToUnstake when
// the loan has no position the adapter can unwind.
type Unstaker interface {
	Name() string
	Unstake(ctx context.Context, loan common.Address) error
}

type UnstakeStatus string

const (
	UnstakeStatusSuccess UnstakeStatus = "success"
	UnstakeStatusSkipped UnstakeStatus = "skipped"
	UnstakeStatusFailed  UnstakeStatus = "failed"
)
