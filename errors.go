package core

import "github.com/pkg/errors"

// plan-invalid
var (
	ErrInvalidTargetLTV    = errors.New("target ltv must be positive")
	ErrInvalidBonus        = errors.New("bonus must be within [0, 1) and keep targetLTV*bonus below 1")
	ErrInvalidSupplyMargin = errors.New("supply margin must be at least 1")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrMissingPrice        = errors.New("price not found")
	ErrNoDebt              = errors.New("loan has no debt")
	ErrNothingToRepay      = errors.New("computed repay amount is not positive")
	ErrUnknownPlanMode     = errors.New("unknown plan mode")
	ErrPlanInvariant       = errors.New("liquidation plan violates invariant")
)

// attempt-fatal
var (
	ErrFetchState          = errors.New("fetch loan state failed")
	ErrOraclePayload       = errors.New("assemble oracle payload failed")
	ErrApprove             = errors.New("approve allowance failed")
	ErrSubmit              = errors.New("submit liquidation failed")
	ErrUnreconciledAttempt = errors.New("loan has an unreconciled attempt")
)

// collaborator results
var (
	ErrNotFound          = errors.New("not found")
	ErrNothingToUnstake  = errors.New("nothing to unstake")
	ErrConfirmationTimed = errors.New("confirmation timed out")
	ErrLockHeld          = errors.New("lock already held")
)
