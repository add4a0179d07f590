package engine

import (
	"context"

	core "github.com/DomeLiquid/liquidator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

type (
	UnstakeOutcome struct {
		Adapter string             `json:"adapter"`
		Status  core.UnstakeStatus `json:"status"`
		Err     error              `json:"-"`
	}

	// UnstakeReport holds one outcome per configured adapter, in run order.
	UnstakeReport []UnstakeOutcome
)

func (r UnstakeReport) Count(status core.UnstakeStatus) int {
	n := 0
	for _, o := range r {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Freed reports whether any adapter moved collateral, in which case the loan
// state has to be read again.
func (r UnstakeReport) Freed() bool {
	return r.Count(core.UnstakeStatusSuccess) > 0
}

// maximizeCollateral runs every unstaker in order. A failing adapter never
// stops the others.
func (l *Liquidator) maximizeCollateral(ctx context.Context, loan common.Address) UnstakeReport {
	report := make(UnstakeReport, 0, len(l.Unstakers))
	for _, u := range l.Unstakers {
		outcome := UnstakeOutcome{Adapter: u.Name(), Status: core.UnstakeStatusSuccess}
		if err := u.Unstake(ctx, loan); err != nil {
			outcome.Err = err
			if errors.Is(err, core.ErrNothingToUnstake) {
				outcome.Status = core.UnstakeStatusSkipped
			} else {
				outcome.Status = core.UnstakeStatusFailed
			}
		}

		event := l.log.Debug()
		if outcome.Status == core.UnstakeStatusFailed {
			event = l.log.Warn().Err(outcome.Err)
		}
		event.Str("loan", loan.Hex()).Str("adapter", outcome.Adapter).Str("status", string(outcome.Status)).Msg("unstake")

		l.Metrics.ObserveUnstake(outcome.Adapter, outcome.Status)
		report = append(report, outcome)
	}
	return report
}
