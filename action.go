package core

import (
	"strings"

	"github.com/pkg/errors"
)

type Action uint8

const (
	// solvent but undercollateralized, liquidator earns a bonus
	ActionLiquidate Action = iota
	// bankrupt loan, no bonus
	ActionHeal
	// full unwind, no bonus
	ActionClose

	// attempt abandoned before an action was selected
	ActionUnknown Action = 255
)

func (a Action) String() string {
	switch a {
	case ActionLiquidate:
		return "LIQUIDATE"
	case ActionHeal:
		return "HEAL"
	case ActionClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (a Action) HasBonus() bool {
	return a == ActionLiquidate
}

func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LIQUIDATE":
		return ActionLiquidate, nil
	case "HEAL":
		return ActionHeal, nil
	case "CLOSE":
		return ActionClose, nil
	default:
		return ActionLiquidate, errors.Errorf("unknown action %q", s)
	}
}

// SelectAction picks the action for an attempt. An explicit close request wins,
// bankrupt loans are healed and everything else is liquidated.
func SelectAction(closeRequested, bankrupt bool) Action {
	switch {
	case closeRequested:
		return ActionClose
	case bankrupt:
		return ActionHeal
	default:
		return ActionLiquidate
	}
}

type PlanMode string

const (
	PlanModeTargetLTV PlanMode = "target_ltv"
	PlanModeSellout   PlanMode = "sellout"
)

func (m PlanMode) Valid() bool {
	return m == PlanModeTargetLTV || m == PlanModeSellout
}
