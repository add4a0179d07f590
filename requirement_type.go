package core

type RequirementType uint8

const (
	// collateral weighted by debt coverage
	Maintenance RequirementType = iota
	// collateral at face value
	Equity
)

func (rt RequirementType) String() string {
	switch rt {
	case Maintenance:
		return "Maintenance"
	case Equity:
		return "Equity"
	default:
		return "Unknown"
	}
}
