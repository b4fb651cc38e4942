package safety

import "strings"

// RiskLevel is the triage outcome shown to the UI.
type RiskLevel string

const (
	RiskEmergency RiskLevel = "EMERGENCY"
	RiskUrgent    RiskLevel = "URGENT"
	RiskRoutine   RiskLevel = "ROUTINE"
	RiskSelfCare  RiskLevel = "SELF_CARE"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskEmergency:
		return 3
	case RiskUrgent:
		return 2
	case RiskRoutine:
		return 1
	case RiskSelfCare:
		return 0
	default:
		return -1
	}
}

// ParseRiskLevel accepts the model's spelling ("self care", "Self-Care", ...).
func ParseRiskLevel(s string) (RiskLevel, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	level := RiskLevel(norm)
	if level.rank() < 0 {
		return "", false
	}
	return level, true
}

// ResolveRiskLevel combines the classifier result with the level the model
// reported. An emergency classification always wins, a model EMERGENCY is
// never downgraded, and ambiguity raises the floor to URGENT.
func ResolveRiskLevel(cls Classification, reported RiskLevel) RiskLevel {
	if cls.Emergency || reported == RiskEmergency {
		return RiskEmergency
	}
	level := reported
	if level.rank() < 0 {
		level = RiskRoutine
	}
	if cls.Ambiguous && level.rank() < RiskUrgent.rank() {
		level = RiskUrgent
	}
	return level
}
