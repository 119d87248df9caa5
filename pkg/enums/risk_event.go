package enums

import "fmt"

// RiskEventType names the action that produced a risk audit entry.
type RiskEventType string

const (
	RiskEventAutoEvaluation  RiskEventType = "auto_evaluation"
	RiskEventManualLevelSet  RiskEventType = "manual_level_set"
	RiskEventManualFreeze    RiskEventType = "manual_freeze"
	RiskEventManualUnfreeze  RiskEventType = "manual_unfreeze"
	RiskEventSignalRecorded  RiskEventType = "signal_recorded"
	RiskEventManualFlagSet   RiskEventType = "manual_flag_set"
	RiskEventManualFlagClear RiskEventType = "manual_flag_clear"
)

var validRiskEventTypes = []RiskEventType{
	RiskEventAutoEvaluation,
	RiskEventManualLevelSet,
	RiskEventManualFreeze,
	RiskEventManualUnfreeze,
	RiskEventSignalRecorded,
	RiskEventManualFlagSet,
	RiskEventManualFlagClear,
}

// String implements fmt.Stringer.
func (r RiskEventType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskEventType.
func (r RiskEventType) IsValid() bool {
	for _, candidate := range validRiskEventTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// RiskSeverity grades how alarming a risk event is.
type RiskSeverity string

const (
	RiskSeverityInfo     RiskSeverity = "INFO"
	RiskSeverityWarning  RiskSeverity = "WARNING"
	RiskSeverityCritical RiskSeverity = "CRITICAL"
)

var validRiskSeverities = []RiskSeverity{
	RiskSeverityInfo,
	RiskSeverityWarning,
	RiskSeverityCritical,
}

// String implements fmt.Stringer.
func (r RiskSeverity) String() string {
	return string(r)
}

// IsValid reports whether the severity is recognized.
func (r RiskSeverity) IsValid() bool {
	for _, candidate := range validRiskSeverities {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRiskSeverity converts a raw string into a RiskSeverity.
func ParseRiskSeverity(value string) (RiskSeverity, error) {
	for _, candidate := range validRiskSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid risk severity %q", value)
}
