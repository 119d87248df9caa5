package enums

import "fmt"

// RiskLevel is the enforcement state gating a store's payout eligibility.
type RiskLevel string

const (
	RiskLevelNormal RiskLevel = "NORMAL"
	RiskLevelWatch  RiskLevel = "WATCH"
	RiskLevelHigh   RiskLevel = "HIGH"
	RiskLevelFrozen RiskLevel = "FROZEN"
)

var validRiskLevels = []RiskLevel{
	RiskLevelNormal,
	RiskLevelWatch,
	RiskLevelHigh,
	RiskLevelFrozen,
}

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiskLevel.
func (r RiskLevel) IsValid() bool {
	for _, candidate := range validRiskLevels {
		if candidate == r {
			return true
		}
	}
	return false
}

// Rank orders levels from least to most severe so transitions can be compared.
func (r RiskLevel) Rank() int {
	for i, candidate := range validRiskLevels {
		if candidate == r {
			return i
		}
	}
	return -1
}

// ParseRiskLevel converts raw input into a RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, error) {
	for _, candidate := range validRiskLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid risk level %q", value)
}
