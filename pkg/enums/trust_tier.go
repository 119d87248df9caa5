package enums

import "fmt"

// TrustTier classifies a store's reputation, independent of risk enforcement.
type TrustTier string

const (
	TrustTierRestricted TrustTier = "RESTRICTED"
	TrustTierWatch      TrustTier = "WATCH"
	TrustTierStandard   TrustTier = "STANDARD"
	TrustTierTrusted    TrustTier = "TRUSTED"
	TrustTierElite      TrustTier = "ELITE"
)

var validTrustTiers = []TrustTier{
	TrustTierRestricted,
	TrustTierWatch,
	TrustTierStandard,
	TrustTierTrusted,
	TrustTierElite,
}

// String implements fmt.Stringer.
func (t TrustTier) String() string {
	return string(t)
}

// IsValid reports whether the tier is recognized.
func (t TrustTier) IsValid() bool {
	for _, candidate := range validTrustTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTrustTier converts a raw string into a TrustTier.
func ParseTrustTier(value string) (TrustTier, error) {
	for _, candidate := range validTrustTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trust tier %q", value)
}
