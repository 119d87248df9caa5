package trust

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// Full-credit marks for the score components. A store at or past both earns
// the maximum from that component.
const (
	fullCreditVolume  = 10000
	fullCreditAgeDays = 365
)

var neutralScore = decimal.NewFromInt(50)

// Inputs is the signal snapshot a trust recompute works from.
type Inputs struct {
	// SettledVolume is the trailing 90 day settled transaction volume.
	SettledVolume  decimal.Decimal
	SettledCount   int
	DisputeCount   int
	FirstSettledAt *time.Time
}

// Score maps the signals onto [0, 100]. Stores with no settlement history
// sit at the neutral baseline until their first settled order.
func Score(inputs Inputs, cfg config.TrustConfig, now time.Time) (decimal.Decimal, string) {
	if inputs.SettledCount <= 0 && inputs.FirstSettledAt == nil {
		return neutralScore, "no settlement history, neutral baseline"
	}

	volume, _ := inputs.SettledVolume.Float64()
	volumeScore := clamp01(volume / fullCreditVolume)

	disputeFree := 1.0
	if inputs.SettledCount > 0 {
		disputeFree = clamp01(1 - float64(inputs.DisputeCount)/float64(inputs.SettledCount))
	}

	ageDays := 0.0
	if inputs.FirstSettledAt != nil {
		ageDays = now.Sub(*inputs.FirstSettledAt).Hours() / 24
	}
	ageScore := clamp01(ageDays / fullCreditAgeDays)

	weightSum := cfg.VolumeWeight + cfg.DisputeFreeWeight + cfg.AgeWeight
	if weightSum <= 0 {
		return neutralScore, "trust weights unset, neutral baseline"
	}

	raw := 100 * (cfg.VolumeWeight*volumeScore +
		cfg.DisputeFreeWeight*disputeFree +
		cfg.AgeWeight*ageScore) / weightSum

	reasons := []string{
		fmt.Sprintf("volume %.0f%% of target", volumeScore*100),
		fmt.Sprintf("%.0f%% dispute-free", disputeFree*100),
		fmt.Sprintf("account age %.0f days", ageDays),
	}
	return decimal.NewFromFloat(raw).Round(2), strings.Join(reasons, "; ")
}

// TierFor discretizes a score into its tier.
func TierFor(score decimal.Decimal) enums.TrustTier {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return enums.TrustTierElite
	case score.GreaterThanOrEqual(decimal.NewFromInt(75)):
		return enums.TrustTierTrusted
	case score.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return enums.TrustTierStandard
	case score.GreaterThanOrEqual(decimal.NewFromInt(25)):
		return enums.TrustTierWatch
	default:
		return enums.TrustTierRestricted
	}
}

// BoostFor returns the listing ranking multiplier for a tier.
func BoostFor(tier enums.TrustTier) decimal.Decimal {
	switch tier {
	case enums.TrustTierElite:
		return decimal.RequireFromString("1.5")
	case enums.TrustTierTrusted:
		return decimal.RequireFromString("1.25")
	case enums.TrustTierStandard:
		return decimal.RequireFromString("1.0")
	case enums.TrustTierWatch:
		return decimal.RequireFromString("0.8")
	default:
		return decimal.RequireFromString("0.5")
	}
}

// DelayHoursFor returns the payout hold window for a tier.
func DelayHoursFor(tier enums.TrustTier) int {
	switch tier {
	case enums.TrustTierElite:
		return 0
	case enums.TrustTierTrusted:
		return 24
	case enums.TrustTierStandard:
		return 48
	case enums.TrustTierWatch:
		return 72
	default:
		return 168
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
