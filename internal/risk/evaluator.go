package risk

import (
	"fmt"
	"strings"

	"github.com/baymarket/baymarket-backend/pkg/config"
	"github.com/baymarket/baymarket-backend/pkg/enums"
)

// Signals is the input snapshot an automatic evaluation works from.
type Signals struct {
	ChargebackCount int
	DisputeCount    int
	SettledCount    int
	// VolumeSpike is the ratio of the last 24h settled volume to the
	// trailing daily mean. Zero when there is no history.
	VolumeSpike float64
	ManualFlag  bool
}

// ChargebackRate returns chargebacks over settled orders, zero when nothing
// settled yet.
func (s Signals) ChargebackRate() float64 {
	if s.SettledCount <= 0 {
		return 0
	}
	return float64(s.ChargebackCount) / float64(s.SettledCount)
}

// Evaluate applies the threshold ladder to the signals and returns the target
// level with the reasons that produced it. The manual flag pins the result at
// HIGH or worse.
func Evaluate(signals Signals, cfg config.RiskConfig) (enums.RiskLevel, string) {
	rate := signals.ChargebackRate()
	level := enums.RiskLevelNormal
	reasons := []string{}

	switch {
	case rate >= cfg.ChargebackFreezePct:
		level = enums.RiskLevelFrozen
		reasons = append(reasons, fmt.Sprintf("chargeback rate %.1f%% at or above freeze threshold", rate*100))
	case rate >= cfg.ChargebackHighPct:
		level = enums.RiskLevelHigh
		reasons = append(reasons, fmt.Sprintf("chargeback rate %.1f%% at or above high threshold", rate*100))
	case rate >= cfg.ChargebackWatchPct:
		level = enums.RiskLevelWatch
		reasons = append(reasons, fmt.Sprintf("chargeback rate %.1f%% at or above watch threshold", rate*100))
	}

	if level.Rank() < enums.RiskLevelHigh.Rank() && signals.DisputeCount >= cfg.DisputeHighCount {
		level = enums.RiskLevelHigh
		reasons = append(reasons, fmt.Sprintf("%d open disputes", signals.DisputeCount))
	} else if level.Rank() < enums.RiskLevelWatch.Rank() && signals.DisputeCount >= cfg.DisputeWatchCount {
		level = enums.RiskLevelWatch
		reasons = append(reasons, fmt.Sprintf("%d open disputes", signals.DisputeCount))
	}

	if level.Rank() < enums.RiskLevelHigh.Rank() && signals.VolumeSpike >= cfg.VolumeSpikeHigh {
		level = enums.RiskLevelHigh
		reasons = append(reasons, fmt.Sprintf("volume spike %.1fx trailing mean", signals.VolumeSpike))
	} else if level.Rank() < enums.RiskLevelWatch.Rank() && signals.VolumeSpike >= cfg.VolumeSpikeWatch {
		level = enums.RiskLevelWatch
		reasons = append(reasons, fmt.Sprintf("volume spike %.1fx trailing mean", signals.VolumeSpike))
	}

	if signals.ManualFlag && level.Rank() < enums.RiskLevelHigh.Rank() {
		level = enums.RiskLevelHigh
		reasons = append(reasons, "manual review flag set")
	}

	if len(reasons) == 0 {
		return level, "no risk signals above thresholds"
	}
	return level, strings.Join(reasons, "; ")
}
