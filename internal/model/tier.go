package model

// Tier is the ordinal classification derived from a composite score.
type Tier string

// Profile tiers.
const (
	TierHot  Tier = "Hot"
	TierWarm Tier = "Warm"
	TierCold Tier = "Cold"
)

// Rank orders tiers so that Hot > Warm > Cold. Unknown tiers rank below Cold.
func (t Tier) Rank() int {
	switch t {
	case TierHot:
		return 3
	case TierWarm:
		return 2
	case TierCold:
		return 1
	}
	return 0
}

// AtLeast reports whether t ranks at or above min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank() && t.Rank() > 0
}

// ParseTier maps a stored tier label back to a Tier. Signal tier labels
// ("Hot Signal") map to their profile tier.
func ParseTier(s string) Tier {
	switch s {
	case "Hot", "hot", SignalHot:
		return TierHot
	case "Warm", "warm", SignalWarm:
		return TierWarm
	case "Cold", "cold", SignalCold:
		return TierCold
	}
	return ""
}

// Signal tier labels written to signal_tier.
const (
	SignalHot  = "Hot Signal"
	SignalWarm = "Warm Signal"
	SignalCold = "Cold Signal"
)
