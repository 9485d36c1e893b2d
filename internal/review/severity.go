package review

import "strings"

// Tier is a display classification of a risk level.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierCritical:
		return "critical"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

// ClassifySeverity maps critical, high, medium and low (any case) to their
// tiers. Anything else is TierLow.
func ClassifySeverity(level string) Tier {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical":
		return TierCritical
	case "high":
		return TierHigh
	case "medium":
		return TierMedium
	default:
		return TierLow
	}
}

// Severe reports whether a risk level is High or Critical.
func Severe(level string) bool {
	return ClassifySeverity(level) >= TierHigh
}
