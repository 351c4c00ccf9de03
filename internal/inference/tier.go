package inference

import "github.com/janpfeifer/screenGo/internal/config"

// Tier is the risk level associated with a probability.
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// RiskTier maps the probability to a tier: below thresholds.Low is TierLow, below
// thresholds.High is TierMedium, and TierHigh otherwise.
func RiskTier(prob float64, thresholds config.Thresholds) Tier {
	switch {
	case prob < thresholds.Low:
		return TierLow
	case prob < thresholds.High:
		return TierMedium
	default:
		return TierHigh
	}
}

// Explanation of the tier for caregivers.
func (t Tier) Explanation() string {
	switch t {
	case TierLow:
		return "The answers show few of the behaviors associated with autism spectrum disorder."
	case TierMedium:
		return "The answers show some behaviors associated with autism spectrum disorder."
	case TierHigh:
		return "The answers show many behaviors associated with autism spectrum disorder."
	}
	return ""
}

// Recommendation for the caregiver. The screening is not a diagnosis.
func (t Tier) Recommendation() string {
	switch t {
	case TierLow:
		return "No immediate action is suggested. Keep following the child's development in routine check-ups."
	case TierMedium:
		return "Consider discussing these observations with a pediatrician at the next visit."
	case TierHigh:
		return "We recommend consulting a pediatrician or a developmental specialist for a complete evaluation."
	}
	return ""
}
