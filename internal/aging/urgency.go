package aging

import (
	"math"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Urgency score bounds.
const (
	MinUrgency = 0.0
	MaxUrgency = 100.0
)

var riskMultiplier = map[domain.RiskLevel]float64{
	domain.RiskLow:      0.8,
	domain.RiskMedium:   1.0,
	domain.RiskHigh:     1.3,
	domain.RiskCritical: 1.6,
}

// ScoreUrgency computes a 0-100 follow-up priority.
//
// The two time signals are capped independently (pipeline age at 50,
// contact gap at 30) before summing. The base is then multiplied by the
// risk, value and score multipliers in that order with no intermediate
// rounding.
func ScoreUrgency(leadValue, leadScore float64, daysInPipeline, daysSinceLastContact int, risk domain.RiskLevel) float64 {
	base := math.Min(50, float64(daysInPipeline)*2) + math.Min(30, float64(daysSinceLastContact)*3)

	mult, ok := riskMultiplier[risk]
	if !ok {
		mult = 1.0
	}
	u := base * mult

	switch {
	case leadValue > 50000:
		u *= 1.4
	case leadValue > 20000:
		u *= 1.2
	}

	switch {
	case leadScore > 80:
		u *= 1.3
	case leadScore > 60:
		u *= 1.1
	}

	return clamp(u, MinUrgency, MaxUrgency)
}
