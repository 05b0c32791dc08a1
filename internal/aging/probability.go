package aging

// Conversion probability bounds. A lead is never reported as certain to
// convert or impossible to convert.
const (
	MinConversionProbability = 5.0
	MaxConversionProbability = 95.0
)

// sourceBonus is keyed by the exact source label.
var sourceBonus = map[string]float64{
	"Referral": 15,
	"Website":  10,
	"LinkedIn": 5,
}

// EstimateConversion computes a conversion probability in [5,95].
//
// Base is leadScore*0.8, plus four independent additive adjustments:
// pipeline age, contact recency, deal value and source channel. Within the
// age and recency adjustments the first matching band wins.
func EstimateConversion(leadScore float64, daysInPipeline, daysSinceLastContact int, leadValue float64, source string) float64 {
	p := leadScore * 0.8

	switch {
	case daysInPipeline <= 7:
		p += 10
	case daysInPipeline <= 30:
		p += 5
	case daysInPipeline <= 60:
		p -= 5
	default:
		p -= 15
	}

	switch {
	case daysSinceLastContact <= 3:
		p += 15
	case daysSinceLastContact <= 7:
		p += 5
	case daysSinceLastContact <= 14:
		p -= 5
	default:
		p -= 10
	}

	switch {
	case leadValue > 50000:
		p += 10
	case leadValue > 20000:
		p += 5
	}

	p += sourceBonus[source]

	return clamp(p, MinConversionProbability, MaxConversionProbability)
}

// clamp also maps NaN to lo so outputs stay JSON-safe.
func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
