package aging

import (
	"github.com/opensource-finance/leadaging/internal/domain"
)

// Escalation thresholds.
const (
	highValueThreshold  = 50000.0
	highValueContactGap = 7
	highScoreThreshold  = 80.0
	highScoreContactGap = 5
)

// AdjustRisk starts from the category's base risk and escalates one step
// for each satisfied condition, in order:
//
//  1. leadValue > 50000 and daysSinceLastContact > 7
//  2. leadScore > 80 and daysSinceLastContact > 5
//
// Each step is a single escalation clamped at critical, so a low-risk lead
// meeting both conditions ends at high, not critical.
func AdjustRisk(category domain.AgingCategory, daysSinceLastContact int, leadValue, leadScore float64, rs *RuleSet) (domain.RiskLevel, error) {
	if rs == nil {
		return "", domain.NewConfigurationError("", "rule set is not loaded")
	}
	rule, ok := rs.RuleFor(category)
	if !ok {
		return "", domain.NewConfigurationError("", "no active rule for category %q", category)
	}
	return escalate(rule.BaseRisk, daysSinceLastContact, leadValue, leadScore), nil
}

func escalate(base domain.RiskLevel, daysSinceLastContact int, leadValue, leadScore float64) domain.RiskLevel {
	risk := base
	if leadValue > highValueThreshold && daysSinceLastContact > highValueContactGap {
		risk = risk.Escalate()
	}
	if leadScore > highScoreThreshold && daysSinceLastContact > highScoreContactGap {
		risk = risk.Escalate()
	}
	return risk
}
