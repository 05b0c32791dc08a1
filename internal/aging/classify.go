package aging

import (
	"github.com/opensource-finance/leadaging/internal/domain"
)

// Classify maps elapsed-time metrics to an aging category.
//
// The larger of the two day counts decides, so a lead is flagged when it
// is either old or neglected, whichever is worse.
func Classify(daysInPipeline, daysSinceLastContact int, rs *RuleSet) (domain.AgingCategory, error) {
	rule, err := classifyRule(daysInPipeline, daysSinceLastContact, rs)
	if err != nil {
		return "", err
	}
	return rule.Category, nil
}

func classifyRule(daysInPipeline, daysSinceLastContact int, rs *RuleSet) (*domain.AgingRule, error) {
	if rs == nil || rs.Len() == 0 {
		return nil, domain.NewConfigurationError("", "rule set is not loaded")
	}
	if daysInPipeline < 0 || daysSinceLastContact < 0 {
		return nil, domain.NewValidationError("", "day counts must be non-negative (pipeline=%d, contact=%d)", daysInPipeline, daysSinceLastContact)
	}

	return rs.match(max(daysInPipeline, daysSinceLastContact)), nil
}
