package aging

import (
	"strings"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// FallbackAction is returned only for a category or risk level outside the
// fixed enumerations. A missing entry for a valid pair is a configuration
// error instead.
const FallbackAction = "Review lead manually"

// ActionTable maps (category, risk level) to a recommended next action.
type ActionTable map[domain.AgingCategory]map[domain.RiskLevel]string

// DefaultActionTable returns the reference 5x4 recommendation table.
func DefaultActionTable() ActionTable {
	return ActionTable{
		domain.CategoryNew: {
			domain.RiskLow:      "Send welcome sequence and qualify within 48 hours",
			domain.RiskMedium:   "Qualify within 24 hours with personalized outreach",
			domain.RiskHigh:     "Assign senior rep for contact within 4 hours",
			domain.RiskCritical: "Priority assignment with same-day contact",
		},
		domain.CategoryWarm: {
			domain.RiskLow:      "Continue nurture cadence with relevant content",
			domain.RiskMedium:   "Schedule discovery call this week",
			domain.RiskHigh:     "Personal call from account owner within 24 hours",
			domain.RiskCritical: "Manager-led outreach with tailored offer today",
		},
		domain.CategoryCold: {
			domain.RiskLow:      "Enroll in re-engagement email campaign",
			domain.RiskMedium:   "Re-engagement call with updated value proposition",
			domain.RiskHigh:     "Escalate to manager for re-qualification",
			domain.RiskCritical: "Executive outreach with time-limited incentive",
		},
		domain.CategoryFrozen: {
			domain.RiskLow:      "Move to quarterly check-in cadence",
			domain.RiskMedium:   "Send win-back campaign with case studies",
			domain.RiskHigh:     "Manager review to decide revive or release",
			domain.RiskCritical: "Final win-back attempt before disqualification",
		},
		domain.CategoryStale: {
			domain.RiskLow:      "Archive with periodic newsletter inclusion",
			domain.RiskMedium:   "Archive and schedule six-month re-qualification",
			domain.RiskHigh:     "Review loss reasons and archive",
			domain.RiskCritical: "Close as lost and record churn reason",
		},
	}
}

// WithOverrides returns a copy of t with non-empty override entries applied.
func (t ActionTable) WithOverrides(overrides map[domain.AgingCategory]map[domain.RiskLevel]string) ActionTable {
	out := make(ActionTable, len(t))
	for cat, row := range t {
		out[cat] = make(map[domain.RiskLevel]string, len(row))
		for risk, text := range row {
			out[cat][risk] = text
		}
	}
	for cat, row := range overrides {
		if out[cat] == nil {
			out[cat] = make(map[domain.RiskLevel]string, len(row))
		}
		for risk, text := range row {
			if strings.TrimSpace(text) != "" {
				out[cat][risk] = text
			}
		}
	}
	return out
}

// Validate checks that every category and risk pair resolves to text.
func (t ActionTable) Validate() error {
	for _, cat := range domain.Categories() {
		for _, risk := range domain.RiskLevels() {
			if strings.TrimSpace(t[cat][risk]) == "" {
				return domain.NewConfigurationError("", "no recommended action for %s/%s", cat, risk)
			}
		}
	}
	return nil
}

// Recommend looks up the action for a category and risk level.
func (t ActionTable) Recommend(category domain.AgingCategory, risk domain.RiskLevel) (string, error) {
	if !category.IsValid() || !risk.IsValid() {
		return FallbackAction, nil
	}
	text := t[category][risk]
	if strings.TrimSpace(text) == "" {
		return "", domain.NewConfigurationError("", "no recommended action for %s/%s", category, risk)
	}
	return text, nil
}

// RecommendAction uses the default table.
func RecommendAction(category domain.AgingCategory, risk domain.RiskLevel) (string, error) {
	return defaultActions.Recommend(category, risk)
}

var defaultActions = DefaultActionTable()
