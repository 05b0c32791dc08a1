// Package aging implements lead aging classification and scoring.
//
// Every function here is pure: callers pass the current time and an
// immutable RuleSet snapshot, so repeated calls with identical inputs
// produce identical analyses.
package aging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// RuleSet is a validated, immutable snapshot of the active aging rules,
// ordered by ascending day range.
type RuleSet struct {
	rules      []*domain.AgingRule
	byCategory map[domain.AgingCategory]*domain.AgingRule
	version    string
}

// NewRuleSet validates rules and builds a snapshot from the active ones.
// Inactive rules are ignored. The active rules must partition [0, ∞) into
// contiguous, non-overlapping ranges whose categories follow the fixed
// new < warm < cold < frozen < stale order, one rule per category.
func NewRuleSet(rules []*domain.AgingRule) (*RuleSet, error) {
	active := make([]*domain.AgingRule, 0, len(rules))
	seenIDs := make(map[string]bool, len(rules))

	for _, r := range rules {
		if r == nil {
			return nil, domain.NewConfigurationError("", "nil rule in rule set")
		}
		if !r.Active {
			continue
		}
		if r.ID == "" {
			return nil, domain.NewConfigurationError("", "rule id is required")
		}
		if seenIDs[r.ID] {
			return nil, domain.NewConfigurationError(r.ID, "duplicate rule id")
		}
		seenIDs[r.ID] = true
		active = append(active, r.Clone())
	}

	if len(active) == 0 {
		return nil, domain.NewConfigurationError("", "rule set has no active rules")
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].MinDays < active[j].MinDays
	})

	byCategory := make(map[domain.AgingCategory]*domain.AgingRule, len(active))
	for i, r := range active {
		if err := ValidateRule(r); err != nil {
			return nil, err
		}
		if _, dup := byCategory[r.Category]; dup {
			return nil, domain.NewConfigurationError(r.ID, "category %q is covered by more than one rule", r.Category)
		}
		byCategory[r.Category] = r

		last := i == len(active)-1

		if i == 0 && r.MinDays != 0 {
			return nil, domain.NewConfigurationError(r.ID, "first range must start at day 0, starts at %d", r.MinDays)
		}
		if r.MaxDays == nil && !last {
			return nil, domain.NewConfigurationError(r.ID, "only the last rule may be open-ended")
		}

		if i > 0 {
			prev := active[i-1]
			if prev.Category.Ordinal() >= r.Category.Ordinal() {
				return nil, domain.NewConfigurationError(r.ID, "category %q must come after %q", r.Category, prev.Category)
			}
			switch {
			case r.MinDays <= *prev.MaxDays:
				return nil, domain.NewConfigurationError(r.ID, "range %d overlaps rule %s ending at %d", r.MinDays, prev.ID, *prev.MaxDays)
			case r.MinDays > *prev.MaxDays+1:
				return nil, domain.NewConfigurationError(r.ID, "gap between day %d and day %d", *prev.MaxDays, r.MinDays)
			}
		}
	}

	// The partition must cover every day count.
	if tail := active[len(active)-1]; tail.MaxDays != nil {
		return nil, domain.NewConfigurationError(tail.ID, "last rule must be open-ended")
	}

	return &RuleSet{
		rules:      active,
		byCategory: byCategory,
		version:    fingerprint(active),
	}, nil
}

// ValidateRule checks one rule's own fields. Range coverage across rules
// is checked by NewRuleSet.
func ValidateRule(r *domain.AgingRule) error {
	if r == nil {
		return domain.NewConfigurationError("", "nil rule")
	}
	if r.ID == "" {
		return domain.NewConfigurationError("", "rule id is required")
	}
	if !r.Category.IsValid() {
		return domain.NewConfigurationError(r.ID, "unknown category %q", r.Category)
	}
	if !r.BaseRisk.IsValid() {
		return domain.NewConfigurationError(r.ID, "unknown base risk %q", r.BaseRisk)
	}
	if r.MinDays < 0 {
		return domain.NewConfigurationError(r.ID, "minDays %d is negative", r.MinDays)
	}
	if r.MaxDays != nil && *r.MaxDays < r.MinDays {
		return domain.NewConfigurationError(r.ID, "maxDays %d is below minDays %d", *r.MaxDays, r.MinDays)
	}
	if r.NotificationThreshold < 0 {
		return domain.NewConfigurationError(r.ID, "notification threshold must be non-negative")
	}
	return nil
}

// Rules returns copies of the active rules in ascending day order.
func (rs *RuleSet) Rules() []*domain.AgingRule {
	out := make([]*domain.AgingRule, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of active rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Version is a content hash of the active rules.
func (rs *RuleSet) Version() string {
	return rs.version
}

// RuleFor returns the rule that owns category.
func (rs *RuleSet) RuleFor(category domain.AgingCategory) (*domain.AgingRule, bool) {
	r, ok := rs.byCategory[category]
	return r, ok
}

// match returns the rule whose range contains days, or the open-ended
// tail when days exceeds every bounded range.
func (rs *RuleSet) match(days int) *domain.AgingRule {
	for _, r := range rs.rules {
		if r.Contains(days) {
			return r
		}
	}
	return rs.rules[len(rs.rules)-1]
}

func fingerprint(rules []*domain.AgingRule) string {
	data, _ := json.Marshal(rules)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}

func intPtr(v int) *int {
	return &v
}

// DefaultRules returns the five-category reference table:
// new 0-2 days, warm 3-14, cold 15-30, frozen 31-90, stale 91+.
func DefaultRules() []*domain.AgingRule {
	return []*domain.AgingRule{
		{
			ID:                    "aging-new",
			Name:                  "New Lead",
			Description:           "Recently created or recently touched leads",
			Version:               "1.0.0",
			Category:              domain.CategoryNew,
			MinDays:               0,
			MaxDays:               intPtr(2),
			BaseRisk:              domain.RiskLow,
			AutomaticActions:      []string{"assign_owner", "send_welcome_email"},
			NotificationThreshold: 1,
			Active:                true,
		},
		{
			ID:                    "aging-warm",
			Name:                  "Warm Lead",
			Description:           "Engaged within the last two weeks",
			Version:               "1.0.0",
			Category:              domain.CategoryWarm,
			MinDays:               3,
			MaxDays:               intPtr(14),
			BaseRisk:              domain.RiskLow,
			AutomaticActions:      []string{"schedule_follow_up", "send_nurture_email"},
			NotificationThreshold: 7,
			Active:                true,
		},
		{
			ID:                    "aging-cold",
			Name:                  "Cold Lead",
			Description:           "No meaningful engagement for two to four weeks",
			Version:               "1.0.0",
			Category:              domain.CategoryCold,
			MinDays:               15,
			MaxDays:               intPtr(30),
			BaseRisk:              domain.RiskMedium,
			AutomaticActions:      []string{"re_engagement_campaign", "notify_owner"},
			NotificationThreshold: 14,
			Active:                true,
		},
		{
			ID:                    "aging-frozen",
			Name:                  "Frozen Lead",
			Description:           "Dormant for one to three months",
			Version:               "1.0.0",
			Category:              domain.CategoryFrozen,
			MinDays:               31,
			MaxDays:               intPtr(90),
			BaseRisk:              domain.RiskHigh,
			AutomaticActions:      []string{"escalate_to_manager", "win_back_sequence"},
			NotificationThreshold: 30,
			Active:                true,
		},
		{
			ID:                    "aging-stale",
			Name:                  "Stale Lead",
			Description:           "Untouched for more than three months",
			Version:               "1.0.0",
			Category:              domain.CategoryStale,
			MinDays:               91,
			BaseRisk:              domain.RiskCritical,
			AutomaticActions:      []string{"archive_candidate", "newsletter_only"},
			NotificationThreshold: 60,
			Active:                true,
		},
	}
}
