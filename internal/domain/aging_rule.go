package domain

// AgingCategory tags how long a lead has gone unengaged.
type AgingCategory string

// Aging categories in their fixed ascending order.
const (
	CategoryNew    AgingCategory = "new"
	CategoryWarm   AgingCategory = "warm"
	CategoryCold   AgingCategory = "cold"
	CategoryFrozen AgingCategory = "frozen"
	CategoryStale  AgingCategory = "stale"
)

// Categories returns every aging category in ascending order.
func Categories() []AgingCategory {
	return []AgingCategory{CategoryNew, CategoryWarm, CategoryCold, CategoryFrozen, CategoryStale}
}

// Ordinal returns the position of the category in the fixed order, or -1.
func (c AgingCategory) Ordinal() int {
	for i, cat := range Categories() {
		if cat == c {
			return i
		}
	}
	return -1
}

// IsValid reports whether c is one of the fixed categories.
func (c AgingCategory) IsValid() bool {
	return c.Ordinal() >= 0
}

// RiskLevel is the ordinal severity of losing a lead if left unattended.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels returns every risk level from lowest to highest.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}

// Rank returns 0 for low up to 3 for critical, or -1 for unknown values.
func (r RiskLevel) Rank() int {
	for i, lvl := range RiskLevels() {
		if lvl == r {
			return i
		}
	}
	return -1
}

// IsValid reports whether r is one of the four risk levels.
func (r RiskLevel) IsValid() bool {
	return r.Rank() >= 0
}

// Escalate moves one step up the scale, stopping at critical.
func (r RiskLevel) Escalate() RiskLevel {
	rank := r.Rank()
	levels := RiskLevels()
	if rank < 0 || rank >= len(levels)-1 {
		return r
	}
	return levels[rank+1]
}

// AgingRule maps an inclusive day range to an aging category.
type AgingRule struct {
	ID          string `json:"id" yaml:"id"`
	TenantID    string `json:"tenantId,omitempty" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`

	Category AgingCategory `json:"category" yaml:"category"`

	// Inclusive day range. A nil MaxDays means unbounded and is only
	// allowed on the last active rule.
	MinDays int  `json:"minDays" yaml:"minDays"`
	MaxDays *int `json:"maxDays,omitempty" yaml:"maxDays,omitempty"`

	BaseRisk RiskLevel `json:"baseRisk" yaml:"baseRisk"`

	// Identifiers of actions the automation layer may fire for this category
	AutomaticActions []string `json:"automaticActions" yaml:"automaticActions"`

	// Days without contact after which the owner should be notified
	NotificationThreshold int `json:"notificationThreshold" yaml:"notificationThreshold"`

	Active bool `json:"active" yaml:"active"`
}

// Contains reports whether days falls inside the rule's inclusive range.
func (r *AgingRule) Contains(days int) bool {
	if days < r.MinDays {
		return false
	}
	return r.MaxDays == nil || days <= *r.MaxDays
}

// Clone returns a deep copy so snapshots never share slices with callers.
func (r *AgingRule) Clone() *AgingRule {
	c := *r
	if r.MaxDays != nil {
		maxDays := *r.MaxDays
		c.MaxDays = &maxDays
	}
	c.AutomaticActions = append([]string(nil), r.AutomaticActions...)
	return &c
}
