package domain

import (
	"context"
	"time"
)

// ActionPolicy guards one automatic action with a CEL expression.
// Example: fire "escalate_to_manager" only when
// `risk_level == "critical" && lead_value > 50000.0`.
type ActionPolicy struct {
	ID          string `json:"id" yaml:"id"`
	TenantID    string `json:"tenantId,omitempty" yaml:"-"`
	ActionID    string `json:"actionId" yaml:"actionId"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`

	// CEL expression that must evaluate to bool
	Expression string `json:"expression" yaml:"expression"`

	Enabled bool `json:"enabled" yaml:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// InsightGenerator produces free-text commentary for an analysed lead.
// Implementations may be slow, offline or failing; callers must not
// depend on them for the deterministic analysis path.
type InsightGenerator interface {
	GenerateInsights(ctx context.Context, lead *Lead, analysis *AgingAnalysis) ([]string, error)
}
