package domain

import (
	"time"
)

// AgingAnalysis is the engine output for one lead. It is never partially
// updated; any input change requires a full recomputation.
type AgingAnalysis struct {
	LeadID   string `json:"leadId"`
	TenantID string `json:"tenantId,omitempty"`

	DaysInPipeline        int `json:"daysInPipeline"`
	DaysSinceLastContact  int `json:"daysSinceLastContact"`
	DaysUntilNextFollowUp int `json:"daysUntilNextFollowUp"`

	AgingCategory     AgingCategory `json:"agingCategory"`
	RiskLevel         RiskLevel     `json:"riskLevel"`
	RecommendedAction string        `json:"recommendedAction"`

	ConversionProbability float64 `json:"conversionProbability"`
	UrgencyScore          float64 `json:"urgencyScore"`

	// Rule that classified the lead
	RuleID string `json:"ruleId"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

// FollowUpOverdue reports whether a scheduled follow-up date has passed.
func (a *AgingAnalysis) FollowUpOverdue() bool {
	return a.DaysUntilNextFollowUp < 0
}

// TriggeredAction is an automatic action selected for a lead.
type TriggeredAction struct {
	LeadID   string `json:"leadId"`
	ActionID string `json:"actionId"`
	RuleID   string `json:"ruleId"`
	PolicyID string `json:"policyId,omitempty"`
	Reason   string `json:"reason"`
}

// AgingAlert is published when a lead needs attention from its owner.
type AgingAlert struct {
	TenantID         string            `json:"tenantId"`
	Analysis         AgingAnalysis     `json:"analysis"`
	NotificationDue  bool              `json:"notificationDue"`
	TriggeredActions []TriggeredAction `json:"triggeredActions,omitempty"`
}

// AgingReport aggregates one batch of analyses for a tenant.
type AgingReport struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	GeneratedAt time.Time `json:"generatedAt"`

	LeadCount  int                   `json:"leadCount"`
	ByCategory map[AgingCategory]int `json:"byCategory"`
	ByRisk     map[RiskLevel]int     `json:"byRisk"`

	AverageUrgency    float64 `json:"averageUrgency"`
	AverageConversion float64 `json:"averageConversion"`

	OverdueFollowUps int `json:"overdueFollowUps"`
	NotificationsDue int `json:"notificationsDue"`
	RejectedLeads    int `json:"rejectedLeads"`

	// Most urgent leads, highest urgency first
	UrgentLeads []AgingAnalysis `json:"urgentLeads"`

	Metadata ReportMetadata `json:"metadata"`
}

// ReportMetadata contains processing information.
type ReportMetadata struct {
	TraceID        string `json:"traceId"`
	AnalyzeMs      int64  `json:"analyzeMs"`
	ReportMs       int64  `json:"reportMs"`
	TotalMs        int64  `json:"totalMs"`
	RuleSetVersion string `json:"ruleSetVersion"`
	EngineVersion  string `json:"engineVersion"`
}

// Insights holds narrative commentary for a lead. Source is "generated"
// when the text-generation service answered and "fallback" otherwise.
type Insights struct {
	LeadID string   `json:"leadId"`
	Items  []string `json:"items"`
	Source string   `json:"source"`
}

// Insight sources
const (
	InsightSourceGenerated = "generated"
	InsightSourceFallback  = "fallback"
)
