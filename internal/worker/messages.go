package worker

// AnalysisRequest asks for a tenant's open leads to be re-analysed.
// LeadIDs narrows the batch; empty means every open lead.
type AnalysisRequest struct {
	TenantID    string   `json:"tenantId"`
	TraceID     string   `json:"traceId,omitempty"`
	LeadIDs     []string `json:"leadIds,omitempty"`
	RequestedBy string   `json:"requestedBy,omitempty"`

	// Incremental refreshes analyses without writing a batch report
	Incremental bool `json:"incremental,omitempty"`
}

// LeadUpserted announces a created or changed lead.
type LeadUpserted struct {
	TenantID string `json:"tenantId"`
	LeadID   string `json:"leadId"`
	TraceID  string `json:"traceId,omitempty"`
}

// AnalysisCompleted is published after a batch is persisted.
type AnalysisCompleted struct {
	TenantID       string `json:"tenantId"`
	TraceID        string `json:"traceId,omitempty"`
	ReportID       string `json:"reportId,omitempty"`
	LeadCount      int    `json:"leadCount"`
	RejectedCount  int    `json:"rejectedCount"`
	AlertCount     int    `json:"alertCount"`
	RuleSetVersion string `json:"ruleSetVersion"`
}
