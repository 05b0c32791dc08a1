package domain

import (
	"time"
)

// Lead is a sales lead as supplied by the calling system.
// The aging engine only reads leads; it never mutates them.
type Lead struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Display fields carried through for reports and insights
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Owner   string `json:"owner,omitempty"`

	// Lifecycle timestamps
	CreatedAt      time.Time  `json:"createdAt"`
	LastContactAt  *time.Time `json:"lastContactAt,omitempty"`
	NextFollowUpAt *time.Time `json:"nextFollowUpAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt,omitempty"`

	// Quality score in [0,100]
	Score float64 `json:"score"`

	// Estimated deal value, non-negative
	EstimatedValue float64 `json:"estimatedValue"`

	// Acquisition channel (e.g., "Referral", "Website", "LinkedIn")
	Source string `json:"source"`

	Status LeadStatus `json:"status"`
}

// LeadStatus is the CRM pipeline stage of a lead.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusProposal    LeadStatus = "proposal"
	LeadStatusNegotiation LeadStatus = "negotiation"
	LeadStatusWon         LeadStatus = "won"
	LeadStatusLost        LeadStatus = "lost"
)

// IsValid reports whether the status is one of the known pipeline stages.
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified,
		LeadStatusProposal, LeadStatusNegotiation, LeadStatusWon, LeadStatusLost:
		return true
	default:
		return false
	}
}

// IsClosed returns true for terminal stages that scheduled recomputation skips.
func (s LeadStatus) IsClosed() bool {
	return s == LeadStatusWon || s == LeadStatusLost
}

// ClosedStatuses lists the terminal stages.
func ClosedStatuses() []LeadStatus {
	return []LeadStatus{LeadStatusWon, LeadStatusLost}
}

// LeadFilter narrows a lead listing.
type LeadFilter struct {
	Status        LeadStatus
	Source        string
	ExcludeClosed bool
	IDs           []string
	Limit         int
}
