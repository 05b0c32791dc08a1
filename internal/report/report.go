// Package report aggregates a batch of aging analyses into a summary report.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/domain"
)

// Builder produces aging reports.
type Builder struct {
	// Number of most urgent leads listed in a report
	UrgentLimit int
}

// NewBuilder creates a builder. A non-positive limit defaults to 10.
func NewBuilder(urgentLimit int) *Builder {
	if urgentLimit <= 0 {
		urgentLimit = 10
	}
	return &Builder{UrgentLimit: urgentLimit}
}

// Input contains everything needed for one report.
type Input struct {
	TenantID         string
	TraceID          string
	Analyses         []domain.AgingAnalysis
	RejectedLeads    int
	NotificationsDue int
	RuleSetVersion   string
	AnalyzeMs        int64
	StartTime        time.Time
}

// Build aggregates input into a report.
func (b *Builder) Build(ctx context.Context, input *Input) *domain.AgingReport {
	start := time.Now()

	rep := &domain.AgingReport{
		ID:               uuid.New().String(),
		TenantID:         input.TenantID,
		GeneratedAt:      time.Now().UTC(),
		LeadCount:        len(input.Analyses),
		ByCategory:       make(map[domain.AgingCategory]int, len(domain.Categories())),
		ByRisk:           make(map[domain.RiskLevel]int, len(domain.RiskLevels())),
		NotificationsDue: input.NotificationsDue,
		RejectedLeads:    input.RejectedLeads,
	}

	for _, c := range domain.Categories() {
		rep.ByCategory[c] = 0
	}
	for _, r := range domain.RiskLevels() {
		rep.ByRisk[r] = 0
	}

	var urgencySum, conversionSum float64
	for i := range input.Analyses {
		a := &input.Analyses[i]
		rep.ByCategory[a.AgingCategory]++
		rep.ByRisk[a.RiskLevel]++
		urgencySum += a.UrgencyScore
		conversionSum += a.ConversionProbability
		if a.FollowUpOverdue() {
			rep.OverdueFollowUps++
		}
	}

	if n := len(input.Analyses); n > 0 {
		rep.AverageUrgency = urgencySum / float64(n)
		rep.AverageConversion = conversionSum / float64(n)
	}

	rep.UrgentLeads = MostUrgent(input.Analyses, b.UrgentLimit)

	reportMs := time.Since(start).Milliseconds()
	totalMs := reportMs + input.AnalyzeMs
	if !input.StartTime.IsZero() {
		totalMs = time.Since(input.StartTime).Milliseconds()
	}

	rep.Metadata = domain.ReportMetadata{
		TraceID:        input.TraceID,
		AnalyzeMs:      input.AnalyzeMs,
		ReportMs:       reportMs,
		TotalMs:        totalMs,
		RuleSetVersion: input.RuleSetVersion,
		EngineVersion:  aging.EngineVersion,
	}

	return rep
}

// MostUrgent returns up to limit analyses ordered by urgency descending,
// ties broken by lead id. The input slice is not modified.
func MostUrgent(analyses []domain.AgingAnalysis, limit int) []domain.AgingAnalysis {
	sorted := make([]domain.AgingAnalysis, len(analyses))
	copy(sorted, analyses)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UrgencyScore != sorted[j].UrgencyScore {
			return sorted[i].UrgencyScore > sorted[j].UrgencyScore
		}
		return sorted[i].LeadID < sorted[j].LeadID
	})

	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// NeedsAttention returns true if the analysis should raise an alert:
// high or critical risk, or an overdue follow-up.
func NeedsAttention(a *domain.AgingAnalysis) bool {
	return a.RiskLevel.Rank() >= domain.RiskHigh.Rank() || a.FollowUpOverdue()
}
