package insight

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

const rateLimitKey = "insight:rate"

// FallbackInsights is returned whenever the generator is absent, slow,
// rate limited or failing.
var FallbackInsights = []string{
	"Review the lead's recent activity before the next touchpoint.",
	"Confirm the decision maker and the expected buying timeline.",
	"Follow the recommended action and log the outcome in the CRM.",
}

// Service wraps an optional generator with a timeout, a per-tenant rate
// limit and the static fallback. It never returns an error.
type Service struct {
	generator domain.InsightGenerator
	cache     domain.Cache
	timeout   time.Duration
	limit     int
	logger    *slog.Logger
}

// NewService creates an insight service. generator and cache may be nil.
func NewService(generator domain.InsightGenerator, cache domain.Cache, cfg domain.InsightConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		generator: generator,
		cache:     cache,
		timeout:   timeout,
		limit:     cfg.RateLimitPerMinute,
		logger:    logger,
	}
}

// Insights returns generated commentary for a lead, or the fallback.
// A missing lead or analysis also yields the fallback.
func (s *Service) Insights(ctx context.Context, tenantID string, lead *domain.Lead, analysis *domain.AgingAnalysis) domain.Insights {
	var leadID string
	switch {
	case analysis != nil:
		leadID = analysis.LeadID
	case lead != nil:
		leadID = lead.ID
	}
	fallback := domain.Insights{
		LeadID: leadID,
		Items:  append([]string(nil), FallbackInsights...),
		Source: domain.InsightSourceFallback,
	}

	if s.generator == nil || lead == nil || analysis == nil {
		return fallback
	}
	if !s.allow(ctx, tenantID) {
		s.logger.Warn("insight rate limit reached", "tenant_id", tenantID, "lead_id", leadID)
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.generator.GenerateInsights(ctx, lead, analysis)
	if err != nil {
		s.logger.Warn("insight generation failed",
			"tenant_id", tenantID,
			"lead_id", analysis.LeadID,
			"error", err,
		)
		return fallback
	}

	return domain.Insights{
		LeadID: analysis.LeadID,
		Items:  items,
		Source: domain.InsightSourceGenerated,
	}
}

// allow counts the call against the tenant's per-minute budget. A cache
// failure does not block generation.
func (s *Service) allow(ctx context.Context, tenantID string) bool {
	if s.cache == nil || s.limit <= 0 {
		return true
	}

	n, err := s.cache.IncrementCounter(ctx, tenantID, rateLimitKey, time.Minute)
	if err != nil {
		s.logger.Warn("insight rate counter unavailable", "tenant_id", tenantID, "error", err)
		return true
	}
	return n <= int64(s.limit)
}
