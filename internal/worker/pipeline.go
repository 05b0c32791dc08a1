package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/automation"
	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/domain"
	"github.com/opensource-finance/leadaging/internal/report"
	"github.com/opensource-finance/leadaging/internal/sink"
)

var tracer = otel.Tracer("leadaging-worker")

// Pipeline runs one stored-lead analysis batch end to end: load, analyse,
// persist, cache, export and announce.
type Pipeline struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	registry   *aging.Registry
	analyzer   *aging.Analyzer
	automation *automation.Engine
	reports    *report.Builder
	sink       sink.Sink
	cacheTTL   time.Duration
	now        func() time.Time
}

// Dependencies wires a Pipeline. Cache, Bus, Automation and Sink are
// optional.
type Dependencies struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Registry   *aging.Registry
	Analyzer   *aging.Analyzer
	Automation *automation.Engine
	Reports    *report.Builder
	Sink       sink.Sink
	CacheTTL   time.Duration
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Dependencies) *Pipeline {
	if deps.Reports == nil {
		deps.Reports = report.NewBuilder(0)
	}
	if deps.Sink == nil {
		deps.Sink = sink.NopSink{}
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = time.Hour
	}
	return &Pipeline{
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		registry:   deps.Registry,
		analyzer:   deps.Analyzer,
		automation: deps.Automation,
		reports:    deps.Reports,
		sink:       deps.Sink,
		cacheTTL:   deps.CacheTTL,
		now:        time.Now,
	}
}

// Outcome is what one Run produced.
type Outcome struct {
	Report   *domain.AgingReport       `json:"report"`
	Analyses []domain.AgingAnalysis    `json:"analyses"`
	Rejected []*domain.ValidationError `json:"rejected,omitempty"`
	Alerts   []domain.AgingAlert       `json:"alerts,omitempty"`
}

// Run analyses the tenant's open leads (or req.LeadIDs) against the
// current rule snapshot. Configuration errors and, in fail-fast mode,
// validation errors abort the run before anything is written.
// Incremental runs skip the batch report.
func (p *Pipeline) Run(ctx context.Context, req AnalysisRequest) (*Outcome, error) {
	start := time.Now()
	tenantID := req.TenantID

	ctx, span := tracer.Start(ctx, "analysis.run",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int("request.lead_ids", len(req.LeadIDs)),
		),
	)
	defer span.End()

	traceID := req.TraceID
	if traceID == "" && span.SpanContext().HasTraceID() {
		traceID = span.SpanContext().TraceID().String()
	}
	if traceID == "" {
		traceID = uuid.New().String()
	}

	leads, err := p.repo.ListLeads(ctx, tenantID, domain.LeadFilter{
		ExcludeClosed: true,
		IDs:           req.LeadIDs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list leads failed")
		return nil, fmt.Errorf("list leads: %w", err)
	}
	if len(leads) == 0 && req.Incremental {
		return &Outcome{}, nil
	}

	rs := p.registry.Snapshot()
	analyzeStart := time.Now()
	result, err := p.analyzer.AnalyzeWithRuleSet(ctx, leads, rs, p.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		return nil, err
	}
	analyzeMs := time.Since(analyzeStart).Milliseconds()

	for i := range result.Analyses {
		result.Analyses[i].TenantID = tenantID
	}

	if err := p.repo.SaveAnalyses(ctx, tenantID, result.Analyses); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save analyses failed")
		return nil, fmt.Errorf("save analyses: %w", err)
	}

	alerts, notificationsDue := p.alerts(tenantID, leads, result.Analyses, rs)

	var rep *domain.AgingReport
	if !req.Incremental {
		rep = p.reports.Build(ctx, &report.Input{
			TenantID:         tenantID,
			TraceID:          traceID,
			Analyses:         result.Analyses,
			RejectedLeads:    len(result.Rejected),
			NotificationsDue: notificationsDue,
			RuleSetVersion:   result.RuleSetVersion,
			AnalyzeMs:        analyzeMs,
			StartTime:        start,
		})
		if err := p.repo.SaveReport(ctx, tenantID, rep); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save report failed")
			return nil, fmt.Errorf("save report: %w", err)
		}
	}

	p.cacheAnalyses(ctx, tenantID, result.Analyses)

	if err := p.sink.Export(ctx, tenantID, result.Analyses); err != nil {
		slog.Error("failed to export analyses",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	p.announce(ctx, tenantID, traceID, rep, result, alerts)

	for _, rej := range result.Rejected {
		slog.Warn("lead rejected",
			"tenant_id", tenantID,
			"lead_id", rej.LeadID,
			"reason", rej.Reason,
		)
	}

	span.SetAttributes(
		attribute.Int("analysis.lead_count", len(result.Analyses)),
		attribute.Int("analysis.rejected", len(result.Rejected)),
		attribute.String("analysis.rule_set_version", result.RuleSetVersion),
	)

	slog.Info("analysis completed",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"incremental", req.Incremental,
		"lead_count", len(result.Analyses),
		"rejected", len(result.Rejected),
		"alerts", len(alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Outcome{
		Report:   rep,
		Analyses: result.Analyses,
		Rejected: result.Rejected,
		Alerts:   alerts,
	}, nil
}

// alerts evaluates automatic actions and picks the leads that need their
// owner's attention. It also returns how many leads reached their rule's
// notification threshold.
func (p *Pipeline) alerts(tenantID string, leads []*domain.Lead, analyses []domain.AgingAnalysis, rs *aging.RuleSet) ([]domain.AgingAlert, int) {
	byID := make(map[string]*domain.Lead, len(leads))
	for _, l := range leads {
		if l != nil {
			byID[l.ID] = l
		}
	}

	var (
		alerts []domain.AgingAlert
		due    int
	)

	for i := range analyses {
		a := &analyses[i]
		rule, ok := rs.RuleFor(a.AgingCategory)
		if !ok {
			continue
		}

		notify := automation.NotificationDue(a, rule)
		if notify {
			due++
		}

		var triggered []domain.TriggeredAction
		if p.automation != nil {
			var err error
			triggered, err = p.automation.Evaluate(byID[a.LeadID], a, rule)
			if err != nil {
				slog.Warn("action policy evaluation failed",
					"tenant_id", tenantID,
					"lead_id", a.LeadID,
					"error", err,
				)
			}
		}

		if len(triggered) > 0 || notify || report.NeedsAttention(a) {
			alerts = append(alerts, domain.AgingAlert{
				TenantID:         tenantID,
				Analysis:         *a,
				NotificationDue:  notify,
				TriggeredActions: triggered,
			})
		}
	}

	return alerts, due
}

func (p *Pipeline) cacheAnalyses(ctx context.Context, tenantID string, analyses []domain.AgingAnalysis) {
	if p.cache == nil {
		return
	}
	for i := range analyses {
		if err := p.cache.SetAnalysis(ctx, tenantID, &analyses[i], p.cacheTTL); err != nil {
			slog.Warn("failed to cache analysis",
				"tenant_id", tenantID,
				"lead_id", analyses[i].LeadID,
				"error", err,
			)
			return
		}
	}
}

func (p *Pipeline) announce(ctx context.Context, tenantID, traceID string, rep *domain.AgingReport, result *aging.Result, alerts []domain.AgingAlert) {
	if p.bus == nil {
		return
	}

	for i := range alerts {
		if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicAgingAlert, &alerts[i]); err != nil {
			slog.Error("failed to publish aging alert",
				"tenant_id", tenantID,
				"lead_id", alerts[i].Analysis.LeadID,
				"error", err,
			)
		}
	}

	completed := AnalysisCompleted{
		TenantID:       tenantID,
		TraceID:        traceID,
		LeadCount:      len(result.Analyses),
		RejectedCount:  len(result.Rejected),
		AlertCount:     len(alerts),
		RuleSetVersion: result.RuleSetVersion,
	}
	if rep != nil {
		completed.ReportID = rep.ID
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicAnalysisCompleted, completed); err != nil {
		slog.Error("failed to publish analysis completed",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}
