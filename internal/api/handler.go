package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/automation"
	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/domain"
	"github.com/opensource-finance/leadaging/internal/insight"
	"github.com/opensource-finance/leadaging/internal/repository"
	"github.com/opensource-finance/leadaging/internal/worker"
)

// GlobalTenantID is the tenant aging rules and action policies are stored
// under. They apply to every tenant.
const GlobalTenantID = domain.AllTenants

// Dependencies wires the handlers. Cache, Bus, Automation, Pipeline and
// Insights are optional; routes that need a missing one answer 503.
type Dependencies struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Registry   *aging.Registry
	Analyzer   *aging.Analyzer
	Automation *automation.Engine
	Pipeline   *worker.Pipeline
	Insights   *insight.Service
	CacheTTL   time.Duration
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	registry   *aging.Registry
	analyzer   *aging.Analyzer
	automation *automation.Engine
	pipeline   *worker.Pipeline
	insights   *insight.Service
	cacheTTL   time.Duration
	version    string
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = time.Hour
	}
	return &Handler{
		repo:       deps.Repo,
		cache:      deps.Cache,
		bus:        deps.Bus,
		registry:   deps.Registry,
		analyzer:   deps.Analyzer,
		automation: deps.Automation,
		pipeline:   deps.Pipeline,
		insights:   deps.Insights,
		cacheTTL:   deps.CacheTTL,
		version:    deps.Version,
		now:        time.Now,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			slog.Warn("repository ping failed", "error", err)
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			slog.Warn("cache ping failed", "error", err)
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			slog.Warn("event bus ping failed", "error", err)
			status = "degraded"
		}
	}

	resp := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if h.registry != nil {
		rs := h.registry.Snapshot()
		resp["rules"] = rs.Len()
		resp["ruleSetVersion"] = rs.Version()
	}
	if h.automation != nil {
		resp["policies"] = h.automation.PoliciesCount()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil || h.analyzer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	Leads []*domain.Lead `json:"leads"`

	// Rules replaces the loaded rule set for this call only
	Rules []*domain.AgingRule `json:"rules,omitempty"`

	// Now pins the reference time; defaults to the server clock
	Now *time.Time `json:"now,omitempty"`

	// FailFast overrides the configured fail-fast mode
	FailFast *bool `json:"failFast,omitempty"`
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	Analyses       []domain.AgingAnalysis    `json:"analyses"`
	Rejected       []*domain.ValidationError `json:"rejected,omitempty"`
	RuleSetVersion string                    `json:"ruleSetVersion"`
	Metadata       struct {
		TraceID string    `json:"traceId"`
		Now     time.Time `json:"now"`
		TotalMs int64     `json:"totalMs"`
		Version string    `json:"version"`
	} `json:"metadata"`
}

// Analyze handles POST /analyze. It analyses the posted leads without
// reading or writing any stored state.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.analyzer == nil || h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("analyzer not available"))
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	rs := h.registry.Snapshot()
	if len(req.Rules) > 0 {
		inline, err := aging.NewRuleSet(req.Rules)
		if err != nil {
			writeError(w, err)
			return
		}
		rs = inline
	}

	now := h.now().UTC()
	if req.Now != nil {
		now = req.Now.UTC()
	}

	analyzer := h.analyzer
	if req.FailFast != nil {
		analyzer = analyzer.WithFailFast(*req.FailFast)
	}

	for _, lead := range req.Leads {
		if lead != nil {
			lead.TenantID = tenantID
		}
	}

	result, err := analyzer.AnalyzeWithRuleSet(ctx, req.Leads, rs, now)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, rej := range result.Rejected {
		slog.Warn("lead rejected",
			"tenant_id", tenantID,
			"lead_id", rej.LeadID,
			"reason", rej.Reason,
		)
	}

	resp := AnalyzeResponse{
		Analyses:       result.Analyses,
		Rejected:       result.Rejected,
		RuleSetVersion: result.RuleSetVersion,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.Now = now
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// RunAnalysisRequest is the optional body for POST /analysis/run.
type RunAnalysisRequest struct {
	LeadIDs []string `json:"leadIds,omitempty"`

	// Async hands the run to the workers and answers 202
	Async bool `json:"async,omitempty"`
}

// RunAnalysis handles POST /analysis/run over the tenant's stored leads.
func (h *Handler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var body RunAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	req := worker.AnalysisRequest{
		TenantID:    tenantID,
		TraceID:     GetTraceID(ctx),
		LeadIDs:     body.LeadIDs,
		RequestedBy: "api",
	}

	if body.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("event bus not available"))
			return
		}
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicAnalysisRequested, req); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "queued",
			"traceId": req.TraceID,
		})
		return
	}

	if h.pipeline == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("analysis pipeline not available"))
		return
	}

	outcome, err := h.pipeline.Run(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetReport retrieves an aging report by ID.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	reportID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	rep, err := h.repo.GetReport(ctx, tenantID, reportID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps engine and storage errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *domain.ValidationError
		cerr *domain.ConfigurationError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  verr.Error(),
			"leadId": verr.LeadID,
		})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  cerr.Error(),
			"ruleId": cerr.RuleID,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("request timed out"))
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}
