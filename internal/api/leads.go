package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/domain"
	"github.com/opensource-finance/leadaging/internal/repository"
	"github.com/opensource-finance/leadaging/internal/worker"
)

// Analysis sources reported by GET /leads/{id}/analysis
const (
	analysisFromCache    = "cache"
	analysisFromStore    = "store"
	analysisFromComputed = "computed"
)

// ListLeads handles GET /leads?status=&source=&open=&limit=.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	q := r.URL.Query()
	filter := domain.LeadFilter{
		Status: domain.LeadStatus(q.Get("status")),
		Source: q.Get("source"),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown status %q", filter.Status)))
		return
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("open must be a boolean"))
			return
		}
		filter.ExcludeClosed = open
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	leads, err := h.repo.ListLeads(ctx, tenantID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"leads": leads,
		"count": len(leads),
	})
}

// SaveLead handles POST /leads. The lead is validated the same way the
// analyzer validates it, stored, and announced on the bus so the workers
// refresh its analysis.
func (h *Handler) SaveLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	var lead domain.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}

	now := h.now().UTC()
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	if !lead.Status.IsValid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  fmt.Sprintf("unknown status %q", lead.Status),
			"leadId": lead.ID,
		})
		return
	}
	lead.TenantID = tenantID

	if err := aging.ValidateLead(&lead, now); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.SaveLead(ctx, tenantID, &lead); err != nil {
		slog.Error("failed to save lead",
			"tenant_id", tenantID,
			"lead_id", lead.ID,
			"error", err,
		)
		writeError(w, err)
		return
	}

	if h.bus != nil {
		ev := worker.LeadUpserted{TenantID: tenantID, LeadID: lead.ID, TraceID: GetTraceID(ctx)}
		if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicLeadUpserted, ev); err != nil {
			slog.Error("failed to announce lead",
				"tenant_id", tenantID,
				"lead_id", lead.ID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusCreated, &lead)
}

// GetLead retrieves a lead by ID.
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	lead, err := h.repo.GetLead(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

// DeleteLead removes a lead and its cached analysis.
func (h *Handler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	leadID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	if err := h.repo.DeleteLead(ctx, tenantID, leadID); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("lead deleted", "tenant_id", tenantID, "lead_id", leadID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "lead deleted",
		"id":      leadID,
	})
}

// GetLeadAnalysis returns the latest analysis of a lead, looking in the
// cache, then the store, and computing it on demand when neither has one.
// ?fresh=true always recomputes.
func (h *Handler) GetLeadAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil || h.analyzer == nil || h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("analyzer not available"))
		return
	}

	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))

	lead, err := h.repo.GetLead(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	analysis, source, err := h.resolveAnalysis(ctx, tenantID, lead, fresh)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis": analysis,
		"source":   source,
	})
}

// LeadInsights handles POST /leads/{id}/insights.
func (h *Handler) LeadInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.insights == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("insight service not available"))
		return
	}
	if h.repo == nil || h.analyzer == nil || h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("analyzer not available"))
		return
	}

	lead, err := h.repo.GetLead(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	analysis, _, err := h.resolveAnalysis(ctx, tenantID, lead, false)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.insights.Insights(ctx, tenantID, lead, analysis))
}

func (h *Handler) resolveAnalysis(ctx context.Context, tenantID string, lead *domain.Lead, fresh bool) (*domain.AgingAnalysis, string, error) {
	if !fresh {
		if h.cache != nil {
			cached, err := h.cache.GetAnalysis(ctx, tenantID, lead.ID)
			if err != nil {
				slog.Warn("analysis cache lookup failed", "tenant_id", tenantID, "lead_id", lead.ID, "error", err)
			} else if cached != nil {
				return cached, analysisFromCache, nil
			}
		}

		stored, err := h.repo.GetAnalysis(ctx, tenantID, lead.ID)
		switch {
		case err == nil:
			return stored, analysisFromStore, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, "", err
		}
	}

	analysis, err := h.analyzer.AnalyzeLead(lead, h.registry.Snapshot(), h.now().UTC())
	if err != nil {
		return nil, "", err
	}
	analysis.TenantID = tenantID

	if h.cache != nil {
		if err := h.cache.SetAnalysis(ctx, tenantID, &analysis, h.cacheTTL); err != nil {
			slog.Warn("failed to cache analysis", "tenant_id", tenantID, "lead_id", lead.ID, "error", err)
		}
	}

	return &analysis, analysisFromComputed, nil
}
