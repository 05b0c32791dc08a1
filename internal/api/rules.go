package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/domain"
)

// ListRules returns the rules in the live snapshot.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("rule registry not available"))
		return
	}

	rs := h.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":   rs.Rules(),
		"count":   rs.Len(),
		"version": rs.Version(),
	})
}

// GetRule retrieves a rule by ID from the live snapshot.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("rule registry not available"))
		return
	}

	for _, rule := range h.registry.Rules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, errorBody("rule not found"))
}

// SaveRule validates a rule on its own and stores it globally. The full
// table is only checked on reload, so coverage gaps introduced by one
// save surface there.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	rule := domain.AgingRule{Active: true}
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	if rule.Version == "" {
		rule.Version = "1.0.0"
	}
	rule.TenantID = GlobalTenantID

	if err := aging.ValidateRule(&rule); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.SaveAgingRule(ctx, GlobalTenantID, &rule); err != nil {
		slog.Error("failed to save aging rule", "rule_id", rule.ID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("aging rule saved", "rule_id", rule.ID, "category", rule.Category)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    &rule,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule deactivates a stored rule. The live snapshot is untouched
// until the next reload.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	if err := h.repo.DeleteAgingRule(ctx, GlobalTenantID, ruleID); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("aging rule deactivated", "rule_id", ruleID)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Rule deactivated. Call POST /rules/reload to apply changes.",
		"id":      ruleID,
	})
}

// ReloadRules swaps the stored active rules into the registry. A table
// that fails validation leaves the previous snapshot in place.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	stored, err := h.repo.ListAgingRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list aging rules from database", "error", err)
		writeError(w, err)
		return
	}

	rs, err := h.registry.Reload(stored)
	if err != nil {
		slog.Error("aging rules rejected", "count", len(stored), "error", err)
		writeError(w, err)
		return
	}

	slog.Info("aging rules reloaded", "count", rs.Len(), "version", rs.Version())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   rs.Len(),
		"version": rs.Version(),
	})
}

// ListPolicies returns the loaded action policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("automation engine not available"))
		return
	}

	policies := h.automation.Policies()
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// SavePolicy compiles a policy guard and stores it globally.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("automation engine not available"))
		return
	}

	policy := domain.ActionPolicy{Enabled: true}
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return
	}
	if policy.ID == "" || policy.ActionID == "" || policy.Expression == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id, actionId, and expression are required"))
		return
	}
	policy.TenantID = GlobalTenantID

	if err := h.automation.ValidatePolicy(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid CEL expression: "+err.Error()))
		return
	}

	if err := h.repo.SaveActionPolicy(ctx, GlobalTenantID, &policy); err != nil {
		slog.Error("failed to save action policy", "policy_id", policy.ID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("action policy saved", "policy_id", policy.ID, "action_id", policy.ActionID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy":  &policy,
		"message": "Policy saved. Call POST /policies/reload to apply changes.",
	})
}

// ReloadPolicies replaces the loaded policies with the stored ones.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.automation == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("automation engine not available"))
		return
	}

	stored, err := h.repo.ListActionPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list action policies from database", "error", err)
		writeError(w, err)
		return
	}

	if err := h.automation.ReloadPolicies(stored); err != nil {
		slog.Error("action policies rejected", "count", len(stored), "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return
	}

	slog.Info("action policies reloaded", "count", h.automation.PoliciesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "policies reloaded successfully",
		"count":   h.automation.PoliciesCount(),
	})
}
