//go:build integration
// +build integration

// Package integration provides end-to-end tests for a running leadaging server.
//
// These tests drive the public API only:
//
//	Lead → Aging rule → Category → Risk escalation → Probability / Urgency → Action
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be started with the default aging rule table, which it
// seeds on first start when the rule store is empty:
//
// | Rule ID       | Days  | Category | Base risk |
// |---------------|-------|----------|-----------|
// | aging-new     | 0-2   | new      | low       |
// | aging-warm    | 3-14  | warm     | low       |
// | aging-cold    | 15-30 | cold     | medium    |
// | aging-frozen  | 31-90 | frozen   | high      |
// | aging-stale   | 91+   | stale    | critical  |
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("LEADAGING_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}
}

// Lead mirrors the API lead contract.
type Lead struct {
	ID             string     `json:"id"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastContactAt  *time.Time `json:"lastContactAt,omitempty"`
	NextFollowUpAt *time.Time `json:"nextFollowUpAt,omitempty"`
	Score          float64    `json:"score"`
	EstimatedValue float64    `json:"estimatedValue"`
	Source         string     `json:"source"`
	Status         string     `json:"status,omitempty"`
}

// Analysis mirrors one analysis in API responses.
type Analysis struct {
	LeadID                string  `json:"leadId"`
	DaysInPipeline        int     `json:"daysInPipeline"`
	DaysSinceLastContact  int     `json:"daysSinceLastContact"`
	AgingCategory         string  `json:"agingCategory"`
	RiskLevel             string  `json:"riskLevel"`
	RecommendedAction     string  `json:"recommendedAction"`
	ConversionProbability float64 `json:"conversionProbability"`
	UrgencyScore          float64 `json:"urgencyScore"`
	RuleID                string  `json:"ruleId"`
}

// AnalyzeRequest is the body of POST /analyze
type AnalyzeRequest struct {
	Leads    []Lead          `json:"leads"`
	Rules    json.RawMessage `json:"rules,omitempty"`
	Now      *time.Time      `json:"now,omitempty"`
	FailFast *bool           `json:"failFast,omitempty"`
}

// AnalyzeResponse is what POST /analyze returns
type AnalyzeResponse struct {
	Analyses []Analysis `json:"analyses"`
	Rejected []struct {
		LeadID string `json:"leadId"`
		Reason string `json:"reason"`
	} `json:"rejected"`
	RuleSetVersion string `json:"ruleSetVersion"`
	Metadata       struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

var referenceNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysBefore(now time.Time, d int) time.Time {
	return now.Add(-time.Duration(d) * 24 * time.Hour)
}

// call sends a JSON request and returns the status and raw body.
func call(t *testing.T, config TestConfig, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if config.TenantID != "" {
		httpReq.Header.Set("X-Tenant-ID", config.TenantID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func analyze(t *testing.T, config TestConfig, req AnalyzeRequest) AnalyzeResponse {
	t.Helper()

	status, body := call(t, config, http.MethodPost, "/analyze", req)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

// ============================================================================
// SCENARIO 1: Warm referral
// ============================================================================

func TestWarmReferral(t *testing.T) {
	/*
	   SCENARIO: created 5 days ago, never contacted, score 85, $60,000, Referral

	   EXPECTED BEHAVIOR:
	   - max(5, 5) = 5 days → aging-warm → warm, base risk low
	   - value escalation needs a contact gap > 7 → no
	   - score escalation needs a contact gap > 5 → no
	   - conversion 68 + 10 + 5 + 10 + 15 = 108 → clamped to 95
	*/
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		Leads: []Lead{{
			ID:             "warm-referral",
			CreatedAt:      daysBefore(referenceNow, 5),
			Score:          85,
			EstimatedValue: 60000,
			Source:         "Referral",
		}},
		Now: &referenceNow,
	})

	if len(result.Analyses) != 1 {
		t.Fatalf("Expected 1 analysis, got %d", len(result.Analyses))
	}
	a := result.Analyses[0]

	if a.AgingCategory != "warm" || a.RuleID != "aging-warm" {
		t.Errorf("Expected warm via aging-warm, got %s via %s", a.AgingCategory, a.RuleID)
	}
	if a.RiskLevel != "low" {
		t.Errorf("Expected low risk, got %s", a.RiskLevel)
	}
	if a.ConversionProbability != 95 {
		t.Errorf("Expected conversion 95, got %.2f", a.ConversionProbability)
	}

	t.Logf("✓ Warm referral: category=%s risk=%s conversion=%.0f urgency=%.1f",
		a.AgingCategory, a.RiskLevel, a.ConversionProbability, a.UrgencyScore)
}

// ============================================================================
// SCENARIO 2: Stale cold call
// ============================================================================

func TestStaleColdCall(t *testing.T) {
	/*
	   SCENARIO: created 120 days ago, last contacted 100 days ago, score 20,
	   $2,000, Cold Call

	   EXPECTED BEHAVIOR:
	   - 120 days → aging-stale → critical base risk
	   - urgency (50 + 30) × 1.6 = 128 → clamped to 100
	*/
	config := getTestConfig()
	contacted := daysBefore(referenceNow, 100)

	result := analyze(t, config, AnalyzeRequest{
		Leads: []Lead{{
			ID:             "stale-cold-call",
			CreatedAt:      daysBefore(referenceNow, 120),
			LastContactAt:  &contacted,
			Score:          20,
			EstimatedValue: 2000,
			Source:         "Cold Call",
		}},
		Now: &referenceNow,
	})

	if len(result.Analyses) != 1 {
		t.Fatalf("Expected 1 analysis, got %d", len(result.Analyses))
	}
	a := result.Analyses[0]

	if a.AgingCategory != "stale" || a.RiskLevel != "critical" {
		t.Errorf("Expected stale/critical, got %s/%s", a.AgingCategory, a.RiskLevel)
	}
	if a.UrgencyScore != 100 {
		t.Errorf("Expected urgency 100, got %.2f", a.UrgencyScore)
	}
	if a.RecommendedAction == "" {
		t.Error("Expected a recommended action")
	}

	t.Logf("✓ Stale cold call: urgency=%.0f action=%q", a.UrgencyScore, a.RecommendedAction)
}

// ============================================================================
// SCENARIO 3: Overlapping rule table
// ============================================================================

func TestOverlappingRules_ConfigurationError(t *testing.T) {
	/*
	   SCENARIO: inline rules where new (0-7) overlaps warm (3-14)

	   EXPECTED BEHAVIOR: the whole call fails with 422 before any lead is read
	*/
	config := getTestConfig()

	rules := json.RawMessage(`[
		{"id":"r-new","category":"new","minDays":0,"maxDays":7,"baseRisk":"low","active":true},
		{"id":"r-warm","category":"warm","minDays":3,"maxDays":14,"baseRisk":"low","active":true},
		{"id":"r-cold","category":"cold","minDays":15,"baseRisk":"medium","active":true}
	]`)

	status, body := call(t, config, http.MethodPost, "/analyze", AnalyzeRequest{
		Leads: []Lead{{ID: "any", CreatedAt: daysBefore(referenceNow, 1), Score: 50}},
		Rules: rules,
		Now:   &referenceNow,
	})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for overlapping rules, got %d: %s", status, string(body))
	}

	t.Logf("✓ Overlapping rules rejected: HTTP %d", status)
}

// ============================================================================
// SCENARIO 4: Stored lead lifecycle
// ============================================================================

func TestLeadLifecycle(t *testing.T) {
	/*
	   SCENARIO: store a lead, let the workers refresh it, then run a batch

	   EXPECTED BEHAVIOR:
	   - POST /leads → 201 and a lead.upserted event
	   - GET /leads/{id}/analysis → available (stored, cached or computed)
	   - POST /analysis/run → report covering the tenant's open leads
	*/
	config := getTestConfig()
	now := time.Now().UTC()
	contacted := daysBefore(now, 20)

	lead := Lead{
		ID:             "lifecycle-001",
		CreatedAt:      daysBefore(now, 25),
		LastContactAt:  &contacted,
		Score:          70,
		EstimatedValue: 30000,
		Source:         "Website",
		Status:         "contacted",
	}

	status, body := call(t, config, http.MethodPost, "/leads", lead)
	if status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", status, string(body))
	}

	status, body = call(t, config, http.MethodGet, "/leads/lifecycle-001/analysis", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, string(body))
	}
	var got struct {
		Analysis Analysis `json:"analysis"`
		Source   string   `json:"source"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Failed to unmarshal analysis: %v", err)
	}
	if got.Analysis.AgingCategory != "cold" {
		t.Errorf("Expected cold, got %s", got.Analysis.AgingCategory)
	}

	status, body = call(t, config, http.MethodPost, "/analysis/run", nil)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, string(body))
	}
	var run struct {
		Report struct {
			ID         string         `json:"id"`
			LeadCount  int            `json:"leadCount"`
			ByCategory map[string]int `json:"byCategory"`
		} `json:"report"`
	}
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("Failed to unmarshal run: %v", err)
	}
	if run.Report.LeadCount != 1 || run.Report.ByCategory["cold"] != 1 {
		t.Errorf("Unexpected report: %+v", run.Report)
	}

	status, _ = call(t, config, http.MethodGet, "/reports/"+run.Report.ID, nil)
	if status != http.StatusOK {
		t.Errorf("Expected stored report, got HTTP %d", status)
	}

	t.Logf("✓ Lead lifecycle: analysis source=%s report=%s", got.Source, run.Report.ID)
}

// ============================================================================
// SCENARIO 5: Validation
// ============================================================================

func TestInvalidLead_FailFast(t *testing.T) {
	config := getTestConfig()
	failFast := true
	contacted := daysBefore(referenceNow, 20)

	status, body := call(t, config, http.MethodPost, "/analyze", AnalyzeRequest{
		Leads: []Lead{{
			ID:            "contact-before-creation",
			CreatedAt:     daysBefore(referenceNow, 10),
			LastContactAt: &contacted,
			Score:         50,
		}},
		Now:      &referenceNow,
		FailFast: &failFast,
	})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", status, string(body))
	}

	t.Logf("✓ Validation test passed: contact before creation → HTTP %d", status)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	config := getTestConfig()
	config.TenantID = ""

	status, _ := call(t, config, http.MethodPost, "/analyze", AnalyzeRequest{})
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", status)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", status)
}

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{Leads: []Lead{}, Now: &referenceNow})

	if result.RuleSetVersion == "" {
		t.Error("Missing ruleSetVersion")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata: version=%s ruleSet=%s", result.Metadata.Version, result.RuleSetVersion)
}
