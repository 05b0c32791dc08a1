package automation

import (
	"testing"

	"github.com/opensource-finance/leadaging/internal/domain"
)

func testRule() *domain.AgingRule {
	return &domain.AgingRule{
		ID:                    "aging-frozen",
		Category:              domain.CategoryFrozen,
		MinDays:               31,
		BaseRisk:              domain.RiskHigh,
		AutomaticActions:      []string{"escalate_to_manager", "win_back_sequence"},
		NotificationThreshold: 30,
		Active:                true,
	}
}

func testAnalysis(contactGap int, risk domain.RiskLevel) *domain.AgingAnalysis {
	return &domain.AgingAnalysis{
		LeadID:               "lead-1",
		DaysInPipeline:       45,
		DaysSinceLastContact: contactGap,
		AgingCategory:        domain.CategoryFrozen,
		RiskLevel:            risk,
		UrgencyScore:         70,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.PoliciesCount() != 0 {
		t.Errorf("expected 0 policies, got %d", engine.PoliciesCount())
	}
}

func TestValidatePolicy(t *testing.T) {
	engine, _ := NewEngine()

	tests := []struct {
		name    string
		policy  *domain.ActionPolicy
		wantErr bool
	}{
		{"valid", &domain.ActionPolicy{ID: "p1", ActionID: "a", Expression: `risk_level == "critical"`}, false},
		{"nil", nil, true},
		{"missing id", &domain.ActionPolicy{ActionID: "a", Expression: "true"}, true},
		{"missing action", &domain.ActionPolicy{ID: "p1", Expression: "true"}, true},
		{"syntax error", &domain.ActionPolicy{ID: "p1", ActionID: "a", Expression: "this is not valid CEL !!!"}, true},
		{"non-bool", &domain.ActionPolicy{ID: "p1", ActionID: "a", Expression: "urgency_score * 2.0"}, true},
		{"unknown variable", &domain.ActionPolicy{ID: "p1", ActionID: "a", Expression: "amount > 1.0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.ValidatePolicy(tt.policy)
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}

	if engine.PoliciesCount() != 0 {
		t.Error("ValidatePolicy must not load policies")
	}
}

func TestEvaluateWithoutPolicies(t *testing.T) {
	engine, _ := NewEngine()
	rule := testRule()

	actions, err := engine.Evaluate(nil, testAnalysis(29, domain.RiskHigh), rule)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions below threshold, got %d", len(actions))
	}

	actions, err = engine.Evaluate(nil, testAnalysis(30, domain.RiskHigh), rule)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions at threshold, got %d", len(actions))
	}
	if actions[0].ActionID != "escalate_to_manager" || actions[1].ActionID != "win_back_sequence" {
		t.Errorf("actions out of rule order: %+v", actions)
	}
	if actions[0].RuleID != "aging-frozen" || actions[0].LeadID != "lead-1" {
		t.Errorf("unexpected action attribution: %+v", actions[0])
	}
}

func TestEvaluateWithPolicy(t *testing.T) {
	engine, _ := NewEngine()
	err := engine.LoadPolicies([]*domain.ActionPolicy{
		{
			ID:         "big-deal-escalation",
			ActionID:   "escalate_to_manager",
			Name:       "Escalate critical high-value deals",
			Expression: `risk_level == "critical" && lead_value > 50000.0`,
			Enabled:    true,
		},
		{
			ID:         "disabled",
			ActionID:   "win_back_sequence",
			Expression: "false",
			Enabled:    false,
		},
	})
	if err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}
	if engine.PoliciesCount() != 1 {
		t.Fatalf("expected 1 policy, got %d", engine.PoliciesCount())
	}

	rule := testRule()
	lead := &domain.Lead{ID: "lead-1", EstimatedValue: 80000}

	// The guarded action ignores the threshold and follows its policy.
	actions, _ := engine.Evaluate(lead, testAnalysis(40, domain.RiskHigh), rule)
	if len(actions) != 1 || actions[0].ActionID != "win_back_sequence" {
		t.Fatalf("expected only the unguarded action, got %+v", actions)
	}

	actions, _ = engine.Evaluate(lead, testAnalysis(10, domain.RiskCritical), rule)
	if len(actions) != 1 || actions[0].ActionID != "escalate_to_manager" {
		t.Fatalf("expected only the guarded action, got %+v", actions)
	}
	if actions[0].PolicyID != "big-deal-escalation" {
		t.Errorf("expected policy id on triggered action, got %q", actions[0].PolicyID)
	}
	if actions[0].Reason != "Escalate critical high-value deals" {
		t.Errorf("unexpected reason %q", actions[0].Reason)
	}
}

func TestReloadPoliciesKeepsOldOnError(t *testing.T) {
	engine, _ := NewEngine()
	_ = engine.LoadPolicy(&domain.ActionPolicy{ID: "p1", ActionID: "a", Expression: "true", Enabled: true})

	err := engine.ReloadPolicies([]*domain.ActionPolicy{
		{ID: "p2", ActionID: "a", Expression: "true", Enabled: true},
		{ID: "p3", ActionID: "b", Expression: "broken ((", Enabled: true},
	})
	if err == nil {
		t.Fatal("expected reload error")
	}

	policies := engine.Policies()
	if len(policies) != 1 || policies[0].ID != "p1" {
		t.Errorf("expected original policy to survive, got %+v", policies)
	}

	err = engine.ReloadPolicies([]*domain.ActionPolicy{
		{ID: "p2", ActionID: "a", Expression: "true", Enabled: true},
	})
	if err != nil {
		t.Fatalf("ReloadPolicies failed: %v", err)
	}
	if policies = engine.Policies(); len(policies) != 1 || policies[0].ID != "p2" {
		t.Errorf("expected p2 after reload, got %+v", policies)
	}
}

func TestEvaluateRuntimeError(t *testing.T) {
	engine, _ := NewEngine()
	err := engine.LoadPolicy(&domain.ActionPolicy{
		ID:         "div",
		ActionID:   "escalate_to_manager",
		Expression: "100 / (days_in_pipeline - 45) > 1",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	actions, err := engine.Evaluate(nil, testAnalysis(40, domain.RiskHigh), testRule())
	if err == nil {
		t.Error("expected evaluation error for division by zero")
	}
	if len(actions) != 1 || actions[0].ActionID != "win_back_sequence" {
		t.Errorf("unguarded action should still fire, got %+v", actions)
	}
}

func TestNotificationDue(t *testing.T) {
	rule := testRule()

	if NotificationDue(testAnalysis(29, domain.RiskHigh), rule) {
		t.Error("29 days is below threshold 30")
	}
	if !NotificationDue(testAnalysis(30, domain.RiskHigh), rule) {
		t.Error("30 days meets threshold 30")
	}
	if NotificationDue(nil, rule) {
		t.Error("nil analysis is never due")
	}
}
