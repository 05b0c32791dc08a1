// Package automation decides which automatic actions fire for an analysed
// lead, using CEL guard expressions.
package automation

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/leadaging/internal/domain"
)

// Engine evaluates action policies against analyses.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	policies map[string]*CompiledPolicy
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Policy  *domain.ActionPolicy
	Program cel.Program
}

// NewEngine creates an engine with no policies loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("category", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("risk_rank", cel.IntType),
		cel.Variable("days_in_pipeline", cel.IntType),
		cel.Variable("days_since_last_contact", cel.IntType),
		cel.Variable("days_until_next_follow_up", cel.IntType),
		cel.Variable("conversion_probability", cel.DoubleType),
		cel.Variable("urgency_score", cel.DoubleType),
		cel.Variable("lead_value", cel.DoubleType),
		cel.Variable("lead_score", cel.DoubleType),
		cel.Variable("lead_source", cel.StringType),
		cel.Variable("lead_status", cel.StringType),
		cel.Variable("notification_threshold", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		policies: make(map[string]*CompiledPolicy),
	}, nil
}

// ValidatePolicy compiles a policy without loading it.
func (e *Engine) ValidatePolicy(p *domain.ActionPolicy) error {
	if p == nil {
		return fmt.Errorf("policy is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(p)
	return err
}

// LoadPolicy compiles and loads one policy, replacing any with the same id.
func (e *Engine) LoadPolicy(p *domain.ActionPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(p)
	if err != nil {
		return err
	}
	e.policies[p.ID] = compiled
	return nil
}

// LoadPolicies loads every enabled policy.
func (e *Engine) LoadPolicies(policies []*domain.ActionPolicy) error {
	for _, p := range policies {
		if p != nil && p.Enabled {
			if err := e.LoadPolicy(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadPolicies replaces all loaded policies. Nothing changes if any
// policy fails to compile.
func (e *Engine) ReloadPolicies(policies []*domain.ActionPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledPolicy)
	for _, p := range policies {
		if p == nil || !p.Enabled {
			continue
		}
		compiled, err := e.compile(p)
		if err != nil {
			return err
		}
		next[p.ID] = compiled
	}

	e.policies = next
	return nil
}

// Policies returns the loaded policies ordered by id.
func (e *Engine) Policies() []*domain.ActionPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.ActionPolicy, 0, len(e.policies))
	for _, c := range e.policies {
		out = append(out, c.Policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.policies)
}

// NotificationDue reports whether the contact gap has reached the rule's
// notification threshold.
func NotificationDue(analysis *domain.AgingAnalysis, rule *domain.AgingRule) bool {
	if analysis == nil || rule == nil {
		return false
	}
	return analysis.DaysSinceLastContact >= rule.NotificationThreshold
}

// Evaluate returns the automatic actions of rule that fire for analysis,
// in the rule's declared order.
//
// An action with one or more loaded policies fires when any of them holds.
// An action with no policy fires when the notification threshold is due.
// Policies that fail to evaluate do not fire; their errors are joined into
// the returned error alongside whatever actions did fire.
func (e *Engine) Evaluate(lead *domain.Lead, analysis *domain.AgingAnalysis, rule *domain.AgingRule) ([]domain.TriggeredAction, error) {
	if analysis == nil || rule == nil || len(rule.AutomaticActions) == 0 {
		return nil, nil
	}

	byAction := e.policiesByAction()
	activation := buildActivation(lead, analysis, rule)
	due := NotificationDue(analysis, rule)

	var (
		triggered []domain.TriggeredAction
		errs      []error
	)

	for _, actionID := range rule.AutomaticActions {
		guards := byAction[actionID]
		if len(guards) == 0 {
			if due {
				triggered = append(triggered, domain.TriggeredAction{
					LeadID:   analysis.LeadID,
					ActionID: actionID,
					RuleID:   rule.ID,
					Reason:   fmt.Sprintf("no contact for %d days (threshold %d)", analysis.DaysSinceLastContact, rule.NotificationThreshold),
				})
			}
			continue
		}

		for _, g := range guards {
			ok, err := g.holds(activation)
			if err != nil {
				errs = append(errs, fmt.Errorf("policy %s: %w", g.Policy.ID, err))
				continue
			}
			if ok {
				reason := g.Policy.Name
				if reason == "" {
					reason = g.Policy.Expression
				}
				triggered = append(triggered, domain.TriggeredAction{
					LeadID:   analysis.LeadID,
					ActionID: actionID,
					RuleID:   rule.ID,
					PolicyID: g.Policy.ID,
					Reason:   reason,
				})
				break
			}
		}
	}

	return triggered, errors.Join(errs...)
}

// Close unloads all policies.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) policiesByAction() map[string][]*CompiledPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string][]*CompiledPolicy)
	for _, c := range e.policies {
		out[c.Policy.ActionID] = append(out[c.Policy.ActionID], c)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].Policy.ID < list[j].Policy.ID })
	}
	return out
}

func (c *CompiledPolicy) holds(activation map[string]any) (bool, error) {
	out, _, err := c.Program.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %s", out.Type().TypeName())
	}
	return bool(b), nil
}

func buildActivation(lead *domain.Lead, a *domain.AgingAnalysis, rule *domain.AgingRule) map[string]any {
	activation := map[string]any{
		"category":                  string(a.AgingCategory),
		"risk_level":                string(a.RiskLevel),
		"risk_rank":                 int64(a.RiskLevel.Rank()),
		"days_in_pipeline":          int64(a.DaysInPipeline),
		"days_since_last_contact":   int64(a.DaysSinceLastContact),
		"days_until_next_follow_up": int64(a.DaysUntilNextFollowUp),
		"conversion_probability":    a.ConversionProbability,
		"urgency_score":             a.UrgencyScore,
		"notification_threshold":    int64(rule.NotificationThreshold),
		"lead_value":                0.0,
		"lead_score":                0.0,
		"lead_source":               "",
		"lead_status":               "",
	}

	if lead != nil {
		activation["lead_value"] = lead.EstimatedValue
		activation["lead_score"] = lead.Score
		activation["lead_source"] = lead.Source
		activation["lead_status"] = string(lead.Status)
	}

	return activation
}

func (e *Engine) compile(p *domain.ActionPolicy) (*CompiledPolicy, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("policy id is required")
	}
	if p.ActionID == "" {
		return nil, fmt.Errorf("policy %s: action id is required", p.ID)
	}

	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", p.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy %s: expression must return bool, got %s", p.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", p.ID, err)
	}

	return &CompiledPolicy{
		Policy:  p,
		Program: program,
	}, nil
}
