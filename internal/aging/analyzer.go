package aging

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// EngineVersion is stamped on reports.
const EngineVersion = "leadaging-1.0"

const hoursPerDay = 24.0

// Analyzer runs the per-lead pipeline over a batch of leads.
type Analyzer struct {
	actions    ActionTable
	maxWorkers int
	failFast   bool
}

// Options configures an Analyzer.
type Options struct {
	// MaxWorkers bounds concurrent per-lead goroutines (default 10)
	MaxWorkers int

	// FailFast returns the first malformed lead as the call's error
	// instead of reporting it in Result.Rejected
	FailFast bool

	// Actions overrides the default recommendation table
	Actions ActionTable
}

// Result is the outcome of one batch.
type Result struct {
	// Analyses are in input order, one per valid lead
	Analyses []domain.AgingAnalysis `json:"analyses"`

	// Rejected lists malformed leads when FailFast is off
	Rejected []*domain.ValidationError `json:"rejected,omitempty"`

	RuleSetVersion string `json:"ruleSetVersion"`
}

// NewAnalyzer creates an analyzer. The action table is checked for
// totality up front so a broken table fails before any lead is read.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	if opts.Actions == nil {
		opts.Actions = DefaultActionTable()
	}
	if err := opts.Actions.Validate(); err != nil {
		return nil, err
	}

	return &Analyzer{
		actions:    opts.Actions,
		maxWorkers: opts.MaxWorkers,
		failFast:   opts.FailFast,
	}, nil
}

// Analyze validates rules and analyses every lead against them.
// An invalid rule set fails with a ConfigurationError before any lead is
// processed.
func (a *Analyzer) Analyze(ctx context.Context, leads []*domain.Lead, rules []*domain.AgingRule, now time.Time) (*Result, error) {
	rs, err := NewRuleSet(rules)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeWithRuleSet(ctx, leads, rs, now)
}

type outcome struct {
	analysis domain.AgingAnalysis
	err      error
}

// AnalyzeWithRuleSet analyses leads against an already validated snapshot.
// Leads are processed in parallel; output order matches input order.
func (a *Analyzer) AnalyzeWithRuleSet(ctx context.Context, leads []*domain.Lead, rs *RuleSet, now time.Time) (*Result, error) {
	if rs == nil {
		return nil, domain.NewConfigurationError("", "rule set is not loaded")
	}

	result := &Result{
		Analyses:       make([]domain.AgingAnalysis, 0, len(leads)),
		RuleSetVersion: rs.Version(),
	}
	if len(leads) == 0 {
		return result, nil
	}

	outcomes := make([]outcome, len(leads))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, a.maxWorkers)

	for i, lead := range leads {
		wg.Add(1)
		go func(idx int, l *domain.Lead) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			if err := ctx.Err(); err != nil {
				outcomes[idx].err = err
				return
			}

			analysis, err := a.AnalyzeLead(l, rs, now)
			outcomes[idx] = outcome{analysis: analysis, err: err}
		}(i, lead)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Configuration errors win over per-lead problems.
	for _, o := range outcomes {
		if o.err != nil && !errors.Is(o.err, domain.ErrValidation) {
			return nil, o.err
		}
	}

	for _, o := range outcomes {
		if o.err == nil {
			result.Analyses = append(result.Analyses, o.analysis)
			continue
		}

		var verr *domain.ValidationError
		if !errors.As(o.err, &verr) {
			return nil, o.err
		}
		if a.failFast {
			return nil, verr
		}
		result.Rejected = append(result.Rejected, verr)
	}

	return result, nil
}

// WithFailFast returns a copy of a using the given fail-fast mode.
func (a *Analyzer) WithFailFast(failFast bool) *Analyzer {
	c := *a
	c.failFast = failFast
	return &c
}

// AnalyzeLead runs classification, risk adjustment, probability, urgency
// and recommendation for one lead.
func (a *Analyzer) AnalyzeLead(lead *domain.Lead, rs *RuleSet, now time.Time) (domain.AgingAnalysis, error) {
	if err := ValidateLead(lead, now); err != nil {
		return domain.AgingAnalysis{}, err
	}

	daysInPipeline := elapsedDays(lead.CreatedAt, now)

	daysSinceLastContact := daysInPipeline
	if lead.LastContactAt != nil {
		daysSinceLastContact = elapsedDays(*lead.LastContactAt, now)
	}

	daysUntilNextFollowUp := 0
	if lead.NextFollowUpAt != nil {
		daysUntilNextFollowUp = elapsedDays(now, *lead.NextFollowUpAt)
	}

	rule, err := classifyRule(daysInPipeline, daysSinceLastContact, rs)
	if err != nil {
		return domain.AgingAnalysis{}, withLeadID(err, lead.ID)
	}

	risk, err := AdjustRisk(rule.Category, daysSinceLastContact, lead.EstimatedValue, lead.Score, rs)
	if err != nil {
		return domain.AgingAnalysis{}, err
	}

	action, err := a.actions.Recommend(rule.Category, risk)
	if err != nil {
		return domain.AgingAnalysis{}, err
	}

	return domain.AgingAnalysis{
		LeadID:                lead.ID,
		TenantID:              lead.TenantID,
		DaysInPipeline:        daysInPipeline,
		DaysSinceLastContact:  daysSinceLastContact,
		DaysUntilNextFollowUp: daysUntilNextFollowUp,
		AgingCategory:         rule.Category,
		RiskLevel:             risk,
		RecommendedAction:     action,
		ConversionProbability: EstimateConversion(lead.Score, daysInPipeline, daysSinceLastContact, lead.EstimatedValue, lead.Source),
		UrgencyScore:          ScoreUrgency(lead.EstimatedValue, lead.Score, daysInPipeline, daysSinceLastContact, risk),
		RuleID:                rule.ID,
		AnalyzedAt:            now,
	}, nil
}

// Analyze runs a fail-fast batch with default options.
func Analyze(leads []*domain.Lead, rules []*domain.AgingRule, now time.Time) ([]domain.AgingAnalysis, error) {
	a, err := NewAnalyzer(Options{FailFast: true})
	if err != nil {
		return nil, err
	}
	res, err := a.Analyze(context.Background(), leads, rules, now)
	if err != nil {
		return nil, err
	}
	return res.Analyses, nil
}

// elapsedDays returns whole days from "from" to "to", rounded down.
// Negative spans round toward negative infinity.
func elapsedDays(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours() / hoursPerDay))
}

// ValidateLead checks the timestamps and numeric ranges the analysis
// depends on.
func ValidateLead(lead *domain.Lead, now time.Time) error {
	if lead == nil {
		return domain.NewValidationError("", "lead is nil")
	}
	if lead.ID == "" {
		return domain.NewValidationError("", "lead id is required")
	}
	if lead.CreatedAt.IsZero() {
		return domain.NewValidationError(lead.ID, "creation timestamp is required")
	}
	if lead.CreatedAt.After(now) {
		return domain.NewValidationError(lead.ID, "creation timestamp %s is after now %s", lead.CreatedAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if lc := lead.LastContactAt; lc != nil {
		if lc.Before(lead.CreatedAt) {
			return domain.NewValidationError(lead.ID, "last contact %s predates creation %s", lc.Format(time.RFC3339), lead.CreatedAt.Format(time.RFC3339))
		}
		if lc.After(now) {
			return domain.NewValidationError(lead.ID, "last contact %s is after now", lc.Format(time.RFC3339))
		}
	}
	if !finite(lead.Score) || lead.Score < 0 || lead.Score > 100 {
		return domain.NewValidationError(lead.ID, "score %v outside [0,100]", lead.Score)
	}
	if !finite(lead.EstimatedValue) || lead.EstimatedValue < 0 {
		return domain.NewValidationError(lead.ID, "estimated value %v must be a non-negative number", lead.EstimatedValue)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func withLeadID(err error, leadID string) error {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.LeadID == "" {
		return &domain.ValidationError{LeadID: leadID, Reason: verr.Reason}
	}
	return err
}
