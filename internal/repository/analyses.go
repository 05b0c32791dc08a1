package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// SaveAnalyses upserts the latest analysis of each lead in one transaction.
func (r *SQLRepository) SaveAnalyses(ctx context.Context, tenantID string, analyses []domain.AgingAnalysis) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if len(analyses) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO analyses (
			lead_id, tenant_id, days_in_pipeline, days_since_last_contact,
			days_until_next_follow_up, aging_category, risk_level,
			recommended_action, conversion_probability, urgency_score,
			rule_id, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lead_id, tenant_id) DO UPDATE SET
			days_in_pipeline = excluded.days_in_pipeline,
			days_since_last_contact = excluded.days_since_last_contact,
			days_until_next_follow_up = excluded.days_until_next_follow_up,
			aging_category = excluded.aging_category,
			risk_level = excluded.risk_level,
			recommended_action = excluded.recommended_action,
			conversion_probability = excluded.conversion_probability,
			urgency_score = excluded.urgency_score,
			rule_id = excluded.rule_id,
			analyzed_at = excluded.analyzed_at
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range analyses {
		a := &analyses[i]
		if _, err := stmt.ExecContext(ctx,
			a.LeadID, tenantID, a.DaysInPipeline, a.DaysSinceLastContact,
			a.DaysUntilNextFollowUp, string(a.AgingCategory), string(a.RiskLevel),
			a.RecommendedAction, a.ConversionProbability, a.UrgencyScore,
			a.RuleID, a.AnalyzedAt.UTC(),
		); err != nil {
			return fmt.Errorf("save analysis for lead %s: %w", a.LeadID, err)
		}
	}

	return tx.Commit()
}

// GetAnalysis returns the latest stored analysis of a lead.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, leadID string) (*domain.AgingAnalysis, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT lead_id, tenant_id, days_in_pipeline, days_since_last_contact,
			   days_until_next_follow_up, aging_category, risk_level,
			   recommended_action, conversion_probability, urgency_score,
			   rule_id, analyzed_at
		FROM analyses
		WHERE tenant_id = ? AND lead_id = ?
	`

	var (
		a        domain.AgingAnalysis
		category string
		risk     string
	)

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, leadID).Scan(
		&a.LeadID, &a.TenantID, &a.DaysInPipeline, &a.DaysSinceLastContact,
		&a.DaysUntilNextFollowUp, &category, &risk,
		&a.RecommendedAction, &a.ConversionProbability, &a.UrgencyScore,
		&a.RuleID, &a.AnalyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.AgingCategory = domain.AgingCategory(category)
	a.RiskLevel = domain.RiskLevel(risk)

	return &a, nil
}

// SaveReport stores a batch report as a JSON document.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.AgingReport) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report id is required", ErrInvalidInput)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (id, tenant_id, generated_at, lead_count, body)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.GeneratedAt.UTC(), report.LeadCount, string(body),
	)
	return err
}

// GetReport retrieves a report by id.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.AgingReport, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var body string
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT body FROM reports WHERE tenant_id = ? AND id = ?`),
		tenantID, reportID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.AgingReport
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", reportID, err)
	}
	return &report, nil
}
