package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

const agingRuleColumns = `id, tenant_id, name, description, version, category, min_days, max_days,
	base_risk, automatic_actions, notification_threshold, active`

// SaveAgingRule inserts or replaces an aging rule.
func (r *SQLRepository) SaveAgingRule(ctx context.Context, tenantID string, rule *domain.AgingRule) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	actions, err := json.Marshal(rule.AutomaticActions)
	if err != nil {
		return err
	}

	var maxDays sql.NullInt64
	if rule.MaxDays != nil {
		maxDays = sql.NullInt64{Int64: int64(*rule.MaxDays), Valid: true}
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO aging_rules (
			id, tenant_id, name, description, version, category, min_days, max_days,
			base_risk, automatic_actions, notification_threshold, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			category = excluded.category,
			min_days = excluded.min_days,
			max_days = excluded.max_days,
			base_risk = excluded.base_risk,
			automatic_actions = excluded.automatic_actions,
			notification_threshold = excluded.notification_threshold,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		string(rule.Category), rule.MinDays, maxDays, string(rule.BaseRisk),
		string(actions), rule.NotificationThreshold, boolToInt(rule.Active),
		now, now,
	)
	return err
}

// GetAgingRule retrieves an active aging rule.
func (r *SQLRepository) GetAgingRule(ctx context.Context, tenantID string, ruleID string) (*domain.AgingRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + agingRuleColumns + `
		FROM aging_rules
		WHERE tenant_id = ? AND id = ? AND active = 1`

	rule, err := scanAgingRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListAgingRules returns a tenant's active rules ordered by range start.
func (r *SQLRepository) ListAgingRules(ctx context.Context, tenantID string) ([]*domain.AgingRule, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + agingRuleColumns + `
		FROM aging_rules
		WHERE tenant_id = ? AND active = 1
		ORDER BY min_days, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AgingRule
	for rows.Next() {
		rule, err := scanAgingRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// DeleteAgingRule soft-deletes a rule by setting active = 0.
func (r *SQLRepository) DeleteAgingRule(ctx context.Context, tenantID string, ruleID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE aging_rules
		SET active = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND active = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAgingRule(row rowScanner) (*domain.AgingRule, error) {
	var (
		rule        domain.AgingRule
		description sql.NullString
		category    string
		baseRisk    string
		maxDays     sql.NullInt64
		actions     string
		active      int
	)

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Version,
		&category, &rule.MinDays, &maxDays, &baseRisk, &actions,
		&rule.NotificationThreshold, &active,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Category = domain.AgingCategory(category)
	rule.BaseRisk = domain.RiskLevel(baseRisk)
	rule.Active = active == 1
	if maxDays.Valid {
		v := int(maxDays.Int64)
		rule.MaxDays = &v
	}
	if err := json.Unmarshal([]byte(actions), &rule.AutomaticActions); err != nil {
		return nil, fmt.Errorf("failed to parse automatic actions for %s: %w", rule.ID, err)
	}

	return &rule, nil
}
