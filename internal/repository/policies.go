package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// SaveActionPolicy inserts or replaces an action policy.
func (r *SQLRepository) SaveActionPolicy(ctx context.Context, tenantID string, policy *domain.ActionPolicy) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if policy == nil || policy.ID == "" {
		return fmt.Errorf("%w: policy id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	createdAt := policy.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO action_policies (
			id, tenant_id, action_id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			action_id = excluded.action_id,
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, policy.ActionID, policy.Name, policy.Description,
		policy.Expression, boolToInt(policy.Enabled), createdAt.UTC(), now,
	)
	return err
}

// ListActionPolicies returns a tenant's enabled policies ordered by id.
func (r *SQLRepository) ListActionPolicies(ctx context.Context, tenantID string) ([]*domain.ActionPolicy, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, action_id, name, description, expression, enabled, created_at, updated_at
		FROM action_policies
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.ActionPolicy
	for rows.Next() {
		var (
			p           domain.ActionPolicy
			description sql.NullString
			enabled     int
		)
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.ActionID, &p.Name, &description,
			&p.Expression, &enabled, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		p.Description = description.String
		p.Enabled = enabled == 1
		policies = append(policies, &p)
	}

	return policies, rows.Err()
}
