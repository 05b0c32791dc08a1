package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/opensource-finance/leadaging/internal/domain"
)

var _ domain.Repository = (*SQLRepository)(nil)

var leadColumns = []string{
	"id", "tenant_id", "name", "company", "owner", "source", "status",
	"score", "estimated_value", "created_at", "last_contact_at",
	"next_follow_up_at", "updated_at",
}

// SaveLead inserts or replaces a lead.
func (r *SQLRepository) SaveLead(ctx context.Context, tenantID string, lead *domain.Lead) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if lead == nil || lead.ID == "" {
		return fmt.Errorf("%w: lead id is required", ErrInvalidInput)
	}

	status := lead.Status
	if status == "" {
		status = domain.LeadStatusNew
	}
	updatedAt := lead.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO leads (
			id, tenant_id, name, company, owner, source, status,
			score, estimated_value, created_at, last_contact_at,
			next_follow_up_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			company = excluded.company,
			owner = excluded.owner,
			source = excluded.source,
			status = excluded.status,
			score = excluded.score,
			estimated_value = excluded.estimated_value,
			created_at = excluded.created_at,
			last_contact_at = excluded.last_contact_at,
			next_follow_up_at = excluded.next_follow_up_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		lead.ID, tenantID, lead.Name, lead.Company, lead.Owner, lead.Source, string(status),
		lead.Score, lead.EstimatedValue, lead.CreatedAt.UTC(),
		nullTime(lead.LastContactAt), nullTime(lead.NextFollowUpAt),
		updatedAt.UTC(),
	)
	return err
}

// GetLead retrieves a lead by id.
func (r *SQLRepository) GetLead(ctx context.Context, tenantID string, leadID string) (*domain.Lead, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query, args, err := r.sb.Select(leadColumns...).
		From("leads").
		Where(sq.Eq{"tenant_id": tenantID, "id": leadID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return lead, err
}

// ListLeads returns a tenant's leads matching filter, oldest first.
func (r *SQLRepository) ListLeads(ctx context.Context, tenantID string, filter domain.LeadFilter) ([]*domain.Lead, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	q := r.sb.Select(leadColumns...).
		From("leads").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at ASC", "id ASC")

	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Source != "" {
		q = q.Where(sq.Eq{"source": filter.Source})
	}
	if filter.ExcludeClosed {
		closed := make([]string, 0, 2)
		for _, s := range domain.ClosedStatuses() {
			closed = append(closed, string(s))
		}
		q = q.Where(sq.NotEq{"status": closed})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

// DeleteLead removes a lead and its stored analysis.
func (r *SQLRepository) DeleteLead(ctx context.Context, tenantID string, leadID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM leads WHERE tenant_id = ? AND id = ?`), tenantID, leadID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM analyses WHERE tenant_id = ? AND lead_id = ?`), tenantID, leadID); err != nil {
		return err
	}

	return tx.Commit()
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var (
		lead         domain.Lead
		status       string
		lastContact  sql.NullTime
		nextFollowUp sql.NullTime
	)

	if err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Name, &lead.Company, &lead.Owner,
		&lead.Source, &status, &lead.Score, &lead.EstimatedValue,
		&lead.CreatedAt, &lastContact, &nextFollowUp, &lead.UpdatedAt,
	); err != nil {
		return nil, err
	}

	lead.Status = domain.LeadStatus(status)
	lead.LastContactAt = timePtr(lastContact)
	lead.NextFollowUpAt = timePtr(nextFollowUp)

	return &lead, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
