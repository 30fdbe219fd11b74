package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"assessportal/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Finding represents a security finding database model
type Finding struct {
	ID          uuid.UUID `db:"id"`
	ClientID    uuid.UUID `db:"client_id"`
	ServiceID   uuid.UUID `db:"service_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Severity    string    `db:"severity"`
	Status      string    `db:"status"`
	EvidenceKey string    `db:"evidence_key"`
	RecordedBy  uuid.UUID `db:"recorded_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Filter narrows finding queries. Zero values are ignored.
type Filter struct {
	ClientID  *uuid.UUID
	ServiceID *uuid.UUID
	Severity  string
	Status    string
}

// Repository provides database operations for findings
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new findings repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a finding.
func (r *Repository) Create(ctx context.Context, f *Finding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO findings (id, client_id, service_id, title, description, severity, status, evidence_key, recorded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID, f.ClientID, f.ServiceID, f.Title, f.Description, f.Severity, f.Status, f.EvidenceKey, f.RecordedBy, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create finding: %w", err)
	}
	return nil
}

// Get retrieves one finding.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Finding, error) {
	var f Finding
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, service_id, title, description, severity, status, evidence_key, recorded_by, created_at, updated_at
		FROM findings WHERE id = $1`, id,
	).Scan(&f.ID, &f.ClientID, &f.ServiceID, &f.Title, &f.Description, &f.Severity, &f.Status, &f.EvidenceKey, &f.RecordedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("finding not found")
		}
		return nil, fmt.Errorf("failed to get finding: %w", err)
	}
	return &f, nil
}

// List returns findings matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Finding, error) {
	query := `
		SELECT id, client_id, service_id, title, description, severity, status, evidence_key, recorded_by, created_at, updated_at
		FROM findings WHERE 1=1`
	args := []any{}
	argPos := 1

	if filter.ClientID != nil {
		query += fmt.Sprintf(" AND client_id = $%d", argPos)
		args = append(args, *filter.ClientID)
		argPos++
	}
	if filter.ServiceID != nil {
		query += fmt.Sprintf(" AND service_id = $%d", argPos)
		args = append(args, *filter.ServiceID)
		argPos++
	}
	if filter.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, filter.Severity)
		argPos++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.ClientID, &f.ServiceID, &f.Title, &f.Description, &f.Severity, &f.Status, &f.EvidenceKey, &f.RecordedBy, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a finding through its triage lifecycle.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, now time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE findings SET status = $1, updated_at = $2 WHERE id = $3`,
		status, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update finding status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("finding not found")
	}
	return nil
}
