// Package repository persists workflow timelines. The in-memory engine store
// is authoritative at runtime; rows here are write-through snapshots used to
// survive restarts plus an append-only audit of review decisions.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessportal/internal/workflow/engine"
	"assessportal/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for workflow timelines
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new workflow repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot upserts the full timeline state as one row. Called after
// every successful transition; the row always mirrors the in-memory state.
func (r *Repository) SaveSnapshot(ctx context.Context, t *engine.Timeline) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode timeline: %w", err)
	}

	query := `
		INSERT INTO timelines (client_id, service_id, version, current_stage_id, resolved, state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, service_id) DO UPDATE SET
			version = EXCLUDED.version,
			current_stage_id = EXCLUDED.current_stage_id,
			resolved = EXCLUDED.resolved,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		t.ClientID, t.ServiceID, t.Version, t.CurrentStageID, t.Resolved, payload, t.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to save timeline snapshot: %w", err)
	}
	return nil
}

// LoadAll reads every persisted timeline. Used once at startup to rebuild
// the in-memory store.
func (r *Repository) LoadAll(ctx context.Context) ([]*engine.Timeline, error) {
	rows, err := r.pool.Query(ctx, `SELECT state FROM timelines`)
	if err != nil {
		return nil, fmt.Errorf("failed to load timelines: %w", err)
	}
	defer rows.Close()

	var out []*engine.Timeline
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		var t engine.Timeline
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("failed to decode timeline %s: %w", string(payload[:min(64, len(payload))]), err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timelines: %w", err)
	}
	return out, nil
}

// AppendApproval writes one review decision to the audit table. Rows are
// insert-only; nothing updates or deletes them.
func (r *Repository) AppendApproval(ctx context.Context, clientID, serviceID uuid.UUID, rec engine.ApprovalRecord) error {
	query := `
		INSERT INTO approval_records (
			id, client_id, service_id, stage_id, report_name, report_version,
			action, reviewed_by, reviewed_by_role, reason, reviewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, clientID, serviceID, rec.StageID, rec.ReportName, rec.ReportVersion,
		string(rec.Action), rec.ReviewedBy, string(rec.ReviewedByRole), rec.Reason, rec.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append approval record: %w", err)
	}
	return nil
}

// AuditRow is one review decision as stored in the audit table.
type AuditRow struct {
	ID             uuid.UUID `json:"id"`
	ClientID       uuid.UUID `json:"clientId"`
	ServiceID      uuid.UUID `json:"serviceId"`
	StageID        int       `json:"stageId"`
	ReportName     string    `json:"reportName"`
	ReportVersion  int       `json:"reportVersion"`
	Action         string    `json:"action"`
	ReviewedBy     uuid.UUID `json:"reviewedBy"`
	ReviewedByRole string    `json:"reviewedByRole"`
	Reason         string    `json:"reason,omitempty"`
	ReviewedAt     time.Time `json:"reviewedAt"`
}

// ListApprovals reads the audit trail for one timeline in review order.
func (r *Repository) ListApprovals(ctx context.Context, clientID, serviceID uuid.UUID) ([]AuditRow, error) {
	query := `
		SELECT id, client_id, service_id, stage_id, report_name, report_version,
			action, reviewed_by, reviewed_by_role, reason, reviewed_at
		FROM approval_records
		WHERE client_id = $1 AND service_id = $2
		ORDER BY reviewed_at, report_version`

	rows, err := r.pool.Query(ctx, query, clientID, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval records: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var rec AuditRow
		if err := rows.Scan(
			&rec.ID, &rec.ClientID, &rec.ServiceID, &rec.StageID, &rec.ReportName,
			&rec.ReportVersion, &rec.Action, &rec.ReviewedBy, &rec.ReviewedByRole,
			&rec.Reason, &rec.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approval records: %w", err)
	}
	return out, nil
}

// GetSnapshot reads one persisted timeline, mostly for diagnostics.
func (r *Repository) GetSnapshot(ctx context.Context, clientID, serviceID uuid.UUID) (*engine.Timeline, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx,
		`SELECT state FROM timelines WHERE client_id = $1 AND service_id = $2`,
		clientID, serviceID,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("timeline not found")
		}
		return nil, fmt.Errorf("failed to get timeline snapshot: %w", err)
	}

	var t engine.Timeline
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("failed to decode timeline snapshot: %w", err)
	}
	return &t, nil
}
