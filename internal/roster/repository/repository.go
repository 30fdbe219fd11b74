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

// Client represents the client organization database model
type Client struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	ContactEmail string    `db:"contact_email"`
	CreatedAt    time.Time `db:"created_at"`
}

// Service represents a purchasable assessment service
type Service struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Engagement links a client to a purchased service.
type Engagement struct {
	ClientID        uuid.UUID `db:"client_id"`
	ServiceID       uuid.UUID `db:"service_id"`
	AssignedManager uuid.UUID `db:"assigned_manager"`
	AssignedTester  uuid.UUID `db:"assigned_tester"`
	OnboardedAt     time.Time `db:"onboarded_at"`
}

// Repository provides database operations for the client/service roster
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new roster repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateClient inserts a client organization.
func (r *Repository) CreateClient(ctx context.Context, c *Client) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO clients (id, name, contact_email, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.ContactEmail, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves one client.
func (r *Repository) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, contact_email, created_at FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.ContactEmail, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("client not found")
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// ListClients returns all clients ordered by name.
func (r *Repository) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, contact_email, created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.ContactEmail, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}
	return out, nil
}

// CreateService inserts an assessment service definition.
func (r *Repository) CreateService(ctx context.Context, s *Service) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO services (id, name, description, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Name, s.Description, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

// GetService retrieves one service definition.
func (r *Repository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	var s Service
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM services WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("service not found")
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &s, nil
}

// ListServices returns all service definitions ordered by name.
func (r *Repository) ListServices(ctx context.Context) ([]Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}
	return out, nil
}

// CreateEngagement records that a client purchased a service. The pair is
// unique; a second onboarding of the same pair conflicts.
func (r *Repository) CreateEngagement(ctx context.Context, e *Engagement) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO engagements (client_id, service_id, assigned_manager, assigned_tester, onboarded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, service_id) DO NOTHING`,
		e.ClientID, e.ServiceID, e.AssignedManager, e.AssignedTester, e.OnboardedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create engagement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("client already onboarded for this service")
	}
	return nil
}
