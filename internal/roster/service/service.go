package service

import (
	"context"
	"time"

	"assessportal/internal/events"
	"assessportal/internal/roster/repository"
	"assessportal/internal/roster/transport"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

// Repository abstracts roster persistence.
type Repository interface {
	CreateClient(ctx context.Context, c *repository.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*repository.Client, error)
	ListClients(ctx context.Context) ([]repository.Client, error)
	CreateService(ctx context.Context, s *repository.Service) error
	GetService(ctx context.Context, id uuid.UUID) (*repository.Service, error)
	ListServices(ctx context.Context) ([]repository.Service, error)
	CreateEngagement(ctx context.Context, e *repository.Engagement) error
}

// Service holds the business logic for clients, services and onboarding.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a roster service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log}
}

// CreateClient registers a client organization.
func (s *Service) CreateClient(ctx context.Context, req transport.CreateClientRequest) (*transport.ClientResponse, error) {
	c := &repository.Client{
		ID:           uuid.New(),
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateClient(ctx, c); err != nil {
		return nil, err
	}
	return toClientResponse(c), nil
}

// GetClient retrieves a client organization.
func (s *Service) GetClient(ctx context.Context, id uuid.UUID) (*transport.ClientResponse, error) {
	c, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}
	return toClientResponse(c), nil
}

// ListClients returns all client organizations.
func (s *Service) ListClients(ctx context.Context) ([]transport.ClientResponse, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ClientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, *toClientResponse(&clients[i]))
	}
	return out, nil
}

// CreateService registers an assessment service definition.
func (s *Service) CreateService(ctx context.Context, req transport.CreateServiceRequest) (*transport.ServiceResponse, error) {
	svc := &repository.Service{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	return toServiceResponse(svc), nil
}

// ListServices returns all service definitions.
func (s *Service) ListServices(ctx context.Context) ([]transport.ServiceResponse, error) {
	services, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.ServiceResponse, 0, len(services))
	for i := range services {
		out = append(out, *toServiceResponse(&services[i]))
	}
	return out, nil
}

// Onboard records that a client purchased a service, staffs the engagement
// and announces it. The workflow module picks the event up and creates the
// delivery timeline.
func (s *Service) Onboard(ctx context.Context, req transport.OnboardRequest) (*transport.EngagementResponse, error) {
	client, err := s.repo.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	e := &repository.Engagement{
		ClientID:        client.ID,
		ServiceID:       svc.ID,
		AssignedManager: req.AssignedManager,
		AssignedTester:  req.AssignedTester,
		OnboardedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateEngagement(ctx, e); err != nil {
		return nil, err
	}

	s.log.Info("service onboarded",
		"client_id", e.ClientID,
		"service_id", e.ServiceID,
		"service_name", svc.Name)

	s.eventBus.Publish(ctx, events.ServiceOnboarded{
		BaseEvent:       events.NewBaseEvent(),
		ClientID:        e.ClientID,
		ServiceID:       e.ServiceID,
		ServiceName:     svc.Name,
		AssignedManager: e.AssignedManager,
		AssignedTester:  e.AssignedTester,
	})

	return &transport.EngagementResponse{
		ClientID:        e.ClientID,
		ServiceID:       e.ServiceID,
		AssignedManager: e.AssignedManager,
		AssignedTester:  e.AssignedTester,
		OnboardedAt:     e.OnboardedAt,
	}, nil
}

func toClientResponse(c *repository.Client) *transport.ClientResponse {
	return &transport.ClientResponse{
		ID:           c.ID,
		Name:         c.Name,
		ContactEmail: c.ContactEmail,
		CreatedAt:    c.CreatedAt,
	}
}

func toServiceResponse(s *repository.Service) *transport.ServiceResponse {
	return &transport.ServiceResponse{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	}
}
