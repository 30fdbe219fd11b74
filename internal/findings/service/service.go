package service

import (
	"context"
	"time"

	"assessportal/internal/events"
	"assessportal/internal/findings/repository"
	"assessportal/internal/findings/transport"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

// StatusOpen is the initial triage state for every recorded finding.
const StatusOpen = "open"

// Repository abstracts finding persistence.
type Repository interface {
	Create(ctx context.Context, f *repository.Finding) error
	Get(ctx context.Context, id uuid.UUID) (*repository.Finding, error)
	List(ctx context.Context, filter repository.Filter) ([]repository.Finding, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, now time.Time) error
}

// Service holds the business logic for security findings. Findings are
// recorded during task execution but never gate stage progression.
type Service struct {
	repo     Repository
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a findings service.
func New(repo Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log}
}

// Record logs a new finding and announces it.
func (s *Service) Record(ctx context.Context, recordedBy uuid.UUID, req transport.RecordFindingRequest) (*transport.FindingResponse, error) {
	now := time.Now().UTC()
	f := &repository.Finding{
		ID:          uuid.New(),
		ClientID:    req.ClientID,
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      StatusOpen,
		EvidenceKey: req.EvidenceKey,
		RecordedBy:  recordedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		return nil, err
	}

	s.log.Info("finding recorded",
		"finding_id", f.ID,
		"client_id", f.ClientID,
		"service_id", f.ServiceID,
		"severity", f.Severity)

	s.eventBus.Publish(ctx, events.FindingRecorded{
		BaseEvent: events.NewBaseEvent(),
		FindingID: f.ID,
		ClientID:  f.ClientID,
		ServiceID: f.ServiceID,
		Severity:  f.Severity,
		Title:     f.Title,
	})

	return toResponse(f), nil
}

// Get retrieves one finding.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transport.FindingResponse, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toResponse(f), nil
}

// List returns findings matching the filter.
func (s *Service) List(ctx context.Context, req transport.ListFindingsRequest) ([]transport.FindingResponse, error) {
	found, err := s.repo.List(ctx, repository.Filter{
		ClientID:  req.ClientID,
		ServiceID: req.ServiceID,
		Severity:  req.Severity,
		Status:    req.Status,
	})
	if err != nil {
		return nil, err
	}
	out := make([]transport.FindingResponse, 0, len(found))
	for i := range found {
		out = append(out, *toResponse(&found[i]))
	}
	return out, nil
}

// UpdateStatus moves a finding through its triage lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req transport.UpdateStatusRequest) (*transport.FindingResponse, error) {
	if err := s.repo.UpdateStatus(ctx, id, req.Status, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Summary counts findings per severity for one engagement. Useful when the
// manager reviews a draft report against the evidence base.
func (s *Service) Summary(ctx context.Context, clientID, serviceID uuid.UUID) (*transport.SeveritySummary, error) {
	found, err := s.repo.List(ctx, repository.Filter{ClientID: &clientID, ServiceID: &serviceID})
	if err != nil {
		return nil, err
	}
	sum := &transport.SeveritySummary{
		ClientID:   clientID,
		ServiceID:  serviceID,
		Total:      len(found),
		BySeverity: make(map[string]int),
	}
	for i := range found {
		sum.BySeverity[found[i].Severity]++
	}
	return sum, nil
}

func toResponse(f *repository.Finding) *transport.FindingResponse {
	return &transport.FindingResponse{
		ID:          f.ID,
		ClientID:    f.ClientID,
		ServiceID:   f.ServiceID,
		Title:       f.Title,
		Description: f.Description,
		Severity:    f.Severity,
		Status:      f.Status,
		EvidenceKey: f.EvidenceKey,
		RecordedBy:  f.RecordedBy,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}
