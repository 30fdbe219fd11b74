package service_test

import (
	"context"
	"testing"

	"assessportal/internal/events"
	"assessportal/internal/roster/repository"
	"assessportal/internal/roster/service"
	"assessportal/internal/roster/transport"
	"assessportal/platform/apperr"
	platformevents "assessportal/platform/events"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	clients     map[uuid.UUID]repository.Client
	services    map[uuid.UUID]repository.Service
	engagements []repository.Engagement
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		clients:  make(map[uuid.UUID]repository.Client),
		services: make(map[uuid.UUID]repository.Service),
	}
}

func (f *fakeRepo) CreateClient(_ context.Context, c *repository.Client) error {
	f.clients[c.ID] = *c
	return nil
}

func (f *fakeRepo) GetClient(_ context.Context, id uuid.UUID) (*repository.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, apperr.NotFound("client not found")
	}
	return &c, nil
}

func (f *fakeRepo) ListClients(_ context.Context) ([]repository.Client, error) {
	out := make([]repository.Client, 0, len(f.clients))
	for _, c := range f.clients {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) CreateService(_ context.Context, s *repository.Service) error {
	f.services[s.ID] = *s
	return nil
}

func (f *fakeRepo) GetService(_ context.Context, id uuid.UUID) (*repository.Service, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, apperr.NotFound("service not found")
	}
	return &s, nil
}

func (f *fakeRepo) ListServices(_ context.Context) ([]repository.Service, error) {
	out := make([]repository.Service, 0, len(f.services))
	for _, s := range f.services {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) CreateEngagement(_ context.Context, e *repository.Engagement) error {
	for _, existing := range f.engagements {
		if existing.ClientID == e.ClientID && existing.ServiceID == e.ServiceID {
			return apperr.Conflict("client already onboarded for this service")
		}
	}
	f.engagements = append(f.engagements, *e)
	return nil
}

type fakeBus struct {
	published []platformevents.Event
}

func (f *fakeBus) Publish(_ context.Context, event platformevents.Event) {
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(_ context.Context, event platformevents.Event) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(string, platformevents.Handler) {}

func newTestService() (*service.Service, *fakeRepo, *fakeBus) {
	repo := newFakeRepo()
	bus := &fakeBus{}
	return service.New(repo, bus, logger.New("development")), repo, bus
}

func TestOnboardPublishesServiceOnboarded(t *testing.T) {
	svc, _, bus := newTestService()
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, transport.CreateClientRequest{
		Name:         "Acme Corp",
		ContactEmail: "security@acme.example",
	})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	offering, err := svc.CreateService(ctx, transport.CreateServiceRequest{
		Name:        "External Penetration Test",
		Description: "Internet-facing infrastructure assessment",
	})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	manager := uuid.New()
	tester := uuid.New()
	eng, err := svc.Onboard(ctx, transport.OnboardRequest{
		ClientID:        client.ID,
		ServiceID:       offering.ID,
		AssignedManager: manager,
		AssignedTester:  tester,
	})
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if eng.AssignedManager != manager || eng.AssignedTester != tester {
		t.Errorf("engagement staffing mismatch: %+v", eng)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	evt, ok := bus.published[0].(events.ServiceOnboarded)
	if !ok {
		t.Fatalf("expected ServiceOnboarded, got %T", bus.published[0])
	}
	if evt.ClientID != client.ID || evt.ServiceID != offering.ID {
		t.Errorf("event carries wrong pair: %+v", evt)
	}
	if evt.ServiceName != "External Penetration Test" {
		t.Errorf("event service name = %q", evt.ServiceName)
	}
}

func TestOnboardUnknownClientFails(t *testing.T) {
	svc, _, bus := newTestService()
	ctx := context.Background()

	offering, err := svc.CreateService(ctx, transport.CreateServiceRequest{Name: "Web App Assessment"})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	_, err = svc.Onboard(ctx, transport.OnboardRequest{
		ClientID:        uuid.New(),
		ServiceID:       offering.ID,
		AssignedManager: uuid.New(),
		AssignedTester:  uuid.New(),
	})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(bus.published) != 0 {
		t.Errorf("no event should be published on failure, got %d", len(bus.published))
	}
}

func TestOnboardSamePairTwiceConflicts(t *testing.T) {
	svc, _, bus := newTestService()
	ctx := context.Background()

	client, err := svc.CreateClient(ctx, transport.CreateClientRequest{
		Name:         "Globex",
		ContactEmail: "it@globex.example",
	})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	offering, err := svc.CreateService(ctx, transport.CreateServiceRequest{Name: "Red Team Exercise"})
	if err != nil {
		t.Fatalf("CreateService: %v", err)
	}

	req := transport.OnboardRequest{
		ClientID:        client.ID,
		ServiceID:       offering.ID,
		AssignedManager: uuid.New(),
		AssignedTester:  uuid.New(),
	}
	if _, err := svc.Onboard(ctx, req); err != nil {
		t.Fatalf("first onboard: %v", err)
	}
	if _, err := svc.Onboard(ctx, req); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on duplicate onboard, got %v", err)
	}
	if len(bus.published) != 1 {
		t.Errorf("expected exactly 1 event, got %d", len(bus.published))
	}
}
