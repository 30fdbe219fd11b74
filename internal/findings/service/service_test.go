package service_test

import (
	"context"
	"testing"
	"time"

	"assessportal/internal/events"
	"assessportal/internal/findings/repository"
	"assessportal/internal/findings/service"
	"assessportal/internal/findings/transport"
	"assessportal/platform/apperr"
	platformevents "assessportal/platform/events"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	findings map[uuid.UUID]repository.Finding
}

func (f *fakeRepo) Create(_ context.Context, fd *repository.Finding) error {
	f.findings[fd.ID] = *fd
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id uuid.UUID) (*repository.Finding, error) {
	fd, ok := f.findings[id]
	if !ok {
		return nil, apperr.NotFound("finding not found")
	}
	return &fd, nil
}

func (f *fakeRepo) List(_ context.Context, filter repository.Filter) ([]repository.Finding, error) {
	var out []repository.Finding
	for _, fd := range f.findings {
		if filter.ClientID != nil && fd.ClientID != *filter.ClientID {
			continue
		}
		if filter.ServiceID != nil && fd.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.Severity != "" && fd.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && fd.Status != filter.Status {
			continue
		}
		out = append(out, fd)
	}
	return out, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, now time.Time) error {
	fd, ok := f.findings[id]
	if !ok {
		return apperr.NotFound("finding not found")
	}
	fd.Status = status
	fd.UpdatedAt = now
	f.findings[id] = fd
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

func newTestService() (*service.Service, *fakeBus) {
	bus := &fakeBus{}
	repo := &fakeRepo{findings: make(map[uuid.UUID]repository.Finding)}
	return service.New(repo, bus, logger.New("development")), bus
}

func TestRecordOpensFindingAndPublishes(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()
	tester := uuid.New()
	clientID, serviceID := uuid.New(), uuid.New()

	f, err := svc.Record(ctx, tester, transport.RecordFindingRequest{
		ClientID:    clientID,
		ServiceID:   serviceID,
		Title:       "SQL injection in search endpoint",
		Description: "Parameter q is concatenated into the query.",
		Severity:    "critical",
		EvidenceKey: "acme/pentest/stage-6/poc.txt",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if f.Status != service.StatusOpen {
		t.Errorf("new finding status = %q, want %q", f.Status, service.StatusOpen)
	}
	if f.RecordedBy != tester {
		t.Errorf("recordedBy = %s, want %s", f.RecordedBy, tester)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	evt, ok := bus.published[0].(events.FindingRecorded)
	if !ok {
		t.Fatalf("expected FindingRecorded, got %T", bus.published[0])
	}
	if evt.Severity != "critical" || evt.FindingID != f.ID {
		t.Errorf("event payload mismatch: %+v", evt)
	}
}

func TestUpdateStatusMovesTriageState(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	f, err := svc.Record(ctx, uuid.New(), transport.RecordFindingRequest{
		ClientID:  uuid.New(),
		ServiceID: uuid.New(),
		Title:     "Outdated TLS configuration",
		Severity:  "medium",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, f.ID, transport.UpdateStatusRequest{Status: "confirmed"})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != "confirmed" {
		t.Errorf("status = %q, want confirmed", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, uuid.New(), transport.UpdateStatusRequest{Status: "resolved"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown finding, got %v", err)
	}
}

func TestSummaryCountsBySeverity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	clientID, serviceID := uuid.New(), uuid.New()
	tester := uuid.New()

	for _, sev := range []string{"critical", "high", "high", "low"} {
		if _, err := svc.Record(ctx, tester, transport.RecordFindingRequest{
			ClientID:  clientID,
			ServiceID: serviceID,
			Title:     "finding " + sev,
			Severity:  sev,
		}); err != nil {
			t.Fatalf("Record(%s): %v", sev, err)
		}
	}
	// A finding on another engagement must not leak into the summary.
	if _, err := svc.Record(ctx, tester, transport.RecordFindingRequest{
		ClientID:  uuid.New(),
		ServiceID: serviceID,
		Title:     "unrelated finding",
		Severity:  "critical",
	}); err != nil {
		t.Fatalf("Record(other): %v", err)
	}

	sum, err := svc.Summary(ctx, clientID, serviceID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 4 {
		t.Errorf("total = %d, want 4", sum.Total)
	}
	if sum.BySeverity["high"] != 2 || sum.BySeverity["critical"] != 1 || sum.BySeverity["low"] != 1 {
		t.Errorf("severity counts wrong: %+v", sum.BySeverity)
	}
}
