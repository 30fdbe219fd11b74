package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"assessportal/internal/events"
	"assessportal/internal/workflow/engine"
	"assessportal/internal/workflow/service"
	"assessportal/internal/workflow/transport"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu        sync.Mutex
	snapshots map[string]*engine.Timeline
	approvals []engine.ApprovalRecord
	loaded    []*engine.Timeline
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: make(map[string]*engine.Timeline)}
}

func (r *fakeRepo) SaveSnapshot(_ context.Context, t *engine.Timeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[t.ClientID.String()+"/"+t.ServiceID.String()] = t
	return nil
}

func (r *fakeRepo) AppendApproval(_ context.Context, _, _ uuid.UUID, rec engine.ApprovalRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals = append(r.approvals, rec)
	return nil
}

func (r *fakeRepo) LoadAll(_ context.Context) ([]*engine.Timeline, error) {
	return r.loaded, nil
}

// fakeBus delivers events synchronously so tests can assert on them without
// sleeping.
type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
	handlers  map[string][]events.Handler
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string][]events.Handler)}
}

func (b *fakeBus) Publish(ctx context.Context, e events.Event) {
	_ = b.PublishSync(ctx, e)
}

func (b *fakeBus) PublishSync(ctx context.Context, e events.Event) error {
	b.mu.Lock()
	b.published = append(b.published, e)
	handlers := b.handlers[e.EventName()]
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBus) Subscribe(name string, h events.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.published))
	for _, e := range b.published {
		out = append(out, e.EventName())
	}
	return out
}

var (
	svcManager = engine.Actor{ID: uuid.New(), Role: engine.RoleManager}
	svcTester  = engine.Actor{ID: uuid.New(), Role: engine.RoleTester}
	svcAdmin   = engine.Actor{ID: uuid.New(), Role: engine.RoleAdmin}
)

func newTestService(t *testing.T) (*service.Service, *engine.Store, *fakeRepo, *fakeBus) {
	t.Helper()
	store := engine.NewStore()
	store.Now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	repo := newFakeRepo()
	bus := newFakeBus()
	svc := service.New(store, repo, bus, nil, "", logger.New("development"))
	return svc, store, repo, bus
}

func driveToPendingReview(t *testing.T, svc *service.Service, clientID, serviceID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i <= 8; i++ {
		actor := svcAdmin
		switch engine.StageOwner(i) {
		case engine.RoleManager:
			actor = svcManager
		case engine.RoleTester:
			actor = svcTester
		}
		if i > 0 {
			if _, err := svc.StartStage(ctx, clientID, serviceID, i, actor, transport.StartStageRequest{}); err != nil {
				t.Fatalf("start stage %d: %v", i, err)
			}
		}
		if _, err := svc.CompleteStage(ctx, clientID, serviceID, i, actor, transport.CompleteStageRequest{}); err != nil {
			t.Fatalf("complete stage %d: %v", i, err)
		}
	}
	if _, err := svc.StartStage(ctx, clientID, serviceID, engine.ManagerReviewStage, svcManager, transport.StartStageRequest{}); err != nil {
		t.Fatalf("start review stage: %v", err)
	}
	if _, err := svc.SubmitReport(ctx, clientID, serviceID, engine.ManagerReviewStage, svcTester, transport.SubmitReportRequest{ReportName: "Findings"}); err != nil {
		t.Fatalf("submit report: %v", err)
	}
}

func TestRejectionPersistsAuditAndPublishes(t *testing.T) {
	svc, _, repo, bus := newTestService(t)
	ctx := context.Background()

	clientID, serviceID := uuid.New(), uuid.New()
	if _, err := svc.CreateTimeline(ctx, transport.CreateTimelineRequest{
		ClientID: clientID, ServiceID: serviceID,
		AssignedManager: svcManager.ID, AssignedTester: svcTester.ID,
	}); err != nil {
		t.Fatalf("create timeline: %v", err)
	}
	driveToPendingReview(t, svc, clientID, serviceID)

	resp, err := svc.Reject(ctx, clientID, serviceID, engine.ManagerReviewStage, svcManager, transport.ReviewRequest{
		Reason: "coverage gaps",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !resp.Rewound || resp.Version != 2 {
		t.Errorf("resp = rewound %v version %d, want rewound v2", resp.Rewound, resp.Version)
	}

	repo.mu.Lock()
	snap := repo.snapshots[clientID.String()+"/"+serviceID.String()]
	audits := len(repo.approvals)
	repo.mu.Unlock()
	if snap == nil || snap.Version != 2 {
		t.Errorf("persisted snapshot version = %v, want 2", snap)
	}
	if audits != 1 {
		t.Errorf("audit rows = %d, want 1", audits)
	}

	want := events.ReportRejected{}.EventName()
	found := false
	for _, name := range bus.names() {
		if name == want {
			found = true
		}
	}
	if !found {
		t.Errorf("event %s not published; got %v", want, bus.names())
	}
}

func TestOnboardingEventCreatesTimeline(t *testing.T) {
	svc, store, _, bus := newTestService(t)
	svc.RegisterEventHandlers(bus)

	clientID, serviceID := uuid.New(), uuid.New()
	err := bus.PublishSync(context.Background(), events.ServiceOnboarded{
		BaseEvent:       events.NewBaseEvent(),
		ClientID:        clientID,
		ServiceID:       serviceID,
		ServiceName:     "External Pentest",
		AssignedManager: svcManager.ID,
		AssignedTester:  svcTester.ID,
	})
	if err != nil {
		t.Fatalf("publish onboarding: %v", err)
	}

	tl, err := store.Get(clientID, serviceID)
	if err != nil {
		t.Fatalf("timeline not created: %v", err)
	}
	if tl.AssignedTester != svcTester.ID {
		t.Errorf("assignedTester = %s, want %s", tl.AssignedTester, svcTester.ID)
	}

	// Duplicate onboarding must not disturb the existing timeline.
	if err := bus.PublishSync(context.Background(), events.ServiceOnboarded{
		BaseEvent: events.NewBaseEvent(),
		ClientID:  clientID, ServiceID: serviceID,
		AssignedManager: svcManager.ID, AssignedTester: svcTester.ID,
	}); err != nil {
		t.Fatalf("duplicate onboarding errored: %v", err)
	}
}

func TestSweepOverdueFlagsPastDueStages(t *testing.T) {
	svc, store, _, bus := newTestService(t)
	ctx := context.Background()

	clientID, serviceID := uuid.New(), uuid.New()
	if _, err := svc.CreateTimeline(ctx, transport.CreateTimelineRequest{
		ClientID: clientID, ServiceID: serviceID,
		AssignedManager: svcManager.ID, AssignedTester: svcTester.ID,
	}); err != nil {
		t.Fatalf("create timeline: %v", err)
	}

	due := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	// Stage 0 starts at creation; restarting attaches the due date.
	if _, err := svc.StartStage(ctx, clientID, serviceID, 0, svcAdmin, transport.StartStageRequest{DueDate: &due}); err == nil {
		t.Fatalf("expected restart of in-progress stage to be rejected")
	}
	if _, err := svc.BlockStage(ctx, clientID, serviceID, 0, svcAdmin, transport.ExceptionRequest{Reason: "pausing"}); err != nil {
		t.Fatalf("block: %v", err)
	}
	if _, err := svc.StartStage(ctx, clientID, serviceID, 0, svcAdmin, transport.StartStageRequest{DueDate: &due}); err != nil {
		t.Fatalf("resume with due date: %v", err)
	}

	flagged, err := svc.SweepOverdue(ctx, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if flagged != 1 {
		t.Fatalf("flagged = %d, want 1", flagged)
	}

	tl, err := store.Get(clientID, serviceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tl.Stages[0].Status != engine.StatusOverdue {
		t.Errorf("stage 0 = %s, want overdue", tl.Stages[0].Status)
	}

	want := events.StageOverdue{}.EventName()
	found := false
	for _, name := range bus.names() {
		if name == want {
			found = true
		}
	}
	if !found {
		t.Errorf("event %s not published", want)
	}

	// A second sweep finds nothing new.
	flagged, err = svc.SweepOverdue(ctx, time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if flagged != 0 {
		t.Errorf("second sweep flagged = %d, want 0", flagged)
	}
}

func TestListDefaultsPagination(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateTimeline(ctx, transport.CreateTimelineRequest{
			ClientID: uuid.New(), ServiceID: uuid.New(),
			AssignedManager: svcManager.ID, AssignedTester: svcTester.ID,
		}); err != nil {
			t.Fatalf("create timeline %d: %v", i, err)
		}
	}

	result, err := svc.List(ctx, transport.ListTimelinesRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Total != 3 || len(result.Items) != 3 {
		t.Errorf("total/items = %d/%d, want 3/3", result.Total, len(result.Items))
	}
	if result.Page != 1 || result.PageSize != 20 || result.TotalPages != 1 {
		t.Errorf("pagination defaults = page %d size %d pages %d", result.Page, result.PageSize, result.TotalPages)
	}
}

func TestRestoreRebuildsStore(t *testing.T) {
	store := engine.NewStore()
	store.Now = time.Now
	repo := newFakeRepo()

	seed := engine.NewTimeline(uuid.New(), uuid.New(), svcManager.ID, svcTester.ID, time.Now())
	seed.Version = 3
	repo.loaded = []*engine.Timeline{seed}

	svc := service.New(store, repo, newFakeBus(), nil, "", logger.New("development"))
	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	tl, err := store.Get(seed.ClientID, seed.ServiceID)
	if err != nil {
		t.Fatalf("restored timeline missing: %v", err)
	}
	if tl.Version != 3 {
		t.Errorf("version = %d, want 3", tl.Version)
	}
}
