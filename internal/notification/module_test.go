package notification

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	authrepo "assessportal/internal/auth/repository"
	"assessportal/internal/events"
	"assessportal/internal/workflow/engine"
	rosterrepo "assessportal/internal/roster/repository"
	"assessportal/platform/apperr"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

type sentEmail struct {
	kind    string
	toEmail string
	service string
	reason  string
}

// fakeSender records deliveries. The escalation handler fans out
// concurrently, so recording is mutex-guarded.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (f *fakeSender) record(e sentEmail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, e)
}

func (f *fakeSender) sentEmails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEmail(nil), f.sent...)
}

func (f *fakeSender) SendReviewRequestedEmail(_ context.Context, toEmail, serviceName, _ string, _ int, _ string) error {
	f.record(sentEmail{kind: TriggerReviewRequested, toEmail: toEmail, service: serviceName})
	return nil
}

func (f *fakeSender) SendReportApprovedEmail(_ context.Context, toEmail, serviceName, _ string, _ int) error {
	f.record(sentEmail{kind: TriggerReportApproved, toEmail: toEmail, service: serviceName})
	return nil
}

func (f *fakeSender) SendReportRejectedEmail(_ context.Context, toEmail, serviceName, _ string, _ int, reason string) error {
	f.record(sentEmail{kind: TriggerReportRejected, toEmail: toEmail, service: serviceName, reason: reason})
	return nil
}

func (f *fakeSender) SendEscalationEmail(_ context.Context, toEmail, serviceName string, _ int, _ string) error {
	f.record(sentEmail{kind: TriggerEscalation, toEmail: toEmail, service: serviceName})
	return nil
}

func (f *fakeSender) SendStageOverdueEmail(_ context.Context, toEmail, serviceName, _ string, _ string) error {
	f.record(sentEmail{kind: TriggerStageOverdue, toEmail: toEmail, service: serviceName})
	return nil
}

func (f *fakeSender) SendTesterReassignedEmail(_ context.Context, toEmail, serviceName, _ string) error {
	f.record(sentEmail{kind: TriggerTesterReassigned, toEmail: toEmail, service: serviceName})
	return nil
}

type fakeUsers struct {
	byID   map[uuid.UUID]authrepo.User
	byRole map[string][]authrepo.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id uuid.UUID) (*authrepo.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &u, nil
}

func (f *fakeUsers) ListByRole(_ context.Context, role string) ([]authrepo.User, error) {
	return f.byRole[role], nil
}

type fakeRoster struct {
	client  rosterrepo.Client
	service rosterrepo.Service
}

func (f *fakeRoster) GetClient(_ context.Context, id uuid.UUID) (*rosterrepo.Client, error) {
	if id != f.client.ID {
		return nil, apperr.NotFound("client not found")
	}
	c := f.client
	return &c, nil
}

func (f *fakeRoster) GetService(_ context.Context, id uuid.UUID) (*rosterrepo.Service, error) {
	if id != f.service.ID {
		return nil, apperr.NotFound("service not found")
	}
	s := f.service
	return &s, nil
}

type fakeStaff struct {
	manager uuid.UUID
	tester  uuid.UUID
}

func (f *fakeStaff) Staff(_ context.Context, _, _ uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	return f.manager, f.tester, nil
}

type fakeNotifCfg struct{}

func (fakeNotifCfg) GetAppBaseURL() string           { return "https://portal.example" }
func (fakeNotifCfg) GetNotificationRulesPath() string { return "" }

type testFixture struct {
	module *Module
	sender *fakeSender
	client rosterrepo.Client
	svc    rosterrepo.Service
	staff  *fakeStaff
	users  *fakeUsers
}

func newFixture(t *testing.T, rules *Rules) *testFixture {
	t.Helper()

	manager := authrepo.User{ID: uuid.New(), Email: "manager@portal.example", Role: "manager"}
	tester := authrepo.User{ID: uuid.New(), Email: "tester@portal.example", Role: "tester"}
	admin := authrepo.User{ID: uuid.New(), Email: "admin@portal.example", Role: "admin"}

	users := &fakeUsers{
		byID: map[uuid.UUID]authrepo.User{
			manager.ID: manager,
			tester.ID:  tester,
			admin.ID:   admin,
		},
		byRole: map[string][]authrepo.User{
			"manager": {manager},
			"admin":   {admin},
		},
	}
	roster := &fakeRoster{
		client:  rosterrepo.Client{ID: uuid.New(), Name: "Acme Corp", ContactEmail: "security@acme.example"},
		service: rosterrepo.Service{ID: uuid.New(), Name: "External Penetration Test"},
	}
	staff := &fakeStaff{manager: manager.ID, tester: tester.ID}

	sender := &fakeSender{}
	m := New(sender, fakeNotifCfg{}, rules, logger.New("development"))
	m.SetUserDirectory(users)
	m.SetRosterDirectory(roster)
	m.SetTimelineStaffReader(staff)

	return &testFixture{module: m, sender: sender, client: roster.client, svc: roster.service, staff: staff, users: users}
}

func TestManagerReviewSubmissionEmailsManager(t *testing.T) {
	fx := newFixture(t, nil)

	err := fx.module.Handle(context.Background(), events.ReportSubmitted{
		BaseEvent:     events.NewBaseEvent(),
		ClientID:      fx.client.ID,
		ServiceID:     fx.svc.ID,
		StageID:       engine.ManagerReviewStage,
		ReportName:    "Assessment Report v1",
		ReportVersion: 1,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fx.sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(fx.sender.sent))
	}
	got := fx.sender.sent[0]
	if got.kind != TriggerReviewRequested || got.toEmail != "manager@portal.example" {
		t.Errorf("unexpected email: %+v", got)
	}
	if got.service != "External Penetration Test" {
		t.Errorf("service name = %q", got.service)
	}
}

func TestClientReviewSubmissionEmailsClientContact(t *testing.T) {
	fx := newFixture(t, nil)

	err := fx.module.Handle(context.Background(), events.ReportSubmitted{
		BaseEvent:     events.NewBaseEvent(),
		ClientID:      fx.client.ID,
		ServiceID:     fx.svc.ID,
		StageID:       engine.ClientReviewStage,
		ReportName:    "Assessment Report v2",
		ReportVersion: 2,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fx.sender.sent) != 1 || fx.sender.sent[0].toEmail != "security@acme.example" {
		t.Fatalf("expected client contact email, got %+v", fx.sender.sent)
	}
}

func TestRejectionNotifiesTesterAndManager(t *testing.T) {
	fx := newFixture(t, nil)

	err := fx.module.Handle(context.Background(), events.ReportRejected{
		BaseEvent:     events.NewBaseEvent(),
		ClientID:      fx.client.ID,
		ServiceID:     fx.svc.ID,
		StageID:       engine.ManagerReviewStage,
		ReportName:    "Assessment Report v1",
		ReportVersion: 1,
		Reason:        "missing evidence for critical findings",
		NewVersion:    2,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fx.sender.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(fx.sender.sent))
	}
	recipients := map[string]bool{}
	for _, s := range fx.sender.sent {
		if s.kind != TriggerReportRejected {
			t.Errorf("kind = %q", s.kind)
		}
		if s.reason != "missing evidence for critical findings" {
			t.Errorf("reason = %q", s.reason)
		}
		recipients[s.toEmail] = true
	}
	if !recipients["tester@portal.example"] || !recipients["manager@portal.example"] {
		t.Errorf("recipients = %v", recipients)
	}
}

func TestEscalationFansOutToManagersAndAdmins(t *testing.T) {
	fx := newFixture(t, nil)

	err := fx.module.Handle(context.Background(), events.RejectionEscalated{
		BaseEvent:  events.NewBaseEvent(),
		ClientID:   fx.client.ID,
		ServiceID:  fx.svc.ID,
		Rejections: 3,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(fx.sender.sent) != 2 {
		t.Fatalf("expected 2 escalation emails, got %d", len(fx.sender.sent))
	}
	for _, s := range fx.sender.sent {
		if s.kind != TriggerEscalation {
			t.Errorf("kind = %q", s.kind)
		}
	}
}

func TestDisabledTriggerSkipsDelivery(t *testing.T) {
	rules := &Rules{Triggers: map[string]Rule{
		TriggerReviewRequested: {Enabled: false},
	}}
	fx := newFixture(t, rules)

	err := fx.module.Handle(context.Background(), events.ReportSubmitted{
		BaseEvent: events.NewBaseEvent(),
		ClientID:  fx.client.ID,
		ServiceID: fx.svc.ID,
		StageID:   engine.ManagerReviewStage,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(fx.sender.sent) != 0 {
		t.Errorf("disabled trigger sent %d emails", len(fx.sender.sent))
	}
}

func TestReassignmentEmailsNewTester(t *testing.T) {
	fx := newFixture(t, nil)
	newTester := uuid.New()
	fx.users.byID[newTester] = authrepo.User{ID: newTester, Email: "replacement@portal.example", Role: "tester"}

	err := fx.module.Handle(context.Background(), events.TesterReassigned{
		BaseEvent: events.NewBaseEvent(),
		ClientID:  fx.client.ID,
		ServiceID: fx.svc.ID,
		NewTester: newTester,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(fx.sender.sent) != 1 || fx.sender.sent[0].toEmail != "replacement@portal.example" {
		t.Fatalf("expected email to replacement tester, got %+v", fx.sender.sent)
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := []byte(`triggers:
  review_requested:
    enabled: true
    delayMinutes: 5
  stage_overdue:
    enabled: false
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if got := rules.For(TriggerReviewRequested); !got.Enabled || got.DelayMinutes != 5 {
		t.Errorf("review_requested rule = %+v", got)
	}
	if rules.For(TriggerStageOverdue).Enabled {
		t.Error("stage_overdue should be disabled")
	}
	// Unknown triggers default to enabled.
	if !rules.For(TriggerEscalation).Enabled {
		t.Error("missing trigger should default to enabled")
	}
}
