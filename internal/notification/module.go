// Package notification turns workflow events into outbox-backed email
// deliveries. Domain modules publish events and never touch SMTP; delivery
// failures never roll back the transition that triggered them.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	authrepo "assessportal/internal/auth/repository"
	"assessportal/internal/email"
	"assessportal/internal/events"
	apphttp "assessportal/internal/http"
	"assessportal/internal/notification/outbox"
	"assessportal/internal/workflow/engine"
	rosterrepo "assessportal/internal/roster/repository"
	"assessportal/platform/config"
	"assessportal/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxOutboxRetryAttempts = 5
	outboxRetryBaseDelay   = time.Minute
	outboxRetryMaxDelay    = 60 * time.Minute
)

// UserDirectory resolves portal users to email addresses.
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*authrepo.User, error)
	ListByRole(ctx context.Context, role string) ([]authrepo.User, error)
}

// RosterDirectory resolves client contacts and service names.
type RosterDirectory interface {
	GetClient(ctx context.Context, id uuid.UUID) (*rosterrepo.Client, error)
	GetService(ctx context.Context, id uuid.UUID) (*rosterrepo.Service, error)
}

// TimelineStaffReader resolves the manager/tester staffing of one timeline.
type TimelineStaffReader interface {
	Staff(ctx context.Context, clientID, serviceID uuid.UUID) (manager, tester uuid.UUID, err error)
}

// Module handles all notification-related event subscriptions.
type Module struct {
	sender email.Sender
	cfg    config.NotificationConfig
	rules  *Rules
	log    *logger.Logger

	outbox *outbox.Repository
	users  UserDirectory
	roster RosterDirectory
	staff  TimelineStaffReader
}

// New creates a new notification module.
func New(sender email.Sender, cfg config.NotificationConfig, rules *Rules, log *logger.Logger) *Module {
	if rules == nil {
		rules = &Rules{}
	}
	return &Module{
		sender: sender,
		cfg:    cfg,
		rules:  rules,
		log:    log,
	}
}

// SetOutbox injects the notification outbox repository. Without it,
// deliveries run inline on the event handler.
func (m *Module) SetOutbox(repo *outbox.Repository) { m.outbox = repo }

// SetUserDirectory injects the user lookup for recipient resolution.
func (m *Module) SetUserDirectory(users UserDirectory) { m.users = users }

// SetRosterDirectory injects the roster lookup for client contacts and
// service names.
func (m *Module) SetRosterDirectory(roster RosterDirectory) { m.roster = roster }

// SetTimelineStaffReader injects the staffing lookup.
func (m *Module) SetTimelineStaffReader(staff TimelineStaffReader) { m.staff = staff }

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes is a no-op; the module only reacts to events.
func (m *Module) RegisterRoutes(_ *apphttp.RouterContext) {}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ReportSubmitted{}.EventName(), m)
	bus.Subscribe(events.ReportApproved{}.EventName(), m)
	bus.Subscribe(events.ReportRejected{}.EventName(), m)
	bus.Subscribe(events.RejectionEscalated{}.EventName(), m)
	bus.Subscribe(events.StageOverdue{}.EventName(), m)
	bus.Subscribe(events.TesterReassigned{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReportSubmitted:
		return m.handleReportSubmitted(ctx, e)
	case events.ReportApproved:
		return m.handleReportApproved(ctx, e)
	case events.ReportRejected:
		return m.handleReportRejected(ctx, e)
	case events.RejectionEscalated:
		return m.handleRejectionEscalated(ctx, e)
	case events.StageOverdue:
		return m.handleStageOverdue(ctx, e)
	case events.TesterReassigned:
		return m.handleTesterReassigned(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

type emailSendOutboxPayload struct {
	ToEmail       string `json:"toEmail"`
	ServiceName   string `json:"serviceName"`
	ReportName    string `json:"reportName,omitempty"`
	ReportVersion int    `json:"reportVersion,omitempty"`
	Reason        string `json:"reason,omitempty"`
	StageName     string `json:"stageName,omitempty"`
	Rejections    int    `json:"rejections,omitempty"`
	ReviewURL     string `json:"reviewUrl,omitempty"`
}

func (m *Module) handleReportSubmitted(ctx context.Context, e events.ReportSubmitted) error {
	payload := emailSendOutboxPayload{
		ServiceName:   m.resolveServiceName(ctx, e.ServiceID),
		ReportName:    e.ReportName,
		ReportVersion: e.ReportVersion,
		ReviewURL:     m.buildTimelineURL(e.ClientID, e.ServiceID),
	}

	switch e.StageID {
	case engine.ManagerReviewStage:
		toEmail := m.managerEmail(ctx, e.ClientID, e.ServiceID)
		if toEmail == "" {
			return nil
		}
		payload.ToEmail = toEmail
	case engine.ClientReviewStage:
		toEmail := m.clientEmail(ctx, e.ClientID)
		if toEmail == "" {
			return nil
		}
		payload.ToEmail = toEmail
	default:
		return nil
	}

	return m.enqueue(ctx, TriggerReviewRequested, payload)
}

func (m *Module) handleReportApproved(ctx context.Context, e events.ReportApproved) error {
	serviceName := m.resolveServiceName(ctx, e.ServiceID)

	if toEmail := m.testerEmail(ctx, e.ClientID, e.ServiceID); toEmail != "" {
		if err := m.enqueue(ctx, TriggerReportApproved, emailSendOutboxPayload{
			ToEmail:       toEmail,
			ServiceName:   serviceName,
			ReportName:    e.ReportName,
			ReportVersion: e.ReportVersion,
		}); err != nil {
			return err
		}
	}

	// On final sign-off the client gets a confirmation too.
	if e.Resolved {
		if toEmail := m.clientEmail(ctx, e.ClientID); toEmail != "" {
			return m.enqueue(ctx, TriggerReportApproved, emailSendOutboxPayload{
				ToEmail:       toEmail,
				ServiceName:   serviceName,
				ReportName:    e.ReportName,
				ReportVersion: e.ReportVersion,
			})
		}
	}
	return nil
}

func (m *Module) handleReportRejected(ctx context.Context, e events.ReportRejected) error {
	serviceName := m.resolveServiceName(ctx, e.ServiceID)
	recipients := uniqueEmails(
		m.testerEmail(ctx, e.ClientID, e.ServiceID),
		m.managerEmail(ctx, e.ClientID, e.ServiceID),
	)

	for _, toEmail := range recipients {
		if err := m.enqueue(ctx, TriggerReportRejected, emailSendOutboxPayload{
			ToEmail:       toEmail,
			ServiceName:   serviceName,
			ReportName:    e.ReportName,
			ReportVersion: e.ReportVersion,
			Reason:        e.Reason,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) handleRejectionEscalated(ctx context.Context, e events.RejectionEscalated) error {
	if m.users == nil {
		m.log.Debug("user directory not configured; escalation email skipped")
		return nil
	}

	serviceName := m.resolveServiceName(ctx, e.ServiceID)
	reviewURL := m.buildTimelineURL(e.ClientID, e.ServiceID)

	var recipients []string
	for _, role := range []string{"manager", "admin"} {
		users, err := m.users.ListByRole(ctx, role)
		if err != nil {
			m.log.Warn("failed to list escalation recipients", "role", role, "error", err)
			continue
		}
		for _, u := range users {
			recipients = append(recipients, u.Email)
		}
	}

	// Fan out in parallel: without an outbox each enqueue is a blocking
	// SMTP delivery, and the recipient list can span the whole staff roster.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for _, toEmail := range uniqueEmails(recipients...) {
		toEmail := toEmail
		g.Go(func() error {
			return m.enqueue(gctx, TriggerEscalation, emailSendOutboxPayload{
				ToEmail:     toEmail,
				ServiceName: serviceName,
				Rejections:  e.Rejections,
				ReviewURL:   reviewURL,
			})
		})
	}
	return g.Wait()
}

func (m *Module) handleStageOverdue(ctx context.Context, e events.StageOverdue) error {
	serviceName := m.resolveServiceName(ctx, e.ServiceID)
	reviewURL := m.buildTimelineURL(e.ClientID, e.ServiceID)
	recipients := uniqueEmails(
		m.testerEmail(ctx, e.ClientID, e.ServiceID),
		m.managerEmail(ctx, e.ClientID, e.ServiceID),
	)

	for _, toEmail := range recipients {
		if err := m.enqueue(ctx, TriggerStageOverdue, emailSendOutboxPayload{
			ToEmail:     toEmail,
			ServiceName: serviceName,
			StageName:   e.StageName,
			ReviewURL:   reviewURL,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) handleTesterReassigned(ctx context.Context, e events.TesterReassigned) error {
	toEmail := m.userEmail(ctx, e.NewTester)
	if toEmail == "" {
		return nil
	}
	return m.enqueue(ctx, TriggerTesterReassigned, emailSendOutboxPayload{
		ToEmail:     toEmail,
		ServiceName: m.resolveServiceName(ctx, e.ServiceID),
		ReviewURL:   m.buildTimelineURL(e.ClientID, e.ServiceID),
	})
}

// handleNotificationOutboxDue delivers one claimed outbox record. Failures
// reschedule the row with exponential backoff until the attempt cap.
func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		return nil
	}

	rec, err := m.outbox.GetByID(ctx, e.OutboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded || rec.Status == outbox.StatusFailed {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	var payload emailSendOutboxPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return m.outbox.MarkFailed(ctx, rec.ID, "invalid payload: "+err.Error())
	}

	if sendErr := m.dispatch(ctx, rec.Template, payload); sendErr != nil {
		attempts := rec.Attempts + 1
		if attempts >= maxOutboxRetryAttempts {
			m.log.Error("outbox delivery failed permanently",
				"outbox_id", rec.ID, "template", rec.Template, "attempts", attempts, "error", sendErr)
			return m.outbox.MarkFailed(ctx, rec.ID, sendErr.Error())
		}
		delay := retryDelay(attempts)
		m.log.Warn("outbox delivery failed; rescheduling",
			"outbox_id", rec.ID, "template", rec.Template, "attempts", attempts, "retry_in", delay)
		return m.outbox.MarkRetry(ctx, rec.ID, time.Now().UTC().Add(delay), sendErr.Error())
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

// enqueue writes an outbox row for the trigger, honoring the rules file.
// Without an outbox the email is delivered inline.
func (m *Module) enqueue(ctx context.Context, trigger string, payload emailSendOutboxPayload) error {
	rule := m.rules.For(trigger)
	if !rule.Enabled {
		m.log.Debug("notification trigger disabled by rules", "trigger", trigger)
		return nil
	}
	if payload.ToEmail == "" {
		return nil
	}

	if m.outbox == nil {
		if err := m.dispatch(ctx, trigger, payload); err != nil {
			m.log.Error("inline email delivery failed", "trigger", trigger, "to", payload.ToEmail, "error", err)
		}
		return nil
	}

	runAt := time.Now().UTC().Add(m.rules.Delay(trigger))
	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:     "email",
		Template: trigger,
		Payload:  payload,
		RunAt:    runAt,
	})
	if err != nil {
		return err
	}
	m.log.Info("outbox message enqueued",
		"outbox_id", id, "template", trigger, "to", payload.ToEmail, "run_at", runAt)
	return nil
}

// dispatch calls the sender method matching the template.
func (m *Module) dispatch(ctx context.Context, template string, p emailSendOutboxPayload) error {
	switch template {
	case TriggerReviewRequested:
		return m.sender.SendReviewRequestedEmail(ctx, p.ToEmail, p.ServiceName, p.ReportName, p.ReportVersion, p.ReviewURL)
	case TriggerReportApproved:
		return m.sender.SendReportApprovedEmail(ctx, p.ToEmail, p.ServiceName, p.ReportName, p.ReportVersion)
	case TriggerReportRejected:
		return m.sender.SendReportRejectedEmail(ctx, p.ToEmail, p.ServiceName, p.ReportName, p.ReportVersion, p.Reason)
	case TriggerEscalation:
		return m.sender.SendEscalationEmail(ctx, p.ToEmail, p.ServiceName, p.Rejections, p.ReviewURL)
	case TriggerStageOverdue:
		return m.sender.SendStageOverdueEmail(ctx, p.ToEmail, p.ServiceName, p.StageName, p.ReviewURL)
	case TriggerTesterReassigned:
		return m.sender.SendTesterReassignedEmail(ctx, p.ToEmail, p.ServiceName, p.ReviewURL)
	default:
		return fmt.Errorf("unknown outbox template %q", template)
	}
}

func (m *Module) buildTimelineURL(clientID, serviceID uuid.UUID) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	return fmt.Sprintf("%s/timelines/%s/%s", base, clientID, serviceID)
}

func (m *Module) resolveServiceName(ctx context.Context, serviceID uuid.UUID) string {
	if m.roster != nil {
		if svc, err := m.roster.GetService(ctx, serviceID); err == nil {
			return svc.Name
		}
	}
	return "engagement " + serviceID.String()
}

func (m *Module) userEmail(ctx context.Context, userID uuid.UUID) string {
	if m.users == nil || userID == uuid.Nil {
		return ""
	}
	u, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		m.log.Warn("failed to resolve recipient", "user_id", userID, "error", err)
		return ""
	}
	return u.Email
}

func (m *Module) managerEmail(ctx context.Context, clientID, serviceID uuid.UUID) string {
	if m.staff == nil {
		return ""
	}
	manager, _, err := m.staff.Staff(ctx, clientID, serviceID)
	if err != nil {
		m.log.Warn("failed to resolve timeline staffing", "client_id", clientID, "service_id", serviceID, "error", err)
		return ""
	}
	return m.userEmail(ctx, manager)
}

func (m *Module) testerEmail(ctx context.Context, clientID, serviceID uuid.UUID) string {
	if m.staff == nil {
		return ""
	}
	_, tester, err := m.staff.Staff(ctx, clientID, serviceID)
	if err != nil {
		m.log.Warn("failed to resolve timeline staffing", "client_id", clientID, "service_id", serviceID, "error", err)
		return ""
	}
	return m.userEmail(ctx, tester)
}

func (m *Module) clientEmail(ctx context.Context, clientID uuid.UUID) string {
	if m.roster == nil {
		return ""
	}
	c, err := m.roster.GetClient(ctx, clientID)
	if err != nil {
		m.log.Warn("failed to resolve client contact", "client_id", clientID, "error", err)
		return ""
	}
	return c.ContactEmail
}

func retryDelay(attempts int) time.Duration {
	delay := outboxRetryBaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= outboxRetryMaxDelay {
			return outboxRetryMaxDelay
		}
	}
	return delay
}

func uniqueEmails(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
