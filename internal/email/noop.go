package email

import (
	"context"

	"assessportal/platform/logger"
)

// LogSender logs notification emails instead of delivering them. Used in
// development and when SMTP is not configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) logEmail(kind, toEmail, serviceName string) {
	s.log.Info("email delivery skipped (smtp not configured)",
		"kind", kind,
		"to", toEmail,
		"service_name", serviceName)
}

func (s *LogSender) SendReviewRequestedEmail(_ context.Context, toEmail, serviceName, _ string, _ int, _ string) error {
	s.logEmail("review_requested", toEmail, serviceName)
	return nil
}

func (s *LogSender) SendReportApprovedEmail(_ context.Context, toEmail, serviceName, _ string, _ int) error {
	s.logEmail("report_approved", toEmail, serviceName)
	return nil
}

func (s *LogSender) SendReportRejectedEmail(_ context.Context, toEmail, serviceName, _ string, _ int, _ string) error {
	s.logEmail("report_rejected", toEmail, serviceName)
	return nil
}

func (s *LogSender) SendEscalationEmail(_ context.Context, toEmail, serviceName string, _ int, _ string) error {
	s.logEmail("escalation", toEmail, serviceName)
	return nil
}

func (s *LogSender) SendStageOverdueEmail(_ context.Context, toEmail, serviceName, _ string, _ string) error {
	s.logEmail("stage_overdue", toEmail, serviceName)
	return nil
}

func (s *LogSender) SendTesterReassignedEmail(_ context.Context, toEmail, serviceName, _ string) error {
	s.logEmail("tester_reassigned", toEmail, serviceName)
	return nil
}
