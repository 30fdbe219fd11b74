package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"assessportal/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendReviewRequestedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int, reviewURL string) error {
	content, err := renderEmailTemplate("review_requested.html", reviewRequestedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Report ready for review",
			Heading:  "Report ready for review",
			CTALabel: "Open review",
			CTAURL:   reviewURL,
		},
		ServiceName:   serviceName,
		ReportName:    reportName,
		ReportVersion: reportVersion,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectReviewRequestedFmt, serviceName), content)
}

func (s *SMTPSender) SendReportApprovedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int) error {
	content, err := renderEmailTemplate("report_approved.html", reportApprovedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Report approved",
			Heading: "Report approved",
		},
		ServiceName:   serviceName,
		ReportName:    reportName,
		ReportVersion: reportVersion,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectReportApprovedFmt, serviceName), content)
}

func (s *SMTPSender) SendReportRejectedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int, reason string) error {
	content, err := renderEmailTemplate("report_rejected.html", reportRejectedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Report rejected",
			Heading: "Report rejected",
		},
		ServiceName:   serviceName,
		ReportName:    reportName,
		ReportVersion: reportVersion,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectReportRejectedFmt, serviceName), content)
}

func (s *SMTPSender) SendEscalationEmail(ctx context.Context, toEmail, serviceName string, rejections int, reviewURL string) error {
	content, err := renderEmailTemplate("escalation.html", escalationEmailData{
		baseEmailData: baseEmailData{
			Title:    "Escalation raised",
			Heading:  "Escalation raised",
			CTALabel: "Open timeline",
			CTAURL:   reviewURL,
		},
		ServiceName: serviceName,
		Rejections:  rejections,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectEscalationFmt, serviceName), content)
}

func (s *SMTPSender) SendStageOverdueEmail(ctx context.Context, toEmail, serviceName, stageName string, reviewURL string) error {
	content, err := renderEmailTemplate("stage_overdue.html", stageOverdueEmailData{
		baseEmailData: baseEmailData{
			Title:    "Stage overdue",
			Heading:  "Stage overdue",
			CTALabel: "Open timeline",
			CTAURL:   reviewURL,
		},
		ServiceName: serviceName,
		StageName:   stageName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectStageOverdueFmt, serviceName), content)
}

func (s *SMTPSender) SendTesterReassignedEmail(ctx context.Context, toEmail, serviceName, reviewURL string) error {
	content, err := renderEmailTemplate("tester_reassigned.html", testerReassignedEmailData{
		baseEmailData: baseEmailData{
			Title:    "New engagement assignment",
			Heading:  "New engagement assignment",
			CTALabel: "Open timeline",
			CTAURL:   reviewURL,
		},
		ServiceName: serviceName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectTesterReassignedFmt, serviceName), content)
}
