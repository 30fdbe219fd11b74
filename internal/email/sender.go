// Package email delivers workflow notification emails over SMTP.
package email

import "context"

// Sender delivers notification emails. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendReviewRequestedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int, reviewURL string) error
	SendReportApprovedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int) error
	SendReportRejectedEmail(ctx context.Context, toEmail, serviceName, reportName string, reportVersion int, reason string) error
	SendEscalationEmail(ctx context.Context, toEmail, serviceName string, rejections int, reviewURL string) error
	SendStageOverdueEmail(ctx context.Context, toEmail, serviceName, stageName string, reviewURL string) error
	SendTesterReassignedEmail(ctx context.Context, toEmail, serviceName, reviewURL string) error
}
