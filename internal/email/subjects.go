package email

const (
	subjectReviewRequestedFmt  = "Report ready for review: %s"
	subjectReportApprovedFmt   = "Report approved: %s"
	subjectReportRejectedFmt   = "Report rejected: %s"
	subjectEscalationFmt       = "Escalation: repeated rejections on %s"
	subjectStageOverdueFmt     = "Stage overdue: %s"
	subjectTesterReassignedFmt = "You have been assigned to %s"
)
