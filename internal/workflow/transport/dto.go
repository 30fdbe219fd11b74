package transport

import (
	"time"

	"assessportal/internal/workflow/engine"

	"github.com/google/uuid"
)

// CreateTimelineRequest is the request body for creating a delivery timeline.
type CreateTimelineRequest struct {
	ClientID        uuid.UUID `json:"clientId" validate:"required"`
	ServiceID       uuid.UUID `json:"serviceId" validate:"required"`
	AssignedManager uuid.UUID `json:"assignedManager" validate:"required"`
	AssignedTester  uuid.UUID `json:"assignedTester" validate:"required"`
}

// StartStageRequest is the request body for starting a stage.
type StartStageRequest struct {
	ExpectedVersion int        `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
}

// CompleteStageRequest is the request body for completing a stage.
type CompleteStageRequest struct {
	ExpectedVersion int `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// ExceptionRequest marks a stage blocked or overdue, optionally with a note.
type ExceptionRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=2000"`
}

// SetProgressRequest updates the fractional progress of an active stage.
type SetProgressRequest struct {
	Progress int `json:"progress" validate:"min=0,max=99"`
}

// SubmitReportRequest hands a report to a review checkpoint.
type SubmitReportRequest struct {
	ReportName      string `json:"reportName,omitempty" validate:"max=200"`
	ExpectedVersion int    `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// ReviewRequest carries a review decision. Reason is mandatory for
// rejections and optional for approvals.
type ReviewRequest struct {
	Reason          string `json:"reason,omitempty" validate:"max=2000"`
	ExpectedVersion int    `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// ClientFeedbackRequest is the client's verdict on the final report.
type ClientFeedbackRequest struct {
	Satisfied       bool   `json:"satisfied"`
	Feedback        string `json:"feedback,omitempty" validate:"max=2000"`
	ExpectedVersion int    `json:"expectedVersion,omitempty" validate:"omitempty,min=1"`
}

// ReassignRequest swaps the assigned tester for an engagement.
type ReassignRequest struct {
	NewTesterID uuid.UUID `json:"newTesterId" validate:"required"`
	Reason      string    `json:"reason,omitempty" validate:"max=2000"`
}

// AddCommentRequest posts a comment on a stage.
type AddCommentRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

// RegisterAttachmentRequest records an uploaded stage artifact.
type RegisterAttachmentRequest struct {
	FileName  string `json:"fileName" validate:"required,min=1,max=255"`
	ObjectKey string `json:"objectKey" validate:"required,min=1,max=512"`
	SizeBytes int64  `json:"sizeBytes" validate:"required,min=1"`
}

// PresignUploadRequest asks for a direct-upload URL for a stage artifact.
type PresignUploadRequest struct {
	FileName    string `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType,omitempty" validate:"max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

// UploadTicketResponse is the presigned upload URL plus the object key the
// client must register after uploading.
type UploadTicketResponse struct {
	UploadURL string    `json:"uploadUrl"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadTicketResponse is a presigned download URL for a stored artifact.
type DownloadTicketResponse struct {
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ListTimelinesRequest is the query parameters for listing timelines.
type ListTimelinesRequest struct {
	ClientID  *uuid.UUID `form:"clientId"`
	Resolved  *bool      `form:"resolved"`
	SortBy    string     `form:"sortBy" validate:"omitempty,oneof=progress version stage"`
	SortOrder string     `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Page      int        `form:"page" validate:"omitempty,min=1"`
	PageSize  int        `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// TimelineListResponse is the paginated response for listing timelines.
type TimelineListResponse struct {
	Items      []engine.TimelineSummary `json:"items"`
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"pageSize"`
	TotalPages int                      `json:"totalPages"`
}

// TransitionResponse wraps the post-transition timeline together with what
// the transition did.
type TransitionResponse struct {
	Timeline  *engine.Timeline `json:"timeline"`
	Action    string           `json:"action"`
	StageID   int              `json:"stageId"`
	Version   int              `json:"version"`
	Rewound   bool             `json:"rewound"`
	Escalated bool             `json:"escalated,omitempty"`
}

// ApprovalHistoryResponse is the append-only review audit for a timeline.
type ApprovalHistoryResponse struct {
	ClientID  uuid.UUID               `json:"clientId"`
	ServiceID uuid.UUID               `json:"serviceId"`
	Records   []engine.ApprovalRecord `json:"records"`
}
