// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"assessportal/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Workflow Domain Events
// =============================================================================

// TimelineCreated is published when a client/service pair gets its delivery
// timeline.
type TimelineCreated struct {
	BaseEvent
	ClientID        uuid.UUID `json:"clientId"`
	ServiceID       uuid.UUID `json:"serviceId"`
	ServiceName     string    `json:"serviceName,omitempty"`
	AssignedManager uuid.UUID `json:"assignedManager"`
	AssignedTester  uuid.UUID `json:"assignedTester"`
}

func (e TimelineCreated) EventName() string { return "workflow.timeline.created" }

// StageStarted is published when a stage moves to in-progress.
type StageStarted struct {
	BaseEvent
	ClientID  uuid.UUID  `json:"clientId"`
	ServiceID uuid.UUID  `json:"serviceId"`
	StageID   int        `json:"stageId"`
	StageName string     `json:"stageName"`
	ActorID   uuid.UUID  `json:"actorId"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
}

func (e StageStarted) EventName() string { return "workflow.stage.started" }

// StageCompleted is published when a stage finishes, by direct completion or
// by checkpoint approval.
type StageCompleted struct {
	BaseEvent
	ClientID        uuid.UUID `json:"clientId"`
	ServiceID       uuid.UUID `json:"serviceId"`
	StageID         int       `json:"stageId"`
	StageName       string    `json:"stageName"`
	ActorID         uuid.UUID `json:"actorId"`
	OverallProgress int       `json:"overallProgress"`
}

func (e StageCompleted) EventName() string { return "workflow.stage.completed" }

// StageBlocked is published when a stage is marked blocked.
type StageBlocked struct {
	BaseEvent
	ClientID  uuid.UUID `json:"clientId"`
	ServiceID uuid.UUID `json:"serviceId"`
	StageID   int       `json:"stageId"`
	StageName string    `json:"stageName"`
	Reason    string    `json:"reason,omitempty"`
}

func (e StageBlocked) EventName() string { return "workflow.stage.blocked" }

// StageOverdue is published when a stage passes its due date without
// completing. The overdue sweep is the usual publisher.
type StageOverdue struct {
	BaseEvent
	ClientID  uuid.UUID  `json:"clientId"`
	ServiceID uuid.UUID  `json:"serviceId"`
	StageID   int        `json:"stageId"`
	StageName string     `json:"stageName"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
}

func (e StageOverdue) EventName() string { return "workflow.stage.overdue" }

// ReportSubmitted is published when a report reaches a review checkpoint.
type ReportSubmitted struct {
	BaseEvent
	ClientID      uuid.UUID `json:"clientId"`
	ServiceID     uuid.UUID `json:"serviceId"`
	StageID       int       `json:"stageId"`
	ReportName    string    `json:"reportName"`
	ReportVersion int       `json:"reportVersion"`
	SubmittedBy   uuid.UUID `json:"submittedBy"`
}

func (e ReportSubmitted) EventName() string { return "workflow.report.submitted" }

// ReportApproved is published on checkpoint approval. Resolved is true when
// the approval was the client's final sign-off.
type ReportApproved struct {
	BaseEvent
	ClientID      uuid.UUID `json:"clientId"`
	ServiceID     uuid.UUID `json:"serviceId"`
	StageID       int       `json:"stageId"`
	ReportName    string    `json:"reportName"`
	ReportVersion int       `json:"reportVersion"`
	ReviewedBy    uuid.UUID `json:"reviewedBy"`
	Resolved      bool      `json:"resolved"`
}

func (e ReportApproved) EventName() string { return "workflow.report.approved" }

// ReportRejected is published on checkpoint rejection. Every rejection rewinds
// the timeline, so the event carries the post-rewind version.
type ReportRejected struct {
	BaseEvent
	ClientID      uuid.UUID `json:"clientId"`
	ServiceID     uuid.UUID `json:"serviceId"`
	StageID       int       `json:"stageId"`
	ReportName    string    `json:"reportName"`
	ReportVersion int       `json:"reportVersion"`
	ReviewedBy    uuid.UUID `json:"reviewedBy"`
	Reason        string    `json:"reason"`
	NewVersion    int       `json:"newVersion"`
}

func (e ReportRejected) EventName() string { return "workflow.report.rejected" }

// TimelineResolved is published when the client signs off and the engagement
// closes.
type TimelineResolved struct {
	BaseEvent
	ClientID  uuid.UUID `json:"clientId"`
	ServiceID uuid.UUID `json:"serviceId"`
	Version   int       `json:"version"`
}

func (e TimelineResolved) EventName() string { return "workflow.timeline.resolved" }

// TesterReassigned is published when the manager swaps the assigned tester,
// which always rewinds the execution stages.
type TesterReassigned struct {
	BaseEvent
	ClientID       uuid.UUID `json:"clientId"`
	ServiceID      uuid.UUID `json:"serviceId"`
	PreviousTester uuid.UUID `json:"previousTester"`
	NewTester      uuid.UUID `json:"newTester"`
	ReassignedBy   uuid.UUID `json:"reassignedBy"`
	NewVersion     int       `json:"newVersion"`
}

func (e TesterReassigned) EventName() string { return "workflow.tester.reassigned" }

// RejectionEscalated is published when a timeline accumulates enough
// consecutive client rejections to need management attention.
type RejectionEscalated struct {
	BaseEvent
	ClientID   uuid.UUID `json:"clientId"`
	ServiceID  uuid.UUID `json:"serviceId"`
	Rejections int       `json:"rejections"`
}

func (e RejectionEscalated) EventName() string { return "workflow.rejection.escalated" }

// AttachmentUploaded is published when a stage attachment is registered.
type AttachmentUploaded struct {
	BaseEvent
	ClientID  uuid.UUID `json:"clientId"`
	ServiceID uuid.UUID `json:"serviceId"`
	StageID   int       `json:"stageId"`
	FileName  string    `json:"fileName"`
	FileKey   string    `json:"fileKey"`
	SizeBytes int64     `json:"sizeBytes"`
}

func (e AttachmentUploaded) EventName() string { return "workflow.attachment.uploaded" }

// =============================================================================
// Roster Domain Events
// =============================================================================

// ServiceOnboarded is published when a client purchases a service and the
// pair enters delivery. The workflow module reacts by creating the timeline.
type ServiceOnboarded struct {
	BaseEvent
	ClientID        uuid.UUID `json:"clientId"`
	ServiceID       uuid.UUID `json:"serviceId"`
	ServiceName     string    `json:"serviceName"`
	AssignedManager uuid.UUID `json:"assignedManager"`
	AssignedTester  uuid.UUID `json:"assignedTester"`
}

func (e ServiceOnboarded) EventName() string { return "roster.service.onboarded" }

// =============================================================================
// Findings Domain Events
// =============================================================================

// FindingRecorded is published when a tester logs a finding during task
// execution.
type FindingRecorded struct {
	BaseEvent
	FindingID uuid.UUID `json:"findingId"`
	ClientID  uuid.UUID `json:"clientId"`
	ServiceID uuid.UUID `json:"serviceId"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
}

func (e FindingRecorded) EventName() string { return "findings.finding.recorded" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification
// outbox record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
