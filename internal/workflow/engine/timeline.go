package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// StageStatus is the mutable lifecycle state of a single stage.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusInProgress StageStatus = "in-progress"
	StatusCompleted  StageStatus = "completed"
	StatusBlocked    StageStatus = "blocked"
	StatusOverdue    StageStatus = "overdue"
)

// ReviewState tracks the approval sub-machine of a checkpoint stage.
type ReviewState string

const (
	ReviewAwaitingSubmission ReviewState = "awaiting-submission"
	ReviewPending            ReviewState = "pending-review"
	ReviewApproved           ReviewState = "approved"
	ReviewRejected           ReviewState = "rejected"
)

// ApprovalAction is the recorded outcome of a review.
type ApprovalAction string

const (
	ApprovalApproved ApprovalAction = "approved"
	ApprovalRejected ApprovalAction = "rejected"
)

// Comment is an append-only annotation on a stage.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	AuthorID   uuid.UUID `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	AuthorRole Role      `json:"authorRole"`
	Content    string    `json:"content"`
	IsSystem   bool      `json:"isSystem"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Attachment records file metadata attached to a stage. The bytes live in
// object storage; the engine only keeps the reference.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	ObjectKey   string    `json:"objectKey"`
	UploadedBy  uuid.UUID `json:"uploadedBy"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// ApprovalRecord is the immutable audit entry for one review decision.
// Records are keyed by (clientID, serviceID, reportVersion) and are never
// edited or removed after creation.
type ApprovalRecord struct {
	ID             uuid.UUID      `json:"id"`
	StageID        int            `json:"stageId"`
	ReportName     string         `json:"reportName"`
	ReportVersion  int            `json:"reportVersion"`
	Action         ApprovalAction `json:"action"`
	ReviewedBy     uuid.UUID      `json:"reviewedBy"`
	ReviewedByRole Role           `json:"reviewedByRole"`
	ReviewedAt     time.Time      `json:"reviewedAt"`
	Reason         string         `json:"reason,omitempty"`
}

// StageState is the full mutable state of one stage in a timeline.
type StageState struct {
	ID             int          `json:"id"`
	Name           string       `json:"name"`
	Status         StageStatus  `json:"status"`
	Review         ReviewState  `json:"review,omitempty"` // checkpoint stages only
	ReportName     string       `json:"reportName,omitempty"`
	AssignedTo     uuid.UUID    `json:"assignedTo,omitempty"`
	AssignedToRole Role         `json:"assignedToRole"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	StartedAt      *time.Time   `json:"startedAt,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	Progress       int          `json:"progress"` // 0..100 within the stage
	Comments       []Comment    `json:"comments,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Approvals      []ApprovalRecord `json:"approvals,omitempty"`
}

// Timeline is the full state of one client-service pair's progress through
// the stage pipeline. It is owned by the Store and mutated only through
// validated transitions.
type Timeline struct {
	ClientID        uuid.UUID              `json:"clientId"`
	ServiceID       uuid.UUID              `json:"serviceId"`
	Version         int                    `json:"version"`
	Stages          [NumStages]StageState  `json:"stages"`
	CurrentStageID  int                    `json:"currentStageId"`
	AssignedManager uuid.UUID              `json:"assignedManager,omitempty"`
	AssignedTester  uuid.UUID              `json:"assignedTester,omitempty"`
	Resolved        bool                   `json:"resolved"`
	// ClientRejectionStreak counts consecutive client-review rejections on
	// the current timeline, feeding the escalation policy.
	ClientRejectionStreak int       `json:"clientRejectionStreak"`
	CreatedAt             time.Time `json:"createdAt"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

// NewTimeline creates a timeline for an onboarded client-service pair.
// Stage 0 begins in-progress per the pipeline lifecycle.
func NewTimeline(clientID, serviceID, manager, tester uuid.UUID, now time.Time) *Timeline {
	t := &Timeline{
		ClientID:        clientID,
		ServiceID:       serviceID,
		Version:         1,
		AssignedManager: manager,
		AssignedTester:  tester,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	for i := range t.Stages {
		t.Stages[i] = StageState{
			ID:             i,
			Name:           stageTable[i].Name,
			Status:         StatusPending,
			AssignedToRole: stageTable[i].Owner,
		}
		if stageTable[i].Checkpoint {
			t.Stages[i].Review = ReviewAwaitingSubmission
		}
	}
	started := now
	t.Stages[0].Status = StatusInProgress
	t.Stages[0].StartedAt = &started
	return t
}

// OverallProgress derives the 0-100 completion figure from stage statuses:
// each completed stage contributes 100/11, an in-progress stage contributes
// its own fractional progress over 11. Never stored, always recomputed.
func (t *Timeline) OverallProgress() int {
	var total float64
	for i := range t.Stages {
		switch t.Stages[i].Status {
		case StatusCompleted:
			total += 100.0 / NumStages
		case StatusInProgress, StatusOverdue:
			total += float64(t.Stages[i].Progress) / NumStages
		}
	}
	return int(math.Round(total))
}

// ApprovalHistory returns all approval records across both checkpoint
// stages, in submission order.
func (t *Timeline) ApprovalHistory() []ApprovalRecord {
	var out []ApprovalRecord
	out = append(out, t.Stages[ManagerReviewStage].Approvals...)
	out = append(out, t.Stages[ClientReviewStage].Approvals...)
	return out
}

// Clone returns a deep copy, detaching all slices and pointers so readers
// never observe in-place mutation.
func (t *Timeline) Clone() *Timeline {
	cp := *t
	for i := range cp.Stages {
		s := &cp.Stages[i]
		s.DueDate = copyTime(s.DueDate)
		s.StartedAt = copyTime(s.StartedAt)
		s.CompletedAt = copyTime(s.CompletedAt)
		s.Comments = append([]Comment(nil), s.Comments...)
		s.Attachments = append([]Attachment(nil), s.Attachments...)
		s.Approvals = append([]ApprovalRecord(nil), s.Approvals...)
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
