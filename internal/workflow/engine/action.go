package engine

import (
	"time"

	"github.com/google/uuid"
)

// ActionType enumerates the transition commands the engine accepts.
type ActionType string

const (
	ActionStart           ActionType = "start"
	ActionComplete        ActionType = "complete"
	ActionBlock           ActionType = "block"
	ActionMarkOverdue     ActionType = "markOverdue"
	ActionSetProgress     ActionType = "setProgress"
	ActionSubmitForReview ActionType = "submitForReview"
	ActionApprove         ActionType = "approve"
	ActionReject          ActionType = "reject"
	ActionClientFeedback  ActionType = "clientFeedback"
	ActionReassign        ActionType = "reassign"
	ActionComment         ActionType = "comment"
	ActionAttach          ActionType = "attach"
)

// ValidActionType reports whether the action type is known.
func ValidActionType(a ActionType) bool {
	switch a {
	case ActionStart, ActionComplete, ActionBlock, ActionMarkOverdue,
		ActionSetProgress, ActionSubmitForReview, ActionApprove, ActionReject,
		ActionClientFeedback, ActionReassign, ActionComment, ActionAttach:
		return true
	}
	return false
}

// Actor is the identity performing a transition, resolved by the auth
// collaborator.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role Role
}

// Action is the tagged-union transition command. Type selects which payload
// fields are meaningful; everything else is ignored.
type Action struct {
	Type ActionType

	// StageID addresses the target stage. Ignored for reassign, which is a
	// timeline-level command.
	StageID int

	// ExpectedVersion, when non-zero, asserts the timeline version the
	// caller computed against. A mismatch is a ConcurrentModification.
	ExpectedVersion int

	// Reason accompanies reject and reassign; mandatory on reject.
	Reason string

	// ReportName names the artifact submitted for review.
	ReportName string

	// Satisfied and Feedback belong to clientFeedback.
	Satisfied bool
	Feedback  string

	// NewTesterID optionally replaces the assigned tester on reassign.
	NewTesterID uuid.UUID

	// Progress is the stage-local 0-99 figure for setProgress.
	Progress int

	// DueDate optionally sets the stage deadline on start.
	DueDate *time.Time

	// Text is the comment body.
	Text string

	// File carries attachment metadata for attach.
	File Attachment
}

// Outcome summarizes the committed effects of a transition so callers can
// publish events without re-deriving what happened.
type Outcome struct {
	Action      ActionType
	StageID     int
	Version     int
	Rewound     bool
	Escalated   bool
	NewApproval *ApprovalRecord
}
