package engine

import (
	"fmt"
	"strings"
	"time"

	"assessportal/platform/apperr"

	"github.com/google/uuid"
)

// apply is the single transition function. It mutates t, which is always a
// private clone owned by the caller, and validates everything before the
// first mutation of each branch so a returned error implies no state change.
func apply(t *Timeline, actor Actor, action Action, now time.Time) (*Outcome, error) {
	if !ValidActionType(action.Type) {
		return nil, apperr.Validation(fmt.Sprintf("unknown action %q", action.Type))
	}
	if !ValidRole(actor.Role) {
		return nil, apperr.Validation(fmt.Sprintf("unknown role %q", actor.Role))
	}

	stageID := t.CurrentStageID
	if action.Type != ActionReassign {
		stageID = action.StageID
		if err := checkStageID(stageID); err != nil {
			return nil, err
		}
	}

	if t.Resolved && action.Type != ActionComment && action.Type != ActionAttach {
		return nil, apperr.GateViolation("timeline is resolved; only comments and attachments are accepted")
	}

	switch action.Type {
	case ActionStart:
		return applyStart(t, actor, action, stageID, now)
	case ActionComplete:
		return applyComplete(t, actor, stageID, now)
	case ActionBlock:
		return applyException(t, actor, action, stageID, StatusBlocked, now)
	case ActionMarkOverdue:
		return applyException(t, actor, action, stageID, StatusOverdue, now)
	case ActionSetProgress:
		return applySetProgress(t, actor, action, stageID)
	case ActionSubmitForReview:
		return applySubmit(t, actor, action, stageID)
	case ActionApprove:
		return applyApprove(t, actor, action, stageID, now)
	case ActionReject:
		return applyReject(t, actor, action, stageID, now)
	case ActionClientFeedback:
		return applyClientFeedback(t, actor, action, stageID, now)
	case ActionReassign:
		return applyReassign(t, actor, action, now)
	case ActionComment:
		return applyComment(t, actor, action, stageID, now)
	case ActionAttach:
		return applyAttach(t, actor, action, stageID, now)
	}
	return nil, apperr.Validation(fmt.Sprintf("unknown action %q", action.Type))
}

func applyStart(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	if err := checkOwnerRole(stageID, actor.Role); err != nil {
		return nil, err
	}
	stage := &t.Stages[stageID]
	switch stage.Status {
	case StatusPending, StatusBlocked, StatusOverdue:
	default:
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) cannot start from %s", stageID, stage.Name, stage.Status,
		))
	}
	if err := checkStartGate(t, stageID); err != nil {
		return nil, err
	}
	if err := checkSingleActive(t, stageID); err != nil {
		return nil, err
	}

	stage.Status = StatusInProgress
	if stage.StartedAt == nil {
		started := now
		stage.StartedAt = &started
	}
	if action.DueDate != nil {
		due := *action.DueDate
		stage.DueDate = &due
	}
	if stage.AssignedTo == uuid.Nil {
		stage.AssignedTo = actor.ID
	}
	t.CurrentStageID = stageID
	return &Outcome{Action: ActionStart, StageID: stageID, Version: t.Version}, nil
}

func applyComplete(t *Timeline, actor Actor, stageID int, now time.Time) (*Outcome, error) {
	if err := checkOwnerRole(stageID, actor.Role); err != nil {
		return nil, err
	}
	if IsCheckpoint(stageID) {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is a review checkpoint and completes through approval",
			stageID, StageName(stageID),
		))
	}
	if err := checkCompleteGate(t, stageID); err != nil {
		return nil, err
	}

	stage := &t.Stages[stageID]
	completed := now
	stage.Status = StatusCompleted
	stage.CompletedAt = &completed
	stage.Progress = 100
	return &Outcome{Action: ActionComplete, StageID: stageID, Version: t.Version}, nil
}

func applyException(t *Timeline, actor Actor, action Action, stageID int, status StageStatus, now time.Time) (*Outcome, error) {
	if err := checkExceptionSetter(actor.Role); err != nil {
		return nil, err
	}
	stage := &t.Stages[stageID]
	if stage.Status == StatusCompleted {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is completed and cannot be marked %s", stageID, stage.Name, status,
		))
	}
	if status == StatusOverdue && stage.Status != StatusInProgress {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is %s; only an in-progress stage can become overdue",
			stageID, stage.Name, stage.Status,
		))
	}

	stage.Status = status
	if reason := strings.TrimSpace(action.Reason); reason != "" {
		appendComment(stage, actor, reason, now)
	}
	return &Outcome{Action: action.Type, StageID: stageID, Version: t.Version}, nil
}

func applySetProgress(t *Timeline, actor Actor, action Action, stageID int) (*Outcome, error) {
	if err := checkOwnerRole(stageID, actor.Role); err != nil {
		return nil, err
	}
	stage := &t.Stages[stageID]
	if stage.Status != StatusInProgress && stage.Status != StatusOverdue {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is %s; progress applies to an active stage",
			stageID, stage.Name, stage.Status,
		))
	}
	if action.Progress < 0 || action.Progress > 99 {
		return nil, apperr.Validation("progress must be between 0 and 99; completion sets 100")
	}

	stage.Progress = action.Progress
	return &Outcome{Action: ActionSetProgress, StageID: stageID, Version: t.Version}, nil
}

func applySubmit(t *Timeline, actor Actor, action Action, stageID int) (*Outcome, error) {
	if !IsCheckpoint(stageID) {
		return nil, apperr.Validation(fmt.Sprintf(
			"stage %d (%s) is not a review checkpoint", stageID, StageName(stageID),
		))
	}
	// The upstream producer submits: the tester hands the report to manager
	// review, the manager hands the approved report to client review.
	producer := RoleTester
	if stageID == ClientReviewStage {
		producer = RoleManager
	}
	if actor.Role != producer {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) submissions come from role %q, not %q",
			stageID, StageName(stageID), producer, actor.Role,
		))
	}

	stage := &t.Stages[stageID]
	if stage.Status != StatusInProgress {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is %s; reaching review requires the stage to be in progress",
			stageID, stage.Name, stage.Status,
		))
	}
	if stage.Review == ReviewPending {
		return nil, apperr.GateViolation("a report is already pending review")
	}

	reportName := strings.TrimSpace(action.ReportName)
	if reportName == "" {
		reportName = fmt.Sprintf("Assessment Report v%d", t.Version)
	}
	stage.Review = ReviewPending
	stage.ReportName = reportName
	return &Outcome{Action: ActionSubmitForReview, StageID: stageID, Version: t.Version}, nil
}

func applyApprove(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	stage, err := checkReviewable(t, actor, stageID)
	if err != nil {
		return nil, err
	}

	record := ApprovalRecord{
		ID:             uuid.New(),
		StageID:        stageID,
		ReportName:     stage.ReportName,
		ReportVersion:  t.Version,
		Action:         ApprovalApproved,
		ReviewedBy:     actor.ID,
		ReviewedByRole: actor.Role,
		ReviewedAt:     now,
		Reason:         strings.TrimSpace(action.Reason),
	}
	stage.Approvals = append(stage.Approvals, record)
	stage.Review = ReviewApproved
	completed := now
	stage.Status = StatusCompleted
	stage.CompletedAt = &completed
	stage.Progress = 100

	if stageID == ClientReviewStage {
		t.Resolved = true
		t.ClientRejectionStreak = 0
	}
	return &Outcome{Action: ActionApprove, StageID: stageID, Version: t.Version, NewApproval: &record}, nil
}

func applyReject(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	stage, err := checkReviewable(t, actor, stageID)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(action.Reason)
	if reason == "" {
		return nil, apperr.Validation("a rejection requires a reason")
	}

	record := ApprovalRecord{
		ID:             uuid.New(),
		StageID:        stageID,
		ReportName:     stage.ReportName,
		ReportVersion:  t.Version,
		Action:         ApprovalRejected,
		ReviewedBy:     actor.ID,
		ReviewedByRole: actor.Role,
		ReviewedAt:     now,
		Reason:         reason,
	}
	stage.Approvals = append(stage.Approvals, record)

	escalated := false
	if stageID == ClientReviewStage {
		t.ClientRejectionStreak++
		escalated = t.ClientRejectionStreak >= escalationThreshold
	}

	rejectedAt := StageName(stageID)
	rejectedVersion := t.Version
	rewind(t, now)
	appendSystemComment(&t.Stages[ResumptionStage], fmt.Sprintf(
		"Report v%d rejected at %s: %s. Timeline rewound to %s as v%d.",
		rejectedVersion, rejectedAt, reason, StageName(ResumptionStage), t.Version,
	), now)
	if escalated {
		appendSystemComment(&t.Stages[ResumptionStage], fmt.Sprintf(
			"Escalation: %d consecutive client rejections on this timeline.",
			t.ClientRejectionStreak,
		), now)
	}

	return &Outcome{
		Action:      ActionReject,
		StageID:     stageID,
		Version:     t.Version,
		Rewound:     true,
		Escalated:   escalated,
		NewApproval: &record,
	}, nil
}

func applyClientFeedback(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	if stageID != ClientReviewStage {
		return nil, apperr.Validation(fmt.Sprintf(
			"client feedback applies to stage %d (%s)",
			ClientReviewStage, StageName(ClientReviewStage),
		))
	}

	if action.Satisfied {
		out, err := applyApprove(t, actor, Action{Reason: action.Feedback}, stageID, now)
		if err != nil {
			return nil, err
		}
		out.Action = ActionClientFeedback
		return out, nil
	}

	if strings.TrimSpace(action.Feedback) == "" {
		return nil, apperr.Validation("unsatisfied client feedback requires an explanation")
	}
	out, err := applyReject(t, actor, Action{Reason: action.Feedback}, stageID, now)
	if err != nil {
		return nil, err
	}
	out.Action = ActionClientFeedback
	return out, nil
}

func applyReassign(t *Timeline, actor Actor, action Action, now time.Time) (*Outcome, error) {
	if actor.Role != RoleManager && actor.Role != RoleAdmin {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"role %q may not reassign the engagement", actor.Role,
		))
	}
	if action.NewTesterID == uuid.Nil {
		return nil, apperr.Validation("a replacement tester is required for reassignment")
	}

	previous := t.AssignedTester
	rewind(t, now)
	t.AssignedTester = action.NewTesterID

	note := fmt.Sprintf(
		"Engagement reassigned from tester %s to %s; timeline rewound to %s as v%d.",
		previous, action.NewTesterID, StageName(ResumptionStage), t.Version,
	)
	if reason := strings.TrimSpace(action.Reason); reason != "" {
		note += " Reason: " + reason
	}
	appendSystemComment(&t.Stages[ResumptionStage], note, now)

	return &Outcome{
		Action:  ActionReassign,
		StageID: ResumptionStage,
		Version: t.Version,
		Rewound: true,
	}, nil
}

func applyComment(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	if strings.TrimSpace(action.Text) == "" {
		return nil, apperr.Validation("comment text is required")
	}
	appendComment(&t.Stages[stageID], actor, action.Text, now)
	return &Outcome{Action: ActionComment, StageID: stageID, Version: t.Version}, nil
}

func applyAttach(t *Timeline, actor Actor, action Action, stageID int, now time.Time) (*Outcome, error) {
	file := action.File
	if file.Name == "" || file.ObjectKey == "" {
		return nil, apperr.Validation("attachment name and object key are required")
	}
	if file.Size <= 0 {
		return nil, apperr.Validation("attachment size must be positive")
	}

	file.ID = uuid.New()
	file.UploadedBy = actor.ID
	file.UploadedAt = now
	stage := &t.Stages[stageID]
	stage.Attachments = append(stage.Attachments, file)
	return &Outcome{Action: ActionAttach, StageID: stageID, Version: t.Version}, nil
}

// escalationThreshold is the number of consecutive client rejections that
// raises an escalation. Rejections beyond it are still allowed; escalation
// is a signal, not a cap.
const escalationThreshold = 3

func checkReviewable(t *Timeline, actor Actor, stageID int) (*StageState, error) {
	if !IsCheckpoint(stageID) {
		return nil, apperr.Validation(fmt.Sprintf(
			"stage %d (%s) is not a review checkpoint", stageID, StageName(stageID),
		))
	}
	if err := checkOwnerRole(stageID, actor.Role); err != nil {
		return nil, err
	}

	stage := &t.Stages[stageID]
	if stage.Review != ReviewPending {
		return nil, apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) has no report pending review", stageID, stage.Name,
		))
	}
	return stage, nil
}

// rewind rolls the timeline back to the resumption point in place: version
// bump, stages 4..10 reset to pending. Comments, attachments and approval
// records are history and are never deleted.
func rewind(t *Timeline, now time.Time) {
	t.Version++
	for i := ResumptionStage; i < NumStages; i++ {
		stage := &t.Stages[i]
		stage.Status = StatusPending
		stage.StartedAt = nil
		stage.CompletedAt = nil
		stage.DueDate = nil
		stage.Progress = 0
		stage.AssignedTo = uuid.Nil
		if IsCheckpoint(i) {
			stage.Review = ReviewAwaitingSubmission
			stage.ReportName = ""
		}
	}
	t.CurrentStageID = ResumptionStage
	t.Resolved = false
	t.LastUpdated = now
}

func appendComment(stage *StageState, actor Actor, text string, now time.Time) {
	stage.Comments = append(stage.Comments, Comment{
		ID:         uuid.New(),
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		AuthorRole: actor.Role,
		Content:    strings.TrimSpace(text),
		IsSystem:   actor.Role == RoleSystem,
		CreatedAt:  now,
	})
}

func appendSystemComment(stage *StageState, text string, now time.Time) {
	stage.Comments = append(stage.Comments, Comment{
		ID:         uuid.New(),
		AuthorRole: RoleSystem,
		Content:    text,
		IsSystem:   true,
		CreatedAt:  now,
	})
}
