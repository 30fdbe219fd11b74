package service

import (
	"context"
	"fmt"
	"time"

	"assessportal/internal/adapters/storage"
	"assessportal/internal/events"
	"assessportal/internal/workflow/engine"
	"assessportal/internal/workflow/transport"
	"assessportal/platform/apperr"
	"assessportal/platform/logger"

	"github.com/google/uuid"
)

// TimelineRepository persists timeline snapshots and the review audit trail.
type TimelineRepository interface {
	SaveSnapshot(ctx context.Context, t *engine.Timeline) error
	AppendApproval(ctx context.Context, clientID, serviceID uuid.UUID, rec engine.ApprovalRecord) error
	LoadAll(ctx context.Context) ([]*engine.Timeline, error)
}

// Service orchestrates workflow transitions: the engine store is the source
// of truth, the repository is write-through persistence, and every accepted
// transition fans out as domain events.
type Service struct {
	store    *engine.Store
	repo     TimelineRepository
	eventBus events.Bus
	storage  storage.StorageService
	bucket   string
	log      *logger.Logger
}

// New creates a new workflow service
func New(store *engine.Store, repo TimelineRepository, eventBus events.Bus, storageSvc storage.StorageService, bucket string, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		repo:     repo,
		eventBus: eventBus,
		storage:  storageSvc,
		bucket:   bucket,
		log:      log,
	}
}

// Restore rebuilds the in-memory store from persisted snapshots. Called once
// at startup before the HTTP server accepts traffic.
func (s *Service) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snapshots, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("restore timelines: %w", err)
	}
	s.store.Restore(snapshots)
	s.log.Info("restored timelines from snapshots", "count", len(snapshots))
	return nil
}

// CreateTimeline registers a delivery timeline for an onboarded
// client-service pair.
func (s *Service) CreateTimeline(ctx context.Context, req transport.CreateTimelineRequest) (*engine.Timeline, error) {
	t, err := s.store.Create(req.ClientID, req.ServiceID, req.AssignedManager, req.AssignedTester)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, t)

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.TimelineCreated{
			BaseEvent:       events.NewBaseEvent(),
			ClientID:        t.ClientID,
			ServiceID:       t.ServiceID,
			AssignedManager: t.AssignedManager,
			AssignedTester:  t.AssignedTester,
		})
	}
	return t, nil
}

// Get returns a consistent snapshot of one timeline.
func (s *Service) Get(ctx context.Context, clientID, serviceID uuid.UUID) (*engine.Timeline, error) {
	return s.store.Get(clientID, serviceID)
}

// Staff returns the assigned manager and tester of one timeline. Used by the
// notification module to resolve recipients.
func (s *Service) Staff(ctx context.Context, clientID, serviceID uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	t, err := s.store.Get(clientID, serviceID)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return t.AssignedManager, t.AssignedTester, nil
}

// List returns a filtered, sorted, paginated timeline listing.
func (s *Service) List(ctx context.Context, req transport.ListTimelinesRequest) (transport.TimelineListResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	items, total, err := s.store.ProjectList(engine.ListQuery{
		ClientID:  req.ClientID,
		Resolved:  req.Resolved,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
	})
	if err != nil {
		return transport.TimelineListResponse{}, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	return transport.TimelineListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// ProgressOverview aggregates progress per client across their services.
func (s *Service) ProgressOverview(ctx context.Context) []engine.ClientProgress {
	return engine.ProgressByClient(s.store.List())
}

// ApprovalHistory returns the append-only review audit for one timeline.
func (s *Service) ApprovalHistory(ctx context.Context, clientID, serviceID uuid.UUID) (transport.ApprovalHistoryResponse, error) {
	t, err := s.store.Get(clientID, serviceID)
	if err != nil {
		return transport.ApprovalHistoryResponse{}, err
	}
	return transport.ApprovalHistoryResponse{
		ClientID:  clientID,
		ServiceID: serviceID,
		Records:   t.ApprovalHistory(),
	}, nil
}

// Transition runs one action against a timeline, persists the accepted
// result and publishes the matching domain events.
func (s *Service) Transition(ctx context.Context, clientID, serviceID uuid.UUID, actor engine.Actor, action engine.Action) (*transport.TransitionResponse, error) {
	t, outcome, err := s.store.Apply(clientID, serviceID, actor, action)
	if err != nil {
		s.log.TransitionDenied(clientID.String(), serviceID.String(), action.StageID, string(action.Type), err.Error())
		return nil, err
	}

	s.log.Transition(clientID.String(), serviceID.String(), outcome.StageID, string(outcome.Action), outcome.Version)
	s.persist(ctx, t)
	if outcome.NewApproval != nil && s.repo != nil {
		if err := s.repo.AppendApproval(ctx, clientID, serviceID, *outcome.NewApproval); err != nil {
			s.log.DatabaseError("append approval record", err)
		}
	}
	s.publishOutcome(ctx, t, outcome, actor)

	return &transport.TransitionResponse{
		Timeline:  t,
		Action:    string(outcome.Action),
		StageID:   outcome.StageID,
		Version:   outcome.Version,
		Rewound:   outcome.Rewound,
		Escalated: outcome.Escalated,
	}, nil
}

// StartStage moves a stage to in-progress.
func (s *Service) StartStage(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.StartStageRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionStart,
		StageID:         stageID,
		ExpectedVersion: req.ExpectedVersion,
		DueDate:         req.DueDate,
	})
}

// CompleteStage completes a non-checkpoint stage.
func (s *Service) CompleteStage(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.CompleteStageRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionComplete,
		StageID:         stageID,
		ExpectedVersion: req.ExpectedVersion,
	})
}

// BlockStage marks a stage blocked.
func (s *Service) BlockStage(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.ExceptionRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:    engine.ActionBlock,
		StageID: stageID,
		Reason:  req.Reason,
	})
}

// SetProgress updates the fractional progress of an active stage.
func (s *Service) SetProgress(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.SetProgressRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:     engine.ActionSetProgress,
		StageID:  stageID,
		Progress: req.Progress,
	})
}

// SubmitReport hands a report to a review checkpoint.
func (s *Service) SubmitReport(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.SubmitReportRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionSubmitForReview,
		StageID:         stageID,
		ExpectedVersion: req.ExpectedVersion,
		ReportName:      req.ReportName,
	})
}

// Approve accepts a pending report at a checkpoint.
func (s *Service) Approve(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.ReviewRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionApprove,
		StageID:         stageID,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
}

// Reject refuses a pending report, rewinding the timeline.
func (s *Service) Reject(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.ReviewRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionReject,
		StageID:         stageID,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
	})
}

// ClientFeedback records the client's verdict on the final report.
func (s *Service) ClientFeedback(ctx context.Context, clientID, serviceID uuid.UUID, actor engine.Actor, req transport.ClientFeedbackRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:            engine.ActionClientFeedback,
		StageID:         engine.ClientReviewStage,
		ExpectedVersion: req.ExpectedVersion,
		Satisfied:       req.Satisfied,
		Feedback:        req.Feedback,
	})
}

// Reassign swaps the assigned tester and rewinds the execution stages.
func (s *Service) Reassign(ctx context.Context, clientID, serviceID uuid.UUID, actor engine.Actor, req transport.ReassignRequest) (*transport.TransitionResponse, error) {
	prev, err := s.store.Get(clientID, serviceID)
	if err != nil {
		return nil, err
	}
	previousTester := prev.AssignedTester

	resp, err := s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:        engine.ActionReassign,
		NewTesterID: req.NewTesterID,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.TesterReassigned{
			BaseEvent:      events.NewBaseEvent(),
			ClientID:       clientID,
			ServiceID:      serviceID,
			PreviousTester: previousTester,
			NewTester:      req.NewTesterID,
			ReassignedBy:   actor.ID,
			NewVersion:     resp.Version,
		})
	}
	return resp, nil
}

// AddComment posts a comment on a stage.
func (s *Service) AddComment(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, req transport.AddCommentRequest) (*transport.TransitionResponse, error) {
	return s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:    engine.ActionComment,
		StageID: stageID,
		Text:    req.Text,
	})
}

// PresignAttachmentUpload issues a direct-upload ticket for a stage artifact.
// The caller uploads to object storage, then registers the attachment.
func (s *Service) PresignAttachmentUpload(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, req transport.PresignUploadRequest) (*transport.UploadTicketResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("object storage is not configured")
	}
	if _, err := s.store.Get(clientID, serviceID); err != nil {
		return nil, err
	}
	if stageID < 0 || stageID >= engine.NumStages {
		return nil, apperr.NotFound(fmt.Sprintf("stage %d does not exist", stageID))
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	folder := fmt.Sprintf("%s/%s/stage-%d", clientID, serviceID, stageID)
	ticket, err := s.storage.GenerateUploadURL(ctx, s.bucket, folder, req.FileName, contentType, req.SizeBytes)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	return &transport.UploadTicketResponse{
		UploadURL: ticket.URL,
		ObjectKey: ticket.FileKey,
		ExpiresAt: ticket.ExpiresAt,
	}, nil
}

// RegisterAttachment records an uploaded artifact against a stage.
func (s *Service) RegisterAttachment(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, actor engine.Actor, objectKey string, req transport.RegisterAttachmentRequest) (*transport.TransitionResponse, error) {
	resp, err := s.Transition(ctx, clientID, serviceID, actor, engine.Action{
		Type:    engine.ActionAttach,
		StageID: stageID,
		File: engine.Attachment{
			Name:      req.FileName,
			Size:      req.SizeBytes,
			ObjectKey: objectKey,
		},
	})
	if err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.AttachmentUploaded{
			BaseEvent: events.NewBaseEvent(),
			ClientID:  clientID,
			ServiceID: serviceID,
			StageID:   stageID,
			FileName:  req.FileName,
			FileKey:   objectKey,
			SizeBytes: req.SizeBytes,
		})
	}
	return resp, nil
}

// PresignAttachmentDownload issues a download ticket for a stored artifact.
func (s *Service) PresignAttachmentDownload(ctx context.Context, clientID, serviceID uuid.UUID, stageID int, attachmentID uuid.UUID) (*transport.DownloadTicketResponse, error) {
	if s.storage == nil {
		return nil, apperr.Internal("object storage is not configured")
	}
	t, err := s.store.Get(clientID, serviceID)
	if err != nil {
		return nil, err
	}
	if stageID < 0 || stageID >= engine.NumStages {
		return nil, apperr.NotFound(fmt.Sprintf("stage %d does not exist", stageID))
	}

	for _, att := range t.Stages[stageID].Attachments {
		if att.ID == attachmentID {
			ticket, err := s.storage.GenerateDownloadURL(ctx, s.bucket, att.ObjectKey)
			if err != nil {
				return nil, fmt.Errorf("presign download: %w", err)
			}
			return &transport.DownloadTicketResponse{
				DownloadURL: ticket.URL,
				ExpiresAt:   ticket.ExpiresAt,
			}, nil
		}
	}
	return nil, apperr.NotFound("attachment not found")
}

// SweepOverdue marks every in-progress stage past its due date as overdue.
// Runs under the system actor; returns the number of stages flagged.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	system := engine.Actor{Role: engine.RoleSystem}
	flagged := 0

	for _, t := range s.store.List() {
		if t.Resolved {
			continue
		}
		for i := range t.Stages {
			st := t.Stages[i]
			if st.Status != engine.StatusInProgress || st.DueDate == nil || !st.DueDate.Before(now) {
				continue
			}
			if _, err := s.Transition(ctx, t.ClientID, t.ServiceID, system, engine.Action{
				Type:    engine.ActionMarkOverdue,
				StageID: st.ID,
				Reason:  fmt.Sprintf("Due date %s passed without completion.", st.DueDate.Format(time.RFC3339)),
			}); err != nil {
				// Next sweep retries; a race with a just-completed stage is
				// expected and harmless.
				s.log.Warn("overdue sweep skipped stage", "clientId", t.ClientID, "stageId", st.ID, "error", err)
				continue
			}
			flagged++
		}
	}
	return flagged, nil
}

// RegisterEventHandlers subscribes the workflow module to the events it
// reacts to. Roster onboarding creates the delivery timeline.
func (s *Service) RegisterEventHandlers(bus events.Bus) {
	bus.Subscribe(events.ServiceOnboarded{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		evt, ok := e.(events.ServiceOnboarded)
		if !ok {
			return fmt.Errorf("unexpected event type %T", e)
		}
		_, err := s.CreateTimeline(ctx, transport.CreateTimelineRequest{
			ClientID:        evt.ClientID,
			ServiceID:       evt.ServiceID,
			AssignedManager: evt.AssignedManager,
			AssignedTester:  evt.AssignedTester,
		})
		if apperr.Is(err, apperr.KindConflict) {
			// Re-onboarding an existing pair keeps the current timeline.
			return nil
		}
		return err
	}))
}

func (s *Service) persist(ctx context.Context, t *engine.Timeline) {
	if s.repo == nil {
		return
	}
	// Snapshot writes are best-effort: the in-memory state is authoritative
	// and the next accepted transition rewrites the full row.
	if err := s.repo.SaveSnapshot(ctx, t); err != nil {
		s.log.DatabaseError("save timeline snapshot", err)
	}
}

func (s *Service) publishOutcome(ctx context.Context, t *engine.Timeline, out *engine.Outcome, actor engine.Actor) {
	if s.eventBus == nil {
		return
	}

	switch out.Action {
	case engine.ActionStart:
		s.eventBus.Publish(ctx, events.StageStarted{
			BaseEvent: events.NewBaseEvent(),
			ClientID:  t.ClientID,
			ServiceID: t.ServiceID,
			StageID:   out.StageID,
			StageName: engine.StageName(out.StageID),
			ActorID:   actor.ID,
			DueDate:   t.Stages[out.StageID].DueDate,
		})
	case engine.ActionComplete:
		s.eventBus.Publish(ctx, events.StageCompleted{
			BaseEvent:       events.NewBaseEvent(),
			ClientID:        t.ClientID,
			ServiceID:       t.ServiceID,
			StageID:         out.StageID,
			StageName:       engine.StageName(out.StageID),
			ActorID:         actor.ID,
			OverallProgress: t.OverallProgress(),
		})
	case engine.ActionBlock:
		s.eventBus.Publish(ctx, events.StageBlocked{
			BaseEvent: events.NewBaseEvent(),
			ClientID:  t.ClientID,
			ServiceID: t.ServiceID,
			StageID:   out.StageID,
			StageName: engine.StageName(out.StageID),
		})
	case engine.ActionMarkOverdue:
		s.eventBus.Publish(ctx, events.StageOverdue{
			BaseEvent: events.NewBaseEvent(),
			ClientID:  t.ClientID,
			ServiceID: t.ServiceID,
			StageID:   out.StageID,
			StageName: engine.StageName(out.StageID),
			DueDate:   t.Stages[out.StageID].DueDate,
		})
	case engine.ActionSubmitForReview:
		s.eventBus.Publish(ctx, events.ReportSubmitted{
			BaseEvent:     events.NewBaseEvent(),
			ClientID:      t.ClientID,
			ServiceID:     t.ServiceID,
			StageID:       out.StageID,
			ReportName:    t.Stages[out.StageID].ReportName,
			ReportVersion: out.Version,
			SubmittedBy:   actor.ID,
		})
	case engine.ActionApprove, engine.ActionReject, engine.ActionClientFeedback:
		s.publishReviewOutcome(ctx, t, out, actor)
	}
}

func (s *Service) publishReviewOutcome(ctx context.Context, t *engine.Timeline, out *engine.Outcome, actor engine.Actor) {
	rec := out.NewApproval
	if rec == nil {
		return
	}

	if rec.Action == engine.ApprovalApproved {
		s.eventBus.Publish(ctx, events.ReportApproved{
			BaseEvent:     events.NewBaseEvent(),
			ClientID:      t.ClientID,
			ServiceID:     t.ServiceID,
			StageID:       out.StageID,
			ReportName:    rec.ReportName,
			ReportVersion: rec.ReportVersion,
			ReviewedBy:    actor.ID,
			Resolved:      t.Resolved,
		})
		if t.Resolved {
			s.eventBus.Publish(ctx, events.TimelineResolved{
				BaseEvent: events.NewBaseEvent(),
				ClientID:  t.ClientID,
				ServiceID: t.ServiceID,
				Version:   t.Version,
			})
		}
		return
	}

	s.eventBus.Publish(ctx, events.ReportRejected{
		BaseEvent:     events.NewBaseEvent(),
		ClientID:      t.ClientID,
		ServiceID:     t.ServiceID,
		StageID:       out.StageID,
		ReportName:    rec.ReportName,
		ReportVersion: rec.ReportVersion,
		ReviewedBy:    actor.ID,
		Reason:        rec.Reason,
		NewVersion:    out.Version,
	})
	if out.Escalated {
		s.eventBus.Publish(ctx, events.RejectionEscalated{
			BaseEvent:  events.NewBaseEvent(),
			ClientID:   t.ClientID,
			ServiceID:  t.ServiceID,
			Rejections: t.ClientRejectionStreak,
		})
	}
}
