package engine_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"assessportal/internal/workflow/engine"
	"assessportal/platform/apperr"

	"github.com/google/uuid"
)

var (
	admin   = engine.Actor{ID: uuid.New(), Name: "Ada Admin", Role: engine.RoleAdmin}
	manager = engine.Actor{ID: uuid.New(), Name: "Mona Manager", Role: engine.RoleManager}
	tester  = engine.Actor{ID: uuid.New(), Name: "Theo Tester", Role: engine.RoleTester}
	client  = engine.Actor{ID: uuid.New(), Name: "Cleo Client", Role: engine.RoleClient}
)

func actorFor(stageID int) engine.Actor {
	switch engine.StageOwner(stageID) {
	case engine.RoleAdmin:
		return admin
	case engine.RoleManager:
		return manager
	case engine.RoleTester:
		return tester
	case engine.RoleClient:
		return client
	}
	return admin
}

type testEnv struct {
	Store     *engine.Store
	ClientID  uuid.UUID
	ServiceID uuid.UUID
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	s := engine.NewStore()
	s.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	clientID := uuid.New()
	serviceID := uuid.New()
	if _, err := s.Create(clientID, serviceID, manager.ID, tester.ID); err != nil {
		t.Fatalf("create timeline: %v", err)
	}
	return testEnv{Store: s, ClientID: clientID, ServiceID: serviceID}
}

func (e testEnv) apply(t *testing.T, actor engine.Actor, action engine.Action) *engine.Timeline {
	t.Helper()
	tl, _, err := e.Store.Apply(e.ClientID, e.ServiceID, actor, action)
	if err != nil {
		t.Fatalf("apply %s on stage %d: %v", action.Type, action.StageID, err)
	}
	return tl
}

// completeThrough drives stages 0..upTo to completed using each stage's
// owner role. Stage 0 is already in progress on a fresh timeline.
func (e testEnv) completeThrough(t *testing.T, upTo int) {
	t.Helper()
	for i := 0; i <= upTo; i++ {
		actor := actorFor(i)
		if i > 0 {
			e.apply(t, actor, engine.Action{Type: engine.ActionStart, StageID: i})
		}
		e.apply(t, actor, engine.Action{Type: engine.ActionComplete, StageID: i})
	}
}

// submitManagerReview brings stage 9 to pending-review.
func (e testEnv) submitManagerReview(t *testing.T, reportName string) {
	t.Helper()
	e.apply(t, manager, engine.Action{Type: engine.ActionStart, StageID: engine.ManagerReviewStage})
	e.apply(t, tester, engine.Action{
		Type:       engine.ActionSubmitForReview,
		StageID:    engine.ManagerReviewStage,
		ReportName: reportName,
	})
}

func TestFreshTimelineStartsAtStageZero(t *testing.T) {
	env := newTestEnv(t)
	tl, err := env.Store.Get(env.ClientID, env.ServiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tl.Version != 1 {
		t.Errorf("version = %d, want 1", tl.Version)
	}
	if tl.CurrentStageID != 0 {
		t.Errorf("currentStageId = %d, want 0", tl.CurrentStageID)
	}
	if tl.Stages[0].Status != engine.StatusInProgress {
		t.Errorf("stage 0 status = %s, want in-progress", tl.Stages[0].Status)
	}
	for i := 1; i < engine.NumStages; i++ {
		if tl.Stages[i].Status != engine.StatusPending {
			t.Errorf("stage %d status = %s, want pending", i, tl.Stages[i].Status)
		}
	}
}

// Scenario A: starting stage 1 while stage 0 is still in progress is a gate
// violation.
func TestStartDeniedWhilePrerequisiteIncomplete(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, admin, engine.Action{
		Type: engine.ActionStart, StageID: 1,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation", err)
	}
}

func TestRoleMismatchDenied(t *testing.T) {
	env := newTestEnv(t)
	// Stage 0 is admin-owned; the tester may not complete it.
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, tester, engine.Action{
		Type: engine.ActionComplete, StageID: 0,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation", err)
	}

	// Comments are open to any authenticated participant.
	tl := env.apply(t, tester, engine.Action{Type: engine.ActionComment, StageID: 0, Text: "scope question"})
	if got := len(tl.Stages[0].Comments); got != 1 {
		t.Fatalf("comments = %d, want 1", got)
	}
}

func TestCheckpointCannotCompleteDirectly(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.apply(t, manager, engine.Action{Type: engine.ActionStart, StageID: engine.ManagerReviewStage})

	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionComplete, StageID: engine.ManagerReviewStage,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation", err)
	}
}

func TestApproveRequiresSubmission(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.apply(t, manager, engine.Action{Type: engine.ActionStart, StageID: engine.ManagerReviewStage})

	// Stage is in progress but nothing was submitted yet.
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionApprove, StageID: engine.ManagerReviewStage,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation", err)
	}
}

// Scenario B: rejection at manager review records history, bumps the version
// and rewinds to task assignment.
func TestManagerRejectionRewindsToTaskAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "Pentest Report")

	tl, outcome, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type:    engine.ActionReject,
		StageID: engine.ManagerReviewStage,
		Reason:  "missing evidence",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !outcome.Rewound {
		t.Errorf("outcome.Rewound = false, want true")
	}
	if tl.Version != 2 {
		t.Errorf("version = %d, want 2", tl.Version)
	}
	if tl.CurrentStageID != engine.ResumptionStage {
		t.Errorf("currentStageId = %d, want %d", tl.CurrentStageID, engine.ResumptionStage)
	}
	for i := engine.ResumptionStage; i < engine.NumStages; i++ {
		if tl.Stages[i].Status != engine.StatusPending {
			t.Errorf("stage %d status = %s, want pending", i, tl.Stages[i].Status)
		}
		if tl.Stages[i].CompletedAt != nil {
			t.Errorf("stage %d completedAt not cleared", i)
		}
	}
	for i := 0; i < engine.ResumptionStage; i++ {
		if tl.Stages[i].Status != engine.StatusCompleted {
			t.Errorf("stage %d status = %s, want completed (history before resumption point)", i, tl.Stages[i].Status)
		}
	}

	history := tl.ApprovalHistory()
	if len(history) != 1 {
		t.Fatalf("approval history = %d records, want 1", len(history))
	}
	if history[0].Action != engine.ApprovalRejected || history[0].ReportVersion != 1 {
		t.Errorf("record = {%s v%d}, want {rejected v1}", history[0].Action, history[0].ReportVersion)
	}

	// Audit comment lands on the resumption stage.
	comments := tl.Stages[engine.ResumptionStage].Comments
	if len(comments) == 0 || !comments[len(comments)-1].IsSystem {
		t.Errorf("expected a system comment on stage %d after rewind", engine.ResumptionStage)
	}
}

// Scenario C: redo stages 4..8, resubmit and approve; the new record carries
// the bumped report version and stage 10 unlocks.
func TestResubmissionAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "Pentest Report")
	env.apply(t, manager, engine.Action{
		Type: engine.ActionReject, StageID: engine.ManagerReviewStage, Reason: "missing evidence",
	})

	for i := engine.ResumptionStage; i <= 8; i++ {
		actor := actorFor(i)
		env.apply(t, actor, engine.Action{Type: engine.ActionStart, StageID: i})
		env.apply(t, actor, engine.Action{Type: engine.ActionComplete, StageID: i})
	}
	env.submitManagerReview(t, "Pentest Report rev2")

	tl, _, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionApprove, StageID: engine.ManagerReviewStage,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	history := tl.ApprovalHistory()
	if len(history) != 2 {
		t.Fatalf("approval history = %d records, want 2", len(history))
	}
	last := history[len(history)-1]
	if last.Action != engine.ApprovalApproved || last.ReportVersion != 2 {
		t.Errorf("record = {%s v%d}, want {approved v2}", last.Action, last.ReportVersion)
	}
	if tl.Stages[engine.ManagerReviewStage].Status != engine.StatusCompleted {
		t.Errorf("stage 9 not completed after approval")
	}

	// Stage 10 is now unlocked for the client.
	env.apply(t, client, engine.Action{Type: engine.ActionStart, StageID: engine.ClientReviewStage})
}

// Scenario D: unsatisfied client feedback rewinds exactly like a stage-9
// rejection.
func TestClientDissatisfactionRewinds(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "Pentest Report")
	env.apply(t, manager, engine.Action{Type: engine.ActionApprove, StageID: engine.ManagerReviewStage})
	env.apply(t, client, engine.Action{Type: engine.ActionStart, StageID: engine.ClientReviewStage})
	env.apply(t, manager, engine.Action{Type: engine.ActionSubmitForReview, StageID: engine.ClientReviewStage})

	tl, _, err := env.Store.Apply(env.ClientID, env.ServiceID, client, engine.Action{
		Type:      engine.ActionClientFeedback,
		StageID:   engine.ClientReviewStage,
		Satisfied: false,
		Feedback:  "need more detail",
	})
	if err != nil {
		t.Fatalf("client feedback: %v", err)
	}
	if tl.Version != 2 {
		t.Errorf("version = %d, want 2", tl.Version)
	}
	if tl.CurrentStageID != engine.ResumptionStage {
		t.Errorf("currentStageId = %d, want %d", tl.CurrentStageID, engine.ResumptionStage)
	}
	if tl.Resolved {
		t.Errorf("timeline resolved after dissatisfaction")
	}
}

func TestSatisfiedClientFeedbackResolvesTimeline(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "Pentest Report")
	env.apply(t, manager, engine.Action{Type: engine.ActionApprove, StageID: engine.ManagerReviewStage})
	env.apply(t, client, engine.Action{Type: engine.ActionStart, StageID: engine.ClientReviewStage})
	env.apply(t, manager, engine.Action{Type: engine.ActionSubmitForReview, StageID: engine.ClientReviewStage})

	tl := env.apply(t, client, engine.Action{
		Type: engine.ActionClientFeedback, StageID: engine.ClientReviewStage, Satisfied: true,
	})
	if !tl.Resolved {
		t.Fatalf("timeline not resolved after client sign-off")
	}
	if got := tl.OverallProgress(); got != 100 {
		t.Errorf("overallProgress = %d, want 100", got)
	}
}

// Scenario E: a rejection without a reason is a validation error and leaves
// absolutely nothing changed.
func TestRejectWithoutReasonMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "Pentest Report")

	before, err := env.Store.Get(env.ClientID, env.ServiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	_, _, err = env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionReject, StageID: engine.ManagerReviewStage, Reason: "   ",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	after, err := env.Store.Get(env.ClientID, env.ServiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Version != before.Version {
		t.Errorf("version changed: %d -> %d", before.Version, after.Version)
	}
	if len(after.ApprovalHistory()) != len(before.ApprovalHistory()) {
		t.Errorf("approval history changed on failed reject")
	}
	if after.Stages[engine.ManagerReviewStage].Review != engine.ReviewPending {
		t.Errorf("review state changed on failed reject")
	}
}

// Property: stage n is never completed while stage n-1 is not.
func TestCompletionOrderInvariant(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "r")
	env.apply(t, manager, engine.Action{
		Type: engine.ActionReject, StageID: engine.ManagerReviewStage, Reason: "rework",
	})

	tl, err := env.Store.Get(env.ClientID, env.ServiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for i := 1; i < engine.NumStages; i++ {
		if tl.Stages[i].Status == engine.StatusCompleted && tl.Stages[i-1].Status != engine.StatusCompleted {
			t.Errorf("stage %d completed while stage %d is %s", i, i-1, tl.Stages[i-1].Status)
		}
	}
}

func TestOverallProgressMatchesStageStatuses(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 3)
	env.apply(t, manager, engine.Action{Type: engine.ActionStart, StageID: 4})
	tl := env.apply(t, manager, engine.Action{Type: engine.ActionSetProgress, StageID: 4, Progress: 50})

	// 4 completed stages plus half of stage 4, out of 11.
	points := 4*100.0 + 50.0
	want := int(points / 11.0)
	got := tl.OverallProgress()
	if got != want && got != want+1 {
		t.Errorf("overallProgress = %d, want about %d", got, want)
	}

	// Recomputing from statuses yields the same value: nothing is cached.
	again, err := env.Store.Get(env.ClientID, env.ServiceID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.OverallProgress() != got {
		t.Errorf("recomputed progress %d != reported %d", again.OverallProgress(), got)
	}
}

func TestReassignSwapsTesterAndRewinds(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 6)

	replacement := uuid.New()
	tl, outcome, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type:        engine.ActionReassign,
		NewTesterID: replacement,
		Reason:      "tester unavailable",
	})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if tl.AssignedTester != replacement {
		t.Errorf("assignedTester = %s, want %s", tl.AssignedTester, replacement)
	}
	if tl.Version != 2 || tl.CurrentStageID != engine.ResumptionStage {
		t.Errorf("version/current = %d/%d, want 2/%d", tl.Version, tl.CurrentStageID, engine.ResumptionStage)
	}
	if !outcome.Rewound {
		t.Errorf("outcome.Rewound = false, want true")
	}

	if tl.Stages[6].Status != engine.StatusPending {
		t.Errorf("stage 6 = %s, want pending", tl.Stages[6].Status)
	}
}

func TestReassignRequiresReplacementTester(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionReassign,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestExpectedVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, admin, engine.Action{
		Type:            engine.ActionComplete,
		StageID:         0,
		ExpectedVersion: 7,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestUnknownPairIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Store.Get(uuid.New(), env.ServiceID)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestEscalationAfterRepeatedClientRejections(t *testing.T) {
	env := newTestEnv(t)

	redoAndReject := func(feedback string) *engine.Outcome {
		t.Helper()
		tl, err := env.Store.Get(env.ClientID, env.ServiceID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		start := 0
		if tl.Version > 1 {
			start = engine.ResumptionStage
		}
		for i := start; i <= 8; i++ {
			actor := actorFor(i)
			if i > 0 {
				env.apply(t, actor, engine.Action{Type: engine.ActionStart, StageID: i})
			}
			env.apply(t, actor, engine.Action{Type: engine.ActionComplete, StageID: i})
		}
		env.submitManagerReview(t, "r")
		env.apply(t, manager, engine.Action{Type: engine.ActionApprove, StageID: engine.ManagerReviewStage})
		env.apply(t, client, engine.Action{Type: engine.ActionStart, StageID: engine.ClientReviewStage})
		env.apply(t, manager, engine.Action{Type: engine.ActionSubmitForReview, StageID: engine.ClientReviewStage})
		_, outcome, err := env.Store.Apply(env.ClientID, env.ServiceID, client, engine.Action{
			Type: engine.ActionClientFeedback, StageID: engine.ClientReviewStage,
			Satisfied: false, Feedback: feedback,
		})
		if err != nil {
			t.Fatalf("client rejection: %v", err)
		}
		return outcome
	}

	if out := redoAndReject("first pass"); out.Escalated {
		t.Errorf("escalated after 1 rejection")
	}
	if out := redoAndReject("second pass"); out.Escalated {
		t.Errorf("escalated after 2 rejections")
	}
	if out := redoAndReject("third pass"); !out.Escalated {
		t.Errorf("not escalated after 3 consecutive rejections")
	}
}

func TestConcurrentTimelinesProgressIndependently(t *testing.T) {
	s := engine.NewStore()
	s.Now = time.Now

	const n = 8
	clients := make([]uuid.UUID, n)
	services := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		clients[i] = uuid.New()
		services[i] = uuid.New()
		if _, err := s.Create(clients[i], services[i], manager.ID, tester.ID); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for stage := 0; stage <= 8; stage++ {
				actor := actorFor(stage)
				if stage > 0 {
					if _, _, err := s.Apply(clients[i], services[i], actor, engine.Action{Type: engine.ActionStart, StageID: stage}); err != nil {
						errs <- fmt.Errorf("timeline %d start %d: %w", i, stage, err)
						return
					}
				}
				if _, _, err := s.Apply(clients[i], services[i], actor, engine.Action{Type: engine.ActionComplete, StageID: stage}); err != nil {
					errs <- fmt.Errorf("timeline %d complete %d: %w", i, stage, err)
					return
				}
				// Concurrent projections must always see a consistent snapshot.
				if _, _, err := engine.Project(s.List(), engine.ListQuery{}); err != nil {
					errs <- fmt.Errorf("timeline %d project: %w", i, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for i := 0; i < n; i++ {
		tl, err := s.Get(clients[i], services[i])
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if tl.Stages[8].Status != engine.StatusCompleted {
			t.Errorf("timeline %d stage 8 = %s, want completed", i, tl.Stages[8].Status)
		}
	}
}

func TestProjectionFilterSortPaginate(t *testing.T) {
	s := engine.NewStore()
	s.Now = time.Now

	clientA := uuid.New()
	clientB := uuid.New()
	pairs := []struct {
		client  uuid.UUID
		service uuid.UUID
		upTo    int
	}{
		{clientA, uuid.New(), 2},
		{clientA, uuid.New(), 5},
		{clientB, uuid.New(), 0},
	}
	for _, p := range pairs {
		if _, err := s.Create(p.client, p.service, manager.ID, tester.ID); err != nil {
			t.Fatalf("create: %v", err)
		}
		for i := 0; i <= p.upTo; i++ {
			actor := actorFor(i)
			if i > 0 {
				if _, _, err := s.Apply(p.client, p.service, actor, engine.Action{Type: engine.ActionStart, StageID: i}); err != nil {
					t.Fatalf("start %d: %v", i, err)
				}
			}
			if _, _, err := s.Apply(p.client, p.service, actor, engine.Action{Type: engine.ActionComplete, StageID: i}); err != nil {
				t.Fatalf("complete %d: %v", i, err)
			}
		}
	}

	page, total, err := s.ProjectList(engine.ListQuery{ClientID: &clientA, SortBy: "progress", SortOrder: "desc", Limit: 1})
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(page) != 1 {
		t.Fatalf("page = %d items, want 1", len(page))
	}
	if page[0].CurrentStageID != 5 {
		t.Errorf("top result currentStageId = %d, want 5 (furthest progress first)", page[0].CurrentStageID)
	}

	byClient := engine.ProgressByClient(s.List())
	if len(byClient) != 2 {
		t.Fatalf("byClient = %d entries, want 2", len(byClient))
	}

	_, _, err = s.ProjectList(engine.ListQuery{SortBy: "bogus"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("err = %v, want validation error for bad sort field", err)
	}
}

func TestAttachmentAndCommentValidation(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, tester, engine.Action{
		Type: engine.ActionComment, StageID: 0, Text: "  ",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("empty comment err = %v, want validation", err)
	}

	_, _, err = env.Store.Apply(env.ClientID, env.ServiceID, tester, engine.Action{
		Type: engine.ActionAttach, StageID: 0,
		File: engine.Attachment{Name: "scan.txt"},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad attachment err = %v, want validation", err)
	}

	tl := env.apply(t, tester, engine.Action{
		Type: engine.ActionAttach, StageID: 0,
		File: engine.Attachment{Name: "scan.txt", Size: 2048, ObjectKey: "stage-0/scan.txt"},
	})
	atts := tl.Stages[0].Attachments
	if len(atts) != 1 || atts[0].UploadedBy != tester.ID {
		t.Fatalf("attachment not recorded: %+v", atts)
	}
}

func TestBlockAndOverdueAnnotations(t *testing.T) {
	env := newTestEnv(t)

	// Tester may not set exception states.
	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, tester, engine.Action{
		Type: engine.ActionBlock, StageID: 0,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation", err)
	}

	tl := env.apply(t, manager, engine.Action{Type: engine.ActionBlock, StageID: 0, Reason: "waiting on contract"})
	if tl.Stages[0].Status != engine.StatusBlocked {
		t.Errorf("stage 0 = %s, want blocked", tl.Stages[0].Status)
	}

	// Blocked stages resume through start without re-clearing the gate on
	// stage 0.
	tl = env.apply(t, admin, engine.Action{Type: engine.ActionStart, StageID: 0})
	if tl.Stages[0].Status != engine.StatusInProgress {
		t.Errorf("stage 0 = %s, want in-progress after resume", tl.Stages[0].Status)
	}

	sys := engine.Actor{Role: engine.RoleSystem}
	tl, _, err = env.Store.Apply(env.ClientID, env.ServiceID, sys, engine.Action{
		Type: engine.ActionMarkOverdue, StageID: 0,
	})
	if err != nil {
		t.Fatalf("system markOverdue: %v", err)
	}
	if tl.Stages[0].Status != engine.StatusOverdue {
		t.Errorf("stage 0 = %s, want overdue", tl.Stages[0].Status)
	}
}

func TestResolvedTimelineAcceptsOnlyAnnotations(t *testing.T) {
	env := newTestEnv(t)
	env.completeThrough(t, 8)
	env.submitManagerReview(t, "r")
	env.apply(t, manager, engine.Action{Type: engine.ActionApprove, StageID: engine.ManagerReviewStage})
	env.apply(t, client, engine.Action{Type: engine.ActionStart, StageID: engine.ClientReviewStage})
	env.apply(t, manager, engine.Action{Type: engine.ActionSubmitForReview, StageID: engine.ClientReviewStage})
	env.apply(t, client, engine.Action{Type: engine.ActionApprove, StageID: engine.ClientReviewStage})

	_, _, err := env.Store.Apply(env.ClientID, env.ServiceID, manager, engine.Action{
		Type: engine.ActionStart, StageID: 4,
	})
	if !apperr.Is(err, apperr.KindGateViolation) {
		t.Fatalf("err = %v, want gate violation on resolved timeline", err)
	}

	env.apply(t, client, engine.Action{Type: engine.ActionComment, StageID: engine.ClientReviewStage, Text: "thanks"})
}
