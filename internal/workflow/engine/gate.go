package engine

import (
	"fmt"

	"assessportal/platform/apperr"
)

// The gate validator decides whether a requested status change on a stage is
// legal given the state of prior stages and the actor's role. It never
// mutates anything; callers apply the change only after an Allow.

// checkStageID rejects references outside the fixed 0..10 pipeline.
func checkStageID(stageID int) error {
	if stageID < 0 || stageID >= NumStages {
		return apperr.NotFound(fmt.Sprintf("stage %d does not exist", stageID))
	}
	return nil
}

// checkOwnerRole enforces the declarative stage-to-role table. Read, comment
// and attachment actions bypass this check.
func checkOwnerRole(stageID int, role Role) error {
	if owner := StageOwner(stageID); role != owner {
		return apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) is owned by role %q, not %q",
			stageID, StageName(stageID), owner, role,
		))
	}
	return nil
}

// checkStartGate allows in-progress only on stage 0 or when the immediately
// preceding stage is completed.
func checkStartGate(t *Timeline, stageID int) error {
	if stageID == 0 {
		return nil
	}
	if t.Stages[stageID-1].Status != StatusCompleted {
		return apperr.GateViolation(fmt.Sprintf(
			"prerequisite stage incomplete: stage %d (%s) is %s",
			stageID-1, StageName(stageID-1), t.Stages[stageID-1].Status,
		))
	}
	return nil
}

// checkSingleActive denies a second concurrent in-progress stage. Blocked
// and overdue stages coexist informationally and do not count.
func checkSingleActive(t *Timeline, stageID int) error {
	for i := range t.Stages {
		if i != stageID && t.Stages[i].Status == StatusInProgress {
			return apperr.GateViolation(fmt.Sprintf(
				"stage %d (%s) is already in progress", i, StageName(i),
			))
		}
	}
	return nil
}

// checkCompleteGate allows completed only from in-progress, re-checking the
// prerequisite gate to guard against stale concurrent requests.
func checkCompleteGate(t *Timeline, stageID int) error {
	if s := t.Stages[stageID].Status; s != StatusInProgress {
		return apperr.GateViolation(fmt.Sprintf(
			"stage %d (%s) cannot complete from %s", stageID, StageName(stageID), s,
		))
	}
	return checkStartGate(t, stageID)
}

// checkExceptionSetter restricts blocked/overdue annotations to roles with
// write access to the pipeline. These states do not advance anything, so the
// prerequisite gate is not consulted.
func checkExceptionSetter(role Role) error {
	switch role {
	case RoleAdmin, RoleManager, RoleSystem:
		return nil
	}
	return apperr.GateViolation(fmt.Sprintf(
		"role %q may not set exception states", role,
	))
}
