package engine

// Role identifies the kind of actor performing a transition.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleTester  Role = "tester"
	RoleClient  Role = "client"
	// RoleSystem is reserved for automated entries (overdue sweep, audit
	// comments written by the engine itself).
	RoleSystem Role = "system"
)

// ValidRole reports whether the role is one of the known actor roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTester, RoleClient, RoleSystem:
		return true
	}
	return false
}

const (
	// NumStages is the fixed length of the delivery pipeline.
	NumStages = 11

	// ManagerReviewStage is the internal review checkpoint.
	ManagerReviewStage = 9
	// ClientReviewStage is the client sign-off checkpoint and final stage.
	ClientReviewStage = 10

	// ResumptionStage is where every rejection-triggered rewind restarts:
	// rejected work is re-scoped from task assignment, not merely re-executed.
	ResumptionStage = 4

	// TaskExecutionStage is where findings are produced.
	TaskExecutionStage = 6
)

// stageDef is the immutable identity of a pipeline stage.
type stageDef struct {
	Name       string
	Owner      Role
	Checkpoint bool
}

// stageTable is the declarative stage-to-role mapping consulted by the gate
// validator. Order is the pipeline order; indexes are the stage IDs.
var stageTable = [NumStages]stageDef{
	{Name: "Client Onboarding", Owner: RoleAdmin},
	{Name: "Service Agreement", Owner: RoleAdmin},
	{Name: "Scope Definition", Owner: RoleManager},
	{Name: "Resource Planning", Owner: RoleManager},
	{Name: "Task Assignment", Owner: RoleManager},
	{Name: "Environment Setup", Owner: RoleTester},
	{Name: "Task Execution", Owner: RoleTester},
	{Name: "Evidence Collection", Owner: RoleTester},
	{Name: "Report Drafting", Owner: RoleTester},
	{Name: "Manager Review", Owner: RoleManager, Checkpoint: true},
	{Name: "Client Review", Owner: RoleClient, Checkpoint: true},
}

// StageName returns the fixed name for a stage ID, or "" if out of range.
func StageName(stageID int) string {
	if stageID < 0 || stageID >= NumStages {
		return ""
	}
	return stageTable[stageID].Name
}

// StageOwner returns the role expected to drive a stage.
func StageOwner(stageID int) Role {
	if stageID < 0 || stageID >= NumStages {
		return ""
	}
	return stageTable[stageID].Owner
}

// IsCheckpoint reports whether a stage requires formal approval.
func IsCheckpoint(stageID int) bool {
	if stageID < 0 || stageID >= NumStages {
		return false
	}
	return stageTable[stageID].Checkpoint
}
