package domain

import (
	"github.com/fundwit/go-commons/types"
)

type InstanceState string

const (
	InstanceRunning InstanceState = "RUNNING"
	InstanceBlocked InstanceState = "BLOCKED"
	InstanceEnded   InstanceState = "ENDED"
)

const BlockReasonStuck = "STUCK_INSTANCE"

type StepRunStatus string

const (
	StepNotStarted       StepRunStatus = "NOT_STARTED"
	StepActive           StepRunStatus = "ACTIVE"
	StepResolved         StepRunStatus = "RESOLVED"
	StepSkipped          StepRunStatus = "SKIPPED"
	StepPendingAbandoned StepRunStatus = "PENDING_ABANDONED"
)

type Resolution string

const (
	ResolutionPending  Resolution = "PENDING"
	ResolutionApproved Resolution = "APPROVED"
	ResolutionRejected Resolution = "REJECTED"
)

type DecisionOutcome string

const (
	DecisionApprove         DecisionOutcome = "APPROVE"
	DecisionReject          DecisionOutcome = "REJECT"
	DecisionRequestRevision DecisionOutcome = "REQUEST_REVISION"
)

// WorkflowInstance is the runtime execution of a pinned flow chain version
// against one asset. Never deleted, immutable once ended.
type WorkflowInstance struct {
	ID           types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ChainID      types.ID `json:"chainId" gorm:"index:idx_instance_chain"`
	ChainVersion int      `json:"chainVersion"`

	AssetID   types.ID `json:"assetId" gorm:"index:idx_instance_asset"`
	AssetType string   `json:"assetType"`
	ProjectID types.ID `json:"projectId"`

	CurrentStageID types.ID        `json:"currentStageId"`
	State          InstanceState   `json:"state"`
	BlockReason    string          `json:"blockReason"`
	Outcome        TerminalOutcome `json:"outcome"`

	// bumped on every mutation, the write guard of the single-writer discipline
	LockVersion int `json:"-"`

	CreateTime types.Timestamp  `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	EndTime    *types.Timestamp `json:"endTime" sql:"type:DATETIME(6)"`
}

func (i *WorkflowInstance) TableName() string {
	return "workflow_instances"
}

func (i *WorkflowInstance) IsTerminal() bool {
	return i.State == InstanceEnded
}

type InstanceStepStatus struct {
	InstanceID types.ID `json:"instanceId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	StepID     types.ID `json:"stepId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	Status     StepRunStatus `json:"status"`
	Resolution Resolution    `json:"resolution"`
	// stage visit the status belongs to, reset on stage re-entry
	Round int `json:"round"`
}

func (s *InstanceStepStatus) TableName() string {
	return "instance_step_statuses"
}

// InstanceStageState carries the rework-loop counter and the entry
// timestamp external deadline policies act on.
type InstanceStageState struct {
	InstanceID types.ID `json:"instanceId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	StageID    types.ID `json:"stageId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	VisitCount int             `json:"visitCount"`
	EnteredAt  types.Timestamp `json:"enteredAt" sql:"type:DATETIME(6)"`
}

func (s *InstanceStageState) TableName() string {
	return "instance_stage_states"
}

// Decision rows are append-only. A role supersedes its own pending decision
// by a newer row, earlier rows stay for audit.
type Decision struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	InstanceID types.ID `json:"instanceId" gorm:"index:idx_decision_instance_step"`
	StepID     types.ID `json:"stepId" gorm:"index:idx_decision_instance_step"`

	Role    string          `json:"role"`
	Actor   types.ID        `json:"actor"`
	Outcome DecisionOutcome `json:"outcome"`
	Round   int             `json:"round"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

func (d *Decision) TableName() string {
	return "decisions"
}

type InstanceDetail struct {
	WorkflowInstance

	StepStatuses []InstanceStepStatus `json:"stepStatuses"`
	StageStates  []InstanceStageState `json:"stageStates"`
	Decisions    []Decision           `json:"decisions"`
}

func (d *InstanceDetail) StepStatus(stepID types.ID) (*InstanceStepStatus, bool) {
	for i := range d.StepStatuses {
		if d.StepStatuses[i].StepID == stepID {
			return &d.StepStatuses[i], true
		}
	}
	return nil, false
}

func (d *InstanceDetail) StageState(stageID types.ID) (*InstanceStageState, bool) {
	for i := range d.StageStates {
		if d.StageStates[i].StageID == stageID {
			return &d.StageStates[i], true
		}
	}
	return nil, false
}

// DecisionsForStep returns the decisions of the given step and round in
// submission order.
func (d *InstanceDetail) DecisionsForStep(stepID types.ID, round int) []Decision {
	var decisions []Decision
	for _, decision := range d.Decisions {
		if decision.StepID == stepID && decision.Round == round {
			decisions = append(decisions, decision)
		}
	}
	return decisions
}

type InstanceQuery struct {
	ProjectID types.ID      `form:"projectId"`
	AssetID   types.ID      `form:"assetId"`
	State     InstanceState `form:"state"`
}
