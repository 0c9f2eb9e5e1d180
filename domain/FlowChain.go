package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type ExecutionMode string

const (
	ExecutionSequential  ExecutionMode = "SEQUENTIAL"
	ExecutionParallel    ExecutionMode = "PARALLEL"
	ExecutionConditional ExecutionMode = "CONDITIONAL"
)

type ApprovalPolicy string

const (
	PolicyAllMustApprove      ApprovalPolicy = "ALL_MUST_APPROVE"
	PolicyAnyCanApprove       ApprovalPolicy = "ANY_CAN_APPROVE"
	PolicyMajorityMustApprove ApprovalPolicy = "MAJORITY_MUST_APPROVE"
)

// StepAction is an opaque comparison key to the engine, the closed set is
// only enforced at publish time.
type StepAction string

var StepActions = []StepAction{
	"UPLOAD", "REVIEW", "EDIT", "PROCESS", "ENHANCE", "CUT",
	"COLOR_GRADE", "ADD_AUDIO", "ADD_TEXT", "PUBLISH", "ARCHIVE",
}

type TerminalOutcome string

const (
	OutcomePublished          TerminalOutcome = "PUBLISHED"
	OutcomeArchived           TerminalOutcome = "ARCHIVED"
	OutcomeRejected           TerminalOutcome = "REJECTED"
	OutcomeCancelled          TerminalOutcome = "CANCELLED"
	OutcomeMaxRetriesExceeded TerminalOutcome = "MAX_RETRIES_EXCEEDED"
)

const (
	ConditionApproved = "APPROVED"
	ConditionRejected = "REJECTED"
	ConditionAny      = "ANY"
)

const DefaultMaxStageVisits = 10

// FlowChain is one published, immutable version of a workflow definition.
// Running instances pin (ID, Version), later versions never affect them.
type FlowChain struct {
	ID      types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Version int      `json:"version" gorm:"primary_key"`

	Name        string   `json:"name"`
	Description string   `json:"description"`
	ProjectID   types.ID `json:"projectId"`

	MaxStageVisits int       `json:"maxStageVisits"`
	CreateTime     time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (c *FlowChain) TableName() string {
	return "flow_chains"
}

type Stage struct {
	ID           types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ChainID      types.ID `json:"chainId" gorm:"index:idx_stage_chain"`
	ChainVersion int      `json:"chainVersion" gorm:"index:idx_stage_chain"`

	Name          string        `json:"name"`
	Order         int           `json:"order" gorm:"column:order"`
	ExecutionMode ExecutionMode `json:"executionMode"`
	CreateTime    time.Time     `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (s *Stage) TableName() string {
	return "flow_chain_stages"
}

type Step struct {
	ID           types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ChainID      types.ID `json:"chainId" gorm:"index:idx_step_chain"`
	ChainVersion int      `json:"chainVersion" gorm:"index:idx_step_chain"`
	StageID      types.ID `json:"stageId" gorm:"index:idx_step_stage"`

	Name           string         `json:"name"`
	Action         StepAction     `json:"action"`
	AssetType      string         `json:"assetType"`
	ApprovalPolicy ApprovalPolicy `json:"approvalPolicy"`

	// meaningful only when the parent stage is SEQUENTIAL
	OrderInStage int `json:"orderInStage"`
	// selection predicate key, meaningful only when the parent stage is CONDITIONAL
	Condition string `json:"condition"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (s *Step) TableName() string {
	return "flow_chain_steps"
}

type StepRole struct {
	ChainID      types.ID `json:"chainId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ChainVersion int      `json:"chainVersion" gorm:"primary_key"`
	StepID       types.ID `json:"stepId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Role         string   `json:"role" gorm:"primary_key"`

	Required bool `json:"required"`
}

func (r *StepRole) TableName() string {
	return "flow_chain_step_roles"
}

// Transition is one conditional edge out of a stage or a step. Edges of a
// source are evaluated in Seq order, the first matching condition wins.
// Either TargetID or TargetOutcome is set, never both.
type Transition struct {
	ID           types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	ChainID      types.ID `json:"chainId" gorm:"index:idx_transition_chain"`
	ChainVersion int      `json:"chainVersion" gorm:"index:idx_transition_chain"`

	SourceID      types.ID        `json:"sourceId"`
	Seq           int             `json:"seq"`
	Condition     string          `json:"condition"`
	TargetID      types.ID        `json:"targetId"`
	TargetOutcome TerminalOutcome `json:"targetOutcome"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (t *Transition) TableName() string {
	return "flow_chain_transitions"
}

func (t Transition) IsTerminal() bool {
	return t.TargetOutcome != ""
}

type FlowChainDetail struct {
	FlowChain

	Stages []StageDetail `json:"stages"`
}

type StageDetail struct {
	Stage

	Steps       []StepDetail `json:"steps"`
	Transitions []Transition `json:"transitions"`
}

type StepDetail struct {
	Step

	Roles       []StepRole   `json:"roles"`
	Transitions []Transition `json:"transitions"`
}

func (c *FlowChainDetail) FindStage(stageID types.ID) (*StageDetail, bool) {
	for i := range c.Stages {
		if c.Stages[i].ID == stageID {
			return &c.Stages[i], true
		}
	}
	return nil, false
}

func (c *FlowChainDetail) FindStep(stepID types.ID) (*StepDetail, *StageDetail, bool) {
	for i := range c.Stages {
		for j := range c.Stages[i].Steps {
			if c.Stages[i].Steps[j].ID == stepID {
				return &c.Stages[i].Steps[j], &c.Stages[i], true
			}
		}
	}
	return nil, nil, false
}

func (c *FlowChainDetail) StageByOrder(order int) (*StageDetail, bool) {
	for i := range c.Stages {
		if c.Stages[i].Order == order {
			return &c.Stages[i], true
		}
	}
	return nil, false
}

func (s *StepDetail) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

func (s *StepDetail) RequiredRoles() []string {
	var roles []string
	for _, r := range s.Roles {
		if r.Required {
			roles = append(roles, r.Role)
		}
	}
	return roles
}

func IsKnownStepAction(action StepAction) bool {
	for _, a := range StepActions {
		if a == action {
			return true
		}
	}
	return false
}

func IsKnownTerminalOutcome(outcome TerminalOutcome) bool {
	switch outcome {
	case OutcomePublished, OutcomeArchived, OutcomeRejected:
		return true
	}
	return false
}
