package flow

import (
	"flowchain/domain"

	"github.com/fundwit/go-commons/types"
)

// FlowChainCreation is the normalized definition graph the authoring UI
// submits. Stages are ordered as given, transition targets reference
// stages and steps by their unique names, stable ids are assigned at
// publish time.
type FlowChainCreation struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	ProjectID   types.ID `json:"projectId" binding:"required"`

	// rework loop bound, 0 means the default of 10
	MaxStageVisits int `json:"maxStageVisits"`

	Stages []StageCreation `json:"stages" binding:"required,dive"`
}

type StageCreation struct {
	Name          string               `json:"name" binding:"required"`
	ExecutionMode domain.ExecutionMode `json:"executionMode" binding:"required"`
	Steps         []StepCreation       `json:"steps" binding:"required,dive"`
	Transitions   []TransitionCreation `json:"transitions" binding:"dive"`
}

type StepCreation struct {
	Name           string                `json:"name" binding:"required"`
	Action         domain.StepAction     `json:"action" binding:"required"`
	AssetType      string                `json:"assetType"`
	ApprovalPolicy domain.ApprovalPolicy `json:"approvalPolicy" binding:"required"`

	// selection predicate, CONDITIONAL stages only
	Condition string `json:"condition"`

	Roles       []RoleAssignment     `json:"roles" binding:"required,dive"`
	Transitions []TransitionCreation `json:"transitions" binding:"dive"`
}

type RoleAssignment struct {
	Role     string `json:"role" binding:"required"`
	Required bool   `json:"required"`
}

// TransitionCreation targets exactly one of: a stage by name, a step by
// name, or a terminal outcome.
type TransitionCreation struct {
	Condition     string                 `json:"condition" binding:"required"`
	TargetStage   string                 `json:"targetStage"`
	TargetStep    string                 `json:"targetStep"`
	TargetOutcome domain.TerminalOutcome `json:"targetOutcome"`
}

type FlowChainQuery struct {
	ProjectID types.ID `form:"projectId"`
	Name      string   `form:"name"`
}

type FlowBindingSaving struct {
	ProjectID    types.ID `json:"projectId" binding:"required"`
	AssetType    string   `json:"assetType" binding:"required"`
	ChainID      types.ID `json:"chainId" binding:"required"`
	ChainVersion int      `json:"chainVersion" binding:"required"`
}
