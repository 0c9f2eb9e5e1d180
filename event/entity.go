package event

import (
	"github.com/fundwit/go-commons/types"
)

type EventCategory string

const (
	EventInstanceCreated  EventCategory = "INSTANCE_CREATED"
	EventStageEntered     EventCategory = "STAGE_ENTERED"
	EventStepActivated    EventCategory = "STEP_ACTIVATED"
	EventDecisionRecorded EventCategory = "DECISION_RECORDED"
	EventStepResolved     EventCategory = "STEP_RESOLVED"
	EventStepSkipped      EventCategory = "STEP_SKIPPED"
	EventStepsAbandoned   EventCategory = "STEPS_ABANDONED"
	EventStageResolved    EventCategory = "STAGE_RESOLVED"
	EventInstanceBlocked  EventCategory = "INSTANCE_BLOCKED"
	EventInstanceEnded    EventCategory = "INSTANCE_ENDED"
)

// InstanceEvent is one entry of the append-only stage/step transition log
// of an instance.
type InstanceEvent struct {
	InstanceID types.ID      `json:"instanceId" gorm:"index:idx_event_instance"`
	Category   EventCategory `json:"category"`

	StageID types.ID `json:"stageId"`
	StepID  types.ID `json:"stepId"`
	Detail  string   `json:"detail"`

	CreatorId   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`
}

type InstanceEventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`

	InstanceEvent

	Timestamp types.Timestamp `json:"timestamp" sql:"type:DATETIME(6)"`
	Synced    bool            `json:"synced"`
}

func (r *InstanceEventRecord) TableName() string {
	return "instance_events"
}
