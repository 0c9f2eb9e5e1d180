package event

import (
	"flowchain/misc"
	"flowchain/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateInstanceEventFunc = CreateInstanceEvent
	QueryInstanceEventsFunc = QueryInstanceEvents
)

func CreateInstanceEvent(e *InstanceEvent, identity *session.Identity, db *gorm.DB) error {
	record := InstanceEventRecord{
		ID:            misc.NextId(idWorker),
		InstanceEvent: *e,
		Timestamp:     types.CurrentTimestamp(),
		Synced:        false,
	}
	if identity != nil {
		record.CreatorId = identity.ID
		record.CreatorName = identity.Name
	}
	return db.Create(&record).Error
}

func QueryInstanceEvents(instanceID types.ID, db *gorm.DB) ([]InstanceEventRecord, error) {
	var records []InstanceEventRecord
	if err := db.Where("instance_id = ?", instanceID).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
