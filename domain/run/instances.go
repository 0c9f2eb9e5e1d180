package run

import (
	"errors"
	"flowchain/bizerror"
	"flowchain/client/s3"
	"flowchain/domain"
	"flowchain/domain/flow"
	"flowchain/domain/policy"
	"flowchain/event"
	"flowchain/indices"
	"flowchain/misc"
	"flowchain/persistence"
	"flowchain/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateInstanceFunc         = CreateInstance
	CreateInstanceForAssetFunc = CreateInstanceForAsset
	SubmitDecisionFunc         = SubmitDecision
	CancelInstanceFunc         = CancelInstance
	GetInstanceStateFunc       = GetInstanceState
	QueryInstancesFunc         = QueryInstances
)

// errStaleInstance signals a lost lock_version CAS race: the writer must
// re-read and re-apply, never overwrite.
var errStaleInstance = errors.New("stale instance")

const casAttempts = 3

type InstanceCreation struct {
	ChainID      types.ID `json:"chainId" binding:"required"`
	ChainVersion int      `json:"chainVersion" binding:"required"`

	AssetID   types.ID `json:"assetId" binding:"required"`
	AssetType string   `json:"assetType" binding:"required"`
}

type DecisionSubmission struct {
	StepID  types.ID               `json:"stepId" binding:"required"`
	Role    string                 `json:"role" binding:"required"`
	Outcome domain.DecisionOutcome `json:"outcome" binding:"required,oneof=APPROVE REJECT REQUEST_REVISION"`
}

// CreateInstance starts the flow chain version against an asset. The
// version is pinned for the instance lifetime, publishing a newer version
// later never affects it.
func CreateInstance(c *InstanceCreation, sec *session.Session) (*domain.InstanceDetail, error) {
	chain, err := flow.GetFlowChainVersion(sec.Context, c.ChainID, c.ChainVersion)
	if err != nil {
		return nil, err
	}
	if !sec.HasRoleSuffix("_" + chain.ProjectID.String()) {
		return nil, bizerror.ErrForbidden
	}

	inst := &domain.InstanceDetail{WorkflowInstance: domain.WorkflowInstance{
		ID: misc.NextId(idWorker), ChainID: chain.ID, ChainVersion: chain.Version,
		AssetID: c.AssetID, AssetType: c.AssetType, ProjectID: chain.ProjectID,
		State: domain.InstanceRunning, CreateTime: types.CurrentTimestamp(),
	}}

	cas := newCascade(chain, inst)
	cas.logEvent(event.EventInstanceCreated, 0, 0, "")
	cas.start()

	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)
	err = db.Transaction(func(tx *gorm.DB) error {
		var existed domain.WorkflowInstance
		findErr := tx.Where("asset_id = ? AND chain_id = ? AND state <> ?",
			c.AssetID, c.ChainID, domain.InstanceEnded).First(&existed).Error
		if findErr == nil {
			return bizerror.ErrInstanceExisted
		}
		if findErr != gorm.ErrRecordNotFound {
			return findErr
		}

		if err := tx.Create(&inst.WorkflowInstance).Error; err != nil {
			return err
		}
		for i := range inst.StepStatuses {
			if err := tx.Create(&inst.StepStatuses[i]).Error; err != nil {
				return err
			}
		}
		for i := range inst.StageStates {
			if err := tx.Create(&inst.StageStates[i]).Error; err != nil {
				return err
			}
		}
		return createEvents(cas.events, sec, tx)
	})
	if err != nil {
		return nil, err
	}

	afterPersist(inst)
	return inst, nil
}

// CreateInstanceForAsset resolves the project's flow binding for the asset
// type and starts the bound chain version. Assets without an explicit
// binding are refused, there is no implicit default.
func CreateInstanceForAsset(assetID types.ID, assetType string, projectID types.ID,
	sec *session.Session) (*domain.InstanceDetail, error) {

	binding, err := flow.FindFlowBindingFunc(sec.Context, projectID, assetType)
	if err != nil {
		return nil, err
	}
	return CreateInstanceFunc(&InstanceCreation{
		ChainID: binding.ChainID, ChainVersion: binding.ChainVersion,
		AssetID: assetID, AssetType: assetType,
	}, sec)
}

// SubmitDecision records one approval decision and drives the instance as
// far as it can go. An exact duplicate of an already counted decision is a
// no-op returning the current snapshot.
func SubmitDecision(instanceID types.ID, s *DecisionSubmission, sec *session.Session) (*domain.InstanceDetail, error) {
	unlock := lockInstance(instanceID)
	defer unlock()

	for attempt := 0; attempt < casAttempts; attempt++ {
		inst, chain, err := loadInstance(instanceID, sec)
		if err != nil {
			return nil, err
		}
		if inst.IsTerminal() {
			return nil, bizerror.ErrInstanceTerminal
		}
		if inst.State == domain.InstanceBlocked {
			return nil, bizerror.ErrStuckInstance
		}

		step, stage, found := chain.FindStep(s.StepID)
		if !found {
			return nil, bizerror.ErrNotFound
		}
		if !step.HasRole(s.Role) || !sec.HasProjectRole(s.Role, inst.ProjectID) {
			return nil, bizerror.ErrForbidden
		}

		status, found := inst.StepStatus(s.StepID)
		if !found {
			return nil, bizerror.ErrStepNotActive
		}
		for _, d := range inst.DecisionsForStep(s.StepID, status.Round) {
			if d.Role == s.Role && d.Actor == sec.Identity.ID && d.Outcome == s.Outcome {
				return inst, nil
			}
		}
		if status.Status != domain.StepActive {
			return nil, bizerror.ErrStepNotActive
		}

		decision := domain.Decision{
			ID: misc.NextId(idWorker), InstanceID: instanceID, StepID: s.StepID,
			Role: s.Role, Actor: sec.Identity.ID, Outcome: s.Outcome,
			Round: status.Round, CreateTime: types.CurrentTimestamp(),
		}
		inst.Decisions = append(inst.Decisions, decision)

		cas := newCascade(chain, inst)
		cas.logEvent(event.EventDecisionRecorded, stage.ID, step.ID, string(s.Outcome))
		if resolution := policy.Resolve(step, inst.DecisionsForStep(s.StepID, status.Round)); resolution != domain.ResolutionPending {
			cas.onStepResolved(stage, step, resolution)
		}

		err = applyCascade(cas, []domain.Decision{decision}, sec)
		if err == errStaleInstance {
			continue
		}
		if err != nil {
			return nil, err
		}

		afterPersist(inst)
		return inst, nil
	}
	return nil, errStaleInstance
}

// CancelInstance ends the instance with the CANCELLED outcome. Ended
// instances stay as they are.
func CancelInstance(instanceID types.ID, sec *session.Session) (*domain.InstanceDetail, error) {
	unlock := lockInstance(instanceID)
	defer unlock()

	for attempt := 0; attempt < casAttempts; attempt++ {
		inst, chain, err := loadInstance(instanceID, sec)
		if err != nil {
			return nil, err
		}
		if inst.IsTerminal() {
			return nil, bizerror.ErrInstanceTerminal
		}
		if !sec.HasRoleSuffix(domain.ProjectRoleManager + "_" + inst.ProjectID.String()) {
			return nil, bizerror.ErrForbidden
		}

		cas := newCascade(chain, inst)
		cas.skipUnresolved(currentStage(chain, inst))
		cas.endInstance(domain.OutcomeCancelled)

		err = applyCascade(cas, nil, sec)
		if err == errStaleInstance {
			continue
		}
		if err != nil {
			return nil, err
		}

		afterPersist(inst)
		return inst, nil
	}
	return nil, errStaleInstance
}

func GetInstanceState(instanceID types.ID, sec *session.Session) (*domain.InstanceDetail, error) {
	inst, _, err := loadInstance(instanceID, sec)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func QueryInstances(query *domain.InstanceQuery, sec *session.Session) (*[]domain.WorkflowInstance, error) {
	var instances []domain.WorkflowInstance
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)

	q := db.Where(domain.WorkflowInstance{ProjectID: query.ProjectID, AssetID: query.AssetID, State: query.State})
	visibleProjects := sec.VisibleProjects()
	if len(visibleProjects) == 0 {
		return &[]domain.WorkflowInstance{}, nil
	}
	q = q.Where("project_id in (?)", visibleProjects)
	if err := q.Order("id ASC").Find(&instances).Error; err != nil {
		return nil, err
	}
	return &instances, nil
}

func currentStage(chain *domain.FlowChainDetail, inst *domain.InstanceDetail) *domain.StageDetail {
	if stage, found := chain.FindStage(inst.CurrentStageID); found {
		return stage
	}
	return &domain.StageDetail{}
}

func loadInstance(instanceID types.ID, sec *session.Session) (*domain.InstanceDetail, *domain.FlowChainDetail, error) {
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)

	inst := domain.InstanceDetail{}
	if err := db.Where("id = ?", instanceID).First(&inst.WorkflowInstance).Error; err != nil {
		return nil, nil, err
	}
	if !sec.HasProjectViewPerm(inst.ProjectID) {
		return nil, nil, bizerror.ErrForbidden
	}

	if err := db.Where("instance_id = ?", instanceID).Find(&inst.StepStatuses).Error; err != nil {
		return nil, nil, err
	}
	if err := db.Where("instance_id = ?", instanceID).Find(&inst.StageStates).Error; err != nil {
		return nil, nil, err
	}
	if err := db.Where("instance_id = ?", instanceID).Order("id ASC").Find(&inst.Decisions).Error; err != nil {
		return nil, nil, err
	}

	chain, err := flow.GetFlowChainVersion(sec.Context, inst.ChainID, inst.ChainVersion)
	if err != nil {
		return nil, nil, err
	}
	return &inst, chain, nil
}

// applyCascade persists the mutated instance in one transaction. The
// instance row is guarded by a lock_version CAS, statuses and stage states
// are replaced wholesale, decisions and events are appended.
func applyCascade(c *cascade, newDecisions []domain.Decision, sec *session.Session) error {
	inst := c.inst
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)

	return db.Transaction(func(tx *gorm.DB) error {
		changes := map[string]interface{}{
			"current_stage_id": inst.CurrentStageID,
			"state":            inst.State,
			"block_reason":     inst.BlockReason,
			"outcome":          inst.Outcome,
			"lock_version":     inst.LockVersion + 1,
		}
		if inst.EndTime != nil {
			changes["end_time"] = *inst.EndTime
		}
		update := tx.Model(&domain.WorkflowInstance{}).
			Where("id = ? AND lock_version = ?", inst.ID, inst.LockVersion).
			Updates(changes)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected != 1 {
			return errStaleInstance
		}
		inst.LockVersion++

		if err := tx.Where("instance_id = ?", inst.ID).Delete(&domain.InstanceStepStatus{}).Error; err != nil {
			return err
		}
		for i := range inst.StepStatuses {
			if err := tx.Create(&inst.StepStatuses[i]).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("instance_id = ?", inst.ID).Delete(&domain.InstanceStageState{}).Error; err != nil {
			return err
		}
		for i := range inst.StageStates {
			if err := tx.Create(&inst.StageStates[i]).Error; err != nil {
				return err
			}
		}
		for i := range newDecisions {
			if err := tx.Create(&newDecisions[i]).Error; err != nil {
				return err
			}
		}
		return createEvents(c.events, sec, tx)
	})
}

func createEvents(events []event.InstanceEvent, sec *session.Session, tx *gorm.DB) error {
	for i := range events {
		if err := event.CreateInstanceEventFunc(&events[i], &sec.Identity, tx); err != nil {
			return err
		}
	}
	return nil
}

// afterPersist runs the best-effort side effects of a committed blocked or
// terminal instance. Failures are logged and left to the full sync.
func afterPersist(inst *domain.InstanceDetail) {
	if inst.State == domain.InstanceRunning {
		return
	}
	if err := indices.IndexInstanceFunc(inst); err != nil {
		logrus.Warnln("failed to index instance", inst.ID, err)
	}
	if inst.State != domain.InstanceEnded {
		return
	}
	if err := s3.ArchiveInstanceFunc(inst); err != nil {
		logrus.Warnln("failed to archive instance", inst.ID, err)
	}
}
