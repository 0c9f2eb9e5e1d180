package flow

import (
	"context"
	"errors"
	"flowchain/bizerror"
	"flowchain/domain"
	"flowchain/misc"
	"flowchain/persistence"
	"flowchain/session"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
	"github.com/sony/sonyflake"
)

var (
	idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	// published versions are immutable, cached entries never go stale
	detailCache = cache.New(cache.NoExpiration, 10*time.Minute)

	CreateFlowChainFunc        = CreateFlowChain
	CreateFlowChainVersionFunc = CreateFlowChainVersion
	DetailFlowChainVersionFunc = DetailFlowChainVersion
	QueryFlowChainsFunc        = QueryFlowChains
	DeleteFlowChainFunc        = DeleteFlowChain
)

func CreateFlowChain(c *FlowChainCreation, sec *session.Session) (*domain.FlowChainDetail, error) {
	if !sec.HasRoleSuffix("_" + c.ProjectID.String()) {
		return nil, bizerror.ErrForbidden
	}
	if problems := ValidateCreation(c); len(problems) > 0 {
		return nil, &bizerror.ErrInvalidDefinition{Problems: problems}
	}

	detail, err := buildDetail(misc.NextId(idWorker), 1, c, c.ProjectID)
	if err != nil {
		return nil, err
	}

	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)
	if err := db.Transaction(func(tx *gorm.DB) error {
		return persistDetail(tx, detail)
	}); err != nil {
		return nil, err
	}
	return detail, nil
}

// CreateFlowChainVersion publishes version N+1 of an existing chain.
// Earlier versions stay untouched, in-flight instances keep the version
// they pinned at creation.
func CreateFlowChainVersion(id types.ID, c *FlowChainCreation, sec *session.Session) (*domain.FlowChainDetail, error) {
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)

	var latest domain.FlowChain
	if err := db.Where("id = ?", id).Order("version DESC").First(&latest).Error; err != nil {
		return nil, err
	}
	if !sec.HasRoleSuffix(domain.ProjectRoleManager + "_" + latest.ProjectID.String()) {
		return nil, bizerror.ErrForbidden
	}
	if problems := ValidateCreation(c); len(problems) > 0 {
		return nil, &bizerror.ErrInvalidDefinition{Problems: problems}
	}

	detail, err := buildDetail(id, latest.Version+1, c, latest.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		return persistDetail(tx, detail)
	}); err != nil {
		return nil, err
	}
	return detail, nil
}

func DetailFlowChainVersion(id types.ID, version int, sec *session.Session) (*domain.FlowChainDetail, error) {
	detail, err := GetFlowChainVersion(sec.Context, id, version)
	if err != nil {
		return nil, err
	}
	if !sec.HasProjectViewPerm(detail.ProjectID) {
		return nil, bizerror.ErrForbidden
	}
	return detail, nil
}

// GetFlowChainVersion is the read contract of the definition store: the
// returned aggregate is immutable once any instance fetched it. Callers
// must not modify it.
func GetFlowChainVersion(ctx context.Context, id types.ID, version int) (*domain.FlowChainDetail, error) {
	cacheKey := fmt.Sprintf("%s@%d", id.String(), version)
	if cached, found := detailCache.Get(cacheKey); found {
		return cached.(*domain.FlowChainDetail), nil
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	detail := domain.FlowChainDetail{}
	if err := db.Where("id = ? AND version = ?", id, version).First(&detail.FlowChain).Error; err != nil {
		return nil, err
	}

	var stages []domain.Stage
	if err := db.Where("chain_id = ? AND chain_version = ?", id, version).
		Order("`order` ASC").Find(&stages).Error; err != nil {
		return nil, err
	}
	var steps []domain.Step
	if err := db.Where("chain_id = ? AND chain_version = ?", id, version).
		Order("order_in_stage ASC").Find(&steps).Error; err != nil {
		return nil, err
	}
	var roles []domain.StepRole
	if err := db.Where("chain_id = ? AND chain_version = ?", id, version).Find(&roles).Error; err != nil {
		return nil, err
	}
	var transitions []domain.Transition
	if err := db.Where("chain_id = ? AND chain_version = ?", id, version).
		Order("seq ASC").Find(&transitions).Error; err != nil {
		return nil, err
	}

	rolesByStep := map[types.ID][]domain.StepRole{}
	for _, r := range roles {
		rolesByStep[r.StepID] = append(rolesByStep[r.StepID], r)
	}
	transitionsBySource := map[types.ID][]domain.Transition{}
	for _, t := range transitions {
		transitionsBySource[t.SourceID] = append(transitionsBySource[t.SourceID], t)
	}

	for _, stage := range stages {
		stageDetail := domain.StageDetail{Stage: stage, Transitions: transitionsBySource[stage.ID]}
		for _, step := range steps {
			if step.StageID != stage.ID {
				continue
			}
			stageDetail.Steps = append(stageDetail.Steps, domain.StepDetail{
				Step: step, Roles: rolesByStep[step.ID], Transitions: transitionsBySource[step.ID],
			})
		}
		detail.Stages = append(detail.Stages, stageDetail)
	}

	detailCache.Set(cacheKey, &detail, cache.NoExpiration)
	return &detail, nil
}

func QueryFlowChains(query *FlowChainQuery, sec *session.Session) (*[]domain.FlowChain, error) {
	var chains []domain.FlowChain
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)

	q := db.Where(domain.FlowChain{ProjectID: query.ProjectID})
	if query.Name != "" {
		q = q.Where("name like ?", "%"+query.Name+"%")
	}
	visibleProjects := sec.VisibleProjects()
	if len(visibleProjects) == 0 {
		return &[]domain.FlowChain{}, nil
	}
	q = q.Where("project_id in (?)", visibleProjects)
	if err := q.Order("id ASC, version ASC").Find(&chains).Error; err != nil {
		return nil, err
	}
	return &chains, nil
}

func DeleteFlowChain(id types.ID, sec *session.Session) error {
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)
	var versions []domain.FlowChain
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Find(&versions).Error; err != nil {
			return err
		}
		if len(versions) == 0 {
			return gorm.ErrRecordNotFound
		}
		if !sec.HasRoleSuffix(domain.ProjectRoleManager + "_" + versions[0].ProjectID.String()) {
			return bizerror.ErrForbidden
		}
		if err := isChainReferenced(tx, id); err != nil {
			return err
		}

		if err := tx.Where("id = ?", id).Delete(&domain.FlowChain{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chain_id = ?", id).Delete(&domain.Stage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chain_id = ?", id).Delete(&domain.Step{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chain_id = ?", id).Delete(&domain.StepRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chain_id = ?", id).Delete(&domain.Transition{}).Error; err != nil {
			return err
		}
		return tx.Where("chain_id = ?", id).Delete(&domain.FlowBinding{}).Error
	})
	if err != nil {
		return err
	}

	for _, v := range versions {
		detailCache.Delete(fmt.Sprintf("%s@%d", v.ID.String(), v.Version))
	}
	return nil
}

func isChainReferenced(db *gorm.DB, chainID types.ID) error {
	var instance domain.WorkflowInstance
	err := db.Model(&domain.WorkflowInstance{}).Where("chain_id = ?", chainID).First(&instance).Error
	if err == nil {
		return bizerror.ErrChainReferenced
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}
	return nil
}

func buildDetail(chainID types.ID, version int, c *FlowChainCreation, projectID types.ID) (*domain.FlowChainDetail, error) {
	now := time.Now().Round(time.Millisecond)
	maxVisits := c.MaxStageVisits
	if maxVisits <= 0 {
		maxVisits = domain.DefaultMaxStageVisits
	}

	detail := &domain.FlowChainDetail{
		FlowChain: domain.FlowChain{
			ID: chainID, Version: version, Name: c.Name, Description: c.Description,
			ProjectID: projectID, MaxStageVisits: maxVisits, CreateTime: now,
		},
	}

	stageIDs := map[string]types.ID{}
	stepIDs := map[string]types.ID{}
	for idx, stage := range c.Stages {
		stageDetail := domain.StageDetail{Stage: domain.Stage{
			ID: misc.NextId(idWorker), ChainID: chainID, ChainVersion: version,
			Name: stage.Name, Order: idx + 1, ExecutionMode: stage.ExecutionMode, CreateTime: now,
		}}
		stageIDs[stage.Name] = stageDetail.ID

		for stepIdx, step := range stage.Steps {
			stepDetail := domain.StepDetail{Step: domain.Step{
				ID: misc.NextId(idWorker), ChainID: chainID, ChainVersion: version,
				StageID: stageDetail.ID, Name: step.Name, Action: step.Action,
				AssetType: step.AssetType, ApprovalPolicy: step.ApprovalPolicy,
				OrderInStage: stepIdx + 1, Condition: step.Condition, CreateTime: now,
			}}
			stepIDs[step.Name] = stepDetail.ID
			for _, r := range step.Roles {
				stepDetail.Roles = append(stepDetail.Roles, domain.StepRole{
					ChainID: chainID, ChainVersion: version, StepID: stepDetail.ID,
					Role: r.Role, Required: r.Required,
				})
			}
			stageDetail.Steps = append(stageDetail.Steps, stepDetail)
		}
		detail.Stages = append(detail.Stages, stageDetail)
	}

	// second pass: transition name references resolve against the ids
	// assigned above
	for i := range detail.Stages {
		stage := &detail.Stages[i]
		creation := c.Stages[i]
		for seq, t := range creation.Transitions {
			transition, err := buildTransition(chainID, version, stage.ID, seq+1, &t, stageIDs, stepIDs, now)
			if err != nil {
				return nil, err
			}
			stage.Transitions = append(stage.Transitions, transition)
		}
		for j := range stage.Steps {
			step := &stage.Steps[j]
			for seq, t := range creation.Steps[j].Transitions {
				transition, err := buildTransition(chainID, version, step.ID, seq+1, &t, stageIDs, stepIDs, now)
				if err != nil {
					return nil, err
				}
				step.Transitions = append(step.Transitions, transition)
			}
		}
	}
	return detail, nil
}

func buildTransition(chainID types.ID, version int, sourceID types.ID, seq int, t *TransitionCreation,
	stageIDs, stepIDs map[string]types.ID, now time.Time) (domain.Transition, error) {

	transition := domain.Transition{
		ID: misc.NextId(idWorker), ChainID: chainID, ChainVersion: version,
		SourceID: sourceID, Seq: seq, Condition: t.Condition, CreateTime: now,
	}
	switch {
	case t.TargetOutcome != "":
		transition.TargetOutcome = t.TargetOutcome
	case t.TargetStage != "":
		id, found := stageIDs[t.TargetStage]
		if !found {
			return domain.Transition{}, errors.New("unknown target stage " + t.TargetStage)
		}
		transition.TargetID = id
	default:
		id, found := stepIDs[t.TargetStep]
		if !found {
			return domain.Transition{}, errors.New("unknown target step " + t.TargetStep)
		}
		transition.TargetID = id
	}
	return transition, nil
}

func persistDetail(tx *gorm.DB, detail *domain.FlowChainDetail) error {
	if err := tx.Create(&detail.FlowChain).Error; err != nil {
		return err
	}
	for i := range detail.Stages {
		stage := &detail.Stages[i]
		if err := tx.Create(&stage.Stage).Error; err != nil {
			return err
		}
		for j := range stage.Transitions {
			if err := tx.Create(&stage.Transitions[j]).Error; err != nil {
				return err
			}
		}
		for j := range stage.Steps {
			step := &stage.Steps[j]
			if err := tx.Create(&step.Step).Error; err != nil {
				return err
			}
			for k := range step.Roles {
				if err := tx.Create(&step.Roles[k]).Error; err != nil {
					return err
				}
			}
			for k := range step.Transitions {
				if err := tx.Create(&step.Transitions[k]).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}
