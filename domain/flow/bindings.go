package flow

import (
	"context"
	"flowchain/bizerror"
	"flowchain/domain"
	"flowchain/persistence"
	"flowchain/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	SaveFlowBindingFunc   = SaveFlowBinding
	QueryFlowBindingsFunc = QueryFlowBindings
	FindFlowBindingFunc   = FindFlowBinding
)

// SaveFlowBinding sets the default flow chain version of an asset type
// within a project, replacing any previous binding.
func SaveFlowBinding(s *FlowBindingSaving, sec *session.Session) (*domain.FlowBinding, error) {
	if !sec.HasRoleSuffix(domain.ProjectRoleManager + "_" + s.ProjectID.String()) {
		return nil, bizerror.ErrForbidden
	}

	binding := &domain.FlowBinding{
		ProjectID: s.ProjectID, AssetType: s.AssetType,
		ChainID: s.ChainID, ChainVersion: s.ChainVersion,
		CreateTime: time.Now().Round(time.Millisecond),
	}

	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)
	err := db.Transaction(func(tx *gorm.DB) error {
		var chain domain.FlowChain
		if err := tx.Where("id = ? AND version = ?", s.ChainID, s.ChainVersion).First(&chain).Error; err != nil {
			return err
		}
		if chain.ProjectID != s.ProjectID {
			return bizerror.ErrForbidden
		}

		if err := tx.Where("project_id = ? AND asset_type = ?", s.ProjectID, s.AssetType).
			Delete(&domain.FlowBinding{}).Error; err != nil {
			return err
		}
		return tx.Create(binding).Error
	})
	if err != nil {
		return nil, err
	}
	return binding, nil
}

func QueryFlowBindings(projectID types.ID, sec *session.Session) (*[]domain.FlowBinding, error) {
	if !sec.HasProjectViewPerm(projectID) {
		return nil, bizerror.ErrForbidden
	}
	var bindings []domain.FlowBinding
	db := persistence.ActiveDataSourceManager.GormDB(sec.Context)
	if err := db.Where("project_id = ?", projectID).Find(&bindings).Error; err != nil {
		return nil, err
	}
	return &bindings, nil
}

func FindFlowBinding(ctx context.Context, projectID types.ID, assetType string) (*domain.FlowBinding, error) {
	binding := domain.FlowBinding{}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Where("project_id = ? AND asset_type = ?", projectID, assetType).
		First(&binding).Error; err != nil {
		return nil, err
	}
	return &binding, nil
}
