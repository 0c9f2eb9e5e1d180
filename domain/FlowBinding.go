package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

// FlowBinding is the explicit default flow chain of an asset type within a
// project. Instance creation is a pure function of the binding, there is no
// ambient "current flow" lookup.
type FlowBinding struct {
	ProjectID types.ID `json:"projectId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	AssetType string   `json:"assetType" gorm:"primary_key"`

	ChainID      types.ID `json:"chainId"`
	ChainVersion int      `json:"chainVersion"`

	CreateTime time.Time `json:"createTime" sql:"type:DATETIME(3) NOT NULL"`
}

func (b *FlowBinding) TableName() string {
	return "flow_bindings"
}
