package domain

import (
	"github.com/fundwit/go-commons/types"
)

const ProjectRoleManager = "manager"

type ProjectRole struct {
	ProjectID types.ID `json:"projectId"`
	Role      string   `json:"role"`
}
