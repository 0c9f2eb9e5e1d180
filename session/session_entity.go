package session

import (
	"context"
	"flowchain/authority"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
)

type Session struct {
	Context context.Context `json:"-"`

	Token        string                 `json:"token"`
	Identity     Identity               `json:"identity"`
	Perms        authority.Permissions  `json:"perms"`
	ProjectRoles authority.ProjectRoles `json:"projectRoles"`

	SigningTime time.Time `json:"-"`
}

type Identity struct {
	ID       types.ID `json:"id"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (s *Session) Clone() Session {
	c := *s
	c.Perms = append(authority.Permissions{}, s.Perms...)
	c.ProjectRoles = append(authority.ProjectRoles{}, s.ProjectRoles...)
	return c
}

// VisibleProjects parse visible project ids from Session.Perms
func (s *Session) VisibleProjects() []types.ID {
	var projectIds []types.ID
	for _, v := range s.Perms {
		pairs := strings.Split(v, "_")
		if len(pairs) == 2 {
			id, err := types.ParseID(pairs[1])
			if err != nil {
				continue
			}
			projectIds = append(projectIds, id)
		}
	}
	if projectIds == nil {
		return []types.ID{}
	}
	return projectIds
}

func (s *Session) HasRoleSuffix(suffix string) bool {
	return s.Perms.HasRoleSuffix(suffix)
}

func (s *Session) HasProjectViewPerm(projectId types.ID) bool {
	return s.Perms.HasProjectViewPerm(projectId)
}

// HasProjectRole reports whether the session holds the given role within
// the given project, the "<role>_<projectId>" permission form.
func (s *Session) HasProjectRole(role string, projectId types.ID) bool {
	return s.Perms.HasRole(role + "_" + projectId.String())
}
