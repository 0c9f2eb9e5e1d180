package testinfra

import (
	"context"
	"flowchain/domain"
	"flowchain/session"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
)

func ExecuteRequest(req *http.Request, router http.Handler) (int, string, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code, w.Body.String(), w
}

// BuildSecCtx builds a session holding the given "<role>_<projectId>" perms.
func BuildSecCtx(uid types.ID, perms ...string) *session.Session {
	projectRoles := []domain.ProjectRole{}
	for _, perm := range perms {
		idx := strings.Index(perm, "_")
		if idx <= 0 {
			continue
		}
		role := perm[0:idx]
		projectId, err := types.ParseID(perm[idx+1:])
		if err != nil {
			continue
		}
		projectRoles = append(projectRoles, domain.ProjectRole{ProjectID: projectId, Role: role})
	}

	return &session.Session{
		Context:  context.Background(),
		Token:    uuid.New().String(),
		Identity: session.Identity{ID: uid, Name: "user" + uid.String()},
		Perms:    perms, ProjectRoles: projectRoles,
	}
}

// SignIn puts the session into the token cache so SimpleAuthFilter accepts
// its token cookie.
func SignIn(s *session.Session) *http.Cookie {
	session.TokenCache.Set(s.Token, s, session.TokenExpiration)
	return &http.Cookie{Name: session.KeySecToken, Value: s.Token}
}
