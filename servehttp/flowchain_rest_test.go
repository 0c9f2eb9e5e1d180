package servehttp_test

import (
	"bytes"
	"errors"
	"flowchain/bizerror"
	"flowchain/domain"
	"flowchain/domain/flow"
	"flowchain/servehttp"
	"flowchain/session"
	"flowchain/testinfra"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func flowChainTestRouter() *gin.Engine {
	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	servehttp.RegisterFlowChainHandler(router)
	return router
}

func TestQueryFlowChainsRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := flowChainTestRouter()

	t.Run("should return matched flow chains", func(t *testing.T) {
		flow.QueryFlowChainsFunc = func(query *flow.FlowChainQuery, s *session.Session) (*[]domain.FlowChain, error) {
			Expect(query.ProjectID).To(Equal(types.ID(100)))
			return &[]domain.FlowChain{{ID: 10, Version: 1, Name: "video publishing", ProjectID: 100, MaxStageVisits: 10}}, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/v1/flow-chains?projectId=100", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"id":"10"`))
		Expect(body).To(ContainSubstring(`"name":"video publishing"`))
	})

	t.Run("should be able to handle query errors", func(t *testing.T) {
		flow.QueryFlowChainsFunc = func(query *flow.FlowChainQuery, s *session.Session) (*[]domain.FlowChain, error) {
			return nil, errors.New("a mocked error")
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/flow-chains", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error","message":"a mocked error","data":null}`))
	})
}

func TestCreateFlowChainRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := flowChainTestRouter()

	t.Run("should return 400 when failed to bind", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/flow-chains", bytes.NewReader([]byte(`bbb`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid character 'b' looking for beginning of value","data":null}`))
	})

	t.Run("should return 400 when failed to validate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/flow-chains", bytes.NewReader([]byte(`{}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(ContainSubstring("common.bad_param"))
		Expect(body).To(ContainSubstring("'FlowChainCreation.Name'"))
		Expect(body).To(ContainSubstring("'FlowChainCreation.ProjectID'"))
		Expect(body).To(ContainSubstring("'FlowChainCreation.Stages'"))
	})

	t.Run("should surface itemised definition problems", func(t *testing.T) {
		flow.CreateFlowChainFunc = func(c *flow.FlowChainCreation, s *session.Session) (*domain.FlowChainDetail, error) {
			return nil, &bizerror.ErrInvalidDefinition{Problems: []string{"stage \"editing\" has no transition matching a REJECTED resolution"}}
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/flow-chains", bytes.NewReader([]byte(
			`{"name":"video publishing","projectId":"100","stages":[]}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"flowchain.invalid_definition","message":"invalid flow chain definition",
			"data":["stage \"editing\" has no transition matching a REJECTED resolution"]}`))
	})

	t.Run("should return created flow chain", func(t *testing.T) {
		flow.CreateFlowChainFunc = func(c *flow.FlowChainCreation, s *session.Session) (*domain.FlowChainDetail, error) {
			return &domain.FlowChainDetail{FlowChain: domain.FlowChain{
				ID: 10, Version: 1, Name: c.Name, ProjectID: c.ProjectID, MaxStageVisits: 10}}, nil
		}
		req := httptest.NewRequest(http.MethodPost, "/v1/flow-chains", bytes.NewReader([]byte(
			`{"name":"video publishing","projectId":"100","stages":[]}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body).To(ContainSubstring(`"id":"10"`))
		Expect(body).To(ContainSubstring(`"version":1`))
	})
}

func TestDetailFlowChainVersionRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := flowChainTestRouter()

	t.Run("should return 400 on invalid path params", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/flow-chains/abc/versions/1", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid id 'abc'","data":null}`))

		req = httptest.NewRequest(http.MethodGet, "/v1/flow-chains/10/versions/x", nil)
		status, body, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid version 'x'","data":null}`))
	})

	t.Run("should return the requested version", func(t *testing.T) {
		flow.DetailFlowChainVersionFunc = func(id types.ID, version int, s *session.Session) (*domain.FlowChainDetail, error) {
			Expect(id).To(Equal(types.ID(10)))
			Expect(version).To(Equal(2))
			return &domain.FlowChainDetail{FlowChain: domain.FlowChain{ID: 10, Version: 2, Name: "video publishing"}}, nil
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/flow-chains/10/versions/2", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"version":2`))
	})
}

func TestDeleteFlowChainRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := flowChainTestRouter()

	t.Run("should return 204 on deletion", func(t *testing.T) {
		flow.DeleteFlowChainFunc = func(id types.ID, s *session.Session) error {
			return nil
		}
		req := httptest.NewRequest(http.MethodDelete, "/v1/flow-chains/10", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNoContent))
		Expect(body).To(BeEmpty())
	})

	t.Run("should return 409 while instances reference the chain", func(t *testing.T) {
		flow.DeleteFlowChainFunc = func(id types.ID, s *session.Session) error {
			return bizerror.ErrChainReferenced
		}
		req := httptest.NewRequest(http.MethodDelete, "/v1/flow-chains/10", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body).To(MatchJSON(`{"code":"flowchain.referenced","message":"flow chain is referenced by instances","data":null}`))
	})
}

func TestFlowBindingRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := flowChainTestRouter()

	t.Run("should save the binding", func(t *testing.T) {
		flow.SaveFlowBindingFunc = func(s *flow.FlowBindingSaving, sec *session.Session) (*domain.FlowBinding, error) {
			return &domain.FlowBinding{ProjectID: s.ProjectID, AssetType: s.AssetType,
				ChainID: s.ChainID, ChainVersion: s.ChainVersion}, nil
		}
		req := httptest.NewRequest(http.MethodPut, "/v1/flow-bindings", bytes.NewReader([]byte(
			`{"projectId":"100","assetType":"video","chainId":"10","chainVersion":2}`)))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"assetType":"video"`))
		Expect(body).To(ContainSubstring(`"chainVersion":2`))
	})

	t.Run("should return 400 on an invalid projectId query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/flow-bindings?projectId=abc", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid projectId 'abc'","data":null}`))
	})

	t.Run("should return bindings of the project", func(t *testing.T) {
		flow.QueryFlowBindingsFunc = func(projectID types.ID, sec *session.Session) (*[]domain.FlowBinding, error) {
			Expect(projectID).To(Equal(types.ID(100)))
			return &[]domain.FlowBinding{{ProjectID: 100, AssetType: "video", ChainID: 10, ChainVersion: 1}}, nil
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/flow-bindings?projectId=100", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"assetType":"video"`))
	})
}
