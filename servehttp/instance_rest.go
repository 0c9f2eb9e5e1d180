package servehttp

import (
	"flowchain/domain"
	"flowchain/domain/run"
	"flowchain/event"
	"flowchain/indices/search"
	"flowchain/misc"
	"flowchain/persistence"
	"flowchain/session"
	"net/http"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// InstanceCreationRequest either pins a chain version explicitly or leaves
// it to the project's flow binding of the asset type.
type InstanceCreationRequest struct {
	ChainID      types.ID `json:"chainId"`
	ChainVersion int      `json:"chainVersion"`

	AssetID   types.ID `json:"assetId" binding:"required"`
	AssetType string   `json:"assetType" binding:"required"`
	ProjectID types.ID `json:"projectId"`
}

func RegisterInstanceHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	handler := &instanceHandler{validator: validator.New()}

	g := r.Group("/v1/instances", middleWares...)
	g.POST("", handler.handleCreateInstance)
	g.GET("", handler.handleQueryInstances)
	g.GET(":id", handler.handleGetInstanceState)
	g.POST(":id/decisions", handler.handleSubmitDecision)
	g.POST(":id/cancel", handler.handleCancelInstance)
	g.GET(":id/events", handler.handleQueryInstanceEvents)

	o := r.Group("/v1/instance-index", middleWares...)
	o.GET("", handler.handleSearchInstances)
}

type instanceHandler struct {
	validator *validator.Validate
}

func (h *instanceHandler) handleCreateInstance(c *gin.Context) {
	creation := InstanceCreationRequest{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(creation); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}

	sec := session.ExtractSessionFromGinContext(c)
	if creation.ChainID == 0 && creation.ProjectID == 0 {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param",
			Message: "either chainId or projectId is required"})
		return
	}

	var inst interface{}
	var err error
	if creation.ChainID != 0 {
		inst, err = run.CreateInstanceFunc(&run.InstanceCreation{
			ChainID: creation.ChainID, ChainVersion: creation.ChainVersion,
			AssetID: creation.AssetID, AssetType: creation.AssetType,
		}, sec)
	} else {
		inst, err = run.CreateInstanceForAssetFunc(creation.AssetID, creation.AssetType, creation.ProjectID, sec)
	}
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (h *instanceHandler) handleQueryInstances(c *gin.Context) {
	query := domain.InstanceQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	instances, err := run.QueryInstancesFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, instances)
}

func (h *instanceHandler) handleSearchInstances(c *gin.Context) {
	query := domain.InstanceQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	docs, err := search.SearchInstancesFunc(query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, docs)
}

func (h *instanceHandler) handleGetInstanceState(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	inst, err := run.GetInstanceStateFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *instanceHandler) handleSubmitDecision(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	submission := run.DecisionSubmission{}
	if err := c.ShouldBindBodyWith(&submission, binding.JSON); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(submission); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}

	inst, err := run.SubmitDecisionFunc(id, &submission, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *instanceHandler) handleCancelInstance(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	inst, err := run.CancelInstanceFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *instanceHandler) handleQueryInstanceEvents(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	sec := session.ExtractSessionFromGinContext(c)
	// view perm is enforced by the instance read
	if _, err := run.GetInstanceStateFunc(id, sec); err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	records, err := event.QueryInstanceEventsFunc(id, persistence.ActiveDataSourceManager.GormDB(sec.Context))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, records)
}
