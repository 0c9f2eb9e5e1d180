package servehttp

import (
	"flowchain/domain/flow"
	"flowchain/misc"
	"flowchain/session"
	"net/http"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterFlowChainHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	handler := &flowChainHandler{validator: validator.New()}

	g := r.Group("/v1/flow-chains", middleWares...)
	g.POST("", handler.handleCreateFlowChain)
	g.GET("", handler.handleQueryFlowChains)
	g.GET(":id/versions/:version", handler.handleDetailFlowChainVersion)
	g.POST(":id/versions", handler.handleCreateFlowChainVersion)
	g.DELETE(":id", handler.handleDeleteFlowChain)

	b := r.Group("/v1/flow-bindings", middleWares...)
	b.PUT("", handler.handleSaveFlowBinding)
	b.GET("", handler.handleQueryFlowBindings)
}

type flowChainHandler struct {
	validator *validator.Validate
}

func (h *flowChainHandler) handleCreateFlowChain(c *gin.Context) {
	creation := flow.FlowChainCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}
	if err = h.validator.Struct(creation); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}

	detail, err := flow.CreateFlowChainFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func (h *flowChainHandler) handleQueryFlowChains(c *gin.Context) {
	query := flow.FlowChainQuery{}
	_ = c.MustBindWith(&query, binding.Query)

	chains, err := flow.QueryFlowChainsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, chains)
}

func (h *flowChainHandler) handleDetailFlowChainVersion(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid version '" + c.Param("version") + "'"})
		return
	}

	detail, err := flow.DetailFlowChainVersionFunc(id, version, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *flowChainHandler) handleCreateFlowChainVersion(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	creation := flow.FlowChainCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(creation); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}

	detail, err := flow.CreateFlowChainVersionFunc(id, &creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusCreated, detail)
}

func (h *flowChainHandler) handleDeleteFlowChain(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}

	if err := flow.DeleteFlowChainFunc(id, session.ExtractSessionFromGinContext(c)); err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func (h *flowChainHandler) handleSaveFlowBinding(c *gin.Context) {
	saving := flow.FlowBindingSaving{}
	if err := c.ShouldBindBodyWith(&saving, binding.JSON); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}
	if err := h.validator.Struct(saving); err != nil {
		panic(&misc.ErrBadParam{Cause: err})
	}

	saved, err := flow.SaveFlowBindingFunc(&saving, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (h *flowChainHandler) handleQueryFlowBindings(c *gin.Context) {
	projectID, err := types.ParseID(c.Query("projectId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &misc.ErrorBody{Code: "common.bad_param", Message: "invalid projectId '" + c.Query("projectId") + "'"})
		return
	}

	bindings, err := flow.QueryFlowBindingsFunc(projectID, session.ExtractSessionFromGinContext(c))
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, bindings)
}
