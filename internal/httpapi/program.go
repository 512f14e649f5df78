package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/program"
)

func (h *Handler) initializeProgram(c *gin.Context) {
	var req program.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	p, err := h.programs.Initialize(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) getProgram(c *gin.Context) {
	p, err := h.programs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}
