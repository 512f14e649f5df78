package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/offer"
	"solcity-loyalty/services/rule"
)

func (h *Handler) createRule(c *gin.Context) {
	var req rule.SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	r, err := h.rules.Set(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) getRule(c *gin.Context) {
	r, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) updateRule(c *gin.Context) {
	var req rule.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	r, err := h.rules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) toggleRule(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	r, err := h.rules.Toggle(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) deleteRule(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.rules.Delete(c.Request.Context(), c.Param("id"), req.AuthorityID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createOffer(c *gin.Context) {
	var req offer.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	o, err := h.offers.Create(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) getOffer(c *gin.Context) {
	o, err := h.offers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) updateOffer(c *gin.Context) {
	var req offer.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	o, err := h.offers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) deleteOffer(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.offers.Delete(c.Request.Context(), c.Param("id"), req.AuthorityID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) toggleOffer(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	o, err := h.offers.Toggle(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, o)
}
