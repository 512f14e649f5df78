package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/merchant"
)

func (h *Handler) registerMerchant(c *gin.Context) {
	var req merchant.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	m, err := h.merchants.Register(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) getMerchant(c *gin.Context) {
	m, err := h.merchants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) updateMerchant(c *gin.Context) {
	var req merchant.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	m, err := h.merchants.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type authorityRequest struct {
	AuthorityID string `json:"authority_id"`
}

func (h *Handler) toggleMerchant(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	m, err := h.merchants.Toggle(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) closeMerchant(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	if err := h.merchants.Close(c.Request.Context(), c.Param("id"), req.AuthorityID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMerchantRules(c *gin.Context) {
	rules, err := h.rules.ListForMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *Handler) listMerchantOffers(c *gin.Context) {
	offers, err := h.offers.ListForMerchant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}
