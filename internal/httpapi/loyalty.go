package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/redemption"
	"solcity-loyalty/services/reward"
)

func (h *Handler) issueRewards(c *gin.Context) {
	var req reward.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	res, err := h.rewards.Issue(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) redeemOffer(c *gin.Context) {
	var req redemption.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := h.redemptions.Redeem(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, v)
}

func (h *Handler) getVoucher(c *gin.Context) {
	v, err := h.redemptions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) useVoucher(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := h.redemptions.MarkUsed(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) revokeVoucher(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := h.redemptions.Revoke(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) reactivateVoucher(c *gin.Context) {
	var req authorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	v, err := h.redemptions.Reactivate(c.Request.Context(), c.Param("id"), req.AuthorityID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}
