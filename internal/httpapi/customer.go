package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"solcity-loyalty/pkg/errutil"
	"solcity-loyalty/services/customer"
)

func (h *Handler) registerCustomer(c *gin.Context) {
	var req customer.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.InvalidInput("invalid request body", errutil.WithErr(err)))
		return
	}

	cu, err := h.customers.Register(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cu)
}

func (h *Handler) getCustomer(c *gin.Context) {
	cu, err := h.customers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cu)
}

func (h *Handler) customerBalance(c *gin.Context) {
	id := c.Param("id")

	balance, err := h.tokens.BalanceOf(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer_id": id, "balance": balance})
}

func (h *Handler) customerTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	recs, err := h.transactions.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": recs})
}

func (h *Handler) customerVouchers(c *gin.Context) {
	vouchers, err := h.redemptions.ListForCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}
