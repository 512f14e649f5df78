package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"solcity-loyalty/pkg/config"
	"solcity-loyalty/pkg/health"
	"solcity-loyalty/pkg/middleware"
	"solcity-loyalty/services/customer"
	"solcity-loyalty/services/merchant"
	"solcity-loyalty/services/offer"
	"solcity-loyalty/services/program"
	"solcity-loyalty/services/redemption"
	"solcity-loyalty/services/reward"
	"solcity-loyalty/services/rule"
	"solcity-loyalty/services/token"
	"solcity-loyalty/services/transaction"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, ProvideRouter),
)

type Handler struct {
	programs     *program.Service
	merchants    *merchant.Service
	customers    *customer.Service
	rules        *rule.Service
	offers       *offer.Service
	rewards      *reward.Service
	redemptions  *redemption.Service
	tokens       *token.Service
	transactions *transaction.Service
}

type HandlerParams struct {
	fx.In
	Programs     *program.Service
	Merchants    *merchant.Service
	Customers    *customer.Service
	Rules        *rule.Service
	Offers       *offer.Service
	Rewards      *reward.Service
	Redemptions  *redemption.Service
	Tokens       *token.Service
	Transactions *transaction.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		programs:     p.Programs,
		merchants:    p.Merchants,
		customers:    p.Customers,
		rules:        p.Rules,
		offers:       p.Offers,
		rewards:      p.Rewards,
		redemptions:  p.Redemptions,
		tokens:       p.Tokens,
		transactions: p.Transactions,
	}
}

// ProvideRouter builds the gin engine serving the engine's REST surface.
func ProvideRouter(cfg *config.Config, h *Handler, hc health.HealthService) http.Handler {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())

	r.GET("/healthz", hc.Liveness)
	r.GET("/readyz", hc.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/programs", h.initializeProgram)
		v1.GET("/programs/:id", h.getProgram)

		v1.POST("/merchants", h.registerMerchant)
		v1.GET("/merchants/:id", h.getMerchant)
		v1.PATCH("/merchants/:id", h.updateMerchant)
		v1.POST("/merchants/:id/toggle", h.toggleMerchant)
		v1.DELETE("/merchants/:id", h.closeMerchant)
		v1.GET("/merchants/:id/rules", h.listMerchantRules)
		v1.GET("/merchants/:id/offers", h.listMerchantOffers)

		v1.POST("/customers", h.registerCustomer)
		v1.GET("/customers/:id", h.getCustomer)
		v1.GET("/customers/:id/balance", h.customerBalance)
		v1.GET("/customers/:id/transactions", h.customerTransactions)
		v1.GET("/customers/:id/vouchers", h.customerVouchers)

		v1.POST("/rules", h.createRule)
		v1.GET("/rules/:id", h.getRule)
		v1.PATCH("/rules/:id", h.updateRule)
		v1.POST("/rules/:id/toggle", h.toggleRule)
		v1.DELETE("/rules/:id", h.deleteRule)

		v1.POST("/offers", h.createOffer)
		v1.GET("/offers/:id", h.getOffer)
		v1.PATCH("/offers/:id", h.updateOffer)
		v1.POST("/offers/:id/toggle", h.toggleOffer)
		v1.DELETE("/offers/:id", h.deleteOffer)

		v1.POST("/rewards/issue", h.issueRewards)
		v1.POST("/redemptions", h.redeemOffer)

		v1.GET("/vouchers/:id", h.getVoucher)
		v1.POST("/vouchers/:id/use", h.useVoucher)
		v1.POST("/vouchers/:id/revoke", h.revokeVoucher)
		v1.POST("/vouchers/:id/reactivate", h.reactivateVoucher)
	}

	return r
}
