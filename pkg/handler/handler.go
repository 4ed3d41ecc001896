package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"transfer_requests_back/pkg/config"
	"transfer_requests_back/pkg/metrics"
	"transfer_requests_back/pkg/middleware"
	"transfer_requests_back/pkg/service"
)

// Limits are the per-address and per-user request budgets. A nil limiter is
// not applied.
type Limits struct {
	PerIP   *middleware.RateLimiter
	PerUser *middleware.RateLimiter
}

type Handler struct {
	service *service.Service
	http    config.HTTP
	limits  Limits
}

func NewHandler(service *service.Service, httpCfg config.HTTP, limits Limits) *Handler {
	useJSONFieldNames()
	return &Handler{
		service: service,
		http:    httpCfg,
		limits:  limits,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), metrics.Instrument())

	if len(h.http.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     h.http.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := router.Group("/api")
	if h.limits.PerIP != nil {
		api.Use(h.limits.PerIP.ByIP())
	}
	api.Use(middleware.AuthMiddleware(h.service.Authorization))
	if h.limits.PerUser != nil {
		api.Use(h.limits.PerUser.ByUser())
	}
	{
		requests := api.Group("/transfer-requests")
		{
			requests.POST("", h.createTransferRequest)
			requests.GET("", h.listTransferRequests)
			requests.GET("/:id", h.getTransferRequest)
			requests.PUT("/:id", h.editTransferRequest)
			requests.POST("/:id/submit", h.submitTransferRequest)
			requests.POST("/:id/review", h.reviewTransferRequest)
			requests.POST("/:id/void", h.voidTransferRequest)
		}

		controller := api.Group("/controller/transfers")
		{
			controller.POST("/dispatch", h.dispatchTransfers)
			controller.POST("/sent", h.transfersPaymentSent)
			controller.POST("/cancel", h.cancelTransfers)
			controller.POST("/retry", h.retryTransfer)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/transfers/confirm", h.confirmTransfer)
		}

		wallet := api.Group("/wallet")
		{
			wallet.GET("/message", h.walletMessage)
			wallet.POST("/verify", h.verifyWallet)
		}
	}
	return router
}
