package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ivr-billing/internal/auth"
	"ivr-billing/internal/httpapi"
	"ivr-billing/internal/trigger"
	"ivr-billing/pkg/utils"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, db *sql.DB, h httpapi.Handlers, webhook *trigger.WebhookHandler, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: protect with provider signature validation in production.
	r.POST("/webhooks/calls/ended", webhook.HandleCallEnded)

	// Token issuance is outside the protected group.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/calls/:call_id", h.GetCallRecord)

		subs := v1.Group("/subscriptions")
		{
			subs.POST("/activate", h.ActivateSubscription)
			subs.GET("/:user_id", h.GetSubscription)
		}

		wallets := v1.Group("/wallets")
		{
			wallets.POST("/accounts", h.RegisterAccount)
			wallets.GET("/:user_id/transactions", h.ListTransactions)
		}

		reports := v1.Group("/reports")
		{
			reports.GET("/usage/:user_id", h.UsageReport)
		}

		// pricing management is admin-only
		admin := v1.Group("", auth.RequireAdmin())
		{
			admin.PUT("/pricing", h.UpsertPricing)
		}
	}
}
