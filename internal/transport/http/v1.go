package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/treasury-settlement/internal/handler"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, appConfig *config.AppConfig, logger *logger.Logger) {
	v1 := r.Group("/api/v1")

	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("", h.WebhookHandler.ReceiveDetected)
		webhooks.POST("/:provider", h.WebhookHandler.Receive)
	}

	v1.POST("/tenants", h.TenantHandler.Onboard)
	tenants := v1.Group("/tenants/:tenantId")
	{
		tenants.POST("/partition", h.TenantHandler.CreatePartition)
		tenants.GET("/partition", h.TenantHandler.GetPartition)
		tenants.GET("/rule", h.TenantHandler.GetRule)
		tenants.PUT("/rule", h.TenantHandler.ReplaceRule)
		tenants.POST("/conversions/scheduled", h.TenantHandler.TriggerScheduledConversion)
		tenants.GET("/reconciliation/sweeps/:sweepId/records", h.ReconciliationHandler.ListRecords)
	}

	reconciliation := v1.Group("/reconciliation")
	{
		reconciliation.POST("/sweeps", h.ReconciliationHandler.RunSweep)
	}

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}

	// health check
	r.GET("/healthz", h.HealthHandler.Basic)
}
