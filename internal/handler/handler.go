package handler

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/controller"
	"github.com/dwarvesf/treasury-settlement/internal/handler/health"
	"github.com/dwarvesf/treasury-settlement/internal/handler/metrics"
	reconciliationHandler "github.com/dwarvesf/treasury-settlement/internal/handler/reconciliation"
	tenantHandler "github.com/dwarvesf/treasury-settlement/internal/handler/tenant"
	webhookHandler "github.com/dwarvesf/treasury-settlement/internal/handler/webhook"
	"github.com/dwarvesf/treasury-settlement/internal/monitoring"
	"github.com/dwarvesf/treasury-settlement/internal/reconciliation"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/webhook"
)

type Handler struct {
	WebhookHandler        webhookHandler.IHandler
	TenantHandler         tenantHandler.IHandler
	ReconciliationHandler reconciliationHandler.IHandler
	HealthHandler         health.IHealthHandler
	MetricsHandler        *metrics.MetricsHandler
}

// Deps carries everything the HTTP surface is built from.
type Deps struct {
	DB               *gorm.DB
	Controller       controller.IController
	Resolver         tenant.IResolver
	Ledger           reconciliation.ILedger
	Verifier         webhook.IVerifier
	PriceSource      health.PriceSource
	Redis            health.Pinger
	Network          *chaincfg.Params
	Metrics          controller.MetricsRecorder
	MetricsRegistry  *prometheus.Registry
	JobStatusManager *monitoring.JobStatusManager
}

func New(appConfig *config.AppConfig, logger *logger.Logger, deps Deps) *Handler {
	return &Handler{
		WebhookHandler:        webhookHandler.New(deps.Controller, deps.Verifier, logger, deps.Metrics),
		TenantHandler:         tenantHandler.New(deps.Resolver, deps.Controller, deps.Network, logger),
		ReconciliationHandler: reconciliationHandler.New(deps.Ledger, appConfig.Reconciliation.Window, logger),
		HealthHandler:         health.New(appConfig, logger, deps.DB, deps.PriceSource, deps.Redis, deps.JobStatusManager),
		MetricsHandler:        metrics.NewMetricsHandler(deps.MetricsRegistry),
	}
}
