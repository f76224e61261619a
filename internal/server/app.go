package server

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/controller"
	"github.com/dwarvesf/treasury-settlement/internal/exchange"
	"github.com/dwarvesf/treasury-settlement/internal/exchange/rest"
	"github.com/dwarvesf/treasury-settlement/internal/exchange/simulated"
	"github.com/dwarvesf/treasury-settlement/internal/handler/metrics"
	"github.com/dwarvesf/treasury-settlement/internal/idempotency"
	"github.com/dwarvesf/treasury-settlement/internal/monitoring"
	"github.com/dwarvesf/treasury-settlement/internal/reconciliation"
	"github.com/dwarvesf/treasury-settlement/internal/store"
	pgstore "github.com/dwarvesf/treasury-settlement/internal/store/postgres"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/vault"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
	inbound "github.com/dwarvesf/treasury-settlement/internal/webhook"
)

// App is the wired pipeline shared by the API server and the operator CLI.
type App struct {
	Config *config.AppConfig
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client

	Idempotency idempotency.IStore
	Resolver    tenant.IResolver
	Executor    *exchange.Executor
	Controller  controller.IController
	Ledger      *reconciliation.Ledger
	Verifier    *inbound.Verifier
	Network     *chaincfg.Params

	Registry         *prometheus.Registry
	HTTPMetrics      *monitoring.HTTPMetrics
	BusinessMetrics  *monitoring.BusinessMetricsRecorder
	JobMetrics       *monitoring.BackgroundJobMetrics
	JobStatusManager *monitoring.JobStatusManager
	WebhookClient    *webhook.Client

	closers []func() error
}

// LoadConfig reads the environment and fills missing credentials from vault
// when one is configured.
func LoadConfig() (*config.AppConfig, *logger.Logger, error) {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)

	if appConfig.Vault.Addr != "" {
		client, err := vault.New(appConfig.Vault.Addr, appConfig.Vault.KVSecretPath, appConfig.Vault.Role)
		if err != nil {
			return nil, nil, errors.Wrap(err, "init vault client")
		}
		if err := appConfig.ApplySecrets(client); err != nil {
			return nil, nil, errors.Wrap(err, "load secrets from vault")
		}
		logger.Info("[server.LoadConfig] secrets loaded from vault", map[string]string{
			"path": appConfig.Vault.KVSecretPath,
		})
	}
	return appConfig, logger, nil
}

// NewApp connects to postgres and redis and wires every component.
func NewApp(appConfig *config.AppConfig, logger *logger.Logger) (*App, error) {
	app := &App{
		Config:   appConfig,
		Logger:   logger,
		DB:       pgstore.New(appConfig, logger),
		Registry: metrics.NewRegistry(),
	}

	network, err := exchange.NetworkParams(appConfig.Bitcoin.Network)
	if err != nil {
		return nil, err
	}
	app.Network = network

	app.HTTPMetrics = monitoring.NewHTTPMetrics()
	app.HTTPMetrics.MustRegister(app.Registry)
	app.BusinessMetrics = monitoring.NewBusinessMetricsRecorder(app.HTTPMetrics)
	app.JobMetrics = monitoring.NewBackgroundJobMetrics()
	app.JobMetrics.MustRegister(app.Registry)
	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(app.Registry)
	app.JobStatusManager = monitoring.NewJobStatusManager(logger, app.JobMetrics)
	app.closers = append(app.closers, func() error {
		app.JobStatusManager.Stop()
		return nil
	})

	app.WebhookClient = webhook.New(logger)
	alerts := monitoring.NewAlertNotifier(app.WebhookClient, appConfig.Alert.WebhookURL, logger)
	alerts.MustRegister(app.Registry)

	s := store.New()

	cache := tenant.NewNoopCache()
	if appConfig.Redis.Addr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     appConfig.Redis.Addr,
			Password: appConfig.Redis.Password,
			DB:       appConfig.Redis.DB,
		})
		app.closers = append(app.closers, app.Redis.Close)
		cache = tenant.NewRedisCache(app.Redis, appConfig.Redis.TenantCacheTTL, logger, app.BusinessMetrics)
	}

	app.Idempotency = idempotency.New(app.DB, s.WebhookEvent, logger, idempotency.Options{
		TTL:      appConfig.Idempotency.TTL,
		FailOpen: appConfig.Idempotency.FailOpen,
	})
	app.Resolver = tenant.NewResolver(app.DB, s.Tenant, logger, tenant.Options{
		Cache:   cache,
		Metrics: app.BusinessMetrics,
	})

	backend, err := app.exchangeBackend()
	if err != nil {
		return nil, err
	}
	breaker, err := monitoring.NewCircuitBreakerExchange(backend, monitoring.CircuitBreakerConfigs["exchange"], apiMetrics, logger)
	if err != nil {
		return nil, err
	}
	execCfg, err := exchange.ConfigFrom(appConfig)
	if err != nil {
		return nil, err
	}
	app.Executor = exchange.NewExecutor(breaker, execCfg, alerts, logger)

	app.Controller = controller.New(app.Idempotency, app.Resolver, app.Executor, logger, controller.Options{
		Metrics: app.BusinessMetrics,
	})
	app.Ledger = reconciliation.New(app.Resolver, reconciliation.ConfigFrom(appConfig), logger, reconciliation.Options{
		Metrics: app.BusinessMetrics,
		Pending: app.JobMetrics,
		Alerter: alerts,
	})
	app.Verifier = inbound.NewVerifier(inbound.ConfigFrom(appConfig))

	return app, nil
}

func (app *App) exchangeBackend() (exchange.IExchange, error) {
	switch app.Config.Exchange.Backend {
	case simulated.Name, "":
		sim := simulated.New(simulated.Options{Price: app.Config.Exchange.SimulatedPrice})
		if err := sim.Start(); err != nil {
			return nil, err
		}
		app.closers = append(app.closers, sim.Close)
		app.Logger.Warn("[server.NewApp] using the simulated exchange", map[string]string{
			"price": app.Config.Exchange.SimulatedPrice.String(),
		})
		return sim, nil
	case rest.Name:
		if app.Config.Exchange.BaseURL == "" {
			return nil, errors.New("EXCHANGE_BASE_URL is required for the rest backend")
		}
		return rest.New(app.Config.Exchange, app.Logger), nil
	default:
		return nil, errors.Errorf("unknown exchange backend %q", app.Config.Exchange.Backend)
	}
}

// Close releases everything NewApp opened, last opened first.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.Logger.Error("[server.Close] failed to release resource", map[string]string{
				"error": err.Error(),
			})
		}
	}
	if sqlDB, err := app.DB.DB(); err == nil {
		sqlDB.Close()
	}
	app.Logger.Sync()
}
