package server

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
	"github.com/dwarvesf/treasury-settlement/internal/handler"
	"github.com/dwarvesf/treasury-settlement/internal/handler/health"
	"github.com/dwarvesf/treasury-settlement/internal/monitoring"
	"github.com/dwarvesf/treasury-settlement/internal/reconciliation"
	"github.com/dwarvesf/treasury-settlement/internal/transport/http"
)

const (
	idempotencySweepTimeout = 5 * time.Minute
	shutdownTimeout         = 15 * time.Second
)

func Init() {
	appConfig, logger, err := LoadConfig()
	if err != nil {
		panic(err)
	}

	app, err := NewApp(appConfig, logger)
	if err != nil {
		logger.Fatal("[server.Init] failed to wire the pipeline", map[string]string{
			"error": err.Error(),
		})
	}
	defer app.Close()

	c := cron.New()
	if err := app.scheduleJobs(c); err != nil {
		logger.Fatal("[server.Init] failed to schedule jobs", map[string]string{
			"error": err.Error(),
		})
	}
	c.Start()

	deps := handler.Deps{
		DB:               app.DB,
		Controller:       app.Controller,
		Resolver:         app.Resolver,
		Ledger:           app.Ledger,
		Verifier:         app.Verifier,
		PriceSource:      app.Executor,
		Network:          app.Network,
		Metrics:          app.BusinessMetrics,
		MetricsRegistry:  app.Registry,
		JobStatusManager: app.JobStatusManager,
	}
	var pinger health.Pinger
	if app.Redis != nil {
		pinger = app.Redis
	}
	deps.Redis = pinger
	h := handler.New(appConfig, logger, deps)

	srv := &nethttp.Server{
		Addr:    ":" + appConfig.ApiServer.Port,
		Handler: http.NewHttpServer(appConfig, logger, h, app.HTTPMetrics),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("[server.Init] http server listening", map[string]string{
			"port": appConfig.ApiServer.Port,
		})
		if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			logger.Error("[server.Init] http server stopped", map[string]string{
				"error": err.Error(),
			})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("[server.Init] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("[server.Init] http server shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}
	// wait for running jobs before the pipeline is closed
	<-c.Stop().Done()
}

func (app *App) scheduleJobs(c *cron.Cron) error {
	idempotencySweep := monitoring.NewInstrumentedJobWithWebhook(
		consts.JobIdempotencySweep,
		app.SweepIdempotency,
		app.JobStatusManager,
		app.Logger,
		idempotencySweepTimeout,
		app.WebhookClient,
		app.Config.Alert.IdempotencyUptimeURL,
	)
	if _, err := c.AddJob(app.Config.Idempotency.SweepSchedule, idempotencySweep); err != nil {
		return err
	}

	reconciliationSweep := monitoring.NewInstrumentedJobWithWebhook(
		consts.JobReconciliationSweep,
		func(ctx context.Context) error {
			_, err := app.Reconcile(ctx, reconciliation.Trailing(time.Now(), app.Config.Reconciliation.Window))
			return err
		},
		app.JobStatusManager,
		app.Logger,
		app.Config.Reconciliation.SweepTimeout,
		app.WebhookClient,
		app.Config.Reconciliation.UptimeURL,
	)
	if _, err := c.AddJob(app.Config.Reconciliation.Schedule, reconciliationSweep); err != nil {
		return err
	}
	return nil
}

// SweepIdempotency drops processed events older than the retention window.
func (app *App) SweepIdempotency(ctx context.Context) error {
	n, err := app.Idempotency.SweepExpired(ctx)
	if err != nil {
		return err
	}
	app.Logger.Info("[server.SweepIdempotency] expired events removed", map[string]string{
		"count": strconv.FormatInt(n, 10),
	})
	return nil
}

// Reconcile runs one sweep. A partial report is not an error for the job;
// its tenant failures are already logged and alerted.
func (app *App) Reconcile(ctx context.Context, window reconciliation.Window) (*reconciliation.Report, error) {
	report, err := app.Ledger.RunSweep(ctx, window)
	if err != nil {
		return report, err
	}
	app.Logger.Info("[server.Reconcile] sweep finished", map[string]string{
		"sweepID":   report.SweepID,
		"status":    report.Status,
		"anomalies": strconv.Itoa(report.Anomalies()),
	})
	return report, nil
}
