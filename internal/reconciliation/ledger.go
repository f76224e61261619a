package reconciliation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

type Config struct {
	GracePeriod time.Duration
	Tolerance   decimal.Decimal
	Concurrency int
}

func ConfigFrom(appConfig *config.AppConfig) Config {
	return Config{
		GracePeriod: appConfig.Reconciliation.GracePeriod,
		Tolerance:   appConfig.Reconciliation.Tolerance,
		Concurrency: appConfig.Reconciliation.Concurrency,
	}
}

type Options struct {
	Metrics Metrics
	Pending PendingGauge
	Alerter Alerter
	Now     func() time.Time
}

type Ledger struct {
	resolver tenant.IResolver
	cfg      Config
	logger   *logger.Logger
	metrics  Metrics
	pending  PendingGauge
	alerter  Alerter
	now      func() time.Time
}

func New(resolver tenant.IResolver, cfg Config, logger *logger.Logger, opts Options) *Ledger {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Pending == nil {
		opts.Pending = noopMetrics{}
	}
	if opts.Alerter == nil {
		opts.Alerter = noopAlerter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
		metrics:  opts.Metrics,
		pending:  opts.Pending,
		alerter:  opts.Alerter,
		now:      opts.Now,
	}
}

// RunSweep classifies every active tenant's window. A tenant that fails is
// reported and skipped; only failing to list tenants aborts the sweep.
func (l *Ledger) RunSweep(ctx context.Context, window Window) (*Report, error) {
	start := l.now()
	if err := window.Validate(); err != nil {
		return nil, err
	}

	tenants, err := l.resolver.ListActive(ctx)
	if err != nil {
		l.metrics.RecordReconciliationSweep(SweepStatusFailed, l.now().Sub(start).Seconds())
		l.logger.Error("[RunSweep][ListActive]", map[string]string{"error": err.Error()})
		return nil, errors.Wrap(err, "list active tenants")
	}

	report := newReport(uuid.NewString(), window)
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(l.cfg.Concurrency)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			summary, c := l.sweepTenant(ctx, report.SweepID, t.ID, window)
			mu.Lock()
			report.add(summary, c)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	l.metrics.RecordReconciliationSweep(report.Status, l.now().Sub(start).Seconds())
	l.logger.Info("[RunSweep] sweep finished", map[string]string{
		"sweepID":           report.SweepID,
		"status":            report.Status,
		"tenants":           strconv.Itoa(len(report.Tenants)),
		"matched":           strconv.Itoa(report.Matched),
		"orphanedPayments":  strconv.Itoa(len(report.OrphanedPayments)),
		"orphanedPurchases": strconv.Itoa(len(report.OrphanedPurchases)),
		"amountMismatches":  strconv.Itoa(len(report.AmountMismatches)),
		"failedPurchases":   strconv.Itoa(len(report.FailedPurchases)),
	})
	return report, nil
}

func (l *Ledger) sweepTenant(ctx context.Context, sweepID, tenantID string, window Window) (TenantSummary, *classification) {
	summary := TenantSummary{TenantID: tenantID}
	fail := func(step string, err error) (TenantSummary, *classification) {
		l.logger.Error("[RunSweep]["+step+"]", map[string]string{
			"sweepID":  sweepID,
			"tenantID": tenantID,
			"error":    err.Error(),
		})
		summary.Error = err.Error()
		return summary, nil
	}

	handle, err := l.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return fail("Resolve", err)
	}
	snap, err := l.loadSnapshot(ctx, handle, window)
	if err != nil {
		return fail("loadSnapshot", err)
	}

	cl := classifier{gracePeriod: l.cfg.GracePeriod, tolerance: l.cfg.Tolerance, now: l.now()}
	c := cl.classify(tenantID, snap)
	for i := range c.records {
		c.records[i].ID = uuid.NewString()
		c.records[i].SweepID = sweepID
	}
	if len(c.records) > 0 {
		if err := handle.AppendReconciliationRecords(ctx, c.records); err != nil {
			return fail("AppendReconciliationRecords", err)
		}
	}

	summary.Matched = c.matched()
	summary.Anomalies = c.anomalies()
	summary.PendingPurchases = c.pending
	l.pending.SetPendingPurchases(tenantID, c.pending)
	for _, rec := range c.records {
		l.metrics.RecordReconciliationFinding(string(rec.Classification))
	}
	if summary.Anomalies > 0 || len(c.failed) > 0 {
		l.alerter.Notify(ctx, webhook.Alert{
			Kind:     AlertKindAnomaly,
			TenantID: tenantID,
			Message:  "reconciliation found records that need review",
			Details: map[string]string{
				"sweepID":         sweepID,
				"anomalies":       strconv.Itoa(summary.Anomalies),
				"failedPurchases": strconv.Itoa(len(c.failed)),
			},
			OccurredAt: l.now(),
		})
	}
	return summary, c
}

// loadSnapshot reads the window and then fetches, by external payment id,
// the counterparts that were created outside it.
func (l *Ledger) loadSnapshot(ctx context.Context, handle tenant.IHandle, window Window) (snapshot, error) {
	var s snapshot
	var err error
	if s.payments, err = handle.ListPayments(ctx, window.Start, window.End); err != nil {
		return s, err
	}
	if s.purchases, err = handle.ListPurchases(ctx, window.Start, window.End); err != nil {
		return s, err
	}

	havePayment := make(map[string]bool, len(s.payments))
	for _, p := range s.payments {
		havePayment[p.ExternalPaymentID] = true
	}
	havePurchase := make(map[string]bool, len(s.purchases))
	var missingPayments []string
	for _, p := range s.purchases {
		if p.ExternalPaymentID == nil {
			continue
		}
		havePurchase[*p.ExternalPaymentID] = true
		if !havePayment[*p.ExternalPaymentID] {
			missingPayments = append(missingPayments, *p.ExternalPaymentID)
		}
	}
	var missingPurchases []string
	for _, p := range s.payments {
		if p.ShouldConvert && !havePurchase[p.ExternalPaymentID] {
			missingPurchases = append(missingPurchases, p.ExternalPaymentID)
		}
	}

	if len(missingPayments) > 0 {
		if s.extraPayments, err = handle.LookupPayments(ctx, missingPayments); err != nil {
			return s, err
		}
	}
	if len(missingPurchases) > 0 {
		if s.extraPurchases, err = handle.LookupPurchases(ctx, missingPurchases); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (l *Ledger) ListRecords(ctx context.Context, tenantID, sweepID string) ([]model.ReconciliationRecord, error) {
	handle, err := l.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return handle.ListReconciliationRecords(ctx, sweepID)
}
