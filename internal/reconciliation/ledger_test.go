package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/types/environments"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

type stubHandle struct {
	tenant.IHandle
	mu        sync.Mutex
	t         model.Tenant
	payments  []model.Payment
	purchases []model.BitcoinPurchase
	records   []model.ReconciliationRecord
	listErr   error
}

func (h *stubHandle) Tenant() model.Tenant { return h.t }

func (h *stubHandle) ListPayments(_ context.Context, start, end time.Time) ([]model.Payment, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	var out []model.Payment
	for _, p := range h.payments {
		if !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (h *stubHandle) ListPurchases(_ context.Context, start, end time.Time) ([]model.BitcoinPurchase, error) {
	var out []model.BitcoinPurchase
	for _, p := range h.purchases {
		if !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (h *stubHandle) LookupPayments(_ context.Context, ids []string) ([]model.Payment, error) {
	var out []model.Payment
	for _, p := range h.payments {
		for _, id := range ids {
			if p.ExternalPaymentID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (h *stubHandle) LookupPurchases(_ context.Context, ids []string) ([]model.BitcoinPurchase, error) {
	var out []model.BitcoinPurchase
	for _, p := range h.purchases {
		for _, id := range ids {
			if p.ExternalPaymentID != nil && *p.ExternalPaymentID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (h *stubHandle) AppendReconciliationRecords(_ context.Context, records []model.ReconciliationRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, records...)
	return nil
}

func (h *stubHandle) ListReconciliationRecords(_ context.Context, sweepID string) ([]model.ReconciliationRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []model.ReconciliationRecord
	for _, r := range h.records {
		if r.SweepID == sweepID {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubResolver struct {
	handles map[string]*stubHandle
	listErr error
}

func (r *stubResolver) Resolve(_ context.Context, tenantID string) (tenant.IHandle, error) {
	h, ok := r.handles[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return h, nil
}

func (r *stubResolver) CreatePartition(context.Context, string) error         { return nil }
func (r *stubResolver) PartitionExists(context.Context, string) (bool, error) { return true, nil }
func (r *stubResolver) Onboard(context.Context, *model.Tenant) error          { return nil }

func (r *stubResolver) ListActive(context.Context) ([]model.Tenant, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Tenant
	for _, h := range r.handles {
		out = append(out, h.t)
	}
	return out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	sweeps   []string
	findings map[string]int
	pending  map[string]int
	alerts   []webhook.Alert
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{findings: map[string]int{}, pending: map[string]int{}}
}

func (o *recordingObserver) RecordReconciliationSweep(status string, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps = append(o.sweeps, status)
}

func (o *recordingObserver) RecordReconciliationFinding(classification string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.findings[classification]++
}

func (o *recordingObserver) SetPendingPurchases(tenantID string, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[tenantID] = count
}

func (o *recordingObserver) Notify(_ context.Context, a webhook.Alert) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerts = append(o.alerts, a)
}

func newTestLedger(resolver tenant.IResolver, obs *recordingObserver) *Ledger {
	return New(resolver, Config{
		GracePeriod: 5 * time.Minute,
		Tolerance:   decimal.RequireFromString("0.01"),
		Concurrency: 2,
	}, logger.New(environments.Test), Options{
		Metrics: obs,
		Pending: obs,
		Alerter: obs,
		Now:     func() time.Time { return sweepNow },
	})
}

func seededHandle(id string, matched int, mismatch bool) *stubHandle {
	h := &stubHandle{t: model.Tenant{ID: id, Status: model.TenantStatusActive}}
	for i := 0; i < matched; i++ {
		ext := fmt.Sprintf("pi_%s_%d", id, i)
		h.payments = append(h.payments, convertedPayment(ext, time.Hour))
		h.purchases = append(h.purchases, completedPurchase(ext, "995"))
	}
	if mismatch {
		h.payments = append(h.payments, convertedPayment("pi_"+id+"_bad", time.Hour))
		h.purchases = append(h.purchases, completedPurchase("pi_"+id+"_bad", "945"))
	}
	return h
}

func TestRunSweep_ReportsAndAppends(t *testing.T) {
	acme := seededHandle("acme", 10, true)
	acme.payments = append(acme.payments, convertedPayment("pi_young", time.Minute))
	globex := seededHandle("globex", 3, false)
	obs := newRecordingObserver()
	ledger := newTestLedger(&stubResolver{handles: map[string]*stubHandle{"acme": acme, "globex": globex}}, obs)

	report, err := ledger.RunSweep(context.Background(), Trailing(sweepNow, 24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, SweepStatusSuccess, report.Status)
	assert.Equal(t, 13, report.Matched)
	assert.Len(t, report.AmountMismatches, 1)
	assert.Empty(t, report.OrphanedPayments)
	assert.Empty(t, report.OrphanedPurchases)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Tenants, 2)

	assert.Len(t, acme.records, 11)
	assert.Len(t, globex.records, 3)
	for _, rec := range acme.records {
		assert.Equal(t, report.SweepID, rec.SweepID)
		assert.NotEmpty(t, rec.ID)
	}

	stored, err := ledger.ListRecords(context.Background(), "acme", report.SweepID)
	require.NoError(t, err)
	assert.Len(t, stored, 11)

	assert.Equal(t, []string{SweepStatusSuccess}, obs.sweeps)
	assert.Equal(t, 13, obs.findings[string(model.ClassificationMatched)])
	assert.Equal(t, 1, obs.findings[string(model.ClassificationAmountMismatch)])
	require.Len(t, obs.alerts, 1)
	assert.Equal(t, "acme", obs.alerts[0].TenantID)
	assert.Equal(t, AlertKindAnomaly, obs.alerts[0].Kind)
}

func TestRunSweep_DoesNotMutateRows(t *testing.T) {
	acme := seededHandle("acme", 2, true)
	before := append([]model.BitcoinPurchase(nil), acme.purchases...)
	ledger := newTestLedger(&stubResolver{handles: map[string]*stubHandle{"acme": acme}}, newRecordingObserver())

	_, err := ledger.RunSweep(context.Background(), Trailing(sweepNow, 24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, before, acme.purchases)
}

func TestRunSweep_TenantFailureIsPartial(t *testing.T) {
	broken := seededHandle("broken", 1, false)
	broken.listErr = errors.New("relation does not exist")
	obs := newRecordingObserver()
	ledger := newTestLedger(&stubResolver{handles: map[string]*stubHandle{
		"acme":   seededHandle("acme", 2, false),
		"broken": broken,
	}}, obs)

	report, err := ledger.RunSweep(context.Background(), Trailing(sweepNow, 24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, SweepStatusPartial, report.Status)
	assert.Equal(t, 2, report.Matched)
	var brokenSummary TenantSummary
	for _, s := range report.Tenants {
		if s.TenantID == "broken" {
			brokenSummary = s
		}
	}
	assert.Contains(t, brokenSummary.Error, "relation does not exist")
	assert.Equal(t, []string{SweepStatusPartial}, obs.sweeps)
}

func TestRunSweep_ListActiveFailure(t *testing.T) {
	obs := newRecordingObserver()
	ledger := newTestLedger(&stubResolver{listErr: errors.New("connection refused")}, obs)

	_, err := ledger.RunSweep(context.Background(), Trailing(sweepNow, time.Hour))

	assert.Error(t, err)
	assert.Equal(t, []string{SweepStatusFailed}, obs.sweeps)
}

func TestRunSweep_InvalidWindow(t *testing.T) {
	ledger := newTestLedger(&stubResolver{}, newRecordingObserver())

	_, err := ledger.RunSweep(context.Background(), Window{Start: sweepNow, End: sweepNow.Add(-time.Hour)})

	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestRunSweep_PendingGaugeAndFailedPurchases(t *testing.T) {
	acme := seededHandle("acme", 1, false)
	pending := completedPurchase("pi_pending", "0")
	pending.Status = model.PurchaseStatusPending
	failed := completedPurchase("pi_failed", "1000")
	failed.Status = model.PurchaseStatusFailed
	acme.purchases = append(acme.purchases, pending, failed)
	acme.payments = append(acme.payments, convertedPayment("pi_pending", time.Hour), convertedPayment("pi_failed", time.Hour))
	obs := newRecordingObserver()
	ledger := newTestLedger(&stubResolver{handles: map[string]*stubHandle{"acme": acme}}, obs)

	report, err := ledger.RunSweep(context.Background(), Trailing(sweepNow, 24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, obs.pending["acme"])
	require.Len(t, report.FailedPurchases, 1)
	assert.Equal(t, "buy-pi_failed", report.FailedPurchases[0].PurchaseID)
	assert.Len(t, obs.alerts, 1)
}

func TestReport_JSONShape(t *testing.T) {
	report := newReport("sweep-1", Trailing(sweepNow, time.Hour))

	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"sweepId", "matched", "orphanedPayments", "orphanedPurchases", "amountMismatches", "failedPurchases", "windowStart", "windowEnd", "tenants"} {
		assert.Contains(t, fields, key)
	}
}

var _ tenant.IHandle = (*stubHandle)(nil)
