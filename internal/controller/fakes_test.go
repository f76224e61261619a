package controller

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/idempotency"
	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
)

type fakeIdempotency struct {
	mu        sync.Mutex
	processed map[string]bool
	failWith  error
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{processed: map[string]bool{}}
}

func (f *fakeIdempotency) IsProcessed(_ context.Context, eventID, provider string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[provider+"/"+eventID], nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, eventID, provider, _ string) (idempotency.ReserveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return idempotency.ReserveResult{}, f.failWith
	}
	done, ok := f.processed[provider+"/"+eventID]
	if !ok {
		f.processed[provider+"/"+eventID] = false
		return idempotency.ReserveResult{}, nil
	}
	return idempotency.ReserveResult{AlreadyReserved: true, Processed: done}, nil
}

func (f *fakeIdempotency) Complete(_ context.Context, eventID, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[provider+"/"+eventID] = true
	return nil
}

func (f *fakeIdempotency) SweepExpired(context.Context) (int64, error) { return 0, nil }

func (f *fakeIdempotency) isProcessed(eventID, provider string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[provider+"/"+eventID]
}

type fakeResolver struct {
	handles map[string]*memHandle
}

func (r *fakeResolver) Resolve(_ context.Context, tenantID string) (tenant.IHandle, error) {
	h, ok := r.handles[tenantID]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	if !h.tenant.IsActive() {
		return nil, tenant.ErrTenantInactive
	}
	return h, nil
}

func (r *fakeResolver) CreatePartition(context.Context, string) error         { return nil }
func (r *fakeResolver) PartitionExists(context.Context, string) (bool, error) { return true, nil }
func (r *fakeResolver) Onboard(context.Context, *model.Tenant) error          { return nil }

func (r *fakeResolver) ListActive(context.Context) ([]model.Tenant, error) {
	var out []model.Tenant
	for _, h := range r.handles {
		out = append(out, h.tenant)
	}
	return out, nil
}

// memHandle keeps one tenant's partition in memory and evaluates rules
// with the real engine.
type memHandle struct {
	mu        sync.Mutex
	tenant    model.Tenant
	rule      *model.TreasuryRule
	payments  map[string]*model.Payment
	decisions map[string]treasury.Decision
	purchases map[string]*model.BitcoinPurchase
	saves     int
}

func newMemHandle(t model.Tenant, rule *model.TreasuryRule) *memHandle {
	return &memHandle{
		tenant:    t,
		rule:      rule,
		payments:  map[string]*model.Payment{},
		decisions: map[string]treasury.Decision{},
		purchases: map[string]*model.BitcoinPurchase{},
	}
}

func (h *memHandle) Tenant() model.Tenant { return h.tenant }

func (h *memHandle) ActiveRule(context.Context) (*model.TreasuryRule, error) { return h.rule, nil }

func (h *memHandle) ReplaceRule(context.Context, treasury.RuleConfig) (*model.TreasuryRule, error) {
	return nil, errors.New("not supported")
}

func (h *memHandle) RecordPayment(_ context.Context, p *model.Payment) (*tenant.PaymentOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing, ok := h.payments[p.ExternalPaymentID]
	if ok && (existing.Status == model.PaymentStatusSucceeded || p.Status != model.PaymentStatusSucceeded) {
		return &tenant.PaymentOutcome{Payment: existing, Decision: h.decisions[p.ExternalPaymentID], Existing: true}, nil
	}
	if ok {
		existing.Status = p.Status
		p = existing
	} else {
		p.ID = "pay-" + p.ExternalPaymentID
		p.TenantID = h.tenant.ID
		p.CreatedAt = time.Now()
	}
	d := treasury.Evaluate(treasury.Input{Payment: p, Rule: h.rule, Trigger: treasury.TriggerPayment})
	p.ShouldConvert = d.Convert
	p.ConversionAmount = d.Amount
	p.DecisionReason = d.Reason
	h.payments[p.ExternalPaymentID] = p
	h.decisions[p.ExternalPaymentID] = d
	return &tenant.PaymentOutcome{Payment: p, Decision: d}, nil
}

func (h *memHandle) EvaluateScheduled(context.Context) (treasury.Decision, error) {
	return treasury.Evaluate(treasury.Input{Rule: h.rule, Trigger: treasury.TriggerSchedule}), nil
}

func (h *memHandle) ReservePurchase(_ context.Context, p *model.BitcoinPurchase) (*model.BitcoinPurchase, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.purchases[p.IdempotencyKey]; ok {
		cp := *existing
		return &cp, false, nil
	}
	p.TenantID = h.tenant.ID
	cp := *p
	h.purchases[p.IdempotencyKey] = &cp
	return p, true, nil
}

func (h *memHandle) SavePurchase(_ context.Context, p *model.BitcoinPurchase) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saves++
	stored, ok := h.purchases[p.IdempotencyKey]
	if !ok || stored.Status != model.PurchaseStatusPending {
		return nil
	}
	cp := *p
	h.purchases[p.IdempotencyKey] = &cp
	return nil
}

func (h *memHandle) GetPurchaseByIdempotencyKey(_ context.Context, key string) (*model.BitcoinPurchase, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.purchases[key]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (h *memHandle) ListPayments(context.Context, time.Time, time.Time) ([]model.Payment, error) {
	return nil, nil
}

func (h *memHandle) ListPurchases(context.Context, time.Time, time.Time) ([]model.BitcoinPurchase, error) {
	return nil, nil
}

func (h *memHandle) LookupPayments(context.Context, []string) ([]model.Payment, error) {
	return nil, nil
}

func (h *memHandle) LookupPurchases(context.Context, []string) ([]model.BitcoinPurchase, error) {
	return nil, nil
}

func (h *memHandle) AppendReconciliationRecords(context.Context, []model.ReconciliationRecord) error {
	return nil
}

func (h *memHandle) ListReconciliationRecords(context.Context, string) ([]model.ReconciliationRecord, error) {
	return nil, nil
}

func (h *memHandle) purchaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.purchases)
}

func percentageRule(pct int64) *model.TreasuryRule {
	return &model.TreasuryRule{
		ID:         "rule-1",
		Type:       model.RuleTypePercentage,
		Percentage: decimal.NullDecimal{Decimal: decimal.NewFromInt(pct), Valid: true},
		IsActive:   true,
	}
}

func fixedRule(amount int64) *model.TreasuryRule {
	return &model.TreasuryRule{
		ID:          "rule-2",
		Type:        model.RuleTypeFixedAmount,
		FixedAmount: decimal.NullDecimal{Decimal: decimal.NewFromInt(amount), Valid: true},
		IsActive:    true,
	}
}
