package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/store"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/accumulator"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/partition"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/payment"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/purchase"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/reconrecord"
	"github.com/dwarvesf/treasury-settlement/internal/tenant/internal/rule"
	"github.com/dwarvesf/treasury-settlement/internal/treasury"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

type handle struct {
	db          *gorm.DB
	tenant      model.Tenant
	payments    payment.IStore
	purchases   purchase.IStore
	rules       rule.IStore
	accumulator accumulator.IStore
	records     reconrecord.IStore
	engine      treasury.IEngine
	metrics     Metrics
	logger      *logger.Logger
	now         func() time.Time
}

func newHandle(db *gorm.DB, t model.Tenant, scope partition.Scope, engine treasury.IEngine, m Metrics, l *logger.Logger, now func() time.Time) *handle {
	return &handle{
		db:          db,
		tenant:      t,
		payments:    payment.New(scope),
		purchases:   purchase.New(scope),
		rules:       rule.New(scope),
		accumulator: accumulator.New(scope),
		records:     reconrecord.New(scope),
		engine:      engine,
		metrics:     m,
		logger:      l.With(map[string]string{"tenantID": t.ID}),
		now:         now,
	}
}

func (h *handle) Tenant() model.Tenant {
	return h.tenant
}

func (h *handle) ActiveRule(ctx context.Context) (*model.TreasuryRule, error) {
	return h.rules.GetActive(h.db.WithContext(ctx))
}

func (h *handle) ReplaceRule(ctx context.Context, cfg treasury.RuleConfig) (*model.TreasuryRule, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := cfg.ToRule(h.tenant.ID)
	now := h.now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt, r.UpdatedAt = now, now

	err := store.DoInTxContext(ctx, h.db, func(tx *gorm.DB) error {
		return h.rules.Replace(tx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (h *handle) RecordPayment(ctx context.Context, p *model.Payment) (_ *PaymentOutcome, err error) {
	defer func(start time.Time) { observe(h.metrics, "record_payment", start, err) }(time.Now())
	now := h.now().UTC()
	p.TenantID = h.tenant.ID
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}

	var outcome *PaymentOutcome
	err = store.DoInTxContext(ctx, h.db, func(tx *gorm.DB) error {
		created, err := h.payments.InsertIfAbsent(tx, p)
		if err != nil {
			return errors.Wrap(err, "insert payment")
		}
		if !created {
			promoted := false
			if p.Status == model.PaymentStatusSucceeded {
				// the conditional update holds the row lock until commit
				if promoted, err = h.payments.MarkSucceeded(tx, p.ExternalPaymentID); err != nil {
					return errors.Wrap(err, "promote payment")
				}
			}
			existing, err := h.payments.GetByExternalID(tx, p.ExternalPaymentID)
			if err != nil {
				return errors.Wrap(err, "load existing payment")
			}
			if !promoted {
				outcome = &PaymentOutcome{Payment: existing, Decision: storedDecision(existing), Existing: true}
				return nil
			}
			h.logger.Info("[Handle][RecordPayment] payment succeeded after an earlier delivery", map[string]string{
				"externalPaymentID": existing.ExternalPaymentID,
			})
			*p = *existing
		}

		activeRule, err := h.rules.GetActive(tx)
		if err != nil {
			return errors.Wrap(err, "load active rule")
		}

		state, err := h.volumeState(tx, now)
		if err != nil {
			return err
		}
		if activeRule != nil && activeRule.IsActive && activeRule.Type == model.RuleTypeThreshold &&
			p.Status == model.PaymentStatusSucceeded {
			after, err := h.accumulator.Add(tx, h.tenant.ID, p.Amount())
			if err != nil {
				return errors.Wrap(err, "accumulate payment")
			}
			state.AccumulatedBalance = after.Sub(p.Amount())
		}

		decision := h.engine.Evaluate(treasury.Input{
			Payment: p,
			Rule:    activeRule,
			State:   state,
			Trigger: treasury.TriggerPayment,
		})

		if decision.ResetAccumulator {
			released, err := h.accumulator.Release(tx, h.tenant.ID, decision.Amount)
			if err != nil {
				return errors.Wrap(err, "release accumulator")
			}
			if !released {
				return errors.New("accumulator balance changed during evaluation")
			}
		}

		p.ShouldConvert = decision.Convert
		p.ConversionAmount = decision.Amount
		p.DecisionReason = decision.Reason
		if err := h.payments.SaveDecision(tx, p); err != nil {
			return errors.Wrap(err, "save decision")
		}

		outcome = &PaymentOutcome{Payment: p, Decision: decision}
		return nil
	})
	if err != nil {
		h.logger.Error("[Handle][RecordPayment] failed to record payment", map[string]string{
			"externalPaymentID": p.ExternalPaymentID,
			"error":             err.Error(),
		})
		return nil, err
	}
	return outcome, nil
}

func storedDecision(p *model.Payment) treasury.Decision {
	return treasury.Decision{
		Convert: p.ShouldConvert,
		Amount:  p.ConversionAmount,
		Reason:  p.DecisionReason,
	}
}

// volumeState sums what the tenant already converted in the windows its
// limits cover. Uncapped windows are not queried.
func (h *handle) volumeState(tx *gorm.DB, now time.Time) (treasury.State, error) {
	state := treasury.State{Limits: h.tenant.VolumeLimits()}

	if state.Limits.Daily.Valid {
		total, err := h.convertedSince(tx, now.Truncate(24*time.Hour))
		if err != nil {
			return state, err
		}
		state.ConvertedToday = total
	}
	if state.Limits.Monthly.Valid {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		total, err := h.convertedSince(tx, monthStart)
		if err != nil {
			return state, err
		}
		state.ConvertedThisMonth = total
	}
	return state, nil
}

func (h *handle) convertedSince(tx *gorm.DB, since time.Time) (decimal.Decimal, error) {
	fromPayments, err := h.payments.SumConvertedSince(tx, since)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum converted payments")
	}
	fromSchedule, err := h.purchases.SumScheduledSince(tx, since)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum scheduled purchases")
	}
	return fromPayments.Add(fromSchedule), nil
}

func (h *handle) EvaluateScheduled(ctx context.Context) (decision treasury.Decision, err error) {
	defer func(start time.Time) { observe(h.metrics, "evaluate_scheduled", start, err) }(time.Now())
	err = store.DoInTxContext(ctx, h.db, func(tx *gorm.DB) error {
		activeRule, err := h.rules.GetActive(tx)
		if err != nil {
			return errors.Wrap(err, "load active rule")
		}
		state, err := h.volumeState(tx, h.now().UTC())
		if err != nil {
			return err
		}
		decision = h.engine.Evaluate(treasury.Input{
			Rule:    activeRule,
			State:   state,
			Trigger: treasury.TriggerSchedule,
		})
		return nil
	})
	return decision, err
}

func (h *handle) ReservePurchase(ctx context.Context, p *model.BitcoinPurchase) (_ *model.BitcoinPurchase, _ bool, err error) {
	defer func(start time.Time) { observe(h.metrics, "reserve_purchase", start, err) }(time.Now())
	now := h.now().UTC()
	p.TenantID = h.tenant.ID
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.PurchaseStatusPending
	}
	p.CreatedAt, p.UpdatedAt = now, now

	var (
		out     *model.BitcoinPurchase
		created bool
	)
	err = store.DoInTxContext(ctx, h.db, func(tx *gorm.DB) error {
		ok, err := h.purchases.InsertIfAbsent(tx, p)
		if err != nil {
			return errors.Wrap(err, "insert purchase")
		}
		if ok {
			out, created = p, true
			return nil
		}

		existing, err := h.purchases.GetByIdempotencyKey(tx, p.IdempotencyKey)
		if errors.Is(err, gorm.ErrRecordNotFound) && p.ExternalPaymentID != nil {
			existing, err = h.purchases.GetByExternalPaymentID(tx, *p.ExternalPaymentID)
		}
		if err != nil {
			return errors.Wrap(err, "load existing purchase")
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (h *handle) SavePurchase(ctx context.Context, p *model.BitcoinPurchase) (err error) {
	defer func(start time.Time) { observe(h.metrics, "save_purchase", start, err) }(time.Now())
	p.TenantID = h.tenant.ID
	p.UpdatedAt = h.now().UTC()
	return h.purchases.UpdateOutcome(h.db.WithContext(ctx), p)
}

func (h *handle) GetPurchaseByIdempotencyKey(ctx context.Context, key string) (*model.BitcoinPurchase, error) {
	return h.purchases.GetByIdempotencyKey(h.db.WithContext(ctx), key)
}

func (h *handle) ListPayments(ctx context.Context, start, end time.Time) ([]model.Payment, error) {
	return h.payments.ListCreatedBetween(h.db.WithContext(ctx), start, end)
}

func (h *handle) ListPurchases(ctx context.Context, start, end time.Time) ([]model.BitcoinPurchase, error) {
	return h.purchases.ListCreatedBetween(h.db.WithContext(ctx), start, end)
}

func (h *handle) LookupPayments(ctx context.Context, externalPaymentIDs []string) ([]model.Payment, error) {
	return h.payments.ListByExternalIDs(h.db.WithContext(ctx), externalPaymentIDs)
}

func (h *handle) LookupPurchases(ctx context.Context, externalPaymentIDs []string) ([]model.BitcoinPurchase, error) {
	return h.purchases.ListByExternalIDs(h.db.WithContext(ctx), externalPaymentIDs)
}

func (h *handle) AppendReconciliationRecords(ctx context.Context, records []model.ReconciliationRecord) error {
	for i := range records {
		records[i].TenantID = h.tenant.ID
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}
	return h.records.Append(h.db.WithContext(ctx), records)
}

func (h *handle) ListReconciliationRecords(ctx context.Context, sweepID string) ([]model.ReconciliationRecord, error) {
	return h.records.ListBySweep(h.db.WithContext(ctx), sweepID)
}
