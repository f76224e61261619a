package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/exchange"
	"github.com/dwarvesf/treasury-settlement/internal/idempotency"
	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/tenant"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/webhook"
)

var (
	ErrMissingRunID = errors.New("scheduled conversion requires a run id")
	ErrInvalidEvent = errors.New("event is missing its id or provider")
)

type Options struct {
	Metrics MetricsRecorder
	Now     func() time.Time
}

type Controller struct {
	idempotency idempotency.IStore
	resolver    tenant.IResolver
	executor    exchange.IExecutor
	logger      *logger.Logger
	metrics     MetricsRecorder
	now         func() time.Time
}

func New(
	idem idempotency.IStore,
	resolver tenant.IResolver,
	executor exchange.IExecutor,
	logger *logger.Logger,
	opts Options,
) IController {
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		idempotency: idem,
		resolver:    resolver,
		executor:    executor,
		logger:      logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// PaymentPurchaseKey is the idempotency key of the purchase a payment
// triggers; it doubles as the exchange client order id.
func PaymentPurchaseKey(tenantID, externalPaymentID string) string {
	return tenantID + ":" + externalPaymentID
}

// ScheduledPurchaseKey is the idempotency key of one timer run.
func ScheduledPurchaseKey(tenantID, runID string) string {
	return tenantID + ":schedule:" + runID
}

func (c *Controller) IngestEvent(ctx context.Context, event *webhook.InboundEvent) (*IngestResult, error) {
	start := c.now()
	result, err := c.ingest(ctx, event)
	outcome := "failed"
	if err == nil {
		outcome = string(result.Outcome)
	}
	provider := ""
	if event != nil {
		provider = string(event.Provider)
	}
	c.metrics.RecordIngest(provider, outcome, c.now().Sub(start).Seconds())
	return result, err
}

func (c *Controller) ingest(ctx context.Context, event *webhook.InboundEvent) (*IngestResult, error) {
	if event == nil || event.EventID == "" || event.Provider == "" {
		return nil, ErrInvalidEvent
	}
	provider := string(event.Provider)
	fields := map[string]string{
		"eventID":  event.EventID,
		"provider": provider,
		"tenantID": event.TenantID,
	}

	reservation, err := c.idempotency.Reserve(ctx, event.EventID, provider, event.EventType)
	if err != nil {
		c.logger.Error("[IngestEvent][Reserve]", withError(fields, err))
		return nil, err
	}
	result := &IngestResult{
		EventID:  event.EventID,
		Provider: provider,
		TenantID: event.TenantID,
		Degraded: reservation.Degraded,
	}
	if reservation.IsDuplicate() {
		c.logger.Info("[IngestEvent] duplicate delivery skipped", fields)
		result.Outcome = OutcomeDuplicate
		return result, nil
	}
	if reservation.AlreadyReserved {
		c.logger.Warn("[IngestEvent] resuming an unfinished delivery", fields)
	}

	if event.Payment == nil {
		result.Outcome = OutcomeIgnored
		return result, c.complete(ctx, event, fields)
	}

	handle, err := c.resolver.Resolve(ctx, event.TenantID)
	if err != nil {
		c.logger.Error("[IngestEvent][Resolve]", withError(fields, err))
		return nil, err
	}

	recorded, err := handle.RecordPayment(ctx, &model.Payment{
		ExternalPaymentID: event.Payment.ExternalPaymentID,
		AmountMinorUnits:  event.Payment.AmountMinorUnits,
		Currency:          event.Payment.Currency,
		Status:            event.Payment.Status,
	})
	if err != nil {
		c.logger.Error("[IngestEvent][RecordPayment]", withError(fields, err))
		return nil, err
	}
	decision := recorded.Decision
	result.PaymentID = recorded.Payment.ID
	result.Decision = &decision

	if !decision.Convert {
		result.Outcome = OutcomeNoConversion
		return result, c.complete(ctx, event, fields)
	}

	externalID := recorded.Payment.ExternalPaymentID
	purchase, err := c.executePurchase(ctx, handle, &model.BitcoinPurchase{
		ExternalPaymentID: &externalID,
		IdempotencyKey:    PaymentPurchaseKey(handle.Tenant().ID, externalID),
		Trigger:           model.PurchaseTriggerPayment,
	}, decision.Amount)
	if err != nil {
		c.logger.Error("[IngestEvent][executePurchase]", withError(fields, err))
		return nil, err
	}
	result.Outcome = OutcomeConverted
	result.Purchase = purchase

	// a pending order is finished by the next delivery of this event
	if purchase.Status == model.PurchaseStatusPending {
		c.logger.Warn("[IngestEvent] purchase still pending, event left open", fields)
		return result, nil
	}
	return result, c.complete(ctx, event, fields)
}

func (c *Controller) TriggerScheduledConversion(ctx context.Context, tenantID, runID string) (*ConversionResult, error) {
	start := c.now()
	result, err := c.triggerScheduled(ctx, tenantID, runID)
	status := "failed"
	switch {
	case err != nil:
	case result.Purchase != nil:
		status = string(result.Purchase.Status)
	default:
		status = "no_conversion"
	}
	c.metrics.RecordScheduledRun(status, c.now().Sub(start).Seconds())
	return result, err
}

func (c *Controller) triggerScheduled(ctx context.Context, tenantID, runID string) (*ConversionResult, error) {
	if runID == "" {
		return nil, ErrMissingRunID
	}
	fields := map[string]string{"tenantID": tenantID, "runID": runID}

	handle, err := c.resolver.Resolve(ctx, tenantID)
	if err != nil {
		c.logger.Error("[TriggerScheduledConversion][Resolve]", withError(fields, err))
		return nil, err
	}

	decision, err := handle.EvaluateScheduled(ctx)
	if err != nil {
		c.logger.Error("[TriggerScheduledConversion][EvaluateScheduled]", withError(fields, err))
		return nil, err
	}
	result := &ConversionResult{TenantID: tenantID, RunID: runID, Decision: decision}
	if !decision.Convert {
		c.logger.Info("[TriggerScheduledConversion] no conversion", map[string]string{
			"tenantID": tenantID,
			"runID":    runID,
			"reason":   decision.Reason,
		})
		return result, nil
	}

	purchase, err := c.executePurchase(ctx, handle, &model.BitcoinPurchase{
		IdempotencyKey: ScheduledPurchaseKey(tenantID, runID),
		Trigger:        model.PurchaseTriggerSchedule,
	}, decision.Amount)
	if err != nil {
		c.logger.Error("[TriggerScheduledConversion][executePurchase]", withError(fields, err))
		return nil, err
	}
	result.Purchase = purchase
	return result, nil
}

// executePurchase reserves the pending row, calls the exchange outside any
// transaction and stores the outcome. A purchase that already reached a
// terminal state is returned as is.
func (c *Controller) executePurchase(ctx context.Context, handle tenant.IHandle, p *model.BitcoinPurchase, amount decimal.Decimal) (*model.BitcoinPurchase, error) {
	p.ID = uuid.NewString()
	p.Status = model.PurchaseStatusPending
	p.FiatAmount = amount
	p.BitcoinAmount = decimal.Zero
	p.ExchangeRate = decimal.Zero
	p.Fees = decimal.Zero

	purchase, created, err := handle.ReservePurchase(ctx, p)
	if err != nil {
		return nil, errors.Wrap(err, "reserve purchase")
	}
	if !created && purchase.IsTerminal() {
		c.logger.Info("[executePurchase] purchase already settled", map[string]string{
			"tenantID":       handle.Tenant().ID,
			"idempotencyKey": purchase.IdempotencyKey,
			"status":         string(purchase.Status),
		})
		return purchase, nil
	}

	start := c.now()
	res, execErr := c.executor.ExecuteBuyOrder(ctx, exchange.BuyOrderRequest{
		TenantID:           handle.Tenant().ID,
		AmountFiat:         amount,
		IdempotencyKey:     purchase.IdempotencyKey,
		DestinationAddress: handle.Tenant().WithdrawalAddress,
	})
	if execErr != nil {
		c.logger.Warn("[executePurchase][ExecuteBuyOrder]", map[string]string{
			"tenantID":       handle.Tenant().ID,
			"idempotencyKey": purchase.IdempotencyKey,
			"status":         string(res.Status),
			"error":          execErr.Error(),
		})
	}
	res.ApplyTo(purchase)
	if purchase.Status != model.PurchaseStatusCompleted && purchase.FiatAmount.IsZero() {
		// keep the decided amount on failed or pending rows for reconciliation
		purchase.FiatAmount = amount
	}
	c.metrics.RecordPurchase(string(purchase.Trigger), string(purchase.Status), c.now().Sub(start).Seconds())

	if err := handle.SavePurchase(ctx, purchase); err != nil {
		return nil, errors.Wrap(err, "save purchase")
	}
	return purchase, nil
}

func (c *Controller) complete(ctx context.Context, event *webhook.InboundEvent, fields map[string]string) error {
	if err := c.idempotency.Complete(ctx, event.EventID, string(event.Provider)); err != nil {
		c.logger.Error("[IngestEvent][Complete]", withError(fields, err))
		return err
	}
	return nil
}

func withError(fields map[string]string, err error) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}
