package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/consts"
	"github.com/dwarvesf/treasury-settlement/internal/model"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
	"github.com/dwarvesf/treasury-settlement/internal/utils/webhook"
)

const AlertKindExecutionFailed = "exchange_execution_failed"

// Alerter is told when an order needs a human.
type Alerter interface {
	Notify(ctx context.Context, alert webhook.Alert)
}

type Config struct {
	Pair               string
	FeeRate            decimal.Decimal
	MinOrderAmount     decimal.Decimal
	MaxAttempts        int
	InitialBackoff     time.Duration
	StatusPollAttempts int
	StatusPollInterval time.Duration
	Network            *chaincfg.Params
}

func ConfigFrom(appConfig *config.AppConfig) (Config, error) {
	params, err := NetworkParams(appConfig.Bitcoin.Network)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Pair:               appConfig.Exchange.Pair,
		FeeRate:            appConfig.Exchange.FeeRate,
		MinOrderAmount:     appConfig.Exchange.MinOrderAmount,
		MaxAttempts:        appConfig.Exchange.MaxAttempts,
		InitialBackoff:     appConfig.Exchange.InitialBackoff,
		StatusPollAttempts: appConfig.Exchange.StatusPollAttempts,
		StatusPollInterval: appConfig.Exchange.StatusPollInterval,
		Network:            params,
	}, nil
}

type Executor struct {
	backend IExchange
	cfg     Config
	alerter Alerter
	logger  *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewExecutor(backend IExchange, cfg Config, alerter Alerter, logger *logger.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	return &Executor{
		backend: backend,
		cfg:     cfg,
		alerter: alerter,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SplitFee returns the fee and the net amount left to buy with. The fee is
// charged once per order.
func (e *Executor) SplitFee(gross decimal.Decimal) (fee, net decimal.Decimal) {
	fee = gross.Mul(e.cfg.FeeRate).RoundBank(consts.FIAT_DECIMALS)
	return fee, gross.Sub(fee)
}

// BitcoinFor converts a net fiat amount at price into BTC at 8 decimals,
// rounding the exact quotient half to even.
func BitcoinFor(net, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	q, r := net.Abs().QuoRem(price, consts.BTC_DECIMALS)
	step := decimal.New(1, -consts.BTC_DECIMALS)
	switch r.Add(r).Cmp(price) {
	case 1:
		q = q.Add(step)
	case 0:
		if q.Shift(consts.BTC_DECIMALS).BigInt().Bit(0) == 1 {
			q = q.Add(step)
		}
	}
	if net.IsNegative() {
		return q.Neg()
	}
	return q
}

func (e *Executor) GetMarketPrice(ctx context.Context) (decimal.Decimal, error) {
	var price decimal.Decimal
	_, err := e.retry(ctx, "get_market_price", func(ctx context.Context) error {
		p, err := e.backend.GetMarketPrice(ctx, e.cfg.Pair)
		if err != nil {
			return err
		}
		if !p.IsPositive() {
			return Permanent("get_market_price", errors.Errorf("non-positive price %s", p))
		}
		price = p
		return nil
	})
	return price, err
}

func (e *Executor) GetOrderStatus(ctx context.Context, orderID string) (*Order, error) {
	var order *Order
	_, err := e.retry(ctx, "get_order_status", func(ctx context.Context) error {
		o, err := e.backend.GetOrderStatus(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func (e *Executor) validate(req BuyOrderRequest) error {
	if req.IdempotencyKey == "" {
		return Permanent("validate", errors.New("idempotency key is required"))
	}
	if !req.AmountFiat.IsPositive() {
		return Permanent("validate", ErrInvalidAmount)
	}
	if req.AmountFiat.LessThan(e.cfg.MinOrderAmount) {
		return Permanent("validate", errors.Wrapf(ErrBelowMinimum, "%s < %s", req.AmountFiat, e.cfg.MinOrderAmount))
	}
	if req.DestinationAddress != "" {
		if err := ValidateAddress(req.DestinationAddress, e.cfg.Network); err != nil {
			return Permanent("validate", err)
		}
	}
	return nil
}

func (e *Executor) ExecuteBuyOrder(ctx context.Context, req BuyOrderRequest) (*BuyOrderResult, error) {
	res := &BuyOrderResult{
		Status:        model.PurchaseStatusFailed,
		BitcoinAmount: decimal.Zero,
		FiatAmount:    decimal.Zero,
		ExchangeRate:  decimal.Zero,
		Fees:          decimal.Zero,
	}

	if err := e.validate(req); err != nil {
		return e.fail(ctx, req, res, err)
	}

	fee, net := e.SplitFee(req.AmountFiat)

	price, err := e.GetMarketPrice(ctx)
	if err != nil {
		return e.fail(ctx, req, res, err)
	}

	order, attempts, err := e.placeOrder(ctx, req.IdempotencyKey, net)
	res.Attempts = attempts
	if err != nil {
		return e.fail(ctx, req, res, err)
	}
	res.OrderID = order.ID

	order, err = e.awaitFill(ctx, order)
	if err != nil {
		// the order exists on the exchange; only a later poll can settle it
		return e.pending(ctx, req, res, errors.WithMessage(ErrOrderPending, err.Error()))
	}
	switch order.Status {
	case OrderStatusFilled:
	case OrderStatusPending:
		return e.pending(ctx, req, res, ErrOrderPending)
	default:
		return e.fail(ctx, req, res, Permanent("place_buy_order", errors.Wrap(ErrOrderRejected, order.RejectReason)))
	}

	rate := price
	if order.Price.IsPositive() {
		rate = order.Price
	}
	btc := order.BitcoinAmount
	if !btc.IsPositive() {
		btc = BitcoinFor(net, rate)
	}

	res.Status = model.PurchaseStatusCompleted
	res.FiatAmount = net
	res.Fees = fee
	res.ExchangeRate = rate
	res.BitcoinAmount = btc

	if req.DestinationAddress != "" {
		e.withdraw(ctx, req, res)
	}

	e.logger.Info("[Executor][ExecuteBuyOrder] order filled", map[string]string{
		"tenantID":       req.TenantID,
		"idempotencyKey": req.IdempotencyKey,
		"orderID":        res.OrderID,
		"fiatAmount":     net.String(),
		"fees":           fee.String(),
		"bitcoinAmount":  btc.String(),
		"attempts":       strconv.Itoa(res.Attempts),
	})
	return res, nil
}

// placeOrder retries ambiguous failures only after asking the backend
// whether the order already exists under the same client id.
func (e *Executor) placeOrder(ctx context.Context, clientOrderID string, net decimal.Decimal) (*Order, int, error) {
	var order *Order
	attempts, err := e.retry(ctx, "place_buy_order", func(ctx context.Context) error {
		o, err := e.backend.PlaceBuyOrder(ctx, OrderRequest{
			ClientOrderID: clientOrderID,
			Pair:          e.cfg.Pair,
			FiatAmount:    net,
		})
		if err == nil {
			order = o
			return nil
		}
		if IsTimeout(err) || IsTransient(err) {
			found, findErr := e.backend.FindOrderByClientID(ctx, clientOrderID)
			if findErr == nil && found != nil {
				e.logger.Warn("[Executor][placeOrder] recovered order after ambiguous failure", map[string]string{
					"clientOrderID": clientOrderID,
					"orderID":       found.ID,
					"error":         err.Error(),
				})
				order = found
				return nil
			}
		}
		return err
	})
	return order, attempts, err
}

func (e *Executor) awaitFill(ctx context.Context, order *Order) (*Order, error) {
	for i := 0; !order.IsFinal() && i < e.cfg.StatusPollAttempts; i++ {
		if err := e.sleep(ctx, e.cfg.StatusPollInterval); err != nil {
			return order, err
		}
		o, err := e.GetOrderStatus(ctx, order.ID)
		if err != nil {
			return order, err
		}
		order = o
	}
	return order, nil
}

func (e *Executor) withdraw(ctx context.Context, req BuyOrderRequest, res *BuyOrderResult) {
	_, err := e.retry(ctx, "withdraw", func(ctx context.Context) error {
		w, err := e.backend.Withdraw(ctx, WithdrawalRequest{
			ClientWithdrawalID: req.IdempotencyKey,
			Address:            req.DestinationAddress,
			BitcoinAmount:      res.BitcoinAmount,
		})
		if err != nil {
			return err
		}
		res.WithdrawalID = w.ID
		return nil
	})
	if err != nil {
		res.FailureReason = "withdrawal failed: " + err.Error()
		e.notify(ctx, req, res)
	}
}

// retry runs fn until it succeeds, fails permanently or runs out of
// attempts, doubling the backoff each time.
func (e *Executor) retry(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	backoff := e.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsRetryable(lastErr) {
			return attempt, lastErr
		}

		e.logger.Warn("[Executor][retry] retryable exchange error", map[string]string{
			"operation": op,
			"attempt":   strconv.Itoa(attempt),
			"backoff":   backoff.String(),
			"error":     lastErr.Error(),
		})
		if attempt == e.cfg.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, backoff); err != nil {
			return attempt, errors.Wrap(err, op)
		}
		backoff *= 2
	}
	return e.cfg.MaxAttempts, errors.Wrapf(lastErr, "%s: retries exhausted after %d attempts", op, e.cfg.MaxAttempts)
}

func (e *Executor) fail(ctx context.Context, req BuyOrderRequest, res *BuyOrderResult, err error) (*BuyOrderResult, error) {
	res.Status = model.PurchaseStatusFailed
	res.FailureReason = err.Error()
	e.notify(ctx, req, res)
	return res, err
}

// pending keeps an order that was placed but not confirmed open, so the
// next attempt re-drives it under the same client order id.
func (e *Executor) pending(ctx context.Context, req BuyOrderRequest, res *BuyOrderResult, err error) (*BuyOrderResult, error) {
	res.Status = model.PurchaseStatusPending
	res.FailureReason = err.Error()
	e.notify(ctx, req, res)
	return res, err
}

func (e *Executor) notify(ctx context.Context, req BuyOrderRequest, res *BuyOrderResult) {
	if e.alerter == nil {
		return
	}
	e.alerter.Notify(ctx, webhook.Alert{
		Kind:     AlertKindExecutionFailed,
		TenantID: req.TenantID,
		Message:  res.FailureReason,
		Details: map[string]string{
			"idempotencyKey": req.IdempotencyKey,
			"amountFiat":     req.AmountFiat.String(),
			"orderID":        res.OrderID,
			"status":         string(res.Status),
			"backend":        e.backend.Name(),
		},
	})
}
