// Package simulated is an in-memory exchange for development and tests.
// Each instance owns its state; nothing is shared between instances.
package simulated

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/exchange"
)

const Name = "simulated"

const (
	OpGetMarketPrice      = "get_market_price"
	OpPlaceBuyOrder       = "place_buy_order"
	OpGetOrderStatus      = "get_order_status"
	OpFindOrderByClientID = "find_order_by_client_id"
	OpWithdraw            = "withdraw"
)

var ErrNotRunning = errors.New("simulated exchange is not running")

type Options struct {
	Price decimal.Decimal
	// PendingPolls is how many status reads an order stays pending for.
	PendingPolls int
}

type failure struct {
	err   error
	times int
	// afterEffect applies the operation before returning err, like a
	// response lost after the exchange accepted the request.
	afterEffect bool
}

type Exchange struct {
	mu          sync.Mutex
	running     bool
	closed      bool
	price       decimal.Decimal
	pending     int
	seq         int
	orders      map[string]*exchange.Order
	byClient    map[string]string
	polls       map[string]int
	withdrawals map[string]*exchange.Withdrawal
	failures    map[string][]*failure
	calls       map[string]int
}

func New(opts Options) *Exchange {
	return &Exchange{
		price:       opts.Price,
		pending:     opts.PendingPolls,
		orders:      map[string]*exchange.Order{},
		byClient:    map[string]string{},
		polls:       map[string]int{},
		withdrawals: map[string]*exchange.Withdrawal{},
		failures:    map[string][]*failure{},
		calls:       map[string]int{},
	}
}

// Start makes the exchange accept calls. A closed exchange cannot restart.
func (e *Exchange) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrNotRunning
	}
	e.running = true
	return nil
}

func (e *Exchange) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.closed = true
	return nil
}

func (e *Exchange) Name() string {
	return Name
}

func (e *Exchange) SetPrice(price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.price = price
}

// InjectFailure makes the next times calls of op return err.
func (e *Exchange) InjectFailure(op string, err error, times int) {
	e.inject(op, &failure{err: err, times: times})
}

// InjectFailureAfterEffect applies op and then returns err.
func (e *Exchange) InjectFailureAfterEffect(op string, err error, times int) {
	e.inject(op, &failure{err: err, times: times, afterEffect: true})
}

func (e *Exchange) inject(op string, f *failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = append(e.failures[op], f)
}

func (e *Exchange) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

func (e *Exchange) OrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

// begin must be called with mu held.
func (e *Exchange) begin(ctx context.Context, op string) (*failure, error) {
	e.calls[op]++
	if err := ctx.Err(); err != nil {
		return nil, exchange.Timeout(op, err)
	}
	if !e.running {
		return nil, exchange.Permanent(op, ErrNotRunning)
	}

	queue := e.failures[op]
	if len(queue) == 0 {
		return nil, nil
	}
	f := queue[0]
	f.times--
	if f.times <= 0 {
		e.failures[op] = queue[1:]
	}
	if f.afterEffect {
		return f, nil
	}
	return nil, f.err
}

func (e *Exchange) GetMarketPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.begin(ctx, OpGetMarketPrice); err != nil {
		return decimal.Zero, err
	}
	return e.price, nil
}

func (e *Exchange) PlaceBuyOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	after, err := e.begin(ctx, OpPlaceBuyOrder)
	if err != nil {
		return nil, err
	}

	if id, ok := e.byClient[req.ClientOrderID]; ok {
		o := *e.orders[id]
		return &o, nil
	}
	if !req.FiatAmount.IsPositive() {
		return nil, exchange.Permanent(OpPlaceBuyOrder, exchange.ErrInvalidAmount)
	}
	if !e.price.IsPositive() {
		return nil, exchange.Transient(OpPlaceBuyOrder, exchange.ErrInsufficientLiquidity)
	}

	e.seq++
	o := &exchange.Order{
		ID:            fmt.Sprintf("sim-%06d", e.seq),
		ClientOrderID: req.ClientOrderID,
		Pair:          req.Pair,
		Status:        exchange.OrderStatusFilled,
		FiatAmount:    req.FiatAmount,
		BitcoinAmount: exchange.BitcoinFor(req.FiatAmount, e.price),
		Price:         e.price,
	}
	if e.pending > 0 {
		o.Status = exchange.OrderStatusPending
	}
	e.orders[o.ID] = o
	e.byClient[req.ClientOrderID] = o.ID

	if after != nil {
		return nil, after.err
	}
	out := *o
	return &out, nil
}

func (e *Exchange) GetOrderStatus(ctx context.Context, orderID string) (*exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.begin(ctx, OpGetOrderStatus); err != nil {
		return nil, err
	}

	o, ok := e.orders[orderID]
	if !ok {
		return nil, exchange.Permanent(OpGetOrderStatus, exchange.ErrOrderNotFound)
	}
	if o.Status == exchange.OrderStatusPending {
		e.polls[orderID]++
		if e.polls[orderID] >= e.pending {
			o.Status = exchange.OrderStatusFilled
		}
	}
	out := *o
	return &out, nil
}

func (e *Exchange) FindOrderByClientID(ctx context.Context, clientOrderID string) (*exchange.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.begin(ctx, OpFindOrderByClientID); err != nil {
		return nil, err
	}

	id, ok := e.byClient[clientOrderID]
	if !ok {
		return nil, exchange.ErrOrderNotFound
	}
	out := *e.orders[id]
	return &out, nil
}

func (e *Exchange) Withdraw(ctx context.Context, req exchange.WithdrawalRequest) (*exchange.Withdrawal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	after, err := e.begin(ctx, OpWithdraw)
	if err != nil {
		return nil, err
	}

	w, ok := e.withdrawals[req.ClientWithdrawalID]
	if !ok {
		e.seq++
		w = &exchange.Withdrawal{ID: fmt.Sprintf("simw-%06d", e.seq), Status: "submitted"}
		e.withdrawals[req.ClientWithdrawalID] = w
	}
	if after != nil {
		return nil, after.err
	}
	out := *w
	return &out, nil
}
