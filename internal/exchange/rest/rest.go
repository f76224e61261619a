// Package rest talks to a brokerage over its signed REST API.
package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/treasury-settlement/internal/exchange"
	"github.com/dwarvesf/treasury-settlement/internal/utils/config"
	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

const Name = "rest"

const (
	headerAPIKey    = "X-API-Key"
	headerTimestamp = "X-API-Timestamp"
	headerSignature = "X-API-Signature"
)

type Client struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	logger    *logger.Logger
	now       func() time.Time
}

func New(cfg config.ExchangeConfig, logger *logger.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.RequestTimeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *Client) Name() string {
	return Name
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tickerResponse struct {
	Price decimal.Decimal `json:"price"`
}

type placeOrderBody struct {
	ClientOrderID string          `json:"clientOrderId"`
	Pair          string          `json:"pair"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	QuoteAmount   decimal.Decimal `json:"quoteAmount"`
}

type ordersResponse struct {
	Orders []exchange.Order `json:"orders"`
}

// Sign returns the hex HMAC-SHA256 of timestamp, method, path and body.
func Sign(secret, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}, out interface{}) (*resty.Response, error) {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return nil, exchange.Permanent(op, err)
		}
	}

	signedPath := path
	if len(query) > 0 {
		signedPath += "?" + query.Encode()
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)

	var apiErr apiError
	req := c.http.R().
		SetContext(ctx).
		SetHeader(headerAPIKey, c.apiKey).
		SetHeader(headerTimestamp, ts).
		SetHeader(headerSignature, Sign(c.apiSecret, ts, method, signedPath, raw)).
		SetQueryParamsFromValues(query).
		SetError(&apiErr)
	if raw != nil {
		req.SetBody(raw)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return resp, classifyTransportError(op, err)
	}
	if resp.IsError() {
		return resp, classifyStatus(op, resp.StatusCode(), apiErr)
	}
	return resp, nil
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return exchange.Timeout(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return exchange.Timeout(op, err)
	}
	return exchange.Transient(op, err)
}

func classifyStatus(op string, status int, apiErr apiError) error {
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := errors.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests:
		return exchange.Transient(op, errors.Wrap(exchange.ErrRateLimited, cause.Error()))
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return exchange.Timeout(op, cause)
	case status >= 500:
		return exchange.Transient(op, cause)
	case status == http.StatusNotFound:
		return exchange.Permanent(op, errors.Wrap(exchange.ErrOrderNotFound, cause.Error()))
	case apiErr.Code == "insufficient_liquidity":
		return exchange.Transient(op, errors.Wrap(exchange.ErrInsufficientLiquidity, cause.Error()))
	case apiErr.Code == "below_minimum":
		return exchange.Permanent(op, errors.Wrap(exchange.ErrBelowMinimum, cause.Error()))
	case apiErr.Code == "invalid_address":
		return exchange.Permanent(op, errors.Wrap(exchange.ErrInvalidAddress, cause.Error()))
	default:
		return exchange.Permanent(op, cause)
	}
}

func (c *Client) GetMarketPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	var out tickerResponse
	if _, err := c.do(ctx, "get_market_price", http.MethodGet, "/v1/markets/"+url.PathEscape(pair)+"/ticker", nil, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Price, nil
}

// PlaceBuyOrder treats 409 as "already placed" and returns the existing order.
func (c *Client) PlaceBuyOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	var out exchange.Order
	resp, err := c.do(ctx, "place_buy_order", http.MethodPost, "/v1/orders", nil, placeOrderBody{
		ClientOrderID: req.ClientOrderID,
		Pair:          req.Pair,
		Side:          "buy",
		Type:          "market",
		QuoteAmount:   req.FiatAmount,
	}, &out)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusConflict {
			c.logger.Info("[RestExchange][PlaceBuyOrder] order already exists", map[string]string{
				"clientOrderID": req.ClientOrderID,
			})
			return c.FindOrderByClientID(ctx, req.ClientOrderID)
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*exchange.Order, error) {
	var out exchange.Order
	if _, err := c.do(ctx, "get_order_status", http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FindOrderByClientID(ctx context.Context, clientOrderID string) (*exchange.Order, error) {
	var out ordersResponse
	query := url.Values{"clientOrderId": []string{clientOrderID}}
	if _, err := c.do(ctx, "find_order_by_client_id", http.MethodGet, "/v1/orders", query, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Orders) == 0 {
		return nil, exchange.ErrOrderNotFound
	}
	return &out.Orders[0], nil
}

func (c *Client) Withdraw(ctx context.Context, req exchange.WithdrawalRequest) (*exchange.Withdrawal, error) {
	var out exchange.Withdrawal
	if _, err := c.do(ctx, "withdraw", http.MethodPost, "/v1/withdrawals", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
