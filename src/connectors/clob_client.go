// REST API CLIENT FOR THE BINARY-MARKET CLOB
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"edgeengine/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// Exchange-reported order states.
const (
	ExchangeOrderLive      = "LIVE"
	ExchangeOrderMatched   = "MATCHED"
	ExchangeOrderCancelled = "CANCELED"
)

// -----------------------------
// REQUEST / RESPONSE SHAPES
// -----------------------------

// PlaceOrderRequest is a fully-specified order instruction.
type PlaceOrderRequest struct {
	TokenID     string  `json:"token_id"`
	Side        string  `json:"side"` // BUY or SELL
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	OrderType   string  `json:"order_type"`    // GTC or FOK
	ClientID    string  `json:"client_id"`     // locally generated, idempotent
	TimeInForce string  `json:"time_in_force"` // IOC for market-style fills
}

// OrderAck is the exchange acknowledgement of a placement.
type OrderAck struct {
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Error   string `json:"errorMsg"`
}

// OrderState is the exchange truth for one order, used by reconciliation.
type OrderState struct {
	OrderID      string  `json:"id"`
	Status       string  `json:"status"`
	Price        float64 `json:"price,string"`
	OriginalSize float64 `json:"original_size,string"`
	MatchedSize  float64 `json:"size_matched,string"`
}

// BookSnapshot is the top-of-book view for one token.
type BookSnapshot struct {
	BestBid   float64 `json:"best_bid,string"`
	BestAsk   float64 `json:"best_ask,string"`
	Midpoint  float64 `json:"mid,string"`
	BidDepth  float64 `json:"bid_depth,string"`
	AskDepth  float64 `json:"ask_depth,string"`
	Timestamp int64   `json:"timestamp,string"`
}

// Imbalance returns the signed depth imbalance in [-1, 1].
func (b *BookSnapshot) Imbalance() float64 {
	total := b.BidDepth + b.AskDepth
	if total == 0 {
		return 0
	}
	return (b.BidDepth - b.AskDepth) / total
}

type balanceResponse struct {
	Asset   string  `json:"asset"`
	Balance float64 `json:"balance,string"`
}

// -----------------------------
// AUTHENTICATED CLIENT
// -----------------------------

// Client talks to the CLOB REST API. Every call carries a timeout and
// transient failures are retried with bounded backoff inside resty.
type Client struct {
	apiKey     string
	apiSecret  string
	passphrase string
	baseURL    string
	http       *resty.Client
	limiter    *rate.Limiter

	// Last good balance per asset, for the outage grace period.
	balanceMu    sync.Mutex
	lastBalance  map[string]float64
	lastBalanceA map[string]time.Time
	gracePeriod  time.Duration
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewClient builds an authenticated CLOB client from config.
func NewClient(config Config) *Client {
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	retryCount := attempts - 1

	baseURL := config.CLOBBaseURL
	if baseURL == "" {
		baseURL = "https://clob.polymarket.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.RequestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		apiKey:       config.APIKey,
		apiSecret:    config.APISecret,
		passphrase:   config.APIPassphrase,
		baseURL:      baseURL,
		http:         httpClient,
		limiter:      rate.NewLimiter(rate.Limit(config.RatePerSec), config.RateBurst),
		lastBalance:  map[string]float64{},
		lastBalanceA: map[string]time.Time{},
		gracePeriod:  config.BalanceGracePeriod,
	}
}

func signRequest(method, path, body string, timestamp int64, secret string) string {
	base := fmt.Sprintf("%d%s%s%s", timestamp, method, path, body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	timestamp := time.Now().Unix()
	sig := signRequest(method, path, string(body), timestamp, c.apiSecret)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("POLY-API-KEY", c.apiKey).
		SetHeader("POLY-PASSPHRASE", c.passphrase).
		SetHeader("POLY-TIMESTAMP", fmt.Sprintf("%d", timestamp)).
		SetHeader("POLY-SIGNATURE", sig)

	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		// Resty already exhausted its retries here.
		return fmt.Errorf("%w: %v", model.ErrExchangeUnavailable, err)
	}

	if isRetryableResp(resp, nil) {
		return &model.TransientExchangeError{
			Op:  method + " " + path,
			Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body())),
		}
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return err
		}
	}

	return nil
}

// -----------------------------
// TRADING METHODS
// -----------------------------

// PlaceOrder submits an order. The caller-provided ClientID (or a generated
// one) makes resubmission after a transport error idempotent on the
// exchange side.
func (c *Client) PlaceOrder(ctx context.Context, order PlaceOrderRequest) (*OrderAck, error) {
	if order.ClientID == "" {
		order.ClientID = uuid.NewString()
	}

	logger.WithFields(map[string]interface{}{
		"token_id":  order.TokenID,
		"side":      order.Side,
		"price":     order.Price,
		"size":      order.Size,
		"client_id": order.ClientID,
	}).Info("Placing order on CLOB")

	b, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	var ack OrderAck
	if err := c.doRequest(ctx, "POST", "/order", b, &ack); err != nil {
		return nil, err
	}

	if !ack.Success {
		if code, transient := classifyError(ack.Error); transient {
			return nil, &model.TransientExchangeError{
				Op:  "PlaceOrder",
				Err: fmt.Errorf("clob error %s", code),
			}
		}
		return nil, fmt.Errorf("clob rejected order: %s", ack.Error)
	}

	return &ack, nil
}

// CancelOrder requests cancellation and reports whether the exchange
// confirmed it. Cancel-then-replace flows must see confirmed == true before
// placing the replacement.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	logger.WithField("exchange_order_id", exchangeOrderID).Info("Cancelling order on CLOB")

	b, err := json.Marshal(map[string]string{"orderID": exchangeOrderID})
	if err != nil {
		return false, err
	}

	var resp struct {
		Canceled bool   `json:"canceled"`
		Error    string `json:"errorMsg"`
	}
	if err := c.doRequest(ctx, "DELETE", "/order", b, &resp); err != nil {
		return false, err
	}

	if !resp.Canceled && resp.Error != "" {
		return false, fmt.Errorf("clob cancel failed: %s", resp.Error)
	}

	return resp.Canceled, nil
}

// GetOrder queries the exchange truth for one order.
func (c *Client) GetOrder(ctx context.Context, exchangeOrderID string) (*OrderState, error) {
	var state OrderState
	if err := c.doRequest(ctx, "GET", "/data/order/"+exchangeOrderID, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// -----------------------------
// ACCOUNT METHODS
// -----------------------------

// GetBalance returns the available balance for an asset. During a sustained
// balance-API outage the last good reading is served for a bounded grace
// period; after that the outage is surfaced so callers stop relying on
// balance checks rather than failing closed.
func (c *Client) GetBalance(ctx context.Context, asset string) (float64, error) {
	var resp balanceResponse
	err := c.doRequest(ctx, "GET", "/balance/"+asset, nil, &resp)
	if err == nil {
		c.balanceMu.Lock()
		c.lastBalance[asset] = resp.Balance
		c.lastBalanceA[asset] = time.Now()
		c.balanceMu.Unlock()
		return resp.Balance, nil
	}

	c.balanceMu.Lock()
	last, ok := c.lastBalance[asset]
	at := c.lastBalanceA[asset]
	c.balanceMu.Unlock()

	if ok && time.Since(at) <= c.gracePeriod {
		logger.WithFields(map[string]interface{}{
			"asset":       asset,
			"last_update": at,
		}).WithError(err).Warn("Balance API unavailable, serving last good reading within grace period")

		return last, nil
	}

	return 0, err
}

// -----------------------------
// MARKET DATA METHODS
// -----------------------------

// GetBook returns the order-book snapshot for a token.
func (c *Client) GetBook(ctx context.Context, tokenID string) (*BookSnapshot, error) {
	var book BookSnapshot
	if err := c.doRequest(ctx, "GET", "/book?token_id="+tokenID, nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// GetMidpoint returns the current midpoint for a token.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	var resp struct {
		Mid float64 `json:"mid,string"`
	}
	if err := c.doRequest(ctx, "GET", "/midpoint?token_id="+tokenID, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Mid, nil
}

// MarketInfo describes one binary market and its resolution state.
type MarketInfo struct {
	Slug          string `json:"slug"`
	ConditionID   string `json:"condition_id"`
	TokenID       string `json:"token_id_up"`
	TokenIDDown   string `json:"token_id_down"`
	Closed        bool   `json:"closed"`
	WinnerTokenID string `json:"winner_token_id"`
}

// GetMarket fetches market identifiers and resolution state by slug.
func (c *Client) GetMarket(ctx context.Context, slug string) (*MarketInfo, error) {
	var market MarketInfo
	if err := c.doRequest(ctx, "GET", "/markets/"+slug, nil, &market); err != nil {
		return nil, err
	}
	return &market, nil
}

// MarketSlug builds the canonical slug for a symbol's 15-minute market.
// BTC at 2026-03-01 12:00 UTC -> btc-updown-2026-03-01-1200.
func MarketSlug(symbol string, slotStart time.Time) string {
	return fmt.Sprintf("%s-updown-%s",
		strings.ToLower(symbol),
		slotStart.UTC().Format("2006-01-02-1504"))
}
