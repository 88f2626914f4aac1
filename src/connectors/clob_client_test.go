package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgeengine/src/model"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := Config{
		CLOBBaseURL:        server.URL,
		APIKey:             "key",
		APISecret:          "secret",
		APIPassphrase:      "pass",
		RequestTimeout:     2 * time.Second,
		RetryAttempts:      1,
		RatePerSec:         100,
		RateBurst:          100,
		BalanceGracePeriod: time.Minute,
	}

	return NewClient(config), server
}

func TestPlaceOrderSuccess(t *testing.T) {
	var gotBody PlaceOrderRequest

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/order", r.URL.Path)
		require.NotEmpty(t, r.Header.Get("POLY-SIGNATURE"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(OrderAck{OrderID: "ex-1", Status: ExchangeOrderLive, Success: true})
	}))

	ack, err := client.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID: "tok-1",
		Side:    "BUY",
		Price:   0.55,
		Size:    10,
	})
	require.NoError(t, err)

	assert.Equal(t, "ex-1", ack.OrderID)
	assert.Equal(t, "tok-1", gotBody.TokenID)
	// A client ID must be generated when the caller omits one.
	assert.NotEmpty(t, gotBody.ClientID)
}

func TestPlaceOrderFatalRejection(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OrderAck{Success: false, Error: "INSUFFICIENT_BALANCE: not enough USDC"})
	}))

	_, err := client.PlaceOrder(context.Background(), PlaceOrderRequest{TokenID: "tok-1", Side: "BUY"})
	require.Error(t, err)

	var transient *model.TransientExchangeError
	assert.False(t, errors.As(err, &transient), "fatal rejection must not be classified transient")
}

func TestPlaceOrderTransientRejection(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OrderAck{Success: false, Error: "RATE_LIMITED: slow down"})
	}))

	_, err := client.PlaceOrder(context.Background(), PlaceOrderRequest{TokenID: "tok-1", Side: "BUY"})
	require.Error(t, err)

	var transient *model.TransientExchangeError
	assert.True(t, errors.As(err, &transient))
}

func TestCancelOrderConfirmed(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		_, _ = w.Write([]byte(`{"canceled": true}`))
	}))

	confirmed, err := client.CancelOrder(context.Background(), "ex-1")
	require.NoError(t, err)
	assert.True(t, confirmed)
}

func TestGetBalanceGracePeriod(t *testing.T) {
	healthy := true

	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"asset": "USDC", "balance": "123.45"}`))
	}))

	balance, err := client.GetBalance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 123.45, balance)

	// Outage within the grace period serves the last good reading.
	healthy = false
	balance, err = client.GetBalance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 123.45, balance)

	// Expired grace surfaces the outage.
	client.balanceMu.Lock()
	client.lastBalanceA["USDC"] = time.Now().Add(-2 * time.Minute)
	client.balanceMu.Unlock()

	_, err = client.GetBalance(context.Background(), "USDC")
	require.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg           string
		wantCode      string
		wantTransient bool
	}{
		{msg: "RATE_LIMITED: too fast", wantCode: "RATE_LIMITED", wantTransient: true},
		{msg: "MARKET_CLOSED", wantCode: "MARKET_CLOSED", wantTransient: false},
		{msg: "something new", wantCode: "SOMETHING", wantTransient: false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			code, transient := classifyError(tt.msg)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantTransient, transient)
		})
	}
}
