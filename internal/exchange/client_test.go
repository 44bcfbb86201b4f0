package exchange_test

import (
	"PosTrack/internal/exchange"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Known-answer vector from the futures API documentation.
func TestSignature_DocumentationVector(t *testing.T) {
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"

	got := exchange.Signature(secret, payload)
	require.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", got)
}

func TestClient_OrdersSignsAndDecodes(t *testing.T) {
	creds := exchange.Credentials{APIKey: "key-1", SecretKey: "secret-1"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/allOrders", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get("X-MBX-APIKEY"))
		require.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))

		// signature must cover everything before the signature parameter
		raw := r.URL.RawQuery
		idx := strings.Index(raw, "&signature=")
		require.Greater(t, idx, 0)
		require.Equal(t, exchange.Signature("secret-1", raw[:idx]), raw[idx+len("&signature="):])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"orderId": 42, "symbol": "ETHUSDT", "status": "FILLED",
			"side": "BUY", "positionSide": "LONG", "type": "MARKET",
			"executedQty": "1.5", "avgPrice": "2000", "cumQuote": "3000",
			"time": 1709294400000}]`))
	}))
	defer srv.Close()

	c := exchange.NewClient(exchange.Config{BaseURL: srv.URL})
	orders, err := c.Orders(context.Background(), creds, "ETHUSDT", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(42), orders[0].OrderID)
	require.Equal(t, "FILLED", orders[0].Status)
	require.Equal(t, "1.5", orders[0].ExecutedQty)
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -2015, "msg": "Invalid API-key"}`))
	}))
	defer srv.Close()

	c := exchange.NewClient(exchange.Config{BaseURL: srv.URL})
	_, err := c.AccountInfo(context.Background(), exchange.Credentials{APIKey: "k", SecretKey: "s"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "-2015")
}

func TestActiveSymbols_SkipsFlatEntries(t *testing.T) {
	risks := []exchange.PositionRisk{
		{Symbol: "BTCUSDT", PositionAmt: "0.5", UnRealizedProfit: "10"},
		{Symbol: "ETHUSDT", PositionAmt: "0", UnRealizedProfit: "0"},
		{Symbol: "SOLUSDT", PositionAmt: "0", UnRealizedProfit: "-3.2"},
		{Symbol: "BTCUSDT", PositionAmt: "-0.1", UnRealizedProfit: "0"}, // hedge leg, dedup
	}

	require.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, exchange.ActiveSymbols(risks))
}

func TestLeverageBySymbol(t *testing.T) {
	risks := []exchange.PositionRisk{
		{Symbol: "BTCUSDT", Leverage: "20"},
		{Symbol: "BTCUSDT", Leverage: "10"}, // hedge legs can differ, keep the max
		{Symbol: "ETHUSDT", Leverage: ""},
	}

	lev := exchange.LeverageBySymbol(risks)
	require.Equal(t, 20, lev["BTCUSDT"])
	require.Equal(t, 1, lev["ETHUSDT"])
}
