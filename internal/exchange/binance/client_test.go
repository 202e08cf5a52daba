package binance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"trade-manager/internal/core"
)

func TestParseAPIError(t *testing.T) {
	err := parseAPIError(http.StatusBadRequest, []byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("AsAPIError() ok = false for %v", err)
	}
	if apiErr.Code != -2010 {
		t.Fatalf("apiErr.Code = %d, want -2010", apiErr.Code)
	}
	if !errors.Is(err, core.ErrInsufficientBalance) || !errors.Is(err, core.ErrOrderRejected) {
		t.Fatalf("parseAPIError() = %v, want insufficient balance and order rejected", err)
	}

	err = parseAPIError(http.StatusBadRequest, []byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	if !errors.Is(err, core.ErrSymbolInfoNotFound) {
		t.Fatalf("parseAPIError(-1121) = %v, want symbol info not found", err)
	}

	err = parseAPIError(http.StatusBadGateway, []byte("bad gateway"))
	if _, ok := AsAPIError(err); ok {
		t.Fatalf("parseAPIError(non-json) unexpectedly returned APIError: %v", err)
	}
	if !strings.Contains(err.Error(), "http error 502") {
		t.Fatalf("parseAPIError(non-json) = %v, want http error", err)
	}
}

func TestParseSymbolInfo(t *testing.T) {
	src := symbolInfoResponse{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Filters: []symbolFilter{
			{FilterType: "LOT_SIZE", MinQty: "0.0001", StepSize: "0.00010000"},
			{FilterType: "PRICE_FILTER", TickSize: "0.01"},
			{FilterType: "MIN_NOTIONAL", MinNotional: "5"},
			{FilterType: "NOTIONAL", MinNotional: "10"},
		},
	}
	info := parseSymbolInfo(src)
	if info.baseAsset != "BTC" || info.quoteAsset != "USDT" {
		t.Fatalf("assets = %s/%s, want BTC/USDT", info.baseAsset, info.quoteAsset)
	}
	if !info.rules.QtyStep.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("QtyStep = %s, want 0.0001", info.rules.QtyStep)
	}
	if !info.rules.MinNotional.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("MinNotional = %s, want stricter 10", info.rules.MinNotional)
	}
	if info.rules.Precision != 4 {
		t.Fatalf("Precision = %d, want 4", info.rules.Precision)
	}
}

func TestMarketBuyOrdersWholeUnits(t *testing.T) {
	var orderBody url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/account":
			assertSigned(t, "s", r.URL.Query())
			if r.Header.Get("X-MBX-APIKEY") != "k" {
				t.Errorf("X-MBX-APIKEY = %q, want k", r.Header.Get("X-MBX-APIKEY"))
			}
			_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"150.00","locked":"0"}]}`))
		case "/api/v3/ticker/price":
			if r.URL.Query().Get("symbol") != "SOLUSDT" {
				t.Errorf("symbol = %q, want SOLUSDT", r.URL.Query().Get("symbol"))
			}
			_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","price":"30"}`))
		case "/api/v3/order":
			body, _ := io.ReadAll(r.Body)
			values, err := url.ParseQuery(string(body))
			if err != nil {
				t.Errorf("parse order body: %v", err)
			}
			orderBody = values
			assertSigned(t, "s", values)
			_, _ = w.Write([]byte(`{"symbol":"SOLUSDT","orderId":42,"clientOrderId":"` + values.Get("newClientOrderId") + `","status":"FILLED","cummulativeQuoteQty":"90"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{Account: "main", APIKey: "k", APISecret: "s", RestBaseURL: srv.URL, RecvWindowMs: 5000, ClientOrderPrefix: "tm"})
	res, err := client.MarketBuy(context.Background(), "sol", decimal.RequireFromString("100.129"))
	if err != nil {
		t.Fatalf("MarketBuy() error = %v", err)
	}
	if orderBody.Get("quantity") != "3" || orderBody.Get("side") != "BUY" || orderBody.Get("type") != "MARKET" {
		t.Fatalf("order body = %v, want BUY MARKET quantity 3", orderBody)
	}
	if !strings.HasPrefix(orderBody.Get("newClientOrderId"), "tm-") {
		t.Fatalf("newClientOrderId = %q, want tm- prefix", orderBody.Get("newClientOrderId"))
	}
	if res.OrderID != "42" || res.Status != "FILLED" || res.Account != "main" {
		t.Fatalf("MarketBuy() = %+v", res)
	}
	if !res.Notional.Equal(decimal.RequireFromString("100.12")) {
		t.Fatalf("Notional = %s, want 100.12", res.Notional)
	}
}

func TestMarketBuyInsufficientBalanceSkipsOrder(t *testing.T) {
	var orderCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/account":
			_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"10","locked":"0"}]}`))
		case "/api/v3/order":
			atomic.AddInt32(&orderCalls, 1)
		default:
			_, _ = w.Write([]byte(`{"price":"1"}`))
		}
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL})
	_, err := client.MarketBuy(context.Background(), "BTC", decimal.NewFromInt(50))
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("MarketBuy() error = %v, want insufficient balance", err)
	}
	if atomic.LoadInt32(&orderCalls) != 0 {
		t.Fatalf("order calls = %d, want 0", orderCalls)
	}
}

func TestMarketSellAllWithoutBalanceSkipsOrder(t *testing.T) {
	var orderCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/account":
			_, _ = w.Write([]byte(`{"balances":[{"asset":"ETH","free":"0","locked":"0.5"},{"asset":"USDT","free":"10","locked":"0"}]}`))
		case "/api/v3/order":
			atomic.AddInt32(&orderCalls, 1)
			w.WriteHeader(http.StatusBadRequest)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL})
	_, err := client.MarketSellAll(context.Background(), "ETH")
	if !errors.Is(err, core.ErrNoBalance) {
		t.Fatalf("MarketSellAll() error = %v, want no balance", err)
	}
	if atomic.LoadInt32(&orderCalls) != 0 {
		t.Fatalf("order calls = %d, want 0", orderCalls)
	}
}

func TestMarketSellAllRejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/account":
			_, _ = w.Write([]byte(`{"balances":[{"asset":"XRP","free":"12.7","locked":"0"}]}`))
		case "/api/v3/order":
			body, _ := io.ReadAll(r.Body)
			values, _ := url.ParseQuery(string(body))
			if values.Get("quantity") != "12" {
				t.Errorf("quantity = %q, want 12", values.Get("quantity"))
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1013,"msg":"Filter failure: NOTIONAL"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL})
	_, err := client.MarketSellAll(context.Background(), "xrp")
	if !errors.Is(err, core.ErrOrderRejected) || !errors.Is(err, core.ErrAmountTooSmall) {
		t.Fatalf("MarketSellAll() error = %v, want rejected amount too small", err)
	}
}

func TestRecentTradesSortedAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/myTrades" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("limit") != "200" {
			t.Errorf("limit = %q, want 200", r.URL.Query().Get("limit"))
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","price":"12","qty":"2","time":2000,"isBuyer":true},
			{"symbol":"BTCUSDT","price":"10","qty":"1","time":1000,"isBuyer":true}
		]`))
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL})
	trades, err := client.RecentTrades(context.Background(), "BTC", 0)
	if err != nil {
		t.Fatalf("RecentTrades() error = %v", err)
	}
	if len(trades) != 2 || trades[0].Time != 1000 || !trades[0].Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("RecentTrades() = %+v, want ascending by time", trades)
	}
}

func TestBalancesFailureIsBalanceQueryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL})
	_, err := client.Balances(context.Background())
	if !errors.Is(err, core.ErrBalanceQuery) {
		t.Fatalf("Balances() error = %v, want balance query error", err)
	}
	if !strings.Contains(err.Error(), "Invalid API-key") {
		t.Fatalf("Balances() error = %v, want provider message", err)
	}
}

func TestPriceWithoutFieldIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT"}`))
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{RestBaseURL: srv.URL})
	if _, err := client.Price(context.Background(), "BTC"); !errors.Is(err, core.ErrPriceUnavailable) {
		t.Fatalf("Price() error = %v, want price unavailable", err)
	}
}

func TestPlaceOrderWS(t *testing.T) {
	var restCalls int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/account":
			_, _ = w.Write([]byte(`{"balances":[{"asset":"DOGE","free":"250.9","locked":"0"}]}`))
			return
		case "/ws-api/v3":
		default:
			atomic.AddInt32(&restCalls, 1)
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read ws request: %v", err)
			return
		}
		if req.Method != "order.place" {
			t.Errorf("method = %q, want order.place", req.Method)
		}
		if req.Params["quantity"] != "250" || req.Params["side"] != "SELL" || req.Params["apiKey"] != "k" {
			t.Errorf("params = %v", req.Params)
		}
		if _, ok := req.Params["signature"].(string); !ok {
			t.Errorf("signature missing: %v", req.Params)
		}
		_ = conn.WriteJSON(map[string]any{
			"id":     req.ID,
			"status": 200,
			"result": map[string]any{"orderId": 7, "clientOrderId": req.Params["newClientOrderId"], "status": "FILLED"},
		})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws-api/v3"
	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL, WSBaseURL: wsURL})
	defer client.Close()

	res, err := client.MarketSellAll(context.Background(), "DOGE")
	if err != nil {
		t.Fatalf("MarketSellAll() error = %v", err)
	}
	if res.OrderID != "7" || res.Status != "FILLED" {
		t.Fatalf("MarketSellAll() = %+v", res)
	}
	if atomic.LoadInt32(&restCalls) != 0 {
		t.Fatalf("rest order calls = %d, want 0", restCalls)
	}
}

func TestWSOrderErrorIsRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/account" {
			_, _ = w.Write([]byte(`{"balances":[{"asset":"DOGE","free":"5","locked":"0"}]}`))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{
			"id":     req.ID,
			"status": 400,
			"error":  map[string]any{"code": -2010, "msg": "Account has insufficient balance for requested action."},
		})
	}))
	defer srv.Close()

	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RestBaseURL: srv.URL, WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	defer client.Close()

	_, err := client.MarketSellAll(context.Background(), "DOGE")
	if !errors.Is(err, core.ErrOrderRejected) || !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("MarketSellAll() error = %v, want rejected insufficient balance", err)
	}
}

func TestWSOrderParamsSignature(t *testing.T) {
	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s", RecvWindowMs: 5000})
	order := core.OrderResult{
		Symbol:   "BTCUSDT",
		Side:     core.Buy,
		Qty:      decimal.RequireFromString("2"),
		ClientID: "cid-1",
	}
	params, err := client.wsOrderParams(order, 1700000000000)
	if err != nil {
		t.Fatalf("wsOrderParams() error = %v", err)
	}
	signed := url.Values{}
	for k, v := range params {
		if k == "signature" {
			continue
		}
		raw, _ := json.Marshal(v)
		signed.Set(k, strings.Trim(string(raw), `"`))
	}
	if want := sign("s", signed.Encode()); params["signature"] != want {
		t.Fatalf("signature = %v, want %s", params["signature"], want)
	}
	if params["recvWindow"] != int64(5000) {
		t.Fatalf("recvWindow = %v, want 5000", params["recvWindow"])
	}
}

func assertSigned(t *testing.T, secret string, values url.Values) {
	t.Helper()
	sig := values.Get("signature")
	if sig == "" {
		t.Errorf("signature missing")
		return
	}
	rest := url.Values{}
	for k, v := range values {
		if k != "signature" {
			rest[k] = v
		}
	}
	if want := sign(secret, rest.Encode()); sig != want {
		t.Errorf("signature = %s, want %s", sig, want)
	}
	if values.Get("timestamp") == "" {
		t.Errorf("timestamp missing")
	}
}
