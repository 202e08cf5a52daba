package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"trade-manager/internal/config"
	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
)

const (
	categorySpot       = "spot"
	accountTypeUnified = "UNIFIED"
)

var defaultQtyStep = decimal.New(1, -2)

// Client talks to the Bybit v5 REST API for one unified trading account.
type Client struct {
	account           string
	apiKey            string
	apiSecret         string
	baseURL           string
	clientOrderPrefix string
	recvWindow        time.Duration
	http              *resty.Client

	mu        sync.Mutex
	ruleCache map[string]core.Rules
}

type Options struct {
	Account           string
	APIKey            string
	APISecret         string
	RestBaseURL       string
	ClientOrderPrefix string
	RecvWindowMs      int64
	HTTPTimeoutSec    int64
}

func NewClient(cfg config.ExchangeConfig, account core.Account) (*Client, error) {
	if account.Credentials.APIKey == "" || account.Credentials.APISecret == "" {
		return nil, fmt.Errorf("%w: %s api_key/api_secret required", core.ErrConfiguration, account.Tag())
	}
	return NewClientWithOptions(Options{
		Account:           account.Name,
		APIKey:            account.Credentials.APIKey,
		APISecret:         account.Credentials.APISecret,
		RestBaseURL:       cfg.RestBaseURL,
		ClientOrderPrefix: cfg.ClientOrderPrefix,
		RecvWindowMs:      cfg.RecvWindowMs,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	recvWindow := 5 * time.Second
	if opts.RecvWindowMs > 0 {
		recvWindow = time.Duration(opts.RecvWindowMs) * time.Millisecond
	}
	return &Client{
		account:           opts.Account,
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		clientOrderPrefix: opts.ClientOrderPrefix,
		recvWindow:        recvWindow,
		http:              resty.New().SetTimeout(timeout),
		ruleCache:         make(map[string]core.Rules),
	}
}

func (c *Client) Name() string { return "bybit" }

func (c *Client) Close() error { return nil }

func (c *Client) Price(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("category", categorySpot)
	params.Set("symbol", core.Symbol(coin))
	var res tickersResult
	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/tickers", params, nil, false, &res); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", core.ErrPriceUnavailable, err)
	}
	if len(res.List) == 0 {
		return decimal.Zero, fmt.Errorf("%w: bybit ticker for %s is empty", core.ErrPriceUnavailable, core.Symbol(coin))
	}
	price := parseDecimal(res.List[0].LastPrice)
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: bybit ticker for %s has no lastPrice", core.ErrPriceUnavailable, core.Symbol(coin))
	}
	return price, nil
}

// Rules reads the lot size filter. The quantity step falls back to basePrecision,
// then to 0.01.
func (c *Client) Rules(ctx context.Context, coin string) (core.Rules, error) {
	symbol := core.Symbol(coin)
	c.mu.Lock()
	if rules, ok := c.ruleCache[symbol]; ok {
		c.mu.Unlock()
		return rules, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("category", categorySpot)
	params.Set("symbol", symbol)
	var res instrumentsResult
	if err := c.doRequest(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, false, &res); err != nil {
		return core.Rules{}, fmt.Errorf("symbol info query failed: %w", err)
	}
	if len(res.List) == 0 {
		return core.Rules{}, fmt.Errorf("%w: %s", core.ErrSymbolInfoNotFound, symbol)
	}
	lot := res.List[0].LotSizeFilter
	step := parseDecimal(lot.QtyStep)
	if step.Sign() <= 0 {
		step = parseDecimal(lot.BasePrecision)
	}
	if step.Sign() <= 0 {
		step = defaultQtyStep
	}
	rules := core.Rules{
		MinQty:      parseDecimal(lot.MinOrderQty),
		MinNotional: parseDecimal(lot.MinOrderAmt),
		PriceTick:   parseDecimal(res.List[0].PriceFilter.TickSize),
		QtyStep:     step,
		Precision:   core.StepPlaces(step),
	}
	c.mu.Lock()
	c.ruleCache[symbol] = rules
	c.mu.Unlock()
	return rules, nil
}

// Balances reads the unified wallet. Available is the wallet balance minus the
// amount locked by open orders.
func (c *Client) Balances(ctx context.Context) ([]core.Balance, error) {
	params := url.Values{}
	params.Set("accountType", accountTypeUnified)
	var res walletResult
	if err := c.doRequest(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, true, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBalanceQuery, err)
	}
	out := make([]core.Balance, 0)
	for _, acct := range res.List {
		for _, coin := range acct.Coin {
			wallet := parseDecimal(coin.WalletBalance)
			locked := parseDecimal(coin.Locked)
			if wallet.Sign() <= 0 && locked.Sign() <= 0 {
				continue
			}
			available := wallet.Sub(locked)
			if available.Sign() < 0 {
				available = decimal.Zero
			}
			out = append(out, core.Balance{
				Asset:     strings.ToUpper(coin.Coin),
				Available: available,
				Locked:    locked,
			})
		}
	}
	return out, nil
}

func (c *Client) RecentTrades(ctx context.Context, coin string, limit int) ([]core.Trade, error) {
	if limit <= 0 {
		limit = core.DefaultTradeLimit(core.Bybit)
	}
	params := url.Values{}
	params.Set("category", categorySpot)
	params.Set("symbol", core.Symbol(coin))
	params.Set("limit", strconv.Itoa(limit))
	var res executionResult
	if err := c.doRequest(ctx, http.MethodGet, "/v5/execution/list", params, nil, true, &res); err != nil {
		return nil, err
	}
	trades := make([]core.Trade, 0, len(res.List))
	for _, e := range res.List {
		ts, _ := strconv.ParseInt(e.ExecTime, 10, 64)
		trades = append(trades, core.Trade{
			Symbol:  e.Symbol,
			Price:   parseDecimal(e.ExecPrice),
			Qty:     parseDecimal(e.ExecQty),
			Time:    ts,
			IsBuyer: strings.EqualFold(e.Side, "buy"),
		})
	}
	core.SortTrades(trades)
	return trades, nil
}

// MarketBuy submits a quote sized market buy of notional USDT.
func (c *Client) MarketBuy(ctx context.Context, coin string, notional decimal.Decimal) (core.OrderResult, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	spend, err := core.PlanBuyNotional(notional, exchange.FindBalance(balances, core.QuoteAsset).Available)
	if err != nil {
		return core.OrderResult{}, err
	}
	req := orderCreateRequest{
		Category:   categorySpot,
		Symbol:     core.Symbol(coin),
		Side:       "Buy",
		OrderType:  "Market",
		Qty:        spend.StringFixed(2),
		MarketUnit: "quoteCoin",
	}
	res, err := c.placeOrder(ctx, req, core.Buy)
	if err != nil {
		return core.OrderResult{}, err
	}
	res.Notional = spend
	return res, nil
}

// MarketSellAll sells the available coin balance floored to the quantity step.
func (c *Client) MarketSellAll(ctx context.Context, coin string) (core.OrderResult, error) {
	rules, err := c.Rules(ctx, coin)
	if err != nil {
		return core.OrderResult{}, err
	}
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	asset := strings.ToUpper(strings.TrimSpace(coin))
	qty, err := core.PlanSellStep(exchange.FindBalance(balances, asset).Available, rules)
	if err != nil {
		return core.OrderResult{}, err
	}
	req := orderCreateRequest{
		Category:  categorySpot,
		Symbol:    core.Symbol(coin),
		Side:      "Sell",
		OrderType: "Market",
		Qty:       qty.StringFixed(core.StepPlaces(rules.QtyStep)),
	}
	return c.placeOrder(ctx, req, core.Sell)
}

func (c *Client) placeOrder(ctx context.Context, req orderCreateRequest, side core.Side) (core.OrderResult, error) {
	req.OrderLinkID = exchange.NewClientOrderID(c.clientOrderPrefix)
	body, err := json.Marshal(req)
	if err != nil {
		return core.OrderResult{}, err
	}
	var res orderCreateResult
	if err := c.doRequest(ctx, http.MethodPost, "/v5/order/create", nil, body, true, &res); err != nil {
		return core.OrderResult{}, asOrderRejected(err)
	}
	qty := parseDecimal(req.Qty)
	out := core.OrderResult{
		Provider: core.Bybit,
		Account:  c.account,
		Symbol:   req.Symbol,
		Side:     side,
		Type:     core.Market,
		OrderID:  res.OrderID,
		ClientID: req.OrderLinkID,
		Status:   "SUBMITTED",
	}
	if req.MarketUnit == "quoteCoin" {
		out.Notional = qty
	} else {
		out.Qty = qty
	}
	return out, nil
}

// doRequest sends the request and decodes the result of a successful envelope into
// out. The signed payload is timestamp+apiKey+recvWindow+(query|body).
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte, signed bool, out interface{}) error {
	query := ""
	if params != nil {
		query = params.Encode()
	}
	urlStr := c.baseURL + path
	if query != "" {
		urlStr += "?" + query
	}
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		recv := strconv.FormatInt(c.recvWindow.Milliseconds(), 10)
		payload := query
		if method != http.MethodGet {
			payload = string(body)
		}
		req.SetHeaders(map[string]string{
			"X-BAPI-API-KEY":     c.apiKey,
			"X-BAPI-TIMESTAMP":   ts,
			"X-BAPI-RECV-WINDOW": recv,
			"X-BAPI-SIGN-TYPE":   "2",
			"X-BAPI-SIGN":        sign(c.apiSecret, ts+c.apiKey+recv+payload),
		})
	}
	resp, err := req.Execute(method, urlStr)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		if !resp.IsSuccess() {
			return fmt.Errorf("bybit http error %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
		}
		return err
	}
	if env.RetCode != 0 {
		return classifyAPIError(APIError{Code: env.RetCode, Msg: env.RetMsg})
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("bybit http error %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
