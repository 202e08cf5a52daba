package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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
	defaultMinTradeAmount    = 1
	defaultQuantityPrecision = 2
)

// Client talks to the Bitget v2 spot REST API for one account.
type Client struct {
	account           string
	apiKey            string
	apiSecret         string
	passphrase        string
	baseURL           string
	clientOrderPrefix string
	http              *resty.Client

	mu        sync.Mutex
	ruleCache map[string]core.Rules
}

type Options struct {
	Account           string
	APIKey            string
	APISecret         string
	Passphrase        string
	RestBaseURL       string
	ClientOrderPrefix string
	HTTPTimeoutSec    int64
}

func NewClient(cfg config.ExchangeConfig, account core.Account) (*Client, error) {
	creds := account.Credentials
	if creds.APIKey == "" || creds.APISecret == "" || creds.Passphrase == "" {
		return nil, fmt.Errorf("%w: %s api_key/api_secret/passphrase required", core.ErrConfiguration, account.Tag())
	}
	return NewClientWithOptions(Options{
		Account:           account.Name,
		APIKey:            creds.APIKey,
		APISecret:         creds.APISecret,
		Passphrase:        creds.Passphrase,
		RestBaseURL:       cfg.RestBaseURL,
		ClientOrderPrefix: cfg.ClientOrderPrefix,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	return &Client{
		account:           opts.Account,
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		passphrase:        opts.Passphrase,
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		clientOrderPrefix: opts.ClientOrderPrefix,
		http:              resty.New().SetTimeout(timeout),
		ruleCache:         make(map[string]core.Rules),
	}
}

func (c *Client) Name() string { return "bitget" }

func (c *Client) Close() error { return nil }

func (c *Client) Price(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", core.Symbol(coin))
	var data []tickerData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/spot/market/tickers", params, nil, false, &data); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", core.ErrPriceUnavailable, err)
	}
	if len(data) == 0 {
		return decimal.Zero, fmt.Errorf("%w: bitget ticker for %s is empty", core.ErrPriceUnavailable, core.Symbol(coin))
	}
	price := parseDecimal(data[0].LastPr)
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: bitget ticker for %s has no lastPr", core.ErrPriceUnavailable, core.Symbol(coin))
	}
	return price, nil
}

// Rules reads minTradeAmount and quantityPrecision, defaulting to 1 and 2.
func (c *Client) Rules(ctx context.Context, coin string) (core.Rules, error) {
	symbol := core.Symbol(coin)
	c.mu.Lock()
	if rules, ok := c.ruleCache[symbol]; ok {
		c.mu.Unlock()
		return rules, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)
	var data []symbolData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/spot/public/symbols", params, nil, false, &data); err != nil {
		return core.Rules{}, fmt.Errorf("symbol info query failed: %w", err)
	}
	var found *symbolData
	for i := range data {
		if data[i].Symbol == symbol {
			found = &data[i]
			break
		}
	}
	if found == nil {
		return core.Rules{}, fmt.Errorf("%w: %s", core.ErrSymbolInfoNotFound, symbol)
	}
	minQty := parseDecimal(found.MinTradeAmount)
	if strings.TrimSpace(found.MinTradeAmount) == "" {
		minQty = decimal.NewFromInt(defaultMinTradeAmount)
	}
	precision := int64(defaultQuantityPrecision)
	if v, err := strconv.ParseInt(strings.TrimSpace(found.QuantityPrecision), 10, 32); err == nil && v >= 0 {
		precision = v
	}
	rules := core.Rules{
		MinQty:      minQty,
		MinNotional: parseDecimal(found.MinTradeUSDT),
		QtyStep:     core.PrecisionStep(int32(precision)),
		Precision:   int32(precision),
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(found.PricePrecision), 10, 32); err == nil && v >= 0 {
		rules.PriceTick = core.PrecisionStep(int32(v))
	}
	c.mu.Lock()
	c.ruleCache[symbol] = rules
	c.mu.Unlock()
	return rules, nil
}

// Balances lists spot assets. Locked folds in the frozen amount.
func (c *Client) Balances(ctx context.Context) ([]core.Balance, error) {
	var data []assetData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/spot/account/assets", url.Values{}, nil, true, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBalanceQuery, err)
	}
	out := make([]core.Balance, 0, len(data))
	for _, a := range data {
		available := parseDecimal(a.Available)
		locked := parseDecimal(a.Frozen).Add(parseDecimal(a.Locked))
		if available.Sign() <= 0 && locked.Sign() <= 0 {
			continue
		}
		out = append(out, core.Balance{
			Asset:     strings.ToUpper(a.Coin),
			Available: available,
			Locked:    locked,
		})
	}
	return out, nil
}

func (c *Client) RecentTrades(ctx context.Context, coin string, limit int) ([]core.Trade, error) {
	if limit <= 0 {
		limit = core.DefaultTradeLimit(core.Bitget)
	}
	params := url.Values{}
	params.Set("symbol", core.Symbol(coin))
	params.Set("limit", strconv.Itoa(limit))
	var data []fillData
	if err := c.doRequest(ctx, http.MethodGet, "/api/v2/spot/trade/fills", params, nil, true, &data); err != nil {
		return nil, err
	}
	trades := make([]core.Trade, 0, len(data))
	for _, f := range data {
		ts, _ := strconv.ParseInt(f.CTime, 10, 64)
		trades = append(trades, core.Trade{
			Symbol:  f.Symbol,
			Price:   parseDecimal(f.PriceAvg),
			Qty:     parseDecimal(f.Size),
			Time:    ts,
			IsBuyer: strings.EqualFold(f.Side, "buy"),
		})
	}
	core.SortTrades(trades)
	return trades, nil
}

// MarketBuy submits a market buy whose size is the notional in USDT.
func (c *Client) MarketBuy(ctx context.Context, coin string, notional decimal.Decimal) (core.OrderResult, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	spend, err := core.PlanBuyNotional(notional, exchange.FindBalance(balances, core.QuoteAsset).Available)
	if err != nil {
		return core.OrderResult{}, err
	}
	res, err := c.placeOrder(ctx, placeOrderRequest{
		Symbol:    core.Symbol(coin),
		Side:      "buy",
		OrderType: "market",
		Force:     "gtc",
		Size:      spend.StringFixed(2),
	}, core.Buy)
	if err != nil {
		return core.OrderResult{}, err
	}
	res.Notional = spend
	return res, nil
}

// MarketSellAll sells the available balance less one precision step.
func (c *Client) MarketSellAll(ctx context.Context, coin string) (core.OrderResult, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	asset := strings.ToUpper(strings.TrimSpace(coin))
	available := exchange.FindBalance(balances, asset).Available
	if available.Sign() <= 0 {
		return core.OrderResult{}, fmt.Errorf("%w to sell", core.ErrNoBalance)
	}
	rules, err := c.Rules(ctx, coin)
	if err != nil {
		return core.OrderResult{}, err
	}
	size, err := core.PlanSellPrecision(available, rules)
	if err != nil {
		return core.OrderResult{}, err
	}
	return c.placeOrder(ctx, placeOrderRequest{
		Symbol:    core.Symbol(coin),
		Side:      "sell",
		OrderType: "market",
		Force:     "gtc",
		Size:      size.StringFixed(rules.Precision),
	}, core.Sell)
}

func (c *Client) placeOrder(ctx context.Context, req placeOrderRequest, side core.Side) (core.OrderResult, error) {
	req.ClientOid = exchange.NewClientOrderID(c.clientOrderPrefix)
	body, err := json.Marshal(req)
	if err != nil {
		return core.OrderResult{}, err
	}
	var data placeOrderData
	if err := c.doRequest(ctx, http.MethodPost, "/api/v2/spot/trade/place-order", nil, body, true, &data); err != nil {
		return core.OrderResult{}, asOrderRejected(err)
	}
	out := core.OrderResult{
		Provider: core.Bitget,
		Account:  c.account,
		Symbol:   req.Symbol,
		Side:     side,
		Type:     core.Market,
		OrderID:  data.OrderID,
		ClientID: req.ClientOid,
		Status:   "SUBMITTED",
	}
	if side == core.Buy {
		out.Notional = parseDecimal(req.Size)
	} else {
		out.Qty = parseDecimal(req.Size)
	}
	return out, nil
}

// doRequest signs timestamp+METHOD+path(+?query)+body with base64 HMAC-SHA256 and
// decodes the data field of a successful envelope into out.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body []byte, signed bool, out interface{}) error {
	requestPath := path
	if params != nil {
		if query := params.Encode(); query != "" {
			requestPath += "?" + query
		}
	}
	req := c.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetHeader("locale", "en-US")
	if body != nil {
		req.SetBody(body)
	}
	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.SetHeaders(map[string]string{
			"ACCESS-KEY":        c.apiKey,
			"ACCESS-SIGN":       sign(c.apiSecret, prehash(ts, method, requestPath, body)),
			"ACCESS-TIMESTAMP":  ts,
			"ACCESS-PASSPHRASE": c.passphrase,
		})
	}
	resp, err := req.Execute(method, c.baseURL+requestPath)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil || env.Code == "" {
		if !resp.IsSuccess() {
			return fmt.Errorf("bitget http error %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("bitget response without code: %s", strings.TrimSpace(string(resp.Body())))
	}
	if env.Code != codeSuccess {
		return classifyAPIError(APIError{Code: env.Code, Msg: env.Msg})
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func prehash(ts, method, requestPath string, body []byte) string {
	payload := ts + strings.ToUpper(method) + requestPath
	if method != http.MethodGet && body != nil {
		payload += string(body)
	}
	return payload
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
