package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
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

type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthSigned
)

type Client struct {
	account           string
	apiKey            string
	apiSecret         string
	baseURL           string
	wsBaseURL         string
	clientOrderPrefix string
	orderMu           sync.Mutex
	orderConn         *orderWSConn
	orderWSKeepalive  time.Duration

	recvWindow time.Duration
	http       *resty.Client

	mu          sync.Mutex
	symbolCache map[string]symbolInfo
}

type Options struct {
	Account             string
	APIKey              string
	APISecret           string
	RestBaseURL         string
	WSBaseURL           string
	ClientOrderPrefix   string
	RecvWindowMs        int64
	HTTPTimeoutSec      int64
	OrderWSKeepaliveSec int64
}

func NewClient(cfg config.ExchangeConfig, account core.Account) (*Client, error) {
	if account.Credentials.APIKey == "" || account.Credentials.APISecret == "" {
		return nil, fmt.Errorf("%w: %s api_key/api_secret required", core.ErrConfiguration, account.Tag())
	}
	return NewClientWithOptions(Options{
		Account:             account.Name,
		APIKey:              account.Credentials.APIKey,
		APISecret:           account.Credentials.APISecret,
		RestBaseURL:         cfg.RestBaseURL,
		WSBaseURL:           cfg.WSBaseURL,
		ClientOrderPrefix:   cfg.ClientOrderPrefix,
		RecvWindowMs:        cfg.RecvWindowMs,
		HTTPTimeoutSec:      cfg.HTTPTimeoutSec,
		OrderWSKeepaliveSec: cfg.WSKeepaliveSec,
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
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		wsBaseURL:         strings.TrimRight(opts.WSBaseURL, "/"),
		clientOrderPrefix: opts.ClientOrderPrefix,
		recvWindow:        time.Duration(opts.RecvWindowMs) * time.Millisecond,
		http:              resty.New().SetTimeout(timeout),
		symbolCache:       make(map[string]symbolInfo),
		orderWSKeepalive:  time.Duration(opts.OrderWSKeepaliveSec) * time.Second,
	}
}

func (c *Client) Name() string { return "binance" }

func (c *Client) Close() error {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()
	c.resetOrderConn()
	return nil
}

func (c *Client) Price(ctx context.Context, coin string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", core.Symbol(coin))
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", params, AuthNone)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", core.ErrPriceUnavailable, err)
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", core.ErrPriceUnavailable, err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil || price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: binance ticker for %s has no price", core.ErrPriceUnavailable, core.Symbol(coin))
	}
	return price, nil
}

func (c *Client) Rules(ctx context.Context, coin string) (core.Rules, error) {
	info, err := c.getSymbolInfo(ctx, core.Symbol(coin))
	if err != nil {
		return core.Rules{}, err
	}
	return info.rules, nil
}

// Balances returns every asset with a non-zero free or locked amount.
func (c *Client) Balances(ctx context.Context) ([]core.Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, AuthSigned)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBalanceQuery, err)
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBalanceQuery, err)
	}
	out := make([]core.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		if free.Sign() <= 0 && locked.Sign() <= 0 {
			continue
		}
		out = append(out, core.Balance{Asset: b.Asset, Available: free, Locked: locked})
	}
	return out, nil
}

func (c *Client) RecentTrades(ctx context.Context, coin string, limit int) ([]core.Trade, error) {
	if limit <= 0 {
		limit = core.DefaultTradeLimit(core.Binance)
	}
	params := url.Values{}
	params.Set("symbol", core.Symbol(coin))
	params.Set("limit", strconv.Itoa(limit))
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/myTrades", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []myTradeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	trades := make([]core.Trade, 0, len(resp))
	for _, t := range resp {
		price, _ := decimal.NewFromString(t.Price)
		qty, _ := decimal.NewFromString(t.Qty)
		trades = append(trades, core.Trade{
			Symbol:  t.Symbol,
			Price:   price,
			Qty:     qty,
			Time:    t.Time,
			IsBuyer: t.IsBuyer,
		})
	}
	core.SortTrades(trades)
	return trades, nil
}

// MarketBuy spends notional USDT on whole units of coin.
func (c *Client) MarketBuy(ctx context.Context, coin string, notional decimal.Decimal) (core.OrderResult, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	spend, err := core.PlanBuyNotional(notional, exchange.FindBalance(balances, core.QuoteAsset).Available)
	if err != nil {
		return core.OrderResult{}, err
	}
	price, err := c.Price(ctx, coin)
	if err != nil {
		return core.OrderResult{}, err
	}
	qty, err := core.WholeUnitQty(spend, price)
	if err != nil {
		return core.OrderResult{}, err
	}
	res, err := c.placeMarketOrder(ctx, core.Symbol(coin), core.Buy, qty)
	if err != nil {
		return core.OrderResult{}, err
	}
	res.Notional = spend
	return res, nil
}

// MarketSellAll sells the whole-unit part of the free coin balance.
func (c *Client) MarketSellAll(ctx context.Context, coin string) (core.OrderResult, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}
	asset := strings.ToUpper(strings.TrimSpace(coin))
	qty, err := core.PlanSellWhole(exchange.FindBalance(balances, asset).Available)
	if err != nil {
		return core.OrderResult{}, err
	}
	return c.placeMarketOrder(ctx, core.Symbol(coin), core.Sell, qty)
}

func (c *Client) placeMarketOrder(ctx context.Context, symbol string, side core.Side, qty decimal.Decimal) (core.OrderResult, error) {
	order := core.OrderResult{
		Provider: core.Binance,
		Account:  c.account,
		Symbol:   symbol,
		Side:     side,
		Type:     core.Market,
		ClientID: exchange.NewClientOrderID(c.clientOrderPrefix),
		Qty:      qty,
	}
	var (
		placed core.OrderResult
		err    error
	)
	if c.wsBaseURL != "" {
		placed, err = c.placeOrderWS(ctx, order)
	} else {
		placed, err = c.placeOrderREST(ctx, order)
	}
	if err != nil {
		return core.OrderResult{}, asOrderRejected(err)
	}
	return placed, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if auth == AuthSigned {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("signature", sign(c.apiSecret, params.Encode()))
	}
	req := c.http.R().SetContext(ctx)
	urlStr := c.baseURL + path
	encoded := params.Encode()
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded != "" {
			urlStr += "?" + encoded
		}
	} else {
		req.SetHeader("Content-Type", "application/x-www-form-urlencoded").SetBody(encoded)
	}
	if auth == AuthAPIKey || auth == AuthSigned {
		req.SetHeader("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := req.Execute(method, urlStr)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, parseAPIError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		return wrapAPIError(apiErr.Code, apiErr.Msg)
	}
	return fmt.Errorf("binance http error %d: %s", status, strings.TrimSpace(string(body)))
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) getSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	if symbol == "" {
		return symbolInfo{}, errors.New("symbol is required")
	}
	c.mu.Lock()
	if info, ok := c.symbolCache[symbol]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, AuthNone)
	if err != nil {
		return symbolInfo{}, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return symbolInfo{}, err
	}
	if len(resp.Symbols) == 0 {
		return symbolInfo{}, fmt.Errorf("%w: %s", core.ErrSymbolInfoNotFound, symbol)
	}
	info := parseSymbolInfo(resp.Symbols[0])
	c.mu.Lock()
	c.symbolCache[symbol] = info
	c.mu.Unlock()
	return info, nil
}
