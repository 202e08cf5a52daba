package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"trade-manager/internal/account"
	"trade-manager/internal/alert"
	"trade-manager/internal/config"
	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
)

type BalanceMode int

const (
	// BalanceFiltered hides assets whose total is at or below the dust threshold.
	BalanceFiltered BalanceMode = iota
	// BalanceAll lists every asset with a nonzero total.
	BalanceAll
)

const (
	defaultMaxParallel = 4
	defaultCallTimeout = 20 * time.Second
)

type Options struct {
	MaxParallel   int
	CallTimeout   time.Duration
	DustThreshold decimal.Decimal
	Location      *time.Location
	// TradeLimit caps fetched fills; zero uses the provider default.
	TradeLimit int
}

// OptionsFromConfig maps the engine and report sections of cfg.
func OptionsFromConfig(cfg config.Config) Options {
	opts := Options{
		MaxParallel: cfg.Engine.MaxParallel,
		CallTimeout: cfg.CallTimeout(),
		Location:    cfg.Location(),
	}
	if cfg.Report.DustThreshold != nil {
		opts.DustThreshold = cfg.Report.DustThreshold.Decimal
	}
	return opts
}

// Manager runs one operation against every registered account and renders a
// single report. A failing account only affects its own section.
type Manager struct {
	registry *account.Registry
	factory  exchange.Factory
	alerts   alert.Alerter
	log      *logrus.Entry
	opts     Options
}

func NewManager(registry *account.Registry, factory exchange.Factory, alerts alert.Alerter, log *logrus.Entry, opts Options) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Manager{
		registry: registry,
		factory:  factory,
		alerts:   alerts,
		log:      log.WithField("component", "engine"),
		opts:     opts,
	}
}

// BuyAll spends amount USDT on coin in every account.
func (m *Manager) BuyAll(ctx context.Context, coin string, amount decimal.Decimal) string {
	coin = normalizeCoin(coin)
	results := fanOut(ctx, m, m.registry.All(), func(ctx context.Context, ex exchange.Exchange, acct core.Account) (core.OrderResult, error) {
		return ex.MarketBuy(ctx, coin, amount)
	})
	m.reportOrders(results, core.Buy, coin)
	return renderOrders("buy all", results)
}

// SellAll sells the whole available coin balance of every account.
func (m *Manager) SellAll(ctx context.Context, coin string) string {
	coin = normalizeCoin(coin)
	results := fanOut(ctx, m, m.registry.All(), func(ctx context.Context, ex exchange.Exchange, acct core.Account) (core.OrderResult, error) {
		return ex.MarketSellAll(ctx, coin)
	})
	m.reportOrders(results, core.Sell, coin)
	return renderOrders("sell all", results)
}

func (m *Manager) ShowTrades(ctx context.Context, coin string) string {
	coin = normalizeCoin(coin)
	results := fanOut(ctx, m, m.registry.All(), func(ctx context.Context, ex exchange.Exchange, acct core.Account) ([]core.Trade, error) {
		return m.recentTrades(ctx, ex, acct, coin)
	})
	return renderTrades(coin, results, m.opts.Location)
}

// ShowPnL prices coin once per provider from its first account, then compares
// each account's average buy price against that shared price.
func (m *Manager) ShowPnL(ctx context.Context, coin string) string {
	coin = normalizeCoin(coin)
	prices := m.providerPrices(ctx, coin)
	results := fanOut(ctx, m, m.registry.All(), func(ctx context.Context, ex exchange.Exchange, acct core.Account) (costBasis, error) {
		trades, err := m.recentTrades(ctx, ex, acct, coin)
		if err != nil {
			return costBasis{}, err
		}
		avg, ok := core.AverageBuyPrice(trades)
		return costBasis{avg: avg, ok: ok}, nil
	})
	return renderPnL(coin, prices, results)
}

func (m *Manager) ShowBalances(ctx context.Context, mode BalanceMode) string {
	threshold := decimal.Zero
	if mode == BalanceFiltered {
		threshold = m.opts.DustThreshold
	}
	results := fanOut(ctx, m, m.registry.All(), func(ctx context.Context, ex exchange.Exchange, acct core.Account) ([]core.Balance, error) {
		balances, err := ex.Balances(ctx)
		if err != nil {
			return nil, err
		}
		return core.FilterBalances(balances, threshold), nil
	})
	return renderBalances(mode, threshold, results)
}

type costBasis struct {
	avg decimal.Decimal
	ok  bool
}

type providerPrice struct {
	provider core.Provider
	price    decimal.Decimal
	err      error
}

func (m *Manager) providerPrices(ctx context.Context, coin string) []providerPrice {
	out := make([]providerPrice, len(core.Providers))
	var firsts []core.Account
	var slots []int
	for i, p := range core.Providers {
		out[i].provider = p
		acct, err := m.registry.First(p)
		if err != nil {
			out[i].err = err
			continue
		}
		firsts = append(firsts, acct)
		slots = append(slots, i)
	}
	fetched := fanOut(ctx, m, firsts, func(ctx context.Context, ex exchange.Exchange, acct core.Account) (decimal.Decimal, error) {
		return ex.Price(ctx, coin)
	})
	for j, r := range fetched {
		out[slots[j]].price, out[slots[j]].err = r.value, r.err
	}
	return out
}

func (m *Manager) recentTrades(ctx context.Context, ex exchange.Exchange, acct core.Account, coin string) ([]core.Trade, error) {
	limit := m.opts.TradeLimit
	if limit <= 0 {
		limit = core.DefaultTradeLimit(acct.Provider)
	}
	trades, err := ex.RecentTrades(ctx, coin, limit)
	if err != nil {
		return nil, err
	}
	core.SortTrades(trades)
	return trades, nil
}

func (m *Manager) reportOrders(results []accountResult[core.OrderResult], side core.Side, coin string) {
	for _, r := range results {
		fields := logrus.Fields{
			"provider": r.account.Provider,
			"account":  r.account.Name,
			"symbol":   core.Symbol(coin),
			"side":     side,
		}
		if r.err != nil {
			m.log.WithFields(fields).WithField("event", "order_failed").WithError(r.err).Warn("order not placed")
			alert.OrderFailed(m.alerts, r.account, side, coin, r.err)
			continue
		}
		m.log.WithFields(fields).WithFields(logrus.Fields{
			"event":     "order_submitted",
			"order_id":  r.value.OrderID,
			"client_id": r.value.ClientID,
			"status":    r.value.Status,
		}).Info("order placed")
		alert.OrderSubmitted(m.alerts, r.value)
	}
}

func normalizeCoin(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin))
}
