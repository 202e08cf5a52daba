package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
)

type probeExchange struct {
	balErr error
	closed bool
}

func (p *probeExchange) Name() string { return "probe" }

func (p *probeExchange) Price(context.Context, string) (decimal.Decimal, error) {
	return decimal.RequireFromString("42000.5"), nil
}

func (p *probeExchange) Rules(context.Context, string) (core.Rules, error) {
	return core.Rules{MinQty: decimal.RequireFromString("0.001"), QtyStep: decimal.RequireFromString("0.001")}, nil
}

func (p *probeExchange) Balances(context.Context) ([]core.Balance, error) {
	if p.balErr != nil {
		return nil, p.balErr
	}
	return []core.Balance{{Asset: "USDT", Available: decimal.NewFromInt(10)}}, nil
}

func (p *probeExchange) RecentTrades(context.Context, string, int) ([]core.Trade, error) {
	return nil, nil
}

func (p *probeExchange) MarketBuy(context.Context, string, decimal.Decimal) (core.OrderResult, error) {
	panic("accountcheck must not place orders")
}

func (p *probeExchange) MarketSellAll(context.Context, string) (core.OrderResult, error) {
	panic("accountcheck must not place orders")
}

func (p *probeExchange) Close() error {
	p.closed = true
	return nil
}

func TestRunChecksReportsPerAccount(t *testing.T) {
	good := &probeExchange{}
	bad := &probeExchange{balErr: errors.Join(core.ErrBalanceQuery, errors.New("code=10003"))}
	accounts := []core.Account{
		{Provider: core.Binance, Name: "main"},
		{Provider: core.Bybit, Name: "b1"},
		{Provider: core.Bitget, Name: "g1"},
	}
	factory := func(a core.Account) (exchange.Exchange, error) {
		switch a.Provider {
		case core.Binance:
			return good, nil
		case core.Bybit:
			return bad, nil
		}
		return nil, fmt.Errorf("%w: passphrase required", core.ErrConfiguration)
	}

	var out bytes.Buffer
	r := runChecks(context.Background(), accounts, factory, "BTC", &out)

	require.Len(t, r.Checks, 9)
	assert.Equal(t, 2, r.failed())
	assert.True(t, good.closed)
	assert.Contains(t, out.String(), "[PASS] [BN-main] price")
	assert.Contains(t, out.String(), "price=42000.5")
	assert.Contains(t, out.String(), "[FAIL] [BB-b1] balances")
	assert.Contains(t, out.String(), "balance query failed; code=10003")
	assert.Contains(t, out.String(), "[FAIL] [BG-g1] connect")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeReport(path, r))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "BTC", decoded.Coin)
	assert.Len(t, decoded.Checks, 9)
}
