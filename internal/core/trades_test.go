package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAverageBuyPriceUsesBuySideOnly(t *testing.T) {
	trades := []Trade{
		{Symbol: "BTCUSDT", Price: d("10"), Qty: d("1"), Time: 1, IsBuyer: true},
		{Symbol: "BTCUSDT", Price: d("50"), Qty: d("4"), Time: 2, IsBuyer: false},
		{Symbol: "BTCUSDT", Price: d("12"), Qty: d("2"), Time: 3, IsBuyer: true},
	}
	avg, ok := AverageBuyPrice(trades)
	if !ok {
		t.Fatalf("AverageBuyPrice() ok = false, want true")
	}
	if got := avg.StringFixed(3); got != "11.333" {
		t.Fatalf("AverageBuyPrice() = %s, want 11.333", got)
	}
}

func TestAverageBuyPriceNoHistory(t *testing.T) {
	if _, ok := AverageBuyPrice(nil); ok {
		t.Fatalf("AverageBuyPrice(nil) ok = true, want false")
	}
	sells := []Trade{{Price: d("10"), Qty: d("1"), IsBuyer: false}}
	if _, ok := AverageBuyPrice(sells); ok {
		t.Fatalf("AverageBuyPrice(sells only) ok = true, want false")
	}
	zeroQty := []Trade{{Price: d("10"), Qty: decimal.Zero, IsBuyer: true}}
	if _, ok := AverageBuyPrice(zeroQty); ok {
		t.Fatalf("AverageBuyPrice(zero qty) ok = true, want false")
	}
}

func TestPnLPercent(t *testing.T) {
	if got := PnLPercent(d("15"), d("10")); !got.Equal(d("50")) {
		t.Fatalf("PnLPercent(15, 10) = %s, want 50", got)
	}
	if got := PnLPercent(d("8"), d("10")); !got.Equal(d("-20")) {
		t.Fatalf("PnLPercent(8, 10) = %s, want -20", got)
	}
}

func TestSortTradesAscendingStable(t *testing.T) {
	trades := []Trade{
		{Symbol: "A", Time: 30},
		{Symbol: "B", Time: 10},
		{Symbol: "C", Time: 20},
		{Symbol: "D", Time: 10},
	}
	SortTrades(trades)
	got := ""
	for _, tr := range trades {
		got += tr.Symbol
	}
	if got != "BDCA" {
		t.Fatalf("SortTrades() order = %s, want BDCA", got)
	}
}

func TestFilterBalances(t *testing.T) {
	entries := []Balance{
		{Asset: "BTC", Available: d("0.5"), Locked: d("0.4")},
		{Asset: "ETH", Available: d("0.6"), Locked: d("0.6")},
		{Asset: "USDT", Available: d("1"), Locked: decimal.Zero},
		{Asset: "DOGE", Available: decimal.Zero, Locked: decimal.Zero},
	}
	filtered := FilterBalances(entries, decimal.NewFromInt(1))
	if len(filtered) != 1 || filtered[0].Asset != "ETH" {
		t.Fatalf("FilterBalances(1) = %+v, want only ETH", filtered)
	}
	all := FilterBalances(entries, decimal.Zero)
	if len(all) != 3 {
		t.Fatalf("FilterBalances(0) len = %d, want 3", len(all))
	}
}

func TestSymbolAndCredentialsMasking(t *testing.T) {
	if got := Symbol(" btc "); got != "BTCUSDT" {
		t.Fatalf("Symbol() = %q, want BTCUSDT", got)
	}
	if got := BaseAsset("ETHUSDT"); got != "ETH" {
		t.Fatalf("BaseAsset() = %q, want ETH", got)
	}
	creds := Credentials{APIKey: "abcdefgh", APISecret: "topsecret", Passphrase: "pass"}
	if s := creds.String(); s != "Credentials{api_key=abcd****}" {
		t.Fatalf("Credentials.String() = %q", s)
	}
	acct := Account{Provider: Bybit, Name: "main"}
	if got := acct.Tag(); got != "[BB-main]" {
		t.Fatalf("Account.Tag() = %q, want [BB-main]", got)
	}
}
