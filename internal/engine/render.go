package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-manager/internal/core"
)

const tradeTimeLayout = "2006-01-02 15:04:05"

func renderOrders(title string, results []accountResult[core.OrderResult]) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n\n", title)
	for _, r := range results {
		b.WriteString(r.account.Tag())
		b.WriteString(" ")
		if r.err != nil {
			b.WriteString(errorLine(r.err))
		} else {
			b.WriteString(formatOrder(r.value))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatOrder(res core.OrderResult) string {
	parts := []string{string(res.Side), res.Symbol, "order_id=" + res.OrderID}
	if res.ClientID != "" {
		parts = append(parts, "client_id="+res.ClientID)
	}
	if res.Qty.Sign() > 0 {
		parts = append(parts, "qty="+res.Qty.String())
	}
	if res.Notional.Sign() > 0 {
		parts = append(parts, "notional="+res.Notional.StringFixed(2))
	}
	if res.Status != "" {
		parts = append(parts, "status="+res.Status)
	}
	return strings.Join(parts, " ")
}

func renderTrades(coin string, results []accountResult[[]core.Trade], loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Transaction History for %s ===\n\n", coin)
	for _, r := range results {
		fmt.Fprintf(&b, "=== %s (%s) [%s] ===\n\n", r.account.Provider.DisplayName(), r.account.Name, coin)
		switch {
		case r.err != nil:
			b.WriteString(errorLine(r.err))
			b.WriteString("\n")
		case len(r.value) == 0:
			b.WriteString("no fills.\n")
		default:
			for _, t := range r.value {
				side := "ask"
				if t.IsBuyer {
					side = "bid"
				}
				fmt.Fprintf(&b, "%s %s %s %s at %s\n",
					time.UnixMilli(t.Time).In(loc).Format(tradeTimeLayout),
					side, t.Qty.String(), core.BaseAsset(t.Symbol), t.Price.String())
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPnL(coin string, prices []providerPrice, results []accountResult[costBasis]) string {
	var b strings.Builder
	b.WriteString("=== PnL Calculation ===\n\n")
	byProvider := make(map[core.Provider]providerPrice, len(prices))
	for _, p := range prices {
		byProvider[p.provider] = p
		if p.err != nil {
			fmt.Fprintf(&b, "Failed to fetch %s current price for %s: %s\n\n", p.provider.DisplayName(), coin, flatten(p.err.Error()))
			continue
		}
		fmt.Fprintf(&b, "%s current_price: %s\n\n", p.provider.DisplayName(), p.price.String())
	}
	for _, p := range core.Providers {
		fmt.Fprintf(&b, "=== %s PnL ===\n\n", p.DisplayName())
		price := byProvider[p]
		for _, r := range results {
			if r.account.Provider != p {
				continue
			}
			b.WriteString(r.account.Tag())
			b.WriteString(" ")
			switch {
			case r.err != nil:
				b.WriteString(errorLine(r.err))
			case !r.value.ok:
				b.WriteString("no buy history")
			case price.err != nil:
				b.WriteString("current price unavailable")
			default:
				fmt.Fprintf(&b, "current_price: $%s, avg_price: $%s, pnl: %s%%",
					price.price.StringFixed(3), r.value.avg.StringFixed(3),
					core.PnLPercent(price.price, r.value.avg).StringFixed(3))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderBalances(mode BalanceMode, threshold decimal.Decimal, results []accountResult[[]core.Balance]) string {
	var b strings.Builder
	if mode == BalanceAll {
		b.WriteString("=== All Balances (All Coins) ===\n\n")
	} else {
		fmt.Fprintf(&b, "=== All Balances (Coins > %s only) ===\n\n", threshold.String())
	}
	for _, r := range results {
		fmt.Fprintf(&b, "=== %s (%s) ===\n", r.account.Provider.DisplayName(), r.account.Name)
		switch {
		case r.err != nil:
			b.WriteString(errorLine(r.err))
			b.WriteString("\n")
		case len(r.value) == 0:
			b.WriteString("No balance.\n")
		default:
			for _, bal := range r.value {
				fmt.Fprintf(&b, "%s: available: %s, locked: %s\n", bal.Asset, bal.Available.String(), bal.Locked.String())
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("=== All balances end ===\n")
	return b.String()
}

func errorLine(err error) string {
	return "error: " + flatten(err.Error())
}

// flatten keeps joined errors on one report line.
func flatten(msg string) string {
	return strings.ReplaceAll(msg, "\n", "; ")
}
