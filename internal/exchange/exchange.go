package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"trade-manager/internal/core"
)

// Exchange is one authenticated account on one provider. Coins are base assets
// such as "BTC"; every call is scoped to the coin's USDT spot pair.
type Exchange interface {
	Name() string
	Price(ctx context.Context, coin string) (decimal.Decimal, error)
	Rules(ctx context.Context, coin string) (core.Rules, error)
	Balances(ctx context.Context) ([]core.Balance, error)
	// RecentTrades returns at most limit of the latest fills, ascending by time.
	RecentTrades(ctx context.Context, coin string, limit int) ([]core.Trade, error)
	MarketBuy(ctx context.Context, coin string, notional decimal.Decimal) (core.OrderResult, error)
	MarketSellAll(ctx context.Context, coin string) (core.OrderResult, error)
	Close() error
}

// Factory builds the adapter of an account.
type Factory func(account core.Account) (Exchange, error)

// FindBalance returns the entry of asset, or a zero balance when the account holds none.
func FindBalance(balances []core.Balance, asset string) core.Balance {
	for _, b := range balances {
		if b.Asset == asset {
			return b
		}
	}
	return core.Balance{Asset: asset}
}
