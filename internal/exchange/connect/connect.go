package connect

import (
	"fmt"

	"trade-manager/internal/config"
	"trade-manager/internal/core"
	"trade-manager/internal/exchange"
	"trade-manager/internal/exchange/binance"
	"trade-manager/internal/exchange/bitget"
	"trade-manager/internal/exchange/bybit"
)

// NewFactory returns a factory that builds adapters from the exchange section of cfg.
func NewFactory(cfg config.Config) exchange.Factory {
	return func(account core.Account) (exchange.Exchange, error) {
		return Dial(cfg.Exchange(account.Provider), account)
	}
}

// Dial builds the adapter of account.
func Dial(cfg config.ExchangeConfig, account core.Account) (exchange.Exchange, error) {
	var (
		ex  exchange.Exchange
		err error
	)
	switch account.Provider {
	case core.Binance:
		var c *binance.Client
		if c, err = binance.NewClient(cfg, account); err == nil {
			ex = c
		}
	case core.Bybit:
		var c *bybit.Client
		if c, err = bybit.NewClient(cfg, account); err == nil {
			ex = c
		}
	case core.Bitget:
		var c *bitget.Client
		if c, err = bitget.NewClient(cfg, account); err == nil {
			ex = c
		}
	default:
		err = fmt.Errorf("%w: unsupported provider %q", core.ErrConfiguration, account.Provider)
	}
	if err != nil {
		return nil, err
	}
	return ex, nil
}
