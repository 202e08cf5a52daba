package core

import "errors"

var (
	// ErrConfiguration indicates a provider has no usable account configured.
	ErrConfiguration = errors.New("configuration error")
	// ErrPriceUnavailable indicates the ticker did not yield a usable price.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrBalanceQuery indicates the balance endpoint failed.
	ErrBalanceQuery = errors.New("balance query failed")
	// ErrInsufficientBalance indicates the requested amount exceeds the available funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAmountTooSmall indicates the amount is below what the provider can trade.
	ErrAmountTooSmall = errors.New("amount too small")
	// ErrQuantityTooSmall indicates the quantized order size is zero or below minimum.
	ErrQuantityTooSmall = errors.New("quantity too small")
	// ErrNoBalance indicates there is nothing to spend or sell.
	ErrNoBalance = errors.New("no balance")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrSymbolInfoNotFound indicates the exchange has no trading rules for the symbol.
	ErrSymbolInfoNotFound = errors.New("symbol info not found")
	// ErrUsage indicates a malformed command.
	ErrUsage = errors.New("usage error")
)
