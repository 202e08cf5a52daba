package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Provider string

type Side string

type OrderType string

const (
	Binance Provider = "binance"
	Bybit   Provider = "bybit"
	Bitget  Provider = "bitget"
)

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Market OrderType = "MARKET"
)

// QuoteAsset is the only quote currency orders and reports are scoped to.
const QuoteAsset = "USDT"

// Providers lists every supported provider in report order.
var Providers = []Provider{Binance, Bybit, Bitget}

func ParseProvider(v string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case Binance, Bybit, Bitget:
		return p, true
	}
	return "", false
}

// Label is the short tag used in report sections, e.g. [BN-main].
func (p Provider) Label() string {
	switch p {
	case Binance:
		return "BN"
	case Bybit:
		return "BB"
	case Bitget:
		return "BG"
	}
	return strings.ToUpper(string(p))
}

func (p Provider) DisplayName() string {
	switch p {
	case Binance:
		return "Binance"
	case Bybit:
		return "Bybit"
	case Bitget:
		return "Bitget"
	}
	return string(p)
}

// Symbol returns the USDT spot pair for coin.
func Symbol(coin string) string {
	return strings.ToUpper(strings.TrimSpace(coin)) + QuoteAsset
}

// BaseAsset strips the quote suffix from a USDT pair.
func BaseAsset(symbol string) string {
	return strings.TrimSuffix(strings.ToUpper(symbol), QuoteAsset)
}

type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

func (c Credentials) String() string {
	return "Credentials{api_key=" + mask(c.APIKey) + "}"
}

func (c Credentials) GoString() string {
	return c.String()
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "****"
}

type Account struct {
	Provider    Provider
	Name        string
	Credentials Credentials
}

// Tag renders the report section label of the account.
func (a Account) Tag() string {
	return "[" + a.Provider.Label() + "-" + a.Name + "]"
}

type Balance struct {
	Asset     string
	Available decimal.Decimal
	Locked    decimal.Decimal
}

func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Locked)
}

// Trade is the provider independent fill record. Time is in exchange milliseconds.
type Trade struct {
	Symbol  string
	Price   decimal.Decimal
	Qty     decimal.Decimal
	Time    int64
	IsBuyer bool
}

type Rules struct {
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	PriceTick   decimal.Decimal
	QtyStep     decimal.Decimal
	Precision   int32
}

type OrderResult struct {
	Provider Provider
	Account  string
	Symbol   string
	Side     Side
	Type     OrderType
	OrderID  string
	ClientID string
	Qty      decimal.Decimal
	Notional decimal.Decimal
	Status   string
}

// DefaultTradeLimit is the number of most recent fills requested per provider.
func DefaultTradeLimit(p Provider) int {
	if p == Bitget {
		return 100
	}
	return 200
}
