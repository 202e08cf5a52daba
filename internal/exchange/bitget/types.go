package bitget

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const codeSuccess = "00000"

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// APIError is a v2 response whose code is not "00000".
type APIError struct {
	Code string
	Msg  string
}

func (e APIError) Error() string {
	return "bitget api error " + e.Code + ": " + e.Msg
}

type tickerData struct {
	Symbol string `json:"symbol"`
	LastPr string `json:"lastPr"`
}

type symbolData struct {
	Symbol            string `json:"symbol"`
	BaseCoin          string `json:"baseCoin"`
	QuoteCoin         string `json:"quoteCoin"`
	MinTradeAmount    string `json:"minTradeAmount"`
	MinTradeUSDT      string `json:"minTradeUSDT"`
	QuantityPrecision string `json:"quantityPrecision"`
	PricePrecision    string `json:"pricePrecision"`
}

type assetData struct {
	Coin      string `json:"coin"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
	Locked    string `json:"locked"`
}

type fillData struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	PriceAvg string `json:"priceAvg"`
	Size     string `json:"size"`
	CTime    string `json:"cTime"`
}

type placeOrderRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Force     string `json:"force"`
	Size      string `json:"size"`
	ClientOid string `json:"clientOid,omitempty"`
}

type placeOrderData struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}

func parseDecimal(v string) decimal.Decimal {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
