package binance

import (
	"strconv"

	"github.com/shopspring/decimal"

	"trade-manager/internal/core"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type myTradeResponse struct {
	Symbol   string `json:"symbol"`
	ID       int64  `json:"id"`
	OrderID  int64  `json:"orderId"`
	Price    string `json:"price"`
	Qty      string `json:"qty"`
	QuoteQty string `json:"quoteQty"`
	Time     int64  `json:"time"`
	IsBuyer  bool   `json:"isBuyer"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfoResponse `json:"symbols"`
}

type symbolInfoResponse struct {
	Symbol     string         `json:"symbol"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	MinNotional string `json:"minNotional"`
	TickSize    string `json:"tickSize"`
}

type symbolInfo struct {
	baseAsset  string
	quoteAsset string
	rules      core.Rules
}

func parseSymbolInfo(src symbolInfoResponse) symbolInfo {
	info := symbolInfo{
		baseAsset:  src.BaseAsset,
		quoteAsset: src.QuoteAsset,
		rules:      core.Rules{MinQty: decimal.Zero, MinNotional: decimal.Zero, PriceTick: decimal.Zero, QtyStep: decimal.Zero},
	}
	for _, f := range src.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			if v, err := decimal.NewFromString(f.MinQty); err == nil {
				info.rules.MinQty = v
			}
			if v, err := decimal.NewFromString(f.StepSize); err == nil {
				info.rules.QtyStep = v
			}
		case "PRICE_FILTER":
			if v, err := decimal.NewFromString(f.TickSize); err == nil {
				info.rules.PriceTick = v
			}
		case "MIN_NOTIONAL", "NOTIONAL":
			if v, err := decimal.NewFromString(f.MinNotional); err == nil {
				// Keep the stricter minimum when both filters are present.
				if v.Cmp(info.rules.MinNotional) > 0 {
					info.rules.MinNotional = v
				}
			}
		}
	}
	info.rules.Precision = core.StepPlaces(info.rules.QtyStep)
	return info
}

func (r orderResponse) toResult(order core.OrderResult) core.OrderResult {
	if r.OrderID != 0 {
		order.OrderID = strconv.FormatInt(r.OrderID, 10)
	}
	if r.ClientOrderID != "" {
		order.ClientID = r.ClientOrderID
	}
	order.Status = r.Status
	if order.Status == "" {
		order.Status = "NEW"
	}
	if v, err := decimal.NewFromString(r.CummulativeQuoteQty); err == nil && v.Sign() > 0 {
		order.Notional = v
	}
	return order
}
