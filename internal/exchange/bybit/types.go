package bybit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// APIError is a v5 response with a non-zero retCode.
type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "bybit api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type tickersResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"list"`
}

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		BaseCoin      string `json:"baseCoin"`
		QuoteCoin     string `json:"quoteCoin"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
			QtyStep       string `json:"qtyStep"`
			MinOrderQty   string `json:"minOrderQty"`
			MinOrderAmt   string `json:"minOrderAmt"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize string `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

type walletResult struct {
	List []struct {
		AccountType string `json:"accountType"`
		Coin        []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
			Locked        string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

type executionResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		ExecPrice string `json:"execPrice"`
		ExecQty   string `json:"execQty"`
		ExecTime  string `json:"execTime"`
	} `json:"list"`
}

type orderCreateRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	MarketUnit  string `json:"marketUnit,omitempty"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

type orderCreateResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
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
