package alert

import (
	"errors"

	"trade-manager/internal/core"
)

const (
	EventOrderSubmitted = "order_submitted"
	EventOrderRejected  = "order_rejected"
)

// OrderSubmitted reports an accepted order. A nil alerter is a no-op.
func OrderSubmitted(a Alerter, res core.OrderResult) {
	if a == nil {
		return
	}
	fields := map[string]string{
		"provider":  string(res.Provider),
		"account":   res.Account,
		"symbol":    res.Symbol,
		"side":      string(res.Side),
		"order_id":  res.OrderID,
		"client_id": res.ClientID,
		"status":    res.Status,
	}
	if res.Qty.Sign() > 0 {
		fields["qty"] = res.Qty.String()
	}
	if res.Notional.Sign() > 0 {
		fields["notional"] = res.Notional.String()
	}
	a.Important(EventOrderSubmitted, fields)
}

// OrderFailed reports err when the exchange rejected the order. Failures caught
// before submission, such as sizing errors, are not alerted.
func OrderFailed(a Alerter, account core.Account, side core.Side, coin string, err error) {
	if a == nil || err == nil || !errors.Is(err, core.ErrOrderRejected) {
		return
	}
	a.Important(EventOrderRejected, map[string]string{
		"provider": string(account.Provider),
		"account":  account.Name,
		"symbol":   core.Symbol(coin),
		"side":     string(side),
		"error":    err.Error(),
	})
}
