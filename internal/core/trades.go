package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SortTrades orders fills ascending by exchange time, keeping provider order for ties.
func SortTrades(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Time < trades[j].Time
	})
}

// AverageBuyPrice is the volume weighted price over buy-side fills. ok is false when
// there is no buy-side quantity.
func AverageBuyPrice(trades []Trade) (avg decimal.Decimal, ok bool) {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, t := range trades {
		if !t.IsBuyer || t.Qty.Sign() <= 0 {
			continue
		}
		totalCost = totalCost.Add(t.Price.Mul(t.Qty))
		totalQty = totalQty.Add(t.Qty)
	}
	if totalQty.Sign() <= 0 {
		return decimal.Zero, false
	}
	return totalCost.Div(totalQty), true
}

func PnLPercent(current, avg decimal.Decimal) decimal.Decimal {
	if avg.Sign() == 0 {
		return decimal.Zero
	}
	return current.Sub(avg).Div(avg).Mul(hundred)
}

// FilterBalances keeps entries whose total strictly exceeds threshold.
func FilterBalances(entries []Balance, threshold decimal.Decimal) []Balance {
	out := make([]Balance, 0, len(entries))
	for _, b := range entries {
		if b.Total().Cmp(threshold) > 0 {
			out = append(out, b)
		}
	}
	return out
}
