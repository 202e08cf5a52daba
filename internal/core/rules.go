package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FloorNotional floors a quote amount to cents.
func FloorNotional(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred).Floor().Div(hundred)
}

// PlanBuyNotional validates a requested quote amount against the available quote
// balance and returns the floored notional to spend.
func PlanBuyNotional(requested, available decimal.Decimal) (decimal.Decimal, error) {
	if available.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no %s balance", ErrNoBalance, QuoteAsset)
	}
	if requested.Cmp(available) > 0 {
		return decimal.Zero, fmt.Errorf("%w: requested %s %s, available %s", ErrInsufficientBalance, requested, QuoteAsset, available)
	}
	notional := FloorNotional(requested)
	if notional.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s %s", ErrAmountTooSmall, requested, QuoteAsset)
	}
	return notional, nil
}

// WholeUnitQty sizes a buy in whole base units.
func WholeUnitQty(notional, price decimal.Decimal) (decimal.Decimal, error) {
	if price.Sign() <= 0 {
		return decimal.Zero, ErrPriceUnavailable
	}
	qty := notional.Div(price).Truncate(0)
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s %s buys less than one unit at %s", ErrQuantityTooSmall, notional, QuoteAsset, price)
	}
	return qty, nil
}

// PlanSellWhole sells the integer part of the balance.
func PlanSellWhole(balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w to sell", ErrNoBalance)
	}
	qty := balance.Truncate(0)
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: balance %s is below one unit", ErrQuantityTooSmall, balance)
	}
	return qty, nil
}

// PlanSellStep sells the balance rounded down to the rule's step. A result below
// the minimum order quantity is zero.
func PlanSellStep(balance decimal.Decimal, rules Rules) (decimal.Decimal, error) {
	if balance.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w to sell", ErrNoBalance)
	}
	qty := AdjustToStep(balance, rules.QtyStep, rules.MinQty)
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: balance %s, step %s, min %s", ErrQuantityTooSmall, balance, rules.QtyStep, rules.MinQty)
	}
	return qty, nil
}

// PlanSellPrecision sells the balance rounded down to the rule's precision, minus one
// precision step so that rounding never oversells, but never below the minimum.
func PlanSellPrecision(balance decimal.Decimal, rules Rules) (decimal.Decimal, error) {
	if balance.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w to sell", ErrNoBalance)
	}
	if balance.Cmp(rules.MinQty) < 0 {
		return decimal.Zero, fmt.Errorf("%w: balance %s, min %s", ErrAmountTooSmall, balance, rules.MinQty)
	}
	step := PrecisionStep(rules.Precision)
	qty := balance.RoundFloor(rules.Precision).Sub(step)
	if qty.Cmp(rules.MinQty) < 0 {
		qty = rules.MinQty
	}
	if qty.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: balance %s", ErrQuantityTooSmall, balance)
	}
	return qty, nil
}

// AdjustToStep floors qty to a multiple of step and returns zero below minQty.
func AdjustToStep(qty, step, minQty decimal.Decimal) decimal.Decimal {
	adjusted := RoundDown(qty, step)
	if adjusted.Cmp(minQty) < 0 {
		return decimal.Zero
	}
	return adjusted
}

// PrecisionStep returns 10^-precision.
func PrecisionStep(precision int32) decimal.Decimal {
	return decimal.New(1, -precision)
}

// StepPlaces returns the number of decimal places a step size carries.
func StepPlaces(step decimal.Decimal) int32 {
	if step.Sign() <= 0 {
		return 2
	}
	if step.Cmp(decimal.NewFromInt(1)) >= 0 {
		return 0
	}
	places := -step.Exponent()
	for places > 0 {
		shifted := step.Shift(places - 1)
		if !shifted.Equal(shifted.Truncate(0)) {
			break
		}
		places--
	}
	return places
}

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
