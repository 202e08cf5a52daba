package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestFloorNotionalNeverExceedsInput(t *testing.T) {
	for _, v := range []string{"0", "0.001", "0.009", "10", "10.019", "99.999", "123.456789", "-1.234"} {
		amount := d(v)
		got := FloorNotional(amount)
		if got.Cmp(amount) > 0 {
			t.Fatalf("FloorNotional(%s) = %s, want <= input", v, got)
		}
		if !got.Equal(got.Truncate(2)) {
			t.Fatalf("FloorNotional(%s) = %s has more than 2 places", v, got)
		}
	}
	if got := FloorNotional(d("10.019")); !got.Equal(d("10.01")) {
		t.Fatalf("FloorNotional(10.019) = %s, want 10.01", got)
	}
}

func TestPlanBuyNotional(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		available string
		want      string
		wantErr   error
	}{
		{name: "floors to cents", requested: "100.129", available: "500", want: "100.12"},
		{name: "no quote balance", requested: "10", available: "0", wantErr: ErrNoBalance},
		{name: "more than available", requested: "10.5", available: "10", wantErr: ErrInsufficientBalance},
		{name: "floored to zero", requested: "0.004", available: "10", wantErr: ErrAmountTooSmall},
		{name: "negative amount", requested: "-5", available: "10", wantErr: ErrAmountTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlanBuyNotional(d(tt.requested), d(tt.available))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("PlanBuyNotional() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlanBuyNotional() error = %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Fatalf("PlanBuyNotional() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWholeUnitQty(t *testing.T) {
	got, err := WholeUnitQty(d("100"), d("30"))
	if err != nil {
		t.Fatalf("WholeUnitQty() error = %v", err)
	}
	if !got.Equal(d("3")) {
		t.Fatalf("WholeUnitQty() = %s, want 3", got)
	}
	if _, err := WholeUnitQty(d("10"), d("30")); !errors.Is(err, ErrQuantityTooSmall) {
		t.Fatalf("WholeUnitQty() error = %v, want %v", err, ErrQuantityTooSmall)
	}
	if _, err := WholeUnitQty(d("10"), decimal.Zero); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("WholeUnitQty() error = %v, want %v", err, ErrPriceUnavailable)
	}
}

func TestPlanSellWhole(t *testing.T) {
	got, err := PlanSellWhole(d("12.97"))
	if err != nil || !got.Equal(d("12")) {
		t.Fatalf("PlanSellWhole() = %s, %v, want 12", got, err)
	}
	if _, err := PlanSellWhole(decimal.Zero); !errors.Is(err, ErrNoBalance) {
		t.Fatalf("PlanSellWhole(0) error = %v, want %v", err, ErrNoBalance)
	}
	if _, err := PlanSellWhole(d("0.7")); !errors.Is(err, ErrQuantityTooSmall) {
		t.Fatalf("PlanSellWhole(0.7) error = %v, want %v", err, ErrQuantityTooSmall)
	}
}

func TestPlanSellStepIsMultipleOfStep(t *testing.T) {
	rules := Rules{QtyStep: d("0.001"), MinQty: d("0.01")}
	for _, v := range []string{"0.0123456", "1.99999", "5", "0.010", "123.4567"} {
		got, err := PlanSellStep(d(v), rules)
		if err != nil {
			t.Fatalf("PlanSellStep(%s) error = %v", v, err)
		}
		if !got.Mod(rules.QtyStep).IsZero() {
			t.Fatalf("PlanSellStep(%s) = %s, not a multiple of %s", v, got, rules.QtyStep)
		}
		if got.Cmp(d(v)) > 0 {
			t.Fatalf("PlanSellStep(%s) = %s oversells", v, got)
		}
	}
}

func TestPlanSellStepBelowMinimum(t *testing.T) {
	rules := Rules{QtyStep: d("0.01"), MinQty: d("1")}
	if got := AdjustToStep(d("0.999"), rules.QtyStep, rules.MinQty); !got.IsZero() {
		t.Fatalf("AdjustToStep() = %s, want 0", got)
	}
	if _, err := PlanSellStep(d("0.999"), rules); !errors.Is(err, ErrQuantityTooSmall) {
		t.Fatalf("PlanSellStep() error = %v, want %v", err, ErrQuantityTooSmall)
	}
	if _, err := PlanSellStep(decimal.Zero, rules); !errors.Is(err, ErrNoBalance) {
		t.Fatalf("PlanSellStep(0) error = %v, want %v", err, ErrNoBalance)
	}
}

func TestPlanSellPrecision(t *testing.T) {
	rules := Rules{MinQty: d("1"), Precision: 2}
	got, err := PlanSellPrecision(d("10.5678"), rules)
	if err != nil {
		t.Fatalf("PlanSellPrecision() error = %v", err)
	}
	if !got.Equal(d("10.55")) {
		t.Fatalf("PlanSellPrecision() = %s, want 10.55", got)
	}

	got, err = PlanSellPrecision(d("1.001"), rules)
	if err != nil {
		t.Fatalf("PlanSellPrecision() error = %v", err)
	}
	if !got.Equal(d("1")) {
		t.Fatalf("PlanSellPrecision() = %s, want min 1", got)
	}

	if _, err := PlanSellPrecision(d("0.5"), rules); !errors.Is(err, ErrAmountTooSmall) {
		t.Fatalf("PlanSellPrecision() error = %v, want %v", err, ErrAmountTooSmall)
	}
}

func TestStepPlaces(t *testing.T) {
	cases := map[string]int32{"0.01": 2, "0.010": 2, "0.000001": 6, "0.5": 1, "1": 0, "10": 0, "0": 2}
	for in, want := range cases {
		if got := StepPlaces(d(in)); got != want {
			t.Fatalf("StepPlaces(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestRoundDown(t *testing.T) {
	if got := RoundDown(d("0.123456"), d("0.001")); !got.Equal(d("0.123")) {
		t.Fatalf("RoundDown() = %s, want 0.123", got)
	}
	if got := RoundDown(d("5.5"), decimal.Zero); !got.Equal(d("5.5")) {
		t.Fatalf("RoundDown() with zero step = %s, want 5.5", got)
	}
}
