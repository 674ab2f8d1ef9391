package binomial

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestPricer(t *testing.T) *Pricer {
	t.Helper()
	p, err := NewPricer(decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func call(spot, strike float64, steps int, u, dn, r float64) model.OptionContract {
	return model.OptionContract{
		Kind:         model.Call,
		Underlying:   "XRD",
		Strike:       d(strike),
		Spot:         d(spot),
		Steps:        steps,
		UpFactor:     d(u),
		DownFactor:   d(dn),
		RiskFreeRate: d(r),
	}
}

// --- Constructor tests ---

func TestNewPricer_Valid(t *testing.T) {
	p, err := NewPricer(d(0.25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.StepPeriod().Equal(d(0.25)) {
		t.Errorf("expected step period 0.25, got %s", p.StepPeriod())
	}
}

func TestNewPricer_ZeroPeriod(t *testing.T) {
	if _, err := NewPricer(decimal.Zero); err != ErrInvalidStepPeriod {
		t.Errorf("expected ErrInvalidStepPeriod, got %v", err)
	}
}

// --- Single-step reference value ---

func TestPrice_OneStepCallAtTheMoney(t *testing.T) {
	// steps=1, S=100, Px=100, u=1.1, d=0.9, r=0:
	// p = (1 - 0.9) / (1.1 - 0.9) = 0.5
	// value = 0.5 * max(0, 110-100) + 0.5 * max(0, 90-100) = 5, no discount.
	p := newTestPricer(t)
	got, err := p.Price(call(100, 100, 1, 1.1, 0.9, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(5)) {
		t.Errorf("expected 5, got %s", got)
	}
}

func TestPrice_OneStepPutAtTheMoney(t *testing.T) {
	// Mirror of the call: down payoff is 10, p = 0.5, value 5.
	p := newTestPricer(t)
	contract := call(100, 100, 1, 1.1, 0.9, 0)
	contract.Kind = model.Put
	got, err := p.Price(contract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(5)) {
		t.Errorf("expected 5, got %s", got)
	}
}

// --- Edge cases ---

func TestPrice_ZeroSteps_ReturnsIntrinsic(t *testing.T) {
	p := newTestPricer(t)

	got, err := p.Price(call(120, 100, 0, 1.1, 0.9, 0.05))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(20)) {
		t.Errorf("in-the-money call at steps=0 should be 20, got %s", got)
	}

	got, err = p.Price(call(80, 100, 0, 1.1, 0.9, 0.05))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("out-of-the-money call at steps=0 should be 0, got %s", got)
	}
}

func TestPrice_DegenerateTree(t *testing.T) {
	p := newTestPricer(t)
	_, err := p.Price(call(100, 100, 5, 1.05, 1.05, 0))
	if err != ErrDegenerateTree {
		t.Errorf("expected ErrDegenerateTree for u==d, got %v", err)
	}
}

func TestPrice_InvalidInputs(t *testing.T) {
	p := newTestPricer(t)

	tests := []struct {
		name     string
		contract model.OptionContract
		want     error
	}{
		{"zero spot", call(0, 100, 1, 1.1, 0.9, 0), ErrInvalidPrice},
		{"negative spot", call(-10, 100, 1, 1.1, 0.9, 0), ErrInvalidPrice},
		{"zero strike", call(100, 0, 1, 1.1, 0.9, 0), ErrInvalidPrice},
		{"zero up factor", call(100, 100, 1, 0, 0.9, 0), ErrInvalidPrice},
		{"zero down factor", call(100, 100, 1, 1.1, 0, 0), ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Price(tt.contract); err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	bad := call(100, 100, 1, 1.1, 0.9, 0)
	bad.Kind = "STRADDLE"
	if _, err := p.Price(bad); err != ErrInvalidKind {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}

	neg := call(100, 100, -1, 1.1, 0.9, 0)
	if _, err := p.Price(neg); err != ErrInvalidSteps {
		t.Errorf("expected ErrInvalidSteps, got %v", err)
	}
}

// --- Pricing properties ---

func TestPrice_Deterministic(t *testing.T) {
	p := newTestPricer(t)
	contract := call(100, 95, 25, 1.08, 0.93, 0.03)

	first, err := p.Price(contract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.Price(contract)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.String() != first.String() {
			t.Fatalf("re-pricing drifted: %s vs %s", again, first)
		}
	}
}

func TestPrice_AmericanAtLeastIntrinsic(t *testing.T) {
	// An American option is always worth at least immediate exercise.
	p := newTestPricer(t)

	contracts := []model.OptionContract{
		call(120, 100, 10, 1.1, 0.9, 0.05),
		call(80, 100, 10, 1.1, 0.9, 0.05),
	}
	put := call(80, 100, 10, 1.1, 0.9, 0.05)
	put.Kind = model.Put
	contracts = append(contracts, put)

	for _, c := range contracts {
		value, err := p.Price(c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		intrinsic := Intrinsic(c.Kind, c.Spot, c.Strike)
		if value.LessThan(intrinsic) {
			t.Errorf("%s value %s below intrinsic %s", c.Kind, value, intrinsic)
		}
	}
}

func TestPrice_AmericanPutEarlyExercisePremium(t *testing.T) {
	// With a positive rate a deep in-the-money American put is worth its
	// intrinsic value: waiting only discounts the payoff.
	p := newTestPricer(t)
	contract := call(10, 100, 10, 1.1, 0.9, 0.05)
	contract.Kind = model.Put

	value, err := p.Price(contract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !value.Equal(d(90)) {
		t.Errorf("deep ITM put should exercise immediately at 90, got %s", value)
	}
}

func TestPrice_MoreValuableWithMoreVolatility(t *testing.T) {
	p := newTestPricer(t)

	narrow, err := p.Price(call(100, 100, 10, 1.05, 0.95, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wide, err := p.Price(call(100, 100, 10, 1.2, 0.8, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wide.LessThanOrEqual(narrow) {
		t.Errorf("wider moves should raise option value: narrow=%s wide=%s", narrow, wide)
	}
}

func TestPrice_CallNonNegativeAndBounded(t *testing.T) {
	p := newTestPricer(t)
	value, err := p.Price(call(100, 150, 20, 1.1, 0.9, 0.02))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.IsNegative() {
		t.Errorf("option value must be non-negative, got %s", value)
	}
	if value.GreaterThan(d(100)) {
		t.Errorf("call value cannot exceed spot, got %s", value)
	}
}

func TestIntrinsic(t *testing.T) {
	tests := []struct {
		kind         model.OptionKind
		spot, strike float64
		want         float64
	}{
		{model.Call, 110, 100, 10},
		{model.Call, 90, 100, 0},
		{model.Put, 90, 100, 10},
		{model.Put, 110, 100, 0},
	}
	for _, tt := range tests {
		got := Intrinsic(tt.kind, d(tt.spot), d(tt.strike))
		if !got.Equal(d(tt.want)) {
			t.Errorf("Intrinsic(%s, %v, %v) = %s, want %v", tt.kind, tt.spot, tt.strike, got, tt.want)
		}
	}
}
