// Package binomial implements American option valuation on a recombining
// up/down binomial tree (Cox–Ross–Rubinstein lattice).
//
// The tree provides:
//   - Terminal payoffs max(0, S_t − Px) for calls, max(0, Px − S_t) for puts,
//     where S_t = S₀ · u^j · d^(steps−j) at node index j
//   - Backward induction under the risk-neutral probability
//     p = (e^(rΔt) − d) / (u − d)
//   - An early-exercise check at every internal node: value is
//     max(discounted expectation, intrinsic value at the node)
//
// All monetary values use shopspring/decimal — never float64 for money.
// The single transcendental step (the per-step growth factor e^(rΔt)) goes
// through fixedpoint.Exp and is converted back to decimal immediately; every
// node value is rounded half-to-even so repricing the same contract is
// bit-for-bit deterministic.
//
// Reference: Cox, J., Ross, S., Rubinstein, M. (1979)
// "Option Pricing: A Simplified Approach"
package binomial

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/fixedpoint"
	"github.com/elision-io/elision-core/internal/model"
)

var (
	// ErrDegenerateTree is returned when the up and down factors are equal:
	// the lattice collapses to a single path and the risk-neutral
	// probability is undefined.
	ErrDegenerateTree = errors.New("binomial: up factor equals down factor, tree is degenerate")

	// ErrInvalidPrice is returned when spot, strike, or either move factor
	// is zero or negative.
	ErrInvalidPrice = errors.New("binomial: spot, strike, and move factors must be positive")

	// ErrInvalidSteps is returned for a negative step count.
	ErrInvalidSteps = errors.New("binomial: step count must be non-negative")

	// ErrInvalidKind is returned for an option kind other than CALL or PUT.
	ErrInvalidKind = errors.New("binomial: option kind must be CALL or PUT")
)

// Pricer values American-style options. It is stateless — the contract is
// passed as an argument, not stored — so one Pricer can serve every
// settlement.
type Pricer struct {
	stepPeriod decimal.Decimal // Δt: year fraction covered by one tree step
}

// ErrInvalidStepPeriod is returned when Δt <= 0.
var ErrInvalidStepPeriod = errors.New("binomial: step period must be positive")

// NewPricer creates a pricer whose trees advance Δt = stepPeriod per step.
// The risk-free rate on a contract is interpreted against this period:
// the per-step growth factor is e^(r·Δt).
func NewPricer(stepPeriod decimal.Decimal) (*Pricer, error) {
	if stepPeriod.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidStepPeriod
	}
	return &Pricer{stepPeriod: stepPeriod}, nil
}

// StepPeriod returns Δt.
func (p *Pricer) StepPeriod() decimal.Decimal {
	return p.stepPeriod
}

// Intrinsic returns the immediate-exercise value of an option at the given
// spot: max(0, S − Px) for a call, max(0, Px − S) for a put.
func Intrinsic(kind model.OptionKind, spot, strike decimal.Decimal) decimal.Decimal {
	var v decimal.Decimal
	switch kind {
	case model.Call:
		v = spot.Sub(strike)
	case model.Put:
		v = strike.Sub(spot)
	}
	if v.IsNegative() {
		return decimal.Zero
	}
	return fixedpoint.Round(v)
}

// Price values the contract on a recombining tree with steps+1 terminal
// nodes. steps = 0 returns the intrinsic value at spot.
//
// The computation is pure: no state is read or written, and evaluating the
// same contract twice returns identical decimals.
func (p *Pricer) Price(c model.OptionContract) (decimal.Decimal, error) {
	if c.Kind != model.Call && c.Kind != model.Put {
		return decimal.Zero, ErrInvalidKind
	}
	if c.Steps < 0 {
		return decimal.Zero, ErrInvalidSteps
	}
	if c.Spot.LessThanOrEqual(decimal.Zero) || c.Strike.LessThanOrEqual(decimal.Zero) ||
		c.UpFactor.LessThanOrEqual(decimal.Zero) || c.DownFactor.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidPrice
	}
	if c.UpFactor.Equal(c.DownFactor) {
		return decimal.Zero, ErrDegenerateTree
	}

	if c.Steps == 0 {
		return Intrinsic(c.Kind, c.Spot, c.Strike), nil
	}

	// Per-step growth factor and risk-neutral probability.
	// p = (e^(rΔt) − d) / (u − d), clamped to [0, 1] so that trees priced
	// outside the no-arbitrage band still induct to a valid expectation.
	growth := fixedpoint.Exp(c.RiskFreeRate.Mul(p.stepPeriod))
	prob, err := fixedpoint.Div(growth.Sub(c.DownFactor), c.UpFactor.Sub(c.DownFactor))
	if err != nil {
		return decimal.Zero, ErrDegenerateTree
	}
	one := decimal.NewFromInt(1)
	prob = fixedpoint.Clamp(prob, decimal.Zero, one)
	probDown := one.Sub(prob)

	discount, err := fixedpoint.Div(one, growth)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}

	// Terminal payoffs: node j has j up-moves and steps−j down-moves.
	values := make([]decimal.Decimal, c.Steps+1)
	for j := 0; j <= c.Steps; j++ {
		spot := nodeSpot(c.Spot, c.UpFactor, c.DownFactor, j, c.Steps)
		values[j] = Intrinsic(c.Kind, spot, c.Strike)
	}

	// Backward induction with the American early-exercise check.
	for step := c.Steps - 1; step >= 0; step-- {
		for j := 0; j <= step; j++ {
			expected := prob.Mul(values[j+1]).Add(probDown.Mul(values[j]))
			continuation := fixedpoint.Mul(discount, expected)

			spot := nodeSpot(c.Spot, c.UpFactor, c.DownFactor, j, step)
			exercise := Intrinsic(c.Kind, spot, c.Strike)

			if exercise.GreaterThan(continuation) {
				values[j] = exercise
			} else {
				values[j] = continuation
			}
		}
	}

	return values[0], nil
}

// nodeSpot returns S₀ · u^j · d^(step−j) rounded at the canonical scale.
func nodeSpot(s0, u, d decimal.Decimal, j, step int) decimal.Decimal {
	up := fixedpoint.PowInt(u, j)
	down := fixedpoint.PowInt(d, step-j)
	return fixedpoint.Round(s0.Mul(up).Mul(down))
}
