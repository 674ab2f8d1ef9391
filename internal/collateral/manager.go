// Package collateral tracks collateralized positions and enforces the
// minimum collateralization ratio (MCR).
//
// The manager exclusively owns the set of open positions, keyed by
// position identifier. Prices are supplied by the caller for the scope of
// a single computation and never cached. All monetary values use
// shopspring/decimal — never float64 for money.
package collateral

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/fixedpoint"
	"github.com/elision-io/elision-core/internal/model"
)

var (
	// ErrBelowMinimumCollateral is returned when an open or collateral
	// decrease would leave the ratio under the MCR.
	ErrBelowMinimumCollateral = errors.New("collateral: ratio below minimum collateralization ratio")

	// ErrPositionNotFound is returned for an unknown position identifier.
	ErrPositionNotFound = errors.New("collateral: position not found")

	// ErrInvalidPrice is returned for zero or negative price inputs.
	ErrInvalidPrice = errors.New("collateral: price inputs must be positive")

	// ErrInvalidAmount is returned for non-positive collateral or exposure.
	ErrInvalidAmount = errors.New("collateral: collateral and exposure must be positive")

	// ErrPositionNotOpen is returned for mutations against a closed or
	// liquidated position.
	ErrPositionNotOpen = errors.New("collateral: position is not open")

	// ErrInvalidMCR is returned when the configured MCR is not positive.
	ErrInvalidMCR = errors.New("collateral: minimum collateralization ratio must be positive")
)

// PricePair carries the two oracle prices one ratio computation needs.
type PricePair struct {
	Collateral decimal.Decimal
	Underlying decimal.Decimal
}

func (pp PricePair) validate() error {
	if pp.Collateral.LessThanOrEqual(decimal.Zero) || pp.Underlying.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	return nil
}

// Manager owns the open-position set and the MCR. Callers serialize
// access externally; each exposed operation is atomic with respect to the
// manager's own state.
type Manager struct {
	mcr       decimal.Decimal
	positions map[string]*model.Position
}

// NewManager creates a manager with the given minimum collateralization
// ratio (e.g. 1.5 for 150%).
func NewManager(mcr decimal.Decimal) (*Manager, error) {
	if mcr.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidMCR
	}
	return &Manager{
		mcr:       mcr,
		positions: make(map[string]*model.Position),
	}, nil
}

// MCR returns the configured minimum collateralization ratio.
func (m *Manager) MCR() decimal.Decimal {
	return m.mcr
}

// Open creates a position after verifying the ratio at open time is at
// least the MCR (exactly at MCR is accepted). Returns the new position ID.
func (m *Manager) Open(account string, collateralAsset model.Asset, collateralAmount decimal.Decimal,
	underlyingAsset model.Asset, exposure decimal.Decimal, prices PricePair) (string, error) {

	if collateralAmount.LessThanOrEqual(decimal.Zero) || exposure.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}
	if err := prices.validate(); err != nil {
		return "", err
	}

	ratio, err := computeRatio(collateralAmount, exposure, prices)
	if err != nil {
		return "", err
	}
	if ratio.LessThan(m.mcr) {
		return "", ErrBelowMinimumCollateral
	}

	p := &model.Position{
		ID:               uuid.New().String(),
		Account:          account,
		CollateralAsset:  collateralAsset,
		CollateralAmount: fixedpoint.Round(collateralAmount),
		UnderlyingAsset:  underlyingAsset,
		NotionalExposure: fixedpoint.Round(exposure),
		Status:           model.PositionOpen,
		CreatedAt:        time.Now().UTC(),
	}
	m.positions[p.ID] = p
	return p.ID, nil
}

// AdjustCollateral changes a position's collateral by delta (positive =
// top-up, negative = withdrawal). A decrease is allowed only if the
// resulting ratio stays at or above the MCR. Returns the new collateral
// amount. A rejected adjustment leaves the position untouched.
func (m *Manager) AdjustCollateral(id string, delta decimal.Decimal, prices PricePair) (decimal.Decimal, error) {
	p, err := m.open(id)
	if err != nil {
		return decimal.Zero, err
	}
	if err := prices.validate(); err != nil {
		return decimal.Zero, err
	}

	next := p.CollateralAmount.Add(delta)
	if next.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	if delta.IsNegative() {
		ratio, err := computeRatio(next, p.NotionalExposure, prices)
		if err != nil {
			return decimal.Zero, err
		}
		if ratio.LessThan(m.mcr) {
			return decimal.Zero, ErrBelowMinimumCollateral
		}
	}

	p.CollateralAmount = fixedpoint.Round(next)
	return p.CollateralAmount, nil
}

// Ratio returns the position's collateralization ratio under the supplied
// prices:
//
//	ratio = (collateral * collateralPrice) / (exposure * underlyingPrice)
//
// Pure read — no state changes.
func (m *Manager) Ratio(id string, prices PricePair) (decimal.Decimal, error) {
	p, err := m.open(id)
	if err != nil {
		return decimal.Zero, err
	}
	if err := prices.validate(); err != nil {
		return decimal.Zero, err
	}
	return computeRatio(p.CollateralAmount, p.NotionalExposure, prices)
}

// IsLiquidatable reports whether the ratio under the supplied prices has
// fallen below the MCR.
func (m *Manager) IsLiquidatable(id string, prices PricePair) (bool, error) {
	ratio, err := m.Ratio(id, prices)
	if err != nil {
		return false, err
	}
	return ratio.LessThan(m.mcr), nil
}

// Get returns a copy of the position, open or terminal.
func (m *Manager) Get(id string) (model.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return model.Position{}, ErrPositionNotFound
	}
	return *p, nil
}

// CloseOut transitions an open position to the given terminal status and
// returns the collateral held at close time. The position's collateral is
// zeroed; the caller decides where the released collateral goes.
func (m *Manager) CloseOut(id string, status model.PositionStatus) (decimal.Decimal, error) {
	if status != model.PositionClosed && status != model.PositionLiquidated {
		return decimal.Zero, ErrPositionNotOpen
	}
	p, err := m.open(id)
	if err != nil {
		return decimal.Zero, err
	}
	released := p.CollateralAmount
	p.CollateralAmount = decimal.Zero
	p.Status = status
	return released, nil
}

// Restore loads persisted positions into the manager, replacing any
// in-memory set.
func (m *Manager) Restore(positions []model.Position) {
	m.positions = make(map[string]*model.Position, len(positions))
	for i := range positions {
		p := positions[i]
		m.positions[p.ID] = &p
	}
}

// Positions returns a copy of every tracked position.
func (m *Manager) Positions() []model.Position {
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

func (m *Manager) open(id string) (*model.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return nil, ErrPositionNotFound
	}
	if p.Status != model.PositionOpen {
		return nil, ErrPositionNotOpen
	}
	return p, nil
}

func computeRatio(collateral, exposure decimal.Decimal, prices PricePair) (decimal.Decimal, error) {
	value := collateral.Mul(prices.Collateral)
	liability := exposure.Mul(prices.Underlying)
	return fixedpoint.Div(value, liability)
}
