// Package exposure enforces notional exposure limits across
// collateralized positions.
//
// A writer opening positions against twenty underlyings has aggregate
// risk even when each position looks small on its own. This package
// enforces a per-underlying cap and an aggregate cap across all of an
// account's open positions.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

var (
	// ErrPerAssetLimitExceeded is returned when a position would push a
	// single underlying's exposure beyond the per-asset maximum.
	ErrPerAssetLimitExceeded = errors.New("exposure: per-asset exposure limit exceeded")

	// ErrAggregateLimitExceeded is returned when a position would push the
	// account's total exposure across all underlyings beyond the
	// aggregate maximum.
	ErrAggregateLimitExceeded = errors.New("exposure: aggregate exposure limit exceeded")
)

// Limiter enforces notional exposure limits per account.
type Limiter struct {
	// MaxPerAsset is the maximum exposure against any single underlying.
	MaxPerAsset decimal.Decimal

	// MaxAggregate is the maximum total exposure across all underlyings.
	MaxAggregate decimal.Decimal
}

// NewLimiter creates a limiter with the given per-asset and aggregate
// exposure limits.
func NewLimiter(maxPerAsset, maxAggregate decimal.Decimal) *Limiter {
	return &Limiter{
		MaxPerAsset:  maxPerAsset,
		MaxAggregate: maxAggregate,
	}
}

// Check validates whether an additional exposure respects the limits.
//
// Parameters:
//   - target: underlying asset of the position being opened
//   - delta: notional exposure being added
//   - existing: map of underlying asset → current open exposure for this
//     account
//
// Returns nil if the position is within limits, or an error describing
// the violation.
func (l *Limiter) Check(target model.Asset, delta decimal.Decimal, existing map[model.Asset]decimal.Decimal) error {
	newExposure := existing[target].Add(delta)
	if newExposure.GreaterThan(l.MaxPerAsset) {
		return ErrPerAssetLimitExceeded
	}

	total := newExposure
	for asset, exp := range existing {
		if asset == target {
			continue // already counted via newExposure above
		}
		total = total.Add(exp)
	}
	if total.GreaterThan(l.MaxAggregate) {
		return ErrAggregateLimitExceeded
	}

	return nil
}
