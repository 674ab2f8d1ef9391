// Package tranche splits pool exposure into a hedged and an unhedged
// side. The settlement engine credits premiums and debits payouts against
// the side that carried the risk, so providers on each side accrue the
// P&L of their own tranche.
package tranche

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// Side selects which half of the book an entry applies to.
type Side string

const (
	Hedged   Side = "hedged"
	Unhedged Side = "unhedged"
)

var (
	// ErrInvalidSide is returned for a side other than Hedged or Unhedged.
	ErrInvalidSide = errors.New("tranche: invalid side")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("tranche: amount must be positive")

	// ErrInsufficientTranche is returned when a debit exceeds the side's
	// accrued balance.
	ErrInsufficientTranche = errors.New("tranche: insufficient balance")
)

// Book tracks accrued value per side.
type Book struct {
	mu       sync.RWMutex
	hedged   decimal.Decimal
	unhedged decimal.Decimal
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{}
}

// Credit accrues value to a side (settlement premium or liquidated
// collateral).
func (b *Book) Credit(side Side, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch side {
	case Hedged:
		b.hedged = b.hedged.Add(amount)
	case Unhedged:
		b.unhedged = b.unhedged.Add(amount)
	default:
		return ErrInvalidSide
	}
	return nil
}

// Debit draws value from a side (settlement payout funded by the
// tranche).
func (b *Book) Debit(side Side, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch side {
	case Hedged:
		if b.hedged.LessThan(amount) {
			return ErrInsufficientTranche
		}
		b.hedged = b.hedged.Sub(amount)
	case Unhedged:
		if b.unhedged.LessThan(amount) {
			return ErrInsufficientTranche
		}
		b.unhedged = b.unhedged.Sub(amount)
	default:
		return ErrInvalidSide
	}
	return nil
}

// Balance returns the side's accrued balance.
func (b *Book) Balance(side Side) (decimal.Decimal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch side {
	case Hedged:
		return b.hedged, nil
	case Unhedged:
		return b.unhedged, nil
	default:
		return decimal.Decimal{}, ErrInvalidSide
	}
}

// Total returns the combined balance of both sides.
func (b *Book) Total() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hedged.Add(b.unhedged)
}
