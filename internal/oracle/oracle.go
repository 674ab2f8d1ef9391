// Package oracle defines the price-feed collaborator interface. The core
// never fetches prices mid-computation: a PriceSource is consulted at the
// edge of an operation and the result is passed down as a parameter.
package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

// ErrInvalidPrice is returned for assets whose price is missing, stale,
// or not positive.
var ErrInvalidPrice = errors.New("oracle: price is missing, stale, or not positive")

// PriceSource supplies a positive fixed-point price per asset.
type PriceSource interface {
	Price(asset model.Asset) (decimal.Decimal, error)
}

// Static is an in-memory PriceSource fed by an external ingester. Quotes
// older than maxAge are treated as stale and reported as ErrInvalidPrice.
type Static struct {
	mu     sync.RWMutex
	quotes map[model.Asset]quote
	maxAge time.Duration
	now    func() time.Time
}

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// NewStatic creates a static source. maxAge <= 0 disables staleness checks.
func NewStatic(maxAge time.Duration) *Static {
	return &Static{
		quotes: make(map[model.Asset]quote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Set records a price for the asset. Non-positive prices are rejected.
func (s *Static) Set(asset model.Asset, price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[asset] = quote{price: price, at: s.now()}
	return nil
}

// Price returns the latest quote for the asset, or ErrInvalidPrice when no
// fresh quote exists.
func (s *Static) Price(asset model.Asset) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[asset]
	if !ok {
		return decimal.Zero, ErrInvalidPrice
	}
	if s.maxAge > 0 && s.now().Sub(q.at) > s.maxAge {
		return decimal.Zero, ErrInvalidPrice
	}
	return q.price, nil
}
