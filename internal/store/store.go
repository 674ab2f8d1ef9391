// Package store defines the persistence interface for the protocol core.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

// ErrNotFound is returned when a pool, position, or settlement does not
// exist in the backing store.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool operations ---

	// CreatePool persists a new liquidity pool.
	CreatePool(ctx context.Context, p *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// GetPoolByPair retrieves a pool by its canonical pair symbol.
	GetPoolByPair(ctx context.Context, pair string) (*model.Pool, error)

	// ListPools returns all pools.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// UpdatePoolState updates reserves and tracking supply after a
	// liquidity change, swap, or settlement payout.
	UpdatePoolState(ctx context.Context, id string, reserveA, reserveB, supply decimal.Decimal, status model.PoolStatus) error

	// --- Position operations ---

	// CreatePosition persists a newly opened position.
	CreatePosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves a position by its ID.
	GetPosition(ctx context.Context, id string) (*model.Position, error)

	// ListPositions returns all positions, for state reload at startup.
	ListPositions(ctx context.Context) ([]model.Position, error)

	// ListPositionsByAccount returns all positions for an account.
	ListPositionsByAccount(ctx context.Context, account string) ([]model.Position, error)

	// UpdatePositionState updates collateral and status after an
	// adjustment, close, or liquidation.
	UpdatePositionState(ctx context.Context, id string, collateral decimal.Decimal, status model.PositionStatus) error

	// --- Settlement records ---

	// UpsertSettlement inserts or updates a settlement record as the
	// state machine advances.
	UpsertSettlement(ctx context.Context, rec *model.Settlement) error

	// GetSettlementByPosition retrieves the settlement record for a
	// position.
	GetSettlementByPosition(ctx context.Context, positionID string) (*model.Settlement, error)

	// ListSettlements returns all settlement records.
	ListSettlements(ctx context.Context) ([]model.Settlement, error)
}
