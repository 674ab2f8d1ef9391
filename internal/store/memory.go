package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/registry"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	pools       map[string]*model.Pool
	poolsByPair map[string]string // pair symbol → pool ID
	positions   map[string]*model.Position
	settlements map[string]*model.Settlement // keyed by position ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:       make(map[string]*model.Pool),
		poolsByPair: make(map[string]string),
		positions:   make(map[string]*model.Position),
		settlements: make(map[string]*model.Settlement),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := registry.PairSymbol(p.AssetA, p.AssetB)
	if _, ok := s.poolsByPair[pair]; ok {
		return fmt.Errorf("pool for pair %s already exists", pair)
	}

	// Store a copy to avoid external mutation.
	clone := *p
	s.pools[p.ID] = &clone
	s.poolsByPair[pair] = p.ID
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) GetPoolByPair(_ context.Context, pair string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.poolsByPair[pair]
	if !ok {
		return nil, fmt.Errorf("pool for pair %s: %w", pair, ErrNotFound)
	}
	clone := *s.pools[id]
	return &clone, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	return pools, nil
}

func (s *MemoryStore) UpdatePoolState(_ context.Context, id string, reserveA, reserveB, supply decimal.Decimal, status model.PoolStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok {
		return fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	p.ReserveA = reserveA
	p.ReserveB = reserveB
	p.TrackingSupply = supply
	p.Status = status
	return nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *p
	s.positions[p.ID] = &clone
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, *p)
	}
	return positions, nil
}

func (s *MemoryStore) ListPositionsByAccount(_ context.Context, account string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, p := range s.positions {
		if p.Account == account {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdatePositionState(_ context.Context, id string, collateral decimal.Decimal, status model.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("position %s: %w", id, ErrNotFound)
	}
	p.CollateralAmount = collateral
	p.Status = status
	return nil
}

func (s *MemoryStore) UpsertSettlement(_ context.Context, rec *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	s.settlements[rec.PositionID] = &clone
	return nil
}

func (s *MemoryStore) GetSettlementByPosition(_ context.Context, positionID string) (*model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.settlements[positionID]
	if !ok {
		return nil, fmt.Errorf("settlement for position %s: %w", positionID, ErrNotFound)
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) ListSettlements(_ context.Context) ([]model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]model.Settlement, 0, len(s.settlements))
	for _, rec := range s.settlements {
		records = append(records, *rec)
	}
	return records, nil
}
