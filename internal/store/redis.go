package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.cachePool(ctx, p)
	return nil
}

func (s *CachedStore) UpdatePoolState(ctx context.Context, id string, reserveA, reserveB, supply decimal.Decimal, status model.PoolStatus) error {
	if err := s.primary.UpdatePoolState(ctx, id, reserveA, reserveB, supply, status); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, poolKey(id))
	return nil
}

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) error {
	return s.primary.CreatePosition(ctx, p)
}

func (s *CachedStore) UpdatePositionState(ctx context.Context, id string, collateral decimal.Decimal, status model.PositionStatus) error {
	if err := s.primary.UpdatePositionState(ctx, id, collateral, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(id))
	return nil
}

func (s *CachedStore) UpsertSettlement(ctx context.Context, rec *model.Settlement) error {
	if err := s.primary.UpsertSettlement(ctx, rec); err != nil {
		return err
	}
	s.rdb.Del(ctx, settlementKey(rec.PositionID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	data, err := s.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var p model.Pool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePool(ctx, p)
	return p, nil
}

func (s *CachedStore) GetPoolByPair(ctx context.Context, pair string) (*model.Pool, error) {
	// Try cache via pair→poolID mapping.
	poolID, err := s.rdb.Get(ctx, pairKey(pair)).Result()
	if err == nil {
		return s.GetPool(ctx, poolID)
	}

	p, err := s.primary.GetPoolByPair(ctx, pair)
	if err != nil {
		return nil, err
	}

	// Cache both the pool and the pair→ID mapping.
	s.cachePool(ctx, p)
	s.rdb.Set(ctx, pairKey(pair), p.ID, s.ttl)
	return p, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(id)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(id), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetSettlementByPosition(ctx context.Context, positionID string) (*model.Settlement, error) {
	data, err := s.rdb.Get(ctx, settlementKey(positionID)).Bytes()
	if err == nil {
		var rec model.Settlement
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	rec, err := s.primary.GetSettlementByPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}

	// Terminal records never change; cache in-flight ones too, writes
	// invalidate.
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, settlementKey(positionID), data, s.ttl)
	}
	return rec, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	return s.primary.ListPositions(ctx)
}

func (s *CachedStore) ListPositionsByAccount(ctx context.Context, account string) ([]model.Position, error) {
	return s.primary.ListPositionsByAccount(ctx, account)
}

func (s *CachedStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	return s.primary.ListSettlements(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cachePool(ctx context.Context, p *model.Pool) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, poolKey(p.ID), data, s.ttl)
	}
}

func poolKey(id string) string       { return fmt.Sprintf("pool:%s", id) }
func pairKey(pair string) string     { return fmt.Sprintf("pair:%s", pair) }
func positionKey(id string) string   { return fmt.Sprintf("position:%s", id) }
func settlementKey(id string) string { return fmt.Sprintf("settlement:%s", id) }
