// Package registry is the pool directory: it keys pools by their sorted
// asset pair, owns pool creation, and is the only component that consumes
// tracking-token buckets. Liquidity operations here are compute-then-commit
// with the custodian: pool math runs first, custody moves only on success.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/custody"
	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/pool"
)

var (
	// ErrPoolExists is returned when creating a pool for a pair that
	// already has one.
	ErrPoolExists = errors.New("registry: pool already exists for pair")

	// ErrPoolNotFound is returned when no pool serves the requested pair
	// or tracking asset.
	ErrPoolNotFound = errors.New("registry: pool not found")

	// ErrNotTrackingAsset is returned when a bucket presented for
	// redemption does not hold a known tracking token.
	ErrNotTrackingAsset = errors.New("registry: not a tracking asset")
)

// SortAssets orders a pair canonically so (A,B) and (B,A) name the same
// pool.
func SortAssets(a, b model.Asset) (model.Asset, model.Asset) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairSymbol returns the canonical symbol for an asset pair, e.g.
// "USD/XRD".
func PairSymbol(a, b model.Asset) string {
	a, b = SortAssets(a, b)
	return string(a) + "/" + string(b)
}

// Registry maps asset pairs to their pools.
type Registry struct {
	mu      sync.RWMutex
	cust    custody.Custodian
	pools   map[string]*pool.Pool      // pair symbol → pool
	byTrack map[model.Asset]*pool.Pool // tracking asset → pool
}

// New creates an empty registry backed by the custodian.
func New(cust custody.Custodian) *Registry {
	return &Registry{
		cust:    cust,
		pools:   make(map[string]*pool.Pool),
		byTrack: make(map[model.Asset]*pool.Pool),
	}
}

// CreatePool creates the pool for the pair, seeds it from the two buckets,
// mints the initial tracking supply, and returns the tracking-token bucket
// for the founding provider.
func (r *Registry) CreatePool(account string, a, b custody.Bucket, feePercent decimal.Decimal) (model.Pool, custody.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sym := PairSymbol(a.Asset, b.Asset)
	if _, ok := r.pools[sym]; ok {
		return model.Pool{}, custody.Bucket{}, ErrPoolExists
	}

	// Canonical order decides which bucket is reserve A.
	first, _ := SortAssets(a.Asset, b.Asset)
	if a.Asset != first {
		a, b = b, a
	}

	p, minted, err := pool.New(uuid.New().String(), a.Asset, b.Asset, a.Amount, b.Amount, feePercent)
	if err != nil {
		return model.Pool{}, custody.Bucket{}, err
	}

	tokens, err := r.cust.MintTrackingToken(p.TrackingAsset(), minted)
	if err != nil {
		return model.Pool{}, custody.Bucket{}, err
	}
	if err := r.cust.TransferIn(account, a); err != nil {
		return model.Pool{}, custody.Bucket{}, err
	}
	if err := r.cust.TransferIn(account, b); err != nil {
		return model.Pool{}, custody.Bucket{}, err
	}

	r.pools[sym] = p
	r.byTrack[p.TrackingAsset()] = p
	return p.Snapshot(), tokens, nil
}

// AddLiquidity deposits the two buckets into the pair's pool and returns
// the newly minted tracking-token bucket.
func (r *Registry) AddLiquidity(account string, a, b custody.Bucket) (custody.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[PairSymbol(a.Asset, b.Asset)]
	if !ok {
		return custody.Bucket{}, ErrPoolNotFound
	}

	first, _ := p.Assets()
	if a.Asset != first {
		a, b = b, a
	}

	minted, err := p.AddLiquidity(a.Amount, b.Amount)
	if err != nil {
		return custody.Bucket{}, err
	}

	tokens, err := r.cust.MintTrackingToken(p.TrackingAsset(), minted)
	if err != nil {
		return custody.Bucket{}, err
	}
	if err := r.cust.TransferIn(account, a); err != nil {
		return custody.Bucket{}, err
	}
	if err := r.cust.TransferIn(account, b); err != nil {
		return custody.Bucket{}, err
	}
	return tokens, nil
}

// RemoveLiquidity burns the tracking-token bucket and pays out the
// provider's pro-rata share of both reserves.
func (r *Registry) RemoveLiquidity(account string, tokens custody.Bucket) (custody.Bucket, custody.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byTrack[tokens.Asset]
	if !ok {
		return custody.Bucket{}, custody.Bucket{}, ErrNotTrackingAsset
	}

	outA, outB, err := p.RemoveLiquidity(tokens.Amount)
	if err != nil {
		return custody.Bucket{}, custody.Bucket{}, err
	}
	if err := r.cust.BurnTrackingToken(tokens); err != nil {
		return custody.Bucket{}, custody.Bucket{}, err
	}

	assetA, assetB := p.Assets()
	if err := r.cust.TransferOut(assetA, outA, account); err != nil {
		return custody.Bucket{}, custody.Bucket{}, err
	}
	if err := r.cust.TransferOut(assetB, outB, account); err != nil {
		return custody.Bucket{}, custody.Bucket{}, err
	}
	return custody.Bucket{Asset: assetA, Amount: outA}, custody.Bucket{Asset: assetB, Amount: outB}, nil
}

// Swap trades the bucket against the pair's pool and returns the output
// bucket.
func (r *Registry) Swap(account string, in custody.Bucket, counter model.Asset) (custody.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[PairSymbol(in.Asset, counter)]
	if !ok {
		return custody.Bucket{}, ErrPoolNotFound
	}

	outAsset, outAmount, err := p.Swap(in.Asset, in.Amount)
	if err != nil {
		return custody.Bucket{}, err
	}
	if err := r.cust.TransferIn(account, in); err != nil {
		return custody.Bucket{}, err
	}
	if err := r.cust.TransferOut(outAsset, outAmount, account); err != nil {
		return custody.Bucket{}, err
	}
	return custody.Bucket{Asset: outAsset, Amount: outAmount}, nil
}

// Lookup returns the pool serving the pair.
func (r *Registry) Lookup(a, b model.Asset) (*pool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[PairSymbol(a, b)]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// FundingPool returns the open pool with the deepest reserve of the
// asset. Settlement payouts and liquidated collateral flow through it.
func (r *Registry) FundingPool(asset model.Asset) (*pool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *pool.Pool
	var bestReserve decimal.Decimal
	for _, p := range r.pools {
		if !p.Contains(asset) || p.Snapshot().Status != model.PoolOpen {
			continue
		}
		reserveA, reserveB := p.Reserves()
		reserve := reserveA
		if assetA, _ := p.Assets(); asset != assetA {
			reserve = reserveB
		}
		if best == nil || reserve.GreaterThan(bestReserve) {
			best = p
			bestReserve = reserve
		}
	}
	if best == nil {
		return nil, ErrPoolNotFound
	}
	return best, nil
}

// ByTrackingAsset returns the pool that issued the tracking asset.
func (r *Registry) ByTrackingAsset(track model.Asset) (*pool.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byTrack[track]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// Restore re-registers a pool from a stored snapshot.
func (r *Registry) Restore(snap model.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := pool.Restore(snap)
	r.pools[PairSymbol(snap.AssetA, snap.AssetB)] = p
	r.byTrack[p.TrackingAsset()] = p
}

// Snapshots returns a snapshot of every registered pool.
func (r *Registry) Snapshots() []model.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, p.Snapshot())
	}
	return out
}
