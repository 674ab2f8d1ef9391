// Package pool implements constant-product liquidity pool accounting:
// two reserve balances, tracking-token issuance and burn, pro-rata
// withdrawal, and fee-taking swaps.
//
// The pool exclusively owns its reserve pair and tracking supply. Every
// mutating operation is all-or-nothing: preconditions are checked and
// amounts computed before any field is assigned, so a rejected call leaves
// no partial state change. Callers serialize access externally; the pool
// itself holds no lock.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pool

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/fixedpoint"
	"github.com/elision-io/elision-core/internal/model"
)

var (
	// ErrSameAsset is returned when a pool is created from one asset twice.
	ErrSameAsset = errors.New("pool: pool must be created from two different assets")

	// ErrEmptyDeposit is returned when a deposit amount is zero or negative.
	ErrEmptyDeposit = errors.New("pool: deposit amounts must be positive")

	// ErrInvalidFee is returned when the fee is outside [0, 100].
	ErrInvalidFee = errors.New("pool: fee must be between 0 and 100 percent")

	// ErrRatioMismatch is returned when an add-liquidity deposit is not
	// proportional to the current reserve ratio.
	ErrRatioMismatch = errors.New("pool: deposit ratio does not match reserve ratio")

	// ErrInsufficientSupply is returned when a burn exceeds the outstanding
	// tracking-token supply.
	ErrInsufficientSupply = errors.New("pool: tracking tokens exceed outstanding supply")

	// ErrInsufficientReserve is returned when a payout or swap would
	// overdraw a reserve.
	ErrInsufficientReserve = errors.New("pool: not enough reserve for the withdrawal")

	// ErrWrongAsset is returned when an asset does not belong to the pool.
	ErrWrongAsset = errors.New("pool: asset does not belong to the pool")

	// ErrPoolClosed is returned for mutations against a closed pool.
	ErrPoolClosed = errors.New("pool: pool is closed")
)

// InitialTrackingSupply is minted to the first liquidity provider,
// regardless of deposit size. Later providers are minted pro rata against
// this base.
var InitialTrackingSupply = decimal.NewFromInt(100)

// RatioTolerance is the maximum relative deviation between the deposit
// ratio and the reserve ratio accepted by AddLiquidity. It absorbs the
// rounding of proportional deposits computed at the canonical scale.
var RatioTolerance = decimal.New(1, -9) // 1e-9

// Pool holds two reserves and the tracking-token supply minted against
// them. Construct with New or Restore.
type Pool struct {
	id            string
	assetA        model.Asset
	assetB        model.Asset
	reserveA      decimal.Decimal
	reserveB      decimal.Decimal
	trackingAsset model.Asset
	supply        decimal.Decimal
	feePercent    decimal.Decimal
	status        model.PoolStatus
	createdAt     time.Time
}

// New creates a pool seeded with the first deposit and returns the amount
// of tracking tokens minted to the creator (always InitialTrackingSupply).
// The tracking asset is derived from the pair so the registry can route
// burns back to the right pool.
func New(id string, assetA, assetB model.Asset, amountA, amountB, feePercent decimal.Decimal) (*Pool, decimal.Decimal, error) {
	if assetA == assetB {
		return nil, decimal.Zero, ErrSameAsset
	}
	if amountA.LessThanOrEqual(decimal.Zero) || amountB.LessThanOrEqual(decimal.Zero) {
		return nil, decimal.Zero, ErrEmptyDeposit
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, decimal.Zero, ErrInvalidFee
	}

	p := &Pool{
		id:            id,
		assetA:        assetA,
		assetB:        assetB,
		reserveA:      fixedpoint.Round(amountA),
		reserveB:      fixedpoint.Round(amountB),
		trackingAsset: TrackingAssetFor(assetA, assetB),
		supply:        InitialTrackingSupply,
		feePercent:    feePercent,
		status:        model.PoolOpen,
		createdAt:     time.Now().UTC(),
	}
	return p, InitialTrackingSupply, nil
}

// TrackingAssetFor derives the tracking-token asset identifier for a pair.
func TrackingAssetFor(assetA, assetB model.Asset) model.Asset {
	return model.Asset(string(assetA) + "-" + string(assetB) + "-LP")
}

// Restore rebuilds a pool from its persisted snapshot.
func Restore(snap model.Pool) *Pool {
	return &Pool{
		id:            snap.ID,
		assetA:        snap.AssetA,
		assetB:        snap.AssetB,
		reserveA:      snap.ReserveA,
		reserveB:      snap.ReserveB,
		trackingAsset: snap.TrackingAsset,
		supply:        snap.TrackingSupply,
		feePercent:    snap.FeePercent,
		status:        snap.Status,
		createdAt:     snap.CreatedAt,
	}
}

// Snapshot returns the persistable state of the pool.
func (p *Pool) Snapshot() model.Pool {
	return model.Pool{
		ID:             p.id,
		AssetA:         p.assetA,
		AssetB:         p.assetB,
		ReserveA:       p.reserveA,
		ReserveB:       p.reserveB,
		TrackingAsset:  p.trackingAsset,
		TrackingSupply: p.supply,
		FeePercent:     p.feePercent,
		Status:         p.status,
		CreatedAt:      p.createdAt,
	}
}

// ID returns the pool identifier.
func (p *Pool) ID() string { return p.id }

// Assets returns the pool's asset pair.
func (p *Pool) Assets() (model.Asset, model.Asset) { return p.assetA, p.assetB }

// TrackingAsset returns the tracking-token asset for this pool.
func (p *Pool) TrackingAsset() model.Asset { return p.trackingAsset }

// TrackingSupply returns the outstanding tracking-token supply.
func (p *Pool) TrackingSupply() decimal.Decimal { return p.supply }

// Reserves returns the current reserve balances (assetA, assetB).
func (p *Pool) Reserves() (decimal.Decimal, decimal.Decimal) {
	return p.reserveA, p.reserveB
}

// Contains reports whether the asset is one of the pool's reserves.
func (p *Pool) Contains(asset model.Asset) bool {
	return asset == p.assetA || asset == p.assetB
}

// Other returns the opposite reserve asset.
func (p *Pool) Other(asset model.Asset) (model.Asset, error) {
	switch asset {
	case p.assetA:
		return p.assetB, nil
	case p.assetB:
		return p.assetA, nil
	default:
		return "", ErrWrongAsset
	}
}

// K returns the constant-product invariant: reserveA * reserveB.
// Pure add/remove liquidity preserves the reserve ratio; swaps never
// decrease K (fees strictly increase it).
func (p *Pool) K() decimal.Decimal {
	return fixedpoint.Mul(p.reserveA, p.reserveB)
}

// AddLiquidity deposits a proportional amount of both assets and mints
// tracking tokens for the contributed share:
//
//	minted = amountA * supply / reserveA
//
// The deposit ratio must match the reserve ratio within RatioTolerance,
// else the call is rejected with ErrRatioMismatch and no state changes.
func (p *Pool) AddLiquidity(amountA, amountB decimal.Decimal) (decimal.Decimal, error) {
	if p.status != model.PoolOpen {
		return decimal.Zero, ErrPoolClosed
	}
	if amountA.LessThanOrEqual(decimal.Zero) || amountB.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrEmptyDeposit
	}

	// Cross-product ratio check: amountA/amountB == reserveA/reserveB
	// without dividing, then a relative tolerance for rounded deposits.
	left := amountA.Mul(p.reserveB)
	right := amountB.Mul(p.reserveA)
	diff := left.Sub(right).Abs()
	if diff.GreaterThan(right.Abs().Mul(RatioTolerance)) {
		return decimal.Zero, ErrRatioMismatch
	}

	minted, err := fixedpoint.MulDiv(amountA, p.supply, p.reserveA)
	if err != nil {
		return decimal.Zero, err
	}
	if minted.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrEmptyDeposit
	}

	// Commit.
	p.reserveA = fixedpoint.Round(p.reserveA.Add(amountA))
	p.reserveB = fixedpoint.Round(p.reserveB.Add(amountB))
	p.supply = p.supply.Add(minted)
	return minted, nil
}

// RemoveLiquidity burns tracking tokens and withdraws the pro-rata share
// of both reserves:
//
//	withdrawnX = reserveX * tokens / supply
//
// Requires 0 < tokens <= supply; otherwise ErrInsufficientSupply. The
// reserve and supply mutations are atomic — a failed precondition leaves
// no partial state change.
func (p *Pool) RemoveLiquidity(tokens decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if tokens.LessThanOrEqual(decimal.Zero) || tokens.GreaterThan(p.supply) {
		return decimal.Zero, decimal.Zero, ErrInsufficientSupply
	}

	outA, err := fixedpoint.MulDiv(p.reserveA, tokens, p.supply)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	outB, err := fixedpoint.MulDiv(p.reserveB, tokens, p.supply)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	// The pro-rata share can never exceed the reserve; guard the rounding
	// boundary anyway so over-withdrawal is impossible by construction.
	outA = decimal.Min(outA, p.reserveA)
	outB = decimal.Min(outB, p.reserveB)

	// Commit.
	p.reserveA = p.reserveA.Sub(outA)
	p.reserveB = p.reserveB.Sub(outB)
	p.supply = p.supply.Sub(tokens)
	return outA, outB, nil
}

// SwapQuote returns the output amount for swapping amountIn of inputAsset:
//
//	dy = (dx * r * y) / (x + r * dx), r = (100 - fee) / 100
//
// where x is the input reserve and y the output reserve.
func (p *Pool) SwapQuote(inputAsset model.Asset, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if !p.Contains(inputAsset) {
		return decimal.Zero, ErrWrongAsset
	}
	if amountIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrEmptyDeposit
	}

	x, y := p.reservesFor(inputAsset)
	r := p.feeModifier()

	num := amountIn.Mul(r).Mul(y)
	den := x.Add(r.Mul(amountIn))
	return fixedpoint.Div(num, den)
}

// QuoteInput returns the input amount required to receive amountOut of
// outputAsset:
//
//	dx = (dy * x) / (r * (y - dy)), r = (100 - fee) / 100
func (p *Pool) QuoteInput(outputAsset model.Asset, amountOut decimal.Decimal) (decimal.Decimal, error) {
	if !p.Contains(outputAsset) {
		return decimal.Zero, ErrWrongAsset
	}
	y := p.reserveOf(outputAsset)
	if amountOut.LessThanOrEqual(decimal.Zero) || amountOut.GreaterThanOrEqual(y) {
		return decimal.Zero, ErrInsufficientReserve
	}

	other, _ := p.Other(outputAsset)
	x := p.reserveOf(other)
	r := p.feeModifier()

	num := amountOut.Mul(x)
	den := r.Mul(y.Sub(amountOut))
	return fixedpoint.Div(num, den)
}

// Swap executes a fee-taking swap of amountIn of inputAsset and returns the
// output asset and amount. K never decreases across a swap.
func (p *Pool) Swap(inputAsset model.Asset, amountIn decimal.Decimal) (model.Asset, decimal.Decimal, error) {
	if p.status != model.PoolOpen {
		return "", decimal.Zero, ErrPoolClosed
	}
	out, err := p.SwapQuote(inputAsset, amountIn)
	if err != nil {
		return "", decimal.Zero, err
	}

	outputAsset, _ := p.Other(inputAsset)
	if out.GreaterThanOrEqual(p.reserveOf(outputAsset)) {
		return "", decimal.Zero, ErrInsufficientReserve
	}

	// Commit.
	p.credit(inputAsset, amountIn)
	p.debit(outputAsset, out)
	return outputAsset, out, nil
}

// PayOut withdraws amount of asset from the pool for a settlement payout.
// It does not touch the tracking supply: settlements redistribute pool
// value, they do not redeem shares.
func (p *Pool) PayOut(asset model.Asset, amount decimal.Decimal) error {
	if p.status != model.PoolOpen {
		return ErrPoolClosed
	}
	if !p.Contains(asset) {
		return ErrWrongAsset
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrEmptyDeposit
	}
	if amount.GreaterThan(p.reserveOf(asset)) {
		return ErrInsufficientReserve
	}
	p.debit(asset, amount)
	return nil
}

// CreditIn deposits amount of asset into the pool (liquidated collateral,
// settlement deficits). The tracking supply is unchanged.
func (p *Pool) CreditIn(asset model.Asset, amount decimal.Decimal) error {
	if p.status != model.PoolOpen {
		return ErrPoolClosed
	}
	if !p.Contains(asset) {
		return ErrWrongAsset
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrEmptyDeposit
	}
	p.credit(asset, amount)
	return nil
}

// Close marks the pool closed; all further mutations are rejected.
func (p *Pool) Close() {
	p.status = model.PoolClosed
}

func (p *Pool) feeModifier() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(p.feePercent).Div(hundred)
}

func (p *Pool) reserveOf(asset model.Asset) decimal.Decimal {
	if asset == p.assetA {
		return p.reserveA
	}
	return p.reserveB
}

// reservesFor returns (input reserve, output reserve) for a swap of input.
func (p *Pool) reservesFor(input model.Asset) (decimal.Decimal, decimal.Decimal) {
	if input == p.assetA {
		return p.reserveA, p.reserveB
	}
	return p.reserveB, p.reserveA
}

func (p *Pool) credit(asset model.Asset, amount decimal.Decimal) {
	if asset == p.assetA {
		p.reserveA = fixedpoint.Round(p.reserveA.Add(amount))
	} else {
		p.reserveB = fixedpoint.Round(p.reserveB.Add(amount))
	}
}

func (p *Pool) debit(asset model.Asset, amount decimal.Decimal) {
	if asset == p.assetA {
		p.reserveA = fixedpoint.Round(p.reserveA.Sub(amount))
	} else {
		p.reserveB = fixedpoint.Round(p.reserveB.Sub(amount))
	}
}
