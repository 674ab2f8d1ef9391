// Package settle drives the per-position settlement state machine:
// Open → Priced → CollateralChecked → Settled | Liquidated. The engine
// orchestrates the pricer, collateral manager, pool, tranche book, and
// custodian; terminal states are immutable and a position settles at most
// once.
package settle

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/binomial"
	"github.com/elision-io/elision-core/internal/collateral"
	"github.com/elision-io/elision-core/internal/custody"
	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/oracle"
	"github.com/elision-io/elision-core/internal/pool"
	"github.com/elision-io/elision-core/internal/tranche"
)

var (
	// ErrAlreadySettled is returned when settlement is requested for a
	// position whose settlement record is already terminal.
	ErrAlreadySettled = errors.New("settle: position already settled")

	// ErrSettlementNotFound is returned for an unknown settlement
	// identifier.
	ErrSettlementNotFound = errors.New("settle: settlement not found")

	// ErrInvalidHedgedShare is returned when the configured hedged share
	// is outside [0, 1].
	ErrInvalidHedgedShare = errors.New("settle: hedged share must be within [0, 1]")
)

// Funding resolves the pool that pays or absorbs settlement flows for an
// asset. The registry implements this over its open pools.
type Funding interface {
	FundingPool(asset model.Asset) (*pool.Pool, error)
}

// Engine executes settlements. All calls are serialized by the engine
// mutex so a position can never be settled twice concurrently.
type Engine struct {
	mu sync.Mutex

	pricer    *binomial.Pricer
	positions *collateral.Manager
	prices    oracle.PriceSource
	funding   Funding
	book      *tranche.Book
	cust      custody.Custodian

	// hedgedShare is the fraction of each payout accrued to the hedged
	// tranche; the remainder accrues unhedged.
	hedgedShare decimal.Decimal

	byPosition map[string]*model.Settlement
	now        func() time.Time
}

// NewEngine wires the settlement collaborators together.
func NewEngine(pricer *binomial.Pricer, positions *collateral.Manager, prices oracle.PriceSource,
	funding Funding, book *tranche.Book, cust custody.Custodian, hedgedShare decimal.Decimal) (*Engine, error) {
	if hedgedShare.IsNegative() || hedgedShare.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidHedgedShare
	}
	return &Engine{
		pricer:      pricer,
		positions:   positions,
		prices:      prices,
		funding:     funding,
		book:        book,
		cust:        cust,
		hedgedShare: hedgedShare,
		byPosition:  make(map[string]*model.Settlement),
		now:         time.Now,
	}, nil
}

// Settle runs the state machine for the position against the contract.
// On a degenerate tree the record returns to Open with no state residue,
// so the caller may retry with corrected parameters. Terminal outcomes
// are final: a second call returns ErrAlreadySettled.
func (e *Engine) Settle(positionID string, contract model.OptionContract) (model.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.byPosition[positionID]
	if ok && rec.State.Terminal() {
		return *rec, ErrAlreadySettled
	}

	position, err := e.positions.Get(positionID)
	if err != nil {
		return model.Settlement{}, err
	}

	if !ok {
		rec = &model.Settlement{
			ID:         uuid.New().String(),
			PositionID: positionID,
			State:      model.StateOpen,
			CreatedAt:  e.now(),
		}
		e.byPosition[positionID] = rec
	}

	// Open → Priced. A degenerate tree aborts back to Open.
	value, err := e.pricer.Price(contract)
	if err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}
	rec.OptionValue = value
	e.transition(rec, model.StatePriced)

	pair, err := e.pricePair(position)
	if err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}

	liquidatable, err := e.positions.IsLiquidatable(positionID, pair)
	if err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}
	if liquidatable {
		return e.liquidate(rec, position)
	}

	e.transition(rec, model.StateCollateralChecked)
	return e.payOut(rec, position)
}

// Get returns the settlement record for the position.
func (e *Engine) Get(positionID string) (model.Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.byPosition[positionID]
	if !ok {
		return model.Settlement{}, ErrSettlementNotFound
	}
	return *rec, nil
}

// Restore reloads settlement records from storage.
func (e *Engine) Restore(records []model.Settlement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		rec := records[i]
		e.byPosition[rec.PositionID] = &rec
	}
}

// Records returns a snapshot of every settlement record.
func (e *Engine) Records() []model.Settlement {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Settlement, 0, len(e.byPosition))
	for _, rec := range e.byPosition {
		out = append(out, *rec)
	}
	return out
}

// liquidate closes the position, pays its remaining collateral into the
// pool, and accrues the proceeds to the unhedged tranche.
func (e *Engine) liquidate(rec *model.Settlement, position model.Position) (model.Settlement, error) {
	p, err := e.funding.FundingPool(position.CollateralAsset)
	if err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}

	released := position.CollateralAmount
	if released.IsPositive() {
		if err := p.CreditIn(position.CollateralAsset, released); err != nil {
			e.transition(rec, model.StateOpen)
			return *rec, err
		}
		if err := e.book.Credit(tranche.Unhedged, released); err != nil {
			e.transition(rec, model.StateOpen)
			return *rec, err
		}
	}

	// Closing the position is the last irreversible step.
	if _, err := e.positions.CloseOut(position.ID, model.PositionLiquidated); err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}

	rec.Payout = decimal.Zero
	rec.PayoutAsset = position.CollateralAsset
	e.transition(rec, model.StateLiquidated)
	return *rec, nil
}

// payOut settles a healthy position: the option value is paid from the
// pool up to its reserve, any shortfall is covered by the released
// collateral, and leftover collateral returns to the account.
func (e *Engine) payOut(rec *model.Settlement, position model.Position) (model.Settlement, error) {
	asset := position.CollateralAsset

	p, err := e.funding.FundingPool(asset)
	if err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}

	// Compute every leg before touching any state: the pool covers the
	// option value up to its reserve, the shortfall is covered by the
	// released collateral, and the rest of the collateral returns to the
	// account either way.
	released := position.CollateralAmount
	fromPool := decimal.Min(rec.OptionValue, poolReserve(p, asset))
	shortfall := rec.OptionValue.Sub(fromPool)
	covered := decimal.Min(shortfall, released)
	total := fromPool.Add(released)

	// Verify custody capacity up front so a lagging custody mirror aborts
	// the settlement back to Open with nothing moved.
	if e.cust.Holdings(asset).LessThan(total) {
		e.transition(rec, model.StateOpen)
		return *rec, custody.ErrInsufficientBalance
	}

	if fromPool.IsPositive() {
		if err := p.PayOut(asset, fromPool); err != nil {
			e.transition(rec, model.StateOpen)
			return *rec, err
		}
	}
	if total.IsPositive() {
		if err := e.cust.TransferOut(asset, total, position.Account); err != nil {
			e.transition(rec, model.StateOpen)
			return *rec, err
		}
	}

	// Closing the position is the last irreversible step.
	if _, err := e.positions.CloseOut(position.ID, model.PositionClosed); err != nil {
		e.transition(rec, model.StateOpen)
		return *rec, err
	}

	payout := fromPool.Add(covered)
	if payout.IsPositive() {
		hedged := payout.Mul(e.hedgedShare)
		if hedged.IsPositive() {
			if err := e.book.Credit(tranche.Hedged, hedged); err != nil {
				return *rec, err
			}
		}
		unhedged := payout.Sub(hedged)
		if unhedged.IsPositive() {
			if err := e.book.Credit(tranche.Unhedged, unhedged); err != nil {
				return *rec, err
			}
		}
	}

	rec.Payout = payout
	rec.PayoutAsset = asset
	e.transition(rec, model.StateSettled)
	return *rec, nil
}

func (e *Engine) pricePair(position model.Position) (collateral.PricePair, error) {
	collateralPrice, err := e.prices.Price(position.CollateralAsset)
	if err != nil {
		return collateral.PricePair{}, err
	}
	underlyingPrice, err := e.prices.Price(position.UnderlyingAsset)
	if err != nil {
		return collateral.PricePair{}, err
	}
	return collateral.PricePair{Collateral: collateralPrice, Underlying: underlyingPrice}, nil
}

func poolReserve(p *pool.Pool, asset model.Asset) decimal.Decimal {
	reserveA, reserveB := p.Reserves()
	assetA, _ := p.Assets()
	if asset == assetA {
		return reserveA
	}
	return reserveB
}

func (e *Engine) transition(rec *model.Settlement, next model.SettlementState) {
	rec.State = next
	rec.UpdatedAt = e.now()
}
