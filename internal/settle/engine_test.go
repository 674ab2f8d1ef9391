package settle

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/binomial"
	"github.com/elision-io/elision-core/internal/collateral"
	"github.com/elision-io/elision-core/internal/custody"
	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/oracle"
	"github.com/elision-io/elision-core/internal/pool"
	"github.com/elision-io/elision-core/internal/tranche"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// singlePool is a Funding over one pool, for tests.
type singlePool struct{ p *pool.Pool }

func (s singlePool) FundingPool(asset model.Asset) (*pool.Pool, error) {
	if !s.p.Contains(asset) {
		return nil, pool.ErrWrongAsset
	}
	return s.p, nil
}

func mustPricer(t *testing.T) *binomial.Pricer {
	t.Helper()
	p, err := binomial.NewPricer(decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("pricer: %v", err)
	}
	return p
}

type fixture struct {
	engine    *Engine
	positions *collateral.Manager
	prices    *oracle.Static
	pool      *pool.Pool
	book      *tranche.Book
	ledger    *custody.Ledger
}

// newFixture wires an engine over a 10000 USD / 10000 XRD pool with USD
// custody holdings mirroring the reserve plus posted collateral.
func newFixture(t *testing.T, hedgedShare string) *fixture {
	t.Helper()

	p, _, err := pool.New("pool-1", "USD", "XRD", d("10000"), d("10000"), d("1"))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	positions, err := collateral.NewManager(d("1.5"))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	prices := oracle.NewStatic(time.Hour)
	book := tranche.NewBook()
	ledger := custody.NewLedger()

	engine, err := NewEngine(
		mustPricer(t), positions, prices, singlePool{p}, book, ledger, d(hedgedShare))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &fixture{engine: engine, positions: positions, prices: prices, pool: p, book: book, ledger: ledger}
}

// seedCustody puts USD into pool custody so payouts can clear.
func (f *fixture) seedCustody(t *testing.T, amount string) {
	t.Helper()
	if err := f.ledger.Credit("treasury", "USD", d(amount)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	b, err := f.ledger.Withdraw("treasury", d(amount), "USD")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := f.ledger.TransferIn("treasury", b); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
}

func (f *fixture) setPrices(t *testing.T, usd, xrd string) {
	t.Helper()
	if err := f.prices.Set("USD", d(usd)); err != nil {
		t.Fatalf("set USD: %v", err)
	}
	if err := f.prices.Set("XRD", d(xrd)); err != nil {
		t.Fatalf("set XRD: %v", err)
	}
}

// openPosition opens a USD-collateralized position against XRD exposure.
func (f *fixture) openPosition(t *testing.T, collateralAmt, exposure string) string {
	t.Helper()
	id, err := f.positions.Open("alice", "USD", d(collateralAmt), "XRD", d(exposure),
		collateral.PricePair{Collateral: d("1"), Underlying: d("1")})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return id
}

// callContract prices a one-step call worth 5 at settlement (spot 100,
// strike 100, u 1.1, d 0.9, zero rate).
func callContract() model.OptionContract {
	return model.OptionContract{
		Kind:         model.Call,
		Underlying:   "XRD",
		Strike:       d("100"),
		Spot:         d("100"),
		Steps:        1,
		UpFactor:     d("1.1"),
		DownFactor:   d("0.9"),
		RiskFreeRate: decimal.Zero,
	}
}

func TestSettleHealthyPositionPaysOption(t *testing.T) {
	f := newFixture(t, "0.5")
	f.seedCustody(t, "11000")
	f.setPrices(t, "1", "1")

	id := f.openPosition(t, "300", "100") // ratio 3.0, well above MCR

	rec, err := f.engine.Settle(id, callContract())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if rec.State != model.StateSettled {
		t.Fatalf("state = %s, want settled", rec.State)
	}
	if !rec.OptionValue.Equal(d("5")) {
		t.Fatalf("option value = %s, want 5", rec.OptionValue)
	}
	if !rec.Payout.Equal(d("5")) || rec.PayoutAsset != "USD" {
		t.Fatalf("payout = %s %s, want 5 USD", rec.Payout, rec.PayoutAsset)
	}

	// Account receives the payout plus its collateral back.
	if !f.ledger.Balance("alice", "USD").Equal(d("305")) {
		t.Fatalf("alice balance = %s, want 305", f.ledger.Balance("alice", "USD"))
	}

	// Position is closed and the payout is drawn from the USD reserve.
	position, err := f.positions.Get(id)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if position.Status != model.PositionClosed {
		t.Fatalf("position status = %s, want closed", position.Status)
	}
	reserveA, _ := f.pool.Reserves()
	if !reserveA.Equal(d("9995")) {
		t.Fatalf("USD reserve = %s, want 9995", reserveA)
	}

	// Payout split evenly across the tranche book.
	hedged, _ := f.book.Balance(tranche.Hedged)
	unhedged, _ := f.book.Balance(tranche.Unhedged)
	if !hedged.Equal(d("2.5")) || !unhedged.Equal(d("2.5")) {
		t.Fatalf("tranches = %s / %s, want 2.5 / 2.5", hedged, unhedged)
	}
}

func TestSettleIsAtMostOnce(t *testing.T) {
	f := newFixture(t, "0.5")
	f.seedCustody(t, "11000")
	f.setPrices(t, "1", "1")
	id := f.openPosition(t, "300", "100")

	if _, err := f.engine.Settle(id, callContract()); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	balance := f.ledger.Balance("alice", "USD")

	rec, err := f.engine.Settle(id, callContract())
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second settle err = %v, want ErrAlreadySettled", err)
	}
	if rec.State != model.StateSettled {
		t.Fatalf("returned record state = %s, want settled", rec.State)
	}
	// Never double-pays.
	if !f.ledger.Balance("alice", "USD").Equal(balance) {
		t.Fatalf("balance moved on retry: %s → %s", balance, f.ledger.Balance("alice", "USD"))
	}
}

func TestSettleRoutesUndercollateralizedToLiquidation(t *testing.T) {
	f := newFixture(t, "0.5")
	f.seedCustody(t, "11000")

	// Healthy at open (1:1 prices, ratio 2.0)...
	f.setPrices(t, "1", "1")
	id := f.openPosition(t, "200", "100")

	// ...but the underlying doubles before settlement: ratio 1.0 < 1.5.
	f.setPrices(t, "1", "2")

	rec, err := f.engine.Settle(id, callContract())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if rec.State != model.StateLiquidated {
		t.Fatalf("state = %s, want liquidated", rec.State)
	}
	if !rec.Payout.IsZero() {
		t.Fatalf("liquidation payout = %s, want 0", rec.Payout)
	}

	position, err := f.positions.Get(id)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if position.Status != model.PositionLiquidated {
		t.Fatalf("position status = %s, want liquidated", position.Status)
	}

	// Collateral flows into the pool and accrues unhedged.
	reserveA, _ := f.pool.Reserves()
	if !reserveA.Equal(d("10200")) {
		t.Fatalf("USD reserve = %s, want 10200", reserveA)
	}
	unhedged, _ := f.book.Balance(tranche.Unhedged)
	if !unhedged.Equal(d("200")) {
		t.Fatalf("unhedged tranche = %s, want 200", unhedged)
	}

	// Terminal: retry is rejected.
	if _, err := f.engine.Settle(id, callContract()); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("retry err = %v, want ErrAlreadySettled", err)
	}
}

func TestDegenerateTreeAbortsToOpen(t *testing.T) {
	f := newFixture(t, "0.5")
	f.seedCustody(t, "11000")
	f.setPrices(t, "1", "1")
	id := f.openPosition(t, "300", "100")

	bad := callContract()
	bad.DownFactor = bad.UpFactor

	if _, err := f.engine.Settle(id, bad); !errors.Is(err, binomial.ErrDegenerateTree) {
		t.Fatalf("err = %v, want ErrDegenerateTree", err)
	}

	rec, err := f.engine.Get(id)
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if rec.State != model.StateOpen {
		t.Fatalf("state after abort = %s, want open", rec.State)
	}

	// No state residue: position untouched, retry with good parameters
	// succeeds.
	position, err := f.positions.Get(id)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if position.Status != model.PositionOpen {
		t.Fatalf("position status = %s, want open", position.Status)
	}
	rec, err = f.engine.Settle(id, callContract())
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if rec.State != model.StateSettled {
		t.Fatalf("retry state = %s, want settled", rec.State)
	}
}

func TestShortfallCoveredByCollateral(t *testing.T) {
	// A tiny pool whose USD reserve cannot fund the full option value.
	p, _, err := pool.New("pool-2", "USD", "XRD", d("2"), d("2"), d("1"))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	positions, err := collateral.NewManager(d("1.5"))
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	prices := oracle.NewStatic(time.Hour)
	book := tranche.NewBook()
	ledger := custody.NewLedger()
	engine, err := NewEngine(mustPricer(t), positions, prices, singlePool{p}, book, ledger, d("0"))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	if err := ledger.Credit("treasury", "USD", d("500")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	b, err := ledger.Withdraw("treasury", d("500"), "USD")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if err := ledger.TransferIn("treasury", b); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if err := prices.Set("USD", d("1")); err != nil {
		t.Fatalf("set USD: %v", err)
	}
	if err := prices.Set("XRD", d("1")); err != nil {
		t.Fatalf("set XRD: %v", err)
	}

	id, err := positions.Open("alice", "USD", d("300"), "XRD", d("100"),
		collateral.PricePair{Collateral: d("1"), Underlying: d("1")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rec, err := engine.Settle(id, callContract())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	// Pool funds 2 of the 5; collateral covers the remaining 3.
	if !rec.Payout.Equal(d("5")) {
		t.Fatalf("payout = %s, want 5", rec.Payout)
	}
	reserveA, _ := p.Reserves()
	if !reserveA.IsZero() {
		t.Fatalf("USD reserve = %s, want 0", reserveA)
	}
	// Account still receives pool share plus full collateral.
	if !ledger.Balance("alice", "USD").Equal(d("302")) {
		t.Fatalf("alice balance = %s, want 302", ledger.Balance("alice", "USD"))
	}
}

func TestLaggingCustodyAbortsWithoutResidue(t *testing.T) {
	f := newFixture(t, "0.5")
	// Custody deliberately not seeded: holdings lag the pool reserves,
	// the state a restart leaves behind before the ledger catches up.
	f.setPrices(t, "1", "1")
	id := f.openPosition(t, "300", "100")

	if _, err := f.engine.Settle(id, callContract()); !errors.Is(err, custody.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	rec, err := f.engine.Get(id)
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if rec.State != model.StateOpen {
		t.Fatalf("state after abort = %s, want open", rec.State)
	}

	// No residue: the position keeps its collateral, the pool its reserve,
	// and nothing reached the account or the tranche book.
	position, err := f.positions.Get(id)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if position.Status != model.PositionOpen {
		t.Fatalf("position status = %s, want open", position.Status)
	}
	if !position.CollateralAmount.Equal(d("300")) {
		t.Fatalf("collateral = %s, want 300", position.CollateralAmount)
	}
	reserveA, _ := f.pool.Reserves()
	if !reserveA.Equal(d("10000")) {
		t.Fatalf("USD reserve = %s, want 10000", reserveA)
	}
	if !f.ledger.Balance("alice", "USD").IsZero() {
		t.Fatalf("alice balance = %s, want 0", f.ledger.Balance("alice", "USD"))
	}

	// Once custody catches up the retry settles cleanly.
	f.seedCustody(t, "11000")
	rec, err = f.engine.Settle(id, callContract())
	if err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if rec.State != model.StateSettled {
		t.Fatalf("retry state = %s, want settled", rec.State)
	}
	if !f.ledger.Balance("alice", "USD").Equal(d("305")) {
		t.Fatalf("alice balance = %s, want 305", f.ledger.Balance("alice", "USD"))
	}
}

func TestSettleUnknownPositionLeavesNoRecord(t *testing.T) {
	f := newFixture(t, "0.5")
	f.setPrices(t, "1", "1")

	if _, err := f.engine.Settle("missing", callContract()); !errors.Is(err, collateral.ErrPositionNotFound) {
		t.Fatalf("err = %v, want ErrPositionNotFound", err)
	}
	if _, err := f.engine.Get("missing"); !errors.Is(err, ErrSettlementNotFound) {
		t.Fatalf("get err = %v, want ErrSettlementNotFound", err)
	}
	if n := len(f.engine.Records()); n != 0 {
		t.Fatalf("records = %d, want 0", n)
	}
}
