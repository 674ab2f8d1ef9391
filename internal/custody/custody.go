// Package custody mirrors ledger-level asset custody as pure accounting.
// The core never holds raw custody — it tracks account balances, pool
// holdings, and outstanding tracking-token supply so its view stays in
// lockstep with the host ledger's.
//
// Amounts move between accounts and custody inside Buckets, the analog of
// the ledger's withdraw/take/deposit primitives. All monetary values use
// shopspring/decimal — never float64 for money.
package custody

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/fixedpoint"
	"github.com/elision-io/elision-core/internal/model"
)

var (
	// ErrInsufficientBalance is returned when a withdrawal or transfer
	// exceeds the available balance.
	ErrInsufficientBalance = errors.New("custody: insufficient balance")

	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("custody: amount must be positive")

	// ErrAssetMismatch is returned when a bucket's asset does not match the
	// expected asset for the operation.
	ErrAssetMismatch = errors.New("custody: bucket asset does not match")
)

// Bucket is a transient amount of one asset in flight between an account
// and custody. A bucket is created by a withdrawal or mint and consumed by
// exactly one deposit, transfer, or burn.
type Bucket struct {
	Asset  model.Asset
	Amount decimal.Decimal
}

// NewBucket creates a bucket holding a positive amount of an asset.
func NewBucket(asset model.Asset, amount decimal.Decimal) (Bucket, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Bucket{}, ErrInvalidAmount
	}
	return Bucket{Asset: asset, Amount: fixedpoint.Round(amount)}, nil
}

// Custodian is the abstract asset-custody collaborator: tracking-token
// issuance and transfers between accounts and pool custody.
type Custodian interface {
	// MintTrackingToken issues new tracking tokens, returning them in a
	// bucket for deposit to the provider's account.
	MintTrackingToken(asset model.Asset, amount decimal.Decimal) (Bucket, error)

	// BurnTrackingToken destroys the tracking tokens in the bucket.
	BurnTrackingToken(b Bucket) error

	// TransferIn moves a bucket from an account into pool custody.
	TransferIn(account string, b Bucket) error

	// TransferOut moves an amount out of pool custody to a recipient
	// account.
	TransferOut(asset model.Asset, amount decimal.Decimal, recipient string) error

	// Holdings reports the amount of the asset currently in pool custody,
	// so callers can verify capacity before committing irreversible state.
	Holdings(asset model.Asset) decimal.Decimal
}

// Ledger is the in-memory accounting mirror used both in production (as
// the book of record for the single-instance deployment) and in tests.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[model.Asset]decimal.Decimal
	holdings map[model.Asset]decimal.Decimal // pool custody per asset
	minted   map[model.Asset]decimal.Decimal // outstanding tracking supply
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]map[model.Asset]decimal.Decimal),
		holdings: make(map[model.Asset]decimal.Decimal),
		minted:   make(map[model.Asset]decimal.Decimal),
	}
}

// Credit adds funds to an account (external deposit onto the ledger).
func (l *Ledger) Credit(account string, asset model.Asset, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, asset, amount)
	return nil
}

// Withdraw takes an amount of an asset out of an account into a bucket.
// This is the entry point of the withdraw → remove-liquidity →
// deposit-batch invocation sequence.
func (l *Ledger) Withdraw(account string, amount decimal.Decimal, asset model.Asset) (Bucket, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Bucket{}, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[account][asset]
	if bal.LessThan(amount) {
		return Bucket{}, ErrInsufficientBalance
	}
	l.balances[account][asset] = bal.Sub(amount)
	return Bucket{Asset: asset, Amount: amount}, nil
}

// DepositBatch credits every bucket to the account. Empty buckets are
// skipped so callers can deposit settlement results unconditionally.
func (l *Ledger) DepositBatch(account string, buckets []Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range buckets {
		if b.Amount.LessThanOrEqual(decimal.Zero) {
			continue
		}
		l.credit(account, b.Asset, b.Amount)
	}
}

// Balance returns the account's balance of the asset.
func (l *Ledger) Balance(account string, asset model.Asset) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account][asset]
}

// Holdings returns the amount of the asset held in pool custody.
func (l *Ledger) Holdings(asset model.Asset) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[asset]
}

// Outstanding returns the outstanding tracking-token supply for the asset.
func (l *Ledger) Outstanding(asset model.Asset) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minted[asset]
}

// RestoreHoldings seeds pool-custody holdings during state reload. The
// ledger itself is not persisted; at startup holdings are reconstructed
// from the restored pool reserves and open-position collateral so
// settlement transfers can clear.
func (l *Ledger) RestoreHoldings(asset model.Asset, amount decimal.Decimal) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[asset] = l.holdings[asset].Add(amount)
}

// RestoreMinted seeds outstanding tracking-token supply during state
// reload, from the restored pools' tracking supplies.
func (l *Ledger) RestoreMinted(asset model.Asset, amount decimal.Decimal) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minted[asset] = l.minted[asset].Add(amount)
}

// MintTrackingToken implements Custodian.
func (l *Ledger) MintTrackingToken(asset model.Asset, amount decimal.Decimal) (Bucket, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return Bucket{}, ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minted[asset] = l.minted[asset].Add(amount)
	return Bucket{Asset: asset, Amount: amount}, nil
}

// BurnTrackingToken implements Custodian.
func (l *Ledger) BurnTrackingToken(b Bucket) error {
	if b.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	outstanding := l.minted[b.Asset]
	if outstanding.LessThan(b.Amount) {
		return ErrInsufficientBalance
	}
	l.minted[b.Asset] = outstanding.Sub(b.Amount)
	return nil
}

// TransferIn implements Custodian: the bucket's contents enter pool
// custody. The account parameter records provenance only; the bucket was
// already debited from the account by Withdraw.
func (l *Ledger) TransferIn(_ string, b Bucket) error {
	if b.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdings[b.Asset] = l.holdings[b.Asset].Add(b.Amount)
	return nil
}

// TransferOut implements Custodian: moves funds from pool custody to a
// recipient account.
func (l *Ledger) TransferOut(asset model.Asset, amount decimal.Decimal, recipient string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	held := l.holdings[asset]
	if held.LessThan(amount) {
		return ErrInsufficientBalance
	}
	l.holdings[asset] = held.Sub(amount)
	l.credit(recipient, asset, amount)
	return nil
}

// credit assumes l.mu is held.
func (l *Ledger) credit(account string, asset model.Asset, amount decimal.Decimal) {
	if l.balances[account] == nil {
		l.balances[account] = make(map[model.Asset]decimal.Decimal)
	}
	l.balances[account][asset] = l.balances[account][asset].Add(amount)
}
