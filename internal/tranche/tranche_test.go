package tranche

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreditDebitPerSide(t *testing.T) {
	b := NewBook()
	if err := b.Credit(Hedged, d("10")); err != nil {
		t.Fatalf("credit hedged: %v", err)
	}
	if err := b.Credit(Unhedged, d("4")); err != nil {
		t.Fatalf("credit unhedged: %v", err)
	}

	if err := b.Debit(Hedged, d("3")); err != nil {
		t.Fatalf("debit hedged: %v", err)
	}

	h, err := b.Balance(Hedged)
	if err != nil {
		t.Fatalf("balance hedged: %v", err)
	}
	if !h.Equal(d("7")) {
		t.Fatalf("hedged = %s, want 7", h)
	}
	u, err := b.Balance(Unhedged)
	if err != nil {
		t.Fatalf("balance unhedged: %v", err)
	}
	if !u.Equal(d("4")) {
		t.Fatalf("unhedged = %s, want 4", u)
	}
	if !b.Total().Equal(d("11")) {
		t.Fatalf("total = %s, want 11", b.Total())
	}
}

func TestDebitSidesAreIndependent(t *testing.T) {
	b := NewBook()
	if err := b.Credit(Unhedged, d("100")); err != nil {
		t.Fatalf("credit: %v", err)
	}
	// The hedged side cannot borrow from the unhedged side.
	if err := b.Debit(Hedged, d("1")); !errors.Is(err, ErrInsufficientTranche) {
		t.Fatalf("cross-side debit err = %v, want ErrInsufficientTranche", err)
	}
}

func TestInvalidInputs(t *testing.T) {
	b := NewBook()
	if err := b.Credit(Side("both"), d("1")); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("bad side err = %v, want ErrInvalidSide", err)
	}
	if err := b.Credit(Hedged, decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v, want ErrInvalidAmount", err)
	}
	if _, err := b.Balance(Side("x")); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("balance bad side err = %v, want ErrInvalidSide", err)
	}
}
