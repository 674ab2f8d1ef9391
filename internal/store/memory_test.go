package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPool() *model.Pool {
	return &model.Pool{
		ID:             "pool-1",
		AssetA:         "USD",
		AssetB:         "XRD",
		ReserveA:       d("1000"),
		ReserveB:       d("4000"),
		TrackingAsset:  "USD-XRD-LP",
		TrackingSupply: d("100"),
		FeePercent:     d("1"),
		Status:         model.PoolOpen,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestMemoryPoolLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.CreatePool(ctx, testPool()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreatePool(ctx, testPool()); err == nil {
		t.Fatal("duplicate pair accepted")
	}

	p, err := s.GetPoolByPair(ctx, "USD/XRD")
	if err != nil {
		t.Fatalf("get by pair: %v", err)
	}
	if p.ID != "pool-1" {
		t.Fatalf("ID = %s, want pool-1", p.ID)
	}

	if err := s.UpdatePoolState(ctx, "pool-1", d("2000"), d("2000"), d("100"), model.PoolOpen); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err = s.GetPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.ReserveA.Equal(d("2000")) {
		t.Fatalf("reserve A = %s, want 2000", p.ReserveA)
	}

	if _, err := s.GetPool(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing pool err = %v, want ErrNotFound", err)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreatePool(ctx, testPool()); err != nil {
		t.Fatalf("create: %v", err)
	}

	p, _ := s.GetPool(ctx, "pool-1")
	p.ReserveA = d("0")

	again, _ := s.GetPool(ctx, "pool-1")
	if !again.ReserveA.Equal(d("1000")) {
		t.Fatalf("external mutation leaked into store: %s", again.ReserveA)
	}
}

func TestMemorySettlementUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &model.Settlement{
		ID:         "set-1",
		PositionID: "pos-1",
		State:      model.StateOpen,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.UpsertSettlement(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec.State = model.StateSettled
	rec.Payout = d("5")
	if err := s.UpsertSettlement(ctx, rec); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSettlementByPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != model.StateSettled || !got.Payout.Equal(d("5")) {
		t.Fatalf("record = %s/%s, want settled/5", got.State, got.Payout)
	}

	if _, err := s.GetSettlementByPosition(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing settlement err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListPositions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, p := range []*model.Position{
		{ID: "pos-1", Account: "alice", CollateralAsset: "USD", CollateralAmount: d("300"),
			UnderlyingAsset: "XRD", NotionalExposure: d("100"), Status: model.PositionOpen, CreatedAt: time.Now().UTC()},
		{ID: "pos-2", Account: "bob", CollateralAsset: "USD", CollateralAmount: d("150"),
			UnderlyingAsset: "XRD", NotionalExposure: d("50"), Status: model.PositionClosed, CreatedAt: time.Now().UTC()},
	} {
		if err := s.CreatePosition(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}

	positions, err := s.ListPositions(ctx)
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("listed %d positions, want 2", len(positions))
	}
	byID := make(map[string]model.Position, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}
	if byID["pos-1"].Status != model.PositionOpen || !byID["pos-1"].CollateralAmount.Equal(d("300")) {
		t.Fatalf("pos-1 = %+v", byID["pos-1"])
	}
	if byID["pos-2"].Status != model.PositionClosed {
		t.Fatalf("pos-2 status = %s, want closed", byID["pos-2"].Status)
	}
}
