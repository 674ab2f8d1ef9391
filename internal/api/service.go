// Package api provides the HTTP handlers and orchestration for pool
// liquidity, collateralized positions, option pricing, and settlement.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/binomial"
	"github.com/elision-io/elision-core/internal/collateral"
	"github.com/elision-io/elision-core/internal/custody"
	"github.com/elision-io/elision-core/internal/derivative"
	"github.com/elision-io/elision-core/internal/exposure"
	"github.com/elision-io/elision-core/internal/metrics"
	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/oracle"
	"github.com/elision-io/elision-core/internal/pool"
	"github.com/elision-io/elision-core/internal/registry"
	"github.com/elision-io/elision-core/internal/settle"
	"github.com/elision-io/elision-core/internal/store"
)

// Service handles protocol operations. Uses a mutex for serialized
// mutation of pools and positions (single-instance). For horizontal
// scaling, replace with distributed locking or database-level optimistic
// concurrency.
type Service struct {
	store     store.Store
	ledger    *custody.Ledger
	registry  *registry.Registry
	positions *collateral.Manager
	prices    *oracle.Static
	pricer    *binomial.Pricer
	engine    *settle.Engine
	limiter   *exposure.Limiter
	mu        sync.Mutex
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new protocol service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, ledger *custody.Ledger, reg *registry.Registry,
	positions *collateral.Manager, prices *oracle.Static, pricer *binomial.Pricer,
	engine *settle.Engine, limiter *exposure.Limiter, hub *WSHub) *Service {
	return &Service{
		store:     st,
		ledger:    ledger,
		registry:  reg,
		positions: positions,
		prices:    prices,
		pricer:    pricer,
		engine:    engine,
		limiter:   limiter,
		wsHub:     hub,
	}
}

// --- Request/Response types ---

// DepositRequest is the JSON body for account funding.
type DepositRequest struct {
	Asset  model.Asset     `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// CreatePoolRequest is the JSON body for pool creation.
type CreatePoolRequest struct {
	Account    string          `json:"account"`
	AssetA     model.Asset     `json:"asset_a"`
	AmountA    decimal.Decimal `json:"amount_a"`
	AssetB     model.Asset     `json:"asset_b"`
	AmountB    decimal.Decimal `json:"amount_b"`
	FeePercent decimal.Decimal `json:"fee_percent"`
}

// LiquidityRequest is the JSON body for adding liquidity.
type LiquidityRequest struct {
	Account string          `json:"account"`
	AmountA decimal.Decimal `json:"amount_a"`
	AmountB decimal.Decimal `json:"amount_b"`
}

// RedeemRequest is the JSON body for removing liquidity.
type RedeemRequest struct {
	Account string          `json:"account"`
	Tokens  decimal.Decimal `json:"tokens"`
}

// SwapRequest is the JSON body for executing a swap.
type SwapRequest struct {
	Account    string          `json:"account"`
	InputAsset model.Asset     `json:"input_asset"`
	Amount     decimal.Decimal `json:"amount"`
}

// OpenPositionRequest is the JSON body for opening a position.
type OpenPositionRequest struct {
	Account          string          `json:"account"`
	CollateralAsset  model.Asset     `json:"collateral_asset"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	UnderlyingAsset  model.Asset     `json:"underlying_asset"`
	Exposure         decimal.Decimal `json:"exposure"`
}

// AdjustCollateralRequest is the JSON body for collateral adjustment.
// Positive delta adds collateral, negative removes it.
type AdjustCollateralRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// PriceOptionRequest is the JSON body for the standalone pricer endpoint.
type PriceOptionRequest struct {
	Kind         model.OptionKind `json:"kind"`
	Underlying   model.Asset      `json:"underlying"`
	Strike       decimal.Decimal  `json:"strike"`
	Spot         decimal.Decimal  `json:"spot"`
	Steps        int              `json:"steps"`
	UpFactor     decimal.Decimal  `json:"up_factor"`
	DownFactor   decimal.Decimal  `json:"down_factor"`
	RiskFreeRate decimal.Decimal  `json:"risk_free_rate"`
}

// SettleRequest is the JSON body for settling a position: the option
// contract to value the position against.
type SettleRequest = PriceOptionRequest

// SetPriceRequest is the JSON body for posting an oracle quote.
type SetPriceRequest struct {
	Asset model.Asset     `json:"asset"`
	Price decimal.Decimal `json:"price"`
}

func (r PriceOptionRequest) contract() model.OptionContract {
	return model.OptionContract{
		Kind:         r.Kind,
		Underlying:   r.Underlying,
		Strike:       r.Strike,
		Spot:         r.Spot,
		Steps:        r.Steps,
		UpFactor:     r.UpFactor,
		DownFactor:   r.DownFactor,
		RiskFreeRate: r.RiskFreeRate,
	}
}

// --- Account handlers ---

// Deposit handles POST /api/v1/accounts/{account}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Credit(account, req.Asset, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"asset":   string(req.Asset),
		"balance": s.ledger.Balance(account, req.Asset).String(),
	})
}

// GetBalance handles GET /api/v1/accounts/{account}/balance?asset=XRD
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	asset := model.Asset(r.URL.Query().Get("asset"))
	if asset == "" {
		writeError(w, "asset query parameter is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account,
		"asset":   string(asset),
		"balance": s.ledger.Balance(account, asset).String(),
	})
}

// --- Pool handlers ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucketA, err := s.ledger.Withdraw(req.Account, req.AmountA, req.AssetA)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	bucketB, err := s.ledger.Withdraw(req.Account, req.AmountB, req.AssetB)
	if err != nil {
		// Return the first bucket before rejecting.
		s.ledger.DepositBatch(req.Account, []custody.Bucket{bucketA})
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	snap, tokens, err := s.registry.CreatePool(req.Account, bucketA, bucketB, req.FeePercent)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{bucketA, bucketB})
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.ledger.DepositBatch(req.Account, []custody.Bucket{tokens})

	ctx := r.Context()
	if err := s.store.CreatePool(ctx, &snap); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	pair := registry.PairSymbol(snap.AssetA, snap.AssetB)
	metrics.PoolReserve.WithLabelValues(pair, string(snap.AssetA)).Set(reserveGauge(snap.ReserveA))
	metrics.PoolReserve.WithLabelValues(pair, string(snap.AssetB)).Set(reserveGauge(snap.ReserveB))
	metrics.TrackingSupply.WithLabelValues(pair).Set(reserveGauge(snap.TrackingSupply))

	slog.Info("pool created",
		"id", snap.ID,
		"pair", pair,
		"reserve_a", snap.ReserveA.String(),
		"reserve_b", snap.ReserveB.String(),
		"fee_percent", snap.FeePercent.String(),
	)

	s.broadcastLiquidity(snap)
	writeJSON(w, http.StatusCreated, snap)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.registry.Snapshots()
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetPool handles GET /api/v1/pools/{base}/{quote}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupPool(r)
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}

// AddLiquidity handles POST /api/v1/pools/{base}/{quote}/liquidity
func (s *Service) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupPool(r)
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assetA, assetB := p.Assets()
	bucketA, err := s.ledger.Withdraw(req.Account, req.AmountA, assetA)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	bucketB, err := s.ledger.Withdraw(req.Account, req.AmountB, assetB)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{bucketA})
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	tokens, err := s.registry.AddLiquidity(req.Account, bucketA, bucketB)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{bucketA, bucketB})
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.ledger.DepositBatch(req.Account, []custody.Bucket{tokens})

	if err := s.persistPool(r, p); err != nil {
		writeError(w, "failed to persist pool state", http.StatusInternalServerError)
		return
	}

	snap := p.Snapshot()
	slog.Info("liquidity added",
		"pair", registry.PairSymbol(assetA, assetB),
		"account", req.Account,
		"minted", tokens.Amount.String(),
	)
	s.broadcastLiquidity(snap)
	writeJSON(w, http.StatusOK, map[string]string{
		"tracking_asset": string(tokens.Asset),
		"minted":         tokens.Amount.String(),
		"supply":         snap.TrackingSupply.String(),
	})
}

// RemoveLiquidity handles POST /api/v1/pools/{base}/{quote}/redeem
func (s *Service) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupPool(r)
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.ledger.Withdraw(req.Account, req.Tokens, p.TrackingAsset())
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	outA, outB, err := s.registry.RemoveLiquidity(req.Account, tokens)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{tokens})
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if err := s.persistPool(r, p); err != nil {
		writeError(w, "failed to persist pool state", http.StatusInternalServerError)
		return
	}

	snap := p.Snapshot()
	slog.Info("liquidity removed",
		"pair", registry.PairSymbol(snap.AssetA, snap.AssetB),
		"account", req.Account,
		"burned", req.Tokens.String(),
	)
	s.broadcastLiquidity(snap)
	writeJSON(w, http.StatusOK, map[string]string{
		"amount_a": outA.Amount.String(),
		"asset_a":  string(outA.Asset),
		"amount_b": outB.Amount.String(),
		"asset_b":  string(outB.Asset),
	})
}

// GetSwapQuote handles GET /api/v1/pools/{base}/{quote}/quote?input=USD&amount=10
func (s *Service) GetSwapQuote(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupPool(r)
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	input := model.Asset(r.URL.Query().Get("input"))
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, "invalid amount", http.StatusBadRequest)
		return
	}

	out, err := p.SwapQuote(input, amount)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	outAsset, _ := p.Other(input)
	writeJSON(w, http.StatusOK, map[string]string{
		"input_asset":   string(input),
		"input_amount":  amount.String(),
		"output_asset":  string(outAsset),
		"output_amount": out.String(),
	})
}

// ExecuteSwap handles POST /api/v1/pools/{base}/{quote}/swap
func (s *Service) ExecuteSwap(w http.ResponseWriter, r *http.Request) {
	p, err := s.lookupPool(r)
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}
	var req SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.ledger.Withdraw(req.Account, req.Amount, req.InputAsset)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	counter, err := p.Other(req.InputAsset)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{in})
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := s.registry.Swap(req.Account, in, counter)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{in})
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if err := s.persistPool(r, p); err != nil {
		writeError(w, "failed to persist pool state", http.StatusInternalServerError)
		return
	}

	snap := p.Snapshot()
	pair := registry.PairSymbol(snap.AssetA, snap.AssetB)
	metrics.SwapVolume.WithLabelValues(pair, string(req.InputAsset)).Add(reserveGauge(req.Amount))

	slog.Info("swap executed",
		"pair", pair,
		"account", req.Account,
		"in", req.Amount.String()+" "+string(req.InputAsset),
		"out", out.Amount.String()+" "+string(out.Asset),
	)
	s.broadcastLiquidity(snap)
	writeJSON(w, http.StatusOK, map[string]string{
		"output_asset":  string(out.Asset),
		"output_amount": out.Amount.String(),
	})
}

// GetContract handles GET /api/v1/contracts/{ticker}
func (s *Service) GetContract(w http.ResponseWriter, r *http.Request) {
	tk, err := derivative.ParseTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, tk)
}

// --- Position handlers ---

// OpenPosition handles POST /api/v1/positions
func (s *Service) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req OpenPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prices, err := s.pricePair(req.CollateralAsset, req.UnderlyingAsset)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Check(req.UnderlyingAsset, req.Exposure, s.openExposures(req.Account)); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}

	b, err := s.ledger.Withdraw(req.Account, req.CollateralAmount, req.CollateralAsset)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	id, err := s.positions.Open(req.Account, req.CollateralAsset, req.CollateralAmount,
		req.UnderlyingAsset, req.Exposure, prices)
	if err != nil {
		s.ledger.DepositBatch(req.Account, []custody.Bucket{b})
		if errors.Is(err, collateral.ErrBelowMinimumCollateral) {
			metrics.CollateralRejections.Inc()
		}
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if err := s.ledger.TransferIn(req.Account, b); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	position, err := s.positions.Get(id)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.CreatePosition(r.Context(), &position); err != nil {
		writeError(w, "failed to persist position", http.StatusInternalServerError)
		return
	}

	metrics.OpenPositions.Inc()
	slog.Info("position opened",
		"id", id,
		"account", req.Account,
		"collateral", req.CollateralAmount.String()+" "+string(req.CollateralAsset),
		"exposure", req.Exposure.String()+" "+string(req.UnderlyingAsset),
	)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "position_opened", PositionID: id})
	}
	writeJSON(w, http.StatusCreated, position)
}

// GetPosition handles GET /api/v1/positions/{positionID}
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	position, err := s.positions.Get(id)
	if err != nil {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, position)
}

// GetRatio handles GET /api/v1/positions/{positionID}/ratio
func (s *Service) GetRatio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	position, err := s.positions.Get(id)
	if err != nil {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	prices, err := s.pricePair(position.CollateralAsset, position.UnderlyingAsset)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	ratio, err := s.positions.Ratio(id, prices)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	liquidatable, err := s.positions.IsLiquidatable(id, prices)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position_id":  id,
		"ratio":        ratio.String(),
		"mcr":          s.positions.MCR().String(),
		"liquidatable": liquidatable,
	})
}

// AdjustCollateral handles POST /api/v1/positions/{positionID}/collateral
func (s *Service) AdjustCollateral(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	var req AdjustCollateralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	position, err := s.positions.Get(id)
	if err != nil {
		writeError(w, "position not found", http.StatusNotFound)
		return
	}
	prices, err := s.pricePair(position.CollateralAsset, position.UnderlyingAsset)
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// Additional collateral is withdrawn from the account before the
	// adjustment; released collateral is paid out after it.
	var b custody.Bucket
	if req.Delta.IsPositive() {
		b, err = s.ledger.Withdraw(position.Account, req.Delta, position.CollateralAsset)
		if err != nil {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	newAmount, err := s.positions.AdjustCollateral(id, req.Delta, prices)
	if err != nil {
		if req.Delta.IsPositive() {
			s.ledger.DepositBatch(position.Account, []custody.Bucket{b})
		}
		if errors.Is(err, collateral.ErrBelowMinimumCollateral) {
			metrics.CollateralRejections.Inc()
		}
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if req.Delta.IsPositive() {
		if err := s.ledger.TransferIn(position.Account, b); err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else if req.Delta.IsNegative() {
		if err := s.ledger.TransferOut(position.CollateralAsset, req.Delta.Neg(), position.Account); err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := s.store.UpdatePositionState(r.Context(), id, newAmount, model.PositionOpen); err != nil {
		writeError(w, "failed to persist position", http.StatusInternalServerError)
		return
	}

	slog.Info("collateral adjusted", "id", id, "delta", req.Delta.String(), "collateral", newAmount.String())
	writeJSON(w, http.StatusOK, map[string]string{
		"position_id": id,
		"collateral":  newAmount.String(),
	})
}

// --- Pricing and settlement handlers ---

// PriceOption handles POST /api/v1/price
func (s *Service) PriceOption(w http.ResponseWriter, r *http.Request) {
	var req PriceOptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	value, err := s.pricer.Price(req.contract())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value.String()})
}

// SettlePosition handles POST /api/v1/positions/{positionID}/settle
func (s *Service) SettlePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	rec, err := s.engine.Settle(id, req.contract())
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	metrics.SettlementsTotal.WithLabelValues(string(rec.State)).Inc()
	if rec.State == model.StateLiquidated {
		metrics.Liquidations.Inc()
	}
	metrics.OpenPositions.Dec()

	if err := s.store.UpsertSettlement(r.Context(), &rec); err != nil {
		writeError(w, "failed to persist settlement", http.StatusInternalServerError)
		return
	}
	position, err := s.positions.Get(id)
	if err == nil {
		if err := s.store.UpdatePositionState(r.Context(), id, position.CollateralAmount, position.Status); err != nil {
			writeError(w, "failed to persist position", http.StatusInternalServerError)
			return
		}
	}

	slog.Info("settlement executed",
		"position", id,
		"state", string(rec.State),
		"option_value", rec.OptionValue.String(),
		"payout", rec.Payout.String(),
	)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "settlement_executed",
			PositionID: id,
			State:      string(rec.State),
			Payout:     rec.Payout.String(),
		})
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetSettlement handles GET /api/v1/positions/{positionID}/settlement
func (s *Service) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "positionID")
	rec, err := s.engine.Get(id)
	if err != nil {
		writeError(w, "settlement not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SetOraclePrice handles POST /api/v1/oracle/prices
func (s *Service) SetOraclePrice(w http.ResponseWriter, r *http.Request) {
	var req SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.prices.Set(req.Asset, req.Price); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset": string(req.Asset),
		"price": req.Price.String(),
	})
}

// --- Helpers ---

func (s *Service) lookupPool(r *http.Request) (*pool.Pool, error) {
	base := model.Asset(chi.URLParam(r, "base"))
	quote := model.Asset(chi.URLParam(r, "quote"))
	return s.registry.Lookup(base, quote)
}

func (s *Service) pricePair(collateralAsset, underlyingAsset model.Asset) (collateral.PricePair, error) {
	collateralPrice, err := s.prices.Price(collateralAsset)
	if err != nil {
		return collateral.PricePair{}, err
	}
	underlyingPrice, err := s.prices.Price(underlyingAsset)
	if err != nil {
		return collateral.PricePair{}, err
	}
	return collateral.PricePair{Collateral: collateralPrice, Underlying: underlyingPrice}, nil
}

// openExposures aggregates the account's open notional exposure per
// underlying asset, for exposure-limit checks.
func (s *Service) openExposures(account string) map[model.Asset]decimal.Decimal {
	existing := make(map[model.Asset]decimal.Decimal)
	for _, p := range s.positions.Positions() {
		if p.Account != account || p.Status != model.PositionOpen {
			continue
		}
		existing[p.UnderlyingAsset] = existing[p.UnderlyingAsset].Add(p.NotionalExposure)
	}
	return existing
}

// persistPool writes the pool's current snapshot through the store and
// refreshes the reserve gauges.
func (s *Service) persistPool(r *http.Request, p *pool.Pool) error {
	snap := p.Snapshot()
	if err := s.store.UpdatePoolState(r.Context(), snap.ID,
		snap.ReserveA, snap.ReserveB, snap.TrackingSupply, snap.Status); err != nil {
		return err
	}
	pair := registry.PairSymbol(snap.AssetA, snap.AssetB)
	metrics.PoolReserve.WithLabelValues(pair, string(snap.AssetA)).Set(reserveGauge(snap.ReserveA))
	metrics.PoolReserve.WithLabelValues(pair, string(snap.AssetB)).Set(reserveGauge(snap.ReserveB))
	metrics.TrackingSupply.WithLabelValues(pair).Set(reserveGauge(snap.TrackingSupply))
	return nil
}

func (s *Service) broadcastLiquidity(snap model.Pool) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:     "liquidity_changed",
		Pair:     registry.PairSymbol(snap.AssetA, snap.AssetB),
		PoolID:   snap.ID,
		ReserveA: snap.ReserveA.String(),
		ReserveB: snap.ReserveB.String(),
	})
}

// reserveGauge converts a decimal to the float64 gauges require. Gauge
// precision loss is acceptable for observability; accounting stays in
// decimal.
func reserveGauge(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// statusFor maps component sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrPoolNotFound),
		errors.Is(err, collateral.ErrPositionNotFound),
		errors.Is(err, settle.ErrSettlementNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrPoolExists),
		errors.Is(err, settle.ErrAlreadySettled),
		errors.Is(err, collateral.ErrPositionNotOpen),
		errors.Is(err, custody.ErrInsufficientBalance),
		errors.Is(err, pool.ErrInsufficientSupply),
		errors.Is(err, pool.ErrInsufficientReserve),
		errors.Is(err, pool.ErrPoolClosed),
		errors.Is(err, collateral.ErrBelowMinimumCollateral),
		errors.Is(err, exposure.ErrPerAssetLimitExceeded),
		errors.Is(err, exposure.ErrAggregateLimitExceeded):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
