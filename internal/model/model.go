// Package model defines the core domain types shared across the protocol core.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a typed asset identifier. Asset identities are resolved through
// the registry rather than dynamic resource addressing; two assets are equal
// exactly when their identifiers are equal.
type Asset string

// OptionKind distinguishes calls from puts.
type OptionKind string

const (
	Call OptionKind = "CALL"
	Put  OptionKind = "PUT"
)

// OptionContract describes an American-style option to be valued on a
// binomial tree. Immutable once priced at a given step count: its value is a
// pure function of these fields.
type OptionContract struct {
	Kind         OptionKind      `json:"kind"`
	Underlying   Asset           `json:"underlying"`
	Strike       decimal.Decimal `json:"strike"`
	Spot         decimal.Decimal `json:"spot"`
	Steps        int             `json:"steps"`
	UpFactor     decimal.Decimal `json:"up_factor"`
	DownFactor   decimal.Decimal `json:"down_factor"`
	RiskFreeRate decimal.Decimal `json:"risk_free_rate"` // per step-period year fraction base
	Expiry       time.Time       `json:"expiry"`
}

// PoolStatus is the lifecycle state of a liquidity pool.
type PoolStatus string

const (
	PoolOpen   PoolStatus = "open"
	PoolClosed PoolStatus = "closed"
)

// Pool is the persisted snapshot of a liquidity pool: two reserve balances
// and the outstanding tracking-token supply minted against them.
type Pool struct {
	ID             string          `json:"id" db:"id"`
	AssetA         Asset           `json:"asset_a" db:"asset_a"`
	AssetB         Asset           `json:"asset_b" db:"asset_b"`
	ReserveA       decimal.Decimal `json:"reserve_a" db:"reserve_a"`
	ReserveB       decimal.Decimal `json:"reserve_b" db:"reserve_b"`
	TrackingAsset  Asset           `json:"tracking_asset" db:"tracking_asset"`
	TrackingSupply decimal.Decimal `json:"tracking_supply" db:"tracking_supply"`
	FeePercent     decimal.Decimal `json:"fee_percent" db:"fee_percent"` // 0–100
	Status         PoolStatus      `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PositionStatus is the lifecycle state of a collateralized position.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "open"
	PositionClosed     PositionStatus = "closed"
	PositionLiquidated PositionStatus = "liquidated"
)

// Position is a collateralized derivative position: collateral held against
// notional exposure to an underlying asset.
type Position struct {
	ID               string          `json:"id" db:"id"`
	Account          string          `json:"account" db:"account"`
	CollateralAsset  Asset           `json:"collateral_asset" db:"collateral_asset"`
	CollateralAmount decimal.Decimal `json:"collateral_amount" db:"collateral_amount"`
	UnderlyingAsset  Asset           `json:"underlying_asset" db:"underlying_asset"`
	NotionalExposure decimal.Decimal `json:"notional_exposure" db:"notional_exposure"`
	Status           PositionStatus  `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// SettlementState is a step in the per-position settlement state machine.
//
//	Open -> Priced -> CollateralChecked -> Settled | Liquidated
//
// Settled and Liquidated are terminal.
type SettlementState string

const (
	StateOpen              SettlementState = "open"
	StatePriced            SettlementState = "priced"
	StateCollateralChecked SettlementState = "collateral_checked"
	StateSettled           SettlementState = "settled"
	StateLiquidated        SettlementState = "liquidated"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SettlementState) Terminal() bool {
	return s == StateSettled || s == StateLiquidated
}

// Settlement is the record of one settlement run against a position.
// Once the state is terminal the record is never mutated again.
type Settlement struct {
	ID          string          `json:"id" db:"id"`
	PositionID  string          `json:"position_id" db:"position_id"`
	State       SettlementState `json:"state" db:"state"`
	OptionValue decimal.Decimal `json:"option_value" db:"option_value"`
	Payout      decimal.Decimal `json:"payout" db:"payout"`
	PayoutAsset Asset           `json:"payout_asset" db:"payout_asset"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
