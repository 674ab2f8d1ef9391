package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/elision-io/elision-core/internal/model"
	"github.com/elision-io/elision-core/internal/registry"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, pair, asset_a, asset_b, reserve_a, reserve_b, tracking_asset, tracking_supply, fee_percent, status, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		p.ID, registry.PairSymbol(p.AssetA, p.AssetB), p.AssetA, p.AssetB,
		p.ReserveA.String(), p.ReserveB.String(),
		p.TrackingAsset, p.TrackingSupply.String(), p.FeePercent.String(),
		p.Status, p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, poolSelect+` WHERE id = $1`, id)
	p, err := scanPool(row)
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, mapNoRows(err))
	}
	return p, nil
}

func (s *PostgresStore) GetPoolByPair(ctx context.Context, pair string) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, poolSelect+` WHERE pair = $1`, pair)
	p, err := scanPool(row)
	if err != nil {
		return nil, fmt.Errorf("get pool for pair %s: %w", pair, mapNoRows(err))
	}
	return p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, poolSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) UpdatePoolState(ctx context.Context, id string, reserveA, reserveB, supply decimal.Decimal, status model.PoolStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pools
		 SET reserve_a = $2::NUMERIC, reserve_b = $3::NUMERIC,
		     tracking_supply = $4::NUMERIC, status = $5
		 WHERE id = $1`,
		id, reserveA.String(), reserveB.String(), supply.String(), status,
	)
	return err
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, account, collateral_asset, collateral_amount, underlying_asset, notional_exposure, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7, $8)`,
		p.ID, p.Account, p.CollateralAsset, p.CollateralAmount.String(),
		p.UnderlyingAsset, p.NotionalExposure.String(),
		p.Status, p.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	var collateral, exposure string

	err := s.pool.QueryRow(ctx,
		`SELECT id, account, collateral_asset, collateral_amount::TEXT,
		        underlying_asset, notional_exposure::TEXT, status, created_at
		 FROM positions WHERE id = $1`, id).
		Scan(&p.ID, &p.Account, &p.CollateralAsset, &collateral,
			&p.UnderlyingAsset, &exposure, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, mapNoRows(err))
	}

	p.CollateralAmount, _ = decimal.NewFromString(collateral)
	p.NotionalExposure, _ = decimal.NewFromString(exposure)
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, collateral_asset, collateral_amount::TEXT,
		        underlying_asset, notional_exposure::TEXT, status, created_at
		 FROM positions ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsByAccount(ctx context.Context, account string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, collateral_asset, collateral_amount::TEXT,
		        underlying_asset, notional_exposure::TEXT, status, created_at
		 FROM positions WHERE account = $1 ORDER BY created_at`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var collateral, exposure string
		if err := rows.Scan(&p.ID, &p.Account, &p.CollateralAsset, &collateral,
			&p.UnderlyingAsset, &exposure, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CollateralAmount, _ = decimal.NewFromString(collateral)
		p.NotionalExposure, _ = decimal.NewFromString(exposure)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) UpdatePositionState(ctx context.Context, id string, collateral decimal.Decimal, status model.PositionStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE positions SET collateral_amount = $2::NUMERIC, status = $3 WHERE id = $1`,
		id, collateral.String(), status,
	)
	return err
}

func (s *PostgresStore) UpsertSettlement(ctx context.Context, rec *model.Settlement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO settlements (id, position_id, state, option_value, payout, payout_asset, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7, $8)
		 ON CONFLICT (position_id) DO UPDATE
		 SET state = EXCLUDED.state, option_value = EXCLUDED.option_value,
		     payout = EXCLUDED.payout, payout_asset = EXCLUDED.payout_asset,
		     updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.PositionID, rec.State,
		rec.OptionValue.String(), rec.Payout.String(), rec.PayoutAsset,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetSettlementByPosition(ctx context.Context, positionID string) (*model.Settlement, error) {
	var rec model.Settlement
	var value, payout string

	err := s.pool.QueryRow(ctx,
		`SELECT id, position_id, state, option_value::TEXT, payout::TEXT,
		        payout_asset, created_at, updated_at
		 FROM settlements WHERE position_id = $1`, positionID).
		Scan(&rec.ID, &rec.PositionID, &rec.State, &value, &payout,
			&rec.PayoutAsset, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get settlement for position %s: %w", positionID, mapNoRows(err))
	}

	rec.OptionValue, _ = decimal.NewFromString(value)
	rec.Payout, _ = decimal.NewFromString(payout)
	return &rec, nil
}

func (s *PostgresStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, position_id, state, option_value::TEXT, payout::TEXT,
		        payout_asset, created_at, updated_at
		 FROM settlements ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Settlement
	for rows.Next() {
		var rec model.Settlement
		var value, payout string
		if err := rows.Scan(&rec.ID, &rec.PositionID, &rec.State, &value, &payout,
			&rec.PayoutAsset, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.OptionValue, _ = decimal.NewFromString(value)
		rec.Payout, _ = decimal.NewFromString(payout)
		records = append(records, rec)
	}
	return records, rows.Err()
}

const poolSelect = `SELECT id, asset_a, asset_b,
       reserve_a::TEXT, reserve_b::TEXT,
       tracking_asset, tracking_supply::TEXT, fee_percent::TEXT,
       status, created_at
  FROM pools`

// pgxRow covers both pgx.Row and pgx.Rows for the pool scanner.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPool(row pgxRow) (*model.Pool, error) {
	var p model.Pool
	var reserveA, reserveB, supply, fee string

	if err := row.Scan(&p.ID, &p.AssetA, &p.AssetB,
		&reserveA, &reserveB,
		&p.TrackingAsset, &supply, &fee,
		&p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.ReserveA, _ = decimal.NewFromString(reserveA)
	p.ReserveB, _ = decimal.NewFromString(reserveB)
	p.TrackingSupply, _ = decimal.NewFromString(supply)
	p.FeePercent, _ = decimal.NewFromString(fee)
	return &p, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
