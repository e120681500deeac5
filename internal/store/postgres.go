package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradebook/pnl-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All quantities and prices are stored as NUMERIC for exact
// decimal precision. The fills table carries a unique index on
// (owner, asset, order_time, original_qty, fee) enforcing the
// duplicate-fill invariant at the database level.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const fillColumns = `id, owner, asset, side, order_time,
	avg_fill::TEXT, price::TEXT, original_qty::TEXT, remaining_qty::TEXT,
	total::TEXT, fee::TEXT, leverage::TEXT,
	reported_pnl::TEXT, reported_pnl_pct::TEXT,
	margin_mode, order_options, reduce_only, trade_status, exchange,
	match_state, is_open, created_at`

func (s *PostgresStore) InsertFill(ctx context.Context, f *model.Fill) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fills (id, owner, asset, side, order_time,
		    avg_fill, price, original_qty, remaining_qty, total, fee, leverage,
		    reported_pnl, reported_pnl_pct,
		    margin_mode, order_options, reduce_only, trade_status, exchange,
		    match_state, is_open, created_at)
		 VALUES ($1, $2, $3, $4, $5,
		    $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC,
		    $13::NUMERIC, $14::NUMERIC,
		    $15, $16, $17, $18, $19, $20, $21, $22)`,
		f.ID, f.Owner, f.Asset, string(f.Side), f.OrderTime,
		f.AvgFill.String(), f.Price.String(), f.OriginalQty.String(), f.RemainingQty.String(),
		f.Total.String(), f.Fee.String(), f.Leverage.String(),
		f.ReportedPnl.String(), f.ReportedPnlPct.String(),
		f.MarginMode, f.OrderOptions, f.ReduceOnly, f.TradeStatus, f.Exchange,
		string(f.MatchState), f.IsOpen, f.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateFill
		}
		return fmt.Errorf("insert fill %s: %w", f.ID, err)
	}
	return nil
}

func (s *PostgresStore) BulkInsertFills(ctx context.Context, fills []*model.Fill) (int, int, error) {
	var inserted, duplicates int
	for _, f := range fills {
		switch err := s.InsertFill(ctx, f); {
		case err == nil:
			inserted++
		case errors.Is(err, ErrDuplicateFill):
			duplicates++
		default:
			return inserted, duplicates, err
		}
	}
	return inserted, duplicates, nil
}

func (s *PostgresStore) FillsByAsset(ctx context.Context, owner, asset string) ([]model.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillColumns+` FROM fills
		 WHERE owner = $1 AND asset = $2 ORDER BY order_time, id`, owner, asset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

func (s *PostgresStore) ListAssets(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT asset FROM fills WHERE owner = $1 ORDER BY asset`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []string
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (s *PostgresStore) OpenFillsByOwner(ctx context.Context, owner string) ([]model.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillColumns+` FROM fills
		 WHERE owner = $1 AND is_open ORDER BY order_time, id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFills(rows)
}

// ApplyMatchUpdates runs all fill updates for one asset group inside a
// single transaction so a crash never leaves the book half-reconciled.
func (s *PostgresStore) ApplyMatchUpdates(ctx context.Context, owner, asset string, updates []FillUpdate) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, u := range updates {
			tag, err := tx.Exec(ctx,
				`UPDATE fills
				 SET remaining_qty = $2::NUMERIC, match_state = $3, is_open = $4
				 WHERE id = $1 AND owner = $5 AND asset = $6`,
				u.FillID, u.RemainingQty.String(), string(u.MatchState), u.IsOpen,
				owner, asset,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("store: fill %s not found in group %s/%s", u.FillID, owner, asset)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ReplaceRealizedEvents(ctx context.Context, owner, asset string, events []model.RealizedPnlEvent) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM realized_pnl_events WHERE owner = $1 AND asset = $2`,
			owner, asset); err != nil {
			return err
		}
		for _, e := range events {
			if _, err := tx.Exec(ctx,
				`INSERT INTO realized_pnl_events (id, owner, asset, sell_fill_id, pnl, closed_at)
				 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
				e.ID, e.Owner, e.Asset, e.SellFillID, e.Pnl.String(), e.ClosedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) RealizedEventsByOwner(ctx context.Context, owner string) ([]model.RealizedPnlEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, asset, sell_fill_id, pnl::TEXT, closed_at
		 FROM realized_pnl_events WHERE owner = $1 ORDER BY closed_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RealizedPnlEvent
	for rows.Next() {
		var e model.RealizedPnlEvent
		var pnlS string
		if err := rows.Scan(&e.ID, &e.Owner, &e.Asset, &e.SellFillID, &pnlS, &e.ClosedAt); err != nil {
			return nil, err
		}
		e.Pnl, _ = decimal.NewFromString(pnlS)
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanFills(rows pgx.Rows) ([]model.Fill, error) {
	var fills []model.Fill
	for rows.Next() {
		var f model.Fill
		var side, state string
		var avgFill, price, origQty, remQty, total, fee, leverage string
		var repPnl, repPnlPct string

		if err := rows.Scan(&f.ID, &f.Owner, &f.Asset, &side, &f.OrderTime,
			&avgFill, &price, &origQty, &remQty,
			&total, &fee, &leverage,
			&repPnl, &repPnlPct,
			&f.MarginMode, &f.OrderOptions, &f.ReduceOnly, &f.TradeStatus, &f.Exchange,
			&state, &f.IsOpen, &f.CreatedAt); err != nil {
			return nil, err
		}

		f.Side = model.Side(side)
		f.MatchState = model.MatchState(state)
		f.AvgFill, _ = decimal.NewFromString(avgFill)
		f.Price, _ = decimal.NewFromString(price)
		f.OriginalQty, _ = decimal.NewFromString(origQty)
		f.RemainingQty, _ = decimal.NewFromString(remQty)
		f.Total, _ = decimal.NewFromString(total)
		f.Fee, _ = decimal.NewFromString(fee)
		f.Leverage, _ = decimal.NewFromString(leverage)
		f.ReportedPnl, _ = decimal.NewFromString(repPnl)
		f.ReportedPnlPct, _ = decimal.NewFromString(repPnlPct)

		fills = append(fills, f)
	}
	return fills, rows.Err()
}
