// Package storage - postgres.go is the Postgres implementation of Store,
// using database/sql with the pgx stdlib driver (the same pattern the
// teacher's scripts/run_migration.go and cmd/daily-stats use directly).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store against Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// SaveTick inserts a tick row and returns its generated ID. It also issues
// a NOTIFY on the "tick_completed" channel so internal/events.Listener can
// forward the tick to connected operator dashboards without polling.
func (ps *PostgresStore) SaveTick(ctx context.Context, tick *TickRecord) (int64, error) {
	portfolioJSON, err := json.Marshal(tick.TargetPortfolio)
	if err != nil {
		return 0, fmt.Errorf("postgres store: marshal target_portfolio: %w", err)
	}

	const query = `
INSERT INTO ticks (ts, account_value, target_portfolio, paper_trading, success, summary)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;
`
	var id int64
	if err := ps.db.QueryRowContext(ctx, query,
		tick.Timestamp, tick.AccountValue, portfolioJSON, tick.PaperTrading, tick.Success, tick.Summary,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres store: SaveTick: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"tick_id":       id,
		"account_value": tick.AccountValue,
		"success":       tick.Success,
	})
	if _, err := ps.db.ExecContext(ctx, `SELECT pg_notify('tick_completed', $1);`, string(payload)); err != nil {
		return id, fmt.Errorf("postgres store: notify tick_completed: %w", err)
	}
	return id, nil
}

// SaveSignal inserts one strategy engine's evaluation for a tick.
func (ps *PostgresStore) SaveSignal(ctx context.Context, signal *SignalRecord) error {
	weightsJSON, err := json.Marshal(signal.Weights)
	if err != nil {
		return fmt.Errorf("postgres store: marshal weights: %w", err)
	}
	const query = `
INSERT INTO signals (tick_id, strategy_id, symbol, reason, weights, created_at)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err = ps.db.ExecContext(ctx, query,
		signal.TickID, signal.StrategyID, signal.Symbol, signal.Reason, weightsJSON, signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: SaveSignal: %w", err)
	}
	return nil
}

// SaveTrade inserts one executed order and NOTIFYs "trade_executed".
func (ps *PostgresStore) SaveTrade(ctx context.Context, trade *TradeRecord) error {
	const query = `
INSERT INTO trades (tick_id, symbol, side, quantity, estimated_value, order_id, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := ps.db.ExecContext(ctx, query,
		trade.TickID, trade.Symbol, trade.Side, trade.Quantity, trade.EstimatedValue, trade.OrderID, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("postgres store: SaveTrade: %w", err)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"symbol":   trade.Symbol,
		"side":     trade.Side,
		"quantity": trade.Quantity,
		"order_id": trade.OrderID,
	})
	if _, err := ps.db.ExecContext(ctx, `SELECT pg_notify('trade_executed', $1);`, string(payload)); err != nil {
		return fmt.Errorf("postgres store: notify trade_executed: %w", err)
	}
	return nil
}

// GetDailyPnL returns the last tick's account_value minus the first tick's
// account_value for the given date, i.e. the day's net change in equity.
func (ps *PostgresStore) GetDailyPnL(ctx context.Context, date time.Time) (float64, error) {
	const query = `
SELECT
  COALESCE((SELECT account_value FROM ticks WHERE ts::date = $1::date ORDER BY ts ASC LIMIT 1), 0),
  COALESCE((SELECT account_value FROM ticks WHERE ts::date = $1::date ORDER BY ts DESC LIMIT 1), 0);
`
	var first, last float64
	if err := ps.db.QueryRowContext(ctx, query, date).Scan(&first, &last); err != nil {
		return 0, fmt.Errorf("postgres store: GetDailyPnL: %w", err)
	}
	return last - first, nil
}

// GetRecentTrades returns the most recently executed trades, newest first.
func (ps *PostgresStore) GetRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, tick_id, symbol, side, quantity, estimated_value, order_id, executed_at
FROM trades
ORDER BY executed_at DESC
LIMIT $1;
`
	rows, err := ps.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: GetRecentTrades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.TickID, &t.Symbol, &t.Side, &t.Quantity, &t.EstimatedValue, &t.OrderID, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Ping verifies database connectivity.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
