// Package storage defines the optional Postgres persistence layer (§6, §11).
//
// Persistence is ambient, not core: the tick loop functions entirely from
// the append-only JSON-lines execution/alert logs when no DatabaseURL is
// configured. When a database is configured, every tick's consolidated
// portfolio, per-strategy signals, and executed orders are additionally
// written here for historical querying (daily P&L, recent trades) and to
// drive the LISTEN/NOTIFY event stream in internal/events.
package storage

import (
	"context"
	"time"
)

// TickRecord is one row per completed tick: the consolidated target
// portfolio and account snapshot that drove the rebalancing plan.
type TickRecord struct {
	ID              int64
	Timestamp       time.Time
	AccountValue    float64
	TargetPortfolio map[string]float64
	PaperTrading    bool
	Success         bool
	Summary         string
}

// SignalRecord is one row per strategy engine evaluation within a tick.
type SignalRecord struct {
	ID         int64
	TickID     int64
	StrategyID string
	Symbol     string
	Reason     string
	Weights    map[string]float64
	CreatedAt  time.Time
}

// TradeRecord is one row per order actually submitted to the broker during
// a tick's rebalance.
type TradeRecord struct {
	ID             int64
	TickID         int64
	Symbol         string
	Side           string // "BUY" or "SELL"
	Quantity       float64
	EstimatedValue float64
	OrderID        string
	ExecutedAt     time.Time
}

// Store defines the persistence interface for tick history.
type Store interface {
	// SaveTick persists a tick's account snapshot and target portfolio,
	// returning the generated tick ID for linking signals and trades.
	SaveTick(ctx context.Context, tick *TickRecord) (int64, error)

	// SaveSignal persists one strategy engine's evaluation for a tick.
	SaveSignal(ctx context.Context, signal *SignalRecord) error

	// SaveTrade persists one executed order for a tick.
	SaveTrade(ctx context.Context, trade *TradeRecord) error

	// GetDailyPnL returns the change in account value across all ticks
	// recorded on the given date (last tick's value minus first tick's).
	GetDailyPnL(ctx context.Context, date time.Time) (float64, error)

	// GetRecentTrades returns the most recently executed trades, newest first.
	GetRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
