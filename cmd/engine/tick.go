package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nitinkhare/algoTradingAgent/internal/broker"
	"github.com/nitinkhare/algoTradingAgent/internal/config"
	"github.com/nitinkhare/algoTradingAgent/internal/events"
	"github.com/nitinkhare/algoTradingAgent/internal/manager"
	"github.com/nitinkhare/algoTradingAgent/internal/rebalance"
	"github.com/nitinkhare/algoTradingAgent/internal/risk"
	"github.com/nitinkhare/algoTradingAgent/internal/storage"
)

// tickDeps bundles everything one evaluate-and-rebalance tick needs. It is
// built once at startup and its runTick method is handed to the scheduler
// as a scheduler.TickFunc.
type tickDeps struct {
	cfg         *config.Config
	logger      *log.Logger
	broker      broker.Broker
	manager     *manager.Manager
	executor    *rebalance.Executor
	store       *storage.PostgresStore
	broadcaster *events.Broadcaster
	circuit     *risk.CircuitBreaker
}

// executionLogEntry is one append-only line of the trade-execution log
// (§6): {timestamp, account_value, target_portfolio, orders_executed,
// paper_trading}.
type executionLogEntry struct {
	Timestamp       time.Time          `json:"timestamp"`
	AccountValue    float64            `json:"account_value"`
	TargetPortfolio map[string]float64 `json:"target_portfolio"`
	OrdersExecuted  []executedOrder    `json:"orders_executed"`
	PaperTrading    bool               `json:"paper_trading"`
}

type executedOrder struct {
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Qty            float64 `json:"qty"`
	OrderID        string  `json:"order_id"`
	EstimatedValue float64 `json:"estimated_value"`
}

// alertRecord is one append-only line of the alert log (§6):
// {timestamp, symbol, action, price, reason}.
type alertRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
}

// dashboardExport is written once per tick, newest wins (§6).
type dashboardExport struct {
	Timestamp      time.Time                  `json:"timestamp"`
	ExecutionMode  string                     `json:"execution_mode"`
	Success        bool                       `json:"success"`
	Strategies     map[string]strategyExport  `json:"strategies"`
	Portfolio      portfolioExport            `json:"portfolio"`
	Positions      []positionExport           `json:"positions"`
	RecentTrades   []storage.TradeRecord      `json:"recent_trades"`
	Signals        map[string]float64         `json:"signals"`
}

type strategyExport struct {
	Allocation float64 `json:"allocation"`
}

type portfolioExport struct {
	TotalValue      float64 `json:"total_value"`
	Cash            float64 `json:"cash"`
	Equity          float64 `json:"equity"`
	DailyPL         float64 `json:"daily_pl"`
	DailyPLPercent  float64 `json:"daily_pl_percent"`
}

type positionExport struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	MarketValue  float64 `json:"market_value"`
	CurrentPrice float64 `json:"current_price"`
}

// runTick implements one full evaluate-and-rebalance tick (§4.5-4.7, §7).
// It satisfies scheduler.TickFunc.
func (d *tickDeps) runTick(ctx context.Context) error {
	start := time.Now()

	if d.circuit != nil {
		if err := d.circuit.Allow(); err != nil {
			d.logger.Printf("tick: skipped, %v", err)
			d.writeDashboard(start, false, nil, nil, nil, nil)
			d.broadcastEvent("tick_skipped", map[string]interface{}{"reason": err.Error()})
			return fmt.Errorf("tick: %w", err)
		}
	}

	d.broadcastEvent("tick_started", map[string]interface{}{"timestamp": start})

	account, err := d.broker.Account(ctx)
	if err != nil {
		d.writeDashboard(start, false, nil, nil, nil, nil)
		d.broadcastEvent("tick_failed", map[string]interface{}{"reason": "account fetch failed: " + err.Error()})
		if d.circuit != nil {
			d.circuit.RecordFailure("account fetch failed: " + err.Error())
		}
		return fmt.Errorf("tick: fetch account: %w", err)
	}

	positions, err := d.broker.Positions(ctx)
	if err != nil {
		d.writeDashboard(start, false, &account, nil, nil, nil)
		d.broadcastEvent("tick_failed", map[string]interface{}{"reason": "positions fetch failed: " + err.Error()})
		if d.circuit != nil {
			d.circuit.RecordFailure("positions fetch failed: " + err.Error())
		}
		return fmt.Errorf("tick: fetch positions: %w", err)
	}

	weights := d.manager.Evaluate(ctx)

	plan := d.executor.Plan(ctx, weights, positions, account.PortfolioValue, account.Cash)
	orderIDs := d.executor.Execute(ctx, plan, account.Cash)

	orders := d.describeOrders(ctx, orderIDs)
	d.logExecution(start, account.PortfolioValue, weights, orders)
	d.logAlerts(start, plan)

	tickID := d.persistTick(ctx, start, account, weights, orders)

	d.writeDashboard(start, true, &account, positions, orders, weights)
	d.broadcastEvent("tick_completed", map[string]interface{}{
		"tick_id":        tickID,
		"account_value":  account.PortfolioValue,
		"orders_executed": len(orders),
	})

	if d.circuit != nil {
		d.circuit.RecordSuccess()
	}
	d.logger.Printf("tick completed in %s: account_value=$%.2f orders=%d", time.Since(start), account.PortfolioValue, len(orders))
	return nil
}

// describeOrders turns the order IDs the executor submitted back into
// log-ready entries by reading their current state back from the broker
// (symbol, side, quantity, fill price) — the executor itself only returns
// ids, since its job is execution, not reporting.
func (d *tickDeps) describeOrders(ctx context.Context, orderIDs []string) []executedOrder {
	orders := make([]executedOrder, 0, len(orderIDs))
	for _, id := range orderIDs {
		o, err := d.broker.GetOrder(ctx, id)
		if err != nil {
			d.logger.Printf("tick: could not describe order %s: %v", id, err)
			continue
		}
		estValue := o.FilledQty * o.FilledAvgPx
		if estValue == 0 {
			estValue = o.Quantity * o.LimitPrice
		}
		orders = append(orders, executedOrder{
			Symbol:         o.Symbol,
			Side:           string(o.Side),
			Qty:            o.Quantity,
			OrderID:        o.OrderID,
			EstimatedValue: estValue,
		})
	}
	return orders
}

// logExecution appends one line to the trade-execution log (§6).
func (d *tickDeps) logExecution(ts time.Time, accountValue float64, weights map[string]float64, orders []executedOrder) {
	entry := executionLogEntry{
		Timestamp:       ts,
		AccountValue:    accountValue,
		TargetPortfolio: weights,
		OrdersExecuted:  orders,
		PaperTrading:    d.cfg.TradingMode == config.ModePaper,
	}
	if err := appendJSONLine(d.cfg.Paths.ExecutionLogPath, entry); err != nil {
		d.logger.Printf("tick: failed to write execution log: %v", err)
	}
}

// logAlerts appends one alert line per planned trade (§6).
func (d *tickDeps) logAlerts(ts time.Time, plan rebalance.Plan) {
	all := make([]rebalance.PlannedTrade, 0, len(plan.Sells)+len(plan.Buys))
	all = append(all, plan.Sells...)
	all = append(all, plan.Buys...)
	for _, t := range all {
		price := 0.0
		if t.Qty > 0 {
			price = t.EstimatedValue / t.Qty
		}
		rec := alertRecord{
			Timestamp: ts,
			Symbol:    t.Symbol,
			Action:    string(t.Side),
			Price:     price,
			Reason:    t.Reason,
		}
		if err := appendJSONLine(d.cfg.Paths.AlertLogPath, rec); err != nil {
			d.logger.Printf("tick: failed to write alert log: %v", err)
		}
	}
}

// persistTick writes the tick, a consolidated signal row, and every
// executed trade to Postgres, when configured. Returns the tick ID, or 0
// when persistence is disabled.
func (d *tickDeps) persistTick(ctx context.Context, ts time.Time, account broker.Account, weights map[string]float64, orders []executedOrder) int64 {
	if d.store == nil {
		return 0
	}

	tickID, err := d.store.SaveTick(ctx, &storage.TickRecord{
		Timestamp:       ts,
		AccountValue:    account.PortfolioValue,
		TargetPortfolio: weights,
		PaperTrading:    d.cfg.TradingMode == config.ModePaper,
		Success:         true,
		Summary:         fmt.Sprintf("%d orders executed", len(orders)),
	})
	if err != nil {
		d.logger.Printf("tick: failed to save tick: %v", err)
		return 0
	}

	if err := d.store.SaveSignal(ctx, &storage.SignalRecord{
		TickID:     tickID,
		StrategyID: "manager",
		Symbol:     "",
		Reason:     "consolidated portfolio (Nuclear + TECL)",
		Weights:    weights,
		CreatedAt:  ts,
	}); err != nil {
		d.logger.Printf("tick: failed to save signal: %v", err)
	}

	for _, o := range orders {
		if err := d.store.SaveTrade(ctx, &storage.TradeRecord{
			TickID:         tickID,
			Symbol:         o.Symbol,
			Side:           o.Side,
			Quantity:       o.Qty,
			EstimatedValue: o.EstimatedValue,
			OrderID:        o.OrderID,
			ExecutedAt:     ts,
		}); err != nil {
			d.logger.Printf("tick: failed to save trade for %s: %v", o.Symbol, err)
		}
	}

	return tickID
}

// writeDashboard overwrites the dashboard export file (§6, newest wins).
func (d *tickDeps) writeDashboard(ts time.Time, success bool, account *broker.Account, positions map[string]broker.Position, orders []executedOrder, signals map[string]float64) {
	export := dashboardExport{
		Timestamp:     ts,
		ExecutionMode: string(d.cfg.TradingMode),
		Success:       success,
		Strategies: map[string]strategyExport{
			"nuclear": {Allocation: d.cfg.StrategyAllocations["nuclear"]},
			"tecl":    {Allocation: d.cfg.StrategyAllocations["tecl"]},
		},
		Signals: signals,
	}

	if account != nil {
		export.Portfolio = portfolioExport{
			TotalValue: account.PortfolioValue,
			Cash:       account.Cash,
			Equity:     account.PortfolioValue - account.Cash,
		}
	}

	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		p := positions[s]
		export.Positions = append(export.Positions, positionExport{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity,
			MarketValue:  p.MarketValue,
			CurrentPrice: p.CurrentPrice,
		})
	}

	if d.store != nil {
		if recent, err := d.store.GetRecentTrades(context.Background(), 20); err == nil {
			export.RecentTrades = recent
		}
	}

	if err := writeJSONFile(d.cfg.Paths.DashboardExportPath, export); err != nil {
		d.logger.Printf("tick: failed to write dashboard export: %v", err)
	}
}

// broadcastEvent pushes a TickEvent to the operator event stream, when
// configured. Purely observational: never blocks the tick loop.
func (d *tickDeps) broadcastEvent(eventType string, data interface{}) {
	if d.broadcaster == nil {
		return
	}
	d.broadcaster.Broadcast(events.WebSocketMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// appendJSONLine appends one JSON-encoded line to path, creating parent
// directories and the file itself as needed.
func appendJSONLine(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// writeJSONFile overwrites path with the JSON encoding of v (newest wins).
func writeJSONFile(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write export temp file: %w", err)
	}
	return os.Rename(tmp, path)
}
