// Package rebalance implements the Rebalancing Executor (§4.7): it turns a
// target weight map into a sell-then-buy order sequence against a broker,
// waits for sell settlement before committing buy cash, and places orders
// via a limit-with-slippage-retry protocol that falls back to a market
// order.
//
// Grounded on original_source/execution/alpaca_trader.py's
// rebalance_portfolio, place_order, and wait_for_settlement.
package rebalance

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/nitinkhare/algoTradingAgent/internal/broker"
	"github.com/nitinkhare/algoTradingAgent/internal/strategy"
)

// Config holds the rebalancing and order-placement parameters (§4.7.1,
// §4.7.2).
type Config struct {
	SlippageBps       float64 // default 0.3
	PollTimeoutSec    int     // default 30
	PollIntervalSec   int     // default 2
	MaxWaitTimeSec    int     // default 60
	MaxRetries        int     // default 3
	IgnoreMarketHours bool
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SlippageBps:     0.3,
		PollTimeoutSec:  30,
		PollIntervalSec: 2,
		MaxWaitTimeSec:  60,
		MaxRetries:      3,
	}
}

// PlannedTrade is one leg of a rebalancing plan.
type PlannedTrade struct {
	Symbol         string
	Side           broker.OrderSide
	Qty            float64
	EstimatedValue float64
	Reason         string
}

// Plan is the output of Phase 1: sells to execute first, then buys sized
// against the cash those sells are expected to free up.
type Plan struct {
	Sells []PlannedTrade
	Buys  []PlannedTrade
}

// Executor runs the four-phase rebalancing protocol against a broker.
type Executor struct {
	broker broker.Broker
	config Config
	logger *log.Logger
}

// New constructs an Executor.
func New(b broker.Broker, config Config, logger *log.Logger) *Executor {
	return &Executor{broker: b, config: config, logger: logger}
}

func floor6dp(x float64) float64 {
	return math.Floor(x*1e6) / 1e6
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Plan implements §4.7 Phase 1: compute sell/buy legs from target weights,
// current positions, and account state, scaling buys down if their total
// cost would exceed projected post-sell cash.
func (e *Executor) Plan(ctx context.Context, weights strategy.WeightMap, positions map[string]broker.Position, portfolioValue, cash float64) Plan {
	symbols := make(map[string]bool)
	for s := range positions {
		symbols[s] = true
	}
	for s := range weights {
		symbols[s] = true
	}

	var sells []PlannedTrade
	type rawBuy struct {
		symbol string
		value  float64
		price  float64
	}
	var rawBuys []rawBuy

	sorted := make([]string, 0, len(symbols))
	for s := range symbols {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	for _, symbol := range sorted {
		targetValue := portfolioValue * weights[symbol]
		pos, hasPos := positions[symbol]
		currentValue := 0.0
		if hasPos {
			currentValue = pos.MarketValue
		}
		delta := currentValue - targetValue

		price := 0.0
		if hasPos && pos.CurrentPrice > 0 {
			price = pos.CurrentPrice
		} else {
			q, err := e.broker.LatestQuote(ctx, symbol)
			if err == nil {
				if mid, ok := q.Mid(); ok {
					price = mid
				}
			}
		}

		switch {
		case delta > 1.0:
			if price <= 0 {
				e.logger.Printf("rebalance: skipping SELL %s, no usable price", symbol)
				continue
			}
			qty := floor6dp(math.Min(delta/price, pos.Quantity))
			if qty <= 0 {
				continue
			}
			sells = append(sells, PlannedTrade{
				Symbol: symbol, Side: broker.OrderSideSell, Qty: qty,
				EstimatedValue: qty * price,
				Reason:         fmt.Sprintf("overweight by $%.2f vs target", delta),
			})
		case delta < -1.0:
			if price <= 0 {
				e.logger.Printf("rebalance: skipping BUY %s, no usable price", symbol)
				continue
			}
			rawBuys = append(rawBuys, rawBuy{symbol: symbol, value: -delta, price: price})
		}
	}

	var expectedProceeds float64
	for _, s := range sells {
		expectedProceeds += s.EstimatedValue
	}
	projectedCash := cash + expectedProceeds

	var totalBuyValue float64
	for _, b := range rawBuys {
		totalBuyValue += b.value
	}

	scale := 1.0
	if totalBuyValue > projectedCash && totalBuyValue > 0 {
		scale = projectedCash / totalBuyValue
	}

	var buys []PlannedTrade
	for _, b := range rawBuys {
		value := b.value * scale
		qty := floor6dp(value / b.price)
		if qty <= 0 {
			continue
		}
		buys = append(buys, PlannedTrade{
			Symbol: b.symbol, Side: broker.OrderSideBuy, Qty: qty,
			EstimatedValue: qty * b.price,
			Reason:         fmt.Sprintf("underweight by $%.2f vs target", b.value),
		})
	}

	return Plan{Sells: sells, Buys: buys}
}

// Execute runs Phases 2-4 against a previously computed Plan and returns
// the submitted order IDs for the execution log.
func (e *Executor) Execute(ctx context.Context, plan Plan, cash float64) []string {
	var orderIDs []string

	// Phase 2: execute sells.
	var sellOrderIDs []string
	for _, sell := range plan.Sells {
		id, err := e.PlaceOrder(ctx, sell.Symbol, sell.Qty, sell.Side)
		if err != nil {
			e.logger.Printf("rebalance: sell %s failed: %v", sell.Symbol, err)
			continue
		}
		if id != "" {
			sellOrderIDs = append(sellOrderIDs, id)
			orderIDs = append(orderIDs, id)
		}
	}

	// Phase 3: wait for settlement.
	availableCash := e.waitForSettlement(ctx, sellOrderIDs, plan, cash)

	// Phase 4: execute buys within available cash.
	for _, b := range plan.Buys {
		if b.EstimatedValue > availableCash {
			e.logger.Printf("rebalance: skipping BUY %s, insufficient cash ($%.2f needed, $%.2f available)", b.Symbol, b.EstimatedValue, availableCash)
			continue
		}
		id, err := e.PlaceOrder(ctx, b.Symbol, b.Qty, b.Side)
		if err != nil {
			e.logger.Printf("rebalance: buy %s failed: %v", b.Symbol, err)
			continue
		}
		if id != "" {
			availableCash -= b.EstimatedValue
			orderIDs = append(orderIDs, id)
		}
	}

	return orderIDs
}

// waitForSettlement implements §4.7 Phase 3.
func (e *Executor) waitForSettlement(ctx context.Context, sellOrderIDs []string, plan Plan, cash float64) float64 {
	marketOpen, err := e.broker.IsMarketOpen(ctx)
	if err != nil {
		e.logger.Printf("rebalance: IsMarketOpen check failed, assuming closed: %v", err)
		marketOpen = false
	}

	if !marketOpen && e.config.IgnoreMarketHours {
		var expectedProceeds float64
		for _, s := range plan.Sells {
			expectedProceeds += s.EstimatedValue
		}
		return cash + expectedProceeds
	}

	deadline := time.Now().Add(time.Duration(e.config.MaxWaitTimeSec) * time.Second)
	interval := time.Duration(e.config.PollIntervalSec) * time.Second

	pending := make(map[string]bool, len(sellOrderIDs))
	for _, id := range sellOrderIDs {
		pending[id] = true
	}

	for len(pending) > 0 && time.Now().Before(deadline) {
		for id := range pending {
			order, err := e.broker.GetOrder(ctx, id)
			if err != nil {
				// Unreadable status is treated as settled.
				delete(pending, id)
				continue
			}
			if order.Status.IsTerminal() {
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}
		if ctxSleep(ctx, interval) {
			break
		}
	}

	account, err := e.broker.Account(ctx)
	if err != nil {
		e.logger.Printf("rebalance: failed to refresh account after settlement wait: %v", err)
		return cash
	}
	return account.Cash
}

// PlaceOrder implements §4.7.1: the limit-order-with-slippage-widening
// retry protocol, falling back to a market order once retries are
// exhausted.
func (e *Executor) PlaceOrder(ctx context.Context, symbol string, qty float64, side broker.OrderSide) (string, error) {
	if qty <= 0 {
		return "", nil
	}

	marketOpen, err := e.broker.IsMarketOpen(ctx)
	if err != nil {
		return "", fmt.Errorf("rebalance: check market hours: %w", err)
	}
	if !marketOpen {
		if e.config.IgnoreMarketHours {
			return e.broker.SubmitMarket(ctx, symbol, qty, side)
		}
		e.logger.Printf("rebalance: market closed, skipping order for %s", symbol)
		return "", nil
	}

	slippageBps := e.config.SlippageBps
	sign := 1.0
	if side == broker.OrderSideSell {
		sign = -1.0
	}

	pollTimeout := time.Duration(e.config.PollTimeoutSec) * time.Second
	pollInterval := time.Duration(e.config.PollIntervalSec) * time.Second

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		quote, err := e.broker.LatestQuote(ctx, symbol)
		if err != nil {
			return "", fmt.Errorf("rebalance: get quote for %s: %w", symbol, err)
		}
		price, ok := quote.Mid()
		if !ok || price <= 0 {
			return "", nil
		}

		limit := round2(price * (1 + sign*slippageBps/100))

		orderID, err := e.broker.SubmitLimit(ctx, symbol, qty, side, limit)
		if err != nil {
			e.logger.Printf("rebalance: submit limit for %s failed (attempt %d): %v", symbol, attempt, err)
			slippageBps *= 2
			continue
		}

		filled := e.pollUntilTerminal(ctx, orderID, pollTimeout, pollInterval)
		if filled {
			return orderID, nil
		}

		// Timed out or rejected/canceled: cancel (harmless if already
		// terminal) and retry with wider slippage.
		e.broker.CancelOrder(ctx, orderID)
		slippageBps *= 2
	}

	orderID, err := e.broker.SubmitMarket(ctx, symbol, qty, side)
	if err != nil {
		return "", nil
	}
	return orderID, nil
}

// pollUntilTerminal polls GetOrder until it fills, until it reaches another
// terminal status, or until timeout elapses. Returns true only on a fill.
func (e *Executor) pollUntilTerminal(ctx context.Context, orderID string, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		order, err := e.broker.GetOrder(ctx, orderID)
		if err != nil {
			return false
		}
		if order.Status == broker.OrderStatusFilled {
			return true
		}
		if order.Status.IsTerminal() {
			return false
		}
		if ctxSleep(ctx, interval) {
			return false
		}
	}
	return false
}

// ctxSleep sleeps for d or returns early (true) if ctx is cancelled first.
func ctxSleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(d):
		return false
	}
}
