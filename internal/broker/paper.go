// Package broker - paper.go implements the paper trading broker.
//
// The paper broker simulates order execution using whatever quote was most
// recently fed to it via SetQuote. It uses the same interface as live
// brokers so all engine logic remains identical between paper and live
// modes.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PaperBroker simulates broker operations for paper trading. Orders fill
// immediately: limit orders fill at the limit price if the current quote
// crosses it, market orders fill at the current mid quote.
type PaperBroker struct {
	mu       sync.Mutex
	cash     float64
	holdings map[string]*Position
	orders   map[string]*Order
	quotes   map[string]Quote
	nextID   int
}

// NewPaperBroker creates a paper broker seeded with the given starting cash.
func NewPaperBroker(initialCash float64) *PaperBroker {
	return &PaperBroker{
		cash:     initialCash,
		holdings: make(map[string]*Position),
		orders:   make(map[string]*Order),
		quotes:   make(map[string]Quote),
	}
}

// SetQuote feeds the paper broker a current bid/ask for symbol. Callers
// must call this before placing any order or requesting a quote for that
// symbol; neither the rebalancing executor nor cmd/engine calls it.
func (pb *PaperBroker) SetQuote(symbol string, q Quote) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.quotes[symbol] = q
}

func (pb *PaperBroker) Account(_ context.Context) (Account, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	portfolioValue := pb.cash
	for symbol, pos := range pb.holdings {
		mid, ok := pb.quotes[symbol].Mid()
		if !ok {
			mid = pos.AveragePrice
		}
		portfolioValue += pos.Quantity * mid
	}

	return Account{
		PortfolioValue: portfolioValue,
		Cash:           pb.cash,
		BuyingPower:    pb.cash,
		Status:         "ACTIVE",
	}, nil
}

func (pb *PaperBroker) Positions(_ context.Context) (map[string]Position, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	result := make(map[string]Position, len(pb.holdings))
	for symbol, pos := range pb.holdings {
		p := *pos
		if mid, ok := pb.quotes[symbol].Mid(); ok {
			p.CurrentPrice = mid
			p.MarketValue = p.Quantity * mid
		}
		result[symbol] = p
	}
	return result, nil
}

// IsMarketOpen always reports true for the paper broker: fills happen
// whenever a quote is available, regardless of wall-clock trading hours —
// the caller (internal/market.Calendar) is the source of truth for session
// gating.
func (pb *PaperBroker) IsMarketOpen(_ context.Context) (bool, error) {
	return true, nil
}

func (pb *PaperBroker) fillPrice(symbol string, side OrderSide, limitPrice float64) (float64, error) {
	q, ok := pb.quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("paper broker: no quote set for %s", symbol)
	}
	mid, ok := q.Mid()
	if !ok {
		return 0, fmt.Errorf("paper broker: quote for %s has no usable price", symbol)
	}
	if limitPrice == 0 {
		return mid, nil
	}
	if side == OrderSideBuy && limitPrice < mid {
		return mid, fmt.Errorf("paper broker: limit %.4f below mid %.4f for BUY %s", limitPrice, mid, symbol)
	}
	if side == OrderSideSell && limitPrice > mid {
		return mid, fmt.Errorf("paper broker: limit %.4f above mid %.4f for SELL %s", limitPrice, mid, symbol)
	}
	return limitPrice, nil
}

func (pb *PaperBroker) submit(symbol string, qty float64, side OrderSide, orderType OrderType, limitPrice float64) (string, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.nextID++
	orderID := fmt.Sprintf("PAPER-%d", pb.nextID)

	price, fillErr := pb.fillPrice(symbol, side, limitPrice)
	order := &Order{
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        side,
		Type:        orderType,
		Quantity:    qty,
		LimitPrice:  limitPrice,
		SubmittedAt: time.Now(),
	}

	if fillErr != nil {
		order.Status = OrderStatusOpen
		pb.orders[orderID] = order
		return orderID, nil
	}

	cost := price * qty
	switch side {
	case OrderSideBuy:
		if cost > pb.cash {
			order.Status = OrderStatusRejected
			pb.orders[orderID] = order
			return orderID, fmt.Errorf("paper broker: insufficient cash for %s: need %.2f, have %.2f", symbol, cost, pb.cash)
		}
		pb.cash -= cost
		if pos, exists := pb.holdings[symbol]; exists {
			totalQty := pos.Quantity + qty
			pos.AveragePrice = (pos.AveragePrice*pos.Quantity + price*qty) / totalQty
			pos.Quantity = totalQty
		} else {
			pb.holdings[symbol] = &Position{Symbol: symbol, Quantity: qty, AveragePrice: price}
		}
	case OrderSideSell:
		pos, exists := pb.holdings[symbol]
		if !exists || pos.Quantity < qty {
			order.Status = OrderStatusRejected
			pb.orders[orderID] = order
			return orderID, fmt.Errorf("paper broker: insufficient position in %s to sell %.6f", symbol, qty)
		}
		pb.cash += price * qty
		pos.Quantity -= qty
		if pos.Quantity <= 1e-9 {
			delete(pb.holdings, symbol)
		}
	}

	order.Status = OrderStatusFilled
	order.FilledQty = qty
	order.FilledAvgPx = price
	pb.orders[orderID] = order
	return orderID, nil
}

func (pb *PaperBroker) SubmitLimit(_ context.Context, symbol string, qty float64, side OrderSide, limitPrice float64) (string, error) {
	return pb.submit(symbol, qty, side, OrderTypeLimit, limitPrice)
}

func (pb *PaperBroker) SubmitMarket(_ context.Context, symbol string, qty float64, side OrderSide) (string, error) {
	return pb.submit(symbol, qty, side, OrderTypeMarket, 0)
}

func (pb *PaperBroker) GetOrder(_ context.Context, orderID string) (Order, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	o, exists := pb.orders[orderID]
	if !exists {
		return Order{}, fmt.Errorf("paper broker: order %s not found", orderID)
	}
	return *o, nil
}

func (pb *PaperBroker) CancelOrder(_ context.Context, orderID string) error {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	o, exists := pb.orders[orderID]
	if !exists {
		return fmt.Errorf("paper broker: order %s not found", orderID)
	}
	if o.Status.IsTerminal() {
		return nil
	}
	o.Status = OrderStatusCancelled
	return nil
}

func (pb *PaperBroker) LatestQuote(_ context.Context, symbol string) (Quote, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	q, ok := pb.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("paper broker: no quote set for %s", symbol)
	}
	return q, nil
}
