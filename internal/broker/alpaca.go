// Package broker - alpaca.go implements the Broker interface against the
// vendor's trading REST API.
//
// Vendor trading API (generic HTTP JSON, modeled on Alpaca's trading API):
//   - Base URL: https://paper-api.alpaca.markets (paper) or the live host.
//   - Auth: APCA-API-KEY-ID / APCA-API-SECRET-KEY headers.
//   - Account: GET /v2/account.
//   - Positions: GET /v2/positions.
//   - Clock: GET /v2/clock.
//   - Orders: POST/GET/DELETE /v2/orders(/{id}).
//
// Grounded on the teacher's Dhan broker client shape (header auth,
// *http.Client with a fixed timeout, status-code branching) now generalized
// to the vendor's fractional-share, GET/POST JSON trading API.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// AlpacaConfig holds vendor trading-API configuration.
type AlpacaConfig struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
}

// AlpacaBroker implements Broker against the vendor's trading REST API.
type AlpacaBroker struct {
	config AlpacaConfig
	client *http.Client
}

func init() {
	Registry["alpaca"] = NewAlpacaBroker
}

// NewAlpacaBroker creates a new vendor broker instance from JSON config.
func NewAlpacaBroker(configJSON []byte) (Broker, error) {
	var cfg AlpacaConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, fmt.Errorf("alpaca broker: parse config: %w", err)
	}
	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("alpaca broker: key_id and secret_key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://paper-api.alpaca.markets"
	}
	return &AlpacaBroker{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type alpacaAccountResponse struct {
	PortfolioValue string `json:"portfolio_value"`
	Cash           string `json:"cash"`
	BuyingPower    string `json:"buying_power"`
	DaytradeCount  int    `json:"daytrade_count"`
	Status         string `json:"status"`
}

func (a *AlpacaBroker) Account(ctx context.Context) (Account, error) {
	body, err := a.do(ctx, http.MethodGet, "/v2/account", nil)
	if err != nil {
		return Account{}, fmt.Errorf("alpaca broker: get account: %w", err)
	}

	var resp alpacaAccountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Account{}, fmt.Errorf("alpaca broker: parse account: %w", err)
	}

	return Account{
		PortfolioValue: parseFloat(resp.PortfolioValue),
		Cash:           parseFloat(resp.Cash),
		BuyingPower:    parseFloat(resp.BuyingPower),
		DayTradeCount:  resp.DaytradeCount,
		Status:         resp.Status,
	}, nil
}

type alpacaPosition struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	AvgEntryPric string `json:"avg_entry_price"`
	MarketValue  string `json:"market_value"`
	CurrentPrice string `json:"current_price"`
}

func (a *AlpacaBroker) Positions(ctx context.Context) (map[string]Position, error) {
	body, err := a.do(ctx, http.MethodGet, "/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca broker: get positions: %w", err)
	}

	var resp []alpacaPosition
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("alpaca broker: parse positions: %w", err)
	}

	positions := make(map[string]Position, len(resp))
	for _, p := range resp {
		positions[p.Symbol] = Position{
			Symbol:       p.Symbol,
			Quantity:     parseFloat(p.Qty),
			AveragePrice: parseFloat(p.AvgEntryPric),
			MarketValue:  parseFloat(p.MarketValue),
			CurrentPrice: parseFloat(p.CurrentPrice),
		}
	}
	return positions, nil
}

type alpacaClockResponse struct {
	IsOpen bool `json:"is_open"`
}

func (a *AlpacaBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	body, err := a.do(ctx, http.MethodGet, "/v2/clock", nil)
	if err != nil {
		return false, fmt.Errorf("alpaca broker: get clock: %w", err)
	}
	var resp alpacaClockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("alpaca broker: parse clock: %w", err)
	}
	return resp.IsOpen, nil
}

type alpacaOrderRequest struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	LimitPrice  string `json:"limit_price,omitempty"`
}

type alpacaOrderResponse struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	LimitPrice     string `json:"limit_price"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	SubmittedAt    string `json:"submitted_at"`
}

func (a *AlpacaBroker) submitOrder(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType, limitPrice float64) (string, error) {
	req := alpacaOrderRequest{
		Symbol:      symbol,
		Qty:         strconv.FormatFloat(qty, 'f', 6, 64),
		Side:        mapSide(side),
		Type:        mapType(orderType),
		TimeInForce: "day",
	}
	if orderType == OrderTypeLimit {
		req.LimitPrice = strconv.FormatFloat(limitPrice, 'f', 2, 64)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("alpaca broker: encode order: %w", err)
	}

	body, err := a.do(ctx, http.MethodPost, "/v2/orders", payload)
	if err != nil {
		return "", fmt.Errorf("alpaca broker: submit order: %w", err)
	}

	var resp alpacaOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("alpaca broker: parse order response: %w", err)
	}
	return resp.ID, nil
}

func (a *AlpacaBroker) SubmitLimit(ctx context.Context, symbol string, qty float64, side OrderSide, limitPrice float64) (string, error) {
	return a.submitOrder(ctx, symbol, qty, side, OrderTypeLimit, limitPrice)
}

func (a *AlpacaBroker) SubmitMarket(ctx context.Context, symbol string, qty float64, side OrderSide) (string, error) {
	return a.submitOrder(ctx, symbol, qty, side, OrderTypeMarket, 0)
}

func (a *AlpacaBroker) GetOrder(ctx context.Context, orderID string) (Order, error) {
	body, err := a.do(ctx, http.MethodGet, "/v2/orders/"+orderID, nil)
	if err != nil {
		return Order{}, fmt.Errorf("alpaca broker: get order %s: %w", orderID, err)
	}

	var resp alpacaOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Order{}, fmt.Errorf("alpaca broker: parse order %s: %w", orderID, err)
	}

	submittedAt, _ := time.Parse(time.RFC3339, resp.SubmittedAt)
	return Order{
		OrderID:     resp.ID,
		Symbol:      resp.Symbol,
		Side:        OrderSide(mapSideBack(resp.Side)),
		Type:        OrderType(mapTypeBack(resp.Type)),
		Quantity:    parseFloat(resp.Qty),
		LimitPrice:  parseFloat(resp.LimitPrice),
		FilledQty:   parseFloat(resp.FilledQty),
		FilledAvgPx: parseFloat(resp.FilledAvgPrice),
		Status:      mapStatus(resp.Status),
		SubmittedAt: submittedAt,
	}, nil
}

func (a *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.do(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil)
	if err != nil {
		return fmt.Errorf("alpaca broker: cancel order %s: %w", orderID, err)
	}
	return nil
}

type alpacaQuoteEnvelope struct {
	Quote struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
	} `json:"quote"`
}

func (a *AlpacaBroker) LatestQuote(ctx context.Context, symbol string) (Quote, error) {
	body, err := a.do(ctx, http.MethodGet, "/v2/stocks/"+symbol+"/quotes/latest", nil)
	if err != nil {
		return Quote{}, fmt.Errorf("alpaca broker: latest quote %s: %w", symbol, err)
	}
	var resp alpacaQuoteEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("alpaca broker: parse quote %s: %w", symbol, err)
	}
	return Quote{Bid: resp.Quote.BidPrice, Ask: resp.Quote.AskPrice}, nil
}

func (a *AlpacaBroker) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.config.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.config.SecretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("authentication failed (401): check key_id and secret_key")
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (429): slow down requests")
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return respBody, nil
	default:
		return nil, fmt.Errorf("vendor API error %d: %s", resp.StatusCode, string(respBody))
	}
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func mapSide(side OrderSide) string {
	if side == OrderSideSell {
		return "sell"
	}
	return "buy"
}

func mapSideBack(side string) string {
	if side == "sell" {
		return string(OrderSideSell)
	}
	return string(OrderSideBuy)
}

func mapType(t OrderType) string {
	if t == OrderTypeMarket {
		return "market"
	}
	return "limit"
}

func mapTypeBack(t string) string {
	if t == "market" {
		return string(OrderTypeMarket)
	}
	return string(OrderTypeLimit)
}

func mapStatus(status string) OrderStatus {
	switch status {
	case "filled":
		return OrderStatusFilled
	case "partially_filled":
		return OrderStatusPartiallyFilled
	case "canceled", "cancelled":
		return OrderStatusCancelled
	case "rejected":
		return OrderStatusRejected
	case "expired":
		return OrderStatusExpired
	case "new", "accepted", "pending_new":
		return OrderStatusNew
	default:
		return OrderStatusOpen
	}
}
