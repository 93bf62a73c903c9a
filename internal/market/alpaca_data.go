// Package market - alpaca_data.go implements Source using the vendor's
// market-data REST API (bars + latest quote endpoints).
//
// This is intentionally separate from the broker layer (internal/broker):
// market data fetching is a data concern, not an execution concern, even
// though both talk to the same vendor.
//
// Vendor API details (generic HTTP JSON, modeled on Alpaca's market data API):
//   - GET {baseURL}/v2/stocks/{symbol}/bars?timeframe=...&start=...&end=...
//   - GET {baseURL}/v2/stocks/{symbol}/quotes/latest
//   - Auth: APCA-API-KEY-ID / APCA-API-SECRET-KEY headers
//   - Rate limit: 200 req/min (≈ 300ms/request) on the free tier
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const alpacaDataRateLimitInterval = 300 * time.Millisecond

// AlpacaDataConfig holds configuration for the vendor market-data client.
type AlpacaDataConfig struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
}

// AlpacaDataSource implements Source against the vendor's market-data API.
type AlpacaDataSource struct {
	config AlpacaDataConfig
	client *http.Client

	rateMu      sync.Mutex
	lastRequest time.Time
}

// NewAlpacaDataSource creates a new vendor market-data source.
func NewAlpacaDataSource(cfg AlpacaDataConfig) (*AlpacaDataSource, error) {
	if cfg.KeyID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("alpaca data: key_id and secret_key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.alpaca.markets"
	}
	return &AlpacaDataSource{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type alpacaBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    int64   `json:"v"`
}

type alpacaBarsResponse struct {
	Bars          []alpacaBar `json:"bars"`
	NextPageToken string      `json:"next_page_token"`
}

type alpacaQuote struct {
	BidPrice float64 `json:"bp"`
	AskPrice float64 `json:"ap"`
}

type alpacaQuoteResponse struct {
	Quote alpacaQuote `json:"quote"`
}

// FetchHistory implements Source. period is a duration string ("1y", "1mo",
// "1d") measured back from now; interval selects the vendor timeframe
// ("1d" maps to "1Day", "1m" to "1Min").
func (a *AlpacaDataSource) FetchHistory(ctx context.Context, symbol, period, interval string) (BarSeries, error) {
	start, err := periodStart(period)
	if err != nil {
		return nil, err
	}
	timeframe := alpacaTimeframe(interval)

	a.throttle()

	q := url.Values{}
	q.Set("timeframe", timeframe)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", time.Now().UTC().Format(time.RFC3339))
	q.Set("adjustment", "raw")
	q.Set("limit", "10000")

	reqURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", a.config.BaseURL, symbol, q.Encode())

	body, err := a.doGet(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}

	var resp alpacaBarsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse bars response for %s: %w", symbol, err)
	}

	series := make(BarSeries, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, err := time.Parse(time.RFC3339, b.Timestamp)
		if err != nil {
			continue
		}
		series = append(series, Bar{
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return series, nil
}

// FetchQuote implements Source.
func (a *AlpacaDataSource) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	a.throttle()

	reqURL := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", a.config.BaseURL, symbol)
	body, err := a.doGet(ctx, reqURL)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}

	var resp alpacaQuoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Quote{}, fmt.Errorf("parse quote response for %s: %w", symbol, err)
	}

	return Quote{Bid: resp.Quote.BidPrice, Ask: resp.Quote.AskPrice}, nil
}

func (a *AlpacaDataSource) doGet(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", a.config.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.config.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("authentication failed (401): check key_id and secret_key")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429): slow down requests")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor API error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (a *AlpacaDataSource) throttle() {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	elapsed := time.Since(a.lastRequest)
	if elapsed < alpacaDataRateLimitInterval {
		time.Sleep(alpacaDataRateLimitInterval - elapsed)
	}
	a.lastRequest = time.Now()
}

// periodStart converts a duration string ("1y", "6mo", "1d") into a start
// time measured back from now.
func periodStart(period string) (time.Time, error) {
	if len(period) < 2 {
		return time.Time{}, fmt.Errorf("invalid period %q", period)
	}
	unit := period[len(period)-1:]
	if period[len(period)-2:] == "mo" {
		unit = "mo"
	}
	numPart := period[:len(period)-len(unit)]
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}

	now := time.Now()
	switch unit {
	case "d":
		return now.AddDate(0, 0, -n), nil
	case "mo":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid period unit %q", unit)
	}
}

func alpacaTimeframe(interval string) string {
	switch interval {
	case "1m":
		return "1Min"
	case "1h":
		return "1Hour"
	default:
		return "1Day"
	}
}
