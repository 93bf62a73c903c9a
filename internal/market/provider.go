// Package market - provider.go implements the TTL-cached market data
// provider described by the spec as the Market Data Provider component.
//
// Design rules (from spec):
//   - GetHistory never raises: a fetch failure yields an empty series.
//   - GetCurrentPrice never raises: a fetch failure yields (0, false).
//   - Cache is keyed by (symbol, period, interval); a hit returns the
//     stored series unchanged, a miss fetches and stores (now, series).
//   - Cache eviction is TTL-expiry only — there is no capacity eviction.
package market

import (
	"context"
	"log"
	"sync"
	"time"
)

// Source fetches bars and quotes from an upstream vendor. Implementations
// must not cache: caching is the Provider's job, so that every Source can
// be wrapped uniformly.
type Source interface {
	FetchHistory(ctx context.Context, symbol, period, interval string) (BarSeries, error)
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}

type cacheKey struct {
	symbol   string
	period   string
	interval string
}

type cacheEntry struct {
	fetchedAt time.Time
	series    BarSeries
}

// Provider is the TTL-cached facade strategies and the strategy manager use
// for market data. It never returns an error: failures are logged and
// degrade to an empty series / missing price, matching §4.1 of the spec.
type Provider struct {
	source Source
	ttl    time.Duration
	logger *log.Logger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewProvider creates a Provider backed by source, caching fetched series
// for ttl before they are considered stale.
func NewProvider(source Source, ttl time.Duration, logger *log.Logger) *Provider {
	return &Provider{
		source: source,
		ttl:    ttl,
		logger: logger,
		cache:  make(map[cacheKey]cacheEntry),
	}
}

// GetHistory returns the requested history, using the TTL cache. On fetch
// failure it logs and returns an empty series — callers must tolerate this.
func (p *Provider) GetHistory(ctx context.Context, symbol, period, interval string) BarSeries {
	key := cacheKey{symbol: symbol, period: period, interval: interval}

	p.mu.Lock()
	if entry, ok := p.cache[key]; ok && time.Since(entry.fetchedAt) < p.ttl {
		p.mu.Unlock()
		return entry.series
	}
	p.mu.Unlock()

	series, err := p.source.FetchHistory(ctx, symbol, period, interval)
	if err != nil {
		p.logger.Printf("market: fetch history %s [%s/%s] failed: %v", symbol, period, interval, err)
		return BarSeries{}
	}

	p.mu.Lock()
	p.cache[key] = cacheEntry{fetchedAt: time.Now(), series: series}
	p.mu.Unlock()

	return series
}

// GetCurrentPrice returns the broker mid-quote for symbol, or (0, false) on
// any failure or undefined mid (see Quote.Mid).
func (p *Provider) GetCurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	quote, err := p.source.FetchQuote(ctx, symbol)
	if err != nil {
		p.logger.Printf("market: fetch quote %s failed: %v", symbol, err)
		return 0, false
	}
	return quote.Mid()
}
