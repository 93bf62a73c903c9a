package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nitinkhare/algoTradingAgent/internal/broker"
	"github.com/nitinkhare/algoTradingAgent/internal/config"
	"github.com/nitinkhare/algoTradingAgent/internal/manager"
	"github.com/nitinkhare/algoTradingAgent/internal/market"
	"github.com/nitinkhare/algoTradingAgent/internal/rebalance"
	"github.com/nitinkhare/algoTradingAgent/internal/risk"
	"github.com/nitinkhare/algoTradingAgent/internal/strategy"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

// ────────────────────────────────────────────────────────────────────
// buildBroker / buildMarketProvider
// ────────────────────────────────────────────────────────────────────

func TestBuildBroker_PaperMode(t *testing.T) {
	cfg := &config.Config{TradingMode: config.ModePaper, Capital: 100000}
	b, err := buildBroker(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*broker.PaperBroker); !ok {
		t.Errorf("expected *broker.PaperBroker, got %T", b)
	}
}

func TestBuildBroker_LiveMode_MissingConfig(t *testing.T) {
	cfg := &config.Config{TradingMode: config.ModeLive, ActiveBroker: "alpaca"}
	if _, err := buildBroker(cfg); err == nil {
		t.Error("expected error for missing broker_config entry")
	}
}

func TestBuildBroker_LiveMode_Alpaca(t *testing.T) {
	cfg := &config.Config{
		TradingMode:  config.ModeLive,
		ActiveBroker: "alpaca",
		BrokerConfig: map[string]json.RawMessage{
			"alpaca": json.RawMessage(`{"key_id":"k","secret_key":"s"}`),
		},
	}
	b, err := buildBroker(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*broker.AlpacaBroker); !ok {
		t.Errorf("expected *broker.AlpacaBroker, got %T", b)
	}
}

func TestBuildMarketProvider_MissingCredentials(t *testing.T) {
	cfg := &config.Config{ActiveBroker: "alpaca", CacheDurationSec: 900}
	if _, err := buildMarketProvider(cfg, testLogger()); err == nil {
		t.Error("expected error when no market data credentials are configured")
	}
}

func TestBuildMarketProvider_ValidCredentials(t *testing.T) {
	cfg := &config.Config{
		ActiveBroker:     "alpaca",
		CacheDurationSec: 900,
		BrokerConfig: map[string]json.RawMessage{
			"alpaca": json.RawMessage(`{"key_id":"k","secret_key":"s"}`),
		},
	}
	p, err := buildMarketProvider(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Error("expected non-nil provider")
	}
}

func TestBuildMarketProvider_FallsBackToActiveBrokerKey(t *testing.T) {
	cfg := &config.Config{
		ActiveBroker:     "custom",
		CacheDurationSec: 900,
		BrokerConfig: map[string]json.RawMessage{
			"custom": json.RawMessage(`{"key_id":"k","secret_key":"s"}`),
		},
	}
	if _, err := buildMarketProvider(cfg, testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ────────────────────────────────────────────────────────────────────
// JSON-lines / dashboard export writers
// ────────────────────────────────────────────────────────────────────

func TestAppendJSONLine_CreatesAndAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "executions.jsonl")

	if err := appendJSONLine(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := appendJSONLine(path, map[string]int{"a": 2}); err != nil {
		t.Fatalf("second append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := splitLines(string(data))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	var first map[string]int
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first["a"] != 1 {
		t.Errorf("expected a=1, got %d", first["a"])
	}
}

func TestAppendJSONLine_EmptyPathIsNoOp(t *testing.T) {
	if err := appendJSONLine("", map[string]int{"a": 1}); err != nil {
		t.Errorf("expected no error for empty path, got %v", err)
	}
}

func TestWriteJSONFile_NewestWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashboard.json")

	if err := writeJSONFile(path, map[string]int{"tick": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := writeJSONFile(path, map[string]int{"tick": 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["tick"] != 2 {
		t.Errorf("expected newest value 2, got %d", got["tick"])
	}

	// No leftover temp file.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temp file to be removed, stat err = %v", err)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			if i > start {
				lines = append(lines, s[start:i])
			}
			start = i + 1
		}
	}
	return lines
}

// ────────────────────────────────────────────────────────────────────
// runTick end-to-end against a paper broker and a fake market data source
// ────────────────────────────────────────────────────────────────────

// fakeSource returns a flat, mildly-trending synthetic history for any
// symbol, so the strategy engines have enough indicator input to run
// without panicking, without depending on network access.
type fakeSource struct{}

func (f *fakeSource) FetchHistory(_ context.Context, symbol, _, _ string) (market.BarSeries, error) {
	bars := make(market.BarSeries, 250)
	base := 100.0
	now := time.Now()
	for i := range bars {
		price := base + float64(i)*0.05
		bars[i] = market.Bar{
			Timestamp: now.AddDate(0, 0, i-250),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return bars, nil
}

func (f *fakeSource) FetchQuote(_ context.Context, symbol string) (market.Quote, error) {
	return market.Quote{Bid: 99.5, Ask: 100.5}, nil
}

func buildTestTickDeps(t *testing.T, paperCash float64) *tickDeps {
	t.Helper()
	logger := testLogger()

	provider := market.NewProvider(&fakeSource{}, time.Minute, logger)
	nuclear := strategy.NewNuclearEngine(3)
	tecl := strategy.NewTECLEngine()
	mgr, err := manager.New(provider, nuclear, tecl, manager.Allocations{Nuclear: 0.5, TECL: 0.5}, 3, logger)
	if err != nil {
		t.Fatalf("manager.New: %v", err)
	}

	pb := broker.NewPaperBroker(paperCash)
	executor := rebalance.New(pb, rebalance.DefaultConfig(), logger)

	dir := t.TempDir()
	cfg := &config.Config{
		TradingMode: config.ModePaper,
		Capital:     paperCash,
		StrategyAllocations: map[string]float64{
			"nuclear": 0.5, "tecl": 0.5,
		},
		Paths: config.PathsConfig{
			ExecutionLogPath:    filepath.Join(dir, "executions.jsonl"),
			AlertLogPath:        filepath.Join(dir, "alerts.jsonl"),
			DashboardExportPath: filepath.Join(dir, "dashboard.json"),
		},
	}

	return &tickDeps{
		cfg:      cfg,
		logger:   logger,
		broker:   pb,
		manager:  mgr,
		executor: executor,
	}
}

func TestRunTick_PaperBroker_NoQuotesSkipsOrdersButSucceeds(t *testing.T) {
	deps := buildTestTickDeps(t, 100000)

	if err := deps.runTick(context.Background()); err != nil {
		t.Fatalf("runTick: %v", err)
	}

	data, err := os.ReadFile(deps.cfg.Paths.ExecutionLogPath)
	if err != nil {
		t.Fatalf("expected execution log to exist: %v", err)
	}
	var entry executionLogEntry
	lines := splitLines(string(data))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one execution log line, got %d", len(lines))
	}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal execution log entry: %v", err)
	}
	if !entry.PaperTrading {
		t.Error("expected paper_trading=true")
	}
	if entry.AccountValue != 100000 {
		t.Errorf("expected account_value=100000 (no fills without quotes), got %.2f", entry.AccountValue)
	}
	if len(entry.TargetPortfolio) == 0 {
		t.Error("expected a non-empty target portfolio")
	}

	if _, err := os.Stat(deps.cfg.Paths.DashboardExportPath); err != nil {
		t.Errorf("expected dashboard export to exist: %v", err)
	}
}

func TestRunTick_CircuitBreakerTripped_SkipsTickWithoutTouchingBroker(t *testing.T) {
	deps := buildTestTickDeps(t, 100000)
	cb := risk.NewCircuitBreaker(config.CircuitBreakerConfig{MaxConsecutiveFailures: 1}, testLogger())
	cb.RecordFailure("seeded failure")
	if !cb.IsTripped() {
		t.Fatal("expected breaker to be tripped after seeding")
	}
	deps.circuit = cb
	deps.broker = &erroringBroker{Broker: deps.broker, failAccount: true} // would blow up if ever called

	if err := deps.runTick(context.Background()); err == nil {
		t.Error("expected runTick to return an error while the breaker is tripped")
	}

	data, err := os.ReadFile(deps.cfg.Paths.DashboardExportPath)
	if err != nil {
		t.Fatalf("expected dashboard export to exist: %v", err)
	}
	var export dashboardExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal dashboard export: %v", err)
	}
	if export.Success {
		t.Error("expected success=false while the breaker is tripped")
	}
}

func TestRunTick_AccountFetchFailureAbortsTick(t *testing.T) {
	deps := buildTestTickDeps(t, 100000)
	deps.broker = &erroringBroker{Broker: deps.broker, failAccount: true}

	if err := deps.runTick(context.Background()); err == nil {
		t.Error("expected error when account fetch fails")
	}
}

// erroringBroker wraps a real broker and forces specific calls to fail, to
// exercise §7's "abort the tick" error paths without a live vendor.
type erroringBroker struct {
	broker.Broker
	failAccount bool
}

func (e *erroringBroker) Account(ctx context.Context) (broker.Account, error) {
	if e.failAccount {
		return broker.Account{}, errAccountUnavailable
	}
	return e.Broker.Account(ctx)
}

var errAccountUnavailable = &testError{"account unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

// ────────────────────────────────────────────────────────────────────
// runStatus smoke test
// ────────────────────────────────────────────────────────────────────

func TestRunStatus_DoesNotPanic(t *testing.T) {
	cal := market.NewCalendarFromHolidays(map[string]string{})
	pb := broker.NewPaperBroker(50000)
	cfg := &config.Config{ActiveBroker: "paper", TradingMode: config.ModePaper}
	cb := risk.NewCircuitBreaker(cfg.CircuitBreaker, testLogger())
	runStatus(context.Background(), testLogger(), cal, pb, cfg, cb)
}
