// Package main is the entry point for the algoTradingAgent engine.
//
// The engine:
//  1. Loads configuration
//  2. Initializes all components (broker, market data, storage, calendar,
//     strategy engines, circuit breaker)
//  3. Runs the Strategy Manager (Nuclear + TECL) against the combined
//     symbol universe to produce a consolidated target portfolio
//  4. Rebalances the brokerage account toward that target via the
//     Rebalancing Executor
//  5. Logs every tick to the append-only execution/alert logs, an optional
//     Postgres store, and an optional operator event stream
//
// Modes:
//   - "status":     print current system and market status, then exit
//   - "tick":       run exactly one evaluate-and-rebalance tick, then exit
//   - "continuous": run ticks on the scheduler's fixed interval until
//     stopped or the circuit breaker trips
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/nitinkhare/algoTradingAgent/internal/broker"
	"github.com/nitinkhare/algoTradingAgent/internal/config"
	"github.com/nitinkhare/algoTradingAgent/internal/events"
	"github.com/nitinkhare/algoTradingAgent/internal/manager"
	"github.com/nitinkhare/algoTradingAgent/internal/market"
	"github.com/nitinkhare/algoTradingAgent/internal/rebalance"
	"github.com/nitinkhare/algoTradingAgent/internal/risk"
	"github.com/nitinkhare/algoTradingAgent/internal/scheduler"
	"github.com/nitinkhare/algoTradingAgent/internal/storage"
	"github.com/nitinkhare/algoTradingAgent/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	mode := flag.String("mode", "status", "run mode: status | tick | continuous")
	confirmLive := flag.Bool("confirm-live", false, "required safety flag to run in live trading mode")
	flag.Parse()

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Printf("config loaded: broker=%s mode=%s capital=%.2f", cfg.ActiveBroker, cfg.TradingMode, cfg.Capital)

	// ── Live mode safety gate ──
	// Both --confirm-live flag AND ALGO_LIVE_CONFIRMED=true env var are
	// required to start in live mode. This prevents accidental live trading.
	if cfg.TradingMode == config.ModeLive {
		envConfirmed := os.Getenv("ALGO_LIVE_CONFIRMED") == "true"
		if !*confirmLive || !envConfirmed {
			fmt.Fprintln(os.Stderr, "")
			fmt.Fprintln(os.Stderr, "  ╔═══════════════════════════════════════════════════════════╗")
			fmt.Fprintln(os.Stderr, "  ║                    ⚠  LIVE MODE BLOCKED  ⚠                ║")
			fmt.Fprintln(os.Stderr, "  ╠═══════════════════════════════════════════════════════════╣")
			fmt.Fprintln(os.Stderr, "  ║  Live trading requires TWO explicit confirmations:       ║")
			fmt.Fprintln(os.Stderr, "  ║                                                           ║")
			fmt.Fprintln(os.Stderr, "  ║  1. CLI flag:   --confirm-live                            ║")
			fmt.Fprintln(os.Stderr, "  ║  2. Env var:    ALGO_LIVE_CONFIRMED=true                  ║")
			fmt.Fprintln(os.Stderr, "  ║                                                           ║")
			fmt.Fprintln(os.Stderr, "  ║  Example:                                                 ║")
			fmt.Fprintln(os.Stderr, "  ║  ALGO_LIVE_CONFIRMED=true go run ./cmd/engine \\            ║")
			fmt.Fprintln(os.Stderr, "  ║    --mode continuous --confirm-live                       ║")
			fmt.Fprintln(os.Stderr, "  ╚═══════════════════════════════════════════════════════════╝")
			fmt.Fprintln(os.Stderr, "")
			if !*confirmLive {
				fmt.Fprintln(os.Stderr, "  MISSING: --confirm-live flag")
			}
			if !envConfirmed {
				fmt.Fprintln(os.Stderr, "  MISSING: ALGO_LIVE_CONFIRMED=true environment variable")
			}
			fmt.Fprintln(os.Stderr, "")
			os.Exit(1)
		}
		logger.Println("LIVE MODE ACTIVE — real orders will be placed on the exchange")
	} else {
		logger.Println("PAPER MODE — simulated orders only, no real money at risk")
	}

	// Initialize market calendar.
	cal, err := market.NewCalendar(cfg.Paths.CalendarHolidaysFile)
	if err != nil {
		logger.Fatalf("failed to load market calendar: %v", err)
	}

	// Initialize broker.
	activeBroker, err := buildBroker(cfg)
	if err != nil {
		logger.Fatalf("failed to initialize broker: %v", err)
	}
	if cfg.TradingMode == config.ModePaper {
		logger.Println("using PAPER broker")
	} else {
		logger.Printf("using LIVE broker: %s", cfg.ActiveBroker)
	}

	// Initialize market data provider (vendor history/quote fetches, TTL cached).
	provider, err := buildMarketProvider(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to initialize market data provider: %v", err)
	}

	// Initialize strategy engines and the manager that runs both each tick.
	nuclear := strategy.NewNuclearEngine(cfg.TopNNuclear)
	tecl := strategy.NewTECLEngine()
	allocations := manager.Allocations{
		Nuclear: cfg.StrategyAllocations["nuclear"],
		TECL:    cfg.StrategyAllocations["tecl"],
	}
	mgr, err := manager.New(provider, nuclear, tecl, allocations, cfg.TopNNuclear, logger)
	if err != nil {
		logger.Fatalf("failed to initialize strategy manager: %v", err)
	}

	// Initialize the rebalancing executor.
	rebalanceCfg := rebalance.Config{
		SlippageBps:       cfg.Rebalance.SlippageBps,
		PollTimeoutSec:    cfg.Rebalance.PollTimeoutSec,
		PollIntervalSec:   cfg.Rebalance.PollIntervalSec,
		MaxWaitTimeSec:    cfg.Rebalance.MaxWaitTimeSec,
		MaxRetries:        cfg.Rebalance.MaxRetries,
		IgnoreMarketHours: cfg.Rebalance.IgnoreMarketHours,
	}
	executor := rebalance.New(activeBroker, rebalanceCfg, logger)

	// Initialize storage (optional in paper mode — engine works from the
	// JSON-lines logs alone without a database; live mode requires one).
	var store *storage.PostgresStore
	if cfg.DatabaseURL != "" {
		s, err := storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Printf("WARNING: database not available: %v — persistence disabled", err)
		} else {
			store = s
			defer store.Close()
			logger.Println("database connected — tick/signal/trade persistence enabled")
		}
	}

	// Initialize the operator event stream (optional, ambient, never blocks
	// the tick loop). The broadcaster itself starts whenever either a
	// database (to relay NOTIFYs) or an events address (to serve them over
	// WebSocket) is configured.
	var broadcaster *events.Broadcaster
	if cfg.DatabaseURL != "" || cfg.EventsAddr != "" {
		broadcaster = events.NewBroadcaster(logger)
		go broadcaster.Run()
		defer broadcaster.Shutdown()
	}

	if cfg.DatabaseURL != "" {
		listener := events.NewListener(cfg.DatabaseURL, broadcaster, logger)
		listenCtx, stopListener := context.WithCancel(context.Background())
		defer stopListener()
		listener.Start(listenCtx)
		defer listener.Stop()
	}

	if cfg.EventsAddr != "" {
		eventServer := events.NewServer(cfg.EventsAddr, broadcaster, logger)
		eventServer.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := eventServer.Shutdown(shutdownCtx); err != nil {
				logger.Printf("events: shutdown error: %v", err)
			}
		}()
	}

	// Initialize circuit breaker for automatic trading halt on repeated
	// tick failures (continuous mode only).
	cb := risk.NewCircuitBreaker(cfg.CircuitBreaker, logger)

	// Initialize the tick scheduler.
	sched := scheduler.New(cal, scheduler.Config{
		IntervalMinutes: cfg.Scheduler.IntervalMinutes,
		MaxErrors:       cfg.Scheduler.MaxErrors,
	}, logger)

	deps := &tickDeps{
		cfg:         cfg,
		logger:      logger,
		broker:      activeBroker,
		manager:     mgr,
		executor:    executor,
		store:       store,
		broadcaster: broadcaster,
		circuit:     cb,
	}

	switch *mode {
	case "status":
		runStatus(context.Background(), logger, cal, activeBroker, cfg, cb)

	case "tick":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if err := sched.RunOnce(ctx, deps.runTick); err != nil {
			logger.Fatalf("tick failed: %v", err)
		}

	case "continuous":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		logger.Printf("starting continuous mode: interval=%dm max_errors=%d", cfg.Scheduler.IntervalMinutes, cfg.Scheduler.MaxErrors)
		if err := sched.RunContinuous(ctx, deps.runTick); err != nil {
			logger.Fatalf("continuous mode stopped: %v", err)
		}

	default:
		logger.Fatalf("unknown mode %q: expected status | tick | continuous", *mode)
	}
}

// buildBroker constructs the active broker per §4.6: the teacher's own
// internal paper-trading ledger in paper mode, the registered vendor
// gateway in live mode.
func buildBroker(cfg *config.Config) (broker.Broker, error) {
	if cfg.TradingMode == config.ModePaper {
		return broker.NewPaperBroker(cfg.Capital), nil
	}
	brokerCfg, ok := cfg.BrokerConfig[cfg.ActiveBroker]
	if !ok {
		return nil, fmt.Errorf("no broker config found for %q", cfg.ActiveBroker)
	}
	return broker.New(cfg.ActiveBroker, brokerCfg)
}

// vendorCredentials is the subset of a broker_config entry the market-data
// vendor client needs. Market data and trade execution share the same
// vendor account, but the data API keys are read independently of which
// broker implementation is active (paper trading still needs real quotes).
type vendorCredentials struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

// buildMarketProvider constructs the cached market-data provider (C1) on
// top of the vendor data source. Credentials are read from broker_config,
// preferring an entry keyed "alpaca" and falling back to active_broker.
func buildMarketProvider(cfg *config.Config, logger *log.Logger) (*market.Provider, error) {
	raw, ok := cfg.BrokerConfig["alpaca"]
	if !ok {
		raw, ok = cfg.BrokerConfig[cfg.ActiveBroker]
	}
	if !ok {
		return nil, fmt.Errorf("no market data credentials found: set broker_config.alpaca (key_id, secret_key)")
	}
	var creds vendorCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parse market data credentials: %w", err)
	}
	source, err := market.NewAlpacaDataSource(market.AlpacaDataConfig{KeyID: creds.KeyID, SecretKey: creds.SecretKey})
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.CacheDurationSec) * time.Second
	return market.NewProvider(source, ttl, logger), nil
}

// runStatus prints current system and market status, then exits.
func runStatus(ctx context.Context, logger *log.Logger, cal *market.Calendar, b broker.Broker, cfg *config.Config, cb *risk.CircuitBreaker) {
	now := time.Now()
	fmt.Println("=== algoTradingAgent status ===")
	fmt.Printf("broker:        %s (%s)\n", cfg.ActiveBroker, cfg.TradingMode)
	fmt.Printf("trading day:   %v\n", cal.IsTradingDay(now))
	fmt.Printf("market open:   %v\n", cal.IsMarketOpen(now))
	if !cal.IsTradingDay(now) {
		if reason := cal.HolidayReason(now); reason != "" {
			fmt.Printf("holiday:       %s\n", reason)
		}
	}
	fmt.Printf("next session:  %s\n", cal.TimeUntilNextSession(now))

	if cb != nil {
		st := cb.Status()
		if st.Tripped {
			fmt.Printf("circuit:       TRIPPED (%s, cooldown remaining %s)\n", st.TripReason, st.CooldownRemaining.Round(time.Second))
		} else {
			fmt.Printf("circuit:       closed (consecutive=%d hourly=%d)\n", st.ConsecutiveFailures, st.HourlyFailures)
		}
	}

	account, err := b.Account(ctx)
	if err != nil {
		logger.Printf("failed to fetch account: %v", err)
		return
	}
	fmt.Printf("portfolio value: $%.2f\n", account.PortfolioValue)
	fmt.Printf("cash:            $%.2f\n", account.Cash)
	fmt.Printf("buying power:    $%.2f\n", account.BuyingPower)
	fmt.Printf("account status:  %s\n", account.Status)

	positions, err := b.Positions(ctx)
	if err != nil {
		logger.Printf("failed to fetch positions: %v", err)
		return
	}
	fmt.Printf("open positions:  %d\n", len(positions))
	symbols := make([]string, 0, len(positions))
	for s := range positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		p := positions[s]
		fmt.Printf("  %-8s qty=%.4f mv=$%.2f price=$%.2f\n", s, p.Quantity, p.MarketValue, p.CurrentPrice)
	}
}
