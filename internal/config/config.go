// Package config provides application-wide configuration management.
// All configuration is loaded from files and environment variables.
// No configuration is hardcoded in strategy or broker logic.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Mode defines whether the system runs in paper or live trading mode.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Config holds all system configuration.
// Loaded once at startup and passed as read-only to all components.
type Config struct {
	// ActiveBroker selects which broker implementation to use (e.g. "alpaca", "paper").
	ActiveBroker string `json:"active_broker"`

	// TradingMode controls whether orders are actually placed (live) or simulated (paper).
	TradingMode Mode `json:"trading_mode"`

	// Capital is the total capital available for trading (USD).
	Capital float64 `json:"capital"`

	// StrategyAllocations is the fixed per-strategy capital-allocation split,
	// keyed by strategy ID ("nuclear", "tecl"). Must sum to 1.0 +/- 0.01.
	StrategyAllocations map[string]float64 `json:"strategy_allocations"`

	// TopNNuclear is the Nuclear portfolio's top-N constituent count.
	TopNNuclear int `json:"top_n_nuclear"`

	// Rebalance holds the rebalancing executor and order-placement parameters.
	Rebalance RebalanceConfig `json:"rebalance"`

	// CacheDurationSec is the market data provider's TTL, in seconds.
	CacheDurationSec int `json:"cache_duration_sec"`

	// Scheduler holds the tick-loop parameters.
	Scheduler SchedulerConfig `json:"scheduler"`

	// CircuitBreaker holds the continuous-mode fail-stop parameters.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`

	// Paths for log and reference-data files.
	Paths PathsConfig `json:"paths"`

	// Broker-specific configuration (API keys, endpoints, etc.).
	BrokerConfig map[string]json.RawMessage `json:"broker_config"`

	// Database connection string.
	DatabaseURL string `json:"database_url"`

	// EventsAddr is the bind address for the operator-facing WebSocket event
	// server (§6, §11), e.g. ":8090". Empty disables it.
	EventsAddr string `json:"events_addr"`
}

// RebalanceConfig holds the §4.7/§4.7.1 rebalancing and order-placement
// parameters.
type RebalanceConfig struct {
	SlippageBps       float64 `json:"slippage_bps"`
	PollTimeoutSec    int     `json:"poll_timeout_sec"`
	PollIntervalSec   int     `json:"poll_interval_sec"`
	MaxWaitTimeSec    int     `json:"max_wait_time_sec"`
	MaxRetries        int     `json:"max_retries"`
	IgnoreMarketHours bool    `json:"ignore_market_hours"`
}

// SchedulerConfig holds the tick-loop's cadence and fail-stop threshold.
type SchedulerConfig struct {
	IntervalMinutes int `json:"interval_minutes"`
	MaxErrors       int `json:"max_errors"`
}

// CircuitBreakerConfig holds the continuous-mode fail-stop/cooldown
// parameters (§5, §7).
type CircuitBreakerConfig struct {
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	MaxHourlyFailures      int `json:"max_hourly_failures"`
	CooldownMinutes        int `json:"cooldown_minutes"`
}

// PathsConfig defines filesystem paths for reference data and append-only
// logs (§6).
type PathsConfig struct {
	UniverseFile         string `json:"universe_file"`
	CalendarHolidaysFile string `json:"calendar_holidays_file"`
	ExecutionLogPath     string `json:"execution_log_path"`
	AlertLogPath         string `json:"alert_log_path"`
	DashboardExportPath  string `json:"dashboard_export_path"`
}

// Load reads configuration from a JSON file, applies environment variable
// overrides, fills in documented defaults, and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", absPath, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse json: %w", err)
	}

	// Environment variable overrides.
	if v := os.Getenv("ALGO_TRADING_MODE"); v != "" {
		cfg.TradingMode = Mode(v)
	}
	if v := os.Getenv("ALGO_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ALGO_ACTIVE_BROKER"); v != "" {
		cfg.ActiveBroker = v
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in the spec's documented defaults for any zero-value
// field the config file left unset.
func (c *Config) applyDefaults() {
	if c.TopNNuclear == 0 {
		c.TopNNuclear = 3
	}
	if len(c.StrategyAllocations) == 0 {
		c.StrategyAllocations = map[string]float64{"nuclear": 0.5, "tecl": 0.5}
	}
	if c.Rebalance.SlippageBps == 0 {
		c.Rebalance.SlippageBps = 0.3
	}
	if c.Rebalance.PollTimeoutSec == 0 {
		c.Rebalance.PollTimeoutSec = 30
	}
	if c.Rebalance.PollIntervalSec == 0 {
		c.Rebalance.PollIntervalSec = 2
	}
	if c.Rebalance.MaxWaitTimeSec == 0 {
		c.Rebalance.MaxWaitTimeSec = 60
	}
	if c.Rebalance.MaxRetries == 0 {
		c.Rebalance.MaxRetries = 3
	}
	if c.CacheDurationSec == 0 {
		c.CacheDurationSec = 900
	}
	if c.Scheduler.IntervalMinutes == 0 {
		c.Scheduler.IntervalMinutes = 15
	}
	if c.Scheduler.MaxErrors == 0 {
		c.Scheduler.MaxErrors = 5
	}
	if c.CircuitBreaker.MaxConsecutiveFailures == 0 {
		c.CircuitBreaker.MaxConsecutiveFailures = 3
	}
	if c.CircuitBreaker.MaxHourlyFailures == 0 {
		c.CircuitBreaker.MaxHourlyFailures = 10
	}
	if c.CircuitBreaker.CooldownMinutes == 0 {
		c.CircuitBreaker.CooldownMinutes = 5
	}
}

// Validate checks that all required configuration fields are present and sane.
func (c *Config) Validate() error {
	if c.ActiveBroker == "" {
		return fmt.Errorf("active_broker is required")
	}
	if c.TradingMode != ModePaper && c.TradingMode != ModeLive {
		return fmt.Errorf("trading_mode must be 'paper' or 'live', got %q", c.TradingMode)
	}
	if c.Capital <= 0 {
		return fmt.Errorf("capital must be positive, got %f", c.Capital)
	}

	var allocationSum float64
	for _, w := range c.StrategyAllocations {
		allocationSum += w
	}
	if math.Abs(allocationSum-1.0) > 0.01 {
		return fmt.Errorf("strategy_allocations must sum to 1.0 (+/- 0.01), got %f", allocationSum)
	}
	if c.TopNNuclear <= 0 {
		return fmt.Errorf("top_n_nuclear must be positive, got %d", c.TopNNuclear)
	}
	if c.Rebalance.MaxRetries < 0 {
		return fmt.Errorf("rebalance.max_retries must be non-negative, got %d", c.Rebalance.MaxRetries)
	}
	if c.CacheDurationSec <= 0 {
		return fmt.Errorf("cache_duration_sec must be positive, got %d", c.CacheDurationSec)
	}
	if c.Scheduler.MaxErrors <= 0 {
		return fmt.Errorf("scheduler.max_errors must be positive, got %d", c.Scheduler.MaxErrors)
	}
	if c.Paths.ExecutionLogPath == "" {
		return fmt.Errorf("paths.execution_log_path is required")
	}
	if c.Paths.AlertLogPath == "" {
		return fmt.Errorf("paths.alert_log_path is required")
	}

	// Live mode has stricter requirements to prevent accidental real trading.
	if c.TradingMode == ModeLive {
		if err := c.validateLiveMode(); err != nil {
			return fmt.Errorf("live mode: %w", err)
		}
	}

	return nil
}

// validateLiveMode enforces extra safety checks when running with real money.
func (c *Config) validateLiveMode() error {
	// Broker config must exist for the active broker.
	if c.BrokerConfig == nil {
		return fmt.Errorf("broker_config is required for live trading")
	}
	if _, ok := c.BrokerConfig[c.ActiveBroker]; !ok {
		return fmt.Errorf("broker_config[%q] is required for live trading", c.ActiveBroker)
	}

	// Safety cap: live orders must always respect exchange hours. Ignoring
	// market hours in live mode would queue market orders against a closed
	// exchange with no chance to review the fill.
	if c.Rebalance.IgnoreMarketHours {
		return fmt.Errorf("rebalance.ignore_market_hours cannot be true in live mode")
	}

	// Safety cap: slippage tolerance must stay tight in live mode.
	if c.Rebalance.SlippageBps > 2.0 {
		return fmt.Errorf("rebalance.slippage_bps cannot exceed 2.0 in live mode (got %.2f)", c.Rebalance.SlippageBps)
	}

	// Safety cap: the circuit breaker must trip quickly in live mode.
	if c.CircuitBreaker.MaxConsecutiveFailures > 5 {
		return fmt.Errorf("circuit_breaker.max_consecutive_failures cannot exceed 5 in live mode (got %d)", c.CircuitBreaker.MaxConsecutiveFailures)
	}

	// Live trades must be persisted; paper mode may run without a database.
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required for live trading")
	}

	return nil
}
