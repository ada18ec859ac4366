// Package config loads environment-driven settings for the control core,
// following the godotenv-plus-os.Getenv loader shape used throughout this
// codebase.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the core reads, per the configuration-keys
// contract: tick/refresh cadences, staleness windows, risk limits,
// strategy thresholds, slippage limits, execution timeouts, circuit
// breaker knobs, and rate-limit buckets.
type Config struct {
	// Exchange connectivity
	ExchangeTestnet bool
	APIKey          string
	APISecret       string
	Symbols         []string
	DryRun          bool

	// Cadences
	EvalTick       time.Duration
	FundingRefresh time.Duration
	AccountRefresh time.Duration
	Reconcile      time.Duration

	// Staleness windows
	TickerStale  time.Duration
	FundingStale time.Duration
	AccountStale time.Duration

	// Risk limits (defaults per the risk evaluator's limit table)
	MaxPositionNotionalQuote  int64
	WarnPositionNotionalQuote int64
	MaxLeverageBps            int64
	MaxDailyLossQuote         int64
	MaxDrawdownBps            int64
	MinLiquidationDistBps     int64
	WarnLiquidationDistBps    int64
	MaxMarginUtilBps          int64
	WarnMarginUtilBps         int64

	// Strategy thresholds
	MinFundingRateBps  int64
	ExitFundingRateBps int64
	TrendWindow        int
	TargetYieldBps     int64

	// Slippage
	MaxSlippageBps         int64
	WarnSlippageBps        int64
	MinLiquidityMultiplier int64

	// Execution
	OrderAckTimeout       time.Duration
	OrderFillTimeout      time.Duration
	MaxPartialFillRetries int
	MaxDriftBps           int64

	// Circuit breaker (execution)
	ExecConsecutiveFailures int
	ExecCooldown            time.Duration
	ExecHalfOpenSuccesses   int

	// Circuit breaker (outbound request policy)
	ReqConsecutiveFailures int
	ReqCooldown            time.Duration
	ReqHalfOpenSuccesses   int

	// Rate-limit buckets: namespace -> {capacity, refillPerSec}
	RateLimitCapacity map[string]int
	RateLimitRefill   map[string]float64

	// Persistence
	AuditDBPath string

	// gRPC external signal source (optional, domain-stack expansion)
	EnableExternalSignal bool
	ExternalSignalAddr   string
}

// Load reads environment variables (optionally via .env) into a Config,
// filling in the documented defaults for anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ExchangeTestnet: getBool("EXCHANGE_TESTNET", false),
		APIKey:          os.Getenv("EXCHANGE_API_KEY"),
		APISecret:       os.Getenv("EXCHANGE_API_SECRET"),
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "BTCUSDT")),
		DryRun:          getBool("DRY_RUN", false),

		EvalTick:       getDurationMs("EVAL_TICK_MS", 2000),
		FundingRefresh: getDurationMs("FUNDING_REFRESH_MS", 30_000),
		AccountRefresh: getDurationMs("ACCOUNT_REFRESH_MS", 30_000),
		Reconcile:      getDurationMs("RECONCILE_MS", 60_000),

		TickerStale:  getDurationMs("TICKER_STALE_MS", 5_000),
		FundingStale: getDurationMs("FUNDING_STALE_MS", 60_000),
		AccountStale: getDurationMs("ACCOUNT_STALE_MS", 45_000),

		MaxPositionNotionalQuote:  getInt64("MAX_POSITION_NOTIONAL_QUOTE", 10_000),
		WarnPositionNotionalQuote: getInt64("WARN_POSITION_NOTIONAL_QUOTE", 7_500),
		MaxLeverageBps:            getInt64("MAX_LEVERAGE_BPS", 30_000),
		MaxDailyLossQuote:         getInt64("MAX_DAILY_LOSS_QUOTE", 500),
		MaxDrawdownBps:            getInt64("MAX_DRAWDOWN_BPS", 1_000),
		MinLiquidationDistBps:     getInt64("MIN_LIQUIDATION_DIST_BPS", 2_000),
		WarnLiquidationDistBps:    getInt64("WARN_LIQUIDATION_DIST_BPS", 3_000),
		MaxMarginUtilBps:          getInt64("MAX_MARGIN_UTIL_BPS", 8_000),
		WarnMarginUtilBps:         getInt64("WARN_MARGIN_UTIL_BPS", 7_000),

		MinFundingRateBps:  getInt64("MIN_FUNDING_RATE_BPS", 10),
		ExitFundingRateBps: getInt64("EXIT_FUNDING_RATE_BPS", 5),
		TrendWindow:        int(getInt64("TREND_WINDOW", 24)),
		TargetYieldBps:     getInt64("TARGET_YIELD_BPS", 100),

		MaxSlippageBps:         getInt64("MAX_SLIPPAGE_BPS", 20),
		WarnSlippageBps:        getInt64("WARN_SLIPPAGE_BPS", 10),
		MinLiquidityMultiplier: getInt64("MIN_LIQUIDITY_MULTIPLIER", 2),

		OrderAckTimeout:       getDurationMs("ORDER_ACK_TIMEOUT_MS", 30_000),
		OrderFillTimeout:      getDurationMs("ORDER_FILL_TIMEOUT_MS", 60_000),
		MaxPartialFillRetries: int(getInt64("MAX_PARTIAL_FILL_RETRIES", 3)),
		MaxDriftBps:           getInt64("MAX_DRIFT_BPS", 50),

		ExecConsecutiveFailures: int(getInt64("EXEC_CONSECUTIVE_FAILURES", 2)),
		ExecCooldown:            getDurationMs("EXEC_COOLDOWN_MS", 30_000),
		ExecHalfOpenSuccesses:   int(getInt64("EXEC_HALF_OPEN_SUCCESSES", 1)),

		ReqConsecutiveFailures: int(getInt64("REQ_CONSECUTIVE_FAILURES", 5)),
		ReqCooldown:            getDurationMs("REQ_COOLDOWN_MS", 15_000),
		ReqHalfOpenSuccesses:   int(getInt64("REQ_HALF_OPEN_SUCCESSES", 1)),

		RateLimitCapacity: map[string]int{
			"public":  getEnvInt("RATE_LIMIT_PUBLIC_CAPACITY", 1200),
			"private": getEnvInt("RATE_LIMIT_PRIVATE_CAPACITY", 600),
			"orders":  getEnvInt("RATE_LIMIT_ORDERS_CAPACITY", 100),
			"account": getEnvInt("RATE_LIMIT_ACCOUNT_CAPACITY", 180),
		},
		RateLimitRefill: map[string]float64{
			"public":  getEnvFloat("RATE_LIMIT_PUBLIC_REFILL", 20),
			"private": getEnvFloat("RATE_LIMIT_PRIVATE_REFILL", 10),
			"orders":  getEnvFloat("RATE_LIMIT_ORDERS_REFILL", 5),
			"account": getEnvFloat("RATE_LIMIT_ACCOUNT_REFILL", 3),
		},

		AuditDBPath: getEnv("AUDIT_DB_PATH", "./data/audit.db"),

		EnableExternalSignal: getBool("ENABLE_EXTERNAL_SIGNAL", false),
		ExternalSignalAddr:   getEnv("EXTERNAL_SIGNAL_ADDR", "localhost:50051"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: at least one symbol is required")
	}
	if c.TickerStale < time.Second || c.TickerStale > time.Minute {
		return fmt.Errorf("config: TICKER_STALE_MS out of bounds [1s,60s]: %v", c.TickerStale)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	return int(getInt64(key, int64(def)))
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDurationMs(key string, defMs int64) time.Duration {
	return time.Duration(getInt64(key, defMs)) * time.Millisecond
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
