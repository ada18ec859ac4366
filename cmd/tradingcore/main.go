// Command tradingcore runs the delta-neutral funding-rate arbitrage
// control core: data plane, state store, reconciler, risk/strategy
// evaluation loop and execution engine, wired around a single configured
// exchange adapter. Grounded on a signal-driven run-loop composition root
// used elsewhere in this codebase, generalized from a Gin HTTP
// composition root to a bare headless worker (the introspection HTTP
// layer is out of scope here).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-core/internal/audit"
	"trading-core/internal/circuit"
	"trading-core/internal/dataplane"
	"trading-core/internal/engine"
	"trading-core/internal/exchange"
	"trading-core/internal/exchange/exchangetest"
	"trading-core/internal/exchange/pool"
	"trading-core/internal/execqueue"
	"trading-core/internal/metrics"
	"trading-core/internal/model"
	"trading-core/internal/obslog"
	"trading-core/internal/position"
	"trading-core/internal/ratelimit"
	"trading-core/internal/reconciler"
	"trading-core/internal/risk"
	"trading-core/internal/statestore"
	"trading-core/internal/strategy"
	"trading-core/pkg/config"

	"github.com/joho/godotenv"
)

const (
	exitOK           = 0
	exitConfigError  = 1
	exitStartupError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional .env-style config file (defaults to ./.env, CWD env vars)")
	strategyOverlayPath := flag.String("strategy-config", "", "optional YAML file overriding strategy thresholds")
	flag.Parse()
	if *configPath != "" {
		if err := godotenv.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "tradingcore: load config file:", err)
			return exitConfigError
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tradingcore: config error:", err)
		return exitConfigError
	}
	overlay, err := config.LoadStrategyOverlay(*strategyOverlayPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tradingcore: strategy overlay:", err)
		return exitConfigError
	}
	overlay.Apply(cfg)

	log := obslog.New(os.Stdout, "tradingcore")
	log.Info("starting", "symbols", cfg.Symbols, "dryRun", cfg.DryRun)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error(err, "startup failed")
		return exitStartupError
	}
	defer app.shutdown()

	app.start(ctx)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return exitOK
}

// closer is the narrow Close() contract *audit.SQLiteSink satisfies;
// audit.NullSink has no Close method, so shutdown type-asserts against
// this instead of requiring every Sink implementation to carry one.
type closer interface{ Close() error }

// application holds every long-lived component bootstrap wires together.
type application struct {
	log     *obslog.Logger
	store   *statestore.Store
	dp      *dataplane.DataPlane
	rec     *reconciler.Reconciler
	eng     *engine.Engine
	queue   *execqueue.Queue
	pool    *pool.Pool
	metrics *metrics.Metrics
	sink    audit.Sink
	cfg     *config.Config

	extSignal *strategy.ExternalSignalClient
}

func bootstrap(ctx context.Context, cfg *config.Config, log *obslog.Logger) (*application, error) {
	store := statestore.New()

	sink, err := buildAuditSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: audit sink: %w", err)
	}

	adapterFactory := func(key string) (exchange.Adapter, error) {
		return exchangetest.New(exchangetest.Config{
			FeeRateBps:  4,
			SlippageBps: 10,
		}), nil
	}
	adapterPool := pool.New(adapterFactory, pool.DefaultConfig())
	adapter, err := adapterPool.Get(ctx, "primary")
	if err != nil {
		return nil, fmt.Errorf("bootstrap: adapter pool: %w", err)
	}
	if !cfg.DryRun {
		log.Warn("no live venue adapter wired; running against the in-memory fake adapter regardless of DRY_RUN")
	}

	limiter := ratelimit.NewRegistry(cfg.RateLimitCapacity, cfg.RateLimitRefill)

	execBreaker := circuit.New(circuit.Config{
		Name:                "execution",
		ConsecutiveFailures: uint32(cfg.ExecConsecutiveFailures),
		Cooldown:            cfg.ExecCooldown,
		HalfOpenSuccesses:   uint32(cfg.ExecHalfOpenSuccesses),
	})

	reqBreaker := circuit.New(circuit.Config{
		Name:                "outbound_requests",
		ConsecutiveFailures: uint32(cfg.ReqConsecutiveFailures),
		Cooldown:            cfg.ReqCooldown,
		HalfOpenSuccesses:   uint32(cfg.ReqHalfOpenSuccesses),
	})
	adapter = exchange.WithRequestPolicy(adapter, limiter, reqBreaker, exchange.DefaultPolicyConfig())

	queue := execqueue.New(ctx, 32)

	limits := risk.DefaultLimits()
	limits.MaxPositionNotionalQuote = big.NewInt(cfg.MaxPositionNotionalQuote)
	limits.WarnPositionNotionalQuote = big.NewInt(cfg.WarnPositionNotionalQuote)
	limits.MaxLeverageBps = big.NewInt(cfg.MaxLeverageBps)
	limits.MaxDailyLossQuote = big.NewInt(cfg.MaxDailyLossQuote)
	limits.MaxDrawdownBps = big.NewInt(cfg.MaxDrawdownBps)
	limits.MinLiquidationDistBps = big.NewInt(cfg.MinLiquidationDistBps)
	limits.WarnLiquidationDistBps = big.NewInt(cfg.WarnLiquidationDistBps)
	limits.MaxMarginUtilBps = big.NewInt(cfg.MaxMarginUtilBps)
	limits.WarnMarginUtilBps = big.NewInt(cfg.WarnMarginUtilBps)

	evalRisk := func() risk.Result {
		snap := store.Snapshot()
		return risk.Evaluate(riskSnapshotFrom(snap), limits)
	}

	eng := engine.New(queue, adapter, store, execBreaker, sink, engine.Config{
		MaxSlippageBps:         cfg.MaxSlippageBps,
		MinLiquidityMultiplier: cfg.MinLiquidityMultiplier,
		OrderAckTimeout:        cfg.OrderAckTimeout,
		OrderFillTimeout:       cfg.OrderFillTimeout,
		MaxPartialFillRetries:  cfg.MaxPartialFillRetries,
		MaxDriftBps:            cfg.MaxDriftBps,
		BaseDecimals:           8,
	}, log.With("engine"), evalRisk)

	dp := dataplane.New(dataplane.Config{
		Symbols:             cfg.Symbols,
		DedupMaxSize:        4096,
		DedupMaxAge:         time.Minute,
		FundingPullInterval: cfg.FundingRefresh,
		AccountPullInterval: cfg.AccountRefresh,
		HealthCheckInterval: 5 * time.Second,
		Streams: []dataplane.StreamConfig{
			{Name: "ticker", ExpectedInterval: time.Second, StaleThreshold: cfg.TickerStale, Required: true},
			{Name: "funding", ExpectedInterval: cfg.FundingRefresh, StaleThreshold: cfg.FundingStale, Required: false},
		},
	}, adapter, store, log.With("dataplane"))

	rec := reconciler.New(adapterAsReconciler(adapter), store, cfg.Reconcile, reconciler.DefaultTolerance(), 8, log.With("reconciler"))

	m := metrics.New()

	var extSignal *strategy.ExternalSignalClient
	if cfg.EnableExternalSignal {
		extSignal, err = strategy.DialExternalSignal(cfg.ExternalSignalAddr)
		if err != nil {
			log.Error(err, "external signal source unavailable, falling back to built-in rule", "addr", cfg.ExternalSignalAddr)
			extSignal = nil
		}
	}

	return &application{
		log: log, store: store, dp: dp, rec: rec, eng: eng, queue: queue,
		pool: adapterPool, metrics: m, sink: sink, cfg: cfg,
		extSignal: extSignal,
	}, nil
}

func (a *application) start(ctx context.Context) {
	adapterPool := a.pool
	adapterPool.Start(ctx)

	if err := a.dp.Start(ctx); err != nil {
		a.log.Error(err, "dataplane start failed")
	}
	go a.rec.Start(ctx)
	go a.strategyLoop(ctx)
}

func (a *application) shutdown() {
	a.dp.Stop()
	a.pool.Stop()
	if a.extSignal != nil {
		_ = a.extSignal.Close()
	}
	if c, ok := a.sink.(closer); ok {
		_ = c.Close()
	}
	a.log.Info("shutdown complete")
}

// strategyLoop runs the evaluation tick: analyze the funding-rate trend,
// decide an intent, submit it to the engine's serial queue.
func (a *application) strategyLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.EvalTick)
	defer ticker.Stop()

	stratCfg := strategy.DefaultConfig()
	stratCfg.MinFundingRateBps = a.cfg.MinFundingRateBps
	stratCfg.ExitFundingRateBps = a.cfg.ExitFundingRateBps
	stratCfg.TrendWindow = a.cfg.TrendWindow
	stratCfg.TargetYieldBps = a.cfg.TargetYieldBps

	var fundingHistory []int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.IncrementTicks()
			snap := a.store.Snapshot()
			if snap.FundingRate == nil {
				continue
			}
			currentBps := snap.FundingRate.RateBps.Int64()
			fundingHistory = append(fundingHistory, currentBps)
			if len(fundingHistory) > stratCfg.TrendWindow {
				fundingHistory = fundingHistory[len(fundingHistory)-stratCfg.TrendWindow:]
			}
			trend := strategy.AnalyzeTrend(fundingHistory, stratCfg)
			riskResult := risk.Evaluate(riskSnapshotFrom(snap), risk.DefaultLimits())

			phase := a.eng.HedgeState().Phase
			holding := phase != model.HedgeIdle && phase != model.HedgeClosed
			sizeQuote := big.NewInt(a.cfg.MaxPositionNotionalQuote)
			intent := a.decide(ctx, a.cfg.Symbols[0], currentBps, trend, riskResult, holding, stratCfg, sizeQuote)
			if intent.Kind == strategy.IntentNoop {
				continue
			}
			a.metrics.IncrementSignals()
			job := a.eng.SubmitIntent(ctx, a.cfg.Symbols[0], intent)
			if job != nil {
				a.log.Info("submitted intent", "kind", intent.Kind, "jobID", job.ID)
			}
			a.metrics.SetPoolStats(a.pool.Stats())
		}
	}
}

// decide consults the optional external signal source first, falling back
// to the built-in funding-rate rule on any RPC failure or when no external
// source is configured.
func (a *application) decide(ctx context.Context, symbol string, currentBps int64, trend strategy.TrendAnalysis, riskResult risk.Result, holding bool, stratCfg strategy.Config, sizeQuote *big.Int) strategy.Intent {
	if a.extSignal != nil {
		riskLevel := "normal"
		if riskResult.Action != risk.ActionAllow {
			riskLevel = riskResult.Action.String()
		}
		intent, err := a.extSignal.Evaluate(ctx, symbol, currentBps, trend.MeanBps.Int64(), riskLevel)
		if err == nil {
			if intent.Kind == strategy.IntentEnterHedge && intent.SizeQuote == nil {
				intent.SizeQuote = sizeQuote
			}
			return intent
		}
		a.log.Warn("external signal source failed, falling back to built-in rule", "error", err.Error())
	}
	return strategy.Decide(currentBps, trend.MeanBps.Int64(), trend, riskResult, holding, 0, stratCfg, sizeQuote)
}

func buildAuditSink(cfg *config.Config) (audit.Sink, error) {
	if cfg.AuditDBPath == "" {
		return audit.NullSink{}, nil
	}
	return audit.OpenSQLiteSink(cfg.AuditDBPath)
}

// adapterAsReconciler narrows an exchange.Adapter down to the reconciler's
// local interface; every concrete exchange.Adapter (including the fake)
// implements GetBalances/GetPositions/GetOpenOrders, so this assertion
// never fails for an adapter sourced from the pool's Factory.
func adapterAsReconciler(a exchange.Adapter) reconciler.Adapter {
	return a.(reconciler.Adapter)
}

// riskSnapshotFrom reduces a BotState to the risk package's pure input,
// using the first open position (the core runs one symbol's hedge at a
// time) and the sum of every balance's TotalBase, across all assets and
// without price conversion, as a stand-in equity figure.
func riskSnapshotFrom(s *model.BotState) risk.Snapshot {
	snap := risk.Snapshot{
		EquityQuote:     big.NewInt(0),
		MarginUsedQuote: big.NewInt(0),
		DailyPnlQuote:   big.NewInt(0),
		PeakEquityQuote: big.NewInt(0),
	}
	for _, bal := range s.Balances {
		if bal.TotalBase != nil {
			snap.EquityQuote = new(big.Int).Add(snap.EquityQuote, bal.TotalBase)
		}
	}
	snap.PeakEquityQuote = snap.EquityQuote
	for _, pos := range s.Positions {
		p := pos
		snap.Position = &risk.PositionSnapshot{
			Side:                  p.Side,
			NotionalQuote:         notionalOf(&p),
			LeverageBps:           p.LeverageBps,
			MarkPriceQuote:        p.MarkPriceQuote,
			LiquidationPriceQuote: p.LiquidationPriceQuote,
		}
		if p.MarginQuote != nil {
			snap.MarginUsedQuote = p.MarginQuote
		}
		break
	}
	return snap
}

func notionalOf(p *model.Position) *big.Int {
	if p.SizeBase == nil || p.MarkPriceQuote == nil {
		return big.NewInt(0)
	}
	return position.NotionalQuote(p.SizeBase, p.MarkPriceQuote, 8)
}
