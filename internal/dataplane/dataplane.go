// DataPlane wires a concrete exchange.Adapter's typed subscriptions into
// the dedup cache and the per-stream health checker, and runs the periodic
// REST pullers (funding rate, account snapshot) the streaming channels
// don't cover. Subscription callbacks update the state store directly on
// the adapter's goroutine; they do not pass through the bounded
// InboundQueue defined in queue.go. A concrete Adapter
// implementation owns its own Transport (this package's single-flight
// connect / generation counter / reconnect sequence) internally; DataPlane
// itself only consumes the Adapter's already-decoded callbacks. Grounded
// on the composition shape of wiring a StreamClient's callbacks into
// state plus the sibling REST poller goroutines run alongside the
// stream.
package dataplane

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"trading-core/internal/exchange"
	"trading-core/internal/model"
	"trading-core/internal/obslog"
	"trading-core/internal/statestore"
)

// Config parameterizes a DataPlane instance.
type Config struct {
	Symbols             []string
	DedupMaxSize        int
	DedupMaxAge         time.Duration
	FundingPullInterval time.Duration
	AccountPullInterval time.Duration
	HealthCheckInterval time.Duration
	Streams             []StreamConfig
}

// DataPlane is the data-plane component: typed adapter subscriptions feed
// a dedup cache and a health checker, which in turn feed a shared state
// store; REST pullers fill in what the streams don't push.
type DataPlane struct {
	cfg     Config
	adapter exchange.Adapter
	store   *statestore.Store
	log     *obslog.Logger

	dedup  *DedupCache
	health *HealthChecker

	unsubscribe []func()
	cancel      context.CancelFunc
}

// New builds a DataPlane over adapter, publishing into store.
func New(cfg Config, adapter exchange.Adapter, store *statestore.Store, log *obslog.Logger) *DataPlane {
	dp := &DataPlane{cfg: cfg, adapter: adapter, store: store, log: log}

	dp.dedup = NewDedupCache(cfg.DedupMaxSize, cfg.DedupMaxAge)
	dp.health = NewHealthChecker(cfg.Streams, func(name string, unhealthy bool) {
		log.Warn("dataplane.stream.health_transition", "stream", name, "unhealthy", unhealthy)
	})

	return dp
}

// Start connects the adapter, issues the per-symbol subscriptions, and
// starts the health-check ticker and the periodic REST pullers.
func (dp *DataPlane) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	dp.cancel = cancel

	if err := dp.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("dataplane: connect: %w", err)
	}

	go dp.healthLoop(ctx)
	go dp.fundingPuller(ctx)
	go dp.accountPuller(ctx)

	unsubO, err := dp.adapter.SubscribeOrderUpdates(func(o exchange.ExchangeOrder, gen uint64) {
		key := fmt.Sprintf("order|%s|%s", o.ExchangeOrderID, o.Status)
		if dp.dedup.SeenBefore(key, time.Now()) {
			return
		}
		dp.health.Touch("orders", time.Now())
		dp.store.UpdateOrderFromExchange(o.ExchangeOrderID, o.Status, o.FilledQuantityBase, o.AvgFillPriceQuote)
	})
	if err != nil {
		dp.Stop()
		return fmt.Errorf("dataplane: subscribe order updates: %w", err)
	}
	dp.unsubscribe = append(dp.unsubscribe, unsubO)

	for _, sym := range dp.cfg.Symbols {
		sym := sym

		unsubT, err := dp.adapter.SubscribeTicker(sym, func(t model.Ticker, gen uint64) {
			key := fmt.Sprintf("ticker|%s|%d", sym, t.Timestamp.UnixNano())
			if dp.dedup.SeenBefore(key, time.Now()) {
				return
			}
			dp.health.Touch("ticker", time.Now())
			dp.store.UpdateTicker(t)
		})
		if err != nil {
			dp.Stop()
			return fmt.Errorf("dataplane: subscribe ticker %s: %w", sym, err)
		}
		dp.unsubscribe = append(dp.unsubscribe, unsubT)

		unsubM, err := dp.adapter.SubscribeMark(sym, func(symbol string, markPriceQuote *big.Int, gen uint64) {
			dp.health.Touch("mark", time.Now())
			dp.store.UpdateMarkPrice(symbol, markPriceQuote)
		})
		if err != nil {
			dp.Stop()
			return fmt.Errorf("dataplane: subscribe mark %s: %w", sym, err)
		}
		dp.unsubscribe = append(dp.unsubscribe, unsubM)
	}

	return nil
}

// Stop tears down subscriptions, disconnects the adapter, and stops the
// background loops.
func (dp *DataPlane) Stop() {
	for _, unsub := range dp.unsubscribe {
		unsub()
	}
	dp.unsubscribe = nil
	if dp.cancel != nil {
		dp.cancel()
	}
	_ = dp.adapter.Disconnect(context.Background())
	dp.store.SetWsConnected(false)
}

func (dp *DataPlane) healthLoop(ctx context.Context) {
	interval := dp.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dp.health.Check(now)
			dp.store.SetWsConnected(dp.adapter.IsConnected() && dp.health.RequiredStreamsHealthy())
		}
	}
}

func (dp *DataPlane) fundingPuller(ctx context.Context) {
	interval := dp.cfg.FundingPullInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range dp.cfg.Symbols {
				fr, err := dp.adapter.GetFundingRate(ctx, sym)
				if err != nil {
					dp.log.Warn("dataplane.funding_pull_error", "symbol", sym, "error", err.Error())
					continue
				}
				dp.health.Touch("funding", time.Now())
				dp.store.UpdateFundingRate(fr)
			}
		}
	}
}

func (dp *DataPlane) accountPuller(ctx context.Context) {
	interval := dp.cfg.AccountPullInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balances, err := dp.adapter.GetBalances(ctx)
			if err != nil {
				dp.log.Warn("dataplane.account_pull_error", "error", err.Error())
				continue
			}
			now := time.Now()
			dp.store.UpdateBalances(balances, now)

			positions, err := dp.adapter.GetPositions(ctx)
			if err != nil {
				dp.log.Warn("dataplane.account_pull_error", "error", err.Error())
				continue
			}
			dp.health.Touch("account", now)
			dp.store.UpdatePositions(positions, now)
		}
	}
}

// GlobalHealthy reports whether the data plane considers itself healthy.
func (dp *DataPlane) GlobalHealthy() bool { return dp.health.GlobalHealthy() }
