package engine

import (
	"context"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-core/internal/audit"
	"trading-core/internal/circuit"
	"trading-core/internal/exchange/exchangetest"
	"trading-core/internal/execqueue"
	"trading-core/internal/model"
	"trading-core/internal/obslog"
	"trading-core/internal/risk"
	"trading-core/internal/statestore"
	"trading-core/internal/strategy"
)

func testEngine(t *testing.T) (*Engine, *exchangetest.Fake, *statestore.Store) {
	t.Helper()
	adapter := exchangetest.New(exchangetest.Config{FeeRateBps: 0, SlippageBps: 0})
	require.NoError(t, adapter.Connect(context.Background()))

	adapter.SeedTicker(model.Ticker{
		Symbol: "BTCUSDT", BidQuote: big.NewInt(50_000), AskQuote: big.NewInt(50_000), LastQuote: big.NewInt(50_000), Timestamp: time.Now(),
	})
	level := model.BookLevel{PriceQuote: big.NewInt(50_000), QtyBase: big.NewInt(1_000_000_000_000)}
	adapter.SeedOrderBook(model.OrderBook{
		Symbol: "BTCUSDT",
		Bids:   []model.BookLevel{level},
		Asks:   []model.BookLevel{level},
	})

	store := statestore.New()
	store.UpdateMarkPrice("BTCUSDT", big.NewInt(50_000))

	queue := execqueue.New(context.Background(), 8)
	breaker := circuit.New(circuit.Config{Name: "test", ConsecutiveFailures: 100, Cooldown: time.Second, HalfOpenSuccesses: 1})
	log := obslog.New(io.Discard, "engine_test")
	evalRisk := func() risk.Result { return risk.Result{Action: risk.ActionAllow} }

	cfg := Config{
		MaxSlippageBps:         50,
		MinLiquidityMultiplier: 2,
		OrderAckTimeout:        time.Second,
		OrderFillTimeout:       2 * time.Second,
		MaxPartialFillRetries:  3,
		MaxDriftBps:            100,
		BaseDecimals:           8,
	}
	eng := New(queue, adapter, store, breaker, audit.NullSink{}, cfg, log, evalRisk)
	return eng, adapter, store
}

func TestEnterThenExitHedge_ReachesActiveThenClosed(t *testing.T) {
	eng, _, _ := testEngine(t)
	ctx := context.Background()

	enterJob := eng.SubmitIntent(ctx, "BTCUSDT", strategy.Intent{Kind: strategy.IntentEnterHedge, SizeQuote: big.NewInt(1_000)})
	require.NotNil(t, enterJob)
	_, err := enterJob.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, model.HedgeActive, eng.HedgeState().Phase)
	require.NotNil(t, eng.HedgeState().SpotQtyBase)
	require.NotNil(t, eng.HedgeState().PerpQtyBase)

	exitJob := eng.SubmitIntent(ctx, "BTCUSDT", strategy.Intent{Kind: strategy.IntentExitHedge, ExitReason: "test_exit"})
	require.NotNil(t, exitJob)
	_, err = exitJob.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, model.HedgeClosed, eng.HedgeState().Phase)
}

func TestEnterHedge_AbortsOnCircuitOpen(t *testing.T) {
	eng, _, _ := testEngine(t)
	eng.breaker = circuit.New(circuit.Config{Name: "open", ConsecutiveFailures: 1, Cooldown: time.Minute, HalfOpenSuccesses: 1})
	// trip the breaker with one forced failure
	_ = eng.breaker.Execute(context.Background(), func(ctx context.Context) error { return errBoom })

	ctx := context.Background()
	job := eng.SubmitIntent(ctx, "BTCUSDT", strategy.Intent{Kind: strategy.IntentEnterHedge, SizeQuote: big.NewInt(1_000)})
	_, err := job.Await(ctx)
	require.Error(t, err)
	abortErr, ok := err.(*AbortError)
	require.True(t, ok)
	require.Equal(t, AbortCircuitOpen, abortErr.Reason)
}

func TestEnterHedge_AbortsOnRiskBlock(t *testing.T) {
	eng, _, _ := testEngine(t)
	eng.evalRisk = func() risk.Result { return risk.Result{Action: risk.ActionBlock} }

	ctx := context.Background()
	job := eng.SubmitIntent(ctx, "BTCUSDT", strategy.Intent{Kind: strategy.IntentEnterHedge, SizeQuote: big.NewInt(1_000)})
	_, err := job.Await(ctx)
	require.Error(t, err)
	abortErr, ok := err.(*AbortError)
	require.True(t, ok)
	require.Equal(t, AbortRiskBlocked, abortErr.Reason)
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
