// Package engine is the execution engine: it takes a strategy.Intent,
// runs it as one serial execqueue job, and drives the order/hedge state
// machines along the way. Grounded on a Handle-builds-an-OrderRequest,
// submits-through-the-adapter, publishes-lifecycle-events executor shape
// and a consecutive-failure/cooldown circuit idiom, generalized into the
// ENTER_HEDGE/EXIT_HEDGE job bodies the execution engine specifically
// requires.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"trading-core/internal/audit"
	"trading-core/internal/circuit"
	"trading-core/internal/exchange"
	"trading-core/internal/execqueue"
	"trading-core/internal/hedgefsm"
	"trading-core/internal/model"
	"trading-core/internal/obslog"
	"trading-core/internal/orderfsm"
	"trading-core/internal/risk"
	"trading-core/internal/slippage"
	"trading-core/internal/statestore"
	"trading-core/internal/strategy"
)

// AbortReason enumerates structured abort reasons a job can fail with.
type AbortReason string

const (
	AbortCircuitOpen      AbortReason = "execution_circuit_breaker_open"
	AbortRiskBlocked      AbortReason = "risk_block_or_exit"
	AbortSlippageExceeded AbortReason = "slippage_exceeds_max"
	AbortInsufficientDepth AbortReason = "insufficient_book_depth"
	AbortNotFilled        AbortReason = "order_not_filled"
	AbortPartialExhausted AbortReason = "partial_fill_retries_exhausted"
	AbortNotFlatAfterExit AbortReason = "not_flat_after_exit"
)

// AbortError is the structured failure a job produces instead of a trade.
type AbortError struct {
	Reason AbortReason
	Detail string
}

func (e *AbortError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Config parameterizes the execution engine.
type Config struct {
	MaxSlippageBps         int64
	MinLiquidityMultiplier int64
	OrderAckTimeout        time.Duration
	OrderFillTimeout       time.Duration
	MaxPartialFillRetries  int
	MaxDriftBps            int64
	BaseDecimals           int
}

// RiskEvaluator is the subset of the risk package the engine calls for
// its two-phase re-check.
type RiskEvaluator func() risk.Result

// Engine drives ENTER_HEDGE / EXIT_HEDGE jobs through the serial queue.
type Engine struct {
	queue    *execqueue.Queue
	adapter  exchange.Adapter
	store    *statestore.Store
	breaker  *circuit.Breaker
	sink     audit.Sink
	cfg      Config
	log      *obslog.Logger
	evalRisk RiskEvaluator

	hedge model.HedgeState
}

// New builds an Engine bound to a serial queue, exchange adapter, state
// store, execution circuit breaker and audit sink.
func New(queue *execqueue.Queue, adapter exchange.Adapter, store *statestore.Store, breaker *circuit.Breaker, sink audit.Sink, cfg Config, log *obslog.Logger, evalRisk RiskEvaluator) *Engine {
	return &Engine{
		queue: queue, adapter: adapter, store: store, breaker: breaker,
		sink: sink, cfg: cfg, log: log, evalRisk: evalRisk,
		hedge: model.HedgeState{Phase: model.HedgeIdle},
	}
}

// HedgeState returns the engine's current hedge phase snapshot.
func (e *Engine) HedgeState() model.HedgeState { return e.hedge }

// SubmitIntent enqueues the job implied by a strategy.Intent and returns
// its handle. NOOP intents are not enqueued.
func (e *Engine) SubmitIntent(ctx context.Context, symbol string, intent strategy.Intent) *execqueue.Job {
	switch intent.Kind {
	case strategy.IntentEnterHedge:
		return e.queue.Enqueue(ctx, func(jobCtx context.Context) (any, error) {
			return nil, e.enterHedge(jobCtx, symbol, intent.SizeQuote)
		})
	case strategy.IntentExitHedge:
		return e.queue.Enqueue(ctx, func(jobCtx context.Context) (any, error) {
			return nil, e.exitHedge(jobCtx, symbol, intent.ExitReason)
		})
	default:
		return nil
	}
}

func (e *Engine) enterHedge(ctx context.Context, symbol string, sizeQuote *big.Int) error {
	if e.breaker.Open() {
		return &AbortError{Reason: AbortCircuitOpen}
	}

	result := e.evalRisk()
	if result.Action == risk.ActionBlock || result.Action == risk.ActionExit {
		return &AbortError{Reason: AbortRiskBlocked, Detail: fmt.Sprintf("action=%s", result.Action)}
	}

	book, err := e.adapter.GetOrderBook(ctx, symbol, 50)
	if err != nil {
		return fmt.Errorf("engine: fetch order book: %w", err)
	}
	requiredBase, err := e.quoteToBase(symbol, sizeQuote)
	if err != nil {
		return fmt.Errorf("engine: size quote to base: %w", err)
	}
	est := slippage.Walk(&book, model.SideSell, requiredBase, e.cfg.MaxSlippageBps)
	if !est.CanExecute {
		if est.AvailableDepthBase.Cmp(requiredBase) < 0 {
			return &AbortError{Reason: AbortInsufficientDepth}
		}
		return &AbortError{Reason: AbortSlippageExceeded, Detail: est.EstimatedSlippageBps.String()}
	}

	e.hedge, _ = hedgefsm.Advance(e.hedge, "intent-"+symbol, false, nil, nil, nil, nil)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeIdle), string(e.hedge.Phase), "ENTER_HEDGE")

	perpOrder, err := e.placeAndConfirm(ctx, symbol, model.SideShort, requiredBase)
	if err != nil {
		return err
	}

	e.hedge, _ = hedgefsm.Advance(e.hedge, "", perpOrder.Status == model.OrderFilled, nil, nil, nil, nil)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeEnteringPerp), string(e.hedge.Phase), "PERP_FILLED")

	spotOrder, err := e.placeAndConfirm(ctx, symbol, model.SideBuy, requiredBase)
	if err != nil {
		return err
	}

	if err := e.completePartials(ctx, symbol, &perpOrder, model.SideShort); err != nil {
		return err
	}
	if err := e.completePartials(ctx, symbol, &spotOrder, model.SideBuy); err != nil {
		return err
	}

	perpNotional := new(big.Int).Mul(perpOrder.FilledQuantityBase, perpOrder.AvgFillPriceQuote)
	spotNotional := new(big.Int).Mul(spotOrder.FilledQuantityBase, spotOrder.AvgFillPriceQuote)
	drift := hedgefsm.DriftBps(perpNotional, spotNotional)
	if drift.Cmp(big.NewInt(e.cfg.MaxDriftBps)) > 0 {
		e.log.Warn("hedge drift exceeds max, placing corrective order", "driftBps", drift.String())
		// corrective order on the undersized leg
		if perpNotional.Cmp(spotNotional) < 0 {
			missing := new(big.Int).Sub(spotOrder.FilledQuantityBase, perpOrder.FilledQuantityBase)
			if missing.Sign() > 0 {
				if _, err := e.placeAndConfirm(ctx, symbol, model.SideShort, missing); err != nil {
					return err
				}
			}
		} else {
			missing := new(big.Int).Sub(perpOrder.FilledQuantityBase, spotOrder.FilledQuantityBase)
			if missing.Sign() > 0 {
				if _, err := e.placeAndConfirm(ctx, symbol, model.SideBuy, missing); err != nil {
					return err
				}
			}
		}
	}

	e.hedge, _ = hedgefsm.Advance(e.hedge, "", false, perpNotional, spotOrder.FilledQuantityBase, perpOrder.FilledQuantityBase, nil)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeEnteringSpot), string(e.hedge.Phase), "ACTIVE")
	return nil
}

func (e *Engine) exitHedge(ctx context.Context, symbol, reason string) error {
	if e.breaker.Open() {
		return &AbortError{Reason: AbortCircuitOpen}
	}

	spotQty := e.hedge.SpotQtyBase
	perpQty := e.hedge.PerpQtyBase

	e.hedge, _ = hedgefsm.Advance(e.hedge, "", false, nil, nil, nil, nil)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeActive), string(e.hedge.Phase), "EXIT_HEDGE:"+reason)

	spotOrder, err := e.placeAndConfirm(ctx, symbol, model.SideSell, spotQty)
	if err != nil {
		return err
	}
	e.hedge, _ = hedgefsm.Advance(e.hedge, "", false, nil, nil, nil, nil)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeExitingSpot), string(e.hedge.Phase), "SPOT_CLOSED")

	perpOrder, err := e.placeAndConfirm(ctx, symbol, model.SideBuy, perpQty)
	if err != nil {
		return err
	}

	flat := spotOrder.FilledQuantityBase.Cmp(spotQty) == 0 && perpOrder.FilledQuantityBase.Cmp(perpQty) == 0
	if !flat {
		e.log.Error(nil, "NOT_FLAT_AFTER_EXIT", "symbol", symbol)
		e.recordTransition(ctx, "hedge", symbol, string(e.hedge.Phase), string(e.hedge.Phase), "NOT_FLAT_AFTER_EXIT")
		return &AbortError{Reason: AbortNotFlatAfterExit}
	}

	pnl := big.NewInt(0)
	e.hedge, _ = hedgefsm.Advance(e.hedge, "", false, nil, nil, nil, pnl)
	e.recordTransition(ctx, "hedge", symbol, string(model.HedgeExitingPerp), string(e.hedge.Phase), "CLOSED")
	return nil
}

// placeAndConfirm submits a market order and polls it within
// OrderFillTimeout. It returns successfully on FILLED, and also on the first
// PARTIAL it observes (after applying that fill), leaving the remainder to
// completePartials; CANCELED, REJECTED or the timeout are failures.
func (e *Engine) placeAndConfirm(ctx context.Context, symbol string, side model.Side, qtyBase *big.Int) (model.ManagedOrder, error) {
	mo := model.ManagedOrder{
		ID:           fmt.Sprintf("%s-%d", symbol, time.Now().UnixNano()),
		Symbol:       symbol,
		Side:         side,
		Type:         model.OrderTypeMarket,
		Status:       model.OrderCreated,
		QuantityBase: qtyBase,
		FilledQuantityBase: big.NewInt(0),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	mo, _ = orderfsm.Apply(mo, orderfsm.Event{Kind: orderfsm.EventSubmit}, time.Now())
	e.store.PutOrder(mo)

	exo, err := e.adapter.CreateOrder(ctx, exchange.OrderRequest{
		Symbol: symbol, Side: side, Type: model.OrderTypeMarket, QuantityBase: qtyBase,
	})
	if err != nil {
		mo, _ = orderfsm.Apply(mo, orderfsm.Event{Kind: orderfsm.EventReject, Err: err.Error()}, time.Now())
		e.store.PutOrder(mo)
		return mo, &AbortError{Reason: AbortNotFilled, Detail: err.Error()}
	}
	mo, _ = orderfsm.Apply(mo, orderfsm.Event{Kind: orderfsm.EventAck, ExchangeOrderID: exo.ExchangeOrderID}, time.Now())
	e.store.PutOrder(mo)

	deadline := time.Now().Add(e.cfg.OrderFillTimeout)
	delay := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		cur, err := e.adapter.GetOrder(ctx, symbol, exo.ExchangeOrderID)
		if err == nil {
			switch cur.Status {
			case model.OrderFilled:
				delta := new(big.Int).Sub(cur.FilledQuantityBase, mo.FilledQuantityBase)
				mo, _ = orderfsm.Apply(mo, orderfsm.Event{Kind: orderfsm.EventFill, FilledQtyBase: delta, AvgPriceQuote: cur.AvgFillPriceQuote}, time.Now())
				e.store.PutOrder(mo)
				return mo, nil
			case model.OrderPartial:
				delta := new(big.Int).Sub(cur.FilledQuantityBase, mo.FilledQuantityBase)
				if delta.Sign() > 0 {
					mo, _ = orderfsm.Apply(mo, orderfsm.Event{Kind: orderfsm.EventPartialFill, FilledQtyBase: delta, AvgPriceQuote: cur.AvgFillPriceQuote}, time.Now())
					e.store.PutOrder(mo)
				}
				return mo, nil
			case model.OrderCanceled, model.OrderRejected:
				return mo, &AbortError{Reason: AbortNotFilled, Detail: string(cur.Status)}
			}
		}
		select {
		case <-ctx.Done():
			return mo, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 2*time.Second {
			delay *= 2
		}
	}
	return mo, &AbortError{Reason: AbortNotFilled, Detail: "fill timeout"}
}

func (e *Engine) completePartials(ctx context.Context, symbol string, o *model.ManagedOrder, side model.Side) error {
	if o.Status != model.OrderPartial {
		return nil
	}
	for attempt := 0; attempt < e.cfg.MaxPartialFillRetries; attempt++ {
		missing := new(big.Int).Sub(o.QuantityBase, o.FilledQuantityBase)
		if missing.Sign() <= 0 {
			return nil
		}
		filled, err := e.placeAndConfirm(ctx, symbol, side, missing)
		if err != nil {
			continue
		}
		o.FilledQuantityBase = new(big.Int).Add(o.FilledQuantityBase, filled.FilledQuantityBase)
		if o.FilledQuantityBase.Cmp(o.QuantityBase) >= 0 {
			o.Status = model.OrderFilled
			return nil
		}
	}
	return &AbortError{Reason: AbortPartialExhausted}
}

// quoteToBase converts a quote-denominated target size into a base-asset
// order quantity using the current mark price, truncating toward zero
// (matching the truncating-integer-division style used throughout
// internal/risk and internal/reconciler).
func (e *Engine) quoteToBase(symbol string, sizeQuote *big.Int) (*big.Int, error) {
	snap := e.store.Snapshot()
	markPrice := snap.MarkPriceQuote
	if markPrice == nil || markPrice.Sign() <= 0 {
		return nil, fmt.Errorf("no mark price available for %s", symbol)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.cfg.BaseDecimals)), nil)
	num := new(big.Int).Mul(sizeQuote, scale)
	return new(big.Int).Quo(num, markPrice), nil
}

func (e *Engine) recordTransition(ctx context.Context, entityType, entityID, from, to, event string) {
	if e.sink == nil {
		return
	}
	_ = e.sink.Record(ctx, "state_transition", audit.TransitionPayload{
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  from,
		ToState:    to,
		Event:      event,
	})
}
