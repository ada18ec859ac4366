// Package exchangetest provides an in-memory fake exchange.Adapter for
// unit tests and dry-run mode: market-order fills simulate slippage
// instead of hitting a venue. Grounded on a DryRunExecutor/
// MockExecutor shape (balance/position bookkeeping, synthetic fill
// simulation), ported from float64 cash accounting to big.Int and
// generalized from order-only to the full Adapter contract so it can
// stand in for a real venue anywhere the core takes an exchange.Adapter.
package exchangetest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"trading-core/internal/exchange"
	"trading-core/internal/model"
)

var _ exchange.Adapter = (*Fake)(nil)

// Config tunes the fake's fill simulation.
type Config struct {
	FeeRateBps      int64 // fee rate on notional, e.g. 4 = 4bps; computed per fill but not deducted from any balance
	SlippageBps     int64 // adverse price move applied to every fill
	InitialBalances map[string]*big.Int
}

// Fake is an in-memory exchange.Adapter. Safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	cfg Config

	connected bool
	tickers   map[string]model.Ticker
	books     map[string]model.OrderBook
	funding   map[string]model.FundingRate
	balances  map[string]model.Balance
	positions map[string]model.Position
	orders    map[string]exchange.ExchangeOrder

	orderSubs  map[string][]func()
	tickerSubs map[string][]exchange.TickerHandler
	markSubs   map[string][]exchange.MarkHandler
	orderCbs   []exchange.OrderUpdateHandler
	generation uint64
}

// New builds a Fake seeded with cfg's initial balances.
func New(cfg Config) *Fake {
	f := &Fake{
		cfg:       cfg,
		tickers:   make(map[string]model.Ticker),
		books:     make(map[string]model.OrderBook),
		funding:   make(map[string]model.FundingRate),
		balances:  make(map[string]model.Balance),
		positions: make(map[string]model.Position),
		orders:    make(map[string]exchange.ExchangeOrder),
	}
	for asset, amt := range cfg.InitialBalances {
		f.balances[asset] = model.Balance{Asset: asset, AvailableBase: new(big.Int).Set(amt), HeldBase: big.NewInt(0), TotalBase: new(big.Int).Set(amt)}
	}
	return f
}

// SeedTicker/SeedOrderBook/SeedFundingRate/SeedPosition let a test drive
// the fake's market view directly. Only SeedTicker fires registered
// subscribers (the ticker subscribers of that symbol).
func (f *Fake) SeedTicker(t model.Ticker) {
	f.mu.Lock()
	f.tickers[t.Symbol] = t
	gen := f.generation
	subs := append([]exchange.TickerHandler(nil), f.tickerSubs[t.Symbol]...)
	f.mu.Unlock()
	for _, cb := range subs {
		if cb != nil {
			cb(t, gen)
		}
	}
}

func (f *Fake) SeedOrderBook(ob model.OrderBook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[ob.Symbol] = ob
}

func (f *Fake) SeedFundingRate(fr model.FundingRate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funding[fr.Symbol] = fr
}

func (f *Fake) SeedPosition(p model.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[p.Symbol] = p
}

// Connect/Disconnect/IsConnected simulate connectivity with no actual I/O.
func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.generation++
	return nil
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickers[symbol]
	if !ok {
		return model.Ticker{}, fmt.Errorf("exchangetest: no ticker seeded for %s", symbol)
	}
	return t, nil
}

func (f *Fake) GetOrderBook(ctx context.Context, symbol string, depth int) (model.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ob, ok := f.books[symbol]
	if !ok {
		return model.OrderBook{}, fmt.Errorf("exchangetest: no order book seeded for %s", symbol)
	}
	return ob, nil
}

func (f *Fake) GetFundingRate(ctx context.Context, symbol string) (model.FundingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.funding[symbol]
	if !ok {
		return model.FundingRate{}, fmt.Errorf("exchangetest: no funding rate seeded for %s", symbol)
	}
	return fr, nil
}

func (f *Fake) GetBalance(ctx context.Context, asset string) (model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[asset]
	if !ok {
		return model.Balance{Asset: asset, AvailableBase: big.NewInt(0), HeldBase: big.NewInt(0), TotalBase: big.NewInt(0)}, nil
	}
	return b, nil
}

func (f *Fake) GetBalances(ctx context.Context) ([]model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Balance, 0, len(f.balances))
	for _, b := range f.balances {
		out = append(out, b)
	}
	return out, nil
}

func (f *Fake) GetPositions(ctx context.Context) ([]model.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *Fake) GetPosition(ctx context.Context, symbol string) (model.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[symbol]
	return p, ok, nil
}

func (f *Fake) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]exchange.ExchangeOrder, 0, len(f.orders))
	for _, o := range f.orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if o.Status == model.OrderFilled || o.Status == model.OrderCanceled || o.Status == model.OrderRejected {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// CreateOrder fills immediately and in full at req.PriceQuote when set,
// otherwise at the seeded ticker's mid price, adjusted for the configured
// slippage, mirroring a MockExecutor.Execute simple-fill simulation. The
// configured fee changes neither the fill price nor any balance.
func (f *Fake) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.ExchangeOrder, error) {
	f.mu.Lock()

	t, ok := f.tickers[req.Symbol]
	if !ok {
		f.mu.Unlock()
		return exchange.ExchangeOrder{}, fmt.Errorf("exchangetest: no ticker seeded for %s, cannot fill order", req.Symbol)
	}

	fillPrice := req.PriceQuote
	if fillPrice == nil {
		fillPrice = new(big.Int).Add(t.BidQuote, t.AskQuote)
		fillPrice.Quo(fillPrice, big.NewInt(2))
	}
	fillPrice = applySlippage(fillPrice, req.Side, f.cfg.SlippageBps)

	exo := exchange.ExchangeOrder{
		ExchangeOrderID:    uuid.NewString(),
		Symbol:             req.Symbol,
		Side:               req.Side,
		Status:             model.OrderFilled,
		QuantityBase:       req.QuantityBase,
		FilledQuantityBase: new(big.Int).Set(req.QuantityBase),
		AvgFillPriceQuote:  fillPrice,
	}
	f.orders[exo.ExchangeOrderID] = exo
	f.applyFeeAndPosition(req.Symbol, req.Side, req.QuantityBase, fillPrice)

	gen := f.generation
	cbs := append([]exchange.OrderUpdateHandler(nil), f.orderCbs...)
	f.mu.Unlock()
	for _, cb := range cbs {
		if cb != nil {
			cb(exo, gen)
		}
	}
	return exo, nil
}

func (f *Fake) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("exchangetest: unknown order %s", exchangeOrderID)
	}
	o.Status = model.OrderCanceled
	f.orders[exchangeOrderID] = o
	return nil
}

func (f *Fake) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.ExchangeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[exchangeOrderID]
	if !ok {
		return exchange.ExchangeOrder{}, fmt.Errorf("exchangetest: unknown order %s", exchangeOrderID)
	}
	return o, nil
}

func (f *Fake) SubscribeTicker(symbol string, cb exchange.TickerHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickerSubs == nil {
		f.tickerSubs = make(map[string][]exchange.TickerHandler)
	}
	f.tickerSubs[symbol] = append(f.tickerSubs[symbol], cb)
	idx := len(f.tickerSubs[symbol]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.tickerSubs[symbol]) {
			f.tickerSubs[symbol][idx] = nil
		}
	}, nil
}

func (f *Fake) SubscribeMark(symbol string, cb exchange.MarkHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markSubs == nil {
		f.markSubs = make(map[string][]exchange.MarkHandler)
	}
	f.markSubs[symbol] = append(f.markSubs[symbol], cb)
	idx := len(f.markSubs[symbol]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.markSubs[symbol]) {
			f.markSubs[symbol][idx] = nil
		}
	}, nil
}

func (f *Fake) SubscribeOrderUpdates(cb exchange.OrderUpdateHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCbs = append(f.orderCbs, cb)
	idx := len(f.orderCbs) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.orderCbs) {
			f.orderCbs[idx] = nil
		}
	}, nil
}

func (f *Fake) applyFeeAndPosition(symbol string, side model.Side, qtyBase, priceQuote *big.Int) {
	notional := new(big.Int).Mul(qtyBase, priceQuote)
	fee := new(big.Int).Mul(notional, big.NewInt(f.cfg.FeeRateBps))
	fee.Quo(fee, big.NewInt(model.BpsScale))

	pos, exists := f.positions[symbol]
	if !exists {
		pos = model.Position{Symbol: symbol, Side: side, SizeBase: big.NewInt(0), EntryPriceQuote: priceQuote, MarkPriceQuote: priceQuote}
	}
	if !exists || pos.Side == side {
		total := new(big.Int).Mul(pos.SizeBase, pos.EntryPriceQuote)
		total.Add(total, notional)
		pos.SizeBase = new(big.Int).Add(pos.SizeBase, qtyBase)
		if pos.SizeBase.Sign() != 0 {
			pos.EntryPriceQuote = new(big.Int).Quo(total, pos.SizeBase)
		}
		pos.Side = side
	} else {
		pos.SizeBase = new(big.Int).Sub(pos.SizeBase, qtyBase)
		if pos.SizeBase.Sign() <= 0 {
			delete(f.positions, symbol)
			return
		}
	}
	f.positions[symbol] = pos
}

// applySlippage nudges a market order's fill price against the taker:
// BUY fills higher, SELL fills lower, by slippageBps.
func applySlippage(price *big.Int, side model.Side, slippageBps int64) *big.Int {
	if slippageBps == 0 {
		return price
	}
	delta := new(big.Int).Mul(price, big.NewInt(slippageBps))
	delta.Quo(delta, big.NewInt(model.BpsScale))
	out := new(big.Int).Set(price)
	if side == model.SideBuy {
		out.Add(out, delta)
	} else {
		out.Sub(out, delta)
	}
	return out
}
