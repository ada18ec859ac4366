// Package statestore owns the single mutable BotState snapshot. A
// Manager shape used elsewhere in this codebase guards a position map
// with a sync.RWMutex and float64 weighted-average bookkeeping; this
// package keeps that mutex-guarded-single-struct idiom (the cooperative
// scheduling model's platform fallback) but generalizes the owned state
// to the full BotState and switches every numeric field to big.Int.
package statestore

import (
	"math/big"
	"sync"
	"time"

	"trading-core/internal/model"
)

// Store is the exclusive owner of BotState. All mutation goes through its
// setters; all reads return a cloned snapshot so callers can never
// observe or cause a partial update.
type Store struct {
	mu    sync.RWMutex
	state model.BotState
}

// New returns an empty, disconnected Store.
func New() *Store {
	return &Store{
		state: model.BotState{
			Balances:   make(map[string]model.Balance),
			Positions:  make(map[string]model.Position),
			OpenOrders: make(map[string]model.ManagedOrder),
		},
	}
}

// Snapshot returns an immutable clone of the current state.
func (s *Store) Snapshot() *model.BotState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// UpdateTicker replaces the ticker and stamps LastTickerUpdate.
func (s *Store) UpdateTicker(t model.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Ticker = &t
	now := t.Timestamp
	s.state.LastTickerUpdate = &now
}

// UpdateOrderBook replaces the order book.
func (s *Store) UpdateOrderBook(ob model.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.OrderBook = &ob
}

// UpdateFundingRate replaces the funding rate and stamps LastFundingUpdate.
func (s *Store) UpdateFundingRate(fr model.FundingRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.FundingRate = &fr
	now := fr.Timestamp
	s.state.LastFundingUpdate = &now
}

// UpdateBalances atomically replaces the whole balances sub-collection and
// stamps LastAccountUpdate. Per the precedence rule, this is how REST
// truth wins: the reconciler calls this, and the data plane only lets
// streamed account hints through for non-overlapping, non-authoritative
// fields.
func (s *Store) UpdateBalances(balances []model.Balance, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]model.Balance, len(balances))
	for _, b := range balances {
		next[b.Asset] = b
	}
	s.state.Balances = next
	s.state.LastAccountUpdate = &at
}

// UpdatePositions atomically replaces the positions sub-collection.
func (s *Store) UpdatePositions(positions []model.Position, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]model.Position, len(positions))
	for _, p := range positions {
		next[p.Symbol] = p
	}
	s.state.Positions = next
	s.state.LastAccountUpdate = &at
}

// UpdateOrders atomically replaces the openOrders sub-collection.
func (s *Store) UpdateOrders(orders []model.ManagedOrder, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]model.ManagedOrder, len(orders))
	for _, o := range orders {
		next[o.ID] = o
	}
	s.state.OpenOrders = next
	s.state.LastAccountUpdate = &at
}

// PutOrder inserts or replaces a single tracked order (used by the order
// state machine, outside the batch-reconciliation path).
func (s *Store) PutOrder(o model.ManagedOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.OpenOrders == nil {
		s.state.OpenOrders = make(map[string]model.ManagedOrder)
	}
	s.state.OpenOrders[o.ID] = o
}

// UpdateMarkPrice replaces the perpetual contract's mark price, kept
// independently of the last-traded price on Ticker; the execution engine
// reads it to convert a quote-denominated hedge size to a base quantity.
// A single mark price is stored; symbol is not used to key it.
func (s *Store) UpdateMarkPrice(symbol string, markPriceQuote *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.MarkPriceQuote = markPriceQuote
}

// UpdateOrderFromExchange merges a streamed exchange-side order update
// into whatever locally-tracked order carries the same ExchangeOrderID,
// leaving orders the core hasn't placed itself untouched. Unlike PutOrder
// it never inserts a brand new record: a ManagedOrder is only created by
// the execution engine's own order state machine.
func (s *Store) UpdateOrderFromExchange(exchangeOrderID string, status model.OrderStatus, filledQtyBase, avgFillPriceQuote *big.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.state.OpenOrders {
		if o.ExchangeOrderID != exchangeOrderID {
			continue
		}
		o.Status = status
		o.FilledQuantityBase = filledQtyBase
		o.AvgFillPriceQuote = avgFillPriceQuote
		o.UpdatedAt = time.Now()
		s.state.OpenOrders[id] = o
		return true
	}
	return false
}

// RemoveOrder drops an order once it reaches a terminal status.
func (s *Store) RemoveOrder(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.OpenOrders, id)
}

// SetWsConnected flips the connectivity flag.
func (s *Store) SetWsConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.WsConnected = connected
}

// Reset clears the store back to its initial empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.BotState{
		Balances:   make(map[string]model.Balance),
		Positions:  make(map[string]model.Position),
		OpenOrders: make(map[string]model.ManagedOrder),
	}
}

// FreshnessConfig carries the max-age bounds for isStateFresh.
type FreshnessConfig struct {
	TickerMaxAge  time.Duration
	FundingMaxAge time.Duration
	AccountMaxAge time.Duration
}

// IsStateFresh returns true iff wsConnected and every required timestamp
// is present and within its configured max age.
func IsStateFresh(state *model.BotState, cfg FreshnessConfig, now time.Time) bool {
	if !state.WsConnected {
		return false
	}
	if state.LastTickerUpdate == nil || now.Sub(*state.LastTickerUpdate) > cfg.TickerMaxAge {
		return false
	}
	if state.LastFundingUpdate == nil || now.Sub(*state.LastFundingUpdate) > cfg.FundingMaxAge {
		return false
	}
	if state.LastAccountUpdate == nil || now.Sub(*state.LastAccountUpdate) > cfg.AccountMaxAge {
		return false
	}
	return true
}
