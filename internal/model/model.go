// Package model holds the data types shared across the control core:
// market snapshots, account state, and the authoritative bot snapshot.
// All monetary and quantity fields are arbitrary-precision integers
// (*big.Int) with an explicit unit suffix baked into the field name —
// Base for base-asset quantity, Quote for quote-asset amounts, Bps for
// basis-point scaled rates (scale 10_000), Sats for satoshi-scale
// amounts where relevant. Never introduce a float64 for a money field.
package model

import (
	"math/big"
	"time"
)

// BpsScale is the fixed-point scale used for every *Bps field: 1% = 100bps.
const BpsScale = 10_000

// Side is a position or order direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
)

// Ticker is a best-bid/ask/last snapshot for a symbol.
type Ticker struct {
	Symbol     string
	BidQuote   *big.Int
	AskQuote   *big.Int
	LastQuote  *big.Int
	VolumeBase *big.Int
	Timestamp  time.Time
}

// BookLevel is one price/quantity rung of an order book side.
type BookLevel struct {
	PriceQuote *big.Int
	QtyBase    *big.Int
}

// OrderBook holds descending bids and ascending asks.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// BestBid returns the highest bid level, or false if the book side is empty.
func (b *OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, or false if the book side is empty.
func (b *OrderBook) BestAsk() (BookLevel, bool) {
	if len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}

// FundingRate is a perpetual-futures funding snapshot.
type FundingRate struct {
	Symbol          string
	RateBps         *big.Int
	NextFundingTime time.Time
	Timestamp       time.Time
}

// Balance is a single-asset balance; Total must equal Available+Held.
type Balance struct {
	Asset         string
	AvailableBase *big.Int
	HeldBase      *big.Int
	TotalBase     *big.Int
}

// Position is an open futures or spot position.
type Position struct {
	Symbol                 string
	Side                   Side
	SizeBase               *big.Int
	EntryPriceQuote        *big.Int
	MarkPriceQuote         *big.Int
	LiquidationPriceQuote  *big.Int // nil if not applicable
	UnrealizedPnlQuote     *big.Int
	LeverageBps            *big.Int
	MarginQuote            *big.Int
}

// PositionSource identifies how a DerivedPosition was produced.
type PositionSource string

const (
	SourceDerived    PositionSource = "derived"
	SourceReconciled PositionSource = "reconciled"
)

// PendingFill is an unsettled fill contribution used while deriving position state
// between reconciliation cycles.
type PendingFill struct {
	Symbol    string
	Side      Side
	QtyBase   *big.Int
	Price     *big.Int
	Timestamp time.Time
}

// DerivedPosition is a computed view combining a Position, a Balance and
// any pending fills not yet folded into the authoritative snapshot.
type DerivedPosition struct {
	Open                   bool
	Side                   *Side
	SpotQtyBase            *big.Int
	PerpQtyBase            *big.Int
	NotionalQuote          *big.Int
	UnrealizedPnlQuote     *big.Int
	MarginUsedQuote        *big.Int
	LiquidationDistanceBps *big.Int
	Source                 PositionSource
}

// OrderStatus is the canonical lifecycle state of a ManagedOrder.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderAcked     OrderStatus = "ACKED"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderFilled    OrderStatus = "FILLED"
	OrderCanceled  OrderStatus = "CANCELED"
	OrderRejected  OrderStatus = "REJECTED"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ManagedOrder is the core's tracked lifecycle record for one order.
type ManagedOrder struct {
	ID                 string
	IntentID           string
	ExchangeOrderID     string
	Symbol             string
	Side               Side
	Type               OrderType
	Status             OrderStatus
	QuantityBase       *big.Int
	FilledQuantityBase *big.Int
	PriceQuote         *big.Int // nil for market orders
	AvgFillPriceQuote  *big.Int // nil until a fill
	SubmittedAt        *time.Time
	AckedAt            *time.Time
	CancelReason       string
	RejectError        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HedgePhase enumerates the delta-neutral hedge lifecycle.
type HedgePhase string

const (
	HedgeIdle          HedgePhase = "IDLE"
	HedgeEnteringPerp  HedgePhase = "ENTERING_PERP"
	HedgeEnteringSpot  HedgePhase = "ENTERING_SPOT"
	HedgeActive        HedgePhase = "ACTIVE"
	HedgeExitingSpot   HedgePhase = "EXITING_SPOT"
	HedgeExitingPerp   HedgePhase = "EXITING_PERP"
	HedgeClosed        HedgePhase = "CLOSED"
)

// HedgeState is the tagged-union hedge state. Only the fields relevant to
// Phase are meaningful; treat it as a discriminated union keyed by Phase.
type HedgeState struct {
	Phase          HedgePhase
	IntentID       string    // ENTERING_PERP
	PerpFilled     bool      // ENTERING_SPOT
	NotionalQuote  *big.Int  // ACTIVE
	SpotQtyBase    *big.Int  // ACTIVE
	PerpQtyBase    *big.Int  // ACTIVE
	PnlQuote       *big.Int  // CLOSED
}

// BotState is the single mutable authoritative snapshot owned by the state store.
type BotState struct {
	Ticker        *Ticker
	OrderBook     *OrderBook
	FundingRate   *FundingRate
	MarkPriceQuote *big.Int
	Balances      map[string]Balance
	Positions     map[string]Position
	OpenOrders    map[string]ManagedOrder

	LastTickerUpdate  *time.Time
	LastFundingUpdate *time.Time
	LastAccountUpdate *time.Time

	WsConnected bool
}

// Clone returns a deep-enough copy safe for a reader to retain: maps are
// copied, big.Int and time values are reused (immutable by convention).
func (s *BotState) Clone() *BotState {
	out := &BotState{
		Ticker:            s.Ticker,
		OrderBook:         s.OrderBook,
		FundingRate:       s.FundingRate,
		MarkPriceQuote:    s.MarkPriceQuote,
		Balances:          make(map[string]Balance, len(s.Balances)),
		Positions:         make(map[string]Position, len(s.Positions)),
		OpenOrders:        make(map[string]ManagedOrder, len(s.OpenOrders)),
		LastTickerUpdate:  s.LastTickerUpdate,
		LastFundingUpdate: s.LastFundingUpdate,
		LastAccountUpdate: s.LastAccountUpdate,
		WsConnected:       s.WsConnected,
	}
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	for k, v := range s.OpenOrders {
		out.OpenOrders[k] = v
	}
	return out
}

// BigFromInt64 is a convenience constructor used throughout tests and defaults.
func BigFromInt64(v int64) *big.Int { return big.NewInt(v) }
