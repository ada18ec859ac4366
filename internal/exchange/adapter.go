// Package exchange defines the capability the control core consumes from
// a trading venue. It generalizes a narrow SubmitOrder/CancelOrder-only
// gateway contract into the full adapter contract the core requires:
// lifecycle, market data, account, orders and streaming subscriptions,
// all in arbitrary-precision integers with documented scale.
package exchange

import (
	"context"
	"math/big"

	"trading-core/internal/model"
)

// OrderRequest is what the core asks the adapter to place.
type OrderRequest struct {
	Symbol       string
	Side         model.Side
	Type         model.OrderType
	QuantityBase *big.Int
	PriceQuote   *big.Int // nil for market orders
	TimeInForce  string
}

// ExchangeOrder is the adapter's view of an order, returned from create/get.
type ExchangeOrder struct {
	ExchangeOrderID    string
	Symbol             string
	Side               model.Side
	Status             model.OrderStatus
	QuantityBase       *big.Int
	FilledQuantityBase *big.Int
	AvgFillPriceQuote  *big.Int
}

// TickerHandler, MarkHandler and OrderUpdateHandler are invoked by the
// adapter's streaming transport; the generation lets handlers discard
// events from a superseded connection.
type TickerHandler func(t model.Ticker, generation uint64)
type MarkHandler func(symbol string, markPriceQuote *big.Int, generation uint64)
type OrderUpdateHandler func(o ExchangeOrder, generation uint64)

// Adapter is the capability consumed by the core. A real implementation
// talks to one exchange; internal/exchange/exchangetest provides an
// in-memory fake for tests and dry-run mode.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	GetTicker(ctx context.Context, symbol string) (model.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (model.OrderBook, error)
	GetFundingRate(ctx context.Context, symbol string) (model.FundingRate, error)

	GetBalance(ctx context.Context, asset string) (model.Balance, error)
	GetBalances(ctx context.Context) ([]model.Balance, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	GetPosition(ctx context.Context, symbol string) (model.Position, bool, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]ExchangeOrder, error)

	CreateOrder(ctx context.Context, req OrderRequest) (ExchangeOrder, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetOrder(ctx context.Context, symbol, exchangeOrderID string) (ExchangeOrder, error)

	SubscribeTicker(symbol string, cb TickerHandler) (unsubscribe func(), err error)
	SubscribeMark(symbol string, cb MarkHandler) (unsubscribe func(), err error)
	SubscribeOrderUpdates(cb OrderUpdateHandler) (unsubscribe func(), err error)
}
