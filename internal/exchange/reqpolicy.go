package exchange

import (
	"context"

	"trading-core/internal/circuit"
	"trading-core/internal/model"
	"trading-core/internal/ratelimit"
	"trading-core/internal/reqpolicy"
)

// PolicyConfig tunes the per-namespace request policy wrapped around every
// REST call the control core makes.
type PolicyConfig struct {
	Public  reqpolicy.Config
	Account reqpolicy.Config
	Orders  reqpolicy.Config
}

// DefaultPolicyConfig matches the namespaces ratelimit.Registry expects
// (public, account, orders) with conservative retry defaults. CallTimeout
// is left at 0, so no per-call timeout is applied by default.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Public:  reqpolicy.Config{Namespace: "public", Weight: 1, CallTimeout: 0, MaxRetries: 3},
		Account: reqpolicy.Config{Namespace: "account", Weight: 1, CallTimeout: 0, MaxRetries: 3},
		Orders:  reqpolicy.Config{Namespace: "orders", Weight: 1, CallTimeout: 0, MaxRetries: 2},
	}
}

// policyAdapter decorates an Adapter so every REST method passes through
// its namespace's token bucket, a per-call timeout (only when the
// namespace's CallTimeout is positive), the shared circuit breaker and
// backoff-with-retry, per the outbound request policy.
// Streaming subscriptions and lifecycle calls pass through undecorated —
// the policy governs discrete REST calls, not long-lived connections.
type policyAdapter struct {
	Adapter
	public  *reqpolicy.Policy
	account *reqpolicy.Policy
	orders  *reqpolicy.Policy
}

// WithRequestPolicy wraps adapter so its REST calls run under the given
// rate limiter registry and circuit breaker.
func WithRequestPolicy(adapter Adapter, limiter *ratelimit.Registry, breaker *circuit.Breaker, cfg PolicyConfig) Adapter {
	return &policyAdapter{
		Adapter: adapter,
		public:  reqpolicy.New(limiter, breaker, cfg.Public),
		account: reqpolicy.New(limiter, breaker, cfg.Account),
		orders:  reqpolicy.New(limiter, breaker, cfg.Orders),
	}
}

func (a *policyAdapter) GetTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	var out model.Ticker
	err := a.public.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetTicker(ctx, symbol)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetOrderBook(ctx context.Context, symbol string, depth int) (model.OrderBook, error) {
	var out model.OrderBook
	err := a.public.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetOrderBook(ctx, symbol, depth)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetFundingRate(ctx context.Context, symbol string) (model.FundingRate, error) {
	var out model.FundingRate
	err := a.public.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetFundingRate(ctx, symbol)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetBalance(ctx context.Context, asset string) (model.Balance, error) {
	var out model.Balance
	err := a.account.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetBalance(ctx, asset)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetBalances(ctx context.Context) ([]model.Balance, error) {
	var out []model.Balance
	err := a.account.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetBalances(ctx)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetPositions(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	err := a.account.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetPositions(ctx)
		return err
	})
	return out, err
}

func (a *policyAdapter) GetPosition(ctx context.Context, symbol string) (model.Position, bool, error) {
	var out model.Position
	var found bool
	err := a.account.Do(ctx, func(ctx context.Context) error {
		var err error
		out, found, err = a.Adapter.GetPosition(ctx, symbol)
		return err
	})
	return out, found, err
}

func (a *policyAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]ExchangeOrder, error) {
	var out []ExchangeOrder
	err := a.account.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetOpenOrders(ctx, symbol)
		return err
	})
	return out, err
}

func (a *policyAdapter) CreateOrder(ctx context.Context, req OrderRequest) (ExchangeOrder, error) {
	var out ExchangeOrder
	err := a.orders.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.CreateOrder(ctx, req)
		return err
	})
	return out, err
}

func (a *policyAdapter) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return a.orders.Do(ctx, func(ctx context.Context) error {
		return a.Adapter.CancelOrder(ctx, symbol, exchangeOrderID)
	})
}

func (a *policyAdapter) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (ExchangeOrder, error) {
	var out ExchangeOrder
	err := a.orders.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = a.Adapter.GetOrder(ctx, symbol, exchangeOrderID)
		return err
	})
	return out, err
}
