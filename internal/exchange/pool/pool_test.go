package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-core/internal/exchange"
	"trading-core/internal/exchange/exchangetest"
)

func TestPool_GetCreatesAndReuses(t *testing.T) {
	var calls int32
	factory := func(key string) (exchange.Adapter, error) {
		atomic.AddInt32(&calls, 1)
		return exchangetest.New(exchangetest.Config{}), nil
	}
	p := New(factory, DefaultConfig())

	a1, err := p.Get(context.Background(), "binance-spot")
	require.NoError(t, err)
	a2, err := p.Get(context.Background(), "binance-spot")
	require.NoError(t, err)
	require.Same(t, a1, a2)
	require.EqualValues(t, 1, calls)
}

func TestPool_FactoryErrorPropagates(t *testing.T) {
	wantErr := errors.New("dial failed")
	p := New(func(key string) (exchange.Adapter, error) { return nil, wantErr }, DefaultConfig())

	_, err := p.Get(context.Background(), "x")
	require.ErrorIs(t, err, wantErr)
}

func TestPool_EvictsLRUAtCapacity(t *testing.T) {
	factory := func(key string) (exchange.Adapter, error) { return exchangetest.New(exchangetest.Config{}), nil }
	cfg := DefaultConfig()
	cfg.MaxSize = 2
	p := New(factory, cfg)

	_, err := p.Get(context.Background(), "a")
	require.NoError(t, err)
	_, err = p.Get(context.Background(), "b")
	require.NoError(t, err)
	_, err = p.Get(context.Background(), "c")
	require.NoError(t, err)

	require.Equal(t, 2, p.Stats().Size)
}

func TestPool_UnhealthyAfterFailureThreshold(t *testing.T) {
	factory := func(key string) (exchange.Adapter, error) { return exchangetest.New(exchangetest.Config{}), nil }
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.CircuitTimeout = time.Hour
	p := New(factory, cfg)

	_, err := p.Get(context.Background(), "a")
	require.NoError(t, err)
	p.RecordFailure("a")
	p.RecordFailure("a")

	_, err = p.Get(context.Background(), "a")
	require.ErrorIs(t, err, ErrUnhealthy)

	p.RecordSuccess("a")
	_, err = p.Get(context.Background(), "a")
	require.NoError(t, err)
}
