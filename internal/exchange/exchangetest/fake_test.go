package exchangetest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-core/internal/exchange"
	"trading-core/internal/model"
)

func TestFake_CreateOrder_FillsAtMidWithSlippage(t *testing.T) {
	f := New(Config{FeeRateBps: 4, SlippageBps: 10})
	require.NoError(t, f.Connect(context.Background()))

	f.SeedTicker(model.Ticker{
		Symbol:    "BTCUSDT",
		BidQuote:  big.NewInt(49_990_00000000),
		AskQuote:  big.NewInt(50_010_00000000),
		Timestamp: time.Now(),
	})

	exo, err := f.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol:       "BTCUSDT",
		Side:         model.SideBuy,
		Type:         model.OrderTypeMarket,
		QuantityBase: big.NewInt(100_000_000), // 1 BTC at 8 decimals
	})
	require.NoError(t, err)
	require.Equal(t, model.OrderFilled, exo.Status)
	require.Equal(t, 0, exo.FilledQuantityBase.Cmp(big.NewInt(100_000_000)))

	mid := big.NewInt(50_000_00000000)
	require.True(t, exo.AvgFillPriceQuote.Cmp(mid) > 0, "BUY fill should be above mid after slippage")
}

func TestFake_SubscribeOrderUpdates_FiresOnFill(t *testing.T) {
	f := New(Config{})
	require.NoError(t, f.Connect(context.Background()))
	f.SeedTicker(model.Ticker{Symbol: "BTCUSDT", BidQuote: big.NewInt(100), AskQuote: big.NewInt(102), Timestamp: time.Now()})

	var got exchange.ExchangeOrder
	unsub, err := f.SubscribeOrderUpdates(func(o exchange.ExchangeOrder, gen uint64) {
		got = o
	})
	require.NoError(t, err)
	defer unsub()

	_, err = f.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: model.SideSell, Type: model.OrderTypeMarket, QuantityBase: big.NewInt(1),
	})
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", got.Symbol)
	require.Equal(t, model.OrderFilled, got.Status)
}

func TestFake_GetOpenOrders_ExcludesTerminal(t *testing.T) {
	f := New(Config{})
	f.SeedTicker(model.Ticker{Symbol: "BTCUSDT", BidQuote: big.NewInt(100), AskQuote: big.NewInt(102), Timestamp: time.Now()})
	_, err := f.CreateOrder(context.Background(), exchange.OrderRequest{
		Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderTypeMarket, QuantityBase: big.NewInt(1),
	})
	require.NoError(t, err)

	open, err := f.GetOpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Empty(t, open, "a fully-filled order is terminal, not open")
}
