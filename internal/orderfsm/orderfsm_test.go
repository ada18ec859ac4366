package orderfsm

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-core/internal/model"
)

func TestOrderLifecycle_Scenario(t *testing.T) {
	now := time.Now()
	o := model.ManagedOrder{
		ID:           "o1",
		Status:       model.OrderCreated,
		QuantityBase: big.NewInt(100),
	}

	o, err := Apply(o, Event{Kind: EventSubmit}, now)
	require.NoError(t, err)
	require.Equal(t, model.OrderSubmitted, o.Status)

	o, err = Apply(o, Event{Kind: EventAck, ExchangeOrderID: "X1"}, now)
	require.NoError(t, err)
	require.Equal(t, model.OrderAcked, o.Status)
	require.Equal(t, "X1", o.ExchangeOrderID)

	o, err = Apply(o, Event{Kind: EventPartialFill, FilledQtyBase: big.NewInt(60), AvgPriceQuote: big.NewInt(100)}, now)
	require.NoError(t, err)
	require.Equal(t, model.OrderPartial, o.Status)
	require.Equal(t, big.NewInt(60), o.FilledQuantityBase)

	o, err = Apply(o, Event{Kind: EventFill, FilledQtyBase: big.NewInt(40), AvgPriceQuote: big.NewInt(102)}, now)
	require.NoError(t, err)
	require.Equal(t, model.OrderFilled, o.Status)
	require.Equal(t, big.NewInt(100), o.FilledQuantityBase)
	require.Equal(t, big.NewInt(102), o.AvgFillPriceQuote)

	_, err = Apply(o, Event{Kind: EventCancel, Reason: "late"}, now)
	require.Error(t, err)
}

func TestSubmittedToCanceled_IsValid(t *testing.T) {
	now := time.Now()
	o := model.ManagedOrder{ID: "o2", Status: model.OrderSubmitted, QuantityBase: big.NewInt(10)}
	o, err := Apply(o, Event{Kind: EventCancel, Reason: "user"}, now)
	require.NoError(t, err)
	require.Equal(t, model.OrderCanceled, o.Status)
}

func TestInvariant_EveryConsecutivePairInTransitionTable(t *testing.T) {
	for from, tos := range transitions {
		for _, to := range tos {
			require.True(t, allowed(from, to), "%s -> %s must be allowed", from, to)
		}
	}
}
