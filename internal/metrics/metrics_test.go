package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyHistogram_StatsComputesPercentiles(t *testing.T) {
	h := NewLatencyHistogram(10)
	for i := 1; i <= 10; i++ {
		h.Record(float64(i))
	}
	stats := h.Stats()
	require.Equal(t, 10, stats.Count)
	require.Equal(t, 1.0, stats.Min)
	require.Equal(t, 10.0, stats.Max)
	require.InDelta(t, 5.5, stats.Avg, 0.001)
}

func TestLatencyHistogram_SlidesWindowAtCapacity(t *testing.T) {
	h := NewLatencyHistogram(3)
	h.Record(1)
	h.Record(2)
	h.Record(3)
	h.Record(4)
	stats := h.Stats()
	require.Equal(t, 3, stats.Count)
	require.Equal(t, 2.0, stats.Min)
}

func TestMetrics_SnapshotReflectsCounters(t *testing.T) {
	m := New()
	m.IncrementTicks()
	m.IncrementTicks()
	m.IncrementOrders()
	m.TickLatency.RecordDuration(5 * time.Millisecond)

	snap := m.GetSnapshot()
	require.EqualValues(t, 2, snap.TicksProcessed)
	require.EqualValues(t, 1, snap.OrdersSubmitted)
	require.Equal(t, 1, snap.TickLatency.Count)
}
