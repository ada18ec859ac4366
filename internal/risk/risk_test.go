package risk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-core/internal/model"
)

func TestEvaluate_Safe(t *testing.T) {
	snap := Snapshot{
		EquityQuote:     big.NewInt(20_000),
		MarginUsedQuote: big.NewInt(1_000),
		DailyPnlQuote:   big.NewInt(0),
		PeakEquityQuote: big.NewInt(20_000),
	}
	result := Evaluate(snap, DefaultLimits())
	require.Equal(t, LevelSafe, result.Level)
	require.Equal(t, ActionAllow, result.Action)
	require.Empty(t, result.Reasons)
}

func TestEvaluate_BlockOnNotional(t *testing.T) {
	snap := Snapshot{
		EquityQuote:     big.NewInt(20_000),
		MarginUsedQuote: big.NewInt(1_000),
		Position: &PositionSnapshot{
			Side:          model.SideLong,
			NotionalQuote: big.NewInt(11_000),
			LeverageBps:   big.NewInt(10_000),
			MarkPriceQuote: big.NewInt(50_000),
		},
	}
	result := Evaluate(snap, DefaultLimits())
	require.Equal(t, LevelBlocked, result.Level)
	require.Equal(t, ActionBlock, result.Action)
	require.Contains(t, result.Reasons, "position_notional_exceeds_max")
}

func TestEvaluate_MonotoneEscalation(t *testing.T) {
	// A CAUTION-triggering margin condition must not downgrade a BLOCKED level.
	snap := Snapshot{
		EquityQuote:     big.NewInt(10_000),
		MarginUsedQuote: big.NewInt(7_200),
		Position: &PositionSnapshot{
			Side:          model.SideLong,
			NotionalQuote: big.NewInt(11_000),
			LeverageBps:   big.NewInt(40_000),
			MarkPriceQuote: big.NewInt(50_000),
		},
	}
	result := Evaluate(snap, DefaultLimits())
	require.Equal(t, LevelBlocked, result.Level)
	require.Equal(t, ActionBlock, result.Action)
}

func TestLiquidationDistanceBps_LongScenario(t *testing.T) {
	side := model.SideLong
	dist := liquidationDistanceBps(&side, big.NewInt(50_000_000_000), big.NewInt(40_000_000_000))
	require.Equal(t, big.NewInt(2000), dist)
}

func TestLiquidationDistanceBps_NoPosition(t *testing.T) {
	dist := liquidationDistanceBps(nil, big.NewInt(50_000), nil)
	require.Equal(t, big.NewInt(model.BpsScale), dist)
}
