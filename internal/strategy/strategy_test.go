package strategy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-core/internal/risk"
)

func TestAnalyzeTrend_FlatHighRegimeIsReachable(t *testing.T) {
	cfg := DefaultConfig()
	rates := []int64{48, 49, 50, 51, 52, 53}
	trend := AnalyzeTrend(rates, cfg)

	require.Equal(t, TrendFlat, trend.Trend)
	require.Equal(t, RegimeHighStable, trend.Regime)
}

func TestAnalyzeTrend_SymmetricDeadband(t *testing.T) {
	cfg := DefaultConfig()

	increasing := AnalyzeTrend([]int64{10, 10, 10, 30, 30, 30}, cfg)
	require.Equal(t, TrendIncreasing, increasing.Trend)

	decreasing := AnalyzeTrend([]int64{30, 30, 30, 10, 10, 10}, cfg)
	require.Equal(t, TrendDecreasing, decreasing.Trend)

	flat := AnalyzeTrend([]int64{20, 20, 20, 22, 22, 22}, cfg)
	require.Equal(t, TrendFlat, flat.Trend)
}

func TestAnalyzeTrend_WindowTruncatesToTrailingEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrendWindow = 3
	// Without windowing the long decreasing run at the front would flip
	// the sign; windowed to the last 3 it should read the flat tail.
	trend := AnalyzeTrend([]int64{100, 80, 60, 20, 20, 20}, cfg)
	require.Equal(t, TrendFlat, trend.Trend)
}

func TestDecide_EntersOnHighStableRisingFunding(t *testing.T) {
	cfg := DefaultConfig()
	trend := AnalyzeTrend([]int64{48, 49, 50, 51, 52, 53}, cfg)
	riskResult := risk.Result{Action: risk.ActionAllow}

	intent := Decide(53, 53, trend, riskResult, false, 0, cfg, big.NewInt(5_000))
	require.Equal(t, IntentEnterHedge, intent.Kind)
	require.Equal(t, big.NewInt(5_000), intent.SizeQuote)
}

func TestDecide_NoopWhenRiskBlocks(t *testing.T) {
	cfg := DefaultConfig()
	trend := AnalyzeTrend([]int64{48, 49, 50, 51, 52, 53}, cfg)
	riskResult := risk.Result{Action: risk.ActionBlock}

	intent := Decide(53, 53, trend, riskResult, false, 0, cfg, big.NewInt(5_000))
	require.Equal(t, IntentNoop, intent.Kind)
}

func TestDecide_ExitsWhenFundingDropsBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	trend := AnalyzeTrend([]int64{20, 20, 20, 20, 20, 20}, cfg)
	riskResult := risk.Result{Action: risk.ActionAllow}

	intent := Decide(3, 3, trend, riskResult, true, 0, cfg, nil)
	require.Equal(t, IntentExitHedge, intent.Kind)
	require.Equal(t, "funding_rate_below_exit_threshold", intent.ExitReason)
}

func TestDecide_ExitsOnRiskBlockWhileHolding(t *testing.T) {
	cfg := DefaultConfig()
	trend := AnalyzeTrend([]int64{48, 49, 50, 51, 52, 53}, cfg)
	riskResult := risk.Result{Action: risk.ActionBlock}

	intent := Decide(53, 53, trend, riskResult, true, 0, cfg, nil)
	require.Equal(t, IntentExitHedge, intent.Kind)
	require.Equal(t, "risk_block", intent.ExitReason)
}

func TestDecide_ExitsWhenTargetYieldReached(t *testing.T) {
	cfg := DefaultConfig()
	trend := AnalyzeTrend([]int64{48, 49, 50, 51, 52, 53}, cfg)
	riskResult := risk.Result{Action: risk.ActionAllow}

	intent := Decide(53, 53, trend, riskResult, true, 150, cfg, nil)
	require.Equal(t, IntentExitHedge, intent.Kind)
	require.Equal(t, "target_yield_reached", intent.ExitReason)
}
