// Package strategy implements the funding-rate-driven decision function:
// purely functional trend analysis over a window of funding snapshots,
// entry/exit rules, and regime classification. Grounded on an
// integer-threshold style (ladder of boolean checks feeding a decision)
// and an "Engine holds config, produces a Signal" shape used for
// per-instance technical-indicator strategies (RSI/MA/Bollinger/grid)
// elsewhere in this codebase, but replaced here with the one funding-rate
// arbitrage decision function this core needs.
package strategy

import (
	"math/big"

	"trading-core/internal/risk"
)

// Intent is the strategy's output.
type Intent struct {
	Kind          IntentKind
	SizeQuote     *big.Int // ENTER_HEDGE
	ExitReason    string   // EXIT_HEDGE
	Confidence    Confidence
}

type IntentKind string

const (
	IntentNoop        IntentKind = "NOOP"
	IntentEnterHedge  IntentKind = "ENTER_HEDGE"
	IntentExitHedge   IntentKind = "EXIT_HEDGE"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

type TrendSign int

const (
	TrendDecreasing TrendSign = -1
	TrendFlat       TrendSign = 0
	TrendIncreasing TrendSign = 1
)

type Regime string

const (
	RegimeHighStable   Regime = "high_stable"
	RegimeHighVolatile Regime = "high_volatile"
	RegimeLowStable    Regime = "low_stable"
	RegimeLowVolatile  Regime = "low_volatile"
)

// TrendAnalysis is the computed statistics over the funding-rate window.
type TrendAnalysis struct {
	MeanBps   *big.Int
	StdDevBps *big.Int
	Trend     TrendSign
	Regime    Regime
}

// Config parameterizes the strategy's thresholds.
type Config struct {
	MinFundingRateBps  int64
	ExitFundingRateBps int64
	TargetYieldBps     int64
	HighMeanBps        int64 // regime threshold, default 10
	VolatileStdDevBps  int64 // regime threshold, default 5
	TrendFlipBps       int64 // deadband around zero delta, default 5
	TrendWindow        int   // number of trailing funding snapshots AnalyzeTrend considers, default 24
}

// DefaultConfig matches the documented defaults.
func DefaultConfig() Config {
	return Config{
		MinFundingRateBps:  10,
		ExitFundingRateBps: 5,
		TargetYieldBps:     100,
		HighMeanBps:        10,
		VolatileStdDevBps:  5,
		TrendFlipBps:       5,
		TrendWindow:        24,
	}
}

// AnalyzeTrend computes integer mean, population stddev (via Newton's
// method integer sqrt on the variance) and trend sign over a window of
// funding rates in bps, plus the regime classification. If ratesBps is
// longer than cfg.TrendWindow, only the trailing TrendWindow entries are
// considered; cfg.TrendWindow <= 0 means use the entire slice.
func AnalyzeTrend(ratesBps []int64, cfg Config) TrendAnalysis {
	if cfg.TrendWindow > 0 && len(ratesBps) > cfg.TrendWindow {
		ratesBps = ratesBps[len(ratesBps)-cfg.TrendWindow:]
	}
	n := int64(len(ratesBps))
	if n == 0 {
		return TrendAnalysis{MeanBps: big.NewInt(0), StdDevBps: big.NewInt(0), Trend: TrendFlat, Regime: RegimeLowStable}
	}

	var sum int64
	for _, r := range ratesBps {
		sum += r
	}
	mean := sum / n

	var varSum int64
	for _, r := range ratesBps {
		d := r - mean
		varSum += d * d
	}
	variance := varSum / n
	stddev := isqrt(variance)

	half := n / 2
	trend := TrendFlat
	if half > 0 {
		firstHalfMean := meanOf(ratesBps[:half])
		secondHalfMean := meanOf(ratesBps[n-half:])
		delta := secondHalfMean - firstHalfMean
		switch {
		case delta > cfg.TrendFlipBps:
			trend = TrendIncreasing
		case delta < -cfg.TrendFlipBps:
			trend = TrendDecreasing
		}
	}

	high := mean > cfg.HighMeanBps
	volatile := stddev > cfg.VolatileStdDevBps
	var regime Regime
	switch {
	case high && volatile:
		regime = RegimeHighVolatile
	case high && !volatile:
		regime = RegimeHighStable
	case !high && volatile:
		regime = RegimeLowVolatile
	default:
		regime = RegimeLowStable
	}

	return TrendAnalysis{
		MeanBps:   big.NewInt(mean),
		StdDevBps: big.NewInt(stddev),
		Trend:     trend,
		Regime:    regime,
	}
}

func meanOf(rs []int64) int64 {
	if len(rs) == 0 {
		return 0
	}
	var s int64
	for _, r := range rs {
		s += r
	}
	return s / int64(len(rs))
}

// isqrt computes the integer square root of a non-negative int64 via
// Newton's method, matching the population-stddev requirement that it be
// computed without floating point.
func isqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	x := v
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + v/x) / 2
	}
	return x
}

// Decide runs the entry/exit rule ladder. holding indicates whether a
// hedge is currently ACTIVE; sizeQuote is the size to enter with if the
// entry rule fires.
func Decide(
	currentRateBps, predictedRateBps int64,
	trendAnalysis TrendAnalysis,
	riskResult risk.Result,
	holding bool,
	realizedYieldBps int64,
	cfg Config,
	sizeQuote *big.Int,
) Intent {
	if holding {
		if shouldExit(predictedRateBps, trendAnalysis, riskResult, realizedYieldBps, cfg) {
			return Intent{Kind: IntentExitHedge, ExitReason: exitReason(predictedRateBps, trendAnalysis, riskResult, realizedYieldBps, cfg)}
		}
		return Intent{Kind: IntentNoop}
	}

	if shouldEnter(currentRateBps, predictedRateBps, trendAnalysis, riskResult, cfg) {
		return Intent{
			Kind:       IntentEnterHedge,
			SizeQuote:  sizeQuote,
			Confidence: entryConfidence(currentRateBps, predictedRateBps, trendAnalysis),
		}
	}
	return Intent{Kind: IntentNoop}
}

func shouldEnter(current, predicted int64, t TrendAnalysis, r risk.Result, cfg Config) bool {
	if current < cfg.MinFundingRateBps {
		return false
	}
	if !(predicted >= current || predicted >= cfg.MinFundingRateBps) {
		return false
	}
	if t.Trend == TrendDecreasing {
		return false
	}
	if t.Regime != RegimeHighStable && t.Regime != RegimeHighVolatile {
		return false
	}
	if r.Action != risk.ActionAllow {
		return false
	}
	return true
}

func shouldExit(predicted int64, t TrendAnalysis, r risk.Result, realizedYieldBps int64, cfg Config) bool {
	if predicted < cfg.ExitFundingRateBps {
		return true
	}
	if t.Trend == TrendDecreasing {
		return true
	}
	if t.Regime == RegimeLowStable || t.Regime == RegimeLowVolatile {
		return true
	}
	if realizedYieldBps >= cfg.TargetYieldBps {
		return true
	}
	if r.Action == risk.ActionExit || r.Action == risk.ActionBlock {
		return true
	}
	return false
}

func exitReason(predicted int64, t TrendAnalysis, r risk.Result, realizedYieldBps int64, cfg Config) string {
	switch {
	case r.Action == risk.ActionBlock:
		return "risk_block"
	case r.Action == risk.ActionExit:
		return "risk_exit"
	case predicted < cfg.ExitFundingRateBps:
		return "funding_rate_below_exit_threshold"
	case t.Trend == TrendDecreasing:
		return "trend_flipped_decreasing"
	case t.Regime == RegimeLowStable || t.Regime == RegimeLowVolatile:
		return "regime_dropped_to_low"
	case realizedYieldBps >= cfg.TargetYieldBps:
		return "target_yield_reached"
	default:
		return "unspecified"
	}
}

func entryConfidence(current, predicted int64, t TrendAnalysis) Confidence {
	score := 0
	if predicted >= current {
		score++
	}
	if t.Trend != TrendDecreasing {
		score++
	}
	if t.Regime == RegimeHighStable || t.Regime == RegimeHighVolatile {
		score++
	}
	switch {
	case score == 3:
		return ConfidenceHigh
	case score == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
