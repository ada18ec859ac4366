// Package risk implements the risk evaluator as a pure function over a
// RiskSnapshot, per the monotonically-escalating SAFE/CAUTION/WARNING/
// DANGER/BLOCKED ladder. Grounded on a level/threshold structure (a
// getLimitLevel-style check ladder feeding an evaluation result) used
// elsewhere in this codebase, stripped of its DB-backed per-strategy
// config loading (out of scope here) and rewritten over big.Int/Bps
// instead of float64.
package risk

import (
	"math/big"

	"trading-core/internal/model"
)

// Level is a total-ordered risk severity.
type Level int

const (
	LevelSafe Level = iota
	LevelCaution
	LevelWarning
	LevelDanger
	LevelBlocked
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "SAFE"
	case LevelCaution:
		return "CAUTION"
	case LevelWarning:
		return "WARNING"
	case LevelDanger:
		return "DANGER"
	case LevelBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Action is the recommended response, also totally ordered by severity.
type Action int

const (
	ActionAllow Action = iota
	ActionPause
	ActionExit
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "ALLOW"
	case ActionPause:
		return "PAUSE"
	case ActionExit:
		return "EXIT"
	case ActionBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// PositionSnapshot is the position-shaped subset of RiskSnapshot.
type PositionSnapshot struct {
	Side                  model.Side
	NotionalQuote         *big.Int
	LeverageBps           *big.Int
	MarkPriceQuote        *big.Int
	LiquidationPriceQuote *big.Int // nil if absent
}

// Snapshot is the pure input to Evaluate.
type Snapshot struct {
	EquityQuote     *big.Int
	MarginUsedQuote *big.Int
	Position        *PositionSnapshot
	DailyPnlQuote   *big.Int
	PeakEquityQuote *big.Int
}

// Limits holds the configurable thresholds; defaults match the
// documented limit table.
type Limits struct {
	MaxPositionNotionalQuote  *big.Int
	WarnPositionNotionalQuote *big.Int
	MaxLeverageBps            *big.Int
	MaxDailyLossQuote         *big.Int // positive magnitude
	MaxDrawdownBps            *big.Int
	MinLiquidationDistBps     *big.Int
	WarnLiquidationDistBps    *big.Int
	MaxMarginUtilBps          *big.Int
	WarnMarginUtilBps         *big.Int
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionNotionalQuote:  big.NewInt(10_000),
		WarnPositionNotionalQuote: big.NewInt(7_500),
		MaxLeverageBps:            big.NewInt(30_000),
		MaxDailyLossQuote:         big.NewInt(500),
		MaxDrawdownBps:            big.NewInt(1_000),
		MinLiquidationDistBps:     big.NewInt(2_000),
		WarnLiquidationDistBps:    big.NewInt(3_000),
		MaxMarginUtilBps:          big.NewInt(8_000),
		WarnMarginUtilBps:         big.NewInt(7_000),
	}
}

// Result is the evaluator's output.
type Result struct {
	Level   Level
	Action  Action
	Reasons []string
	Metrics map[string]*big.Int
}

func (r *Result) escalate(level Level, action Action, reason string) {
	if level > r.Level {
		r.Level = level
	}
	if action > r.Action {
		r.Action = action
	}
	r.Reasons = append(r.Reasons, reason)
}

// Evaluate runs every check in the limit table and returns a monotone
// level/action — never downgraded once raised.
func Evaluate(s Snapshot, limits Limits) Result {
	result := Result{Level: LevelSafe, Action: ActionAllow, Metrics: map[string]*big.Int{}}

	marginUtilBps := marginUtilizationBps(s.MarginUsedQuote, s.EquityQuote)
	result.Metrics["marginUtilizationBps"] = marginUtilBps

	var liqDistBps *big.Int
	if s.Position != nil {
		side := s.Position.Side
		liqDistBps = liquidationDistanceBps(&side, s.Position.MarkPriceQuote, s.Position.LiquidationPriceQuote)
		result.Metrics["liquidationDistanceBps"] = liqDistBps
		result.Metrics["positionNotionalQuote"] = s.Position.NotionalQuote

		if s.Position.NotionalQuote != nil && s.Position.NotionalQuote.Cmp(limits.MaxPositionNotionalQuote) > 0 {
			result.escalate(LevelBlocked, ActionBlock, "position_notional_exceeds_max")
		}
		if s.Position.LeverageBps != nil && s.Position.LeverageBps.Cmp(limits.MaxLeverageBps) > 0 {
			result.escalate(LevelBlocked, ActionBlock, "leverage_exceeds_max")
		}
	}

	if s.DailyPnlQuote != nil {
		negDailyPnl := new(big.Int).Neg(s.DailyPnlQuote)
		if negDailyPnl.Cmp(limits.MaxDailyLossQuote) > 0 {
			result.escalate(LevelDanger, ActionExit, "daily_loss_exceeds_max")
		}
	}

	if s.PeakEquityQuote != nil && s.EquityQuote != nil && s.PeakEquityQuote.Sign() > 0 {
		drawdownBps := drawdownBps(s.PeakEquityQuote, s.EquityQuote)
		result.Metrics["drawdownBps"] = drawdownBps
		if drawdownBps.Cmp(limits.MaxDrawdownBps) > 0 {
			result.escalate(LevelDanger, ActionExit, "drawdown_exceeds_max")
		}
	}

	if liqDistBps != nil && liqDistBps.Cmp(limits.MinLiquidationDistBps) < 0 {
		result.escalate(LevelDanger, ActionExit, "liquidation_distance_below_min")
	}

	if marginUtilBps.Cmp(limits.MaxMarginUtilBps) > 0 {
		result.escalate(LevelWarning, ActionPause, "margin_utilization_exceeds_max")
	}

	if s.Position != nil && s.Position.NotionalQuote != nil && s.Position.NotionalQuote.Cmp(limits.WarnPositionNotionalQuote) > 0 {
		result.escalate(LevelCaution, ActionAllow, "position_notional_exceeds_warn")
	}
	if marginUtilBps.Cmp(limits.WarnMarginUtilBps) > 0 {
		result.escalate(LevelCaution, ActionAllow, "margin_utilization_exceeds_warn")
	}
	if liqDistBps != nil && liqDistBps.Cmp(limits.WarnLiquidationDistBps) < 0 {
		result.escalate(LevelCaution, ActionAllow, "liquidation_distance_below_warn")
	}

	return result
}

var bpsScale = big.NewInt(model.BpsScale)

func marginUtilizationBps(marginUsed, equity *big.Int) *big.Int {
	if marginUsed == nil {
		marginUsed = big.NewInt(0)
	}
	denom := equity
	if denom == nil || denom.Sign() < 1 {
		denom = big.NewInt(1)
	}
	num := new(big.Int).Mul(marginUsed, bpsScale)
	v := new(big.Int).Quo(num, denom)
	if v.Cmp(bpsScale) > 0 {
		return new(big.Int).Set(bpsScale)
	}
	return v
}

func drawdownBps(peak, equity *big.Int) *big.Int {
	diff := new(big.Int).Sub(peak, equity)
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(diff, bpsScale)
	return new(big.Int).Quo(num, peak)
}

func liquidationDistanceBps(side *model.Side, mark, liq *big.Int) *big.Int {
	if side == nil || liq == nil || mark == nil || mark.Sign() == 0 {
		return new(big.Int).Set(bpsScale)
	}
	var diff *big.Int
	switch *side {
	case model.SideLong:
		diff = new(big.Int).Sub(mark, liq)
	case model.SideShort:
		diff = new(big.Int).Sub(liq, mark)
	default:
		return new(big.Int).Set(bpsScale)
	}
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(diff, bpsScale)
	return new(big.Int).Quo(num, mark)
}
