// Package reconciler implements the periodic truth-fetch and drift
// classification for the state store's REST-wins precedence rule.
// Grounded on the Start-ticker-loop / fetch-compare-apply / severity-logging
// shape used elsewhere in this codebase for background reconciliation,
// rewritten as a pure function over a snapshot plus truth (a float
// math.Abs(diff) > 0.0001 tolerance becomes an integer bps comparison)
// with side effects limited to the state-store update.
package reconciler

import (
	"context"
	"math/big"
	"time"

	"trading-core/internal/exchange"
	"trading-core/internal/model"
	"trading-core/internal/obslog"
	"trading-core/internal/position"
	"trading-core/internal/statestore"
)

// Severity classifies an inconsistency.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// PositionInconsistency is one diff between the pre-update derived
// position and the post-fetch authoritative one.
type PositionInconsistency struct {
	Symbol   string
	Field    string // "open", "side", "perpQuantityBase", "spotQuantityBase"
	DiffBps  *big.Int
	Severity Severity
}

// BalanceInconsistency is a per-asset total-balance diff.
type BalanceInconsistency struct {
	Asset    string
	DiffBps  *big.Int
	Severity Severity
}

// Report is the reconciler's pure output for one cycle.
type Report struct {
	Consistent             bool
	PositionInconsistencies []PositionInconsistency
	BalanceInconsistencies  []BalanceInconsistency
	CorrectedPosition       *model.DerivedPosition
	Timestamp               time.Time
}

// Tolerance holds the bps thresholds separating warning from critical.
type Tolerance struct {
	SizeBps            int64 // position size diff threshold (warning <= this)
	BalanceCriticalBps int64 // balance diff threshold (default 500 = 5%)
}

// DefaultTolerance matches the documented defaults.
func DefaultTolerance() Tolerance {
	return Tolerance{SizeBps: 10, BalanceCriticalBps: 500}
}

// Adapter is the minimal subset of exchange.Adapter the reconciler needs,
// declared locally so the reconciler stays testable against a narrow fake
// without depending on the full Adapter contract.
type Adapter interface {
	GetBalances(ctx context.Context) ([]model.Balance, error)
	GetPositions(ctx context.Context) ([]model.Position, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]exchange.ExchangeOrder, error)
}

// Reconciler runs the periodic truth-fetch against a Store.
type Reconciler struct {
	adapter      Adapter
	store        *statestore.Store
	interval     time.Duration
	tolerance    Tolerance
	baseDecimals int
	log          *obslog.Logger
}

// New builds a Reconciler.
func New(adapter Adapter, store *statestore.Store, interval time.Duration, tolerance Tolerance, baseDecimals int, log *obslog.Logger) *Reconciler {
	return &Reconciler{adapter: adapter, store: store, interval: interval, tolerance: tolerance, baseDecimals: baseDecimals, log: log}
}

// Start runs Reconcile on a ticker until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil {
				r.log.Error(err, "reconcile cycle failed")
			}
		}
	}
}

// Reconcile performs one fetch-compare-apply cycle.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	preState := r.store.Snapshot()

	balances, err := r.adapter.GetBalances(ctx)
	if err != nil {
		return Report{}, err
	}
	positions, err := r.adapter.GetPositions(ctx)
	if err != nil {
		return Report{}, err
	}
	openOrders, err := r.adapter.GetOpenOrders(ctx, "")
	if err != nil {
		return Report{}, err
	}

	now := time.Now()
	report := r.compare(preState, positions, balances, now)

	r.store.UpdateBalances(balances, now)
	r.store.UpdatePositions(positions, now)
	r.store.UpdateOrders(mergeExchangeOrders(preState.OpenOrders, openOrders), now)

	r.logReport(report)
	return report, nil
}

func (r *Reconciler) compare(pre *model.BotState, truthPositions []model.Position, truthBalances []model.Balance, now time.Time) Report {
	report := Report{Consistent: true, Timestamp: now}

	truthPosBySymbol := make(map[string]model.Position, len(truthPositions))
	for _, p := range truthPositions {
		truthPosBySymbol[p.Symbol] = p
	}

	var lastCorrected *model.DerivedPosition
	for symbol, prePos := range pre.Positions {
		truth, ok := truthPosBySymbol[symbol]
		preDerived := position.Derive(&prePos, nil, nil, r.baseDecimals)
		if !ok {
			if preDerived.Open {
				report.PositionInconsistencies = append(report.PositionInconsistencies, PositionInconsistency{
					Symbol: symbol, Field: "open", Severity: SeverityCritical,
				})
				report.Consistent = false
			}
			continue
		}
		truthDerived := position.Derive(&truth, nil, nil, r.baseDecimals)
		lastCorrected = &truthDerived

		if preDerived.Open != truthDerived.Open {
			report.PositionInconsistencies = append(report.PositionInconsistencies, PositionInconsistency{
				Symbol: symbol, Field: "open", Severity: SeverityCritical,
			})
			report.Consistent = false
			continue
		}
		if preDerived.Side != nil && truthDerived.Side != nil && *preDerived.Side != *truthDerived.Side {
			report.PositionInconsistencies = append(report.PositionInconsistencies, PositionInconsistency{
				Symbol: symbol, Field: "side", Severity: SeverityCritical,
			})
			report.Consistent = false
			continue
		}
		if inc, ok := r.sizeInconsistency(symbol, "perpQuantityBase", preDerived.PerpQtyBase, truthDerived.PerpQtyBase); ok {
			report.PositionInconsistencies = append(report.PositionInconsistencies, inc)
			if inc.Severity == SeverityCritical {
				report.Consistent = false
			}
		}
		if inc, ok := r.sizeInconsistency(symbol, "spotQuantityBase", preDerived.SpotQtyBase, truthDerived.SpotQtyBase); ok {
			report.PositionInconsistencies = append(report.PositionInconsistencies, inc)
			if inc.Severity == SeverityCritical {
				report.Consistent = false
			}
		}
	}

	truthBalBySymbol := make(map[string]model.Balance, len(truthBalances))
	for _, b := range truthBalances {
		truthBalBySymbol[b.Asset] = b
	}
	for asset, preBal := range pre.Balances {
		truth, ok := truthBalBySymbol[asset]
		if !ok {
			continue
		}
		diffBps := bpsDiff(preBal.TotalBase, truth.TotalBase)
		if diffBps.Sign() == 0 {
			continue
		}
		sev := SeverityWarning
		if diffBps.CmpAbs(big.NewInt(r.tolerance.BalanceCriticalBps)) > 0 {
			sev = SeverityCritical
			report.Consistent = false
		}
		report.BalanceInconsistencies = append(report.BalanceInconsistencies, BalanceInconsistency{
			Asset: asset, DiffBps: diffBps, Severity: sev,
		})
	}

	report.CorrectedPosition = lastCorrected
	return report
}

func (r *Reconciler) sizeInconsistency(symbol, field string, pre, truth *big.Int) (PositionInconsistency, bool) {
	diffBps := bpsDiff(pre, truth)
	if diffBps.Sign() == 0 {
		return PositionInconsistency{}, false
	}
	sev := SeverityWarning
	if diffBps.CmpAbs(big.NewInt(r.tolerance.SizeBps)) > 0 {
		sev = SeverityCritical
	}
	return PositionInconsistency{Symbol: symbol, Field: field, DiffBps: diffBps, Severity: sev}, true
}

// bpsDiff returns |pre-truth| * 10000 / max(1, |truth|).
func bpsDiff(pre, truth *big.Int) *big.Int {
	if pre == nil {
		pre = big.NewInt(0)
	}
	if truth == nil {
		truth = big.NewInt(0)
	}
	diff := new(big.Int).Sub(pre, truth)
	diff.Abs(diff)
	if diff.Sign() == 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Abs(truth)
	if denom.Sign() == 0 {
		denom = big.NewInt(1)
	}
	num := new(big.Int).Mul(diff, big.NewInt(model.BpsScale))
	return new(big.Int).Quo(num, denom)
}

// mergeExchangeOrders folds the adapter's REST-truth order view into the
// pre-reconcile tracked orders, keeping the core's own ID/IntentID while
// letting the exchange's status and fill fields win per the REST-truth
// precedence rule. An exchange order with no locally-tracked counterpart
// (e.g. placed out of band) is dropped rather than silently adopted,
// since the core never acts on an order it doesn't hold an intent for.
func mergeExchangeOrders(pre map[string]model.ManagedOrder, truth []exchange.ExchangeOrder) []model.ManagedOrder {
	byExchangeID := make(map[string]model.ManagedOrder, len(pre))
	for _, o := range pre {
		if o.ExchangeOrderID != "" {
			byExchangeID[o.ExchangeOrderID] = o
		}
	}
	merged := make([]model.ManagedOrder, 0, len(truth))
	for _, t := range truth {
		o, ok := byExchangeID[t.ExchangeOrderID]
		if !ok {
			continue
		}
		o.Status = t.Status
		o.FilledQuantityBase = t.FilledQuantityBase
		o.AvgFillPriceQuote = t.AvgFillPriceQuote
		merged = append(merged, o)
	}
	return merged
}

func (r *Reconciler) logReport(report Report) {
	criticalCount := 0
	for _, i := range report.PositionInconsistencies {
		if i.Severity == SeverityCritical {
			criticalCount++
		}
	}
	for _, i := range report.BalanceInconsistencies {
		if i.Severity == SeverityCritical {
			criticalCount++
		}
	}
	switch {
	case criticalCount > 0:
		r.log.Warn("reconcile found critical drift", "criticalCount", criticalCount)
	case len(report.PositionInconsistencies) > 0 || len(report.BalanceInconsistencies) > 0:
		r.log.Info("reconcile found warning-level drift")
	default:
		r.log.Debug("reconcile consistent")
	}
}
