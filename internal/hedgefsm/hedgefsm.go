// Package hedgefsm implements the delta-neutral hedge lifecycle:
// IDLE -> ENTERING_PERP -> ENTERING_SPOT -> ACTIVE -> EXITING_SPOT ->
// EXITING_PERP -> CLOSED, resolving the ADR ambiguity noted in the
// design notes by treating EXITING_PERP as authoritative. Grounded on
// the order-machine idiom in orderfsm, mirrored for the hedge's own
// transition set.
package hedgefsm

import (
	"fmt"
	"math/big"

	"trading-core/internal/model"
)

var order = []model.HedgePhase{
	model.HedgeIdle,
	model.HedgeEnteringPerp,
	model.HedgeEnteringSpot,
	model.HedgeActive,
	model.HedgeExitingSpot,
	model.HedgeExitingPerp,
	model.HedgeClosed,
}

var next = func() map[model.HedgePhase]model.HedgePhase {
	m := make(map[model.HedgePhase]model.HedgePhase, len(order))
	for i := 0; i < len(order)-1; i++ {
		m[order[i]] = order[i+1]
	}
	return m
}()

// Advance transitions a HedgeState to its next phase, carrying the
// phase-specific payload supplied by the caller. CLOSED can re-enter
// ENTERING_PERP to start a new hedge cycle.
func Advance(s model.HedgeState, intentID string, perpFilled bool, notional, spot, perp, pnl *big.Int) (model.HedgeState, error) {
	if s.Phase == model.HedgeClosed {
		return model.HedgeState{Phase: model.HedgeEnteringPerp, IntentID: intentID}, nil
	}
	to, ok := next[s.Phase]
	if !ok {
		return s, fmt.Errorf("hedgefsm: no transition defined from %s", s.Phase)
	}
	out := model.HedgeState{Phase: to}
	switch to {
	case model.HedgeEnteringSpot:
		out.PerpFilled = perpFilled
	case model.HedgeActive:
		out.NotionalQuote = notional
		out.SpotQtyBase = spot
		out.PerpQtyBase = perp
	case model.HedgeClosed:
		out.PnlQuote = pnl
	}
	return out, nil
}

// DriftBps computes |perpNotional-spotNotional|*10000/perpNotional, the
// corrective-order trigger used while ACTIVE.
func DriftBps(perpNotional, spotNotional *big.Int) *big.Int {
	if perpNotional == nil || perpNotional.Sign() == 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(perpNotional, spotNotional)
	diff.Abs(diff)
	num := new(big.Int).Mul(diff, big.NewInt(model.BpsScale))
	return new(big.Int).Quo(num, perpNotional)
}
