// Package position computes DerivedPosition views and the integer metrics
// (liquidation distance, notional, unrealized PnL) the risk evaluator and
// reconciler depend on. Grounded on the weighted-average-price and PnL
// arithmetic pattern used for fill-driven position tracking elsewhere in
// this codebase, ported from float64 to big.Int for integer arithmetic
// throughout.
package position

import (
	"math/big"

	"trading-core/internal/model"
)

var bpsScale = big.NewInt(model.BpsScale)

// LiquidationDistanceBps returns the liquidation distance in bps, clamped
// at 0 when mark has crossed to the wrong side and at BpsScale (10000) when
// there is no position or no liquidation price.
//
// LONG:  max(0, (mark-liq)*10000/mark)
// SHORT: max(0, (liq-mark)*10000/mark)
func LiquidationDistanceBps(side *model.Side, mark, liq *big.Int) *big.Int {
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

// NotionalQuote returns sizeBase * markPriceQuote scaled by baseDecimals,
// i.e. notional = size * price / 10^baseDecimals, matching the scenario
// "1 BTC (8 decimals) entry 40k mark 50k -> notional 50_000_000_000".
func NotionalQuote(sizeBase, priceQuote *big.Int, baseDecimals int) *big.Int {
	if sizeBase == nil || priceQuote == nil {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(sizeBase, priceQuote)
	div := pow10(baseDecimals)
	return new(big.Int).Quo(num, div)
}

// UnrealizedPnlQuote computes (mark-entry)*size/10^baseDecimals for LONG,
// negated for SHORT.
func UnrealizedPnlQuote(side model.Side, sizeBase, entryQuote, markQuote *big.Int, baseDecimals int) *big.Int {
	diff := new(big.Int).Sub(markQuote, entryQuote)
	if side == model.SideShort {
		diff.Neg(diff)
	}
	num := new(big.Int).Mul(diff, sizeBase)
	div := pow10(baseDecimals)
	return new(big.Int).Quo(num, div)
}

func pow10(n int) *big.Int {
	if n <= 0 {
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Derive builds a DerivedPosition from an optional Position, optional
// Balance and any pending fills not yet folded into the authoritative
// snapshot. baseDecimals controls the fixed-point scale of sizeBase.
func Derive(p *model.Position, b *model.Balance, pendingFills []model.PendingFill, baseDecimals int) model.DerivedPosition {
	if p == nil {
		spot := big.NewInt(0)
		if b != nil {
			spot = new(big.Int).Set(b.TotalBase)
		}
		for _, f := range pendingFills {
			applyFill(spot, f)
		}
		open := spot.Sign() != 0
		return model.DerivedPosition{
			Open:          open,
			SpotQtyBase:   spot,
			PerpQtyBase:   big.NewInt(0),
			NotionalQuote: big.NewInt(0),
			Source:        model.SourceDerived,
		}
	}

	perpQty := new(big.Int).Set(p.SizeBase)
	for _, f := range pendingFills {
		applyFill(perpQty, f)
	}
	spotQty := big.NewInt(0)
	if b != nil {
		spotQty = new(big.Int).Set(b.TotalBase)
	}

	side := p.Side
	notional := NotionalQuote(perpQty, p.MarkPriceQuote, baseDecimals)
	pnl := UnrealizedPnlQuote(side, perpQty, p.EntryPriceQuote, p.MarkPriceQuote, baseDecimals)
	liqDist := LiquidationDistanceBps(&side, p.MarkPriceQuote, p.LiquidationPriceQuote)

	return model.DerivedPosition{
		Open:                   perpQty.Sign() != 0,
		Side:                   &side,
		SpotQtyBase:            spotQty,
		PerpQtyBase:            perpQty,
		NotionalQuote:          notional,
		UnrealizedPnlQuote:     pnl,
		MarginUsedQuote:        p.MarginQuote,
		LiquidationDistanceBps: liqDist,
		Source:                 model.SourceDerived,
	}
}

func applyFill(qty *big.Int, f model.PendingFill) {
	switch f.Side {
	case model.SideBuy:
		qty.Add(qty, f.QtyBase)
	case model.SideSell:
		qty.Sub(qty, f.QtyBase)
	}
}
