// Package slippage walks an order book to estimate the fill price and
// slippage of a market order before it is sent, per the execution
// engine's pre-trade check. Grounded on the OrderBook bids/asks shape
// used throughout this repo's order-book structures, with the
// walking-accumulation algorithm written fresh since no pre-trade
// slippage estimator exists elsewhere in the codebase.
package slippage

import (
	"math/big"

	"trading-core/internal/model"
)

var bpsScale = big.NewInt(model.BpsScale)

// Estimate is the result of walking the book for one hypothetical order.
type Estimate struct {
	CanExecute           bool
	AvgFillPriceQuote    *big.Int
	MidPriceQuote        *big.Int
	EstimatedSlippageBps *big.Int
	AvailableDepthBase   *big.Int
	RequiredDepthBase    *big.Int
}

// Walk walks book (asks for BUY, bids for SELL) accumulating filled
// base and quote until either side is exhausted or requestedBase is
// reached, then compares the volume-weighted average price against the
// mid price.
func Walk(book *model.OrderBook, side model.Side, requestedBase *big.Int, maxSlippageBps int64) Estimate {
	mid := midPrice(book)
	levels := book.Asks
	if side == model.SideSell {
		levels = book.Bids
	}

	filledBase := big.NewInt(0)
	filledQuote := big.NewInt(0)
	remaining := new(big.Int).Set(requestedBase)

	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		take := lvl.QtyBase
		if take.Cmp(remaining) > 0 {
			take = new(big.Int).Set(remaining)
		}
		filledBase.Add(filledBase, take)
		filledQuote.Add(filledQuote, new(big.Int).Mul(take, lvl.PriceQuote))
		remaining.Sub(remaining, take)
	}

	est := Estimate{
		MidPriceQuote:      mid,
		AvailableDepthBase: filledBase,
		RequiredDepthBase:  requestedBase,
	}

	if filledBase.Sign() == 0 || mid.Sign() == 0 {
		est.CanExecute = false
		est.AvgFillPriceQuote = big.NewInt(0)
		est.EstimatedSlippageBps = big.NewInt(0)
		return est
	}

	avg := new(big.Int).Quo(filledQuote, filledBase)
	est.AvgFillPriceQuote = avg

	slippageBps := slippageBpsOf(side, mid, avg)
	est.EstimatedSlippageBps = slippageBps

	enoughDepth := remaining.Sign() <= 0
	withinSlippage := slippageBps.Cmp(big.NewInt(maxSlippageBps)) <= 0
	est.CanExecute = enoughDepth && withinSlippage
	return est
}

func midPrice(book *model.OrderBook) *big.Int {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return big.NewInt(0)
	}
	sum := new(big.Int).Add(bid.PriceQuote, ask.PriceQuote)
	return new(big.Int).Quo(sum, big.NewInt(2))
}

// slippageBpsOf returns the adverse slippage in bps (>=0; price improvement
// yields 0): for BUY, positive when avg > mid; for SELL, positive when avg < mid.
func slippageBpsOf(side model.Side, mid, avg *big.Int) *big.Int {
	var diff *big.Int
	switch side {
	case model.SideBuy:
		diff = new(big.Int).Sub(avg, mid)
	default:
		diff = new(big.Int).Sub(mid, avg)
	}
	if diff.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(diff, bpsScale)
	return new(big.Int).Quo(num, mid)
}
