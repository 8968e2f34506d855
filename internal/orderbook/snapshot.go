// Package orderbook turns raw bid/ask ladders into normalized snapshots and
// keeps the rolling per-token trackers (spread regime, depth collapse, bid
// staleness) the exit and entry logic reads from.
package orderbook

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// OBI bucket boundaries.
const (
	obiHeavyBid = 0.30
	obiLeanAsk  = -0.30
	obiHeavyAsk = -0.60
)

// BuildSnapshot computes depth, imbalance, spread and mid from raw ladders.
// Levels with non-positive size are ignored. With no bids the best bid is 0
// and with no asks the best ask is 1, so spread and mid stay finite on a
// one-sided book.
func BuildSnapshot(tokenID string, bids, asks []domain.PriceLevel, ts time.Time) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		TokenID:   tokenID,
		Bids:      cleanLevels(bids, true),
		Asks:      cleanLevels(asks, false),
		BestBid:   0,
		BestAsk:   1,
		Timestamp: ts,
	}
	if len(snap.Bids) > 0 {
		snap.BestBid = snap.Bids[0].Price
	}
	if len(snap.Asks) > 0 {
		snap.BestAsk = snap.Asks[0].Price
	}

	bidDepth := sumSize(snap.Bids)
	askDepth := sumSize(snap.Asks)
	snap.BidDepth, _ = bidDepth.Float64()
	snap.AskDepth, _ = askDepth.Float64()

	total := bidDepth.Add(askDepth)
	if total.IsPositive() {
		snap.OBI, _ = bidDepth.Sub(askDepth).Div(total).Float64()
	}

	snap.Spread = snap.BestAsk - snap.BestBid
	snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	if snap.MidPrice > 0 {
		snap.SpreadPct = snap.Spread / snap.MidPrice * 100
	}
	return snap
}

// CategorizeOBI maps an imbalance value in [-1, 1] onto one of five
// contiguous buckets.
func CategorizeOBI(obi float64) domain.OBIBucket {
	switch {
	case obi > obiHeavyBid:
		return domain.OBIBidHeavy
	case obi > 0:
		return domain.OBIBidLean
	case obi > obiLeanAsk:
		return domain.OBIBalanced
	case obi > obiHeavyAsk:
		return domain.OBIAskLean
	default:
		return domain.OBIAskHeavy
	}
}

// cleanLevels copies the ladder without empty levels, best price first.
func cleanLevels(levels []domain.PriceLevel, bids bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Size > 0 {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if bids {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

func sumSize(levels []domain.PriceLevel) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range levels {
		sum = sum.Add(decimal.NewFromFloat(l.Size))
	}
	return sum
}
