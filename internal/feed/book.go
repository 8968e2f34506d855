package feed

import (
	"sort"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// localBook is a price-keyed ladder rebuilt from book frames and patched by
// price_change updates.
type localBook struct {
	bids map[float64]float64
	asks map[float64]float64
}

func newLocalBook(bids, asks []domain.PriceLevel) *localBook {
	b := &localBook{}
	b.reset(bids, asks)
	return b
}

func (b *localBook) reset(bids, asks []domain.PriceLevel) {
	b.bids = make(map[float64]float64, len(bids))
	b.asks = make(map[float64]float64, len(asks))
	for _, l := range bids {
		if l.Size > 0 {
			b.bids[l.Price] = l.Size
		}
	}
	for _, l := range asks {
		if l.Size > 0 {
			b.asks[l.Price] = l.Size
		}
	}
}

// apply sets or removes one level. A zero size removes the level.
func (b *localBook) apply(pc domain.PriceChange) {
	side := b.bids
	if pc.Side == domain.OrderSideSell {
		side = b.asks
	}
	if pc.Size <= 0 {
		delete(side, pc.Price)
		return
	}
	side[pc.Price] = pc.Size
}

// ladders returns bids best-first (descending) and asks best-first
// (ascending).
func (b *localBook) ladders() (bids, asks []domain.PriceLevel) {
	bids = toLevels(b.bids)
	asks = toLevels(b.asks)
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return bids, asks
}

func toLevels(m map[float64]float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(m))
	for p, s := range m {
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}
