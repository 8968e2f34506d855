package orderbook

import (
	"sync"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Analytics fans every ladder observation out to the snapshot builder and
// the three rolling trackers, and keeps the latest snapshot per token.
type Analytics struct {
	Spread *SpreadTracker
	Depth  *DepthTracker
	Bids   *BidTracker

	mu     sync.RWMutex
	latest map[string]domain.OrderbookSnapshot
}

// NewAnalytics creates the trackers with shared options.
func NewAnalytics(opts ...Option) *Analytics {
	return &Analytics{
		Spread: NewSpreadTracker(opts...),
		Depth:  NewDepthTracker(opts...),
		Bids:   NewBidTracker(opts...),
		latest: make(map[string]domain.OrderbookSnapshot),
	}
}

// Observe builds a snapshot from raw ladders and records it.
func (a *Analytics) Observe(tokenID string, bids, asks []domain.PriceLevel, ts time.Time) domain.OrderbookSnapshot {
	snap := BuildSnapshot(tokenID, bids, asks, ts)
	a.Record(snap)
	return snap
}

// Record feeds an already-built snapshot into the trackers.
func (a *Analytics) Record(snap domain.OrderbookSnapshot) {
	a.Spread.Record(snap.TokenID, snap.Spread, snap.Timestamp)
	a.Depth.Record(snap.TokenID, snap.BidDepth, snap.AskDepth, snap.Timestamp)
	a.Bids.Record(snap.TokenID, snap.BestBid, snap.Timestamp)

	a.mu.Lock()
	if prev, ok := a.latest[snap.TokenID]; !ok || !snap.Timestamp.Before(prev.Timestamp) {
		a.latest[snap.TokenID] = snap
	}
	a.mu.Unlock()
}

// Latest returns the most recent snapshot for tokenID.
func (a *Analytics) Latest(tokenID string) (domain.OrderbookSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.latest[tokenID]
	return snap, ok
}

// Forget drops every piece of state held for tokenID.
func (a *Analytics) Forget(tokenID string) {
	a.Spread.Forget(tokenID)
	a.Depth.Forget(tokenID)
	a.Bids.Forget(tokenID)

	a.mu.Lock()
	delete(a.latest, tokenID)
	a.mu.Unlock()
}
