package orderbook

import (
	"sync"
	"time"
)

type bidState struct {
	bid       float64
	changedAt time.Time
	seenAt    time.Time
}

// BidTracker records when each token's best bid last moved.
type BidTracker struct {
	opts  options
	mu    sync.Mutex
	state map[string]*bidState
}

// NewBidTracker creates an empty BidTracker.
func NewBidTracker(opts ...Option) *BidTracker {
	return &BidTracker{
		opts:  buildOptions(opts),
		state: make(map[string]*bidState),
	}
}

// Record notes the best bid seen at ts. The change timestamp only moves
// when the bid price differs from the previous observation.
func (t *BidTracker) Record(tokenID string, bestBid float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[tokenID]
	if !ok {
		t.state[tokenID] = &bidState{bid: bestBid, changedAt: ts, seenAt: ts}
		return
	}
	if ts.Before(st.seenAt) {
		return
	}
	st.seenAt = ts
	if bestBid != st.bid {
		st.bid = bestBid
		st.changedAt = ts
	}
}

// StalenessSec returns the seconds elapsed since the bid last changed.
func (t *BidTracker) StalenessSec(tokenID string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state[tokenID]
	if !ok {
		return 0, false
	}
	d := t.opts.now().Sub(st.changedAt)
	if d < 0 {
		d = 0
	}
	return d.Seconds(), true
}

// Forget drops the state for tokenID.
func (t *BidTracker) Forget(tokenID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, tokenID)
}
