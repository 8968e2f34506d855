package orderbook

import (
	"sync"
	"time"
)

// depthSample is one depth observation for a token.
type depthSample struct {
	bid   float64
	ask   float64
	total float64
}

// DepthTracker keeps a trailing window of book depth per token and detects
// liquidity collapses.
type DepthTracker struct {
	opts   options
	mu     sync.Mutex
	series map[string]*series[depthSample]
}

// NewDepthTracker creates a DepthTracker with a 30s retention window.
func NewDepthTracker(opts ...Option) *DepthTracker {
	return &DepthTracker{
		opts:   buildOptions(opts),
		series: make(map[string]*series[depthSample]),
	}
}

// Record adds a depth observation for tokenID.
func (t *DepthTracker) Record(tokenID string, bidDepth, askDepth float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[tokenID]
	if !ok {
		s = &series[depthSample]{}
		t.series[tokenID] = s
	}
	s.push(ts, depthSample{bid: bidDepth, ask: askDepth, total: bidDepth + askDepth}, t.opts.depthWindow)
}

// DepthChange compares the latest total depth with the oldest sample at or
// after now-window and returns the signed percentage change. Negative means
// the book got thinner. ok is false without two samples in the window or
// with an empty baseline.
func (t *DepthTracker) DepthChange(tokenID string, window time.Duration) (pct float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.series[tokenID]
	if !exists {
		return 0, false
	}
	live := s.since(t.opts.now().Add(-window))
	if len(live) < 2 {
		return 0, false
	}
	base := live[0].v.total
	if base <= 0 {
		return 0, false
	}
	latest := live[len(live)-1].v.total
	return (latest - base) * 100 / base, true
}

// IsCollapsed reports whether depth over the default comparison window fell
// by at least thresholdPct percent.
func (t *DepthTracker) IsCollapsed(tokenID string, thresholdPct float64) bool {
	change, ok := t.DepthChange(tokenID, t.opts.depthCompare)
	return ok && change <= -thresholdPct
}

// Latest returns the most recent total depth for tokenID.
func (t *DepthTracker) Latest(tokenID string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[tokenID]
	if !ok {
		return 0, false
	}
	last, ok := s.last()
	return last.v.total, ok
}

// Forget drops all samples for tokenID.
func (t *DepthTracker) Forget(tokenID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.series, tokenID)
}
