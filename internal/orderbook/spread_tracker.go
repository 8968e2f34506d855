package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SpreadTracker keeps a trailing window of spreads per token and classifies
// the current spread against the window average.
type SpreadTracker struct {
	opts   options
	mu     sync.Mutex
	series map[string]*series[float64]
}

// NewSpreadTracker creates a SpreadTracker with a 60s window and a
// 10-sample minimum unless overridden.
func NewSpreadTracker(opts ...Option) *SpreadTracker {
	return &SpreadTracker{
		opts:   buildOptions(opts),
		series: make(map[string]*series[float64]),
	}
}

// Record adds a spread observation for tokenID.
func (t *SpreadTracker) Record(tokenID string, spread float64, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[tokenID]
	if !ok {
		s = &series[float64]{}
		t.series[tokenID] = s
	}
	s.push(ts, spread, t.opts.spreadWindow)
}

// AvgSpread returns the mean spread over the trailing window. ok is false
// when fewer than the minimum number of samples are in the window.
func (t *SpreadTracker) AvgSpread(tokenID string) (avg float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.avgLocked(tokenID)
	if !ok {
		return 0, false
	}
	avg, _ = d.Float64()
	return avg, true
}

// SpreadRatio returns current divided by the window average. ok is false
// when the average is unknown or zero.
func (t *SpreadTracker) SpreadRatio(tokenID string, current float64) (ratio float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	avg, ok := t.avgLocked(tokenID)
	if !ok || !avg.IsPositive() {
		return 0, false
	}
	ratio, _ = decimal.NewFromFloat(current).Div(avg).Float64()
	return ratio, true
}

// IsMMCapitulation reports whether market makers have pulled quotes wide:
// the current spread is at least twice the window average.
func (t *SpreadTracker) IsMMCapitulation(tokenID string, current float64) bool {
	r, ok := t.SpreadRatio(tokenID, current)
	return ok && r >= mmCapitulationRatio
}

// IsMMLowConviction reports an unusually tight spread: the ratio is below 1.2.
func (t *SpreadTracker) IsMMLowConviction(tokenID string, current float64) bool {
	r, ok := t.SpreadRatio(tokenID, current)
	return ok && r < mmLowConvictionRatio
}

// Forget drops all samples for tokenID.
func (t *SpreadTracker) Forget(tokenID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.series, tokenID)
}

func (t *SpreadTracker) avgLocked(tokenID string) (decimal.Decimal, bool) {
	s, ok := t.series[tokenID]
	if !ok {
		return decimal.Zero, false
	}
	live := s.since(t.opts.now().Add(-t.opts.spreadWindow))
	if len(live) < t.opts.minSpreadSamples {
		return decimal.Zero, false
	}
	sum := decimal.Zero
	for _, smp := range live {
		sum = sum.Add(decimal.NewFromFloat(smp.v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(live)))), true
}
