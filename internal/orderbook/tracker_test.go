package orderbook

import (
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func TestSpreadRatio(t *testing.T) {
	clk := newClock()
	tr := NewSpreadTracker(WithClock(clk.Now))

	for i := 0; i < 9; i++ {
		tr.Record("tok", 0.02, clk.Now())
		clk.Advance(time.Second)
	}
	if _, ok := tr.SpreadRatio("tok", 0.05); ok {
		t.Fatalf("expected ratio to be unknown with 9 samples")
	}

	tr.Record("tok", 0.02, clk.Now())
	ratio, ok := tr.SpreadRatio("tok", 0.05)
	if !ok {
		t.Fatalf("expected ratio with 10 samples")
	}
	if !approx(ratio, 2.5) {
		t.Fatalf("unexpected ratio: %v", ratio)
	}
	if !tr.IsMMCapitulation("tok", 0.05) {
		t.Fatalf("expected capitulation at ratio 2.5")
	}
	if tr.IsMMLowConviction("tok", 0.05) {
		t.Fatalf("did not expect low conviction at ratio 2.5")
	}
	if !tr.IsMMLowConviction("tok", 0.022) {
		t.Fatalf("expected low conviction at ratio 1.1")
	}
}

func TestSpreadWindowExpiry(t *testing.T) {
	clk := newClock()
	tr := NewSpreadTracker(WithClock(clk.Now))
	for i := 0; i < 10; i++ {
		tr.Record("tok", 0.02, clk.Now())
	}
	if _, ok := tr.AvgSpread("tok"); !ok {
		t.Fatalf("expected average")
	}
	clk.Advance(61 * time.Second)
	if _, ok := tr.AvgSpread("tok"); ok {
		t.Fatalf("expected samples older than the window to be ignored")
	}
}

func TestSpreadUnknownToken(t *testing.T) {
	tr := NewSpreadTracker()
	if tr.IsMMCapitulation("missing", 1) || tr.IsMMLowConviction("missing", 0) {
		t.Fatalf("unknown token must not classify")
	}
}

func TestDepthCollapse(t *testing.T) {
	tests := []struct {
		name   string
		after  float64
		change float64
		want   bool
	}{
		{name: "collapse", after: 350, change: -65, want: true},
		{name: "at threshold", after: 400, change: -60, want: true},
		{name: "thinning", after: 500, change: -50, want: false},
		{name: "growth", after: 1500, change: 50, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newClock()
			tr := NewDepthTracker(WithClock(clk.Now))
			tr.Record("tok", 500, 500, clk.Now())
			clk.Advance(5 * time.Second)
			tr.Record("tok", tt.after/2, tt.after/2, clk.Now())

			change, ok := tr.DepthChange("tok", DefaultDepthCompare)
			if !ok {
				t.Fatalf("expected a depth change")
			}
			if !approx(change, tt.change) {
				t.Fatalf("unexpected change: %v", change)
			}
			if got := tr.IsCollapsed("tok", 60); got != tt.want {
				t.Fatalf("IsCollapsed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDepthChangeBaselineOutsideWindow(t *testing.T) {
	clk := newClock()
	tr := NewDepthTracker(WithClock(clk.Now))
	tr.Record("tok", 500, 500, clk.Now())
	clk.Advance(20 * time.Second)
	tr.Record("tok", 300, 300, clk.Now())
	clk.Advance(2 * time.Second)
	tr.Record("tok", 100, 100, clk.Now())

	change, ok := tr.DepthChange("tok", 10*time.Second)
	if !ok {
		t.Fatalf("expected change")
	}
	// baseline is the 600 sample, the 1000 one is outside the 10s window
	if !approx(change, (200.0-600.0)/600.0*100) {
		t.Fatalf("unexpected change: %v", change)
	}
}

func TestDepthChangeUnknown(t *testing.T) {
	clk := newClock()
	tr := NewDepthTracker(WithClock(clk.Now))
	if _, ok := tr.DepthChange("tok", time.Second); ok {
		t.Fatalf("expected unknown without samples")
	}
	tr.Record("tok", 0, 0, clk.Now())
	tr.Record("tok", 10, 10, clk.Now())
	if _, ok := tr.DepthChange("tok", time.Second); ok {
		t.Fatalf("expected unknown with zero baseline")
	}
}

func TestOutOfOrderSamplesDropped(t *testing.T) {
	clk := newClock()
	tr := NewDepthTracker(WithClock(clk.Now))
	tr.Record("tok", 500, 500, clk.Now())
	tr.Record("tok", 1, 1, clk.Now().Add(-time.Second))
	if latest, _ := tr.Latest("tok"); latest != 1000 {
		t.Fatalf("out-of-order sample was applied: %v", latest)
	}
}

func TestBidStaleness(t *testing.T) {
	clk := newClock()
	tr := NewBidTracker(WithClock(clk.Now))
	if _, ok := tr.StalenessSec("tok"); ok {
		t.Fatalf("expected unknown staleness")
	}

	tr.Record("tok", 0.50, clk.Now())
	clk.Advance(5 * time.Second)
	tr.Record("tok", 0.50, clk.Now())
	clk.Advance(5 * time.Second)

	stale, ok := tr.StalenessSec("tok")
	if !ok || !approx(stale, 10) {
		t.Fatalf("unexpected staleness: %v %v", stale, ok)
	}

	tr.Record("tok", 0.51, clk.Now())
	clk.Advance(2 * time.Second)
	if stale, _ := tr.StalenessSec("tok"); !approx(stale, 2) {
		t.Fatalf("bid change did not reset staleness: %v", stale)
	}

	tr.Forget("tok")
	if _, ok := tr.StalenessSec("tok"); ok {
		t.Fatalf("expected state to be forgotten")
	}
}

func TestAnalyticsObserve(t *testing.T) {
	clk := newClock()
	a := NewAnalytics(WithClock(clk.Now))

	bids := []domain.PriceLevel{{Price: 0.48, Size: 100}}
	asks := []domain.PriceLevel{{Price: 0.50, Size: 100}}
	a.Observe("tok", bids, asks, clk.Now())
	clk.Advance(time.Second)
	a.Observe("tok", bids, []domain.PriceLevel{{Price: 0.52, Size: 100}}, clk.Now())

	snap, ok := a.Latest("tok")
	if !ok || snap.BestAsk != 0.52 {
		t.Fatalf("unexpected latest snapshot: %+v", snap)
	}
	if stale, ok := a.Bids.StalenessSec("tok"); !ok || !approx(stale, 1) {
		t.Fatalf("unexpected staleness: %v", stale)
	}

	a.Forget("tok")
	if _, ok := a.Latest("tok"); ok {
		t.Fatalf("expected snapshot to be forgotten")
	}
}
