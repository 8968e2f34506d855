package position

import (
	"sort"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

func signals(timeLeft float64) Signals {
	return Signals{Now: t0.Add(time.Minute), TimeLeftSec: timeLeft}
}

func TestEvaluationOrderCoversEveryReason(t *testing.T) {
	if !sort.SliceIsSorted(evaluationOrder, func(i, j int) bool {
		return evaluationOrder[i].Priority() < evaluationOrder[j].Priority()
	}) {
		t.Fatalf("evaluation order does not follow priority")
	}
	inTable := make(map[domain.ExitReason]bool)
	for _, r := range evaluationOrder {
		inTable[r] = true
	}
	p := openAt(0.5, 10, true, DefaultExitParams())
	for _, r := range domain.AllExitReasons {
		if inTable[r] {
			continue
		}
		// Reasons outside the table are raised by the engine, never by Evaluate.
		if triggered(r, p, Signals{TimeLeftSec: 0, DepthCollapsed: true}, DefaultExitParams()) {
			t.Errorf("%s should never trigger from Evaluate", r)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		sig    Signals
		params func(*ExitParams)
		want   domain.ExitReason
		fires  bool
	}{
		{
			name:   "hold",
			prices: []float64{0.505},
			sig:    signals(600),
		},
		{
			name:   "force exit beats take profit",
			prices: []float64{0.80},
			sig:    signals(30),
			want:   domain.ExitForce,
			fires:  true,
		},
		{
			name:   "stop loss",
			prices: []float64{0.39},
			sig:    signals(600),
			want:   domain.ExitStopLoss,
			fires:  true,
		},
		{
			name:   "ratchet floor",
			prices: []float64{0.56, 0.56, 0.56, 0.52},
			sig:    signals(600),
			params: func(p *ExitParams) { p.TrailingEnabled = false },
			want:   domain.ExitRatchetFloor,
			fires:  true,
		},
		{
			name:   "ratchet needs activation",
			prices: []float64{0.51, 0.51, 0.51, 0.48},
			sig:    signals(600),
			params: func(p *ExitParams) { p.RatchetGivebackPct = 1 },
		},
		{
			name:   "trailing late regime",
			prices: []float64{0.56, 0.535},
			sig:    signals(120),
			want:   domain.ExitTrailingStop,
			fires:  true,
		},
		{
			name:   "trailing disabled",
			prices: []float64{0.56, 0.535},
			sig:    signals(120),
			params: func(p *ExitParams) { p.TrailingEnabled = false },
		},
		{
			name:   "depth collapse on adverse tick",
			prices: []float64{0.54, 0.53},
			sig:    Signals{Now: t0.Add(time.Minute), TimeLeftSec: 600, DepthCollapsed: true},
			want:   domain.ExitDepthCollapse,
			fires:  true,
		},
		{
			name:   "depth collapse ignored on favourable tick",
			prices: []float64{0.53, 0.54},
			sig:    Signals{Now: t0.Add(time.Minute), TimeLeftSec: 600, DepthCollapsed: true},
		},
		{
			name:   "stale profit",
			prices: []float64{0.53},
			sig:    Signals{Now: t0.Add(time.Minute), TimeLeftSec: 600, BidStaleSec: 25, BidStaleKnown: true},
			want:   domain.ExitStaleProfit,
			fires:  true,
		},
		{
			name:   "stale profit needs known staleness",
			prices: []float64{0.53},
			sig:    Signals{Now: t0.Add(time.Minute), TimeLeftSec: 600, BidStaleSec: 25},
		},
		{
			name:   "take profit",
			prices: []float64{0.58},
			sig:    signals(600),
			params: func(p *ExitParams) { p.TrailingEnabled = false },
			want:   domain.ExitTakeProfit,
			fires:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultExitParams()
			if tt.params != nil {
				tt.params(&params)
			}
			p := openAt(0.50, 20, true, params)
			for i, px := range tt.prices {
				p.Observe(px, t0.Add(time.Duration(i+1)*time.Second))
			}
			got, fires := Evaluate(p, tt.sig, params)
			if fires != tt.fires || got != tt.want {
				t.Fatalf("Evaluate = (%v, %v), want (%v, %v)", got, fires, tt.want, tt.fires)
			}
		})
	}
}

func TestStagnantProfit(t *testing.T) {
	params := DefaultExitParams()
	params.TrailingEnabled = false
	p := openAt(0.50, 20, true, params)

	// 3% above entry, inside the 3 ± 1 band.
	p.Observe(0.515, t0.Add(time.Second))
	if _, fires := Evaluate(p, Signals{Now: t0.Add(40 * time.Second), TimeLeftSec: 600}, params); fires {
		t.Fatalf("fired before the stagnant duration elapsed")
	}
	got, fires := Evaluate(p, Signals{Now: t0.Add(46 * time.Second), TimeLeftSec: 600}, params)
	if !fires || got != domain.ExitStagnantProfit {
		t.Fatalf("Evaluate = (%v, %v), want stagnant_profit", got, fires)
	}

	// Leaving the band resets the timer.
	p.Observe(0.53, t0.Add(47*time.Second))
	p.Observe(0.515, t0.Add(48*time.Second))
	if _, fires := Evaluate(p, Signals{Now: t0.Add(60 * time.Second), TimeLeftSec: 600}, params); fires {
		t.Fatalf("timer should restart after leaving the band")
	}
}

func TestTrailingWidthRegimes(t *testing.T) {
	p := DefaultExitParams()
	tests := []struct {
		left float64
		want float64
	}{
		{900, p.TrailingWidePct},
		{421, p.TrailingWidePct},
		{420, p.TrailingMidPct},
		{180, p.TrailingMidPct},
		{179, p.TrailingLatePct},
		{0, p.TrailingLatePct},
	}
	for _, tt := range tests {
		if got := p.TrailingWidth(tt.left); got != tt.want {
			t.Errorf("TrailingWidth(%v) = %v, want %v", tt.left, got, tt.want)
		}
	}
}

// A maker entry at 0.40 for 100 shares runs to 0.55, holds there for three
// ticks and retraces to 0.50: a confirmed 37.5% high given back to 25%.
// Take profit is lifted out of the way so only the ratchet and the trailing
// stop compete.
func TestRetraceFromConfirmedHigh(t *testing.T) {
	tests := []struct {
		name     string
		giveback float64 // ratchet
		wide     float64
		mid      float64
		timeLeft float64
		want     domain.ExitReason
		fires    bool
	}{
		{name: "ratchet floor preempts trailing", giveback: 5, wide: 10, mid: 6, timeLeft: 480, want: domain.ExitRatchetFloor, fires: true},
		{name: "mid giveback exceeded", giveback: 15, wide: 20, mid: 10, timeLeft: 400, want: domain.ExitTrailingStop, fires: true},
		{name: "mid giveback not exceeded", giveback: 15, wide: 20, mid: 15, timeLeft: 400},
		{name: "eight minutes left uses the wide width", giveback: 15, wide: 20, mid: 10, timeLeft: 480},
		{name: "wide giveback exceeded", giveback: 15, wide: 10, mid: 6, timeLeft: 480, want: domain.ExitTrailingStop, fires: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultExitParams()
			params.TakeProfitPct = 50
			params.RatchetGivebackPct = tt.giveback
			params.TrailingWidePct = tt.wide
			params.TrailingMidPct = tt.mid

			p := openAt(0.40, 100, true, params)
			for i := 1; i <= 3; i++ {
				p.Observe(0.55, t0.Add(time.Duration(i)*time.Second))
			}
			high, ok := p.ConfirmedHighPct()
			if !ok || !near(high, 37.5) {
				t.Fatalf("confirmed high = %v %v, want 37.5", high, ok)
			}
			if _, fires := Evaluate(p, Signals{Now: t0.Add(3 * time.Second), TimeLeftSec: tt.timeLeft}, params); fires {
				t.Fatal("fired at the high")
			}

			p.Observe(0.50, t0.Add(10*time.Second))
			if !near(p.HighWaterPct(), 37.5) || !near(p.PnLPct(), 25) {
				t.Fatalf("unexpected pnl: hwm=%v cur=%v", p.HighWaterPct(), p.PnLPct())
			}
			got, fires := Evaluate(p, Signals{Now: t0.Add(10 * time.Second), TimeLeftSec: tt.timeLeft}, params)
			if fires != tt.fires || got != tt.want {
				t.Fatalf("Evaluate = (%v, %v), want (%v, %v)", got, fires, tt.want, tt.fires)
			}
			if !fires {
				if p.Closed() {
					t.Fatal("position closed without an exit")
				}
				return
			}

			cp, err := p.Close(0.50, got, false, t0.Add(11*time.Second))
			if err != nil {
				t.Fatalf("close failed: %v", err)
			}
			if cp.EntryFeeUSD != 0 || cp.ExitFeeUSD == 0 {
				t.Fatalf("unexpected fees: entry=%v exit=%v", cp.EntryFeeUSD, cp.ExitFeeUSD)
			}
		})
	}
}

func TestEvaluateClosedPosition(t *testing.T) {
	p := openAt(0.50, 20, true, DefaultExitParams())
	if _, err := p.Close(0.5, domain.ExitManual, true, t0); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, fires := Evaluate(p, signals(0), DefaultExitParams()); fires {
		t.Fatalf("closed position must not fire")
	}
}
