package position

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/execution"
)

var t0 = time.Unix(1_700_000_000, 0)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func openAt(price, shares float64, maker bool, params ExitParams) *Position {
	fill := domain.Fill{TokenID: "up-tok", Price: price, Size: shares, WasMaker: maker, FilledAt: t0}
	return Open(Entry{Asset: "BTC", ConditionID: "0xc", Direction: domain.DirectionUp, Strategy: "test"}, fill, params)
}

func TestOpen(t *testing.T) {
	p := openAt(0.40, 100, false, DefaultExitParams())
	if p.ID == "" {
		t.Fatalf("expected position id")
	}
	if !near(p.CostUSD, 40) {
		t.Fatalf("unexpected cost: %v", p.CostUSD)
	}
	if !near(p.EntryFeePct, execution.TakerFeePct(0.40)) {
		t.Fatalf("unexpected entry fee pct: %v", p.EntryFeePct)
	}
	if p.PnLPct() != 0 || p.HighWaterMark() != 0.40 {
		t.Fatalf("fresh position should sit at entry")
	}

	maker := openAt(0.40, 100, true, DefaultExitParams())
	if maker.EntryFeePct != 0 {
		t.Fatalf("maker entry should carry no fee, got %v", maker.EntryFeePct)
	}
}

func TestHighWaterMarkMonotonic(t *testing.T) {
	p := openAt(0.50, 10, true, DefaultExitParams())
	prices := []float64{0.52, 0.55, 0.51, 0.53, 0.45}
	want := []float64{0.52, 0.55, 0.55, 0.55, 0.55}
	for i, px := range prices {
		p.Observe(px, t0.Add(time.Duration(i+1)*time.Second))
		if got := p.HighWaterMark(); got != want[i] {
			t.Fatalf("tick %d: hwm = %v, want %v", i, got, want[i])
		}
	}
}

func TestRatchetConfirmation(t *testing.T) {
	params := DefaultExitParams()
	p := openAt(0.50, 10, true, params)

	p.Observe(0.60, t0.Add(1*time.Second))
	p.Observe(0.598, t0.Add(2*time.Second))
	if _, ok := p.ConfirmedHighPct(); ok {
		t.Fatalf("high confirmed after only two ticks")
	}
	p.Observe(0.595, t0.Add(3*time.Second))
	high, ok := p.ConfirmedHighPct()
	if !ok || !near(high, 20) {
		t.Fatalf("expected confirmed high of 20%%, got %v %v", high, ok)
	}

	// A new high restarts confirmation; a tick outside tolerance resets it.
	p.Observe(0.70, t0.Add(4*time.Second))
	p.Observe(0.60, t0.Add(5*time.Second))
	p.Observe(0.70, t0.Add(6*time.Second))
	p.Observe(0.70, t0.Add(7*time.Second))
	if high, _ := p.ConfirmedHighPct(); !near(high, 20) {
		t.Fatalf("confirmed high advanced without %d consecutive ticks: %v", params.RatchetConfirmTicks, high)
	}
	p.Observe(0.70, t0.Add(8*time.Second))
	if high, _ := p.ConfirmedHighPct(); !near(high, 40) {
		t.Fatalf("expected confirmed high of 40%%, got %v", high)
	}
}

// Each tick of a slow climb is a new high within tolerance of the last one,
// so the climb itself confirms.
func TestRatchetConfirmsSteadyGrind(t *testing.T) {
	p := openAt(0.50, 10, true, DefaultExitParams())
	prices := []float64{0.55, 0.552, 0.554, 0.556, 0.558, 0.56}
	for i, px := range prices {
		p.Observe(px, t0.Add(time.Duration(i+1)*time.Second))
		_, ok := p.ConfirmedHighPct()
		if want := i >= 2; ok != want {
			t.Fatalf("tick %d (%v): confirmed = %v, want %v", i, px, ok, want)
		}
	}
	if high, _ := p.ConfirmedHighPct(); !near(high, 12) {
		t.Fatalf("confirmed high = %v, want 12", high)
	}
}

func TestObserveIgnoresStaleTicks(t *testing.T) {
	p := openAt(0.50, 10, true, DefaultExitParams())
	p.Observe(0.55, t0.Add(2*time.Second))
	p.Observe(0.10, t0.Add(time.Second))
	if p.CurrentPrice() != 0.55 {
		t.Fatalf("stale tick applied: %v", p.CurrentPrice())
	}
}

func TestObserveIgnoresRepeatedTimestamp(t *testing.T) {
	p := openAt(0.50, 10, true, DefaultExitParams())
	ts := t0.Add(time.Second)
	if !p.Observe(0.60, ts) {
		t.Fatal("first observation rejected")
	}
	for i := 0; i < 3; i++ {
		if p.Observe(0.60, ts) {
			t.Fatalf("repeat %d applied", i)
		}
	}
	if _, ok := p.ConfirmedHighPct(); ok {
		t.Fatal("one observation confirmed the high")
	}

	// The previous price still reflects the last real move.
	p.Observe(0.58, ts.Add(time.Second))
	p.Observe(0.58, ts.Add(time.Second))
	if !p.AdverseMove() {
		t.Fatal("adverse move lost after a repeated frame")
	}
}

func TestClose(t *testing.T) {
	tests := []struct {
		name       string
		entryMaker bool
		exitMaker  bool
	}{
		{"maker both", true, true},
		{"taker entry", false, true},
		{"taker exit", true, false},
		{"taker both", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openAt(0.40, 100, tt.entryMaker, DefaultExitParams())
			p.Observe(0.50, t0.Add(30*time.Second))

			cp, err := p.Close(0.50, domain.ExitTakeProfit, tt.exitMaker, t0.Add(60*time.Second))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var fees float64
			if !tt.entryMaker {
				fees += execution.TakerFee(0.40) * 100
			}
			if !tt.exitMaker {
				fees += execution.TakerFee(0.50) * 100
			}
			if !near(cp.GrossPnL, 10) {
				t.Fatalf("gross = %v, want 10", cp.GrossPnL)
			}
			if !near(cp.NetPnL, 10-fees) {
				t.Fatalf("net = %v, want %v", cp.NetPnL, 10-fees)
			}
			if cp.HoldTimeSec != 60 || cp.ExitReason != domain.ExitTakeProfit {
				t.Fatalf("unexpected close record: %+v", cp)
			}

			if _, err := p.Close(0.60, domain.ExitManual, true, t0.Add(90*time.Second)); !errors.Is(err, domain.ErrAlreadyClosed) {
				t.Fatalf("second close: got %v, want ErrAlreadyClosed", err)
			}
		})
	}
}

func TestSizing(t *testing.T) {
	s := DefaultSizing()

	if got := s.SharesFor(20, 0.40); got != 50 {
		t.Fatalf("SharesFor(20, 0.40) = %v, want 50", got)
	}
	if got := s.SharesFor(500, 0.40); got != 125 {
		t.Fatalf("SharesFor capped by usd = %v, want 125", got)
	}
	if got := s.SharesFor(50, 0.10); got != 200 {
		t.Fatalf("SharesFor capped by shares = %v, want 200", got)
	}

	tests := []struct {
		name   string
		shares float64
		price  float64
		open   int
		cap    string
	}{
		{"ok", 50, 0.40, 0, ""},
		{"min shares is exclusive", 5, 0.40, 0, "min_shares"},
		{"max shares", 201, 0.10, 0, "max_shares"},
		{"max usd", 150, 0.40, 0, "max_position_usd"},
		{"max positions", 50, 0.40, 3, "max_positions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Admit(tt.shares, tt.price, tt.open)
			if tt.cap == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ae *AdmissionError
			if !errors.As(err, &ae) {
				t.Fatalf("expected *AdmissionError, got %v", err)
			}
			if ae.Cap != tt.cap {
				t.Fatalf("cap = %s, want %s", ae.Cap, tt.cap)
			}
			if !errors.Is(err, domain.ErrAdmission) {
				t.Fatalf("admission error should match domain.ErrAdmission")
			}
		})
	}
}
