package execution

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func book(bid, ask, obi float64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{TokenID: "tok", BestBid: bid, BestAsk: ask, OBI: obi}
}

var testMarket = domain.Market{
	Asset:       "BTC",
	ConditionID: "0xcond",
	UpTokenID:   "up",
	DownTokenID: "down",
}

func TestMakerTimeout(t *testing.T) {
	tests := []struct {
		side   domain.OrderSide
		bucket domain.OBIBucket
		want   time.Duration
	}{
		{domain.OrderSideBuy, domain.OBIAskHeavy, 4 * time.Second},
		{domain.OrderSideBuy, domain.OBIAskLean, 2 * time.Second},
		{domain.OrderSideBuy, domain.OBIBalanced, 2 * time.Second},
		{domain.OrderSideBuy, domain.OBIBidLean, time.Second},
		{domain.OrderSideBuy, domain.OBIBidHeavy, 0},
		{domain.OrderSideSell, domain.OBIBidHeavy, 4 * time.Second},
		{domain.OrderSideSell, domain.OBIBidLean, 2 * time.Second},
		{domain.OrderSideSell, domain.OBIBalanced, 2 * time.Second},
		{domain.OrderSideSell, domain.OBIAskLean, time.Second},
		{domain.OrderSideSell, domain.OBIAskHeavy, 0},
	}
	for _, tt := range tests {
		if got := MakerTimeout(tt.side, tt.bucket); got != tt.want {
			t.Errorf("MakerTimeout(%s, %s) = %v, want %v", tt.side, tt.bucket, got, tt.want)
		}
	}
}

func TestTakerPrice(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	tests := []struct {
		name string
		side domain.OrderSide
		snap domain.OrderbookSnapshot
		want float64
	}{
		{"buy adds buffer", domain.OrderSideBuy, book(0.48, 0.52, 0), 0.53},
		{"sell subtracts buffer", domain.OrderSideSell, book(0.48, 0.52, 0), 0.47},
		{"buy clamped", domain.OrderSideBuy, book(0.97, 0.99, 0), 0.99},
		{"sell clamped", domain.OrderSideSell, book(0.01, 0.03, 0), 0.01},
		{"empty asks", domain.OrderSideBuy, book(0.40, 1, 0), 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.TakerPrice(tt.side, tt.snap); !near(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMakerPrice(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	tests := []struct {
		name string
		side domain.OrderSide
		snap domain.OrderbookSnapshot
		want float64
	}{
		{"buy improves bid", domain.OrderSideBuy, book(0.48, 0.52, 0), 0.49},
		{"buy capped below ask", domain.OrderSideBuy, book(0.48, 0.49, 0), 0.48},
		{"sell under ask", domain.OrderSideSell, book(0.48, 0.52, 0), 0.51},
		{"sell stays above bid", domain.OrderSideSell, book(0.48, 0.49, 0), 0.49},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.MakerPrice(tt.side, tt.snap)
			if !near(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if tt.side == domain.OrderSideBuy && got >= tt.snap.BestAsk {
				t.Fatalf("maker buy %v would cross ask %v", got, tt.snap.BestAsk)
			}
			if tt.side == domain.OrderSideSell && got <= tt.snap.BestBid {
				t.Fatalf("maker sell %v would cross bid %v", got, tt.snap.BestBid)
			}
		})
	}
}

func TestEntryDecision(t *testing.T) {
	p := NewPolicy(DefaultConfig())

	d := p.Entry(testMarket, domain.DirectionDown, book(0.48, 0.52, -0.5), 20)
	if d.ID == "" {
		t.Fatalf("expected a decision id")
	}
	if d.TokenID != "down" || d.Side != domain.OrderSideBuy || d.Size != 20 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.Mode != domain.ExecMakerThenTaker || d.MakerTimeout != 2*time.Second {
		t.Fatalf("unexpected mode/timeout: %s %v", d.Mode, d.MakerTimeout)
	}
	if !near(d.Price, 0.49) || !near(d.TakerPrice, 0.53) {
		t.Fatalf("unexpected prices: maker=%v taker=%v", d.Price, d.TakerPrice)
	}
}

func TestEntryZeroTimeoutBecomesTaker(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	d := p.Entry(testMarket, domain.DirectionUp, book(0.48, 0.52, 0.8), 10)
	if d.Mode != domain.ExecTaker {
		t.Fatalf("bid-heavy book should cross immediately, got %s", d.Mode)
	}
	if !near(d.Price, 0.53) || d.MakerTimeout != 0 {
		t.Fatalf("unexpected taker decision: %+v", d)
	}
}

func TestExitMode(t *testing.T) {
	tpOnly := NewPolicy(DefaultConfig())

	cfg := DefaultConfig()
	cfg.MakerExitsForTpOnly = false
	cfg.ExitMode = domain.ExecMaker
	open := NewPolicy(cfg)

	for _, r := range domain.AllExitReasons {
		got := tpOnly.ExitMode(r)
		switch {
		case r == domain.ExitTakeProfit:
			if got != domain.ExecMakerThenTaker {
				t.Errorf("tp-only %s: got %s", r, got)
			}
		default:
			if got != domain.ExecTaker {
				t.Errorf("tp-only %s: got %s, want taker", r, got)
			}
		}

		got = open.ExitMode(r)
		if r.ForcesTaker() {
			if got != domain.ExecTaker {
				t.Errorf("%s must always cross, got %s", r, got)
			}
		} else if got != domain.ExecMaker {
			t.Errorf("%s: got %s, want configured maker", r, got)
		}
	}
}

func TestExitDecision(t *testing.T) {
	p := NewPolicy(DefaultConfig())
	req := ExitRequest{PositionID: "pos-1", Asset: "ETH", ConditionID: "0xc", TokenID: "up", Shares: 15}

	d := p.Exit(req, domain.ExitStopLoss, book(0.30, 0.34, 0))
	if d.Mode != domain.ExecTaker || !near(d.Price, 0.29) {
		t.Fatalf("unexpected stop loss exit: %+v", d)
	}
	if d.PositionID != "pos-1" || d.Side != domain.OrderSideSell || d.Size != 15 || d.Reason != "stop_loss" {
		t.Fatalf("decision does not carry the request: %+v", d)
	}

	d = p.Exit(req, domain.ExitTakeProfit, book(0.60, 0.64, 0))
	if d.Mode != domain.ExecMakerThenTaker || !near(d.Price, 0.63) || !near(d.TakerPrice, 0.59) {
		t.Fatalf("unexpected take profit exit: %+v", d)
	}
	if d.MakerTimeout != 2*time.Second {
		t.Fatalf("unexpected maker timeout: %v", d.MakerTimeout)
	}
}
