package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

const dur = 900 * time.Second

// base sits 100s into a round: slot boundary + 100s.
var base = time.UnixMilli(1_700_000_100_000 - 1_700_000_100_000%900_000 + 100_000)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeCatalog struct {
	mu      sync.Mutex
	byQuery map[string][]domain.CatalogMarket
	fail    map[string]error
	calls   int
}

func (f *fakeCatalog) SearchMarkets(_ context.Context, q string) ([]domain.CatalogMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[q]; err != nil {
		return nil, err
	}
	return f.byQuery[q], nil
}

func (f *fakeCatalog) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func candidate(id, question string, end time.Time, outcomes ...string) domain.CatalogMarket {
	if len(outcomes) == 0 {
		outcomes = []string{"Up", "Down"}
	}
	c := domain.CatalogMarket{ConditionID: id, Question: question, EndDate: end, Active: true}
	for _, o := range outcomes {
		c.Tokens = append(c.Tokens, domain.CatalogToken{TokenID: id + "-" + o, Outcome: o, Price: 0.5, HasPrice: true})
	}
	return c
}

func newScanner(cat MarketCatalog, clk *fakeClock, assets ...Asset) *Scanner {
	cfg := DefaultConfig()
	if len(assets) > 0 {
		cfg.Assets = assets
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, cat, logger, WithClock(clk.Now))
}

func roundEnd(t time.Time) time.Time { return RoundAt(t, dur).ExpiresAt }

func TestRoundAt(t *testing.T) {
	r := RoundAt(base, dur)
	if r.TimeLeftSec != 800 || r.AgeSec != 100 {
		t.Fatalf("unexpected round timing: left=%v age=%v", r.TimeLeftSec, r.AgeSec)
	}
	if !r.ExpiresAt.Equal(r.StartsAt.Add(dur)) {
		t.Fatalf("round does not span its duration")
	}
	if got := SlotOf(r.ExpiresAt, dur); got != r.Slot {
		t.Fatalf("SlotOf(expiry) = %d, want %d", got, r.Slot)
	}

	next := RoundAt(r.ExpiresAt, dur)
	if next.Slot != r.Slot+1 || next.TimeLeftSec != 900 || next.AgeSec != 0 {
		t.Fatalf("boundary should open the next round: %+v", next)
	}
	last := RoundAt(r.ExpiresAt.Add(-time.Millisecond), dur)
	if last.Slot != r.Slot || last.TimeLeftSec != 0.001 {
		t.Fatalf("unexpected last millisecond: %+v", last)
	}
}

func TestRefreshPicksSoonestExpiry(t *testing.T) {
	clk := &fakeClock{t: base}
	end := roundEnd(base)
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC up or down": {
			candidate("later", "Bitcoin Up or Down - later", end.Add(30*time.Second)),
			candidate("soon", "BTC Up or Down 10:00-10:15", end),
		},
	}}
	s := newScanner(cat, clk, Asset{Symbol: "BTC", Name: "Bitcoin"})

	markets, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(markets) != 1 || markets[0].ConditionID != "soon" {
		t.Fatalf("unexpected markets: %+v", markets)
	}
	m, ok := s.Market("btc")
	if !ok || m.UpTokenID != "soon-Up" || m.DownTokenID != "soon-Down" {
		t.Fatalf("unexpected market lookup: %+v", m)
	}
	if m.RoundSlot != s.Round().Slot {
		t.Fatalf("market slot %d, want %d", m.RoundSlot, s.Round().Slot)
	}
}

func TestRefreshFilters(t *testing.T) {
	end := roundEnd(base)
	closed := candidate("closed", "BTC up or down", end)
	closed.Closed = true
	inactive := candidate("inactive", "BTC up or down", end)
	inactive.Active = false
	unpriced := candidate("unpriced", "BTC up or down", end)
	unpriced.Tokens[1].HasPrice = false

	tests := []struct {
		name string
		c    domain.CatalogMarket
		want bool
	}{
		{"accepted", candidate("ok", "BTC up or down", end), true},
		{"yes/no labels", candidate("yn", "Will BTC go up?", end, "Yes", "No"), true},
		{"long name only", candidate("name", "Bitcoin Up or Down", end), true},
		{"closed", closed, false},
		{"inactive", inactive, false},
		{"one priced outcome", unpriced, false},
		{"other asset", candidate("eth", "ETH up or down", end), false},
		{"already expired", candidate("past", "BTC up or down", base.Add(-time.Second)), false},
		{"too far out", candidate("far", "BTC up or down", base.Add(dur+61*time.Second)), false},
		{"next round", candidate("next", "BTC up or down", end.Add(dur)), false},
		{"unknown labels", candidate("labels", "BTC up or down", end, "Higher", "Lower"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeClock{t: base}
			cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{"BTC": {tt.c}}}
			s := newScanner(cat, clk, Asset{Symbol: "BTC", Name: "Bitcoin"})
			_, _ = s.Refresh(context.Background())
			_, ok := s.Market("BTC")
			if ok != tt.want {
				t.Fatalf("accepted = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestCrossSlotRejectedNearBoundary(t *testing.T) {
	// 30s before the boundary the next round's market is inside the expiry
	// window but belongs to another slot.
	now := roundEnd(base).Add(-30 * time.Second)
	clk := &fakeClock{t: now}
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC": {candidate("next", "BTC up or down", roundEnd(base).Add(dur))},
	}}
	s := newScanner(cat, clk, Asset{Symbol: "BTC"})
	if _, err := s.Refresh(context.Background()); !errors.Is(err, domain.ErrNoMarkets) {
		t.Fatalf("expected ErrNoMarkets, got %v", err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	clk := &fakeClock{t: base}
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC": {candidate("m1", "BTC up or down", roundEnd(base))},
	}}
	s := newScanner(cat, clk, Asset{Symbol: "BTC"})

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	calls := cat.Calls()

	clk.Advance(5 * time.Second)
	markets, err := s.Refresh(context.Background())
	if err != nil || len(markets) != 1 {
		t.Fatalf("cached refresh: %v %+v", err, markets)
	}
	if cat.Calls() != calls {
		t.Fatalf("refresh inside the interval hit the catalog")
	}

	clk.Advance(6 * time.Second)
	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if cat.Calls() == calls {
		t.Fatalf("refresh after the interval did not hit the catalog")
	}
}

func TestRefreshKeepsLastKnownOnFailure(t *testing.T) {
	clk := &fakeClock{t: base}
	end := roundEnd(base)
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC": {candidate("btc", "BTC up or down", end)},
		"ETH": {candidate("eth", "ETH up or down", end)},
	}}
	s := newScanner(cat, clk, Asset{Symbol: "BTC"}, Asset{Symbol: "ETH"})
	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	boom := errors.New("boom")
	cat.mu.Lock()
	cat.fail = map[string]error{"BTC up or down": boom, "BTC": boom}
	cat.byQuery["ETH"] = nil
	cat.mu.Unlock()

	clk.Advance(11 * time.Second)
	markets, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected both last-known markets, got %+v", markets)
	}
}

func TestCanTrade(t *testing.T) {
	start := RoundAt(base, dur).StartsAt
	tests := []struct {
		name    string
		offset  time.Duration
		markets bool
		want    bool
	}{
		{"no markets", 100 * time.Second, false, false},
		{"too young", 10 * time.Second, true, false},
		{"mid round", 300 * time.Second, true, true},
		{"exactly min age", 30 * time.Second, true, true},
		{"too late", 850 * time.Second, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeClock{t: start.Add(tt.offset)}
			cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{}}
			if tt.markets {
				cat.byQuery["BTC"] = []domain.CatalogMarket{candidate("m", "BTC up or down", start.Add(dur))}
			}
			s := newScanner(cat, clk, Asset{Symbol: "BTC"})
			_, _ = s.Refresh(context.Background())

			gate := s.CanTrade()
			if gate.OK != tt.want {
				t.Fatalf("CanTrade = %+v, want ok=%v", gate, tt.want)
			}
			if !gate.OK && gate.Reason == "" {
				t.Fatalf("a closed gate must carry a reason")
			}
		})
	}
}

// 890s into a 900s round leaves 10s, under a 15s minimum.
func TestCanTradeTenSecondsLeft(t *testing.T) {
	start := RoundAt(base, dur).StartsAt
	clk := &fakeClock{t: start.Add(880 * time.Second)}
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC": {candidate("m", "BTC up or down", start.Add(dur))},
	}}
	cfg := DefaultConfig()
	cfg.Assets = []Asset{{Symbol: "BTC"}}
	cfg.MinTimeLeft = 15 * time.Second
	s := New(cfg, cat, slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clk.Now))
	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if gate := s.CanTrade(); !gate.OK {
		t.Fatalf("20s left should still trade: %+v", gate)
	}

	clk.Advance(10 * time.Second)
	r := s.Round()
	if r.TimeLeftSec != 10 || r.AgeSec != 890 {
		t.Fatalf("round timing: left=%v age=%v, want 10 and 890", r.TimeLeftSec, r.AgeSec)
	}
	if gate := s.CanTrade(); gate.OK || gate.Reason == "" {
		t.Fatalf("CanTrade = %+v, want closed with a reason", gate)
	}
}

func TestUpdatePriceAndRotateHook(t *testing.T) {
	clk := &fakeClock{t: base}
	cat := &fakeCatalog{byQuery: map[string][]domain.CatalogMarket{
		"BTC": {candidate("m1", "BTC up or down", roundEnd(base))},
	}}
	s := newScanner(cat, clk, Asset{Symbol: "BTC"})

	var rotations int
	s.OnRotate(func(ms []domain.Market) { rotations++ })

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotations != 1 {
		t.Fatalf("rotations = %d, want 1", rotations)
	}

	if !s.UpdatePrice("m1", 0.61, 0.39) {
		t.Fatalf("UpdatePrice did not find the market")
	}
	if s.UpdatePrice("missing", 0.5, 0.5) {
		t.Fatalf("UpdatePrice matched an unknown market")
	}
	m, _ := s.Market("BTC")
	if m.UpPrice != 0.61 || m.DownPrice != 0.39 {
		t.Fatalf("prices not applied: %+v", m)
	}

	clk.Advance(11 * time.Second)
	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotations != 1 {
		t.Fatalf("unchanged set should not rotate, got %d", rotations)
	}
}

type blockingCatalog struct {
	release chan struct{}
	entered chan struct{}
	market  domain.CatalogMarket
}

func (b *blockingCatalog) SearchMarkets(ctx context.Context, q string) ([]domain.CatalogMarket, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return []domain.CatalogMarket{b.market}, nil
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	clk := &fakeClock{t: base}
	cat := &blockingCatalog{
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
		market:  candidate("m1", "BTC up or down", roundEnd(base)),
	}
	s := newScanner(cat, clk, Asset{Symbol: "BTC"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Refresh(context.Background())
	}()
	<-cat.entered
	s.Stop()
	s.Stop()
	close(cat.release)
	<-done

	if got := s.Markets(); len(got) != 0 {
		t.Fatalf("result after stop was applied: %+v", got)
	}
}
