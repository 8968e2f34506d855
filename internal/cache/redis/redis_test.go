package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

func TestMarketTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name    string
		expires time.Time
		want    time.Duration
	}{
		{"time to expiry", now.Add(7 * time.Minute), 7 * time.Minute},
		{"floored near expiry", now.Add(time.Second), minMarketTTL},
		{"already expired", now.Add(-time.Minute), minMarketTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := marketTTL(domain.Market{ExpiresAt: tt.expires}, now)
			if got != tt.want {
				t.Fatalf("marketTTL = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	if got := roundMarketKey("btc"); got != "round:market:BTC" {
		t.Errorf("roundMarketKey = %q", got)
	}
	if got := fillKey("d1"); got != "fills:d1" {
		t.Errorf("fillKey = %q", got)
	}
	if got := bookSnapKey("111"); got != "book:111:snap" {
		t.Errorf("bookSnapKey = %q", got)
	}
}

// newTestClient connects to ROUNDBOT_TEST_REDIS_ADDR and skips otherwise.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("ROUNDBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROUNDBOT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Underlying().FlushDB(context.Background()).Err()
		_ = c.Close()
	})
	return c
}

func TestRoundMarketCacheIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mc := NewRoundMarketCache(c)

	m := domain.Market{
		Asset:       "BTC",
		ConditionID: "0xabc",
		UpTokenID:   "111",
		DownTokenID: "222",
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	if err := mc.Put(ctx, m); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := mc.Get(ctx, "btc")
	if err != nil || got.ConditionID != "0xabc" {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	got, err = mc.GetByToken(ctx, "222")
	if err != nil || got.Asset != "BTC" {
		t.Fatalf("GetByToken = %+v, %v", got, err)
	}
	if _, err := mc.Get(ctx, "ETH"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing asset: got %v, want ErrNotFound", err)
	}
}

func TestSnapshotCacheIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sc := NewSnapshotCache(c)

	snap := domain.OrderbookSnapshot{
		TokenID: "111",
		Bids:    []domain.PriceLevel{{Price: 0.48, Size: 10}},
		Asks:    []domain.PriceLevel{{Price: 0.52, Size: 5}},
		BestBid: 0.48,
		BestAsk: 0.52,
	}
	if err := sc.SetSnapshot(ctx, snap); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}
	got, err := sc.GetSnapshot(ctx, "111")
	if err != nil || got.BestAsk != 0.52 || len(got.Bids) != 1 {
		t.Fatalf("GetSnapshot = %+v, %v", got, err)
	}
	bid, ask, err := sc.GetBBO(ctx, "111")
	if err != nil || bid != 0.48 || ask != 0.52 {
		t.Fatalf("GetBBO = %v/%v, %v", bid, ask, err)
	}
}

func TestLockIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	a := NewLockManager(c)
	b := NewLockManager(c)

	unlock, err := a.Acquire(ctx, "engine", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := b.Acquire(ctx, "engine", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire: got %v, want ErrLockHeld", err)
	}
	if err := a.Extend(ctx, "engine", 2*time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := b.Extend(ctx, "engine", time.Minute); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Extend by non-holder: got %v, want ErrNotFound", err)
	}
	unlock()
	unlock()
	if _, err := b.Acquire(ctx, "engine", time.Minute); err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}
}

func TestFillWaiterIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	fw := NewFillWaiter(c)

	if _, err := fw.WaitFill(ctx, "nope", 100*time.Millisecond); !errors.Is(err, domain.ErrFillTimeout) {
		t.Fatalf("got %v, want ErrFillTimeout", err)
	}
	if err := fw.ReportFill(ctx, domain.Fill{DecisionID: "d1", Price: 0.5, Size: 10}); err != nil {
		t.Fatalf("ReportFill: %v", err)
	}
	fill, err := fw.WaitFill(ctx, "d1", time.Second)
	if err != nil || fill.Size != 10 {
		t.Fatalf("WaitFill = %+v, %v", fill, err)
	}
}

func TestSignalBusStreamIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)

	if msgs, err := sb.StreamRead(ctx, StreamDecisions, "0", 10); err != nil || len(msgs) != 0 {
		t.Fatalf("empty stream read = %v, %v", msgs, err)
	}
	for _, p := range []string{"a", "b"} {
		if err := sb.StreamAppend(ctx, StreamDecisions, "d-"+p, []byte(p)); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}
	msgs, err := sb.StreamRead(ctx, StreamDecisions, "0", 10)
	if err != nil || len(msgs) != 2 || string(msgs[1].Payload) != "b" || msgs[1].Key != "d-b" {
		t.Fatalf("StreamRead = %v, %v", msgs, err)
	}
}
