package executor

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Dedup remembers keys for a TTL. It is safe for concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup with the given TTL.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// IsDuplicate reports whether key was seen within the TTL and records it
// otherwise.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops key so it may be submitted again at once.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

// Cleanup removes expired keys.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// decisionKey identifies repeated exits by position and reason, and repeated
// entries by token.
func decisionKey(d domain.OrderDecision) string {
	if d.PositionID != "" {
		return "exit:" + d.PositionID + ":" + d.Reason
	}
	return "entry:" + d.TokenID
}

// Guarded wraps an Executor and drops repeated decisions within the TTL.
// A failed execution releases its key so the next tick can retry.
type Guarded struct {
	next  Executor
	dedup *Dedup
}

// NewGuarded wraps next with a dedup window of ttl.
func NewGuarded(next Executor, ttl time.Duration) *Guarded {
	return &Guarded{next: next, dedup: NewDedup(ttl)}
}

// Execute forwards d unless an equivalent decision is in flight or done.
func (g *Guarded) Execute(ctx context.Context, d domain.OrderDecision) (domain.Fill, error) {
	key := decisionKey(d)
	if g.dedup.IsDuplicate(key) {
		return domain.Fill{}, ErrDuplicate
	}
	fill, err := g.next.Execute(ctx, d)
	if err != nil {
		g.dedup.Forget(key)
	}
	return fill, err
}

// Cleanup drops expired keys.
func (g *Guarded) Cleanup() {
	g.dedup.Cleanup()
}
