// Package feed keeps live orderbooks for the current round's outcome tokens
// and hands every updated ladder to the engine.
package feed

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/platform/polymarket"
)

// retryDelay is the pause between failed connection attempts.
const retryDelay = 2 * time.Second

// MarketStream is the market-data connection the feed drives.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, assetIDs []string) error
	Unsubscribe(ctx context.Context, assetIDs []string) error
	OnBook(polymarket.BookHandler)
	OnPriceChange(polymarket.PriceChangeHandler)
	Close() error
}

// BookHandler receives the full ladders of a token after every update.
type BookHandler func(ctx context.Context, tokenID string, bids, asks []domain.PriceLevel, ts time.Time)

// BookFeed subscribes to the current token set, maintains a local book per
// token and invokes the handler on each change.
type BookFeed struct {
	stream MarketStream
	onBook BookHandler
	logger *slog.Logger

	mu        sync.Mutex
	wanted    map[string]struct{}
	books     map[string]*localBook
	connected bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewBookFeed creates a feed over stream.
func NewBookFeed(stream MarketStream, onBook BookHandler, logger *slog.Logger) *BookFeed {
	f := &BookFeed{
		stream: stream,
		onBook: onBook,
		logger: logger.With(slog.String("component", "book_feed")),
		wanted: make(map[string]struct{}),
		books:  make(map[string]*localBook),
		done:   make(chan struct{}),
	}
	stream.OnBook(f.handleBook)
	stream.OnPriceChange(f.handlePriceChange)
	return f
}

// Run connects, subscribes the wanted tokens and blocks until ctx is
// cancelled or Close is called. The stream reconnects on its own once the
// first connection is up.
func (f *BookFeed) Run(ctx context.Context) error {
	defer f.stream.Close()

	for {
		dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := f.stream.Connect(dialCtx)
		cancel()
		if err == nil {
			break
		}
		f.logger.WarnContext(ctx, "market stream connect failed, retrying", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(retryDelay):
		}
	}

	f.mu.Lock()
	f.connected = true
	ids := f.wantedLocked()
	f.mu.Unlock()

	if len(ids) > 0 {
		if err := f.stream.Subscribe(ctx, ids); err != nil {
			return err
		}
	}
	f.logger.InfoContext(ctx, "market stream subscribed", slog.Int("assets", len(ids)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// SetAssets replaces the subscribed token set. Books of dropped tokens are
// discarded.
func (f *BookFeed) SetAssets(ctx context.Context, tokenIDs []string) {
	f.mu.Lock()
	next := make(map[string]struct{}, len(tokenIDs))
	var added, removed []string
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		next[id] = struct{}{}
		if _, ok := f.wanted[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range f.wanted {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
			delete(f.books, id)
		}
	}
	f.wanted = next
	connected := f.connected
	f.mu.Unlock()

	if !connected {
		return
	}
	sort.Strings(added)
	sort.Strings(removed)
	if len(removed) > 0 {
		if err := f.stream.Unsubscribe(ctx, removed); err != nil {
			f.logger.WarnContext(ctx, "unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	if len(added) > 0 {
		if err := f.stream.Subscribe(ctx, added); err != nil {
			f.logger.WarnContext(ctx, "subscribe failed", slog.String("error", err.Error()))
		}
	}
	f.logger.InfoContext(ctx, "market stream assets updated",
		slog.Int("added", len(added)),
		slog.Int("removed", len(removed)),
	)
}

// Close stops the feed.
func (f *BookFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func (f *BookFeed) handleBook(ev polymarket.BookEvent) {
	f.mu.Lock()
	if _, ok := f.wanted[ev.TokenID]; !ok {
		f.mu.Unlock()
		return
	}
	b, ok := f.books[ev.TokenID]
	if !ok {
		b = newLocalBook(ev.Bids, ev.Asks)
		f.books[ev.TokenID] = b
	} else {
		b.reset(ev.Bids, ev.Asks)
	}
	bids, asks := b.ladders()
	f.mu.Unlock()

	f.onBook(context.Background(), ev.TokenID, bids, asks, ev.Timestamp)
}

func (f *BookFeed) handlePriceChange(pc domain.PriceChange) {
	f.mu.Lock()
	b, ok := f.books[pc.TokenID]
	if !ok {
		// No snapshot yet; the next book frame carries this level.
		f.mu.Unlock()
		return
	}
	b.apply(pc)
	bids, asks := b.ladders()
	f.mu.Unlock()

	f.onBook(context.Background(), pc.TokenID, bids, asks, pc.Timestamp)
}

func (f *BookFeed) wantedLocked() []string {
	out := make([]string, 0, len(f.wanted))
	for id := range f.wanted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
