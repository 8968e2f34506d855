package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

const defaultPaperPoll = 100 * time.Millisecond

// BookSource provides the latest snapshot of a token.
type BookSource interface {
	Latest(tokenID string) (domain.OrderbookSnapshot, bool)
}

// PaperExecutor simulates fills against the live book. Taker orders fill at
// once at the better of their limit and the touch. A resting maker order
// fills only once the opposite side of the book has traded through its
// price within the maker timeout.
type PaperExecutor struct {
	books  BookSource
	logger *slog.Logger
	poll   time.Duration
	now    func() time.Time
}

// NewPaperExecutor creates a PaperExecutor over books.
func NewPaperExecutor(books BookSource, logger *slog.Logger) *PaperExecutor {
	return &PaperExecutor{
		books:  books,
		logger: logger.With(slog.String("component", "paper_executor")),
		poll:   defaultPaperPoll,
		now:    time.Now,
	}
}

// Execute simulates d.
func (p *PaperExecutor) Execute(ctx context.Context, d domain.OrderDecision) (domain.Fill, error) {
	if err := validate(d); err != nil {
		return domain.Fill{}, err
	}

	switch d.Mode {
	case domain.ExecMaker, domain.ExecMakerThenTaker:
		fill, err := p.rest(ctx, d)
		if err == nil {
			return fill, nil
		}
		if d.Mode == domain.ExecMaker || ctx.Err() != nil {
			return domain.Fill{}, err
		}
		p.logger.DebugContext(ctx, "maker leg unfilled, crossing",
			slog.String("decision_id", d.ID),
			slog.String("cause", err.Error()),
		)
		return p.take(escalate(d), d.ID), nil
	default:
		return p.take(d, d.ID), nil
	}
}

// take fills a marketable order immediately.
func (p *PaperExecutor) take(d domain.OrderDecision, decisionID string) domain.Fill {
	price := d.Price
	if snap, ok := p.books.Latest(d.TokenID); ok {
		if d.Side == domain.OrderSideBuy && len(snap.Asks) > 0 && snap.BestAsk < price {
			price = snap.BestAsk
		}
		if d.Side == domain.OrderSideSell && len(snap.Bids) > 0 && snap.BestBid > price {
			price = snap.BestBid
		}
	}
	return domain.Fill{
		DecisionID: decisionID,
		TokenID:    d.TokenID,
		Side:       d.Side,
		Price:      price,
		Size:       d.Size,
		Mode:       d.Mode,
		WasMaker:   false,
		FilledAt:   p.now(),
	}
}

// rest waits for the book to trade through a post-only order.
func (p *PaperExecutor) rest(ctx context.Context, d domain.OrderDecision) (domain.Fill, error) {
	if snap, ok := p.books.Latest(d.TokenID); ok && wouldCross(d, snap) {
		return domain.Fill{}, domain.ErrWouldCross
	}

	timer := time.NewTimer(d.MakerTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		if snap, ok := p.books.Latest(d.TokenID); ok && tradedThrough(d, snap) {
			return domain.Fill{
				DecisionID: d.ID,
				TokenID:    d.TokenID,
				Side:       d.Side,
				Price:      d.Price,
				Size:       d.Size,
				Mode:       domain.ExecMaker,
				WasMaker:   true,
				FilledAt:   p.now(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return domain.Fill{}, ctx.Err()
		case <-timer.C:
			return domain.Fill{}, domain.ErrFillTimeout
		case <-ticker.C:
		}
	}
}

// tradedThrough reports whether the touch has moved through a resting
// order: sellers reached a resting bid, or buyers reached a resting ask.
func tradedThrough(d domain.OrderDecision, snap domain.OrderbookSnapshot) bool {
	if d.Side == domain.OrderSideBuy {
		return len(snap.Asks) > 0 && snap.BestAsk <= d.Price
	}
	return len(snap.Bids) > 0 && snap.BestBid >= d.Price
}
