// Package service holds the stateful application services the engine drives:
// the live position book and the pre-trade risk gate.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/notify"
	"github.com/alanyoungcy/roundbot/internal/position"
)

// PositionChannel is the pub/sub channel position events are published on.
const PositionChannel = "positions"

// PositionService owns the live positions, at most one per outcome token.
// Opening and closing publish events, persist history and notify. The
// optional dependencies may be nil.
type PositionService struct {
	params   position.ExitParams
	bus      domain.SignalBus
	history  domain.ClosedPositionStore
	notifier *notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	byToken map[string]*position.Position
}

// NewPositionService creates a PositionService.
func NewPositionService(
	params position.ExitParams,
	bus domain.SignalBus,
	history domain.ClosedPositionStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		params:   params,
		bus:      bus,
		history:  history,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "position_service")),
		now:      time.Now,
		byToken:  make(map[string]*position.Position),
	}
}

// Params returns the exit parameters positions are opened with.
func (s *PositionService) Params() position.ExitParams { return s.params }

// Open records the entry fill as a new position.
func (s *PositionService) Open(ctx context.Context, e position.Entry, fill domain.Fill) (*position.Position, error) {
	if fill.Size <= 0 || fill.Price <= 0 {
		return nil, fmt.Errorf("position_service: open %s: empty fill", fill.TokenID)
	}

	s.mu.Lock()
	if _, ok := s.byToken[fill.TokenID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("position_service: open %s: %w", fill.TokenID, domain.ErrPositionOpen)
	}
	p := position.Open(e, fill, s.params)
	s.byToken[fill.TokenID] = p
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", p.ID),
		slog.String("asset", p.Asset),
		slog.String("direction", string(p.Direction)),
		slog.Float64("entry_price", p.EntryPrice),
		slog.Float64("shares", p.Shares),
		slog.Bool("maker", p.WasMakerEntry),
	)

	ev := domain.PositionEvent{
		Event:      notify.EventPositionOpened,
		PositionID: p.ID,
		Asset:      p.Asset,
		Direction:  p.Direction,
		TokenID:    p.TokenID,
		Price:      p.EntryPrice,
		Shares:     p.Shares,
		Reason:     e.Strategy,
		At:         p.OpenedAt,
	}
	s.publish(ctx, ev)
	if err := s.notifier.PositionOpened(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
	return p, nil
}

// Get returns the open position on tokenID.
func (s *PositionService) Get(tokenID string) (*position.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byToken[tokenID]
	return p, ok
}

// HasAsset reports whether a position is open on either side of asset.
func (s *PositionService) HasAsset(asset string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byToken {
		if p.Asset == asset {
			return true
		}
	}
	return false
}

// Count returns the number of open positions.
func (s *PositionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}

// List returns the open positions, oldest first.
func (s *PositionService) List() []*position.Position {
	s.mu.RLock()
	out := make([]*position.Position, 0, len(s.byToken))
	for _, p := range s.byToken {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close finalizes p with its exit fill and removes it from the live set.
func (s *PositionService) Close(ctx context.Context, p *position.Position, fill domain.Fill, reason domain.ExitReason) (domain.ClosedPosition, error) {
	at := fill.FilledAt
	if at.IsZero() {
		at = s.now()
	}
	closed, err := p.Close(fill.Price, reason, fill.WasMaker, at)
	if err != nil {
		return domain.ClosedPosition{}, fmt.Errorf("position_service: close %s: %w", p.ID, err)
	}

	s.mu.Lock()
	if cur, ok := s.byToken[p.TokenID]; ok && cur == p {
		delete(s.byToken, p.TokenID)
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", closed.ID),
		slog.String("asset", closed.Asset),
		slog.String("reason", closed.ExitReason.String()),
		slog.Float64("exit_price", closed.ExitPrice),
		slog.Float64("net_pnl", closed.NetPnL),
		slog.Float64("net_pnl_pct", closed.NetPnLPct),
		slog.Float64("hold_sec", closed.HoldTimeSec),
	)

	if s.history != nil {
		if err := s.history.Insert(ctx, closed); err != nil {
			s.logger.ErrorContext(ctx, "persist closed position failed",
				slog.String("position_id", closed.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.publish(ctx, domain.PositionEvent{
		Event:      notify.EventPositionClosed,
		PositionID: closed.ID,
		Asset:      closed.Asset,
		Direction:  closed.Direction,
		TokenID:    closed.TokenID,
		Price:      closed.ExitPrice,
		Shares:     closed.Shares,
		Reason:     closed.ExitReason.String(),
		NetPnL:     closed.NetPnL,
		At:         closed.ClosedAt,
	})
	if err := s.notifier.PositionClosed(ctx, closed); err != nil {
		s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
	return closed, nil
}

// CloseAll closes every open position at the price quote returns, marking
// the exits as taker fills. Positions without a quote stay open.
func (s *PositionService) CloseAll(ctx context.Context, reason domain.ExitReason, quote func(tokenID string) (float64, bool)) []domain.ClosedPosition {
	var out []domain.ClosedPosition
	for _, p := range s.List() {
		price, ok := quote(p.TokenID)
		if !ok || price <= 0 {
			s.logger.WarnContext(ctx, "no quote, position left open",
				slog.String("position_id", p.ID),
				slog.String("token", p.TokenID),
			)
			continue
		}
		closed, err := s.Close(ctx, p, domain.Fill{
			TokenID:  p.TokenID,
			Side:     domain.OrderSideSell,
			Price:    price,
			Size:     p.Shares,
			Mode:     domain.ExecTaker,
			FilledAt: s.now(),
		}, reason)
		if err != nil {
			s.logger.WarnContext(ctx, "close failed", slog.String("error", err.Error()))
			continue
		}
		out = append(out, closed)
	}
	return out
}

func (s *PositionService) publish(ctx context.Context, ev domain.PositionEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, PositionChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish position event failed",
			slog.String("position_id", ev.PositionID),
			slog.String("error", err.Error()),
		)
	}
}
