// Package notify sends operator alerts about positions and rounds to chat
// channels. Alerts are filtered by event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// Event types understood by the filter.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventRoundRotated   = "round_rotated"
	EventError          = "error"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify only forwards allowed event
// types; an empty allow list passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and event filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// PositionOpened announces an entry fill.
func (n *Notifier) PositionOpened(ctx context.Context, ev domain.PositionEvent) error {
	title := fmt.Sprintf("Opened %s %s", ev.Asset, strings.ToUpper(string(ev.Direction)))
	msg := fmt.Sprintf("%.2f shares @ %.3f (%s)", ev.Shares, ev.Price, ev.Reason)
	return n.Notify(ctx, EventPositionOpened, title, msg)
}

// PositionClosed announces an exit with its realized result.
func (n *Notifier) PositionClosed(ctx context.Context, p domain.ClosedPosition) error {
	title := fmt.Sprintf("Closed %s %s: %s", p.Asset, strings.ToUpper(string(p.Direction)), p.ExitReason)
	msg := fmt.Sprintf("%.3f -> %.3f, net %+.2f USD (%+.1f%%), held %.0fs",
		p.EntryPrice, p.ExitPrice, p.NetPnL, p.NetPnLPct, p.HoldTimeSec)
	return n.Notify(ctx, EventPositionClosed, title, msg)
}

// RoundRotated lists the markets of a new round.
func (n *Notifier) RoundRotated(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	lines := make([]string, 0, len(markets))
	for _, m := range markets {
		lines = append(lines, fmt.Sprintf("%s up=%.3f down=%.3f expires %s",
			m.Asset, m.UpPrice, m.DownPrice, m.ExpiresAt.UTC().Format("15:04:05")))
	}
	sort.Strings(lines)
	title := fmt.Sprintf("Round %d", markets[0].RoundSlot)
	return n.Notify(ctx, EventRoundRotated, title, strings.Join(lines, "\n"))
}

// Error reports an operational failure.
func (n *Notifier) Error(ctx context.Context, where string, err error) error {
	return n.Notify(ctx, EventError, "Error in "+where, err.Error())
}

// dispatch delivers to every sender; one failing sender does not stop the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}
