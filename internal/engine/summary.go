package engine

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
)

// TokenView is the analytics readout of one outcome token.
type TokenView struct {
	Asset          string
	Direction      domain.Direction
	TokenID        string
	BestBid        float64
	BestAsk        float64
	OBI            float64
	Bucket         domain.OBIBucket
	SpreadRatio    float64
	SpreadKnown    bool
	DepthChangePct float64
	DepthKnown     bool
	BidStaleSec    float64
	BidStaleKnown  bool
}

// Views returns the readout of every token of the current markets that has
// a snapshot.
func (e *Engine) Views() []TokenView {
	var out []TokenView
	a := e.deps.Analytics
	for _, m := range e.deps.Rounds.Markets() {
		for _, dir := range []domain.Direction{domain.DirectionUp, domain.DirectionDown} {
			tok := m.TokenID(dir)
			snap, ok := a.Latest(tok)
			if !ok {
				continue
			}
			v := TokenView{
				Asset:     m.Asset,
				Direction: dir,
				TokenID:   tok,
				BestBid:   snap.BestBid,
				BestAsk:   snap.BestAsk,
				OBI:       snap.OBI,
				Bucket:    orderbook.CategorizeOBI(snap.OBI),
			}
			v.SpreadRatio, v.SpreadKnown = a.Spread.SpreadRatio(tok, snap.Spread)
			v.DepthChangePct, v.DepthKnown = a.Depth.DepthChange(tok, orderbook.DefaultDepthCompare)
			v.BidStaleSec, v.BidStaleKnown = a.Bids.StalenessSec(tok)
			out = append(out, v)
		}
	}
	return out
}

// LogViews writes one log line per token readout along with the round.
func (e *Engine) LogViews(ctx context.Context) {
	r := e.deps.Rounds.Round()
	gate := e.deps.Rounds.CanTrade()
	e.logger.InfoContext(ctx, "round",
		slog.Int64("slot", r.Slot),
		slog.Float64("time_left", r.TimeLeftSec),
		slog.Bool("can_trade", gate.OK),
		slog.String("gate", gate.Reason),
		slog.Int("open_positions", e.deps.Positions.Count()),
	)
	for _, v := range e.Views() {
		attrs := []any{
			slog.String("asset", v.Asset),
			slog.String("direction", string(v.Direction)),
			slog.Float64("bid", v.BestBid),
			slog.Float64("ask", v.BestAsk),
			slog.Float64("obi", v.OBI),
			slog.String("bucket", string(v.Bucket)),
		}
		if v.SpreadKnown {
			attrs = append(attrs, slog.Float64("spread_ratio", v.SpreadRatio))
		}
		if v.DepthKnown {
			attrs = append(attrs, slog.Float64("depth_change_pct", v.DepthChangePct))
		}
		if v.BidStaleKnown {
			attrs = append(attrs, slog.Float64("bid_stale_sec", v.BidStaleSec))
		}
		e.logger.InfoContext(ctx, "book", attrs...)
	}
}
