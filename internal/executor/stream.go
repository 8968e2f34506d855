package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// DefaultFillGrace is added to the maker timeout while waiting for a fill
// report, covering the round trip through the execution client.
const DefaultFillGrace = 3 * time.Second

// StreamExecutor appends decisions to a Redis stream consumed by the
// external execution client and waits for the client's fill report. The
// client cancels a maker order once its MakerTimeout has elapsed.
type StreamExecutor struct {
	bus    domain.SignalBus
	fills  domain.FillWaiter
	stream string
	grace  time.Duration
	logger *slog.Logger
}

// NewStreamExecutor creates a StreamExecutor publishing to stream.
func NewStreamExecutor(bus domain.SignalBus, fills domain.FillWaiter, stream string, grace time.Duration, logger *slog.Logger) *StreamExecutor {
	if grace <= 0 {
		grace = DefaultFillGrace
	}
	return &StreamExecutor{
		bus:    bus,
		fills:  fills,
		stream: stream,
		grace:  grace,
		logger: logger.With(slog.String("component", "stream_executor")),
	}
}

// Execute publishes d and waits for its fill. A maker_then_taker decision is
// first published as a maker order and, if unfilled, as its taker leg.
func (s *StreamExecutor) Execute(ctx context.Context, d domain.OrderDecision) (domain.Fill, error) {
	if err := validate(d); err != nil {
		return domain.Fill{}, err
	}
	if d.Mode != domain.ExecMakerThenTaker {
		return s.submit(ctx, d)
	}

	maker := d
	maker.Mode = domain.ExecMaker
	fill, err := s.submit(ctx, maker)
	if err == nil {
		return fill, nil
	}
	if !errors.Is(err, domain.ErrFillTimeout) && !errors.Is(err, domain.ErrWouldCross) {
		return domain.Fill{}, err
	}
	s.logger.InfoContext(ctx, "maker leg unfilled, crossing",
		slog.String("decision_id", d.ID),
		slog.String("token", d.TokenID),
	)
	fill, err = s.submit(ctx, escalate(d))
	if err != nil {
		return domain.Fill{}, err
	}
	fill.DecisionID = d.ID
	return fill, nil
}

func (s *StreamExecutor) submit(ctx context.Context, d domain.OrderDecision) (domain.Fill, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("executor: marshal decision %s: %w", d.ID, err)
	}
	if err := s.bus.StreamAppend(ctx, s.stream, d.ID, payload); err != nil {
		return domain.Fill{}, fmt.Errorf("executor: publish decision %s: %w", d.ID, err)
	}
	s.logger.DebugContext(ctx, "decision published",
		slog.String("decision_id", d.ID),
		slog.String("mode", string(d.Mode)),
		slog.Float64("price", d.Price),
		slog.Float64("size", d.Size),
	)

	fill, err := s.fills.WaitFill(ctx, d.ID, d.MakerTimeout+s.grace)
	if err != nil {
		return domain.Fill{}, err
	}
	if fill.Size <= 0 {
		return domain.Fill{}, fmt.Errorf("executor: decision %s: %w", d.ID, domain.ErrFillTimeout)
	}
	return fill, nil
}
