// Package engine runs the evaluation loop: it feeds book updates into the
// analytics, evaluates every open position for exits and offers tradeable
// markets to the entry strategy.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/execution"
	"github.com/alanyoungcy/roundbot/internal/executor"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
	"github.com/alanyoungcy/roundbot/internal/position"
	"github.com/alanyoungcy/roundbot/internal/service"
	"github.com/alanyoungcy/roundbot/internal/strategy"
)

// DefaultEvalInterval is the period of the evaluation tick.
const DefaultEvalInterval = time.Second

// RoundSource is the scanner surface the engine needs.
type RoundSource interface {
	Round() domain.Round
	Markets() []domain.Market
	MarketByToken(tokenID string) (domain.Market, domain.Direction, bool)
	CanTrade() domain.TradeGate
	UpdatePrice(conditionID string, up, down float64) bool
}

// Config tunes the loop.
type Config struct {
	EvalInterval time.Duration
	ExitParams   position.ExitParams
}

// Deps are the collaborators of the engine. Strategy, Executor and
// Snapshots may be nil: without an executor the engine only observes.
type Deps struct {
	Rounds    RoundSource
	Analytics *orderbook.Analytics
	Policy    *execution.Policy
	Executor  executor.Executor
	Positions *service.PositionService
	Risk      *service.RiskService
	Strategy  strategy.EntryStrategy
	Snapshots domain.SnapshotCache
}

// Engine is the decision loop.
type Engine struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu            sync.Mutex
	exiting       map[string]struct{}
	entryInFlight bool
	wg            sync.WaitGroup
}

// New creates an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = DefaultEvalInterval
	}
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With(slog.String("component", "engine")),
		now:     time.Now,
		exiting: make(map[string]struct{}),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight orders.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.EvalInterval)
	defer ticker.Stop()
	e.logger.InfoContext(ctx, "engine started", slog.Duration("interval", e.cfg.EvalInterval))

	for {
		select {
		case <-ctx.Done():
			e.Wait()
			e.logger.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Wait blocks until every order launched by Tick has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// HandleBook is the feed callback: it records the ladders in the analytics,
// caches the snapshot and refreshes the market's live price.
func (e *Engine) HandleBook(ctx context.Context, tokenID string, bids, asks []domain.PriceLevel, ts time.Time) {
	if ts.IsZero() {
		ts = e.now()
	}
	snap := e.deps.Analytics.Observe(tokenID, bids, asks, ts)

	if e.deps.Snapshots != nil {
		if err := e.deps.Snapshots.SetSnapshot(ctx, snap); err != nil {
			e.logger.DebugContext(ctx, "snapshot cache write failed",
				slog.String("token", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}

	m, dir, ok := e.deps.Rounds.MarketByToken(tokenID)
	if !ok || len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return
	}
	up, down := m.UpPrice, m.DownPrice
	if dir == domain.DirectionUp {
		up = snap.MidPrice
	} else {
		down = snap.MidPrice
	}
	e.deps.Rounds.UpdatePrice(m.ConditionID, up, down)
}

// HandleRotate drops analytics state of tokens that left the market set.
func (e *Engine) HandleRotate(prev, next []string) {
	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
	}
	for _, id := range prev {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, open := e.deps.Positions.Get(id); open {
			continue
		}
		e.deps.Analytics.Forget(id)
	}
}

// Tick runs one evaluation pass: exits first, then at most one new entry.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()
	round := e.deps.Rounds.Round()

	for _, p := range e.deps.Positions.List() {
		e.evaluatePosition(ctx, p, round, now)
	}
	if e.deps.Strategy != nil && e.deps.Executor != nil {
		e.considerEntries(ctx, round)
	}
}

// timeLeft returns the seconds until the round of p expires.
func timeLeft(p *position.Position, round domain.Round, now time.Time) float64 {
	if round.Duration <= 0 {
		return round.TimeLeftSec
	}
	durMs := round.Duration.Milliseconds()
	expires := time.UnixMilli((p.RoundSlot + 1) * durMs)
	left := expires.Sub(now).Seconds()
	if left < 0 {
		return 0
	}
	return left
}

func (e *Engine) evaluatePosition(ctx context.Context, p *position.Position, round domain.Round, now time.Time) {
	snap, ok := e.deps.Analytics.Latest(p.TokenID)
	if !ok || len(snap.Bids) == 0 {
		e.logger.DebugContext(ctx, "no bid for open position", slog.String("token", p.TokenID))
		return
	}
	p.Observe(snap.BestBid, snap.Timestamp)

	stale, staleKnown := e.deps.Analytics.Bids.StalenessSec(p.TokenID)
	sig := position.Signals{
		Now:            now,
		TimeLeftSec:    timeLeft(p, round, now),
		DepthCollapsed: e.deps.Analytics.Depth.IsCollapsed(p.TokenID, e.cfg.ExitParams.DepthCollapsePct),
		BidStaleSec:    stale,
		BidStaleKnown:  staleKnown,
	}
	reason, exit := position.Evaluate(p, sig, e.cfg.ExitParams)
	if !exit || e.deps.Executor == nil {
		return
	}

	e.mu.Lock()
	if _, busy := e.exiting[p.ID]; busy {
		e.mu.Unlock()
		return
	}
	e.exiting[p.ID] = struct{}{}
	e.mu.Unlock()

	d := e.deps.Policy.Exit(execution.ExitRequest{
		PositionID:  p.ID,
		Asset:       p.Asset,
		ConditionID: p.ConditionID,
		TokenID:     p.TokenID,
		Shares:      p.Shares,
	}, reason, snap)

	e.logger.InfoContext(ctx, "exit triggered",
		slog.String("position_id", p.ID),
		slog.String("reason", reason.String()),
		slog.Float64("pnl_pct", p.PnLPct()),
		slog.Float64("time_left", sig.TimeLeftSec),
		slog.String("mode", string(d.Mode)),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.exiting, p.ID)
			e.mu.Unlock()
		}()
		e.executeExit(ctx, p, reason, d)
	}()
}

func (e *Engine) executeExit(ctx context.Context, p *position.Position, reason domain.ExitReason, d domain.OrderDecision) {
	fill, err := e.deps.Executor.Execute(ctx, d)
	if err != nil {
		e.logExecError(ctx, "exit not filled", d, err)
		return
	}
	if _, err := e.deps.Positions.Close(ctx, p, fill, reason); err != nil {
		e.logger.WarnContext(ctx, "close after exit fill failed",
			slog.String("position_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) considerEntries(ctx context.Context, round domain.Round) {
	e.mu.Lock()
	busy := e.entryInFlight
	e.mu.Unlock()
	if busy {
		return
	}

	gate := e.deps.Rounds.CanTrade()
	if !gate.OK {
		e.logger.DebugContext(ctx, "entries gated", slog.String("reason", gate.Reason))
		return
	}

	for _, m := range e.deps.Rounds.Markets() {
		if e.deps.Positions.HasAsset(m.Asset) {
			continue
		}
		in := strategy.Input{Market: m, Round: round}
		in.Up, in.HasUp = e.deps.Analytics.Latest(m.UpTokenID)
		in.Down, in.HasDown = e.deps.Analytics.Latest(m.DownTokenID)

		intent, ok := e.deps.Strategy.Evaluate(ctx, in)
		if !ok {
			continue
		}
		snap, ok := in.Book(intent.Direction)
		if !ok || len(snap.Asks) == 0 {
			continue
		}
		shares, err := e.deps.Risk.SizeEntry(ctx, intent, snap.BestAsk)
		if err != nil {
			if errors.Is(err, domain.ErrAdmission) {
				continue
			}
			e.logger.WarnContext(ctx, "sizing failed", slog.String("error", err.Error()))
			continue
		}

		d := e.deps.Policy.Entry(m, intent.Direction, snap, shares)
		entry := position.Entry{
			Asset:        m.Asset,
			ConditionID:  m.ConditionID,
			RoundSlot:    m.RoundSlot,
			Direction:    intent.Direction,
			Strategy:     intent.Source,
			InitialDepth: snap.TotalDepth(),
		}
		e.logger.InfoContext(ctx, "entry decided",
			slog.String("asset", m.Asset),
			slog.String("direction", string(intent.Direction)),
			slog.String("reason", d.Reason),
			slog.String("mode", string(d.Mode)),
			slog.Float64("price", d.Price),
			slog.Float64("shares", shares),
		)

		e.mu.Lock()
		e.entryInFlight = true
		e.mu.Unlock()
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				e.entryInFlight = false
				e.mu.Unlock()
			}()
			e.executeEntry(ctx, entry, d)
		}()
		return
	}
}

func (e *Engine) executeEntry(ctx context.Context, entry position.Entry, d domain.OrderDecision) {
	fill, err := e.deps.Executor.Execute(ctx, d)
	if err != nil {
		e.logExecError(ctx, "entry not filled", d, err)
		return
	}
	if _, err := e.deps.Positions.Open(ctx, entry, fill); err != nil {
		e.logger.ErrorContext(ctx, "open after entry fill failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) logExecError(ctx context.Context, msg string, d domain.OrderDecision, err error) {
	level := slog.LevelWarn
	if errors.Is(err, executor.ErrDuplicate) || errors.Is(err, context.Canceled) {
		level = slog.LevelDebug
	}
	e.logger.Log(ctx, level, msg,
		slog.String("decision_id", d.ID),
		slog.String("token", d.TokenID),
		slog.String("mode", string(d.Mode)),
		slog.String("error", err.Error()),
	)
}
