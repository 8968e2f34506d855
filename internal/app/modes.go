package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/roundbot/internal/cache/redis"
	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/engine"
	"github.com/alanyoungcy/roundbot/internal/execution"
	"github.com/alanyoungcy/roundbot/internal/executor"
	"github.com/alanyoungcy/roundbot/internal/feed"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
	"github.com/alanyoungcy/roundbot/internal/platform/polymarket"
	"github.com/alanyoungcy/roundbot/internal/scanner"
	"github.com/alanyoungcy/roundbot/internal/server"
	"github.com/alanyoungcy/roundbot/internal/server/handler"
	"github.com/alanyoungcy/roundbot/internal/service"
	"github.com/alanyoungcy/roundbot/internal/strategy"
)

// dedupCleanupInterval is how often expired dedup keys are dropped.
const dedupCleanupInterval = time.Minute

// runtime is the in-process trading core shared by every mode.
type runtime struct {
	scanner   *scanner.Scanner
	analytics *orderbook.Analytics
	feed      *feed.BookFeed
	engine    *engine.Engine
	positions *service.PositionService
}

// TradeMode holds the engine lock in Redis and hands every decision to the
// external execution client through the decision stream.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")
	if deps.LockManager == nil || deps.SignalBus == nil || deps.Fills == nil {
		return fmt.Errorf("trade mode requires redis")
	}

	lockTTL := a.cfg.Redis.LockTTL.Duration
	unlock, err := deps.LockManager.Acquire(ctx, a.cfg.Redis.LockKey, lockTTL)
	if err != nil {
		return fmt.Errorf("trade mode: acquire engine lock %q: %w", a.cfg.Redis.LockKey, err)
	}
	defer unlock()

	g, ctx := errgroup.WithContext(ctx)

	stream := executor.NewStreamExecutor(
		deps.SignalBus, deps.Fills, a.cfg.Execution.DecisionStream,
		a.cfg.Execution.FillGrace.Duration, a.logger,
	)
	guarded := executor.NewGuarded(stream, a.cfg.Execution.DedupTTL.Duration)
	rt := a.buildRuntime(deps, guarded)
	a.startCore(ctx, g, deps, rt)
	a.startServer(ctx, g, deps, rt)
	a.startDedupCleanup(ctx, g, guarded)
	a.startArchiveLoop(ctx, g, deps)

	// Lease renewal: losing the lock stops the mode.
	g.Go(func() error {
		ticker := time.NewTicker(lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := deps.LockManager.Extend(ctx, a.cfg.Redis.LockKey, lockTTL); err != nil {
					return fmt.Errorf("trade mode: engine lock lost: %w", err)
				}
			}
		}
	})

	err = g.Wait()
	a.closeOnShutdown(rt)
	return err
}

// PaperMode runs the full decision loop against simulated fills.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode")

	g, ctx := errgroup.WithContext(ctx)

	// The paper executor fills against the same books the engine reads.
	analytics := orderbook.NewAnalytics(analyticsOptions(a.cfg.Analytics)...)
	paper := executor.NewPaperExecutor(analytics, a.logger)
	guarded := executor.NewGuarded(paper, a.cfg.Execution.DedupTTL.Duration)
	rt := a.buildRuntimeWith(deps, analytics, guarded)

	a.startCore(ctx, g, deps, rt)
	a.startServer(ctx, g, deps, rt)
	a.startDedupCleanup(ctx, g, guarded)
	a.startArchiveLoop(ctx, g, deps)

	err := g.Wait()
	a.closeOnShutdown(rt)
	return err
}

// ScanMode runs discovery, the feed and the analytics without trading and
// logs a readout of every book periodically.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)
	rt := a.buildRuntime(deps, nil)
	a.startCore(ctx, g, deps, rt)
	a.startServer(ctx, g, deps, rt)

	interval := a.cfg.Engine.ScanLogInterval.Duration
	if interval <= 0 {
		interval = 15 * time.Second
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				rt.engine.LogViews(ctx)
			}
		}
	})

	return g.Wait()
}

func (a *App) buildRuntime(deps *Dependencies, exec executor.Executor) *runtime {
	analytics := orderbook.NewAnalytics(analyticsOptions(a.cfg.Analytics)...)
	return a.buildRuntimeWith(deps, analytics, exec)
}

// buildRuntimeWith assembles the scanner, feed, services and engine. exec
// may be nil, in which case the engine only observes.
func (a *App) buildRuntimeWith(deps *Dependencies, analytics *orderbook.Analytics, exec executor.Executor) *runtime {
	rt := &runtime{analytics: analytics}
	rt.scanner = scanner.New(scannerConfig(a.cfg.Scanner), deps.Catalog, a.logger)

	params := exitParams(a.cfg.Exit)
	rt.positions = service.NewPositionService(params, deps.SignalBus, deps.History, deps.Notifier, a.logger)
	risk := service.NewRiskService(sizing(a.cfg.Sizing), rt.positions, a.logger)

	engDeps := engine.Deps{
		Rounds:    rt.scanner,
		Analytics: analytics,
		Policy:    execution.NewPolicy(executionConfig(a.cfg.Execution)),
		Positions: rt.positions,
		Risk:      risk,
	}
	if exec != nil {
		engDeps.Executor = exec
		engDeps.Strategy = a.entryStrategy(analytics)
	}
	if a.cfg.Engine.CacheSnapshots && deps.Snapshots != nil {
		engDeps.Snapshots = deps.Snapshots
	}
	rt.engine = engine.New(engine.Config{
		EvalInterval: a.cfg.Engine.EvalInterval.Duration,
		ExitParams:   params,
	}, engDeps, a.logger)

	rt.feed = feed.NewBookFeed(polymarket.NewWSClient(a.cfg.Polymarket.WsHost), rt.engine.HandleBook, a.logger)
	return rt
}

// entryStrategy resolves the configured strategy from the registry. An
// unknown name leaves the engine without entries.
func (a *App) entryStrategy(analytics *orderbook.Analytics) strategy.EntryStrategy {
	scfg := strategy.Config{
		Name:    a.cfg.Strategy.Name,
		SizeUSD: a.cfg.Strategy.SizeUSD,
		Params:  a.cfg.Strategy.Params,
	}
	reg := strategy.NewRegistry()
	reg.Register(strategy.NewOBILean(scfg, analytics.Spread, a.logger))

	s, err := reg.Get(a.cfg.Strategy.Name)
	if err != nil {
		a.logger.Warn("entry strategy unavailable, engine will only manage exits",
			slog.String("strategy", a.cfg.Strategy.Name),
			slog.Any("registered", reg.List()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return s
}

// startCore launches the scanner, the feed and the engine and connects the
// rotation hook that keeps them on the current round.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	var (
		mu   sync.Mutex
		prev []string
	)
	rt.scanner.OnRotate(func(markets []domain.Market) {
		tokens := make([]string, 0, 2*len(markets))
		for _, m := range markets {
			tokens = append(tokens, m.UpTokenID, m.DownTokenID)
		}

		mu.Lock()
		old := prev
		prev = tokens
		mu.Unlock()

		rt.feed.SetAssets(ctx, tokens)
		rt.engine.HandleRotate(old, tokens)
		a.shareRound(ctx, deps, markets)
	})

	g.Go(func() error {
		return rt.scanner.Run(ctx)
	})
	g.Go(func() error {
		defer rt.feed.Close()
		return rt.feed.Run(ctx)
	})
	g.Go(func() error {
		return rt.engine.Run(ctx)
	})
}

// shareRound publishes a new market set to the cache, the bus and the
// notifier.
func (a *App) shareRound(ctx context.Context, deps *Dependencies, markets []domain.Market) {
	if deps.MarketCache != nil {
		if err := deps.MarketCache.PutAll(ctx, markets); err != nil {
			a.logger.WarnContext(ctx, "market cache write failed", slog.String("error", err.Error()))
		}
	}
	if deps.SignalBus != nil {
		if payload, err := json.Marshal(markets); err == nil {
			if err := deps.SignalBus.Publish(ctx, redis.ChannelRounds, payload); err != nil {
				a.logger.WarnContext(ctx, "publish round failed", slog.String("error", err.Error()))
			}
		}
	}
	if err := deps.Notifier.RoundRotated(ctx, markets); err != nil {
		a.logger.WarnContext(ctx, "notify round failed", slog.String("error", err.Error()))
	}
}

// startServer serves the read-only status API until ctx is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	if !a.cfg.Server.Enabled {
		return
	}

	var history handler.HistorySource
	if deps.History != nil {
		history = deps.History
	}
	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		APIKey:         a.cfg.Server.APIKey,
		RateLimitRPS:   a.cfg.Server.RateLimitRPS,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Checks, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Strategy.Name, rt.scanner, rt.positions),
		Markets:   handler.NewMarketHandler(rt.scanner),
		Positions: handler.NewPositionHandler(rt.positions, history, a.logger),
		Books:     handler.NewBookHandler(rt.engine),
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("status server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// startDedupCleanup periodically drops expired dedup keys.
func (a *App) startDedupCleanup(ctx context.Context, g *errgroup.Group, guarded *executor.Guarded) {
	g.Go(func() error {
		ticker := time.NewTicker(dedupCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				guarded.Cleanup()
			}
		}
	})
}

// startArchiveLoop copies the previous day's closed positions to object
// storage on every archive interval.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.InfoContext(ctx, "archive: postgres or s3 not configured, skipping")
		return
	}
	interval := a.cfg.Engine.ArchiveInterval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	runOnce := func() {
		day := time.Now().UTC().AddDate(0, 0, -1)
		n, err := deps.Archiver.ArchiveClosed(ctx, day)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive: closed positions failed",
				slog.String("day", day.Format(time.DateOnly)),
				slog.String("error", err.Error()),
			)
			if nerr := deps.Notifier.Error(ctx, "archive", err); nerr != nil {
				a.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
			}
			return
		}
		a.logger.InfoContext(ctx, "archive: closed positions written",
			slog.String("day", day.Format(time.DateOnly)),
			slog.Int64("rows", n),
		)
	}

	g.Go(func() error {
		runOnce()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runOnce()
			}
		}
	})
}

// closeOnShutdown books the remaining positions as manual exits at the best
// bid so the history is complete.
func (a *App) closeOnShutdown(rt *runtime) {
	if !a.cfg.Engine.CloseOnShutdown || rt.positions.Count() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closed := rt.positions.CloseAll(ctx, domain.ExitManual, func(tokenID string) (float64, bool) {
		snap, ok := rt.analytics.Latest(tokenID)
		if !ok || len(snap.Bids) == 0 {
			return 0, false
		}
		return snap.BestBid, true
	})
	a.logger.Info("positions closed on shutdown", slog.Int("closed", len(closed)))
}
