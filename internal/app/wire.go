package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/roundbot/internal/blob/s3"
	"github.com/alanyoungcy/roundbot/internal/cache/redis"
	"github.com/alanyoungcy/roundbot/internal/config"
	"github.com/alanyoungcy/roundbot/internal/domain"
	"github.com/alanyoungcy/roundbot/internal/execution"
	"github.com/alanyoungcy/roundbot/internal/notify"
	"github.com/alanyoungcy/roundbot/internal/orderbook"
	"github.com/alanyoungcy/roundbot/internal/platform/polymarket"
	"github.com/alanyoungcy/roundbot/internal/position"
	"github.com/alanyoungcy/roundbot/internal/scanner"
	"github.com/alanyoungcy/roundbot/internal/server/handler"
	"github.com/alanyoungcy/roundbot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the application modes need. The
// optional members are nil when their backend is not configured.
type Dependencies struct {
	// Redis
	MarketCache *redis.RoundMarketCache
	Snapshots   domain.SnapshotCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Fills       domain.FillWaiter

	// Persistence
	History  domain.ClosedPositionStore
	Archiver domain.Archiver

	// Market data
	Catalog *polymarket.GammaClient

	// Notifications
	Notifier *notify.Notifier

	// Health probes for the status API, keyed by backend name.
	Checks map[string]handler.Check
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	// --- Redis (required for trade, best effort otherwise) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			ClientName: "roundbot-" + cfg.Mode,
		})
		switch {
		case err != nil && cfg.Mode == "trade":
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		case err != nil:
			logger.WarnContext(ctx, "redis unavailable, running without shared state",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		default:
			closers = append(closers, func() { _ = redisClient.Close() })
			deps.MarketCache = redis.NewRoundMarketCache(redisClient)
			deps.Snapshots = redis.NewSnapshotCache(redisClient)
			deps.LockManager = redis.NewLockManager(redisClient)
			deps.SignalBus = redis.NewSignalBus(redisClient)
			deps.Fills = redis.NewFillWaiter(redisClient)
			deps.Checks["redis"] = redisClient.Ping
		}
	}

	// --- PostgreSQL (closed-position history) ---
	if cfg.Supabase.Configured() && cfg.Mode != "scan" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:         cfg.Supabase.DSN,
			Host:        cfg.Supabase.Host,
			Port:        cfg.Supabase.Port,
			Database:    cfg.Supabase.Database,
			User:        cfg.Supabase.User,
			Password:    cfg.Supabase.Password,
			SSLMode:     cfg.Supabase.SSLMode,
			MaxConns:    cfg.Supabase.PoolMaxConns,
			MinConns:    cfg.Supabase.PoolMinConns,
			ConnTimeout: cfg.Supabase.ConnTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.History = postgres.NewClosedPositionStore(pgClient.Pool())
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- S3 archive (needs the history to read from) ---
	if cfg.S3.Configured() && deps.History != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archives may fail",
				slog.String("bucket", cfg.S3.Bucket),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewArchiver(deps.History, s3blob.NewWriter(s3Client))
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Market catalog ---
	deps.Catalog = polymarket.NewGammaClient(
		cfg.Polymarket.GammaHost,
		polymarket.WithRateLimit(cfg.Polymarket.GammaRateEvery.Duration, cfg.Polymarket.GammaBurst),
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// scannerConfig maps the [scanner] section onto the scanner.
func scannerConfig(c config.ScannerConfig) scanner.Config {
	assets := make([]scanner.Asset, 0, len(c.Assets))
	for _, sym := range c.Assets {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		name := c.AssetNames[sym]
		if name == "" {
			name = sym
		}
		assets = append(assets, scanner.Asset{Symbol: sym, Name: name})
	}
	return scanner.Config{
		Assets:               assets,
		RoundDuration:        c.RoundDuration.Duration,
		MinRoundAge:          c.MinRoundAge.Duration,
		MinTimeLeft:          c.MinTimeLeft.Duration,
		CheckInterval:        c.CheckInterval.Duration,
		DiscoveryMinInterval: c.DiscoveryMinInterval.Duration,
	}
}

// analyticsOptions maps the [analytics] section onto tracker options.
func analyticsOptions(c config.AnalyticsConfig) []orderbook.Option {
	return []orderbook.Option{
		orderbook.WithSpreadWindow(c.SpreadWindow.Duration),
		orderbook.WithDepthWindow(c.DepthWindow.Duration),
		orderbook.WithDepthCompare(c.DepthCompare.Duration),
		orderbook.WithMinSpreadSamples(c.MinSpreadSamples),
	}
}

// executionConfig maps the [execution] section onto the policy.
func executionConfig(c config.ExecutionConfig) execution.Config {
	return execution.Config{
		EntryMode:            domain.ExecutionMode(c.EntryMode),
		ExitMode:             domain.ExecutionMode(c.ExitMode),
		TakerBufferCents:     c.TakerBufferCents,
		MakerExitBufferCents: c.MakerExitBufferCents,
		TickSize:             c.TickSize,
		MakerExitsForTpOnly:  c.MakerExitsForTpOnly,
	}
}

// exitParams maps the [exit] section onto the exit policy.
func exitParams(c config.ExitConfig) position.ExitParams {
	return position.ExitParams{
		ForceExitSec:               c.ForceExit.Seconds(),
		TakeProfitPct:              c.TakeProfitPct,
		StopLossPct:                c.StopLossPct,
		RatchetConfirmTicks:        c.RatchetConfirmTicks,
		RatchetConfirmTolerancePct: c.RatchetConfirmTolerancePct,
		RatchetGivebackPct:         c.RatchetGivebackPct,
		RatchetActivationPct:       c.RatchetActivationPct,
		TrailingEnabled:            c.TrailingEnabled,
		TrailingActivationPct:      c.TrailingActivationPct,
		TrailingWidePct:            c.TrailingWidePct,
		TrailingMidPct:             c.TrailingMidPct,
		TrailingLatePct:            c.TrailingLatePct,
		DepthCollapsePct:           c.DepthCollapsePct,
		StaleProfitPct:             c.StaleProfitPct,
		StaleProfitBidUnchangedSec: c.StaleProfitBidUnchanged.Seconds(),
		StagnantProfitPct:          c.StagnantProfitPct,
		StagnantBandPct:            c.StagnantBandPct,
		StagnantDurationSec:        c.StagnantDuration.Seconds(),
	}
}

// sizing maps the [sizing] section onto the admission gate.
func sizing(c config.SizingConfig) position.Sizing {
	return position.Sizing{
		MinShares:      c.MinShares,
		MaxShares:      c.MaxShares,
		MaxPositionUSD: c.MaxPositionUSD,
		MaxPositions:   c.MaxPositions,
	}
}
