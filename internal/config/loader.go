package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ROUNDBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ROUNDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "ROUNDBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "ROUNDBOT_POLYMARKET_WS_HOST")
	setDuration(&cfg.Polymarket.GammaRateEvery, "ROUNDBOT_POLYMARKET_GAMMA_RATE_EVERY")
	setInt(&cfg.Polymarket.GammaBurst, "ROUNDBOT_POLYMARKET_GAMMA_BURST")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "ROUNDBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "ROUNDBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "ROUNDBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "ROUNDBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "ROUNDBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "ROUNDBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "ROUNDBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "ROUNDBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "ROUNDBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "ROUNDBOT_SUPABASE_POOL_MIN_CONNS")
	setDuration(&cfg.Supabase.ConnTimeout, "ROUNDBOT_SUPABASE_CONN_TIMEOUT")
	setBool(&cfg.Supabase.RunMigrations, "ROUNDBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ROUNDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ROUNDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ROUNDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ROUNDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ROUNDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ROUNDBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.LockKey, "ROUNDBOT_REDIS_LOCK_KEY")
	setDuration(&cfg.Redis.LockTTL, "ROUNDBOT_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ROUNDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ROUNDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ROUNDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ROUNDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ROUNDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ROUNDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ROUNDBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ROUNDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ROUNDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ROUNDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ROUNDBOT_NOTIFY_EVENTS")

	// ── Scanner ──
	setStringSlice(&cfg.Scanner.Assets, "ROUNDBOT_SCANNER_ASSETS")
	setDuration(&cfg.Scanner.RoundDuration, "ROUNDBOT_SCANNER_ROUND_DURATION")
	setDuration(&cfg.Scanner.MinRoundAge, "ROUNDBOT_SCANNER_MIN_ROUND_AGE")
	setDuration(&cfg.Scanner.MinTimeLeft, "ROUNDBOT_SCANNER_MIN_TIME_LEFT")
	setDuration(&cfg.Scanner.CheckInterval, "ROUNDBOT_SCANNER_CHECK_INTERVAL")

	// ── Execution ──
	setStr(&cfg.Execution.EntryMode, "ROUNDBOT_EXECUTION_ENTRY_MODE")
	setStr(&cfg.Execution.ExitMode, "ROUNDBOT_EXECUTION_EXIT_MODE")
	setFloat64(&cfg.Execution.TakerBufferCents, "ROUNDBOT_EXECUTION_TAKER_BUFFER_CENTS")
	setFloat64(&cfg.Execution.MakerExitBufferCents, "ROUNDBOT_EXECUTION_MAKER_EXIT_BUFFER_CENTS")
	setBool(&cfg.Execution.MakerExitsForTpOnly, "ROUNDBOT_EXECUTION_MAKER_EXITS_FOR_TP_ONLY")
	setDuration(&cfg.Execution.FillGrace, "ROUNDBOT_EXECUTION_FILL_GRACE")

	// ── Exit ──
	setDuration(&cfg.Exit.ForceExit, "ROUNDBOT_EXIT_FORCE_EXIT")
	setFloat64(&cfg.Exit.TakeProfitPct, "ROUNDBOT_EXIT_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Exit.StopLossPct, "ROUNDBOT_EXIT_STOP_LOSS_PCT")
	setBool(&cfg.Exit.TrailingEnabled, "ROUNDBOT_EXIT_TRAILING_ENABLED")

	// ── Sizing ──
	setFloat64(&cfg.Sizing.MinShares, "ROUNDBOT_SIZING_MIN_SHARES")
	setFloat64(&cfg.Sizing.MaxShares, "ROUNDBOT_SIZING_MAX_SHARES")
	setFloat64(&cfg.Sizing.MaxPositionUSD, "ROUNDBOT_SIZING_MAX_POSITION_USD")
	setInt(&cfg.Sizing.MaxPositions, "ROUNDBOT_SIZING_MAX_POSITIONS")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "ROUNDBOT_STRATEGY_NAME")
	setFloat64(&cfg.Strategy.SizeUSD, "ROUNDBOT_STRATEGY_SIZE_USD")

	// ── Engine ──
	setDuration(&cfg.Engine.EvalInterval, "ROUNDBOT_ENGINE_EVAL_INTERVAL")
	setBool(&cfg.Engine.CloseOnShutdown, "ROUNDBOT_ENGINE_CLOSE_ON_SHUTDOWN")
	setBool(&cfg.Engine.CacheSnapshots, "ROUNDBOT_ENGINE_CACHE_SNAPSHOTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ROUNDBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ROUNDBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ROUNDBOT_SERVER_API_KEY")
	setFloat64(&cfg.Server.RateLimitRPS, "ROUNDBOT_SERVER_RATE_LIMIT_RPS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ROUNDBOT_MODE")
	setStr(&cfg.LogLevel, "ROUNDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
