// Package config defines the top-level configuration for the round trader
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ROUNDBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Supabase   SupabaseConfig   `toml:"supabase"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Analytics  AnalyticsConfig  `toml:"analytics"`
	Execution  ExecutionConfig  `toml:"execution"`
	Exit       ExitConfig       `toml:"exit"`
	Sizing     SizingConfig     `toml:"sizing"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Engine     EngineConfig     `toml:"engine"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds the market catalog and feed endpoints.
type PolymarketConfig struct {
	GammaHost      string   `toml:"gamma_host"`
	WsHost         string   `toml:"ws_host"`
	GammaRateEvery duration `toml:"gamma_rate_every"`
	GammaBurst     int      `toml:"gamma_burst"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters. The
// closed-position history is kept only when DSN or Host is set.
type SupabaseConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnTimeout   duration `toml:"conn_timeout"`
	RunMigrations bool     `toml:"run_migrations"`
}

// Configured reports whether a database was configured.
func (c SupabaseConfig) Configured() bool {
	return strings.TrimSpace(c.DSN) != "" || c.Host != ""
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockKey    string   `toml:"lock_key"`
	LockTTL    duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters. Archiving is
// enabled only when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Configured reports whether object storage was configured.
func (c S3Config) Configured() bool { return c.Bucket != "" }

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ScannerConfig controls round discovery and trade gating. AssetNames maps a
// symbol to the long name used in market questions.
type ScannerConfig struct {
	Assets               []string          `toml:"assets"`
	AssetNames           map[string]string `toml:"asset_names"`
	RoundDuration        duration          `toml:"round_duration"`
	MinRoundAge          duration          `toml:"min_round_age"`
	MinTimeLeft          duration          `toml:"min_time_left"`
	CheckInterval        duration          `toml:"check_interval"`
	DiscoveryMinInterval duration          `toml:"discovery_min_interval"`
}

// AnalyticsConfig sizes the trailing windows of the orderbook trackers.
type AnalyticsConfig struct {
	SpreadWindow     duration `toml:"spread_window"`
	DepthWindow      duration `toml:"depth_window"`
	DepthCompare     duration `toml:"depth_compare"`
	MinSpreadSamples int      `toml:"min_spread_samples"`
}

// ExecutionConfig holds order-routing preferences.
type ExecutionConfig struct {
	EntryMode            string   `toml:"entry_mode"`
	ExitMode             string   `toml:"exit_mode"`
	TakerBufferCents     float64  `toml:"taker_buffer_cents"`
	MakerExitBufferCents float64  `toml:"maker_exit_buffer_cents"`
	TickSize             float64  `toml:"tick_size"`
	MakerExitsForTpOnly  bool     `toml:"maker_exits_for_tp_only"`
	FillGrace            duration `toml:"fill_grace"`
	DedupTTL             duration `toml:"dedup_ttl"`
	DecisionStream       string   `toml:"decision_stream"`
}

// ExitConfig holds the exit thresholds. Percentages are PnL percentage
// points relative to the entry price.
type ExitConfig struct {
	ForceExit                  duration `toml:"force_exit"`
	TakeProfitPct              float64  `toml:"take_profit_pct"`
	StopLossPct                float64  `toml:"stop_loss_pct"`
	RatchetConfirmTicks        int      `toml:"ratchet_confirm_ticks"`
	RatchetConfirmTolerancePct float64  `toml:"ratchet_confirm_tolerance_pct"`
	RatchetGivebackPct         float64  `toml:"ratchet_giveback_pct"`
	RatchetActivationPct       float64  `toml:"ratchet_activation_pct"`
	TrailingEnabled            bool     `toml:"trailing_enabled"`
	TrailingActivationPct      float64  `toml:"trailing_activation_pct"`
	TrailingWidePct            float64  `toml:"trailing_wide_pct"`
	TrailingMidPct             float64  `toml:"trailing_mid_pct"`
	TrailingLatePct            float64  `toml:"trailing_late_pct"`
	DepthCollapsePct           float64  `toml:"depth_collapse_pct"`
	StaleProfitPct             float64  `toml:"stale_profit_pct"`
	StaleProfitBidUnchanged    duration `toml:"stale_profit_bid_unchanged"`
	StagnantProfitPct          float64  `toml:"stagnant_profit_pct"`
	StagnantBandPct            float64  `toml:"stagnant_band_pct"`
	StagnantDuration           duration `toml:"stagnant_duration"`
}

// SizingConfig caps new positions.
type SizingConfig struct {
	MinShares      float64 `toml:"min_shares"`
	MaxShares      float64 `toml:"max_shares"`
	MaxPositionUSD float64 `toml:"max_position_usd"`
	MaxPositions   int     `toml:"max_positions"`
}

// StrategyConfig selects the entry strategy and passes its parameters.
type StrategyConfig struct {
	Name    string         `toml:"name"`
	SizeUSD float64        `toml:"size_usd"`
	Params  map[string]any `toml:"params"`
}

// EngineConfig controls the evaluation loop and the background jobs.
type EngineConfig struct {
	EvalInterval    duration `toml:"eval_interval"`
	ScanLogInterval duration `toml:"scan_log_interval"`
	ArchiveInterval duration `toml:"archive_interval"`
	CloseOnShutdown bool     `toml:"close_on_shutdown"`
	CacheSnapshots  bool     `toml:"cache_snapshots"`
}

// ServerConfig holds the status API settings.
type ServerConfig struct {
	Enabled        bool    `toml:"enabled"`
	Port           int     `toml:"port"`
	APIKey         string  `toml:"api_key"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "15m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults for 15-minute
// crypto Up/Down rounds.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:      "https://gamma-api.polymarket.com",
			WsHost:         "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			GammaRateEvery: duration{200 * time.Millisecond},
			GammaBurst:     4,
		},
		Supabase: SupabaseConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "require",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			ConnTimeout:   duration{10 * time.Second},
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockKey:    "engine",
			LockTTL:    duration{30 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "error"},
		},
		Scanner: ScannerConfig{
			Assets: []string{"BTC", "ETH", "SOL", "XRP"},
			AssetNames: map[string]string{
				"BTC": "Bitcoin",
				"ETH": "Ethereum",
				"SOL": "Solana",
				"XRP": "XRP",
			},
			RoundDuration:        duration{900 * time.Second},
			MinRoundAge:          duration{30 * time.Second},
			MinTimeLeft:          duration{60 * time.Second},
			CheckInterval:        duration{10 * time.Second},
			DiscoveryMinInterval: duration{10 * time.Second},
		},
		Analytics: AnalyticsConfig{
			SpreadWindow:     duration{60 * time.Second},
			DepthWindow:      duration{30 * time.Second},
			DepthCompare:     duration{10 * time.Second},
			MinSpreadSamples: 10,
		},
		Execution: ExecutionConfig{
			EntryMode:            "maker_then_taker",
			ExitMode:             "maker_then_taker",
			TakerBufferCents:     1,
			MakerExitBufferCents: 1,
			TickSize:             0.01,
			MakerExitsForTpOnly:  true,
			FillGrace:            duration{3 * time.Second},
			DedupTTL:             duration{30 * time.Second},
			DecisionStream:       "decisions",
		},
		Exit: ExitConfig{
			ForceExit:                  duration{30 * time.Second},
			TakeProfitPct:              15,
			StopLossPct:                20,
			RatchetConfirmTicks:        3,
			RatchetConfirmTolerancePct: 1,
			RatchetGivebackPct:         5,
			RatchetActivationPct:       5,
			TrailingEnabled:            true,
			TrailingActivationPct:      5,
			TrailingWidePct:            10,
			TrailingMidPct:             6,
			TrailingLatePct:            3,
			DepthCollapsePct:           60,
			StaleProfitPct:             5,
			StaleProfitBidUnchanged:    duration{20 * time.Second},
			StagnantProfitPct:          3,
			StagnantBandPct:            1,
			StagnantDuration:           duration{45 * time.Second},
		},
		Sizing: SizingConfig{
			MinShares:      5,
			MaxShares:      200,
			MaxPositionUSD: 50,
			MaxPositions:   3,
		},
		Strategy: StrategyConfig{
			Name:    "obi_lean",
			SizeUSD: 25,
			Params:  map[string]any{},
		},
		Engine: EngineConfig{
			EvalInterval:    duration{time.Second},
			ScanLogInterval: duration{15 * time.Second},
			ArchiveInterval: duration{24 * time.Hour},
			CloseOnShutdown: true,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"paper": true,
	"scan":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validExecModes enumerates the accepted execution modes.
var validExecModes = map[string]bool{
	"maker":            true,
	"taker":            true,
	"fok":              true,
	"maker_then_taker": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, scan)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}

	// Supabase
	if c.Supabase.Configured() {
		if strings.TrimSpace(c.Supabase.DSN) == "" && (c.Supabase.Port <= 0 || c.Supabase.Port > 65535) {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis: the trade mode hands decisions to the execution client through
	// Redis and holds the engine lock there.
	if c.Mode == "trade" && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr is required for mode trade")
	}
	if c.Redis.Addr != "" {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration < time.Second {
			errs = append(errs, "redis: lock_ttl must be at least 1s")
		}
	}

	// S3
	if c.S3.Configured() && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Scanner
	rd := c.Scanner.RoundDuration.Duration
	if len(c.Scanner.Assets) == 0 {
		errs = append(errs, "scanner: at least one asset is required")
	}
	if rd <= 0 {
		errs = append(errs, "scanner: round_duration must be > 0")
	}
	if c.Scanner.MinTimeLeft.Duration >= rd {
		errs = append(errs, "scanner: min_time_left must be shorter than round_duration")
	}
	if c.Scanner.MinRoundAge.Duration >= rd {
		errs = append(errs, "scanner: min_round_age must be shorter than round_duration")
	}
	if c.Scanner.CheckInterval.Duration <= 0 {
		errs = append(errs, "scanner: check_interval must be > 0")
	}

	// Analytics
	if c.Analytics.SpreadWindow.Duration <= 0 || c.Analytics.DepthWindow.Duration <= 0 {
		errs = append(errs, "analytics: spread_window and depth_window must be > 0")
	}
	if c.Analytics.DepthCompare.Duration > c.Analytics.DepthWindow.Duration {
		errs = append(errs, "analytics: depth_compare must not exceed depth_window")
	}
	if c.Analytics.MinSpreadSamples < 1 {
		errs = append(errs, "analytics: min_spread_samples must be >= 1")
	}

	// Execution
	if !validExecModes[c.Execution.EntryMode] {
		errs = append(errs, fmt.Sprintf("execution: unknown entry_mode %q", c.Execution.EntryMode))
	}
	if !validExecModes[c.Execution.ExitMode] {
		errs = append(errs, fmt.Sprintf("execution: unknown exit_mode %q", c.Execution.ExitMode))
	}
	if c.Execution.TakerBufferCents < 0 || c.Execution.TakerBufferCents > 10 {
		errs = append(errs, "execution: taker_buffer_cents must be within [0, 10]")
	}
	if c.Execution.MakerExitBufferCents < 0 || c.Execution.MakerExitBufferCents > 10 {
		errs = append(errs, "execution: maker_exit_buffer_cents must be within [0, 10]")
	}
	if c.Execution.TickSize <= 0 || c.Execution.TickSize >= 1 {
		errs = append(errs, "execution: tick_size must be within (0, 1)")
	}
	if c.Mode == "trade" && c.Execution.DecisionStream == "" {
		errs = append(errs, "execution: decision_stream must not be empty for mode trade")
	}

	// Exit
	if c.Exit.ForceExit.Duration >= c.Scanner.MinTimeLeft.Duration {
		errs = append(errs, "exit: force_exit must be shorter than scanner.min_time_left")
	}
	if c.Exit.StopLossPct < 0 || c.Exit.TakeProfitPct < 0 {
		errs = append(errs, "exit: stop_loss_pct and take_profit_pct must be >= 0")
	}
	if c.Exit.TrailingEnabled &&
		(c.Exit.TrailingLatePct > c.Exit.TrailingMidPct || c.Exit.TrailingMidPct > c.Exit.TrailingWidePct) {
		errs = append(errs, "exit: trailing widths must satisfy late <= mid <= wide")
	}
	if c.Exit.RatchetConfirmTicks < 1 {
		errs = append(errs, "exit: ratchet_confirm_ticks must be >= 1")
	}
	if c.Exit.DepthCollapsePct <= 0 || c.Exit.DepthCollapsePct > 100 {
		errs = append(errs, "exit: depth_collapse_pct must be within (0, 100]")
	}

	// Sizing
	if c.Sizing.MinShares < 0 {
		errs = append(errs, "sizing: min_shares must be >= 0")
	}
	if c.Sizing.MaxShares > 0 && c.Sizing.MinShares >= c.Sizing.MaxShares {
		errs = append(errs, "sizing: min_shares must be below max_shares")
	}
	if c.Sizing.MaxPositionUSD <= 0 {
		errs = append(errs, "sizing: max_position_usd must be > 0")
	}
	if c.Sizing.MaxPositions < 1 {
		errs = append(errs, "sizing: max_positions must be >= 1")
	}

	// Strategy
	if c.Mode != "scan" && c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.SizeUSD < 0 {
		errs = append(errs, "strategy: size_usd must be >= 0")
	}

	// Engine
	if c.Engine.EvalInterval.Duration <= 0 {
		errs = append(errs, "engine: eval_interval must be > 0")
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
