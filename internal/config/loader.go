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
// built-in defaults (an empty path skips the file), applies METAQUOTE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known METAQUOTE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Stream ──
	setStr(&cfg.Stream.BaseURL, "METAQUOTE_STREAM_BASE_URL")
	setInt64(&cfg.Stream.ChainID, "METAQUOTE_STREAM_CHAIN_ID")
	setStr(&cfg.Stream.TokenIn, "METAQUOTE_STREAM_TOKEN_IN")
	setStr(&cfg.Stream.TokenOut, "METAQUOTE_STREAM_TOKEN_OUT")
	setStr(&cfg.Stream.Amount, "METAQUOTE_STREAM_AMOUNT")
	setStr(&cfg.Stream.To, "METAQUOTE_STREAM_TO")
	setStr(&cfg.Stream.MaxSlippage, "METAQUOTE_STREAM_MAX_SLIPPAGE")
	setStringSlice(&cfg.Stream.Aggregators, "METAQUOTE_STREAM_AGGREGATORS")
	setBool(&cfg.Stream.Enabled, "METAQUOTE_STREAM_ENABLED")
	setInt32(&cfg.Stream.TokenInDecimals, "METAQUOTE_STREAM_TOKEN_IN_DECIMALS")
	setInt32(&cfg.Stream.TokenOutDecimals, "METAQUOTE_STREAM_TOKEN_OUT_DECIMALS")

	// ── Directory ──
	setStr(&cfg.Directory.BaseURL, "METAQUOTE_DIRECTORY_BASE_URL")
	setDuration(&cfg.Directory.Timeout, "METAQUOTE_DIRECTORY_TIMEOUT")

	// ── Ledger ──
	setDuration(&cfg.Ledger.Expiry, "METAQUOTE_LEDGER_EXPIRY")
	setDuration(&cfg.Ledger.SweepInterval, "METAQUOTE_LEDGER_SWEEP_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "METAQUOTE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "METAQUOTE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "METAQUOTE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "METAQUOTE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "METAQUOTE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "METAQUOTE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "METAQUOTE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "METAQUOTE_REDIS_SNAPSHOT_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "METAQUOTE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "METAQUOTE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "METAQUOTE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "METAQUOTE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "METAQUOTE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "METAQUOTE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "METAQUOTE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "METAQUOTE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "METAQUOTE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "METAQUOTE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "METAQUOTE_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "METAQUOTE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "METAQUOTE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "METAQUOTE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "METAQUOTE_SERVER_API_KEY")
	setInt(&cfg.Server.StreamChangeLimit, "METAQUOTE_SERVER_STREAM_CHANGE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "METAQUOTE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "METAQUOTE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "METAQUOTE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "METAQUOTE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "METAQUOTE_MODE")
	setStr(&cfg.LogLevel, "METAQUOTE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
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
