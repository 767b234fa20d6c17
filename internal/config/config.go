// Package config defines the top-level configuration for the quote streamer
// and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by METAQUOTE_* environment variables.
type Config struct {
	Stream    StreamConfig    `toml:"stream"`
	Directory DirectoryConfig `toml:"directory"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StreamConfig selects the initial quote subscription.
type StreamConfig struct {
	BaseURL     string   `toml:"base_url"`
	ChainID     int64    `toml:"chain_id"`
	TokenIn     string   `toml:"token_in"`
	TokenOut    string   `toml:"token_out"`
	Amount      string   `toml:"amount"`
	To          string   `toml:"to"`
	MaxSlippage string   `toml:"max_slippage"`
	Aggregators []string `toml:"aggregators"`
	// Enabled opens the subscription at startup. When false the stream waits
	// for PUT /api/stream.
	Enabled          bool  `toml:"enabled"`
	TokenInDecimals  int32 `toml:"token_in_decimals"`
	TokenOutDecimals int32 `toml:"token_out_decimals"`
}

// DirectoryConfig holds the aggregator directory endpoint.
type DirectoryConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// LedgerConfig holds quote expiry parameters.
type LedgerConfig struct {
	Expiry        duration `toml:"expiry"`
	SweepInterval duration `toml:"sweep_interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the quote audit
// trail.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// duration wraps time.Duration to support TOML string decoding (e.g. "15s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the mutating /api/stream routes when set.
	APIKey string `toml:"api_key"`
	// StreamChangeLimit caps mutating /api/stream requests per client per
	// minute. Enforced only when Redis is enabled.
	StreamChangeLimit int `toml:"stream_change_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Stream: StreamConfig{
			BaseURL:          "https://internal-gateway-hyperevm-dev.up.railway.app",
			ChainID:          999,
			TokenIn:          "0xB8CE59FC3717ada4C02eaDF9682A9e934F625ebb",
			TokenOut:         "0x0000000000000000000000000000000000000000",
			Amount:           "10000000",
			MaxSlippage:      "0.01",
			Enabled:          true,
			TokenInDecimals:  6,
			TokenOutDecimals: 18,
		},
		Directory: DirectoryConfig{
			BaseURL: "https://hyperevm.internal.oogabooga.io",
			Timeout: duration{10 * time.Second},
		},
		Ledger: LedgerConfig{
			Expiry:        duration{15 * time.Second},
			SweepInterval: duration{15 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    10,
			MaxRetries:  3,
			TLSEnabled:  false,
			SnapshotTTL: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "metaquote",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			StreamChangeLimit: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"stream_error", "stream_connected"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"watch":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, watch)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Stream
	if strings.TrimSpace(c.Stream.BaseURL) == "" {
		errs = append(errs, "stream: base_url must not be empty")
	}
	if c.Stream.ChainID <= 0 {
		errs = append(errs, "stream: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Stream.TokenIn) {
		errs = append(errs, fmt.Sprintf("stream: token_in %q is not a hex address", c.Stream.TokenIn))
	}
	if !common.IsHexAddress(c.Stream.TokenOut) {
		errs = append(errs, fmt.Sprintf("stream: token_out %q is not a hex address", c.Stream.TokenOut))
	}
	if c.Stream.To != "" && !common.IsHexAddress(c.Stream.To) {
		errs = append(errs, fmt.Sprintf("stream: to %q is not a hex address", c.Stream.To))
	}
	if n, ok := new(big.Int).SetString(c.Stream.Amount, 10); !ok || n.Sign() < 0 {
		errs = append(errs, fmt.Sprintf("stream: amount %q must be a base-10 unsigned integer", c.Stream.Amount))
	}
	if c.Stream.TokenInDecimals < 0 || c.Stream.TokenOutDecimals < 0 {
		errs = append(errs, "stream: token decimals must be >= 0")
	}

	// Ledger
	if c.Ledger.Expiry.Duration <= 0 {
		errs = append(errs, "ledger: expiry must be > 0")
	}
	if c.Ledger.SweepInterval.Duration <= 0 {
		errs = append(errs, "ledger: sweep_interval must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Server.Enabled || strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.StreamChangeLimit < 0 {
			errs = append(errs, "server: stream_change_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
