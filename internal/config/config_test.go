package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Second, cfg.Ledger.Expiry.Duration)
	assert.Equal(t, 15*time.Second, cfg.Ledger.SweepInterval.Duration)
	assert.Equal(t, "0.01", cfg.Stream.MaxSlippage)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Stream.ChainID = 0
	cfg.Stream.TokenIn = "0x1234"
	cfg.Stream.Amount = "1.5"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "stream: chain_id must be positive")
	assert.Contains(t, msg, "stream: token_in")
	assert.Contains(t, msg, "stream: amount")
	assert.Contains(t, msg, "redis: addr must not be empty")
	assert.Contains(t, msg, "server: port")
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "watch"

[stream]
chain_id = 1
amount = "5000"
aggregators = ["kyber", "okx"]

[ledger]
expiry = "30s"
`), 0o600))

	t.Setenv("METAQUOTE_STREAM_AMOUNT", "7000")
	t.Setenv("METAQUOTE_LEDGER_SWEEP_INTERVAL", "5s")
	t.Setenv("METAQUOTE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("METAQUOTE_STREAM_TOKEN_OUT_DECIMALS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, int64(1), cfg.Stream.ChainID)
	assert.Equal(t, "7000", cfg.Stream.Amount)
	assert.Equal(t, []string{"kyber", "okx"}, cfg.Stream.Aggregators)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Expiry.Duration)
	assert.Equal(t, 5*time.Second, cfg.Ledger.SweepInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, int32(8), cfg.Stream.TokenOutDecimals)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestStreamParams(t *testing.T) {
	sc := Defaults().Stream
	sc.To = "0x8c2d66577E7CC4CF06c65f14724ee27afB6f7376"
	sc.Aggregators = []string{"kyber"}

	p, err := sc.Params()
	require.NoError(t, err)
	assert.Equal(t, int64(999), p.ChainID)
	require.NotNil(t, p.Recipient)
	assert.Equal(t, "0x8c2d66577E7CC4CF06c65f14724ee27afB6f7376", p.Recipient.Hex())
	assert.Equal(t, []string{"kyber"}, p.Aggregators)

	sc.Amount = "-1"
	_, err = sc.Params()
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	sc.TokenIn = "nope"
	_, err = sc.Params()
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "secret"
	cfg.Notify.TelegramToken = "tok"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Empty(t, red.Redis.Password)
	assert.Equal(t, "secret", cfg.Server.APIKey)

	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
