package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/utils"
)

const minimalYAML = `
name: market-pulse-test
host: 127.0.0.1
port: 8010
log_level: INFO

storage:
  db_type: sqlite
  db_path: test.db

network:
  timeout: 10
  retries: 3
  concurrent_requests: 4

upstream:
  stream_url: wss://stream.example.com/stream
  rest_url: https://api.example.com
  market_symbols:
    - BTCUSDT
    - ETHUSDT

auth:
  jwt_secret: from-yaml
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func loadValid(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfig(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)
	return cfg
}

func TestNewConfig_LoadsAndDefaults(t *testing.T) {
	cfg := loadValid(t)

	assert.Equal(t, "market-pulse-test", cfg.Name)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Storage.DBType)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Upstream.MarketSymbols)

	// Unstated values fall back to the streaming defaults.
	assert.Equal(t, utils.DefaultCandleIntervalMs, cfg.Stream.CandleIntervalMs)
	assert.Equal(t, utils.DefaultCandleHistorySize, cfg.Stream.CandleHistorySize)
	assert.Equal(t, utils.DefaultBatchIntervalMs, cfg.Stream.BatchIntervalMs)
	assert.Equal(t, utils.DefaultSendBufferSize, cfg.Stream.SendBufferSize)
	assert.Equal(t, utils.DefaultAuthTimeoutSeconds, cfg.Auth.AuthTimeoutSeconds)
	assert.Equal(t, utils.DefaultRetentionDays, cfg.Storage.RetentionDays)
	assert.Equal(t, "USDT", cfg.Upstream.QuoteAsset)
	assert.Equal(t, "pulse", cfg.Cache.KeyPrefix)
}

func TestNewConfig_EnvOverridesSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")

	cfg := loadValid(t)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestNewConfig_MissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewConfig_BadYAML(t *testing.T) {
	_, err := NewConfig(writeConfigFile(t, "name: [unclosed"))
	assert.Error(t, err)
}

func TestNewConfig_RejectsBadPort(t *testing.T) {
	content := strings.ReplaceAll(minimalYAML, "port: 8010", "port: 80")
	_, err := NewConfig(writeConfigFile(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestConfig_ValidateRules(t *testing.T) {
	cfg := loadValid(t)
	cfg.Name = ""
	assert.ErrorContains(t, cfg.Validate(), "name")

	cfg = loadValid(t)
	cfg.Port = 70000
	assert.ErrorContains(t, cfg.Validate(), "port")

	cfg = loadValid(t)
	cfg.Storage.DBType = "postgres"
	cfg.Storage.DBConnectionString = ""
	assert.ErrorContains(t, cfg.Validate(), "connection string")

	cfg = loadValid(t)
	cfg.Upstream.MarketSymbols = nil
	assert.ErrorContains(t, cfg.Validate(), "market symbol")

	cfg = loadValid(t)
	cfg.Upstream.MarketSymbols = []string{"BTCUSDT", ""}
	assert.ErrorContains(t, cfg.Validate(), "market symbol 1")

	cfg = loadValid(t)
	cfg.Auth.JWTSecret = ""
	assert.ErrorContains(t, cfg.Validate(), "jwt secret")

	cfg = loadValid(t)
	cfg.Stream.CandleIntervalMs = 10
	assert.ErrorContains(t, cfg.Validate(), "candle interval")

	cfg = loadValid(t)
	cfg.Network.ConcurrentRequests = 0
	assert.ErrorContains(t, cfg.Validate(), "concurrent requests")
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	cfg := loadValid(t)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.Save(out))

	reloaded, err := NewConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, reloaded.Name)
	assert.Equal(t, cfg.Upstream.MarketSymbols, reloaded.Upstream.MarketSymbols)
	assert.Equal(t, cfg.Stream.CandleIntervalMs, reloaded.Stream.CandleIntervalMs)
}
