package config

import (
	"fmt"
	"os"

	"market-pulse/src/models"
	"market-pulse/src/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from a YAML file, then applies
// environment overrides for secrets and connection strings. A missing .env
// file is not an error.
func NewConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Environment overrides (JWT_SECRET, DB_CONNECTION_STRING, REDIS_*)
	if err := envconfig.Process("", &modelConfig.Auth); err != nil {
		return nil, fmt.Errorf("failed to apply auth env overrides: %w", err)
	}
	if err := envconfig.Process("", &modelConfig.Storage); err != nil {
		return nil, fmt.Errorf("failed to apply storage env overrides: %w", err)
	}
	if err := envconfig.Process("", &modelConfig.Cache); err != nil {
		return nil, fmt.Errorf("failed to apply cache env overrides: %w", err)
	}

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills zero values that have sensible fixed defaults so the
// YAML file only needs to state deviations.
func (c *Config) applyDefaults() {
	if c.Stream.CandleIntervalMs == 0 {
		c.Stream.CandleIntervalMs = utils.DefaultCandleIntervalMs
	}
	if c.Stream.CandleHistorySize == 0 {
		c.Stream.CandleHistorySize = utils.DefaultCandleHistorySize
	}
	if c.Stream.BatchIntervalMs == 0 {
		c.Stream.BatchIntervalMs = utils.DefaultBatchIntervalMs
	}
	if c.Stream.SignificantChangePct == 0 {
		c.Stream.SignificantChangePct = utils.DefaultSignificantChange
	}
	if c.Stream.InitialKlineLimit == 0 {
		c.Stream.InitialKlineLimit = utils.DefaultInitialKlineLimit
	}
	if c.Stream.SendBufferSize == 0 {
		c.Stream.SendBufferSize = utils.DefaultSendBufferSize
	}
	if c.Auth.AuthTimeoutSeconds == 0 {
		c.Auth.AuthTimeoutSeconds = utils.DefaultAuthTimeoutSeconds
	}
	if c.Upstream.ReconnectDelayMs == 0 {
		c.Upstream.ReconnectDelayMs = 500
	}
	if c.Upstream.MarketReconnectDelayMs == 0 {
		c.Upstream.MarketReconnectDelayMs = 1000
	}
	if c.Upstream.PollIntervalSeconds == 0 {
		c.Upstream.PollIntervalSeconds = utils.DefaultPollIntervalSeconds
	}
	if c.Upstream.QuoteAsset == "" {
		c.Upstream.QuoteAsset = "USDT"
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "pulse"
	}
	if c.Cache.DefaultTTLSeconds == 0 {
		c.Cache.DefaultTTLSeconds = 300
	}
	if c.Cache.MarketTTLSeconds == 0 {
		c.Cache.MarketTTLSeconds = 60
	}
	if c.Cache.PriceTTLSeconds == 0 {
		c.Cache.PriceTTLSeconds = 30
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = utils.DefaultRetentionDays
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Network.ConcurrentRequests <= 0 {
		return fmt.Errorf("concurrent requests must be greater than 0")
	}

	if c.Upstream.StreamURL == "" {
		return fmt.Errorf("upstream stream url cannot be empty")
	}
	if c.Upstream.RestURL == "" {
		return fmt.Errorf("upstream rest url cannot be empty")
	}
	if len(c.Upstream.MarketSymbols) == 0 {
		return fmt.Errorf("at least one market symbol must be configured")
	}
	for i, symbol := range c.Upstream.MarketSymbols {
		if symbol == "" {
			return fmt.Errorf("market symbol %d cannot be empty", i)
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret cannot be empty")
	}

	if c.Stream.CandleIntervalMs < 50 {
		return fmt.Errorf("candle interval must be at least 50ms")
	}
	if c.Stream.CandleHistorySize <= 0 {
		return fmt.Errorf("candle history size must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
