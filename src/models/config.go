package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	Storage  MStorageConfig  `yaml:"storage"`
	Network  MNetworkConfig  `yaml:"network"`
	Upstream MUpstreamConfig `yaml:"upstream"`
	Cache    MCacheConfig    `yaml:"cache"`
	Auth     MAuthConfig     `yaml:"auth"`
	Stream   MStreamConfig   `yaml:"stream"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string" envconfig:"DB_CONNECTION_STRING"`
	RetentionDays      int    `yaml:"retention_days"`
	CleanupSchedule    string `yaml:"cleanup_schedule"`
}

type MNetworkConfig struct {
	RequestTimeout     int    `yaml:"timeout"`
	MaxRetries         int    `yaml:"retries"`
	ConcurrentRequests int    `yaml:"concurrent_requests"`
	UserAgent          string `yaml:"user_agent"`
}

type MUpstreamConfig struct {
	StreamURL              string   `yaml:"stream_url"`
	RestURL                string   `yaml:"rest_url"`
	QuoteAsset             string   `yaml:"quote_asset"`
	MarketSymbols          []string `yaml:"market_symbols"`
	ReconnectDelayMs       int      `yaml:"reconnect_delay_ms"`
	MarketReconnectDelayMs int      `yaml:"market_reconnect_delay_ms"`
	PollIntervalSeconds    int      `yaml:"poll_interval_seconds"`
}

type MCacheConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password          string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB                int    `yaml:"db"`
	KeyPrefix         string `yaml:"key_prefix"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	MarketTTLSeconds  int    `yaml:"market_ttl_seconds"`
	PriceTTLSeconds   int    `yaml:"price_ttl_seconds"`
}

type MAuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	AuthTimeoutSeconds int    `yaml:"auth_timeout_seconds"`
}

type MStreamConfig struct {
	CandleIntervalMs     int     `yaml:"candle_interval_ms"`
	CandleHistorySize    int     `yaml:"candle_history_size"`
	BatchIntervalMs      int     `yaml:"batch_interval_ms"`
	SignificantChangePct float64 `yaml:"significant_change_pct"`
	InitialKlineLimit    int     `yaml:"initial_kline_limit"`
	SendBufferSize       int     `yaml:"send_buffer_size"`
}
