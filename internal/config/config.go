// Package config loads service configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"cate-trust-layer/internal/breaker"
	"cate-trust-layer/internal/decision"
	"cate-trust-layer/internal/domain"
	"cate-trust-layer/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. CATE_SERVER_ADDR.
const EnvPrefix = "CATE"

// Storage drivers.
const (
	DriverMemory     = "memory"
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
	DriverNone       = "none"
)

// Replay backends.
const (
	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Signer    SignerConfig    `mapstructure:"signer"`
	Risk      decision.Params `mapstructure:"risk"`
	Breaker   breaker.Config  `mapstructure:"breaker"`
	Windows   WindowsConfig   `mapstructure:"windows"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Anchor    AnchorConfig    `mapstructure:"anchor"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Replay    ReplayConfig    `mapstructure:"replay"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	// TimestampWindow bounds the clock skew accepted on signing requests.
	TimestampWindow time.Duration `mapstructure:"timestamp_window"`
}

// SignerConfig locates the Ed25519 signing key. SecretKey (base58, 64
// bytes) wins over KeypairPath.
type SignerConfig struct {
	KeypairPath string `mapstructure:"keypair_path"`
	SecretKey   string `mapstructure:"secret_key"`
}

// WindowSpec is one rolling window.
type WindowSpec struct {
	Name      string        `mapstructure:"name"`
	MaxAge    time.Duration `mapstructure:"max_age"`
	MaxPoints int           `mapstructure:"max_points"`
}

// WindowsConfig configures the metrics calculator. Empty Specs selects the
// 1m/5m/15m/1h defaults.
type WindowsConfig struct {
	Specs                  []WindowSpec  `mapstructure:"specs"`
	StddevFloor            float64       `mapstructure:"stddev_floor"`
	ExpectedUpdateInterval time.Duration `mapstructure:"expected_update_interval"`
	MaxFreshness           time.Duration `mapstructure:"max_freshness"`
}

// FeedConfig maps an asset to its oracle feed id.
type FeedConfig struct {
	Asset  string `mapstructure:"asset"`
	FeedID string `mapstructure:"feed_id"`
}

// OracleConfig covers the price stream and its REST fallback.
type OracleConfig struct {
	StreamURL            string        `mapstructure:"stream_url"`
	HTTPURL              string        `mapstructure:"http_url"`
	Feeds                []FeedConfig  `mapstructure:"feeds"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	HTTPTimeout          time.Duration `mapstructure:"http_timeout"`
	HTTPRetries          int           `mapstructure:"http_retries"`
	HTTPRetryDelay       time.Duration `mapstructure:"http_retry_delay"`
}

// IngestionConfig governs the sample runner.
type IngestionConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RestreamInterval time.Duration `mapstructure:"restream_interval"`
	WorkerBuffer     int           `mapstructure:"worker_buffer"`
}

// AnchorConfig covers on-chain reads.
type AnchorConfig struct {
	ProgramID  string        `mapstructure:"program_id"`
	RPCURL     string        `mapstructure:"rpc_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// StorageConfig selects the decision and metrics stores.
type StorageConfig struct {
	Decisions        string `mapstructure:"decisions"` // memory | postgres
	Metrics          string `mapstructure:"metrics"`   // memory | clickhouse | none
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
	ClickHouseDSN    string `mapstructure:"clickhouse_dsn"`
	Migrate          bool   `mapstructure:"migrate"`
}

// HistoryConfig sizes the in-memory decision ring.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// ReplayConfig configures the signing-path replay guard.
type ReplayConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend"` // memory | redis
	Retention time.Duration `mapstructure:"retention"`
	Capacity  int           `mapstructure:"capacity"`
}

// NATSConfig configures decision fan-out.
type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	FlushTimeout   time.Duration `mapstructure:"flush_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// RedisConfig covers the shared replay set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfig tolerates a missing default config file but not an explicit one.
func readConfig(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !explicit {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cate")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.timestamp_window", "300s")

	v.SetDefault("signer.keypair_path", "")
	v.SetDefault("signer.secret_key", "")

	risk := decision.DefaultParams()
	v.SetDefault("risk.max_confidence_ratio_scale", risk.MaxConfidenceRatioScale)
	v.SetDefault("risk.max_confidence_ratio_block", risk.MaxConfidenceRatioBlock)
	v.SetDefault("risk.max_confidence_zscore", risk.MaxConfidenceZscore)
	v.SetDefault("risk.max_staleness_seconds", risk.MaxStalenessSeconds)
	v.SetDefault("risk.max_volatility_scale", risk.MaxVolatilityScale)
	v.SetDefault("risk.max_volatility_block", risk.MaxVolatilityBlock)
	v.SetDefault("risk.min_data_quality_score", risk.MinDataQualityScore)
	v.SetDefault("risk.spike_threshold", risk.SpikeThreshold)
	v.SetDefault("risk.require_live_oracle", risk.RequireLiveOracle)
	v.SetDefault("risk.scale_floor", risk.ScaleFloor)
	v.SetDefault("risk.allow_threshold", risk.AllowThreshold)

	br := breaker.DefaultConfig()
	v.SetDefault("breaker.failure_threshold", br.FailureThreshold)
	v.SetDefault("breaker.success_threshold", br.SuccessThreshold)
	v.SetDefault("breaker.reset_timeout", br.ResetTimeout.String())
	v.SetDefault("breaker.debounce", br.Debounce.String())
	v.SetDefault("breaker.half_open_max_attempts", br.HalfOpenMaxAttempts)
	v.SetDefault("breaker.asset_failure_limit", br.AssetFailureLimit)

	v.SetDefault("windows.stddev_floor", 0.01)
	v.SetDefault("windows.expected_update_interval", "1s")
	v.SetDefault("windows.max_freshness", "60s")

	v.SetDefault("oracle.stream_url", "wss://hermes.pyth.network/ws")
	v.SetDefault("oracle.http_url", "https://hermes.pyth.network")
	v.SetDefault("oracle.reconnect_delay", "1s")
	v.SetDefault("oracle.max_reconnect_delay", "30s")
	v.SetDefault("oracle.max_reconnect_attempts", 10)
	v.SetDefault("oracle.ping_interval", "30s")
	v.SetDefault("oracle.read_timeout", "60s")
	v.SetDefault("oracle.http_timeout", "10s")
	v.SetDefault("oracle.http_retries", 3)
	v.SetDefault("oracle.http_retry_delay", "500ms")

	v.SetDefault("ingestion.poll_interval", "1s")
	v.SetDefault("ingestion.restream_interval", "60s")
	v.SetDefault("ingestion.worker_buffer", 64)

	v.SetDefault("anchor.program_id", "77kRa7xJb2SQpPC1fdFGj8edzm5MJxhq2j54BxMWtPe6")
	v.SetDefault("anchor.rpc_url", "")
	v.SetDefault("anchor.timeout", "10s")
	v.SetDefault("anchor.max_retries", 3)

	v.SetDefault("storage.decisions", DriverMemory)
	v.SetDefault("storage.metrics", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.postgres_max_conns", 10)
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("history.capacity", 1000)

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.backend", ReplayMemory)
	v.SetDefault("replay.retention", "1h")
	v.SetDefault("replay.capacity", 1000)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "cate.decisions")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.flush_timeout", "2s")
	v.SetDefault("nats.publish_timeout", "2s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cate:decision:")

	v.SetDefault("metrics.namespace", "cate")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.TimestampWindow <= 0 {
		return errors.New("server.timestamp_window must be greater than zero")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0 || c.Breaker.AssetFailureLimit <= 0 {
		return errors.New("breaker thresholds must be greater than zero")
	}
	if c.Breaker.ResetTimeout <= 0 {
		return errors.New("breaker.reset_timeout must be greater than zero")
	}
	for _, w := range c.Windows.Specs {
		if w.Name == "" || w.MaxAge <= 0 || w.MaxPoints <= 0 {
			return fmt.Errorf("windows.specs: invalid window %+v", w)
		}
	}

	seen := make(map[string]bool, len(c.Oracle.Feeds))
	for _, f := range c.Oracle.Feeds {
		if f.Asset == "" || len(f.Asset) > domain.MaxAssetIDLength {
			return fmt.Errorf("oracle.feeds: asset id %q must be 1-%d bytes", f.Asset, domain.MaxAssetIDLength)
		}
		if f.FeedID == "" {
			return fmt.Errorf("oracle.feeds: asset %s has no feed_id", f.Asset)
		}
		if seen[f.Asset] {
			return fmt.Errorf("oracle.feeds: asset %s listed twice", f.Asset)
		}
		seen[f.Asset] = true
	}

	switch c.Storage.Decisions {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres decision store")
		}
	default:
		return fmt.Errorf("storage.decisions: unknown driver %q", c.Storage.Decisions)
	}
	switch c.Storage.Metrics {
	case DriverMemory, DriverNone:
	case DriverClickHouse:
		if c.Storage.ClickHouseDSN == "" {
			return errors.New("storage.clickhouse_dsn is required for the clickhouse metrics store")
		}
	default:
		return fmt.Errorf("storage.metrics: unknown driver %q", c.Storage.Metrics)
	}

	if c.History.Capacity <= 0 {
		return errors.New("history.capacity must be greater than zero")
	}
	if c.Replay.Enabled {
		switch c.Replay.Backend {
		case ReplayMemory, ReplayRedis:
		default:
			return fmt.Errorf("replay.backend: unknown backend %q", c.Replay.Backend)
		}
		if c.Replay.Retention <= 0 {
			return errors.New("replay.retention must be greater than zero")
		}
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	return nil
}

// FeedMap returns the configured asset -> feed id mapping.
func (c *Config) FeedMap() map[string]string {
	out := make(map[string]string, len(c.Oracle.Feeds))
	for _, f := range c.Oracle.Feeds {
		out[f.Asset] = f.FeedID
	}
	return out
}

// Assets returns the configured asset ids in config order.
func (c *Config) Assets() []string {
	out := make([]string, 0, len(c.Oracle.Feeds))
	for _, f := range c.Oracle.Feeds {
		out = append(out, f.Asset)
	}
	return out
}
