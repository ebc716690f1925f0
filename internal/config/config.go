// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/quotelab/quote-streamer/pkg/backoff"
	"github.com/quotelab/quote-streamer/pkg/dxlink"
	"github.com/quotelab/quote-streamer/pkg/httpserver"
	"github.com/quotelab/quote-streamer/pkg/kafka"
	"github.com/quotelab/quote-streamer/pkg/telemetry"
)

// Config is the full service configuration.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	API       APIConfig         `mapstructure:"api"`
	Stream    StreamConfig      `mapstructure:"stream"`
	Kafka     KafkaConfig       `mapstructure:"kafka"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Telemetry telemetry.Config  `mapstructure:"telemetry"`
	Logging   Logging           `mapstructure:"logging"`
	HTTP      httpserver.Config `mapstructure:"http"`
}

// APIConfig points at the brokerage REST API that issues quote tokens.
type APIConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	SessionToken string `mapstructure:"session_token"`
}

// StreamConfig holds the streaming session settings plus the symbol set the
// service keeps subscribed.
type StreamConfig struct {
	Symbols []string       `mapstructure:"symbols"`
	DXLink  dxlink.Config  `mapstructure:"dxlink"`
	Backoff backoff.Config `mapstructure:"backoff"`
}

// KafkaConfig holds the producer settings and the destination topic.
type KafkaConfig struct {
	Producer    kafka.Config `mapstructure:",squash"`
	QuotesTopic string       `mapstructure:"quotes_topic"`
}

// RedisConfig holds the latest-quote cache settings. An empty Addr disables
// the cache entirely.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Logging holds logger settings.
type Logging struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// Load reads defaults, ENV (prefix STREAMER) and an optional config file,
// then decodes and validates. An empty path means ENV and defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// ---------- 1) Defaults ----------
	v.SetDefault("service_name", "quote-streamer")
	v.SetDefault("service_version", "v1.0.0")

	// Brokerage API
	v.SetDefault("api.base_url", "https://api.tastyworks.com")

	// Stream
	v.SetDefault("stream.symbols", []string{"SPY"})
	v.SetDefault("stream.dxlink.channel_id", 3)
	v.SetDefault("stream.dxlink.keepalive_interval", "30s")
	v.SetDefault("stream.dxlink.keepalive_timeout", "60s")
	v.SetDefault("stream.backoff.initial_interval", "1s")
	v.SetDefault("stream.backoff.max_interval", "30s")

	// Kafka
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.flush_frequency", "0s")
	v.SetDefault("kafka.flush_messages", 0)
	v.SetDefault("kafka.quotes_topic", "marketdata.quotes")

	// Redis
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	// HTTP server
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	// ---------- 2) ENV ----------
	v.SetEnvPrefix("STREAMER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ---------- 3) Optional file ----------
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", v.ConfigFileUsed(), err)
		}
	}

	// ---------- 4) Decode ----------
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToBoolHook,
	)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// ---------- 5) Validation ----------
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// stringToBoolHook parses true/false strings, otherwise passes data through.
func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

func (c *Config) Validate() error {
	// Service
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Brokerage API
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.SessionToken == "" {
		return fmt.Errorf("api.session_token is required")
	}

	// Stream
	if len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols must contain at least one entry")
	}
	for _, s := range c.Stream.Symbols {
		if s == "" {
			return fmt.Errorf("stream.symbols must not contain empty entries")
		}
	}

	// Kafka
	if len(c.Kafka.Producer.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.QuotesTopic == "" {
		return fmt.Errorf("kafka.quotes_topic is required")
	}
	switch strings.ToLower(c.Kafka.Producer.RequiredAcks) {
	case "", "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Producer.Compression) {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	// Redis (optional)
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be > 0 when redis.addr is set")
	}

	// Telemetry
	if c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otel_endpoint is required")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// HTTP
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	for k, p := range map[string]string{
		"http.metrics_path": c.HTTP.MetricsPath,
		"http.healthz_path": c.HTTP.HealthzPath,
		"http.readyz_path":  c.HTTP.ReadyzPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}

	return nil
}

// Print dumps the effective config as JSON. The session token is masked.
func (c *Config) Print() {
	masked := *c
	if masked.API.SessionToken != "" {
		masked.API.SessionToken = "***"
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	b, _ := json.MarshalIndent(masked, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
