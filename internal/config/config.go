// Package config loads daemon configuration from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes either a Go duration string ("15m", "6h") or an
// integer nanosecond count from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RedisConfig holds Redis connection settings for the cache mirror.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LocalCacheConfig holds settings for the in-process cache tier and its
// persistence mirror.
type LocalCacheConfig struct {
	MaxItems int         `yaml:"max_items"`
	TTL      Duration    `yaml:"ttl"`
	Mirror   string      `yaml:"mirror"` // bolt, redis, none
	Path     string      `yaml:"path"`   // bolt file location
	Redis    RedisConfig `yaml:"redis"`
}

// PostgresConfig holds durable store settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SpotifyConfig holds Spotify client credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// MusicBrainzConfig holds MusicBrainz settings.
type MusicBrainzConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// ProvidersConfig holds metadata provider settings. Order is the resolve
// priority, best first.
type ProvidersConfig struct {
	Order       []string          `yaml:"order"`
	Timeout     Duration          `yaml:"timeout"`
	UserAgent   string            `yaml:"user_agent"`
	Spotify     SpotifyConfig     `yaml:"spotify"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz"`
}

// JobsConfig holds maintenance loop settings.
type JobsConfig struct {
	WarmInterval    Duration `yaml:"warm_interval"`
	WarmLimit       int      `yaml:"warm_limit"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	RefreshWithin   Duration `yaml:"refresh_within"`
	PruneInterval   Duration `yaml:"prune_interval"`
	StaleAfter      Duration `yaml:"stale_after"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Format string `yaml:"format"` // text, json
	Level  string `yaml:"level"`  // debug, info, warn, error
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // otlp-http, stdout
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
}

// ObservabilityConfig groups logging, metrics, and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Cache         LocalCacheConfig    `yaml:"cache"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: LocalCacheConfig{
			MaxItems: 500,
			TTL:      Duration(time.Hour),
			Mirror:   "bolt",
			Path:     "audioscape-cache.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Postgres: PostgresConfig{
			DSN: "postgres://localhost:5432/audioscape",
		},
		Providers: ProvidersConfig{
			Order:   []string{"spotify", "deezer", "itunes", "musicbrainz"},
			Timeout: Duration(6 * time.Second),
			MusicBrainz: MusicBrainzConfig{
				RequestsPerSecond: 1,
			},
		},
		Jobs: JobsConfig{
			WarmInterval:    Duration(15 * time.Minute),
			WarmLimit:       20,
			RefreshInterval: Duration(time.Hour),
			RefreshWithin:   Duration(6 * time.Hour),
			PruneInterval:   Duration(24 * time.Hour),
			StaleAfter:      Duration(30 * 24 * time.Hour),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Format: "text",
				Level:  "info",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "audioscape",
			},
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp-http",
				Endpoint:   "localhost:4318",
				SampleRate: 1.0,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("AUDIOSCAPE_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("AUDIOSCAPE_CACHE_MIRROR"); v != "" {
		cfg.Cache.Mirror = v
	}
	if v := os.Getenv("AUDIOSCAPE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("AUDIOSCAPE_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("AUDIOSCAPE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("AUDIOSCAPE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Redis.DB = db
		}
	}
	if v := os.Getenv("AUDIOSCAPE_SPOTIFY_CLIENT_ID"); v != "" {
		cfg.Providers.Spotify.ClientID = v
	}
	if v := os.Getenv("AUDIOSCAPE_SPOTIFY_CLIENT_SECRET"); v != "" {
		cfg.Providers.Spotify.ClientSecret = v
	}
	if v := os.Getenv("AUDIOSCAPE_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AUDIOSCAPE_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("AUDIOSCAPE_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
}

// Validate checks the parts of the config that would otherwise fail
// deep inside wiring.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	switch c.Cache.Mirror {
	case "", "none", "bolt", "redis":
	default:
		return fmt.Errorf("cache.mirror must be bolt, redis, or none, got %q", c.Cache.Mirror)
	}
	if c.Cache.Mirror == "bolt" && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required for the bolt mirror")
	}
	if c.Cache.Mirror == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis mirror")
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers.order must name at least one provider")
	}
	return nil
}
