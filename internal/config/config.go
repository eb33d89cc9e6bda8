package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	JWT      JWTConfig      `yaml:"jwt"`
	Log      LogConfig      `yaml:"log"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Alarm    AlarmConfig    `yaml:"alarm"`
}

// ServerConfig represents server identity configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// APIConfig represents HTTP API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// JWTConfig represents management API token configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig tunes the ingestion pipeline
type IngestConfig struct {
	// ConfidenceFloor forces classifications below it to "unclassified".
	ConfidenceFloor float64 `yaml:"confidence_floor"`

	// Decoder sandbox guardrails.
	DecoderMaxScriptBytes int           `yaml:"decoder_max_script_bytes"`
	DecoderMaxOutputBytes int           `yaml:"decoder_max_output_bytes"`
	DecoderTimeout        time.Duration `yaml:"decoder_timeout"`

	// Decoder cache policy.
	DecoderCacheTTL        time.Duration `yaml:"decoder_cache_ttl"`
	DecoderCacheMaxEntries int           `yaml:"decoder_cache_max_entries"`
}

// AlarmConfig points at the downstream alarm-evaluation service
type AlarmConfig struct {
	EvaluationURL string        `yaml:"evaluation_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if alarmURL := os.Getenv("ALARM_EVALUATION_URL"); alarmURL != "" {
		c.Alarm.EvaluationURL = alarmURL
	}
}

// setDefaults fills in zero-valued tunables
func (c *Config) setDefaults() {
	if c.Ingest.ConfidenceFloor == 0 {
		c.Ingest.ConfidenceFloor = 0.5
	}
	if c.Ingest.DecoderMaxScriptBytes == 0 {
		c.Ingest.DecoderMaxScriptBytes = 50 * 1024
	}
	if c.Ingest.DecoderMaxOutputBytes == 0 {
		c.Ingest.DecoderMaxOutputBytes = 50 * 1024
	}
	if c.Ingest.DecoderTimeout == 0 {
		c.Ingest.DecoderTimeout = 500 * time.Millisecond
	}
	if c.Ingest.DecoderCacheTTL == 0 {
		c.Ingest.DecoderCacheTTL = 10 * time.Minute
	}
	if c.Ingest.DecoderCacheMaxEntries == 0 {
		c.Ingest.DecoderCacheMaxEntries = 100
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	if c.Alarm.Timeout == 0 {
		c.Alarm.Timeout = 10 * time.Second
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
}
