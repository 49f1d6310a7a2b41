package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Boardflow Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Transport  TransportConfig  `yaml:"transport"`
	Automation AutomationConfig `yaml:"automation"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TransportConfig controls the domain event subscription.
type TransportConfig struct {
	// TopicPrefix is prepended to every event topic, e.g. "boardflow"
	// yields "boardflow/user/action/card.moved".
	TopicPrefix string `yaml:"topic_prefix"`

	// BufferSize is the capacity of the channel between the broker callback
	// and the consumer loop.
	BufferSize int `yaml:"buffer_size"`
}

// AutomationConfig controls rule execution.
type AutomationConfig struct {
	// MaxConcurrentActions bounds actions in flight across all rules.
	MaxConcurrentActions int `yaml:"max_concurrent_actions"`

	// MaxConcurrentEvents bounds events being matched and executed at once.
	// When every slot is busy the event loop waits.
	MaxConcurrentEvents int `yaml:"max_concurrent_events"`

	// ActionTimeout is the per-action deadline in seconds.
	ActionTimeout int `yaml:"action_timeout"`

	// RecordExecutions persists a row per matched rule run.
	RecordExecutions bool `yaml:"record_executions"`
}

// DedupConfig controls the mention notification dedup cache.
type DedupConfig struct {
	// Backend is "memory" (process-local) or "redis" (shared).
	Backend string `yaml:"backend"`

	// TTL is how long a notification key suppresses repeats, in milliseconds.
	TTL int `yaml:"ttl_ms"`
}

// RedisConfig contains Redis connection settings for the shared dedup backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// An empty AllowedOrigins list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BOARDFLOW_SECTION_KEY
// For example: BOARDFLOW_DATABASE_PATH, BOARDFLOW_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, used when no file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "boardflow-001",
			Name: "Boardflow",
		},
		Database: DatabaseConfig{
			Path:        "./data/boardflow.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "boardflow-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Transport: TransportConfig{
			TopicPrefix: "boardflow",
			BufferSize:  256,
		},
		Automation: AutomationConfig{
			MaxConcurrentActions: 16,
			MaxConcurrentEvents:  32,
			ActionTimeout:        30,
			RecordExecutions:     true,
		},
		Dedup: DedupConfig{
			Backend: "memory",
			TTL:     5000,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies BOARDFLOW_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOARDFLOW_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("BOARDFLOW_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BOARDFLOW_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("BOARDFLOW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BOARDFLOW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("BOARDFLOW_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BOARDFLOW_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BOARDFLOW_DEDUP_BACKEND"); v != "" {
		cfg.Dedup.Backend = v
	}

	if v := os.Getenv("BOARDFLOW_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("BOARDFLOW_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("BOARDFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Transport.TopicPrefix == "" {
		errs = append(errs, "transport.topic_prefix is required")
	} else if strings.ContainsAny(c.Transport.TopicPrefix, "+#") {
		errs = append(errs, "transport.topic_prefix must not contain MQTT wildcards")
	}
	if c.Transport.BufferSize < 1 {
		errs = append(errs, "transport.buffer_size must be at least 1")
	}

	if c.Automation.MaxConcurrentActions < 1 {
		errs = append(errs, "automation.max_concurrent_actions must be at least 1")
	}
	if c.Automation.MaxConcurrentEvents < 1 {
		errs = append(errs, "automation.max_concurrent_events must be at least 1")
	}
	if c.Automation.ActionTimeout < 1 {
		errs = append(errs, "automation.action_timeout must be at least 1 second")
	}

	switch c.Dedup.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when dedup.backend is redis")
		}
	default:
		errs = append(errs, `dedup.backend must be "memory" or "redis"`)
	}
	if c.Dedup.TTL < 1 {
		errs = append(errs, "dedup.ttl_ms must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetActionTimeout returns the per-action deadline.
func (c *Config) GetActionTimeout() time.Duration {
	return time.Duration(c.Automation.ActionTimeout) * time.Second
}

// GetDedupTTL returns the mention dedup window.
func (c *Config) GetDedupTTL() time.Duration {
	return time.Duration(c.Dedup.TTL) * time.Millisecond
}
