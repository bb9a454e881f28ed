package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings. Precedence when loading: file > env >
// defaults, matching LoadConfigWithPrecedence.
type Config struct {
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Aggregator *AggregatorConfig `json:"aggregator"`
	Session    *SessionConfig    `json:"session"`
	Ingest     *IngestConfig     `json:"ingest"`
	Database   *DatabaseConfig   `json:"database"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// QueueSize bounds each observer's pending delivery queue. When full,
	// the oldest pending update is dropped so a slow observer never stalls
	// the publisher or other observers.
	QueueSize int `json:"queue_size"`
}

type AggregatorConfig struct {
	// Window is the trailing time span of samples that count toward the
	// current distribution.
	Window time.Duration `json:"window"`
}

type SessionConfig struct {
	// IdleTTL is how long a session with no members and no samples survives
	// before the reaper destroys it.
	IdleTTL      time.Duration `json:"idle_ttl"`
	ReapInterval time.Duration `json:"reap_interval"`
}

type IngestConfig struct {
	// SamplesPerMinute caps submissions per student across sessions.
	SamplesPerMinute int `json:"samples_per_minute"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
	// QueueSize bounds the fire-and-forget write queue; a full queue drops
	// the sample rather than blocking ingestion.
	QueueSize int `json:"queue_size"`
}

// DefaultConfig returns settings tuned for classroom scale (20-50 students
// per session, a handful of concurrent sessions).
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			QueueSize:    64,
		},
		Aggregator: &AggregatorConfig{
			Window: 30 * time.Second,
		},
		Session: &SessionConfig{
			IdleTTL:      5 * time.Minute,
			ReapInterval: 30 * time.Second,
		},
		Ingest: &IngestConfig{
			SamplesPerMinute: 120,
		},
		Database: &DatabaseConfig{
			Path:      "./engage.db",
			Timeout:   30 * time.Second,
			QueueSize: 256,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket intervals must be positive")
	}
	if c.WebSocket.QueueSize <= 0 {
		return fmt.Errorf("WebSocket queue size must be positive")
	}
	if c.Aggregator == nil || c.Aggregator.Window <= 0 {
		return fmt.Errorf("aggregation window must be positive")
	}
	if c.Session == nil || c.Session.IdleTTL <= 0 || c.Session.ReapInterval <= 0 {
		return fmt.Errorf("session idle TTL and reap interval must be positive")
	}
	if c.Ingest == nil || c.Ingest.SamplesPerMinute <= 0 {
		return fmt.Errorf("ingest rate limit must be positive")
	}
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.QueueSize <= 0 {
		return fmt.Errorf("database queue size must be positive")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by ENGAGE_* environment variables.
// Unparseable values fall back silently to the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("ENGAGE_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("ENGAGE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if v := os.Getenv("ENGAGE_HTTP_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}
	if v := os.Getenv("ENGAGE_HTTP_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if v := os.Getenv("ENGAGE_WEBSOCKET_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("ENGAGE_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}
	if v := os.Getenv("ENGAGE_WEBSOCKET_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if v := os.Getenv("ENGAGE_WEBSOCKET_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.WebSocket.QueueSize = n
		}
	}
	if v := os.Getenv("ENGAGE_AGGREGATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Aggregator.Window = d
		}
	}
	if v := os.Getenv("ENGAGE_SESSION_IDLE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.IdleTTL = d
		}
	}
	if v := os.Getenv("ENGAGE_SESSION_REAP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Session.ReapInterval = d
		}
	}
	if v := os.Getenv("ENGAGE_INGEST_SAMPLES_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ingest.SamplesPerMinute = n
		}
	}
	if v := os.Getenv("ENGAGE_DATABASE_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("ENGAGE_DATABASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Database.Timeout = d
		}
	}
	if v := os.Getenv("ENGAGE_DATABASE_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Database.QueueSize = n
		}
	}

	return config
}

// ConfigFile is the JSON form of Config. Durations are strings so config
// files can say "30s" instead of nanosecond counts.
type ConfigFile struct {
	HTTP       *HTTPConfigFile       `json:"http"`
	WebSocket  *WebSocketConfigFile  `json:"websocket"`
	Aggregator *AggregatorConfigFile `json:"aggregator"`
	Session    *SessionConfigFile    `json:"session"`
	Ingest     *IngestConfig         `json:"ingest"`
	Database   *DatabaseConfigFile   `json:"database"`
}

type HTTPConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	QueueSize    int    `json:"queue_size"`
}

type AggregatorConfigFile struct {
	Window string `json:"window"`
}

type SessionConfigFile struct {
	IdleTTL      string `json:"idle_ttl"`
	ReapInterval string `json:"reap_interval"`
}

type DatabaseConfigFile struct {
	Path      string `json:"path"`
	Timeout   string `json:"timeout"`
	QueueSize int    `json:"queue_size"`
}

// LoadFromFile reads a JSON config file over the defaults and validates the
// result.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			config.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			config.HTTP.Port = file.HTTP.Port
		}
		applyDuration(&config.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		applyDuration(&config.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		applyDuration(&config.WebSocket.PingInterval, file.WebSocket.PingInterval)
		applyDuration(&config.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		applyDuration(&config.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.QueueSize > 0 {
			config.WebSocket.QueueSize = file.WebSocket.QueueSize
		}
	}
	if file.Aggregator != nil {
		applyDuration(&config.Aggregator.Window, file.Aggregator.Window)
	}
	if file.Session != nil {
		applyDuration(&config.Session.IdleTTL, file.Session.IdleTTL)
		applyDuration(&config.Session.ReapInterval, file.Session.ReapInterval)
	}
	if file.Ingest != nil && file.Ingest.SamplesPerMinute > 0 {
		config.Ingest.SamplesPerMinute = file.Ingest.SamplesPerMinute
	}
	if file.Database != nil {
		if file.Database.Path != "" {
			config.Database.Path = file.Database.Path
		}
		applyDuration(&config.Database.Timeout, file.Database.Timeout)
		if file.Database.QueueSize > 0 {
			config.Database.QueueSize = file.Database.QueueSize
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func applyDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults.
// A missing or unreadable file is ignored so env/defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
