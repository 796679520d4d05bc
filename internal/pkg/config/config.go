package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
	Facilities FacilitiesConfig `mapstructure:"facilities"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Location   LocationConfig   `mapstructure:"location"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// FacilitiesConfig points the discovery gateway at the facility backend.
type FacilitiesConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// DiscoveryConfig tunes the per-session discovery pipeline.
type DiscoveryConfig struct {
	SearchDebounce      time.Duration `mapstructure:"search_debounce"`
	ViewportBuffer      float64       `mapstructure:"viewport_buffer"`
	DistanceCacheSize   int           `mapstructure:"distance_cache_size"`
	DistanceCachePolicy string        `mapstructure:"distance_cache_policy"`
	FacilityCacheTTL    time.Duration `mapstructure:"facility_cache_ttl"`
}

// LocationConfig selects where sessions get the user's position from.
type LocationConfig struct {
	Source      string        `mapstructure:"source"` // "device" or "ip"
	IPLookupURL string        `mapstructure:"ip_lookup_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "lqq")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "lqq")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "facility-import")
	v.SetDefault("facilities.base_url", "http://localhost:8081")
	v.SetDefault("facilities.timeout", 10*time.Second)
	v.SetDefault("facilities.max_retries", 2)
	v.SetDefault("facilities.retry_delay", 500*time.Millisecond)
	v.SetDefault("discovery.search_debounce", 300*time.Millisecond)
	v.SetDefault("discovery.viewport_buffer", 0.001)
	v.SetDefault("discovery.distance_cache_size", 1000)
	v.SetDefault("discovery.distance_cache_policy", "clear")
	v.SetDefault("discovery.facility_cache_ttl", 5*time.Minute)
	v.SetDefault("location.source", "device")
	v.SetDefault("location.ip_lookup_url", "http://ip-api.com/json/{ip}")
	v.SetDefault("location.timeout", 15*time.Second)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: LQQ_DATABASE_HOST → database.host
	v.SetEnvPrefix("LQQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Facilities.BaseURL == "" {
		errs = append(errs, "facilities.base_url is required")
	}
	if c.Facilities.MaxRetries < 0 {
		errs = append(errs, "facilities.max_retries must not be negative")
	}
	if c.Discovery.SearchDebounce <= 0 {
		errs = append(errs, "discovery.search_debounce must be positive")
	}
	if c.Discovery.ViewportBuffer < 0 {
		errs = append(errs, "discovery.viewport_buffer must not be negative")
	}
	if c.Discovery.DistanceCacheSize <= 0 {
		errs = append(errs, "discovery.distance_cache_size must be positive")
	}
	switch c.Discovery.DistanceCachePolicy {
	case "clear", "lru":
	default:
		errs = append(errs, fmt.Sprintf("discovery.distance_cache_policy must be clear or lru, got %q", c.Discovery.DistanceCachePolicy))
	}
	switch c.Location.Source {
	case "device":
	case "ip":
		if c.Location.IPLookupURL == "" {
			errs = append(errs, "location.ip_lookup_url is required when location.source is ip")
		}
	default:
		errs = append(errs, fmt.Sprintf("location.source must be device or ip, got %q", c.Location.Source))
	}
	if c.Location.Timeout <= 0 {
		errs = append(errs, "location.timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
