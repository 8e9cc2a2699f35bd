package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the feed daemon
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Stream    StreamConfig    `mapstructure:"stream"`
	API       APIConfig       `mapstructure:"api"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds the local HTTP server configuration
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// StreamConfig holds the notification stream connection configuration
type StreamConfig struct {
	URL                  string        `mapstructure:"url" envconfig:"STREAM_URL"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval" envconfig:"STREAM_RECONNECT_INTERVAL" default:"3s"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts" envconfig:"STREAM_MAX_RECONNECT_ATTEMPTS" default:"5"`
}

// APIConfig holds the backend REST API configuration
type APIConfig struct {
	BaseURL      string        `mapstructure:"base_url" envconfig:"API_BASE_URL"`
	Timeout      time.Duration `mapstructure:"timeout" envconfig:"API_TIMEOUT" default:"30s"`
	PageSize     int           `mapstructure:"page_size" envconfig:"API_PAGE_SIZE" default:"20"`
	Token        string        `mapstructure:"token" envconfig:"API_TOKEN"`
	SessionName  string        `mapstructure:"session_name" envconfig:"API_SESSION_NAME"`
	SessionValue string        `mapstructure:"session_value" envconfig:"API_SESSION_VALUE"`
}

// RedisConfig holds Redis configuration for the resume-cursor store
type RedisConfig struct {
	Host         string        `mapstructure:"host" envconfig:"REDIS_HOST"`
	Port         int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// Load loads configuration from files and environment
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars only
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// Validate checks that required settings are present and sane
func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("stream url is required (STREAM_URL)")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required (API_BASE_URL)")
	}
	if c.Stream.ReconnectInterval <= 0 {
		return fmt.Errorf("stream reconnect interval must be positive")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream max reconnect attempts must not be negative")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api page size must be positive")
	}
	return nil
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis cursor store is configured
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}
