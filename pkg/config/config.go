package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Store configuration
	Store StoreConfig `mapstructure:"store"`

	// Export configuration
	Export ExportConfig `mapstructure:"export"`

	// Mirror configuration
	Mirror MirrorConfig `mapstructure:"mirror"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Chunker configuration
	Chunker ChunkerConfig `mapstructure:"chunker"`

	// CircuitBreaker configuration for the external reasoner
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// StoreConfig holds storage configuration
type StoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// ExportConfig holds parquet export configuration
type ExportConfig struct {
	Path string `mapstructure:"path"`
}

// MirrorConfig holds the optional Neo4j projection target
type MirrorConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// TelemetryConfig holds the error tracking output location. An empty path
// disables parquet error tracking.
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// ChunkerConfig holds text windowing configuration
type ChunkerConfig struct {
	WindowSize int `mapstructure:"window_size"`
	Overlap    int `mapstructure:"overlap"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Store defaults
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("store.path", fmt.Sprintf("%s/.chronicle/graph", home))
		viper.SetDefault("export.path", fmt.Sprintf("%s/.chronicle/export", home))
	}
	viper.SetDefault("store.in_memory", false)

	// Chunker defaults
	viper.SetDefault("chunker.window_size", 1000)
	viper.SetDefault("chunker.overlap", 200)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	// Store settings
	if path := os.Getenv("CHRONICLE_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	if path := os.Getenv("CHRONICLE_EXPORT_PATH"); path != "" {
		config.Export.Path = path
	}
	if path := os.Getenv("CHRONICLE_TELEMETRY_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}

	// Mirror credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Mirror.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Mirror.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Mirror.Password = pass
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
}
