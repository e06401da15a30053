package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gorates/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Numerics NumericsConfig
	Batch    BatchConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string
}

// NumericsConfig bounds the iterative procedures. Every root search and
// E-test grid evaluated by the service runs inside these limits.
type NumericsConfig struct {
	RootXTol    float64
	RootRTol    float64
	RootMaxIter int
	MaxGrid     int
}

// BatchConfig holds batch evaluation settings
type BatchConfig struct {
	Concurrency int64
	MaxItems    int
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:   *loadServerConfig(),
		Log:      LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "INFO")},
		Numerics: *loadNumericsConfig(),
		Batch:    *loadBatchConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "INFO"},
		Numerics: NumericsConfig{
			RootXTol:    1e-14,
			RootRTol:    1e-12,
			RootMaxIter: 200,
			MaxGrid:     5000,
		},
		Batch: BatchConfig{Concurrency: 4, MaxItems: 256},
	}
}

func loadServerConfig() *ServerConfig {
	def := Default().Server
	return &ServerConfig{
		Port:         getEnvOrDefault("RATES_PORT", def.Port),
		ReadTimeout:  getEnvDurationOrDefault("RATES_READ_TIMEOUT", def.ReadTimeout),
		WriteTimeout: getEnvDurationOrDefault("RATES_WRITE_TIMEOUT", def.WriteTimeout),
	}
}

func loadNumericsConfig() *NumericsConfig {
	def := Default().Numerics
	return &NumericsConfig{
		RootXTol:    getEnvFloatOrDefault("RATES_ROOT_XTOL", def.RootXTol),
		RootRTol:    getEnvFloatOrDefault("RATES_ROOT_RTOL", def.RootRTol),
		RootMaxIter: getEnvIntOrDefault("RATES_ROOT_MAXITER", def.RootMaxIter),
		MaxGrid:     getEnvIntOrDefault("RATES_MAX_GRID", def.MaxGrid),
	}
}

func loadBatchConfig() *BatchConfig {
	def := Default().Batch
	return &BatchConfig{
		Concurrency: int64(getEnvIntOrDefault("RATES_BATCH_CONCURRENCY", int(def.Concurrency))),
		MaxItems:    getEnvIntOrDefault("RATES_BATCH_MAX_ITEMS", def.MaxItems),
	}
}

func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return errors.ConfigInvalid("RATES_PORT is required")
	}
	if _, err := strconv.Atoi(config.Server.Port); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("RATES_PORT %q is not a port number", config.Server.Port))
	}
	if config.Numerics.RootXTol < 0 || config.Numerics.RootRTol < 0 {
		return errors.ConfigInvalid("root tolerances must be non-negative")
	}
	if config.Numerics.RootXTol == 0 && config.Numerics.RootRTol == 0 {
		return errors.ConfigInvalid("at least one root tolerance must be positive")
	}
	if config.Numerics.RootMaxIter <= 0 {
		return errors.ConfigInvalid("RATES_ROOT_MAXITER must be positive")
	}
	if config.Numerics.MaxGrid <= 0 {
		return errors.ConfigInvalid("RATES_MAX_GRID must be positive")
	}
	if config.Batch.Concurrency <= 0 {
		return errors.ConfigInvalid("RATES_BATCH_CONCURRENCY must be positive")
	}
	if config.Batch.MaxItems <= 0 {
		return errors.ConfigInvalid("RATES_BATCH_MAX_ITEMS must be positive")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
