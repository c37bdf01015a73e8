// Package config loads the application configuration from YAML files,
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultConfig returns a configuration built purely from defaults.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logrus.Fatalf("error unmarshaling default config: %v", err)
	}
	return &config
}

// Load loads the configuration from various sources.
func Load(configFile string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setupViperConfig(v, configFile)
	bindEnvironmentVariables(v)

	config, err := readAndUnmarshalConfig(v)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadEnvFile loads the .env file if it exists
func loadEnvFile() {
	if err := gotenv.Load(); err != nil {
		// .env file not found, that's okay - continue with other sources
		if !os.IsNotExist(err) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}
}

// setupViperConfig configures viper with file paths and defaults
func setupViperConfig(v *viper.Viper, configFile string) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/permscope")

	if home := os.Getenv("HOME"); len(home) > 0 {
		v.AddConfigPath(filepath.Join(home, ".config", "permscope"))
	}

	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("PERMSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
}

// bindEnvironmentVariables binds all environment variables to viper
func bindEnvironmentVariables(v *viper.Viper) {
	// Azure environment variables
	v.BindEnv("azure.tenant_id", "PERMSCOPE_AZURE_TENANT_ID", "AZURE_TENANT_ID")
	v.BindEnv("azure.client_id", "PERMSCOPE_AZURE_CLIENT_ID", "AZURE_CLIENT_ID")
	v.BindEnv("azure.client_secret", "PERMSCOPE_AZURE_CLIENT_SECRET", "AZURE_CLIENT_SECRET")
	v.BindEnv("azure.subscription_id", "PERMSCOPE_AZURE_SUBSCRIPTION_ID", "AZURE_SUBSCRIPTION_ID")

	// Resolver environment variables
	v.BindEnv("resolver.max_degree_of_parallelism", "PERMSCOPE_RESOLVER_MAX_DEGREE_OF_PARALLELISM")
	v.BindEnv("resolver.max_retry_attempts", "PERMSCOPE_RESOLVER_MAX_RETRY_ATTEMPTS")
	v.BindEnv("resolver.retry_delay_ms", "PERMSCOPE_RESOLVER_RETRY_DELAY_MS")
	v.BindEnv("resolver.max_concurrent_transitive_group_requests", "PERMSCOPE_RESOLVER_MAX_CONCURRENT_TRANSITIVE_GROUP_REQUESTS")
	v.BindEnv("resolver.transitive_group_batch_size", "PERMSCOPE_RESOLVER_TRANSITIVE_GROUP_BATCH_SIZE")
	v.BindEnv("resolver.delay_between_batches_ms", "PERMSCOPE_RESOLVER_DELAY_BETWEEN_BATCHES_MS")

	// Cache environment variables
	v.BindEnv("cache.enabled", "PERMSCOPE_CACHE_ENABLED")
	v.BindEnv("cache.location", "PERMSCOPE_CACHE_LOCATION")
	v.BindEnv("cache.ttl_minutes", "PERMSCOPE_CACHE_TTL_MINUTES")

	// Logging environment variables
	v.BindEnv("logging.level", "PERMSCOPE_LOGGING_LEVEL")
	v.BindEnv("logging.format", "PERMSCOPE_LOGGING_FORMAT")
}

func setDefaults(v *viper.Viper) {
	// Resolver defaults
	v.SetDefault("resolver.max_degree_of_parallelism", 8)
	v.SetDefault("resolver.max_retry_attempts", 3)
	v.SetDefault("resolver.retry_delay_ms", 500)
	v.SetDefault("resolver.max_concurrent_transitive_group_requests", 4)
	v.SetDefault("resolver.transitive_group_batch_size", 20)
	v.SetDefault("resolver.delay_between_batches_ms", 250)
	v.SetDefault("resolver.timeout_ms", 120000)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.location", "")
	v.SetDefault("cache.ttl_minutes", 15)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5280)
	v.SetDefault("server.requests_per_second", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Requested-With"})
	v.SetDefault("server.cors.max_age", 86400)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func readAndUnmarshalConfig(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults and environment variables
		// carry the full surface.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setupLogging(config *Config) error {
	logrusLevel, err := logrus.ParseLevel(config.Logging.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	logrus.SetLevel(logrusLevel)

	switch strings.ToLower(config.Logging.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithFields(logrus.Fields{
			"format": config.Logging.Format,
		}).Warn("Unknown log format")
	}

	return nil
}
