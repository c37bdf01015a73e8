package config

import (
	"fmt"
	"time"

	"github.com/permscope/permscope/internal/cache"
	"github.com/permscope/permscope/internal/directory"
	"github.com/permscope/permscope/internal/resolver"
)

// Config represents the application configuration structure. All values are
// bound at startup; there is no dynamic reload.
type Config struct {
	// Azure credential and subscription settings.
	Azure directory.CredentialConfig `mapstructure:"azure"`

	// Resolution engine knobs.
	Resolver resolver.Config `mapstructure:"resolver"`

	// Cache toggle, storage location and freshness window.
	Cache cache.Config `mapstructure:"cache"`

	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Token-bucket settings for the HTTP surface.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	CORS CORSConfig `mapstructure:"cors"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
