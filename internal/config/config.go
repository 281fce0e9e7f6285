package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config covers both binaries. Every field has a working default: a missing
// or unreadable config file degrades to the defaults, never a crash.
type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	// APIBaseURL and ICEEndpointPath locate the ICE-server configuration
	// endpoint. An empty base URL means the public-STUN fallback.
	APIBaseURL      string `mapstructure:"api_base_url"`
	ICEEndpointPath string `mapstructure:"ice_endpoint_path"`

	// ICEServers is what the relay advertises on its own /api/ice endpoint.
	ICEServers []string `mapstructure:"ice_servers"`

	SetupTimeout  time.Duration `mapstructure:"setup_timeout"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("api_base_url", "")
	v.SetDefault("ice_endpoint_path", "/api/ice")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("setup_timeout", "30s")
	v.SetDefault("gather_timeout", "2s")
	v.SetDefault("fetch_timeout", "5s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
