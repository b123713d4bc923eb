// Package config loads the coordinator's process configuration from
// environment variables via viper. Command-line flags parsed in cmd/server
// override whatever is loaded here, so a bare `coordinator` invocation works
// from the environment alone and a flag always wins for local debugging.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration for the coordinator server.
type Config struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	DataDir       string        `mapstructure:"data_dir"`
	LogLevel      string        `mapstructure:"log_level"`
	WebSocketPath string        `mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	TimerTick     time.Duration `mapstructure:"timer_tick"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// Load builds a Config from defaults and COORDINATOR_-prefixed environment
// variables (COORDINATOR_PORT, COORDINATOR_DATA_DIR, ...).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COORDINATOR")
	v.AutomaticEnv()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("websocket_path", "/ws")
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 30*time.Second)
	v.SetDefault("timer_tick", time.Second)
	v.SetDefault("enable_metrics", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.TimerTick <= 0 || cfg.TimerTick > time.Second {
		// The Auto-Timer Driver contract is a tick of at most one second.
		cfg.TimerTick = time.Second
	}
	return &cfg, nil
}
