package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the service configuration. Values come from defaults, an
// optional webshot.yaml, and WEBSHOT_* environment variables, in that
// order of increasing precedence. PORT is honored as a plain override for
// the listen port; the browser's debugging port is managed internally and
// never configurable.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// BrowserPath overrides locator discovery when set.
	BrowserPath string `mapstructure:"browser_path"`

	// MaxConcurrentRenders bounds simultaneous browser subprocesses.
	MaxConcurrentRenders int `mapstructure:"max_concurrent_renders"`

	// CaptureTimeout bounds one whole capture request.
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("port", 9142)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("browser_path", "")
	v.SetDefault("max_concurrent_renders", 4)
	v.SetDefault("capture_timeout", 30*time.Second)

	v.SetConfigName("webshot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.webshot")

	v.SetEnvPrefix("WEBSHOT")
	v.AutomaticEnv()
	// Plain PORT keeps parity with the common deployment convention.
	_ = v.BindEnv("port", "WEBSHOT_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.MaxConcurrentRenders <= 0 {
		cfg.MaxConcurrentRenders = 4
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 30 * time.Second
	}
	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
