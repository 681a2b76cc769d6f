// Package config loads runtime configuration from defaults, an optional
// config file, and OBFUS_-prefixed environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Tools  ToolsConfig  `mapstructure:"tools"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Run    RunConfig    `mapstructure:"run"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// ToolsConfig pins external tool paths. Empty fields fall back to PATH
// discovery.
type ToolsConfig struct {
	Compiler string `mapstructure:"compiler"`
	Strip    string `mapstructure:"strip"`
	Objcopy  string `mapstructure:"objcopy"`
}

// CacheConfig controls the content-addressed job cache.
type CacheConfig struct {
	Dir     string `mapstructure:"dir"`
	Enabled bool   `mapstructure:"enabled"`
}

// RunConfig controls pipeline execution.
type RunConfig struct {
	// Concurrency bounds parallel job execution. 1 forces serial runs.
	Concurrency int `mapstructure:"concurrency"`

	// StateDir is where run records are kept.
	StateDir string `mapstructure:"state_dir"`
}

// LoggerConfig controls logrus setup.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load resolves configuration. When file is non-empty it must exist and
// parse; otherwise only defaults and environment apply.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("tools.compiler", "")
	v.SetDefault("tools.strip", "")
	v.SetDefault("tools.objcopy", "")
	v.SetDefault("cache.dir", ".obfus/cache")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("run.concurrency", runtime.NumCPU())
	v.SetDefault("run.state_dir", ".")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")

	v.SetEnvPrefix("OBFUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Run.Concurrency < 1 {
		return fmt.Errorf("run.concurrency must be >= 1, got %d", c.Run.Concurrency)
	}
	if _, err := log.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}
	switch c.Logger.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logger.format must be \"text\" or \"json\", got %q", c.Logger.Format)
	}
	return nil
}

// SetupLogger applies the logger configuration to the global logrus logger.
func (c *Config) SetupLogger() {
	lvl, err := log.ParseLevel(c.Logger.Level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if c.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
