package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skdltmxn/clrmeta-go/clr"
)

// Config represents the clrview configuration
type Config struct {
	SearchPaths            []string `mapstructure:"search_paths"`
	DisableAliasResolution bool     `mapstructure:"disable_alias_resolution"`
	UserStringCacheSize    int      `mapstructure:"user_string_cache_size"`
	LogLevel               string   `mapstructure:"log_level"`
}

// configFlags maps config keys to the persistent flags overriding them.
var configFlags = map[string]string{
	"search_paths":             "search-path",
	"disable_alias_resolution": "no-alias",
	"user_string_cache_size":   "us-cache",
	"log_level":                "log-level",
}

func registerConfigFlags(fs *pflag.FlagSet) {
	fs.StringSlice("search-path", nil, "directory probed for referenced assemblies (repeatable)")
	fs.Bool("no-alias", false, "do not follow exported type forwarders into other assemblies")
	fs.Int("us-cache", 0, "number of decoded user strings cached per module")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig loads the configuration from clrview.yaml in the working
// directory, CLRVIEW_* environment variables and the command-line flags,
// in increasing order of precedence.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("user_string_cache_size", 1024)
	v.SetDefault("log_level", "warn")

	v.SetConfigName("clrview")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLRVIEW")
	v.AutomaticEnv()

	for key, name := range configFlags {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.UserStringCacheSize < 0 {
		return nil, fmt.Errorf("user_string_cache_size must not be negative, got: %d", cfg.UserStringCacheSize)
	}
	return &cfg, nil
}

// newLogger builds a development logger writing to stderr at level.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func (c *Config) hostOptions(log *zap.Logger) clr.Options {
	return clr.Options{
		SearchPaths:            c.SearchPaths,
		DisableAliasResolution: c.DisableAliasResolution,
		UserStringCacheSize:    c.UserStringCacheSize,
		Logger:                 log,
	}
}
