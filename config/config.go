// Package config provides CLI configuration management for the simplot command-line tool.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/simplot/credentials"
	"github.com/otherjamesbrown/simplot/pkg/actionlog"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultWindow        = 10
	DefaultConcurrency   = 4
	DefaultOutputFormat  = OutputFormatText
	DefaultEncoding      = actionlog.EncodingAuto
	DefaultChannelPrefix = "simplot"
	DefaultConfigDir     = ".simplot"
	DefaultConfigFile    = "config.yaml"
)

// RedisConfig holds settings for publishing run events to redis.
// Publishing is disabled while Address is empty.
type RedisConfig struct {
	// Address is the redis server address (host:port).
	Address string `yaml:"address,omitempty"`

	// DB is the redis database number.
	DB int `yaml:"db,omitempty"`

	// ChannelPrefix prefixes every channel name.
	ChannelPrefix string `yaml:"channel_prefix,omitempty"`

	// PasswordSource selects where the password comes from (auto, env, keyring, none).
	PasswordSource string `yaml:"password_source,omitempty"`

	// PublishPoints also publishes the points of each file.
	PublishPoints bool `yaml:"publish_points,omitempty"`
}

// Enabled reports whether event publishing is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Window is the number of rows kept for matching error markers to actions.
	Window int `yaml:"window"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Concurrency is the number of files classified at once in batch mode.
	Concurrency int `yaml:"concurrency"`

	// Encoding is the input text encoding (auto, utf-8, windows-1252).
	Encoding actionlog.Encoding `yaml:"encoding"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogJSON forces JSON logs even on a terminal.
	LogJSON bool `yaml:"log_json,omitempty"`

	// MetricsFile is a Prometheus textfile written after each run.
	MetricsFile string `yaml:"metrics_file,omitempty"`

	// Redis holds event publishing settings.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Window:       DefaultWindow,
		OutputFormat: DefaultOutputFormat,
		Concurrency:  DefaultConcurrency,
		Encoding:     DefaultEncoding,
		Redis: RedisConfig{
			ChannelPrefix:  DefaultChannelPrefix,
			PasswordSource: credentials.SourceAuto,
		},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $SIMPLOT_CONFIG_DIR if set, otherwise ~/.simplot
func ConfigDir() (string, error) {
	if dir := os.Getenv("SIMPLOT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.simplot/config.yaml or $SIMPLOT_CONFIG_DIR/config.yaml)
// 3. Environment variables (SIMPLOT_WINDOW, SIMPLOT_OUTPUT_FORMAT, ...)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their current values.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) error {
	if v := os.Getenv("SIMPLOT_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIMPLOT_WINDOW: %w", err)
		}
		cfg.Window = n
	}

	if v := os.Getenv("SIMPLOT_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("SIMPLOT_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIMPLOT_CONCURRENCY: %w", err)
		}
		cfg.Concurrency = n
	}

	if v := os.Getenv("SIMPLOT_ENCODING"); v != "" {
		cfg.Encoding = actionlog.Encoding(v)
	}

	if v := os.Getenv("SIMPLOT_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("SIMPLOT_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}

	if v := os.Getenv("SIMPLOT_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}

	if v := os.Getenv("SIMPLOT_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}

	if v := os.Getenv("SIMPLOT_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SIMPLOT_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}

	if v := os.Getenv("SIMPLOT_REDIS_CHANNEL_PREFIX"); v != "" {
		cfg.Redis.ChannelPrefix = v
	}

	if v := os.Getenv("SIMPLOT_REDIS_PASSWORD_SOURCE"); v != "" {
		cfg.Redis.PasswordSource = v
	}

	return nil
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if c.Window < 0 {
		return fmt.Errorf("window must not be negative, got %d", c.Window)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	enc, err := actionlog.ParseEncoding(string(c.Encoding))
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}
	c.Encoding = enc

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}

	if _, err := credentials.RedisPasswordProvider(c.Redis.PasswordSource); err != nil {
		return fmt.Errorf("invalid redis.password_source: %w", err)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Keys lists the keys accepted by Set, in display order.
var Keys = []string{
	"window",
	"output_format",
	"concurrency",
	"encoding",
	"debug",
	"log_json",
	"metrics_file",
	"redis.address",
	"redis.db",
	"redis.channel_prefix",
	"redis.password_source",
	"redis.publish_points",
}

// Set assigns value to the dotted key and validates the result.
func (c *CLIConfig) Set(key, value string) error {
	next := *c

	var err error
	switch strings.ToLower(key) {
	case "window":
		next.Window, err = strconv.Atoi(value)
	case "output_format":
		next.OutputFormat = OutputFormat(value)
	case "concurrency":
		next.Concurrency, err = strconv.Atoi(value)
	case "encoding":
		next.Encoding = actionlog.Encoding(value)
	case "debug":
		next.Debug, err = strconv.ParseBool(value)
	case "log_json":
		next.LogJSON, err = strconv.ParseBool(value)
	case "metrics_file":
		next.MetricsFile = ExpandPath(value)
	case "redis.address":
		next.Redis.Address = value
	case "redis.db":
		next.Redis.DB, err = strconv.Atoi(value)
	case "redis.channel_prefix":
		next.Redis.ChannelPrefix = value
	case "redis.password_source":
		next.Redis.PasswordSource = value
	case "redis.publish_points":
		next.Redis.PublishPoints, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
