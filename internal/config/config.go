// Package config loads and validates quickscope configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/quickscope/internal/errors"
	"github.com/anstrom/quickscope/internal/logging"
	"github.com/anstrom/quickscope/internal/scanning"
)

// Config represents the complete quickscope configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Output configuration
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Metrics endpoint configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Recurring scan configuration
	Watch WatchConfig `yaml:"watch" json:"watch"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Port specification, e.g. "common" or "22,80,8000-8100"
	Ports string `yaml:"ports" json:"ports" validate:"required"`

	// Ports removed from the specification
	Exclude string `yaml:"exclude" json:"exclude"`

	// Maximum number of probes in flight
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gt=0"`

	// Per-connection timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	// Grab banners from open ports
	Banner bool `yaml:"banner" json:"banner"`

	// Banner read timeout, shorter than Timeout when banners are enabled
	// (0 = the shorter of 600ms and half of Timeout)
	BannerTimeout time.Duration `yaml:"banner_timeout" json:"banner_timeout" validate:"gte=0"`

	// Hostname resolution timeout
	ResolveTimeout time.Duration `yaml:"resolve_timeout" json:"resolve_timeout" validate:"gt=0"`

	// Nameserver queried directly instead of the system resolver
	Nameserver string `yaml:"nameserver" json:"nameserver" validate:"omitempty,hostname_port|ip|tcp_addr"`

	// Probe starts per second (0 = unlimited)
	RateLimit int `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`

	// Stop the scan after this long (0 = no limit)
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration" validate:"gte=0"`
}

// OutputConfig holds result rendering settings
type OutputConfig struct {
	// Output format (text, json, csv, ndjson)
	Format string `yaml:"format" json:"format" validate:"oneof=text json csv ndjson"`

	// Include closed, filtered and error ports
	All bool `yaml:"all" json:"all"`

	// Write a header row in CSV output
	CSVHeader bool `yaml:"csv_header" json:"csv_header"`

	// Report progress on stderr
	Progress bool `yaml:"progress" json:"progress"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" validate:"required"`
}

// MetricsConfig holds settings for the metrics and progress HTTP endpoint
type MetricsConfig struct {
	// Serve /metrics, /healthz and /ws/progress while scanning
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address, e.g. "127.0.0.1:9464"
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"omitempty,hostname_port"`
}

// WatchConfig holds recurring scan settings
type WatchConfig struct {
	// Cron expression (standard five fields or descriptors such as @hourly)
	Schedule string `yaml:"schedule" json:"schedule"`
}

var validate = validator.New()

// Default returns a configuration with sensible defaults
func Default() *Config {
	opts := scanning.DefaultOptions()
	return &Config{
		Scanning: ScanningConfig{
			Ports:          opts.Ports,
			Concurrency:    opts.Concurrency,
			Timeout:        opts.Timeout,
			Banner:         opts.Banner,
			BannerTimeout:  opts.BannerTimeout,
			ResolveTimeout: opts.ResolveTimeout,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			Schedule: "@hourly",
		},
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// YAML is a superset of JSON, so one decoder serves both extensions.
	if err := yaml.Unmarshal(data, config); err != nil {
		kind := "YAML"
		if strings.EqualFold(filepath.Ext(path), ".json") {
			kind = "JSON"
		}
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse %s config", kind), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("invalid value for %s (%s)", fe.Namespace(), fe.Tag()),
				fe.Namespace(), fe.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.ErrConfigMissing("Config.Metrics.ListenAddr")
	}

	return nil
}

// ScanOptions converts the scanning section into scanner options for targets.
func (c *Config) ScanOptions(targets []string) scanning.Options {
	s := c.Scanning
	return scanning.Options{
		Targets:        targets,
		Ports:          s.Ports,
		Exclude:        s.Exclude,
		Concurrency:    s.Concurrency,
		Timeout:        s.Timeout,
		Banner:         s.Banner,
		BannerTimeout:  s.BannerTimeout,
		ResolveTimeout: s.ResolveTimeout,
		Nameserver:     s.Nameserver,
		RateLimit:      s.RateLimit,
		MaxDuration:    s.MaxDuration,
	}
}

// LoggerConfig converts the logging section into logger settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging.Level),
		Format: logging.LogFormat(c.Logging.Format),
		Output: c.Logging.Output,
	}
}
