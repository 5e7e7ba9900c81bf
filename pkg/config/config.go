package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/publish"
	"github.com/srg/tp357/internal/queue"
	"github.com/srg/tp357/internal/tp357"
	"gopkg.in/yaml.v3"
)

// OutputFormats lists the accepted values of OutputFormat.
var OutputFormats = []string{"table", "json"}

// MQTTConfig configures reading publication. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix" default:"tp357"`
	QoS         int    `yaml:"qos" default:"0"`
	Retain      bool   `yaml:"retain" default:"false"`
	ClientID    string `yaml:"client_id"`
}

// Config holds application configuration
type Config struct {
	// LogLevel is one of debug, info, warn, error; empty keeps logging silent.
	LogLevel string `yaml:"log_level"`
	// ScanWait bounds the scan command; zero scans until interrupted.
	ScanWait        time.Duration `yaml:"scan_wait" default:"0s"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"30s"`
	QueryTimeout    time.Duration `yaml:"query_timeout" default:"60s"`
	LocateTimeout   time.Duration `yaml:"locate_timeout" default:"30s"`
	DiscoverTimeout time.Duration `yaml:"discover_timeout" default:"30s"`
	Retries         int           `yaml:"retries" default:"3"`
	QueueCapacity   int           `yaml:"queue_capacity" default:"1024"`
	NameFilter      string        `yaml:"name_filter" default:"TP357 (7216)"`
	OutputFormat    string        `yaml:"output_format" default:"table"`
	SQLitePath      string        `yaml:"sqlite"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !validFormat(c.OutputFormat) {
		errs = append(errs, fmt.Errorf("invalid format '%s': must be one of %v", c.OutputFormat, OutputFormats))
	}
	if strings.TrimSpace(c.NameFilter) == "" {
		errs = append(errs, errors.New("name filter must not be empty: it would match every named device"))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.QueueCapacity <= 0 || c.QueueCapacity > queue.MaxCapacity {
		errs = append(errs, fmt.Errorf("queue capacity must be in 1..%d, got %d", queue.MaxCapacity, c.QueueCapacity))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	for name, d := range map[string]time.Duration{
		"scan_wait":        c.ScanWait,
		"connect_timeout":  c.ConnectTimeout,
		"query_timeout":    c.QueryTimeout,
		"locate_timeout":   c.LocateTimeout,
		"discover_timeout": c.DiscoverTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

func validFormat(format string) bool {
	for _, f := range OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// ParseLogLevel maps a --log-level value to a logrus level. Empty means
// panic level, which keeps normal operation silent.
func ParseLogLevel(level string) (logrus.Level, error) {
	switch level {
	case "":
		return logrus.PanicLevel, nil
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// ClientOptions converts the configuration for tp357.NewClient.
func (c *Config) ClientOptions() tp357.ClientOptions {
	opts := tp357.DefaultClientOptions()
	opts.Retries = c.Retries
	opts.ConnectTimeout = c.ConnectTimeout
	opts.QueryTimeout = c.QueryTimeout
	opts.LocateTimeout = c.LocateTimeout
	opts.DiscoverTimeout = c.DiscoverTimeout
	opts.Scan.NameFilter = tp357.NameFilter(c.NameFilter)
	opts.Scan.QueueCapacity = c.QueueCapacity
	return opts
}

// PublishOptions converts the MQTT section for publish.New.
func (c *Config) PublishOptions() publish.Options {
	return publish.Options{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         byte(c.MQTT.QoS),
		Retain:      c.MQTT.Retain,
	}
}
