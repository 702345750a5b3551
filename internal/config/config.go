// Package config handles loading and validation of application configuration.
// It supports YAML-based configuration files and provides sensible defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scottbrown/hecsink/internal/acl"
	"github.com/scottbrown/hecsink/internal/hec"
)

const (
	// DefaultMaxLineBytes is the default maximum size for a single ingested log line (1 MiB).
	DefaultMaxLineBytes int = 1 << 20
	// DefaultFlushIntervalSeconds is the default batch flush interval.
	DefaultFlushIntervalSeconds int = 1
	// DefaultBatchMaxEvents is the default number of events per batch.
	DefaultBatchMaxEvents int = 100
	// DefaultBatchMaxBytes is the default payload size limit per batch (1 MiB).
	DefaultBatchMaxBytes int = 1 << 20
	// DefaultRetentionMaxAgeDays is how long dated archive and DLQ files are kept.
	DefaultRetentionMaxAgeDays int = 30
	// DefaultRetentionCheckMinutes is how often the retention pruner sweeps.
	DefaultRetentionCheckMinutes int = 60
)

//go:embed config.template.yml
var configTemplate string

// SplunkConfig holds the HEC target settings: connection details,
// authentication, destination metadata, and transport tuning.
type SplunkConfig struct {
	HECURL          string `yaml:"hec_url"`
	HECToken        string `yaml:"hec_token"`
	Channel         string `yaml:"channel"`
	Index           string `yaml:"index"`
	Source          string `yaml:"source"`
	SourceType      string `yaml:"source_type"`
	IgnoreSSLErrors bool   `yaml:"ignore_ssl_errors"`
	UseProxy        bool   `yaml:"use_proxy"`
	ProxyURL        string `yaml:"proxy_url"`
	ProxyUser       string `yaml:"proxy_user"`
	ProxyPassword   string `yaml:"proxy_password"`
	MaxConnsPerHost int    `yaml:"max_connections_per_server"`
	UseHTTP10       bool   `yaml:"use_http10"`
	SendMode        string `yaml:"send_mode"`
	Gzip            bool   `yaml:"gzip"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// BatchConfig bounds one flush cycle.
type BatchConfig struct {
	MaxEvents     int `yaml:"max_events"`
	MaxBytes      int `yaml:"max_bytes"`
	FlushInterval int `yaml:"flush_interval_seconds"`
}

// RetryConfig holds configuration for retry behaviour with exponential backoff.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoffSeconds int     `yaml:"max_backoff_seconds"`
}

// CircuitBreakerConfig holds configuration for the circuit breaker pattern.
type CircuitBreakerConfig struct {
	Enabled          *bool `yaml:"enabled"`
	FailureThreshold int   `yaml:"failure_threshold"`
	SuccessThreshold int   `yaml:"success_threshold"`
	Timeout          int   `yaml:"timeout_seconds"`
	HalfOpenMaxCalls int   `yaml:"half_open_max_calls"`
}

// IngestConfig selects where log lines come from. Allow restricts the
// TCP listener to the named CIDR networks; empty means any host.
type IngestConfig struct {
	Stdin        *bool    `yaml:"stdin"`
	ListenAddr   string   `yaml:"listen_addr"`
	Allow        []string `yaml:"allow"`
	MaxLineBytes int      `yaml:"max_line_bytes"`
}

// ArchiveConfig controls the optional on-disk copy of every ingested
// line. An empty Dir disables archiving.
type ArchiveConfig struct {
	Dir       string          `yaml:"dir"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig prunes dated archive and dead letter files.
type RetentionConfig struct {
	Enabled              bool `yaml:"enabled"`
	MaxAgeDays           int  `yaml:"max_age_days"`
	CompressAgeDays      int  `yaml:"compress_age_days"`
	CheckIntervalMinutes int  `yaml:"check_interval_minutes"`
}

// Config represents the complete application configuration.
type Config struct {
	Splunk         SplunkConfig          `yaml:"splunk"`
	Batch          BatchConfig           `yaml:"batch"`
	Retry          RetryConfig           `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
	Ingest         IngestConfig          `yaml:"ingest"`
	Archive        ArchiveConfig         `yaml:"archive"`
	DLQDir         string                `yaml:"dlq_dir"`
	MetricsAddr    string                `yaml:"metrics_addr"`
}

// GetTemplate returns the embedded YAML configuration template.
func GetTemplate() string {
	return configTemplate
}

// LoadConfig reads and validates configuration from the specified YAML file.
// It returns an error if the file cannot be read, parsed, or contains invalid
// settings. HEC URL and token presence is validated here so a bad deployment
// fails before the forwarding path starts.
func LoadConfig(configFile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("configuration file is required")
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configFile)
	}

	// #nosec G304 -- configFile is provided by the user via the --config flag,
	// which is the expected way to specify the configuration file path.
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %v", err)
	}

	applyDefaults(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	slog.Info("loaded configuration", "file", configFile)
	return config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Batch.MaxEvents == 0 {
		cfg.Batch.MaxEvents = DefaultBatchMaxEvents
	}
	if cfg.Batch.MaxBytes == 0 {
		cfg.Batch.MaxBytes = DefaultBatchMaxBytes
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = DefaultFlushIntervalSeconds
	}
	if cfg.Ingest.MaxLineBytes == 0 {
		cfg.Ingest.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.Ingest.Stdin == nil {
		// Stdin ingest is on unless a listener is the only source.
		enabled := cfg.Ingest.ListenAddr == ""
		cfg.Ingest.Stdin = &enabled
	}
	if cfg.Archive.Retention.MaxAgeDays == 0 {
		cfg.Archive.Retention.MaxAgeDays = DefaultRetentionMaxAgeDays
	}
	if cfg.Archive.Retention.CheckIntervalMinutes == 0 {
		cfg.Archive.Retention.CheckIntervalMinutes = DefaultRetentionCheckMinutes
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Splunk.HECURL == "" {
		return fmt.Errorf("splunk.hec_url is required")
	}
	if cfg.Splunk.HECToken == "" {
		return fmt.Errorf("splunk.hec_token is required")
	}
	u, err := url.Parse(cfg.Splunk.HECURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("splunk.hec_url is not an absolute http(s) URL: %q", cfg.Splunk.HECURL)
	}

	if _, err := hec.ParseSendMode(cfg.Splunk.SendMode); err != nil {
		return fmt.Errorf("splunk.send_mode: %v", err)
	}

	if cfg.Splunk.UseProxy && cfg.Splunk.ProxyURL != "" {
		if _, err := url.Parse(cfg.Splunk.ProxyURL); err != nil {
			return fmt.Errorf("splunk.proxy_url: %v", err)
		}
	}

	if cfg.Batch.MaxEvents < 0 || cfg.Batch.MaxBytes < 0 || cfg.Batch.FlushInterval < 0 {
		return fmt.Errorf("batch limits must not be negative")
	}
	if cfg.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}

	if !*cfg.Ingest.Stdin && cfg.Ingest.ListenAddr == "" {
		return fmt.Errorf("at least one ingest source is required (stdin or listen_addr)")
	}

	if _, err := acl.Parse(cfg.Ingest.Allow); err != nil {
		return fmt.Errorf("ingest.allow: %v", err)
	}

	if r := cfg.Archive.Retention; r.Enabled {
		if r.MaxAgeDays < 1 {
			return fmt.Errorf("archive.retention.max_age_days must be at least 1")
		}
		if r.CompressAgeDays < 0 {
			return fmt.Errorf("archive.retention.compress_age_days must not be negative")
		}
		if r.CompressAgeDays >= r.MaxAgeDays && r.CompressAgeDays != 0 {
			return fmt.Errorf("archive.retention.compress_age_days must be smaller than max_age_days")
		}
	}

	return nil
}
