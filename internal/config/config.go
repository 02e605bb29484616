// Package config loads bookfreq settings from defaults, an optional YAML file,
// a .env file and BOOKFREQ_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BOOKFREQ_"

type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

type FetchConfig struct {
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	UserAgent          string `yaml:"user_agent"`
	DetectLanguage     bool   `yaml:"detect_language"`
	Workers            int    `yaml:"workers"`
}

type AnalysisConfig struct {
	TopN          int    `yaml:"top_n"`
	FallbackTitle string `yaml:"fallback_title"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Storage  StorageConfig  `yaml:"storage"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Storage: StorageConfig{
			Driver:        "sqlite3",
			Path:          "books.db",
			BusyTimeoutMs: 5000,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			MaxBodyBytes:   20 << 20,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			DetectLanguage: true,
			Workers:        4,
		},
		Analysis: AnalysisConfig{
			TopN:          10,
			FallbackTitle: "Unknown Title",
		},
	}
}

// Load builds a Config. path may be empty, in which case no YAML file is read;
// a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.App.LogFormat = getEnv("LOG_FORMAT", c.App.LogFormat)

	c.Storage.Driver = getEnv("DB_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("DB_PATH", c.Storage.Path)

	var err error
	if c.Storage.BusyTimeoutMs, err = getEnvInt("DB_BUSY_TIMEOUT_MS", c.Storage.BusyTimeoutMs); err != nil {
		return err
	}
	if c.Fetch.TimeoutSeconds, err = getEnvInt("FETCH_TIMEOUT_SECONDS", c.Fetch.TimeoutSeconds); err != nil {
		return err
	}
	maxBody, err := getEnvInt("FETCH_MAX_BODY_BYTES", int(c.Fetch.MaxBodyBytes))
	if err != nil {
		return err
	}
	c.Fetch.MaxBodyBytes = int64(maxBody)
	if c.Fetch.InsecureSkipVerify, err = getEnvBool("FETCH_INSECURE_SKIP_VERIFY", c.Fetch.InsecureSkipVerify); err != nil {
		return err
	}
	c.Fetch.UserAgent = getEnv("FETCH_USER_AGENT", c.Fetch.UserAgent)
	if c.Fetch.DetectLanguage, err = getEnvBool("FETCH_DETECT_LANGUAGE", c.Fetch.DetectLanguage); err != nil {
		return err
	}
	if c.Fetch.Workers, err = getEnvInt("FETCH_WORKERS", c.Fetch.Workers); err != nil {
		return err
	}

	if c.Analysis.TopN, err = getEnvInt("TOP_N", c.Analysis.TopN); err != nil {
		return err
	}
	c.Analysis.FallbackTitle = getEnv("FALLBACK_TITLE", c.Analysis.FallbackTitle)
	return nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level %q must be one of debug, info, warn, error", c.App.LogLevel)
	}
	switch strings.ToLower(c.App.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format %q must be text or json", c.App.LogFormat)
	}
	switch c.Storage.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("storage.driver %q must be sqlite3 or sqlite", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.BusyTimeoutMs < 0 {
		return fmt.Errorf("storage.busy_timeout_ms must not be negative")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return fmt.Errorf("fetch.max_body_bytes must be positive")
	}
	if c.Fetch.Workers < 1 || c.Fetch.Workers > 64 {
		return fmt.Errorf("fetch.workers must be between 1 and 64")
	}
	if c.Analysis.TopN < 1 || c.Analysis.TopN > 10 {
		return fmt.Errorf("analysis.top_n must be between 1 and 10")
	}
	if strings.TrimSpace(c.Analysis.FallbackTitle) == "" {
		return fmt.Errorf("analysis.fallback_title is required")
	}
	return nil
}

func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return b, nil
}
