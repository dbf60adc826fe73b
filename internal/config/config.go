package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds vigil's runtime settings.
type Config struct {
	BaseURL  string
	Timezone string
	Limit    int

	FastPoll             time.Duration
	SlowPoll             time.Duration
	RefreshDelay         time.Duration
	ReconcileFirstDelay  time.Duration
	ReconcileSecondDelay time.Duration
	RequestTimeout       time.Duration

	LogLevel    string
	LogFile     string
	MetricsAddr string

	MQTT MQTT
}

// MQTT configures the optional push trigger. An empty Broker disables it.
type MQTT struct {
	Broker   string
	Topic    string
	ClientID string
}

// Enabled reports whether a broker is configured.
func (m MQTT) Enabled() bool {
	return m.Broker != ""
}

const (
	defaultConfigPath     = "~/.config/vigil/config.toml"
	defaultLogFile        = "~/.local/state/vigil/vigil.log"
	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultTimezone       = "UTC"
	defaultLimit          = 50
	defaultLogLevel       = "info"
	defaultMQTTTopic      = "frigate/events"
	defaultMQTTClientID   = "vigil"
	defaultFastPoll       = 2.0
	defaultSlowPoll       = 30.0
	defaultRefreshDelay   = 0.5
	defaultReconcile1     = 0.5
	defaultReconcile2     = 1.0
	defaultRequestTimeout = 10.0
)

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return defaultConfigPath
}

// Default returns the configuration used when no file exists.
func Default() Config {
	cfg, _ := fromRaw(rawConfig{})
	return cfg
}

type rawConfig struct {
	BaseURL              string   `toml:"base_url"`
	Timezone             string   `toml:"timezone"`
	Limit                int      `toml:"limit"`
	FastPollSeconds      float64  `toml:"fast_poll_seconds"`
	SlowPollSeconds      float64  `toml:"slow_poll_seconds"`
	RefreshDelaySeconds  *float64 `toml:"refresh_delay_seconds"`
	ReconcileFirstDelay  *float64 `toml:"reconcile_first_delay_seconds"`
	ReconcileSecondDelay *float64 `toml:"reconcile_second_delay_seconds"`
	RequestTimeout       float64  `toml:"request_timeout_seconds"`
	LogLevel             string   `toml:"log_level"`
	LogFile              string   `toml:"log_file"`
	MetricsAddr          string   `toml:"metrics_addr"`
	MQTT                 struct {
		Broker   string `toml:"broker"`
		Topic    string `toml:"topic"`
		ClientID string `toml:"client_id"`
	} `toml:"mqtt"`
}

// Load locates and parses the vigil config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw rawConfig) (Config, error) {
	cfg := Config{
		BaseURL:     orDefault(raw.BaseURL, defaultBaseURL),
		Timezone:    orDefault(raw.Timezone, defaultTimezone),
		Limit:       raw.Limit,
		LogLevel:    strings.ToLower(orDefault(raw.LogLevel, defaultLogLevel)),
		LogFile:     mustExpand(orDefault(raw.LogFile, defaultLogFile)),
		MetricsAddr: strings.TrimSpace(raw.MetricsAddr),
		MQTT: MQTT{
			Broker:   strings.TrimSpace(raw.MQTT.Broker),
			Topic:    orDefault(raw.MQTT.Topic, defaultMQTTTopic),
			ClientID: orDefault(raw.MQTT.ClientID, defaultMQTTClientID),
		},
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	cfg.FastPoll = positiveSeconds(raw.FastPollSeconds, defaultFastPoll)
	cfg.SlowPoll = positiveSeconds(raw.SlowPollSeconds, defaultSlowPoll)
	cfg.RequestTimeout = positiveSeconds(raw.RequestTimeout, defaultRequestTimeout)
	cfg.RefreshDelay = delaySeconds(raw.RefreshDelaySeconds, defaultRefreshDelay)
	cfg.ReconcileFirstDelay = delaySeconds(raw.ReconcileFirstDelay, defaultReconcile1)
	cfg.ReconcileSecondDelay = delaySeconds(raw.ReconcileSecondDelay, defaultReconcile2)
	return cfg, nil
}

// Location returns the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func positiveSeconds(value, fallback float64) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return seconds(value)
}

// delaySeconds allows an explicit zero; unset or negative selects the default.
func delaySeconds(value *float64, fallback float64) time.Duration {
	if value == nil || *value < 0 {
		return seconds(fallback)
	}
	return seconds(*value)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
