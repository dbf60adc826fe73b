package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("BaseURL = %q, want %q", cfg.BaseURL, defaultBaseURL)
	}
	if cfg.FastPoll != 2*time.Second || cfg.SlowPoll != 30*time.Second {
		t.Fatalf("poll = %v/%v, want 2s/30s", cfg.FastPoll, cfg.SlowPoll)
	}
	if cfg.RefreshDelay != 500*time.Millisecond {
		t.Fatalf("RefreshDelay = %v, want 500ms", cfg.RefreshDelay)
	}
	if cfg.ReconcileFirstDelay != 500*time.Millisecond || cfg.ReconcileSecondDelay != time.Second {
		t.Fatalf("reconcile delays = %v/%v, want 500ms/1s", cfg.ReconcileFirstDelay, cfg.ReconcileSecondDelay)
	}
	if cfg.Limit != 50 || cfg.Timezone != "UTC" || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("cfg = %#v, want limit 50, UTC, 10s timeout", cfg)
	}

	wantLog, err := expandPath(defaultLogFile)
	if err != nil {
		t.Fatalf("expandPath(defaultLogFile) returned error: %v", err)
	}
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
	if cfg.MQTT.Enabled() || cfg.MQTT.Topic != "frigate/events" {
		t.Fatalf("MQTT = %#v, want disabled with default topic", cfg.MQTT)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
base_url = "  https://nvr.lan/frigate  "
limit = 100
fast_poll_seconds = 5
slow_poll_seconds = 60
refresh_delay_seconds = 0
reconcile_second_delay_seconds = 2.5
log_level = " DEBUG "
log_file = "  ~/logs/vigil.log  "
metrics_addr = ":9108"

[mqtt]
broker = " tcp://broker:1883 "
client_id = "den"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseURL != "https://nvr.lan/frigate" {
		t.Fatalf("BaseURL = %q, want %q", cfg.BaseURL, "https://nvr.lan/frigate")
	}
	if cfg.Limit != 100 || cfg.FastPoll != 5*time.Second || cfg.SlowPoll != time.Minute {
		t.Fatalf("cfg = %#v, want limit 100, 5s fast, 60s slow", cfg)
	}
	if cfg.RefreshDelay != 0 {
		t.Fatalf("RefreshDelay = %v, want 0 (explicitly disabled)", cfg.RefreshDelay)
	}
	if cfg.ReconcileFirstDelay != 500*time.Millisecond || cfg.ReconcileSecondDelay != 2500*time.Millisecond {
		t.Fatalf("reconcile delays = %v/%v, want 500ms/2.5s", cfg.ReconcileFirstDelay, cfg.ReconcileSecondDelay)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !strings.HasPrefix(cfg.LogFile, home) {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	if cfg.MetricsAddr != ":9108" {
		t.Fatalf("MetricsAddr = %q, want :9108", cfg.MetricsAddr)
	}
	if !cfg.MQTT.Enabled() || cfg.MQTT.Broker != "tcp://broker:1883" || cfg.MQTT.ClientID != "den" {
		t.Fatalf("MQTT = %#v, want trimmed broker and client id", cfg.MQTT)
	}
}

func TestLoad_NonPositiveValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
base_url = "   "
limit = -3
fast_poll_seconds = 0
slow_poll_seconds = -1
refresh_delay_seconds = -2
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL || cfg.Limit != defaultLimit {
		t.Fatalf("cfg = %#v, want default base url and limit", cfg)
	}
	if cfg.FastPoll != 2*time.Second || cfg.SlowPoll != 30*time.Second || cfg.RefreshDelay != 500*time.Millisecond {
		t.Fatalf("durations = %v/%v/%v, want defaults", cfg.FastPoll, cfg.SlowPoll, cfg.RefreshDelay)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`base_url = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_InvalidTimezoneFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`timezone = "Mars/Olympus"`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "invalid timezone") {
		t.Fatalf("Load error = %v, want invalid timezone", err)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
