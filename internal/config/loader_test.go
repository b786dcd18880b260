package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxgate/internal/config"
)

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.RateLimit.MaxRequestsPerWindow != 50 || cfg.RateLimit.WindowSeconds != 60 {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.Queue.Maxsize != 100 || cfg.Queue.WorkerCount != 8 {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Session.Retention != 15*time.Minute {
		t.Errorf("session.retention = %v, want 15m", cfg.Session.Retention)
	}
	if cfg.Stream.PullTimeout != 10*time.Second || cfg.Stream.MaxAttempts != 3 {
		t.Errorf("stream defaults = %+v", cfg.Stream)
	}
	if !cfg.Providers.MockTone.IsEnabled() {
		t.Error("mock_tone should default to enabled")
	}
	if cfg.Providers.Coqui.Enabled {
		t.Error("coqui should default to disabled")
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9000"
  log_level: debug
rate_limit:
  max_requests_per_window: 5
  window_seconds: 10
queue:
  maxsize: 2
  worker_count: 1
session:
  retention: 1h
  strict_voice_ownership: true
stream:
  pull_timeout: 2s
  max_attempts: 5
  backoff_base: 50ms
breaker:
  max_failures: 2
  reset_timeout: 5s
  half_open_max: 1
providers:
  mock_tone:
    enabled: false
  coqui:
    enabled: true
    base_url: "http://localhost:5002"
    language: de
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.RateLimit.Window() != 10*time.Second {
		t.Errorf("Window() = %v, want 10s", cfg.RateLimit.Window())
	}
	if !cfg.Session.StrictVoiceOwnership || cfg.Session.Retention != time.Hour {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Providers.MockTone.IsEnabled() {
		t.Error("mock_tone should be disabled")
	}
	if !cfg.Providers.Coqui.Enabled || cfg.Providers.Coqui.Language != "de" {
		t.Errorf("coqui = %+v", cfg.Providers.Coqui)
	}
	// Unset fields keep their defaults.
	if cfg.Providers.Coqui.Timeout != 30*time.Second {
		t.Errorf("coqui.timeout = %v, want default 30s", cfg.Providers.Coqui.Timeout)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	if _, err := config.LoadFromReader(strings.NewReader("definitely_not_a_field: 1\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"bad log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"zero quota", "rate_limit:\n  max_requests_per_window: 0\n", "rate_limit.max_requests_per_window"},
		{"negative retention", "session:\n  retention: -1s\n", "session.retention"},
		{"zero workers", "queue:\n  worker_count: 0\n", "queue.worker_count"},
		{"coqui without url", "providers:\n  coqui:\n    enabled: true\n", "providers.coqui.base_url"},
		{"no provider enabled", "providers:\n  mock_tone:\n    enabled: false\n", "no synthesis provider"},
		{"tls missing key", "server:\n  tls:\n    cert_file: cert.pem\n", "server.tls"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	cfg := config.Defaults()
	cfg.Queue.Maxsize = 0
	cfg.Queue.WorkerCount = 0
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"queue.maxsize", "queue.worker_count"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS_PER_WINDOW", "7")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	t.Setenv("SESSION_QUEUE_MAXSIZE", "3")
	t.Setenv("SESSION_QUEUE_WORKER_COUNT", "2")
	t.Setenv("MOCK_TONE_ENABLED", "false")
	t.Setenv("COQUI_ENABLED", "true")
	t.Setenv("COQUI_BASE_URL", "http://coqui:5002")
	t.Setenv("COQUI_MODEL_NAME", "tts_models/de/thorsten/vits")
	t.Setenv("COQUI_LANGUAGE", "de")

	cfg := config.Defaults()
	config.FromEnv(cfg)

	if cfg.RateLimit.MaxRequestsPerWindow != 7 || cfg.RateLimit.WindowSeconds != 30 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Queue.Maxsize != 3 || cfg.Queue.WorkerCount != 2 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
	if cfg.Providers.MockTone.IsEnabled() {
		t.Error("mock_tone should be disabled via env")
	}
	if !cfg.Providers.Coqui.Enabled || cfg.Providers.Coqui.BaseURL != "http://coqui:5002" {
		t.Errorf("coqui = %+v", cfg.Providers.Coqui)
	}
	if cfg.Providers.Coqui.ModelName != "tts_models/de/thorsten/vits" || cfg.Providers.Coqui.Language != "de" {
		t.Errorf("coqui model/language = %+v", cfg.Providers.Coqui)
	}
}

func TestFromEnv_MalformedValuesIgnored(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS_PER_WINDOW", "lots")
	t.Setenv("MOCK_TONE_ENABLED", "maybe")

	cfg := config.Defaults()
	config.FromEnv(cfg)

	if cfg.RateLimit.MaxRequestsPerWindow != 50 {
		t.Errorf("malformed int override applied: %d", cfg.RateLimit.MaxRequestsPerWindow)
	}
	if !cfg.Providers.MockTone.IsEnabled() {
		t.Error("malformed bool override applied")
	}
}
