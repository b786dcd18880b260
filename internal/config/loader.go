package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults], applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	FromEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv overrides cfg fields from the process environment. Unset or
// malformed variables leave the field untouched; a malformed value logs a
// warning.
func FromEnv(cfg *Config) {
	envInt("RATE_LIMIT_MAX_REQUESTS_PER_WINDOW", &cfg.RateLimit.MaxRequestsPerWindow)
	envInt("RATE_LIMIT_WINDOW_SECONDS", &cfg.RateLimit.WindowSeconds)
	envInt("SESSION_QUEUE_MAXSIZE", &cfg.Queue.Maxsize)
	envInt("SESSION_QUEUE_WORKER_COUNT", &cfg.Queue.WorkerCount)

	if v, ok := envBool("MOCK_TONE_ENABLED"); ok {
		cfg.Providers.MockTone.Enabled = &v
	}
	if v, ok := envBool("COQUI_ENABLED"); ok {
		cfg.Providers.Coqui.Enabled = v
	}
	envString("COQUI_BASE_URL", &cfg.Providers.Coqui.BaseURL)
	envString("COQUI_MODEL_NAME", &cfg.Providers.Coqui.ModelName)
	envString("COQUI_LANGUAGE", &cfg.Providers.Coqui.Language)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed environment override", "key", key, "value", v)
		return
	}
	*dst = n
}

func envBool(key string) (value, ok bool) {
	v, found := os.LookupEnv(key)
	if !found || v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring malformed environment override", "key", key, "value", v)
		return false, false
	}
	return b, true
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.RateLimit.MaxRequestsPerWindow <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_requests_per_window must be positive, got %d", cfg.RateLimit.MaxRequestsPerWindow))
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window_seconds must be positive, got %d", cfg.RateLimit.WindowSeconds))
	}

	if cfg.Queue.Maxsize <= 0 {
		errs = append(errs, fmt.Errorf("queue.maxsize must be positive, got %d", cfg.Queue.Maxsize))
	}
	if cfg.Queue.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("queue.worker_count must be positive, got %d", cfg.Queue.WorkerCount))
	}

	if cfg.Session.Retention < 0 {
		errs = append(errs, fmt.Errorf("session.retention must not be negative, got %v", cfg.Session.Retention))
	}

	if cfg.Stream.PullTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stream.pull_timeout must be positive, got %v", cfg.Stream.PullTimeout))
	}
	if cfg.Stream.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_attempts must be positive, got %d", cfg.Stream.MaxAttempts))
	}
	if cfg.Stream.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("stream.backoff_base must be positive, got %v", cfg.Stream.BackoffBase))
	}

	if cfg.Breaker.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures must be positive, got %d", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout must be positive, got %v", cfg.Breaker.ResetTimeout))
	}
	if cfg.Breaker.HalfOpenMax <= 0 {
		errs = append(errs, fmt.Errorf("breaker.half_open_max must be positive, got %d", cfg.Breaker.HalfOpenMax))
	}

	if cfg.Providers.MockTone.IsEnabled() && cfg.Providers.MockTone.SampleRateHz <= 0 {
		errs = append(errs, fmt.Errorf("providers.mock_tone.sample_rate_hz must be positive, got %d", cfg.Providers.MockTone.SampleRateHz))
	}
	if cfg.Providers.Coqui.Enabled {
		if cfg.Providers.Coqui.BaseURL == "" {
			errs = append(errs, errors.New("providers.coqui.base_url is required when coqui is enabled"))
		}
		if cfg.Providers.Coqui.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("providers.coqui.timeout must be positive, got %v", cfg.Providers.Coqui.Timeout))
		}
	}

	if !cfg.Providers.MockTone.IsEnabled() && !cfg.Providers.Coqui.Enabled {
		errs = append(errs, errors.New("no synthesis provider enabled"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level onto slog's scale.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Window returns the rate-limit window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
