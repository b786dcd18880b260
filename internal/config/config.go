// Package config provides the configuration schema, loader, hot-reload
// watcher, and provider factory registry for the voxgate server.
package config

import "time"

// LogLevel controls log verbosity for the voxgate server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxgate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
	Session   SessionConfig   `yaml:"session"`
	Stream    StreamConfig    `yaml:"stream"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Providers ProvidersConfig `yaml:"providers"`
	Transcode TranscodeConfig `yaml:"transcode"`
}

// ServerConfig holds network and logging settings for the voxgate server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RateLimitConfig tunes the per-origin fixed-window admission gate.
type RateLimitConfig struct {
	// MaxRequestsPerWindow is the per-origin quota per window.
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`

	// WindowSeconds is the fixed window length in seconds.
	WindowSeconds int `yaml:"window_seconds"`
}

// QueueConfig sizes the streaming work queue and its worker pool.
type QueueConfig struct {
	// Maxsize is the queue capacity; a full queue rejects new sessions.
	Maxsize int `yaml:"maxsize"`

	// WorkerCount is the number of concurrent streaming workers.
	WorkerCount int `yaml:"worker_count"`
}

// SessionConfig tunes session lifecycle behaviour.
type SessionConfig struct {
	// Retention is how long terminal sessions stay queryable. Zero deletes
	// them immediately on their terminal transition.
	Retention time.Duration `yaml:"retention"`

	// StrictVoiceOwnership rejects sessions whose voice belongs to a
	// different provider than the requested one.
	StrictVoiceOwnership bool `yaml:"strict_voice_ownership"`
}

// StreamConfig tunes the per-session pipeline.
type StreamConfig struct {
	// PullTimeout bounds each "pull next chunk" operation.
	PullTimeout time.Duration `yaml:"pull_timeout"`

	// MaxAttempts is the total number of synthesis attempts while no audio
	// has been sent yet.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// BreakerConfig tunes the per-provider circuit breakers.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before a breaker
	// opens.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a breaker stays open before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of probe calls allowed while half-open.
	HalfOpenMax int `yaml:"half_open_max"`
}

// ProvidersConfig declares which synthesis providers are enabled and how
// to reach them.
type ProvidersConfig struct {
	MockTone MockToneConfig `yaml:"mock_tone"`
	Coqui    CoquiConfig    `yaml:"coqui"`
}

// MockToneConfig configures the built-in deterministic tone provider.
type MockToneConfig struct {
	// Enabled turns the provider on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// SampleRateHz is the provider's native output rate.
	SampleRateHz int `yaml:"sample_rate_hz"`
}

// CoquiConfig configures the Coqui TTS HTTP adapter.
type CoquiConfig struct {
	// Enabled turns the provider on. Defaults to false.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the Coqui server address (e.g., "http://localhost:5002").
	BaseURL string `yaml:"base_url"`

	// ModelName optionally names the model for logging and /details lookups.
	ModelName string `yaml:"model_name"`

	// Language is the default synthesis language.
	Language string `yaml:"language"`

	// Timeout bounds each synthesis HTTP call.
	Timeout time.Duration `yaml:"timeout"`
}

// TranscodeConfig tunes the audio transcoder.
type TranscodeConfig struct {
	// FFmpegPath overrides the ffmpeg binary used for mp3 encoding.
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// Defaults returns the configuration used when no file or field is given.
func Defaults() *Config {
	enabled := true
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerWindow: 50,
			WindowSeconds:        60,
		},
		Queue: QueueConfig{
			Maxsize:     100,
			WorkerCount: 8,
		},
		Session: SessionConfig{
			Retention: 15 * time.Minute,
		},
		Stream: StreamConfig{
			PullTimeout: 10 * time.Second,
			MaxAttempts: 3,
			BackoffBase: 200 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  3,
		},
		Providers: ProvidersConfig{
			MockTone: MockToneConfig{
				Enabled:      &enabled,
				SampleRateHz: 16000,
			},
			Coqui: CoquiConfig{
				Timeout: 30 * time.Second,
			},
		},
	}
}

// IsEnabled resolves the tri-state enable flag; unset means enabled.
func (c MockToneConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
