// Package config provides the configuration schema, loader, and engine
// registry for hush.
package config

import (
	"maps"
	"slices"

	"github.com/MrWong99/hush/pkg/audio/resample"
	"github.com/MrWong99/hush/pkg/denoise"
)

// LogLevel controls log verbosity.
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

// Built-in engine names. Each is registered in the [Registry] by cmd/hush.
const (
	EngineGate        = "gate"
	EngineRNNoise     = "rnnoise"
	EnginePassthrough = "passthrough"
)

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultEngine      = EngineGate
	DefaultModel       = "embedded"
	DefaultListenAddr  = ":8080"
	DefaultMaxSessions = 16
)

// Config is the root configuration structure for hush.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// PipelineConfig describes the denoising pipeline applied to every stream.
type PipelineConfig struct {
	// Engine selects the registered noise-suppression engine.
	Engine string `yaml:"engine"`

	// FallbackEngines are tried in order when the engine cannot load its
	// model. Fallbacks always use their built-in model.
	FallbackEngines []string `yaml:"fallback_engines"`

	// Options holds engine-specific values not covered by the fields below.
	Options map[string]any `yaml:"options"`

	// Model is a preset name ("embedded") or a path to a model file.
	Model string `yaml:"model"`

	// Channels is the interleaved channel count: 1 or 2.
	Channels int `yaml:"channels"`

	// SampleRate is the ingest rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// ResampleQuality selects the rate bridge resampler, 0..10. A pointer so
	// that an explicit 0 (linear interpolation) differs from unset.
	ResampleQuality *int `yaml:"resample_quality"`

	// VADThreshold is the speech decision threshold in (0, 1]. Zero selects
	// the default.
	VADThreshold *float64 `yaml:"vad_threshold"`

	// VADOutput enables per-frame VAD results.
	VADOutput bool `yaml:"vad_output"`

	// Stats enables the statistics report after batch processing.
	Stats bool `yaml:"stats"`
}

// ServerConfig holds network settings for hush serve.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MaxSessions caps concurrently open denoising sessions across both the
	// request and the streaming endpoint. Zero selects DefaultMaxSessions.
	MaxSessions int `yaml:"max_sessions"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds paths to TLS certificate and key files.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogInfo
	}
	p := &c.Pipeline
	if p.Engine == "" {
		p.Engine = DefaultEngine
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Channels == 0 {
		p.Channels = 1
	}
	if p.SampleRate == 0 {
		p.SampleRate = 48000
	}
	if p.ResampleQuality == nil {
		q := int(resample.DefaultQuality)
		p.ResampleQuality = &q
	}
	if p.VADThreshold == nil {
		v := float64(denoise.DefaultVADThreshold)
		p.VADThreshold = &v
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.MaxSessions == 0 {
		c.Server.MaxSessions = DefaultMaxSessions
	}
}

// Denoise converts p into the core stream configuration. An explicit
// resample_quality of 0 maps to denoise.LinearQuality. Unset or out-of-range
// soft fields are left for the core to default.
func (p PipelineConfig) Denoise() denoise.Config {
	cfg := denoise.Config{
		Channels:        p.Channels,
		SampleRate:      p.SampleRate,
		ResampleQuality: resample.DefaultQuality,
		Model:           p.Model,
		VADThreshold:    denoise.DefaultVADThreshold,
		VADOutput:       p.VADOutput,
	}
	if q := p.ResampleQuality; q != nil {
		cfg.ResampleQuality = resample.Quality(*q)
		if *q == int(resample.MinQuality) {
			cfg.ResampleQuality = denoise.LinearQuality
		}
	}
	if p.VADThreshold != nil {
		cfg.VADThreshold = float32(*p.VADThreshold)
	}
	return cfg
}

// Clone returns a deep copy of p.
func (p PipelineConfig) Clone() PipelineConfig {
	out := p
	if p.ResampleQuality != nil {
		q := *p.ResampleQuality
		out.ResampleQuality = &q
	}
	if p.VADThreshold != nil {
		v := *p.VADThreshold
		out.VADThreshold = &v
	}
	out.FallbackEngines = slices.Clone(p.FallbackEngines)
	out.Options = maps.Clone(p.Options)
	return out
}
