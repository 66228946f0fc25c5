package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/hush/pkg/audio/resample"
	"github.com/MrWong99/hush/pkg/denoise"
)

// ValidEngineNames lists the engines built into hush.
// Used by [Validate] to warn about unrecognised engine names.
var ValidEngineNames = []string{EngineGate, EngineRNNoise, EnginePassthrough}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	errs = append(errs, ValidatePipeline(cfg.Pipeline)...)

	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	return errors.Join(errs...)
}

// ValidatePipeline checks the hard constraints of a pipeline configuration
// and logs warnings for values the core will replace with defaults. Zero
// channel and sample-rate values are accepted as unset.
func ValidatePipeline(p PipelineConfig) []error {
	var errs []error

	validateEngineName(p.Engine)
	for _, name := range p.FallbackEngines {
		validateEngineName(name)
		if name == p.Engine {
			errs = append(errs, fmt.Errorf("pipeline.fallback_engines lists the primary engine %q", name))
		}
	}

	if p.Channels != 0 && p.Channels != 1 && p.Channels != 2 {
		errs = append(errs, fmt.Errorf("pipeline.channels %d is invalid; valid values: 1, 2", p.Channels))
	}
	if p.SampleRate != 0 {
		if p.SampleRate < denoise.MinSampleRate || p.SampleRate > denoise.MaxSampleRate {
			errs = append(errs, fmt.Errorf("pipeline.sample_rate %d is out of range [%d, %d]",
				p.SampleRate, denoise.MinSampleRate, denoise.MaxSampleRate))
		} else if p.SampleRate%100 != 0 {
			errs = append(errs, fmt.Errorf("pipeline.sample_rate %d must be a multiple of 100", p.SampleRate))
		}
	}

	if q := p.ResampleQuality; q != nil && !resample.Quality(*q).IsValid() {
		slog.Warn("pipeline.resample_quality out of range; using default",
			"resample_quality", *q,
			"default", int(resample.DefaultQuality),
		)
	}
	if v := p.VADThreshold; v != nil && (math.IsNaN(*v) || *v <= 0 || *v > 1) {
		slog.Warn("pipeline.vad_threshold out of range; using default",
			"vad_threshold", *v,
			"default", denoise.DefaultVADThreshold,
		)
	}

	return errs
}

// validateEngineName logs a warning if name is non-empty and not one of
// [ValidEngineNames].
func validateEngineName(name string) {
	if name == "" || slices.Contains(ValidEngineNames, name) {
		return
	}
	slog.Warn("unknown engine name; may be a typo or a third-party engine",
		"name", name,
		"known", ValidEngineNames,
	)
}
