package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineFields lists the YAML names of changed pipeline fields in
	// schema order. Pipeline changes apply to sessions opened afterwards.
	PipelineFields []string

	// ServerChanged is true if listen_addr, max_sessions or tls changed.
	// Those only take effect after a restart.
	ServerChanged bool
}

// PipelineChanged reports whether any pipeline field changed.
func (d ConfigDiff) PipelineChanged() bool { return len(d.PipelineFields) > 0 }

// Empty reports whether the two configs were equivalent.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PipelineChanged() && !d.ServerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	d.PipelineFields = diffPipeline(&old.Pipeline, &new.Pipeline)

	a, b := old.Server, new.Server
	if a.ListenAddr != b.ListenAddr || a.MaxSessions != b.MaxSessions {
		d.ServerChanged = true
	}
	if !equalPtr(a.TLS, b.TLS) {
		d.ServerChanged = true
	}

	return d
}

// diffPipeline returns the YAML names of the fields that differ.
func diffPipeline(old, new *PipelineConfig) []string {
	var fields []string
	add := func(changed bool, name string) {
		if changed {
			fields = append(fields, name)
		}
	}
	add(old.Engine != new.Engine, "engine")
	add(!slices.Equal(old.FallbackEngines, new.FallbackEngines), "fallback_engines")
	add(!reflect.DeepEqual(old.Options, new.Options), "options")
	add(old.Model != new.Model, "model")
	add(old.Channels != new.Channels, "channels")
	add(old.SampleRate != new.SampleRate, "sample_rate")
	add(!equalPtr(old.ResampleQuality, new.ResampleQuality), "resample_quality")
	add(!equalPtr(old.VADThreshold, new.VADThreshold), "vad_threshold")
	add(old.VADOutput != new.VADOutput, "vad_output")
	add(old.Stats != new.Stats, "stats")
	return fields
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
