package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/hush/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_EquivalentCopies(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	old.Pipeline.Options = map[string]any{"score": 0.5, "nested": map[string]any{"a": 1}}
	new.Pipeline.Options = map[string]any{"score": 0.5, "nested": map[string]any{"a": 1}}

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("distinct but equal configs should not diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{LogLevel: config.LogInfo}
	new := &config.Config{LogLevel: config.LogDebug}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.PipelineChanged() || d.ServerChanged {
		t.Errorf("only the log level changed, got %+v", d)
	}
}

func TestDiff_PipelineFields(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Pipeline = old.Pipeline.Clone()
	new.Pipeline.Engine = config.EnginePassthrough
	new.Pipeline.FallbackEngines = []string{config.EngineGate}
	new.Pipeline.SampleRate = 16000
	*new.Pipeline.VADThreshold = 0.8
	new.Pipeline.VADOutput = true

	d := config.Diff(old, new)
	want := []string{"engine", "fallback_engines", "sample_rate", "vad_threshold", "vad_output"}
	if !slices.Equal(d.PipelineFields, want) {
		t.Errorf("PipelineFields = %v, want %v", d.PipelineFields, want)
	}
	if d.LogLevelChanged || d.ServerChanged {
		t.Errorf("only the pipeline changed, got %+v", d)
	}
}

func TestDiff_QualityUnsetVersusExplicit(t *testing.T) {
	t.Parallel()
	zero := 0
	old := &config.Config{}
	new := &config.Config{Pipeline: config.PipelineConfig{ResampleQuality: &zero}}

	d := config.Diff(old, new)
	if !slices.Equal(d.PipelineFields, []string{"resample_quality"}) {
		t.Errorf("PipelineFields = %v, want [resample_quality]", d.PipelineFields)
	}
}

func TestDiff_ServerChanged(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }},
		{"max sessions", func(c *config.Config) { c.Server.MaxSessions = 1 }},
		{"tls enabled", func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !d.ServerChanged {
				t.Error("expected ServerChanged=true")
			}
			if d.PipelineChanged() {
				t.Errorf("pipeline should be unchanged, got %v", d.PipelineFields)
			}
		})
	}
}

func TestDiff_TLSFilesChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	old.Server.TLS = &config.TLSConfig{CertFile: "a.pem", KeyFile: "k.pem"}
	new.Server.TLS = &config.TLSConfig{CertFile: "b.pem", KeyFile: "k.pem"}
	if !config.Diff(old, new).ServerChanged {
		t.Error("expected ServerChanged=true when the certificate path changes")
	}
}
