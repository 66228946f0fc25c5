package denoise

import (
	"log/slog"
	"math"

	"github.com/MrWong99/hush/pkg/audio/resample"
	"github.com/MrWong99/hush/pkg/provider/ns"
	"github.com/MrWong99/hush/pkg/provider/ns/gate"
)

// Ingest sample-rate bounds and defaults.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000

	DefaultVADThreshold float32 = 0.5

	// LinearQuality selects the linear-interpolation bridge. A zero
	// ResampleQuality means resample.DefaultQuality, so linear needs its own
	// value.
	LinearQuality resample.Quality = -1
)

// Config describes one audio stream. Zero values select defaults.
type Config struct {
	// Channels is the interleaved channel count: 1 or 2.
	Channels int

	// SampleRate is the ingest rate in Hz. Zero means ns.SampleRate. Any
	// other rate is bridged to and from the engine's native rate.
	SampleRate int

	// ResampleQuality selects the bridge resampler, 1..10, or LinearQuality.
	// Zero and other values outside that range fall back to
	// resample.DefaultQuality.
	ResampleQuality resample.Quality

	// Model is passed through the model resolver to Engine.LoadModel. Empty
	// selects the engine's built-in model.
	Model string

	// VADThreshold is the score at or above which a frame counts as speech.
	// Values outside (0, 1], including zero and NaN, fall back to
	// DefaultVADThreshold.
	VADThreshold float32

	// VADOutput enables populating the Result of each Process call.
	VADOutput bool
}

// withDefaults returns cfg with unset or out-of-range soft fields replaced.
// Channel count and sample rate are hard errors and are checked by New.
func (cfg Config) withDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = ns.SampleRate
	}
	if q := cfg.ResampleQuality; q != LinearQuality && (q <= resample.MinQuality || q > resample.MaxQuality) {
		cfg.ResampleQuality = resample.DefaultQuality
	}
	if v := cfg.VADThreshold; math.IsNaN(float64(v)) || v <= 0 || v > 1 {
		cfg.VADThreshold = DefaultVADThreshold
	}
	return cfg
}

// ModelResolver maps a model reference (preset name or path) to the path
// handed to Engine.LoadModel, or rejects it.
type ModelResolver func(ref string) (string, error)

type options struct {
	engine    ns.Engine
	resampler resample.Factory
	resolve   ModelResolver
	logger    *slog.Logger
}

// Option configures optional dependencies of a [Denoiser].
type Option func(*options)

// WithEngine sets the noise-suppression engine. The default is the pure Go
// gate engine.
func WithEngine(e ns.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithResamplerFactory sets the factory used to build the rate bridge. The
// default is resample.New.
func WithResamplerFactory(f resample.Factory) Option {
	return func(o *options) { o.resampler = f }
}

// WithModelResolver sets the resolver applied to Config.Model before it is
// loaded. The default passes the reference through unchanged.
func WithModelResolver(r ModelResolver) Option {
	return func(o *options) { o.resolve = r }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		resampler: resample.New,
		resolve:   func(ref string) (string, error) { return ref, nil },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine == nil {
		o.engine = gate.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
