// Package ns defines the Engine interface for noise-suppression backends.
//
// An ns engine wraps a frame-level denoiser (e.g., RNNoise or a spectral gate)
// and surfaces it as a stateful, per-channel session. Each session carries its
// own filter history so that several channels can be processed independently
// and concurrently, one session per goroutine.
//
// All sessions operate at the engine's single native rate: [SampleRate] Hz,
// [FrameSize] samples per call. Samples are float32 values in the native int16
// range, not normalised to [-1, 1].
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package ns

const (
	// SampleRate is the native sample rate of every engine.
	SampleRate = 48000

	// FrameSize is the number of samples per ProcessFrame call (10 ms at
	// SampleRate).
	FrameSize = 480
)

// Model is a loaded, immutable set of engine weights or parameters. A Model is
// shared read-only by all sessions created from it and must outlive them.
type Model interface {
	// Close releases the model. Calling Close more than once is safe.
	Close() error
}

// SessionHandle is the denoising state for one audio channel. It is an
// interface so that test code can supply mock implementations without a live
// engine.
type SessionHandle interface {
	// ProcessFrame denoises exactly [FrameSize] samples from in into out and
	// returns the voice-activity probability for the frame in [0, 1]. in and
	// out may be the same slice.
	//
	// ProcessFrame has no error return. A score outside [0, 1] or NaN is
	// treated by callers as an engine failure.
	ProcessFrame(in, out []float32) float32

	// Close releases the session. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for models and sessions. It is the top-level interface
// implemented by each noise-suppression backend.
type Engine interface {
	// LoadModel loads the model at path. An empty path selects the engine's
	// built-in model. The caller owns the returned Model.
	LoadModel(path string) (Model, error)

	// NewSession creates a fresh per-channel session using m, which must come
	// from this engine's LoadModel.
	NewSession(m Model) (SessionHandle, error)
}
