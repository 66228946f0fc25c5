package denoise

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every error returned by this package wraps exactly one of
// the first four so callers can branch with errors.Is.
var (
	// ErrInvalidArgument reports a caller error: bad configuration, a frame of
	// the wrong length, or use after Close. Never worth retrying.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfMemory reports that a per-channel engine session or buffer
	// could not be allocated during construction.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrModel reports that the model reference was rejected by the resolver
	// or could not be loaded by the engine.
	ErrModel = errors.New("model error")

	// ErrExternalEngine reports a failure inside the inference engine or a
	// resampler while processing a frame.
	ErrExternalEngine = errors.New("external engine error")

	// ErrClosed is returned by Process after Close. It wraps
	// ErrInvalidArgument.
	ErrClosed = fmt.Errorf("denoiser closed: %w", ErrInvalidArgument)
)

// Kind maps err to a short stable code for metrics attributes and API
// responses: "invalid_argument", "out_of_memory", "model", "external_engine",
// or "unknown". A nil error maps to "".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrModel):
		return "model"
	case errors.Is(err, ErrExternalEngine):
		return "external_engine"
	default:
		return "unknown"
	}
}
