package denoise

import (
	"errors"
	"fmt"

	"github.com/MrWong99/hush/pkg/audio/resample"
)

// bridge converts frames between the ingest rate and the engine's native
// rate. The two resamplers keep their filter history for the lifetime of the
// bridge; nothing is reset between frames.
type bridge struct {
	up   resample.Resampler
	down resample.Resampler
}

func newBridge(f resample.Factory, channels, ingestRate, nativeRate int, q resample.Quality) (*bridge, error) {
	if q == LinearQuality {
		q = resample.MinQuality
	}
	up, err := f(channels, ingestRate, nativeRate, q)
	if err != nil {
		return nil, fmt.Errorf("create upsampler %d -> %d: %w", ingestRate, nativeRate, err)
	}
	down, err := f(channels, nativeRate, ingestRate, q)
	if err != nil {
		_ = up.Close()
		return nil, fmt.Errorf("create downsampler %d -> %d: %w", nativeRate, ingestRate, err)
	}
	return &bridge{up: up, down: down}, nil
}

// toNative upsamples one ingest frame into exactly len(out) native samples.
func (b *bridge) toNative(in, out []int16) error {
	if err := convert(b.up, in, out); err != nil {
		return fmt.Errorf("upsample: %w", err)
	}
	return nil
}

// fromNative downsamples one native frame into exactly len(out) ingest
// samples.
func (b *bridge) fromNative(in, out []int16) error {
	if err := convert(b.down, in, out); err != nil {
		return fmt.Errorf("downsample: %w", err)
	}
	return nil
}

func (b *bridge) close() error {
	return errors.Join(b.up.Close(), b.down.Close())
}

// convert feeds all of in through r and fills out. While the filter is still
// priming r may produce less than len(out); the remainder is zero-filled so
// frames stay sample-aligned.
func convert(r resample.Resampler, in, out []int16) error {
	produced := 0
	for len(in) > 0 || produced < len(out) {
		c, p, err := r.Process(in, out[produced:])
		if err != nil {
			return err
		}
		in = in[c:]
		produced += p
		if c == 0 && p == 0 {
			break
		}
	}
	if len(in) > 0 {
		return fmt.Errorf("resampler stalled with %d samples unconsumed", len(in))
	}
	clear(out[produced:])
	return nil
}
