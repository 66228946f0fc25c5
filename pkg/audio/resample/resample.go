package resample

import (
	"errors"
	"fmt"
)

// Quality selects the resampling engine and filter quality, from 0 (fastest)
// to 10 (best).
type Quality int

const (
	MinQuality     Quality = 0
	MaxQuality     Quality = 10
	DefaultQuality Quality = 4
	VoIPQuality    Quality = 3
)

// IsValid reports whether q is within [MinQuality, MaxQuality].
func (q Quality) IsValid() bool {
	return q >= MinQuality && q <= MaxQuality
}

var (
	// ErrInvalidConfig is returned by constructors for unusable parameters.
	ErrInvalidConfig = errors.New("resample: invalid configuration")

	// ErrClosed is returned by Process after Close.
	ErrClosed = errors.New("resample: resampler closed")
)

// Resampler converts a continuous stream of interleaved int16 samples from
// one rate to another.
//
// Process consumes up to len(in) samples and writes up to len(out) samples,
// returning the actual counts. Both counts are always multiples of the
// channel count. Implementations are not safe for concurrent use.
type Resampler interface {
	Process(in, out []int16) (consumed, produced int, err error)
	Close() error
}

// Factory creates a [Resampler]. [New] is the default factory.
type Factory func(channels, inRate, outRate int, quality Quality) (Resampler, error)

// New returns a [Linear] resampler for quality 0 and a [Soxr] resampler for
// quality 1..10.
func New(channels, inRate, outRate int, quality Quality) (Resampler, error) {
	if err := validate(channels, inRate, outRate); err != nil {
		return nil, err
	}
	if !quality.IsValid() {
		return nil, fmt.Errorf("%w: quality %d outside [%d, %d]", ErrInvalidConfig, quality, MinQuality, MaxQuality)
	}
	if quality == MinQuality {
		return NewLinear(channels, inRate, outRate)
	}
	return NewSoxr(channels, inRate, outRate, quality)
}

func validate(channels, inRate, outRate int) error {
	if channels < 1 {
		return fmt.Errorf("%w: channels %d", ErrInvalidConfig, channels)
	}
	if inRate <= 0 || outRate <= 0 {
		return fmt.Errorf("%w: rates %d -> %d", ErrInvalidConfig, inRate, outRate)
	}
	return nil
}

// fifo holds resampled samples that did not fit the caller's buffer.
type fifo struct {
	buf []int16
}

func (f *fifo) push(s []int16) {
	f.buf = append(f.buf, s...)
}

func (f *fifo) drain(out []int16) int {
	n := copy(out, f.buf)
	f.buf = f.buf[:copy(f.buf, f.buf[n:])]
	return n
}

func (f *fifo) len() int { return len(f.buf) }

// frameAligned truncates s to a whole number of interleaved frames.
func frameAligned(s []int16, channels int) []int16 {
	return s[:len(s)/channels*channels]
}
