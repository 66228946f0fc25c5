package resample

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Soxr is a streaming polyphase resampler backed by the pure Go libsoxr port.
// Samples are normalised to [-1, 1) on the way in and saturated on the way
// out. Each channel runs through its own filter.
//
// The filter history is primed with silence at construction, so the first
// block of input already produces output, delayed by the filter's group
// delay.
type Soxr struct {
	channels  int
	resampler resampling.Resampler

	planes  [][]float64
	scratch []int16
	pending fifo
	closed  bool
}

// maxPrimeBlocks bounds priming to one second of silence.
const maxPrimeBlocks = 100

// NewSoxr creates a [Soxr] resampler. quality must be in 1..10.
func NewSoxr(channels, inRate, outRate int, quality Quality) (*Soxr, error) {
	if err := validate(channels, inRate, outRate); err != nil {
		return nil, err
	}
	if quality < 1 || quality > MaxQuality {
		return nil, fmt.Errorf("%w: soxr quality %d outside [1, %d]", ErrInvalidConfig, quality, MaxQuality)
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inRate),
		OutputRate: float64(outRate),
		Channels:   channels,
		Quality:    qualitySpec(quality),
	})
	if err != nil {
		return nil, fmt.Errorf("resample: create soxr %d -> %d: %w", inRate, outRate, err)
	}
	s := &Soxr{
		channels:  channels,
		resampler: r,
		planes:    make([][]float64, channels),
	}
	if err := s.prime(max(inRate/100, 1)); err != nil {
		return nil, fmt.Errorf("resample: prime soxr %d -> %d: %w", inRate, outRate, err)
	}
	return s, nil
}

// prime feeds blocks of silence until the filter emits its first output,
// which is discarded.
func (s *Soxr) prime(block int) error {
	silence := make([][]float64, s.channels)
	for c := range silence {
		silence[c] = make([]float64, block)
	}
	for range maxPrimeBlocks {
		out, err := s.resample(silence)
		if err != nil {
			return err
		}
		if len(out[0]) > 0 {
			return nil
		}
	}
	return nil
}

func (s *Soxr) resample(planes [][]float64) ([][]float64, error) {
	if s.channels == 1 {
		out, err := s.resampler.Process(planes[0])
		if err != nil {
			return nil, err
		}
		return [][]float64{out}, nil
	}
	return s.resampler.ProcessMulti(planes)
}

// qualitySpec maps the 0..10 scale onto the library presets.
func qualitySpec(q Quality) resampling.QualitySpec {
	switch {
	case q <= 2:
		return resampling.QualitySpec{Preset: resampling.QualityQuick}
	case q <= 4:
		return resampling.QualitySpec{Preset: resampling.QualityLow}
	case q <= 6:
		return resampling.QualitySpec{Preset: resampling.QualityMedium}
	case q <= 8:
		return resampling.QualitySpec{Preset: resampling.QualityHigh}
	default:
		return resampling.QualitySpec{Preset: resampling.QualityVeryHigh}
	}
}

// Process implements [Resampler]. The whole of in is always consumed; output
// beyond len(out) is kept for the next call.
func (s *Soxr) Process(in, out []int16) (int, int, error) {
	if s.closed {
		return 0, 0, ErrClosed
	}
	in = frameAligned(in, s.channels)

	if len(in) > 0 {
		frames := len(in) / s.channels
		for c := range s.planes {
			s.planes[c] = s.planes[c][:0]
			for i := range frames {
				s.planes[c] = append(s.planes[c], float64(in[i*s.channels+c])/32768.0)
			}
		}
		output, err := s.resample(s.planes)
		if err != nil {
			return 0, 0, fmt.Errorf("resample: soxr process: %w", err)
		}
		n := len(output[0])
		for _, o := range output[1:] {
			n = min(n, len(o))
		}
		s.scratch = s.scratch[:0]
		for i := range n {
			for _, o := range output {
				s.scratch = append(s.scratch, saturate(o[i]*32768.0))
			}
		}
		s.pending.push(s.scratch)
	}

	produced := s.pending.drain(frameAligned(out, s.channels))
	return len(in), produced, nil
}

// Close releases the resampler. Further Process calls return [ErrClosed].
func (s *Soxr) Close() error {
	s.closed = true
	s.resampler = nil
	s.pending.buf = nil
	return nil
}

func saturate(v float64) int16 {
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	case math.IsNaN(v):
		return 0
	}
	return int16(math.Round(v))
}
