package resample

import "math"

// Linear is a streaming linear-interpolation resampler. The read phase is
// tracked as an exact rational number so long streams do not drift.
type Linear struct {
	channels int
	inRate   int64
	outRate  int64

	// phase is the read position in units of 1/outRate input frames,
	// relative to the last frame of the previous chunk.
	phase int64
	last  []int16

	pending fifo
	scratch []int16
	closed  bool
}

// NewLinear creates a [Linear] resampler. The filter history starts as
// silence.
func NewLinear(channels, inRate, outRate int) (*Linear, error) {
	if err := validate(channels, inRate, outRate); err != nil {
		return nil, err
	}
	g := gcd(inRate, outRate)
	return &Linear{
		channels: channels,
		inRate:   int64(inRate / g),
		outRate:  int64(outRate / g),
		last:     make([]int16, channels),
	}, nil
}

// Process implements [Resampler].
func (l *Linear) Process(in, out []int16) (int, int, error) {
	if l.closed {
		return 0, 0, ErrClosed
	}
	ch := l.channels
	in = frameAligned(in, ch)
	frames := int64(len(in) / ch)

	if frames > 0 {
		l.scratch = l.scratch[:0]
		// Virtual input: index 0 is l.last, index k is in frame k-1.
		for l.phase < frames*l.outRate {
			i := l.phase / l.outRate
			frac := float64(l.phase%l.outRate) / float64(l.outRate)
			for c := range ch {
				var a float64
				if i == 0 {
					a = float64(l.last[c])
				} else {
					a = float64(in[(i-1)*int64(ch)+int64(c)])
				}
				b := float64(in[i*int64(ch)+int64(c)])
				l.scratch = append(l.scratch, int16(math.Round(a+(b-a)*frac)))
			}
			l.phase += l.inRate
		}
		l.phase -= frames * l.outRate
		copy(l.last, in[len(in)-ch:])
		l.pending.push(l.scratch)
	}

	produced := l.pending.drain(frameAligned(out, ch))
	return len(in), produced, nil
}

// Close releases the resampler. Further Process calls return [ErrClosed].
func (l *Linear) Close() error {
	l.closed = true
	l.pending.buf = nil
	l.scratch = nil
	return nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
