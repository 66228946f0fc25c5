// Package mock provides a test double for [resample.Resampler].
//
// The mock maps input to output by nearest-neighbour index scaling so tests
// can predict every output sample. Failures and short output are injectable.
package mock

import (
	"sync"

	"github.com/MrWong99/hush/pkg/audio/resample"
)

var _ resample.Resampler = (*Resampler)(nil)

// ProcessCall records a single Process invocation.
type ProcessCall struct {
	InLen  int
	OutLen int
}

// Resampler is a configurable [resample.Resampler]. The zero value fills out
// completely from in. It is safe for concurrent inspection.
type Resampler struct {
	mu sync.Mutex

	// Channels is the interleaved channel count. Zero means mono.
	Channels int

	// ProcessErr, when non-nil, is returned by every Process call.
	ProcessErr error

	// FailAfter makes Process fail with ProcessErr only after this many
	// successful calls.
	FailAfter int

	// ShortBy reduces the number of produced samples per call.
	ShortBy int

	// CloseErr is returned by Close.
	CloseErr error

	calls  []ProcessCall
	closed bool
}

// Process implements [resample.Resampler].
func (r *Resampler) Process(in, out []int16) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, ProcessCall{InLen: len(in), OutLen: len(out)})
	if r.closed {
		return 0, 0, resample.ErrClosed
	}
	if r.ProcessErr != nil && len(r.calls) > r.FailAfter {
		return 0, 0, r.ProcessErr
	}

	ch := max(r.Channels, 1)
	inFrames := len(in) / ch
	outFrames := max(len(out)/ch-r.ShortBy/ch, 0)
	if inFrames == 0 {
		return 0, 0, nil
	}
	for f := range outFrames {
		src := f * inFrames / (len(out) / ch)
		for c := range ch {
			out[f*ch+c] = in[src*ch+c]
		}
	}
	return inFrames * ch, outFrames * ch, nil
}

// Close implements [resample.Resampler].
func (r *Resampler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.CloseErr
}

// Calls returns a copy of all recorded Process invocations.
func (r *Resampler) Calls() []ProcessCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProcessCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Closed reports whether Close has been called.
func (r *Resampler) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Factory returns a [resample.Factory] that hands out the given resamplers in
// order and records the requested rates and qualities. When the list is exhausted it
// returns fresh zero-value mocks.
type Factory struct {
	mu        sync.Mutex
	queue     []*Resampler
	Requests  [][3]int
	Qualities []resample.Quality
	CreateErr error
}

// NewFactory creates a Factory that returns rs in order.
func NewFactory(rs ...*Resampler) *Factory {
	return &Factory{queue: rs}
}

// New satisfies the [resample.Factory] signature.
func (f *Factory) New(channels, inRate, outRate int, q resample.Quality) (resample.Resampler, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, [3]int{channels, inRate, outRate})
	f.Qualities = append(f.Qualities, q)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if len(f.queue) == 0 {
		return &Resampler{Channels: channels}, nil
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	if r.Channels == 0 {
		r.Channels = channels
	}
	return r, nil
}
