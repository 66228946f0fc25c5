package server

import (
	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/denoise"
)

// frameOutcome is the result of one frame pushed through a [framer].
type frameOutcome struct {
	Index  int
	Result denoise.Result
	Err    error
}

// framer cuts an arbitrary byte stream of little-endian 16-bit PCM into
// whole frames for a stream. Bytes that do not fill a frame are kept until
// the next push or a flush.
type framer struct {
	stream  app.Stream
	pending []byte
	in      []int16
	out     []int16
	frames  int
}

func newFramer(s app.Stream) *framer {
	n := s.FrameLen()
	return &framer{
		stream:  s,
		pending: make([]byte, 0, n*2),
		in:      make([]int16, n),
		out:     make([]int16, n),
	}
}

// frameBytes is the size of one encoded frame.
func (f *framer) frameBytes() int { return len(f.in) * 2 }

// buffered returns the number of bytes waiting for a full frame.
func (f *framer) buffered() int { return len(f.pending) }

// push appends data, processes every frame that is now complete and appends
// the encoded output to dst. A frame that fails is written as silence.
func (f *framer) push(data []byte, dst []byte) ([]byte, []frameOutcome) {
	var outcomes []frameOutcome
	fb := f.frameBytes()

	for len(data) > 0 {
		if len(f.pending) == 0 && len(data) >= fb {
			// Whole frame available without copying into pending.
			dst, outcomes = f.process(data[:fb], len(f.in), dst, outcomes)
			data = data[fb:]
			continue
		}
		n := min(fb-len(f.pending), len(data))
		f.pending = append(f.pending, data[:n]...)
		data = data[n:]
		if len(f.pending) == fb {
			dst, outcomes = f.process(f.pending, len(f.in), dst, outcomes)
			f.pending = f.pending[:0]
		}
	}
	return dst, outcomes
}

// flush zero-pads the buffered remainder to a full frame, processes it and
// appends only the samples that were buffered. A trailing odd byte is
// dropped. It returns false when there was nothing to flush.
func (f *framer) flush(dst []byte) ([]byte, []frameOutcome, bool) {
	samples := len(f.pending) / 2
	if samples == 0 {
		f.pending = f.pending[:0]
		return dst, nil, false
	}
	dst, outcomes := f.process(f.pending[:samples*2], samples, dst, nil)
	f.pending = f.pending[:0]
	return dst, outcomes, true
}

func (f *framer) process(raw []byte, samples int, dst []byte, outcomes []frameOutcome) ([]byte, []frameOutcome) {
	audio.DecodeS16LE(f.in, raw)
	clear(f.in[samples:])

	res, err := f.stream.Process(f.in, f.out)
	if err != nil {
		clear(f.out)
	}
	outcomes = append(outcomes, frameOutcome{Index: f.frames, Result: res, Err: err})
	f.frames++

	start := len(dst)
	dst = append(dst, make([]byte, samples*2)...)
	audio.EncodeS16LE(dst[start:], f.out[:samples])
	return dst, outcomes
}
