package server

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/denoise"
)

// negateStream negates every sample and can fail a chosen frame.
type negateStream struct {
	frameLen int
	failAt   int // one-based; zero never fails
	calls    int
}

func (s *negateStream) FrameLen() int { return s.frameLen }

func (s *negateStream) Process(in, out []int16) (denoise.Result, error) {
	s.calls++
	if s.calls == s.failAt {
		return denoise.Result{}, denoise.ErrExternalEngine
	}
	for i, v := range in {
		out[i] = -v
	}
	return denoise.Result{VADProbability: 0.25}, nil
}

func encode(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	audio.EncodeS16LE(b, samples)
	return b
}

func seq(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i + 1)
	}
	return s
}

func TestFramer_ArbitraryChunks(t *testing.T) {
	t.Parallel()

	const frameLen = 8
	samples := seq(3*frameLen + 3)
	raw := encode(samples)

	for _, chunk := range []int{1, 3, 7, 16, 17, 100} {
		s := &negateStream{frameLen: frameLen}
		f := newFramer(s)

		var out []byte
		var frames int
		for off := 0; off < len(raw); off += chunk {
			end := min(off+chunk, len(raw))
			var outcomes []frameOutcome
			out, outcomes = f.push(raw[off:end], out)
			frames += len(outcomes)
		}
		if frames != 3 {
			t.Fatalf("chunk %d: got %d frames, want 3", chunk, frames)
		}
		if f.buffered() != 6 {
			t.Fatalf("chunk %d: buffered %d bytes, want 6", chunk, f.buffered())
		}

		out, outcomes, ok := f.flush(out)
		if !ok || len(outcomes) != 1 || outcomes[0].Index != 3 {
			t.Fatalf("chunk %d: flush = %v, %+v", chunk, ok, outcomes)
		}

		want := make([]int16, len(samples))
		for i, v := range samples {
			want[i] = -v
		}
		if !bytes.Equal(out, encode(want)) {
			t.Fatalf("chunk %d: output mismatch", chunk)
		}
	}
}

func TestFramer_FlushPadsWithZeros(t *testing.T) {
	t.Parallel()

	var seen []int16
	s := &recordStream{frameLen: 4, seen: &seen}
	f := newFramer(s)

	f.push(encode([]int16{7, 8}), nil)
	out, _, ok := f.flush(nil)
	if !ok {
		t.Fatal("flush reported nothing buffered")
	}
	if len(out) != 4 {
		t.Fatalf("flush wrote %d bytes, want 4", len(out))
	}
	if want := []int16{7, 8, 0, 0}; !slices.Equal(seen, want) {
		t.Fatalf("engine saw %v, want %v", seen, want)
	}
}

func TestFramer_FlushEmpty(t *testing.T) {
	t.Parallel()

	f := newFramer(&negateStream{frameLen: 4})
	f.push([]byte{1}, nil) // one stray byte
	out, outcomes, ok := f.flush(nil)
	if ok || len(out) != 0 || len(outcomes) != 0 {
		t.Fatalf("flush = %v, %d bytes, %d outcomes; want nothing", ok, len(out), len(outcomes))
	}
	if f.buffered() != 0 {
		t.Fatalf("buffered = %d after flush, want 0", f.buffered())
	}
}

func TestFramer_FailedFrameIsMuted(t *testing.T) {
	t.Parallel()

	f := newFramer(&negateStream{frameLen: 4, failAt: 2})
	out, outcomes := f.push(encode(seq(12)), nil)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	if !errors.Is(outcomes[1].Err, denoise.ErrExternalEngine) {
		t.Fatalf("frame 1 err = %v, want ErrExternalEngine", outcomes[1].Err)
	}
	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("unexpected errors: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}

	got := make([]int16, 12)
	audio.DecodeS16LE(got, out)
	want := []int16{-1, -2, -3, -4, 0, 0, 0, 0, -9, -10, -11, -12}
	if !slices.Equal(got, want) {
		t.Fatalf("output = %v, want %v", got, want)
	}
}

type recordStream struct {
	frameLen int
	seen     *[]int16
}

func (s *recordStream) FrameLen() int { return s.frameLen }

func (s *recordStream) Process(in, out []int16) (denoise.Result, error) {
	*s.seen = append(*s.seen, in...)
	copy(out, in)
	return denoise.Result{}, nil
}
