package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/denoise"
)

// DefaultProgressEvery is the number of frames between progress reports.
const DefaultProgressEvery = 100

// Stream is the per-frame contract a [Runner] drives. [*Session] and
// [*denoise.Denoiser] both satisfy it.
type Stream interface {
	FrameLen() int
	Process(in, out []int16) (denoise.Result, error)
}

// Progress reports how far a [Runner] got.
type Progress struct {
	// Frames is the number of frames processed so far.
	Frames int

	// Samples is the number of interleaved samples read from the input and
	// written to the output.
	Samples int64

	// Final is set on the report for a short trailing frame, after which the
	// input is exhausted.
	Final bool
}

// Runner pushes raw little-endian 16-bit PCM from a reader through a
// [Stream] in whole frames and writes the result to a writer.
//
// A short trailing frame is zero-padded before processing and only the
// samples that were actually read are written back. Processing stops at the
// first failing frame; frames written before it stay written.
type Runner struct {
	// ProgressEvery is the number of frames between OnProgress calls.
	// Zero selects DefaultProgressEvery.
	ProgressEvery int

	// OnProgress, if set, is called every ProgressEvery frames and once more
	// for a short trailing frame.
	OnProgress func(Progress)

	// OnResult, if set, receives the VAD result of every frame.
	OnResult func(frame int, res denoise.Result)
}

// Run processes src until EOF, ctx cancellation or the first error and
// returns the progress reached.
func (r Runner) Run(ctx context.Context, s Stream, src io.Reader, dst io.Writer) (Progress, error) {
	every := r.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}

	frameLen := s.FrameLen()
	raw := make([]byte, frameLen*2)
	in := make([]int16, frameLen)
	out := make([]int16, frameLen)

	var p Progress
	for {
		if err := ctx.Err(); err != nil {
			return p, err
		}

		n, err := io.ReadFull(src, raw)
		short := false
		switch {
		case errors.Is(err, io.EOF):
			return p, nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			short = true
		case err != nil:
			return p, fmt.Errorf("app: read frame %d: %w", p.Frames, err)
		}

		samples := audio.DecodeS16LE(in, raw[:n])
		if samples == 0 {
			// A single stray byte: nothing to process.
			return p, nil
		}
		clear(in[samples:])

		res, err := s.Process(in, out)
		if err != nil {
			return p, fmt.Errorf("app: frame %d: %w", p.Frames, err)
		}

		nb := audio.EncodeS16LE(raw, out[:samples])
		if _, err := dst.Write(raw[:nb]); err != nil {
			return p, fmt.Errorf("app: write frame %d: %w", p.Frames, err)
		}

		if r.OnResult != nil {
			r.OnResult(p.Frames, res)
		}
		p.Frames++
		p.Samples += int64(samples)

		if short {
			p.Final = true
			if r.OnProgress != nil {
				r.OnProgress(p)
			}
			return p, nil
		}
		if r.OnProgress != nil && p.Frames%every == 0 {
			r.OnProgress(p)
		}
	}
}
