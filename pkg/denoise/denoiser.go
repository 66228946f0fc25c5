// Package denoise is the real-time noise-suppression pipeline.
//
// A [Denoiser] takes fixed 10 ms frames of interleaved 16-bit PCM at any
// supported ingest rate, bridges them to the engine's native rate when
// needed, runs every channel through its own engine session and returns the
// cleaned frame with a combined voice-activity score.
//
// Mono contexts process inline on the caller's goroutine. Stereo contexts
// own one parked worker goroutine per channel; both channels are dispatched
// before either is joined, and frame N is fully joined before frame N+1 is
// dispatched.
//
// A Denoiser is driven by exactly one goroutine at a time. Process, Stats,
// ResetStats and Close must not be called concurrently.
package denoise

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/audio/resample"
	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Result is the per-frame voice-activity outcome. It is populated only when
// Config.VADOutput is set.
type Result struct {
	// VADProbability is the mean of the per-channel scores.
	VADProbability float32

	// IsSpeech reports VADProbability >= the configured threshold.
	IsSpeech bool

	// SamplesProcessed is the per-channel frame size at the engine's native
	// rate, ns.FrameSize, whatever the ingest rate or channel count.
	SamplesProcessed int
}

// Denoiser is one independent audio stream. Create it with [New] and release
// it with [Close].
type Denoiser struct {
	cfg    Config
	format audio.Format
	log    *slog.Logger

	model   ns.Model
	workers []*worker
	bridge  *bridge

	// native-rate interleaved buffers, only used with a bridge
	nativeIn  []int16
	nativeOut []int16

	planesIn  [][]float32
	planesOut [][]float32

	stats  accumulator
	failed error
	closed bool
}

// New validates cfg, loads the model and starts one worker per channel.
// On any failure every resource acquired so far is released in reverse order
// and a nil Denoiser is returned.
func New(cfg Config, opts ...Option) (_ *Denoiser, err error) {
	o := buildOptions(opts)
	cfg = cfg.withDefaults()

	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("denoise: channels %d not in {1, 2}: %w", cfg.Channels, ErrInvalidArgument)
	}
	if cfg.SampleRate < MinSampleRate || cfg.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("denoise: sample rate %d outside [%d, %d]: %w", cfg.SampleRate, MinSampleRate, MaxSampleRate, ErrInvalidArgument)
	}
	if cfg.SampleRate%100 != 0 {
		return nil, fmt.Errorf("denoise: sample rate %d has no whole 10 ms frame: %w", cfg.SampleRate, ErrInvalidArgument)
	}

	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	d := &Denoiser{
		cfg:    cfg,
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		log:    o.logger.With("channels", cfg.Channels, "sample_rate", cfg.SampleRate),
		stats:  newAccumulator(),
	}

	path, err := o.resolve(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("denoise: resolve model %q: %w: %w", cfg.Model, ErrModel, err)
	}
	d.model, err = o.engine.LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("denoise: load model %q: %w: %w", path, ErrModel, err)
	}
	undo = append(undo, func() { _ = d.model.Close() })

	threaded := cfg.Channels > 1
	for c := range cfg.Channels {
		sess, err := o.engine.NewSession(d.model)
		if err != nil {
			return nil, fmt.Errorf("denoise: channel %d session: %w: %w", c, ErrOutOfMemory, err)
		}
		undo = append(undo, func() { _ = sess.Close() })

		w := newWorker(c, sess, threaded)
		undo = append(undo, w.stop)
		d.workers = append(d.workers, w)
		d.planesIn = append(d.planesIn, w.in)
		d.planesOut = append(d.planesOut, w.out)
	}

	if cfg.SampleRate != ns.SampleRate {
		d.bridge, err = newBridge(o.resampler, cfg.Channels, cfg.SampleRate, ns.SampleRate, cfg.ResampleQuality)
		if err != nil {
			kind := ErrExternalEngine
			if errors.Is(err, resample.ErrInvalidConfig) {
				kind = ErrInvalidArgument
			}
			return nil, fmt.Errorf("denoise: rate bridge: %w: %w", kind, err)
		}
		undo = append(undo, func() { _ = d.bridge.close() })
		d.nativeIn = make([]int16, cfg.Channels*ns.FrameSize)
		d.nativeOut = make([]int16, cfg.Channels*ns.FrameSize)
	}

	d.log.Debug("denoiser created", "bridged", d.bridge != nil, "vad_threshold", cfg.VADThreshold)
	return d, nil
}

// Format returns the ingest format.
func (d *Denoiser) Format() audio.Format { return d.format }

// FrameLen returns the required length of every in and out frame passed to
// Process: channels * (sample rate / 100).
func (d *Denoiser) FrameLen() int { return d.format.FrameLen() }

// Quantum returns the number of native-rate samples per channel per frame.
func (d *Denoiser) Quantum() int { return ns.FrameSize }

// Config returns the effective configuration after defaults were applied.
func (d *Denoiser) Config() Config { return d.cfg }

// Process denoises exactly one frame from in into out. Both must have length
// FrameLen. in and out may be the same slice.
//
// An engine failure aborts only the current frame. A resampler failure
// leaves the bridge's filter state mid-frame, so it is fatal: every later
// call returns ErrExternalEngine. Statistics are updated only on success.
func (d *Denoiser) Process(in, out []int16) (Result, error) {
	if d == nil || d.closed {
		return Result{}, fmt.Errorf("denoise: process: %w", ErrClosed)
	}
	if d.failed != nil {
		return Result{}, fmt.Errorf("denoise: process after failure: %w", d.failed)
	}
	n := d.FrameLen()
	if len(in) != n || len(out) != n {
		return Result{}, fmt.Errorf("denoise: frame lengths in=%d out=%d, want %d: %w", len(in), len(out), n, ErrInvalidArgument)
	}

	start := time.Now()

	native := in
	if d.bridge != nil {
		if err := d.bridge.toNative(in, d.nativeIn); err != nil {
			return Result{}, d.fail(err)
		}
		native = d.nativeIn
	}
	audio.Deinterleave(native, d.planesIn...)

	score, err := d.runChannels()
	if err != nil {
		return Result{}, fmt.Errorf("denoise: %w", err)
	}

	if d.bridge != nil {
		audio.Interleave(d.nativeOut, d.planesOut...)
		if err := d.bridge.fromNative(d.nativeOut, out); err != nil {
			return Result{}, d.fail(err)
		}
	} else {
		audio.Interleave(out, d.planesOut...)
	}

	speech := score >= d.cfg.VADThreshold
	d.stats.add(score, speech, time.Since(start))

	if !d.cfg.VADOutput {
		return Result{}, nil
	}
	return Result{
		VADProbability:   score,
		IsSpeech:         speech,
		SamplesProcessed: ns.FrameSize,
	}, nil
}

// runChannels processes the staged planes and returns the mean score.
func (d *Denoiser) runChannels() (float32, error) {
	if len(d.workers) == 1 {
		r := d.workers[0].runInline()
		return r.score, r.err
	}

	dispatched := d.workers[:0:0]
	var errs []error
	for _, w := range d.workers {
		if err := w.dispatch(); err != nil {
			errs = append(errs, err)
			continue
		}
		dispatched = append(dispatched, w)
	}

	var sum float32
	for _, w := range dispatched {
		r := w.wait()
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		sum += r.score
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return sum / float32(len(d.workers)), nil
}

func (d *Denoiser) fail(err error) error {
	d.failed = fmt.Errorf("rate bridge: %w: %w", ErrExternalEngine, err)
	d.log.Error("denoiser disabled after resampler failure", "err", err)
	return fmt.Errorf("denoise: %w", d.failed)
}

// Stats returns a snapshot of the running statistics.
func (d *Denoiser) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return d.stats.snapshot()
}

// ResetStats clears the running statistics.
func (d *Denoiser) ResetStats() {
	if d != nil {
		d.stats = newAccumulator()
	}
}

// Close stops every worker, then releases the sessions, the rate bridge and
// the model. It is safe to call on a nil Denoiser and more than once; only
// the first call does any work.
func (d *Denoiser) Close() error {
	if d == nil || d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for _, w := range d.workers {
		w.stop()
	}
	for _, w := range d.workers {
		if err := w.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel %d session: %w", w.index, err))
		}
	}
	if d.bridge != nil {
		if err := d.bridge.close(); err != nil {
			errs = append(errs, fmt.Errorf("rate bridge: %w", err))
		}
	}
	if d.model != nil {
		if err := d.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("model: %w", err))
		}
	}
	d.log.Debug("denoiser closed", "frames", d.stats.frames)
	return errors.Join(errs...)
}
