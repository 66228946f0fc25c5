// Package app wires the denoising pipeline into runnable units.
//
// [SessionManager] opens [Session] values from pipeline configurations and
// enforces the session limit shared by every front end. [Runner] drives a
// session over raw PCM readers and writers. [App] processes a batch of files
// concurrently on top of both and reports per-file [Event] values to the
// progress UI.
//
// For testing, inject doubles via functional options (WithOpen, WithParallel,
// WithEventHandler).
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/pkg/denoise"
)

// Job names one input file and the output file it is denoised into. The path
// "-" selects standard input or standard output.
type Job struct {
	Input  string
	Output string
}

// EventKind classifies an [Event].
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventFinished
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports the state of one job. Handlers may be called from several
// goroutines at once.
type Event struct {
	// Job is the index into the slice given to Process.
	Job  int
	Kind EventKind

	// TotalFrames is the expected frame count, or zero when the input size
	// is unknown. Set on EventStarted.
	TotalFrames int

	Progress Progress

	// Stats and Err are set on EventFinished.
	Stats denoise.Stats
	Err   error
}

// Outcome is the result of one job.
type Outcome struct {
	Job      Job
	Progress Progress
	Stats    denoise.Stats
	Err      error
}

// Opener opens a stream for one job.
type Opener func(ctx context.Context, source string, p config.PipelineConfig) (*Session, error)

// App processes batches of files through one pipeline configuration.
type App struct {
	pipeline config.PipelineConfig
	open     Opener
	parallel int
	every    int
	onEvent  func(Event)

	stdin  io.Reader
	stdout io.Writer
}

// Option is a functional option for New.
type Option func(*App)

// WithOpen replaces the session opener. The default is SessionManager.Open.
func WithOpen(open Opener) Option {
	return func(a *App) { a.open = open }
}

// WithParallel sets how many files are processed at once. Values below one
// are treated as one.
func WithParallel(n int) Option {
	return func(a *App) { a.parallel = max(n, 1) }
}

// WithEventHandler sets the callback receiving job events.
func WithEventHandler(fn func(Event)) Option {
	return func(a *App) { a.onEvent = fn }
}

// WithProgressEvery sets the frame interval between progress events.
func WithProgressEvery(frames int) Option {
	return func(a *App) { a.every = frames }
}

// WithStdio sets the streams used for the "-" path.
func WithStdio(stdin io.Reader, stdout io.Writer) Option {
	return func(a *App) {
		a.stdin = stdin
		a.stdout = stdout
	}
}

// New creates an App that opens sessions from sm with pipeline p.
func New(sm *SessionManager, p config.PipelineConfig, opts ...Option) *App {
	a := &App{
		pipeline: p,
		parallel: 1,
		onEvent:  func(Event) {},
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
	if sm != nil {
		a.open = sm.Open
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Process runs every job and returns one Outcome per job in input order. A
// failing job does not stop the others; the returned error joins every job
// error. Cancelling ctx stops all jobs.
func (a *App) Process(ctx context.Context, jobs []Job) ([]Outcome, error) {
	outcomes := make([]Outcome, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)

	var mu sync.Mutex
	var errs []error
	for i, job := range jobs {
		g.Go(func() error {
			o := a.processJob(ctx, i, job)
			outcomes[i] = o
			if o.Err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", job.Input, o.Err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, errors.Join(errs...)
}

func (a *App) processJob(ctx context.Context, idx int, job Job) (out Outcome) {
	out.Job = job
	ctx, span := observe.StartSpan(ctx, "hush.process_file", trace.WithAttributes(
		observe.AttrInput.String(job.Input),
		observe.AttrOutput.String(job.Output),
	))
	defer span.End()
	log := observe.Logger(ctx).With("input", job.Input, "output", job.Output)

	defer func() {
		if out.Err != nil {
			span.RecordError(out.Err)
			log.Error("file failed", "frames", out.Progress.Frames, "err", out.Err)
		}
		a.onEvent(Event{Job: idx, Kind: EventFinished, Progress: out.Progress, Stats: out.Stats, Err: out.Err})
	}()

	src, size, err := a.openInput(job.Input)
	if err != nil {
		out.Err = err
		return out
	}
	defer src.Close()

	s, err := a.open(ctx, SourceFile, a.pipeline)
	if err != nil {
		out.Err = err
		return out
	}
	defer s.Close()

	total := 0
	if size > 0 {
		frameBytes := int64(s.FrameLen() * 2)
		total = int((size + frameBytes - 1) / frameBytes)
	}
	a.onEvent(Event{Job: idx, Kind: EventStarted, TotalFrames: total})

	dst, err := a.createOutput(job.Output)
	if err != nil {
		out.Err = err
		return out
	}

	r := Runner{
		ProgressEvery: a.every,
		OnProgress: func(p Progress) {
			a.onEvent(Event{Job: idx, Kind: EventProgress, Progress: p})
		},
	}
	out.Progress, out.Err = r.Run(ctx, s, src, dst)
	out.Stats = s.Stats()

	if err := dst.Close(); err != nil && out.Err == nil {
		out.Err = fmt.Errorf("app: close output: %w", err)
	}
	if out.Err == nil {
		log.Info("file denoised",
			"frames", out.Stats.FramesProcessed,
			"speech_percent", out.Stats.SpeechPercent,
		)
	}
	return out
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (a *App) openInput(path string) (io.ReadCloser, int64, error) {
	if path == "-" {
		return io.NopCloser(a.stdin), 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("app: open input: %w", err)
	}
	var size int64
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		size = info.Size()
	}
	return f, size, nil
}

func (a *App) createOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{a.stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("app: create output: %w", err)
	}
	slog.Debug("output created", "path", path)
	return f, nil
}
