package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/model"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/internal/resilience"
	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/audio/resample"
	"github.com/MrWong99/hush/pkg/denoise"
	"github.com/MrWong99/hush/pkg/provider/ns"
)

var (
	// ErrSessionLimit is returned by [SessionManager.Open] when MaxSessions
	// sessions are already open.
	ErrSessionLimit = errors.New("app: session limit reached")

	// ErrDraining is returned by [SessionManager.Open] after
	// [SessionManager.Drain] has been called.
	ErrDraining = errors.New("app: session manager draining")
)

// Session sources reported in [SessionInfo] and metrics.
const (
	SourceFile      = "file"
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"
)

// SessionInfo holds metadata about an open session.
type SessionInfo struct {
	// ID is unique within the process, e.g. "websocket-7".
	ID string

	// Source is where the audio comes from (SourceFile, SourceHTTP, ...).
	Source string

	// Engine is the registered engine name the session runs on.
	Engine string

	// Format is the ingest format.
	Format audio.Format

	// StartedAt is when the session was opened.
	StartedAt time.Time
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Registry resolves pipeline engine names. Required.
	Registry *config.Registry

	// Metrics receives per-frame and per-session measurements. Nil selects
	// observe.DefaultMetrics().
	Metrics *observe.Metrics

	// MaxSessions caps concurrently open sessions. Zero or less is unlimited.
	MaxSessions int

	// Resolver maps model references to paths. Nil selects model.Resolve.
	Resolver denoise.ModelResolver

	// Resampler builds rate bridges. Nil selects resample.New.
	Resampler resample.Factory

	// Logger is passed to every denoiser. Nil selects slog.Default().
	Logger *slog.Logger

	// Breaker tunes the per-engine circuit breakers used when a pipeline
	// names fallback engines. Zero fields take the resilience defaults.
	Breaker resilience.CircuitBreakerConfig
}

// SessionManager opens denoising sessions from pipeline configurations and
// tracks the open ones against a limit. All exported methods are safe for
// concurrent use; each [Session] itself is driven by one goroutine.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  int
	draining bool
	drained  chan struct{}

	nextID atomic.Uint64

	registry  *config.Registry
	metrics   *observe.Metrics
	limit     int
	resolve   denoise.ModelResolver
	resampler resample.Factory
	log       *slog.Logger
	breakers  *resilience.Breakers
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		sessions:  make(map[string]*Session),
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		limit:     cfg.MaxSessions,
		resolve:   cfg.Resolver,
		resampler: cfg.Resampler,
		log:       cfg.Logger,
		breakers:  resilience.NewBreakers(cfg.Breaker),
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	if sm.resolve == nil {
		sm.resolve = model.Resolve
	}
	if sm.resampler == nil {
		sm.resampler = resample.New
	}
	if sm.log == nil {
		sm.log = slog.Default()
	}
	return sm
}

// Open creates the engine named by p, builds a denoiser for it and returns
// the session wrapping both. Engine lookup failures wrap
// denoise.ErrInvalidArgument and engine construction failures wrap
// denoise.ErrExternalEngine, so [denoise.Kind] classifies every error Open
// returns except [ErrSessionLimit] and [ErrDraining].
func (sm *SessionManager) Open(ctx context.Context, source string, p config.PipelineConfig) (*Session, error) {
	if err := sm.reserve(); err != nil {
		return nil, err
	}

	s, err := sm.open(ctx, source, p)
	sm.mu.Lock()
	sm.pending--
	if err == nil {
		sm.sessions[s.info.ID] = s
	}
	sm.mu.Unlock()
	if err != nil {
		sm.signalIfDrained()
		return nil, err
	}

	sm.log.Debug("session opened",
		"id", s.info.ID,
		"source", source,
		"engine", p.Engine,
		"format", s.info.Format.String(),
	)
	return s, nil
}

func (sm *SessionManager) reserve() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return ErrDraining
	}
	if sm.limit > 0 && len(sm.sessions)+sm.pending >= sm.limit {
		return fmt.Errorf("%w (%d)", ErrSessionLimit, sm.limit)
	}
	sm.pending++
	return nil
}

func (sm *SessionManager) open(ctx context.Context, source string, p config.PipelineConfig) (*Session, error) {
	// VAD output is always on internally so metrics see every score.
	wantVAD := p.VADOutput
	p.VADOutput = true

	id := fmt.Sprintf("%s-%d", source, sm.nextID.Add(1))
	ctx, span := observe.StartSessionSpan(ctx, id, source, p.Engine, p.Denoise())

	d, err := sm.NewDenoiser(p)
	if err != nil {
		sm.metrics.RecordError(ctx, denoise.Kind(err))
		observe.EndSessionSpan(span, denoise.Stats{}, err)
		return nil, err
	}
	span.SetAttributes(observe.StreamAttributes(source, p.Engine, d.Config())...)

	s := &Session{
		info: SessionInfo{
			ID:        id,
			Source:    source,
			Engine:    p.Engine,
			Format:    d.Format(),
			StartedAt: time.Now(),
		},
		d:        d,
		ctx:      context.WithoutCancel(ctx),
		span:     span,
		metrics:  sm.metrics,
		wantVAD:  wantVAD,
		channels: d.Format().Channels,
		manager:  sm,
	}
	s.streamClosed = sm.metrics.StreamOpened(s.ctx, source)
	return s, nil
}

// NewDenoiser builds a denoiser for p without opening a session. Engine
// lookup failures wrap denoise.ErrInvalidArgument and engine construction
// failures wrap denoise.ErrExternalEngine. The caller owns the returned
// denoiser.
func (sm *SessionManager) NewDenoiser(p config.PipelineConfig) (*denoise.Denoiser, error) {
	eng, err := sm.engine(p)
	if err != nil {
		kind := denoise.ErrExternalEngine
		if errors.Is(err, config.ErrEngineNotRegistered) {
			kind = denoise.ErrInvalidArgument
		}
		return nil, fmt.Errorf("app: %w: %w", kind, err)
	}
	return denoise.New(p.Denoise(),
		denoise.WithEngine(eng),
		denoise.WithModelResolver(sm.resolve),
		denoise.WithResamplerFactory(sm.resampler),
		denoise.WithLogger(sm.log),
	)
}

// engine creates the engine of p. With fallback engines configured it
// returns a resilience.Engine over every engine that could be created, the
// primary first; each keeps its circuit breaker across sessions.
func (sm *SessionManager) engine(p config.PipelineConfig) (ns.Engine, error) {
	primary, err := sm.registry.CreateEngine(p)
	if len(p.FallbackEngines) == 0 {
		return primary, err
	}

	group := resilience.NewEngine()
	firstErr := err
	if err == nil {
		group.AddPrimary(p.Engine, primary, sm.breakers.Get(p.Engine))
	} else {
		sm.log.Warn("primary engine unavailable", "engine", p.Engine, "err", err)
	}
	for _, name := range p.FallbackEngines {
		fp := p
		fp.Engine = name
		eng, err := sm.registry.CreateEngine(fp)
		if err != nil {
			sm.log.Warn("fallback engine unavailable", "engine", name, "err", err)
			firstErr = cmp.Or(firstErr, err)
			continue
		}
		group.AddFallback(name, eng, sm.breakers.Get(name))
	}
	if group.Len() == 0 {
		return nil, firstErr
	}
	return group, nil
}

// release removes s from the open set.
func (sm *SessionManager) release(s *Session) {
	sm.mu.Lock()
	delete(sm.sessions, s.info.ID)
	sm.mu.Unlock()
	sm.signalIfDrained()
}

func (sm *SessionManager) signalIfDrained() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining && sm.drained != nil && len(sm.sessions) == 0 && sm.pending == 0 {
		close(sm.drained)
		sm.drained = nil
	}
}

// InUse returns the number of open sessions, including ones being opened.
func (sm *SessionManager) InUse() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions) + sm.pending
}

// Limit returns the configured session limit; zero or less is unlimited.
func (sm *SessionManager) Limit() int { return sm.limit }

// Active returns the open sessions ordered by start time.
func (sm *SessionManager) Active() []SessionInfo {
	sm.mu.Lock()
	infos := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		infos = append(infos, s.info)
	}
	sm.mu.Unlock()
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return infos
}

// Drain rejects further Open calls and waits until every open session has
// been closed by its owner or ctx is done. Sessions are never closed on
// their owner's behalf.
func (sm *SessionManager) Drain(ctx context.Context) error {
	sm.mu.Lock()
	sm.draining = true
	if len(sm.sessions) == 0 && sm.pending == 0 {
		sm.mu.Unlock()
		return nil
	}
	if sm.drained == nil {
		sm.drained = make(chan struct{})
	}
	done := sm.drained
	remaining := len(sm.sessions) + sm.pending
	sm.mu.Unlock()

	sm.log.Info("draining sessions", "open", remaining)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: drain: %d sessions still open: %w", sm.InUse(), ctx.Err())
	}
}

// Session is one open denoising stream. It satisfies [Stream].
type Session struct {
	info     SessionInfo
	d        *denoise.Denoiser
	ctx      context.Context
	span     trace.Span
	metrics  *observe.Metrics
	wantVAD  bool
	channels int
	manager  *SessionManager

	streamClosed func()
	closeOnce    sync.Once
	closeErr     error

	// procErr is the last Process failure, reported on the session span.
	procErr error
}

// Info returns the session metadata.
func (s *Session) Info() SessionInfo { return s.info }

// Format returns the ingest format.
func (s *Session) Format() audio.Format { return s.d.Format() }

// FrameLen returns the number of interleaved samples per frame.
func (s *Session) FrameLen() int { return s.d.FrameLen() }

// Threshold returns the effective VAD threshold.
func (s *Session) Threshold() float32 { return s.d.Config().VADThreshold }

// Process denoises one frame and records it in the metrics. The returned
// Result is zero unless the pipeline enabled VAD output.
func (s *Session) Process(in, out []int16) (denoise.Result, error) {
	start := time.Now()
	res, err := s.d.Process(in, out)
	if err != nil {
		s.procErr = err
		s.metrics.RecordError(s.ctx, denoise.Kind(err))
		return denoise.Result{}, err
	}
	s.metrics.RecordFrame(s.ctx, s.channels, time.Since(start), res.VADProbability, res.IsSpeech)
	if !s.wantVAD {
		return denoise.Result{}, nil
	}
	return res, nil
}

// Stats returns the session statistics.
func (s *Session) Stats() denoise.Stats { return s.d.Stats() }

// ResetStats clears the session statistics.
func (s *Session) ResetStats() { s.d.ResetStats() }

// Close releases the denoiser and frees the session slot. It is safe to call
// more than once; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		st := s.d.Stats()
		s.closeErr = s.d.Close()
		observe.EndSessionSpan(s.span, st, errors.Join(s.procErr, s.closeErr))
		s.streamClosed()
		s.manager.release(s)
		s.manager.log.Debug("session closed", "id", s.info.ID, "frames", st.FramesProcessed)
	})
	return s.closeErr
}
