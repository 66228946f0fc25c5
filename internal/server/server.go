// Package server exposes the denoising pipeline over HTTP.
//
// Routes:
//
//   - POST /v1/denoise: raw s16le request body in, denoised s16le response
//     out, statistics in X-Hush-* response headers.
//   - GET /v1/stream: websocket. Binary messages of any size carry PCM in
//     both directions; text messages carry JSON control and VAD events.
//   - GET /v1/sessions: the open sessions as JSON.
//   - GET /metrics, /healthz, /readyz.
//
// Query parameters channels, sample_rate, resample_quality, vad_threshold
// and engine override the configured pipeline for one request or stream.
//
// [Server.Serve] owns the listener lifecycle: on context cancellation it
// marks the process as draining, stops accepting requests, closes open
// streams and waits for their sessions to be released.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/health"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/pkg/denoise"
)

const (
	// DefaultMaxBodyBytes caps a POST /v1/denoise body (about 20 minutes of
	// 48 kHz stereo).
	DefaultMaxBodyBytes int64 = 256 << 20

	// DefaultMaxMessageBytes caps one websocket message.
	DefaultMaxMessageBytes int64 = 1 << 20

	// DefaultDrainTimeout bounds the graceful shutdown.
	DefaultDrainTimeout = 15 * time.Second

	readHeaderTimeout = 10 * time.Second
)

// Server serves the denoising HTTP API. Create it with [New].
type Server struct {
	sessions *app.SessionManager
	pipeline func() config.PipelineConfig
	metrics  *observe.Metrics
	health   *health.Handler
	log      *slog.Logger

	metricsHandler http.Handler
	originPatterns []string
	maxBody        int64
	maxMessage     int64
	drainTimeout   time.Duration

	// streams is cancelled on shutdown to close websocket connections,
	// which http.Server.Shutdown does not track.
	streams       context.Context
	cancelStreams context.CancelFunc
}

// Option is a functional option for New.
type Option func(*Server)

// WithMetrics sets the metrics used by the HTTP middleware. The default is
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetricsHandler replaces the /metrics handler. The default is
// promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithOriginPatterns sets the host patterns allowed to open cross-origin
// websocket streams.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// WithMaxBodyBytes caps the POST /v1/denoise request body.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// WithMaxMessageBytes caps one incoming websocket message.
func WithMaxMessageBytes(n int64) Option {
	return func(s *Server) { s.maxMessage = n }
}

// WithDrainTimeout bounds how long shutdown waits for requests and streams.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) { s.drainTimeout = d }
}

// New creates a Server that opens sessions from sm. pipeline is called for
// every request and returns the pipeline in effect, so configuration reloads
// apply to new requests and streams.
func New(sm *app.SessionManager, pipeline func() config.PipelineConfig, opts ...Option) *Server {
	s := &Server{
		sessions:     sm,
		pipeline:     pipeline,
		maxBody:      DefaultMaxBodyBytes,
		maxMessage:   DefaultMaxMessageBytes,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	s.streams, s.cancelStreams = context.WithCancel(context.Background())

	s.health = health.New(
		health.PipelineCheck(func() (*denoise.Denoiser, error) {
			return sm.NewDenoiser(s.pipeline())
		}),
		health.CapacityCheck(sm.InUse, sm.Limit()),
	)
	return s
}

// Handler returns the HTTP handler with every route, wrapped in the
// observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/denoise", s.handleDenoise)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	mux.Handle("GET /metrics", s.metricsHandler)
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run listens on cfg.ListenAddr and calls [Server.Serve].
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ctx, ln, cfg.TLS)
}

// Serve accepts connections on ln until ctx is cancelled or serving fails,
// then shuts down gracefully. TLS is used when tlsCfg is non-nil. It returns
// nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsCfg *config.TLSConfig) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", "addr", ln.Addr().String(), "tls", tlsCfg != nil)
		var err error
		if tlsCfg != nil {
			err = srv.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(srv)
	})
	return g.Wait()
}

func (s *Server) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	s.log.Info("server draining", "open_sessions", s.sessions.InUse())
	s.health.SetDraining(true)

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: shutdown: %w", err))
	}
	s.cancelStreams()
	if err := s.sessions.Drain(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		s.log.Info("server stopped")
	}
	return errors.Join(errs...)
}
