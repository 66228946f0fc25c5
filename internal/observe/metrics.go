// Package observe provides application-wide observability primitives for
// hush: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all hush metrics.
const meterName = "github.com/MrWong99/hush"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Per-frame ---

	// FrameDuration tracks wall time of one Process call.
	FrameDuration metric.Float64Histogram

	// VADScore tracks the distribution of combined VAD scores.
	VADScore metric.Float64Histogram

	// Frames counts processed frames. Use with attribute:
	//   attribute.Int("channels", ...)
	Frames metric.Int64Counter

	// SpeechFrames counts frames whose score reached the threshold.
	SpeechFrames metric.Int64Counter

	// --- Per-stream ---

	// StreamDuration tracks the wall time of a whole file or stream. Use with
	// attribute:
	//   attribute.String("source", ...)
	StreamDuration metric.Float64Histogram

	// Errors counts failed operations. Use with attribute:
	//   attribute.String("kind", ...)
	Errors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks currently open denoising contexts. Use with
	// attribute:
	//   attribute.String("source", ...)
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets defines histogram bucket boundaries (in seconds) for single
// 10 ms frames, which should finish well under real time.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025,
}

// scoreBuckets spans the VAD probability range.
var scoreBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1,
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for whole
// streams and HTTP requests.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("hush.frame.duration",
		metric.WithDescription("Processing time of one 10 ms frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VADScore, err = m.Float64Histogram("hush.vad.score",
		metric.WithDescription("Voice activity probability per frame."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StreamDuration, err = m.Float64Histogram("hush.stream.duration",
		metric.WithDescription("Wall time spent denoising a whole file or stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("hush.frames",
		metric.WithDescription("Total frames processed by channel count."),
	); err != nil {
		return nil, err
	}
	if met.SpeechFrames, err = m.Int64Counter("hush.speech_frames",
		metric.WithDescription("Total frames classified as speech."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("hush.errors",
		metric.WithDescription("Total processing errors by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("hush.active_streams",
		metric.WithDescription("Number of open denoising contexts."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hush.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one successfully processed frame.
func (m *Metrics) RecordFrame(ctx context.Context, channels int, elapsed time.Duration, score float32, speech bool) {
	m.FrameDuration.Record(ctx, elapsed.Seconds())
	m.VADScore.Record(ctx, float64(score))
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.Int("channels", channels)))
	if speech {
		m.SpeechFrames.Add(ctx, 1)
	}
}

// RecordError records a failed operation under the given error kind.
func (m *Metrics) RecordError(ctx context.Context, kind string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// StreamOpened increments the active stream gauge for source and returns a
// function that decrements it and records the stream duration. The returned
// function must be called exactly once.
func (m *Metrics) StreamOpened(ctx context.Context, source string) (closed func()) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	start := time.Now()
	m.ActiveStreams.Add(ctx, 1, attrs)
	return func() {
		m.ActiveStreams.Add(ctx, -1, attrs)
		m.StreamDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
