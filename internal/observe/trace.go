package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hush/pkg/denoise"
	"github.com/MrWong99/hush/pkg/provider/ns"
)

// tracerName is the instrumentation scope name for the hush tracer.
const tracerName = "github.com/MrWong99/hush"

// Span attribute keys describing a denoising session and the file it
// belongs to.
const (
	AttrSessionID       = attribute.Key("hush.session.id")
	AttrSource          = attribute.Key("hush.source")
	AttrEngine          = attribute.Key("hush.engine")
	AttrChannels        = attribute.Key("hush.channels")
	AttrSampleRate      = attribute.Key("hush.sample_rate")
	AttrBridged         = attribute.Key("hush.bridged")
	AttrResampleQuality = attribute.Key("hush.resample_quality")
	AttrVADThreshold    = attribute.Key("hush.vad_threshold")
	AttrFrames          = attribute.Key("hush.frames")
	AttrSpeechFrames    = attribute.Key("hush.speech_frames")
	AttrVADAvg          = attribute.Key("hush.vad_avg")
	AttrErrorKind       = attribute.Key("hush.error.kind")
	AttrInput           = attribute.Key("hush.input")
	AttrOutput          = attribute.Key("hush.output")
)

// Tracer returns the hush tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the hush tracer. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StreamAttributes describes the effective configuration of a stream.
// The quality is only reported when the ingest rate needs a bridge.
func StreamAttributes(source, engine string, cfg denoise.Config) []attribute.KeyValue {
	bridged := cfg.SampleRate != ns.SampleRate
	attrs := []attribute.KeyValue{
		AttrSource.String(source),
		AttrEngine.String(engine),
		AttrChannels.Int(cfg.Channels),
		AttrSampleRate.Int(cfg.SampleRate),
		AttrBridged.Bool(bridged),
		AttrVADThreshold.Float64(float64(cfg.VADThreshold)),
	}
	if bridged {
		attrs = append(attrs, AttrResampleQuality.Int(int(cfg.ResampleQuality)))
	}
	return attrs
}

// StartSessionSpan starts the span that covers one session from open to
// close. End it with [EndSessionSpan].
func StartSessionSpan(ctx context.Context, id, source, engine string, cfg denoise.Config) (context.Context, trace.Span) {
	attrs := append(StreamAttributes(source, engine, cfg), AttrSessionID.String(id))
	return StartSpan(ctx, "hush.session", trace.WithAttributes(attrs...))
}

// EndSessionSpan records the final statistics on span and ends it. A non-nil
// err marks the span failed with its denoise error kind.
func EndSessionSpan(span trace.Span, st denoise.Stats, err error) {
	span.SetAttributes(
		AttrFrames.Int(st.FramesProcessed),
		AttrSpeechFrames.Int(st.SpeechFrames),
		AttrVADAvg.Float64(st.VADAvg),
	)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(AttrErrorKind.String(denoise.Kind(err)))
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns slog.Default() with trace_id and span_id of the span in
// ctx attached, so session logs can be joined with their traces.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
