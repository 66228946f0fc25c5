package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, 1, 200*time.Microsecond, 0.9, true)
	m.RecordFrame(ctx, 1, 300*time.Microsecond, 0.1, false)
	m.RecordFrame(ctx, 2, 400*time.Microsecond, 0.7, true)

	rm := collect(t, reader)

	for _, name := range []string{"hush.frame.duration", "hush.vad.score"} {
		t.Run(name, func(t *testing.T) {
			met := findMetric(rm, name)
			if met == nil {
				t.Fatalf("metric %q not found", name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", name)
			}
			if got := hist.DataPoints[0].Count; got != 3 {
				t.Errorf("sample count = %d, want 3", got)
			}
		})
	}

	frames := findMetric(rm, "hush.frames")
	if frames == nil {
		t.Fatal("hush.frames not found")
	}
	sum, ok := frames.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("hush.frames is not a sum")
	}
	byChannels := map[int64]int64{}
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("channels"))
		if !ok {
			t.Fatal("data point without channels attribute")
		}
		byChannels[v.AsInt64()] = dp.Value
	}
	if byChannels[1] != 2 || byChannels[2] != 1 {
		t.Errorf("frames by channels = %v, want map[1:2 2:1]", byChannels)
	}

	speech := findMetric(rm, "hush.speech_frames")
	if speech == nil {
		t.Fatal("hush.speech_frames not found")
	}
	if got := speech.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 2 {
		t.Errorf("speech frames = %d, want 2", got)
	}
}

func TestRecordError(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordError(ctx, "external_engine")
	m.RecordError(ctx, "external_engine")
	m.RecordError(ctx, "invalid_argument")

	rm := collect(t, reader)
	met := findMetric(rm, "hush.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}

	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "kind" && kv.Value.AsString() == "external_engine" {
				if dp.Value != 2 {
					t.Errorf("counter value = %d, want 2", dp.Value)
				}
				return
			}
		}
	}
	t.Error("data point with kind=external_engine not found")
}

func TestStreamOpened(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	closeA := m.StreamOpened(ctx, "websocket")
	closeB := m.StreamOpened(ctx, "websocket")
	closeA()

	rm := collect(t, reader)
	met := findMetric(rm, "hush.active_streams")
	if met == nil {
		t.Fatal("hush.active_streams not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active streams = %d, want 1", got)
	}

	closeB()
	rm = collect(t, reader)
	dur := findMetric(rm, "hush.stream.duration")
	if dur == nil {
		t.Fatal("hush.stream.duration not found")
	}
	hist := dur.Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("stream duration samples = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "hush.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
