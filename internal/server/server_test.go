package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/internal/server"
	"github.com/MrWong99/hush/pkg/audio"
	"github.com/MrWong99/hush/pkg/provider/ns"
	"github.com/MrWong99/hush/pkg/provider/ns/mock"
)

type testEnv struct {
	sm  *app.SessionManager
	srv *server.Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T, eng *mock.Engine, limit int, opts ...server.Option) *testEnv {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	reg := config.NewRegistry()
	reg.RegisterEngine("mock", func(config.PipelineConfig) (ns.Engine, error) { return eng, nil })

	sm := app.NewSessionManager(app.SessionManagerConfig{
		Registry:    reg,
		Metrics:     m,
		MaxSessions: limit,
		Resolver:    func(ref string) (string, error) { return ref, nil },
	})

	opts = append([]server.Option{
		server.WithMetrics(m),
		server.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		})),
	}, opts...)
	srv := server.New(sm, mockPipeline, opts...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{sm: sm, srv: srv, ts: ts}
}

func mockPipeline() config.PipelineConfig {
	cfg := config.Default()
	cfg.Pipeline.Engine = "mock"
	cfg.Pipeline.Model = ""
	return cfg.Pipeline
}

func pcm(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	audio.EncodeS16LE(b, samples)
	return b
}

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i%2000 - 1000)
	}
	return s
}

func decodeError(t *testing.T, resp *http.Response) (msg, kind string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error, body.Kind
}

func postDenoise(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// ── POST /v1/denoise ──────────────────────────────────────────────────────────

func TestDenoise_ProcessesBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{Score: 0.9}, 0)

	in := ramp(2*480 + 240)
	resp := postDenoise(t, env.ts.URL+"/v1/denoise", pcm(in))

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, pcm(in)) {
		t.Fatalf("body: got %d bytes, want unity passthrough of %d bytes", len(got), len(in)*2)
	}

	wantHeaders := map[string]string{
		server.HeaderFrames:        "3",
		server.HeaderSpeechPercent: "100.00",
		server.HeaderVADAvg:        "0.9000",
		server.HeaderVADMin:        "0.9000",
		server.HeaderVADMax:        "0.9000",
		server.HeaderSampleRate:    "48000",
		server.HeaderChannels:      "1",
	}
	for h, want := range wantHeaders {
		if got := resp.Header.Get(h); got != want {
			t.Errorf("%s: got %q, want %q", h, got, want)
		}
	}
	if resp.Header.Get(server.HeaderProcessingMs) == "" {
		t.Errorf("%s header missing", server.HeaderProcessingMs)
	}
	waitInUse(t, env.sm, 0)
}

func TestDenoise_QueryOverrides(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{Score: 0.1}, 0)

	in := ramp(4 * 160 * 2) // four 10 ms stereo frames at 16 kHz
	resp := postDenoise(t, env.ts.URL+"/v1/denoise?sample_rate=16000&channels=2&resample_quality=0&vad_threshold=0.05", pcm(in))

	if resp.StatusCode != http.StatusOK {
		_, kind := decodeError(t, resp)
		t.Fatalf("status: got %d (%s), want 200", resp.StatusCode, kind)
	}
	if got := resp.Header.Get(server.HeaderSampleRate); got != "16000" {
		t.Errorf("sample rate: got %q, want 16000", got)
	}
	if got := resp.Header.Get(server.HeaderChannels); got != "2" {
		t.Errorf("channels: got %q, want 2", got)
	}
	if got := resp.Header.Get(server.HeaderSpeechPercent); got != "100.00" {
		t.Errorf("speech percent with threshold 0.05: got %q, want 100.00", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != len(in)*2 {
		t.Errorf("body length: got %d, want %d", len(body), len(in)*2)
	}
}

func TestDenoise_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		eng      *mock.Engine
		query    string
		body     []byte
		opts     []server.Option
		wantCode int
		wantKind string
	}{
		{
			name:     "invalid channels",
			query:    "?channels=3",
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_argument",
		},
		{
			name:     "non-numeric sample rate",
			query:    "?sample_rate=fast",
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_argument",
		},
		{
			name:     "sample rate out of range",
			query:    "?sample_rate=4000",
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_argument",
		},
		{
			name:     "unknown engine",
			query:    "?engine=nope",
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_argument",
		},
		{
			name:     "model load failure",
			eng:      &mock.Engine{LoadModelErr: errors.New("corrupt")},
			wantCode: http.StatusUnprocessableEntity,
			wantKind: "model",
		},
		{
			name:     "engine failure mid-stream",
			eng:      &mock.Engine{PanicOnFrame: 2},
			body:     pcm(ramp(3 * 480)),
			wantCode: http.StatusInternalServerError,
			wantKind: "external_engine",
		},
		{
			name:     "body too large",
			body:     pcm(ramp(4 * 480)),
			opts:     []server.Option{server.WithMaxBodyBytes(1000)},
			wantCode: http.StatusRequestEntityTooLarge,
			wantKind: "body_too_large",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := tc.eng
			if eng == nil {
				eng = &mock.Engine{}
			}
			env := newTestEnv(t, eng, 0, tc.opts...)
			resp := postDenoise(t, env.ts.URL+"/v1/denoise"+tc.query, tc.body)

			if resp.StatusCode != tc.wantCode {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tc.wantCode)
			}
			msg, kind := decodeError(t, resp)
			if kind != tc.wantKind {
				t.Errorf("kind: got %q, want %q (error %q)", kind, tc.wantKind, msg)
			}
			if msg == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestDenoise_SessionLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 1)

	s, err := env.sm.Open(context.Background(), app.SourceFile, mockPipeline())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	resp := postDenoise(t, env.ts.URL+"/v1/denoise", pcm(ramp(480)))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status: got %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if _, kind := decodeError(t, resp); kind != "session_limit" {
		t.Errorf("kind: got %q, want session_limit", kind)
	}
}

// ── GET /v1/sessions, health, metrics ─────────────────────────────────────────

func TestSessions_ListsOpen(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 0)

	s, err := env.sm.Open(context.Background(), app.SourceFile, mockPipeline())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	resp, err := http.Get(env.ts.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var list []struct {
		ID         string `json:"id"`
		Source     string `json:"source"`
		Engine     string `json:"engine"`
		SampleRate int    `json:"sample_rate"`
		Channels   int    `json:"channels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("sessions: got %d, want 1", len(list))
	}
	got := list[0]
	if got.ID != s.Info().ID || got.Source != app.SourceFile || got.Engine != "mock" {
		t.Errorf("session: got %+v", got)
	}
	if got.SampleRate != 48000 || got.Channels != 1 {
		t.Errorf("format: got %d Hz / %d ch", got.SampleRate, got.Channels)
	}
}

func TestReadyz_ReflectsCapacity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 1)

	get := func() int {
		resp, err := http.Get(env.ts.URL + "/readyz")
		if err != nil {
			t.Fatalf("GET /readyz: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get(); code != http.StatusOK {
		t.Fatalf("readyz with free capacity: got %d, want 200", code)
	}

	s, err := env.sm.Open(context.Background(), app.SourceFile, mockPipeline())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if code := get(); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz at capacity: got %d, want 503", code)
	}
	s.Close()
	if code := get(); code != http.StatusOK {
		t.Fatalf("readyz after release: got %d, want 200", code)
	}
}

func TestMetricsAndHealthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 0)

	for _, path := range []string{"/metrics", "/healthz"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: got %d, want 200", path, resp.StatusCode)
		}
	}
}

// ── GET /v1/stream ────────────────────────────────────────────────────────────

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream" + query
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) (websocket.MessageType, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return typ, data
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	typ, data := read(t, conn)
	if typ != websocket.MessageText {
		t.Fatalf("got %v message, want text event", typ)
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event %q: %v", data, err)
	}
	return ev
}

func readAudio(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	typ, data := read(t, conn)
	if typ != websocket.MessageBinary {
		t.Fatalf("got %v message %q, want binary audio", typ, data)
	}
	return data
}

func sendControl(t *testing.T, conn *websocket.Conn, typ string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, map[string]string{"type": typ}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func write(t *testing.T, conn *websocket.Conn, typ websocket.MessageType, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, typ, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestStream_RoundTripWithVAD(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{Score: 0.75}, 0)
	conn := dial(t, wsURL(env.ts, "?vad=1"))

	ready := readEvent(t, conn)
	if ready["type"] != server.EventReady {
		t.Fatalf("first event: got %v, want ready", ready)
	}
	if ready["frame_samples"] != float64(480) || ready["sample_rate"] != float64(48000) {
		t.Errorf("ready event: got %v", ready)
	}

	in := ramp(480 + 240)
	write(t, conn, websocket.MessageBinary, pcm(in))

	if got := readAudio(t, conn); !bytes.Equal(got, pcm(in[:480])) {
		t.Fatalf("first frame: got %d bytes, want the 960-byte passthrough", len(got))
	}
	vad := readEvent(t, conn)
	if vad["type"] != server.EventVAD || vad["frame"] != float64(0) || vad["speech"] != true {
		t.Fatalf("vad event: got %v", vad)
	}
	if p, _ := vad["probability"].(float64); p < 0.74 || p > 0.76 {
		t.Errorf("probability: got %v, want 0.75", vad["probability"])
	}

	sendControl(t, conn, server.ControlFlush)
	if got := readAudio(t, conn); !bytes.Equal(got, pcm(in[480:])) {
		t.Fatalf("flushed remainder: got %d bytes, want 480", len(got))
	}
	if ev := readEvent(t, conn); ev["type"] != server.EventVAD || ev["frame"] != float64(1) {
		t.Fatalf("flush vad event: got %v", ev)
	}
	if ev := readEvent(t, conn); ev["type"] != server.EventFlushed || ev["samples"] != float64(240) {
		t.Fatalf("flushed event: got %v", ev)
	}

	sendControl(t, conn, server.ControlStats)
	stats := readEvent(t, conn)
	if stats["type"] != server.EventStats || stats["frames"] != float64(2) {
		t.Fatalf("stats event: got %v", stats)
	}

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitInUse(t, env.sm, 0)
}

func TestStream_WithoutVADSendsOnlyAudio(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{Score: 0.75}, 0)
	conn := dial(t, wsURL(env.ts, ""))
	readEvent(t, conn) // ready

	write(t, conn, websocket.MessageBinary, pcm(ramp(2*480)))
	readAudio(t, conn)

	// The next message must be the stats reply, not a VAD event.
	sendControl(t, conn, server.ControlResetStats)
	ev := readEvent(t, conn)
	if ev["type"] != server.EventStats || ev["frames"] != float64(0) {
		t.Fatalf("after reset: got %v, want zeroed stats", ev)
	}
}

func TestStream_FailedFrameIsMuted(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{PanicOnFrame: 1}, 0)
	conn := dial(t, wsURL(env.ts, ""))
	readEvent(t, conn) // ready

	write(t, conn, websocket.MessageBinary, pcm(ramp(2*480)))

	got := readAudio(t, conn)
	if len(got) != 2*480*2 {
		t.Fatalf("audio: got %d bytes, want %d", len(got), 2*480*2)
	}
	if !bytes.Equal(got[:960], make([]byte, 960)) {
		t.Error("failed frame was not muted")
	}
	if !bytes.Equal(got[960:], pcm(ramp(2 * 480)[480:])) {
		t.Error("frame after the failure was not processed normally")
	}

	ev := readEvent(t, conn)
	if ev["type"] != server.EventError || ev["kind"] != "external_engine" || ev["frame"] != float64(0) {
		t.Fatalf("error event: got %v", ev)
	}
}

func TestStream_UnknownControlKeepsStreamOpen(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 0)
	conn := dial(t, wsURL(env.ts, ""))
	readEvent(t, conn) // ready

	sendControl(t, conn, "rewind")
	if ev := readEvent(t, conn); ev["type"] != server.EventError || ev["kind"] != "invalid_argument" {
		t.Fatalf("unknown control: got %v", ev)
	}
	write(t, conn, websocket.MessageText, []byte(`not json`))
	if ev := readEvent(t, conn); ev["type"] != server.EventError {
		t.Fatalf("malformed control: got %v", ev)
	}

	write(t, conn, websocket.MessageBinary, pcm(ramp(480)))
	readAudio(t, conn)
}

func TestStream_RejectedBeforeUpgrade(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 1)

	s, err := env.sm.Open(context.Background(), app.SourceFile, mockPipeline())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, wsURL(env.ts, ""), nil)
	if err == nil {
		t.Fatal("Dial succeeded past the session limit")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("response: got %v, want 429", resp)
	}

	_, resp, err = websocket.Dial(ctx, wsURL(env.ts, "?channels=5"), nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid channels: err=%v resp=%v, want 400", err, resp)
	}
}

func waitInUse(t *testing.T, sm *app.SessionManager, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for sm.InUse() != want {
		if time.Now().After(deadline) {
			t.Fatalf("sessions in use: got %d, want %d", sm.InUse(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ── Serve lifecycle ───────────────────────────────────────────────────────────

func TestServe_GracefulShutdownClosesStreams(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 0, server.WithDrainTimeout(3*time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- env.srv.Serve(ctx, ln, nil) }()

	conn := dial(t, "ws://"+ln.Addr().String()+"/v1/stream")
	readEvent(t, conn) // ready
	waitInUse(t, env.sm, 1)

	cancel()

	readCtx, readCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Fatalf("close status: got %v (err %v), want StatusGoingAway", status, err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if n := env.sm.InUse(); n != 0 {
		t.Errorf("sessions in use after shutdown: %d", n)
	}
	if _, err := env.sm.Open(context.Background(), app.SourceFile, mockPipeline()); !errors.Is(err, app.ErrDraining) {
		t.Errorf("Open after shutdown: got %v, want ErrDraining", err)
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Engine{}, 0)

	err := env.srv.Run(context.Background(), config.ServerConfig{ListenAddr: "127.0.0.1:-1"})
	if err == nil {
		t.Fatal("Run with an invalid address returned nil")
	}
}
