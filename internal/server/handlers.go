package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/config"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/pkg/denoise"
)

// Response headers set by POST /v1/denoise.
const (
	HeaderSampleRate    = "X-Hush-Sample-Rate"
	HeaderChannels      = "X-Hush-Channels"
	HeaderFrames        = "X-Hush-Frames"
	HeaderSpeechPercent = "X-Hush-Speech-Percent"
	HeaderVADAvg        = "X-Hush-VAD-Avg"
	HeaderVADMin        = "X-Hush-VAD-Min"
	HeaderVADMax        = "X-Hush-VAD-Max"
	HeaderProcessingMs  = "X-Hush-Processing-Ms"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// sessionJSON is one entry of GET /v1/sessions.
type sessionJSON struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Engine     string    `json:"engine"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	StartedAt  time.Time `json:"started_at"`
}

// errInvalidQuery marks a malformed query parameter.
var errInvalidQuery = fmt.Errorf("server: invalid query: %w", denoise.ErrInvalidArgument)

// pipelineFromQuery applies per-request overrides to the current pipeline
// and validates the result.
func (s *Server) pipelineFromQuery(q url.Values) (config.PipelineConfig, error) {
	p := s.pipeline().Clone()

	var errs []error
	intParam := func(name string, dst *int) {
		v := q.Get(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q is not an integer", errInvalidQuery, name, v))
			return
		}
		*dst = n
	}

	intParam("channels", &p.Channels)
	intParam("sample_rate", &p.SampleRate)
	if q.Has("resample_quality") {
		var n int
		intParam("resample_quality", &n)
		p.ResampleQuality = &n
	}
	if v := q.Get("vad_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: vad_threshold=%q is not a number", errInvalidQuery, v))
		} else {
			p.VADThreshold = &f
		}
	}
	if v := q.Get("engine"); v != "" {
		p.Engine = v
	}

	if len(errs) == 0 {
		for _, err := range config.ValidatePipeline(p) {
			errs = append(errs, fmt.Errorf("%w: %w", errInvalidQuery, err))
		}
	}
	return p, errors.Join(errs...)
}

// errorStatus maps an error to an HTTP status and a stable kind string.
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, app.ErrSessionLimit):
		return http.StatusTooManyRequests, "session_limit"
	case errors.Is(err, app.ErrDraining):
		return http.StatusServiceUnavailable, "draining"
	}
	kind := denoise.Kind(err)
	switch {
	case errors.Is(err, denoise.ErrInvalidArgument):
		return http.StatusBadRequest, kind
	case errors.Is(err, denoise.ErrModel):
		return http.StatusUnprocessableEntity, kind
	case errors.Is(err, denoise.ErrOutOfMemory):
		return http.StatusServiceUnavailable, kind
	}
	return http.StatusInternalServerError, kind
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := errorStatus(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// handleDenoise processes the whole request body and answers with the
// denoised PCM. The output is buffered so statistics can go in the headers;
// on a frame error nothing but the error is returned.
func (s *Server) handleDenoise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	p, err := s.pipelineFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.sessions.Open(ctx, app.SourceHTTP, p)
	if err != nil {
		log.Warn("denoise request rejected", "err", err)
		writeError(w, err)
		return
	}
	defer sess.Close()

	var out bytes.Buffer
	if r.ContentLength > 0 && r.ContentLength <= s.maxBody {
		out.Grow(int(r.ContentLength))
	}
	body := http.MaxBytesReader(w, r.Body, s.maxBody)

	prog, err := app.Runner{}.Run(ctx, sess, body, &out)
	if err != nil {
		log.Warn("denoise request failed", "session", sess.Info().ID, "frames", prog.Frames, "err", err)
		writeError(w, err)
		return
	}

	st := sess.Stats()
	f := sess.Format()
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.Itoa(out.Len()))
	h.Set(HeaderSampleRate, strconv.Itoa(f.SampleRate))
	h.Set(HeaderChannels, strconv.Itoa(f.Channels))
	h.Set(HeaderFrames, strconv.Itoa(st.FramesProcessed))
	h.Set(HeaderSpeechPercent, strconv.FormatFloat(st.SpeechPercent, 'f', 2, 64))
	h.Set(HeaderVADAvg, strconv.FormatFloat(st.VADAvg, 'f', 4, 64))
	h.Set(HeaderVADMin, strconv.FormatFloat(float64(st.VADMin), 'f', 4, 32))
	h.Set(HeaderVADMax, strconv.FormatFloat(float64(st.VADMax), 'f', 4, 32))
	h.Set(HeaderProcessingMs, strconv.FormatFloat(float64(st.ProcessingTotal.Microseconds())/1000, 'f', 3, 64))
	w.WriteHeader(http.StatusOK)
	if _, err := out.WriteTo(w); err != nil {
		log.Debug("denoise response write failed", "err", err)
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	active := s.sessions.Active()
	list := make([]sessionJSON, 0, len(active))
	for _, info := range active {
		list = append(list, sessionJSON{
			ID:         info.ID,
			Source:     info.Source,
			Engine:     info.Engine,
			SampleRate: info.Format.SampleRate,
			Channels:   info.Format.Channels,
			StartedAt:  info.StartedAt,
		})
	}
	writeJSON(w, http.StatusOK, list)
}
