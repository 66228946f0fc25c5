package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/hush/internal/app"
	"github.com/MrWong99/hush/internal/observe"
	"github.com/MrWong99/hush/pkg/denoise"
)

// Text message types sent and accepted on /v1/stream.
const (
	EventReady   = "ready"
	EventVAD     = "vad"
	EventError   = "error"
	EventStats   = "stats"
	EventFlushed = "flushed"

	ControlFlush      = "flush"
	ControlStats      = "stats"
	ControlResetStats = "reset_stats"
)

// control is a client text message.
type control struct {
	Type string `json:"type"`
}

type readyEvent struct {
	Type         string  `json:"type"`
	Session      string  `json:"session"`
	SampleRate   int     `json:"sample_rate"`
	Channels     int     `json:"channels"`
	FrameSamples int     `json:"frame_samples"`
	VADThreshold float32 `json:"vad_threshold"`
}

type vadEvent struct {
	Type        string  `json:"type"`
	Frame       int     `json:"frame"`
	Probability float32 `json:"probability"`
	Speech      bool    `json:"speech"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Frame *int   `json:"frame,omitempty"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type flushedEvent struct {
	Type    string `json:"type"`
	Samples int    `json:"samples"`
}

type statsEvent struct {
	Type             string  `json:"type"`
	Frames           int     `json:"frames"`
	SpeechPercent    float64 `json:"speech_percent"`
	VADAvg           float64 `json:"vad_avg"`
	VADMin           float32 `json:"vad_min"`
	VADMax           float32 `json:"vad_max"`
	ProcessingMsTot  float64 `json:"processing_ms_total"`
	ProcessingMsAvg  float64 `json:"processing_ms_avg"`
	ProcessingMsLast float64 `json:"processing_ms_last"`
}

func newStatsEvent(st denoise.Stats) statsEvent {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return statsEvent{
		Type:             EventStats,
		Frames:           st.FramesProcessed,
		SpeechPercent:    st.SpeechPercent,
		VADAvg:           st.VADAvg,
		VADMin:           st.VADMin,
		VADMax:           st.VADMax,
		ProcessingMsTot:  ms(st.ProcessingTotal),
		ProcessingMsAvg:  ms(st.ProcessingAvg),
		ProcessingMsLast: ms(st.ProcessingLast),
	}
}

// handleStream upgrades to a websocket and denoises binary messages until
// the client closes the connection or the server shuts down. Session limits
// and bad parameters are reported as plain HTTP errors before the upgrade.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := s.pipelineFromQuery(q)
	if err != nil {
		writeError(w, err)
		return
	}
	wantVAD := q.Get("vad") == "1" || q.Get("vad") == "true"
	p.VADOutput = wantVAD

	sess, err := s.sessions.Open(r.Context(), app.SourceWebSocket, p)
	if err != nil {
		observe.Logger(r.Context()).Warn("stream rejected", "err", err)
		writeError(w, err)
		return
	}
	defer sess.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.maxMessage)

	stop := context.AfterFunc(s.streams, func() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	st := &streamConn{
		conn:    conn,
		sess:    sess,
		framer:  newFramer(sess),
		wantVAD: wantVAD,
		log:     observe.Logger(r.Context()).With("session", sess.Info().ID),
	}
	st.run(r.Context())
}

// streamConn is the per-connection state of /v1/stream. Only the handler
// goroutine reads and writes through it.
type streamConn struct {
	conn    *websocket.Conn
	sess    *app.Session
	framer  *framer
	wantVAD bool
	log     *slog.Logger
	out     []byte
}

func (c *streamConn) run(ctx context.Context) {
	f := c.sess.Format()
	if err := wsjson.Write(ctx, c.conn, readyEvent{
		Type:         EventReady,
		Session:      c.sess.Info().ID,
		SampleRate:   f.SampleRate,
		Channels:     f.Channels,
		FrameSamples: f.FrameSamples(),
		VADThreshold: c.sess.Threshold(),
	}); err != nil {
		c.log.Debug("stream ready write failed", "err", err)
		return
	}
	c.log.Info("stream opened", "format", f.String())

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			c.finish(err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			var outcomes []frameOutcome
			c.out, outcomes = c.framer.push(data, c.out[:0])
			err = c.send(ctx, outcomes)
		case websocket.MessageText:
			err = c.control(ctx, data)
		}
		if err != nil {
			c.finish(err)
			return
		}
	}
}

func (c *streamConn) finish(err error) {
	st := c.sess.Stats()
	switch status := websocket.CloseStatus(err); status {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		c.log.Info("stream closed",
			"status", status.String(),
			"frames", st.FramesProcessed,
			"speech_percent", st.SpeechPercent,
		)
	default:
		c.log.Warn("stream ended", "frames", st.FramesProcessed, "err", err)
	}
}

// send writes the processed audio followed by the per-frame events.
func (c *streamConn) send(ctx context.Context, outcomes []frameOutcome) error {
	if len(c.out) > 0 {
		if err := c.conn.Write(ctx, websocket.MessageBinary, c.out); err != nil {
			return err
		}
	}
	for _, o := range outcomes {
		if o.Err != nil {
			idx := o.Index
			c.log.Debug("frame failed, sent muted", "frame", idx, "err", o.Err)
			if err := wsjson.Write(ctx, c.conn, errorEvent{
				Type:  EventError,
				Frame: &idx,
				Kind:  denoise.Kind(o.Err),
				Error: o.Err.Error(),
			}); err != nil {
				return err
			}
			continue
		}
		if !c.wantVAD {
			continue
		}
		if err := wsjson.Write(ctx, c.conn, vadEvent{
			Type:        EventVAD,
			Frame:       o.Index,
			Probability: o.Result.VADProbability,
			Speech:      o.Result.IsSpeech,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (c *streamConn) control(ctx context.Context, data []byte) error {
	var msg control
	if err := json.Unmarshal(data, &msg); err != nil {
		return c.reject(ctx, fmt.Errorf("server: malformed control message: %w", denoise.ErrInvalidArgument))
	}

	switch msg.Type {
	case ControlFlush:
		samples := c.framer.buffered() / 2
		var outcomes []frameOutcome
		c.out, outcomes, _ = c.framer.flush(c.out[:0])
		if err := c.send(ctx, outcomes); err != nil {
			return err
		}
		return wsjson.Write(ctx, c.conn, flushedEvent{Type: EventFlushed, Samples: samples})
	case ControlStats:
		return wsjson.Write(ctx, c.conn, newStatsEvent(c.sess.Stats()))
	case ControlResetStats:
		c.sess.ResetStats()
		return wsjson.Write(ctx, c.conn, newStatsEvent(c.sess.Stats()))
	}
	return c.reject(ctx, fmt.Errorf("server: unknown control message %q: %w", msg.Type, denoise.ErrInvalidArgument))
}

// reject reports a bad client message without closing the stream.
func (c *streamConn) reject(ctx context.Context, err error) error {
	return wsjson.Write(ctx, c.conn, errorEvent{
		Type:  EventError,
		Kind:  denoise.Kind(err),
		Error: err.Error(),
	})
}
