// Package mock provides test doubles for the ns package interfaces.
//
// Use Engine to verify model loading and session creation. Use Session to fix
// or script VAD scores and inspect the frames that were submitted for
// processing.
//
// Example:
//
//	eng := &mock.Engine{Score: 0.9}
//	model, _ := eng.LoadModel("")
//	sess, _ := eng.NewSession(model)
//	score := sess.ProcessFrame(in, out) // out == in, score == 0.9
package mock

import (
	"sync"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Model is a mock implementation of ns.Model.
type Model struct {
	mu sync.Mutex

	// Path is the path passed to Engine.LoadModel.
	Path string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Close records the call.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCallCount++
	return nil
}

// Closed reports whether Close was called at least once.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCallCount > 0
}

// Ensure Model implements ns.Model at compile time.
var _ ns.Model = (*Model)(nil)

// Engine is a mock implementation of ns.Engine. Sessions it creates copy the
// input to the output (optionally scaled by Gain) and return Score.
type Engine struct {
	mu sync.Mutex

	// Score is the VAD score returned by every frame of new sessions.
	Score float32

	// ScoreFunc, if non-nil, overrides Score. It receives the zero-based frame
	// index within the session and the input frame.
	ScoreFunc func(frame int, in []float32) float32

	// Gain scales the output samples. Zero means unity gain.
	Gain float32

	// Delay, if non-nil, blocks every ProcessFrame call until a value is
	// received or the channel is closed.
	Delay chan struct{}

	// PanicOnFrame, if positive, makes the session panic when processing the
	// frame with this one-based index.
	PanicOnFrame int

	// LoadModelErr, if non-nil, is returned by LoadModel.
	LoadModelErr error

	// NewSessionErr, if non-nil, is returned by NewSession once
	// NewSessionErrAfter sessions have been created.
	NewSessionErr      error
	NewSessionErrAfter int

	// --- Call records ---

	// LoadModelCalls records every path passed to LoadModel.
	LoadModelCalls []string

	// Models records every model returned by LoadModel.
	Models []*Model

	// Sessions records every session returned by NewSession.
	Sessions []*Session
}

// LoadModel records the call and returns a new *Model or LoadModelErr.
func (e *Engine) LoadModel(path string) (ns.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.LoadModelCalls = append(e.LoadModelCalls, path)
	if e.LoadModelErr != nil {
		return nil, e.LoadModelErr
	}
	m := &Model{Path: path}
	e.Models = append(e.Models, m)
	return m, nil
}

// NewSession records the call and returns a new *Session configured from the
// engine fields.
func (e *Engine) NewSession(m ns.Model) (ns.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil && len(e.Sessions) >= e.NewSessionErrAfter {
		return nil, e.NewSessionErr
	}
	gain := e.Gain
	if gain == 0 {
		gain = 1
	}
	s := &Session{
		Model:        m,
		Score:        e.Score,
		ScoreFunc:    e.ScoreFunc,
		Gain:         gain,
		Delay:        e.Delay,
		PanicOnFrame: e.PanicOnFrame,
	}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// SessionList returns a copy of the created sessions. Thread-safe.
func (e *Engine) SessionList() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.Sessions))
	copy(out, e.Sessions)
	return out
}

// Ensure Engine implements ns.Engine at compile time.
var _ ns.Engine = (*Engine)(nil)

// Session is a mock implementation of ns.SessionHandle.
type Session struct {
	mu sync.Mutex

	Model        ns.Model
	Score        float32
	ScoreFunc    func(frame int, in []float32) float32
	Gain         float32
	Delay        chan struct{}
	PanicOnFrame int

	// --- Call records ---

	// Frames holds a copy of every input frame in order.
	Frames [][]float32

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ProcessFrame records the input, writes in*Gain to out and returns the
// configured score.
func (s *Session) ProcessFrame(in, out []float32) float32 {
	if s.Delay != nil {
		<-s.Delay
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]float32, len(in))
	copy(cp, in)
	s.Frames = append(s.Frames, cp)
	idx := len(s.Frames) - 1

	if s.PanicOnFrame > 0 && len(s.Frames) == s.PanicOnFrame {
		panic("mock: injected engine panic")
	}

	gain := s.Gain
	if gain == 0 {
		gain = 1
	}
	for i, v := range cp {
		out[i] = v * gain
	}
	if s.ScoreFunc != nil {
		return s.ScoreFunc(idx, cp)
	}
	return s.Score
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// FrameCount returns the number of processed frames. Thread-safe.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Frames)
}

// Closed reports whether Close was called at least once. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}

// Ensure Session implements ns.SessionHandle at compile time.
var _ ns.SessionHandle = (*Session)(nil)
