// Package passthrough implements an ns.Engine that copies audio unchanged and
// reports a fixed voice-activity score. It is useful for measuring pipeline
// overhead and for deployments without a denoising backend.
package passthrough

import (
	"fmt"
	"strconv"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Engine is the pass-through ns.Engine.
type Engine struct {
	score float32
}

// Option configures an [Engine].
type Option func(*Engine)

// WithScore sets the VAD score reported for every frame. Values are clamped
// to [0, 1].
func WithScore(score float32) Option {
	return func(e *Engine) {
		e.score = min(max(score, 0), 1)
	}
}

// New creates a pass-through engine. The default score is 0.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

type model struct{}

func (model) Close() error { return nil }

// LoadModel accepts an empty path or a decimal score override such as "0.8".
func (e *Engine) LoadModel(path string) (ns.Model, error) {
	if path == "" {
		return model{}, nil
	}
	score, err := strconv.ParseFloat(path, 32)
	if err != nil || score < 0 || score > 1 {
		return nil, fmt.Errorf("passthrough: model %q is not a score in [0, 1]", path)
	}
	return scoreModel(score), nil
}

type scoreModel float32

func (scoreModel) Close() error { return nil }

// NewSession returns a session that copies in to out.
func (e *Engine) NewSession(m ns.Model) (ns.SessionHandle, error) {
	s := &session{score: e.score}
	if sm, ok := m.(scoreModel); ok {
		s.score = float32(sm)
	}
	return s, nil
}

type session struct {
	score float32
}

func (s *session) ProcessFrame(in, out []float32) float32 {
	copy(out, in)
	return s.score
}

func (s *session) Close() error { return nil }

var _ ns.Engine = (*Engine)(nil)
