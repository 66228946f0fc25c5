// Package gate implements a pure Go ns.Engine: an adaptive noise gate driven
// by a per-channel noise-floor tracker.
//
// Each frame's energy is compared with a slowly tracking noise floor. The
// signal-to-floor ratio is mapped through a logistic curve to the VAD score,
// and the score sets a smoothed gain that is ramped across the frame to avoid
// zipper noise. Silence in gives silence out with a score of 0.
package gate

import (
	"fmt"
	"math"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Engine is the gate ns.Engine. The zero value is ready to use.
type Engine struct{}

// New returns a gate engine.
func New() *Engine { return &Engine{} }

// LoadModel returns [DefaultParams] for an empty path, otherwise the YAML
// parameter file at path.
func (e *Engine) LoadModel(path string) (ns.Model, error) {
	if path == "" {
		return DefaultParams(), nil
	}
	return LoadParams(path)
}

// NewSession creates a session using the *Params loaded by LoadModel. A nil
// model selects the defaults.
func (e *Engine) NewSession(m ns.Model) (ns.SessionHandle, error) {
	p := DefaultParams()
	if m != nil {
		var ok bool
		if p, ok = m.(*Params); !ok {
			return nil, fmt.Errorf("gate: model of type %T was not loaded by this engine", m)
		}
	}
	return &Session{
		params: p,
		floor:  p.InitialFloorDB,
		gain:   p.MinGain,
	}, nil
}

var _ ns.Engine = (*Engine)(nil)

// Session is the per-channel gate state.
type Session struct {
	params *Params
	floor  float64
	gain   float64
}

// ProcessFrame implements ns.SessionHandle.
func (s *Session) ProcessFrame(in, out []float32) float32 {
	p := s.params
	n := min(len(in), len(out))
	if n == 0 {
		return 0
	}

	var energy float64
	for _, v := range in[:n] {
		energy += float64(v) * float64(v)
	}
	level := 10 * math.Log10(energy/float64(n)+1)

	score := 0.0
	if level >= p.SilenceDB {
		snr := level - s.floor
		score = 1 / (1 + math.Exp(-p.SNRSlope*(snr-p.SNRMidpointDB)))
	}

	if level < s.floor {
		s.floor += p.FloorFall * (level - s.floor)
	} else {
		s.floor += p.FloorRise * (level - s.floor)
	}

	target := p.MinGain + (1-p.MinGain)*score
	next := p.GainSmoothing*s.gain + (1-p.GainSmoothing)*target
	step := (next - s.gain) / float64(n)
	g := s.gain
	for i := range n {
		g += step
		out[i] = float32(float64(in[i]) * g)
	}
	s.gain = next

	return float32(score)
}

// Close implements ns.SessionHandle.
func (s *Session) Close() error { return nil }

// NoiseFloorDB returns the current noise-floor estimate.
func (s *Session) NoiseFloorDB() float64 { return s.floor }
