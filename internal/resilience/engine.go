package resilience

import (
	"fmt"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Engine is an ns.Engine that loads its model from the first healthy
// candidate. The primary receives the requested model path; fallbacks
// always load their built-in model since model files are engine specific.
// Sessions are created by whichever engine loaded the model.
type Engine struct {
	group FallbackGroup[candidate]
}

type candidate struct {
	name     string
	engine   ns.Engine
	fallback bool
}

// NewEngine returns an empty Engine. Engines are tried in the order added.
func NewEngine() *Engine { return &Engine{} }

// AddPrimary appends the engine that receives the requested model path.
func (e *Engine) AddPrimary(name string, eng ns.Engine, breaker *CircuitBreaker) {
	e.group.Add(name, candidate{name: name, engine: eng}, breaker)
}

// AddFallback appends an engine that loads its built-in model.
func (e *Engine) AddFallback(name string, eng ns.Engine, breaker *CircuitBreaker) {
	e.group.Add(name, candidate{name: name, engine: eng, fallback: true}, breaker)
}

// Len returns the number of engines added.
func (e *Engine) Len() int { return e.group.Len() }

// LoadModel implements ns.Engine.
func (e *Engine) LoadModel(path string) (ns.Model, error) {
	return ExecuteWithResult(&e.group, func(c candidate) (ns.Model, error) {
		p := path
		if c.fallback {
			p = ""
		}
		m, err := c.engine.LoadModel(p)
		if err != nil {
			return nil, err
		}
		return &model{owner: c, inner: m}, nil
	})
}

// NewSession implements ns.Engine. m must come from this Engine's LoadModel.
func (e *Engine) NewSession(m ns.Model) (ns.SessionHandle, error) {
	gm, ok := m.(*model)
	if !ok {
		return nil, fmt.Errorf("resilience: model %T was not loaded by this engine", m)
	}
	return gm.owner.engine.NewSession(gm.inner)
}

// model remembers which candidate loaded it.
type model struct {
	owner candidate
	inner ns.Model
}

func (m *model) Close() error { return m.inner.Close() }

var (
	_ ns.Engine = (*Engine)(nil)
	_ ns.Model  = (*model)(nil)
)
