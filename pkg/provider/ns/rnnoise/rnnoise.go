//go:build rnnoise

package rnnoise

/*
#cgo pkg-config: rnnoise
#include <rnnoise.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// Engine is the librnnoise ns.Engine.
type Engine struct{}

// New returns the librnnoise engine. It fails if the library reports a frame
// size other than ns.FrameSize.
func New() (ns.Engine, error) {
	if n := int(C.rnnoise_get_frame_size()); n != ns.FrameSize {
		return nil, fmt.Errorf("rnnoise: library frame size %d, want %d", n, ns.FrameSize)
	}
	return &Engine{}, nil
}

// Model wraps an RNNModel. A nil handle selects the weights compiled into the
// library.
type Model struct {
	mu     sync.Mutex
	handle *C.RNNModel
}

// Close frees the model. Calling Close more than once is safe.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		C.rnnoise_model_free(m.handle)
		m.handle = nil
	}
	return nil
}

// LoadModel loads a model file with rnnoise_model_from_filename. An empty path
// selects the embedded weights.
func (e *Engine) LoadModel(path string) (ns.Model, error) {
	if path == "" {
		return &Model{}, nil
	}
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	h := C.rnnoise_model_from_filename(cpath)
	if h == nil {
		return nil, fmt.Errorf("rnnoise: load model %q failed", path)
	}
	return &Model{handle: h}, nil
}

// NewSession creates a DenoiseState bound to m.
func (e *Engine) NewSession(m ns.Model) (ns.SessionHandle, error) {
	var h *C.RNNModel
	if m != nil {
		rm, ok := m.(*Model)
		if !ok {
			return nil, fmt.Errorf("rnnoise: model of type %T was not loaded by this engine", m)
		}
		h = rm.handle
	}
	st := C.rnnoise_create(h)
	if st == nil {
		return nil, fmt.Errorf("rnnoise: rnnoise_create failed")
	}
	return &Session{state: st}, nil
}

// Session wraps one DenoiseState.
type Session struct {
	state *C.DenoiseState
}

// ProcessFrame implements ns.SessionHandle. librnnoise accepts aliasing input
// and output buffers.
func (s *Session) ProcessFrame(in, out []float32) float32 {
	if s.state == nil || len(in) < ns.FrameSize || len(out) < ns.FrameSize {
		return -1
	}
	return float32(C.rnnoise_process_frame(
		s.state,
		(*C.float)(unsafe.Pointer(&out[0])),
		(*C.float)(unsafe.Pointer(&in[0])),
	))
}

// Close destroys the DenoiseState. Calling Close more than once is safe.
func (s *Session) Close() error {
	if s.state != nil {
		C.rnnoise_destroy(s.state)
		s.state = nil
	}
	return nil
}

var _ ns.Engine = (*Engine)(nil)
