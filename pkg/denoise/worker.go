package denoise

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/hush/pkg/provider/ns"
)

// workerState is the lifecycle of one channel worker.
//
//	Idle -> Queued -> Processing -> Done -> Idle
//	Idle -> Stopped
type workerState int32

const (
	stateIdle workerState = iota
	stateQueued
	stateProcessing
	stateDone
	stateStopped
)

func (s workerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateQueued:
		return "queued"
	case stateProcessing:
		return "processing"
	case stateDone:
		return "done"
	case stateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("workerState(%d)", int32(s))
	}
}

// result is the outcome of one frame on one channel.
type result struct {
	score float32
	err   error
}

var errNotIdle = errors.New("worker not idle")

// worker owns one engine session and the buffers for one channel.
//
// The driver writes in only while the worker is Idle and reads out only
// after receiving from done. The work/done channels are a one-slot mailbox:
// at most one frame is outstanding per worker.
type worker struct {
	index   int
	session ns.SessionHandle

	in      []float32 // staging input, written by the driver
	out     []float32 // staging output, written by the worker
	scratch []float32 // worker-private

	state atomic.Int32

	// nil for inline workers
	work   chan struct{}
	done   chan result
	quit   chan struct{}
	exited chan struct{}

	stopOnce sync.Once
}

func newWorker(index int, session ns.SessionHandle, threaded bool) *worker {
	w := &worker{
		index:   index,
		session: session,
		in:      make([]float32, ns.FrameSize),
		out:     make([]float32, ns.FrameSize),
		scratch: make([]float32, ns.FrameSize),
	}
	if threaded {
		w.work = make(chan struct{}, 1)
		w.done = make(chan result, 1)
		w.quit = make(chan struct{})
		w.exited = make(chan struct{})
		go w.loop()
	}
	return w
}

func (w *worker) loadState() workerState {
	return workerState(w.state.Load())
}

func (w *worker) transition(from, to workerState) bool {
	return w.state.CompareAndSwap(int32(from), int32(to))
}

func (w *worker) loop() {
	defer close(w.exited)
	for {
		select {
		case <-w.quit:
			return
		case <-w.work:
			w.transition(stateQueued, stateProcessing)
			r := w.run()
			w.transition(stateProcessing, stateDone)
			w.done <- r
		}
	}
}

// run denoises the staging input into the staging output on the calling
// goroutine.
func (w *worker) run() (r result) {
	copy(w.scratch, w.in)
	defer func() {
		if p := recover(); p != nil {
			r = result{err: fmt.Errorf("channel %d: engine panic: %v: %w", w.index, p, ErrExternalEngine)}
		}
	}()
	score := w.session.ProcessFrame(w.scratch, w.scratch)
	if math.IsNaN(float64(score)) || score < 0 || score > 1 {
		return result{err: fmt.Errorf("channel %d: engine returned score %v: %w", w.index, score, ErrExternalEngine)}
	}
	copy(w.out, w.scratch)
	return result{score: score}
}

// dispatch hands the staging input to the worker goroutine.
func (w *worker) dispatch() error {
	if !w.transition(stateIdle, stateQueued) {
		return fmt.Errorf("channel %d: %w (state %s)", w.index, errNotIdle, w.loadState())
	}
	w.work <- struct{}{}
	return nil
}

// wait blocks until the dispatched frame is done and returns the worker to
// Idle.
func (w *worker) wait() result {
	r := <-w.done
	w.transition(stateDone, stateIdle)
	return r
}

// runInline processes the staging input synchronously for single-channel
// contexts.
func (w *worker) runInline() result {
	if !w.transition(stateIdle, stateProcessing) {
		return result{err: fmt.Errorf("channel %d: %w (state %s)", w.index, errNotIdle, w.loadState())}
	}
	r := w.run()
	w.state.Store(int32(stateIdle))
	return r
}

// stop parks the worker in Stopped and joins its goroutine. Only valid from
// Idle, which the driver guarantees by joining every frame before Close.
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		w.state.Store(int32(stateStopped))
		if w.quit != nil {
			close(w.quit)
			<-w.exited
		}
	})
}
