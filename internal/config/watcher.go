package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and swaps in the new configuration when it
// validates and differs in effect from the current one. hush serve applies
// the pipeline of [Watcher.Current] to sessions opened after the swap; open
// sessions keep their settings.
//
// Edits that change nothing effective, such as touching the file or
// reformatting it, update no state and fire no callback. An invalid file is
// reported once and ignored until it is modified again.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	seen     fileStamp
	done     chan struct{}
	stopOnce sync.Once
}

// fileStamp identifies one version of the file on disk.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts polling it. onChange, if non-nil, runs on
// the polling goroutine after every swap with the previous and the new
// config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = stampOf(info)

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config. It must not be
// modified.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if its stamp moved and applies the result.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	stamp := stampOf(info)

	w.mu.Lock()
	unchanged := stamp == w.seen
	w.seen = stamp
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	d := Diff(old, cfg)
	if d.Empty() {
		w.mu.Unlock()
		slog.Debug("config watcher: file changed without effect", "path", w.path)
		return
	}
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config watcher: configuration swapped",
		"path", w.path,
		"pipeline_fields", d.PipelineFields,
		"log_level_changed", d.LogLevelChanged,
		"server_changed", d.ServerChanged,
	)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}
