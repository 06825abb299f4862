package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Reload is delivered to a [Watcher] callback when the file content changed
// into a different valid config.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls a config file. A change that parses, validates and differs
// from the current config is delivered as a [Reload]; anything else keeps the
// current config. Edits that only touch comments or formatting produce no
// Reload.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)
	onError  func(error)

	mu      sync.Mutex
	current *Config
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
	reloads int

	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler is called with every rejected reload. The default logs a
// warning.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// NewWatcher loads path and starts polling it. onReload may be nil. Call Stop
// to end polling.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	w.onError = func(err error) {
		slog.Warn("config reload rejected, keeping current config", "path", path, "err", err)
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.modTime, w.size, w.sum = snap.cfg, snap.modTime, snap.size, snap.sum

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.loop(ctx)
	return w, nil
}

// Current returns the newest valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reloads returns how many Reloads were delivered.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Stop ends polling and waits for an in-progress check to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.modTime) && info.Size() == w.size
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := w.read()
	if err != nil {
		// Remember the stat so a broken file is reported once per edit.
		w.mu.Lock()
		w.modTime, w.size = info.ModTime(), info.Size()
		w.mu.Unlock()
		w.onError(err)
		return
	}

	w.mu.Lock()
	w.modTime, w.size = snap.modTime, snap.size
	if snap.sum == w.sum {
		w.mu.Unlock()
		return
	}
	w.sum = snap.sum
	r := Reload{Old: w.current, New: snap.cfg, Diff: Diff(w.current, snap.cfg)}
	w.current = snap.cfg
	if r.Diff.Empty() {
		w.mu.Unlock()
		return
	}
	w.reloads++
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path, "restart_required", r.Diff.RestartRequired)
	if w.onReload != nil {
		w.onReload(r)
	}
}

type snapshot struct {
	cfg     *Config
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

func (w *Watcher) read() (snapshot, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, modTime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
