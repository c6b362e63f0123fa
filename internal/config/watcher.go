package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ReloadFunc applies next, whose differences from the previously applied
// config are described by d. It should apply what it can: a returned error
// is reported through the error handler and next still becomes current. A
// dictionary that failed to load is retried when its file next changes.
type ReloadFunc func(next *Config, d ConfigDiff) error

// fileState is the last observed state of a watched file. A missing file
// has the zero state.
type fileState struct {
	mtime time.Time
	hash  [sha256.Size]byte
	data  []byte
}

func (s fileState) sameContent(o fileState) bool {
	return s.hash == o.hash
}

// readState reads path and returns its state. A missing file is not an
// error and yields the zero state.
func readState(path string) (fileState, error) {
	if path == "" {
		return fileState{}, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, err
	}
	return fileState{mtime: info.ModTime(), hash: sha256.Sum256(data), data: data}, nil
}

// Watcher keeps a running app in step with two files: the YAML config and
// the dictionary it points at. Both are polled by mtime and compared by
// SHA-256, so a touch without an edit is ignored.
//
// An edited config is parsed and validated first; invalid edits are
// reported and the previous config stays current. An edit of the dictionary
// file alone is reported as a [ConfigDiff] with DictionaryChanged set. The
// reload callback only runs when the resulting diff has a hot-reloadable
// change.
type Watcher struct {
	path     string
	interval time.Duration
	reload   ReloadFunc
	onError  func(error)

	mu      sync.Mutex
	current *Config
	config  fileState
	dict    fileState

	done     chan struct{}
	stopOnce sync.Once
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

// WithErrorHandler sets a callback invoked when an edited config fails to
// parse or validate, or when the reload callback fails. The watcher keeps
// polling either way.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher loads the config at path, records the state of the dictionary
// it names, and starts polling both in a background goroutine. reload may be
// nil, in which case the watcher only tracks [Watcher.Current].
func NewWatcher(path string, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		reload:   reload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	st, err := readState(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	if st.data == nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, fs.ErrNotExist)
	}
	cfg, err := LoadFromReader(bytes.NewReader(st.data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	dict, err := readState(cfg.Dictionary.Path)
	if err != nil {
		slog.Warn("config: cannot read dictionary for watching", "path", cfg.Dictionary.Path, "err", err)
	}
	w.current, w.config, w.dict = cfg, st, dict

	go w.poll()
	return w, nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
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

// check runs one polling round. Only check mutates the recorded file states,
// so the lock just guards them against Current.
func (w *Watcher) check() {
	w.mu.Lock()
	prev, prevConfig, prevDict := w.current, w.config, w.dict
	w.mu.Unlock()

	cfgState, err := w.statChanged(w.path, prevConfig)
	if err != nil {
		slog.Warn("config: watcher cannot read config", "path", w.path, "err", err)
		return
	}
	if cfgState.data == nil {
		slog.Warn("config: watched config file is missing; keeping previous config", "path", w.path)
		return
	}

	next := prev
	if !cfgState.sameContent(prevConfig) {
		parsed, err := LoadFromReader(bytes.NewReader(cfgState.data))
		if err != nil {
			slog.Warn("config: watcher rejected edit; keeping previous config", "path", w.path, "err", err)
			w.fail(err)
			w.mu.Lock()
			w.config.mtime = cfgState.mtime
			w.mu.Unlock()
			return
		}
		next = parsed
	}

	d := Diff(prev, next)
	var dictState fileState
	if d.DictionaryChanged {
		dictState, err = readState(next.Dictionary.Path)
	} else {
		dictState, err = w.statChanged(next.Dictionary.Path, prevDict)
	}
	if err != nil {
		slog.Warn("config: watcher cannot read dictionary", "path", next.Dictionary.Path, "err", err)
		dictState = prevDict
	}
	if !d.DictionaryChanged && !dictState.sameContent(prevDict) {
		d.DictionaryChanged = true
	}

	if !d.Changed() {
		for _, field := range d.RestartRequired {
			slog.Warn("config change requires restart", "setting", field)
		}
		w.commit(next, cfgState, dictState)
		return
	}

	var reloadErr error
	if w.reload != nil {
		reloadErr = w.reload(next, d)
	}
	w.commit(next, cfgState, dictState)
	if reloadErr != nil {
		slog.Warn("config: reload applied with errors", "path", w.path, "err", reloadErr)
		w.fail(fmt.Errorf("config: reload: %w", reloadErr))
		return
	}
	slog.Info("config: configuration reloaded", "path", w.path,
		"dictionary", d.DictionaryChanged,
		"session", d.SessionChanged,
		"speaker", d.SpeakerChanged,
		"log_level", d.LogLevelChanged,
	)
}

// statChanged returns the state of path, reading it only when its mtime
// moved since last.
func (w *Watcher) statChanged(path string, last fileState) (fileState, error) {
	if path == "" {
		return fileState{}, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return last, err
	}
	if info.ModTime().Equal(last.mtime) {
		return last, nil
	}
	return readState(path)
}

func (w *Watcher) commit(cfg *Config, cfgState, dictState fileState) {
	w.mu.Lock()
	w.current, w.config, w.dict = cfg, cfgState, dictState
	w.mu.Unlock()
}

func (w *Watcher) fail(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
