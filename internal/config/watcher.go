package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
)

// ConfigCallback receives each successfully reloaded configuration.
type ConfigCallback func(*GatewayConfig)

// ErrorCallback receives watch and reload errors.
type ErrorCallback func(error)

// Watcher reloads the gateway configuration file when it changes on
// disk. A reload that fails to parse or validate is reported through
// the error callback and the previous configuration stays in effect.
// Reloaded toggle defaults only reseed toggles that were not pinned by
// an administrative write; the caller implements that rule in its
// callback.
type Watcher struct {
	path          string
	fs            *fsnotify.Watcher
	callback      ConfigCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounce      time.Duration

	mu      sync.RWMutex
	current *GatewayConfig
	cancel  context.CancelFunc

	done chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = delay
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     absPath,
		fs:       fs,
		callback: callback,
		debounce: 100 * time.Millisecond,
		logger:   observability.NopLogger(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the configuration and begins watching the file. The
// directory is watched rather than the file itself, so atomic
// rename-based rewrites are picked up too.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.RLock()
	running := w.cancel != nil
	w.mu.RUnlock()
	if running {
		return nil
	}

	if _, err := w.load(); err != nil {
		return err
	}

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("started watching configuration file",
		observability.String("path", w.path),
	)

	go w.run(ctx)

	return nil
}

// Stop stops watching the configuration file.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-w.done

	return w.fs.Close()
}

// GetLastConfig returns the last successfully loaded configuration.
func (w *Watcher) GetLastConfig() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ForceReload reloads the configuration immediately, bypassing the
// debounce path.
func (w *Watcher) ForceReload() error {
	config, err := w.load()
	if err != nil {
		return err
	}

	if w.callback != nil {
		w.callback(config)
	}

	return nil
}

// load reads and validates the file, storing the result on success.
// On failure the stored configuration is left untouched.
func (w *Watcher) load() (*GatewayConfig, error) {
	config, err := LoadConfig(w.path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.current = config
	w.mu.Unlock()

	return config, nil
}

// run consumes file system events until the context is cancelled.
// Editors emit bursts of writes for a single save, so events are
// collapsed into one reload per debounce window.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("config file changed",
				observability.String("op", event.Op.String()),
			)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

// reload applies a debounced file change.
func (w *Watcher) reload() {
	config, err := w.load()
	if err != nil {
		w.fail(err)
		return
	}

	w.logger.Info("configuration reloaded",
		observability.String("path", w.path),
	)

	if w.callback != nil {
		w.callback(config)
	}
}

// fail reports a watch or reload error.
func (w *Watcher) fail(err error) {
	w.logger.Error("config watcher error",
		observability.Error(err),
	)
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}
