package stackfile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize stack manifest watcher")

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ApplyFunc receives every successfully parsed manifest.
type ApplyFunc func(ctx context.Context, m *Manifest) error

// Watcher reloads a manifest whenever its file is written or replaced.
type Watcher struct {
	path     string
	apply    ApplyFunc
	logger   *zap.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(path string, apply ApplyFunc, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		path:     abs,
		apply:    apply,
		logger:   logger.Named("stackfile"),
		debounce: DefaultDebounce,
		watcher:  fw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the manifest's directory, so editors that replace the file
// on save are followed, and processes events in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
	<-w.done
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("stack manifest watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	m, err := Load(w.path)
	if err != nil {
		w.logger.Warn("stack manifest rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.apply(ctx, m); err != nil {
		w.logger.Warn("stack manifest partially applied", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("stack manifest applied",
		zap.String("path", w.path),
		zap.Int("primitives", len(m.Primitives)),
		zap.Int("tasks", len(m.Tasks)),
	)
}
