package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize catalog watcher")

// DefaultDebounce coalesces bursts of writes from editors and deploy tools.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives a freshly loaded and validated catalog.
type ReloadFunc func(ctx context.Context, patterns []knowledge.Pattern) error

// Watcher reloads a catalog file when it changes on disk.
//
// The parent directory is watched rather than the file, so atomic
// replace-by-rename keeps working. A catalog that fails to load is logged
// and ignored; the previous patterns stay in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration
	logger   *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for the catalog at path.
func NewWatcher(path string, onReload ReloadFunc, logger *zap.Logger) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("reload callback cannot be nil")
	}
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving catalog path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		debounce: DefaultDebounce,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching in a background goroutine. Stop or ctx cancellation
// ends it.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching catalog directory: %w", err)
	}
	w.started.Store(true)
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit. It is safe to
// call more than once and from several goroutines.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if !w.started.Load() {
			_ = w.watcher.Close()
		}
	})
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() { _ = w.watcher.Close() }()

	var pending <-chan time.Time
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
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))

		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	patterns, err := Load(w.path)
	if err != nil {
		w.logger.Warn("catalog reload failed, keeping previous patterns",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.onReload(ctx, patterns); err != nil {
		w.logger.Warn("catalog reload rejected",
			zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("catalog reloaded",
		zap.String("path", w.path), zap.Int("patterns", len(patterns)))
}
