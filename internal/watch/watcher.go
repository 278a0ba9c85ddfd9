// Package watch re-runs a handler on matching files as they are written.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fieldfix/internal/discover"
)

// DefaultDebounce is how long a path must stay quiet before it is handled.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives settled paths in sorted order.
type Handler func(ctx context.Context, paths []string)

// Options configures a Watcher.
type Options struct {
	Matcher  discover.Matcher
	Debounce time.Duration
	Logger   *zap.Logger
	Handler  Handler
}

// Watcher watches every non-excluded directory below the matcher root.
type Watcher struct {
	opts    Options
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates the fsnotify watcher and registers the directory tree.
func New(opts Options) (*Watcher, error) {
	if opts.Handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{opts: opts, fsw: fsw, pending: make(map[string]time.Time)}
	if err := w.addTree(opts.Matcher.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.opts.Matcher.Root && w.opts.Matcher.Excluded(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.opts.Logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

// Run blocks until ctx is done, then closes the watcher. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.opts.Logger.Warn("closing watcher", zap.Error(err))
		}
	}()

	// тикер для склейки быстрых сохранений
	ticker := time.NewTicker(max(w.opts.Debounce/3, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("watch error", zap.Error(err))
		case <-ticker.C:
			if paths := w.settled(time.Now()); len(paths) > 0 {
				w.opts.Handler(ctx, paths)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if event.Has(fsnotify.Create) {
		// новые каталоги тоже надо отслеживать
		if err := w.addTree(event.Name); err == nil {
			w.opts.Logger.Debug("tree added", zap.String("path", event.Name))
		}
	}
	if !w.opts.Matcher.Match(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[filepath.Clean(event.Name)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.opts.Debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}
