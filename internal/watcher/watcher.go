// Package watcher keeps the index in sync with the corpus directories on
// disk. File writes re-ingest the file after a debounce window; deletions
// remove the derived document.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// FileIndexer is the slice of the ingest pipeline the watcher drives.
type FileIndexer interface {
	IngestFile(ctx context.Context, path string, allowedExts []string) error
	DeleteFile(ctx context.Context, path string) error
}

// Watcher watches the corpus directories and keeps the document registry and
// vector index synchronized with the files on disk.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	indexer    FileIndexer
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for ingest outcomes and file events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the debounce window before a changed file is
// re-ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over the configured corpus directories.
func NewWatcher(cfg *config.IngestConfig, indexer FileIndexer, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      append([]string(nil), cfg.CorpusDirs...),
		extensions: append([]string(nil), cfg.Extensions...),
		recursive:  cfg.RecursiveOrDefault(),
		indexer:    indexer,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It creates missing corpus directories and runs until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.started = true
	for _, root := range w.roots {
		if err := w.watchRootLocked(root); err != nil {
			fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Info("watching corpus directories",
			zap.Strings("roots", w.roots),
			zap.Strings("extensions", w.extensions),
			zap.Bool("recursive", w.recursive))
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	path := ev.Name
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			// A directory dropped into the corpus: watch it and ingest
			// everything inside. Files may land before the watch is in
			// place, so the walk covers them.
			w.watchSubtree(path)
			go w.ingestTree(ctx, path)
			return
		}
		if w.matchExtension(path) {
			w.scheduleIngest(ctx, path)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelPending(path)
		if w.matchExtension(path) {
			w.removeFile(ctx, path)
		}
	}
}

// SyncExisting ingests every matching file already present under the corpus
// roots. Call after Start to pick up files created while not watching.
func (w *Watcher) SyncExisting(ctx context.Context) {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		w.ingestTree(ctx, root)
	}
}

func (w *Watcher) ingestTree(ctx context.Context, root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.matchExtension(path) {
			w.ingestFile(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	err := w.indexer.IngestFile(ctx, path, w.extensions)
	if w.logger == nil {
		return
	}
	if err != nil {
		w.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("file ingested", zap.String("path", path))
}

func (w *Watcher) removeFile(ctx context.Context, path string) {
	err := w.indexer.DeleteFile(ctx, path)
	if errors.Is(err, models.ErrNotFound) {
		// Never ingested (or already gone); nothing to do.
		return
	}
	if w.logger == nil {
		return
	}
	if err != nil {
		w.logger.Warn("remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Debug("file removed from index", zap.String("path", path))
}

func (w *Watcher) watchRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	if !w.recursive {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// watchSubtree adds a newly created directory (and, when recursive, its
// subdirectories) to the watch set.
func (w *Watcher) watchSubtree(dir string) {
	w.mu.Lock()
	fsw := w.fsw
	recursive := w.recursive
	w.mu.Unlock()
	if fsw == nil {
		return
	}
	if !recursive {
		if err := fsw.Add(dir); err != nil && w.logger != nil {
			w.logger.Warn("watch directory failed", zap.String("path", dir), zap.Error(err))
		}
		return
	}
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil && w.logger != nil {
				w.logger.Warn("watch directory failed", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Stop stops watching and cancels pending ingests.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
