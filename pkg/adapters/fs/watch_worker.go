package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/commentmail/pkg/core"
)

// Events implements core.EventSource. It snapshots every watched document,
// then turns file changes into comment events by diffing the new snapshot
// against the previous one. The channel is closed once ctx is cancelled.
func (s *Store) Events(ctx context.Context) (<-chan core.ChangeEvent, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	if s.watcherActive {
		s.mu.Unlock()
		return nil, errors.New("watcher already started")
	}
	s.watcherActive = true
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.setWatcherActive(false)
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &watchWorker{
		store:     s,
		watcher:   watcher,
		debouncer: newDebouncer(s.debounce),
		snapshots: make(map[string]core.Document),
		out:       make(chan core.ChangeEvent, 64),
	}
	if err := w.prime(); err != nil {
		_ = watcher.Close()
		s.setWatcherActive(false)
		return nil, err
	}

	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		s.logger.Error("watcher failed", "root", s.root, "error", err)
	}))
	return w.out, nil
}

type watchWorker struct {
	store     *Store
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	out       chan core.ChangeEvent

	mu        sync.Mutex
	snapshots map[string]core.Document
}

// prime registers every directory with the watcher and records the current
// state of each document, so that pre-existing comments are not reported.
func (w *watchWorker) prime() error {
	return filepath.WalkDir(w.store.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != w.store.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if !w.matches(path) {
			return nil
		}
		ref, err := w.store.referenceFor(path)
		if err != nil {
			return nil
		}
		doc, err := w.store.load(path, ref)
		if err != nil {
			w.store.logger.Warn("skipping unreadable document", "path", path, "error", err)
			return nil
		}
		w.snapshots[path] = doc
		return nil
	})
}

func (w *watchWorker) run(ctx context.Context) (err error) {
	logger := w.store.logger
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.Debug("watcher panic", "stack", string(debug.Stack()))
			}
		}
	}()
	defer close(w.out)
	defer w.store.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)

	if !w.debouncer.stopAndWait(5 * time.Second) {
		logger.Warn("debouncer did not drain before shutdown")
	}
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher events channel closed")
			}
			w.handle(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("watcher errors channel closed")
			}
			w.store.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

func (w *watchWorker) handle(ctx context.Context, event fsnotify.Event) {
	logger := w.store.logger
	logger.Debug("event received", "name", event.Name, "op", event.Op.String())

	if strings.HasPrefix(filepath.Base(event.Name), tempFilePrefix) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(ctx, event.Name)
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The snapshot outlives the file: a document written back later is
		// diffed against it, so its old comments are not reported again.
		logger.Debug("document moved away, snapshot kept", "name", event.Name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		path := event.Name
		w.debouncer.add(path, func() { w.reload(ctx, path) })
	}
}

// addTree watches a directory created after start and picks up any documents
// already written into it.
func (w *watchWorker) addTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.store.logger.Warn("failed to watch directory", "path", path, "error", err)
			}
			return nil
		}
		if w.matches(path) {
			p := path
			w.debouncer.add(p, func() { w.reload(ctx, p) })
		}
		return nil
	})
}

func (w *watchWorker) reload(ctx context.Context, path string) {
	logger := w.store.logger
	ref, err := w.store.referenceFor(path)
	if err != nil {
		logger.Debug("ignoring file outside the document layout", "path", path, "error", err)
		return
	}

	doc, err := w.store.load(path, ref)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.Debug("document gone before reload", "document", ref.String())
			return
		}
		logger.Warn("failed to reload document", "document", ref.String(), "error", err)
		return
	}

	w.mu.Lock()
	var prev *core.Document
	if old, ok := w.snapshots[path]; ok {
		prev = &old
	}
	w.snapshots[path] = doc
	w.mu.Unlock()

	for _, e := range diffComments(prev, doc, time.Now()) {
		w.emit(ctx, e)
	}
}

// emit delivers e unless the worker is shutting down.
func (w *watchWorker) emit(ctx context.Context, e core.ChangeEvent) {
	defer func() {
		// The channel may have been closed if the debouncer timed out on shutdown.
		_ = recover()
	}()
	select {
	case w.out <- e:
		w.store.recordEvent(e.OccurredAt)
	case <-ctx.Done():
	}
}

func (w *watchWorker) matches(path string) bool {
	rel, err := filepath.Rel(w.store.root, path)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.store.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}
