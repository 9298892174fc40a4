// Package watch keeps scope indices in sync with the filesystem after the initial crawl.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/index"
	"github.com/meghashyamc/aleph/services/scope"
	"golang.org/x/time/rate"
)

var ErrPathNotFound = errors.New("watch root not found")

const (
	defaultBatchDelay = 50 * time.Millisecond
	maxBatchSize      = 512
)

// Indexer applies routed changes to the index of whichever scope owns each path.
type Indexer interface {
	Apply(ctx context.Context, changes []Change) error
}

type Mode int

const (
	// ModeFiles watches the whole tree below the root.
	ModeFiles Mode = iota
	// ModeApps watches the root only and reports changes as their owning bundle.
	ModeApps
)

func (m Mode) String() string {
	if m == ModeApps {
		return "apps"
	}
	return "files"
}

type State int

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

type Options struct {
	Root       string
	Mode       Mode
	Dedup      *DedupCache
	BatchDelay time.Duration
}

type Watcher struct {
	logger  logger.Logger
	indexer Indexer
	root    string
	mode    Mode
	dedup   *DedupCache
	limiter *rate.Limiter

	mu       sync.Mutex
	state    State
	notifier *fsnotify.Watcher
	done     chan struct{}
}

func New(logger logger.Logger, indexer Indexer, opts Options) *Watcher {
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = defaultBatchDelay
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewDedupCache(500 * time.Millisecond)
	}
	return &Watcher{
		logger:  logger,
		indexer: indexer,
		root:    scope.Canonical(opts.Root),
		mode:    opts.Mode,
		dedup:   dedup,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		done:    make(chan struct{}),
	}
}

func (w *Watcher) Root() string {
	return w.root
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Start subscribes to the root and runs the event loop until ctx is cancelled.
// It fails fast with ErrPathNotFound when the root does not exist.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateIdle {
		return fmt.Errorf("watcher for %s already started", w.root)
	}
	if !scope.DirExists(w.root) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, w.root)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("could not create filesystem watcher", "root", w.root, "err", err.Error())
		return fmt.Errorf("could not create filesystem watcher: %w", err)
	}
	w.notifier = notifier

	if w.mode == ModeApps {
		err = w.addApps()
	} else {
		err = w.addRecursive(w.root)
	}
	if err != nil {
		notifier.Close()
		w.logger.Error("could not watch root", "root", w.root, "err", err.Error())
		return fmt.Errorf("could not watch %s: %w", w.root, err)
	}

	w.state = StateWatching
	w.logger.Info("watching for changes", "root", w.root, "mode", w.mode.String())
	go w.loop(ctx)
	return nil
}

// addRecursive watches dir and every directory below it that the crawler would descend into.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && index.ShouldSkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.notifier.Add(path); err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("could not watch directory, skipping", "dir", path, "err", err.Error())
		}
		return nil
	})
}

// bundleWatchDirs are the directories of a bundle whose changes are reported against it. Watching
// every installed bundle fully would take one descriptor per file under kqueue.
var bundleWatchDirs = []string{".", "Contents", filepath.Join("Contents", "Resources")}

// addApps watches the applications root and the upper levels of every bundle directly inside it.
func (w *Watcher) addApps() error {
	if err := w.notifier.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() && scope.IsBundle(entry.Name()) {
			w.addBundle(filepath.Join(w.root, entry.Name()))
		}
	}
	return nil
}

func (w *Watcher) addBundle(bundle string) {
	for _, sub := range bundleWatchDirs {
		dir := filepath.Join(bundle, sub)
		if !scope.DirExists(dir) {
			continue
		}
		if err := w.notifier.Add(dir); err != nil {
			w.logger.Debug("could not watch bundle directory, skipping", "dir", dir, "err", err.Error())
		}
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			batch := w.drain([]fsnotify.Event{event})
			w.process(ctx, batch)

			// coalesce bursts: at most one batch per delay
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "root", w.root, "err", err.Error())
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.notifier.Close(); err != nil {
		w.logger.Warn("could not close filesystem watcher", "root", w.root, "err", err.Error())
	}
	w.state = StateStopped
	w.logger.Info("stopped watching", "root", w.root)
}

// drain collects every event that is already queued without blocking.
func (w *Watcher) drain(batch []fsnotify.Event) []fsnotify.Event {
	for len(batch) < maxBatchSize {
		select {
		case event, ok := <-w.notifier.Events:
			if !ok {
				return batch
			}
			batch = append(batch, event)
		default:
			return batch
		}
	}
	return batch
}

func (w *Watcher) process(ctx context.Context, events []fsnotify.Event) {
	changes := w.handleBatch(events)
	changes = w.expandDirectories(changes)
	if len(changes) == 0 {
		return
	}

	if err := w.indexer.Apply(ctx, changes); err != nil {
		w.logger.Warn("could not apply changes to index", "root", w.root, "changes", len(changes), "err", err.Error())
	}
}

// handleBatch turns raw events into the changes worth routing: translated, filtered by the skip
// rules, resolved to bundles in apps mode, deduplicated and checked against the filesystem.
func (w *Watcher) handleBatch(events []fsnotify.Event) []Change {
	w.dedup.Evict()

	var changes []Change
	for _, event := range events {
		for _, change := range Translate(event) {
			change, ok := w.resolve(change)
			if !ok || !w.confirm(change) {
				continue
			}
			if !w.dedup.Admit(change) {
				continue
			}

			switch change := change.(type) {
			case Created:
				w.dedup.Forget(Removed{Path: change.Path})
			case Removed:
				w.dedup.Forget(Created{Path: change.Path})
			}
			changes = append(changes, change)
		}
	}
	return changes
}

func (w *Watcher) resolve(change Change) (Change, bool) {
	path := change.ChangedPath()
	if !scope.IsWithin(w.root, path) || path == w.root {
		return nil, false
	}

	if w.mode == ModeFiles {
		if index.ShouldSkipPath(w.root, path) {
			return nil, false
		}
		return change, true
	}

	// a change inside a bundle is reported against the bundle; confirm then drops a removal
	// while the bundle is still installed
	bundle, ok := resolveBundle(w.root, path)
	if !ok || filepath.Dir(bundle) != w.root {
		return nil, false
	}
	return withPath(change, bundle), true
}

// confirm checks a change against the filesystem at processing time. A removal of a path that
// exists again (a modify, or a quick delete-and-recreate) is dropped, and so is a creation of a
// path that is already gone.
func (w *Watcher) confirm(change Change) bool {
	_, err := os.Stat(change.ChangedPath())
	exists := err == nil

	switch change.(type) {
	case Created:
		return exists
	case Removed:
		return !exists
	default:
		return false
	}
}

// expandDirectories starts watching directories created under the root and reports the files
// already inside them, since their creation events may have been missed. In apps mode a created
// bundle is watched like the bundles present at start.
func (w *Watcher) expandDirectories(changes []Change) []Change {
	if w.mode != ModeFiles {
		for _, change := range changes {
			if created, ok := change.(Created); ok && scope.DirExists(created.Path) {
				w.addBundle(created.Path)
			}
		}
		return changes
	}

	expanded := make([]Change, 0, len(changes))
	for _, change := range changes {
		created, ok := change.(Created)
		if !ok || !scope.DirExists(created.Path) {
			expanded = append(expanded, change)
			continue
		}

		if err := w.addRecursive(created.Path); err != nil {
			w.logger.Debug("could not watch new directory", "dir", created.Path, "err", err.Error())
		}
		expanded = append(expanded, w.scanFiles(created.Path)...)
	}
	return expanded
}

func (w *Watcher) scanFiles(dir string) []Change {
	var changes []Change
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && index.ShouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !index.ShouldSkipFile(d.Name()) {
			changes = append(changes, Created{Path: path})
		}
		return nil
	})
	return changes
}
