package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/scope"
	"golang.org/x/sync/errgroup"
)

var excludedDirs = map[string]struct{}{
	"node_modules": {},
	"target":       {},
	"build":        {},
	"dist":         {},
	".git":         {},
	".svn":         {},
	".hg":          {},
	".cache":       {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	".idea":        {},
	".vscode":      {},
}

var tempExtensions = map[string]struct{}{
	".tmp":  {},
	".temp": {},
	".bak":  {},
	".swp":  {},
	".swo":  {},
}

var junkFiles = map[string]struct{}{
	".DS_Store": {},
	"Thumbs.db": {},
}

// ShouldSkipDir is true for hidden directories and well-known build, cache and VCS directories.
func ShouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, excluded := excludedDirs[name]
	return excluded
}

// ShouldSkipFile is true for hidden files and for editor or OS temporary files.
func ShouldSkipFile(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return true
	}
	if _, junk := junkFiles[name]; junk {
		return true
	}
	if strings.HasSuffix(name, "~") || strings.HasPrefix(name, "#") || strings.HasSuffix(name, "#") {
		return true
	}
	_, temp := tempExtensions[strings.ToLower(filepath.Ext(name))]
	return temp
}

// ShouldSkipPath applies the skip rules to every component of path below root.
func ShouldSkipPath(root string, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, dir := range parts[:len(parts)-1] {
		if ShouldSkipDir(dir) {
			return true
		}
	}
	last := parts[len(parts)-1]
	return ShouldSkipFile(last) || ShouldSkipDir(last)
}

// DocumentFor builds the index document for path. Bundles keep their full directory name as filename.
func DocumentFor(path string) searchdb.Document {
	return searchdb.Document{
		Path:      path,
		Filename:  filepath.Base(path),
		Extension: searchdb.ExtensionOf(path),
	}
}

// walker is a bounded parallel recursive directory walk. Every subdirectory becomes a task on the
// errgroup; when the group is at its limit the walk continues inline instead of blocking.
type walker struct {
	parent context.Context
	ctx    context.Context
	group  *errgroup.Group
	logger logger.Logger
	writer *searchdb.Writer
	kind   scope.Kind

	visitedMu sync.Mutex
	visited   map[string]struct{}

	documents atomic.Int64
}

func newWalker(ctx context.Context, logger logger.Logger, writer *searchdb.Writer, kind scope.Kind, workers int) *walker {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(workers, 1))
	return &walker{
		parent:  ctx,
		ctx:     groupCtx,
		group:   group,
		logger:  logger,
		writer:  writer,
		kind:    kind,
		visited: make(map[string]struct{}),
	}
}

// run walks root and waits for every spawned task. An unreadable root is an error; anything below
// it that cannot be read is skipped.
func (w *walker) run(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	w.markVisited(root)
	w.visitEntries(root, entries, 1)

	if err := w.group.Wait(); err != nil {
		return err
	}
	// inline walks swallow cancellation, so check the caller's context as well
	return w.parent.Err()
}

func (w *walker) spawn(dir string, depth int) {
	task := func() error {
		return w.walkDir(dir, depth)
	}
	if !w.group.TryGo(task) {
		if err := task(); err != nil {
			w.logger.Debug("walk stopped", "dir", dir, "err", err.Error())
		}
	}
}

func (w *walker) walkDir(dir string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Debug("could not read directory, skipping", "dir", dir, "err", err.Error())
		return nil
	}
	w.visitEntries(dir, entries, depth)
	return nil
}

func (w *walker) visitEntries(dir string, entries []os.DirEntry, depth int) {
	for _, entry := range entries {
		if w.ctx.Err() != nil {
			return
		}

		name := entry.Name()
		path := filepath.Join(dir, name)

		isDir, resolved, ok := w.resolve(path, entry)
		if !ok {
			continue
		}

		if w.kind == scope.KindApplications {
			// only top-level bundles; their contents are never indexed
			if depth == 1 && isDir && scope.IsBundle(name) && !strings.HasPrefix(name, ".") {
				w.add(path)
			}
			continue
		}

		if isDir {
			if ShouldSkipDir(name) || !w.markVisited(resolved) {
				continue
			}
			w.spawn(resolved, depth+1)
			continue
		}

		if !ShouldSkipFile(name) && !ShouldSkipFile(filepath.Base(resolved)) {
			w.add(resolved)
		}
	}
}

// resolve follows symlinks and returns the canonical path of the target, so that a walk through a
// link indexes canonical paths and cycles are detected.
func (w *walker) resolve(path string, entry os.DirEntry) (bool, string, bool) {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.IsDir(), path, true
	}

	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("could not follow symlink, skipping", "path", path, "err", err.Error())
		return false, "", false
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		w.logger.Debug("could not resolve symlink, skipping", "path", path, "err", err.Error())
		return false, "", false
	}
	return info.IsDir(), resolved, true
}

func (w *walker) markVisited(dir string) bool {
	w.visitedMu.Lock()
	defer w.visitedMu.Unlock()

	if _, seen := w.visited[dir]; seen {
		return false
	}
	w.visited[dir] = struct{}{}
	return true
}

func (w *walker) add(path string) {
	if err := w.writer.Add(DocumentFor(path)); err != nil {
		w.logger.Warn("could not index entry, skipping", "path", path, "err", err.Error())
		return
	}
	w.documents.Add(1)
}
