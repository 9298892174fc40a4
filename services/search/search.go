// Package search runs a query across every scope index and merges the hits by contextual score.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/scope"
)

// ErrBootstrap is returned when the primary scope could not be indexed before searching.
var ErrBootstrap = errors.New("could not bootstrap index")

const (
	defaultTopK      = 5
	defaultCap       = 15
	defaultFuzziness = 1
)

// Bootstrapper makes scope indices exist. EnsureIndexed blocks until the scope has been crawled
// once; WarmUp schedules that crawl in the background and returns immediately.
type Bootstrapper interface {
	EnsureIndexed(ctx context.Context, sc scope.Scope) error
	WarmUp(sc scope.Scope)
}

// IconResolver always returns a usable data URI for path.
type IconResolver interface {
	IconFor(path string) string
}

// AccessTracker supplies the ranking term used in place of recency by the access priority model.
type AccessTracker interface {
	Boost(path string) float64
}

type Options struct {
	TopK      int
	Cap       int
	Fuzziness int
	Model     string
}

type ScoredResult struct {
	Name  string  `json:"name"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
	Icon  string  `json:"icon,omitempty"`

	raw     float64
	factors Factors
}

type Engine struct {
	logger       logger.Logger
	catalog      *scope.Catalog
	registry     *searchdb.Registry
	bootstrapper Bootstrapper
	icons        IconResolver
	access       AccessTracker
	opts         Options
	now          func() time.Time
}

func New(logger logger.Logger, catalog *scope.Catalog, registry *searchdb.Registry, bootstrapper Bootstrapper, icons IconResolver, access AccessTracker, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.Cap <= 0 {
		opts.Cap = defaultCap
	}
	if opts.Fuzziness <= 0 {
		opts.Fuzziness = defaultFuzziness
	}
	if opts.Model == "" || (opts.Model == config.RankingModelAccessPriority && access == nil) {
		opts.Model = config.RankingModelRecency
	}

	return &Engine{
		logger:       logger,
		catalog:      catalog,
		registry:     registry,
		bootstrapper: bootstrapper,
		icons:        icons,
		access:       access,
		opts:         opts,
		now:          time.Now,
	}
}

// Search parses text, makes sure the primary scope is indexed, and returns the best hits across
// the primary scope and every other scope whose index already exists. Scopes without an index are
// warmed up in the background and contribute from a later call on.
func (e *Engine) Search(ctx context.Context, text string) ([]ScoredResult, error) {
	q, err := searchdb.NewQuery(text, e.opts.Fuzziness)
	if err != nil {
		return nil, err
	}

	primary := e.catalog.Primary()
	if err := e.bootstrapper.EnsureIndexed(ctx, primary); err != nil {
		e.logger.Error("could not bootstrap primary scope", "scope", primary.Name, "err", err.Error())
		return nil, fmt.Errorf("%w for scope %s: %w", ErrBootstrap, primary.Name, err)
	}

	var secondary []scope.Scope
	for _, sc := range e.catalog.Files() {
		if sc.Name == primary.Name {
			continue
		}
		if !searchdb.Built(sc.IndexDir) {
			e.bootstrapper.WarmUp(sc)
			continue
		}
		secondary = append(secondary, sc)
	}

	if q.Empty() {
		return []ScoredResult{}, nil
	}

	results, err := e.searchScope(ctx, primary, q)
	if err != nil {
		return nil, err
	}
	for _, sc := range secondary {
		scoped, err := e.searchScope(ctx, sc, q)
		if err != nil {
			e.logger.Warn("could not search scope, skipping", "scope", sc.Name, "err", err.Error())
			continue
		}
		results = append(results, scoped...)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > e.opts.Cap {
		results = results[:e.opts.Cap]
	}

	if e.icons != nil {
		for i := range results {
			results[i].Icon = e.icons.IconFor(results[i].Path)
		}
	}
	return results, nil
}

func (e *Engine) searchScope(ctx context.Context, sc scope.Scope, q *searchdb.Query) ([]ScoredResult, error) {
	store, ok, err := e.registry.OpenExisting(sc.IndexDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	hits, err := store.Search(ctx, q, e.opts.TopK)
	if err != nil {
		return nil, err
	}

	now := e.now()
	results := make([]ScoredResult, 0, len(hits))
	var stale []string
	for _, hit := range hits {
		if _, err := os.Lstat(hit.Path); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, hit.Path)
			continue
		}
		results = append(results, e.score(hit, q.Text, now))
	}

	if len(stale) > 0 {
		Prune(e.logger, store, stale)
	}
	return results, nil
}

func (e *Engine) score(hit searchdb.Hit, query string, now time.Time) ScoredResult {
	var contextBoost float64
	if e.opts.Model == config.RankingModelAccessPriority {
		contextBoost = e.access.Boost(hit.Path)
	} else {
		contextBoost = RecencyFor(hit.Path, now)
	}

	score, factors := ScoreContext(hit.Score, query, hit.Filename, hit.Path, hit.Extension, contextBoost)
	return ScoredResult{
		Name:    hit.Filename,
		Path:    hit.Path,
		Score:   score,
		raw:     hit.Score,
		factors: factors,
	}
}

// Prune deletes documents whose paths vanished from disk. It never waits for the writer: when a
// crawl or the watcher holds it the stale hits are only filtered, and a later query retries.
func Prune(logger logger.Logger, store *searchdb.Store, paths []string) {
	writer, err := store.TryWriter()
	if err != nil {
		logger.Debug("skipping stale entry cleanup", "dir", store.Dir(), "stale", len(paths), "err", err.Error())
		return
	}
	defer writer.Close()

	for _, path := range paths {
		if err := writer.DeleteByPath(path); err != nil {
			logger.Warn("could not delete stale entry", "path", path, "err", err.Error())
			return
		}
	}
	if err := writer.Commit(); err != nil {
		logger.Warn("could not commit stale entry cleanup", "dir", store.Dir(), "err", err.Error())
		return
	}
	logger.Debug("removed stale entries", "dir", store.Dir(), "stale", len(paths))
}
