// Package apps searches the application scope: bundles directly under the applications root.
package apps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/scope"
	"github.com/meghashyamc/aleph/services/search"
	"github.com/sahilm/fuzzy"
)

const (
	defaultCap = 15
	// bundle names are short and often typed loosely, so apps always get the widest edit distance
	appsFuzziness = 2
)

type Result struct {
	Name  string  `json:"name"`
	Path  string  `json:"path"`
	Icon  string  `json:"icon,omitempty"`
	Score float64 `json:"-"`

	tieBreak int
}

type Searcher struct {
	logger       logger.Logger
	registry     *searchdb.Registry
	bootstrapper search.Bootstrapper
	icons        search.IconResolver
	apps         scope.Scope
	cap          int
}

func New(logger logger.Logger, registry *searchdb.Registry, bootstrapper search.Bootstrapper, icons search.IconResolver, apps scope.Scope, cap int) *Searcher {
	if cap <= 0 {
		cap = defaultCap
	}
	return &Searcher{
		logger:       logger,
		registry:     registry,
		bootstrapper: bootstrapper,
		icons:        icons,
		apps:         apps,
		cap:          cap,
	}
}

// hitNames adapts hits to fuzzy.Source.
type hitNames []searchdb.Hit

func (h hitNames) String(i int) string { return h[i].Filename }
func (h hitNames) Len() int            { return len(h) }

// Search bootstraps the application index on first use and returns matching bundles, best first.
// Hits with equal index scores are ordered by how well their name matches as a subsequence.
func (s *Searcher) Search(ctx context.Context, text string) ([]Result, error) {
	q, err := searchdb.NewQuery(text, appsFuzziness)
	if err != nil {
		return nil, err
	}

	if err := s.bootstrapper.EnsureIndexed(ctx, s.apps); err != nil {
		s.logger.Error("could not bootstrap application index", "root", s.apps.Root, "err", err.Error())
		return nil, fmt.Errorf("%w for scope %s: %w", search.ErrBootstrap, s.apps.Name, err)
	}
	if q.Empty() {
		return []Result{}, nil
	}

	store, ok, err := s.registry.OpenExisting(s.apps.IndexDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Result{}, nil
	}

	hits, err := store.Search(ctx, q, s.cap)
	if err != nil {
		return nil, err
	}

	live := make(hitNames, 0, len(hits))
	var stale []string
	for _, hit := range hits {
		if _, err := os.Lstat(hit.Path); errors.Is(err, os.ErrNotExist) {
			stale = append(stale, hit.Path)
			continue
		}
		live = append(live, hit)
	}
	if len(stale) > 0 {
		search.Prune(s.logger, store, stale)
	}

	results := make([]Result, len(live))
	for i, hit := range live {
		results[i] = Result{Name: hit.Filename, Path: hit.Path, Score: hit.Score, tieBreak: math.MinInt}
	}
	for _, match := range fuzzy.FindFrom(q.Text, live) {
		results[match.Index].tieBreak = match.Score
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].tieBreak > results[j].tieBreak
	})

	if s.icons != nil {
		for i := range results {
			results[i].Icon = s.icons.IconFor(results[i].Path)
		}
	}
	return results, nil
}
