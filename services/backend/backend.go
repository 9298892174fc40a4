// Package backend owns every long-lived piece of the search backend and exposes the three
// commands the presentation layer calls: file search, application search and open.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/db/kvdb"
	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/access"
	"github.com/meghashyamc/aleph/services/apps"
	"github.com/meghashyamc/aleph/services/icon"
	"github.com/meghashyamc/aleph/services/index"
	"github.com/meghashyamc/aleph/services/opener"
	"github.com/meghashyamc/aleph/services/scope"
	"github.com/meghashyamc/aleph/services/search"
	"github.com/meghashyamc/aleph/services/tasks"
	"github.com/meghashyamc/aleph/services/watch"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownScope = errors.New("unknown scope")

const (
	warmupQueueSize = 32
	shutdownTimeout = 10 * time.Second
)

type Service struct {
	logger   logger.Logger
	catalog  *scope.Catalog
	kvdb     kvdb.DB
	registry *searchdb.Registry
	crawler  *index.Service
	queue    *tasks.Queue
	icons    *icon.Resolver
	access   *access.Tracker
	opener   *opener.Opener
	files    *search.Engine
	apps     *apps.Searcher

	rankingModel string
	batchDelay   time.Duration
	filesDedup   *watch.DedupCache
	appsDedup    *watch.DedupCache

	bootstraps singleflight.Group

	filesWatchersOnce sync.Once
	appsWatcherOnce   sync.Once
	watchCtx          context.Context
	cancelWatch       context.CancelFunc
	watchersMu        sync.Mutex
	watchers          []*watch.Watcher

	closeOnce sync.Once
}

// New creates the cache root and the state database and wires the services together. Nothing is
// crawled or watched until the first search.
func New(logger logger.Logger, cfg *config.Config) (*Service, error) {
	resolver := scope.NewResolver(cfg.GetCacheRoot())
	if err := os.MkdirAll(resolver.CacheRoot(), 0755); err != nil {
		logger.Error("could not create cache root", "dir", resolver.CacheRoot(), "err", err.Error())
		return nil, fmt.Errorf("%w: could not create cache root %s: %w", search.ErrBootstrap, resolver.CacheRoot(), err)
	}

	db, err := kvdb.New(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrBootstrap, err)
	}

	catalog := scope.NewCatalog(resolver, scope.CatalogOptions{
		HomeDir:      cfg.GetHomeDir(),
		AppsRoot:     cfg.GetAppsRoot(),
		PrimaryScope: cfg.GetPrimaryScope(),
		ScopeFolders: cfg.GetScopeFolders(),
	})

	registry := searchdb.NewRegistry(logger)
	watchCtx, cancelWatch := context.WithCancel(context.Background())

	s := &Service{
		logger:       logger,
		catalog:      catalog,
		kvdb:         db,
		registry:     registry,
		crawler:      index.New(logger, registry, db, cfg.GetCrawlWorkers()),
		queue:        tasks.NewQueue(logger, cfg.GetWarmupWorkers(), warmupQueueSize),
		icons:        icon.NewResolver(logger, icon.NewCache(logger, resolver.IconsDir(), db)),
		access:       access.New(logger, db),
		opener:       opener.New(logger),
		rankingModel: cfg.GetRankingModel(),
		batchDelay:   cfg.GetWatchBatchDelay(),
		filesDedup:   watch.NewDedupCache(cfg.GetFilesDedupTTL()),
		appsDedup:    watch.NewDedupCache(cfg.GetAppsDedupTTL()),
		watchCtx:     watchCtx,
		cancelWatch:  cancelWatch,
	}

	s.files = search.New(logger, catalog, registry, s, s.icons, s.access, search.Options{
		TopK:  cfg.GetScopeTopK(),
		Cap:   cfg.GetResultCap(),
		Model: s.rankingModel,
	})
	if appsScope, ok := catalog.Apps(); ok {
		s.apps = apps.New(logger, registry, s, s.icons, appsScope, cfg.GetAppsResultCap())
	}

	return s, nil
}

func (s *Service) Catalog() *scope.Catalog {
	return s.catalog
}

// SearchFiles runs a federated search over every file scope. The first call crawls the primary
// scope and starts the file watchers.
func (s *Service) SearchFiles(ctx context.Context, query string) ([]search.ScoredResult, error) {
	return s.files.Search(ctx, query)
}

// SearchApps searches installed application bundles. The first call crawls the applications root
// and starts its watcher.
func (s *Service) SearchApps(ctx context.Context, query string) ([]apps.Result, error) {
	if s.apps == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope.AppsScopeName)
	}
	return s.apps.Search(ctx, query)
}

// Open hands path to the system opener and counts the access.
func (s *Service) Open(path string) error {
	if err := s.opener.Open(path); err != nil {
		return err
	}
	if err := s.access.Record(path, access.KindOpened); err != nil {
		s.logger.Warn("could not record open", "path", path, "err", err.Error())
	}
	return nil
}

// Crawl re-crawls the named scope on demand and makes sure its watchers are running.
func (s *Service) Crawl(ctx context.Context, scopeName string) (*index.Run, error) {
	sc, ok := s.catalog.ByName(scopeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scopeName)
	}

	var run *index.Run
	var err error
	if !searchdb.Built(sc.IndexDir) {
		// join a bootstrap crawl already in flight instead of racing it
		run, err = s.firstCrawl(ctx, sc)
	}
	if run == nil && err == nil {
		run, err = s.crawler.Crawl(ctx, sc)
	}
	if err != nil {
		return run, err
	}
	if sc.Kind == scope.KindApplications {
		if removed, err := s.icons.PruneCache(); err != nil {
			s.logger.Warn("could not prune icon cache", "err", err.Error())
		} else if removed > 0 {
			s.logger.Info("pruned icons of removed applications", "removed", removed)
		}
	}
	s.startWatchers(sc.Kind)
	return run, nil
}

// ScopeStatus describes one scope for the status endpoint and the CLI.
type ScopeStatus struct {
	Name      string     `json:"name"`
	Root      string     `json:"root"`
	Kind      string     `json:"kind"`
	Indexed   bool       `json:"indexed"`
	Documents uint64     `json:"documents"`
	LastRun   *index.Run `json:"last_run,omitempty"`
}

func (s *Service) Status() []ScopeStatus {
	scopes := s.catalog.All()
	statuses := make([]ScopeStatus, 0, len(scopes))
	for _, sc := range scopes {
		status := ScopeStatus{Name: sc.Name, Root: sc.Root, Kind: sc.Kind.String()}

		if store, ok, err := s.registry.OpenExisting(sc.IndexDir); err == nil && ok && searchdb.Built(sc.IndexDir) {
			status.Indexed = true
			if count, err := store.DocCount(); err == nil {
				status.Documents = count
			}
		}
		if run, err := s.crawler.LastRun(sc.Name); err == nil {
			status.LastRun = run
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Close stops the watchers and background crawls, then releases every index and the state database.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.cancelWatch()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.watchersMu.Lock()
		watchers := append([]*watch.Watcher(nil), s.watchers...)
		s.watchersMu.Unlock()
		for _, w := range watchers {
			select {
			case <-w.Done():
			case <-ctx.Done():
			}
		}

		if err := s.queue.Stop(ctx); err != nil {
			s.logger.Warn("background tasks did not finish before shutdown", "err", err.Error())
		}
		if err := s.registry.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.kvdb.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
