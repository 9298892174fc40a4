package backend

import (
	"context"
	"errors"

	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/services/index"
	"github.com/meghashyamc/aleph/services/scope"
	"github.com/meghashyamc/aleph/services/watch"
)

// EnsureIndexed crawls sc unless its index has been built. Concurrent callers for the same scope
// share one crawl and all return once it has finished. The crawl is detached from the caller's cancellation so that an abandoned
// request does not leave a half-built index behind.
func (s *Service) EnsureIndexed(ctx context.Context, sc scope.Scope) error {
	return s.ensureIndexed(context.WithoutCancel(ctx), sc)
}

func (s *Service) ensureIndexed(ctx context.Context, sc scope.Scope) error {
	if !searchdb.Built(sc.IndexDir) {
		if _, err := s.firstCrawl(ctx, sc); err != nil {
			return err
		}
	}

	s.startWatchers(sc.Kind)
	return nil
}

// firstCrawl builds the index of sc once, however many callers ask at the same time. It returns a
// nil run when the index turned out to be built already.
func (s *Service) firstCrawl(ctx context.Context, sc scope.Scope) (*index.Run, error) {
	v, err, _ := s.bootstraps.Do(sc.Name, func() (interface{}, error) {
		if searchdb.Built(sc.IndexDir) {
			return nil, nil
		}
		return s.crawler.Crawl(ctx, sc)
	})
	run, _ := v.(*index.Run)
	return run, err
}

// WarmUp queues a background crawl for sc. Roots that do not exist are skipped. Unlike a crawl
// started by EnsureIndexed, a queued crawl stops when the backend shuts down.
func (s *Service) WarmUp(sc scope.Scope) {
	if !scope.DirExists(sc.Root) {
		s.logger.Debug("scope root does not exist, not warming up", "scope", sc.Name, "root", sc.Root)
		return
	}

	if s.queue.Submit(sc.Name, func(ctx context.Context) error {
		return s.ensureIndexed(ctx, sc)
	}) {
		s.logger.Info("queued background crawl", "scope", sc.Name)
	}
}

// startWatchers starts the watchers for every scope of kind, once per process.
func (s *Service) startWatchers(kind scope.Kind) {
	if kind == scope.KindApplications {
		s.appsWatcherOnce.Do(func() {
			if sc, ok := s.catalog.Apps(); ok {
				s.startWatcher(sc, watch.ModeApps, s.appsDedup)
			}
		})
		return
	}

	s.filesWatchersOnce.Do(func() {
		for _, sc := range s.catalog.Files() {
			s.startWatcher(sc, watch.ModeFiles, s.filesDedup)
		}
	})
}

func (s *Service) startWatcher(sc scope.Scope, mode watch.Mode, dedup *watch.DedupCache) {
	w := watch.New(s.logger, s, watch.Options{
		Root:       sc.Root,
		Mode:       mode,
		Dedup:      dedup,
		BatchDelay: s.batchDelay,
	})

	if err := w.Start(s.watchCtx); err != nil {
		if errors.Is(err, watch.ErrPathNotFound) {
			s.logger.Debug("scope root does not exist, not watching", "scope", sc.Name, "root", sc.Root)
			return
		}
		s.logger.Warn("could not watch scope", "scope", sc.Name, "root", sc.Root, "err", err.Error())
		return
	}

	s.watchersMu.Lock()
	s.watchers = append(s.watchers, w)
	s.watchersMu.Unlock()
}
