package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/meghashyamc/aleph/config"
	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/services/access"
	"github.com/meghashyamc/aleph/services/index"
	"github.com/meghashyamc/aleph/services/scope"
	"github.com/meghashyamc/aleph/services/watch"
)

// Apply routes watcher changes to the index of the scope that owns each path. Each scope's changes
// are written under that scope's single writer and committed together. Scopes whose index has not
// been built yet are skipped; their first crawl picks the changes up.
func (s *Service) Apply(ctx context.Context, changes []watch.Change) error {
	var order []scope.Scope
	grouped := make(map[string][]watch.Change)
	for _, change := range changes {
		sc, ok := s.catalog.Owner(change.ChangedPath())
		if !ok {
			s.logger.Debug("change outside every scope, ignoring", "path", change.ChangedPath())
			continue
		}
		if _, seen := grouped[sc.Name]; !seen {
			order = append(order, sc)
		}
		grouped[sc.Name] = append(grouped[sc.Name], change)
	}

	var errs []error
	for _, sc := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.applyToScope(sc, grouped[sc.Name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) applyToScope(sc scope.Scope, changes []watch.Change) error {
	store, ok, err := s.registry.OpenExisting(sc.IndexDir)
	if err != nil {
		return fmt.Errorf("could not open index for scope %s: %w", sc.Name, err)
	}
	if !ok {
		return nil
	}

	writer := store.Writer()
	defer writer.Close()

	for _, change := range changes {
		switch change := change.(type) {
		case watch.Created:
			// a created file link is indexed under its target, as the crawler does
			path := change.Path
			if sc.Kind == scope.KindFiles {
				path = scope.Canonical(path)
			}
			kind := s.createdKind(store, path)
			err = writer.Add(index.DocumentFor(path))
			s.recordAccess(path, kind)
		case watch.Removed:
			err = writer.DeleteByPath(change.Path)
			s.recordAccess(change.Path, access.KindRemoved)
		}
		if err != nil {
			return fmt.Errorf("could not apply change to scope %s: %w", sc.Name, err)
		}
	}

	if err := writer.Commit(); err != nil {
		return fmt.Errorf("could not commit changes to scope %s: %w", sc.Name, err)
	}
	s.logger.Debug("applied changes", "scope", sc.Name, "changes", len(changes))
	return nil
}

// createdKind tells a new path from a write that replaced an indexed document.
func (s *Service) createdKind(store *searchdb.Store, path string) access.Kind {
	if s.rankingModel != config.RankingModelAccessPriority {
		return access.KindCreated
	}
	if found, err := store.Contains(path); err == nil && found {
		return access.KindModified
	}
	return access.KindCreated
}

// recordAccess feeds the access counters only when they are used for ranking.
func (s *Service) recordAccess(path string, kind access.Kind) {
	if s.rankingModel != config.RankingModelAccessPriority {
		return
	}
	if err := s.access.Record(path, kind); err != nil {
		s.logger.Debug("could not record access", "path", path, "kind", string(kind), "err", err.Error())
	}
}
