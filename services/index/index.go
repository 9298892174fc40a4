// Package index runs the initial crawl that populates a scope's index from the live filesystem.
package index

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/meghashyamc/aleph/db/searchdb"
	"github.com/meghashyamc/aleph/logger"
	"github.com/meghashyamc/aleph/services/scope"
)

const defaultWorkers = 8

type Service struct {
	logger        logger.Logger
	registry      *searchdb.Registry
	metadataStore MetadataStore
	workers       int
}

func New(logger logger.Logger, registry *searchdb.Registry, metadataStore MetadataStore, workers int) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		logger:        logger,
		registry:      registry,
		metadataStore: metadataStore,
		workers:       workers,
	}
}

// Crawl walks the scope root and indexes every entry that survives the skip rules, creating the
// scope's index if needed. Application scopes only index bundles directly under the root.
// All documents are committed once, after the walk completes. The first successful crawl marks the
// index as built; a first crawl that fails removes what it wrote.
func (s *Service) Crawl(ctx context.Context, sc scope.Scope) (*Run, error) {
	run := Run{
		ID:        uuid.New().String(),
		Scope:     sc.Name,
		Root:      sc.Root,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.saveRun(run)

	documents, err := s.crawl(ctx, sc, run.ID)
	run.Documents = documents
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
		s.saveRun(run)
		return &run, err
	}

	run.Status = RunStatusCompleted
	s.saveRun(run)
	return &run, nil
}

func (s *Service) crawl(ctx context.Context, sc scope.Scope, runID string) (int64, error) {
	// an unreadable root fails before the index is created, so the next search retries the crawl
	root := scope.Canonical(sc.Root)
	dir, err := os.Open(root)
	if err != nil {
		s.logger.Error("could not open scope root", "scope", sc.Name, "root", root, "run_id", runID, "err", err.Error())
		return 0, fmt.Errorf("could not crawl %s: %w", root, err)
	}
	dir.Close()

	store, outcome, err := s.registry.Open(sc.IndexDir)
	if err != nil {
		s.logger.Error("could not open index for crawl", "scope", sc.Name, "run_id", runID, "err", err.Error())
		return 0, fmt.Errorf("could not open index for scope %s: %w", sc.Name, err)
	}

	// an index left behind by an interrupted first crawl is rebuilt like a new one
	firstBuild := outcome == searchdb.Created || !searchdb.Built(sc.IndexDir)

	s.logger.Info("starting crawl", "scope", sc.Name, "root", sc.Root, "kind", sc.Kind.String(), "index", outcome.String(), "run_id", runID)
	start := time.Now()

	writer := store.Writer()
	defer writer.Close()

	walker := newWalker(ctx, s.logger, writer, sc.Kind, s.workers)
	if err := walker.run(root); err != nil {
		s.logger.Error("crawl failed", "scope", sc.Name, "root", root, "run_id", runID, "err", err.Error())
		if firstBuild {
			writer.Close()
			if dropErr := s.registry.Drop(sc.IndexDir); dropErr != nil {
				s.logger.Warn("could not drop partial index", "scope", sc.Name, "run_id", runID, "err", dropErr.Error())
			}
		}
		return walker.documents.Load(), fmt.Errorf("could not crawl %s: %w", root, err)
	}

	if err := writer.Commit(); err != nil {
		s.logger.Error("could not commit crawl", "scope", sc.Name, "run_id", runID, "err", err.Error())
		return walker.documents.Load(), fmt.Errorf("could not commit crawl of %s: %w", sc.Name, err)
	}
	if firstBuild {
		if err := store.MarkBuilt(); err != nil {
			return walker.documents.Load(), fmt.Errorf("could not finish first crawl of %s: %w", sc.Name, err)
		}
	}

	documents := walker.documents.Load()
	s.logger.Info("finished crawl", "scope", sc.Name, "documents", documents, "took", time.Since(start).String(), "run_id", runID)
	return documents, nil
}
