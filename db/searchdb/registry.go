package searchdb

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/meghashyamc/aleph/logger"
	"golang.org/x/sync/singleflight"
)

// Registry hands out one Store per index directory for the whole process.
// The underlying index holds an exclusive lock on its directory, so a second handle cannot be opened.
type Registry struct {
	logger logger.Logger

	mu     sync.Mutex
	stores map[string]*Store
	opens  singleflight.Group
}

type openResult struct {
	store   *Store
	outcome OpenOutcome
}

func NewRegistry(logger logger.Logger) *Registry {
	return &Registry{logger: logger, stores: make(map[string]*Store)}
}

// Open returns the store for dir, opening or creating it on first use.
// Concurrent first calls for the same dir share a single open.
func (r *Registry) Open(dir string) (*Store, OpenOutcome, error) {
	if store, ok := r.Get(dir); ok {
		return store, OpenedExisting, nil
	}

	result, err, _ := r.opens.Do(dir, func() (interface{}, error) {
		if store, ok := r.Get(dir); ok {
			return openResult{store: store, outcome: OpenedExisting}, nil
		}

		store, outcome, err := OpenOrCreate(r.logger, dir)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.stores[dir] = store
		r.mu.Unlock()
		return openResult{store: store, outcome: outcome}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	opened := result.(openResult)
	return opened.store, opened.outcome, nil
}

// OpenExisting opens dir only if an index already exists there.
func (r *Registry) OpenExisting(dir string) (*Store, bool, error) {
	if store, ok := r.Get(dir); ok {
		return store, true, nil
	}
	if !Exists(dir) {
		return nil, false, nil
	}

	store, _, err := r.Open(dir)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

func (r *Registry) Get(dir string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[dir]
	return store, ok
}

// Drop closes the store for dir and deletes the index from disk. The caller must not hold its writer.
func (r *Registry) Drop(dir string) error {
	r.mu.Lock()
	store, ok := r.stores[dir]
	delete(r.stores, dir)
	r.mu.Unlock()

	if ok {
		if err := store.Close(); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Error("could not remove index", "dir", dir, "err", err.Error())
		return fmt.Errorf("could not remove index %s: %w", dir, err)
	}
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for dir, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.stores, dir)
	}
	return errors.Join(errs...)
}
