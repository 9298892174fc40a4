package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meghashyamc/aleph/db/kvdb"
)

// MetadataStore is the part of the key-value database the crawler records runs in.
type MetadataStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run records the latest crawl of a scope.
type Run struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	Root       string    `json:"root"`
	Status     RunStatus `json:"status"`
	Documents  int64     `json:"documents"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (s *Service) saveRun(run Run) {
	if s.metadataStore == nil {
		return
	}

	data, err := json.Marshal(run)
	if err != nil {
		s.logger.Error("failed to marshal crawl run", "scope", run.Scope, "err", err.Error())
		return
	}

	if err := s.metadataStore.Set(kvdb.CrawlsBucket, run.Scope, string(data)); err != nil {
		s.logger.Error("failed to save crawl run", "scope", run.Scope, "run_id", run.ID, "err", err.Error())
	}
}

// LastRun returns the most recent crawl recorded for scopeName.
func (s *Service) LastRun(scopeName string) (*Run, error) {
	if s.metadataStore == nil {
		return nil, &kvdb.NotFoundError{Bucket: kvdb.CrawlsBucket, Key: scopeName}
	}

	value, err := s.metadataStore.Get(kvdb.CrawlsBucket, scopeName)
	if err != nil {
		return nil, err
	}

	var run Run
	if err := json.Unmarshal([]byte(value), &run); err != nil {
		s.logger.Error("failed to unmarshal crawl run", "scope", scopeName, "err", err.Error())
		return nil, fmt.Errorf("failed to unmarshal crawl run for %s: %w", scopeName, err)
	}

	return &run, nil
}
