package searchdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/char/regexp"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/meghashyamc/aleph/logger"
)

const indexingBatchSize = 500

const (
	indexFieldPath      = "path"
	indexFieldFilename  = "filename"
	indexFieldExtension = "extension"

	filenameAnalyzerName = "filename"
	separatorFilterName  = "filename_separators"

	indexMetaFile   = "index_meta.json"
	builtMarkerFile = "aleph_built"
)

var schemaFields = []string{indexFieldPath, indexFieldFilename, indexFieldExtension}

// Store owns one persistent index directory. Writers are serialized per store; readers are snapshots.
type Store struct {
	dir    string
	logger logger.Logger
	index  bleve.Index

	writerMu   sync.Mutex
	generation atomic.Uint64
}

// Exists reports whether dir already holds an index.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, indexMetaFile))
	return err == nil
}

// Built reports whether dir holds an index whose first crawl was committed. An index that exists
// without the marker was abandoned or is still being crawled.
func Built(dir string) bool {
	if !Exists(dir) {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, builtMarkerFile))
	return err == nil
}

// MarkBuilt records that the store holds a complete crawl.
func (s *Store) MarkBuilt() error {
	if err := os.WriteFile(filepath.Join(s.dir, builtMarkerFile), nil, 0644); err != nil {
		s.logger.Error("could not mark index as built", "dir", s.dir, "err", err.Error())
		return &IndexError{Dir: s.dir, Op: "mark built", Err: err}
	}
	return nil
}

// OpenOrCreate opens the index in dir, creating it with the fixed schema if it does not exist yet.
// A concurrent creator winning the race is not an error: the store falls back to opening.
func OpenOrCreate(logger logger.Logger, dir string) (*Store, OpenOutcome, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		logger.Error("could not create index parent directory", "dir", dir, "err", err.Error())
		return nil, 0, &IndexError{Dir: dir, Op: "create", Err: err}
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, 0, &IndexError{Dir: dir, Op: "create", Err: err}
	}

	outcome := Created
	idx, err := bleve.New(dir, indexMapping)
	if errors.Is(err, bleve.ErrorIndexPathExists) {
		outcome = OpenedExisting
		idx, err = bleve.Open(dir)
	}
	if err != nil {
		logger.Error("could not open index", "dir", dir, "outcome", outcome.String(), "err", err.Error())
		return nil, 0, &IndexError{Dir: dir, Op: "open", Err: err}
	}

	if err := verifySchema(idx.Mapping()); err != nil {
		logger.Error("index schema mismatch", "dir", dir, "err", err.Error())
		idx.Close()
		return nil, 0, err
	}

	logger.Debug("index ready", "dir", dir, "outcome", outcome.String())
	return &Store{dir: dir, logger: logger, index: idx}, outcome, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {

	indexMapping := bleve.NewIndexMapping()

	// "Q3_report-final.pdf" is indexed as q3, report, final, pdf
	if err := indexMapping.AddCustomCharFilter(separatorFilterName, map[string]interface{}{
		"type":    regexp.Name,
		"regexp":  `[._\-\s]+`,
		"replace": " ",
	}); err != nil {
		return nil, fmt.Errorf("could not register filename char filter: %w", err)
	}
	if err := indexMapping.AddCustomAnalyzer(filenameAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"char_filters":  []string{separatorFilterName},
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("could not register filename analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	// Path field - not analyzed (exact match), also the document ID
	pathFieldMapping := bleve.NewTextFieldMapping()
	pathFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(indexFieldPath, pathFieldMapping)

	// Filename field - split on separators for fuzzy and prefix matching
	filenameFieldMapping := bleve.NewTextFieldMapping()
	filenameFieldMapping.Analyzer = filenameAnalyzerName
	docMapping.AddFieldMappingsAt(indexFieldFilename, filenameFieldMapping)

	extensionFieldMapping := bleve.NewTextFieldMapping()
	extensionFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(indexFieldExtension, extensionFieldMapping)

	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

func verifySchema(m mapping.IndexMapping) error {
	impl, ok := m.(*mapping.IndexMappingImpl)
	if !ok || impl.DefaultMapping == nil {
		return fmt.Errorf("%w: unexpected mapping type %T", ErrSchemaMismatch, m)
	}
	for _, field := range schemaFields {
		property, ok := impl.DefaultMapping.Properties[field]
		if !ok || len(property.Fields) == 0 {
			return fmt.Errorf("%w: missing field %q", ErrSchemaMismatch, field)
		}
	}
	return nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) DocCount() (uint64, error) {
	count, err := s.index.DocCount()
	if err != nil {
		return 0, &IndexError{Dir: s.dir, Op: "count", Err: err}
	}
	return count, nil
}

func (s *Store) Close() error {
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			s.logger.Error("could not close search index", "dir", s.dir, "err", err.Error())
			return &IndexError{Dir: s.dir, Op: "close", Err: err}
		}
	}
	return nil
}

// Contains reports whether a committed document exists for path.
func (s *Store) Contains(path string) (bool, error) {
	doc, err := s.index.Document(path)
	if err != nil {
		return false, &IndexError{Dir: s.dir, Op: "lookup", Err: err}
	}
	return doc != nil, nil
}

// Writer blocks until no other writer holds the store.
func (s *Store) Writer() *Writer {
	s.writerMu.Lock()
	return newWriter(s)
}

// TryWriter returns ErrWriterBusy instead of waiting for the current writer.
func (s *Store) TryWriter() (*Writer, error) {
	if !s.writerMu.TryLock() {
		return nil, ErrWriterBusy
	}
	return newWriter(s), nil
}

// Writer accumulates adds and deletes for one store. It is safe for concurrent use by crawler workers.
// Pending work is flushed in batches as it grows; Commit flushes the rest and publishes a new generation.
type Writer struct {
	store *Store

	mu      sync.Mutex
	batch   *bleve.Batch
	pending int
	closed  bool
}

func newWriter(s *Store) *Writer {
	return &Writer{store: s, batch: s.index.NewBatch()}
}

// Add indexes doc under its path, replacing any document already stored for that path.
func (w *Writer) Add(doc Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	doc.Extension = strings.ToLower(strings.TrimPrefix(doc.Extension, "."))
	if err := w.batch.Index(doc.Path, doc); err != nil {
		w.store.logger.Error("could not index document", "path", doc.Path, "err", err.Error())
		return &IndexError{Dir: w.store.dir, Op: "add", Err: err}
	}
	return w.maybeFlush()
}

func (w *Writer) DeleteByPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	w.batch.Delete(path)
	return w.maybeFlush()
}

// Commit applies everything pending. A reader acquired afterwards observes it.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	if err := w.flush(); err != nil {
		return err
	}
	w.store.generation.Add(1)
	return nil
}

// Close releases the store for the next writer. Work not yet flushed is discarded.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.batch.Reset()
	w.store.writerMu.Unlock()
}

func (w *Writer) maybeFlush() error {
	w.pending++
	if w.pending < indexingBatchSize {
		return nil
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if w.batch.Size() == 0 {
		w.pending = 0
		return nil
	}
	if err := w.store.index.Batch(w.batch); err != nil {
		w.store.logger.Error("could not apply index batch", "dir", w.store.dir, "err", err.Error())
		return &IndexError{Dir: w.store.dir, Op: "commit", Err: err}
	}
	w.batch.Reset()
	w.pending = 0
	return nil
}

// Reader returns a point-in-time snapshot. It never observes commits made after it was acquired;
// callers take a fresh reader to see them.
func (s *Store) Reader() (*Reader, error) {
	advanced, err := s.index.Advanced()
	if err != nil {
		return nil, &IndexError{Dir: s.dir, Op: "read", Err: err}
	}
	snapshot, err := advanced.Reader()
	if err != nil {
		return nil, &IndexError{Dir: s.dir, Op: "read", Err: err}
	}
	return &Reader{
		store:      s,
		snapshot:   snapshot,
		mapping:    s.index.Mapping(),
		generation: s.generation.Load(),
	}, nil
}

type Reader struct {
	store      *Store
	snapshot   index.IndexReader
	mapping    mapping.IndexMapping
	generation uint64
}

// Stale reports whether a commit has happened since the reader was acquired.
func (r *Reader) Stale() bool {
	return r.store.generation.Load() != r.generation
}

func (r *Reader) DocCount() (uint64, error) {
	count, err := r.snapshot.DocCount()
	if err != nil {
		return 0, &IndexError{Dir: r.store.dir, Op: "count", Err: err}
	}
	return count, nil
}

func (r *Reader) Close() error {
	return r.snapshot.Close()
}

// Search runs q against the snapshot and returns at most limit hits by descending score.
func (r *Reader) Search(ctx context.Context, q *Query, limit int) ([]Hit, error) {
	if q == nil || q.Empty() || limit <= 0 {
		return nil, nil
	}

	searcher, err := q.bleveQuery.Searcher(ctx, r.snapshot, r.mapping, search.SearcherOptions{})
	if err != nil {
		return nil, &QueryError{Query: q.Raw, Reason: err.Error()}
	}
	defer searcher.Close()

	topN := collector.NewTopNCollector(limit, 0, search.SortOrder{&search.SortScore{Desc: true}})
	if err := topN.Collect(ctx, searcher, r.snapshot); err != nil {
		r.store.logger.Error("search failed", "dir", r.store.dir, "err", err.Error())
		return nil, &IndexError{Dir: r.store.dir, Op: "search", Err: err}
	}

	matches := topN.Results()
	hits := make([]Hit, 0, len(matches))
	for _, match := range matches {
		hit := Hit{Path: match.ID, Score: match.Score}
		r.loadStoredFields(&hit)
		hits = append(hits, hit)
	}
	return hits, nil
}

func (r *Reader) loadStoredFields(hit *Hit) {
	doc, err := r.snapshot.Document(hit.Path)
	if err == nil && doc != nil {
		doc.VisitFields(func(field index.Field) {
			switch field.Name() {
			case indexFieldFilename:
				hit.Filename = string(field.Value())
			case indexFieldExtension:
				hit.Extension = string(field.Value())
			}
		})
	}
	if hit.Filename == "" {
		hit.Filename = filepath.Base(hit.Path)
	}
	if hit.Extension == "" {
		hit.Extension = ExtensionOf(hit.Path)
	}
}

// Search is a one-shot search on a fresh snapshot.
func (s *Store) Search(ctx context.Context, q *Query, limit int) ([]Hit, error) {
	reader, err := s.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return reader.Search(ctx, q, limit)
}

// ExtensionOf returns the lowercase extension of path without the leading dot.
func ExtensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}
