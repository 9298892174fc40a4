package searchdb

import (
	"errors"
	"fmt"
)

// Document is one indexed filesystem entry or application bundle. Path is its identity.
type Document struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Extension string `json:"extension"`
}

// Hit is a raw match returned by a Reader, before any contextual re-ranking.
type Hit struct {
	Path      string
	Filename  string
	Extension string
	Score     float64
}

// OpenOutcome tells a caller of OpenOrCreate whether the index had to be built from scratch.
type OpenOutcome int

const (
	Created OpenOutcome = iota + 1
	OpenedExisting
)

func (o OpenOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case OpenedExisting:
		return "opened_existing"
	default:
		return "unknown"
	}
}

var (
	// ErrSchemaMismatch is returned when an existing index does not carry the path, filename and extension fields.
	ErrSchemaMismatch = errors.New("index schema mismatch")
	// ErrIndexIO covers failures to create, open, write or read an index on disk.
	ErrIndexIO = errors.New("index i/o failure")
	// ErrWriterBusy is returned by TryWriter when another writer holds the store.
	ErrWriterBusy = errors.New("index writer busy")
	// ErrWriterClosed is returned when a writer is used after Close.
	ErrWriterClosed = errors.New("index writer closed")
	// ErrInvalidQuery marks malformed query text. It is distinct from a query with no results.
	ErrInvalidQuery = errors.New("invalid query")
)

type IndexError struct {
	Dir string
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s at %s: %s", e.Op, e.Dir, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexIO
}

type QueryError struct {
	Query  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

func (e *QueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}
