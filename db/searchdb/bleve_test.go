package searchdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/meghashyamc/aleph/logger"
	"github.com/stretchr/testify/require"
)

var parseQuotedQueryTestCases = []struct {
	name              string
	input             string
	expectedQuoted    []string
	expectedRemaining string
}{
	{
		name:              "Simple quoted phrase",
		input:             `"hello world"`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "",
	},
	{
		name:              "Quoted phrase with remaining terms",
		input:             `"hello world" test golang`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "test golang",
	},
	{
		name:              "Multiple quoted phrases",
		input:             `"hello world" test "another phrase"`,
		expectedQuoted:    []string{"hello world", "another phrase"},
		expectedRemaining: "test",
	},
	{
		name:              "No quotes",
		input:             `hello world test`,
		expectedQuoted:    nil,
		expectedRemaining: "hello world test",
	},
	{
		name:              "Empty quoted phrase",
		input:             `"" test`,
		expectedQuoted:    nil,
		expectedRemaining: "test",
	},
	{
		name:              "Quoted phrase with extra spaces",
		input:             `"  hello world  " test`,
		expectedQuoted:    []string{"hello world"},
		expectedRemaining: "test",
	},
	{
		name:              "Multiple quoted phrases with spaces",
		input:             `  "first phrase"   test   "second phrase"  `,
		expectedQuoted:    []string{"first phrase", "second phrase"},
		expectedRemaining: "test",
	},
	{
		name:              "Unterminated quote",
		input:             `"budget 2024`,
		expectedQuoted:    nil,
		expectedRemaining: "budget 2024",
	},
}

func TestParseQuotedQuery(t *testing.T) {
	assert := require.New(t)
	for _, testCase := range parseQuotedQueryTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			quoted, remaining := parseQuotedQuery(testCase.input)

			assert.Equal(testCase.expectedQuoted, quoted, "quoted phrases should match")
			assert.Equal(testCase.expectedRemaining, remaining, "remaining (not quoted) terms should match")
		})
	}
}

func TestNewQuery(t *testing.T) {
	assert := require.New(t)

	q, err := NewQuery(`Q3_Report-final "Annual Plan"`, 2)
	assert.NoError(err)
	assert.False(q.Empty())
	assert.Equal([]string{"q3", "report", "final"}, q.Terms)
	assert.Equal([]string{"Annual Plan"}, q.Phrases)
	assert.Equal("Annual Plan Q3_Report-final", q.Text)

	for _, blank := range []string{"", "   ", `""`} {
		q, err := NewQuery(blank, 1)
		assert.NoError(err, blank)
		assert.True(q.Empty(), "blank query %q should be empty", blank)
	}

	_, err = NewQuery("bad\x00query", 1)
	assert.True(errors.Is(err, ErrInvalidQuery))

	_, err = NewQuery(strings.Repeat("a", MaxQueryLength+1), 1)
	var queryErr *QueryError
	assert.True(errors.As(err, &queryErr))
	assert.Equal("query is too long", queryErr.Reason)
}

func TestCaseInsensitivePattern(t *testing.T) {
	assert := require.New(t)

	assert.Equal(`[Aa][Bb]\.[Cc]`, caseInsensitivePattern("Ab.c"))
	assert.Equal(`[Aa][Bb]\.[Cc]`, caseInsensitivePattern("aB.C"), "classes do not depend on the input case")
	assert.Equal(`1\+2`, caseInsensitivePattern("1+2"))
	assert.Equal(`[Rr]/[Xx]`, caseInsensitivePattern("r/x"))
	assert.Equal("[Kk\u212a]", caseInsensitivePattern("k"), "the Kelvin sign folds to k")
}

func TestFuzzinessFor(t *testing.T) {
	assert := require.New(t)

	assert.Equal(0, fuzzinessFor("ab", 2))
	assert.Equal(1, fuzzinessFor("abcd", 2))
	assert.Equal(2, fuzzinessFor("report", 2))
	assert.Equal(1, fuzzinessFor("report", 1))
}

func newTestStore(t *testing.T, assert *require.Assertions) (*Store, string) {
	dir := filepath.Join(t.TempDir(), "index", "Desktop")
	store, outcome, err := OpenOrCreate(logger.Discard(), dir)
	assert.NoError(err, "could not create index")
	assert.Equal(Created, outcome)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func addAndCommit(assert *require.Assertions, store *Store, docs ...Document) {
	writer := store.Writer()
	defer writer.Close()
	for _, doc := range docs {
		assert.NoError(writer.Add(doc))
	}
	assert.NoError(writer.Commit())
}

func docFor(path string) Document {
	return Document{Path: path, Filename: filepath.Base(path), Extension: filepath.Ext(path)}
}

func TestOpenOrCreateIsIdempotent(t *testing.T) {
	assert := require.New(t)

	dir := filepath.Join(t.TempDir(), "index", "Documents")
	store, outcome, err := OpenOrCreate(logger.Discard(), dir)
	assert.NoError(err)
	assert.Equal(Created, outcome)
	assert.True(Exists(dir))

	addAndCommit(assert, store, docFor("/home/u/Documents/a.txt"), docFor("/home/u/Documents/b.txt"), docFor("/home/u/Documents/c.pdf"))
	assert.NoError(store.Close())

	for i := 0; i < 2; i++ {
		reopened, outcome, err := OpenOrCreate(logger.Discard(), dir)
		assert.NoError(err)
		assert.Equal(OpenedExisting, outcome)

		count, err := reopened.DocCount()
		assert.NoError(err)
		assert.Equal(uint64(3), count)
		assert.NoError(reopened.Close())
	}
}

func TestBuiltNeedsMarker(t *testing.T) {
	assert := require.New(t)
	store, dir := newTestStore(t, assert)

	addAndCommit(assert, store, docFor("/home/u/Desktop/a.txt"))
	assert.True(Exists(dir))
	assert.False(Built(dir), "a committed index is not built until it is marked")

	assert.NoError(store.MarkBuilt())
	assert.True(Built(dir))
	assert.False(Built(filepath.Join(t.TempDir(), "missing")))
}

func TestContains(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	addAndCommit(assert, store, docFor("/home/u/Desktop/a.txt"))

	found, err := store.Contains("/home/u/Desktop/a.txt")
	assert.NoError(err)
	assert.True(found)

	found, err = store.Contains("/home/u/Desktop/b.txt")
	assert.NoError(err)
	assert.False(found)
}

func TestAddReplacesDocumentWithSamePath(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	addAndCommit(assert, store, Document{Path: "/d/notes.txt", Filename: "notes.txt", Extension: "TXT"})
	addAndCommit(assert, store, Document{Path: "/d/notes.txt", Filename: "notes-renamed.txt", Extension: ".Txt"})

	count, err := store.DocCount()
	assert.NoError(err)
	assert.Equal(uint64(1), count)

	q, err := NewQuery("renamed", 1)
	assert.NoError(err)
	hits, err := store.Search(context.Background(), q, 5)
	assert.NoError(err)
	assert.Len(hits, 1)
	assert.Equal("/d/notes.txt", hits[0].Path)
	assert.Equal("notes-renamed.txt", hits[0].Filename)
	assert.Equal("txt", hits[0].Extension)
}

func TestDeleteByPath(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	addAndCommit(assert, store, docFor("/d/keep.txt"), docFor("/d/drop.txt"))

	writer := store.Writer()
	assert.NoError(writer.DeleteByPath("/d/drop.txt"))
	assert.NoError(writer.DeleteByPath("/d/never-indexed.txt"))
	assert.NoError(writer.Commit())
	writer.Close()

	count, err := store.DocCount()
	assert.NoError(err)
	assert.Equal(uint64(1), count)

	q, err := NewQuery("drop", 1)
	assert.NoError(err)
	hits, err := store.Search(context.Background(), q, 5)
	assert.NoError(err)
	assert.Empty(hits)
}

func TestReaderIsPointInTime(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	addAndCommit(assert, store, docFor("/d/one.txt"))

	reader, err := store.Reader()
	assert.NoError(err)
	defer reader.Close()
	assert.False(reader.Stale())

	addAndCommit(assert, store, docFor("/d/two.txt"))

	count, err := reader.DocCount()
	assert.NoError(err)
	assert.Equal(uint64(1), count, "old reader should not observe the new commit")
	assert.True(reader.Stale())

	fresh, err := store.Reader()
	assert.NoError(err)
	defer fresh.Close()
	count, err = fresh.DocCount()
	assert.NoError(err)
	assert.Equal(uint64(2), count)
}

func TestTryWriterWhileWriterHeld(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	writer := store.Writer()
	_, err := store.TryWriter()
	assert.ErrorIs(err, ErrWriterBusy)

	writer.Close()
	writer.Close()
	assert.ErrorIs(writer.Add(docFor("/d/late.txt")), ErrWriterClosed)

	second, err := store.TryWriter()
	assert.NoError(err)
	second.Close()
}

func TestWriterConcurrentAdds(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	writer := store.Writer()
	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		worker := worker
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				path := filepath.Join("/d", "w"+string(rune('a'+worker)), "file"+strings.Repeat("x", i%7)+string(rune('a'+i%26))+".txt")
				writer.Add(docFor(path + "-" + strings.Repeat("y", i)))
			}
		}()
	}
	wg.Wait()
	assert.NoError(writer.Commit())
	writer.Close()

	count, err := store.DocCount()
	assert.NoError(err)
	assert.Equal(uint64(1200), count)
}

func TestSearchMatchesFilenameAndPath(t *testing.T) {
	assert := require.New(t)
	store, _ := newTestStore(t, assert)

	addAndCommit(assert, store,
		docFor("/home/u/Desktop/report.pdf"),
		docFor("/home/u/Desktop/Projects/notes.txt"),
		docFor("/home/u/Desktop/holiday.jpg"),
	)

	testCases := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "ExactFilenameTerm", query: "report", expected: []string{"/home/u/Desktop/report.pdf"}},
		{name: "FuzzyFilenameTerm", query: "reportt", expected: []string{"/home/u/Desktop/report.pdf"}},
		{name: "FilenamePrefix", query: "holi", expected: []string{"/home/u/Desktop/holiday.jpg"}},
		{name: "CaseInsensitivePathSubstring", query: "PROJECTS", expected: []string{"/home/u/Desktop/Projects/notes.txt"}},
		{name: "QuotedPathPhrase", query: `"desktop/proj"`, expected: []string{"/home/u/Desktop/Projects/notes.txt"}},
		{name: "NoMatch", query: "zebra", expected: nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			q, err := NewQuery(testCase.query, 2)
			assert.NoError(err)

			hits, err := store.Search(context.Background(), q, 5)
			assert.NoError(err)

			var paths []string
			for _, hit := range hits {
				paths = append(paths, hit.Path)
				assert.Greater(hit.Score, 0.0)
			}
			assert.Equal(testCase.expected, paths)
		})
	}
}

func TestRegistrySharesOneStorePerDir(t *testing.T) {
	assert := require.New(t)

	registry := NewRegistry(logger.Discard())
	defer registry.Close()
	dir := filepath.Join(t.TempDir(), "apps")

	_, found, err := registry.OpenExisting(dir)
	assert.NoError(err)
	assert.False(found)

	var wg sync.WaitGroup
	stores := make([]*Store, 8)
	for i := range stores {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			store, _, err := registry.Open(dir)
			assert.NoError(err)
			stores[i] = store
		}()
	}
	wg.Wait()

	for _, store := range stores {
		assert.Same(stores[0], store)
	}

	existing, found, err := registry.OpenExisting(dir)
	assert.NoError(err)
	assert.True(found)
	assert.Same(stores[0], existing)
}
