package searchdb

import (
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	MaxQueryLength = 1000

	boostForFuzzyFilename  = 1.0
	boostForPrefixFilename = 1.2
	boostForPathSubstring  = 1.5
)

var (
	quotedPhrasePattern = regexp.MustCompile(`"([^"]*)"`)
	separatorPattern    = regexp.MustCompile(`[._\-\s]+`)
)

// Query is parsed and compiled user input, ready to run against any scope's reader.
//
// Unquoted input is split into filename terms that match fuzzily and by prefix. The unquoted input
// as a whole and every quoted phrase also match as a case-insensitive substring of the full path.
type Query struct {
	Raw string
	// Text is the input with quotes removed and whitespace collapsed. Ranking matches it as a substring.
	Text    string
	Terms   []string
	Phrases []string

	bleveQuery query.Query
}

// Empty is true for input that contains nothing to search for. Callers treat it as "no results".
func (q *Query) Empty() bool {
	return q.bleveQuery == nil
}

// NewQuery parses text and builds the combined fuzzy, prefix and path-substring query.
// Fuzziness is the maximum edit distance for filename terms and is capped at 2.
func NewQuery(text string, fuzziness int) (*Query, error) {
	if len(text) > MaxQueryLength {
		return nil, &QueryError{Query: text[:64] + "...", Reason: "query is too long"}
	}
	if !utf8.ValidString(text) {
		return nil, &QueryError{Query: text, Reason: "query is not valid utf-8"}
	}
	if strings.ContainsRune(text, 0) {
		return nil, &QueryError{Query: text, Reason: "query contains a null byte"}
	}

	phrases, remaining := parseQuotedQuery(text)
	q := &Query{
		Raw:     text,
		Text:    strings.Join(append(append([]string(nil), phrases...), strings.Fields(remaining)...), " "),
		Terms:   splitTerms(remaining),
		Phrases: phrases,
	}

	var needles []string
	if remaining != "" {
		needles = append(needles, remaining)
	}
	needles = append(needles, phrases...)
	if len(needles) == 0 && len(q.Terms) == 0 {
		return q, nil
	}

	q.bleveQuery = buildSearchQuery(q.Terms, needles, min(max(fuzziness, 0), 2))
	return q, nil
}

func buildSearchQuery(terms []string, needles []string, fuzziness int) query.Query {

	disjunctQuery := bleve.NewDisjunctionQuery()

	for _, term := range terms {
		if distance := fuzzinessFor(term, fuzziness); distance > 0 {
			fuzzyQuery := bleve.NewFuzzyQuery(term)
			fuzzyQuery.SetField(indexFieldFilename)
			fuzzyQuery.SetFuzziness(distance)
			fuzzyQuery.SetBoost(boostForFuzzyFilename)
			disjunctQuery.AddQuery(fuzzyQuery)
		}

		prefixQuery := bleve.NewPrefixQuery(term)
		prefixQuery.SetField(indexFieldFilename)
		prefixQuery.SetBoost(boostForPrefixFilename)
		disjunctQuery.AddQuery(prefixQuery)
	}

	for _, needle := range needles {
		pathQuery := bleve.NewRegexpQuery(".*" + caseInsensitivePattern(needle) + ".*")
		pathQuery.SetField(indexFieldPath)
		pathQuery.SetBoost(boostForPathSubstring)
		disjunctQuery.AddQuery(pathQuery)
	}

	return disjunctQuery
}

// fuzzinessFor keeps very short terms from matching nearly every filename.
func fuzzinessFor(term string, fuzziness int) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 4:
		return min(fuzziness, 1)
	default:
		return fuzziness
	}
}

// splitTerms mirrors the filename analyzer so that query terms line up with indexed tokens.
func splitTerms(text string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, term := range strings.Fields(separatorPattern.ReplaceAllString(strings.ToLower(text), " ")) {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// caseInsensitivePattern escapes text for a regexp and turns every cased letter into a class of all
// its case foldings in code point order, e.g. "Ab.c" becomes "[Aa][Bb]\.[Cc]".
func caseInsensitivePattern(text string) string {
	var sb strings.Builder
	for _, r := range text {
		folds := caseFolds(r)
		if len(folds) == 1 {
			sb.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}
		sb.WriteByte('[')
		for _, f := range folds {
			sb.WriteRune(f)
		}
		sb.WriteByte(']')
	}
	return sb.String()
}

func caseFolds(r rune) []rune {
	folds := []rune{r}
	if !unicode.IsLetter(r) {
		return folds
	}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		folds = append(folds, f)
	}
	slices.Sort(folds)
	return folds
}

// parseQuotedQuery extracts quoted phrases and returns them with the unquoted remainder.
func parseQuotedQuery(input string) ([]string, string) {
	var quoted []string
	for _, match := range quotedPhrasePattern.FindAllStringSubmatch(input, -1) {
		if phrase := strings.Join(strings.Fields(match[1]), " "); phrase != "" {
			quoted = append(quoted, phrase)
		}
	}

	remaining := quotedPhrasePattern.ReplaceAllString(input, " ")
	remaining = strings.ReplaceAll(remaining, `"`, " ")

	return quoted, strings.Join(strings.Fields(remaining), " ")
}
