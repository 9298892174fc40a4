package search

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	pathSubstringBoost     = 3.0
	filenameSubstringBoost = 1.5
	documentTypeBoost      = 1.2
	deepPathPenalty        = 0.8
	deepPathSeparators     = 6

	recencyHalfLife = 30 * 24 * time.Hour
	recencyMin      = 0.2
	recencyMax      = 1.2
	neutralBoost    = 1.0
)

var documentExtensions = map[string]struct{}{
	"txt": {},
	"pdf": {},
	"doc": {},
}

// Factors are the multipliers applied to a raw index score.
type Factors struct {
	Substring float64
	Extension float64
	Depth     float64
	Recency   float64
}

func (f Factors) product() float64 {
	return f.Substring * f.Extension * f.Depth * f.Recency
}

// ScoreContext re-ranks a raw relevance score for one hit. A path containing the query (case
// insensitive) beats a filename-only substring, which beats a purely fuzzy match. Common document
// types get a small boost, paths deeper than six separators a small penalty, and the result is
// scaled by recency, which callers pass in already computed.
func ScoreContext(raw float64, query string, name string, path string, extension string, recency float64) (float64, Factors) {
	factors := Factors{Substring: neutralBoost, Extension: neutralBoost, Depth: neutralBoost, Recency: recency}

	fold := cases.Fold()
	q := foldString(fold, query)
	if q != "" {
		switch {
		case strings.Contains(foldString(fold, path), q):
			factors.Substring = pathSubstringBoost
		case strings.Contains(foldString(fold, name), q):
			factors.Substring = filenameSubstringBoost
		}
	}

	if _, ok := documentExtensions[strings.ToLower(extension)]; ok {
		factors.Extension = documentTypeBoost
	}

	if strings.Count(path, string(filepath.Separator)) > deepPathSeparators {
		factors.Depth = deepPathPenalty
	}

	return raw * factors.product(), factors
}

// foldString case folds s after composing it, so that decomposed filenames match typed queries.
func foldString(fold cases.Caser, s string) string {
	return fold.String(norm.NFC.String(s))
}

// RecencyBoost decays from 1.2 for a file accessed just now to 0.2, halving the part above the floor
// every 30 days. Access times in the future are treated as now.
func RecencyBoost(accessed time.Time, now time.Time) float64 {
	age := now.Sub(accessed).Seconds()
	boost := recencyMin + (recencyMax-recencyMin)*math.Pow(0.5, age/recencyHalfLife.Seconds())
	return math.Min(recencyMax, math.Max(recencyMin, boost))
}

// RecencyFor looks up the access time of path. Anything that cannot be stat'ed is neutral.
func RecencyFor(path string, now time.Time) float64 {
	accessed, err := accessTime(path)
	if err != nil {
		return neutralBoost
	}
	return RecencyBoost(accessed, now)
}
