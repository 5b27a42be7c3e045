// Package keywords cleans up keyword/sentiment aggregation results before
// they are shown: keywords that overlap the app's own name, category or a
// stopword are dropped, and keywords that overlap each other are merged.
package keywords

import (
	"strings"

	"app_insights/internal/domain"
)

// DefaultStopwords are excluded for every app.
var DefaultStopwords = []string{"app"}

// Consolidate returns the entries worth displaying for the app identified by
// id. Entries are never mutated; merged counts live in the returned values.
//
// Matching is plain case-insensitive substring containment in either
// direction, so short keywords absorb or suppress a lot. The result is not
// idempotent and literal duplicates can survive.
func Consolidate(entries []domain.KeywordEntry, id domain.AppIdentity) []domain.KeywordEntry {
	out := make([]domain.KeywordEntry, 0, len(entries))
	if strings.TrimSpace(id.Category) == "" {
		return out
	}
	noise := NoiseVocabulary(id)
	absorbed := make(map[string]struct{})

	for _, e := range entries {
		_, repeat := absorbed[e.Keyword]
		isNoise := similarToAny(e.Keyword, noise)

		merged := e
		if m, ok := firstSimilar(e.Keyword, entries); ok {
			absorbed[m.Keyword] = struct{}{}
			merged = merged.Merge(m)
		}
		if !isNoise && !repeat {
			out = append(out, merged)
		}
	}
	return out
}

// NoiseVocabulary is the whitespace-split app name, then category, then the
// non-empty stopwords.
func NoiseVocabulary(id domain.AppIdentity) []string {
	words := strings.Fields(id.Name)
	words = append(words, strings.Fields(id.Category)...)
	for _, w := range id.Stopwords {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Similar reports whether either word contains the other, ignoring case.
// An empty word is similar to nothing.
func Similar(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// TopKeyword returns the first keyword, lowercased, that does not overlap the
// noise vocabulary. It returns "" when every keyword is noise.
func TopKeyword(keywords []string, id domain.AppIdentity) string {
	noise := NoiseVocabulary(id)
	for _, k := range keywords {
		if k != "" && !similarToAny(k, noise) {
			return strings.ToLower(k)
		}
	}
	return ""
}

func similarToAny(word string, vocab []string) bool {
	for _, v := range vocab {
		if Similar(word, v) {
			return true
		}
	}
	return false
}

// firstSimilar scans entries in order, skipping every entry whose keyword is
// literally word.
func firstSimilar(word string, entries []domain.KeywordEntry) (domain.KeywordEntry, bool) {
	for _, c := range entries {
		if c.Keyword == word {
			continue
		}
		if Similar(c.Keyword, word) {
			return c, true
		}
	}
	return domain.KeywordEntry{}, false
}
