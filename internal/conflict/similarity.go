package conflict

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

func words(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		out[w] = true
	}
	return out
}

// Similarity computes word-overlap (Jaccard) similarity between two texts.
// This is a fast approximation, independent of the semantic store's own
// similarity score — the two are blended in Resolve.
func Similarity(a, b string) float64 {
	wordsA := words(a)
	wordsB := words(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}

	union := len(wordsA) + len(wordsB) - shared
	if union == 0 {
		return 0.0
	}
	return float64(shared) / float64(union)
}
