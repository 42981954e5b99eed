// Package similarity scores lexical agreement between two answer texts.
//
// The metric is intentionally self-contained: the two texts form the entire
// corpus, there is no persisted vocabulary and no embedding model. It measures
// word overlap, not semantic equivalence.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Score returns the agreement between two texts in [0, 1].
//
// Both texts are case-folded and tokenized on non-alphanumeric runes. Each
// term is weighted per document as tf * (1 + ln(N/df)) with N = 2, so a term
// appearing in both documents keeps its raw count weight while a term unique
// to one document is boosted by ln 2. The score is the cosine of the two
// weight vectors over the union vocabulary. Empty token lists and zero-length
// vectors score 0. Score is symmetric and Score(a, a) = 1 for any text with
// at least one token.
func Score(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	ca := termCounts(ta)
	cb := termCounts(tb)

	// Union vocabulary with per-term document frequency (1 or 2).
	var dot, normA, normB float64
	seen := make(map[string]bool, len(ca)+len(cb))
	for term := range ca {
		seen[term] = true
	}
	for term := range cb {
		seen[term] = true
	}

	for term := range seen {
		df := 0.0
		if ca[term] > 0 {
			df++
		}
		if cb[term] > 0 {
			df++
		}
		idf := math.Log(2.0 / df)
		wa := float64(ca[term]) * (1 + idf)
		wb := float64(cb[term]) * (1 + idf)
		dot += wa * wb
		normA += wa * wa
		normB += wb * wb
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenize lowercases the text and splits it into word tokens on any
// non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
