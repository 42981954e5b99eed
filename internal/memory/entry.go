// Package memory holds the jury's short-term session rings and the shared
// long-term store of high-agreement answers.
package memory

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/compass-dev/compass/internal/consensus"
)

// MemoryEntry is one recorded question/answer pair. Immutable once written.
type MemoryEntry struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Answer    string            `json:"answer"`
	Verdict   consensus.Verdict `json:"verdict"`
	Score     float64           `json:"score"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEntry stamps a question/answer pair with a fresh id and the current
// time.
func NewEntry(question, answer string, verdict consensus.Verdict, score float64) MemoryEntry {
	return MemoryEntry{
		ID:        uuid.NewString(),
		Question:  question,
		Answer:    answer,
		Verdict:   verdict,
		Score:     score,
		Timestamp: time.Now().UTC(),
	}
}

// normalizeQuestion is the case-folded, trimmed form used for long-term
// duplicate detection.
func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// keywords extracts the lookup terms from a question: case-folded tokens
// longer than three characters with non-alphanumerics stripped.
func keywords(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	var out []string
	for _, f := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, f)
		if len(cleaned) > 3 {
			out = append(out, cleaned)
		}
	}
	return out
}
