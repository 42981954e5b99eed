package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreIdentity(t *testing.T) {
	texts := []string{
		"go",
		"The answer is Go.",
		"multiple   spaces\tand\npunctuation, too!",
	}
	for _, text := range texts {
		assert.InDelta(t, 1.0, Score(text, text), 1e-9, "identical text: %q", text)
	}
}

func TestScoreEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Score("", "hello"))
	assert.Equal(t, 0.0, Score("hello", ""))
	assert.Equal(t, 0.0, Score("", ""))
	// Punctuation-only input has no tokens.
	assert.Equal(t, 0.0, Score("?!...", "hello"))
}

func TestScoreSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"use rust for safety", "use a scripting language"},
		{"hello world", "hello there"},
		{"The answer is Go.", "the answer is go"},
	}
	for _, p := range pairs {
		assert.InDelta(t, Score(p[0], p[1]), Score(p[1], p[0]), 1e-12)
	}
}

func TestScoreCaseAndPunctuationFolding(t *testing.T) {
	assert.InDelta(t, 1.0, Score("The answer is Go.", "the ANSWER is go"), 1e-9)
}

func TestScorePartialOverlap(t *testing.T) {
	// "hello" is shared (weight 1), "world"/"there" are unique (weight 1+ln 2).
	// cosine = 1 / (1 + (1+ln 2)^2) ≈ 0.2586.
	got := Score("hello world", "hello there")
	assert.InDelta(t, 0.2586, got, 0.001)
}

func TestScoreDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Score("alpha beta", "gamma delta"))
}

func TestScoreBounds(t *testing.T) {
	pairs := [][2]string{
		{"a b c", "a b c d"},
		{"one two two three", "two three four"},
		{"x", "x x x x"},
	}
	for _, p := range pairs {
		got := Score(p[0], p[1])
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0+1e-12)
	}
}
