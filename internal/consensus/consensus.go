// Package consensus aggregates per-model answers into a verdict.
package consensus

import (
	"math"

	"github.com/compass-dev/compass/internal/similarity"
)

// Verdict summarises inter-model agreement.
type Verdict string

const (
	VerdictUnanimous   Verdict = "unanimous"
	VerdictSplit       Verdict = "split"
	VerdictNoConsensus Verdict = "no_consensus"
)

// Confidence is derived from the verdict and nothing else.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Agreement thresholds. unanimous at or above Unanimous, split at or above
// Split, no consensus below.
const (
	UnanimousThreshold = 0.90
	SplitThreshold     = 0.60
)

// ModelResponse is the outcome of asking one model one question.
// A failed response carries an empty answer and a non-empty error.
type ModelResponse struct {
	Model     string `json:"model"`
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Dissent identifies the response least similar to the rest.
type Dissent struct {
	Model  string `json:"model"`
	Answer string `json:"answer"`
}

// Result is the aggregated verdict over a set of model responses.
type Result struct {
	Verdict        Verdict    `json:"verdict"`
	Confidence     Confidence `json:"confidence"`
	AgreementScore float64    `json:"agreement_score"`

	// Responses is the full fan-out result list, failures included, in
	// dispatch order.
	Responses []ModelResponse `json:"responses"`

	// ConsensusAnswer is the representative answer. Empty only when zero
	// models succeeded.
	ConsensusAnswer string `json:"consensus_answer,omitempty"`

	// Dissenter is present only when the verdict is split.
	Dissenter *Dissent `json:"dissenting_view,omitempty"`

	// Reflection fields, set by the orchestrator when a critic pass ran.
	ReflectionApplied       bool    `json:"reflection_applied,omitempty"`
	QualityScore            float64 `json:"quality_score,omitempty"`
	OriginalConsensusAnswer string  `json:"original_consensus_answer,omitempty"`

	// Session metadata, set by the orchestrator.
	SessionID         string `json:"session_id,omitempty"`
	MemoryContextUsed bool   `json:"memory_context_used,omitempty"`
	GuardrailsApplied bool   `json:"guardrails_applied,omitempty"`
}

// Aggregate computes the verdict for a fan-out result list. It never fails:
// with zero or one usable answer it returns a well-formed no-consensus
// result, and the raw response list is always carried through unchanged in
// order so callers can inspect per-model errors.
//
// A response marked successful but carrying an empty answer is coerced to a
// failure before scoring; the upstream client reports transport success even
// when a model returns nothing.
func Aggregate(responses []ModelResponse) *Result {
	all := make([]ModelResponse, len(responses))
	copy(all, responses)
	for i := range all {
		if all[i].Success && all[i].Answer == "" {
			all[i].Success = false
			all[i].Error = "empty answer"
		}
	}

	var succeeded []ModelResponse
	for _, r := range all {
		if r.Success {
			succeeded = append(succeeded, r)
		}
	}

	result := &Result{
		Verdict:    VerdictNoConsensus,
		Confidence: ConfidenceLow,
		Responses:  all,
	}

	switch len(succeeded) {
	case 0:
		return result
	case 1:
		result.ConsensusAnswer = succeeded[0].Answer
		return result
	}

	matrix := pairwiseMatrix(succeeded)

	// Agreement score: mean of the upper triangle, rounded to two decimals.
	var sum float64
	var pairs int
	for i := 0; i < len(succeeded); i++ {
		for j := i + 1; j < len(succeeded); j++ {
			sum += matrix[i][j]
			pairs++
		}
	}
	score := round2(sum / float64(pairs))
	result.AgreementScore = score

	switch {
	case score >= UnanimousThreshold:
		result.Verdict = VerdictUnanimous
		result.Confidence = ConfidenceHigh
	case score >= SplitThreshold:
		result.Verdict = VerdictSplit
		result.Confidence = ConfidenceMedium
	default:
		result.Verdict = VerdictNoConsensus
		result.Confidence = ConfidenceLow
	}

	means := meanSimilarities(matrix)

	// Representative: highest mean similarity to the others, first index wins
	// ties.
	best := 0
	for i := 1; i < len(means); i++ {
		if means[i] > means[best] {
			best = i
		}
	}
	result.ConsensusAnswer = succeeded[best].Answer

	if result.Verdict == VerdictSplit {
		worst := 0
		for i := 1; i < len(means); i++ {
			if means[i] < means[worst] {
				worst = i
			}
		}
		result.Dissenter = &Dissent{
			Model:  succeeded[worst].Model,
			Answer: succeeded[worst].Answer,
		}
	}

	return result
}

// pairwiseMatrix builds the symmetric similarity matrix over the successful
// answers, with 1 on the diagonal.
func pairwiseMatrix(succeeded []ModelResponse) [][]float64 {
	n := len(succeeded)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := similarity.Score(succeeded[i].Answer, succeeded[j].Answer)
			matrix[i][j] = s
			matrix[j][i] = s
		}
	}
	return matrix
}

// meanSimilarities returns, for each response, the mean similarity to all
// other responses (diagonal excluded).
func meanSimilarities(matrix [][]float64) []float64 {
	n := len(matrix)
	means := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if i != j {
				sum += matrix[i][j]
			}
		}
		means[i] = sum / float64(n-1)
	}
	return means
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
