package jury

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/compass-dev/compass/internal/consensus"
	"github.com/compass-dev/compass/internal/router"
)

const (
	reflectionTemperature = 0.2
	reflectionMaxTokens   = 2048

	// QualityThreshold is the minimum critic score at which the refined
	// answer replaces the representative.
	QualityThreshold = 70

	// answerTruncateAt caps each per-model answer in the critic prompt.
	answerTruncateAt = 1000
)

// ReflectionResult is the parsed critic verdict. A failed critic call
// yields a zero quality score, which can never trigger replacement.
type ReflectionResult struct {
	QualityScore  float64  `json:"qualityScore"`
	Issues        []string `json:"issues"`
	RefinedAnswer string   `json:"refinedAnswer"`
}

// Reflect asks the critic model to review the representative answer
// against every successful juror answer. It never returns an error: any
// transport or parse failure comes back as a zero-score result.
func Reflect(ctx context.Context, caller Caller, model, question, representative string, responses []consensus.ModelResponse) ReflectionResult {
	var blocks []string
	for _, r := range responses {
		if !r.Success {
			continue
		}
		answer := r.Answer
		if len(answer) > answerTruncateAt {
			answer = answer[:answerTruncateAt]
		}
		blocks = append(blocks, "["+r.Model+"]: "+answer)
	}

	var b strings.Builder
	b.WriteString("Question: " + question + "\n\n")
	b.WriteString("Consensus answer: " + representative + "\n\n")
	b.WriteString("Individual answers:\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))

	resp, err := caller.ChatCompletion(ctx, router.ChatRequest{
		Model: model,
		Messages: []router.Message{
			{Role: "system", Content: criticPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: reflectionTemperature,
		MaxTokens:   reflectionMaxTokens,
	})
	if err != nil {
		log.Printf("reflection call to %s failed, keeping original answer: %v", model, err)
		return ReflectionResult{Issues: []string{"reflection call failed: " + err.Error()}}
	}

	var result ReflectionResult
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &result); err != nil {
		log.Printf("reflection reply from %s did not parse, keeping original answer: %v", model, err)
		return ReflectionResult{Issues: []string{"reflection reply unparseable: " + err.Error()}}
	}
	return result
}

// stripFences removes a markdown code fence around a JSON payload. Critic
// models wrap their JSON in ```json blocks often enough to tolerate it.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
