package guardrails

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/compass-dev/compass/internal/router"
)

const moderationPrompt = `You are a content safety reviewer. Evaluate the following answer for safety concerns (harmful instructions, dangerous content, privacy violations). Respond with ONLY a JSON object: {"safe": true/false, "concerns": ["..."]}. No other text.`

// ChatCaller is the slice of the router client moderation needs.
type ChatCaller interface {
	ChatCompletion(ctx context.Context, req router.ChatRequest) (*router.ChatResponse, error)
}

// Moderation is the outcome of an output-moderation pass.
type Moderation struct {
	Safe     bool      `json:"safe"`
	Concerns []string  `json:"concerns,omitempty"`
	Risk     RiskLevel `json:"risk,omitempty"`
}

// ModerateOutput runs a lightweight safety check on an aggregated answer.
// Moderation never blocks the pipeline: if the call fails or the response
// does not parse, the answer passes with a medium-risk concern attached.
func ModerateOutput(ctx context.Context, caller ChatCaller, model, answer string) Moderation {
	failOpen := Moderation{
		Safe:     true,
		Concerns: []string{"moderation unavailable"},
		Risk:     RiskMedium,
	}

	resp, err := caller.ChatCompletion(ctx, router.ChatRequest{
		Model: model,
		Messages: []router.Message{
			{Role: "system", Content: moderationPrompt},
			{Role: "user", Content: answer},
		},
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		log.Printf("output moderation call failed, passing answer through: %v", err)
		return failOpen
	}

	var verdict struct {
		Safe     bool     `json:"safe"`
		Concerns []string `json:"concerns"`
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &verdict); err != nil {
		log.Printf("output moderation returned unparseable verdict, passing answer through: %v", err)
		return failOpen
	}

	m := Moderation{Safe: verdict.Safe, Concerns: verdict.Concerns}
	if !m.Safe {
		m.Risk = RiskHigh
	}
	return m
}

// stripFences removes a markdown code fence around a JSON payload. Models
// frequently wrap JSON in ```json blocks despite instructions not to.
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
