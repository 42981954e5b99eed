// Package guardrails validates jury input before any model call and
// optionally moderates the aggregated answer afterwards.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
)

// RiskLevel grades a guardrail finding.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// MaxInputChars bounds question length. Longer input is rejected before it
// can reach a model.
const MaxInputChars = 10000

// BlockError is a rejected input. It aborts the pipeline and maps to a 400
// at the HTTP layer.
type BlockError struct {
	Reason string
	Risk   RiskLevel
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("guardrail blocked input (%s risk): %s", e.Risk, e.Reason)
}

// Pattern is one prompt-injection detection rule.
type Pattern struct {
	Regex       *regexp.Regexp
	Description string
}

// injectionPatterns reject outright. All matching is case-insensitive and
// tolerant of flexible whitespace.
var injectionPatterns = []Pattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`), "ignore previous instructions"},
	{regexp.MustCompile(`(?i)disregard\s+(your\s+|all\s+)?instructions?`), "disregard instructions"},
	{regexp.MustCompile(`(?i)forget\s+(your\s+|all\s+)?instructions?`), "forget instructions"},
	{regexp.MustCompile(`(?i)you\s+are\s+now\b`), "role reassignment"},
	{regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)`), "pretend you are"},
	{regexp.MustCompile(`(?i)act\s+as\s+if\s+you`), "act as if you"},
	{regexp.MustCompile(`(?i)\bjailbreak\b`), "jailbreak"},
	{regexp.MustCompile(`(?i)\bDAN\s+mode\b`), "DAN mode"},
	{regexp.MustCompile(`(?i)bypass\s+(your\s+)?safety`), "bypass safety"},
	{regexp.MustCompile(`(?i)override\s+(your\s+|the\s+)?instructions?`), "override instructions"},
	{regexp.MustCompile(`(?i)ignore\s+(your\s+)?safety`), "ignore safety"},
	{regexp.MustCompile(`(?i)system\s+prompt`), "system prompt reference"},
	{regexp.MustCompile(`(?i)reveal\s+(your\s+)?(instructions?|prompt|system)`), "reveal instructions"},
}

// sensitiveTopics warn but never block. The jury still answers; the warning
// travels with the result.
var sensitiveTopics = []Pattern{
	{regexp.MustCompile(`(?i)illegal\s+activit`), "illegal activities"},
	{regexp.MustCompile(`(?i)weapons?\s+manufactur`), "weapons manufacturing"},
	{regexp.MustCompile(`(?i)\bexplosives?\b`), "explosives"},
	{regexp.MustCompile(`(?i)medical\s+diagnos`), "personal medical diagnosis"},
	{regexp.MustCompile(`(?i)legal\s+advice\s+for\s+crim`), "legal advice for crimes"},
	{regexp.MustCompile(`(?i)self[\s-]harm`), "self-harm"},
	{regexp.MustCompile(`(?i)\bsuicide\b`), "suicide"},
}

// CheckInput validates a question. It returns sensitive-topic warnings for
// input that passes, or a BlockError for input that must not reach a model.
func CheckInput(input string) ([]string, *BlockError) {
	if strings.TrimSpace(input) == "" {
		return nil, &BlockError{Reason: "empty input", Risk: RiskLow}
	}
	if len(input) > MaxInputChars {
		return nil, &BlockError{
			Reason: fmt.Sprintf("input exceeds %d characters", MaxInputChars),
			Risk:   RiskMedium,
		}
	}
	for _, p := range injectionPatterns {
		if p.Regex.MatchString(input) {
			return nil, &BlockError{
				Reason: "prompt injection detected: " + p.Description,
				Risk:   RiskHigh,
			}
		}
	}

	var warnings []string
	for _, p := range sensitiveTopics {
		if p.Regex.MatchString(input) {
			warnings = append(warnings, "sensitive topic: "+p.Description)
		}
	}
	return warnings, nil
}
