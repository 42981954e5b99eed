// Package format renders a consensus result for the façade's output modes.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/compass-dev/compass/internal/consensus"
)

// Format selects an output rendering for POST /query.
type Format string

const (
	JSON     Format = "json"
	Twitter  Format = "twitter"
	Markdown Format = "markdown"
	JSONLD   Format = "jsonld"
)

// tweetLimit is the hard cap for the short-post rendering.
const tweetLimit = 280

// Valid reports whether f is a known format. The empty string is valid and
// means the default (JSON).
func (f Format) Valid() bool {
	switch f {
	case "", JSON, Twitter, Markdown, JSONLD:
		return true
	}
	return false
}

// RenderMarkdown produces the full verdict report.
func RenderMarkdown(r *consensus.Result) string {
	var b strings.Builder

	b.WriteString("# Jury Verdict\n\n")
	fmt.Fprintf(&b, "**Verdict:** %s  \n", r.Verdict)
	fmt.Fprintf(&b, "**Confidence:** %s  \n", r.Confidence)
	fmt.Fprintf(&b, "**Agreement score:** %.2f\n\n", r.AgreementScore)

	if r.ConsensusAnswer != "" {
		b.WriteString("## Answer\n\n")
		b.WriteString(r.ConsensusAnswer + "\n\n")
	}

	if r.ReflectionApplied {
		fmt.Fprintf(&b, "_Refined by reflection (quality %.0f). Original answer:_\n\n", r.QualityScore)
		b.WriteString("> " + strings.ReplaceAll(r.OriginalConsensusAnswer, "\n", "\n> ") + "\n\n")
	}

	if r.Dissenter != nil {
		b.WriteString("## Dissenting view\n\n")
		fmt.Fprintf(&b, "**%s:** %s\n\n", r.Dissenter.Model, r.Dissenter.Answer)
	}

	b.WriteString("## Models\n\n")
	b.WriteString("| Model | Status | Latency |\n")
	b.WriteString("|-------|--------|---------|\n")
	for _, resp := range r.Responses {
		status := "ok"
		if !resp.Success {
			status = "failed: " + resp.Error
		}
		fmt.Fprintf(&b, "| %s | %s | %dms |\n", resp.Model, status, resp.LatencyMS)
	}

	return b.String()
}

// jsonLDDocument is the linked-data rendering of a verdict, shaped as a
// schema.org Answer inside a Question.
type jsonLDDocument struct {
	Context         string        `json:"@context"`
	Type            string        `json:"@type"`
	Name            string        `json:"name,omitempty"`
	AcceptedAnswer  *jsonLDEntry  `json:"acceptedAnswer,omitempty"`
	SuggestedAnswer []jsonLDEntry `json:"suggestedAnswer,omitempty"`
	Verdict         string        `json:"verdict"`
	Confidence      string        `json:"confidence"`
	AgreementScore  float64       `json:"agreementScore"`
}

type jsonLDEntry struct {
	Type   string `json:"@type"`
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

// RenderJSONLD produces a schema.org QAPage fragment for embedding.
func RenderJSONLD(question string, r *consensus.Result) ([]byte, error) {
	doc := jsonLDDocument{
		Context:        "https://schema.org",
		Type:           "Question",
		Name:           question,
		Verdict:        string(r.Verdict),
		Confidence:     string(r.Confidence),
		AgreementScore: r.AgreementScore,
	}
	if r.ConsensusAnswer != "" {
		doc.AcceptedAnswer = &jsonLDEntry{Type: "Answer", Text: r.ConsensusAnswer}
	}
	if r.Dissenter != nil {
		doc.SuggestedAnswer = []jsonLDEntry{{
			Type:   "Answer",
			Text:   r.Dissenter.Answer,
			Author: r.Dissenter.Model,
		}}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// RenderTwitter produces a short post within the 280-character limit.
func RenderTwitter(r *consensus.Result) string {
	var prefix string
	switch r.Verdict {
	case consensus.VerdictUnanimous:
		prefix = fmt.Sprintf("AI jury is unanimous (%.2f): ", r.AgreementScore)
	case consensus.VerdictSplit:
		prefix = fmt.Sprintf("AI jury is split (%.2f): ", r.AgreementScore)
	default:
		prefix = "AI jury could not reach consensus."
	}

	if r.Verdict == consensus.VerdictNoConsensus || r.ConsensusAnswer == "" {
		return prefix
	}

	post := prefix + strings.ReplaceAll(r.ConsensusAnswer, "\n", " ")
	if runes := []rune(post); len(runes) > tweetLimit {
		post = string(runes[:tweetLimit-1]) + "…"
	}
	return post
}
