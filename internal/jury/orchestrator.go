package jury

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/compass-dev/compass/internal/consensus"
	"github.com/compass-dev/compass/internal/guardrails"
	"github.com/compass-dev/compass/internal/memory"
	"github.com/compass-dev/compass/internal/observability"
)

// Config carries the orchestrator's defaults. Per-query overrides come in
// through Query.
type Config struct {
	// Models is the default juror panel.
	Models []string
	// ReflectionModel runs the critic pass and output moderation.
	ReflectionModel string

	EnableReflection bool
	EnableMemory     bool
	EnableGuardrails bool
	// EnableModeration turns on the post-aggregation safety check.
	EnableModeration bool
}

// Orchestrator sequences the jury pipeline for one query at a time. It owns
// no persistent state; sessions and the long-term store belong to the
// memory subsystem.
type Orchestrator struct {
	caller   Caller
	cfg      Config
	sessions *memory.SessionManager
	longTerm *memory.LongTermStore
}

// New wires an orchestrator.
func New(caller Caller, cfg Config, sessions *memory.SessionManager, longTerm *memory.LongTermStore) *Orchestrator {
	return &Orchestrator{caller: caller, cfg: cfg, sessions: sessions, longTerm: longTerm}
}

// Query is one jury request. Nil flag pointers fall back to the configured
// defaults.
type Query struct {
	Question  string
	Context   string
	Models    []string
	SessionID string

	Reflection *bool
	Memory     *bool
	Guardrails *bool
}

func resolve(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}

// Execute runs the pipeline. The only errors it returns are guardrail
// blocks; every other failure is carried inside the result or swallowed
// after logging.
func (o *Orchestrator) Execute(ctx context.Context, q Query) (*consensus.Result, error) {
	ctx, span := observability.StartSpan(ctx, "jury.execute")
	defer span.End()

	useReflection := resolve(q.Reflection, o.cfg.EnableReflection)
	useMemory := resolve(q.Memory, o.cfg.EnableMemory)
	useGuardrails := resolve(q.Guardrails, o.cfg.EnableGuardrails)

	if useGuardrails {
		warnings, blocked := guardrails.CheckInput(q.Question)
		if blocked != nil {
			return nil, blocked
		}
		for _, w := range warnings {
			log.Printf("guardrail warning for session %q: %s", q.SessionID, w)
		}
	}

	contextText := q.Context
	memoryContextUsed := false
	if useMemory && q.SessionID != "" {
		if memCtx := o.sessions.Context(q.SessionID); memCtx != "" {
			memoryContextUsed = true
			memCtx = strings.TrimRight(memCtx, "\n")
			if contextText != "" {
				contextText = memCtx + "\n\n" + contextText
			} else {
				contextText = memCtx
			}
		}
	}

	models := q.Models
	if len(models) == 0 {
		models = o.cfg.Models
	}

	responses := FanOut(ctx, o.caller, models, q.Question, contextText)
	result := consensus.Aggregate(responses)

	result.GuardrailsApplied = useGuardrails
	result.SessionID = q.SessionID
	result.MemoryContextUsed = memoryContextUsed

	if useReflection && result.ConsensusAnswer != "" && result.Verdict != consensus.VerdictNoConsensus {
		reflection := Reflect(ctx, o.caller, o.cfg.ReflectionModel, q.Question, result.ConsensusAnswer, result.Responses)
		result.QualityScore = reflection.QualityScore
		if reflection.QualityScore >= QualityThreshold && reflection.RefinedAnswer != "" {
			result.OriginalConsensusAnswer = result.ConsensusAnswer
			result.ConsensusAnswer = reflection.RefinedAnswer
			result.ReflectionApplied = true
		}
	}

	if o.cfg.EnableModeration && result.ConsensusAnswer != "" {
		moderation := guardrails.ModerateOutput(ctx, o.caller, o.cfg.ReflectionModel, result.ConsensusAnswer)
		if !moderation.Safe {
			log.Printf("output moderation flagged answer for session %q: %v", q.SessionID, moderation.Concerns)
		}
	}

	if useMemory && q.SessionID != "" && result.ConsensusAnswer != "" {
		entry := memory.NewEntry(q.Question, result.ConsensusAnswer, result.Verdict, result.AgreementScore)
		o.sessions.Record(q.SessionID, entry)
		if _, err := o.longTerm.Consider(ctx, entry); err != nil {
			log.Printf("long-term memory write failed for session %q: %v", q.SessionID, err)
		}
	}

	o.recordQueryMetric(result)
	return result, nil
}

// recordQueryMetric reports the overall query outcome. Latency is the
// maximum per-model latency: the fan-out runs in parallel, so the sum
// would overstate wall-clock time.
func (o *Orchestrator) recordQueryMetric(result *consensus.Result) {
	anySuccess := false
	var maxLatency int64
	for _, r := range result.Responses {
		if r.Success {
			anySuccess = true
		}
		if r.LatencyMS > maxLatency {
			maxLatency = r.LatencyMS
		}
	}
	success := anySuccess || result.Verdict != consensus.VerdictNoConsensus
	observability.RecordQuery(success, result.Verdict, time.Duration(maxLatency)*time.Millisecond)
}
