package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/compass-dev/compass/internal/consensus"
	"github.com/compass-dev/compass/internal/format"
	"github.com/compass-dev/compass/internal/guardrails"
	"github.com/compass-dev/compass/internal/jury"
	"github.com/compass-dev/compass/internal/memory"
	"github.com/compass-dev/compass/internal/observability"
	"github.com/compass-dev/compass/internal/router"
	"github.com/compass-dev/compass/internal/station"
)

type queryRequest struct {
	Question string        `json:"question"`
	Context  string        `json:"context,omitempty"`
	Models   []string      `json:"models,omitempty"`
	Format   format.Format `json:"format,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.station.State() != station.StateActive {
		writeError(w, http.StatusServiceUnavailable, "LIFECYCLE_BUSY",
			"agent is not active (state "+string(s.station.State())+")")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "question is required")
		return
	}
	if !req.Format.Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "format must be json, twitter, markdown, or jsonld")
		return
	}

	result, err := s.orch.Execute(r.Context(), jury.Query{
		Question:  req.Question,
		Context:   req.Context,
		Models:    req.Models,
		SessionID: r.Header.Get("X-Session-Id"),
	})
	if err != nil {
		var blocked *guardrails.BlockError
		if errors.As(err, &blocked) {
			writeGuardrailBlocked(w, blocked)
			return
		}
		log.Printf("query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "query execution failed")
		return
	}

	switch req.Format {
	case format.Markdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(format.RenderMarkdown(result)))
	case format.Twitter:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(format.RenderTwitter(result)))
	case format.JSONLD:
		doc, err := format.RenderJSONLD(req.Question, result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", "rendering failed")
			return
		}
		w.Header().Set("Content-Type", "application/ld+json")
		_, _ = w.Write(doc)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

type chatRequest struct {
	Message string           `json:"message"`
	History []router.Message `json:"history,omitempty"`
}

type chatModelAnswer struct {
	Model   string `json:"model"`
	Answer  string `json:"answer,omitempty"`
	Success bool   `json:"success"`
}

type chatResponse struct {
	Response          string            `json:"response"`
	Verdict           consensus.Verdict `json:"verdict"`
	Confidence        string            `json:"confidence"`
	AgreementScore    float64           `json:"agreement_score"`
	Models            []chatModelAnswer `json:"models"`
	FailedModels      []string          `json:"failed_models"`
	SessionID         string            `json:"session_id"`
	MemoryContextUsed bool              `json:"memory_context_used"`
	ReflectionApplied bool              `json:"reflection_applied"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.station.State() != station.StateActive {
		writeError(w, http.StatusServiceUnavailable, "LIFECYCLE_BUSY",
			"agent is not active (state "+string(s.station.State())+")")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "message is required")
		return
	}

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	contextText := historyContext(req.History)

	result, err := s.orch.Execute(r.Context(), jury.Query{
		Question:  req.Message,
		Context:   contextText,
		SessionID: sessionID,
	})
	if err != nil {
		var blocked *guardrails.BlockError
		if errors.As(err, &blocked) {
			writeGuardrailBlocked(w, blocked)
			return
		}
		log.Printf("chat failed: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "chat execution failed")
		return
	}

	resp := chatResponse{
		Response:          result.ConsensusAnswer,
		Verdict:           result.Verdict,
		Confidence:        string(result.Confidence),
		AgreementScore:    result.AgreementScore,
		Models:            make([]chatModelAnswer, 0, len(result.Responses)),
		FailedModels:      []string{},
		SessionID:         sessionID,
		MemoryContextUsed: result.MemoryContextUsed,
		ReflectionApplied: result.ReflectionApplied,
	}
	for _, mr := range result.Responses {
		resp.Models = append(resp.Models, chatModelAnswer{Model: mr.Model, Answer: mr.Answer, Success: mr.Success})
		if !mr.Success {
			resp.FailedModels = append(resp.FailedModels, mr.Model)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// historyContext flattens a chat history into fan-out context text.
func historyContext(history []router.Message) string {
	if len(history) == 0 {
		return ""
	}
	var out string
	for _, m := range history {
		if out != "" {
			out += "\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}

// healthyStates are the lifecycle states in which /health reports healthy.
var healthyStates = map[station.State]bool{
	station.StateNew:         true,
	station.StateProvisioned: true,
	station.StateActive:      true,
	station.StateDraining:    true,
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.station.State()
	healthy := s.station.HeartbeatHealthy() && healthyStates[state]

	body := map[string]any{
		"status": "healthy",
		"state":  state,
		"uptime": s.station.Uptime().Seconds(),
	}
	if !healthy {
		body["status"] = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var available []string
	if s.models != nil {
		models, err := s.models.ListModels(r.Context())
		if err != nil {
			log.Printf("listing router models failed: %v", err)
		} else {
			available = models
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":             s.station.State(),
		"heartbeat_mode":    s.station.Mode(),
		"uptime_seconds":    int64(s.station.Uptime().Seconds()),
		"configured_models": s.cfg.Models,
		"available_models":  available,
		"metrics": map[string]any{
			"requests_handled": observability.RequestsHandled(),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	history := s.sessions.History(sessionID)
	if history == nil {
		history = []memory.MemoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats := s.sessions.Stats()
	longTermSize, err := s.longTerm.Len(r.Context())
	if err != nil {
		log.Printf("long-term size lookup failed: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"active_sessions":       stats.ActiveSessions,
		"total_session_queries": stats.TotalEntries,
		"long_term_memory_size": longTermSize,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeGuardrailBlocked(w http.ResponseWriter, blocked *guardrails.BlockError) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"code":      "GUARDRAIL_BLOCKED",
			"message":   blocked.Error(),
			"reason":    blocked.Reason,
			"riskLevel": blocked.Risk,
		},
	})
}
