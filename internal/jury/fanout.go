// Package jury runs the consensus pipeline: fan a question out to a panel
// of models, aggregate the answers into a verdict, and optionally refine
// the result with a critic pass.
package jury

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/compass-dev/compass/internal/consensus"
	"github.com/compass-dev/compass/internal/observability"
	"github.com/compass-dev/compass/internal/router"
)

const (
	fanoutTemperature = 0.3
	fanoutMaxTokens   = 2048
)

// Caller is the slice of the router client the jury needs.
type Caller interface {
	ChatCompletion(ctx context.Context, req router.ChatRequest) (*router.ChatResponse, error)
}

// userMessage composes the message sent to every juror.
func userMessage(question, contextText string) string {
	if contextText == "" {
		return question
	}
	return "Context: " + contextText + "\n\nQuestion: " + question
}

// FanOut dispatches the question to every model concurrently and returns
// one response per model in input order. Individual failures never abort
// the fan-out; they come back as failed entries.
func FanOut(ctx context.Context, caller Caller, models []string, question, contextText string) []consensus.ModelResponse {
	content := userMessage(question, contextText)
	responses := make([]consensus.ModelResponse, len(models))

	g, ctx := errgroup.WithContext(ctx)
	for i, model := range models {
		i, model := i, model
		g.Go(func() error {
			responses[i] = askModel(ctx, caller, model, content)
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

func askModel(ctx context.Context, caller Caller, model, content string) consensus.ModelResponse {
	start := time.Now()
	resp, err := caller.ChatCompletion(ctx, router.ChatRequest{
		Model: model,
		Messages: []router.Message{
			{Role: "system", Content: juryPrompt},
			{Role: "user", Content: content},
		},
		Temperature: fanoutTemperature,
		MaxTokens:   fanoutMaxTokens,
	})
	latency := time.Since(start)
	observability.RecordModelDispatch(model, err == nil, latency)

	if err != nil {
		var rerr *router.Error
		if errors.As(err, &rerr) && rerr.Kind == router.ErrorKindAuth {
			log.Printf("ALERT: router rejected credentials on call to %s: %v", model, err)
		}
		return consensus.ModelResponse{
			Model:     model,
			LatencyMS: latency.Milliseconds(),
			Success:   false,
			Error:     err.Error(),
		}
	}

	return consensus.ModelResponse{
		Model:     model,
		Answer:    resp.Content,
		LatencyMS: latency.Milliseconds(),
		Success:   true,
	}
}
