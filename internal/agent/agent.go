package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"arbadvisor/internal/llm"
)

// TextGenerator is the external text-generation collaborator. Its output is
// best-effort prose; no correctness-critical decision depends on it.
// Satisfied by llm.Client.
type TextGenerator interface {
	GenerateSchema(ctx context.Context, userInput string) (string, error)
	AnalyzeMarket(ctx context.Context, marketDataJSON string) (string, error)
	MatchOpportunities(ctx context.Context, preferencesJSON, opportunitiesJSON string) (string, error)
	ComposeMessage(ctx context.Context, agentType, context_, messageType string) (string, error)
}

// isServiceFailure distinguishes a collaborator outage (recoverable, fall back
// to deterministic content) from a structural error that must propagate.
func isServiceFailure(err error) bool {
	var se *llm.ServiceError
	return errors.As(err, &se)
}

// composeOrFallback asks the collaborator for in-persona message content and
// substitutes the deterministic fallback on any collaborator failure.
func composeOrFallback(ctx context.Context, text TextGenerator, agentType, context_, messageType, fallback string) string {
	if text == nil {
		return fallback
	}
	content, err := text.ComposeMessage(ctx, agentType, context_, messageType)
	if err != nil || content == "" {
		return fallback
	}
	return content
}

func newMessageID() string {
	return "msg-" + uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
