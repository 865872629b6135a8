package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ServiceError means the text-generation collaborator was unreachable or
// returned a non-2xx response. Callers are expected to branch to a
// deterministic fallback; the collaborator is never authoritative.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("text service error (%d): %s", e.Status, e.Body)
}

type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int64         `mapstructure:"max_tokens"`
}

// Client talks to an OpenAI-compatible chat-completions endpoint (OpenRouter
// in the demo deployment). All output is treated as opaque best-effort text.
type Client struct {
	api       openai.Client
	model     string
	maxTokens int64
}

func NewClient(cfg Config) *Client {
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	return &Client{
		api:       openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return "", &ServiceError{Status: apierr.StatusCode, Body: apierr.Error()}
		}
		return "", &ServiceError{Body: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return "", &ServiceError{Status: http.StatusOK, Body: "empty completion"}
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateSchema asks for a structured JSON preference schema. The caller
// attempts to parse the result and falls back to heuristics on failure.
func (c *Client) GenerateSchema(ctx context.Context, userInput string) (string, error) {
	return c.complete(ctx, schemaSystemPrompt,
		"Convert this user preference description into a structured schema: "+userInput, 0.2)
}

// AnalyzeMarket produces a prose market-analysis artifact. The content is not
// structurally parsed; opportunity synthesis is self-contained.
func (c *Client) AnalyzeMarket(ctx context.Context, marketDataJSON string) (string, error) {
	return c.complete(ctx, analysisSystemPrompt,
		"Analyze this market data and identify arbitrage opportunities: "+marketDataJSON, 0.3)
}

// MatchOpportunities produces advisory matching prose; allocations are
// computed deterministically by the matching agent.
func (c *Client) MatchOpportunities(ctx context.Context, preferencesJSON, opportunitiesJSON string) (string, error) {
	return c.complete(ctx, matchingSystemPrompt,
		"Match these user preferences: "+preferencesJSON+" with these opportunities: "+opportunitiesJSON, 0.4)
}

// ComposeMessage generates a short in-persona message for agent-to-agent
// conversation. agentType selects the persona, messageType the register.
func (c *Client) ComposeMessage(ctx context.Context, agentType, context_, messageType string) (string, error) {
	return c.complete(ctx, personaSystemPrompt(agentType),
		fmt.Sprintf("Generate a %s message for agent communication. Context: %s", messageType, context_), 0.7)
}

// ExecutionLogs generates terminal-style log lines for a simulated strategy
// execution. Expected to return a JSON array of strings.
func (c *Client) ExecutionLogs(ctx context.Context, opportunityJSON, strategyName string) (string, error) {
	return c.complete(ctx, executionLogSystemPrompt,
		fmt.Sprintf("Generate execution logs for this arbitrage opportunity:\n%s\n\nUsing strategy: %s", opportunityJSON, strategyName), 0.7)
}

// GenerateStrategy rewrites a strategy configuration per a natural language
// request. Expected to return the updated strategy document as JSON.
func (c *Client) GenerateStrategy(ctx context.Context, currentStrategyJSON, prompt string) (string, error) {
	return c.complete(ctx, strategySystemPrompt,
		fmt.Sprintf("Current strategy: %s\n\nUser request: %s\n\nPlease update the strategy configuration based on this request.", currentStrategyJSON, prompt), 0.3)
}
