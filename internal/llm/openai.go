package llm

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the completion interface required by the order extractor. The
// implementation is expected to return the raw model text; callers own the
// JSON recovery.
type Client interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// OpenAIClient calls an OpenAI-compatible chat completion API at temperature
// zero. API credentials, model name and base URL are loaded from environment
// variables, so a local Ollama or Groq endpoint can be substituted without
// code changes.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs an OpenAI-backed completion client. It reads the
// API key, model name and optional base URL from the environment and falls
// back to sensible defaults.
func NewOpenAIClient() *OpenAIClient {
	apiKey := os.Getenv("OPENAI_API_KEY")
	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		// default to a modern small model; can be overridden via env
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// CompleteJSON sends a system instruction and a user message to the chat
// completion API and returns the assistant's raw text output. Temperature is
// pinned to zero so extraction is as deterministic as the model allows.
func (c *OpenAIClient) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
