package classifier

import (
	"context"
	"fmt"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/thebtf/reflectra/internal/categorize"
)

// OpenAI classifies through the chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates an OpenAI-backed classifier. baseURL may be empty.
func NewOpenAI(apiKey, model, baseURL string, timeout time.Duration) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeoutOrDefault(timeout),
	}
}

// Classify implements categorize.Classifier.
func (c *OpenAI) Classify(ctx context.Context, prompt categorize.Prompt) (string, error) {
	return c.Complete(ctx, Completion{System: prompt.System, User: prompt.User})
}

// Complete sends one system and user message pair.
func (c *OpenAI) Complete(ctx context.Context, req Completion) (string, error) {
	req = req.withDefaults(c.timeout)
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	temperature := req.Temperature
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
