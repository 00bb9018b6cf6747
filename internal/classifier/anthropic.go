package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/thebtf/reflectra/internal/categorize"
)

// Anthropic classifies through the Messages API.
type Anthropic struct {
	client  *anthropic.Client
	model   string
	timeout time.Duration
}

// NewAnthropic creates an Anthropic-backed classifier.
func NewAnthropic(apiKey, model string, timeout time.Duration) *Anthropic {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &Anthropic{
		client:  anthropic.NewClient(apiKey),
		model:   model,
		timeout: timeoutOrDefault(timeout),
	}
}

// Classify implements categorize.Classifier.
func (c *Anthropic) Classify(ctx context.Context, prompt categorize.Prompt) (string, error) {
	return c.Complete(ctx, Completion{System: prompt.System, User: prompt.User})
}

// Complete sends one system prompt and user message.
func (c *Anthropic) Complete(ctx context.Context, req Completion) (string, error) {
	req = req.withDefaults(c.timeout)
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	temperature := req.Temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		MultiSystem: []anthropic.MessageSystemPart{
			{Type: "text", Text: req.System},
		},
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.User)},
		}},
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}
	return b.String(), nil
}
