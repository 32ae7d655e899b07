// Package textgen wraps the text-generation collaborator behind a single
// Generate call. Callers treat it as an opaque prompt-to-string function;
// failures are not retried here.
package textgen

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"xpromo/pkg/config"
	"xpromo/pkg/logger"
)

// Generator produces free-form text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OpenAIGenerator implements Generator on the OpenAI chat API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    logger.Logger
}

// NewOpenAI creates a generator from config.
func NewOpenAI(cfg *config.TextGenConfig, log logger.Logger) *OpenAIGenerator {
	if log == nil {
		log = logger.GetLogger()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
		log:    log,
	}
}

// Generate sends the prompt and returns the first completion, trimmed.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("text generation returned no choices")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.log.DebugWithFields("generated text", map[string]interface{}{
		"model":  g.model,
		"chars":  len(out),
		"prompt": len(prompt),
	})
	return out, nil
}
