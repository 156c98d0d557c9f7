// Package summarize condenses raw meeting-note text into short markdown
// summaries using an OpenAI-compatible chat completion API (OpenRouter by
// default).
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You summarize meeting notes into 3-5 concise markdown bullet points. " +
	"Only output the bullet points, nothing else."

// Config holds the summarization backend settings.
type Config struct {
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint, e.g. https://openrouter.ai/api/v1
	Model   string
}

// Summarizer produces short bullet-point summaries of meeting notes.
type Summarizer struct {
	client openai.Client
	model  string
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Summarizer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// Summarize condenses text into 3-5 markdown bullet points.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: no choices in response")
	}

	slog.DebugContext(ctx, "summary generated",
		"model", s.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
