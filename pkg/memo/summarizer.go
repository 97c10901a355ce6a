package memo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("memo: empty completion")

// Summarizer turns a system and user prompt into a single completion.
type Summarizer interface {
	Summarize(ctx context.Context, system, user string) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, system, user string) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// DefaultOpenAIModel is used when OpenAIConfig.Model is empty.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIConfig configures an OpenAI chat completion summarizer.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAISummarizer summarizes through the chat completions API.
type OpenAISummarizer struct {
	client openai.Client
	model  string
}

// NewOpenAISummarizer creates a summarizer from cfg.
func NewOpenAISummarizer(cfg OpenAIConfig) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("memo: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAISummarizer{client: openai.NewClient(opts...), model: model}, nil
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("memo: openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures a Gemini summarizer.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiSummarizer summarizes through the Gemini generate content API.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
}

// NewGeminiSummarizer creates a summarizer from cfg.
func NewGeminiSummarizer(ctx context.Context, cfg GeminiConfig) (*GeminiSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("memo: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("memo: genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiSummarizer{client: client, model: model}, nil
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, []*genai.Content{
		{Parts: []*genai.Part{{Text: user}}, Role: "user"},
	}, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
	})
	if err != nil {
		return "", fmt.Errorf("memo: genai generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
