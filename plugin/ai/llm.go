package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)

	// ChatStream performs streaming chat.
	ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// ChatOption overrides a generation parameter for a single call.
type ChatOption func(*chatOptions)

type chatOptions struct {
	temperature *float64
}

// WithChatTemperature overrides the configured sampling temperature.
func WithChatTemperature(temperature float64) ChatOption {
	return func(o *chatOptions) {
		o.temperature = &temperature
	}
}

type llmService struct {
	model       llms.Model
	name        string
	maxTokens   int
	temperature float32
	reporter    UsageReporter
}

// NewLLMService creates a new LLMService. The reporter may be nil.
func NewLLMService(cfg *LLMConfig, reporter UsageReporter) (LLMService, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "deepseek":
		// DeepSeek is compatible with the OpenAI API.
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
		)

	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)

	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.BaseURL),
		)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	return &llmService{
		model:       model,
		name:        cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		reporter:    reporter,
	}, nil
}

func (s *llmService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	options := chatOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	temperature := float64(s.temperature)
	if options.temperature != nil {
		temperature = *options.temperature
	}

	llmMessages := convertMessages(messages)

	started := time.Now()
	resp, err := s.model.GenerateContent(ctx, llmMessages,
		llms.WithMaxTokens(s.maxTokens),
		llms.WithTemperature(temperature),
	)
	providerMetrics.RecordCall(CallGeneration, time.Since(started), err)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	choice := resp.Choices[0]

	if s.reporter != nil {
		promptTokens, completionTokens := tokenUsage(messages, choice)
		s.reporter.ReportGeneration(s.name, promptTokens, completionTokens, time.Since(started))
	}

	return choice.Content, nil
}

func (s *llmService) ChatStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		llmMessages := convertMessages(messages)

		_, err := s.model.GenerateContent(ctx, llmMessages,
			llms.WithMaxTokens(s.maxTokens),
			llms.WithTemperature(float64(s.temperature)),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case contentChan <- string(chunk):
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}),
		)

		if err != nil {
			errChan <- err
		}
	}()

	return contentChan, errChan
}

// tokenUsage pulls token counts from the provider response, falling back
// to a character-based estimate when the provider reports none.
func tokenUsage(messages []Message, choice *llms.ContentChoice) (int, int) {
	promptTokens, completionTokens := 0, 0
	if info := choice.GenerationInfo; info != nil {
		if v, ok := info["PromptTokens"].(int); ok {
			promptTokens = v
		}
		if v, ok := info["CompletionTokens"].(int); ok {
			completionTokens = v
		}
	}
	if promptTokens == 0 {
		for _, m := range messages {
			promptTokens += estimateTokens(m.Content)
		}
	}
	if completionTokens == 0 {
		completionTokens = estimateTokens(choice.Content)
	}
	return promptTokens, completionTokens
}

// estimateTokens approximates token count as one token per four characters.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}

func convertMessages(messages []Message) []llms.MessageContent {
	llmMessages := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		role := schema.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = schema.ChatMessageTypeSystem
		case "user":
			role = schema.ChatMessageTypeHuman
		case "assistant":
			role = schema.ChatMessageTypeAI
		}

		llmMessages[i] = llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		}
	}
	return llmMessages
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// FormatMessages builds the message list for a single grounded exchange.
func FormatMessages(systemPrompt string, userContent string) []Message {
	messages := []Message{}
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, UserMessage(userContent))
	return messages
}
