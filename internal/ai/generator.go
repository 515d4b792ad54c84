// Package ai is the gateway to the language-generation capability.
package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonLength signals that the output was cut off at the token limit.
const FinishReasonLength = "length"

type Message struct {
	Role    string
	Content string
}

type Options struct {
	Temperature *float32
	MaxOutput   int
	// OnDelta receives content chunks as they are generated. The complete content is still returned.
	OnDelta func(chunk string)
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Response struct {
	Content      string
	Usage        Usage
	FinishReason string
	Model        string
	Latency      time.Duration
}

// Generator produces a chat completion. Failures match [errors.ErrProvider].
type Generator interface {
	Chat(ctx context.Context, messages []Message, opts Options) (Response, error)
}

// GeneratorFunc adapts a function to [Generator].
type GeneratorFunc func(ctx context.Context, messages []Message, opts Options) (Response, error)

func (f GeneratorFunc) Chat(ctx context.Context, messages []Message, opts Options) (Response, error) {
	return f(ctx, messages, opts)
}

// New returns the generator of the configured provider. Without API keys the automatic provider falls back to the
// deterministic [Mock].
func New(cfg config.LLMConfig, logger *slog.Logger) (Generator, error) {
	provider := cfg.ResolvedProvider()
	switch provider {
	case config.ProviderMock:
		logger.LogAttrs(context.Background(), slog.LevelInfo, "using mock generator")
		return NewMock(), nil
	case config.ProviderOpenAI, config.ProviderDeepSeek:
		if cfg.APIKey() == "" {
			return nil, errors.Wrap(errors.ErrValidation, "missing API key", slog.String("provider", provider))
		}
		return NewOpenAIClient(OpenAIConfig{
			Provider:  provider,
			APIKey:    cfg.APIKey(),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			MaxTokens: cfg.MaxTokens,
		}, logger), nil
	default:
		return nil, errors.Wrap(errors.ErrValidation, "unknown provider", slog.String("provider", provider))
	}
}
