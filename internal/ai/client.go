package ai

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	deepSeekModel   = "deepseek-chat"
	// DefaultMaxTokens bounds the output of a single call when no limit is configured.
	DefaultMaxTokens = 4096
)

type OpenAIConfig struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// OpenAIClient talks to OpenAI and OpenAI-compatible APIs such as DeepSeek.
type OpenAIClient struct {
	client    *openai.Client
	provider  string
	model     string
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	model := cfg.Model
	switch {
	case cfg.BaseURL != "":
		clientConfig.BaseURL = cfg.BaseURL
	case cfg.Provider == config.ProviderDeepSeek:
		clientConfig.BaseURL = deepSeekBaseURL
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo1106
		if cfg.Provider == config.ProviderDeepSeek {
			model = deepSeekModel
		}
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderOpenAI
	}
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(clientConfig),
		provider:  provider,
		model:     model,
		timeout:   cfg.Timeout,
		maxTokens: maxTokens,
		logger:    logger.With("source", "OpenAIClient", "provider", provider),
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  toOpenAIMessages(messages),
	}
	if opts.MaxOutput > 0 {
		req.MaxTokens = opts.MaxOutput
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}

	start := time.Now()
	var (
		resp Response
		err  error
	)
	if opts.OnDelta != nil {
		resp, err = c.streamCompletion(ctx, req, opts.OnDelta)
	} else {
		resp, err = c.syncCompletion(ctx, req)
	}
	if err != nil {
		pe := providerError(c.provider, err)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "chat completion failed",
			slog.Int("status", pe.StatusCode), slog.Bool("retryable", pe.Retryable), errors.SlogError(err))
		return Response{}, pe
	}
	resp.Latency = time.Since(start)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "chat completion",
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.String("finish_reason", resp.FinishReason),
		slog.Duration("latency", resp.Latency))
	return resp, nil
}

func (c *OpenAIClient) syncCompletion(ctx context.Context, req openai.ChatCompletionRequest) (Response, error) {
	completion, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, errors.Wrap(err, "create chat completion")
	}
	if len(completion.Choices) == 0 {
		return Response{}, errors.New("chat completion without choices")
	}
	return Response{
		Content: completion.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
		FinishReason: string(completion.Choices[0].FinishReason),
		Model:        completion.Model,
		Latency:      0,
	}, nil
}

func (c *OpenAIClient) streamCompletion(
	ctx context.Context,
	req openai.ChatCompletionRequest,
	onDelta func(string),
) (Response, error) {
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Response{}, errors.Wrap(err, "create chat completion stream")
	}
	defer stream.Close()

	var (
		content strings.Builder
		resp    Response
	)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return Response{}, errors.Wrap(recvErr, "receive chat completion chunk")
		}
		resp.Model = chunk.Model
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				onDelta(choice.Delta.Content)
			}
			if choice.FinishReason != "" {
				resp.FinishReason = string(choice.FinishReason)
			}
		}
	}
	resp.Content = content.String()
	// Streams carry no usage; estimate output from the content.
	resp.Usage.OutputTokens = len([]rune(resp.Content))
	return resp, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{ //nolint:exhaustruct // only role and content are used
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}
