package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configures an OpenAI-compatible chat completions backend
type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Referer string // sent as HTTP-Referer, used by OpenRouter for attribution
	Title   string // sent as X-Title
	Timeout time.Duration
}

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter by default.
type OpenAIBackend struct {
	client openai.Client
}

// NewOpenAIBackend creates a backend with SDK retries disabled
func NewOpenAIBackend(opts OpenAIOptions) *OpenAIBackend {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withTrailingSlash(opts.BaseURL)))
	}
	if opts.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.Referer))
	}
	if opts.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.Title))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAIBackend{
		client: openai.NewClient(reqOpts...),
	}
}

// Name returns the backend name
func (b *OpenAIBackend) Name() string {
	return "openai"
}

// Complete sends one chat completion request
func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			return "", fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(req.Temperature)

	response, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %v", ErrTransport, apiErr.StatusCode, err)
		}
		if isNetworkError(err) {
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}
	// A choice without a message, or with null content, carries no reply
	msg := response.Choices[0].Message
	if !msg.JSON.Content.Valid() {
		return "", fmt.Errorf("%w: first choice has no message content", ErrNoChoices)
	}

	return msg.Content, nil
}
