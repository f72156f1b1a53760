package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicOptions configures the Anthropic Messages backend
type AnthropicOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// AnthropicBackend talks to the Anthropic Messages API
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend creates a backend with SDK retries disabled
func NewAnthropicBackend(opts AnthropicOptions) *AnthropicBackend {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withTrailingSlash(opts.BaseURL)))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &AnthropicBackend{
		client: anthropic.NewClient(reqOpts...),
	}
}

// Name returns the backend name
func (b *AnthropicBackend) Name() string {
	return "anthropic"
}

// Complete sends one Messages request. System messages, including the ones
// recorded in the history, travel in the system field.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})
		default:
			return "", fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	if len(messages) == 0 {
		return "", fmt.Errorf("anthropic request needs at least one user or assistant message")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   int64(req.MaxTokens),
		System:      system,
		Temperature: anthropic.Float(req.Temperature),
	}

	response, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: status %d: %v", ErrTransport, apiErr.StatusCode, err)
		}
		if isNetworkError(err) {
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return "", fmt.Errorf("messages request: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrNoChoices
	}

	return text.String(), nil
}
