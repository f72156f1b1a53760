package completion

import (
	"context"
	"errors"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/harun/docchat/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// User-facing replies for failed completions
const (
	ReplyUnexpectedFormat = "Sorry, I couldn't generate a response. The API returned an unexpected format."
	ReplyUnavailable      = "I'm having trouble connecting to the AI service. Please try again later."
	ReplyError            = "An error occurred while generating a response. Please try again."
)

// Outcomes recorded per completion call
const (
	OutcomeSuccess     = "success"
	OutcomeFallback    = "fallback"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Options holds the per-request settings
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Language    string
}

// DefaultOptions returns the request settings used by the original service
func DefaultOptions() Options {
	return Options{
		Model:       "deepseek/deepseek-r1-0528:free",
		Temperature: 0.7,
		MaxTokens:   2000,
		Timeout:     30 * time.Second,
		Language:    "English",
	}
}

// Client assembles requests and maps backend failures to fixed replies
type Client struct {
	backend Backend
	opts    Options
	logger  zerolog.Logger
}

// NewClient creates a completion client over backend
func NewClient(backend Backend, opts Options, logger zerolog.Logger) *Client {
	observability.EnsureRegistered()

	return &Client{
		backend: backend,
		opts:    opts,
		logger:  logger.With().Str("component", "completion").Str("backend", backend.Name()).Logger(),
	}
}

// BuildRequest prepends the system message to a copy of history
func (c *Client) BuildRequest(history []session.Message, documentContext string) Request {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{
		Role:    string(session.RoleSystem),
		Content: SystemPrompt(c.opts.Language, documentContext),
	})
	for _, m := range history {
		messages = append(messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	return Request{
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
}

// GenerateReply asks the backend for the next assistant turn. It never
// fails: errors are logged and replaced by a fixed reply.
func (c *Client) GenerateReply(ctx context.Context, history []session.Message, documentContext string) string {
	ctx, span := tracing.StartSpan(ctx, "docchat.completion", "completion.generate_reply",
		attribute.String("backend", c.backend.Name()),
		attribute.Int("history", len(history)),
		attribute.Bool("has_document", documentContext != ""),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, c.logger)

	req := c.BuildRequest(history, documentContext)

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("system_chars", len(req.Messages[0].Content)).
		Msg("Sending completion request")

	start := time.Now()
	reply, err := c.backend.Complete(ctx, req)
	elapsed := time.Since(start)

	outcome, text := classify(err)
	observability.RecordCompletion(c.backend.Name(), outcome, elapsed)
	span.SetAttributes(attribute.String("outcome", outcome))

	if err != nil {
		tracing.FailSpan(span, err)
		logger.Error().
			Err(err).
			Str("outcome", outcome).
			Str("model", req.Model).
			Dur("elapsed", elapsed).
			Msg("Completion request failed")
		return text
	}

	logger.Info().
		Dur("elapsed", elapsed).
		Int("reply_chars", len(reply)).
		Msg("Completion received")
	return reply
}

// classify maps a backend error to an outcome and its reply
func classify(err error) (string, string) {
	switch {
	case err == nil:
		return OutcomeSuccess, ""
	case errors.Is(err, ErrTransport) || isNetworkError(err):
		return OutcomeUnavailable, ReplyUnavailable
	case errors.Is(err, ErrNoChoices):
		return OutcomeFallback, ReplyUnexpectedFormat
	default:
		return OutcomeError, ReplyError
	}
}
