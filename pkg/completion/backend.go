package completion

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrTransport marks timeouts, connection failures and non-2xx responses
	ErrTransport = errors.New("completion service unreachable")

	// ErrNoChoices marks a successful response that carried no reply
	ErrNoChoices = errors.New("completion response has no choices")
)

// ChatMessage is one message of an outbound request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request. Messages[0] is the
// assembled system message.
type Request struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Backend sends a Request to a concrete completion API
type Backend interface {
	// Complete returns the reply text of the first choice
	Complete(ctx context.Context, req Request) (string, error)

	// Name returns the backend name used in logs and metrics
	Name() string
}

// isNetworkError reports failures below the HTTP status layer
func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// withTrailingSlash keeps the last path segment of a base URL when the SDK
// resolves relative endpoints against it
func withTrailingSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
