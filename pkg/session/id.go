package session

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID returns a chat id of the form chat_<unix seconds>_<random suffix>
func NewID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, 8)
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return fmt.Sprintf("chat_%d_%s", now.Unix(), suffix), nil
}
