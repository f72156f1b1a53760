package session

import (
	"slices"
	"strings"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", invalidRole(s)
	}
	return r, nil
}

// Message represents a single conversation turn
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Session is the persisted state of one chat
type Session struct {
	ID              string    `json:"chat_id"`
	DocumentContext *string   `json:"document"`
	DocumentName    string    `json:"document_name,omitempty"`
	Messages        []Message `json:"messages"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Summary is the listing projection of a session
type Summary struct {
	ID           string    `json:"chat_id"`
	LastUpdated  time.Time `json:"last_updated"`
	MessageCount int       `json:"message_count"`
	HasDocument  bool      `json:"has_document"`
}

// HasDocument reports whether a document is attached
func (s *Session) HasDocument() bool {
	return s.DocumentContext != nil
}

// Summary projects the session for listings
func (s *Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		LastUpdated:  s.LastUpdated,
		MessageCount: len(s.Messages),
		HasDocument:  s.HasDocument(),
	}
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = slices.Clone(s.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if s.DocumentContext != nil {
		doc := *s.DocumentContext
		c.DocumentContext = &doc
	}
	return &c
}

// SortSummaries orders summaries most recent first, ties by id ascending.
func SortSummaries(summaries []Summary) {
	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
