package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/docchat/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const maxIDAttempts = 5

// Manager tracks the one active chat of a conversation and persists every
// mutation through a Store before returning.
type Manager struct {
	mu     sync.Mutex
	store  Store
	logger zerolog.Logger
	now    func() time.Time
	newID  func(time.Time) (string, error)
	active *Session
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces NewID
func WithIDGenerator(gen func(time.Time) (string, error)) ManagerOption {
	return func(m *Manager) { m.newID = gen }
}

// NewManager creates a manager with no active session
func NewManager(store Store, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		logger: logger.With().Str("component", "session_manager").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartNewChat replaces the active session with a fresh, empty one.
// The new session is persisted on its first mutation.
func (m *Manager) StartNewChat(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "docchat.session", "manager.start_new_chat")
	defer span.End()

	id, err := m.startLocked(ctx)
	if err != nil {
		return "", tracing.FailSpan(span, err)
	}
	span.SetAttributes(attribute.String("session_id", id))
	return id, nil
}

func (m *Manager) startLocked(ctx context.Context) (string, error) {
	now := m.now()

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := m.newID(now)
		if err != nil {
			return "", err
		}
		if err := ValidateID(id); err != nil {
			return "", err
		}

		taken := m.active != nil && m.active.ID == id
		if !taken {
			taken, err = m.store.Exists(ctx, id)
			if err != nil {
				return "", fmt.Errorf("failed to check session id: %w", err)
			}
		}
		if taken {
			m.logger.Debug().Str("session_id", id).Int("attempt", attempt).Msg("Session id collision, regenerating")
			continue
		}

		m.active = &Session{
			ID:          id,
			Messages:    []Message{},
			CreatedAt:   now,
			LastUpdated: now,
		}
		logger := tracing.LoggerFromContext(tracing.WithSessionID(ctx, id), m.logger)
		logger.Info().Msg("Started new chat")
		return id, nil
	}

	return "", fmt.Errorf("failed to allocate a unique session id after %d attempts", maxIDAttempts)
}

// SetDocument attaches document text to the active session and records a
// system message naming it.
func (m *Manager) SetDocument(ctx context.Context, content, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveSession
	}

	ctx = tracing.WithSessionID(ctx, m.active.ID)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "manager.set_document",
		attribute.String("session_id", m.active.ID),
		attribute.Int("document_chars", len(content)),
	)
	defer span.End()

	prev := m.active.Clone()

	doc := content
	m.active.DocumentContext = &doc
	m.active.DocumentName = label
	m.active.Messages = append(m.active.Messages, Message{
		Role:      RoleSystem,
		Content:   documentNotice(label),
		CreatedAt: m.now(),
	})

	if err := m.persistLocked(ctx); err != nil {
		m.active = prev
		return tracing.FailSpan(span, err)
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Info().
		Str("document", label).
		Int("chars", len(content)).
		Msg("Document attached")
	return nil
}

func documentNotice(label string) string {
	if label == "" {
		return "Document has been uploaded. You can now ask questions about it."
	}
	return fmt.Sprintf("Document has been uploaded %s. You can now ask questions about it.", label)
}

// AddMessage appends a message to the active session, starting one if
// needed. The message is persisted before AddMessage returns; when the
// store fails the append is undone.
func (m *Manager) AddMessage(ctx context.Context, role Role, content string) error {
	if !role.Valid() {
		return invalidRole(string(role))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		if _, err := m.startLocked(ctx); err != nil {
			return err
		}
	}

	ctx = tracing.WithSessionID(ctx, m.active.ID)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "manager.add_message",
		attribute.String("session_id", m.active.ID),
		attribute.String("role", string(role)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	prevLen := len(m.active.Messages)
	prevUpdated := m.active.LastUpdated

	m.active.Messages = append(m.active.Messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
	})

	if err := m.persistLocked(ctx); err != nil {
		m.active.Messages = m.active.Messages[:prevLen]
		m.active.LastUpdated = prevUpdated
		logger.Error().Err(err).Msg("Failed to persist message")
		return tracing.FailSpan(span, err)
	}

	logger.Debug().
		Str("role", string(role)).
		Int("messages", len(m.active.Messages)).
		Msg("Message appended")
	return nil
}

// persistLocked advances LastUpdated and saves the active session
func (m *Manager) persistLocked(ctx context.Context) error {
	next := m.now()
	if !next.After(m.active.LastUpdated) {
		next = m.active.LastUpdated.Add(time.Nanosecond)
	}
	m.active.LastUpdated = next

	return m.store.Save(ctx, m.active.Clone())
}

// History returns a copy of the active message list
func (m *Manager) History() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return []Message{}
	}
	out := make([]Message, len(m.active.Messages))
	copy(out, m.active.Messages)
	return out
}

// DocumentContext returns the active document text, if any
func (m *Manager) DocumentContext() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.DocumentContext == nil {
		return "", false
	}
	return *m.active.DocumentContext, true
}

// DocumentName returns the label of the active document
func (m *Manager) DocumentName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ""
	}
	return m.active.DocumentName
}

// ActiveID returns the id of the active session
func (m *Manager) ActiveID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return "", false
	}
	return m.active.ID, true
}

// LoadChat makes a stored session the active one. It returns false when
// no session is stored under id, including ids no store could hold; the
// active session is then unchanged.
func (m *Manager) LoadChat(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "manager.load_chat",
		attribute.String("session_id", id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	s, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidSessionID) {
		logger.Info().Err(err).Msg("Chat not found")
		return false, nil
	}
	if err != nil {
		return false, tracing.FailSpan(span, err)
	}

	m.active = s
	logger.Info().Int("messages", len(s.Messages)).Bool("has_document", s.HasDocument()).Msg("Chat loaded")
	return true, nil
}

// ListChats returns the stored sessions, most recent first
func (m *Manager) ListChats(ctx context.Context) ([]Summary, error) {
	return m.store.ListSummaries(ctx)
}
