package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/harun/docchat/pkg/document"
	"github.com/harun/docchat/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "docchat.chatbot"

// ErrEmptyMessage is returned by Chat when the message is blank
var ErrEmptyMessage = errors.New("no message provided")

// Replier produces the assistant reply for a history and document context.
// It never fails; failures are mapped to fallback text.
type Replier interface {
	GenerateReply(ctx context.Context, history []session.Message, documentContext string) string
}

// Service runs chat turns and document uploads against one Manager
type Service struct {
	manager   *session.Manager
	replier   Replier
	extractor *document.Extractor
	audit     *observability.AuditLogger
	logger    zerolog.Logger
}

// Config holds service dependencies
type Config struct {
	Manager   *session.Manager
	Replier   Replier
	Extractor *document.Extractor
	Audit     *observability.AuditLogger
	Logger    zerolog.Logger
}

// ChatResult is the outcome of one chat turn
type ChatResult struct {
	Reply  string `json:"response"`
	ChatID string `json:"chat_id"`
}

// UploadResult describes a document attached to a new chat
type UploadResult struct {
	ChatID   string `json:"chat_id"`
	Filename string `json:"filename"`
	Chars    int    `json:"chars"`
}

// LoadResult describes a chat made active by LoadChat
type LoadResult struct {
	Found       bool              `json:"success"`
	ChatID      string            `json:"chat_id"`
	HasDocument bool              `json:"has_document"`
	Messages    []session.Message `json:"messages"`
}

// NewService creates a chat service
func NewService(cfg Config) (*Service, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("document extractor is required")
	}

	audit := cfg.Audit
	if audit == nil {
		audit = observability.NewAuditLogger(zerolog.Nop())
	}

	return &Service{
		manager:   cfg.Manager,
		replier:   cfg.Replier,
		extractor: cfg.Extractor,
		audit:     audit,
		logger:    cfg.Logger.With().Str("component", "chatbot").Logger(),
	}, nil
}

// Chat records the user message, asks for a reply with the active
// document as context and records the reply. The user turn is stored
// before the completion call, so it survives a failed completion.
func (s *Service) Chat(ctx context.Context, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	ctx = tracing.NewRequestContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "service.chat",
		attribute.Int("message_chars", utf8.RuneCountInString(message)),
	)
	defer span.End()

	if err := s.manager.AddMessage(ctx, session.RoleUser, message); err != nil {
		return nil, tracing.FailSpan(span, fmt.Errorf("failed to record user message: %w", err))
	}

	chatID, _ := s.manager.ActiveID()
	ctx = tracing.WithSessionID(ctx, chatID)
	span.SetAttributes(attribute.String("session_id", chatID))

	doc, _ := s.manager.DocumentContext()
	reply := s.replier.GenerateReply(ctx, s.manager.History(), doc)

	if err := s.manager.AddMessage(ctx, session.RoleAssistant, reply); err != nil {
		return nil, tracing.FailSpan(span, fmt.Errorf("failed to record assistant reply: %w", err))
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().
		Bool("has_document", doc != "").
		Int("reply_chars", utf8.RuneCountInString(reply)).
		Msg("Chat turn completed")

	return &ChatResult{Reply: reply, ChatID: chatID}, nil
}

// Upload extracts text from r, starts a new chat and attaches the text to
// it. Nothing changes when extraction fails.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	filename = filepath.Base(filename)

	ctx = tracing.WithDocument(tracing.NewRequestContext(ctx), filename)
	ctx, span := tracing.StartSpan(ctx, tracerName, "service.upload",
		attribute.String("filename", filename),
	)
	defer span.End()

	text, err := s.extractor.Extract(ctx, filename, r)
	if err != nil {
		s.audit.RecordDocument(ctx, filename, "", observability.OutcomeFailure, map[string]interface{}{"error": err.Error()})
		return nil, tracing.FailSpan(span, err)
	}

	chatID, err := s.manager.StartNewChat(ctx)
	if err != nil {
		return nil, tracing.FailSpan(span, fmt.Errorf("failed to start chat: %w", err))
	}
	ctx = tracing.WithSessionID(ctx, chatID)
	span.SetAttributes(attribute.String("session_id", chatID))

	if err := s.manager.SetDocument(ctx, text, filename); err != nil {
		s.audit.RecordDocument(ctx, filename, chatID, observability.OutcomeFailure, map[string]interface{}{"error": err.Error()})
		return nil, tracing.FailSpan(span, fmt.Errorf("failed to attach document: %w", err))
	}

	chars := utf8.RuneCountInString(text)
	s.audit.RecordDocument(ctx, filename, chatID, observability.OutcomeSuccess, map[string]interface{}{"chars": chars})
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Int("chars", chars).Msg("Document uploaded")

	return &UploadResult{ChatID: chatID, Filename: filename, Chars: chars}, nil
}

// UploadFile runs Upload on a file from disk
func (s *Service) UploadFile(ctx context.Context, path string) (*UploadResult, error) {
	if !s.extractor.Allowed(path) {
		return nil, fmt.Errorf("%w: %q", document.ErrUnsupportedType, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	return s.Upload(ctx, path, f)
}

// NewChat starts an empty chat
func (s *Service) NewChat(ctx context.Context) (string, error) {
	chatID, err := s.manager.StartNewChat(ctx)
	if err != nil {
		return "", err
	}
	s.audit.RecordSession(ctx, observability.ActionChatStarted, chatID, observability.OutcomeSuccess, nil)
	return chatID, nil
}

// LoadChat makes a stored chat active. Found is false when no chat is
// stored under id.
func (s *Service) LoadChat(ctx context.Context, id string) (*LoadResult, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	found, err := s.manager.LoadChat(ctx, id)
	if err != nil {
		s.audit.RecordSession(ctx, observability.ActionChatLoaded, id, observability.OutcomeFailure, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if !found {
		s.audit.RecordSession(ctx, observability.ActionChatLoaded, id, observability.OutcomeNotFound, nil)
		return &LoadResult{Found: false, ChatID: id, Messages: []session.Message{}}, nil
	}

	_, hasDoc := s.manager.DocumentContext()
	s.audit.RecordSession(ctx, observability.ActionChatLoaded, id, observability.OutcomeSuccess, map[string]interface{}{"has_document": hasDoc})

	return &LoadResult{
		Found:       true,
		ChatID:      id,
		HasDocument: hasDoc,
		Messages:    s.manager.History(),
	}, nil
}

// ListChats returns stored chats, most recent first
func (s *Service) ListChats(ctx context.Context) ([]session.Summary, error) {
	return s.manager.ListChats(ctx)
}

// History returns the active chat's messages
func (s *Service) History() []session.Message {
	return s.manager.History()
}

// ActiveChat returns the active chat id, if any
func (s *Service) ActiveChat() (string, bool) {
	return s.manager.ActiveID()
}

// Accepts reports whether name has an extension Upload can parse
func (s *Service) Accepts(name string) bool {
	return s.extractor.Allowed(name)
}
