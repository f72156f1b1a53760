package observability

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Audit actions
const (
	ActionChatStarted = "chat_started"
	ActionChatLoaded  = "chat_loaded"
	ActionUpload      = "upload"
)

// Audit outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNotFound = "not_found"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Kind     string // "session" or "document"
	ChatID   string
	Action   string
	Outcome  string
	Metadata map[string]interface{}
	At       time.Time
}

// AuditLogger appends chat and upload events as JSON lines.
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
}

var (
	auditMu   sync.Mutex
	auditInst *AuditLogger
)

// GetAuditLogger returns the process audit logger. It discards events until
// InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditMu.Lock()
	defer auditMu.Unlock()
	if auditInst == nil {
		auditInst = NewAuditLogger(zerolog.Nop())
	}
	return auditInst
}

// InitAuditLogger points the process audit logger at a rotated file.
func InitAuditLogger(path string) error {
	w := &lumberjack.Logger{
		Filename: path,
		MaxSize:  10,
		MaxAge:   90,
	}
	// Open now so a bad path fails here rather than on the first event.
	if _, err := w.Write(nil); err != nil {
		return err
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	auditInst = &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
		closer: w,
	}
	return nil
}

// NewAuditLogger returns an audit logger writing to logger.
func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// Record writes event and, when ctx carries a recording span, adds it to the
// span as an event.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	var traceID string
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		traceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.kind", event.Kind),
			attribute.String("audit.outcome", event.Outcome),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.logger.Log().
		Str("kind", event.Kind).
		Str("action", event.Action).
		Str("outcome", event.Outcome).
		Time("at", event.At)
	if event.ChatID != "" {
		e = e.Str("chat_id", event.ChatID)
	}
	if traceID != "" {
		e = e.Str("trace_id", traceID)
	}
	if len(event.Metadata) > 0 {
		e = e.Interface("metadata", event.Metadata)
	}
	e.Send()
}

// Close closes the audit file, if any
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// RecordSession records a chat lifecycle event.
func (a *AuditLogger) RecordSession(ctx context.Context, action, chatID, outcome string, metadata map[string]interface{}) {
	a.Record(ctx, AuditEvent{
		Kind:     "session",
		ChatID:   chatID,
		Action:   action,
		Outcome:  outcome,
		Metadata: metadata,
	})
}

// RecordDocument records the outcome of a document upload.
func (a *AuditLogger) RecordDocument(ctx context.Context, filename, chatID, outcome string, metadata map[string]interface{}) {
	md := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["filename"] = filename

	a.Record(ctx, AuditEvent{
		Kind:     "document",
		ChatID:   chatID,
		Action:   ActionUpload,
		Outcome:  outcome,
		Metadata: md,
	})
}
