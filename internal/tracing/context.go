package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	sessionIDKey
	documentKey
)

// Fields are the correlation values carried through a chat turn or upload.
type Fields struct {
	TraceID   string
	SessionID string
	Document  string
}

// NewTraceID returns a random trace id.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID returns ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSessionID returns ctx carrying the chat session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithDocument returns ctx carrying the name of the document being processed.
func WithDocument(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, documentKey, name)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func GetTraceID(ctx context.Context) string   { return stringValue(ctx, traceIDKey) }
func GetSessionID(ctx context.Context) string { return stringValue(ctx, sessionIDKey) }
func GetDocument(ctx context.Context) string  { return stringValue(ctx, documentKey) }

// FieldsFrom collects every correlation value present in ctx.
func FieldsFrom(ctx context.Context) Fields {
	return Fields{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		Document:  GetDocument(ctx),
	}
}

// NewRequestContext starts a new trace unless ctx already carries one.
func NewRequestContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, NewTraceID())
}

// LoggerFromContext returns base with the correlation fields of ctx attached.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	f := FieldsFrom(ctx)
	if f == (Fields{}) {
		return base
	}

	lc := base.With()
	if f.TraceID != "" {
		lc = lc.Str("trace_id", f.TraceID)
	}
	if f.SessionID != "" {
		lc = lc.Str("session_id", f.SessionID)
	}
	if f.Document != "" {
		lc = lc.Str("document", f.Document)
	}
	return lc.Logger()
}
