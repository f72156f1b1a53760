package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT PRIMARY KEY,
    record        TEXT NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    has_document  INTEGER NOT NULL DEFAULT 0,
    last_updated  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_updated ON sessions(last_updated);
`

// SQLiteStore keeps sessions as JSON records in a SQLite table
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	observability.EnsureRegistered()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}
	s.logger.Info().Str("path", dbPath).Msg("SQLite session store initialized")

	return s, nil
}

// Save upserts the session row
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) (err error) {
	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "sqlite_store.save",
		attribute.String("session_id", sess.ID),
		attribute.Int("messages", len(sess.Messages)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionSave("sqlite", time.Since(start), err == nil)
	}()

	if err := ValidateID(sess.ID); err != nil {
		return tracing.FailSpan(span, err)
	}

	record, err := encodeRecord(sess)
	if err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: sess.ID, Err: err})
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, record, message_count, has_document, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			record = excluded.record,
			message_count = excluded.message_count,
			has_document = excluded.has_document,
			last_updated = excluded.last_updated`,
		sess.ID,
		string(record),
		len(sess.Messages),
		sess.HasDocument(),
		sess.LastUpdated.UnixNano(),
	)
	if err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: sess.ID, Err: err})
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Msg("Session saved")
	return nil
}

// Load reads and validates the stored record
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "sqlite_store.load",
		attribute.String("session_id", id),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateID(id); err != nil {
		return nil, tracing.FailSpan(span, err)
	}

	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracing.FailSpan(span, notFound(id))
	}
	if err != nil {
		return nil, tracing.FailSpan(span, &PersistenceError{Op: "load", ID: id, Err: err})
	}

	sess, err := decodeRecord(id, []byte(record))
	if err != nil {
		observability.RecordCorruptSession()
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().Err(err).Msg("Stored session is corrupt")
		return nil, tracing.FailSpan(span, err)
	}

	return sess, nil
}

// ListSummaries decodes every row, skipping corrupt records
func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "sqlite_store.list")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM sessions ORDER BY last_updated DESC, id ASC`)
	if err != nil {
		return nil, tracing.FailSpan(span, &PersistenceError{Op: "list", Err: err})
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, tracing.FailSpan(span, &PersistenceError{Op: "list", Err: err})
		}

		sess, err := decodeRecord(id, []byte(record))
		if err != nil {
			observability.RecordCorruptSession()
			logger.Warn().Str("session_id", id).Err(err).Msg("Skipping unreadable session")
			continue
		}
		summaries = append(summaries, sess.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, tracing.FailSpan(span, &PersistenceError{Op: "list", Err: err})
	}

	SortSummaries(summaries)
	observability.SetStoredSessions(len(summaries))

	return summaries, nil
}

// Exists reports whether a row is stored under id
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "exists", ID: id, Err: err}
	}
	return true, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
