package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	recordExt = ".json"
	tempExt   = ".tmp"
)

// FileStore keeps one JSON document per session in a directory
type FileStore struct {
	dir    string
	logger zerolog.Logger
	locks  *keyLocks
}

// NewFileStore creates the directory if needed and returns a store over it
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	observability.EnsureRegistered()

	if dir == "" {
		return nil, fmt.Errorf("session directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	fs := &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "file_store").Logger(),
		locks:  newKeyLocks(),
	}
	fs.logger.Info().Str("dir", dir).Msg("File session store initialized")

	return fs, nil
}

// Dir returns the directory holding the session files
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+recordExt)
}

// Save writes the session through a temp file and an atomic rename
func (fs *FileStore) Save(ctx context.Context, s *Session) (err error) {
	ctx = tracing.WithSessionID(ctx, s.ID)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "file_store.save",
		attribute.String("session_id", s.ID),
		attribute.Int("messages", len(s.Messages)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, fs.logger)

	start := time.Now()
	defer func() {
		observability.RecordSessionSave("file", time.Since(start), err == nil)
	}()

	if err := ValidateID(s.ID); err != nil {
		return tracing.FailSpan(span, err)
	}

	data, err := encodeRecord(s)
	if err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: s.ID, Err: err})
	}

	lock := fs.locks.get(s.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := fs.writeAtomic(s.ID, data); err != nil {
		return tracing.FailSpan(span, &PersistenceError{Op: "save", ID: s.ID, Err: err})
	}

	logger.Debug().Int("messages", len(s.Messages)).Msg("Session saved")
	return nil
}

func (fs *FileStore) writeAtomic(id string, data []byte) error {
	target := fs.path(id)
	tempPath := target + tempExt

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write session: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load reads and validates a session file
func (fs *FileStore) Load(ctx context.Context, id string) (*Session, error) {
	ctx = tracing.WithSessionID(ctx, id)
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "file_store.load",
		attribute.String("session_id", id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, fs.logger)

	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := ValidateID(id); err != nil {
		return nil, tracing.FailSpan(span, err)
	}

	s, err := fs.read(id)
	if err != nil {
		var corrupt *CorruptDataError
		if errors.As(err, &corrupt) {
			observability.RecordCorruptSession()
			logger.Warn().Err(err).Msg("Stored session is corrupt")
		}
		return nil, tracing.FailSpan(span, err)
	}

	logger.Debug().Int("messages", len(s.Messages)).Msg("Session loaded")
	return s, nil
}

func (fs *FileStore) read(id string) (*Session, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, &PersistenceError{Op: "load", ID: id, Err: err}
	}
	return decodeRecord(id, data)
}

// ListSummaries reads every session file in the directory
func (fs *FileStore) ListSummaries(ctx context.Context) ([]Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "docchat.session", "file_store.list")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, fs.logger)

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, tracing.FailSpan(span, &PersistenceError{Op: "list", Err: err})
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), recordExt)
		if ValidateID(id) != nil {
			continue
		}

		s, err := fs.read(id)
		if err != nil {
			var corrupt *CorruptDataError
			if errors.As(err, &corrupt) {
				observability.RecordCorruptSession()
			}
			logger.Warn().Str("session_id", id).Err(err).Msg("Skipping unreadable session")
			continue
		}
		summaries = append(summaries, s.Summary())
	}

	SortSummaries(summaries)
	observability.SetStoredSessions(len(summaries))
	span.SetAttributes(attribute.Int("sessions", len(summaries)))

	return summaries, nil
}

// Exists reports whether a session file is present
func (fs *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	_, err := os.Stat(fs.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &PersistenceError{Op: "exists", ID: id, Err: err}
}

// Close is a no-op; files are closed after every operation
func (fs *FileStore) Close() error {
	fs.logger.Info().Msg("File session store closed")
	return nil
}
