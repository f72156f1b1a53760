package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Store persists sessions keyed by id. Implementations serialize writes for
// the same id and never retry a failed medium operation.
type Store interface {
	// Save writes the full state of a session, replacing any prior state
	Save(ctx context.Context, s *Session) error

	// Load returns the stored session, ErrNotFound or a *CorruptDataError
	Load(ctx context.Context, id string) (*Session, error)

	// ListSummaries returns every readable session, most recent first.
	// Corrupt entries are skipped.
	ListSummaries(ctx context.Context) ([]Summary, error)

	// Exists reports whether a session is stored under id
	Exists(ctx context.Context, id string) (bool, error)

	Close() error
}

const recordSchema = `{
	"type": "object",
	"required": ["chat_id", "messages", "last_updated"],
	"properties": {
		"chat_id": {"type": "string", "minLength": 1},
		"document": {"type": ["string", "null"]},
		"document_name": {"type": "string"},
		"messages": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["role", "content"],
				"properties": {
					"role": {"enum": ["system", "user", "assistant"]},
					"content": {"type": "string"},
					"timestamp": {"type": "string"}
				}
			}
		},
		"created_at": {"type": "string"},
		"last_updated": {"type": "string"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func recordValidator() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(recordSchema))
	})
	return schema, schemaErr
}

// encodeRecord serializes a session into its stored JSON form
func encodeRecord(s *Session) ([]byte, error) {
	record := s.Clone()
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

// decodeRecord parses and validates a stored record for id
func decodeRecord(id string, data []byte) (*Session, error) {
	validator, err := recordValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile session schema: %w", err)
	}

	result, err := validator.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &CorruptDataError{ID: id, Err: err}
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, &CorruptDataError{ID: id, Err: errors.New(strings.Join(problems, "; "))}
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &CorruptDataError{ID: id, Err: err}
	}
	if s.ID != id {
		return nil, &CorruptDataError{ID: id, Err: fmt.Errorf("record holds chat_id %q", s.ID)}
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	return &s, nil
}

// keyLocks hands out one mutex per session id
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	if lock, ok := k.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	k.locks[id] = lock
	return lock
}
