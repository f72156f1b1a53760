package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no session is stored under an id
	ErrNotFound = errors.New("session not found")

	// ErrNoActiveSession is returned by operations that need an active chat
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidRole is returned for roles other than system, user and assistant
	ErrInvalidRole = errors.New("invalid message role")

	// ErrInvalidSessionID is returned for ids that are not path and key safe
	ErrInvalidSessionID = errors.New("invalid session id")
)

// PersistenceError reports a failure of the storage medium
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("session store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CorruptDataError reports stored data that cannot be parsed into a session
type CorruptDataError struct {
	ID  string
	Err error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("session %s is corrupt: %v", e.ID, e.Err)
}

func (e *CorruptDataError) Unwrap() error {
	return e.Err
}

func invalidRole(role string) error {
	return fmt.Errorf("%w: %q", ErrInvalidRole, role)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ValidateID checks that a session id is safe to use as a file name or key
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidSessionID)
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: id cannot contain '..'", ErrInvalidSessionID)
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: id cannot contain path separators", ErrInvalidSessionID)
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("%w: id cannot contain null bytes", ErrInvalidSessionID)
	}
	return nil
}
