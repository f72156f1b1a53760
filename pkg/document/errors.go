package document

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for extensions outside the allow-list
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrTooLarge is returned for inputs above the size limit
	ErrTooLarge = errors.New("document too large")
)

// ExtractionError reports a file that could not be turned into text
type ExtractionError struct {
	Filename string
	Ext      string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s (%s): %v", e.Filename, e.Ext, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
