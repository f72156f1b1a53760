package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxBytes is the upload size limit
const DefaultMaxBytes int64 = 16 * 1024 * 1024

// DefaultExtensions are the accepted file types
var DefaultExtensions = []string{"pdf", "txt", "docx"}

type extractFunc func(data []byte) (string, error)

var extractors = map[string]extractFunc{
	"txt":  extractTXT,
	"docx": extractDOCX,
	"pdf":  extractPDF,
}

// Extractor converts allow-listed documents to plain text
type Extractor struct {
	allowed  map[string]bool
	maxBytes int64
	logger   zerolog.Logger
}

// NewExtractor creates an extractor. Extensions without a known parser are
// ignored; an empty list means DefaultExtensions.
func NewExtractor(allowed []string, maxBytes int64, logger zerolog.Logger) *Extractor {
	observability.EnsureRegistered()

	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	set := make(map[string]bool, len(allowed))
	for _, ext := range allowed {
		ext = normalizeExt(ext)
		if _, ok := extractors[ext]; ok {
			set[ext] = true
		}
	}

	return &Extractor{
		allowed:  set,
		maxBytes: maxBytes,
		logger:   logger.With().Str("component", "document").Logger(),
	}
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Ext returns the lower-case extension of filename without the dot
func Ext(filename string) string {
	return normalizeExt(filepath.Ext(filename))
}

// Allowed reports whether filename has an allow-listed extension
func (e *Extractor) Allowed(filename string) bool {
	return e.allowed[Ext(filename)]
}

// MaxBytes returns the size limit
func (e *Extractor) MaxBytes() int64 {
	return e.maxBytes
}

// Extract reads r and returns its text. filename selects the parser.
func (e *Extractor) Extract(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := Ext(filename)
	ctx, span := tracing.StartSpan(ctx, "docchat.document", "document.extract",
		attribute.String("filename", filename),
		attribute.String("ext", ext),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("filename", filename).Logger()

	if !e.allowed[ext] {
		observability.RecordDocumentExtract(ext, 0, false)
		return "", tracing.FailSpan(span, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename)))
	}

	start := time.Now()
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		observability.RecordDocumentExtract(ext, 0, false)
		return "", tracing.FailSpan(span, &ExtractionError{Filename: filename, Ext: ext, Err: err})
	}
	if int64(len(data)) > e.maxBytes {
		observability.RecordDocumentExtract(ext, 0, false)
		return "", tracing.FailSpan(span, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, e.maxBytes))
	}

	text, err := extractors[ext](data)
	if err != nil {
		observability.RecordDocumentExtract(ext, 0, false)
		logger.Warn().Err(err).Msg("Document extraction failed")
		return "", tracing.FailSpan(span, &ExtractionError{Filename: filename, Ext: ext, Err: err})
	}

	observability.RecordDocumentExtract(ext, len(text), true)
	logger.Info().
		Int("bytes", len(data)).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("Document extracted")

	return text, nil
}

// ExtractFile opens path and extracts it
func (e *Extractor) ExtractFile(ctx context.Context, path string) (string, error) {
	if !e.Allowed(path) {
		observability.RecordDocumentExtract(Ext(path), 0, false)
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &ExtractionError{Filename: filepath.Base(path), Ext: Ext(path), Err: err}
	}
	if info.Size() > e.maxBytes {
		observability.RecordDocumentExtract(Ext(path), 0, false)
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, filepath.Base(path), info.Size(), e.maxBytes)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", &ExtractionError{Filename: filepath.Base(path), Ext: Ext(path), Err: err}
	}
	defer file.Close()

	return e.Extract(ctx, filepath.Base(path), file)
}
