package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process logger: console and/or a rotated file, optionally
// passed through a Redactor.
type Logger struct {
	zl       zerolog.Logger
	file     *lumberjack.Logger
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // rotated log file, empty for none
	Console   bool   // write to stderr
	Pretty    bool   // human readable console output
	Redaction bool   // mask credentials
	Secrets   []string
	MaxSize   int // MB before rotation
	MaxAge    int // days
	Compress  bool
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}

// New builds a Logger from cfg and installs it as the zerolog global logger.
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Logger{}
	var outputs []io.Writer

	if cfg.Console {
		outputs = append(outputs, consoleWriter(cfg.Pretty))
	}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename: cfg.File,
			MaxSize:  cfg.MaxSize,
			MaxAge:   cfg.MaxAge,
			Compress: cfg.Compress,
		}
		outputs = append(outputs, l.file)
	}

	var w io.Writer = io.Discard
	if len(outputs) > 0 {
		w = zerolog.MultiLevelWriter(outputs...)
	}
	if cfg.Redaction {
		l.redactor = NewRedactor(cfg.Secrets...)
		w = l.redactor.Wrap(w)
	}

	l.zl = zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = l.zl

	return l, nil
}

func consoleWriter(pretty bool) io.Writer {
	if !pretty {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.zl
}
