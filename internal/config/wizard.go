package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== docchat configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	for {
		provider, err := w.ask("Completion provider (openai/anthropic)", cfg.Completion.Provider)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Completion.Provider = provider
		break
	}

	if cfg.Completion.Provider == "anthropic" {
		cfg.Completion.BaseURL = ""
		cfg.Completion.Model = DefaultAnthropicModel
	}

	for {
		key, err := w.ask("API key", "")
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateAPIKey(key, cfg.Completion.Provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Completion.APIKey = key
		break
	}

	for {
		baseURL, err := w.ask("Base URL", cfg.Completion.BaseURL)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateBaseURL(baseURL); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Completion.BaseURL = baseURL
		break
	}

	model, err := w.ask("Model", cfg.Completion.Model)
	if err != nil {
		return nil, err
	}
	cfg.Completion.Model = model

	fmt.Fprintln(w.out)

	for {
		backend, err := w.ask("Session storage (file/sqlite/redis)", cfg.Storage.Backend)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateStorageBackend(backend); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Storage.Backend = backend
		break
	}

	if cfg.Storage.Backend == "redis" {
		addr, err := w.ask("Redis address", "localhost:6379")
		if err != nil {
			return nil, err
		}
		cfg.Storage.RedisAddr = addr
	}

	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prints a prompt and returns the trimmed answer, or def when the answer is empty.
func (w *Wizard) ask(prompt, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
