package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validateInst
}

// formatValidationError flattens validator field errors into one readable error.
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Validator validates individual configuration values, used by the wizard
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{v: structValidator()}
}

// ValidateProvider validates a completion provider name
func (v *Validator) ValidateProvider(provider string) error {
	if err := v.v.Var(provider, "required,oneof=openai anthropic"); err != nil {
		return fmt.Errorf("invalid provider: %q (must be one of: openai, anthropic)", provider)
	}
	return nil
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI-compatible API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateBaseURL validates an optional base URL
func (v *Validator) ValidateBaseURL(baseURL string) error {
	if err := v.v.Var(baseURL, "omitempty,url"); err != nil {
		return fmt.Errorf("invalid base URL: %q", baseURL)
	}
	return nil
}

// ValidateStorageBackend validates a storage backend name
func (v *Validator) ValidateStorageBackend(backend string) error {
	if err := v.v.Var(backend, "required,oneof=file sqlite redis memory"); err != nil {
		return fmt.Errorf("invalid storage backend: %q (must be one of: file, sqlite, redis, memory)", backend)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if err := v.v.Var(level, "oneof=debug info warn error"); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", level)
	}
	return nil
}

// ValidateSchedule validates a janitor cron spec; empty disables the janitor.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", spec, err)
	}
	return nil
}
