package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		in := strings.NewReader("\nsk-or-key\n\n\n\n\n")
		var out bytes.Buffer

		cfg, err := NewWizard(in, &out).Run()
		require.NoError(t, err)

		assert.Equal(t, "openai", cfg.Completion.Provider)
		assert.Equal(t, "sk-or-key", cfg.Completion.APIKey)
		assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Completion.BaseURL)
		assert.Equal(t, "file", cfg.Storage.Backend)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Configuration complete!")
	})

	t.Run("re-prompts on invalid answers", func(t *testing.T) {
		in := strings.NewReader("gemini\nanthropic\nbad-key\nsk-ant-key\n\nclaude-test\npostgres\nredis\nredis:6379\ndebug\n")
		var out bytes.Buffer

		cfg, err := NewWizard(in, &out).Run()
		require.NoError(t, err)

		assert.Equal(t, "anthropic", cfg.Completion.Provider)
		assert.Equal(t, "sk-ant-key", cfg.Completion.APIKey)
		assert.Empty(t, cfg.Completion.BaseURL)
		assert.Equal(t, "claude-test", cfg.Completion.Model)
		assert.Equal(t, "redis", cfg.Storage.Backend)
		assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "invalid provider")
		assert.Contains(t, out.String(), "invalid storage backend")
	})

	t.Run("input ends early", func(t *testing.T) {
		_, err := NewWizard(strings.NewReader(""), &bytes.Buffer{}).Run()
		assert.Error(t, err)
	})
}
