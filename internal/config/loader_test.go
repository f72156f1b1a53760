package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearKeyEnv isolates a test from keys present in the host environment.
func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENROUTER_API_KEY",
		"OPENAI_API_KEY",
		"ANTHROPIC_API_KEY",
		"DOCCHAT_COMPLETION_API_KEY",
		"DOCCHAT_COMPLETION_PROVIDER",
		"DOCCHAT_COMPLETION_MODEL",
		"DOCCHAT_STORAGE_BACKEND",
		"DOCCHAT_DATA_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/tmp/test.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/tmp/test.json", loader.GetConfigPath())
}

func TestLoaderLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		t.Setenv("DOCCHAT_DATA_DIR", tmpDir)

		cfg, err := NewLoader(filepath.Join(tmpDir, "absent.json")).WithEnvFile("").Load()
		require.NoError(t, err)

		assert.Equal(t, "openai", cfg.Completion.Provider)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "chat_history"), cfg.Storage.Dir)
		assert.Equal(t, filepath.Join(tmpDir, "sessions.db"), cfg.Storage.SQLitePath)
		assert.Equal(t, filepath.Join(tmpDir, "docchat.log"), cfg.Logging.File)
		assert.Empty(t, cfg.Completion.APIKey)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "docchat.json")

		content := `{
			"completion": {"provider": "anthropic", "model": "claude-test", "max_tokens": 512},
			"storage": {"backend": "sqlite"},
			"data_dir": "` + tmpDir + `"
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

		cfg, err := NewLoader(configPath).WithEnvFile("").Load()
		require.NoError(t, err)

		assert.Equal(t, "anthropic", cfg.Completion.Provider)
		assert.Equal(t, "claude-test", cfg.Completion.Model)
		assert.Equal(t, 512, cfg.Completion.MaxTokens)
		assert.Equal(t, 0.7, cfg.Completion.Temperature)
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "docchat.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"completion": {"model": "from-file"}}`), 0600))

		t.Setenv("DOCCHAT_COMPLETION_MODEL", "from-env")
		t.Setenv("DOCCHAT_DATA_DIR", tmpDir)

		cfg, err := NewLoader(configPath).WithEnvFile("").Load()
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Completion.Model)
	})

	t.Run("openrouter key from environment", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		t.Setenv("DOCCHAT_DATA_DIR", tmpDir)
		t.Setenv("OPENROUTER_API_KEY", "sk-or-from-env")

		cfg, err := NewLoader(filepath.Join(tmpDir, "none.json")).WithEnvFile("").Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-or-from-env", cfg.Completion.APIKey)
	})

	t.Run("anthropic key from environment", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		t.Setenv("DOCCHAT_DATA_DIR", tmpDir)
		t.Setenv("DOCCHAT_COMPLETION_PROVIDER", "anthropic")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
		t.Setenv("OPENROUTER_API_KEY", "sk-or-ignored")

		cfg, err := NewLoader(filepath.Join(tmpDir, "none.json")).WithEnvFile("").Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-ant-from-env", cfg.Completion.APIKey)
		assert.Empty(t, cfg.Completion.BaseURL)
		assert.Equal(t, DefaultAnthropicModel, cfg.Completion.Model)
	})

	t.Run("dotenv file", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		t.Setenv("DOCCHAT_DATA_DIR", tmpDir)
		// godotenv never overrides variables that are already present, even empty ones
		require.NoError(t, os.Unsetenv("DOCCHAT_COMPLETION_MODEL"))
		envFile := filepath.Join(tmpDir, ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("DOCCHAT_COMPLETION_MODEL=from-dotenv\n"), 0600))

		cfg, err := NewLoader(filepath.Join(tmpDir, "none.json")).WithEnvFile(envFile).Load()
		require.NoError(t, err)
		assert.Equal(t, "from-dotenv", cfg.Completion.Model)
	})

	t.Run("invalid json", func(t *testing.T) {
		clearKeyEnv(t)
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "docchat.json")
		require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0600))

		_, err := NewLoader(configPath).WithEnvFile("").Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	clearKeyEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "docchat.json")

	cfg := DefaultConfig()
	cfg.Completion.Model = "saved-model"
	cfg.Storage.Backend = "memory"
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath).WithEnvFile("")
	require.NoError(t, loader.Save(cfg))

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-model", loaded.Completion.Model)
	assert.Equal(t, "memory", loaded.Storage.Backend)
	assert.Equal(t, tmpDir, loaded.DataDir)
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		assert.Equal(t, "/custom/path.json", NewLoader("/custom/path.json").GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".docchat", "docchat.json"), NewLoader("").GetConfigPath())
	})
}
