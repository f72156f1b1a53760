package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main docchat configuration
type Config struct {
	// Remote completion service
	Completion CompletionConfig `json:"completion" mapstructure:"completion"`

	// Session persistence
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Document uploads
	Documents DocumentsConfig `json:"documents" mapstructure:"documents"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus endpoint served by `docchat serve`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Scheduled store maintenance
	Janitor JanitorConfig `json:"janitor" mapstructure:"janitor"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// CompletionConfig holds the completion backend settings
type CompletionConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider" validate:"required,oneof=openai anthropic"`
	APIKey         string  `json:"api_key" mapstructure:"api_key" validate:"required"`
	BaseURL        string  `json:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Model          string  `json:"model" mapstructure:"model" validate:"required"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens" validate:"gt=0,lte=200000"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds" validate:"gt=0,lte=600"`
	Language       string  `json:"language" mapstructure:"language" validate:"required"`
	Referer        string  `json:"referer" mapstructure:"referer"`
	Title          string  `json:"title" mapstructure:"title"`
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Backend       string `json:"backend" mapstructure:"backend" validate:"required,oneof=file sqlite redis memory"`
	Dir           string `json:"dir" mapstructure:"dir"`
	SQLitePath    string `json:"sqlite_path" mapstructure:"sqlite_path"`
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db" validate:"gte=0"`
	RedisPrefix   string `json:"redis_prefix" mapstructure:"redis_prefix"`
}

// DocumentsConfig holds upload settings
type DocumentsConfig struct {
	AllowedExtensions []string `json:"allowed_extensions" mapstructure:"allowed_extensions" validate:"min=1,dive,oneof=pdf txt docx"`
	MaxBytes          int64    `json:"max_bytes" mapstructure:"max_bytes" validate:"gt=0"`
	InboxDir          string   `json:"inbox_dir" mapstructure:"inbox_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size" validate:"gte=0"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age" validate:"gte=0"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`

	// Fraction of chat turns and uploads that are traced
	TraceSampleRatio float64 `json:"trace_sample_ratio" mapstructure:"trace_sample_ratio" validate:"gte=0,lte=1"`
}

// JanitorConfig holds the stale temp file sweep settings
type JanitorConfig struct {
	Schedule          string `json:"schedule" mapstructure:"schedule"` // cron spec, empty disables
	MaxTempAgeMinutes int    `json:"max_temp_age_minutes" mapstructure:"max_temp_age_minutes" validate:"gte=0"`
}

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "deepseek/deepseek-r1-0528:free"
	DefaultAnthropicModel  = "claude-sonnet-4-20250514"
)

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			Provider:       "openai",
			BaseURL:        DefaultOpenRouterURL,
			Model:          DefaultOpenRouterModel,
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 30,
			Language:       "English",
			Referer:        "http://localhost:5000",
			Title:          "AI Chatbot for Documents",
		},
		Storage: StorageConfig{
			Backend:     "file",
			RedisPrefix: "docchat:session:",
		},
		Documents: DocumentsConfig{
			AllowedExtensions: []string{"pdf", "txt", "docx"},
			MaxBytes:          16 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   false,
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled:          false,
			Addr:             "127.0.0.1:9464",
			TraceSampleRatio: 1,
		},
		Janitor: JanitorConfig{
			Schedule:          "@every 1h",
			MaxTempAgeMinutes: 60,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Completion.APIKey != "" {
		masked.Completion.APIKey = "***"
	}
	if masked.Storage.RedisPassword != "" {
		masked.Storage.RedisPassword = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks everything except the completion API key, which only
// commands that talk to the completion service need.
func (c *Config) Validate() error {
	if err := formatValidationError(structValidator().StructExcept(c, "Completion.APIKey")); err != nil {
		return err
	}
	return NewValidator().ValidateSchedule(c.Janitor.Schedule)
}

// ValidateForCompletion checks the full configuration including the API key.
func (c *Config) ValidateForCompletion() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Completion.APIKey == "" {
		return fmt.Errorf("completion API key is not set: set OPENROUTER_API_KEY, DOCCHAT_COMPLETION_API_KEY or completion.api_key")
	}
	return nil
}
