package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/harun/docchat/internal/config"
	"github.com/harun/docchat/internal/logger"
	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/pkg/chatbot"
	"github.com/harun/docchat/pkg/completion"
	"github.com/harun/docchat/pkg/document"
	"github.com/harun/docchat/pkg/session"
	"github.com/rs/zerolog"
)

// app is the wiring shared by every command
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   session.Store
	audit   *observability.AuditLogger
	service *chatbot.Service
}

// loadConfig reads the config file and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp loads the configuration and wires store, completion client and
// chat service. requireCompletion rejects configs that cannot reach the
// completion service.
func newApp(requireCompletion bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if requireCompletion {
		if err := cfg.ValidateForCompletion(); err != nil {
			return nil, fmt.Errorf("completion service is not configured (run `docchat configure`): %w", err)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Secrets:   []string{cfg.Completion.APIKey, cfg.Storage.RedisPassword},
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	a.audit = observability.NewAuditLogger(zerolog.Nop())
	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Failed to open audit log, auditing disabled")
		} else {
			a.audit = observability.GetAuditLogger()
		}
	}

	a.store, err = openStore(cfg.Storage, log.GetZerolog())
	if err != nil {
		a.Close()
		return nil, err
	}

	client, err := completion.NewClientFromConfig(cfg.Completion, log.GetZerolog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	a.service, err = chatbot.NewService(chatbot.Config{
		Manager:   session.NewManager(a.store, log.GetZerolog()),
		Replier:   client,
		Extractor: document.NewExtractor(cfg.Documents.AllowedExtensions, cfg.Documents.MaxBytes, log.GetZerolog()),
		Audit:     a.audit,
		Logger:    log.GetZerolog(),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Debug().
		Str("store", cfg.Storage.Backend).
		Str("provider", cfg.Completion.Provider).
		Str("model", cfg.Completion.Model).
		Msg("docchat initialized")

	return a, nil
}

// openStore creates the session store selected by cfg.Backend
func openStore(cfg config.StorageConfig, logger zerolog.Logger) (session.Store, error) {
	switch cfg.Backend {
	case "file", "":
		store, err := session.NewFileStore(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session directory: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		return store, nil
	case "redis":
		client := session.NewGoRedisClient(session.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return session.NewRedisStore(client, logger, session.WithPrefix(cfg.RedisPrefix)), nil
	case "memory":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// Close releases the store, the audit log and the log file
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close session store")
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close audit logger")
		}
	}
	_ = a.log.Close()
}
