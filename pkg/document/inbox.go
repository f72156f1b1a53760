package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// InboxHandler ingests one document dropped into the inbox
type InboxHandler func(ctx context.Context, path string) error

// InboxWatcher ingests documents dropped into a directory. Each file is
// handed to the handler once it stops changing, then moved into
// processed/ or failed/.
type InboxWatcher struct {
	watcher            *fsnotify.Watcher
	dir                string
	stabilityThreshold time.Duration
	accept             func(name string) bool
	handler            InboxHandler
	logger             zerolog.Logger

	ctx            context.Context
	cancel         context.CancelFunc
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex
	inflight       sync.WaitGroup
	stopOnce       sync.Once
}

// InboxConfig holds configuration for the watcher
type InboxConfig struct {
	Dir                string
	StabilityThreshold time.Duration
	// Accept filters file names; nil accepts everything
	Accept  func(name string) bool
	Handler InboxHandler
	Logger  zerolog.Logger
}

// NewInboxWatcher creates the inbox directories and the watcher
func NewInboxWatcher(cfg InboxConfig) (*InboxWatcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("inbox directory cannot be empty")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("inbox handler is required")
	}
	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 500 * time.Millisecond
	}

	for _, dir := range []string{cfg.Dir, filepath.Join(cfg.Dir, processedDir), filepath.Join(cfg.Dir, failedDir)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &InboxWatcher{
		watcher:            watcher,
		dir:                cfg.Dir,
		stabilityThreshold: cfg.StabilityThreshold,
		accept:             cfg.Accept,
		handler:            cfg.Handler,
		logger:             cfg.Logger.With().Str("component", "inbox").Logger(),
		ctx:                ctx,
		cancel:             cancel,
		debounceTimers:     make(map[string]*time.Timer),
	}, nil
}

// Start ingests files already waiting in the inbox and begins watching
func (w *InboxWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	go w.eventLoop()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.schedule(filepath.Join(w.dir, entry.Name()))
		}
	}

	w.logger.Info().Str("dir", w.dir).Msg("Inbox watcher started")
	return nil
}

// Stop stops watching and waits for in-flight documents
func (w *InboxWatcher) Stop() error {
	var closeErr error
	w.stopOnce.Do(func() {
		w.cancel()

		w.debounceMu.Lock()
		for _, timer := range w.debounceTimers {
			timer.Stop()
		}
		clear(w.debounceTimers)
		w.debounceMu.Unlock()

		closeErr = w.watcher.Close()
		w.inflight.Wait()
	})

	if closeErr != nil {
		return fmt.Errorf("failed to close watcher: %w", closeErr)
	}
	w.logger.Info().Msg("Inbox watcher stopped")
	return nil
}

func (w *InboxWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *InboxWatcher) shouldIgnore(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	if filepath.Dir(path) != filepath.Clean(w.dir) {
		return true
	}
	if w.accept != nil && !w.accept(name) {
		return true
	}
	return false
}

// schedule debounces events so a file is handled once it stops changing
func (w *InboxWatcher) schedule(path string) {
	if w.shouldIgnore(path) {
		return
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if timer, exists := w.debounceTimers[path]; exists {
		timer.Stop()
	}

	w.debounceTimers[path] = time.AfterFunc(w.stabilityThreshold, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		if w.ctx.Err() != nil {
			w.debounceMu.Unlock()
			return
		}
		w.inflight.Add(1)
		w.debounceMu.Unlock()

		defer w.inflight.Done()
		w.process(path)
	})
}

func (w *InboxWatcher) process(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	logger := w.logger.With().Str("file", filepath.Base(path)).Logger()

	dest := processedDir
	if err := w.handler(w.ctx, path); err != nil {
		dest = failedDir
		logger.Error().Err(err).Msg("Failed to ingest document")
	} else {
		logger.Info().Msg("Document ingested")
	}

	target := filepath.Join(w.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Warn().Err(err).Str("target", target).Msg("Failed to move document out of inbox")
	}
}
