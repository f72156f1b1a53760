package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/docchat/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultMaxTempAge is how old an abandoned temp file must be before the
// janitor removes it.
const DefaultMaxTempAge = time.Hour

// JanitorStats describes one sweep
type JanitorStats struct {
	RemovedTempFiles int
	StoredSessions   int
}

// Janitor periodically removes temp files left behind by interrupted saves
// and refreshes the stored-session gauge.
type Janitor struct {
	store      Store
	dir        string
	maxTempAge time.Duration
	schedule   string
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewJanitor creates a janitor for store. dir is the directory swept for
// temp files; leave it empty for stores that do not write files.
func NewJanitor(store Store, dir, schedule string, maxTempAge time.Duration, logger zerolog.Logger) *Janitor {
	if maxTempAge <= 0 {
		maxTempAge = DefaultMaxTempAge
	}

	return &Janitor{
		store:      store,
		dir:        dir,
		maxTempAge: maxTempAge,
		schedule:   schedule,
		logger:     logger.With().Str("component", "janitor").Logger(),
		now:        time.Now,
	}
}

// Start schedules sweeps on the configured cron spec
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor is already running")
	}
	if j.schedule == "" {
		return fmt.Errorf("janitor schedule is empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(j.schedule, j.runSweep); err != nil {
		return fmt.Errorf("invalid janitor schedule: %w", err)
	}

	c.Start()
	j.cron = c
	j.running = true

	j.logger.Info().
		Str("schedule", j.schedule).
		Dur("max_temp_age", j.maxTempAge).
		Msg("Session janitor started")

	return nil
}

// Stop stops scheduling and waits for a running sweep to finish
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return fmt.Errorf("janitor is not running")
	}

	<-j.cron.Stop().Done()
	j.running = false

	j.logger.Info().Msg("Session janitor stopped")
	return nil
}

// IsRunning returns whether the janitor is scheduled
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) runSweep() {
	if _, err := j.Sweep(context.Background()); err != nil {
		j.logger.Error().Err(err).Msg("Janitor sweep failed")
	}
}

// Sweep runs one maintenance pass immediately
func (j *Janitor) Sweep(ctx context.Context) (JanitorStats, error) {
	var stats JanitorStats

	removed, err := j.removeStaleTempFiles()
	if err != nil {
		return stats, err
	}
	stats.RemovedTempFiles = removed
	observability.RecordJanitorRemoved(removed)

	summaries, err := j.store.ListSummaries(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list sessions: %w", err)
	}
	stats.StoredSessions = len(summaries)

	if removed > 0 {
		j.logger.Info().Int("removed", removed).Msg("Removed stale temp files")
	}
	j.logger.Debug().Int("sessions", stats.StoredSessions).Msg("Janitor sweep finished")

	return stats, nil
}

func (j *Janitor) removeStaleTempFiles() (int, error) {
	if j.dir == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session directory: %w", err)
	}

	now := j.now()
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.maxTempAge {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn().Str("file", entry.Name()).Err(err).Msg("Failed to remove temp file")
			continue
		}
		removed++
	}

	return removed, nil
}
