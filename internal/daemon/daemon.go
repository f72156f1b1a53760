package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/docchat/internal/config"
	"github.com/harun/docchat/internal/logger"
	"github.com/harun/docchat/internal/observability"
	"github.com/harun/docchat/internal/tracing"
	"github.com/harun/docchat/pkg/chatbot"
	"github.com/harun/docchat/pkg/document"
	"github.com/harun/docchat/pkg/session"
)

// Daemon runs the long-lived side of docchat: the document inbox, the
// store janitor and the metrics endpoint.
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	service *chatbot.Service
	store   session.Store

	janitor   *session.Janitor
	inbox     *document.InboxWatcher
	lifecycle *LifecycleManager

	metricsServer   *http.Server
	metricsListener net.Listener
	metricsDone     chan struct{}

	// Uploads start a chat and then attach to it; serialize them so two
	// inbox files never interleave on the shared manager.
	uploadMu sync.Mutex

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status represents daemon status
type Status struct {
	Running   bool          `json:"running"`
	Uptime    time.Duration `json:"uptime"`
	StartTime time.Time     `json:"start_time"`
}

// Version is reported as service.version on exported traces.
var Version = "dev"

// New creates a daemon over an already wired service and store
func New(cfg *config.Config, log *logger.Logger, service *chatbot.Service, store session.Store) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if service == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}

	observability.EnsureRegistered()

	d := &Daemon{
		config:    cfg,
		logger:    log,
		service:   service,
		store:     store,
		lifecycle: NewLifecycleManager(cfg.DataDir, log.Component("lifecycle")),
	}

	if err := tracing.InitOpenTelemetry("docchat",
		tracing.WithVersion(Version),
		tracing.WithSampleRatio(cfg.Metrics.TraceSampleRatio),
	); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if cfg.Janitor.Schedule != "" {
		dir := ""
		if cfg.Storage.Backend == "file" {
			dir = cfg.Storage.Dir
		}
		maxAge := time.Duration(cfg.Janitor.MaxTempAgeMinutes) * time.Minute
		d.janitor = session.NewJanitor(store, dir, cfg.Janitor.Schedule, maxAge, log.GetZerolog())
	}

	if cfg.Documents.InboxDir != "" {
		inbox, err := document.NewInboxWatcher(document.InboxConfig{
			Dir:     cfg.Documents.InboxDir,
			Accept:  service.Accepts,
			Handler: d.ingest,
			Logger:  log.GetZerolog(),
		})
		if err != nil {
			d.shutdownTracing()
			return nil, fmt.Errorf("failed to create inbox watcher: %w", err)
		}
		d.inbox = inbox
	}

	return d, nil
}

// ingest uploads one inbox file into a new chat
func (d *Daemon) ingest(ctx context.Context, path string) error {
	d.uploadMu.Lock()
	defer d.uploadMu.Unlock()

	res, err := d.service.UploadFile(ctx, path)
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("session_id", res.ChatID).
		Str("filename", res.Filename).
		Int("chars", res.Chars).
		Msg("Inbox document attached to new chat")
	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	logger := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting docchat daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.janitor != nil {
		stats, err := d.janitor.Sweep(context.Background())
		if err != nil {
			logger.Warn().Err(err).Msg("Initial janitor sweep failed")
		} else {
			logger.Info().
				Int("sessions", stats.StoredSessions).
				Int("removed_temp_files", stats.RemovedTempFiles).
				Msg("Initial janitor sweep finished")
		}
		if err := d.janitor.Start(); err != nil {
			d.abortStart()
			return fmt.Errorf("failed to start janitor: %w", err)
		}
	}

	if d.inbox != nil {
		if err := d.inbox.Start(); err != nil {
			d.abortStart()
			return fmt.Errorf("failed to start inbox watcher: %w", err)
		}
		logger.Info().Str("dir", d.config.Documents.InboxDir).Msg("Inbox watcher started")
	}

	if d.config.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			d.abortStart()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", d.MetricsAddr()).Msg("Metrics server started")
	}

	logger.Info().Msg("docchat daemon started")
	return nil
}

func (d *Daemon) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	listener, err := net.Listen("tcp", d.config.Metrics.Addr)
	if err != nil {
		return err
	}

	d.metricsListener = listener
	d.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.metricsDone = make(chan struct{})

	go func() {
		defer close(d.metricsDone)
		if err := d.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

// MetricsAddr returns the bound metrics address, or "" when disabled
func (d *Daemon) MetricsAddr() string {
	if d.metricsListener == nil {
		return ""
	}
	return d.metricsListener.Addr().String()
}

// abortStart undoes a partial Start
func (d *Daemon) abortStart() {
	d.stopComponents()
	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}
	d.setStopped()
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	logger := d.logger.GetZerolog()
	logger.Info().Msg("Stopping docchat daemon")

	d.stopComponents()

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

func (d *Daemon) stopComponents() {
	logger := d.logger.GetZerolog()

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown metrics server")
		}
		cancel()
		<-d.metricsDone
		d.metricsServer = nil
		d.metricsListener = nil
	}

	if d.inbox != nil {
		if err := d.inbox.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop inbox watcher")
		}
	}

	if d.janitor != nil && d.janitor.IsRunning() {
		if err := d.janitor.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop janitor")
		}
	}
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	return status
}

// Wait blocks until ctx is done or SIGINT/SIGTERM arrives, then stops the daemon
func (d *Daemon) Wait(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	d.logger.Info().Msg("Shutdown requested")

	return d.Stop()
}

// Lifecycle returns the PID file manager
func (d *Daemon) Lifecycle() *LifecycleManager {
	return d.lifecycle
}
