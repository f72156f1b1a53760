package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/docchat/internal/config"
	"github.com/harun/docchat/internal/logger"
	"github.com/harun/docchat/pkg/chatbot"
	"github.com/harun/docchat/pkg/document"
	"github.com/harun/docchat/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReplier struct{}

func (staticReplier) GenerateReply(ctx context.Context, history []session.Message, documentContext string) string {
	return "ok"
}

// createTestDaemon creates a daemon over a memory store with the janitor disabled
func createTestDaemon(t *testing.T, mutate func(cfg *config.Config)) (*Daemon, session.Store) {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Storage.Backend = "memory"
	cfg.Janitor.Schedule = ""
	if mutate != nil {
		mutate(cfg)
	}

	log, err := logger.New(logger.Config{Level: "debug", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	store := session.NewMemoryStore()
	svc, err := chatbot.NewService(chatbot.Config{
		Manager:   session.NewManager(store, log.GetZerolog()),
		Replier:   staticReplier{},
		Extractor: document.NewExtractor(cfg.Documents.AllowedExtensions, cfg.Documents.MaxBytes, log.GetZerolog()),
		Logger:    log.GetZerolog(),
	})
	require.NoError(t, err)

	d, err := New(cfg, log, svc, store)
	require.NoError(t, err)
	return d, store
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	log, err := logger.New(logger.Config{Level: "info"})
	require.NoError(t, err)
	defer log.Close()

	_, err = New(config.DefaultConfig(), log, nil, session.NewMemoryStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat service is required")
}

func TestDaemonStartStop(t *testing.T) {
	daemon, _ := createTestDaemon(t, nil)

	require.NoError(t, daemon.Start())
	assert.True(t, daemon.Status().Running)
	assert.FileExists(t, daemon.Lifecycle().PIDFile())
	assert.Empty(t, daemon.MetricsAddr())

	err := daemon.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, daemon.Stop())
	assert.False(t, daemon.Status().Running)
	assert.NoFileExists(t, daemon.Lifecycle().PIDFile())

	err = daemon.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestDaemonStatus(t *testing.T) {
	daemon, _ := createTestDaemon(t, nil)

	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	time.Sleep(20 * time.Millisecond)
	status = daemon.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.False(t, status.StartTime.IsZero())
}

func TestDaemon_InboxCreatesChat(t *testing.T) {
	inboxDir := filepath.Join(t.TempDir(), "inbox")
	daemon, store := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Documents.InboxDir = inboxDir
	})

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(inboxDir, "notes.txt"), []byte("inbox content"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(inboxDir, "photo.png"), []byte("png"), 0600))

	assert.Eventually(t, func() bool {
		summaries, err := store.ListSummaries(context.Background())
		return err == nil && len(summaries) == 1 && summaries[0].HasDocument
	}, 5*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inboxDir, "processed", "notes.txt"))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	summaries, err := store.ListSummaries(context.Background())
	require.NoError(t, err)
	stored, err := store.Load(context.Background(), summaries[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DocumentContext)
	assert.Equal(t, "inbox content", *stored.DocumentContext)
	assert.Equal(t, "notes.txt", stored.DocumentName)
}

func TestDaemon_MetricsEndpoint(t *testing.T) {
	daemon, _ := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = "127.0.0.1:0"
	})

	require.NoError(t, daemon.Start())
	defer daemon.Stop()

	addr := daemon.MetricsAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "docchat_"))

	resp, err = http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDaemon_JanitorSweepsOnStart(t *testing.T) {
	daemon, _ := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Janitor.Schedule = "@every 1h"
	})

	require.NoError(t, daemon.Start())
	require.NotNil(t, daemon.janitor)
	assert.True(t, daemon.janitor.IsRunning())

	require.NoError(t, daemon.Stop())
	assert.False(t, daemon.janitor.IsRunning())
}

func TestDaemon_WaitStopsOnContextCancel(t *testing.T) {
	daemon, _ := createTestDaemon(t, nil)
	require.NoError(t, daemon.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.False(t, daemon.Status().Running)
}
