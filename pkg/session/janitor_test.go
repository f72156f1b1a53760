package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_Sweep(t *testing.T) {
	fs, dir := setupTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, sampleSession("chat_1", time.Now().UTC())))

	stale := filepath.Join(dir, "chat_2.json.tmp")
	fresh := filepath.Join(dir, "chat_3.json.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("{"), 0600))
	require.NoError(t, os.WriteFile(fresh, []byte("{"), 0600))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	j := NewJanitor(fs, fs.Dir(), "@every 1h", time.Hour, zerolog.Nop())
	stats, err := j.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.RemovedTempFiles)
	assert.Equal(t, 1, stats.StoredSessions)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "chat_1.json"))
	assert.NoError(t, err)
}

func TestJanitor_SweepWithoutDir(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), sampleSession("chat_1", time.Now().UTC())))

	j := NewJanitor(store, "", "@every 1h", 0, zerolog.Nop())
	stats, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.RemovedTempFiles)
	assert.Equal(t, 1, stats.StoredSessions)
}

func TestJanitor_StartStop(t *testing.T) {
	j := NewJanitor(NewMemoryStore(), "", "@every 1h", time.Hour, zerolog.Nop())

	require.NoError(t, j.Start())
	assert.True(t, j.IsRunning())
	assert.Error(t, j.Start())

	require.NoError(t, j.Stop())
	assert.False(t, j.IsRunning())
	assert.Error(t, j.Stop())
}

func TestJanitor_StartRejectsBadSchedule(t *testing.T) {
	assert.Error(t, NewJanitor(NewMemoryStore(), "", "", time.Hour, zerolog.Nop()).Start())
	assert.Error(t, NewJanitor(NewMemoryStore(), "", "whenever", time.Hour, zerolog.Nop()).Start())
}
