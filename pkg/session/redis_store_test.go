package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRedisClient is an in-memory implementation of RedisClient for testing.
type mockRedisClient struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
	closed bool
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{data: make(map[string]string)}
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockRedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *mockRedisClient) Close() error {
	m.closed = true
	return nil
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewRedisStore(newMockRedisClient(), zerolog.Nop())
	})
}

func TestRedisStore_Prefix(t *testing.T) {
	client := newMockRedisClient()
	store := NewRedisStore(client, zerolog.Nop(), WithPrefix("test:"))

	require.NoError(t, store.Save(context.Background(), sampleSession("chat_1", time.Now().UTC())))

	_, ok := client.data["test:chat_1"]
	assert.True(t, ok)
}

func TestRedisStore_CorruptValueSkipped(t *testing.T) {
	client := newMockRedisClient()
	store := NewRedisStore(client, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSession("chat_good", time.Now().UTC())))
	client.data["docchat:session:chat_bad"] = "not json"

	summaries, err := store.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "chat_good", summaries[0].ID)
}

func TestRedisStore_SetFailure(t *testing.T) {
	client := newMockRedisClient()
	client.setErr = errors.New("connection refused")
	store := NewRedisStore(client, zerolog.Nop())

	err := store.Save(context.Background(), sampleSession("chat_1", time.Now().UTC()))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, client.setErr)
}

func TestRedisStore_Close(t *testing.T) {
	client := newMockRedisClient()
	store := NewRedisStore(client, zerolog.Nop())

	require.NoError(t, store.Close())
	assert.True(t, client.closed)
}

func TestNewGoRedisClient(t *testing.T) {
	client := NewGoRedisClient(RedisOptions{Addr: "localhost:6379", DB: 2})
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.rdb.Options().Addr)
	assert.Equal(t, 2, client.rdb.Options().DB)

	fromURL := NewGoRedisClient(RedisOptions{Addr: "redis://:pw@cache:6380/3"})
	defer fromURL.Close()

	assert.Equal(t, "cache:6380", fromURL.rdb.Options().Addr)
	assert.Equal(t, 3, fromURL.rdb.Options().DB)
}
