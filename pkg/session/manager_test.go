package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps MemoryStore and fails saves on demand.
type flakyStore struct {
	*MemoryStore
	mu      sync.Mutex
	saveErr error
	loadErr error
	saves   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (f *flakyStore) Save(ctx context.Context, s *Session) error {
	f.mu.Lock()
	err := f.saveErr
	f.saves++
	f.mu.Unlock()
	if err != nil {
		return &PersistenceError{Op: "save", ID: s.ID, Err: err}
	}
	return f.MemoryStore.Save(ctx, s)
}

func (f *flakyStore) Load(ctx context.Context, id string) (*Session, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.MemoryStore.Load(ctx, id)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func setupTestManager(t *testing.T, opts ...ManagerOption) (*Manager, *flakyStore) {
	t.Helper()
	store := newFlakyStore()
	return NewManager(store, zerolog.Nop(), opts...), store
}

func TestManager_ScenarioStartAndAdd(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	id, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^chat_\d+_`, id)

	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "hello"))

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)

	stored, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Messages, 1)
}

func TestManager_SetDocumentWithoutSession(t *testing.T) {
	mgr, store := setupTestManager(t)

	err := mgr.SetDocument(context.Background(), "lorem ipsum", "a.txt")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, ok := mgr.ActiveID()
	assert.False(t, ok)
	assert.Zero(t, store.saves)
}

func TestManager_SetDocument(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	id, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.SetDocument(ctx, "lorem ipsum", "a.txt"))

	doc, ok := mgr.DocumentContext()
	require.True(t, ok)
	assert.Equal(t, "lorem ipsum", doc)
	assert.Equal(t, "a.txt", mgr.DocumentName())

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, RoleSystem, history[0].Role)
	assert.Equal(t, "Document has been uploaded a.txt. You can now ask questions about it.", history[0].Content)

	stored, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.DocumentContext)
	assert.Equal(t, "lorem ipsum", *stored.DocumentContext)
}

func TestManager_AddMessageAutoStarts(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	_, ok := mgr.ActiveID()
	require.False(t, ok)

	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "first"))

	id, ok := mgr.ActiveID()
	assert.True(t, ok)
	assert.NotEmpty(t, id)
	_, hasDoc := mgr.DocumentContext()
	assert.False(t, hasDoc)
}

func TestManager_AddMessageRejectsUnknownRole(t *testing.T) {
	mgr, store := setupTestManager(t)

	err := mgr.AddMessage(context.Background(), Role("tool"), "x")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Empty(t, mgr.History())
	assert.Zero(t, store.saves)
}

func TestManager_AddMessageOrdering(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	turns := []struct {
		role    Role
		content string
	}{
		{RoleUser, "one"},
		{RoleAssistant, "two"},
		{RoleUser, "three"},
		{RoleAssistant, "four"},
	}
	for _, turn := range turns {
		require.NoError(t, mgr.AddMessage(ctx, turn.role, turn.content))
	}

	id, _ := mgr.ActiveID()
	stored, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.Messages, len(turns))
	for i, turn := range turns {
		assert.Equal(t, turn.role, stored.Messages[i].Role)
		assert.Equal(t, turn.content, stored.Messages[i].Content)
	}
}

func TestManager_LastUpdatedStrictlyIncreases(t *testing.T) {
	frozen := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	mgr, store := setupTestManager(t, WithClock(fixedClock(frozen)))
	ctx := context.Background()

	id, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)

	var last time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.AddMessage(ctx, RoleUser, fmt.Sprintf("m%d", i)))
		stored, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.True(t, stored.LastUpdated.After(last), "iteration %d", i)
		last = stored.LastUpdated
	}
}

func TestManager_PersistFailureRollsBack(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "kept"))

	store.saveErr = errors.New("disk full")
	err := mgr.AddMessage(ctx, RoleAssistant, "lost")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	history := mgr.History()
	require.Len(t, history, 1)
	assert.Equal(t, "kept", history[0].Content)

	store.saveErr = nil
	require.NoError(t, mgr.AddMessage(ctx, RoleAssistant, "retry"))
	assert.Len(t, mgr.History(), 2)
}

func TestManager_SetDocumentFailureRollsBack(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")
	require.Error(t, mgr.SetDocument(ctx, "text", "a.txt"))

	_, ok := mgr.DocumentContext()
	assert.False(t, ok)
	assert.Empty(t, mgr.History())
}

func TestManager_StartNewChatClearsState(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	first, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.SetDocument(ctx, "doc", "a.txt"))
	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "q"))

	second, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Empty(t, mgr.History())
	_, ok := mgr.DocumentContext()
	assert.False(t, ok)
}

func TestManager_StartNewChatRegeneratesOnCollision(t *testing.T) {
	store := newFlakyStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &Session{ID: "chat_taken", Messages: []Message{}}))

	ids := []string{"chat_taken", "chat_free"}
	calls := 0
	gen := func(time.Time) (string, error) {
		id := ids[calls]
		calls++
		return id, nil
	}

	mgr := NewManager(store, zerolog.Nop(), WithIDGenerator(gen))
	id, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chat_free", id)
	assert.Equal(t, 2, calls)
}

func TestManager_StartNewChatGivesUp(t *testing.T) {
	store := newFlakyStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &Session{ID: "chat_taken", Messages: []Message{}}))

	mgr := NewManager(store, zerolog.Nop(), WithIDGenerator(func(time.Time) (string, error) {
		return "chat_taken", nil
	}))

	_, err := mgr.StartNewChat(ctx)
	assert.Error(t, err)
	_, ok := mgr.ActiveID()
	assert.False(t, ok)
}

func TestManager_LoadChat(t *testing.T) {
	mgr, store := setupTestManager(t)
	ctx := context.Background()

	doc := "stored doc"
	require.NoError(t, store.Save(ctx, &Session{
		ID:              "chat_saved",
		DocumentContext: &doc,
		Messages:        []Message{{Role: RoleUser, Content: "old"}},
	}))

	t.Run("missing chat keeps active session", func(t *testing.T) {
		active, err := mgr.StartNewChat(ctx)
		require.NoError(t, err)

		ok, err := mgr.LoadChat(ctx, "chat_missing")
		require.NoError(t, err)
		assert.False(t, ok)

		id, _ := mgr.ActiveID()
		assert.Equal(t, active, id)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		before, _ := mgr.ActiveID()

		for _, id := range []string{"../x", "a/b", ""} {
			ok, err := mgr.LoadChat(ctx, id)
			require.NoError(t, err, id)
			assert.False(t, ok, id)
		}

		after, _ := mgr.ActiveID()
		assert.Equal(t, before, after)
	})

	t.Run("existing chat becomes active", func(t *testing.T) {
		ok, err := mgr.LoadChat(ctx, "chat_saved")
		require.NoError(t, err)
		assert.True(t, ok)

		id, _ := mgr.ActiveID()
		assert.Equal(t, "chat_saved", id)
		require.Len(t, mgr.History(), 1)
		got, hasDoc := mgr.DocumentContext()
		assert.True(t, hasDoc)
		assert.Equal(t, "stored doc", got)
	})

	t.Run("store error keeps active session", func(t *testing.T) {
		store.loadErr = &CorruptDataError{ID: "chat_bad", Err: errors.New("bad json")}
		defer func() { store.loadErr = nil }()

		ok, err := mgr.LoadChat(ctx, "chat_bad")
		assert.False(t, ok)
		var corrupt *CorruptDataError
		assert.ErrorAs(t, err, &corrupt)

		id, _ := mgr.ActiveID()
		assert.Equal(t, "chat_saved", id)
	})
}

func TestManager_LogsCarrySessionID(t *testing.T) {
	var buf bytes.Buffer
	mgr := NewManager(NewMemoryStore(), zerolog.New(&buf))
	ctx := context.Background()

	id, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "hello"))
	require.NoError(t, mgr.SetDocument(ctx, "text", "notes.txt"))

	out := buf.String()
	assert.Contains(t, out, "Started new chat")
	assert.Contains(t, out, "Message appended")
	assert.Contains(t, out, "Document attached")
	assert.Equal(t, 3, strings.Count(out, `"session_id":"`+id+`"`))
}

func TestManager_PersistFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	store := newFlakyStore()
	mgr := NewManager(store, zerolog.New(&buf))
	store.saveErr = errors.New("disk full")

	err := mgr.AddMessage(context.Background(), RoleUser, "hello")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Failed to persist message")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestManager_HistoryIsCopy(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "original"))

	history := mgr.History()
	history[0].Content = "mutated"

	assert.Equal(t, "original", mgr.History()[0].Content)
}

func TestManager_ListChats(t *testing.T) {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	mgr, _ := setupTestManager(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "older"))

	clock = base.Add(time.Hour)
	newer, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.AddMessage(ctx, RoleUser, "newer"))

	clock = base.Add(2 * time.Hour)
	_, err = mgr.StartNewChat(ctx) // never mutated, never listed
	require.NoError(t, err)

	chats, err := mgr.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, newer, chats[0].ID)
}

func TestManager_ConcurrentAddMessage(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	_, err := mgr.StartNewChat(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, mgr.AddMessage(ctx, RoleUser, fmt.Sprintf("m%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, mgr.History(), 10)
}
