package history_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/serroba/shortify/internal/history"
	"github.com/serroba/shortify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errMock = errors.New("mock error")

// mockBlobs is a test double for history.Blobs that can be configured to fail.
type mockBlobs struct {
	data   []byte
	getErr error
	setErr error
	sets   int
}

func (m *mockBlobs) Get(_ context.Context, _ string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}

	if m.data == nil {
		return nil, store.ErrNotFound
	}

	return m.data, nil
}

func (m *mockBlobs) Set(_ context.Context, _ string, value []byte) error {
	m.sets++

	if m.setErr != nil {
		return m.setErr
	}

	m.data = value

	return nil
}

func sequentialIDs() history.IDGenerator {
	n := 0

	return func() string {
		n++

		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, blobs history.Blobs, opts ...history.Option) *history.Store {
	t.Helper()

	opts = append([]history.Option{history.WithIDGenerator(sequentialIDs())}, opts...)

	s, err := history.NewStore(blobs, zap.NewNop(), opts...)
	require.NoError(t, err)

	return s
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("restores persisted entries", func(t *testing.T) {
		blobs := store.NewMemoryStore()
		_ = blobs.Set(ctx, history.StorageKey, []byte(
			`[{"id":"a","originalUrl":"https://example.com","shortUrl":"http://s/r/a","createdAt":1700000000000}]`,
		))
		s := newTestStore(t, blobs)

		s.Load(ctx)

		entries := s.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "a", entries[0].ID)
		assert.Equal(t, "https://example.com", entries[0].OriginalURL)
		assert.Equal(t, "http://s/r/a", entries[0].ShortURL)
		assert.Equal(t, int64(1700000000000), entries[0].CreatedAt)
	})

	t.Run("missing blob leaves history empty", func(t *testing.T) {
		s := newTestStore(t, store.NewMemoryStore())

		s.Load(ctx)

		assert.Empty(t, s.Entries())
	})

	t.Run("invalid json leaves history empty and is logged", func(t *testing.T) {
		blobs := store.NewMemoryStore()
		_ = blobs.Set(ctx, history.StorageKey, []byte(`{not json`))

		core, logs := observer.New(zapcore.ErrorLevel)
		s, err := history.NewStore(blobs, zap.New(core))
		require.NoError(t, err)

		assert.NotPanics(t, func() { s.Load(ctx) })

		assert.Empty(t, s.Entries())
		assert.Equal(t, 1, logs.FilterMessage("failed to decode history").Len())
	})

	t.Run("read failure leaves history empty", func(t *testing.T) {
		s := newTestStore(t, &mockBlobs{getErr: errMock})

		s.Load(ctx)

		assert.Empty(t, s.Entries())
	})
}

func TestStore_Add(t *testing.T) {
	ctx := context.Background()

	t.Run("prepends entry with generated id and timestamp", func(t *testing.T) {
		now := time.UnixMilli(1700000000123)
		s := newTestStore(t, store.NewMemoryStore(), history.WithClock(func() time.Time { return now }))

		first := s.Add(ctx, "https://one.com", "http://s/r/one")
		second := s.Add(ctx, "https://two.com", "http://s/r/two")

		assert.Equal(t, "id-1", first.ID)
		assert.Equal(t, int64(1700000000123), first.CreatedAt)
		assert.Equal(t, now, first.Created())

		entries := s.Entries()
		require.Len(t, entries, 2)
		assert.Equal(t, second, entries[0])
		assert.Equal(t, first, entries[1])
	})

	t.Run("keeps only the ten most recent entries", func(t *testing.T) {
		s := newTestStore(t, store.NewMemoryStore())

		for i := 1; i <= 11; i++ {
			s.Add(ctx, fmt.Sprintf("https://example.com/%d", i), fmt.Sprintf("http://s/r/%d", i))
		}

		entries := s.Entries()
		require.Len(t, entries, history.MaxEntries)
		assert.Equal(t, "http://s/r/11", entries[0].ShortURL)
		assert.Equal(t, "http://s/r/2", entries[9].ShortURL)
		assert.False(t, s.Contains("http://s/r/1"))
	})

	t.Run("persists every add as a camelCase json array", func(t *testing.T) {
		blobs := &mockBlobs{}
		s := newTestStore(t, blobs)

		s.Add(ctx, "https://example.com", "http://s/r/abc")

		assert.Equal(t, 1, blobs.sets)

		var raw []map[string]any
		require.NoError(t, json.Unmarshal(blobs.data, &raw))
		require.Len(t, raw, 1)
		assert.Equal(t, "id-1", raw[0]["id"])
		assert.Equal(t, "https://example.com", raw[0]["originalUrl"])
		assert.Equal(t, "http://s/r/abc", raw[0]["shortUrl"])
		assert.Contains(t, raw[0], "createdAt")
	})

	t.Run("save failure is logged and the entry is kept", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, err := history.NewStore(&mockBlobs{setErr: errMock}, zap.New(core))
		require.NoError(t, err)

		entry := s.Add(ctx, "https://example.com", "http://s/r/abc")

		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, 1, logs.FilterMessage("failed to save history").Len())
	})

	t.Run("returned entries are copies", func(t *testing.T) {
		s := newTestStore(t, store.NewMemoryStore())
		s.Add(ctx, "https://example.com", "http://s/r/abc")

		entries := s.Entries()
		entries[0].ShortURL = "mutated"

		assert.True(t, s.Contains("http://s/r/abc"))
	})

	t.Run("survives a reload", func(t *testing.T) {
		blobs := store.NewMemoryStore()
		s := newTestStore(t, blobs)
		added := s.Add(ctx, "https://example.com", "http://s/r/abc")

		reloaded := newTestStore(t, blobs)
		reloaded.Load(ctx)

		assert.Equal(t, []history.Entry{added}, reloaded.Entries())
	})
}

func TestStore_AddIfAbsent(t *testing.T) {
	ctx := context.Background()

	t.Run("adds when short url is new", func(t *testing.T) {
		s := newTestStore(t, store.NewMemoryStore())

		entry, added := s.AddIfAbsent(ctx, "https://example.com", "http://s/r/abc")

		assert.True(t, added)
		assert.Equal(t, "http://s/r/abc", entry.ShortURL)
		assert.Equal(t, 1, s.Len())
	})

	t.Run("returns existing entry for a known short url", func(t *testing.T) {
		blobs := &mockBlobs{}
		s := newTestStore(t, blobs)
		existing := s.Add(ctx, "https://example.com", "http://s/r/abc")

		entry, added := s.AddIfAbsent(ctx, "https://other.com", "http://s/r/abc")

		assert.False(t, added)
		assert.Equal(t, existing, entry)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, 1, blobs.sets)
	})
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("removes entry by id", func(t *testing.T) {
		s := newTestStore(t, store.NewMemoryStore())
		first := s.Add(ctx, "https://one.com", "http://s/r/one")
		second := s.Add(ctx, "https://two.com", "http://s/r/two")

		removed := s.Remove(ctx, first.ID)

		assert.True(t, removed)
		assert.Equal(t, []history.Entry{second}, s.Entries())

		_, ok := s.Get(first.ID)
		assert.False(t, ok)
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		blobs := &mockBlobs{}
		s := newTestStore(t, blobs)
		s.Add(ctx, "https://one.com", "http://s/r/one")

		removed := s.Remove(ctx, "missing")

		assert.False(t, removed)
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, 1, blobs.sets)
	})
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()

	t.Run("empties history and persists an empty array", func(t *testing.T) {
		blobs := &mockBlobs{}
		s := newTestStore(t, blobs)
		s.Add(ctx, "https://one.com", "http://s/r/one")

		s.Clear(ctx)

		assert.Empty(t, s.Entries())
		assert.JSONEq(t, `[]`, string(blobs.data))
	})
}

func TestStore_Get(t *testing.T) {
	s := newTestStore(t, store.NewMemoryStore())
	added := s.Add(context.Background(), "https://one.com", "http://s/r/one")

	got, ok := s.Get(added.ID)

	assert.True(t, ok)
	assert.Equal(t, added, got)
	assert.Equal(t, history.MaxEntries, s.Capacity())
}

func TestStore_DefaultIDs(t *testing.T) {
	ctx := context.Background()
	s, err := history.NewStore(store.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	alphanumeric := regexp.MustCompile(`^[0-9A-Za-z]{10}$`)
	seen := make(map[string]bool)

	for i := 0; i < 500; i++ {
		entry := s.Add(ctx, "https://example.com", fmt.Sprintf("http://sho.rt/%d", i))

		require.Regexp(t, alphanumeric, entry.ID)
		require.False(t, seen[entry.ID], "duplicate id %s", entry.ID)
		seen[entry.ID] = true
	}
}
