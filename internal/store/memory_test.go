package store_test

import (
	"context"
	"testing"

	"github.com/serroba/shortify/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Set(t *testing.T) {
	t.Run("saves blob successfully", func(t *testing.T) {
		s := store.NewMemoryStore()

		err := s.Set(context.Background(), "history", []byte(`[]`))

		require.NoError(t, err)
	})

	t.Run("overwrites existing blob", func(t *testing.T) {
		s := store.NewMemoryStore()
		_ = s.Set(context.Background(), "history", []byte("old"))

		err := s.Set(context.Background(), "history", []byte("new"))
		require.NoError(t, err)

		got, _ := s.Get(context.Background(), "history")
		assert.Equal(t, []byte("new"), got)
	})

	t.Run("stores a copy of the value", func(t *testing.T) {
		s := store.NewMemoryStore()
		value := []byte("abc")
		_ = s.Set(context.Background(), "history", value)

		value[0] = 'x'

		got, _ := s.Get(context.Background(), "history")
		assert.Equal(t, []byte("abc"), got)
	})
}

func TestMemoryStore_Get(t *testing.T) {
	t.Run("returns blob when found", func(t *testing.T) {
		s := store.NewMemoryStore()
		_ = s.Set(context.Background(), "history", []byte(`[1]`))

		got, err := s.Get(context.Background(), "history")

		require.NoError(t, err)
		assert.Equal(t, []byte(`[1]`), got)
	})

	t.Run("returns ErrNotFound when key does not exist", func(t *testing.T) {
		s := store.NewMemoryStore()

		got, err := s.Get(context.Background(), "missing")

		assert.Nil(t, got)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMemoryStore_Ping(t *testing.T) {
	assert.NoError(t, store.NewMemoryStore().Ping(context.Background()))
}
