// Package history keeps the bounded, persisted list of recently shortened links.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jaevor/go-nanoid"
	"github.com/serroba/shortify/internal/store"
	"go.uber.org/zap"
)

const (
	// StorageKey is the blob name the history is persisted under.
	StorageKey = "url_shortener_history"

	// MaxEntries bounds the history; older entries are evicted first.
	MaxEntries = 10

	idLength = 10

	// IDAlphabet keeps ids usable as bare CLI arguments.
	IDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Blobs is the subset of store.BlobStore the history needs.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// IDGenerator generates unique entry ids.
type IDGenerator func() string

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the nanoid entry id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns the in-memory history list and mirrors every change to Blobs.
// Entries are ordered newest first.
type Store struct {
	mu      sync.Mutex
	blobs   Blobs
	entries []Entry
	newID   IDGenerator
	now     func() time.Time
	logger  *zap.Logger
}

// NewStore creates an empty history. Call Load to restore persisted entries.
func NewStore(blobs Blobs, logger *zap.Logger, opts ...Option) (*Store, error) {
	gen, err := nanoid.CustomASCII(IDAlphabet, idLength)
	if err != nil {
		return nil, err
	}

	s := &Store{
		blobs:  blobs,
		newID:  gen,
		now:    time.Now,
		logger: logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Load replaces the in-memory list with the persisted one.
// A missing or unreadable blob leaves the history empty.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil

	data, err := s.blobs.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("failed to load history", zap.Error(err))
		}

		return
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Error("failed to decode history", zap.Error(err))

		return
	}

	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}

	s.entries = entries
}

// Add prepends a new entry and evicts anything beyond MaxEntries.
func (s *Store) Add(ctx context.Context, originalURL, shortURL string) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(ctx, originalURL, shortURL)
}

// AddIfAbsent adds an entry unless one with the same short URL exists.
// The check and the add happen in one critical section.
func (s *Store) AddIfAbsent(ctx context.Context, originalURL, shortURL string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOfShortURL(shortURL); i >= 0 {
		return s.entries[i], false
	}

	return s.add(ctx, originalURL, shortURL), true
}

// Remove deletes the entry with the given id. Unknown ids are a no-op.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
	if i < 0 {
		return false
	}

	s.entries = slices.Delete(s.entries, i, i+1)
	s.persist(ctx)

	return true
}

// Clear empties the history.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.persist(ctx)
}

// Entries returns a copy of the history, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.entries)
}

// Get looks up an entry by id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
	if i < 0 {
		return Entry{}, false
	}

	return s.entries[i], true
}

// Contains reports whether an entry with shortURL exists.
func (s *Store) Contains(shortURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.indexOfShortURL(shortURL) >= 0
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Store) Capacity() int {
	return MaxEntries
}

func (s *Store) add(ctx context.Context, originalURL, shortURL string) Entry {
	entry := Entry{
		ID:          s.newID(),
		OriginalURL: originalURL,
		ShortURL:    shortURL,
		CreatedAt:   s.now().UnixMilli(),
	}

	kept := s.entries
	if len(kept) > MaxEntries-1 {
		kept = kept[:MaxEntries-1]
	}

	entries := make([]Entry, 0, len(kept)+1)
	entries = append(entries, entry)
	entries = append(entries, kept...)
	s.entries = entries

	s.persist(ctx)

	return entry
}

func (s *Store) indexOfShortURL(shortURL string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ShortURL == shortURL })
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error("failed to encode history", zap.Error(err))

		return
	}

	if err := s.blobs.Set(ctx, StorageKey, data); err != nil {
		s.logger.Error("failed to save history",
			zap.Int("entries", len(entries)),
			zap.Error(err),
		)
	}
}
