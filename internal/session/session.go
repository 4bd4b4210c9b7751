// Package session drives the shorten pipeline and keeps the local history
// in step with the links the service reports for this session.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/shortify/internal/client"
	"github.com/serroba/shortify/internal/events"
	"github.com/serroba/shortify/internal/history"
	"github.com/serroba/shortify/internal/messaging"
	"github.com/serroba/shortify/internal/reconcile"
	"github.com/serroba/shortify/internal/validation"
	"go.uber.org/zap"
)

// DefaultSettleDelay gives the service time to persist a new link before
// it is listed back.
const DefaultSettleDelay = 500 * time.Millisecond

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Shortener creates short links.
type Shortener interface {
	Shorten(ctx context.Context, longURL, alias string) (string, error)
}

// URLSource lists the links the service holds for this session.
type URLSource interface {
	Refetch(ctx context.Context) error
	URLs() []client.URLRecord
}

// History is the local list the session maintains.
type History interface {
	reconcile.History
	Load(ctx context.Context)
	Add(ctx context.Context, originalURL, shortURL string) history.Entry
	Remove(ctx context.Context, id string) bool
	Clear(ctx context.Context)
	Entries() []history.Entry
}

// Result describes an accepted submission.
type Result struct {
	Entry  history.Entry
	Merged []history.Entry
}

// Option configures a Session.
type Option func(*Session)

func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		s.settleDelay = d
	}
}

// WithEventIDGenerator overrides the uuid event id generator.
func WithEventIDGenerator(gen func() string) Option {
	return func(s *Session) {
		s.newEventID = gen
	}
}

// Session is safe for concurrent use. Once closed, in-flight calls that
// resolve later leave the history untouched.
type Session struct {
	shortener Shortener
	urls      URLSource
	history   History
	publish   messaging.Publish[events.URLShortenedEvent]
	logger    *zap.Logger

	settleDelay time.Duration
	newEventID  func() string

	closed atomic.Bool

	mu      sync.Mutex
	pending map[string]struct{}
	idle    chan struct{} // closed while nothing is pending
}

func New(
	shortener Shortener,
	urls URLSource,
	h History,
	publish messaging.Publish[events.URLShortenedEvent],
	logger *zap.Logger,
	opts ...Option,
) *Session {
	s := &Session{
		shortener:   shortener,
		urls:        urls,
		history:     h,
		publish:     publish,
		logger:      logger,
		settleDelay: DefaultSettleDelay,
		newEventID:  uuid.NewString,
		pending:     make(map[string]struct{}),
		idle:        make(chan struct{}),
	}

	close(s.idle)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start restores the persisted history and merges the service's list into it.
// A failed fetch is logged and otherwise ignored.
func (s *Session) Start(ctx context.Context) {
	s.history.Load(ctx)

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("initial refresh failed", zap.Error(err))
	}
}

// Submit validates the input, shortens it and records the result.
// Validation failures are returned as joined *validation.FieldError values
// and never reach the service.
func (s *Session) Submit(ctx context.Context, rawURL, alias string) (*Result, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	input := validation.Validate(rawURL, alias)
	if !input.Valid() {
		return nil, input.Err()
	}

	shortURL, err := s.shortener.Shorten(ctx, input.URL, input.Alias)
	if err != nil {
		return nil, err
	}

	if s.closed.Load() {
		s.logger.Debug("dropping shorten result of closed session", zap.String("shortUrl", shortURL))

		return nil, ErrClosed
	}

	entry := s.history.Add(ctx, input.URL, shortURL)
	merged := reconcile.Merge(ctx, s.history, s.urls.URLs())

	s.announce(ctx, entry)

	return &Result{Entry: entry, Merged: merged}, nil
}

// Refresh refetches the service's list and merges it into the history.
// The merge also runs on the retained list when the fetch fails.
func (s *Session) Refresh(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.urls.Refetch(ctx)

	if s.closed.Load() {
		return err
	}

	if added := reconcile.Merge(ctx, s.history, s.urls.URLs()); len(added) > 0 {
		s.logger.Debug("merged server links", zap.Int("added", len(added)))
	}

	return err
}

// HandleURLShortened refreshes after the settle delay. It never fails so the
// event is always acked.
func (s *Session) HandleURLShortened(ctx context.Context, event *events.URLShortenedEvent) error {
	defer s.settle(event.ID)

	if s.closed.Load() {
		return nil
	}

	timer := time.NewTimer(s.settleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("deferred refresh failed",
			zap.String("eventId", event.ID),
			zap.String("shortUrl", event.ShortURL),
			zap.Error(err),
		)
	}

	return nil
}

// Wait blocks until every refresh scheduled by this session's submissions
// has run, or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the session torn down and releases pending waiters.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		clear(s.pending)
		close(s.idle)
	}
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// History returns the current entries, newest first.
func (s *Session) History() []history.Entry {
	return s.history.Entries()
}

// Remove deletes the entry with id. It reports false when nothing was removed.
func (s *Session) Remove(ctx context.Context, id string) bool {
	if s.closed.Load() {
		return false
	}

	return s.history.Remove(ctx, id)
}

// Clear empties the local history. The service's links come back on the
// next refresh.
func (s *Session) Clear(ctx context.Context) {
	if s.closed.Load() {
		return
	}

	s.history.Clear(ctx)
}

// Shutdown lets the injector close the session.
func (s *Session) Shutdown() error {
	s.Close()

	return nil
}

func (s *Session) announce(ctx context.Context, entry history.Entry) {
	event := &events.URLShortenedEvent{
		ID:          s.newEventID(),
		ShortURL:    entry.ShortURL,
		OriginalURL: entry.OriginalURL,
		CreatedAt:   entry.Created(),
	}

	s.track(event.ID)

	if err := s.publish(ctx, event); err != nil {
		s.settle(event.ID)
		s.logger.Error("failed to publish url shortened event",
			zap.String("shortUrl", entry.ShortURL),
			zap.Error(err),
		)
	}
}

func (s *Session) track(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.idle = make(chan struct{})
	}

	s.pending[eventID] = struct{}{}
}

func (s *Session) settle(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[eventID]; !ok {
		return
	}

	delete(s.pending, eventID)

	if len(s.pending) == 0 {
		close(s.idle)
	}
}
