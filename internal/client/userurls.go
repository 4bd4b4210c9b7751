package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// URLRecord is one short link the service associates with this session.
type URLRecord struct {
	Code        string    `json:"code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserURLs fetches and caches the short links of the current session.
// The session identity travels in the cookie jar of httpClient.
type UserURLs struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger

	loading atomic.Bool
	mu      sync.Mutex
	urls    []URLRecord
	err     error
}

// NewUserURLs creates a client for the service at baseURL.
func NewUserURLs(httpClient *http.Client, baseURL string, logger *zap.Logger) *UserURLs {
	return &UserURLs{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

func (u *UserURLs) IsLoading() bool {
	return u.loading.Load()
}

// Err returns the error of the last settled fetch, if any.
func (u *UserURLs) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.err
}

// URLs returns the last successfully fetched list.
func (u *UserURLs) URLs() []URLRecord {
	u.mu.Lock()
	defer u.mu.Unlock()

	return slices.Clone(u.urls)
}

// Refetch reloads the list from the service. On failure the previous list
// is kept, the error is logged and returned; best-effort callers may ignore it.
func (u *UserURLs) Refetch(ctx context.Context) error {
	u.loading.Store(true)
	defer u.loading.Store(false)

	u.setErr(nil)

	records, err := u.fetch(ctx)
	if err != nil {
		u.setErr(err)
		u.logger.Error("failed to fetch urls",
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)

		return err
	}

	u.mu.Lock()
	u.urls = records
	u.mu.Unlock()

	u.logger.Debug("fetched urls", zap.Int("count", len(records)))

	return nil
}

func (u *UserURLs) fetch(ctx context.Context) ([]URLRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+"/api/urls", nil)
	if err != nil {
		return nil, networkError(err, msgFetchUnreachable)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err, msgFetchUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, resp.Body, msgFetchFailed)
	}

	var records []URLRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&records); err != nil {
		return nil, &Error{
			Kind:       KindServerOpaque,
			StatusCode: resp.StatusCode,
			Message:    msgFetchFailed,
			Err:        fmt.Errorf("failed to decode urls response: %w", err),
		}
	}

	return records, nil
}

func (u *UserURLs) setErr(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.err = err
}
