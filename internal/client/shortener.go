// Package client talks to the remote shortening service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ShortenRequest is the request body of POST /api/shorten.
type ShortenRequest struct {
	URL   string `json:"url"`
	Alias string `json:"alias,omitempty"`
}

// ShortenResponse is the success body of POST /api/shorten.
type ShortenResponse struct {
	URL  string `json:"url,omitempty"`
	Code string `json:"code,omitempty"`
}

// Shortener creates short links. Calls are independent; callers that need
// ordering must serialize them.
type Shortener struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger

	loading atomic.Bool
	mu      sync.Mutex
	err     error
}

// NewShortener creates a client for the service at baseURL.
func NewShortener(httpClient *http.Client, baseURL string, logger *zap.Logger) *Shortener {
	return &Shortener{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// IsLoading reports whether a Shorten call is in flight.
func (s *Shortener) IsLoading() bool {
	return s.loading.Load()
}

// Err returns the error of the last settled call, if any.
func (s *Shortener) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Shorten submits longURL (and the optional alias) and returns the full short link.
// Every failure is a *Error.
func (s *Shortener) Shorten(ctx context.Context, longURL, alias string) (string, error) {
	s.loading.Store(true)
	defer s.loading.Store(false)

	s.setErr(nil)

	shortURL, err := s.shorten(ctx, longURL, alias)
	if err != nil {
		s.setErr(err)
		s.logger.Warn("failed to shorten url",
			zap.String("url", longURL),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)

		return "", err
	}

	s.logger.Debug("shortened url",
		zap.String("url", longURL),
		zap.String("shortUrl", shortURL),
	)

	return shortURL, nil
}

// ShortLink builds the redirect URL for code on the configured service.
func (s *Shortener) ShortLink(code string) string {
	return fmt.Sprintf("%s/r/%s", s.baseURL, code)
}

func (s *Shortener) shorten(ctx context.Context, longURL, alias string) (string, error) {
	payload, err := json.Marshal(ShortenRequest{URL: longURL, Alias: alias})
	if err != nil {
		return "", &Error{Kind: KindServerOpaque, Message: msgShortenFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/shorten", bytes.NewReader(payload))
	if err != nil {
		return "", networkError(err, msgShortenUnreachable)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", networkError(err, msgShortenUnreachable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp.StatusCode, resp.Body, msgShortenFailed)
	}

	var body ShortenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&body); err != nil {
		return "", &Error{
			Kind:       KindServerOpaque,
			StatusCode: resp.StatusCode,
			Message:    msgShortenFailed,
			Err:        fmt.Errorf("failed to decode shorten response: %w", err),
		}
	}

	switch {
	case body.URL != "":
		return body.URL, nil
	case body.Code != "":
		return s.ShortLink(body.Code), nil
	default:
		return "", &Error{
			Kind:       KindServerOpaque,
			StatusCode: resp.StatusCode,
			Message:    msgShortenFailed,
			Err:        errors.New("shorten response has neither url nor code"),
		}
	}
}

func (s *Shortener) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.err = err
}
