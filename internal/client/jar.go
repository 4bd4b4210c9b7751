package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/serroba/shortify/internal/store"
	"go.uber.org/zap"
)

// SessionKey is the blob name the service session cookies are persisted under.
const SessionKey = "url_shortener_session"

const persistTimeout = 5 * time.Second

// Blobs is the durable storage the jar persists into.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PersistentJar is an http.CookieJar that keeps the cookies of the
// shortening service across process restarts. Cookies of other hosts
// live in memory only.
type PersistentJar struct {
	jar    *cookiejar.Jar
	root   *url.URL
	blobs  Blobs
	logger *zap.Logger

	mu   sync.Mutex
	last string
}

// NewPersistentJar creates a jar for baseURL and restores its saved cookies.
func NewPersistentJar(ctx context.Context, baseURL string, blobs Blobs, logger *zap.Logger) (*PersistentJar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &PersistentJar{
		jar:    jar,
		root:   &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"},
		blobs:  blobs,
		logger: logger,
	}

	j.load(ctx)

	return j, nil
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	if u.Host != j.root.Host {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	j.save(ctx)
}

func (j *PersistentJar) load(ctx context.Context) {
	data, err := j.blobs.Get(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			j.logger.Error("failed to load session cookies", zap.Error(err))
		}

		return
	}

	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		j.logger.Error("failed to decode session cookies", zap.Error(err))

		return
	}

	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}

	j.jar.SetCookies(j.root, cookies)

	j.mu.Lock()
	j.last = string(data)
	j.mu.Unlock()
}

func (j *PersistentJar) save(ctx context.Context) {
	current := j.jar.Cookies(j.root)

	stored := make([]storedCookie, 0, len(current))
	for _, c := range current {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}

	data, err := json.Marshal(stored)
	if err != nil {
		j.logger.Error("failed to encode session cookies", zap.Error(err))

		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if string(data) == j.last {
		return
	}

	if err := j.blobs.Set(ctx, SessionKey, data); err != nil {
		j.logger.Error("failed to save session cookies", zap.Error(err))

		return
	}

	j.last = string(data)
}

// Compile-time check.
var _ http.CookieJar = (*PersistentJar)(nil)
